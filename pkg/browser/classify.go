package browser

import (
	"errors"
	"fmt"
	"strings"

	"github.com/playwright-community/playwright-go"

	"github.com/entrhq/aqx-uitest/pkg/failure"
)

// Engine messages for conditions that typically clear on their own while the
// UI re-renders.
var transientMessages = []string{
	"not attached to the dom",
	"element is detached",
	"intercepts pointer events",
	"element is not visible",
	"element is not enabled",
	"element is not stable",
	"element is outside of the viewport",
	"execution context was destroyed",
}

// Classify converts an engine error from op into a structured failure:
// timeouts and re-render races become *failure.TransientError, a closed
// page/context/browser and everything else are wrapped as fatal.
func Classify(op string, err error) error {
	if err == nil {
		return nil
	}
	if failure.IsTransient(err) {
		return err
	}
	if errors.Is(err, playwright.ErrTargetClosed) {
		return fmt.Errorf("%s: %w", op, err)
	}
	if errors.Is(err, playwright.ErrTimeout) {
		return failure.Transient(op, err)
	}
	msg := strings.ToLower(err.Error())
	for _, m := range transientMessages {
		if strings.Contains(msg, m) {
			return failure.Transient(op, err)
		}
	}
	return fmt.Errorf("%s: %w", op, err)
}
