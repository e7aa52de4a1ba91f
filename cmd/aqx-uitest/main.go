// Command aqx-uitest prepares and checks the environment the UI suites run
// against: it installs the Playwright browser, verifies that the configured
// account can log in and prints the effective configuration.
//
// The suites themselves run with go test:
//
//	AQX_USERNAME=... AQX_PASSWORD=... go test -tags e2e ./e2e/...
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/entrhq/aqx-uitest/pkg/failure"
	"github.com/entrhq/aqx-uitest/pkg/harness"
)

const version = "0.1.0"

func main() {
	if err := newRootCmd(nil).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(exitCode(err))
	}
}

func exitCode(err error) int {
	if errors.Is(err, failure.ErrAuthentication) {
		return harness.ExitAuth
	}
	return 1
}
