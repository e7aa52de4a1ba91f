package pages

import (
	"fmt"
	"sync"
	"time"

	"github.com/playwright-community/playwright-go"

	"github.com/entrhq/aqx-uitest/pkg/retry"
	"github.com/entrhq/aqx-uitest/pkg/wait"
	"github.com/entrhq/aqx-uitest/pkg/wait/waittest"
)

// fakeDOM is a scripted page: elements are addressed by the chain of lookups
// that produced them, e.g. `testid=trade-dropdown-order-type >> text=Market`.
type fakeDOM struct {
	mu       sync.Mutex
	elements map[string]*fakeElement
	clicks   []string
	fills    map[string][]string
	gotos    []string
	onGoto   func(url string)
}

func newFakeDOM() *fakeDOM {
	return &fakeDOM{elements: map[string]*fakeElement{}, fills: map[string][]string{}}
}

func (d *fakeDOM) el(key string) *fakeElement {
	d.mu.Lock()
	defer d.mu.Unlock()
	e, ok := d.elements[key]
	if !ok {
		e = &fakeElement{dom: d, key: key, enabled: true}
		d.elements[key] = e
	}
	return e
}

func (d *fakeDOM) clicked() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.clicks...)
}

// pwLocator lets fakeElement embed the interface and still define Locator.
type pwLocator = playwright.Locator

type fakeElement struct {
	pwLocator
	dom *fakeDOM
	key string

	visible      bool
	visibleAfter int
	enabled      bool
	texts        []string
	values       []string
	clickErrs    []error
	onClick      func()
	rows         []*fakeElement
	pressed      []string
}

func (e *fakeElement) child(sel string) *fakeElement {
	return e.dom.el(e.key + " >> " + sel)
}

// next pops the head of a scripted sequence; the last value sticks.
func next(seq *[]string) string {
	if len(*seq) == 0 {
		return ""
	}
	v := (*seq)[0]
	if len(*seq) > 1 {
		*seq = (*seq)[1:]
	}
	return v
}

func (e *fakeElement) Click(...playwright.LocatorClickOptions) error {
	e.dom.mu.Lock()
	if len(e.clickErrs) > 0 {
		err := e.clickErrs[0]
		e.clickErrs = e.clickErrs[1:]
		e.dom.mu.Unlock()
		return err
	}
	e.dom.clicks = append(e.dom.clicks, e.key)
	hook := e.onClick
	e.dom.mu.Unlock()
	if hook != nil {
		hook()
	}
	return nil
}

func (e *fakeElement) Fill(value string, _ ...playwright.LocatorFillOptions) error {
	e.dom.mu.Lock()
	defer e.dom.mu.Unlock()
	e.dom.fills[e.key] = append(e.dom.fills[e.key], value)
	e.values = []string{value}
	return nil
}

func (e *fakeElement) Press(key string, _ ...playwright.LocatorPressOptions) error {
	e.pressed = append(e.pressed, key)
	return nil
}

func (e *fakeElement) IsVisible(...playwright.LocatorIsVisibleOptions) (bool, error) {
	e.dom.mu.Lock()
	defer e.dom.mu.Unlock()
	if e.visibleAfter > 0 {
		e.visibleAfter--
		return false, nil
	}
	return e.visible, nil
}

func (e *fakeElement) IsEnabled(...playwright.LocatorIsEnabledOptions) (bool, error) {
	return e.enabled, nil
}

func (e *fakeElement) TextContent(...playwright.LocatorTextContentOptions) (string, error) {
	e.dom.mu.Lock()
	defer e.dom.mu.Unlock()
	return next(&e.texts), nil
}

func (e *fakeElement) InputValue(...playwright.LocatorInputValueOptions) (string, error) {
	e.dom.mu.Lock()
	defer e.dom.mu.Unlock()
	return next(&e.values), nil
}

func (e *fakeElement) Count() (int, error) { return len(e.rows), nil }

func (e *fakeElement) All() ([]playwright.Locator, error) {
	out := make([]playwright.Locator, len(e.rows))
	for i, r := range e.rows {
		out[i] = r
	}
	return out, nil
}

func (e *fakeElement) First() playwright.Locator {
	if len(e.rows) > 0 {
		return e.rows[0]
	}
	return e
}

func (e *fakeElement) Last() playwright.Locator {
	if len(e.rows) > 0 {
		return e.rows[len(e.rows)-1]
	}
	return e
}

func (e *fakeElement) GetByTestId(id interface{}) playwright.Locator {
	return e.child(fmt.Sprintf("testid=%v", id))
}

func (e *fakeElement) GetByText(text interface{}, _ ...playwright.LocatorGetByTextOptions) playwright.Locator {
	return e.child(fmt.Sprintf("text=%v", text))
}

func (e *fakeElement) Locator(sel interface{}, _ ...playwright.LocatorLocatorOptions) playwright.Locator {
	return e.child(fmt.Sprintf("css=%v", sel))
}

// addRows gives the list element n rows named key#i.
func (e *fakeElement) addRows(n int) []*fakeElement {
	for i := len(e.rows); i < n; i++ {
		e.rows = append(e.rows, e.dom.el(fmt.Sprintf("%s#%d", e.key, i)))
	}
	return e.rows
}

type fakePage struct {
	playwright.Page
	dom *fakeDOM
	url string
}

func (p *fakePage) GetByTestId(id interface{}) playwright.Locator {
	return p.dom.el(fmt.Sprintf("testid=%v", id))
}

func (p *fakePage) GetByText(text interface{}, _ ...playwright.PageGetByTextOptions) playwright.Locator {
	return p.dom.el(fmt.Sprintf("text=%v", text))
}

func (p *fakePage) Locator(sel string, _ ...playwright.PageLocatorOptions) playwright.Locator {
	return p.dom.el("css=" + sel)
}

func (p *fakePage) Goto(url string, _ ...playwright.PageGotoOptions) (playwright.Response, error) {
	p.dom.mu.Lock()
	p.dom.gotos = append(p.dom.gotos, url)
	hook := p.dom.onGoto
	p.dom.mu.Unlock()
	p.url = url
	if hook != nil {
		hook(url)
	}
	return nil, nil
}

func (p *fakePage) URL() string { return p.url }

const testBaseURL = "https://aqxtrader.aquariux.com"

type fixture struct {
	dom   *fakeDOM
	page  *fakePage
	clock *waittest.FakeClock
	deps  Deps
	base  *Base
}

func newFixture() *fixture {
	dom := newFakeDOM()
	clock := waittest.NewFakeClock()
	f := &fixture{
		dom:   dom,
		page:  &fakePage{dom: dom, url: "about:blank"},
		clock: clock,
	}
	f.deps = Deps{
		BaseURL:           testBaseURL,
		Poller:            wait.NewPoller(wait.WithClock(clock)),
		Retrier:           retry.NewExecutor(retry.WithClock(clock)),
		Policy:            retry.DefaultPolicy,
		ActionTimeout:     10 * time.Second,
		NavigationTimeout: 30 * time.Second,
	}
	f.base = f.deps.New(f.page)
	return f
}

// onTradingPage makes the trade panel markers visible.
func (f *fixture) onTradingPage() {
	f.dom.el("testid=" + tradeBuyPrice).visible = true
	f.dom.el("testid=" + tradeOrderButton).visible = true
}

func testid(id string) string { return "testid=" + id }
func css(sel string) string   { return "css=" + sel }
func text(t string) string    { return "text=" + t }
