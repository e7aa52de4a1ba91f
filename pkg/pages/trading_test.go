package pages

import (
	"fmt"
	"testing"
	"time"

	"github.com/playwright-community/playwright-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/entrhq/aqx-uitest/pkg/failure"
	"github.com/entrhq/aqx-uitest/pkg/orders"
)

func TestTradingPage_BuyPriceSkipsPlaceholders(t *testing.T) {
	f := newFixture()
	f.onTradingPage()
	f.dom.el(testid(tradeBuyPrice)).texts = []string{"--", "", "1.08342"}

	price, err := NewTradingPage(f.base).BuyPrice()

	require.NoError(t, err)
	assert.InDelta(t, 1.08342, price, 1e-9)
	assert.Empty(t, f.dom.gotos)
	assert.Len(t, f.clock.Sleeps(), 2)
}

func TestTradingPage_MarketPriceUsesSide(t *testing.T) {
	f := newFixture()
	f.onTradingPage()
	f.dom.el(testid(tradeBuyPrice)).texts = []string{"1.08342"}
	f.dom.el(testid(tradeSellPrice)).texts = []string{"1.08330"}
	p := NewTradingPage(f.base)

	buy, err := p.MarketPrice(orders.Buy)
	require.NoError(t, err)
	sell, err := p.MarketPrice(orders.Sell)
	require.NoError(t, err)

	assert.InDelta(t, 1.08342, buy, 1e-9)
	assert.InDelta(t, 1.0833, sell, 1e-9)
}

func TestTradingPage_EnsureNavigates(t *testing.T) {
	f := newFixture()
	f.dom.onGoto = func(string) { f.onTradingPage() }

	require.NoError(t, NewTradingPage(f.base).EnsureOnTradingPage())

	assert.Equal(t, []string{testBaseURL + "/web/trade"}, f.dom.gotos)
	assert.GreaterOrEqual(t, f.clock.Now().Sub(time.Date(2025, time.December, 17, 8, 47, 10, 0, time.UTC)), time.Second,
		"the presence probe runs its full timeout before navigating")
}

func TestTradingPage_PlaceMarketOrder(t *testing.T) {
	f := newFixture()
	f.onTradingPage()
	f.dom.el(testid(confirmButton)).visible = true
	f.dom.el(testid(confirmOrderType)).texts = []string{"", "BUY"}
	f.dom.el(text("Position has been created")).visible = true

	o := orders.MarketOrder(orders.Buy, 1.08342, f.clock.Now())
	require.NoError(t, NewTradingPage(f.base).PlaceOrder(o))

	assert.Equal(t, []string{
		testid(tradeOrderType),
		testid(tradeOrderType) + " >> " + text("Market"),
		testid(tradeStopLossPoints),
		testid(tradeTakeProfitPoints),
		testid(tradeOrderButton),
		testid(confirmButton),
	}, f.dom.clicked())
	assert.Equal(t, []string{"0.1"}, f.dom.fills[testid(tradeVolume)])
	assert.Equal(t, []string{orders.FormatPrice(o.StopLoss)}, f.dom.fills[testid(tradeStopLossPrice)])
	assert.Equal(t, []string{orders.FormatPrice(o.TakeProfit)}, f.dom.fills[testid(tradeTakeProfitPrice)])
	assert.NotContains(t, f.dom.fills, css(priceInputSelector))
}

func TestTradingPage_PlaceLimitOrderWithExpiryTime(t *testing.T) {
	f := newFixture()
	f.onTradingPage()
	f.dom.el(css(timeOptionsSelector)).visible = true
	f.dom.el(testid(confirmButton)).visible = true
	f.dom.el(testid(confirmOrderType)).texts = []string{"BUY LIMIT"}
	f.dom.el(text("Order has been created.")).visible = true

	o := orders.LimitOrder(orders.Buy, 1.08342, orders.GoodTillDateAndTime, f.clock.Now())
	require.NoError(t, NewTradingPage(f.base).PlaceOrder(o))

	assert.Equal(t, []string{
		testid(tradeOrderType),
		testid(tradeOrderType) + " >> " + text("Limit"),
		testid(tradeStopLossPoints),
		testid(tradeTakeProfitPoints),
		testid(tradeExpiry),
		testid(tradeExpiry) + " >> " + text("Good Till Specified Date and Time"),
		testid(tradeExpiryDate),
		css(`abbr[aria-label="December 24, 2025"]`),
		testid(tradeExpiryTime),
		css(hourFieldSelector),
		css(`[data-testid="options"] div:has-text("08")`),
		css(minuteFieldSelector),
		css(`[data-testid="options"] div:has-text("47")`),
		css(timeOKSelector),
		testid(tradeOrderButton),
		testid(confirmButton),
	}, f.dom.clicked())
	assert.Equal(t, []string{"1.07259"}, f.dom.fills[css(priceInputSelector)])
}

func TestTradingPage_ExpiryInNextMonth(t *testing.T) {
	f := newFixture()
	f.onTradingPage()

	o := orders.LimitOrder(orders.Sell, 1.08342, orders.GoodTillDate, f.clock.Now())
	o.ExpiryDate = time.Date(2026, time.January, 4, 0, 0, 0, 0, time.UTC)
	err := NewTradingPage(f.base).PlaceOrder(o)

	assert.ErrorIs(t, err, orders.ErrExpiryMonthNavigation)
	assert.ErrorContains(t, err, "place SELL Limit order")
	assert.NotContains(t, f.dom.clicked(), testid(tradeExpiryDate))
	assert.NotContains(t, f.dom.clicked(), testid(tradeOrderButton))
}

func TestTradingPage_PlaceOrderRejectsInvalid(t *testing.T) {
	f := newFixture()

	err := NewTradingPage(f.base).PlaceOrder(orders.Order{Type: orders.Market, Side: orders.Buy})

	assert.ErrorIs(t, err, orders.ErrInvalidOrder)
	assert.Empty(t, f.dom.clicked())
}

func TestBase_ClickRetriesTransientFailures(t *testing.T) {
	f := newFixture()
	button := f.dom.el(testid(tradeOrderButton))
	button.clickErrs = []error{fmt.Errorf("%w: element is not stable", playwright.ErrTimeout)}

	require.NoError(t, f.base.Click("order button", button))

	assert.Equal(t, []string{testid(tradeOrderButton)}, f.dom.clicked())
	assert.Equal(t, []time.Duration{time.Second}, f.clock.Sleeps())
}

func TestBase_ClickGivesUp(t *testing.T) {
	f := newFixture()
	button := f.dom.el(testid(tradeOrderButton))
	intercepted := fmt.Errorf("%w: <div class=\"overlay\"> intercepts pointer events", playwright.ErrTimeout)
	button.clickErrs = []error{intercepted, intercepted, intercepted}

	err := f.base.Click("order button", button)

	var exhausted *failure.ExhaustedError
	require.ErrorAs(t, err, &exhausted)
	assert.Equal(t, 3, exhausted.Attempts)
	assert.ErrorIs(t, err, playwright.ErrTimeout)
	assert.Empty(t, f.dom.clicked())
}

func TestBase_ClickDoesNotRetryClosedTarget(t *testing.T) {
	f := newFixture()
	button := f.dom.el(testid(tradeOrderButton))
	button.clickErrs = []error{fmt.Errorf("%w: page has been closed", playwright.ErrTargetClosed)}

	err := f.base.Click("order button", button)

	assert.ErrorIs(t, err, playwright.ErrTargetClosed)
	assert.False(t, failure.IsTransient(err))
	assert.Empty(t, f.clock.Sleeps())
}
