package pages

import (
	"fmt"
	"time"

	"github.com/playwright-community/playwright-go"

	"github.com/entrhq/aqx-uitest/pkg/orders"
)

const (
	tradeBuyPrice         = "trade-live-buy-price"
	tradeSellPrice        = "trade-live-sell-price"
	tradeVolume           = "trade-input-volume"
	tradeStopLossPrice    = "trade-input-stoploss-price"
	tradeTakeProfitPrice  = "trade-input-takeprofit-price"
	tradeStopLossPoints   = "trade-input-stoploss-points"
	tradeTakeProfitPoints = "trade-input-takeprofit-points"
	tradeOrderType        = "trade-dropdown-order-type"
	tradeExpiry           = "trade-dropdown-expiry"
	tradeExpiryDate       = "trade-input-expiry-date"
	tradeExpiryTime       = "trade-input-expiry-time"
	tradeOrderButton      = "trade-button-order"

	confirmButton    = "trade-confirmation-button-confirm"
	confirmOrderType = "trade-confirmation-order-type"

	priceInputSelector  = `input[name="price"]`
	timeOptionsSelector = `[data-testid="options"]`
	hourFieldSelector   = `div:has-text("Hour") + div`
	minuteFieldSelector = `div:has-text("Minute") + div`
	timeOKSelector      = `button:has-text("OK")`

	tradePath = "/web/trade"

	// presenceTimeout is how long a quick "are we on the trade page" probe waits.
	presenceTimeout = time.Second
)

// TradingPage drives the order entry panel.
type TradingPage struct {
	*Base
}

// NewTradingPage wraps b.
func NewTradingPage(b *Base) *TradingPage {
	return &TradingPage{Base: b}
}

// Open navigates to the trade page.
func (p *TradingPage) Open() error {
	return p.Navigate(p.BaseURL + tradePath)
}

// IsOnTradingPage reports whether the live buy price and the order button are
// shown within timeout.
func (p *TradingPage) IsOnTradingPage(timeout time.Duration) (bool, error) {
	for _, id := range []string{tradeBuyPrice, tradeOrderButton} {
		ok, err := p.IsVisible(id, p.ByTestID(id), timeout)
		if err != nil || !ok {
			return false, err
		}
	}
	return true, nil
}

// EnsureOnTradingPage navigates to the trade page unless it is already shown.
func (p *TradingPage) EnsureOnTradingPage() error {
	ok, err := p.IsOnTradingPage(presenceTimeout)
	if err != nil {
		return err
	}
	if ok {
		return nil
	}
	p.Log.Debugf("not on the trade page, navigating")
	if err := p.Open(); err != nil {
		return err
	}
	return p.WaitVisibleWithin("order button", p.ByTestID(tradeOrderButton), p.NavigationTimeout)
}

// BuyPrice waits for the live buy price to show a number; the "--"
// placeholder and partially rendered values are not accepted.
func (p *TradingPage) BuyPrice() (float64, error) {
	if err := p.EnsureOnTradingPage(); err != nil {
		return 0, err
	}
	return p.NumericText("buy price", p.ByTestID(tradeBuyPrice))
}

// SellPrice is BuyPrice for the sell side.
func (p *TradingPage) SellPrice() (float64, error) {
	if err := p.EnsureOnTradingPage(); err != nil {
		return 0, err
	}
	return p.NumericText("sell price", p.ByTestID(tradeSellPrice))
}

// MarketPrice is the price an order on side executes against.
func (p *TradingPage) MarketPrice(side orders.Side) (float64, error) {
	if side == orders.Sell {
		return p.SellPrice()
	}
	return p.BuyPrice()
}

// SetVolume types the order volume.
func (p *TradingPage) SetVolume(volume float64) error {
	return p.Fill("volume", p.ByTestID(tradeVolume), orders.FormatPrice(volume))
}

// SetStopLossPrice types the stop loss and moves focus to the points field so
// the panel recalculates.
func (p *TradingPage) SetStopLossPrice(price float64) error {
	if err := p.Fill("stop loss price", p.ByTestID(tradeStopLossPrice), orders.FormatPrice(price)); err != nil {
		return err
	}
	return p.Click("stop loss points", p.ByTestID(tradeStopLossPoints))
}

// SetTakeProfitPrice types the take profit and triggers recalculation.
func (p *TradingPage) SetTakeProfitPrice(price float64) error {
	if err := p.Fill("take profit price", p.ByTestID(tradeTakeProfitPrice), orders.FormatPrice(price)); err != nil {
		return err
	}
	return p.Click("take profit points", p.ByTestID(tradeTakeProfitPoints))
}

// StopLossPrice reads the stop loss input once it holds a number.
func (p *TradingPage) StopLossPrice() (float64, error) {
	return p.NumericValue("stop loss price", p.ByTestID(tradeStopLossPrice))
}

// TakeProfitPrice reads the take profit input once it holds a number.
func (p *TradingPage) TakeProfitPrice() (float64, error) {
	return p.NumericValue("take profit price", p.ByTestID(tradeTakeProfitPrice))
}

// WaitForAutoCalculatedFields waits until the stop loss and take profit
// points have been recomputed to complete numbers.
func (p *TradingPage) WaitForAutoCalculatedFields() (stopLoss, takeProfit float64, err error) {
	if stopLoss, err = p.NumericValue("stop loss points", p.ByTestID(tradeStopLossPoints)); err != nil {
		return 0, 0, err
	}
	if takeProfit, err = p.NumericValue("take profit points", p.ByTestID(tradeTakeProfitPoints)); err != nil {
		return 0, 0, err
	}
	return stopLoss, takeProfit, nil
}

// SelectOrderType opens the order type dropdown and picks t. The options
// render after the current value, so the last text match is the option.
func (p *TradingPage) SelectOrderType(t orders.Type) error {
	return p.selectOption("order type", tradeOrderType, string(t))
}

// SelectExpiry picks a pending-order expiry.
func (p *TradingPage) SelectExpiry(e orders.Expiry) error {
	return p.selectOption("expiry", tradeExpiry, string(e))
}

func (p *TradingPage) selectOption(name, dropdownID, label string) error {
	dropdown := p.ByTestID(dropdownID)
	if err := p.Click(name+" dropdown", dropdown); err != nil {
		return err
	}
	option := dropdown.GetByText(label, playwright.LocatorGetByTextOptions{Exact: playwright.Bool(true)}).Last()
	return p.Click(fmt.Sprintf("%s %q", name, label), option)
}

// SetLimitPrice types the limit or stop trigger price.
func (p *TradingPage) SetLimitPrice(price float64) error {
	return p.Fill("order price", p.Page.Locator(priceInputSelector), orders.FormatPrice(price))
}

// LimitPrice reads the limit or stop trigger price.
func (p *TradingPage) LimitPrice() (float64, error) {
	return p.NumericValue("order price", p.Page.Locator(priceInputSelector))
}

// SetExpiryDate picks date in the calendar and, with withTime, its hour and
// minute. Dates outside the month the calendar opens on are not supported and
// return orders.ErrExpiryMonthNavigation.
func (p *TradingPage) SetExpiryDate(date time.Time, withTime bool) error {
	if err := orders.CheckExpiryMonth(p.Poller.Clock().Now(), date); err != nil {
		return err
	}
	if err := p.Click("expiry date", p.ByTestID(tradeExpiryDate)); err != nil {
		return err
	}
	day := p.Page.Locator(fmt.Sprintf(`abbr[aria-label=%q]`, date.Format("January 02, 2006")))
	if err := p.Click("calendar day", day); err != nil {
		return err
	}
	if !withTime {
		return nil
	}

	if err := p.Click("expiry time", p.ByTestID(tradeExpiryTime)); err != nil {
		return err
	}
	if err := p.pickTime("hour", hourFieldSelector, date.Format("15")); err != nil {
		return err
	}
	if err := p.pickTime("minute", minuteFieldSelector, date.Format("04")); err != nil {
		return err
	}
	return p.Click("time OK", p.Page.Locator(timeOKSelector))
}

func (p *TradingPage) pickTime(name, fieldSelector, value string) error {
	if err := p.Click(name, p.Page.Locator(fieldSelector).First()); err != nil {
		return err
	}
	options := p.Page.Locator(timeOptionsSelector)
	if err := p.WaitVisible(name+" options", options.First()); err != nil {
		return err
	}
	option := p.Page.Locator(fmt.Sprintf(`%s div:has-text(%q)`, timeOptionsSelector, value)).First()
	return p.Click(name+" "+value, option)
}

// ClickOrderButton submits the panel once the button is enabled.
func (p *TradingPage) ClickOrderButton() error {
	return p.ClickWhenEnabled("order button", p.ByTestID(tradeOrderButton))
}

// VerifyConfirmationDialog waits for the confirmation dialog to show the
// expected order type text, e.g. "SELL LIMIT".
func (p *TradingPage) VerifyConfirmationDialog(t orders.Type, side orders.Side) error {
	if err := p.WaitVisible("confirm button", p.ByTestID(confirmButton)); err != nil {
		return err
	}
	return p.WaitText("confirmation order type", p.ByTestID(confirmOrderType), orders.ConfirmationText(t, side))
}

// ConfirmOrder clicks confirm in the dialog.
func (p *TradingPage) ConfirmOrder() error {
	return p.Click("confirm order", p.ByTestID(confirmButton))
}

// VerifyOrderSuccess waits for the success toast.
func (p *TradingPage) VerifyOrderSuccess(message string) error {
	return p.WaitVisible("toast "+message, p.Page.GetByText(message))
}

// PlaceOrder fills the panel for o, confirms it and waits for the success
// toast.
func (p *TradingPage) PlaceOrder(o orders.Order) error {
	if err := o.Validate(); err != nil {
		return err
	}
	if err := p.EnsureOnTradingPage(); err != nil {
		return err
	}
	p.Log.Infof("placing %s %s order, volume %v", o.Side, o.Type, o.Volume)

	steps := []func() error{
		func() error { return p.SelectOrderType(o.Type) },
	}
	if o.Pending() {
		steps = append(steps, func() error { return p.SetLimitPrice(o.Price) })
	}
	steps = append(steps, func() error { return p.SetVolume(o.Volume) })
	if o.StopLoss > 0 {
		steps = append(steps, func() error { return p.SetStopLossPrice(o.StopLoss) })
	}
	if o.TakeProfit > 0 {
		steps = append(steps, func() error { return p.SetTakeProfitPrice(o.TakeProfit) })
	}
	if o.Pending() {
		steps = append(steps, func() error { return p.SelectExpiry(o.Expiry) })
		if o.Expiry.NeedsDate() {
			steps = append(steps, func() error { return p.SetExpiryDate(o.ExpiryDate, o.Expiry.NeedsTime()) })
		}
	}
	steps = append(steps,
		p.ClickOrderButton,
		func() error { return p.VerifyConfirmationDialog(o.Type, o.Side) },
		p.ConfirmOrder,
		func() error { return p.VerifyOrderSuccess(o.SuccessMessage()) },
	)

	for _, step := range steps {
		if err := step(); err != nil {
			return fmt.Errorf("place %s %s order: %w", o.Side, o.Type, err)
		}
	}
	return nil
}
