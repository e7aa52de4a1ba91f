package pages

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/playwright-community/playwright-go"

	"github.com/entrhq/aqx-uitest/pkg/browser"
	"github.com/entrhq/aqx-uitest/pkg/failure"
	"github.com/entrhq/aqx-uitest/pkg/orders"
	"github.com/entrhq/aqx-uitest/pkg/wait"
)

const (
	assetsSidebar = "side-bar-option-assets"

	tabOpenPositions = "tab-asset-order-type-open-positions"
	tabPendingOrders = "tab-asset-order-type-pending-orders"
	tabHistory       = "tab-asset-order-type-history"
	tabOrdersDeals   = "tab-asset-order-type-history-orders-and-deals"

	openListItem    = "asset-open-list-item"
	pendingListItem = "asset-pending-list-item"
	historyListItem = "asset-history-position-list-item"

	openOrderIDColumn  = "asset-open-column-order-id"
	openDateColumn     = "asset-open-column-open-date"
	historyDateColumn  = "asset-history-column-open-date"
	openEditButton     = "asset-open-button-edit"
	openCloseButton    = "asset-open-button-close"
	pendingEditButton  = "asset-open-button-edit"
	closeDialogTitle   = "Confirm To Close Position"
	positionClosedText = "Position has been closed."

	overlaySelector     = `div[id="overlay-aqx-trader"]`
	orderNumberSelector = `div:has(div:text("Order No.")) + div`
	closeVolumeSelector = `input[placeholder="Min: 0.01"]`
	maxButtonSelector   = `button:has-text('MAX')`
	confirmSelector     = `button:has-text("Confirm")`

	// AssetDateLayout is the open-date column format, e.g. 2025-12-17 08:47:10.
	AssetDateLayout = "2006-01-02 15:04:05"
)

var (
	ErrPositionNotFound = errors.New("position not found")
	ErrVolumeMismatch   = errors.New("remaining volume mismatch")
)

// CloseOptions select a full or partial close. With neither set the dialog's
// prefilled volume is used.
type CloseOptions struct {
	Volume float64
	UseMax bool
}

// AssetsPage drives the positions, pending orders and history lists.
type AssetsPage struct {
	*Base
}

// NewAssetsPage wraps b.
func NewAssetsPage(b *Base) *AssetsPage {
	return &AssetsPage{Base: b}
}

// Open switches the sidebar to assets.
func (p *AssetsPage) Open() error {
	return p.Click("assets sidebar", p.ByTestID(assetsSidebar))
}

// OpenPositionsTab shows the open positions list.
func (p *AssetsPage) OpenPositionsTab() error {
	return p.switchTab("open positions", tabOpenPositions)
}

// PendingOrdersTab shows the pending orders list.
func (p *AssetsPage) PendingOrdersTab() error {
	return p.switchTab("pending orders", tabPendingOrders)
}

// HistoryTab shows the orders-and-deals history.
func (p *AssetsPage) HistoryTab() error {
	if err := p.Click("history tab", p.ByTestID(tabHistory)); err != nil {
		return err
	}
	return p.Click("orders and deals tab", p.ByTestID(tabOrdersDeals))
}

func (p *AssetsPage) switchTab(name, id string) error {
	tab := p.ByTestID(id)
	if err := p.WaitVisible(name+" tab", tab); err != nil {
		return err
	}
	return p.Click(name+" tab", tab)
}

// OpenPositions returns the open position rows once at least one has loaded.
// An empty list after the action timeout is not an error.
func (p *AssetsPage) OpenPositions() ([]playwright.Locator, error) {
	return p.rows("open positions", openListItem)
}

// PendingOrders returns the pending order rows.
func (p *AssetsPage) PendingOrders() ([]playwright.Locator, error) {
	return p.rows("pending orders", pendingListItem)
}

// HistoryItems returns the history rows.
func (p *AssetsPage) HistoryItems() ([]playwright.Locator, error) {
	return p.rows("history", historyListItem)
}

func (p *AssetsPage) rows(name, id string) ([]playwright.Locator, error) {
	list := p.ByTestID(id)
	_, err := p.Poller.CountWhere(name+" loaded", p.CountOf(name, list), func(n int) bool { return n > 0 }, p.ActionTimeout, 0)
	if err != nil && !errors.Is(err, failure.ErrTimedOut) {
		return nil, err
	}
	all, err := list.All()
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", name, err)
	}
	return all, nil
}

// LatestOpenPosition is the last open position row.
func (p *AssetsPage) LatestOpenPosition() playwright.Locator {
	return p.ByTestID(openListItem).Last()
}

// LatestPendingOrder is the last pending order row.
func (p *AssetsPage) LatestPendingOrder() playwright.Locator {
	return p.ByTestID(pendingListItem).Last()
}

// FindPositionByOrderID polls the open positions until a row's order id
// contains orderID.
func (p *AssetsPage) FindPositionByOrderID(orderID string) (playwright.Locator, error) {
	return p.findRow("order "+orderID, openListItem, openOrderIDColumn, func(v string) bool {
		return strings.Contains(v, orderID)
	})
}

// FindPositionByOpenDate polls the open positions for a row opened at t,
// matched to the second.
func (p *AssetsPage) FindPositionByOpenDate(t time.Time) (playwright.Locator, error) {
	stamp := t.Format(AssetDateLayout)
	return p.findRow("position opened "+stamp, openListItem, openDateColumn, func(v string) bool {
		return strings.Contains(v, stamp)
	})
}

func (p *AssetsPage) findRow(name, listID, columnID string, match func(string) bool) (playwright.Locator, error) {
	var found playwright.Locator
	err := p.Poller.Until(wait.Condition{
		Name: name,
		Predicate: func() (bool, error) {
			rows, err := p.ByTestID(listID).All()
			if err != nil {
				return false, browser.Classify("list rows", err)
			}
			for _, row := range rows {
				text, err := row.GetByTestId(columnID).TextContent()
				if err != nil {
					return false, browser.Classify("read "+columnID, err)
				}
				if match(text) {
					found = row
					return true, nil
				}
			}
			return false, nil
		},
		Timeout: p.ActionTimeout,
	})
	if errors.Is(err, failure.ErrTimedOut) {
		return nil, fmt.Errorf("%w: %s: %w", ErrPositionNotFound, name, err)
	}
	if err != nil {
		return nil, err
	}
	return found, nil
}

// PositionExists reports whether the open positions list currently shows
// orderID. Unlike FindPositionByOrderID it does not wait for the row.
func (p *AssetsPage) PositionExists(orderID string) (bool, error) {
	rows, err := p.ByTestID(openListItem).All()
	if err != nil {
		return false, browser.Classify("list open positions", err)
	}
	for _, row := range rows {
		text, err := row.GetByTestId(openOrderIDColumn).TextContent()
		if err != nil {
			return false, browser.Classify("read "+openOrderIDColumn, err)
		}
		if strings.Contains(text, orderID) {
			return true, nil
		}
	}
	return false, nil
}

// EditOpenPosition opens the edit dialog of row, or of the latest position
// when row is nil.
func (p *AssetsPage) EditOpenPosition(row playwright.Locator) error {
	if row == nil {
		row = p.LatestOpenPosition()
	}
	if err := p.Click("edit position", row.GetByTestId(openEditButton)); err != nil {
		return err
	}
	return p.WaitVisible("edit position dialog", p.Page.GetByText("Edit Position"))
}

// openCloseDialog clicks close on row and returns the order number shown in
// the dialog.
func (p *AssetsPage) openCloseDialog(row playwright.Locator) (string, error) {
	if row == nil {
		row = p.LatestOpenPosition()
	}
	if err := p.Click("close position", row.GetByTestId(openCloseButton)); err != nil {
		return "", err
	}
	if err := p.WaitVisible("close dialog", p.Page.GetByText(closeDialogTitle)); err != nil {
		return "", err
	}
	number := p.Page.Locator(overlaySelector).Locator(orderNumberSelector).First()
	return p.Poller.NonEmpty("order number", p.TextOf("order number", number), p.ActionTimeout, 0)
}

func (p *AssetsPage) confirmClose() error {
	confirm := p.Page.Locator(overlaySelector).Locator(confirmSelector).First()
	if err := p.ClickWhenEnabled("confirm close", confirm); err != nil {
		return err
	}
	return p.WaitVisible("position closed toast", p.Page.GetByText(positionClosedText))
}

// ClosePosition closes row (nil for the latest position) and returns its
// order number.
func (p *AssetsPage) ClosePosition(row playwright.Locator, opts CloseOptions) (string, error) {
	orderNo, err := p.openCloseDialog(row)
	if err != nil {
		return "", err
	}
	switch {
	case opts.UseMax:
		err = p.Click("max volume", p.Page.Locator(maxButtonSelector))
	case opts.Volume > 0:
		err = p.Fill("close volume", p.Page.Locator(closeVolumeSelector), orders.FormatPrice(opts.Volume))
	}
	if err != nil {
		return "", err
	}
	if err := p.confirmClose(); err != nil {
		return "", err
	}
	p.Log.Infof("closed position %s", orderNo)
	return orderNo, nil
}

// PartialClosePosition closes fraction of row's volume, rounded to two
// decimals, and returns the order number and the closed volume.
func (p *AssetsPage) PartialClosePosition(row playwright.Locator, fraction float64) (string, float64, error) {
	if fraction <= 0 || fraction >= 1 {
		return "", 0, fmt.Errorf("partial close fraction must be in (0, 1), got %v", fraction)
	}
	orderNo, err := p.openCloseDialog(row)
	if err != nil {
		return "", 0, err
	}
	volumeInput := p.Page.Locator(closeVolumeSelector)
	current, err := p.NumericValue("close volume", volumeInput)
	if err != nil {
		return "", 0, err
	}
	partial := orders.Round(current*fraction, 2)
	if err := p.Fill("close volume", volumeInput, orders.FormatPrice(partial)); err != nil {
		return "", 0, err
	}
	if err := p.confirmClose(); err != nil {
		return "", 0, err
	}
	p.Log.Infof("closed %v of %v on position %s", partial, current, orderNo)
	return orderNo, partial, nil
}

// RemainingVolume opens the close dialog of the position with orderID, reads
// the prefilled volume and dismisses the dialog.
func (p *AssetsPage) RemainingVolume(orderID string) (float64, error) {
	row, err := p.FindPositionByOrderID(orderID)
	if err != nil {
		return 0, err
	}
	if _, err := p.openCloseDialog(row); err != nil {
		return 0, err
	}
	volumeInput := p.Page.Locator(closeVolumeSelector)
	volume, err := p.NumericValue("remaining volume", volumeInput)
	if err != nil {
		return 0, err
	}
	if err := volumeInput.Press("Escape"); err != nil {
		return 0, fmt.Errorf("dismiss close dialog: %w", err)
	}
	return volume, nil
}

// VerifyPartialClose checks the position with orderID kept want volume.
func (p *AssetsPage) VerifyPartialClose(orderID string, want float64) error {
	got, err := p.RemainingVolume(orderID)
	if err != nil {
		return err
	}
	if math.Abs(got-want) > 1e-9 {
		return fmt.Errorf("%w: order %s: expected %v, got %v", ErrVolumeMismatch, orderID, want, got)
	}
	return nil
}

// EditPendingOrder opens the edit dialog of row (nil for the latest pending
// order) and returns the dialog overlay.
func (p *AssetsPage) EditPendingOrder(row playwright.Locator) (playwright.Locator, error) {
	if row == nil {
		row = p.LatestPendingOrder()
	}
	if err := p.Click("edit order", row.GetByTestId(pendingEditButton)); err != nil {
		return nil, err
	}
	if err := p.WaitVisible("edit order dialog", p.Page.GetByText("Edit Order")); err != nil {
		return nil, err
	}
	overlay := p.Page.Locator(overlaySelector)
	if err := p.WaitVisible("edit order confirm", overlay.Locator(confirmSelector)); err != nil {
		return nil, err
	}
	return overlay, nil
}

// HistoryItemClosestTo returns the history row whose open date is nearest to
// target. Dates are read in target's location.
func (p *AssetsPage) HistoryItemClosestTo(target time.Time) (playwright.Locator, error) {
	items, err := p.HistoryItems()
	if err != nil {
		return nil, err
	}
	var (
		closest  playwright.Locator
		smallest = time.Duration(math.MaxInt64)
	)
	for _, item := range items {
		text, err := item.GetByTestId(historyDateColumn).TextContent()
		if err != nil {
			return nil, fmt.Errorf("read history open date: %w", err)
		}
		opened, err := time.ParseInLocation(AssetDateLayout, strings.TrimSpace(text), target.Location())
		if err != nil {
			return nil, fmt.Errorf("parse history open date %q: %w", text, err)
		}
		diff := target.Sub(opened)
		if diff < 0 {
			diff = -diff
		}
		if diff < smallest {
			smallest, closest = diff, item
		}
	}
	if closest == nil {
		return nil, fmt.Errorf("%w: history is empty", ErrPositionNotFound)
	}
	return closest, nil
}
