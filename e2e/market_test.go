//go:build e2e

package e2e

import (
	"fmt"
	"testing"

	"github.com/entrhq/aqx-uitest/pkg/harness"
	"github.com/entrhq/aqx-uitest/pkg/orders"
)

func TestMarketOrder_WithStopLossAndTakeProfit(t *testing.T) {
	for _, side := range []orders.Side{orders.Buy, orders.Sell} {
		t.Run(string(side), func(t *testing.T) {
			harness.Run(t, func(c *harness.Case) error {
				price, err := c.Trading.MarketPrice(side)
				if err != nil {
					return err
				}
				c.Log.Info("market price", "side", side, "price", price)

				order := orders.MarketOrder(side, price, c.Now())
				if err := c.Trading.PlaceOrder(order); err != nil {
					return err
				}

				if err := c.Assets.Open(); err != nil {
					return err
				}
				if err := c.Assets.OpenPositionsTab(); err != nil {
					return err
				}
				rows, err := c.Assets.OpenPositions()
				if err != nil {
					return err
				}
				if len(rows) == 0 {
					return fmt.Errorf("no open positions after placing a %s market order", side)
				}
				c.Log.Info("open positions", "count", len(rows))
				return nil
			})
		})
	}
}

func TestMarketOrder_AutoCalculatedPoints(t *testing.T) {
	harness.Run(t, func(c *harness.Case) error {
		if err := c.Trading.Open(); err != nil {
			return err
		}
		if err := c.Trading.SetVolume(orders.DefaultVolume); err != nil {
			return err
		}
		price, err := c.Trading.BuyPrice()
		if err != nil {
			return err
		}
		if err := c.Trading.SetStopLossPrice(orders.StopLoss(orders.Buy, price, orders.DefaultProtectPercent)); err != nil {
			return err
		}
		if err := c.Trading.SetTakeProfitPrice(orders.TakeProfit(orders.Buy, price, orders.DefaultProtectPercent)); err != nil {
			return err
		}
		sl, tp, err := c.Trading.WaitForAutoCalculatedFields()
		if err != nil {
			return err
		}
		c.Log.Info("auto-calculated points", "stop_loss", sl, "take_profit", tp)
		return nil
	})
}
