package orders

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"time"
)

const (
	// PriceDecimals is the precision prices are rounded to before entry.
	PriceDecimals = 5

	DefaultVolume         = 0.1
	DefaultProtectPercent = 5.0
	DefaultExpiryDays     = 7

	pendingOffset = 0.01
)

// ErrExpiryMonthNavigation is returned when an expiry date is outside the
// month the date picker opens on. Paging the calendar is not supported.
var ErrExpiryMonthNavigation = errors.New("expiry date is not in the displayed month")

// Round rounds v to the given number of decimals.
func Round(v float64, decimals int) float64 {
	p := math.Pow(10, float64(decimals))
	return math.Round(v*p) / p
}

// FormatPrice renders v the way it is typed into a price field.
func FormatPrice(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// StopLoss is the protective price pct percent against the position.
func StopLoss(side Side, price, pct float64) float64 {
	if side == Sell {
		return PercentChange(price, pct)
	}
	return PercentChange(price, -pct)
}

// TakeProfit is the target price pct percent in favour of the position.
func TakeProfit(side Side, price, pct float64) float64 {
	if side == Sell {
		return PercentChange(price, -pct)
	}
	return PercentChange(price, pct)
}

// LimitPrice places a limit order 1% better than the market: below it for a
// buy, above it for a sell.
func LimitPrice(side Side, market float64) float64 {
	if side == Sell {
		return Round(market*(1+pendingOffset), PriceDecimals)
	}
	return Round(market*(1-pendingOffset), PriceDecimals)
}

// StopPrice places a stop order 1% beyond the market: above it for a buy,
// below it for a sell.
func StopPrice(side Side, market float64) float64 {
	if side == Sell {
		return Round(market*(1-pendingOffset), PriceDecimals)
	}
	return Round(market*(1+pendingOffset), PriceDecimals)
}

// PercentChange applies a signed percentage to price.
func PercentChange(price, pct float64) float64 {
	return Round(price*(1+pct/100), PriceDecimals)
}

// PercentDiff is the percentage move from a to b, to two decimals.
func PercentDiff(a, b float64) float64 {
	if a == 0 {
		return 0
	}
	return Round((b-a)/a*100, 2)
}

// FutureDate is now plus days.
func FutureDate(now time.Time, days int) time.Time {
	return now.AddDate(0, 0, days)
}

// CheckExpiryMonth reports ErrExpiryMonthNavigation when date is not in the
// month shown by a picker opened at now.
func CheckExpiryMonth(now, date time.Time) error {
	if date.Year() != now.Year() || date.Month() != now.Month() {
		return fmt.Errorf("%w: %s opens on %s", ErrExpiryMonthNavigation,
			date.Format("January 2, 2006"), now.Format("January 2006"))
	}
	return nil
}

// MarketOrder builds a default-volume market order protected 5% either side
// of price.
func MarketOrder(side Side, price float64, now time.Time) Order {
	return Order{
		Type:       Market,
		Side:       side,
		Volume:     DefaultVolume,
		StopLoss:   StopLoss(side, price, DefaultProtectPercent),
		TakeProfit: TakeProfit(side, price, DefaultProtectPercent),
		PlacedAt:   now,
	}
}

// LimitOrder builds a limit order 1% better than market. Date expiries get
// a date a week out.
func LimitOrder(side Side, market float64, expiry Expiry, now time.Time) Order {
	return pendingOrder(Limit, side, LimitPrice(side, market), expiry, now)
}

// StopOrder builds a stop order 1% beyond market.
func StopOrder(side Side, market float64, expiry Expiry, now time.Time) Order {
	return pendingOrder(Stop, side, StopPrice(side, market), expiry, now)
}

func pendingOrder(t Type, side Side, price float64, expiry Expiry, now time.Time) Order {
	if expiry == "" {
		expiry = GoodTillCanceled
	}
	o := Order{
		Type:       t,
		Side:       side,
		Volume:     DefaultVolume,
		Price:      price,
		StopLoss:   StopLoss(side, price, DefaultProtectPercent),
		TakeProfit: TakeProfit(side, price, DefaultProtectPercent),
		Expiry:     expiry,
		PlacedAt:   now,
	}
	if expiry.NeedsDate() {
		o.ExpiryDate = FutureDate(now, DefaultExpiryDays)
	}
	return o
}
