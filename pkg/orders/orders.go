// Package orders holds the order vocabulary of the trading UI and the test
// data helpers used to build orders around the live market price.
package orders

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Type is the order type as labelled in the order-type dropdown.
type Type string

const (
	Market    Type = "Market"
	Limit     Type = "Limit"
	Stop      Type = "Stop"
	StopLimit Type = "Stop Limit"
)

// Side is the order direction.
type Side string

const (
	Buy  Side = "BUY"
	Sell Side = "SELL"
)

// Expiry is a pending-order expiry as labelled in the expiry dropdown.
type Expiry string

const (
	GoodTillCanceled    Expiry = "Good Till Canceled"
	GoodTillDay         Expiry = "Good Till Day"
	GoodTillDate        Expiry = "Good Till Specified Date"
	GoodTillDateAndTime Expiry = "Good Till Specified Date and Time"
)

var (
	ErrUnknownType   = errors.New("unknown order type")
	ErrUnknownSide   = errors.New("unknown order side")
	ErrUnknownExpiry = errors.New("unknown expiry")
	ErrInvalidOrder  = errors.New("invalid order")
)

var (
	types    = []Type{Market, Limit, Stop, StopLimit}
	expiries = []Expiry{GoodTillCanceled, GoodTillDay, GoodTillDate, GoodTillDateAndTime}
)

// ParseType matches a dropdown label exactly, e.g. "Stop Limit".
func ParseType(s string) (Type, error) {
	for _, t := range types {
		if string(t) == s {
			return t, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownType, s)
}

// ParseSide accepts BUY or SELL in any case.
func ParseSide(s string) (Side, error) {
	switch Side(strings.ToUpper(strings.TrimSpace(s))) {
	case Buy:
		return Buy, nil
	case Sell:
		return Sell, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownSide, s)
}

// ParseExpiry matches an expiry label exactly.
func ParseExpiry(s string) (Expiry, error) {
	for _, e := range expiries {
		if string(e) == s {
			return e, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownExpiry, s)
}

// NeedsDate reports whether the expiry is picked from the calendar.
func (e Expiry) NeedsDate() bool {
	return strings.Contains(string(e), "Date")
}

// NeedsTime reports whether the expiry also takes an hour and minute.
func (e Expiry) NeedsTime() bool {
	return strings.Contains(string(e), "Time")
}

// ConfirmationText is the order type shown in the confirmation dialog: the
// bare side for market orders ("BUY"), side and upper-cased type otherwise
// ("SELL LIMIT", "BUY STOP LIMIT").
func ConfirmationText(t Type, s Side) string {
	if t == Market {
		return string(s)
	}
	return string(s) + " " + strings.ToUpper(string(t))
}

// Order is everything the trade panel needs to place one order. Zero
// StopLoss/TakeProfit leave those fields untouched.
type Order struct {
	Type       Type
	Side       Side
	Volume     float64
	Price      float64
	StopLoss   float64
	TakeProfit float64
	Expiry     Expiry
	ExpiryDate time.Time
	// PlacedAt is when the test built the order; used to find the position later.
	PlacedAt time.Time
}

// Pending reports whether the order rests on the book instead of filling.
func (o Order) Pending() bool {
	return o.Type != Market
}

// SuccessMessage is the toast shown after the order is accepted.
func (o Order) SuccessMessage() string {
	if o.Pending() {
		return "Order has been created."
	}
	return "Position has been created"
}

// Validate checks the order is complete enough to submit.
func (o Order) Validate() error {
	if _, err := ParseType(string(o.Type)); err != nil {
		return err
	}
	if _, err := ParseSide(string(o.Side)); err != nil {
		return err
	}
	if o.Volume <= 0 {
		return fmt.Errorf("%w: volume must be positive, got %v", ErrInvalidOrder, o.Volume)
	}
	if o.StopLoss < 0 || o.TakeProfit < 0 {
		return fmt.Errorf("%w: negative stop loss or take profit", ErrInvalidOrder)
	}
	if !o.Pending() {
		return nil
	}
	if o.Price <= 0 {
		return fmt.Errorf("%w: %s order needs a price", ErrInvalidOrder, o.Type)
	}
	if o.Expiry == "" {
		return fmt.Errorf("%w: %s order needs an expiry", ErrInvalidOrder, o.Type)
	}
	if _, err := ParseExpiry(string(o.Expiry)); err != nil {
		return err
	}
	if o.Expiry.NeedsDate() && o.ExpiryDate.IsZero() {
		return fmt.Errorf("%w: %q needs an expiry date", ErrInvalidOrder, o.Expiry)
	}
	return nil
}
