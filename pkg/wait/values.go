package wait

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

// NumericPattern matches a fully typed decimal number. Placeholders such as
// "--", empty strings and partially typed values like "1." do not match.
var NumericPattern = regexp.MustCompile(`^-?\d+(\.\d+)?$`)

// Reader returns the current text of a UI field.
type Reader func() (string, error)

// Counter returns the current number of matching elements.
type Counter func() (int, error)

// Value polls read until accept holds for the value it returns, and returns
// that value. On timeout the error carries the last value observed.
func (p *Poller) Value(name string, read Reader, accept func(string) bool, timeout, interval time.Duration) (string, error) {
	var last string
	_, err := p.until(Condition{
		Name: name,
		Predicate: func() (bool, error) {
			v, err := read()
			if err != nil {
				return false, err
			}
			last = strings.TrimSpace(v)
			return accept(last), nil
		},
		Timeout:  timeout,
		Interval: interval,
	}, &last)
	if err != nil {
		return "", err
	}
	return last, nil
}

// Numeric waits until read yields a value matching NumericPattern and returns
// it parsed. Non-empty is not enough: a stale or half-typed value must not be
// accepted as converged.
func (p *Poller) Numeric(name string, read Reader, timeout, interval time.Duration) (float64, error) {
	return p.NumericMatching(name, read, NumericPattern, timeout, interval)
}

// NumericMatching is Numeric with a caller-supplied pattern, e.g. one that
// pins the number of decimals a recomputed price must have.
func (p *Poller) NumericMatching(name string, read Reader, pattern *regexp.Regexp, timeout, interval time.Duration) (float64, error) {
	var parsed float64
	_, err := p.Value(name, read, func(v string) bool {
		if !pattern.MatchString(v) {
			return false
		}
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return false
		}
		parsed = f
		return true
	}, timeout, interval)
	if err != nil {
		return 0, err
	}
	return parsed, nil
}

// NonEmpty waits until read yields any non-blank value.
func (p *Poller) NonEmpty(name string, read Reader, timeout, interval time.Duration) (string, error) {
	return p.Value(name, read, func(v string) bool { return v != "" }, timeout, interval)
}

// Text waits until read yields exactly want (after trimming).
func (p *Poller) Text(name string, read Reader, want string, timeout, interval time.Duration) error {
	_, err := p.Value(name, read, func(v string) bool { return v == want }, timeout, interval)
	return err
}

// Count waits until count reports exactly expected elements.
func (p *Poller) Count(name string, count Counter, expected int, timeout, interval time.Duration) error {
	_, err := p.CountWhere(name, count, func(n int) bool { return n == expected }, timeout, interval)
	return err
}

// CountWhere waits until accept holds for the element count and returns it.
func (p *Poller) CountWhere(name string, count Counter, accept func(int) bool, timeout, interval time.Duration) (int, error) {
	var (
		last string
		n    int
	)
	_, err := p.until(Condition{
		Name: name,
		Predicate: func() (bool, error) {
			c, err := count()
			if err != nil {
				return false, err
			}
			n = c
			last = strconv.Itoa(c)
			return accept(c), nil
		},
		Timeout:  timeout,
		Interval: interval,
	}, &last)
	if err != nil {
		return 0, err
	}
	return n, nil
}
