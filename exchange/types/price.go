package types

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Price is a price in ticks. One tick is $0.01, so a Price of 525
// represents $5.25. All book arithmetic is integral; decimal strings
// appear only at the API edge.
type Price int64

// TickSize is the minimum price increment in ticks.
const TickSize Price = 1

// ParsePrice parses a two-decimal price string such as "5.25" or "100".
// Prices with more than two decimal places are rejected.
func ParsePrice(s string) (Price, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("empty price")
	}
	neg := false
	if strings.HasPrefix(s, "-") {
		neg = true
		s = s[1:]
	}
	whole := s
	frac := ""
	if i := strings.IndexByte(s, '.'); i >= 0 {
		whole = s[:i]
		frac = s[i+1:]
	}
	if whole == "" {
		whole = "0"
	}
	if len(frac) > 2 {
		if _, err := strconv.ParseInt(frac, 10, 64); err == nil {
			return 0, fmt.Errorf("price %s: %w", s, ErrOffTick)
		}
		return 0, fmt.Errorf("invalid price %q", s)
	}
	for len(frac) < 2 {
		frac += "0"
	}
	w, err := strconv.ParseInt(whole, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid price %q", s)
	}
	f, err := strconv.ParseInt(frac, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid price %q", s)
	}
	p := Price(w*100 + f)
	if neg {
		p = -p
	}
	return p, nil
}

// String formats the price as a two-decimal string, e.g. "5.25".
func (p Price) String() string {
	v := int64(p)
	sign := ""
	if v < 0 {
		sign = "-"
		v = -v
	}
	return fmt.Sprintf("%s%d.%02d", sign, v/100, v%100)
}

// Float64 returns the price in dollars. Used only for display and
// percentage band checks, never for matching.
func (p Price) Float64() float64 {
	return float64(p) / 100
}

// MarshalJSON renders the price as a decimal string.
func (p Price) MarshalJSON() ([]byte, error) {
	return json.Marshal(p.String())
}

// UnmarshalJSON accepts either a JSON number (5.25) or a string ("5.25").
func (p *Price) UnmarshalJSON(data []byte) error {
	s := strings.TrimSpace(string(data))
	if len(s) >= 2 && s[0] == '"' {
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
	}
	parsed, err := ParsePrice(s)
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}
