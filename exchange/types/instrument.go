package types

import "fmt"

// OptionType distinguishes calls, puts and plain underlyings.
type OptionType int

const (
	OptionTypeUnderlying OptionType = iota
	OptionTypeCall
	OptionTypePut
)

func (t OptionType) String() string {
	switch t {
	case OptionTypeCall:
		return "call"
	case OptionTypePut:
		return "put"
	default:
		return "underlying"
	}
}

// ParseOptionType parses "call", "put" or "underlying".
func ParseOptionType(s string) (OptionType, error) {
	switch s {
	case "call":
		return OptionTypeCall, nil
	case "put":
		return OptionTypePut, nil
	case "underlying", "":
		return OptionTypeUnderlying, nil
	default:
		return OptionTypeUnderlying, fmt.Errorf("invalid option type %q", s)
	}
}

// Instrument is immutable after registration at startup.
type Instrument struct {
	Symbol     string
	Strike     Price
	Expiry     string // empty for underlyings
	OptionType OptionType
	Underlying string
}

// InstrumentSet is the read-only registry of tradable instruments.
type InstrumentSet struct {
	bySymbol map[string]*Instrument
	symbols  []string
}

// NewInstrumentSet builds the registry. Duplicate symbols are an error.
func NewInstrumentSet(instruments []*Instrument) (*InstrumentSet, error) {
	s := &InstrumentSet{bySymbol: make(map[string]*Instrument, len(instruments))}
	for _, inst := range instruments {
		if inst.Symbol == "" {
			return nil, fmt.Errorf("instrument with empty symbol")
		}
		if _, dup := s.bySymbol[inst.Symbol]; dup {
			return nil, fmt.Errorf("duplicate instrument symbol %s", inst.Symbol)
		}
		s.bySymbol[inst.Symbol] = inst
		s.symbols = append(s.symbols, inst.Symbol)
	}
	return s, nil
}

// Get looks up an instrument by symbol.
func (s *InstrumentSet) Get(symbol string) (*Instrument, bool) {
	inst, ok := s.bySymbol[symbol]
	return inst, ok
}

// Symbols returns all registered symbols in registration order.
func (s *InstrumentSet) Symbols() []string {
	return s.symbols
}
