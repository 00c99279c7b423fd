// Package config loads the exchange configuration from YAML and builds
// the runtime objects it describes: phase schedule, instrument set and
// per-role constraint lists.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/openalpha/options-exchange/exchange/phase"
	"github.com/openalpha/options-exchange/exchange/teams"
	"github.com/openalpha/options-exchange/exchange/types"
	"github.com/openalpha/options-exchange/exchange/validator"
)

// Config is the top-level configuration file.
type Config struct {
	ListenAddr string `yaml:"listen_addr"`
	LogLevel   string `yaml:"log_level"`

	PhaseCheckInterval float64 `yaml:"phase_check_interval"` // seconds
	OrderQueueTimeout  float64 `yaml:"order_queue_timeout"`  // seconds
	QueueSize          int     `yaml:"queue_size"`

	ResponseCoordinator CoordinatorConfig `yaml:"response_coordinator"`
	MarketPhases        PhasesConfig      `yaml:"market_phases"`

	Constraints map[string][]ConstraintConfig `yaml:"constraints"`
	Instruments []InstrumentConfig            `yaml:"instruments"`
}

// CoordinatorConfig sizes the request/response correlator.
type CoordinatorConfig struct {
	DefaultTimeoutSeconds  float64 `yaml:"default_timeout_seconds"`
	MaxPendingRequests     int     `yaml:"max_pending_requests"`
	CleanupIntervalSeconds float64 `yaml:"cleanup_interval_seconds"`
}

// PhasesConfig is the weekly market schedule.
type PhasesConfig struct {
	Timezone string        `yaml:"timezone"`
	Phases   []PhaseConfig `yaml:"phases"`
}

// PhaseConfig is one schedule window.
type PhaseConfig struct {
	Name           string   `yaml:"name"`
	Start          string   `yaml:"start"`
	End            string   `yaml:"end"`
	Weekdays       []string `yaml:"weekdays"`
	SubmitAllowed  bool     `yaml:"submit_allowed"`
	CancelAllowed  bool     `yaml:"cancel_allowed"`
	MatchEnabled   bool     `yaml:"match_enabled"`
	ExecutionStyle string   `yaml:"execution_style"`
}

// ConstraintConfig is one constraint in a role's ordered list.
type ConstraintConfig struct {
	Type         string           `yaml:"type"`
	Parameters   ConstraintParams `yaml:"parameters"`
	ErrorCode    string           `yaml:"error_code"`
	ErrorMessage string           `yaml:"error_message"`
}

// ConstraintParams holds every recognized parameter; fields the
// constraint type does not use stay zero.
type ConstraintParams struct {
	Max           int64    `yaml:"max"`
	Symmetric     bool     `yaml:"symmetric"`
	Whitelist     []string `yaml:"whitelist"`
	MaxPerSecond  int      `yaml:"max_per_second"`
	AllowedTypes  []string `yaml:"allowed_types"`
	MaxPctFromMid float64  `yaml:"max_pct_from_mid"`
}

// InstrumentConfig is one tradable instrument.
type InstrumentConfig struct {
	Symbol     string `yaml:"symbol"`
	Strike     string `yaml:"strike"`
	Expiry     string `yaml:"expiry"`
	OptionType string `yaml:"option_type"`
	Underlying string `yaml:"underlying"`
}

// Default returns the configuration used when no file is given: one
// test instrument and a schedule that keeps the market always open.
func Default() *Config {
	return &Config{
		ListenAddr:         ":8080",
		LogLevel:           "info",
		PhaseCheckInterval: 0.1,
		OrderQueueTimeout:  5,
		QueueSize:          256,
		ResponseCoordinator: CoordinatorConfig{
			DefaultTimeoutSeconds:  5,
			MaxPendingRequests:     1000,
			CleanupIntervalSeconds: 10,
		},
		MarketPhases: PhasesConfig{
			Timezone: "UTC",
			Phases: []PhaseConfig{
				{
					Name:           "continuous",
					Start:          "00:00",
					End:            "23:59:59",
					SubmitAllowed:  true,
					CancelAllowed:  true,
					MatchEnabled:   true,
					ExecutionStyle: "continuous",
				},
			},
		},
		Instruments: []InstrumentConfig{
			{Symbol: "TEST", OptionType: "underlying"},
		},
	}
}

// Load reads a YAML file over the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return cfg, nil
}

// PhaseInterval returns the phase poll interval as a duration.
func (c *Config) PhaseInterval() time.Duration {
	return time.Duration(c.PhaseCheckInterval * float64(time.Second))
}

// BuildSchedule compiles the phase windows.
func (c *Config) BuildSchedule() (*phase.Schedule, error) {
	loc, err := time.LoadLocation(c.MarketPhases.Timezone)
	if err != nil {
		return nil, fmt.Errorf("timezone %q: %w", c.MarketPhases.Timezone, err)
	}
	windows := make([]phase.Window, 0, len(c.MarketPhases.Phases))
	for _, pc := range c.MarketPhases.Phases {
		w, err := buildWindow(pc)
		if err != nil {
			return nil, err
		}
		windows = append(windows, w)
	}
	return phase.NewSchedule(windows, loc), nil
}

func buildWindow(pc PhaseConfig) (phase.Window, error) {
	start, err := phase.ParseTimeOfDay(pc.Start)
	if err != nil {
		return phase.Window{}, fmt.Errorf("phase %s: %w", pc.Name, err)
	}
	end, err := phase.ParseTimeOfDay(pc.End)
	if err != nil {
		return phase.Window{}, fmt.Errorf("phase %s: %w", pc.Name, err)
	}
	style := phase.ExecutionStyle(pc.ExecutionStyle)
	switch style {
	case phase.ExecutionNone, phase.ExecutionBatch, phase.ExecutionContinuous:
	case "":
		style = phase.ExecutionNone
	default:
		return phase.Window{}, fmt.Errorf("phase %s: invalid execution_style %q", pc.Name, pc.ExecutionStyle)
	}

	var weekdays map[time.Weekday]bool
	if len(pc.Weekdays) > 0 {
		weekdays = make(map[time.Weekday]bool, len(pc.Weekdays))
		for _, name := range pc.Weekdays {
			day, ok := weekdayNames[name]
			if !ok {
				return phase.Window{}, fmt.Errorf("phase %s: invalid weekday %q", pc.Name, name)
			}
			weekdays[day] = true
		}
	}

	return phase.Window{
		State: phase.State{
			Name:           phase.Phase(pc.Name),
			SubmitAllowed:  pc.SubmitAllowed,
			CancelAllowed:  pc.CancelAllowed,
			MatchEnabled:   pc.MatchEnabled,
			ExecutionStyle: style,
		},
		Start:    start,
		End:      end,
		Weekdays: weekdays,
	}, nil
}

var weekdayNames = map[string]time.Weekday{
	"sunday":    time.Sunday,
	"monday":    time.Monday,
	"tuesday":   time.Tuesday,
	"wednesday": time.Wednesday,
	"thursday":  time.Thursday,
	"friday":    time.Friday,
	"saturday":  time.Saturday,
}

// BuildInstruments compiles the instrument list.
func (c *Config) BuildInstruments() (*types.InstrumentSet, error) {
	instruments := make([]*types.Instrument, 0, len(c.Instruments))
	for _, ic := range c.Instruments {
		optType, err := types.ParseOptionType(ic.OptionType)
		if err != nil {
			return nil, fmt.Errorf("instrument %s: %w", ic.Symbol, err)
		}
		var strike types.Price
		if ic.Strike != "" {
			strike, err = types.ParsePrice(ic.Strike)
			if err != nil {
				return nil, fmt.Errorf("instrument %s: %w", ic.Symbol, err)
			}
		}
		instruments = append(instruments, &types.Instrument{
			Symbol:     ic.Symbol,
			Strike:     strike,
			Expiry:     ic.Expiry,
			OptionType: optType,
			Underlying: ic.Underlying,
		})
	}
	return types.NewInstrumentSet(instruments)
}

// BuildConstraints compiles the per-role constraint lists, preserving
// declared order.
func (c *Config) BuildConstraints() (map[teams.Role][]*validator.Constraint, error) {
	out := make(map[teams.Role][]*validator.Constraint, len(c.Constraints))
	for roleName, list := range c.Constraints {
		role, err := teams.ParseRole(roleName)
		if err != nil {
			return nil, err
		}
		for _, cc := range list {
			constraint, err := buildConstraint(cc)
			if err != nil {
				return nil, fmt.Errorf("role %s: %w", roleName, err)
			}
			out[role] = append(out[role], constraint)
		}
	}
	return out, nil
}

func buildConstraint(cc ConstraintConfig) (*validator.Constraint, error) {
	kind := validator.Kind(cc.Type)
	constraint := &validator.Constraint{
		Kind:         kind,
		ErrorCode:    cc.ErrorCode,
		ErrorMessage: cc.ErrorMessage,
	}
	p := cc.Parameters

	switch kind {
	case validator.KindPositionLimit:
		constraint.Max = p.Max
		constraint.Symmetric = p.Symmetric
	case validator.KindPortfolioLimit:
		constraint.Max = p.Max
	case validator.KindInstrumentAllowed:
		constraint.Whitelist = make(map[string]bool, len(p.Whitelist))
		for _, symbol := range p.Whitelist {
			constraint.Whitelist[symbol] = true
		}
	case validator.KindOrderRate:
		if p.MaxPerSecond <= 0 {
			return nil, fmt.Errorf("order_rate requires max_per_second > 0")
		}
		constraint.MaxPerSecond = p.MaxPerSecond
	case validator.KindOrderType:
		constraint.AllowedTypes = make(map[types.OrderType]bool, len(p.AllowedTypes))
		for _, name := range p.AllowedTypes {
			switch name {
			case "limit":
				constraint.AllowedTypes[types.OrderTypeLimit] = true
			case "market":
				constraint.AllowedTypes[types.OrderTypeMarket] = true
			case "quote":
				constraint.AllowedTypes[types.OrderTypeQuote] = true
			default:
				return nil, fmt.Errorf("order_type: invalid allowed type %q", name)
			}
		}
	case validator.KindPriceRange:
		if p.MaxPctFromMid <= 0 {
			return nil, fmt.Errorf("price_range requires max_pct_from_mid > 0")
		}
		constraint.MaxPctFromMid = p.MaxPctFromMid
	default:
		return nil, fmt.Errorf("unknown constraint type %q", cc.Type)
	}
	return constraint, nil
}
