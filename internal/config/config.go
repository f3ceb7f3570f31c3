package config

import (
	"fmt"
	"time"

	"gopkg.in/yaml.v3"
)

// Rejection routes after a declined approval.
const (
	RejectClarifier  = "clarifier"
	RejectReResearch = "re_research"
)

// Session backends.
const (
	BackendMemory   = "memory"
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
	BackendRedis    = "redis"
)

// Duration wraps time.Duration so YAML can carry values like "30s".
// Bare numbers are interpreted as seconds.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err == nil {
		parsed, err := time.ParseDuration(s)
		if err != nil {
			return fmt.Errorf("invalid duration %q: %w", s, err)
		}
		*d = Duration(parsed)
		return nil
	}

	var secs float64
	if err := value.Decode(&secs); err == nil {
		*d = Duration(time.Duration(secs * float64(time.Second)))
		return nil
	}

	return fmt.Errorf("invalid duration value at line %d", value.Line)
}

// Config is the full application configuration.
type Config struct {
	LLM     LLMConfig         `yaml:"llm"`
	Travel  TravelConfig      `yaml:"travel"`
	Agent   AgentConfig       `yaml:"agent"`
	Session SessionConfig     `yaml:"session"`
	Notify  NotifyConfig      `yaml:"notify"`
	Tools   map[string]Values `yaml:"tools"`
	Log     LogConfig         `yaml:"log"`
}

// LLMConfig selects and bounds the chat model.
type LLMConfig struct {
	APIKey            string  `yaml:"api_key"`
	BaseURL           string  `yaml:"base_url"`
	Model             string  `yaml:"model"`
	Temperature       float64 `yaml:"temperature"`
	MaxTokens         int     `yaml:"max_tokens"`
	RequestsPerMinute int     `yaml:"requests_per_minute"`
}

// TravelConfig carries the travel workflow policy.
type TravelConfig struct {
	MinBudgetNPR      float64  `yaml:"min_budget_npr"`
	FeasibilityRule   string   `yaml:"feasibility_rule"`
	FlightBudgetShare float64  `yaml:"flight_budget_share"`
	HotelBudgetShare  float64  `yaml:"hotel_budget_share"`
	ResearchTimeout   Duration `yaml:"research_timeout"`
	RejectionRoute    string   `yaml:"rejection_route"`
}

// AgentConfig bounds the tool-calling loop.
type AgentConfig struct {
	MaxIterations int `yaml:"max_iterations"`
}

// SessionConfig selects the snapshot store.
type SessionConfig struct {
	Backend string   `yaml:"backend"`
	DSN     string   `yaml:"dsn"`
	TTL     Duration `yaml:"ttl"`
}

// NotifyConfig carries WhatsApp credentials. Empty means notifications
// are recorded but not sent.
type NotifyConfig struct {
	TwilioAccountSID string `yaml:"twilio_account_sid"`
	TwilioAuthToken  string `yaml:"twilio_auth_token"`
	FromNumber       string `yaml:"from_number"`
}

// LogConfig controls structured logging.
type LogConfig struct {
	Level string `yaml:"level"`
}

// Default returns the configuration used when nothing else is given.
// Travel defaults preserve the original policy: 10000 NPR minimum,
// 60/40 flight/hotel split, 30s research timeout, clarifier on
// rejection.
func Default() Config {
	return Config{
		LLM: LLMConfig{
			BaseURL:           "https://api.groq.com/openai/v1",
			Model:             "llama-3.3-70b-versatile",
			Temperature:       0,
			MaxTokens:         1024,
			RequestsPerMinute: 60,
		},
		Travel: TravelConfig{
			MinBudgetNPR:      10000,
			FeasibilityRule:   "budget >= min_budget",
			FlightBudgetShare: 0.6,
			HotelBudgetShare:  0.4,
			ResearchTimeout:   Duration(30 * time.Second),
			RejectionRoute:    RejectClarifier,
		},
		Agent: AgentConfig{
			MaxIterations: 5,
		},
		Session: SessionConfig{
			Backend: BackendMemory,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Validate checks the configuration and returns a descriptive error for
// the first problem found.
func (c *Config) Validate() error {
	if c.LLM.Model == "" {
		return fmt.Errorf("llm.model cannot be empty")
	}
	if c.LLM.Temperature < 0 || c.LLM.Temperature > 2 {
		return fmt.Errorf("llm.temperature must be between 0 and 2, got %g", c.LLM.Temperature)
	}
	if c.LLM.MaxTokens <= 0 {
		return fmt.Errorf("llm.max_tokens must be > 0, got %d", c.LLM.MaxTokens)
	}
	if c.LLM.RequestsPerMinute <= 0 {
		return fmt.Errorf("llm.requests_per_minute must be > 0, got %d", c.LLM.RequestsPerMinute)
	}

	if c.Travel.MinBudgetNPR < 0 {
		return fmt.Errorf("travel.min_budget_npr cannot be negative, got %g", c.Travel.MinBudgetNPR)
	}
	if c.Travel.FeasibilityRule == "" {
		return fmt.Errorf("travel.feasibility_rule cannot be empty")
	}
	if c.Travel.FlightBudgetShare <= 0 || c.Travel.FlightBudgetShare > 1 {
		return fmt.Errorf("travel.flight_budget_share must be in (0, 1], got %g", c.Travel.FlightBudgetShare)
	}
	if c.Travel.HotelBudgetShare <= 0 || c.Travel.HotelBudgetShare > 1 {
		return fmt.Errorf("travel.hotel_budget_share must be in (0, 1], got %g", c.Travel.HotelBudgetShare)
	}
	if c.Travel.ResearchTimeout <= 0 {
		return fmt.Errorf("travel.research_timeout must be > 0")
	}
	if c.Travel.RejectionRoute != RejectClarifier && c.Travel.RejectionRoute != RejectReResearch {
		return fmt.Errorf("travel.rejection_route must be %q or %q, got %q",
			RejectClarifier, RejectReResearch, c.Travel.RejectionRoute)
	}

	if c.Agent.MaxIterations <= 0 {
		return fmt.Errorf("agent.max_iterations must be > 0, got %d", c.Agent.MaxIterations)
	}

	switch c.Session.Backend {
	case BackendMemory:
	case BackendSQLite, BackendPostgres, BackendRedis:
		if c.Session.DSN == "" {
			return fmt.Errorf("session.dsn is required for backend %q", c.Session.Backend)
		}
	default:
		return fmt.Errorf("session.backend must be one of memory, sqlite, postgres, redis, got %q", c.Session.Backend)
	}

	return nil
}
