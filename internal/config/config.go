package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/multierr"
	"gopkg.in/yaml.v3"

	"github.com/DoyleJ11/piste-live-backend/internal/bout"
	"github.com/DoyleJ11/piste-live-backend/internal/engine"
)

type Config struct {
	Port              string
	LogLevel          string
	LogFormat         string
	DatabaseURL       string
	NATSURL           string
	NATSStream        string
	NATSSubjectPrefix string
	CORSOrigins       []string
	EventBuffer       int
	RulesFile         string
	Rules             Rules
}

// Rules are the tunable fencing rules, loadable from YAML.
type Rules struct {
	Periods          int           `yaml:"periods"`
	PeriodSeconds    int           `yaml:"period_seconds"`
	BreakSeconds     int           `yaml:"break_seconds"`
	PassivitySeconds int           `yaml:"passivity_seconds"`
	Passivity        *bool         `yaml:"passivity"`
	MaxScore         int           `yaml:"max_score"`
	ForfeitScore     int           `yaml:"forfeit_score"`
	SuddenDeath      int           `yaml:"sudden_death_seconds"`
	TickInterval     time.Duration `yaml:"tick_interval"`
}

func DefaultRules() Rules {
	b := bout.DefaultRules()
	e := engine.DefaultRules()
	on := b.Passivity
	return Rules{
		Periods:          b.Periods,
		PeriodSeconds:    b.PeriodSeconds,
		BreakSeconds:     b.BreakSeconds,
		PassivitySeconds: b.PassivitySeconds,
		Passivity:        &on,
		MaxScore:         e.MaxScore,
		ForfeitScore:     e.ForfeitScore,
		SuddenDeath:      e.SuddenDeathSeconds,
		TickInterval:     time.Second,
	}
}

func (r Rules) Bout() bout.Rules {
	on := true
	if r.Passivity != nil {
		on = *r.Passivity
	}
	return bout.Rules{
		Periods:          r.Periods,
		PeriodSeconds:    r.PeriodSeconds,
		BreakSeconds:     r.BreakSeconds,
		PassivitySeconds: r.PassivitySeconds,
		Passivity:        on,
	}
}

func (r Rules) Engine() engine.Rules {
	return engine.Rules{
		MaxScore:           r.MaxScore,
		ForfeitScore:       r.ForfeitScore,
		SuddenDeathSeconds: r.SuddenDeath,
	}
}

func (r Rules) validate() error {
	var errs []error
	if r.Periods < 1 {
		errs = append(errs, errors.New("periods must be at least 1"))
	}
	if r.PeriodSeconds < 1 || r.BreakSeconds < 1 || r.PassivitySeconds < 1 {
		errs = append(errs, errors.New("period, break and passivity lengths must be positive"))
	}
	if r.MaxScore < 1 {
		errs = append(errs, errors.New("max_score must be positive"))
	}
	if r.ForfeitScore < 1 || r.ForfeitScore > r.MaxScore {
		errs = append(errs, fmt.Errorf("forfeit_score must be within 1..%d", r.MaxScore))
	}
	if r.TickInterval <= 0 {
		errs = append(errs, errors.New("tick_interval must be positive"))
	}
	return multierr.Combine(errs...)
}

// Load reads .env (if present) and then the process environment.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}
	return FromEnv()
}

func FromEnv() (Config, error) {
	c := Config{
		Port:              getEnv("PORT", "8080"),
		LogLevel:          getEnv("LOG_LEVEL", "info"),
		LogFormat:         getEnv("LOG_FORMAT", "json"),
		DatabaseURL:       os.Getenv("DATABASE_URL"),
		NATSURL:           os.Getenv("NATS_URL"),
		NATSStream:        getEnv("NATS_STREAM", "PISTE_EVENTS"),
		NATSSubjectPrefix: getEnv("NATS_SUBJECT_PREFIX", "piste.events"),
		CORSOrigins:       splitList(getEnv("CORS_ORIGINS", "*")),
		RulesFile:         os.Getenv("RULES_FILE"),
		Rules:             DefaultRules(),
	}

	n, err := strconv.Atoi(getEnv("EVENT_BUFFER", "256"))
	if err != nil || n < 1 {
		return Config{}, fmt.Errorf("EVENT_BUFFER: want a positive integer, got %q", os.Getenv("EVENT_BUFFER"))
	}
	c.EventBuffer = n

	if c.RulesFile != "" {
		data, err := os.ReadFile(c.RulesFile)
		if err != nil {
			return Config{}, fmt.Errorf("read rules file: %w", err)
		}
		if c.Rules, err = ParseRules(data); err != nil {
			return Config{}, fmt.Errorf("%s: %w", c.RulesFile, err)
		}
	}
	return c, nil
}

// ParseRules overlays a YAML document on the default rules.
func ParseRules(data []byte) (Rules, error) {
	r := DefaultRules()
	if err := yaml.Unmarshal(data, &r); err != nil {
		return Rules{}, fmt.Errorf("parse rules: %w", err)
	}
	if err := r.validate(); err != nil {
		return Rules{}, err
	}
	return r, nil
}

func getEnv(key, def string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return def
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
