// Package config содержит логику чтения конфигурации лимитера пополнений.
package config

import (
	"errors"
	"flag"
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/shopspring/decimal"

	"github.com/mmeshcher/load-velocity/internal/velocity"
)

// Ошибки конфигурации.
var (
	ErrMissingInput  = errors.New("input file is required")
	ErrMissingOutput = errors.New("output file is required")
	ErrWeekStart     = errors.New("unknown week start")
)

// Config содержит параметры запуска лимитера.
type Config struct {
	InputFile         string          `env:"INPUT_FILE"`
	OutputFile        string          `env:"OUTPUT_FILE"`
	DailyAmountLimit  decimal.Decimal `env:"DAILY_AMOUNT_LIMIT"`
	WeeklyAmountLimit decimal.Decimal `env:"WEEKLY_AMOUNT_LIMIT"`
	DailyCountLimit   int             `env:"DAILY_COUNT_LIMIT"`
	WeekStart         string          `env:"WEEK_START"`
	IgnoreDuplicates  bool            `env:"IGNORE_DUPLICATES"`
	DatabaseURI       string          `env:"DATABASE_URI"`
	MetricsPushURL    string          `env:"METRICS_PUSH_URL"`

	weekStart time.Weekday
}

// Parse считывает конфигурацию из флагов командной строки и переменных окружения.
// Переменные окружения имеют приоритет над флагами.
func Parse() (*Config, error) {
	cfg := &Config{}
	defaults := velocity.DefaultLimits()

	flag.StringVar(&cfg.InputFile, "i", "", "input file, one load instruction per line")
	flag.StringVar(&cfg.InputFile, "input", "", "alias for -i")
	flag.StringVar(&cfg.OutputFile, "o", "", "output file, one decision per line")
	flag.StringVar(&cfg.OutputFile, "output", "", "alias for -o")
	flag.TextVar(&cfg.DailyAmountLimit, "daily-limit", defaults.DailyAmount, "maximum amount loaded per customer per day")
	flag.TextVar(&cfg.WeeklyAmountLimit, "weekly-limit", defaults.WeeklyAmount, "maximum amount loaded per customer per week")
	flag.IntVar(&cfg.DailyCountLimit, "daily-count", defaults.DailyCount, "maximum number of loads per customer per day")
	flag.StringVar(&cfg.WeekStart, "week-start", strings.ToLower(defaults.WeekStart.String()), "first day of the week")
	flag.BoolVar(&cfg.IgnoreDuplicates, "ignore-duplicates", false, "do not write decisions for duplicate loads")
	flag.StringVar(&cfg.DatabaseURI, "d", "", "database URI for the decision journal")
	flag.StringVar(&cfg.MetricsPushURL, "metrics-push-url", "", "Prometheus Pushgateway URL")

	flag.Parse()

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	if cfg.InputFile == "" {
		return nil, ErrMissingInput
	}
	if cfg.OutputFile == "" {
		return nil, ErrMissingOutput
	}

	day, err := ParseWeekday(cfg.WeekStart)
	if err != nil {
		return nil, err
	}
	cfg.weekStart = day

	if err := cfg.Limits().Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Limits возвращает лимиты, заданные конфигурацией.
func (c *Config) Limits() velocity.Limits {
	return velocity.Limits{
		DailyAmount:  c.DailyAmountLimit,
		WeeklyAmount: c.WeeklyAmountLimit,
		DailyCount:   c.DailyCountLimit,
		WeekStart:    c.weekStart,
	}
}

// ParseWeekday разбирает название дня недели: полное ("monday") или сокращённое ("mon").
func ParseWeekday(s string) (time.Weekday, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	for d := time.Sunday; d <= time.Saturday; d++ {
		full := strings.ToLower(d.String())
		if name == full || name == full[:3] {
			return d, nil
		}
	}
	return time.Sunday, fmt.Errorf("%w: %q", ErrWeekStart, s)
}
