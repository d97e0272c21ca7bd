package config

import (
	"fmt"
	"strings"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"

	"receiving-engine/internal/core"
	"receiving-engine/internal/db"
)

type Config struct {
	Database    db.Options
	LogLevel    string
	Environment string
	Version     string
	Receiving   core.ServiceConfig
}

// Load reads .env when present, then the process environment.
func Load() (*Config, error) {
	_ = godotenv.Load()
	return FromViper(newViper())
}

func newViper() *viper.Viper {
	v := viper.New()
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	v.SetDefault("DATABASE_URL", "")
	v.SetDefault("DB_MAX_CONNS", 10)
	v.SetDefault("DB_MIN_CONNS", 0)
	v.SetDefault("DB_MAX_CONN_LIFETIME", "1h")
	v.SetDefault("DB_STATEMENT_TIMEOUT", "30s")
	v.SetDefault("DB_CONNECT_TIMEOUT", "5s")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("APP_ENV", "development")
	v.SetDefault("APP_VERSION", "dev")
	v.SetDefault("RECEIVING_FALLBACK_TAX_RATE", "0.16")
	v.SetDefault("RECEIVING_DEFAULT_CURRENCY", "MXN")
	v.SetDefault("RECEIVING_QTY_TOLERANCE", "0.000001")

	elevated := string(core.RoleExecutive) + "," + string(core.RoleAdminOperations)
	v.SetDefault("RECEIVING_PRICE_OVERRIDE_ROLES", elevated)
	v.SetDefault("RECEIVING_PRICING_REVIEW_ROLES", elevated)
	v.SetDefault("RECEIVING_CREDIT_ROLES", elevated)
	v.SetDefault("RECEIVING_ANY_PLANT_ROLES", elevated)
	return v
}

// FromViper builds a Config from an already populated viper instance.
func FromViper(v *viper.Viper) (*Config, error) {
	rate, err := decimal.NewFromString(v.GetString("RECEIVING_FALLBACK_TAX_RATE"))
	if err != nil {
		return nil, fmt.Errorf("RECEIVING_FALLBACK_TAX_RATE: %w", err)
	}
	if rate.IsNegative() || rate.GreaterThanOrEqual(decimal.NewFromInt(1)) {
		return nil, fmt.Errorf("RECEIVING_FALLBACK_TAX_RATE must be in [0, 1), got %s", rate)
	}
	tolerance, err := decimal.NewFromString(v.GetString("RECEIVING_QTY_TOLERANCE"))
	if err != nil {
		return nil, fmt.Errorf("RECEIVING_QTY_TOLERANCE: %w", err)
	}
	if tolerance.IsNegative() {
		return nil, fmt.Errorf("RECEIVING_QTY_TOLERANCE must not be negative, got %s", tolerance)
	}
	currency := strings.ToUpper(strings.TrimSpace(v.GetString("RECEIVING_DEFAULT_CURRENCY")))
	if currency == "" {
		return nil, fmt.Errorf("RECEIVING_DEFAULT_CURRENCY must not be empty")
	}

	if v.GetInt32("DB_MAX_CONNS") < 1 {
		return nil, fmt.Errorf("DB_MAX_CONNS must be at least 1, got %d", v.GetInt32("DB_MAX_CONNS"))
	}

	policy := core.NewPolicy(map[core.Permission][]core.Role{
		core.PermOverridePrice: roles(v.GetString("RECEIVING_PRICE_OVERRIDE_ROLES")),
		core.PermReviewPricing: roles(v.GetString("RECEIVING_PRICING_REVIEW_ROLES")),
		core.PermApplyCredit:   roles(v.GetString("RECEIVING_CREDIT_ROLES")),
		core.PermAnyPlant:      roles(v.GetString("RECEIVING_ANY_PLANT_ROLES")),
	})

	return &Config{
		Database: db.Options{
			URL:              v.GetString("DATABASE_URL"),
			MaxConns:         v.GetInt32("DB_MAX_CONNS"),
			MinConns:         v.GetInt32("DB_MIN_CONNS"),
			MaxConnLifetime:  v.GetDuration("DB_MAX_CONN_LIFETIME"),
			StatementTimeout: v.GetDuration("DB_STATEMENT_TIMEOUT"),
			ConnectTimeout:   v.GetDuration("DB_CONNECT_TIMEOUT"),
		},
		LogLevel:    v.GetString("LOG_LEVEL"),
		Environment: v.GetString("APP_ENV"),
		Version:     v.GetString("APP_VERSION"),
		Receiving: core.ServiceConfig{
			Policy:          policy,
			FallbackTaxRate: rate,
			DefaultCurrency: currency,
			Tolerance:       tolerance,
		},
	}, nil
}

func roles(list string) []core.Role {
	var out []core.Role
	for _, r := range strings.Split(list, ",") {
		if r = strings.ToUpper(strings.TrimSpace(r)); r != "" {
			out = append(out, core.Role(r))
		}
	}
	return out
}
