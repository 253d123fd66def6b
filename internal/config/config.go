// Package config loads process configuration from the environment, the
// way grenjieee-ForecastAggregation's ForecastSync does with viper, with
// defaults mirroring the original Python prototype's config.py.
package config

import (
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// DBType selects the active Store backend. Exactly one is active per
// process.
type DBType string

const (
	DBTypeFile     DBType = "file"
	DBTypeEdgeSQL  DBType = "edgesql"
	DBTypeRowStore DBType = "rowstore"
)

// Config holds every enumerated environment key, all optional with
// defaults. Unknown keys are ignored by viper by design.
type Config struct {
	DBType                 DBType        `validate:"oneof=file edgesql rowstore"`
	DataDir                string        `validate:"required"`
	CacheTTL               time.Duration `validate:"gt=0"`
	MatchCacheTTL          time.Duration `validate:"gt=0"`
	RefreshCooldown        time.Duration `validate:"gt=0"`
	WidgetURL              string        `validate:"required,url"`
	UpstreamAPIBase        string        `validate:"required,url"`
	UpstreamOrigin         string        `validate:"required"`
	ScraperHeadless        bool
	ScrapeGroupConcurrency int    `validate:"gt=0"`
	HTTPPort               string `validate:"required"`
	AppTitle               string `validate:"required"`
	HostIdentifier         string `validate:"required"`

	// Backend credentials and the cache URL; Load does not validate these.
	RowStoreDSN   string
	EdgeSQLURL    string
	EdgeSQLToken  string
	RedisURL      string
}

// Load reads configuration from the environment with the documented
// defaults and validates it.
func Load() (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	v.SetDefault("db_type", string(DBTypeFile))
	v.SetDefault("data_dir", defaultDataDir())
	v.SetDefault("cache_ttl_minutes", 10080)
	v.SetDefault("match_cache_ttl_minutes", 30)
	v.SetDefault("refresh_cooldown_seconds", 300)
	v.SetDefault("widget_url", "https://ibasketball.co.il/swish/")
	v.SetDefault("upstream_api_base", "https://api.swish.nbn23.com")
	v.SetDefault("upstream_origin", "https://ibasketball.co.il")
	v.SetDefault("scraper_headless", true)
	v.SetDefault("scrape_group_concurrency", 6)
	v.SetDefault("http_port", "8000")
	v.SetDefault("app_title", "Israeli Basketball Calendar")
	v.SetDefault("host_identifier", "ibasketball.calendar")
	v.SetDefault("rowstore_dsn", "postgres://localhost:5432/ibasketcal?sslmode=disable")
	v.SetDefault("edgesql_url", "")
	v.SetDefault("edgesql_token", "")
	v.SetDefault("redis_url", "redis://localhost:6379")

	cfg := &Config{
		DBType:                 DBType(v.GetString("db_type")),
		DataDir:                v.GetString("data_dir"),
		CacheTTL:               time.Duration(v.GetInt("cache_ttl_minutes")) * time.Minute,
		MatchCacheTTL:          time.Duration(v.GetInt("match_cache_ttl_minutes")) * time.Minute,
		RefreshCooldown:        time.Duration(v.GetInt("refresh_cooldown_seconds")) * time.Second,
		WidgetURL:              v.GetString("widget_url"),
		UpstreamAPIBase:        v.GetString("upstream_api_base"),
		UpstreamOrigin:         v.GetString("upstream_origin"),
		ScraperHeadless:        v.GetBool("scraper_headless"),
		ScrapeGroupConcurrency: v.GetInt("scrape_group_concurrency"),
		HTTPPort:               v.GetString("http_port"),
		AppTitle:               v.GetString("app_title"),
		HostIdentifier:         v.GetString("host_identifier"),
		RowStoreDSN:            v.GetString("rowstore_dsn"),
		EdgeSQLURL:             v.GetString("edgesql_url"),
		EdgeSQLToken:           v.GetString("edgesql_token"),
		RedisURL:               v.GetString("redis_url"),
	}

	if err := validator.New().Struct(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func defaultDataDir() string {
	return "data"
}
