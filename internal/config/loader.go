package config

import (
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/JonMunkholm/carimport/internal/core"
)

var durationType = reflect.TypeOf(time.Duration(0))

// Load reads configuration from environment variables, applies defaults and
// validates the result.
func Load() (*Config, error) {
	return load(os.LookupEnv)
}

// load populates a Config through lookup so tests can supply their own
// environment.
func load(lookup func(string) (string, bool)) (*Config, error) {
	cfg := &Config{}
	if err := fill(reflect.ValueOf(cfg).Elem(), lookup); err != nil {
		return nil, fmt.Errorf("config load: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}
	return cfg, nil
}

// fill walks the struct and sets every field carrying an env tag. Nested
// structs are sections and are walked recursively.
func fill(v reflect.Value, lookup func(string) (string, bool)) error {
	t := v.Type()
	for i := range t.NumField() {
		field, fv := t.Field(i), v.Field(i)
		if !fv.CanSet() {
			continue
		}
		if field.Type.Kind() == reflect.Struct {
			if err := fill(fv, lookup); err != nil {
				return err
			}
			continue
		}

		name := field.Tag.Get("env")
		if name == "" {
			continue
		}

		raw, ok := firstSet(lookup, name, field.Tag.Get("envAlt"))
		if !ok {
			if field.Tag.Get("required") == "true" {
				return fmt.Errorf("required environment variable %s is not set", name)
			}
			raw = field.Tag.Get("default")
		}
		if raw == "" {
			continue
		}

		if err := assign(fv, raw); err != nil {
			return fmt.Errorf("invalid value for %s=%q: %w", name, raw, err)
		}
	}
	return nil
}

// firstSet returns the first non-empty value among the named variables.
func firstSet(lookup func(string) (string, bool), names ...string) (string, bool) {
	for _, n := range names {
		if n == "" {
			continue
		}
		if v, ok := lookup(n); ok && v != "" {
			return v, true
		}
	}
	return "", false
}

// assign parses raw into the field according to its kind.
func assign(fv reflect.Value, raw string) error {
	switch {
	case fv.Type() == durationType:
		d, err := time.ParseDuration(raw)
		if err != nil {
			return fmt.Errorf("invalid duration: %w", err)
		}
		fv.SetInt(int64(d))

	case fv.Kind() == reflect.String:
		fv.SetString(raw)

	case fv.CanInt():
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid integer: %w", err)
		}
		fv.SetInt(n)

	case fv.Kind() == reflect.Bool:
		b, err := strconv.ParseBool(raw)
		if err != nil {
			return fmt.Errorf("invalid boolean: %w", err)
		}
		fv.SetBool(b)

	case fv.Kind() == reflect.Slice && fv.Type().Elem().Kind() == reflect.String:
		fv.Set(reflect.ValueOf(splitList(raw)))

	default:
		return fmt.Errorf("unsupported field type: %s", fv.Type())
	}
	return nil
}

// splitList splits a comma-separated value, dropping empty entries.
func splitList(raw string) []string {
	var out []string
	for _, p := range strings.Split(raw, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// problems collects validation failures across sections.
type problems []string

func (p *problems) addf(format string, args ...any) {
	*p = append(*p, fmt.Sprintf(format, args...))
}

func (p *problems) check(ok bool, format string, args ...any) {
	if !ok {
		p.addf(format, args...)
	}
}

// Validate checks every section and reports all failures at once.
func (c *Config) Validate() error {
	var p problems
	c.Database.validate(&p)
	c.Server.validate(&p)
	c.Import.validate(&p)
	c.Rate.validate(&p)
	c.Security.validate(&p)
	c.Logging.validate(&p)

	if len(p) > 0 {
		return fmt.Errorf("validation failed:\n  - %s", strings.Join(p, "\n  - "))
	}
	return nil
}

func (d *DatabaseConfig) validate(p *problems) {
	switch strings.ToLower(d.Driver) {
	case "postgres", "sqlite":
	default:
		p.addf("DB_DRIVER (%q) must be one of: postgres, sqlite", d.Driver)
	}
	p.check(d.URL != "", "DATABASE_URL is required")
	p.check(d.MaxConns > 0, "DB_MAX_CONNS must be positive")
	p.check(d.MinConns >= 0, "DB_MIN_CONNS must be non-negative")
	p.check(d.MaxConns >= d.MinConns, "DB_MAX_CONNS (%d) must be >= DB_MIN_CONNS (%d)", d.MaxConns, d.MinConns)
}

func (s *ServerConfig) validate(p *problems) {
	p.check(s.Port > 0 && s.Port <= 65535, "SERVER_PORT (%d) must be 1-65535", s.Port)
	p.check(s.ReadTimeout >= 0, "SERVER_READ_TIMEOUT must be non-negative")
	p.check(s.ShutdownTimeout > 0, "SERVER_SHUTDOWN_TIMEOUT must be positive")
}

func (im *ImportConfig) validate(p *problems) {
	// Tables register from init functions; packages that load config without
	// importing them skip the table check.
	if core.TableCount() > 0 {
		_, ok := core.Get(im.Table)
		p.check(ok, "IMPORT_TABLE (%q) must be one of: %s", im.Table, strings.Join(core.Keys(), ", "))
	}
	_, err := core.ParseDelimiter(im.Delimiter)
	p.check(err == nil, "IMPORT_DELIMITER (%q) must be one of: ;, comma, tab, |, auto", im.Delimiter)
	p.check(core.SupportedEncoding(im.Encoding),
		"IMPORT_ENCODING (%q) must be one of: utf-8, iso-8859-1, windows-1252", im.Encoding)

	switch core.DateMode(strings.ToLower(im.DateMode)) {
	case core.DateStrict, core.DateLenient:
	default:
		p.addf("IMPORT_DATE_MODE (%q) must be one of: strict, lenient", im.DateMode)
	}
	switch core.IntegerMode(strings.ToLower(im.IntegerMode)) {
	case core.IntegerLenient, core.IntegerStrict:
	default:
		p.addf("IMPORT_INTEGER_MODE (%q) must be one of: lenient, strict", im.IntegerMode)
	}

	p.check(im.MaxFileSize > 0, "IMPORT_MAX_FILE_SIZE must be positive")
	p.check(im.MaxConcurrent > 0, "IMPORT_MAX_CONCURRENT must be positive")
	p.check(im.MaxWaitTime > 0, "IMPORT_MAX_WAIT_TIME must be positive")
	p.check(im.Timeout > 0, "IMPORT_TIMEOUT must be positive")
}

func (r *RateLimitConfig) validate(p *problems) {
	if !r.Enabled {
		return
	}
	p.check(r.RequestsPerMinute > 0, "RATE_LIMIT_REQUESTS_PER_MINUTE must be positive when rate limiting is enabled")
	p.check(r.ImportLimit > 0, "RATE_LIMIT_IMPORT must be positive when rate limiting is enabled")
}

func (s *SecurityConfig) validate(p *problems) {
	p.check(!s.RequireAPIKey || len(s.APIKeys) > 0,
		"REQUIRE_API_KEY is true but API_KEYS is empty; configure at least one API key or disable auth")
}

func (l *LoggingConfig) validate(p *problems) {
	switch strings.ToLower(l.Level) {
	case "debug", "info", "warn", "error":
	default:
		p.addf("LOG_LEVEL (%q) must be one of: debug, info, warn, error", l.Level)
	}
	switch strings.ToLower(l.Format) {
	case "text", "json":
	default:
		p.addf("LOG_FORMAT (%q) must be one of: text, json", l.Format)
	}
}

// String renders the config for debug logging with the database URL and
// API keys masked.
func (c *Config) String() string {
	return fmt.Sprintf("Config{Server: {Host: %q, Port: %d}, "+
		"Database: {Driver: %q, URL: [MASKED], MaxConns: %d, MinConns: %d}, "+
		"Import: {Table: %q, Delimiter: %q, Encoding: %q, DateMode: %q, IntegerMode: %q, MaxFileSize: %d, MaxConcurrent: %d}, "+
		"Rate: {Enabled: %v, RequestsPerMinute: %d}, "+
		"Security: {RequireAPIKey: %v, APIKeys: [%d MASKED]}, "+
		"Logging: {Level: %q, Format: %q}}",
		c.Server.Host, c.Server.Port,
		c.Database.Driver, c.Database.MaxConns, c.Database.MinConns,
		c.Import.Table, c.Import.Delimiter, c.Import.Encoding, c.Import.DateMode, c.Import.IntegerMode,
		c.Import.MaxFileSize, c.Import.MaxConcurrent,
		c.Rate.Enabled, c.Rate.RequestsPerMinute,
		c.Security.RequireAPIKey, len(c.Security.APIKeys),
		c.Logging.Level, c.Logging.Format,
	)
}

// ImportOptions converts the import section into importer options.
// Call only on a validated config.
func (c *Config) ImportOptions() core.Options {
	delim, _ := core.ParseDelimiter(c.Import.Delimiter)
	return core.Options{
		Delimiter: delim,
		Encoding:  c.Import.Encoding,
		Normalize: core.NormalizeOptions{
			DateMode:    core.DateMode(strings.ToLower(c.Import.DateMode)),
			IntegerMode: core.IntegerMode(strings.ToLower(c.Import.IntegerMode)),
			PassUnknown: c.Import.PassUnknown,
		},
		RequireColumns: c.Import.RequireColumns,
		Username:       c.Import.Username,
	}
}
