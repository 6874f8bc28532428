package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	App struct {
		// dev | staging | prod
		Env  string `yaml:"app_env"`
		Name string `yaml:"name"`
	} `yaml:"app"`

	Server struct {
		Addr              string   `yaml:"addr"`
		ReadTimeout       Duration `yaml:"read_timeout"`
		WriteTimeout      Duration `yaml:"write_timeout"`
		ReadHeaderTimeout Duration `yaml:"read_header_timeout"`
		IdleTimeout       Duration `yaml:"idle_timeout"`
		ShutdownTimeout   Duration `yaml:"shutdown_timeout"`
	} `yaml:"server"`

	Log struct {
		Level string `yaml:"level"`
	} `yaml:"log"`

	Storage struct {
		Driver   string `yaml:"driver"` // memory | postgres | redis
		DSN      string `yaml:"dsn"`
		Postgres struct {
			MaxConns        int      `yaml:"max_conns"`
			MinConns        int      `yaml:"min_conns"`
			ConnMaxLifetime Duration `yaml:"conn_max_lifetime"`
		} `yaml:"postgres"`
		Redis struct {
			Addr     string `yaml:"addr"`
			Password string `yaml:"password"`
			DB       int    `yaml:"db"`
			Prefix   string `yaml:"prefix"`
		} `yaml:"redis"`
		PurgeInterval Duration `yaml:"purge_interval"`
	} `yaml:"storage"`

	Cache struct {
		Kind  string `yaml:"kind"` // memory | redis
		Redis struct {
			Addr     string `yaml:"addr"`
			Password string `yaml:"password"`
			DB       int    `yaml:"db"`
			Prefix   string `yaml:"prefix"`
		} `yaml:"redis"`
	} `yaml:"cache"`

	OAuth struct {
		AccessTokenTTL  Duration `yaml:"access_token_ttl"`
		RefreshTokenTTL Duration `yaml:"refresh_token_ttl"`
		CodeTTL         Duration `yaml:"code_ttl"`

		// Rotación: nuevo refresh token en cada refresh.
		RotateRefreshToken *bool `yaml:"rotate_refresh_token"`
		// Revocación: el access token anterior deja de validar al rotar.
		RevokeOnRefresh *bool `yaml:"revoke_on_refresh"`

		// scope_or_prior | scope_only | prior_only
		ConsentPolicy string `yaml:"consent_policy"`
		// query | header | body | auto
		TokenParamStyle       string `yaml:"token_param_style"`
		EnforceRedirectDomain bool   `yaml:"enforce_redirect_domain"`
		LoginURL              string `yaml:"login_url"`
		ConsentTemplate       string `yaml:"consent_template"`
	} `yaml:"oauth"`

	Session struct {
		CookieName string   `yaml:"cookie_name"`
		TTL        Duration `yaml:"ttl"`
		Secure     bool     `yaml:"secure"`
		SameSite   string   `yaml:"samesite"` // lax | strict | none
		Domain     string   `yaml:"domain"`
	} `yaml:"session"`

	CSRF struct {
		Secret string   `yaml:"secret"`
		TTL    Duration `yaml:"ttl"`
	} `yaml:"csrf"`

	Rate struct {
		Enabled     bool     `yaml:"enabled"`
		Window      Duration `yaml:"window"`
		MaxRequests int      `yaml:"max_requests"`
	} `yaml:"rate"`
}

// Duration acepta strings de Go ("15m", "720h") en YAML.
type Duration time.Duration

func (d *Duration) UnmarshalYAML(n *yaml.Node) error {
	var s string
	if err := n.Decode(&s); err != nil {
		return err
	}
	if strings.TrimSpace(s) == "" {
		*d = 0
		return nil
	}
	v, err := time.ParseDuration(strings.TrimSpace(s))
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(v)
	return nil
}

func (d Duration) MarshalYAML() (any, error) { return time.Duration(d).String(), nil }

// D devuelve el valor como time.Duration.
func (d Duration) D() time.Duration { return time.Duration(d) }

// Load lee el YAML en path (si path != ""), aplica defaults y overrides de entorno.
func Load(path string) (*Config, error) {
	var c Config
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		if err := yaml.Unmarshal(b, &c); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}
	c.applyEnvOverrides()
	c.applyDefaults()
	return &c, nil
}

// Default devuelve una configuración con todos los defaults aplicados.
func Default() *Config {
	var c Config
	c.applyDefaults()
	return &c
}

func boolPtr(b bool) *bool { return &b }

func (c *Config) applyDefaults() {
	if c.App.Env == "" {
		c.App.Env = "dev"
	}
	if c.App.Name == "" {
		c.App.Name = "snsoauth"
	}

	if c.Server.Addr == "" {
		c.Server.Addr = ":8080"
	}
	if c.Server.ReadTimeout == 0 {
		c.Server.ReadTimeout = Duration(15 * time.Second)
	}
	if c.Server.WriteTimeout == 0 {
		c.Server.WriteTimeout = Duration(15 * time.Second)
	}
	if c.Server.ReadHeaderTimeout == 0 {
		c.Server.ReadHeaderTimeout = Duration(5 * time.Second)
	}
	if c.Server.IdleTimeout == 0 {
		c.Server.IdleTimeout = Duration(60 * time.Second)
	}
	if c.Server.ShutdownTimeout == 0 {
		c.Server.ShutdownTimeout = Duration(10 * time.Second)
	}

	if c.Log.Level == "" {
		c.Log.Level = "info"
	}

	if c.Storage.Driver == "" {
		c.Storage.Driver = "memory"
	}
	if c.Storage.PurgeInterval == 0 {
		c.Storage.PurgeInterval = Duration(5 * time.Minute)
	}

	if c.Cache.Kind == "" {
		c.Cache.Kind = "memory"
	}

	if c.OAuth.AccessTokenTTL == 0 {
		c.OAuth.AccessTokenTTL = Duration(2 * time.Hour)
	}
	if c.OAuth.RefreshTokenTTL == 0 {
		c.OAuth.RefreshTokenTTL = Duration(720 * time.Hour) // 30d
	}
	if c.OAuth.CodeTTL == 0 {
		c.OAuth.CodeTTL = Duration(10 * time.Minute)
	}
	if c.OAuth.RotateRefreshToken == nil {
		c.OAuth.RotateRefreshToken = boolPtr(true)
	}
	if c.OAuth.RevokeOnRefresh == nil {
		c.OAuth.RevokeOnRefresh = boolPtr(true)
	}
	if c.OAuth.ConsentPolicy == "" {
		c.OAuth.ConsentPolicy = "scope_or_prior"
	}
	if c.OAuth.TokenParamStyle == "" {
		c.OAuth.TokenParamStyle = "query"
	}

	if c.Session.CookieName == "" {
		c.Session.CookieName = "sid"
	}
	if c.Session.TTL == 0 {
		c.Session.TTL = Duration(12 * time.Hour)
	}
	if c.Session.SameSite == "" {
		c.Session.SameSite = "lax"
	}

	if c.CSRF.TTL == 0 {
		c.CSRF.TTL = Duration(10 * time.Minute)
	}

	if c.Rate.Window == 0 {
		c.Rate.Window = Duration(time.Minute)
	}
	if c.Rate.MaxRequests == 0 {
		c.Rate.MaxRequests = 60
	}
}

// ---- Helpers env ----

func getEnvStr(key string) (string, bool) {
	v := os.Getenv(key)
	return v, v != ""
}
func getEnvInt(key string) (int, bool) {
	if s, ok := getEnvStr(key); ok {
		if i, err := strconv.Atoi(strings.TrimSpace(s)); err == nil {
			return i, true
		}
	}
	return 0, false
}
func getEnvBool(key string) (bool, bool) {
	if s, ok := getEnvStr(key); ok {
		if b, err := strconv.ParseBool(strings.TrimSpace(s)); err == nil {
			return b, true
		}
	}
	return false, false
}
func getEnvDur(key string) (Duration, bool) {
	if s, ok := getEnvStr(key); ok {
		if d, err := time.ParseDuration(strings.TrimSpace(s)); err == nil {
			return Duration(d), true
		}
	}
	return 0, false
}

// applyEnvOverrides: pisa config.yaml con variables de entorno.
func (c *Config) applyEnvOverrides() {
	// APP
	if v, ok := getEnvStr("APP_ENV"); ok {
		c.App.Env = strings.ToLower(v)
	}
	if v, ok := getEnvStr("LOG_LEVEL"); ok {
		c.Log.Level = strings.ToLower(v)
	}

	// SERVER
	if v, ok := getEnvStr("SERVER_ADDR"); ok {
		c.Server.Addr = v
	}
	if v, ok := getEnvDur("SERVER_READ_TIMEOUT"); ok {
		c.Server.ReadTimeout = v
	}
	if v, ok := getEnvDur("SERVER_WRITE_TIMEOUT"); ok {
		c.Server.WriteTimeout = v
	}

	// STORAGE
	if v, ok := getEnvStr("STORAGE_DRIVER"); ok {
		c.Storage.Driver = strings.ToLower(v)
	}
	if v, ok := getEnvStr("STORAGE_DSN"); ok {
		c.Storage.DSN = v
	}
	if v, ok := getEnvInt("STORAGE_PG_MAX_CONNS"); ok {
		c.Storage.Postgres.MaxConns = v
	}
	if v, ok := getEnvStr("STORAGE_REDIS_ADDR"); ok {
		c.Storage.Redis.Addr = v
	}
	if v, ok := getEnvStr("STORAGE_REDIS_PASSWORD"); ok {
		c.Storage.Redis.Password = v
	}

	// CACHE
	if v, ok := getEnvStr("CACHE_KIND"); ok {
		c.Cache.Kind = strings.ToLower(v)
	}
	if v, ok := getEnvStr("CACHE_REDIS_ADDR"); ok {
		c.Cache.Redis.Addr = v
	}
	if v, ok := getEnvStr("CACHE_REDIS_PASSWORD"); ok {
		c.Cache.Redis.Password = v
	}
	if v, ok := getEnvInt("CACHE_REDIS_DB"); ok {
		c.Cache.Redis.DB = v
	}

	// OAUTH
	if v, ok := getEnvDur("OAUTH_ACCESS_TOKEN_TTL"); ok {
		c.OAuth.AccessTokenTTL = v
	}
	if v, ok := getEnvDur("OAUTH_REFRESH_TOKEN_TTL"); ok {
		c.OAuth.RefreshTokenTTL = v
	}
	if v, ok := getEnvDur("OAUTH_CODE_TTL"); ok {
		c.OAuth.CodeTTL = v
	}
	if v, ok := getEnvBool("OAUTH_ROTATE_REFRESH_TOKEN"); ok {
		c.OAuth.RotateRefreshToken = boolPtr(v)
	}
	if v, ok := getEnvBool("OAUTH_REVOKE_ON_REFRESH"); ok {
		c.OAuth.RevokeOnRefresh = boolPtr(v)
	}
	if v, ok := getEnvStr("OAUTH_CONSENT_POLICY"); ok {
		c.OAuth.ConsentPolicy = strings.ToLower(v)
	}
	if v, ok := getEnvStr("OAUTH_TOKEN_PARAM_STYLE"); ok {
		c.OAuth.TokenParamStyle = strings.ToLower(v)
	}
	if v, ok := getEnvBool("OAUTH_ENFORCE_REDIRECT_DOMAIN"); ok {
		c.OAuth.EnforceRedirectDomain = v
	}
	if v, ok := getEnvStr("OAUTH_LOGIN_URL"); ok {
		c.OAuth.LoginURL = v
	}
	if v, ok := getEnvStr("OAUTH_CONSENT_TEMPLATE"); ok {
		c.OAuth.ConsentTemplate = v
	}

	// SESSION
	if v, ok := getEnvStr("SESSION_COOKIE_NAME"); ok {
		c.Session.CookieName = v
	}
	if v, ok := getEnvDur("SESSION_TTL"); ok {
		c.Session.TTL = v
	}
	if v, ok := getEnvBool("SESSION_SECURE"); ok {
		c.Session.Secure = v
	}
	if v, ok := getEnvStr("SESSION_SAMESITE"); ok {
		c.Session.SameSite = strings.ToLower(v)
	}

	// CSRF
	if v, ok := getEnvStr("CSRF_SECRET"); ok {
		c.CSRF.Secret = v
	}
	if v, ok := getEnvDur("CSRF_TTL"); ok {
		c.CSRF.TTL = v
	}

	// RATE
	if v, ok := getEnvBool("RATE_ENABLED"); ok {
		c.Rate.Enabled = v
	}
	if v, ok := getEnvDur("RATE_WINDOW"); ok {
		c.Rate.Window = v
	}
	if v, ok := getEnvInt("RATE_MAX_REQUESTS"); ok {
		c.Rate.MaxRequests = v
	}
}

// Validate verifica los valores críticos. Los errores se acumulan.
func (c *Config) Validate() error {
	var errs []error

	switch c.Storage.Driver {
	case "memory":
	case "postgres":
		if c.Storage.DSN == "" {
			errs = append(errs, errors.New("storage.dsn is required for postgres"))
		}
	case "redis":
		if c.Storage.Redis.Addr == "" {
			errs = append(errs, errors.New("storage.redis.addr is required for redis"))
		}
	default:
		errs = append(errs, fmt.Errorf("storage.driver: unsupported %q", c.Storage.Driver))
	}

	switch c.Cache.Kind {
	case "memory":
	case "redis":
		if c.Cache.Redis.Addr == "" {
			errs = append(errs, errors.New("cache.redis.addr is required for redis"))
		}
	default:
		errs = append(errs, fmt.Errorf("cache.kind: unsupported %q", c.Cache.Kind))
	}

	switch c.OAuth.ConsentPolicy {
	case "scope_or_prior", "scope_only", "prior_only":
	default:
		errs = append(errs, fmt.Errorf("oauth.consent_policy: unsupported %q", c.OAuth.ConsentPolicy))
	}
	switch c.OAuth.TokenParamStyle {
	case "query", "header", "body", "auto":
	default:
		errs = append(errs, fmt.Errorf("oauth.token_param_style: unsupported %q", c.OAuth.TokenParamStyle))
	}
	if c.OAuth.LoginURL != "" {
		if _, err := url.Parse(c.OAuth.LoginURL); err != nil {
			errs = append(errs, fmt.Errorf("oauth.login_url: %w", err))
		}
	}
	if c.OAuth.AccessTokenTTL <= 0 || c.OAuth.RefreshTokenTTL <= 0 || c.OAuth.CodeTTL <= 0 {
		errs = append(errs, errors.New("oauth ttls must be positive"))
	}

	switch c.Session.SameSite {
	case "lax", "strict", "none":
	default:
		errs = append(errs, fmt.Errorf("session.samesite: unsupported %q", c.Session.SameSite))
	}

	if c.CSRF.Secret == "" && c.App.Env == "prod" {
		errs = append(errs, errors.New("csrf.secret is required in prod"))
	}
	if c.CSRF.Secret != "" && len(c.CSRF.Secret) < 32 {
		errs = append(errs, errors.New("csrf.secret must be at least 32 bytes"))
	}

	if c.Rate.Enabled && (c.Rate.MaxRequests <= 0 || c.Rate.Window <= 0) {
		errs = append(errs, errors.New("rate: max_requests and window must be positive"))
	}

	return errors.Join(errs...)
}
