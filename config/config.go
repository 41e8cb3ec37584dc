// Package config loads the server configuration.
//
// Values are resolved in three layers: built-in defaults, then an optional
// YAML file, then environment variables. Only variables that are set take
// effect; list-valued variables separate items with ";".
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"regexp"
	"time"

	"github.com/invopop/jsonschema"
	"github.com/joeshaw/envdecode"
	"gopkg.in/yaml.v3"

	"github.com/jamesagnew/continua-demo-fhir-server/bootstrap"
	"github.com/jamesagnew/continua-demo-fhir-server/fhir"
	"github.com/jamesagnew/continua-demo-fhir-server/fhirservice"
	"github.com/jamesagnew/continua-demo-fhir-server/paging"
	redispaging "github.com/jamesagnew/continua-demo-fhir-server/paging/redis"
	"github.com/jamesagnew/continua-demo-fhir-server/policy"
)

// ErrInvalid wraps every validation failure.
var ErrInvalid = errors.New("config: invalid configuration")

// Paging backends.
const (
	PagingBackendMemory = "memory"
	PagingBackendRedis  = "redis"
)

// Config is the complete server configuration.
type Config struct {
	Server    Server    `yaml:"server,omitempty"`
	Log       Log       `yaml:"log,omitempty"`
	Policy    Policy    `yaml:"policy,omitempty"`
	Paging    Paging    `yaml:"paging,omitempty"`
	Auth      Auth      `yaml:"auth,omitempty"`
	Metrics   Metrics   `yaml:"metrics,omitempty"`
	RateLimit RateLimit `yaml:"rate_limit,omitempty"`
	Resources []string  `yaml:"resources,omitempty" env:"FHIR_RESOURCES" jsonschema_description:"Resource types served by the in-memory demo providers."`
}

type Server struct {
	Listen          string        `yaml:"listen,omitempty" env:"FHIR_LISTEN" jsonschema:"example=:8080"`
	FHIRVersion     string        `yaml:"fhir_version,omitempty" env:"FHIR_VERSION" jsonschema:"enum=DSTU1,enum=DSTU2,enum=DSTU3,enum=R4"`
	Name            string        `yaml:"name,omitempty" env:"FHIR_SERVER_NAME"`
	SoftwareVersion string        `yaml:"software_version,omitempty" env:"FHIR_SOFTWARE_VERSION"`
	Description     string        `yaml:"description,omitempty" env:"FHIR_DESCRIPTION"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout,omitempty" env:"FHIR_SHUTDOWN_TIMEOUT" jsonschema:"type=string,example=15s"`
	MaxBodyBytes    int64         `yaml:"max_body_bytes,omitempty" env:"FHIR_MAX_BODY_BYTES"`
}

type Log struct {
	Level  string `yaml:"level,omitempty" env:"LOG_LEVEL" jsonschema:"enum=debug,enum=info,enum=warn,enum=error"`
	Format string `yaml:"format,omitempty" env:"LOG_FORMAT" jsonschema:"enum=json,enum=text"`
}

// Policy mirrors policy.Config.
type Policy struct {
	BrowserFriendlyContentTypes bool   `yaml:"browser_friendly_content_types,omitempty" env:"FHIR_BROWSER_FRIENDLY_CONTENT_TYPES"`
	DefaultPrettyPrint          bool   `yaml:"default_pretty_print,omitempty" env:"FHIR_DEFAULT_PRETTY_PRINT"`
	DefaultEncoding             string `yaml:"default_encoding,omitempty" env:"FHIR_DEFAULT_ENCODING" jsonschema:"enum=json"`
	CanonicalBaseAddress        string `yaml:"canonical_base_address,omitempty" env:"FHIR_CANONICAL_BASE_ADDRESS" jsonschema_description:"Absolute base URL published in every link. Empty derives it from the request."`
	MountPath                   string `yaml:"mount_path,omitempty" env:"FHIR_MOUNT_PATH"`
}

type Paging struct {
	Backend         string      `yaml:"backend,omitempty" env:"PAGING_BACKEND" jsonschema:"enum=memory,enum=redis"`
	Capacity        int         `yaml:"capacity,omitempty" env:"PAGING_CAPACITY" jsonschema:"minimum=1"`
	MaxPageSize     int         `yaml:"max_page_size,omitempty" env:"PAGING_MAX_PAGE_SIZE" jsonschema:"minimum=1"`
	DefaultPageSize int         `yaml:"default_page_size,omitempty" env:"PAGING_DEFAULT_PAGE_SIZE" jsonschema:"minimum=1"`
	Redis           RedisPaging `yaml:"redis,omitempty"`
}

type RedisPaging struct {
	Addr      string        `yaml:"addr,omitempty" env:"REDIS_ADDR"`
	KeyPrefix string        `yaml:"key_prefix,omitempty" env:"PAGING_KEY_PREFIX"`
	TTL       time.Duration `yaml:"ttl,omitempty" env:"PAGING_TTL" jsonschema:"type=string,example=1h"`
}

// Auth configures bearer-token authentication of FHIR requests. When Enabled
// is false every request is anonymous.
type Auth struct {
	Enabled bool   `yaml:"enabled,omitempty" env:"AUTH_ENABLED"`
	Issuer  string `yaml:"issuer,omitempty" env:"AUTH_ISSUER"`
	// Audience is the audience access tokens must carry.
	Audience string `yaml:"audience,omitempty" env:"AUTH_AUDIENCE"`
	// JWKSURL skips OIDC discovery and loads keys from this URL.
	JWKSURL        string        `yaml:"jwks_url,omitempty" env:"AUTH_JWKS_URL"`
	RequiredScopes []string      `yaml:"required_scopes,omitempty" env:"AUTH_REQUIRED_SCOPES"`
	SMARTScopes    bool          `yaml:"smart_scopes,omitempty" env:"AUTH_SMART_SCOPES"`
	Realm          string        `yaml:"realm,omitempty" env:"AUTH_REALM"`
	Leeway         time.Duration `yaml:"leeway,omitempty" env:"AUTH_LEEWAY" jsonschema:"type=string,example=30s"`
}

type Metrics struct {
	Enabled bool   `yaml:"enabled,omitempty" env:"METRICS_ENABLED"`
	Path    string `yaml:"path,omitempty" env:"METRICS_PATH"`
}

// Rate-limit bucket keys.
const (
	RateLimitKeyGlobal    = "global"
	RateLimitKeyClient    = "client"
	RateLimitKeyPrincipal = "principal"
)

// RateLimit throttles requests with a token bucket per key.
type RateLimit struct {
	Enabled bool   `yaml:"enabled,omitempty" env:"RATE_LIMIT_ENABLED"`
	Rate    int    `yaml:"rate,omitempty" env:"RATE_LIMIT_RATE" jsonschema:"minimum=1" jsonschema_description:"Requests per second per bucket."`
	Burst   int    `yaml:"burst,omitempty" env:"RATE_LIMIT_BURST" jsonschema:"minimum=1"`
	Key     string `yaml:"key,omitempty" env:"RATE_LIMIT_KEY" jsonschema:"enum=global,enum=client,enum=principal"`
}

// Default returns the demo server configuration.
func Default() Config {
	pol := policy.DefaultConfig()
	lim := paging.DefaultLimits()
	return Config{
		Server: Server{
			Listen:          ":8080",
			FHIRVersion:     fhir.DSTU2.String(),
			Name:            "continua-demo-fhir-server",
			SoftwareVersion: "dev",
			Description:     fhirservice.DefaultDescription,
			ShutdownTimeout: 15 * time.Second,
			MaxBodyBytes:    10 << 20,
		},
		Log: Log{Level: "info", Format: "json"},
		Policy: Policy{
			BrowserFriendlyContentTypes: pol.BrowserFriendlyContentTypes,
			DefaultPrettyPrint:          pol.DefaultPrettyPrint,
			DefaultEncoding:             string(pol.DefaultEncoding),
			CanonicalBaseAddress:        pol.CanonicalBaseAddress,
			MountPath:                   pol.MountPath,
		},
		Paging: Paging{
			Backend:         PagingBackendMemory,
			Capacity:        lim.Capacity,
			MaxPageSize:     lim.MaxPageSize,
			DefaultPageSize: lim.DefaultPageSize,
			Redis: RedisPaging{
				Addr:      "localhost:6379",
				KeyPrefix: "fhir:paging:",
				TTL:       time.Hour,
			},
		},
		Auth:      Auth{Realm: "fhir", Leeway: 30 * time.Second},
		Metrics:   Metrics{Enabled: true, Path: "/metrics"},
		RateLimit: RateLimit{Rate: 50, Burst: 100, Key: RateLimitKeyClient},
		Resources: []string{"Patient", "Practitioner", "Device", "DeviceMetric", "Observation"},
	}
}

// Load resolves the configuration from defaults, the YAML file at path (if
// path is not empty) and the environment, then validates it.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		f, err := os.Open(path)
		if err != nil {
			return Config{}, fmt.Errorf("open config: %w", err)
		}
		defer f.Close()
		if err := cfg.decodeYAML(f); err != nil {
			return Config{}, fmt.Errorf("%s: %w", path, err)
		}
	}
	if err := cfg.applyEnv(); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Parse is Load for an in-memory YAML document. The environment is not
// consulted.
func Parse(data []byte) (Config, error) {
	cfg := Default()
	if err := cfg.decodeYAML(bytes.NewReader(data)); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) decodeYAML(r io.Reader) error {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(c); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("parse config: %w", err)
	}
	return nil
}

func (c *Config) applyEnv() error {
	// StrictDecode reports ErrInvalidTarget when no variable is set.
	if err := envdecode.StrictDecode(c); err != nil && !errors.Is(err, envdecode.ErrInvalidTarget) {
		return fmt.Errorf("environment: %w", err)
	}
	return nil
}

var resourceTypePattern = regexp.MustCompile(`^[A-Z][A-Za-z]+$`)

// Validate checks the configuration and reports every problem found.
func (c Config) Validate() error {
	var errs []error
	add := func(format string, args ...any) { errs = append(errs, fmt.Errorf(format, args...)) }

	if c.Server.Listen == "" {
		add("server.listen is required")
	}
	if _, err := fhir.ParseVersion(c.Server.FHIRVersion); err != nil {
		add("server.fhir_version: %v", err)
	}
	if c.Server.ShutdownTimeout < 0 {
		add("server.shutdown_timeout must not be negative")
	}
	if c.Server.MaxBodyBytes <= 0 {
		add("server.max_body_bytes must be positive")
	}

	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		add("log.level %q is not one of debug, info, warn, error", c.Log.Level)
	}
	if c.Log.Format != "json" && c.Log.Format != "text" {
		add("log.format %q must be json or text", c.Log.Format)
	}

	if c.Policy.DefaultEncoding != string(fhir.EncodingJSON) {
		add("policy.default_encoding %q is not supported; only json responses are rendered", c.Policy.DefaultEncoding)
	}

	if err := c.PagingLimits().Validate(); err != nil {
		add("paging: %v", err)
	}
	switch c.Paging.Backend {
	case PagingBackendMemory:
	case PagingBackendRedis:
		if c.Paging.Redis.Addr == "" {
			add("paging.redis.addr is required for the redis backend")
		}
		if c.Paging.Redis.TTL <= 0 {
			add("paging.redis.ttl must be positive")
		}
	default:
		add("paging.backend %q must be memory or redis", c.Paging.Backend)
	}

	if c.Auth.Enabled {
		if c.Auth.Issuer == "" {
			add("auth.issuer is required when auth is enabled")
		}
		if c.Auth.Audience == "" {
			add("auth.audience is required when auth is enabled")
		}
	}

	if c.Metrics.Enabled && (c.Metrics.Path == "" || c.Metrics.Path[0] != '/') {
		add("metrics.path %q must be an absolute path", c.Metrics.Path)
	}

	if c.RateLimit.Enabled {
		if c.RateLimit.Rate <= 0 || c.RateLimit.Burst <= 0 {
			add("rate_limit.rate and rate_limit.burst must be positive")
		}
		switch c.RateLimit.Key {
		case RateLimitKeyGlobal, RateLimitKeyClient, RateLimitKeyPrincipal:
		default:
			add("rate_limit.key %q must be global, client or principal", c.RateLimit.Key)
		}
	}

	seen := make(map[string]bool, len(c.Resources))
	for _, rt := range c.Resources {
		switch {
		case !resourceTypePattern.MatchString(rt):
			add("resources: %q is not a resource type name", rt)
		case seen[rt]:
			add("resources: %q listed twice", rt)
		}
		seen[rt] = true
	}

	if len(errs) == 0 {
		if _, err := policy.New(c.PolicyConfig(), c.Version()); err != nil {
			add("policy: %v", err)
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalid, errors.Join(errs...))
	}
	return nil
}

// Version returns the configured FHIR version, or fhir.DSTU2 when the
// configuration has not been validated.
func (c Config) Version() fhir.Version {
	v, err := fhir.ParseVersion(c.Server.FHIRVersion)
	if err != nil {
		return fhir.DSTU2
	}
	return v
}

// PolicyConfig converts the policy section.
func (c Config) PolicyConfig() policy.Config {
	return policy.Config{
		BrowserFriendlyContentTypes: c.Policy.BrowserFriendlyContentTypes,
		DefaultPrettyPrint:          c.Policy.DefaultPrettyPrint,
		DefaultEncoding:             fhir.Encoding(c.Policy.DefaultEncoding),
		CanonicalBaseAddress:        c.Policy.CanonicalBaseAddress,
		MountPath:                   c.Policy.MountPath,
	}
}

// PagingLimits converts the paging limits.
func (c Config) PagingLimits() paging.Limits {
	return paging.Limits{
		Capacity:        c.Paging.Capacity,
		MaxPageSize:     c.Paging.MaxPageSize,
		DefaultPageSize: c.Paging.DefaultPageSize,
	}
}

// RedisPaging converts the redis paging section.
func (c Config) RedisPaging() redispaging.Config {
	return redispaging.Config{
		Addr:      c.Paging.Redis.Addr,
		KeyPrefix: c.Paging.Redis.KeyPrefix,
		TTL:       c.Paging.Redis.TTL,
		Limits:    c.PagingLimits(),
	}
}

// Bootstrap converts the configuration into the input of bootstrap.Initialize.
func (c Config) Bootstrap() bootstrap.Config {
	return bootstrap.Config{
		Version: c.Version(),
		Metadata: bootstrap.Metadata{
			Name:        c.Server.Name,
			Version:     c.Server.SoftwareVersion,
			Description: c.Server.Description,
		},
		Policy: c.PolicyConfig(),
		Paging: c.PagingLimits(),
	}
}

// Schema returns the JSON Schema of the configuration file.
func Schema() *jsonschema.Schema {
	r := &jsonschema.Reflector{
		FieldNameTag:               "yaml",
		DoNotReference:             true,
		ExpandedStruct:             true,
		RequiredFromJSONSchemaTags: true,
	}
	s := r.Reflect(&Config{})
	s.Title = "FHIR server configuration"
	return s
}
