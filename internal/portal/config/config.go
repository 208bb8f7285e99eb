package config

import (
	"errors"
	"fmt"
	"net/netip"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/toml"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env/v2"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// EnvPrefix prefixes every environment variable read by Load.
const EnvPrefix = "PORTAL_"

// FileEnv names the environment variable holding an optional config file.
const FileEnv = EnvPrefix + "CONFIG_FILE"

var ErrUnsupportedFormat = errors.New("unsupported config file format")

// AppConfig holds the portal configuration.
type AppConfig struct {
	// Env is the runtime environment, either "dev" or "prod".
	Env string `koanf:"env" validate:"required,oneof=dev prod"`

	// LogLevel controls log verbosity: "debug", "info", "warn", or "error".
	LogLevel string `koanf:"log_level" validate:"required,oneof=debug info warn error"`

	// ListenIP is the local IPv4 address both servers bind to.
	ListenIP string `koanf:"listen_ip" validate:"required,ipv4_addr"`

	// PortalIP is the address handed out in DNS answers and redirects.
	PortalIP string `koanf:"portal_ip" validate:"required,ipv4_addr"`

	// Ports may be 0 to bind an ephemeral port.
	DNSPort  int `koanf:"dns_port" validate:"gte=0,lte=65535"`
	HTTPPort int `koanf:"http_port" validate:"gte=0,lte=65535"`

	PollTimeoutMS int `koanf:"poll_timeout_ms" validate:"gte=1,lte=60000"`

	MSS            int `koanf:"mss" validate:"gte=64,lte=65535"`
	ReadSize       int `koanf:"read_size" validate:"gte=64,lte=65535"`
	MaxHeaderBytes int `koanf:"max_header_bytes" validate:"gte=256"`
	MaxBodyBytes   int `koanf:"max_body_bytes" validate:"gte=0"`

	// PublicDir overrides the embedded web assets when set.
	PublicDir string `koanf:"public_dir"`

	StoreKind string `koanf:"store_kind" validate:"required,oneof=bolt file"`
	StorePath string `koanf:"store_path" validate:"required"`

	ScanTTLSeconds int      `koanf:"scan_ttl_seconds" validate:"gte=0"`
	ScanSSIDs      []string `koanf:"scan_ssids" validate:"dive,min=1,max=32"`

	ProbeHosts     []string `koanf:"probe_hosts" validate:"dive,hostname_rfc1123"`
	ProbeCacheSize int      `koanf:"probe_cache_size" validate:"gte=0"`

	// SaveGraceTicks bounds how many poll ticks the run loop waits for the
	// save response to drain before reporting success.
	SaveGraceTicks int `koanf:"save_grace_ticks" validate:"gte=1"`
}

// DEFAULT_APP_CONFIG defines the default portal configuration.
var DEFAULT_APP_CONFIG = AppConfig{
	Env:            "prod",
	LogLevel:       "info",
	ListenIP:       "0.0.0.0",
	PortalIP:       "192.168.4.1",
	DNSPort:        53,
	HTTPPort:       80,
	PollTimeoutMS:  1000,
	MSS:            536,
	ReadSize:       1024,
	MaxHeaderBytes: 2048,
	MaxBodyBytes:   10240,
	PublicDir:      "",
	StoreKind:      "bolt",
	StorePath:      "/var/lib/rr-portal/networks.db",
	ScanTTLSeconds: 30,
	ScanSSIDs:      []string{},
	ProbeHosts: []string{
		"connectivitycheck.gstatic.com",
		"clients3.google.com",
		"connectivitycheck.android.com",
		"android.clients.google.com",
		"msftconnecttest.com",
		"apple.com",
	},
	ProbeCacheSize: 256,
	SaveGraceTicks: 8,
}

// ListenAddr returns the bind address for port on ListenIP.
func (c *AppConfig) ListenAddr(port int) netip.AddrPort {
	return netip.AddrPortFrom(netip.MustParseAddr(c.ListenIP), uint16(port))
}

// Portal returns PortalIP as an address.
func (c *AppConfig) Portal() netip.Addr { return netip.MustParseAddr(c.PortalIP) }

func (c *AppConfig) PollTimeout() time.Duration {
	return time.Duration(c.PollTimeoutMS) * time.Millisecond
}

func (c *AppConfig) ScanTTL() time.Duration {
	return time.Duration(c.ScanTTLSeconds) * time.Second
}

// validIPv4Addr reports whether the field is a dotted-quad IPv4 address.
func validIPv4Addr(fl validator.FieldLevel) bool {
	addr, err := netip.ParseAddr(fl.Field().String())
	return err == nil && addr.Is4()
}

// envLoader loads environment variables with the prefix "PORTAL_". Keys are
// lower-cased; values containing commas or spaces become lists.
var envLoader = func(k *koanf.Koanf) error {
	return k.Load(env.Provider(".", env.Opt{
		Prefix: EnvPrefix,
		TransformFunc: func(key, value string) (string, any) {
			key = strings.ToLower(strings.TrimPrefix(key, EnvPrefix))
			value = strings.TrimSpace(value)

			if value == "" {
				return key, value
			}

			if strings.Contains(value, " ") || strings.Contains(value, ",") {
				parts := strings.FieldsFunc(value, func(r rune) bool {
					return r == ' ' || r == ','
				})
				return key, parts
			}

			return key, value
		},
	}), nil)
}

// defaultLoader loads DEFAULT_APP_CONFIG through the structs provider.
var defaultLoader = func(k *koanf.Koanf) error {
	return k.Load(structs.Provider(DEFAULT_APP_CONFIG, "koanf"), nil)
}

// fileLoader loads a YAML, JSON or TOML file chosen by extension.
var fileLoader = func(k *koanf.Koanf, path string) error {
	var parser koanf.Parser
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		parser = yaml.Parser()
	case ".json":
		parser = json.Parser()
	case ".toml":
		parser = toml.Parser()
	default:
		return fmt.Errorf("%w: %s", ErrUnsupportedFormat, path)
	}
	return k.Load(file.Provider(path), parser)
}

// registerValidation registers the "ipv4_addr" tag.
var registerValidation = func(v *validator.Validate) error {
	return v.RegisterValidation("ipv4_addr", validIPv4Addr)
}

// Load builds an AppConfig from defaults, the optional file named by
// PORTAL_CONFIG_FILE, and PORTAL_* environment variables, in that order,
// then validates it.
func Load() (*AppConfig, error) {
	k := koanf.New(".")

	if err := defaultLoader(k); err != nil {
		return nil, fmt.Errorf("error loading default config: %w", err)
	}

	if path := strings.TrimSpace(os.Getenv(FileEnv)); path != "" {
		if err := fileLoader(k, path); err != nil {
			return nil, fmt.Errorf("error loading config file: %w", err)
		}
	}

	if err := envLoader(k); err != nil {
		return nil, fmt.Errorf("error loading env: %w", err)
	}

	var cfg AppConfig
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("error unmarshalling config: %w", err)
	}

	validate := validator.New(validator.WithRequiredStructEnabled())
	if err := registerValidation(validate); err != nil {
		return nil, fmt.Errorf("error registering validation: %w", err)
	}
	if err := validate.Struct(&cfg); err != nil {
		return nil, fmt.Errorf("validation failed: %w", err)
	}

	return &cfg, nil
}
