package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env/v2"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// DefaultPath is where netban looks for its config file unless NETBAN_CONFIG
// points somewhere else.
const DefaultPath = "/etc/netban/config.yaml"

// ListSource describes one named ban list. Either URL points at a remote
// newline-delimited domain file, or Domains carries the list inline.
type ListSource struct {
	URL     string   `koanf:"url" validate:"omitempty,url"`
	Domains []string `koanf:"domains" validate:"omitempty,dive,hostname_rfc1123"`
}

// Config is built once at startup and passed to components read-only.
type Config struct {
	// Lists maps a list id to its source. List ids become part of ipset and
	// iptables chain names, so they are restricted to [a-z0-9-].
	Lists map[string]ListSource `koanf:"lists" validate:"required,min=1"`

	// Action applied by a list's chain: drop or reject.
	Action string `koanf:"action" validate:"required,oneof=drop reject"`

	// Chains are the global chains each list chain is jumped from.
	Chains []string `koanf:"chains" validate:"required,min=1,dive,oneof=INPUT OUTPUT FORWARD"`

	// StateDir holds saved ruleset/set dumps and the lists cache.
	StateDir string `koanf:"state_dir" validate:"required"`

	// RunDir holds the reconcile lock file.
	RunDir string `koanf:"run_dir" validate:"required"`

	ResolveTimeout time.Duration `koanf:"resolve_timeout" validate:"required"`
	ResolveIPv6    bool          `koanf:"resolve_ipv6"`

	// Strict makes any single failed domain resolution fatal during ban.
	// The default skips unresolved domains with a warning.
	Strict bool `koanf:"strict"`

	LogLevel string `koanf:"log_level" validate:"required,oneof=debug info warn error"`
}

func defaults() Config {
	return Config{
		Lists: map[string]ListSource{
			"speedtest": {Domains: []string{
				"speedtest.net",
				"www.speedtest.net",
				"fast.com",
				"speedof.me",
				"testmy.net",
				"speed.cloudflare.com",
			}},
		},
		Action:         "drop",
		Chains:         []string{"OUTPUT", "FORWARD"},
		StateDir:       "/var/lib/netban",
		RunDir:         "/run/netban",
		ResolveTimeout: 5 * time.Second,
		ResolveIPv6:    false,
		Strict:         false,
		LogLevel:       "info",
	}
}

// Load reads defaults, then the config file (if present), then NETBAN_*
// environment overrides, validates the result and returns it.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaults(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("loading defaults: %w", err)
	}

	if path == "" {
		path = DefaultPath
	}
	if _, err := os.Stat(path); err == nil {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("loading %s: %w", path, err)
		}
	}

	err := k.Load(env.Provider(".", env.Opt{
		Prefix: "NETBAN_",
		TransformFunc: func(key, value string) (string, any) {
			return strings.ToLower(strings.TrimPrefix(key, "NETBAN_")), value
		},
	}), nil)
	if err != nil {
		return nil, fmt.Errorf("loading env: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unmarshalling config: %w", err)
	}

	for id := range cfg.Lists {
		if !validListID(id) {
			return nil, fmt.Errorf("invalid list id %q: must match [a-z0-9-]", id)
		}
	}

	validate := validator.New(validator.WithRequiredStructEnabled())
	if err := validate.Struct(&cfg); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// validListID keeps ids safe for use in ipset and chain names. iptables
// limits chain names to 28 bytes and we append "_chain".
func validListID(id string) bool {
	if id == "" || len(id) > 20 {
		return false
	}
	for _, r := range id {
		if (r < 'a' || r > 'z') && (r < '0' || r > '9') && r != '-' {
			return false
		}
	}
	return true
}
