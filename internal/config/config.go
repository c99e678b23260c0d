// Package config assembles the configuration of a scrape from the environment, an
// optional `.env` file and an optional `studienet.json5` file (with `.local` overrides).
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"studienet-scraper/internal/components/telemetry"
	"studienet-scraper/internal/studienet"

	"dario.cat/mergo"
	"github.com/joho/godotenv"
	"github.com/spf13/afero"
)

const (
	FileName          = "studienet.json5"
	TelemetryFileName = "telemetry.json5"
	EnvFileName       = ".env"

	DriverChrome = "chrome"
	DriverHttp   = "http"
)

var (
	ErrMissing = errors.New("config: missing required value")
	ErrInvalid = errors.New("config: invalid value")
)

type Browser struct {
	// "chrome" or "http"
	Driver string `json:"driver"`
	// only applies to chrome, defaults to true
	Headless *bool `json:"headless"`
	// only applies to chrome, found on the PATH if empty
	ExecPath string `json:"exec_path"`
	// seconds
	NavigationTimeout int `json:"navigation_timeout"`
	// shared by the browser and the downloads, negative disables the limit
	RequestsPerSecond float64 `json:"requests_per_second"`
	CloudflareBypass  bool    `json:"cloudflare_bypass"`
	UserAgent         string  `json:"user_agent"`
}

func (b Browser) Timeout() time.Duration {
	return time.Duration(b.NavigationTimeout) * time.Second
}

func (b Browser) IsHeadless() bool {
	return b.Headless == nil || *b.Headless
}

type Config struct {
	Portal  studienet.Portal `json:"portal"`
	Browser Browser          `json:"browser"`
	Dest    string           `json:"dest"`

	// cron schedule of `studienet watch`
	Schedule string `json:"schedule"`
	// IANA name the schedule is interpreted in, the local timezone if empty
	Timezone string `json:"timezone"`

	// only ever read from the environment
	Username string `json:"-"`
	Password string `json:"-"`
}

func Default() Config {
	return Config{
		Portal: studienet.DefaultPortal(),
		Browser: Browser{
			Driver:            DriverChrome,
			NavigationTimeout: 30,
			RequestsPerSecond: 2,
		},
	}
}

type environment struct {
	dotenv map[string]string
}

// lookup prefers the real environment over the `.env` file.
func (e environment) lookup(key string) string {
	value, ok := os.LookupEnv(key)
	if ok {
		return value
	}
	return e.dotenv[key]
}

func readDotenv(fs afero.Fs, path string) (map[string]string, error) {
	f, err := fs.Open(path)
	if os.IsNotExist(err) {
		return map[string]string{}, nil
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()

	values, err := godotenv.Parse(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return values, nil
}

// Load reads the configuration found in `dir`, every file is optional. Values that are
// not set anywhere fall back to Default. Load does not validate, see Validate.
func Load(fs afero.Fs, dir string) (Config, error) {
	dotenv, err := readDotenv(fs, filepath.Join(dir, EnvFileName))
	if err != nil {
		return Config{}, err
	}
	env := environment{dotenv: dotenv}

	cfg, err := ReadConfig[Config](fs, filepath.Join(dir, FileName))
	if err != nil && !os.IsNotExist(err) {
		return Config{}, err
	}
	err = mergo.Merge(&cfg, Default())
	if err != nil {
		return Config{}, err
	}

	cfg.Username = env.lookup("USERNAME")
	cfg.Password = env.lookup("PASSWORD")
	if dest := env.lookup("DEST"); dest != "" {
		cfg.Dest = dest
	}

	return cfg, nil
}

// LoadTelemetry reads the OTLP configuration in `dir`, `ok` is false when there is none.
func LoadTelemetry(fs afero.Fs, dir string) (cfg telemetry.Config, ok bool, err error) {
	cfg, err = ReadRecursively[telemetry.Config](fs, dir, TelemetryFileName)
	if os.IsNotExist(err) {
		return telemetry.Config{}, false, nil
	}
	if err != nil {
		return telemetry.Config{}, false, err
	}
	return cfg, true, nil
}

// Validate checks everything needed to log in. Dest is only checked if `needsDest`.
func (c Config) Validate(needsDest bool) error {
	var missing []string
	if c.Username == "" {
		missing = append(missing, "USERNAME")
	}
	if c.Password == "" {
		missing = append(missing, "PASSWORD")
	}
	if needsDest && c.Dest == "" {
		missing = append(missing, "DEST")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: %s", ErrMissing, strings.Join(missing, ", "))
	}

	switch c.Browser.Driver {
	case DriverChrome, DriverHttp:
	default:
		return fmt.Errorf("%w: driver %q, expected %q or %q", ErrInvalid, c.Browser.Driver, DriverChrome, DriverHttp)
	}
	if c.Browser.NavigationTimeout < 0 {
		return fmt.Errorf("%w: navigation_timeout %d", ErrInvalid, c.Browser.NavigationTimeout)
	}
	return nil
}
