package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"
)

// ErrConfiguration reports settings that cannot be turned into a run:
// unknown time zone, unparseable cutoff, missing source or output.
var ErrConfiguration = errors.New("config: invalid configuration")

// BasicAuthConfig holds HTTP Basic Auth credentials for the subscribe server.
type BasicAuthConfig struct {
	Username string `yaml:"username" json:"username"`
	Password string `yaml:"password" json:"password"`
}

// Config is the top-level application configuration.
type Config struct {
	// SourceURL is the ICS feed to download. Input is used when empty.
	SourceURL string `yaml:"source_url" json:"source_url"`

	// Input is a local ICS file, used instead of SourceURL.
	Input string `yaml:"input,omitempty" json:"input,omitempty"`

	// Output is where the filtered calendar is written.
	Output string `yaml:"output" json:"output"`

	// Timezone is the IANA zone events are dated in (e.g. "America/Los_Angeles").
	Timezone string `yaml:"timezone" json:"timezone"`

	// After is the cutoff date. Events beginning earlier are dropped.
	// Accepted forms: 01/02/2006, 2006-01-02, RFC 3339. Empty disables it.
	After string `yaml:"after,omitempty" json:"after,omitempty"`

	// Keywords: an event is kept if its name contains any of them.
	Keywords []string `yaml:"keywords" json:"keywords"`

	// CacheDir holds the HTTP cache for SourceURL downloads.
	CacheDir string `yaml:"cache_dir" json:"cache_dir"`

	// Refresh is a cron spec (e.g. "0 * * * *"). When set and not running
	// with -once, the filter is re-run on that schedule.
	Refresh string `yaml:"refresh,omitempty" json:"refresh,omitempty"`

	// Listen, if set, serves the last output at /calendar.ics. It only
	// applies to scheduled runs.
	Listen string `yaml:"listen,omitempty" json:"listen,omitempty"`

	// BasicAuth, if non-nil, protects every endpoint except /health.
	BasicAuth *BasicAuthConfig `yaml:"basic_auth,omitempty" json:"basic_auth,omitempty"`

	// StrictRRule rejects documents containing RRULEs rrule-go cannot parse.
	StrictRRule bool `yaml:"strict_rrule" json:"strict_rrule"`

	// LogLevel is one of debug, info, error.
	LogLevel string `yaml:"log_level" json:"log_level"`
}

// Runtime is the validated form of Config consumed by the pipeline.
type Runtime struct {
	Location *time.Location
	Cutoff   time.Time // zero when no cutoff is configured
	Keywords []string
}

var defaultKeywords = []string{"Call", "Education", "Evolve", "Project", "DAC", "ALPS"}

// DefaultConfig returns an in-memory default configuration.
func DefaultConfig() *Config {
	return &Config{
		Output:   "filtered.ics",
		Timezone: "America/Los_Angeles",
		Keywords: append([]string(nil), defaultKeywords...),
		CacheDir: filepath.Join(os.TempDir(), "icsfilter-cache"),
		LogLevel: "info",
	}
}

// Normalize fills in missing/zero values with defaults.
func (c *Config) Normalize() {
	d := DefaultConfig()
	if c.Output == "" {
		c.Output = d.Output
	}
	if c.Timezone == "" {
		c.Timezone = d.Timezone
	}
	if c.Keywords == nil {
		c.Keywords = d.Keywords
	}
	if c.CacheDir == "" {
		c.CacheDir = d.CacheDir
	}
	if c.LogLevel == "" {
		c.LogLevel = d.LogLevel
	}
	c.SourceURL = strings.TrimSpace(c.SourceURL)
	c.After = strings.TrimSpace(c.After)
}

// Resolve validates c and converts it into a Runtime. Every failure wraps
// ErrConfiguration.
// Scheduled reports whether the filter keeps running on Refresh. The HTTP
// server is only started for scheduled runs.
func (c *Config) Scheduled(once bool) bool {
	return !once && c.Refresh != ""
}

// ListenIgnored reports a Listen address that a one-shot run will not serve.
func (c *Config) ListenIgnored(once bool) bool {
	return c.Listen != "" && !c.Scheduled(once)
}

func (c *Config) Resolve() (Runtime, error) {
	var rt Runtime

	if c.SourceURL == "" && c.Input == "" {
		return rt, fmt.Errorf("%w: either source_url or input is required", ErrConfiguration)
	}
	if c.Output == "" {
		return rt, fmt.Errorf("%w: output path is empty", ErrConfiguration)
	}

	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return rt, fmt.Errorf("%w: unknown timezone %q: %v", ErrConfiguration, c.Timezone, err)
	}
	rt.Location = loc

	if c.After != "" {
		cutoff, err := ParseCutoff(c.After, loc)
		if err != nil {
			return rt, err
		}
		rt.Cutoff = cutoff
	}

	if c.Refresh != "" {
		if _, err := cron.ParseStandard(c.Refresh); err != nil {
			return rt, fmt.Errorf("%w: refresh %q: %v", ErrConfiguration, c.Refresh, err)
		}
	}

	for _, kw := range c.Keywords {
		if kw != "" {
			rt.Keywords = append(rt.Keywords, kw)
		}
	}
	return rt, nil
}

var cutoffLayouts = []string{"01/02/2006", "2006-01-02"}

// ParseCutoff parses a cutoff instant. Date-only forms are midnight in loc;
// RFC 3339 values keep their own offset.
func ParseCutoff(s string, loc *time.Location) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range cutoffLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, nil
		}
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	return time.Time{}, fmt.Errorf("%w: cannot parse cutoff %q (want MM/DD/YYYY, YYYY-MM-DD or RFC 3339)", ErrConfiguration, s)
}

// Load loads configuration from the given YAML path.
//
// Behavior:
//   - If the file does not exist, a default config is written there with
//     0600 perms and returned.
//   - Otherwise the YAML is unmarshaled and normalized.
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is empty")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			cfg := DefaultConfig()
			if err := Save(path, cfg); err != nil {
				return cfg, err
			}
			return cfg, nil
		}
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrConfiguration, path, err)
	}
	cfg.Normalize()

	return &cfg, nil
}

// Save writes cfg as YAML to path atomically with 0600 permissions.
func Save(path string, cfg *Config) error {
	if path == "" {
		return errors.New("config path is empty")
	}
	if cfg == nil {
		return errors.New("config is nil")
	}

	cfg.Normalize()

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return WriteFileAtomic(path, data, 0o600)
}

// WriteFileAtomic writes data to a temp file in path's directory, syncs it,
// applies perm and renames it over path. Readers see either the old file or
// the complete new one.
func WriteFileAtomic(path string, data []byte, perm fs.FileMode) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".icsfilter-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()

	// Ensure we clean up temp file on error.
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmpName, perm); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}

// Save is a convenience method delegating to the package-level Save.
func (c *Config) Save(path string) error {
	return Save(path, c)
}
