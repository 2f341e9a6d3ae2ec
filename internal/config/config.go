package config

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment override, e.g. VOCSCHED_LISTEN.
const EnvPrefix = "VOCSCHED_"

// SourceConfig names where the base schedule JSON comes from. When both
// are empty the schedule is built from Template.
type SourceConfig struct {
	URL  string `yaml:"url,omitempty" toml:"url,omitempty"`
	File string `yaml:"file,omitempty" toml:"file,omitempty"`
}

// TemplateConfig describes an empty congress schedule.
type TemplateConfig struct {
	Name     string `yaml:"name" toml:"name"`
	Congress int    `yaml:"congress" toml:"congress"`
	StartDay int    `yaml:"start_day" toml:"start_day"`
	Days     int    `yaml:"days" toml:"days"`
	// Month defaults to 12.
	Month int `yaml:"month,omitempty" toml:"month,omitempty"`
}

// ICSConfig is one calendar feed merged into the schedule.
type ICSConfig struct {
	ID   string `yaml:"id" toml:"id"`
	URL  string `yaml:"url" toml:"url"`
	Name string `yaml:"name,omitempty" toml:"name,omitempty"`
	// Room is used for events without LOCATION.
	Room string `yaml:"room,omitempty" toml:"room,omitempty"`
	// Track is used for events without CATEGORIES.
	Track string `yaml:"track,omitempty" toml:"track,omitempty"`
	// IDOffset keeps numeric event ids of different feeds apart.
	IDOffset int `yaml:"id_offset,omitempty" toml:"id_offset,omitempty"`
}

// BasicAuthConfig protects every endpoint except /health.
type BasicAuthConfig struct {
	Username string `yaml:"username" toml:"username"`
	Password string `yaml:"password" toml:"password"`
}

type Config struct {
	// Listen is the HTTP listen address of the serve command.
	Listen string `yaml:"listen" toml:"listen"`

	// Timezone is the IANA zone imported events are written in.
	Timezone string `yaml:"timezone" toml:"timezone"`

	// RefreshCron is a standard 5-field cron spec for periodic refresh.
	RefreshCron string `yaml:"refresh" toml:"refresh"`

	// OutputPrefix is the path prefix of written files:
	// <prefix>.schedule.json, .schedule.xml and .schedule.ics.
	OutputPrefix string `yaml:"output_prefix" toml:"output_prefix"`

	// CacheDir holds HTTP cache entries of fetched sources.
	CacheDir string `yaml:"cache_dir" toml:"cache_dir"`

	Source   SourceConfig    `yaml:"source" toml:"source"`
	Template *TemplateConfig `yaml:"template,omitempty" toml:"template,omitempty"`

	// Rooms are added to every day, in this order, before events are imported.
	Rooms []string    `yaml:"rooms" toml:"rooms"`
	ICS   []ICSConfig `yaml:"ics" toml:"ics"`

	// SchemaFile overrides the built-in schedule JSON schema.
	SchemaFile string `yaml:"schema_file,omitempty" toml:"schema_file,omitempty"`
	// XSDFile is used by xmllint when ValidateXML is set.
	XSDFile     string `yaml:"xsd_file,omitempty" toml:"xsd_file,omitempty"`
	ValidateXML bool   `yaml:"validate_xml" toml:"validate_xml"`

	BasicAuth *BasicAuthConfig `yaml:"basic_auth,omitempty" toml:"basic_auth,omitempty"`

	LogLevel string `yaml:"log_level" toml:"log_level"`
}

func DefaultConfig() *Config {
	return &Config{
		Listen:       "127.0.0.1:8080",
		Timezone:     "Europe/Berlin",
		RefreshCron:  "*/5 * * * *",
		OutputPrefix: "out/schedule",
		CacheDir:     "./var/cache",
		Rooms:        []string{},
		ICS:          []ICSConfig{},
		LogLevel:     "info",
	}
}

// Normalize fills zero values with defaults so partial files work.
func (c *Config) Normalize() {
	def := DefaultConfig()
	if c.Listen == "" {
		c.Listen = def.Listen
	}
	if c.Timezone == "" {
		c.Timezone = def.Timezone
	}
	if c.RefreshCron == "" {
		c.RefreshCron = def.RefreshCron
	}
	if c.OutputPrefix == "" {
		c.OutputPrefix = def.OutputPrefix
	}
	if c.CacheDir == "" {
		c.CacheDir = def.CacheDir
	}
	if c.LogLevel == "" {
		c.LogLevel = def.LogLevel
	}
	if c.Rooms == nil {
		c.Rooms = []string{}
	}
	if c.ICS == nil {
		c.ICS = []ICSConfig{}
	}
	if c.Template != nil && c.Template.Month == 0 {
		c.Template.Month = int(time.December)
	}
}

// Validate reports settings that would make every run fail.
func (c *Config) Validate() error {
	var errs []error
	if c.Source.URL != "" && c.Source.File != "" {
		errs = append(errs, errors.New("source: url and file are mutually exclusive"))
	}
	if c.Source.URL == "" && c.Source.File == "" && c.Template == nil {
		errs = append(errs, errors.New("source: set url, file or template"))
	}
	if _, err := cron.ParseStandard(c.RefreshCron); err != nil {
		errs = append(errs, fmt.Errorf("refresh: %w", err))
	}
	if _, err := c.Location(); err != nil {
		errs = append(errs, fmt.Errorf("timezone: %w", err))
	}
	seen := make(map[string]bool, len(c.ICS))
	for i, s := range c.ICS {
		switch {
		case s.ID == "":
			errs = append(errs, fmt.Errorf("ics[%d]: id is empty", i))
		case seen[s.ID]:
			errs = append(errs, fmt.Errorf("ics[%d]: duplicate id %q", i, s.ID))
		}
		seen[s.ID] = true
		if s.URL == "" {
			errs = append(errs, fmt.Errorf("ics[%d]: url is empty", i))
		}
	}
	if c.ValidateXML && c.XSDFile == "" {
		errs = append(errs, errors.New("validate_xml needs xsd_file"))
	}
	return errors.Join(errs...)
}

// Location loads Timezone.
func (c *Config) Location() (*time.Location, error) {
	return time.LoadLocation(c.Timezone)
}

// Load reads the config at path. YAML is the default format; a .toml
// extension selects TOML. A missing file is created with defaults (0600).
// Environment overrides are applied last.
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is empty")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
		cfg := DefaultConfig()
		if err := Save(path, cfg); err != nil {
			return cfg, err
		}
		ApplyEnv(cfg)
		cfg.Normalize()
		return cfg, nil
	}

	var cfg Config
	if isTOML(path) {
		if _, err := toml.Decode(string(data), &cfg); err != nil {
			return nil, fmt.Errorf("config: %s: %w", path, err)
		}
	} else if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: %s: %w", path, err)
	}
	ApplyEnv(&cfg)
	cfg.Normalize()
	return &cfg, nil
}

// LoadDotEnv loads .env style files into the process environment. Missing
// files are ignored; variables already set win.
func LoadDotEnv(files ...string) error {
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("config: %s: %w", f, err)
		}
	}
	return nil
}

// ApplyEnv overrides file values with VOCSCHED_* environment variables.
func ApplyEnv(c *Config) {
	setString(&c.Listen, "LISTEN")
	setString(&c.Timezone, "TIMEZONE")
	setString(&c.RefreshCron, "REFRESH")
	setString(&c.OutputPrefix, "OUTPUT_PREFIX")
	setString(&c.CacheDir, "CACHE_DIR")
	setString(&c.Source.URL, "SOURCE_URL")
	setString(&c.Source.File, "SOURCE_FILE")
	setString(&c.SchemaFile, "SCHEMA_FILE")
	setString(&c.XSDFile, "XSD_FILE")
	setString(&c.LogLevel, "LOG_LEVEL")

	if v := os.Getenv(EnvPrefix + "ROOMS"); v != "" {
		c.Rooms = splitList(v)
	}
	if v := os.Getenv(EnvPrefix + "VALIDATE_XML"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.ValidateXML = b
		}
	}
	user := os.Getenv(EnvPrefix + "BASIC_AUTH_USERNAME")
	pass := os.Getenv(EnvPrefix + "BASIC_AUTH_PASSWORD")
	if user != "" || pass != "" {
		c.BasicAuth = &BasicAuthConfig{Username: user, Password: pass}
	}
}

func setString(dst *string, key string) {
	if v := os.Getenv(EnvPrefix + key); v != "" {
		*dst = v
	}
}

func splitList(v string) []string {
	var out []string
	for _, s := range strings.Split(v, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func isTOML(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".toml")
}

// Save writes cfg atomically (temp file and rename) with 0600 permissions.
func Save(path string, cfg *Config) error {
	if path == "" {
		return errors.New("config path is empty")
	}
	if cfg == nil {
		return errors.New("config is nil")
	}
	cfg.Normalize()

	var data []byte
	if isTOML(path) {
		var buf bytes.Buffer
		if err := toml.NewEncoder(&buf).Encode(cfg); err != nil {
			return err
		}
		data = buf.Bytes()
	} else {
		var err error
		if data, err = yaml.Marshal(cfg); err != nil {
			return err
		}
	}
	return WriteFileAtomic(path, data, 0o600)
}

func (c *Config) Save(path string) error {
	return Save(path, c)
}

// WriteFileAtomic writes data to a temp file next to path and renames it
// into place, so readers never see a partial file.
func WriteFileAtomic(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+"-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
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
