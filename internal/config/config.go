package config

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
)

// Config represents the main configuration for camlapse.
type Config struct {
	BaseDir    string           `toml:"base_dir"`
	LogDir     string           `toml:"log_dir"`
	Capture    CaptureConfig    `toml:"capture"`
	Schedule   ScheduleConfig   `toml:"schedule"`
	Archive    ArchiveConfig    `toml:"archive"`
	Video      VideoConfig      `toml:"video"`
	Delivery   DeliveryConfig   `toml:"delivery"`
	Encryption EncryptionConfig `toml:"encryption"`
	Database   DatabaseConfig   `toml:"database"`
	Server     ServerConfig     `toml:"server"`
}

// CaptureConfig represents configuration for the capture device.
// This uses a tagged union pattern - the Type field determines which other fields are relevant.
type CaptureConfig struct {
	Type      string `toml:"type"`      // "command", "gocv", or "test"
	Interval  string `toml:"interval"`  // Go duration, e.g. "5m"
	Timeout   string `toml:"timeout"`   // per-capture deadline; empty disables it
	Extension string `toml:"extension"` // frame file extension, e.g. "jpg"

	// Device identifies the camera: a path such as /dev/video0 for "command",
	// a numeric index or path for "gocv".
	Device string `toml:"device,omitempty"`

	// Command-specific fields (only used when Type == "command").
	// {device} and {output} in any argument are substituted before running.
	Command []string `toml:"command,omitempty"`

	// Frame size for "test" and "gocv" devices.
	Width  int `toml:"width,omitempty"`
	Height int `toml:"height,omitempty"`
}

// ScheduleConfig controls how captures are grouped into buckets.
type ScheduleConfig struct {
	Granularity  string `toml:"granularity"`   // "day" or "hour"
	BoundaryHour int    `toml:"boundary_hour"` // 0-23, local hour at which the archival day rolls over
	Timezone     string `toml:"timezone"`      // IANA name or "Local"
}

// ArchiveConfig represents configuration for the frame archive.
type ArchiveConfig struct {
	Type string `toml:"type"`           // "filesystem" or "memory"
	Root string `toml:"root,omitempty"` // only used for type=filesystem; holds photos/ and videos/
}

// VideoConfig controls video assembly.
type VideoConfig struct {
	FrameRate int    `toml:"frame_rate"` // frames per second; 4 shows each frame for 0.25s
	Extension string `toml:"extension"`
	Codec     string `toml:"codec"`
	Workers   int    `toml:"workers"`
}

// DeliveryConfig represents configuration for the delivery channel.
// This uses a tagged union pattern - the Type field determines which other fields are relevant.
type DeliveryConfig struct {
	Type    string `toml:"type"`    // "telegram", "s3", "filesystem", "memory", or "none"
	Encrypt bool   `toml:"encrypt"` // age-encrypt videos before delivery

	// Telegram-specific fields (only used when Type == "telegram").
	// The token and chat id may be left empty and supplied via the environment.
	TelegramToken  string `toml:"telegram_token,omitempty"`
	TelegramChatID string `toml:"telegram_chat_id,omitempty"`
	TelegramAPIURL string `toml:"telegram_api_url,omitempty"`

	// S3-specific fields (only used when Type == "s3")
	S3Bucket string `toml:"s3_bucket,omitempty"`
	S3Prefix string `toml:"s3_prefix,omitempty"`
	S3Region string `toml:"s3_region,omitempty"`

	// FileSystem-specific fields (only used when Type == "filesystem")
	FSRoot string `toml:"fs_root,omitempty"`
}

// EncryptionConfig holds paths to the age key pair used for encrypted delivery.
type EncryptionConfig struct {
	Type           string `toml:"type"` // "age" (default) or "test"
	PublicKeyPath  string `toml:"public_key_path"`
	PrivateKeyPath string `toml:"private_key_path"`
}

// DatabaseConfig represents configuration for the assembly job history.
// This uses a tagged union pattern - the Type field determines which other fields are relevant.
type DatabaseConfig struct {
	Type    string `toml:"type"`               // "sqlite" or "memory"
	DataDir string `toml:"data_dir,omitempty"` // only used for type=sqlite
}

// ServerConfig controls the HTTP status endpoint.
type ServerConfig struct {
	Enabled bool   `toml:"enabled"`
	Addr    string `toml:"addr"`
}

// Environment variables that override secrets left empty in the config file.
const (
	EnvTelegramToken  = "CAMLAPSE_TELEGRAM_TOKEN"
	EnvTelegramChatID = "CAMLAPSE_TELEGRAM_CHAT_ID"
)

// NewConfig creates a new Config rooted at baseDir with default settings.
func NewConfig(baseDir string) *Config {
	return &Config{
		BaseDir: baseDir,
		LogDir:  filepath.Join(baseDir, "log"),
		Capture: CaptureConfig{
			Type:      "command",
			Interval:  "5m",
			Timeout:   "1m",
			Extension: "jpg",
			Device:    "/dev/video0",
			Command:   []string{"fswebcam", "--no-banner", "-d", "{device}", "{output}"},
		},
		Schedule: ScheduleConfig{
			Granularity:  "day",
			BoundaryHour: 22,
			Timezone:     "Local",
		},
		Archive: ArchiveConfig{
			Type: "filesystem",
			Root: filepath.Join(baseDir, "archive"),
		},
		Video: VideoConfig{
			FrameRate: 4,
			Extension: "mp4",
			Codec:     "libx264",
			Workers:   1,
		},
		Delivery: DeliveryConfig{
			Type: "none",
		},
		Encryption: EncryptionConfig{
			PublicKeyPath:  filepath.Join(baseDir, "keys", "camlapse.pub"),
			PrivateKeyPath: filepath.Join(baseDir, "keys", "camlapse.key"),
		},
		Database: DatabaseConfig{
			Type:    "sqlite",
			DataDir: filepath.Join(baseDir, "db"),
		},
		Server: ServerConfig{
			Addr: "127.0.0.1:8080",
		},
	}
}

// IntervalDuration parses the capture cadence.
func (c CaptureConfig) IntervalDuration() (time.Duration, error) {
	d, err := time.ParseDuration(c.Interval)
	if err != nil {
		return 0, fmt.Errorf("parsing capture interval %q: %w", c.Interval, err)
	}
	return d, nil
}

// TimeoutDuration parses the per-capture deadline. Empty means none.
func (c CaptureConfig) TimeoutDuration() (time.Duration, error) {
	if c.Timeout == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(c.Timeout)
	if err != nil {
		return 0, fmt.Errorf("parsing capture timeout %q: %w", c.Timeout, err)
	}
	return d, nil
}

// LoadLocation resolves the configured timezone. Empty and "Local" mean the
// host's local zone.
func (s ScheduleConfig) LoadLocation() (*time.Location, error) {
	if s.Timezone == "" || s.Timezone == "Local" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(s.Timezone)
	if err != nil {
		return nil, fmt.Errorf("loading timezone %q: %w", s.Timezone, err)
	}
	return loc, nil
}

// ApplyEnv fills secrets that were left empty in the file from the environment.
func (c *Config) ApplyEnv() {
	if c.Delivery.TelegramToken == "" {
		c.Delivery.TelegramToken = os.Getenv(EnvTelegramToken)
	}
	if c.Delivery.TelegramChatID == "" {
		c.Delivery.TelegramChatID = os.Getenv(EnvTelegramChatID)
	}
}

// Validate reports the first unrecoverable misconfiguration.
func (c *Config) Validate() error {
	interval, err := c.Capture.IntervalDuration()
	if err != nil {
		return err
	}
	if interval <= 0 {
		return fmt.Errorf("capture interval must be positive, got %s", interval)
	}
	// A coarser cadence could step over the whole rollover hour.
	if interval > time.Hour {
		return fmt.Errorf("capture interval must be at most 1h, got %s", interval)
	}
	if _, err := c.Capture.TimeoutDuration(); err != nil {
		return err
	}
	if c.Capture.Extension == "" {
		return fmt.Errorf("capture extension must be set")
	}

	switch c.Schedule.Granularity {
	case "day", "hour":
	default:
		return fmt.Errorf("unknown schedule granularity: %q", c.Schedule.Granularity)
	}
	if c.Schedule.BoundaryHour < 0 || c.Schedule.BoundaryHour > 23 {
		return fmt.Errorf("boundary_hour must be between 0 and 23, got %d", c.Schedule.BoundaryHour)
	}
	if _, err := c.Schedule.LoadLocation(); err != nil {
		return err
	}

	if c.Video.FrameRate <= 0 {
		return fmt.Errorf("video frame_rate must be positive, got %d", c.Video.FrameRate)
	}
	if c.Video.Extension == "" {
		return fmt.Errorf("video extension must be set")
	}
	return nil
}

// Manager handles reading and writing configuration.
type Manager struct{}

// Read decodes a Config from the provided reader.
func (m *Manager) Read(r io.Reader) (*Config, error) {
	var cfg Config
	if _, err := toml.NewDecoder(r).Decode(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	return &cfg, nil
}

// Write encodes a Config to the provided writer.
func (m *Manager) Write(w io.Writer, cfg *Config) error {
	if err := toml.NewEncoder(w).Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	return nil
}

// ReadFromFile reads a Config from the specified file path.
func ReadFromFile(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer f.Close()

	m := &Manager{}
	cfg, err := m.Read(f)
	if err != nil {
		return nil, fmt.Errorf("reading config from %s: %w", path, err)
	}
	return cfg, nil
}

func writeToFile(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	// Secrets may end up in the file, so keep it private.
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	defer f.Close()

	m := &Manager{}
	if err := m.Write(f, cfg); err != nil {
		return fmt.Errorf("writing config to %s: %w", path, err)
	}
	return nil
}

// Init initializes a new config file at the specified path with the provided Config.
func Init(path string, cfg *Config) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s", path)
	}

	if err := writeToFile(path, cfg); err != nil {
		return fmt.Errorf("initializing config: %w", err)
	}
	return nil
}
