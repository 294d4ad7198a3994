package config

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestManager_ReadWrite_RoundTrip(t *testing.T) {
	original := NewConfig("/home/user/.local/share/camlapse")
	original.Schedule = ScheduleConfig{Granularity: "hour", BoundaryHour: 6, Timezone: "Europe/Berlin"}
	original.Delivery = DeliveryConfig{Type: "s3", S3Bucket: "lapses", S3Prefix: "garden", S3Region: "eu-central-1", Encrypt: true}
	original.Capture.Command = []string{"ffmpeg", "-f", "v4l2", "-i", "{device}", "-frames:v", "1", "{output}"}

	var buf bytes.Buffer
	m := &Manager{}

	if err := m.Write(&buf, original); err != nil {
		t.Fatalf("Write() error = %v", err)
	}

	got, err := m.Read(&buf)
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}

	if got.BaseDir != original.BaseDir {
		t.Errorf("BaseDir = %q, want %q", got.BaseDir, original.BaseDir)
	}
	if got.LogDir != original.LogDir {
		t.Errorf("LogDir = %q, want %q", got.LogDir, original.LogDir)
	}
	if got.Schedule != original.Schedule {
		t.Errorf("Schedule = %+v, want %+v", got.Schedule, original.Schedule)
	}
	if got.Delivery != original.Delivery {
		t.Errorf("Delivery = %+v, want %+v", got.Delivery, original.Delivery)
	}
	if strings.Join(got.Capture.Command, " ") != strings.Join(original.Capture.Command, " ") {
		t.Errorf("Capture.Command = %v, want %v", got.Capture.Command, original.Capture.Command)
	}
	if got.Video != original.Video {
		t.Errorf("Video = %+v, want %+v", got.Video, original.Video)
	}
	if got.Archive.Root != original.Archive.Root {
		t.Errorf("Archive.Root = %q, want %q", got.Archive.Root, original.Archive.Root)
	}
}

func TestNewConfig(t *testing.T) {
	cfg := NewConfig("/data/camlapse")

	if cfg.LogDir != "/data/camlapse/log" {
		t.Errorf("LogDir = %q, want %q", cfg.LogDir, "/data/camlapse/log")
	}
	if cfg.Archive.Root != "/data/camlapse/archive" {
		t.Errorf("Archive.Root = %q, want %q", cfg.Archive.Root, "/data/camlapse/archive")
	}
	if cfg.Schedule.BoundaryHour != 22 {
		t.Errorf("Schedule.BoundaryHour = %d, want 22", cfg.Schedule.BoundaryHour)
	}
	if cfg.Video.FrameRate != 4 {
		t.Errorf("Video.FrameRate = %d, want 4", cfg.Video.FrameRate)
	}
	if cfg.Encryption.PublicKeyPath != "/data/camlapse/keys/camlapse.pub" {
		t.Errorf("Encryption.PublicKeyPath = %q, want %q", cfg.Encryption.PublicKeyPath, "/data/camlapse/keys/camlapse.pub")
	}

	d, err := cfg.Capture.IntervalDuration()
	if err != nil {
		t.Fatalf("IntervalDuration() error = %v", err)
	}
	if d != 5*time.Minute {
		t.Errorf("IntervalDuration() = %v, want 5m", d)
	}

	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() on defaults error = %v", err)
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{name: "defaults are valid", mutate: func(*Config) {}},
		{name: "boundary hour zero", mutate: func(c *Config) { c.Schedule.BoundaryHour = 0 }},
		{name: "utc timezone", mutate: func(c *Config) { c.Schedule.Timezone = "UTC" }},
		{
			name:    "boundary hour too large",
			mutate:  func(c *Config) { c.Schedule.BoundaryHour = 24 },
			wantErr: "boundary_hour",
		},
		{
			name:    "negative boundary hour",
			mutate:  func(c *Config) { c.Schedule.BoundaryHour = -1 },
			wantErr: "boundary_hour",
		},
		{
			name:    "unknown granularity",
			mutate:  func(c *Config) { c.Schedule.Granularity = "week" },
			wantErr: "granularity",
		},
		{
			name:    "unknown timezone",
			mutate:  func(c *Config) { c.Schedule.Timezone = "Mars/Olympus" },
			wantErr: "timezone",
		},
		{
			name:    "unparseable interval",
			mutate:  func(c *Config) { c.Capture.Interval = "often" },
			wantErr: "interval",
		},
		{
			name:    "zero interval",
			mutate:  func(c *Config) { c.Capture.Interval = "0s" },
			wantErr: "positive",
		},
		{
			name:    "interval longer than an hour",
			mutate:  func(c *Config) { c.Capture.Interval = "2h" },
			wantErr: "at most 1h",
		},
		{
			name:    "zero frame rate",
			mutate:  func(c *Config) { c.Video.FrameRate = 0 },
			wantErr: "frame_rate",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := NewConfig(t.TempDir())
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("Validate() error = %v", err)
				}
				return
			}
			if err == nil {
				t.Fatalf("Validate() expected error containing %q", tt.wantErr)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() error = %q, want it to contain %q", err.Error(), tt.wantErr)
			}
		})
	}
}

func TestConfig_ApplyEnv(t *testing.T) {
	t.Run("fills empty secrets", func(t *testing.T) {
		t.Setenv(EnvTelegramToken, "123:abc")
		t.Setenv(EnvTelegramChatID, "-10042")

		cfg := NewConfig(t.TempDir())
		cfg.ApplyEnv()

		if cfg.Delivery.TelegramToken != "123:abc" {
			t.Errorf("TelegramToken = %q, want %q", cfg.Delivery.TelegramToken, "123:abc")
		}
		if cfg.Delivery.TelegramChatID != "-10042" {
			t.Errorf("TelegramChatID = %q, want %q", cfg.Delivery.TelegramChatID, "-10042")
		}
	})

	t.Run("keeps values from file", func(t *testing.T) {
		t.Setenv(EnvTelegramToken, "from-env")

		cfg := NewConfig(t.TempDir())
		cfg.Delivery.TelegramToken = "from-file"
		cfg.ApplyEnv()

		if cfg.Delivery.TelegramToken != "from-file" {
			t.Errorf("TelegramToken = %q, want %q", cfg.Delivery.TelegramToken, "from-file")
		}
	})
}

func TestScheduleConfig_LoadLocation(t *testing.T) {
	for _, tz := range []string{"", "Local"} {
		loc, err := ScheduleConfig{Timezone: tz}.LoadLocation()
		if err != nil {
			t.Fatalf("LoadLocation(%q) error = %v", tz, err)
		}
		if loc != time.Local {
			t.Errorf("LoadLocation(%q) = %v, want Local", tz, loc)
		}
	}

	loc, err := ScheduleConfig{Timezone: "UTC"}.LoadLocation()
	if err != nil {
		t.Fatalf("LoadLocation(UTC) error = %v", err)
	}
	if loc.String() != "UTC" {
		t.Errorf("LoadLocation(UTC) = %v, want UTC", loc)
	}
}

func TestInit(t *testing.T) {
	t.Run("creates config file", func(t *testing.T) {
		dir := t.TempDir()
		path := filepath.Join(dir, "camlapse.toml")
		cfg := NewConfig(dir)

		if err := Init(path, cfg); err != nil {
			t.Fatalf("Init() error = %v", err)
		}

		info, err := os.Stat(path)
		if err != nil {
			t.Fatalf("config file not created: %v", err)
		}
		if perm := info.Mode().Perm(); perm != 0600 {
			t.Errorf("config file mode = %o, want 600", perm)
		}
	})

	t.Run("fails if file already exists", func(t *testing.T) {
		dir := t.TempDir()
		path := filepath.Join(dir, "camlapse.toml")
		cfg := NewConfig(dir)

		if err := Init(path, cfg); err != nil {
			t.Fatalf("first Init() error = %v", err)
		}

		err := Init(path, cfg)
		if err == nil {
			t.Fatal("second Init() expected error")
		}
	})
}

func TestReadFromFile(t *testing.T) {
	t.Run("reads valid config", func(t *testing.T) {
		dir := t.TempDir()
		path := filepath.Join(dir, "camlapse.toml")
		cfg := NewConfig(dir)
		cfg.Database = DatabaseConfig{Type: "memory"}

		if err := Init(path, cfg); err != nil {
			t.Fatalf("Init() error = %v", err)
		}

		got, err := ReadFromFile(path)
		if err != nil {
			t.Fatalf("ReadFromFile() error = %v", err)
		}
		if got.Database.Type != "memory" {
			t.Errorf("Database.Type = %q, want %q", got.Database.Type, "memory")
		}
		if got.Schedule.BoundaryHour != 22 {
			t.Errorf("Schedule.BoundaryHour = %d, want 22", got.Schedule.BoundaryHour)
		}
	})

	t.Run("returns error for missing file", func(t *testing.T) {
		_, err := ReadFromFile("/nonexistent/path/camlapse.toml")
		if err == nil {
			t.Fatal("ReadFromFile() expected error for missing file")
		}
	})
}
