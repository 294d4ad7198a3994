package app

import (
	"os"
	"path/filepath"
	"testing"
)

func TestGetDefaults(t *testing.T) {
	t.Run("uses env vars when set", func(t *testing.T) {
		t.Setenv(EnvConfigPath, "/custom/camlapse.toml")
		t.Setenv(EnvHome, "/srv/camlapse")

		defaults, err := GetDefaults()
		if err != nil {
			t.Fatalf("GetDefaults() error = %v", err)
		}

		if defaults["config_path"] != "/custom/camlapse.toml" {
			t.Errorf("config_path = %q, want %q", defaults["config_path"], "/custom/camlapse.toml")
		}
		if defaults["base_dir"] != "/srv/camlapse" {
			t.Errorf("base_dir = %q, want %q", defaults["base_dir"], "/srv/camlapse")
		}
		if defaults["log_dir"] != "/srv/camlapse/log" {
			t.Errorf("log_dir = %q, want %q", defaults["log_dir"], "/srv/camlapse/log")
		}
	})

	t.Run("falls back to home dir defaults", func(t *testing.T) {
		t.Setenv(EnvConfigPath, "")
		t.Setenv(EnvHome, "")

		defaults, err := GetDefaults()
		if err != nil {
			t.Fatalf("GetDefaults() error = %v", err)
		}

		homeDir, _ := os.UserHomeDir()

		wantConfig := filepath.Join(homeDir, ".config", "camlapse.toml")
		if defaults["config_path"] != wantConfig {
			t.Errorf("config_path = %q, want %q", defaults["config_path"], wantConfig)
		}

		wantBase := filepath.Join(homeDir, ".local", "share", "camlapse")
		if defaults["base_dir"] != wantBase {
			t.Errorf("base_dir = %q, want %q", defaults["base_dir"], wantBase)
		}
	})
}

func TestLoadEnv(t *testing.T) {
	dir := t.TempDir()
	first := filepath.Join(dir, "first.env")
	second := filepath.Join(dir, "second.env")

	if err := os.WriteFile(first, []byte("CAMLAPSE_TEST_A=from-first\n"), 0600); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(second, []byte("CAMLAPSE_TEST_A=from-second\nCAMLAPSE_TEST_B=b\n"), 0600); err != nil {
		t.Fatal(err)
	}

	t.Setenv("CAMLAPSE_TEST_A", "")
	t.Setenv("CAMLAPSE_TEST_B", "")
	os.Unsetenv("CAMLAPSE_TEST_A")
	os.Unsetenv("CAMLAPSE_TEST_B")

	if err := LoadEnv(filepath.Join(dir, "missing.env"), first, second); err != nil {
		t.Fatalf("LoadEnv() error = %v", err)
	}

	if got := os.Getenv("CAMLAPSE_TEST_A"); got != "from-first" {
		t.Errorf("CAMLAPSE_TEST_A = %q, want %q", got, "from-first")
	}
	if got := os.Getenv("CAMLAPSE_TEST_B"); got != "b" {
		t.Errorf("CAMLAPSE_TEST_B = %q, want %q", got, "b")
	}
}

func TestLoadEnv_Malformed(t *testing.T) {
	p := filepath.Join(t.TempDir(), "bad.env")
	if err := os.WriteFile(p, []byte("NOT A VALID LINE WITHOUT EQUALS 'unterminated\n"), 0600); err != nil {
		t.Fatal(err)
	}
	if err := LoadEnv(p); err == nil {
		t.Error("LoadEnv() expected error for malformed file")
	}
}
