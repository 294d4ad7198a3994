package app

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
)

// Environment variables that relocate the config file and data directory.
const (
	EnvConfigPath = "CAMLAPSE_CONFIG_PATH"
	EnvHome       = "CAMLAPSE_HOME"
)

// GetDefaults returns application default paths, checking environment variables first.
// Environment variables:
//   - CAMLAPSE_CONFIG_PATH: config file location (default: ~/.config/camlapse.toml)
//   - CAMLAPSE_HOME: base directory for archive, keys, logs and the job database
//     (default: ~/.local/share/camlapse)
func GetDefaults() (map[string]string, error) {
	configPath, err := getConfigPath()
	if err != nil {
		return nil, err
	}

	baseDir, err := getBaseDir()
	if err != nil {
		return nil, err
	}

	return map[string]string{
		"config_path": configPath,
		"base_dir":    baseDir,
		"log_dir":     filepath.Join(baseDir, "log"),
	}, nil
}

func getConfigPath() (string, error) {
	if path := os.Getenv(EnvConfigPath); path != "" {
		return path, nil
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory: %w", err)
	}
	return filepath.Join(homeDir, ".config", "camlapse.toml"), nil
}

func getBaseDir() (string, error) {
	if path := os.Getenv(EnvHome); path != "" {
		return path, nil
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory: %w", err)
	}
	return filepath.Join(homeDir, ".local", "share", "camlapse"), nil
}

// LoadEnv loads KEY=value pairs from .env files into the process environment.
// Missing files are skipped and variables already set are never overwritten,
// so the first file to define a key wins.
func LoadEnv(paths ...string) error {
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("loading %s: %w", p, err)
		}
	}
	return nil
}
