package config

import (
	"os"
	"path/filepath"
)

const (
	// EnvRelmanHome overrides the directory used to store relman data.
	EnvRelmanHome = "RELMAN_HOME"
	// EnvRelmanDB overrides the full path of the run history database.
	EnvRelmanDB = "RELMAN_DB"
	// EnvRelmanConfig points at a project configuration file.
	EnvRelmanConfig = "RELMAN_CONFIG"
)

// DataDir returns the directory used to store relman data.
func DataDir() (string, error) {
	if v := os.Getenv(EnvRelmanHome); v != "" {
		return filepath.Clean(v), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".relman"), nil
}

// DBPath returns the full path to the SQLite run history file.
func DBPath() (string, error) {
	if v := os.Getenv(EnvRelmanDB); v != "" {
		return filepath.Clean(v), nil
	}
	d, err := DataDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(d, "history.db"), nil
}
