// Package config provides configuration utilities for the application.
package config

import (
	"os"
	"path/filepath"
	"strings"
)

// ExpandPath expands ~ and environment variables in a file path.
// It handles both ~ for home directory and $VAR style environment variables.
func ExpandPath(path string) string {
	if path == "" {
		return path
	}

	// First expand tilde if present
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err == nil {
			path = filepath.Join(home, path[2:])
		}
	} else if path == "~" {
		home, err := os.UserHomeDir()
		if err == nil {
			path = home
		}
	}

	// Then expand environment variables
	return os.ExpandEnv(path)
}

// DefaultDatabasePath is where the SQLite database lives when
// database.path is not configured.
func DefaultDatabasePath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "finsift.db"
	}
	return filepath.Join(home, ".local", "share", "finsift", "finsift.db")
}

// DefaultTokenPath is where the Gmail OAuth token lives when
// gmail.token_file is not configured.
func DefaultTokenPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "gmail-token.json"
	}
	return filepath.Join(home, ".config", "finsift", "gmail-token.json")
}
