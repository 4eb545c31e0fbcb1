package config

import (
	"os"
	"path/filepath"
	"runtime"
)

// LogDirectory returns the directory megadl writes its own log file
// to when file logging is enabled.
//
// Locations:
//   - Windows: %LOCALAPPDATA%\megadl\logs
//   - Unix: ~/.config/megadl/logs
func LogDirectory() string {
	if runtime.GOOS == "windows" {
		localAppData := os.Getenv("LOCALAPPDATA")
		if localAppData == "" {
			homeDir, err := os.UserHomeDir()
			if err != nil {
				return filepath.Join(os.TempDir(), "megadl-logs")
			}
			localAppData = filepath.Join(homeDir, "AppData", "Local")
		}
		return filepath.Join(localAppData, "megadl", "logs")
	}

	configDir, err := os.UserConfigDir()
	if err != nil {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return filepath.Join(os.TempDir(), "megadl-logs")
		}
		return filepath.Join(homeDir, ".config", "megadl", "logs")
	}
	return filepath.Join(configDir, "megadl", "logs")
}

// EnsureLogDirectory creates the log directory if it doesn't exist,
// restricted to the owner.
func EnsureLogDirectory() error {
	return os.MkdirAll(LogDirectory(), 0o700)
}
