package config

import (
	"os"
	"path/filepath"
	"runtime"
)

// AppName names the per-user data directory.
const AppName = "deskrec"

// DataDir returns the per-user data directory holding the event log,
// configuration, lock and signal files. DESKREC_DATA_DIR overrides it.
//
// Platform paths:
//   - Windows: %LOCALAPPDATA%\deskrec\
//   - Linux:   $XDG_DATA_HOME/deskrec/ or ~/.local/share/deskrec/
//   - macOS:   ~/Library/Application Support/deskrec/
func DataDir() string {
	if dir := os.Getenv("DESKREC_DATA_DIR"); dir != "" {
		return dir
	}
	return PlatformDataDir()
}

// PlatformDataDir returns the platform default, ignoring overrides.
func PlatformDataDir() string {
	switch runtime.GOOS {
	case "windows":
		return windowsDataDir()
	case "linux":
		return linuxDataDir()
	case "darwin":
		return macOSDataDir()
	default:
		return fallbackDataDir()
	}
}

// Path returns the default configuration file path.
func Path() string {
	return filepath.Join(DataDir(), FileName)
}

func windowsDataDir() string {
	if local := os.Getenv("LOCALAPPDATA"); local != "" {
		return filepath.Join(local, AppName)
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, "AppData", "Local", AppName)
}

// Linux paths follow the XDG Base Directory Specification.
func linuxDataDir() string {
	if xdgData := os.Getenv("XDG_DATA_HOME"); xdgData != "" {
		return filepath.Join(xdgData, AppName)
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".local", "share", AppName)
}

func macOSDataDir() string {
	home := os.Getenv("HOME")
	if home == "" {
		home, _ = os.UserHomeDir()
	}
	return filepath.Join(home, "Library", "Application Support", AppName)
}

func fallbackDataDir() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, "."+AppName)
}

// SupportedFormats lists the accepted configuration file extensions.
func SupportedFormats() []string {
	return []string{".json", ".toml", ".yaml", ".yml"}
}
