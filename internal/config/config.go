// Package config manages megadl's TOML service configuration file:
// download defaults, saved (optionally encrypted) credentials, the
// ingress API's bind address, and resolved filesystem paths.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"

	"github.com/nshenoy/megadl/internal/credentials"
)

// DownloadConfig controls chunking and concurrency for the download
// engine. Defaults match the spec: 2 chunks/file, 4 concurrent files,
// do not overwrite complete files, clean up .part files on error.
type DownloadConfig struct {
	ChunksPerFile    int  `toml:"chunks_per_file"`
	ConcurrentFiles  int  `toml:"concurrent_files"`
	ForceOverwrite   bool `toml:"force_overwrite"`
	CleanupOnError   bool `toml:"cleanup_on_error"`
}

// DefaultDownloadConfig returns the spec-mandated defaults.
func DefaultDownloadConfig() DownloadConfig {
	return DownloadConfig{
		ChunksPerFile:   2,
		ConcurrentFiles: 4,
		ForceOverwrite:  false,
		CleanupOnError:  true,
	}
}

// SavedCredentials holds mega.nz login details, optionally encrypted
// at rest (see internal/credentials).
type SavedCredentials struct {
	Email     string `toml:"email"`
	Password  string `toml:"password"`
	MFA       string `toml:"mfa,omitempty"`
	Encrypted bool   `toml:"encrypted"`
}

// ProxyConfig controls outbound HTTP proxying for the .dlc key-exchange
// and mega.nz API traffic. Mode is one of "no-proxy", "system", "basic".
type ProxyConfig struct {
	Mode     string `toml:"mode"`
	Host     string `toml:"host,omitempty"`
	Port     int    `toml:"port,omitempty"`
	User     string `toml:"user,omitempty"`
	Password string `toml:"password,omitempty"`
	NoProxy  string `toml:"no_proxy,omitempty"`
	Warmup   bool   `toml:"warmup,omitempty"`
}

// DefaultProxyConfig disables proxying.
func DefaultProxyConfig() ProxyConfig {
	return ProxyConfig{Mode: "no-proxy"}
}

// ApiConfig controls the ingress API's bind address.
type ApiConfig struct {
	Enabled bool   `toml:"enabled"`
	Host    string `toml:"host"`
	Port    int    `toml:"port"`
}

// DefaultApiConfig matches original_source's DEFAULT_API_PORT (9723).
func DefaultApiConfig() ApiConfig {
	return ApiConfig{Enabled: true, Host: "127.0.0.1", Port: 9723}
}

// PathConfig resolves the OS-appropriate directories megadl uses.
type PathConfig struct {
	DownloadDir string `toml:"download_dir"`
	ConfigDir   string `toml:"config_dir"`
	StateDir    string `toml:"state_dir"`
}

// DefaultPathConfig resolves platform directories, honoring
// $STATE_DIRECTORY for the state dir (systemd service-manager
// convention) per spec.md §4.E/§6.
func DefaultPathConfig() PathConfig {
	pc := PathConfig{}

	if dir, err := os.UserHomeDir(); err == nil {
		pc.DownloadDir = filepath.Join(dir, "Downloads", "megadl")
	} else {
		pc.DownloadDir = filepath.Join(os.TempDir(), "megadl-downloads")
	}

	if dir, err := os.UserConfigDir(); err == nil {
		pc.ConfigDir = filepath.Join(dir, "megadl")
	} else {
		pc.ConfigDir = filepath.Join(os.TempDir(), "megadl-config")
	}

	if sd := os.Getenv("STATE_DIRECTORY"); sd != "" {
		pc.StateDir = filepath.Join(sd, "sessions")
	} else if dir, err := os.UserHomeDir(); err == nil {
		pc.StateDir = filepath.Join(dir, ".local", "share", "megadl", "sessions")
	} else {
		pc.StateDir = filepath.Join(os.TempDir(), "megadl-sessions")
	}

	return pc
}

// AppConfig is the root of the TOML service configuration file
// (spec.md §6: tables [download], [credentials], [api]).
type AppConfig struct {
	Download    DownloadConfig   `toml:"download"`
	Credentials SavedCredentials `toml:"credentials"`
	API         ApiConfig        `toml:"api"`
	Proxy       ProxyConfig      `toml:"proxy"`
	Paths       PathConfig       `toml:"-"`
}

// DefaultAppConfig builds a config with every table at its default.
func DefaultAppConfig() AppConfig {
	return AppConfig{
		Download: DefaultDownloadConfig(),
		API:      DefaultApiConfig(),
		Proxy:    DefaultProxyConfig(),
		Paths:    DefaultPathConfig(),
	}
}

// Load reads the TOML config at path, encrypting any plaintext
// credentials in place and rewriting the file with encrypted=true, per
// spec.md §6. A missing file yields defaults without error.
func Load(path string) (AppConfig, error) {
	cfg := DefaultAppConfig()

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return cfg, nil
	}

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return AppConfig{}, fmt.Errorf("config: decoding %s: %w", path, err)
	}
	cfg.Paths = DefaultPathConfig()

	if cfg.Credentials.Email != "" && !cfg.Credentials.Encrypted {
		key := credentials.DeriveMachineKey()
		encPass, err := credentials.Encrypt(key, cfg.Credentials.Password)
		if err != nil {
			return AppConfig{}, fmt.Errorf("config: encrypting credentials: %w", err)
		}
		cfg.Credentials.Password = encPass
		if cfg.Credentials.MFA != "" {
			encMFA, err := credentials.Encrypt(key, cfg.Credentials.MFA)
			if err != nil {
				return AppConfig{}, fmt.Errorf("config: encrypting mfa: %w", err)
			}
			cfg.Credentials.MFA = encMFA
		}
		cfg.Credentials.Encrypted = true
		if err := Save(path, cfg); err != nil {
			return AppConfig{}, fmt.Errorf("config: rewriting with encrypted credentials: %w", err)
		}
	}

	return cfg, nil
}

// Save atomically writes cfg to path: temp file at 0600, then rename.
func Save(path string, cfg AppConfig) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}

	tmp := path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return err
	}
	if err := toml.NewEncoder(f).Encode(cfg); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, path)
}

// DecryptedPassword returns the plaintext password, decrypting it
// first if the stored value is encrypted.
func (c SavedCredentials) DecryptedPassword(key [16]byte) (string, error) {
	if !c.Encrypted {
		return c.Password, nil
	}
	return credentials.Decrypt(key, c.Password)
}
