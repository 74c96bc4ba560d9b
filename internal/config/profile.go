package config

import (
	"encoding/json"
	"os"
	"path/filepath"
)

const (
	ProfileDirName  = ".stackgate"
	ProfileFileName = "config.json"
)

// Profile holds user-level settings for the stackctl CLI.
type Profile struct {
	Endpoint        string `json:"endpoint"`
	AccessKeyID     string `json:"access_key_id"`
	SecretAccessKey string `json:"secret_access_key"`
	Region          string `json:"region"`
}

// DefaultProfile returns sensible defaults.
func DefaultProfile() Profile {
	return Profile{
		Endpoint: "http://127.0.0.1:8000",
		Region:   "us-east-1",
	}
}

// ProfileDir returns the stackctl config directory path.
func ProfileDir() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ProfileDirName)
}

// LoadProfile loads the CLI profile from ~/.stackgate/config.json.
func LoadProfile() (Profile, error) {
	path := filepath.Join(ProfileDir(), ProfileFileName)

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return DefaultProfile(), nil
		}
		return Profile{}, err
	}

	cfg := DefaultProfile()
	if err := json.Unmarshal(data, &cfg); err != nil {
		return Profile{}, err
	}
	return cfg, nil
}

// SaveProfile persists the CLI profile to ~/.stackgate/config.json.
// The file holds a secret key, so it is written user-only.
func SaveProfile(cfg Profile) error {
	dir := ProfileDir()
	if err := os.MkdirAll(dir, 0700); err != nil {
		return err
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(filepath.Join(dir, ProfileFileName), data, 0600)
}
