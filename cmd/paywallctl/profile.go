package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/BurntSushi/toml"
)

const defaultProfile = "./paywallctl.toml"

// profile holds operator defaults so commands do not need every flag.
type profile struct {
	DataDir        string `toml:"DataDir"`
	StorageBackend string `toml:"StorageBackend"`
	IndexDSN       string `toml:"IndexDSN"`
	JWTSecret      string `toml:"JWTSecret"`
	Issuer         string `toml:"Issuer"`
	Currency       string `toml:"Currency"`
}

func defaultProfileValues() profile {
	return profile{
		DataDir:        "data",
		StorageBackend: "bolt",
		IndexDSN:       "sqlite://data/index.db",
		Issuer:         "paywall",
	}
}

// loadProfile reads path on top of the defaults. A missing file at the
// default location is not an error.
func loadProfile(path string) (profile, error) {
	cfg := defaultProfileValues()
	if strings.TrimSpace(path) == "" {
		path = defaultProfile
	}
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		if !errors.Is(err, fs.ErrNotExist) || path != defaultProfile {
			return profile{}, fmt.Errorf("read profile: %w", err)
		}
		cfg = defaultProfileValues()
	}
	if secret := strings.TrimSpace(os.Getenv("PAYWALL_JWT_SECRET")); secret != "" {
		cfg.JWTSecret = secret
	}
	return cfg, nil
}

func writeProfile(path string, cfg profile) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_TRUNC|os.O_CREATE, 0o600)
	if err != nil {
		return err
	}
	defer f.Close()
	return toml.NewEncoder(f).Encode(cfg)
}
