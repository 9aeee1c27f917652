// Copyright (c) 2025 BVK Chaitanya

package setup

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/bvk/volumebot/server"
)

func dataDirPath(dataDir string) (string, error) {
	if len(dataDir) == 0 {
		dataDir = filepath.Join(os.Getenv("HOME"), ".volumebot")
	}
	if _, err := os.Stat(dataDir); err != nil {
		if !os.IsNotExist(err) {
			return "", fmt.Errorf("could not stat data directory %q: %w", dataDir, err)
		}
		if err := os.MkdirAll(dataDir, 0700); err != nil {
			return "", fmt.Errorf("could not create data directory %q: %w", dataDir, err)
		}
	}
	abs, err := filepath.Abs(dataDir)
	if err != nil {
		return "", fmt.Errorf("could not determine data-dir %q absolute path: %w", dataDir, err)
	}
	return abs, nil
}

// loadSecrets reads the secrets file in the data directory. Returns empty
// secrets when the file doesn't exist yet.
func loadSecrets(dataDir string) (string, *server.Secrets, error) {
	dir, err := dataDirPath(dataDir)
	if err != nil {
		return "", nil, err
	}
	fpath := filepath.Join(dir, "secrets.json")
	secrets, err := server.SecretsFromFile(fpath)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			return "", nil, err
		}
		secrets = new(server.Secrets)
	}
	return fpath, secrets, nil
}

func saveSecrets(fpath string, secrets *server.Secrets) error {
	if err := secrets.Check(); err != nil {
		return err
	}
	js, err := json.MarshalIndent(secrets, "", "  ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(fpath, js, os.FileMode(0600)); err != nil {
		return err
	}
	return nil
}
