package cala

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"
)

// CachedTokens is the on-disk session so a restart can resume with the
// refresh token instead of a full credential exchange.
type CachedTokens struct {
	IDToken      string    `json:"id_token"`
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	Expiry       time.Time `json:"expiry"`
}

type TokenCache struct {
	path string
}

func NewTokenCache(path string) *TokenCache {
	return &TokenCache{path: path}
}

func (c *TokenCache) Load() (*CachedTokens, error) {
	file, err := os.Open(c.path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	var tokens CachedTokens
	if err := json.NewDecoder(file).Decode(&tokens); err != nil {
		return nil, err
	}
	return &tokens, nil
}

func (c *TokenCache) Save(tokens *CachedTokens) error {
	if err := os.MkdirAll(filepath.Dir(c.path), 0755); err != nil {
		return err
	}

	tmpPath := c.path + ".tmp"

	file, err := os.OpenFile(tmpPath, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0600)
	if err != nil {
		return err
	}
	encoder := json.NewEncoder(file)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(tokens); err != nil {
		file.Close()
		return err
	}
	file.Sync()
	file.Close()

	return os.Rename(tmpPath, c.path)
}
