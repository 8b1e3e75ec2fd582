// Package auth stores API tokens in the OS keyring, falling back to files
// where no keyring is available.
package auth

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/zalando/go-keyring"
)

const (
	// KeyringService is the service name for keyring storage
	KeyringService = "harvest-cli"
	// FallbackDir is the directory for file-based token storage (when keyring fails)
	FallbackDir = ".harvest/tokens"
	// GitHubToken is the name the paged API source reads its token from
	GitHubToken = "github"

	manifestKey = "_manifest"
)

// ErrTokenNotFound is returned when no token is stored under a name
var ErrTokenNotFound = errors.New("token not found")

// useFileBasedStorage checks if we should use file-based storage.
// This is a fallback for environments where keyring isn't available (Codespaces, CI)
var fileBasedStorageCache *bool

func useFileBasedStorage() bool {
	if fileBasedStorageCache != nil {
		return *fileBasedStorageCache
	}

	if os.Getenv("CODESPACES") != "" || os.Getenv("CI") != "" {
		result := true
		fileBasedStorageCache = &result
		return true
	}

	// Probe the keyring once
	testKey := "_test_keyring_access_"
	err := keyring.Set(KeyringService, testKey, "test")
	result := err != nil
	fileBasedStorageCache = &result

	if !result {
		keyring.Delete(KeyringService, testKey)
	}
	return result
}

func tokenDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	dir := filepath.Join(home, FallbackDir)
	return dir, os.MkdirAll(dir, 0700)
}

func tokenPath(name string) (string, error) {
	dir, err := tokenDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, name+".json"), nil
}

// TokenData is what gets persisted for one token
type TokenData struct {
	Name      string    `json:"name"`
	Token     string    `json:"token"`
	CreatedAt time.Time `json:"created_at"`
}

func validName(name string) error {
	if name == "" {
		return fmt.Errorf("token name cannot be empty")
	}
	if strings.ContainsAny(name, `/\`) || strings.HasPrefix(name, ".") || name == manifestKey {
		return fmt.Errorf("invalid token name %q", name)
	}
	return nil
}

// SaveToken stores token under name, replacing any previous value
func SaveToken(name, token string) error {
	if err := validName(name); err != nil {
		return err
	}
	if strings.TrimSpace(token) == "" {
		return fmt.Errorf("token cannot be empty")
	}

	data, err := json.Marshal(TokenData{Name: name, Token: token, CreatedAt: time.Now().UTC()})
	if err != nil {
		return fmt.Errorf("failed to serialize token: %w", err)
	}

	if useFileBasedStorage() {
		path, err := tokenPath(name)
		if err != nil {
			return fmt.Errorf("failed to get token path: %w", err)
		}
		if err := os.WriteFile(path, data, 0600); err != nil {
			return fmt.Errorf("failed to save token file: %w", err)
		}
		return nil
	}

	if err := keyring.Set(KeyringService, name, string(data)); err != nil {
		return fmt.Errorf("failed to save to keyring: %w", err)
	}
	return updateManifest(name, true)
}

// LoadToken returns the token stored under name
func LoadToken(name string) (string, error) {
	if err := validName(name); err != nil {
		return "", err
	}

	var raw string
	if useFileBasedStorage() {
		path, err := tokenPath(name)
		if err != nil {
			return "", fmt.Errorf("failed to get token path: %w", err)
		}
		data, err := os.ReadFile(path)
		if errors.Is(err, os.ErrNotExist) {
			return "", ErrTokenNotFound
		}
		if err != nil {
			return "", fmt.Errorf("failed to load token file: %w", err)
		}
		raw = string(data)
	} else {
		data, err := keyring.Get(KeyringService, name)
		if errors.Is(err, keyring.ErrNotFound) {
			return "", ErrTokenNotFound
		}
		if err != nil {
			return "", fmt.Errorf("failed to load from keyring: %w", err)
		}
		raw = data
	}

	var td TokenData
	if err := json.Unmarshal([]byte(raw), &td); err != nil {
		return "", fmt.Errorf("failed to deserialize token: %w", err)
	}
	return td.Token, nil
}

// DeleteToken removes the token stored under name. Missing tokens are not an error.
func DeleteToken(name string) error {
	if err := validName(name); err != nil {
		return err
	}

	if useFileBasedStorage() {
		path, err := tokenPath(name)
		if err != nil {
			return fmt.Errorf("failed to get token path: %w", err)
		}
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("failed to delete token file: %w", err)
		}
		return nil
	}

	if err := keyring.Delete(KeyringService, name); err != nil && !errors.Is(err, keyring.ErrNotFound) {
		return fmt.Errorf("failed to delete from keyring: %w", err)
	}
	return updateManifest(name, false)
}

// ListTokens returns the names of stored tokens, sorted
func ListTokens() ([]string, error) {
	if useFileBasedStorage() {
		dir, err := tokenDir()
		if err != nil {
			return nil, err
		}
		entries, err := os.ReadDir(dir)
		if err != nil {
			return nil, err
		}
		var names []string
		for _, entry := range entries {
			if !entry.IsDir() && filepath.Ext(entry.Name()) == ".json" {
				names = append(names, strings.TrimSuffix(entry.Name(), ".json"))
			}
		}
		sort.Strings(names)
		return names, nil
	}

	data, err := keyring.Get(KeyringService, manifestKey)
	if err != nil {
		// No manifest exists yet
		return []string{}, nil
	}
	var names []string
	if err := json.Unmarshal([]byte(data), &names); err != nil {
		return nil, fmt.Errorf("failed to deserialize manifest: %w", err)
	}
	sort.Strings(names)
	return names, nil
}

// updateManifest tracks keyring token names, which the keyring cannot list
func updateManifest(name string, add bool) error {
	names, _ := ListTokens()

	kept := make([]string, 0, len(names)+1)
	for _, n := range names {
		if n != name {
			kept = append(kept, n)
		}
	}
	if add {
		kept = append(kept, name)
	}

	data, err := json.Marshal(kept)
	if err != nil {
		return err
	}
	return keyring.Set(KeyringService, manifestKey, string(data))
}
