package auth

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

// fileStorage forces the file fallback under a temporary home directory
func fileStorage(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("CI", "1")
	fileBasedStorageCache = nil
	t.Cleanup(func() { fileBasedStorageCache = nil })
	return home
}

func TestSaveAndLoadToken(t *testing.T) {
	home := fileStorage(t)

	if err := SaveToken(GitHubToken, "ghp_secret"); err != nil {
		t.Fatalf("SaveToken failed: %v", err)
	}

	got, err := LoadToken(GitHubToken)
	if err != nil {
		t.Fatalf("LoadToken failed: %v", err)
	}
	if got != "ghp_secret" {
		t.Errorf("expected stored token, got %q", got)
	}

	info, err := os.Stat(filepath.Join(home, FallbackDir, "github.json"))
	if err != nil {
		t.Fatalf("expected token file: %v", err)
	}
	if info.Mode().Perm() != 0600 {
		t.Errorf("expected 0600 permissions, got %v", info.Mode().Perm())
	}
}

func TestSaveToken_Replaces(t *testing.T) {
	fileStorage(t)

	SaveToken("ci", "first")
	SaveToken("ci", "second")

	got, _ := LoadToken("ci")
	if got != "second" {
		t.Errorf("expected replaced token, got %q", got)
	}
}

func TestLoadToken_Missing(t *testing.T) {
	fileStorage(t)

	if _, err := LoadToken("nothing"); !errors.Is(err, ErrTokenNotFound) {
		t.Errorf("expected ErrTokenNotFound, got %v", err)
	}
}

func TestDeleteToken(t *testing.T) {
	fileStorage(t)

	SaveToken("temp", "value")
	if err := DeleteToken("temp"); err != nil {
		t.Fatalf("DeleteToken failed: %v", err)
	}
	if _, err := LoadToken("temp"); !errors.Is(err, ErrTokenNotFound) {
		t.Errorf("expected token to be gone, got %v", err)
	}
	if err := DeleteToken("temp"); err != nil {
		t.Errorf("deleting a missing token should succeed, got %v", err)
	}
}

func TestListTokens(t *testing.T) {
	fileStorage(t)

	SaveToken("zeta", "1")
	SaveToken("alpha", "2")

	names, err := ListTokens()
	if err != nil {
		t.Fatalf("ListTokens failed: %v", err)
	}
	if len(names) != 2 || names[0] != "alpha" || names[1] != "zeta" {
		t.Errorf("unexpected names %v", names)
	}
}

func TestInvalidNames(t *testing.T) {
	fileStorage(t)

	for _, name := range []string{"", "../escape", ".hidden", "a/b", manifestKey} {
		if err := SaveToken(name, "x"); err == nil {
			t.Errorf("expected %q to be rejected", name)
		}
	}
	if err := SaveToken("ok", "   "); err == nil {
		t.Error("expected empty token to be rejected")
	}
}
