package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestString(t *testing.T) {
	t.Setenv("MIMIC_TEST_STRING", "abc")
	if got := String("MIMIC_TEST_STRING", "def"); got != "abc" {
		t.Errorf("String: got %q, want %q", got, "abc")
	}
	if got := String("MIMIC_TEST_UNSET", "def"); got != "def" {
		t.Errorf("String default: got %q, want %q", got, "def")
	}
}

func TestIntAndFloat(t *testing.T) {
	t.Setenv("MIMIC_TEST_INT", "42")
	t.Setenv("MIMIC_TEST_BAD", "forty-two")
	t.Setenv("MIMIC_TEST_FLOAT", "1.5")

	if got := Int("MIMIC_TEST_INT", 1); got != 42 {
		t.Errorf("Int: got %d, want 42", got)
	}
	if got := Int("MIMIC_TEST_BAD", 7); got != 7 {
		t.Errorf("Int invalid: got %d, want 7", got)
	}
	if got := Float("MIMIC_TEST_FLOAT", 0); got != 1.5 {
		t.Errorf("Float: got %f, want 1.5", got)
	}
	if got := Float("MIMIC_TEST_BAD", 2); got != 2 {
		t.Errorf("Float invalid: got %f, want 2", got)
	}
}

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test.env")
	if err := os.WriteFile(path, []byte("MIMIC_DOTENV_VALUE=from-file\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("MIMIC_DOTENV_VALUE", "")
	os.Unsetenv("MIMIC_DOTENV_VALUE")

	if err := LoadDotEnv(path); err != nil {
		t.Fatalf("LoadDotEnv: %v", err)
	}
	if got := os.Getenv("MIMIC_DOTENV_VALUE"); got != "from-file" {
		t.Errorf("got %q, want from-file", got)
	}

	// Missing files are ignored
	if err := LoadDotEnv(filepath.Join(dir, "missing.env")); err != nil {
		t.Errorf("missing file should not error: %v", err)
	}
}
