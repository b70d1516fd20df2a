package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

type sample struct {
	Name  string `yaml:"name"`
	Count int    `yaml:"count"`
}

func (s *sample) Validate() error {
	if s.Count < 0 {
		return errors.New("count must not be negative")
	}
	return nil
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoad_ExpandsEnvAndValidates(t *testing.T) {
	t.Setenv("SAMPLE_NAME", "expanded")
	dir := t.TempDir()

	var s sample
	if err := Load(writeFile(t, dir, "ok.yaml", "name: ${SAMPLE_NAME}\ncount: 2\n"), &s); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if s.Name != "expanded" || s.Count != 2 {
		t.Errorf("sample = %+v", s)
	}

	err := Load(writeFile(t, dir, "bad.yaml", "count: -1\n"), &s)
	if err == nil || !strings.Contains(err.Error(), "validation") {
		t.Errorf("err = %v, want validation error", err)
	}
}

func TestLoadWithDefaults_FallsBack(t *testing.T) {
	dir := t.TempDir()
	def := writeFile(t, dir, "default.yaml", "name: default\n")

	var s sample
	if err := LoadWithDefaults(filepath.Join(dir, "missing.yaml"), def, &s); err != nil {
		t.Fatal(err)
	}
	if s.Name != "default" {
		t.Errorf("name = %q", s.Name)
	}
}

func TestLoadEnvFiles(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, ".env.local", "PAPERFEED_ENV_A=from-file\nPAPERFEED_ENV_B=from-file\n")
	t.Setenv("PAPERFEED_ENV_B", "from-process")
	t.Cleanup(func() { os.Unsetenv("PAPERFEED_ENV_A") })

	if err := LoadEnvFiles(filepath.Join(dir, "missing.env"), path); err != nil {
		t.Fatalf("LoadEnvFiles: %v", err)
	}
	if got := os.Getenv("PAPERFEED_ENV_A"); got != "from-file" {
		t.Errorf("A = %q", got)
	}
	if got := os.Getenv("PAPERFEED_ENV_B"); got != "from-process" {
		t.Errorf("B = %q, process env must win", got)
	}
}
