package cli

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rescale/rescale-intake/internal/config"
)

// TestConfigPath tests the config path command
func TestConfigPath(t *testing.T) {
	cmd := newConfigPathCmd()
	if cmd == nil {
		t.Fatal("newConfigPathCmd() returned nil")
	}

	if cmd.Use != "path" {
		t.Errorf("Expected Use='path', got '%s'", cmd.Use)
	}

	if cmd.Short == "" {
		t.Error("Short description is empty")
	}
}

// TestConfigShow tests the config show command
func TestConfigShow(t *testing.T) {
	cmd := newConfigShowCmd()
	if cmd == nil {
		t.Fatal("newConfigShowCmd() returned nil")
	}

	if cmd.Use != "show" {
		t.Errorf("Expected Use='show', got '%s'", cmd.Use)
	}

	if cmd.Short == "" {
		t.Error("Short description is empty")
	}

	if cmd.RunE == nil {
		t.Error("RunE function is nil")
	}
}

// TestConfigTest tests the config test command
func TestConfigTest(t *testing.T) {
	cmd := newConfigTestCmd()
	if cmd == nil {
		t.Fatal("newConfigTestCmd() returned nil")
	}

	if cmd.Use != "test" {
		t.Errorf("Expected Use='test', got '%s'", cmd.Use)
	}

	if cmd.Short == "" {
		t.Error("Short description is empty")
	}

	if cmd.RunE == nil {
		t.Error("RunE function is nil")
	}
}

// TestConfigInit tests the config init command structure
func TestConfigInit(t *testing.T) {
	cmd := newConfigInitCmd()
	if cmd == nil {
		t.Fatal("newConfigInitCmd() returned nil")
	}

	if cmd.Use != "init" {
		t.Errorf("Expected Use='init', got '%s'", cmd.Use)
	}

	if cmd.Short == "" {
		t.Error("Short description is empty")
	}

	if cmd.RunE == nil {
		t.Error("RunE function is nil")
	}

	// Check for --force flag
	forceFlag := cmd.Flags().Lookup("force")
	if forceFlag == nil {
		t.Error("--force flag not found")
	}
}

// TestConfigCmd tests the config command group
func TestConfigCmd(t *testing.T) {
	cmd := newConfigCmd()
	if cmd == nil {
		t.Fatal("newConfigCmd() returned nil")
	}

	if cmd.Use != "config" {
		t.Errorf("Expected Use='config', got '%s'", cmd.Use)
	}

	// Check that subcommands exist
	subcommands := cmd.Commands()
	expectedSubs := []string{"init", "show", "test", "path"}

	if len(subcommands) != len(expectedSubs) {
		t.Errorf("Expected %d subcommands, got %d", len(expectedSubs), len(subcommands))
	}

	foundSubs := make(map[string]bool)
	for _, sub := range subcommands {
		foundSubs[sub.Name()] = true
	}

	for _, expected := range expectedSubs {
		if !foundSubs[expected] {
			t.Errorf("Subcommand '%s' not found", expected)
		}
	}
}

// TestConfigInitWritesFile drives the interactive setup with scripted answers
func TestConfigInitWritesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", "config.csv")
	answers := strings.Join([]string{
		"http://store.internal:9000", // base URL
		"y",                          // multiple
		"3",                          // concurrency
		"http",                       // delete backend
		"",                           // delete endpoint, default
		"n",                          // proxy
	}, "\n") + "\n"

	var out bytes.Buffer
	if err := runConfigInit(strings.NewReader(answers), &out, path, false); err != nil {
		t.Fatalf("runConfigInit: %v", err)
	}
	if !strings.Contains(out.String(), "Configuration saved") {
		t.Errorf("output missing confirmation:\n%s", out.String())
	}

	cfg, err := config.LoadConfigCSV(path)
	if err != nil {
		t.Fatalf("LoadConfigCSV: %v", err)
	}
	if cfg.BaseURL != "http://store.internal:9000" {
		t.Errorf("BaseURL = %q", cfg.BaseURL)
	}
	if !cfg.Multiple {
		t.Error("Multiple not saved")
	}
	if cfg.MaxConcurrent != 3 {
		t.Errorf("MaxConcurrent = %d, want 3", cfg.MaxConcurrent)
	}
	if cfg.DeleteBackend != config.DeleteHTTP {
		t.Errorf("DeleteBackend = %q, want http", cfg.DeleteBackend)
	}
	if got, want := cfg.DeleteEndpoint(), "http://store.internal:9000/delete"; got != want {
		t.Errorf("DeleteEndpoint() = %q, want %q", got, want)
	}
}

// TestConfigInitKeepsExisting checks that init refuses to overwrite without --force
func TestConfigInitKeepsExisting(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.csv")
	if err := os.WriteFile(path, []byte("key,value\n"), 0600); err != nil {
		t.Fatal(err)
	}

	var out bytes.Buffer
	if err := runConfigInit(strings.NewReader(""), &out, path, false); err != nil {
		t.Fatalf("runConfigInit: %v", err)
	}
	if !strings.Contains(out.String(), "already exists") {
		t.Errorf("expected 'already exists' notice, got:\n%s", out.String())
	}
	data, _ := os.ReadFile(path)
	if string(data) != "key,value\n" {
		t.Errorf("existing config was modified: %q", data)
	}
}

// TestConfigInitRejectsInvalid checks that an unusable answer is not saved
func TestConfigInitRejectsInvalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.csv")
	answers := "\nn\n\ns3\n\n\n\nn\n" // s3 backend without a bucket

	if err := runConfigInit(strings.NewReader(answers), io.Discard, path, true); err == nil {
		t.Fatal("expected validation error for s3 without bucket")
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Error("invalid config was written")
	}
}

func TestRedactQuery(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"https://acct.blob.core.windows.net/c?sv=2022&sig=abc", "https://acct.blob.core.windows.net/c?<redacted>"},
		{"https://acct.blob.core.windows.net/c", "https://acct.blob.core.windows.net/c"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := redactQuery(tt.in); got != tt.want {
			t.Errorf("redactQuery(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

// TestConfigDefaultPath tests the default config path function
func TestConfigDefaultPath(t *testing.T) {
	path := config.GetDefaultConfigPath()
	if path == "" {
		t.Error("GetDefaultConfigPath() returned empty string")
	}

	if !filepath.IsAbs(path) {
		t.Error("Default config path is not absolute")
	}
}
