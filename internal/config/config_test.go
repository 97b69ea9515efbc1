package config

import (
	"os"
	"path/filepath"
	"testing"
)

// --- Validate ---

func TestValidate_ValidConfig(t *testing.T) {
	cfg := Defaults()
	if err := Validate(cfg); err != nil {
		t.Fatalf("expected valid config, got: %v", err)
	}
}

func TestValidate_EmptyPrefix(t *testing.T) {
	cfg := Defaults()
	cfg.General.CommandPrefix = ""
	if err := Validate(cfg); err == nil {
		t.Fatal("expected error for empty command prefix")
	}
}

func TestValidate_ConcurrencyBounds(t *testing.T) {
	cfg := Defaults()

	cfg.General.MaxConcurrentMessages = 0
	if err := Validate(cfg); err == nil {
		t.Fatal("expected error for maxConcurrentMessages=0")
	}

	cfg.General.MaxConcurrentMessages = 1
	if err := Validate(cfg); err != nil {
		t.Fatalf("maxConcurrentMessages=1 should be valid: %v", err)
	}

	cfg.General.MaxConcurrentMessages = 100
	if err := Validate(cfg); err != nil {
		t.Fatalf("maxConcurrentMessages=100 should be valid: %v", err)
	}
}

func TestValidate_InvalidLogLevel(t *testing.T) {
	cfg := Defaults()
	cfg.General.LogLevel = "verbose"
	if err := Validate(cfg); err == nil {
		t.Fatal("expected error for invalid log level")
	}
}

func TestValidate_BlankWhitelistEntry(t *testing.T) {
	cfg := Defaults()
	cfg.Whitelist.Numbers = []string{"33612345678", "   "}
	if err := Validate(cfg); err == nil {
		t.Fatal("expected error for blank whitelist entry")
	}
}

func TestValidate_CloudAPIRequiresCredentials(t *testing.T) {
	cfg := Defaults()
	cfg.Channels.CloudAPI.Enabled = true
	if err := Validate(cfg); err == nil {
		t.Fatal("expected error for enabled cloudapi without credentials")
	}

	cfg.Channels.CloudAPI.AccessToken = "token"
	cfg.Channels.CloudAPI.PhoneNumberID = "12345"
	if err := Validate(cfg); err != nil {
		t.Fatalf("expected valid config, got: %v", err)
	}
}

// --- Load ---

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoad_MergesOverDefaults(t *testing.T) {
	path := writeConfig(t, `
general:
  commandPrefix: "/"
whitelist:
  numbers: ["+33 6 12 34 56 78", "4915112345678"]
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.General.CommandPrefix != "/" {
		t.Errorf("CommandPrefix = %q, want %q", cfg.General.CommandPrefix, "/")
	}
	// Untouched fields keep their defaults.
	if cfg.General.MaxConcurrentMessages != 5 {
		t.Errorf("MaxConcurrentMessages = %d, want 5", cfg.General.MaxConcurrentMessages)
	}
	if len(cfg.Whitelist.Numbers) != 2 {
		t.Errorf("Numbers = %v, want 2 entries", cfg.Whitelist.Numbers)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load("/nonexistent/config.yaml"); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	path := writeConfig(t, "general: [not a map")
	if _, err := Load(path); err == nil {
		t.Fatal("expected parse error")
	}
}

// --- ExpandEnvVars ---

func TestExpandEnvVars_Set(t *testing.T) {
	t.Setenv("VOCABOT_TEST_KEY", "secret123")
	out := ExpandEnvVars("apiKey: ${VOCABOT_TEST_KEY}")
	if out != "apiKey: secret123" {
		t.Errorf("got %q", out)
	}
}

func TestExpandEnvVars_Default(t *testing.T) {
	os.Unsetenv("VOCABOT_UNSET_VAR")
	out := ExpandEnvVars("model: ${VOCABOT_UNSET_VAR:-gemini-2.0-flash}")
	if out != "model: gemini-2.0-flash" {
		t.Errorf("got %q", out)
	}
}

func TestExpandEnvVars_UnsetNoDefault(t *testing.T) {
	os.Unsetenv("VOCABOT_UNSET_VAR")
	out := ExpandEnvVars("key: ${VOCABOT_UNSET_VAR}")
	if out != "key: ${VOCABOT_UNSET_VAR}" {
		t.Errorf("unset var without default should stay literal, got %q", out)
	}
}

func TestExpandEnvVars_EnvInLoadedConfig(t *testing.T) {
	t.Setenv("VOCABOT_TEST_API_KEY", "k-123")
	path := writeConfig(t, `
analysis:
  apiKey: ${VOCABOT_TEST_API_KEY}
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Analysis.APIKey != "k-123" {
		t.Errorf("APIKey = %q, want %q", cfg.Analysis.APIKey, "k-123")
	}
}
