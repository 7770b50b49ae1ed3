package config

import (
	"os"
	"path/filepath"
	"testing"
)

func validConfig() *Config {
	cfg := Defaults()
	cfg.Gemini.APIKey = "test-key"
	cfg.Source.MonitoredPhone = "+17035551234"
	return cfg
}

// --- Validate ---

func TestValidate_ValidConfig(t *testing.T) {
	if err := Validate(validConfig()); err != nil {
		t.Fatalf("expected valid config, got: %v", err)
	}
}

func TestValidate_MissingAPIKey(t *testing.T) {
	cfg := validConfig()
	cfg.Gemini.APIKey = ""
	if err := Validate(cfg); err == nil {
		t.Fatal("expected error for missing API key")
	}
}

func TestValidate_UnexpandedAPIKey(t *testing.T) {
	cfg := validConfig()
	cfg.Gemini.APIKey = "${GEMINI_API_KEY}"
	if err := Validate(cfg); err == nil {
		t.Fatal("expected error for unexpanded API key placeholder")
	}
}

func TestValidate_BadProvider(t *testing.T) {
	cfg := validConfig()
	cfg.Source.Provider = "carrier-pigeon"
	if err := Validate(cfg); err == nil {
		t.Fatal("expected error for unknown provider")
	}
}

func TestValidate_TelegramNeedsToken(t *testing.T) {
	cfg := validConfig()
	cfg.Source.Provider = "telegram"
	cfg.Source.Telegram.Token = ""
	if err := Validate(cfg); err == nil {
		t.Fatal("expected error for missing telegram token")
	}
}

func TestValidate_PollInterval(t *testing.T) {
	cfg := validConfig()
	cfg.General.PollIntervalSeconds = 0
	if err := Validate(cfg); err == nil {
		t.Fatal("expected error for zero poll interval")
	}
}

func TestValidate_BadLogLevel(t *testing.T) {
	cfg := validConfig()
	cfg.General.LogLevel = "verbose"
	if err := Validate(cfg); err == nil {
		t.Fatal("expected error for bad log level")
	}
}

// --- ExpandEnvVars ---

func TestExpandEnvVars_Set(t *testing.T) {
	t.Setenv("DIME_TEST_VAR", "hello")
	got := ExpandEnvVars(`{"key": "${DIME_TEST_VAR}"}`)
	want := `{"key": "hello"}`
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestExpandEnvVars_Default(t *testing.T) {
	os.Unsetenv("DIME_TEST_UNSET")
	got := ExpandEnvVars("${DIME_TEST_UNSET:-fallback}")
	if got != "fallback" {
		t.Fatalf("got %q, want fallback", got)
	}
}

func TestExpandEnvVars_UnsetNoDefault(t *testing.T) {
	os.Unsetenv("DIME_TEST_UNSET")
	got := ExpandEnvVars("${DIME_TEST_UNSET}")
	if got != "${DIME_TEST_UNSET}" {
		t.Fatalf("placeholder should be kept, got %q", got)
	}
}

// --- Load / Save ---

func TestLoadSave_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")

	cfg := validConfig()
	cfg.Source.MonitoredPhone = "+12025550000"
	if err := Save(path, cfg); err != nil {
		t.Fatalf("save: %v", err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if loaded.Source.MonitoredPhone != "+12025550000" {
		t.Fatalf("monitored phone lost in round trip: %q", loaded.Source.MonitoredPhone)
	}
	if loaded.Gemini.Model != cfg.Gemini.Model {
		t.Fatalf("model mismatch: %q", loaded.Gemini.Model)
	}
}

func TestLoad_ExpandsEnvInFile(t *testing.T) {
	t.Setenv("DIME_TEST_KEY", "from-env")
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")

	cfg := validConfig()
	cfg.Gemini.APIKey = "${DIME_TEST_KEY}"
	if err := Save(path, cfg); err != nil {
		t.Fatalf("save: %v", err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if loaded.Gemini.APIKey != "from-env" {
		t.Fatalf("expected env-expanded key, got %q", loaded.Gemini.APIKey)
	}
}
