package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadDefaults(t *testing.T) {
	for _, key := range []string{
		"KONTOBUCH_USER_ID", "KONTOBUCH_DB_PATH", "KONTOBUCH_LOG_LEVEL",
		"KONTOBUCH_TRANSFER_WINDOW_DAYS", "GEMINI_API_KEY", "GEMINI_MODEL",
	} {
		t.Setenv(key, "")
		os.Unsetenv(key)
	}

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.UserID != "default" {
		t.Errorf("UserID = %q, want default", cfg.UserID)
	}
	if cfg.DatabasePath != "kontobuch.db" {
		t.Errorf("DatabasePath = %q", cfg.DatabasePath)
	}
	if cfg.Transfer.MatchWindowDays != 3 {
		t.Errorf("MatchWindowDays = %d, want 3", cfg.Transfer.MatchWindowDays)
	}
	if cfg.Gemini.Enabled() {
		t.Error("Gemini must be disabled without an api key")
	}
}

func TestLoadFromEnvFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	content := "KONTOBUCH_USER_ID=malte\nKONTOBUCH_TRANSFER_WINDOW_DAYS=7\nGEMINI_API_KEY=k-123\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	for _, key := range []string{"KONTOBUCH_USER_ID", "KONTOBUCH_TRANSFER_WINDOW_DAYS", "GEMINI_API_KEY"} {
		t.Setenv(key, "")
		os.Unsetenv(key)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load(%q) error: %v", path, err)
	}
	if cfg.UserID != "malte" {
		t.Errorf("UserID = %q", cfg.UserID)
	}
	if cfg.Transfer.MatchWindowDays != 7 {
		t.Errorf("MatchWindowDays = %d", cfg.Transfer.MatchWindowDays)
	}
	if !cfg.Gemini.Enabled() {
		t.Error("Gemini must be enabled with an api key")
	}
	if cfg.Gemini.Model == "" {
		t.Error("model default missing")
	}
}

func TestBadWindowRejected(t *testing.T) {
	t.Setenv("KONTOBUCH_TRANSFER_WINDOW_DAYS", "soon")
	if _, err := Load(); err == nil {
		t.Error("Load() must reject a non-numeric window")
	}
}
