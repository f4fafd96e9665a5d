package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

var allKeys = []string{
	"COHORT_PORT", "LOG_LEVEL", "COHORT_PROVIDER", "COHORT_API_KEY", "COHORT_MODEL",
	"COHORT_BASE_URL", "COHORT_MODEL_RETRIES", "COHORT_CHUNK_SIZE", "COHORT_TERMINATION",
	"COHORT_MAX_TURNS", "COHORT_CHUNK_TIMEOUT", "COHORT_CONCURRENCY", "COHORT_VALIDITY",
	"COHORT_PERSONA_FORMAT", "COHORT_OUTPUT_DIR", "COHORT_STREAM_FILE", "COHORT_STREAM_FORMAT",
	"COHORT_TEAM_FILE", "DATABASE_URL", "NATS_URL", "NATS_TOKEN", "SLACK_BOT_TOKEN",
	"SLACK_CHANNEL", "COHORT_API_TOKEN",
}

func TestLoad_Defaults(t *testing.T) {
	for _, key := range allKeys {
		t.Setenv(key, "")
	}

	cfg := Load()

	if cfg.Port != 8760 {
		t.Errorf("expected default port 8760, got %d", cfg.Port)
	}
	if cfg.Provider != "openai" {
		t.Errorf("expected default provider openai, got %s", cfg.Provider)
	}
	if cfg.Model != "gemini-2.0-flash" {
		t.Errorf("expected default model, got %s", cfg.Model)
	}
	if cfg.ChunkSize != 1000 {
		t.Errorf("expected default chunk size 1000, got %d", cfg.ChunkSize)
	}
	if cfg.Termination != "TERMINATE" {
		t.Errorf("expected default termination marker, got %s", cfg.Termination)
	}
	if cfg.ChunkTimeout != 10*time.Minute {
		t.Errorf("expected default chunk timeout 10m, got %s", cfg.ChunkTimeout)
	}
	if cfg.Validity != "strict" {
		t.Errorf("expected default validity strict, got %s", cfg.Validity)
	}
	if cfg.PersonaFormat != "zip" {
		t.Errorf("expected default persona format zip, got %s", cfg.PersonaFormat)
	}
	if cfg.StreamFile != "" {
		t.Errorf("expected streaming disabled by default, got %s", cfg.StreamFile)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("defaults should validate: %v", err)
	}
}

func TestLoad_CustomValues(t *testing.T) {
	t.Setenv("COHORT_PORT", "9999")
	t.Setenv("COHORT_PROVIDER", "anthropic")
	t.Setenv("COHORT_API_KEY", "sk-test")
	t.Setenv("COHORT_CHUNK_SIZE", "50")
	t.Setenv("COHORT_CHUNK_TIMEOUT", "90s")
	t.Setenv("COHORT_VALIDITY", "lenient")
	t.Setenv("COHORT_PERSONA_FORMAT", "json")
	t.Setenv("DATABASE_URL", "sqlite:/tmp/cohort.db")

	cfg := Load()

	if cfg.Port != 9999 {
		t.Errorf("expected port 9999, got %d", cfg.Port)
	}
	if cfg.Provider != "anthropic" {
		t.Errorf("expected provider anthropic, got %s", cfg.Provider)
	}
	if cfg.APIKey != "sk-test" {
		t.Errorf("expected api key, got %s", cfg.APIKey)
	}
	if cfg.ChunkSize != 50 {
		t.Errorf("expected chunk size 50, got %d", cfg.ChunkSize)
	}
	if cfg.ChunkTimeout != 90*time.Second {
		t.Errorf("expected chunk timeout 90s, got %s", cfg.ChunkTimeout)
	}
	if cfg.Validity != "lenient" {
		t.Errorf("expected lenient validity, got %s", cfg.Validity)
	}
	if cfg.PersonaFormat != "json" {
		t.Errorf("expected json format, got %s", cfg.PersonaFormat)
	}
	if cfg.DatabaseURL != "sqlite:/tmp/cohort.db" {
		t.Errorf("expected database url, got %s", cfg.DatabaseURL)
	}
}

func TestLoad_InvalidNumbers(t *testing.T) {
	t.Setenv("COHORT_PORT", "notanumber")
	t.Setenv("COHORT_CHUNK_TIMEOUT", "soon")

	cfg := Load()

	if cfg.Port != 8760 {
		t.Errorf("expected default port on invalid value, got %d", cfg.Port)
	}
	if cfg.ChunkTimeout != 10*time.Minute {
		t.Errorf("expected default timeout on invalid value, got %s", cfg.ChunkTimeout)
	}
}

func TestValidate_Rejects(t *testing.T) {
	for _, key := range allKeys {
		t.Setenv(key, "")
	}
	base := Load()

	cases := map[string]func(c *Config){
		"chunk size":  func(c *Config) { c.ChunkSize = 0 },
		"max turns":   func(c *Config) { c.MaxTurns = 0 },
		"concurrency": func(c *Config) { c.Concurrency = -1 },
		"termination": func(c *Config) { c.Termination = "  " },
		"provider":    func(c *Config) { c.Provider = "ollama" },
		"validity":    func(c *Config) { c.Validity = "loose" },
		"format":      func(c *Config) { c.PersonaFormat = "xml" },
		"stream":      func(c *Config) { c.StreamFormat = "csv" },
	}
	for name, mutate := range cases {
		cfg := base
		mutate(&cfg)
		if err := cfg.Validate(); err == nil {
			t.Errorf("%s: expected validation error", name)
		}
	}
}

func TestValidate_IgnoresCaseAndSpace(t *testing.T) {
	for _, key := range allKeys {
		t.Setenv(key, "")
	}
	cfg := Load()
	cfg.Provider = " Anthropic"
	cfg.Validity = "LENIENT"
	cfg.PersonaFormat = "Zip "
	cfg.StreamFormat = "JSON"

	if err := cfg.Validate(); err != nil {
		t.Fatalf("mixed-case settings should validate: %v", err)
	}
	cfg.Normalize()
	if cfg.Provider != "anthropic" || cfg.Validity != "lenient" || cfg.PersonaFormat != "zip" || cfg.StreamFormat != "json" {
		t.Errorf("settings not normalized: %+v", cfg)
	}
}

func TestLoadDotenv(t *testing.T) {
	for _, key := range allKeys {
		t.Setenv(key, "")
	}
	os.Unsetenv("COHORT_CHUNK_SIZE")
	os.Unsetenv("COHORT_VALIDITY")
	t.Cleanup(func() {
		os.Unsetenv("COHORT_CHUNK_SIZE")
		os.Unsetenv("COHORT_VALIDITY")
	})
	t.Setenv("COHORT_MODEL", "from-env")

	path := filepath.Join(t.TempDir(), ".env")
	body := "COHORT_CHUNK_SIZE=250\nCOHORT_VALIDITY=lenient\nCOHORT_MODEL=from-file\n"
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := LoadDotenv(path); err != nil {
		t.Fatalf("LoadDotenv: %v", err)
	}

	cfg := Load()
	if cfg.ChunkSize != 250 || cfg.Validity != "lenient" {
		t.Errorf("env file not applied: %+v", cfg)
	}
	if cfg.Model != "from-env" {
		t.Errorf("process env should win over the file, got %q", cfg.Model)
	}
}

func TestLoadDotenv_MissingFile(t *testing.T) {
	if err := LoadDotenv(filepath.Join(t.TempDir(), ".env")); err != nil {
		t.Errorf("missing env file should be ignored: %v", err)
	}
}

func TestLoadTeam_DefaultWhenNoPath(t *testing.T) {
	team, err := LoadTeam("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []string{"data_agent", "assistant", "report_generator"}
	if len(team.Agents) != len(want) {
		t.Fatalf("expected %d agents, got %d", len(want), len(team.Agents))
	}
	for i, name := range want {
		if team.Agents[i].Name != name {
			t.Errorf("agent %d: expected %s, got %s", i, name, team.Agents[i].Name)
		}
	}
}

func TestLoadTeam_FromYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "team.yaml")
	yml := `agents:
  - name: data_agent
    system_message: Summarise the survey rows.
  - name: web_surfer
  - name: report_generator
`
	if err := os.WriteFile(path, []byte(yml), 0o644); err != nil {
		t.Fatal(err)
	}

	team, err := LoadTeam(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(team.Agents) != 3 {
		t.Fatalf("expected 3 agents, got %d", len(team.Agents))
	}
	if team.Agents[0].SystemMessage != "Summarise the survey rows." {
		t.Errorf("system message not read: %q", team.Agents[0].SystemMessage)
	}
	if team.Agents[1].SystemMessage == "" {
		t.Error("expected default system message to be applied")
	}
}

func TestLoadTeam_DuplicateName(t *testing.T) {
	path := filepath.Join(t.TempDir(), "team.yaml")
	yml := "agents:\n  - name: a\n  - name: a\n"
	if err := os.WriteFile(path, []byte(yml), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadTeam(path); err == nil {
		t.Fatal("expected error for duplicate agent names")
	}
}

func TestLoadTeam_FromTOML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "team.toml")
	doc := `[[agents]]
name = "data_agent"
system_message = "整理問卷資料。"

[[agents]]
name = "report_generator"
`
	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		t.Fatal(err)
	}

	team, err := LoadTeam(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(team.Agents) != 2 || team.Agents[1].Name != "report_generator" {
		t.Fatalf("unexpected roster: %+v", team.Agents)
	}
	if team.Agents[0].SystemMessage != "整理問卷資料。" {
		t.Errorf("system message not read: %q", team.Agents[0].SystemMessage)
	}
	if team.Agents[1].SystemMessage != defaultSystemMessage {
		t.Errorf("expected default system message, got %q", team.Agents[1].SystemMessage)
	}
}

func TestLoadTeam_InvalidTOML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "team.toml")
	if err := os.WriteFile(path, []byte("[[agents]\nname ="), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadTeam(path); err == nil {
		t.Fatal("expected parse error")
	}
}
