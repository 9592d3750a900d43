package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadJSON5WithEnvExpansion(t *testing.T) {
	t.Setenv("TEST_API_KEY", "sk-secret")

	path := writeFile(t, "config.json5", `{
		// comments are allowed
		default_provider: "primary",
		providers: {
			primary: {
				kind: "openai",
				api_key: "${TEST_API_KEY}",
				model: "gpt-4o-mini",
			},
		},
		agent: {
			max_steps: 10,
			parallel_tool_calls: true,
		},
	}`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	p := cfg.Providers["primary"]
	if p.APIKey != "sk-secret" {
		t.Errorf("api_key = %q, want expanded env value", p.APIKey)
	}
	if cfg.Agent.MaxSteps != 10 || !cfg.Agent.ParallelToolCalls {
		t.Errorf("agent = %+v", cfg.Agent)
	}
	// Defaults survive partial configs.
	if cfg.Agent.MaxReflectionDepth != 3 {
		t.Errorf("max_reflection_depth = %d, want default 3", cfg.Agent.MaxReflectionDepth)
	}
}

func TestLoadYAML(t *testing.T) {
	path := writeFile(t, "config.yaml", `
default_provider: qwen
providers:
  qwen:
    kind: dashscope
    model: qwen-max
agent:
  max_steps: 7
trajectory:
  enabled: true
  path: runs.db
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Providers["qwen"].Kind != "dashscope" {
		t.Errorf("kind = %q", cfg.Providers["qwen"].Kind)
	}
	if !cfg.Trajectory.Enabled || cfg.Trajectory.Path != "runs.db" {
		t.Errorf("trajectory = %+v", cfg.Trajectory)
	}
}

func TestLoadRejectsUnknownDefaultProvider(t *testing.T) {
	path := writeFile(t, "config.json5", `{
		default_provider: "missing",
		providers: { primary: { model: "m" } },
	}`)
	if _, err := Load(path); err == nil {
		t.Error("Load should reject a default_provider that is not defined")
	}
}

func TestValidateRequiresModel(t *testing.T) {
	cfg := Default()
	cfg.Providers["p"] = ProviderConfig{Kind: "openai"}
	if err := cfg.Validate(); err == nil {
		t.Error("Validate should require a model per provider")
	}
}

func TestValidateTelemetryEndpoint(t *testing.T) {
	cfg := Default()
	cfg.Telemetry.Enabled = true
	if err := cfg.Validate(); err == nil {
		t.Error("Validate should require an endpoint when telemetry is enabled")
	}
}

func TestResolveProviderFallsBackToOnlyEntry(t *testing.T) {
	cfg := Default()
	cfg.Providers["solo"] = ProviderConfig{Kind: "openai", Model: "m1", APIKey: "k"}

	opts, err := cfg.ResolveProvider("")
	if err != nil {
		t.Fatalf("ResolveProvider: %v", err)
	}
	if opts.Name != "solo" || opts.Model != "m1" {
		t.Errorf("opts = %+v", opts)
	}

	if _, err := cfg.ResolveProvider("nope"); err == nil {
		t.Error("ResolveProvider should fail for an unknown name")
	}
}

func TestRunConfigMapsAgentSection(t *testing.T) {
	cfg := Default()
	cfg.DefaultProvider = "p"
	cfg.Providers["p"] = ProviderConfig{Model: "m2"}
	cfg.Agent.MaxSteps = 9
	cfg.Agent.ToolRateLimit = 5
	cfg.Agent.ToolRateWindowSeconds = 30

	rc := cfg.RunConfig("")
	if rc.Provider != "p" || rc.Model != "m2" || rc.MaxSteps != 9 {
		t.Errorf("rc = %+v", rc)
	}
	if rc.ToolRateWindow.Seconds() != 30 {
		t.Errorf("ToolRateWindow = %v, want 30s", rc.ToolRateWindow)
	}
}

func TestExpandEnvLeavesBareDollarAlone(t *testing.T) {
	t.Setenv("EXPAND_ME", "yes")
	got := ExpandEnv("a ${EXPAND_ME} and a $literal and ${MISSING_VAR_XYZ}")
	want := "a yes and a $literal and "
	if got != want {
		t.Errorf("ExpandEnv = %q, want %q", got, want)
	}
}
