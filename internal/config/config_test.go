package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeTempConfig(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "providers.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadExpandsEnvAndAppliesDefaults(t *testing.T) {
	t.Setenv("TEST_PROJECT_TOKEN", "secret123")
	path := writeTempConfig(t, `
project_id: proj-1
network_id: "1"
project_token: ${TEST_PROJECT_TOKEN}
aggregator_url: https://aggregator.example/batch
defaults:
  timeout: 10s
  batch_window: 20ms
providers:
  - provider_id: alchemy
    url: https://eth.example/alchemy
    weight: 5
  - provider_id: infura
    url: https://eth.example/infura
    weight: 1
    timeout: 3s
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.ProjectToken != "secret123" {
		t.Fatalf("project token = %q, expected env expansion", cfg.ProjectToken)
	}
	if cfg.Providers[0].Timeout != 10*time.Second {
		t.Fatalf("provider 0 should inherit default timeout, got %v", cfg.Providers[0].Timeout)
	}
	if cfg.Providers[1].Timeout != 3*time.Second {
		t.Fatalf("provider 1 should keep its own timeout, got %v", cfg.Providers[1].Timeout)
	}
}

func TestValidate(t *testing.T) {
	cfg := &Config{}
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for empty config")
	}
	cfg = &Config{
		ProjectID: "p",
		Providers: []Provider{{ProviderID: "a", URL: "https://a"}},
	}
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for missing network_id")
	}
	cfg.NetworkID = "1"
	if err := cfg.Validate(); err != nil {
		t.Fatalf("expected valid config, got %v", err)
	}
}

func TestAggregatorEndpoint(t *testing.T) {
	cfg := &Config{ProjectID: "proj", NetworkID: "1"}
	if got := cfg.AggregatorEndpoint(); got != "https://rpc.direct.dev/v1/proj/1" {
		t.Fatalf("endpoint = %q", got)
	}

	cfg.ProjectToken = "tok/en"
	if got := cfg.AggregatorEndpoint(); got != "https://rpc.direct.dev/v1/proj.tok%2Fen/1" {
		t.Fatalf("endpoint with token = %q", got)
	}

	cfg.BaseURL = "https://agg.example/"
	if got := cfg.AggregatorEndpoint(); got != "https://agg.example/v1/proj.tok%2Fen/1" {
		t.Fatalf("endpoint with base override = %q", got)
	}

	cfg.AggregatorURL = "https://explicit.example/batch"
	if got := cfg.AggregatorEndpoint(); got != "https://explicit.example/batch" {
		t.Fatalf("explicit endpoint override = %q", got)
	}
}

func TestProviderNodes(t *testing.T) {
	cfg := &Config{Providers: []Provider{{ProviderID: "a", URL: "https://a", Weight: 3}}}
	nodes := cfg.ProviderNodes()
	if len(nodes) != 1 || nodes[0].ProviderID != "a" || nodes[0].Weighting != 3 {
		t.Fatalf("unexpected nodes: %+v", nodes)
	}
}
