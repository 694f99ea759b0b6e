// Package config loads the engine's settings from a YAML file, expanding
// ${VAR} references against the process environment first so API keys and
// project tokens never need to live in the file itself.
//
// ARCHITECTURE POSITION
//
//	.env file (optional) --LoadEnv()--> environment
//	environment ----------Load()------> Config{Providers, AggregatorURL, Defaults}
//	Config -------------------------------> internal/engine.New
package config

import (
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/directdev/directclient/internal/rpctypes"
)

// DefaultBaseURL is the aggregator host used when base_url is not set.
const DefaultBaseURL = "https://rpc.direct.dev"

// Config is the top-level configuration, the entire contents of the
// engine's YAML config file.
type Config struct {
	ProjectID     string     `yaml:"project_id"`
	NetworkID     string     `yaml:"network_id"`
	ProjectToken  string     `yaml:"project_token"`
	BaseURL       string     `yaml:"base_url,omitempty"`       // aggregator host override
	AggregatorURL string     `yaml:"aggregator_url,omitempty"` // full-endpoint override, skips URL construction entirely
	BeaconURL     string     `yaml:"beacon_url,omitempty"`
	LogLevel      string     `yaml:"log_level,omitempty"`
	DevMode       bool       `yaml:"dev_mode,omitempty"`    // bypass the aggregator, every request goes straight to providers
	PreferJSON    bool       `yaml:"prefer_json,omitempty"` // use NDJSON instead of the Wire binary protocol
	PredictOnTick bool       `yaml:"predict_on_tick,omitempty"`
	Providers     []Provider `yaml:"providers"`
	Defaults      Defaults   `yaml:"defaults"`
}

// Provider is one upstream RPC endpoint eligible for direct fallback
// dispatch when the aggregator is unreachable or backed off.
//
// Example YAML:
//
//	- provider_id: alchemy
//	  url: https://eth-mainnet.g.alchemy.com/v2/${ALCHEMY_API_KEY}
//	  weight: 5
type Provider struct {
	ProviderID string            `yaml:"provider_id"`
	URL        string            `yaml:"url"`
	Weight     float64           `yaml:"weight,omitempty"`
	Headers    map[string]string `yaml:"headers,omitempty"`
	Timeout    time.Duration     `yaml:"timeout,omitempty"`
}

// Defaults holds settings shared across providers and the batch scheduler.
type Defaults struct {
	Timeout       time.Duration `yaml:"timeout"`
	BatchWindow   time.Duration `yaml:"batch_window"`   // 0 or negative dispatches immediately
	ResponseCache int           `yaml:"response_cache"` // max response-cache entries, 0 = unbounded
}

// Load reads, env-expands, and parses path, then applies default timeout
// inheritance to any provider that didn't specify its own.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(data))), &cfg); err != nil {
		return nil, err
	}

	for i := range cfg.Providers {
		if cfg.Providers[i].Timeout == 0 {
			cfg.Providers[i].Timeout = cfg.Defaults.Timeout
		}
	}
	return &cfg, nil
}

// Validate reports the first configuration error found: a missing project
// or network id, or a provider list with no entries at all (direct fallback
// has nowhere to go).
func (c *Config) Validate() error {
	if c.ProjectID == "" {
		return fmt.Errorf("config: project_id is required")
	}
	if c.NetworkID == "" {
		return fmt.Errorf("config: network_id is required")
	}
	if len(c.Providers) == 0 {
		return fmt.Errorf("config: at least one provider is required for direct fallback")
	}
	for i, p := range c.Providers {
		if p.URL == "" {
			return fmt.Errorf("config: providers[%d] (%s) has no url", i, p.ProviderID)
		}
	}
	return nil
}

// AggregatorEndpoint returns the URL every batch dispatch POSTs to:
// {base_url}/v1/{project_id[.project_token]}/{network_id}, each path
// component URL-escaped. An explicit aggregator_url overrides the
// constructed form wholesale.
func (c *Config) AggregatorEndpoint() string {
	if c.AggregatorURL != "" {
		return c.AggregatorURL
	}
	base := c.BaseURL
	if base == "" {
		base = DefaultBaseURL
	}
	project := c.ProjectID
	if c.ProjectToken != "" {
		project += "." + c.ProjectToken
	}
	return strings.TrimSuffix(base, "/") + "/v1/" + url.PathEscape(project) + "/" + url.PathEscape(c.NetworkID)
}

// ProviderNodes converts the configured providers into the engine's
// provider-pool vocabulary.
func (c *Config) ProviderNodes() []rpctypes.ProviderNode {
	out := make([]rpctypes.ProviderNode, 0, len(c.Providers))
	for _, p := range c.Providers {
		out = append(out, rpctypes.ProviderNode{
			URL: p.URL, ProviderID: p.ProviderID, Weighting: p.Weight, Headers: p.Headers,
		})
	}
	return out
}

// LoadEnv reads a .env file from the current working directory and sets
// each KEY=VALUE pair as an environment variable; a missing file is not an
// error since production deployments set the environment directly.
func LoadEnv() {
	data, _ := os.ReadFile(".env")
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if parts := strings.SplitN(line, "=", 2); len(parts) == 2 {
			key := strings.TrimSpace(parts[0])
			value := strings.Trim(strings.TrimSpace(parts[1]), `"'`)
			os.Setenv(key, value)
		}
	}
}
