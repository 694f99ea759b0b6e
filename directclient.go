// Package directclient is a client-side accelerator for JSON-RPC calls to
// blockchain nodes: it batches and de-duplicates concurrent requests, caches
// responses keyed by a stable request fingerprint (invalidated on block
// height change or TTL), streams batches to a remote aggregator over a
// binary Wire protocol (NDJSON when prefer_json is set), absorbs the aggregator's
// predictive prefetches, and falls back to direct provider nodes with
// exponential back-off when the aggregator is unavailable.
//
// The package re-exports the engine and its configuration; the internal
// packages hold the codec, framing, cache, and dispatch machinery.
//
//	cfg, err := directclient.LoadConfig("directclient.yaml")
//	...
//	client, err := directclient.New(cfg, nil)
//	...
//	resp, err := client.Fetch(ctx, directclient.Request{
//		ID: 1, JSONRPC: "2.0", Method: "eth_blockNumber", Params: []byte("[]"),
//	})
package directclient

import (
	"github.com/directdev/directclient/internal/config"
	"github.com/directdev/directclient/internal/engine"
	"github.com/directdev/directclient/internal/rpctypes"
)

// Re-exported vocabulary; see the internal packages for full documentation.
type (
	Config   = config.Config
	Provider = config.Provider
	Defaults = config.Defaults

	Request  = rpctypes.Request
	Response = rpctypes.Response
	RPCError = rpctypes.RPCError

	Engine = engine.Engine
	Logger = engine.Logger
	Stats  = engine.Stats

	ValidationError = engine.ValidationError
	TransportError  = engine.TransportError
	ProtocolError   = engine.ProtocolError
	SemanticError   = engine.SemanticError
)

// LoadConfig reads and env-expands a YAML configuration file.
func LoadConfig(path string) (*Config, error) { return config.Load(path) }

// New validates cfg and builds an engine. A nil logger discards all output.
func New(cfg *Config, logger Logger) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return engine.New(cfg, logger), nil
}
