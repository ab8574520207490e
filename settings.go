// settings.go
// Resolves effective per-document settings under the negotiated capabilities.
package nuls

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/dgraph-io/ristretto"
)

// configurationPuller performs the workspace/configuration round-trip to the
// client. The LSP server implements it over its jsonrpc2 connection.
type configurationPuller interface {
	Configuration(ctx context.Context, items []ConfigurationItem) ([]json.RawMessage, error)
}

// SettingsResolver resolves the effective Settings for a document. When the
// client supports per-resource configuration lookup, resolved values are kept
// in a per-URI cache that is cleared wholesale on every configuration change;
// otherwise a single global settings value is used.
type SettingsResolver struct {
	logger *slog.Logger

	globalMu sync.RWMutex
	global   Settings

	cache *ristretto.Cache
}

// NewSettingsResolver creates a resolver with default global settings and an
// empty per-URI cache.
func NewSettingsResolver(logger *slog.Logger) (*SettingsResolver, error) {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	cache, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: 1 << 12,
		MaxCost:     1 << 10, // cost 1 per entry; far beyond any plausible open-document count
		BufferItems: 64,
		Metrics:     true,
	})
	if err != nil {
		return nil, fmt.Errorf("cannot create settings cache: %w", err)
	}
	return &SettingsResolver{
		logger: logger,
		global: DefaultSettings(),
		cache:  cache,
	}, nil
}

// Global returns the current global settings value.
func (r *SettingsResolver) Global() Settings {
	r.globalMu.RLock()
	defer r.globalMu.RUnlock()
	return r.global
}

// Metrics exposes the per-URI cache metrics for expvar publishing.
func (r *SettingsResolver) Metrics() *ristretto.Metrics {
	return r.cache.Metrics
}

// Close releases the cache resources.
func (r *SettingsResolver) Close() {
	r.cache.Close()
}

// Get resolves the effective settings for uri.
//
// Without per-resource lookup support the global value is returned regardless
// of cache state. With it, a cache hit wins; otherwise the configuration is
// pulled from the client scoped to uri, parsed (defaults on parse failure),
// cached, and returned. An empty pull yields defaults without caching.
func (r *SettingsResolver) Get(ctx context.Context, uri DocumentURI, canLookup bool, puller configurationPuller) (Settings, error) {
	if !canLookup {
		r.logger.Debug("No per-document settings lookup capability, returning global settings", "uri", uri)
		return r.Global(), nil
	}

	if cached, ok := r.cache.Get(string(uri)); ok {
		if settings, ok := cached.(Settings); ok {
			return settings, nil
		}
	}

	r.logger.Debug("Fetching per-document settings from client", "uri", uri)
	values, err := puller.Configuration(ctx, []ConfigurationItem{{ScopeURI: uri, Section: configSection}})
	if err != nil {
		return Settings{}, fmt.Errorf("%w: %w", ErrSettingsLookup, err)
	}
	for _, value := range values {
		if len(value) == 0 || string(value) == "null" {
			continue
		}
		settings := settingsFromJSON(value)
		r.cache.Set(string(uri), settings, 1)
		r.cache.Wait()
		return settings, nil
	}

	r.logger.Debug("Client returned no configuration, falling back to defaults", "uri", uri)
	return DefaultSettings(), nil
}

// Invalidate handles a workspace/didChangeConfiguration payload. With
// per-resource lookup the entire cache is dropped (fresh values are pulled
// lazily); without it the pushed payload replaces the global value, parsing
// to defaults on failure.
func (r *SettingsResolver) Invalidate(rawSettings json.RawMessage, canLookup bool) {
	if canLookup {
		r.cache.Clear()
		r.logger.Info("Cleared per-document settings cache")
		return
	}

	var payload struct {
		NushellLanguageServer json.RawMessage `json:"nushellLanguageServer"`
	}
	if err := json.Unmarshal(rawSettings, &payload); err != nil {
		r.logger.Warn("Cannot parse didChangeConfiguration payload, using defaults", "error", err)
		payload.NushellLanguageServer = nil
	}
	settings := settingsFromJSON(payload.NushellLanguageServer)

	r.globalMu.Lock()
	r.global = settings
	r.globalMu.Unlock()
	r.logger.Info("Replaced global settings from didChangeConfiguration payload")
}
