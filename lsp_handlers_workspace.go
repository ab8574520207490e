// lsp_handlers_workspace.go
// Handlers for workspace/* notifications.
package nuls

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// maxConcurrentRevalidations bounds the fan-out of compiler processes after a
// configuration change.
const maxConcurrentRevalidations = 4

// handleDidChangeConfiguration invalidates settings state and revalidates
// every open document under the new configuration. The fan-out runs off the
// read loop: each validation may round-trip workspace/configuration.
func (s *Server) handleDidChangeConfiguration(ctx context.Context, params DidChangeConfigurationParams) {
	s.logger.Info("Configuration changed")
	s.settings.Invalidate(params.Settings, s.caps.CanLookupConfiguration())

	uris := s.store.URIs()
	if len(uris) == 0 {
		return
	}
	go func() {
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(maxConcurrentRevalidations)
		for _, uri := range uris {
			uri := uri
			g.Go(func() error {
				s.validateDocument(gctx, uri)
				return nil
			})
		}
		_ = g.Wait()
		s.logger.Debug("Revalidated open documents after configuration change", "count", len(uris))
	}()
}
