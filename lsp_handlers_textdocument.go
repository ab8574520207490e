// lsp_handlers_textdocument.go
// Handlers for textDocument/* notifications and requests.
package nuls

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ============================================================================
// Document Synchronization
// ============================================================================

// handleDidOpen tracks the document and validates it immediately, bypassing
// the throttle so the first diagnostics appear without delay.
func (s *Server) handleDidOpen(ctx context.Context, params DidOpenTextDocumentParams) {
	doc := params.TextDocument
	s.logger.Info("Document opened", "uri", doc.URI, "language", doc.LanguageID, "version", doc.Version)
	s.store.Open(doc.URI, doc.LanguageID, doc.Version, doc.Text)
	go s.validateDocument(ctx, doc.URI)
}

// handleDidChange applies the edits synchronously, so later notifications and
// requests see the updated text, then kicks off a throttled validation.
func (s *Server) handleDidChange(ctx context.Context, params DidChangeTextDocumentParams) {
	uri := params.TextDocument.URI
	if err := s.store.ApplyChanges(uri, params.TextDocument.Version, params.ContentChanges); err != nil {
		s.logger.Warn("Ignoring didChange for untracked document", "uri", uri, "error", err)
		return
	}
	go s.throttledValidate(ctx, uri)
}

// handleDidClose drops all per-document state and clears the document's
// diagnostics on the client side.
func (s *Server) handleDidClose(ctx context.Context, params DidCloseTextDocumentParams) {
	uri := params.TextDocument.URI
	s.logger.Info("Document closed", "uri", uri)
	s.store.Close(uri)
	s.hints.drop(uri)
	if s.caps.CanPublishDiagnostics() {
		s.publishDiagnostics(ctx, uri, nil, []LspDiagnostic{})
	}
}

// ============================================================================
// Validation
// ============================================================================

// throttledValidate validates unless a validation completed within the
// throttle interval. The skip is permanent for this edit; the next didChange
// (or a request) reflects the newer text anyway. Only this path advances the
// throttle stamp, and only after the whole pass succeeds: unthrottled
// validations (didOpen, configuration change) and failed compiler calls never
// suppress the next attempt.
func (s *Server) throttledValidate(ctx context.Context, uri DocumentURI) {
	if !s.throttle.ShouldRun() {
		s.logger.Debug("Skipping validation, throttled", "uri", uri)
		return
	}
	if s.validateDocument(ctx, uri) {
		s.throttle.MarkDone()
	}
}

// validateDocument runs --ide-check over the document's current text and
// publishes the resulting diagnostics, caching any inlay hints for later
// textDocument/inlayHint requests. Reports whether the pass completed.
func (s *Server) validateDocument(ctx context.Context, uri DocumentURI) bool {
	if !s.caps.CanPublishDiagnostics() {
		s.logger.Debug("Client does not accept diagnostics, skipping validation", "uri", uri)
		return false
	}

	text, version, err := s.store.Snapshot(uri)
	if err != nil {
		s.logger.Debug("Skipping validation, document no longer tracked", "uri", uri)
		return false
	}

	settings, err := s.resolveSettings(ctx, uri)
	if err != nil {
		s.logger.Warn("Cannot resolve settings for validation", "uri", uri, "error", err)
		return false
	}

	resp, err := s.compiler.Run(ctx, CompilerQuery{Op: OpCheck, Text: text, Settings: settings, URI: uri})
	if err != nil {
		s.logger.Warn("Validation compiler call failed", "uri", uri, "error", err)
		// A missing executable is a setup problem the user can fix; surface it.
		if errors.Is(err, ErrCompilerSpawn) {
			s.showMessage(ctx, MessageTypeError, fmt.Sprintf("Cannot run the Nushell executable %q: check nushellExecutablePath.", settings.ExecutablePath))
		}
		return false
	}

	checks := decodeIdeChecks(resp.Stdout)
	diagnostics := diagnosticsFromChecks(checks, s.store, uri)

	if settings.Hints.ShowInferredTypes {
		s.hints.set(uri, inlayHintsFromChecks(checks, s.store, uri))
	} else {
		s.hints.set(uri, []InlayHint{})
	}

	s.publishDiagnostics(ctx, uri, &version, diagnostics)
	s.logger.Debug("Validation complete", "uri", uri, "version", version, "diagnostics", len(diagnostics))
	return true
}

// ============================================================================
// Language Feature Requests
// ============================================================================

// resolveSettings fetches the effective settings for a document, using the
// server itself as the workspace/configuration puller.
func (s *Server) resolveSettings(ctx context.Context, uri DocumentURI) (Settings, error) {
	return s.settings.Get(ctx, uri, s.caps.CanLookupConfiguration(), s)
}

// queryAt snapshots the document, resolves settings, and runs one positioned
// compiler query. Shared by completion, hover and definition.
func (s *Server) queryAt(ctx context.Context, op IdeOperation, uri DocumentURI, pos LSPPosition) (*CompilerResponse, error) {
	text, offset, err := s.store.TextAndOffset(uri, pos)
	if err != nil {
		return nil, err
	}
	settings, err := s.resolveSettings(ctx, uri)
	if err != nil {
		return nil, err
	}
	return s.compiler.Run(ctx, CompilerQuery{Op: op, Text: text, Offset: offset, Settings: settings, URI: uri})
}

func (s *Server) handleCompletion(ctx context.Context, params CompletionParams) (*CompletionList, error) {
	resp, err := s.queryAt(ctx, OpComplete, params.TextDocument.URI, params.Position)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(resp.Stdout) == "" {
		return &CompletionList{IsIncomplete: false, Items: []CompletionItem{}}, nil
	}
	return completionListFromStdout(resp.Stdout)
}

func (s *Server) handleHover(ctx context.Context, params HoverParams) (*HoverResult, error) {
	resp, err := s.queryAt(ctx, OpHover, params.TextDocument.URI, params.Position)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(resp.Stdout) == "" {
		return nil, nil
	}
	return hoverResultFromStdout(resp.Stdout, s.store, params.TextDocument.URI)
}

func (s *Server) handleDefinition(ctx context.Context, params DefinitionParams) (*Location, error) {
	resp, err := s.queryAt(ctx, OpGotoDef, params.TextDocument.URI, params.Position)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(resp.Stdout) == "" {
		return nil, nil
	}
	return locationFromGotoDef(resp.Stdout, s.store, params.TextDocument.URI)
}

// handleInlayHint serves the hints cached by the most recent validation; no
// compiler call happens here.
func (s *Server) handleInlayHint(ctx context.Context, params InlayHintParams) ([]InlayHint, error) {
	uri := params.TextDocument.URI
	if !s.store.Has(uri) {
		return []InlayHint{}, nil
	}
	hints := s.hints.get(uri)
	if hints == nil {
		return []InlayHint{}, nil
	}
	return hints, nil
}
