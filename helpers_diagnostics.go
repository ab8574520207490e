// helpers_diagnostics.go
// Decodes --ide-check output and maps it to LSP diagnostics and inlay hints.
package nuls

import (
	"bufio"
	"encoding/json"
	"log/slog"
	"strings"
	"sync"
)

// decodeIdeChecks parses newline-delimited --ide-check output. Each line is a
// JSON object tagged "diagnostic" or "hint"; lines that fail to parse and
// unknown tags are silently dropped.
func decodeIdeChecks(stdout string) []IdeCheck {
	var checks []IdeCheck
	scanner := bufio.NewScanner(strings.NewReader(stdout))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var tagged struct {
			Type string `json:"type"`
		}
		if err := json.Unmarshal([]byte(line), &tagged); err != nil {
			continue
		}
		switch tagged.Type {
		case "diagnostic":
			var diag IdeDiagnostic
			if err := json.Unmarshal([]byte(line), &diag); err != nil {
				continue
			}
			checks = append(checks, IdeCheck{Diagnostic: &diag})
		case "hint":
			var hint IdeHint
			if err := json.Unmarshal([]byte(line), &hint); err != nil {
				continue
			}
			checks = append(checks, IdeCheck{Hint: &hint})
		}
	}
	return checks
}

// mapIdeSeverity maps the compiler's severity names onto LSP severities.
func mapIdeSeverity(severity string) LspDiagnosticSeverity {
	switch strings.ToLower(severity) {
	case "error":
		return LspSeverityError
	case "warning":
		return LspSeverityWarning
	case "information":
		return LspSeverityInfo
	case "hint":
		return LspSeverityHint
	default:
		slog.Warn("Unknown compiler diagnostic severity, defaulting to Error", "severity", severity)
		return LspSeverityError
	}
}

// diagnosticsFromChecks converts the diagnostic-tagged checks into LSP
// diagnostics, resolving byte spans through the source document's conversion
// table.
func diagnosticsFromChecks(checks []IdeCheck, store *DocumentStore, uri DocumentURI) []LspDiagnostic {
	diagnostics := []LspDiagnostic{}
	for _, check := range checks {
		if check.Diagnostic == nil {
			continue
		}
		rng, err := store.RangeFor(uri, check.Diagnostic.Span)
		if err != nil {
			// Document closed between validation and mapping; drop the rest.
			break
		}
		diagnostics = append(diagnostics, LspDiagnostic{
			Range:    rng,
			Severity: mapIdeSeverity(check.Diagnostic.Severity),
			Source:   "nuls",
			Message:  check.Diagnostic.Message,
		})
	}
	return diagnostics
}

// inlayHintsFromChecks converts the hint-tagged checks into type-kind inlay
// hints anchored at the end of the hinted span and labeled with the inferred
// type name.
func inlayHintsFromChecks(checks []IdeCheck, store *DocumentStore, uri DocumentURI) []InlayHint {
	hints := []InlayHint{}
	for _, check := range checks {
		if check.Hint == nil {
			continue
		}
		pos, err := store.PositionAt(uri, check.Hint.Position.End)
		if err != nil {
			break
		}
		hints = append(hints, InlayHint{
			Position: pos,
			Label:    ": " + check.Hint.Typename,
			Kind:     InlayHintKindType,
		})
	}
	return hints
}

// inlayHintCache holds the hints produced by the most recent validation of
// each document; textDocument/inlayHint is served from here without another
// compiler call.
type inlayHintCache struct {
	mu    sync.RWMutex
	hints map[DocumentURI][]InlayHint
}

func newInlayHintCache() *inlayHintCache {
	return &inlayHintCache{hints: make(map[DocumentURI][]InlayHint)}
}

func (c *inlayHintCache) set(uri DocumentURI, hints []InlayHint) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.hints[uri] = hints
}

func (c *inlayHintCache) get(uri DocumentURI) []InlayHint {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.hints[uri]
}

func (c *inlayHintCache) drop(uri DocumentURI) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.hints, uri)
}
