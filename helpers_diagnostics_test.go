// helpers_diagnostics_test.go
package nuls

import "testing"

func TestDecodeIdeChecks(t *testing.T) {
	stdout := `{"type": "diagnostic", "message": "unknown command", "severity": "Error", "span": {"start": 33, "end": 37}}
not json at all
{"type": "telemetry", "payload": {}}
{"type": "hint", "position": {"start": 19, "end": 31}, "typename": "list<any>"}

{"type": "diagnostic", "message": "deprecated", "severity": "Warning", "span": {"start": 0, "end": 2}}
`
	checks := decodeIdeChecks(stdout)
	if len(checks) != 3 {
		t.Fatalf("decodeIdeChecks() returned %d checks, want 3 (bad lines dropped)", len(checks))
	}
	if checks[0].Diagnostic == nil || checks[0].Diagnostic.Message != "unknown command" {
		t.Errorf("first check = %+v, want unknown-command diagnostic", checks[0])
	}
	if checks[1].Hint == nil || checks[1].Hint.Typename != "list<any>" {
		t.Errorf("second check = %+v, want list<any> hint", checks[1])
	}
	if checks[2].Diagnostic == nil || checks[2].Diagnostic.Severity != "Warning" {
		t.Errorf("third check = %+v, want warning diagnostic", checks[2])
	}

	t.Run("Empty output", func(t *testing.T) {
		if got := decodeIdeChecks(""); len(got) != 0 {
			t.Errorf("decodeIdeChecks(\"\") = %v, want none", got)
		}
	})
}

func TestMapIdeSeverity(t *testing.T) {
	tests := []struct {
		in   string
		want LspDiagnosticSeverity
	}{
		{"Error", LspSeverityError},
		{"error", LspSeverityError},
		{"WARNING", LspSeverityWarning},
		{"Information", LspSeverityInfo},
		{"Hint", LspSeverityHint},
		{"Catastrophic", LspSeverityError}, // unknown defaults to Error
		{"", LspSeverityError},
	}
	for _, tt := range tests {
		if got := mapIdeSeverity(tt.in); got != tt.want {
			t.Errorf("mapIdeSeverity(%q) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestDiagnosticsFromChecks(t *testing.T) {
	store := NewDocumentStore()
	uri := DocumentURI("file:///tmp/diag.nu")
	store.Open(uri, "nushell", 1, scriptFixture)

	checks := []IdeCheck{
		{Diagnostic: &IdeDiagnostic{Message: "unknown command", Severity: "Error", Span: Span{Start: 33, End: 37}}},
		{Hint: &IdeHint{Position: Span{Start: 19, End: 31}, Typename: "nothing"}},
		{Diagnostic: &IdeDiagnostic{Message: "style", Severity: "Hint", Span: Span{Start: 0, End: 2}}},
	}
	diagnostics := diagnosticsFromChecks(checks, store, uri)
	if len(diagnostics) != 2 {
		t.Fatalf("got %d diagnostics, want 2 (hints excluded)", len(diagnostics))
	}
	first := diagnostics[0]
	if first.Message != "unknown command" || first.Severity != LspSeverityError || first.Source != "nuls" {
		t.Errorf("first diagnostic = %+v", first)
	}
	wantRange := LSPRange{Start: LSPPosition{Line: 2, Character: 0}, End: LSPPosition{Line: 2, Character: 4}}
	if first.Range != wantRange {
		t.Errorf("first range = %+v, want %+v", first.Range, wantRange)
	}

	t.Run("Untracked document yields empty list", func(t *testing.T) {
		got := diagnosticsFromChecks(checks, store, "file:///tmp/gone.nu")
		if len(got) != 0 {
			t.Errorf("got %d diagnostics for untracked document", len(got))
		}
	})
}

func TestInlayHintsFromChecks(t *testing.T) {
	store := NewDocumentStore()
	uri := DocumentURI("file:///tmp/hints.nu")
	store.Open(uri, "nushell", 1, scriptFixture)

	checks := []IdeCheck{
		{Hint: &IdeHint{Position: Span{Start: 19, End: 31}, Typename: "list<any>"}},
		{Diagnostic: &IdeDiagnostic{Message: "noise", Severity: "Error", Span: Span{Start: 0, End: 1}}},
	}
	hints := inlayHintsFromChecks(checks, store, uri)
	if len(hints) != 1 {
		t.Fatalf("got %d hints, want 1", len(hints))
	}
	hint := hints[0]
	if hint.Label != ": list<any>" {
		t.Errorf("label = %q, want %q", hint.Label, ": list<any>")
	}
	if hint.Kind != InlayHintKindType {
		t.Errorf("kind = %d, want type kind", hint.Kind)
	}
	// Anchored at the end of the hinted span.
	if hint.Position != (LSPPosition{Line: 1, Character: 12}) {
		t.Errorf("position = %+v, want line 1 char 12", hint.Position)
	}
}

func TestInlayHintCache(t *testing.T) {
	cache := newInlayHintCache()
	uri := DocumentURI("file:///tmp/cache.nu")

	if got := cache.get(uri); got != nil {
		t.Errorf("get() on empty cache = %v", got)
	}
	hints := []InlayHint{{Label: ": int", Kind: InlayHintKindType}}
	cache.set(uri, hints)
	if got := cache.get(uri); len(got) != 1 || got[0].Label != ": int" {
		t.Errorf("get() = %v, want cached hints", got)
	}
	cache.drop(uri)
	if got := cache.get(uri); got != nil {
		t.Errorf("get() after drop = %v", got)
	}
}
