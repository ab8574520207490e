// helpers_results.go
// Decodes --ide-complete / --ide-hover / --ide-goto-def output and maps it to
// LSP result shapes.
package nuls

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
)

// completionListFromStdout parses --ide-complete output into a completion
// list. Labels containing "(" present as callables; everything else as plain
// values. Data carries the 1-based position of the item in the compiler's
// ordering.
func completionListFromStdout(stdout string) (*CompletionList, error) {
	var payload IdeComplete
	if err := json.Unmarshal([]byte(stdout), &payload); err != nil {
		return nil, fmt.Errorf("%w: ide-complete: %w", ErrResponseParse, err)
	}
	items := make([]CompletionItem, 0, len(payload.Completions))
	for i, label := range payload.Completions {
		kind := CompletionItemKindField
		if strings.Contains(label, "(") {
			kind = CompletionItemKindFunction
		}
		items = append(items, CompletionItem{
			Label: label,
			Kind:  kind,
			Data:  i + 1,
		})
	}
	return &CompletionList{IsIncomplete: false, Items: items}, nil
}

// hoverResultFromStdout parses --ide-hover output. The compiler may or may
// not report a span; without one the client anchors the hover at the request
// position. The hover text is passed through verbatim.
func hoverResultFromStdout(stdout string, store *DocumentStore, uri DocumentURI) (*HoverResult, error) {
	var payload IdeHover
	if err := json.Unmarshal([]byte(stdout), &payload); err != nil {
		return nil, fmt.Errorf("%w: ide-hover: %w", ErrResponseParse, err)
	}
	result := &HoverResult{
		Contents: MarkupContent{
			Kind:  MarkupKindMarkdown,
			Value: payload.Hover,
		},
	}
	if payload.Span != nil {
		rng, err := store.RangeFor(uri, *payload.Span)
		if err == nil {
			result.Range = &rng
		}
	}
	return result, nil
}

// locationFromGotoDef parses --ide-goto-def output into a source location.
//
// A nil location (with nil error) means the compiler found no definition: an
// empty file field, the internal prelude sentinel, or a file that does not
// exist on disk. When the target file is itself a tracked document its own
// position table resolves the span, so definitions in edited-but-unsaved
// buffers land correctly; otherwise the source document's table is used as an
// approximation.
func locationFromGotoDef(stdout string, store *DocumentStore, sourceURI DocumentURI) (*Location, error) {
	var payload IdeGotoDef
	if err := json.Unmarshal([]byte(stdout), &payload); err != nil {
		return nil, fmt.Errorf("%w: ide-goto-def: %w", ErrResponseParse, err)
	}
	if payload.File == "" || payload.File == preludeSentinel {
		return nil, nil
	}
	if _, err := os.Stat(payload.File); err != nil {
		return nil, nil
	}
	uriStr, err := PathToURI(payload.File)
	if err != nil {
		return nil, err
	}
	targetURI := DocumentURI(uriStr)
	span := Span{Start: payload.Start, End: payload.End}
	mappingURI := sourceURI
	if store.Has(targetURI) {
		mappingURI = targetURI
	}
	rng, err := store.RangeFor(mappingURI, span)
	if err != nil {
		return nil, err
	}
	return &Location{URI: targetURI, Range: rng}, nil
}
