// document_store.go
// Tracks open documents and converts between the editor's UTF-16 positions
// and the compiler's byte offsets.
package nuls

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

// TextDocument is one open document. It is mutated only under the store's
// write lock; accessors hand out copies so no caller holds document state
// across a blocking operation.
type TextDocument struct {
	uri        DocumentURI
	languageID string
	version    int
	text       string

	// lineBreaks holds findLineBreaks(text). Rebuilt eagerly on every edit,
	// under the store's write lock, so read-locked conversions never mutate.
	lineBreaks []int
}

func newTextDocument(uri DocumentURI, languageID string, version int, text string) *TextDocument {
	return &TextDocument{
		uri:        uri,
		languageID: languageID,
		version:    version,
		text:       text,
		lineBreaks: findLineBreaks(text),
	}
}

// findLineBreaks returns the byte indices of every 0x0A in text.
func findLineBreaks(text string) []int {
	var breaks []int
	for i := 0; i < len(text); i++ {
		if text[i] == '\n' {
			breaks = append(breaks, i)
		}
	}
	return breaks
}

// lastLineBreakAtOrBefore returns the greatest index i with breaks[i] <= offset,
// reporting false when every line break lies beyond offset.
func lastLineBreakAtOrBefore(breaks []int, offset int) (int, bool) {
	idx := sort.SearchInts(breaks, offset+1)
	if idx == 0 {
		return 0, false
	}
	return idx - 1, true
}

// OffsetAt converts an editor position (UTF-16 line/character) to a byte
// offset into the document text. Out-of-range positions clamp to the nearest
// valid offset rather than failing: clients routinely send positions one past
// the end of a line or file.
func (d *TextDocument) OffsetAt(pos LSPPosition) int {
	breaks := d.lineBreaks
	line := int(pos.Line)
	if line > len(breaks) {
		return len(d.text)
	}
	lineStart := 0
	if line > 0 {
		lineStart = breaks[line-1] + 1
	}
	lineEnd := len(d.text)
	if line < len(breaks) {
		lineEnd = breaks[line]
	}
	// Utf16OffsetToBytes clamps to the line end on out-of-range input.
	byteInLine, _ := Utf16OffsetToBytes([]byte(d.text[lineStart:lineEnd]), int(pos.Character))
	return lineStart + byteInLine
}

// PositionAt converts a byte offset into an editor position. The inverse of
// OffsetAt for every valid offset.
func (d *TextDocument) PositionAt(offset int) LSPPosition {
	if offset < 0 {
		offset = 0
	}
	if offset > len(d.text) {
		offset = len(d.text)
	}
	breaks := d.lineBreaks
	line := 0
	lineStart := 0
	// The newline byte itself belongs to the line it terminates.
	if i, ok := lastLineBreakAtOrBefore(breaks, offset-1); ok {
		line = i + 1
		lineStart = breaks[i] + 1
	}
	utf16Units, err := bytesToUTF16Offset([]byte(d.text[lineStart:offset]))
	if err != nil {
		utf16Units = offset - lineStart
	}
	return LSPPosition{Line: uint32(line), Character: uint32(utf16Units)}
}

// applyChange splices one content change into the document text.
func (d *TextDocument) applyChange(change TextDocumentContentChangeEvent) {
	if change.Range == nil {
		// Full-document replacement.
		d.text = change.Text
	} else {
		start := d.OffsetAt(change.Range.Start)
		end := d.OffsetAt(change.Range.End)
		if end < start {
			start, end = end, start
		}
		d.text = d.text[:start] + change.Text + d.text[end:]
	}
	d.lineBreaks = findLineBreaks(d.text)
}

// DocumentStore tracks every open document, keyed by URI. Many concurrent
// readers, one writer.
type DocumentStore struct {
	mu   sync.RWMutex
	docs map[DocumentURI]*TextDocument
}

// NewDocumentStore creates an empty store.
func NewDocumentStore() *DocumentStore {
	return &DocumentStore{docs: make(map[DocumentURI]*TextDocument)}
}

// Open upserts a document record. Reopening an already-tracked URI replaces it.
func (s *DocumentStore) Open(uri DocumentURI, languageID string, version int, text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.docs[uri] = newTextDocument(uri, languageID, version, text)
}

// ApplyChanges applies a didChange notification: either a sequence of range
// edits or a full replacement, in delivery order.
func (s *DocumentStore) ApplyChanges(uri DocumentURI, version int, changes []TextDocumentContentChangeEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, ok := s.docs[uri]
	if !ok {
		return fmt.Errorf("%w: %s", ErrDocumentNotFound, uri)
	}
	for _, change := range changes {
		doc.applyChange(change)
	}
	if version > doc.version {
		doc.version = version
	}
	return nil
}

// Close removes a document record. Closing an untracked URI is a no-op.
func (s *DocumentStore) Close(uri DocumentURI) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.docs, uri)
}

// Has reports whether the URI is tracked.
func (s *DocumentStore) Has(uri DocumentURI) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.docs[uri]
	return ok
}

// Count returns the number of tracked documents.
func (s *DocumentStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.docs)
}

// URIs returns the URIs of every tracked document.
func (s *DocumentStore) URIs() []DocumentURI {
	s.mu.RLock()
	defer s.mu.RUnlock()
	uris := make([]DocumentURI, 0, len(s.docs))
	for uri := range s.docs {
		uris = append(uris, uri)
	}
	return uris
}

// Snapshot copies out the current text and version for a document, so callers
// never hold the store lock across a compiler invocation.
func (s *DocumentStore) Snapshot(uri DocumentURI) (text string, version int, err error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	doc, ok := s.docs[uri]
	if !ok {
		return "", 0, fmt.Errorf("%w: %s", ErrDocumentNotFound, uri)
	}
	return doc.text, doc.version, nil
}

// TextAndOffset copies out the current text together with the byte offset for
// an editor position, in one read-locked pass.
func (s *DocumentStore) TextAndOffset(uri DocumentURI, pos LSPPosition) (string, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	doc, ok := s.docs[uri]
	if !ok {
		return "", 0, fmt.Errorf("%w: %s", ErrDocumentNotFound, uri)
	}
	return doc.text, doc.OffsetAt(pos), nil
}

// PositionAt converts a byte offset in a tracked document to an editor position.
func (s *DocumentStore) PositionAt(uri DocumentURI, offset int) (LSPPosition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	doc, ok := s.docs[uri]
	if !ok {
		return LSPPosition{}, fmt.Errorf("%w: %s", ErrDocumentNotFound, uri)
	}
	return doc.PositionAt(offset), nil
}

// RangeFor converts a compiler byte span in a tracked document to an editor range.
func (s *DocumentStore) RangeFor(uri DocumentURI, span Span) (LSPRange, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	doc, ok := s.docs[uri]
	if !ok {
		return LSPRange{}, fmt.Errorf("%w: %s", ErrDocumentNotFound, uri)
	}
	return LSPRange{Start: doc.PositionAt(span.Start), End: doc.PositionAt(span.End)}, nil
}

// IsNotFound reports whether err is a document-not-found lookup failure.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrDocumentNotFound)
}
