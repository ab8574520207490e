// nuls_errors.go
// Contains exported error definitions for the nuls package.
package nuls

import "errors"

// =============================================================================
// Exported Errors
// =============================================================================

var (
	// ErrDocumentNotFound indicates a request referenced a URI that is not
	// tracked by the document store.
	ErrDocumentNotFound = errors.New("document not found in store")

	// ErrInvalidURI indicates a document URI is invalid or uses an unsupported scheme.
	ErrInvalidURI = errors.New("invalid document URI")

	// ErrTempFile indicates failure creating or writing the per-call temp file
	// handed to the compiler.
	ErrTempFile = errors.New("temp file operation failed")

	// ErrCompilerSpawn indicates the compiler process could not be started.
	ErrCompilerSpawn = errors.New("cannot spawn compiler process")

	// ErrCompilerTimeout indicates the compiler did not finish within the
	// configured invocation timeout.
	ErrCompilerTimeout = errors.New("compiler invocation timed out")

	// ErrOutputDecode indicates the compiler produced output that is not valid UTF-8.
	ErrOutputDecode = errors.New("compiler output is not valid UTF-8")

	// ErrResponseParse indicates the compiler's output could not be parsed into
	// the expected IDE response shape.
	ErrResponseParse = errors.New("cannot parse compiler response")

	// ErrSettingsLookup indicates the client configuration round-trip failed.
	ErrSettingsLookup = errors.New("configuration lookup failed")

	// ErrInvalidPositionInput indicates input position values (line/char) are invalid.
	ErrInvalidPositionInput = errors.New("invalid input position")

	// ErrPositionOutOfRange indicates a position is outside the valid bounds of
	// the document or line.
	ErrPositionOutOfRange = errors.New("position out of range")

	// ErrInvalidUTF8 indicates an invalid UTF-8 sequence was encountered during processing.
	ErrInvalidUTF8 = errors.New("invalid utf-8 sequence")
)
