// nuls_types.go
// Contains core type definitions used throughout the nuls package.
package nuls

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// =============================================================================
// Configuration Types & Constants
// =============================================================================

const (
	// configSection is the configuration section pulled from the client via
	// workspace/configuration and recognized in didChangeConfiguration payloads.
	configSection = "nushellLanguageServer"

	defaultExecutablePath      = "nu"
	defaultMaxNumberOfProblems = 1000
	defaultInvocationTimeout   = 10 * time.Second

	// validationInterval is the minimum gap between throttled validations.
	validationInterval = 500 * time.Millisecond

	// includePathSeparator joins include directories into a single argument.
	// 0x1E (record separator) is vanishingly unlikely to appear in a path.
	includePathSeparator = "\x1e"

	// preludeSentinel is the pseudo-path the compiler reports for definitions
	// that live in its implicit built-in scope.
	preludeSentinel = "__prelude__"
)

// DurationMS is a time.Duration that unmarshals from a JSON number of milliseconds.
type DurationMS time.Duration

func (d *DurationMS) UnmarshalJSON(data []byte) error {
	var ms uint64
	if err := json.Unmarshal(data, &ms); err != nil {
		return fmt.Errorf("cannot convert value to milliseconds: %w", err)
	}
	*d = DurationMS(time.Duration(ms) * time.Millisecond)
	return nil
}

func (d DurationMS) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).Milliseconds())
}

// Duration returns the wrapped time.Duration.
func (d DurationMS) Duration() time.Duration { return time.Duration(d) }

// HintSettings controls inlay-hint behavior.
type HintSettings struct {
	ShowInferredTypes bool `json:"showInferredTypes"`
}

// Settings is the effective per-document configuration. The JSON shape matches
// the client's "nushellLanguageServer" configuration section.
type Settings struct {
	Hints               HintSettings `json:"hints"`
	IncludeDirs         []string     `json:"includeDirs"`
	MaxNumberOfProblems uint32       `json:"maxNumberOfProblems"`
	MaxInvocationTime   DurationMS   `json:"maxNushellInvocationTime"`
	ExecutablePath      string       `json:"nushellExecutablePath"`
}

// DefaultSettings returns the settings used when the client provides none.
func DefaultSettings() Settings {
	return Settings{
		Hints:               HintSettings{ShowInferredTypes: true},
		MaxNumberOfProblems: defaultMaxNumberOfProblems,
		MaxInvocationTime:   DurationMS(defaultInvocationTimeout),
		ExecutablePath:      defaultExecutablePath,
	}
}

// settingsFromJSON parses a configuration payload into Settings. Fields absent
// from the payload keep their defaults; an unparsable payload yields defaults
// wholesale rather than an error.
func settingsFromJSON(raw []byte) Settings {
	settings := DefaultSettings()
	if len(raw) == 0 {
		return settings
	}
	if err := json.Unmarshal(raw, &settings); err != nil {
		return DefaultSettings()
	}
	return settings
}

// =============================================================================
// Compiler Invocation Types
// =============================================================================

// IdeOperation selects the compiler invocation mode.
type IdeOperation int

const (
	OpCheck IdeOperation = iota
	OpComplete
	OpHover
	OpGotoDef
)

// flag returns the CLI flag announcing the operation to the compiler.
func (op IdeOperation) flag() string {
	switch op {
	case OpCheck:
		return "--ide-check"
	case OpComplete:
		return "--ide-complete"
	case OpHover:
		return "--ide-hover"
	case OpGotoDef:
		return "--ide-goto-def"
	default:
		return ""
	}
}

func (op IdeOperation) String() string {
	return strings.TrimPrefix(op.flag(), "--ide-")
}

// CompilerQuery is one request against the external compiler.
type CompilerQuery struct {
	Op       IdeOperation
	Text     string // full in-memory document text, written to a temp file
	Offset   int    // byte offset for complete/hover/goto-def; ignored for check
	Settings Settings
	URI      DocumentURI // source document; its parent dir joins the include path
}

// CompilerResponse is the captured result of one compiler invocation. Cmdline
// is kept purely so parse failures can name the command that produced the
// offending output.
type CompilerResponse struct {
	Cmdline string
	Stdout  string
}

// =============================================================================
// Compiler Output Types
// =============================================================================

// Span is a byte-offset interval into the exact text written to the temp file.
// start <= end is assumed, not validated; conversions clamp instead.
type Span struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// IdeDiagnostic is one "diagnostic"-tagged line of --ide-check output.
type IdeDiagnostic struct {
	Message  string `json:"message"`
	Severity string `json:"severity"`
	Span     Span   `json:"span"`
}

// IdeHint is one "hint"-tagged line of --ide-check output: an inferred type
// for the span at Position.
type IdeHint struct {
	Position Span   `json:"position"`
	Typename string `json:"typename"`
}

// IdeCheck is the sum of the two --ide-check line shapes; exactly one field is set.
type IdeCheck struct {
	Diagnostic *IdeDiagnostic
	Hint       *IdeHint
}

// IdeComplete is the --ide-complete response object.
type IdeComplete struct {
	Completions []string `json:"completions"`
}

// IdeGotoDef is the --ide-goto-def response object.
type IdeGotoDef struct {
	File  string `json:"file"`
	Start int    `json:"start"`
	End   int    `json:"end"`
}

// IdeHover is the --ide-hover response object.
type IdeHover struct {
	Hover string `json:"hover"`
	Span  *Span  `json:"span,omitempty"`
}
