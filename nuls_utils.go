// nuls_utils.go
package nuls

import (
	"fmt"
	"log/slog"
	"net/url"
	"path/filepath"
	"strings"
	"unicode/utf8"
)

// ============================================================================
// URI Helpers
// ============================================================================

// ValidateAndGetFilePath converts a file:// URI into an absolute filesystem path.
func ValidateAndGetFilePath(uri string) (string, error) {
	parsed, err := url.Parse(uri)
	if err != nil {
		return "", fmt.Errorf("%w: %q: %w", ErrInvalidURI, uri, err)
	}
	if parsed.Scheme != "file" {
		return "", fmt.Errorf("%w: unsupported scheme %q in %q", ErrInvalidURI, parsed.Scheme, uri)
	}
	path := parsed.Path
	if path == "" {
		return "", fmt.Errorf("%w: empty path in %q", ErrInvalidURI, uri)
	}
	absPath, err := filepath.Abs(filepath.FromSlash(path))
	if err != nil {
		return "", fmt.Errorf("%w: cannot resolve %q: %w", ErrInvalidURI, path, err)
	}
	return absPath, nil
}

// PathToURI converts a filesystem path into a file:// URI.
func PathToURI(path string) (string, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("cannot make path absolute %q: %w", path, err)
	}
	u := url.URL{Scheme: "file", Path: filepath.ToSlash(absPath)}
	return u.String(), nil
}

// ============================================================================
// Log Level Helper
// ============================================================================

// ParseLogLevel converts a level string (debug, info, warn, error) to a slog.Level.
func ParseLogLevel(levelStr string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(levelStr)) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unknown log level: %q", levelStr)
	}
}

// ============================================================================
// UTF-16 <-> Byte Offset Primitives
// ============================================================================

// Utf16OffsetToBytes converts a 0-based UTF-16 offset within a line to a
// 0-based byte offset. Offsets beyond the line clamp to the line length and
// report ErrPositionOutOfRange.
func Utf16OffsetToBytes(line []byte, utf16Offset int) (int, error) {
	if utf16Offset < 0 {
		return 0, fmt.Errorf("%w: invalid utf16Offset: %d (must be >= 0)", ErrInvalidPositionInput, utf16Offset)
	}
	if utf16Offset == 0 {
		return 0, nil
	}

	byteOffset := 0
	currentUTF16Offset := 0
	for byteOffset < len(line) && currentUTF16Offset < utf16Offset {
		r, size := utf8.DecodeRune(line[byteOffset:])
		if r == utf8.RuneError && size <= 1 {
			return byteOffset, fmt.Errorf("%w at byte offset %d", ErrInvalidUTF8, byteOffset)
		}
		utf16Units := 1
		if r > 0xFFFF {
			utf16Units = 2 // Surrogate pairs require 2 units.
		}
		// The target lands inside a surrogate pair; the byte offset before the
		// pair is the answer.
		if currentUTF16Offset+utf16Units > utf16Offset {
			return byteOffset, nil
		}
		currentUTF16Offset += utf16Units
		byteOffset += size
	}
	if currentUTF16Offset < utf16Offset {
		return len(line), fmt.Errorf("%w: utf16Offset %d is beyond the line length in UTF-16 units (%d)", ErrPositionOutOfRange, utf16Offset, currentUTF16Offset)
	}
	return byteOffset, nil
}

// bytesToUTF16Offset calculates the number of UTF-16 code units spanned by a
// byte slice.
func bytesToUTF16Offset(b []byte) (int, error) {
	utf16Offset := 0
	byteOffset := 0
	for byteOffset < len(b) {
		r, size := utf8.DecodeRune(b[byteOffset:])
		if r == utf8.RuneError && size <= 1 {
			return utf16Offset, fmt.Errorf("%w at byte offset %d within slice", ErrInvalidUTF8, byteOffset)
		}
		if r > 0xFFFF {
			utf16Offset += 2 // Surrogate pair
		} else {
			utf16Offset++
		}
		byteOffset += size
	}
	return utf16Offset, nil
}
