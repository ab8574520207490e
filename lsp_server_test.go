// lsp_server_test.go
package nuls

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/sourcegraph/jsonrpc2"
)

func TestValidationThrottle(t *testing.T) {
	t.Run("Runs when idle", func(t *testing.T) {
		throttle := newValidationThrottle(validationInterval)
		if !throttle.ShouldRun() {
			t.Error("ShouldRun() = false on a fresh throttle")
		}
	})

	t.Run("Skips within the interval", func(t *testing.T) {
		throttle := newValidationThrottle(validationInterval)
		throttle.MarkDone()
		if throttle.ShouldRun() {
			t.Error("ShouldRun() = true immediately after MarkDone")
		}
	})

	t.Run("Runs again after the interval", func(t *testing.T) {
		throttle := newValidationThrottle(validationInterval)
		throttle.mu.Lock()
		throttle.last = time.Now().Add(-2 * validationInterval)
		throttle.mu.Unlock()
		if !throttle.ShouldRun() {
			t.Error("ShouldRun() = false with a stale stamp")
		}
	})

	t.Run("ShouldRun does not advance the stamp", func(t *testing.T) {
		throttle := newValidationThrottle(validationInterval)
		for i := 0; i < 3; i++ {
			if !throttle.ShouldRun() {
				t.Fatalf("ShouldRun() = false on call %d without MarkDone", i)
			}
		}
	})
}

func TestRequestTracker(t *testing.T) {
	tracker := NewRequestTracker()
	if tracker.Count() != 0 {
		t.Fatalf("Count() = %d on empty tracker", tracker.Count())
	}
	id1 := jsonrpc2.ID{Num: 1}
	id2 := jsonrpc2.ID{Str: "a", IsString: true}
	tracker.Add(id1, context.Background())
	tracker.Add(id2, context.Background())
	if tracker.Count() != 2 {
		t.Errorf("Count() = %d, want 2", tracker.Count())
	}
	tracker.Remove(id1)
	tracker.Remove(id1) // removing twice is a no-op
	if tracker.Count() != 1 {
		t.Errorf("Count() = %d, want 1", tracker.Count())
	}
}

func TestRpcErrorFor(t *testing.T) {
	server, err := NewServer(NewNuCompiler(nil), nil, "test")
	if err != nil {
		t.Fatalf("NewServer() error = %v", err)
	}

	tests := []struct {
		name     string
		err      error
		wantCode int
	}{
		{"Document not found", fmt.Errorf("wrap: %w", ErrDocumentNotFound), JsonRpcInvalidParams},
		{"Invalid URI", ErrInvalidURI, JsonRpcInvalidParams},
		{"Response parse failure", fmt.Errorf("%w: bad json", ErrResponseParse), JsonRpcParseError},
		{"Output decode failure", ErrOutputDecode, JsonRpcParseError},
		{"Compiler timeout", ErrCompilerTimeout, JsonRpcInternalError},
		{"Temp file failure", ErrTempFile, JsonRpcInternalError},
		{"Anything else", errors.New("boom"), JsonRpcInternalError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rpcErr := server.rpcErrorFor("textDocument/hover", tt.err)
			if rpcErr.Code != int64(tt.wantCode) {
				t.Errorf("rpcErrorFor() code = %d, want %d", rpcErr.Code, tt.wantCode)
			}
		})
	}
}
