// lsp_server.go
// Implements the Language Server Protocol (LSP) server logic.
package nuls

import (
	"context"
	"encoding/json"
	"errors"
	"expvar"
	"fmt"
	"io"
	"log/slog"
	"runtime"
	"runtime/debug"
	"sync"
	"time"

	"github.com/sourcegraph/jsonrpc2"
)

// ============================================================================
// LSP Server Implementation
// ============================================================================

// Server represents the LSP server instance.
type Server struct {
	conn           *jsonrpc2.Conn
	logger         *slog.Logger
	compiler       CompilerBackend
	store          *DocumentStore
	settings       *SettingsResolver
	caps           *capabilityFlags
	throttle       *validationThrottle
	hints          *inlayHintCache
	serverInfo     *ServerInfo
	requestTracker *RequestTracker
}

// NewServer creates a new LSP server instance around a compiler backend.
func NewServer(compiler CompilerBackend, logger *slog.Logger, version string) (*Server, error) {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	resolver, err := NewSettingsResolver(logger)
	if err != nil {
		return nil, err
	}
	s := &Server{
		logger:   logger,
		compiler: compiler,
		store:    NewDocumentStore(),
		settings: resolver,
		caps:     &capabilityFlags{},
		throttle: newValidationThrottle(validationInterval),
		hints:    newInlayHintCache(),
		serverInfo: &ServerInfo{
			Name:    "nuls",
			Version: version,
		},
		requestTracker: NewRequestTracker(),
	}
	publishExpvarMetrics(s)
	return s, nil
}

// Run starts the LSP server, listening on stdin/stdout.
func (s *Server) Run(r io.Reader, w io.Writer) {
	s.logger.Info("Starting LSP server run loop")

	stream := &stdrwc{r: r, w: w}
	objectStream := jsonrpc2.NewPlainObjectStream(stream)

	s.conn = jsonrpc2.NewConn(context.Background(), objectStream, s)
	s.logger.Info("JSON-RPC connection established")

	<-s.conn.DisconnectNotify() // Block until connection closes
	s.settings.Close()
	s.logger.Info("JSON-RPC connection closed")
}

// stdrwc is a simple ReadWriteCloser that wraps stdin/stdout without closing them.
type stdrwc struct {
	r io.Reader
	w io.Writer
}

func (s *stdrwc) Read(p []byte) (int, error)  { return s.r.Read(p) }
func (s *stdrwc) Write(p []byte) (int, error) { return s.w.Write(p) }
func (s *stdrwc) Close() error                { return nil } // Do nothing

// Handle implements jsonrpc2.Handler.
//
// Notifications run inline on the read loop so document mutations apply in
// delivery order. Requests run on their own goroutine, replying through the
// connection, so a slow compiler call never blocks incoming notifications.
func (s *Server) Handle(ctx context.Context, conn *jsonrpc2.Conn, req *jsonrpc2.Request) {
	if req.Notif {
		s.handleNotification(ctx, conn, req)
		return
	}

	s.requestTracker.Add(req.ID, ctx)
	go func() {
		defer s.requestTracker.Remove(req.ID)
		result, err := s.handleRequest(ctx, conn, req)
		if err != nil {
			var rpcErr *jsonrpc2.Error
			if !errors.As(err, &rpcErr) {
				rpcErr = s.rpcErrorFor(req.Method, err)
			}
			if replyErr := conn.ReplyWithError(ctx, req.ID, rpcErr); replyErr != nil {
				s.logger.Error("Failed to send error reply", "method", req.Method, "error", replyErr)
			}
			return
		}
		if replyErr := conn.Reply(ctx, req.ID, result); replyErr != nil {
			s.logger.Error("Failed to send reply", "method", req.Method, "error", replyErr)
		}
	}()
}

// handleNotification routes one notification. Malformed notification params
// are logged and dropped; there is no reply channel to report them on.
func (s *Server) handleNotification(ctx context.Context, conn *jsonrpc2.Conn, req *jsonrpc2.Request) {
	methodLogger := s.logger.With("method", req.Method)
	methodLogger.Debug("Received notification")

	defer func() {
		if r := recover(); r != nil {
			methodLogger.Error("Panic recovered in notification handler", "panic_value", r, "stack", string(debug.Stack()))
		}
	}()

	switch req.Method {
	case "initialized":
		s.handleInitialized(ctx, conn)

	case "exit":
		methodLogger.Info("Exit notification received")
		if s.conn != nil {
			s.conn.Close()
		}

	case "textDocument/didOpen":
		var params DidOpenTextDocumentParams
		if err := s.unmarshalParams(req, &params); err != nil {
			methodLogger.Error("Failed to unmarshal didOpen params", "error", err)
			return
		}
		s.handleDidOpen(ctx, params)

	case "textDocument/didChange":
		var params DidChangeTextDocumentParams
		if err := s.unmarshalParams(req, &params); err != nil {
			methodLogger.Error("Failed to unmarshal didChange params", "error", err)
			return
		}
		s.handleDidChange(ctx, params)

	case "textDocument/didClose":
		var params DidCloseTextDocumentParams
		if err := s.unmarshalParams(req, &params); err != nil {
			methodLogger.Error("Failed to unmarshal didClose params", "error", err)
			return
		}
		s.handleDidClose(ctx, params)

	case "workspace/didChangeConfiguration":
		var params DidChangeConfigurationParams
		if err := s.unmarshalParams(req, &params); err != nil {
			methodLogger.Error("Failed to unmarshal didChangeConfiguration params", "error", err)
			return
		}
		s.handleDidChangeConfiguration(ctx, params)

	case "workspace/didChangeWorkspaceFolders":
		var params DidChangeWorkspaceFoldersParams
		if err := s.unmarshalParams(req, &params); err != nil {
			methodLogger.Error("Failed to unmarshal didChangeWorkspaceFolders params", "error", err)
			return
		}
		methodLogger.Info("Workspace folders changed",
			"added", len(params.Event.Added), "removed", len(params.Event.Removed))

	case "$/cancelRequest":
		// Requests are answered unconditionally; cancellation is acknowledged
		// but has no effect on a compiler call already in flight.
		var params CancelParams
		if err := s.unmarshalParams(req, &params); err != nil {
			methodLogger.Error("Failed to unmarshal cancelRequest params", "error", err)
			return
		}
		methodLogger.Debug("Cancellation request ignored", "cancelled_id", params.ID)

	default:
		methodLogger.Debug("Unhandled notification")
	}
}

// handleRequest routes one request and produces its result.
func (s *Server) handleRequest(ctx context.Context, conn *jsonrpc2.Conn, req *jsonrpc2.Request) (result any, err error) {
	methodLogger := s.logger.With("method", req.Method, "req_id", req.ID)
	methodLogger.Debug("Received request")

	// Panic recovery
	defer func() {
		if r := recover(); r != nil {
			methodLogger.Error("Panic recovered in request handler", "panic_value", r, "stack", string(debug.Stack()))
			err = &jsonrpc2.Error{
				Code:    int64(JsonRpcInternalError),
				Message: fmt.Sprintf("Internal server error in method %s", req.Method),
			}
			result = nil
		}
	}()

	switch req.Method {
	case "initialize":
		var params InitializeParams
		if err := s.unmarshalParams(req, &params); err != nil {
			return nil, &jsonrpc2.Error{Code: int64(JsonRpcInvalidParams), Message: fmt.Sprintf("Invalid initialize params: %v", err)}
		}
		return s.handleInitialize(ctx, params)

	case "shutdown":
		methodLogger.Info("Shutdown request received")
		return nil, nil

	case "textDocument/completion":
		var params CompletionParams
		if err := s.unmarshalParams(req, &params); err != nil {
			return nil, &jsonrpc2.Error{Code: int64(JsonRpcInvalidParams), Message: fmt.Sprintf("Invalid completion params: %v", err)}
		}
		return s.handleCompletion(ctx, params)

	case "textDocument/hover":
		var params HoverParams
		if err := s.unmarshalParams(req, &params); err != nil {
			return nil, &jsonrpc2.Error{Code: int64(JsonRpcInvalidParams), Message: fmt.Sprintf("Invalid hover params: %v", err)}
		}
		return s.handleHover(ctx, params)

	case "textDocument/definition":
		var params DefinitionParams
		if err := s.unmarshalParams(req, &params); err != nil {
			return nil, &jsonrpc2.Error{Code: int64(JsonRpcInvalidParams), Message: fmt.Sprintf("Invalid definition params: %v", err)}
		}
		return s.handleDefinition(ctx, params)

	case "textDocument/inlayHint":
		var params InlayHintParams
		if err := s.unmarshalParams(req, &params); err != nil {
			return nil, &jsonrpc2.Error{Code: int64(JsonRpcInvalidParams), Message: fmt.Sprintf("Invalid inlayHint params: %v", err)}
		}
		return s.handleInlayHint(ctx, params)

	default:
		methodLogger.Warn("Unhandled LSP method")
		return nil, &jsonrpc2.Error{Code: int64(JsonRpcMethodNotFound), Message: fmt.Sprintf("Method not supported: %s", req.Method)}
	}
}

func (s *Server) unmarshalParams(req *jsonrpc2.Request, target any) error {
	if req.Params == nil {
		return errors.New("params field is null")
	}
	return json.Unmarshal(*req.Params, target)
}

// rpcErrorFor maps internal error kinds onto JSON-RPC error codes.
func (s *Server) rpcErrorFor(method string, err error) *jsonrpc2.Error {
	code := JsonRpcInternalError
	switch {
	case errors.Is(err, ErrDocumentNotFound), errors.Is(err, ErrInvalidURI), errors.Is(err, ErrInvalidPositionInput):
		code = JsonRpcInvalidParams
	case errors.Is(err, ErrResponseParse), errors.Is(err, ErrOutputDecode):
		code = JsonRpcParseError
	}
	s.logger.Error("Request failed", "method", method, "error", err, "rpc_code", code)
	return &jsonrpc2.Error{Code: int64(code), Message: err.Error()}
}

// ============================================================================
// Client-Bound Messages
// ============================================================================

// Configuration performs the workspace/configuration round-trip, implementing
// the puller the settings resolver expects.
func (s *Server) Configuration(ctx context.Context, items []ConfigurationItem) ([]json.RawMessage, error) {
	var values []json.RawMessage
	err := s.conn.Call(ctx, "workspace/configuration", ConfigurationParams{Items: items}, &values)
	if err != nil {
		return nil, err
	}
	return values, nil
}

// publishDiagnostics pushes the current diagnostics for a document.
func (s *Server) publishDiagnostics(ctx context.Context, uri DocumentURI, version *int, diagnostics []LspDiagnostic) {
	params := PublishDiagnosticsParams{URI: uri, Version: version, Diagnostics: diagnostics}
	if err := s.conn.Notify(ctx, "textDocument/publishDiagnostics", params); err != nil {
		s.logger.Error("Failed to publish diagnostics", "uri", uri, "error", err)
	}
}

// showMessage surfaces a message in the client UI.
func (s *Server) showMessage(ctx context.Context, msgType MessageType, message string) {
	if err := s.conn.Notify(ctx, "window/showMessage", ShowMessageParams{Type: msgType, Message: message}); err != nil {
		s.logger.Error("Failed to send showMessage", "error", err)
	}
}

// logMessage sends a message to the client's output channel.
func (s *Server) logMessage(ctx context.Context, msgType MessageType, message string) {
	if err := s.conn.Notify(ctx, "window/logMessage", LogMessageParams{Type: msgType, Message: message}); err != nil {
		s.logger.Error("Failed to send logMessage", "error", err)
	}
}

// ============================================================================
// Validation Throttle
// ============================================================================

// validationThrottle rate-limits throttled validations across the whole
// session: one shared stamp, not one per document.
type validationThrottle struct {
	mu       sync.Mutex
	interval time.Duration
	last     time.Time
}

func newValidationThrottle(interval time.Duration) *validationThrottle {
	return &validationThrottle{interval: interval}
}

// ShouldRun reports whether enough time has passed since the last completed
// validation. It does not advance the stamp; MarkDone does, and only callers
// whose validation actually succeeded call it.
func (t *validationThrottle) ShouldRun() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return time.Since(t.last) >= t.interval
}

// MarkDone stamps the completion time of a successful validation.
func (t *validationThrottle) MarkDone() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.last = time.Now()
}

// ============================================================================
// Request Tracking
// ============================================================================

// RequestTracker records in-flight request IDs, primarily for the
// pendingRequests metric.
type RequestTracker struct {
	mu      sync.Mutex
	pending map[jsonrpc2.ID]struct{}
}

// NewRequestTracker creates a new tracker.
func NewRequestTracker() *RequestTracker {
	return &RequestTracker{pending: make(map[jsonrpc2.ID]struct{})}
}

// Add registers a request as in flight.
func (rt *RequestTracker) Add(id jsonrpc2.ID, _ context.Context) {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	rt.pending[id] = struct{}{}
}

// Remove clears a finished request.
func (rt *RequestTracker) Remove(id jsonrpc2.ID) {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	delete(rt.pending, id)
}

// Count returns the number of in-flight requests.
func (rt *RequestTracker) Count() int {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	return len(rt.pending)
}

// ============================================================================
// Metrics
// ============================================================================

var expvarOnce sync.Once

// publishExpvarMetrics registers the server's expvar metrics. expvar panics on
// duplicate names, so registration happens once per process even when tests
// construct several servers.
func publishExpvarMetrics(s *Server) {
	expvarOnce.Do(func() {
		startTime := time.Now()
		expvar.NewString("serverInfo.name").Set(s.serverInfo.Name)
		expvar.NewString("serverInfo.version").Set(s.serverInfo.Version)
		expvar.NewString("serverStartTime").Set(startTime.Format(time.RFC3339))
		expvar.Publish("goroutines", expvar.Func(func() any { return runtime.NumGoroutine() }))
		expvar.Publish("memory.allocBytes", expvar.Func(func() any {
			var m runtime.MemStats
			runtime.ReadMemStats(&m)
			return m.Alloc
		}))
		expvar.Publish("lsp.openDocuments", expvar.Func(func() any { return s.store.Count() }))
		expvar.Publish("lsp.pendingRequests", expvar.Func(func() any { return s.requestTracker.Count() }))

		if metrics := s.settings.Metrics(); metrics != nil {
			expvar.Publish("settingsCache.hits", expvar.Func(func() any { return metrics.Hits() }))
			expvar.Publish("settingsCache.misses", expvar.Func(func() any { return metrics.Misses() }))
			expvar.Publish("settingsCache.keysAdded", expvar.Func(func() any { return metrics.KeysAdded() }))
		}
	})
}
