// lsp_handlers_lifecycle.go
// Handlers for the initialize/initialized/shutdown lifecycle.
package nuls

import (
	"context"

	"github.com/sourcegraph/jsonrpc2"
)

// handleInitialize latches the client capabilities and advertises the server's.
func (s *Server) handleInitialize(ctx context.Context, params InitializeParams) (*InitializeResult, error) {
	if params.ClientInfo != nil {
		s.logger.Info("Initializing", "client_name", params.ClientInfo.Name, "client_version", params.ClientInfo.Version)
	} else {
		s.logger.Info("Initializing", "client_name", "unknown")
	}

	s.caps.latch(params.Capabilities)

	result := &InitializeResult{
		Capabilities: ServerCapabilities{
			PositionEncoding: "utf-16",
			TextDocumentSync: &TextDocumentSyncOptions{
				OpenClose: true,
				Change:    TextDocumentSyncKindIncremental,
			},
			CompletionProvider: &CompletionOptions{},
			HoverProvider:      true,
			DefinitionProvider: true,
			InlayHintProvider:  &InlayHintOptions{ResolveProvider: false},
			Workspace: &ServerWorkspaceCapabilities{
				WorkspaceFolders: &WorkspaceFoldersServerCapabilities{
					Supported:           true,
					ChangeNotifications: true,
				},
			},
		},
		ServerInfo: s.serverInfo,
	}
	return result, nil
}

// handleInitialized registers for configuration-change notifications when the
// client supports dynamic registration. The registration round-trip runs off
// the read loop: client/registerCapability is a server-to-client request and
// its reply arrives on the same connection.
func (s *Server) handleInitialized(ctx context.Context, conn *jsonrpc2.Conn) {
	s.logger.Info("Client initialized notification received")
	s.logMessage(ctx, MessageTypeInfo, "nuls "+s.serverInfo.Version+" ready")
	if !s.caps.CanChangeConfiguration() {
		return
	}
	go func() {
		params := RegistrationParams{Registrations: []Registration{{
			ID:     "workspace/didChangeConfiguration",
			Method: "workspace/didChangeConfiguration",
		}}}
		var result any
		if err := conn.Call(ctx, "client/registerCapability", params, &result); err != nil {
			s.logger.Warn("Failed to register didChangeConfiguration capability", "error", err)
		}
	}()
}
