// capabilities.go
package nuls

import "sync"

// capabilityFlags latches, exactly once during the initialize handshake, the
// client capabilities the session cares about. Reading before the latch (or
// latching twice) is a protocol-sequencing bug, so both panic rather than
// guess a default.
type capabilityFlags struct {
	mu      sync.RWMutex
	latched bool

	publishDiagnostics  bool
	changeConfiguration bool
	lookupConfiguration bool
}

// latch records the negotiated flags. Called from the initialize handler only.
func (c *capabilityFlags) latch(caps ClientCapabilities) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.latched {
		panic("client capabilities latched twice")
	}
	c.latched = true
	if caps.Workspace != nil {
		c.changeConfiguration = caps.Workspace.DidChangeConfiguration != nil
		c.lookupConfiguration = caps.Workspace.Configuration
	}
	if caps.TextDocument != nil {
		c.publishDiagnostics = caps.TextDocument.PublishDiagnostics != nil
	}
}

func (c *capabilityFlags) get(flag func() bool) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if !c.latched {
		panic("client capabilities read before initialize")
	}
	return flag()
}

// CanPublishDiagnostics reports whether the client accepts
// textDocument/publishDiagnostics notifications.
func (c *capabilityFlags) CanPublishDiagnostics() bool {
	return c.get(func() bool { return c.publishDiagnostics })
}

// CanChangeConfiguration reports whether the client sends
// workspace/didChangeConfiguration notifications.
func (c *capabilityFlags) CanChangeConfiguration() bool {
	return c.get(func() bool { return c.changeConfiguration })
}

// CanLookupConfiguration reports whether the client answers
// workspace/configuration requests scoped to a resource.
func (c *capabilityFlags) CanLookupConfiguration() bool {
	return c.get(func() bool { return c.lookupConfiguration })
}
