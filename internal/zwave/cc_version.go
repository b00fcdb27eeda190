package zwave

import (
	"fmt"

	"zwave-go-home/internal/serialapi"
)

const (
	versionCmdGet                byte = 0x11
	versionCmdReport             byte = 0x12
	versionCmdCommandClassGet    byte = 0x13
	versionCmdCommandClassReport byte = 0x14
)

type versionHandler struct {
	baseHandler
	library  uint8
	protocol string
}

func newVersionHandler(n *Node, endpoint uint8) Handler {
	h := &versionHandler{}
	h.init(ClassVersion, n, endpoint)
	return h
}

func (h *versionHandler) Handle(payload serialapi.Payload, endpoint uint8) (*Event, error) {
	cmd, err := commandByte(payload)
	if err != nil {
		return nil, err
	}
	switch cmd {
	case versionCmdReport:
		if err := payload.Check(1, 5); err != nil {
			return nil, fmt.Errorf("version report: %w", err)
		}
		protocol := fmt.Sprintf("%d.%d", payload[2], payload[3])
		app := fmt.Sprintf("%d.%d", payload[4], payload[5])
		h.mu.Lock()
		h.library = payload[1]
		h.protocol = protocol
		h.mu.Unlock()
		h.node.setApplicationVersion(app)
		h.logger.Info("firmware", "node", h.node.id, "library", payload[1], "protocol", protocol, "application", app)
		return nil, nil

	case versionCmdCommandClassReport:
		if err := payload.Check(1, 2); err != nil {
			return nil, fmt.Errorf("command class version report: %w", err)
		}
		h.applyClassVersion(CommandClass(payload[1]), payload[2])
		return nil, nil

	default:
		return nil, h.unsupported(cmd)
	}
}

// applyClassVersion records the version of a root class. Version 0 means
// the node does not actually support it and the handler is dropped.
func (h *versionHandler) applyClassVersion(class CommandClass, reported uint8) {
	target := h.node.Handler(class)
	if target == nil {
		h.logger.Debug("version for class without handler", "node", h.node.id, "for", class.String(), "version", reported)
		return
	}
	if reported == 0 {
		h.logger.Warn("class reported as unsupported, removing", "node", h.node.id, "for", class.String())
		h.node.RemoveHandler(class)
		return
	}
	v := h.node.network.registry.ClampVersion(class, reported)
	if v != reported {
		h.logger.Debug("class version above supported, clamped", "node", h.node.id, "for", class.String(), "reported", reported, "used", v)
	}
	target.SetVersion(v)
}

// Protocol returns the protocol version reported by the node, or "".
func (h *versionHandler) Protocol() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.protocol
}

// Get builds a request for the library, protocol and application versions.
func (h *versionHandler) Get() *serialapi.Frame {
	return h.command(versionCmdGet)
}

// CommandClassGet builds a request for the version of class.
func (h *versionHandler) CommandClassGet(class CommandClass) *serialapi.Frame {
	return h.command(versionCmdCommandClassGet, byte(class))
}
