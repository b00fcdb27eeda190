package zwave

import (
	"fmt"

	"zwave-go-home/internal/serialapi"
)

const (
	manufacturerCmdGet    byte = 0x04
	manufacturerCmdReport byte = 0x05
)

type manufacturerSpecificHandler struct {
	baseHandler
}

func newManufacturerSpecificHandler(n *Node, endpoint uint8) Handler {
	h := &manufacturerSpecificHandler{}
	h.init(ClassManufacturerSpecific, n, endpoint)
	return h
}

func (h *manufacturerSpecificHandler) Handle(payload serialapi.Payload, endpoint uint8) (*Event, error) {
	cmd, err := commandByte(payload)
	if err != nil {
		return nil, err
	}
	if cmd != manufacturerCmdReport {
		return nil, h.unsupported(cmd)
	}
	if err := payload.Check(1, 6); err != nil {
		return nil, fmt.Errorf("manufacturer report: %w", err)
	}
	m, _ := payload.WordAt(1)
	t, _ := payload.WordAt(3)
	id, _ := payload.WordAt(5)
	h.node.setManufacturer(m, t, id)
	h.logger.Info("manufacturer", "node", h.node.id,
		"manufacturer", fmt.Sprintf("0x%04X", m), "type", fmt.Sprintf("0x%04X", t), "id", fmt.Sprintf("0x%04X", id))
	return nil, nil
}

// Get builds a request for the manufacturer, device type and device ids.
func (h *manufacturerSpecificHandler) Get() *serialapi.Frame {
	return h.command(manufacturerCmdGet)
}
