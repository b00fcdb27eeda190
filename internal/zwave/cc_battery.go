package zwave

import (
	"fmt"

	"zwave-go-home/internal/serialapi"
)

const (
	batteryCmdGet    byte = 0x02
	batteryCmdReport byte = 0x03

	// batteryLowWarning is reported instead of a percentage when the battery is low.
	batteryLowWarning byte = 0xFF
)

type batteryHandler struct {
	baseHandler
	level uint8
	low   bool
	known bool
}

func newBatteryHandler(n *Node, endpoint uint8) Handler {
	h := &batteryHandler{}
	h.init(ClassBattery, n, endpoint)
	return h
}

func (h *batteryHandler) Handle(payload serialapi.Payload, endpoint uint8) (*Event, error) {
	cmd, err := commandByte(payload)
	if err != nil {
		return nil, err
	}
	if cmd != batteryCmdReport {
		return nil, h.unsupported(cmd)
	}
	level, err := payload.ByteAt(1)
	if err != nil {
		return nil, fmt.Errorf("battery report: %w", err)
	}
	low := level == batteryLowWarning
	if low {
		level = 0
		h.logger.Warn("battery low", "node", h.node.id)
	}
	h.mu.Lock()
	h.level, h.low, h.known = level, low, true
	h.mu.Unlock()
	return h.emit(EventBatteryLevelChanged, BatteryLevelChanged{Node: h.node.id, Endpoint: endpoint, Level: level, Low: low}), nil
}

// StaticRequests reads the level once during the interview.
func (h *batteryHandler) StaticRequests() []*serialapi.Frame {
	return []*serialapi.Frame{h.Get()}
}

// Get builds a battery level request.
func (h *batteryHandler) Get() *serialapi.Frame {
	return h.command(batteryCmdGet)
}

// Level returns the last reported percentage and whether the device flagged
// a low battery.
func (h *batteryHandler) Level() (level uint8, low, ok bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.level, h.low, h.known
}
