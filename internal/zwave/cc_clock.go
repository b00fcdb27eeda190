package zwave

import (
	"fmt"
	"time"

	"zwave-go-home/internal/serialapi"
)

const (
	clockCmdSet    byte = 0x04
	clockCmdGet    byte = 0x05
	clockCmdReport byte = 0x06
)

// ClockTime is a device clock reading. Weekday is 1 (Monday) to 7, 0 if unset.
type ClockTime struct {
	Weekday uint8 `json:"weekday"`
	Hour    uint8 `json:"hour"`
	Minute  uint8 `json:"minute"`
}

func (c ClockTime) String() string {
	return fmt.Sprintf("%d %02d:%02d", c.Weekday, c.Hour, c.Minute)
}

type clockHandler struct {
	baseHandler
	clock ClockTime
	known bool
}

func newClockHandler(n *Node, endpoint uint8) Handler {
	h := &clockHandler{}
	h.init(ClassClock, n, endpoint)
	return h
}

func (h *clockHandler) Handle(payload serialapi.Payload, endpoint uint8) (*Event, error) {
	cmd, err := commandByte(payload)
	if err != nil {
		return nil, err
	}
	if cmd != clockCmdReport {
		return nil, h.unsupported(cmd)
	}
	if err := payload.Check(1, 2); err != nil {
		return nil, fmt.Errorf("clock report: %w", err)
	}
	c := ClockTime{Weekday: payload[1] >> 5, Hour: payload[1] & 0x1F, Minute: payload[2]}
	h.mu.Lock()
	h.clock, h.known = c, true
	h.mu.Unlock()
	h.logger.Debug("clock", "node", h.node.id, "time", c.String())
	return nil, nil
}

func (h *clockHandler) StaticRequests() []*serialapi.Frame {
	return []*serialapi.Frame{h.Get()}
}

// Clock returns the last reported device time.
func (h *clockHandler) Clock() (ClockTime, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.clock, h.known
}

// Get builds a clock request.
func (h *clockHandler) Get() *serialapi.Frame {
	return h.command(clockCmdGet)
}

// Set builds a request setting the device clock to t.
func (h *clockHandler) Set(t time.Time) *serialapi.Frame {
	wd := uint8(t.Weekday())
	if wd == 0 {
		wd = 7
	}
	return h.command(clockCmdSet, wd<<5|uint8(t.Hour()), uint8(t.Minute()))
}
