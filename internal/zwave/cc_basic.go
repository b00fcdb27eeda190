package zwave

import (
	"fmt"

	"zwave-go-home/internal/serialapi"
)

// Basic, Switch Binary and Switch Multilevel share command numbers.
const (
	levelCmdSet    byte = 0x01
	levelCmdGet    byte = 0x02
	levelCmdReport byte = 0x03
)

// levelHandler holds the single level byte reported by Basic and the switch
// classes.
type levelHandler struct {
	baseHandler
	level uint8
	known bool
}

// handleLevel decodes Report (and Set, which some devices send unsolicited)
// into a ValueChanged event. value maps the raw byte to the published value.
func (h *levelHandler) handleLevel(payload serialapi.Payload, endpoint uint8, value func(uint8) float64) (*Event, error) {
	cmd, err := commandByte(payload)
	if err != nil {
		return nil, err
	}
	if cmd != levelCmdReport && cmd != levelCmdSet {
		return nil, h.unsupported(cmd)
	}
	level, err := payload.ByteAt(1)
	if err != nil {
		return nil, fmt.Errorf("%s report: %w", h.class, err)
	}
	h.mu.Lock()
	h.level, h.known = level, true
	h.mu.Unlock()
	h.logger.Debug("level", "node", h.node.id, "value", level)
	return h.emit(EventValueChanged, ValueChanged{
		Node:         h.node.id,
		Endpoint:     endpoint,
		CommandClass: h.class,
		Value:        value(level),
	}), nil
}

// Level returns the last reported raw level.
func (h *levelHandler) Level() (uint8, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.level, h.known
}

// Get builds a level request.
func (h *levelHandler) Get() *serialapi.Frame {
	return h.getTo(h.endpoint)
}

// getTo builds a level request for a v1 instance of a root handler, or for
// the handler's own endpoint.
func (h *levelHandler) getTo(instance uint8) *serialapi.Frame {
	return h.commandTo(instance, levelCmdGet)
}

func rawLevel(v uint8) float64 { return float64(v) }

type basicHandler struct {
	levelHandler
}

func newBasicHandler(n *Node, endpoint uint8) Handler {
	h := &basicHandler{}
	h.init(ClassBasic, n, endpoint)
	return h
}

func (h *basicHandler) Handle(payload serialapi.Payload, endpoint uint8) (*Event, error) {
	return h.handleLevel(payload, endpoint, rawLevel)
}

// Set builds a Basic Set; 0 is off, 1..99 a level and 0xFF on.
func (h *basicHandler) Set(value uint8) *serialapi.Frame {
	return h.setTo(h.endpoint, value)
}

func (h *basicHandler) setTo(instance, value uint8) *serialapi.Frame {
	return h.commandTo(instance, levelCmdSet, value)
}
