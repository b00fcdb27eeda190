package zwave

import "zwave-go-home/internal/serialapi"

type switchBinaryHandler struct {
	levelHandler
}

func newSwitchBinaryHandler(n *Node, endpoint uint8) Handler {
	h := &switchBinaryHandler{}
	h.init(ClassSwitchBinary, n, endpoint)
	return h
}

func (h *switchBinaryHandler) Handle(payload serialapi.Payload, endpoint uint8) (*Event, error) {
	return h.handleLevel(payload, endpoint, func(v uint8) float64 {
		if v == 0 {
			return 0
		}
		return 1
	})
}

func (h *switchBinaryHandler) StaticRequests() []*serialapi.Frame {
	return []*serialapi.Frame{h.Get()}
}

// Set builds a request switching the output on or off.
func (h *switchBinaryHandler) Set(on bool) *serialapi.Frame {
	return h.setTo(h.endpoint, on)
}

func (h *switchBinaryHandler) setTo(instance uint8, on bool) *serialapi.Frame {
	if on {
		return h.commandTo(instance, levelCmdSet, 0xFF)
	}
	return h.commandTo(instance, levelCmdSet, 0x00)
}

// switchMultilevelDefaultDuration asks the device to use its own dimming duration.
const switchMultilevelDefaultDuration byte = 0xFF

type switchMultilevelHandler struct {
	levelHandler
}

func newSwitchMultilevelHandler(n *Node, endpoint uint8) Handler {
	h := &switchMultilevelHandler{}
	h.init(ClassSwitchMultilevel, n, endpoint)
	return h
}

func (h *switchMultilevelHandler) Handle(payload serialapi.Payload, endpoint uint8) (*Event, error) {
	return h.handleLevel(payload, endpoint, rawLevel)
}

func (h *switchMultilevelHandler) StaticRequests() []*serialapi.Frame {
	return []*serialapi.Frame{h.Get()}
}

// Set builds a request for level (0..99, 0xFF restores the last level).
// Version 2 devices also get the default dimming duration.
func (h *switchMultilevelHandler) Set(level uint8) *serialapi.Frame {
	return h.setTo(h.endpoint, level)
}

func (h *switchMultilevelHandler) setTo(instance, level uint8) *serialapi.Frame {
	if level > 99 && level != 0xFF {
		level = 99
	}
	if h.Version() >= 2 {
		return h.commandTo(instance, levelCmdSet, level, switchMultilevelDefaultDuration)
	}
	return h.commandTo(instance, levelCmdSet, level)
}
