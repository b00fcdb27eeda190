package zwave

import (
	"fmt"
	"sort"

	"zwave-go-home/internal/serialapi"
)

const (
	configurationCmdSet    byte = 0x04
	configurationCmdGet    byte = 0x05
	configurationCmdReport byte = 0x06
)

// ConfigParameter is the known state of one configuration parameter.
// Reported is false until the device has sent the value at least once.
type ConfigParameter struct {
	Index     uint8 `json:"index"`
	Size      int   `json:"size"`
	Value     int32 `json:"value"`
	Reported  bool  `json:"reported"`
	ReadOnly  bool  `json:"read_only,omitempty"`
	WriteOnly bool  `json:"write_only,omitempty"`
}

type configurationHandler struct {
	baseHandler
	params map[uint8]*ConfigParameter
}

func newConfigurationHandler(n *Node, endpoint uint8) Handler {
	h := &configurationHandler{params: make(map[uint8]*ConfigParameter)}
	h.init(ClassConfiguration, n, endpoint)
	return h
}

func (h *configurationHandler) Handle(payload serialapi.Payload, endpoint uint8) (*Event, error) {
	cmd, err := commandByte(payload)
	if err != nil {
		return nil, err
	}
	if cmd != configurationCmdReport {
		return nil, h.unsupported(cmd)
	}

	index, err := payload.ByteAt(1)
	if err != nil {
		return nil, fmt.Errorf("configuration report: %w", err)
	}
	sizeByte, err := payload.ByteAt(2)
	if err != nil {
		return nil, fmt.Errorf("configuration report %d: %w", index, err)
	}
	size := int(sizeByte & 0x07)
	value, err := payload.ValueAt(3, size)
	if err != nil {
		return nil, fmt.Errorf("configuration report %d: %w", index, err)
	}

	h.mu.Lock()
	p := h.param(index)
	p.Size = size
	p.Value = value
	p.Reported = true
	h.mu.Unlock()

	h.logger.Debug("configuration report", "node", h.node.id, "parameter", index, "size", size, "value", value)
	return h.emit(EventConfigurationParameterChanged, ConfigurationParameterChanged{
		Node:      h.node.id,
		Parameter: index,
		Size:      size,
		Value:     value,
	}), nil
}

// param returns the entry for index, creating it. Caller holds mu.
func (h *configurationHandler) param(index uint8) *ConfigParameter {
	p, ok := h.params[index]
	if !ok {
		p = &ConfigParameter{Index: index}
		h.params[index] = p
	}
	return p
}

// Get builds a request for parameter index.
func (h *configurationHandler) Get(index uint8) *serialapi.Frame {
	return h.command(configurationCmdGet, index)
}

// Set builds a write of value to parameter index. The value is encoded with
// the parameter's known size, or the smallest size that holds it.
func (h *configurationHandler) Set(index uint8, value int32) (*serialapi.Frame, error) {
	h.mu.Lock()
	size := serialapi.ValueSize(value)
	if p, ok := h.params[index]; ok {
		if p.ReadOnly {
			h.mu.Unlock()
			return nil, fmt.Errorf("parameter %d: %w", index, ErrReadOnlyParameter)
		}
		if p.Size > 0 {
			size = p.Size
		}
	}
	h.mu.Unlock()

	cmd := []byte{configurationCmdSet, index, byte(size)}
	cmd = serialapi.PutValue(cmd, value, size)
	return h.command(cmd...), nil
}

// Parameter returns a copy of the state of parameter index.
func (h *configurationHandler) Parameter(index uint8) (ConfigParameter, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	p, ok := h.params[index]
	if !ok {
		return ConfigParameter{Index: index}, false
	}
	return *p, true
}

// Parameters returns every known parameter ordered by index.
func (h *configurationHandler) Parameters() []ConfigParameter {
	h.mu.Lock()
	out := make([]ConfigParameter, 0, len(h.params))
	for _, p := range h.params {
		out = append(out, *p)
	}
	h.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Index < out[j].Index })
	return out
}

func (h *configurationHandler) applyProduct(prod *Product) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, pi := range prod.Parameters {
		p := h.param(pi.Index)
		if !p.Reported && pi.Size > 0 {
			p.Size = pi.Size
		}
		p.ReadOnly = pi.ReadOnly
		p.WriteOnly = pi.WriteOnly
	}
}
