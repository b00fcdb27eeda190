package zwave

import (
	"fmt"
	"math"
	"sort"

	"zwave-go-home/internal/serialapi"
)

const (
	sensorMultilevelCmdGet    byte = 0x04
	sensorMultilevelCmdReport byte = 0x05
)

// SensorReading is the last value of one sensor type.
type SensorReading struct {
	Type  uint8   `json:"type"`
	Scale uint8   `json:"scale"`
	Value float64 `json:"value"`
}

type sensorMultilevelHandler struct {
	baseHandler
	readings map[uint8]SensorReading
}

func newSensorMultilevelHandler(n *Node, endpoint uint8) Handler {
	h := &sensorMultilevelHandler{readings: make(map[uint8]SensorReading)}
	h.init(ClassSensorMultilevel, n, endpoint)
	return h
}

func (h *sensorMultilevelHandler) Handle(payload serialapi.Payload, endpoint uint8) (*Event, error) {
	cmd, err := commandByte(payload)
	if err != nil {
		return nil, err
	}
	if cmd != sensorMultilevelCmdReport {
		return nil, h.unsupported(cmd)
	}
	if err := payload.Check(1, 2); err != nil {
		return nil, fmt.Errorf("sensor report: %w", err)
	}
	sensorType, meta := payload[1], payload[2]
	precision := int(meta >> 5)
	scale := (meta >> 3) & 0x03
	raw, err := payload.ValueAt(3, int(meta&0x07))
	if err != nil {
		return nil, fmt.Errorf("sensor report type %d: %w", sensorType, err)
	}
	value := float64(raw) / math.Pow10(precision)

	h.mu.Lock()
	h.readings[sensorType] = SensorReading{Type: sensorType, Scale: scale, Value: value}
	h.mu.Unlock()
	h.logger.Debug("sensor", "node", h.node.id, "type", sensorType, "scale", scale, "value", value)
	return h.emit(EventValueChanged, ValueChanged{
		Node:         h.node.id,
		Endpoint:     endpoint,
		CommandClass: ClassSensorMultilevel,
		SensorType:   sensorType,
		Scale:        scale,
		Value:        value,
	}), nil
}

func (h *sensorMultilevelHandler) StaticRequests() []*serialapi.Frame {
	return []*serialapi.Frame{h.Get()}
}

// Get builds a request for the device's default sensor.
func (h *sensorMultilevelHandler) Get() *serialapi.Frame {
	return h.command(sensorMultilevelCmdGet)
}

// Readings returns the last value of every reported sensor type.
func (h *sensorMultilevelHandler) Readings() []SensorReading {
	h.mu.Lock()
	out := make([]SensorReading, 0, len(h.readings))
	for _, r := range h.readings {
		out = append(out, r)
	}
	h.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Type < out[j].Type })
	return out
}
