//go:build !no_mqtt

package mqtt

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"sort"
	"testing"

	"zwave-go-home/internal/zwave"
)

func switchNode() nodeInfo {
	return nodeInfo{
		HomeID:  0xC0FFEE01,
		ID:      5,
		Product: "Wall Plug",
		Classes: map[uint8][]zwave.CommandClass{
			0: {zwave.ClassBasic, zwave.ClassSwitchBinary, zwave.ClassBattery},
		},
	}
}

func TestDiscoveryBinarySwitch(t *testing.T) {
	msgs := buildDiscovery(switchNode(), "zwave")
	topics := extractTopics(msgs)
	for _, want := range []string{
		"homeassistant/switch/zwave_C0FFEE01_5/switch/config",
		"homeassistant/sensor/zwave_C0FFEE01_5/battery/config",
		"homeassistant/binary_sensor/zwave_C0FFEE01_5/battery_low/config",
	} {
		if !topics[want] {
			t.Errorf("missing discovery topic %s", want)
		}
	}

	var payload haDiscovery
	if err := json.Unmarshal(findPayload(t, msgs, "homeassistant/switch/zwave_C0FFEE01_5/switch/config"), &payload); err != nil {
		t.Fatal(err)
	}
	if payload.Name != "Wall Plug 5" {
		t.Errorf("name = %q", payload.Name)
	}
	if payload.StateTopic != "zwave/node_5" {
		t.Errorf("state_topic = %q", payload.StateTopic)
	}
	if payload.CommandTopic != "zwave/node_5/set" {
		t.Errorf("command_topic = %q", payload.CommandTopic)
	}
	if payload.PayloadOn != `{"state":"ON"}` {
		t.Errorf("payload_on = %q", payload.PayloadOn)
	}
	if payload.AvailabilityTopic != "zwave/bridge/state" {
		t.Errorf("availability_topic = %q", payload.AvailabilityTopic)
	}
}

func TestDiscoveryEndpoints(t *testing.T) {
	info := nodeInfo{
		HomeID: 0xC0FFEE01,
		ID:     9,
		Classes: map[uint8][]zwave.CommandClass{
			0: {zwave.ClassSwitchBinary, zwave.ClassMultiInstance},
			1: {zwave.ClassSwitchMultilevel},
			2: {zwave.ClassSwitchMultilevel},
		},
	}
	msgs := buildDiscovery(info, "zwave")
	topics := extractTopics(msgs)

	if topics["homeassistant/switch/zwave_C0FFEE01_9/switch/config"] {
		t.Error("root output should not be announced for a multi-endpoint node")
	}
	if len(msgs) != 2 {
		t.Fatalf("got %d messages, want 2", len(msgs))
	}

	var payload haDiscovery
	if err := json.Unmarshal(findPayload(t, msgs, "homeassistant/light/zwave_C0FFEE01_9/light_2/config"), &payload); err != nil {
		t.Fatal(err)
	}
	if payload.Name != "Z-Wave node 9 2" {
		t.Errorf("name = %q", payload.Name)
	}
	if payload.StateTopic != "zwave/node_9/endpoint_2" {
		t.Errorf("state_topic = %q", payload.StateTopic)
	}
	if payload.CommandTopic != "zwave/node_9/endpoint_2/set" {
		t.Errorf("command_topic = %q", payload.CommandTopic)
	}
	if payload.Schema != "json" || payload.BrightnessScale != 99 {
		t.Errorf("schema = %q, brightness_scale = %d", payload.Schema, payload.BrightnessScale)
	}
}

func TestDiscoveryNoClasses(t *testing.T) {
	if msgs := buildDiscovery(nodeInfo{ID: 3}, "zwave"); len(msgs) != 0 {
		t.Errorf("expected no discovery, got %d", len(msgs))
	}
}

func TestSensorReadingDiscovery(t *testing.T) {
	v := zwave.ValueChanged{Node: 5, Endpoint: 2, CommandClass: zwave.ClassSensorMultilevel, SensorType: 0x01, Scale: 1, Value: 70.5}
	msg := buildSensorReadingDiscovery(switchNode(), "zwave", v)

	if msg.Topic != "homeassistant/sensor/zwave_C0FFEE01_5/temperature_2/config" {
		t.Fatalf("topic = %q", msg.Topic)
	}
	var payload haDiscovery
	if err := json.Unmarshal(msg.Payload, &payload); err != nil {
		t.Fatal(err)
	}
	if payload.UnitOfMeasurement != "°F" {
		t.Errorf("unit = %q", payload.UnitOfMeasurement)
	}
	if payload.StateTopic != "zwave/node_5/endpoint_2" {
		t.Errorf("state_topic = %q", payload.StateTopic)
	}
	if payload.ValueTemplate != "{{ value_json.temperature }}" {
		t.Errorf("value_template = %q", payload.ValueTemplate)
	}
	if payload.Name != "Wall Plug 5 Temperature 2" {
		t.Errorf("name = %q", payload.Name)
	}
}

func TestSensorKindOf(t *testing.T) {
	tests := []struct {
		sensorType, scale uint8
		property, unit    string
	}{
		{0x01, 0, "temperature", "°C"},
		{0x03, 1, "luminance", "lx"},
		{0x04, 0, "power", "W"},
		{0x05, 0, "humidity", "%"},
		{0x2A, 0, "sensor_42", ""},
	}
	for _, tt := range tests {
		t.Run(tt.property, func(t *testing.T) {
			k := sensorKindOf(tt.sensorType, tt.scale)
			if k.property != tt.property || k.unit != tt.unit {
				t.Errorf("sensorKindOf(%d, %d) = %+v", tt.sensorType, tt.scale, k)
			}
		})
	}
}

func TestParseCommandTopic(t *testing.T) {
	tests := []struct {
		topic    string
		node, ep uint8
		ok       bool
	}{
		{"zwave/node_5/set", 5, 0, true},
		{"zwave/node_12/endpoint_3/set", 12, 3, true},
		{"zwave/node_0/set", 0, 0, false},
		{"zwave/node_5/endpoint_0/set", 0, 0, false},
		{"zwave/node_300/set", 0, 0, false},
		{"zwave/node_5", 0, 0, false},
		{"zwave/bridge/set", 0, 0, false},
		{"other/node_5/set", 0, 0, false},
		{"zwave/node_5/endpoint_1/extra/set", 0, 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.topic, func(t *testing.T) {
			node, ep, ok := parseCommandTopic("zwave", tt.topic)
			if ok != tt.ok || node != tt.node || ep != tt.ep {
				t.Errorf("parseCommandTopic(%q) = %d, %d, %v", tt.topic, node, ep, ok)
			}
		})
	}
}

func TestStateTopics(t *testing.T) {
	if got := stateTopic("zwave", 5, 0); got != "zwave/node_5" {
		t.Errorf("root = %q", got)
	}
	if got := stateTopic("zwave", 5, 2); got != "zwave/node_5/endpoint_2" {
		t.Errorf("endpoint = %q", got)
	}
	if got := configurationTopic("zwave", 5, 3); got != "zwave/node_5/configuration/3" {
		t.Errorf("configuration = %q", got)
	}
	if got := associationTopic("zwave", 5, 1); got != "zwave/node_5/association/1" {
		t.Errorf("association = %q", got)
	}
}

func TestValueProperties(t *testing.T) {
	tests := []struct {
		name string
		v    zwave.ValueChanged
		want map[string]any
	}{
		{"binary on", zwave.ValueChanged{CommandClass: zwave.ClassSwitchBinary, Value: 1}, map[string]any{"state": "ON"}},
		{"binary off", zwave.ValueChanged{CommandClass: zwave.ClassSwitchBinary}, map[string]any{"state": "OFF"}},
		{"multilevel", zwave.ValueChanged{CommandClass: zwave.ClassSwitchMultilevel, Value: 40},
			map[string]any{"state": "ON", "level": 40.0, "brightness": 40.0}},
		{"basic", zwave.ValueChanged{CommandClass: zwave.ClassBasic, Value: 99}, map[string]any{"basic": 99.0}},
		{"humidity", zwave.ValueChanged{CommandClass: zwave.ClassSensorMultilevel, SensorType: 0x05, Value: 41.5},
			map[string]any{"humidity": 41.5}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := valueProperties(tt.v); !reflect.DeepEqual(got, tt.want) {
				t.Errorf("valueProperties() = %v, want %v", got, tt.want)
			}
		})
	}
}

type fakeWriter struct {
	calls []string
	fail  error
}

func (w *fakeWriter) record(format string, args ...any) error {
	w.calls = append(w.calls, fmt.Sprintf(format, args...))
	return w.fail
}

func (w *fakeWriter) SetLevel(node, endpoint, level uint8) error {
	return w.record("level %d/%d=%d", node, endpoint, level)
}

func (w *fakeWriter) SetConfiguration(node, param uint8, value int32) error {
	return w.record("config %d/%d=%d", node, param, value)
}

func (w *fakeWriter) AddAssociation(node, group, member uint8) error {
	return w.record("assoc add %d/%d+%d", node, group, member)
}

func (w *fakeWriter) RemoveAssociation(node, group, member uint8) error {
	return w.record("assoc remove %d/%d-%d", node, group, member)
}

func (w *fakeWriter) SetWakeUpInterval(node uint8, interval uint32) error {
	return w.record("wakeup %d=%d", node, interval)
}

func TestApplyCommand(t *testing.T) {
	tests := []struct {
		name     string
		endpoint uint8
		payload  string
		want     []string
	}{
		{"on", 0, `{"state":"ON"}`, []string{"level 5/0=255"}},
		{"off on endpoint", 2, `{"state":"off"}`, []string{"level 5/2=0"}},
		{"on with brightness", 0, `{"state":"ON","brightness":30}`, []string{"level 5/0=30"}},
		{"level only", 1, `{"level":50}`, []string{"level 5/1=50"}},
		{"configuration", 0, `{"configuration":{"3":10,"7":-1}}`, []string{"config 5/3=10", "config 5/7=-1"}},
		{"association", 0, `{"association":[{"group":1,"add":[1,2],"remove":[9]}]}`,
			[]string{"assoc add 5/1+1", "assoc add 5/1+2", "assoc remove 5/1-9"}},
		{"wakeup", 0, `{"wakeup_interval":3600}`, []string{"wakeup 5=3600"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var cmd nodeCommand
			if err := json.Unmarshal([]byte(tt.payload), &cmd); err != nil {
				t.Fatalf("unmarshal: %v", err)
			}
			w := &fakeWriter{}
			if err := applyCommand(w, 5, tt.endpoint, cmd); err != nil {
				t.Fatalf("applyCommand: %v", err)
			}
			sort.Strings(w.calls)
			want := append([]string(nil), tt.want...)
			sort.Strings(want)
			if !reflect.DeepEqual(w.calls, want) {
				t.Errorf("calls = %v, want %v", w.calls, want)
			}
		})
	}
}

func TestApplyCommandErrors(t *testing.T) {
	var cmd nodeCommand
	if err := json.Unmarshal([]byte(`{"state":"TOGGLE","configuration":{"x":1,"2":5}}`), &cmd); err != nil {
		t.Fatal(err)
	}
	w := &fakeWriter{}
	err := applyCommand(w, 5, 0, cmd)
	if err == nil {
		t.Fatal("expected error")
	}
	if !reflect.DeepEqual(w.calls, []string{"config 5/2=5"}) {
		t.Errorf("calls = %v", w.calls)
	}

	sentinel := errors.New("node asleep")
	w = &fakeWriter{fail: sentinel}
	if err := applyCommand(w, 5, 0, nodeCommand{State: "ON"}); !errors.Is(err, sentinel) {
		t.Errorf("err = %v, want %v", err, sentinel)
	}
}

func TestMustJSON(t *testing.T) {
	result := mustJSON(zwave.Reading{Value: 10, Status: zwave.StatusPending})
	if string(result) != `{"value":10,"status":"pending"}` {
		t.Errorf("mustJSON = %s", result)
	}
	if got := mustJSON(make(chan int)); string(got) != "{}" {
		t.Errorf("unmarshalable value = %s", got)
	}
}

func extractTopics(msgs []discoveryMsg) map[string]bool {
	topics := make(map[string]bool)
	for _, m := range msgs {
		topics[m.Topic] = true
	}
	return topics
}

func findPayload(t *testing.T, msgs []discoveryMsg, topic string) []byte {
	t.Helper()
	for _, m := range msgs {
		if m.Topic == topic {
			return m.Payload
		}
	}
	t.Fatalf("discovery %s not found", topic)
	return nil
}
