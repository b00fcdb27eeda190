//go:build !no_mqtt

package mqtt

import (
	"fmt"
	"slices"
	"strconv"

	"zwave-go-home/internal/zwave"
)

// discoveryMsg is a Home Assistant MQTT discovery payload.
type discoveryMsg struct {
	Topic   string // e.g. "homeassistant/sensor/zwave_C0FFEE01_5/temperature/config"
	Payload []byte // JSON, empty means delete
}

// haDevice is the "device" block in HA discovery.
type haDevice struct {
	Identifiers  []string `json:"identifiers"`
	Manufacturer string   `json:"manufacturer,omitempty"`
	Model        string   `json:"model,omitempty"`
	Name         string   `json:"name"`
}

// haDiscovery is a generic HA discovery payload.
type haDiscovery struct {
	Name                string   `json:"name"`
	UniqueID            string   `json:"unique_id"`
	StateTopic          string   `json:"state_topic"`
	CommandTopic        string   `json:"command_topic,omitempty"`
	AvailabilityTopic   string   `json:"availability_topic"`
	ValueTemplate       string   `json:"value_template,omitempty"`
	UnitOfMeasurement   string   `json:"unit_of_measurement,omitempty"`
	DeviceClass         string   `json:"device_class,omitempty"`
	StateClass          string   `json:"state_class,omitempty"`
	PayloadOn           string   `json:"payload_on,omitempty"`
	PayloadOff          string   `json:"payload_off,omitempty"`
	StateOn             string   `json:"state_on,omitempty"`
	StateOff            string   `json:"state_off,omitempty"`
	BrightnessScale     int      `json:"brightness_scale,omitempty"`
	SupportedColorModes []string `json:"supported_color_modes,omitempty"`
	Schema              string   `json:"schema,omitempty"`
	Device              haDevice `json:"device"`
}

// nodeInfo is what discovery needs to know about a node.
type nodeInfo struct {
	HomeID       uint32
	ID           uint8
	Manufacturer uint16
	Product      string
	// Classes per endpoint; 0 is the root.
	Classes map[uint8][]zwave.CommandClass
}

func describeNode(n *zwave.Node, homeID uint32) nodeInfo {
	info := nodeInfo{
		HomeID:  homeID,
		ID:      n.ID(),
		Classes: make(map[uint8][]zwave.CommandClass),
	}
	if m, _, _, ok := n.Manufacturer(); ok {
		info.Manufacturer = m
	}
	if p := n.Product(); p != nil {
		info.Product = p.Name
	}
	for _, h := range n.Handlers() {
		info.Classes[0] = append(info.Classes[0], h.CommandClass())
	}
	for _, ep := range n.Endpoints() {
		for _, h := range ep.Handlers() {
			info.Classes[ep.ID()] = append(info.Classes[ep.ID()], h.CommandClass())
		}
	}
	return info
}

// displayName returns a display name for the node.
func (n nodeInfo) displayName() string {
	if n.Product != "" {
		return n.Product + " " + strconv.Itoa(int(n.ID))
	}
	return "Z-Wave node " + strconv.Itoa(int(n.ID))
}

// identifier returns the unique identifier for HA device registry.
func (n nodeInfo) identifier() string {
	return fmt.Sprintf("zwave_%08X_%d", n.HomeID, n.ID)
}

func (n nodeInfo) haDevice() haDevice {
	d := haDevice{
		Identifiers: []string{n.identifier()},
		Model:       n.Product,
		Name:        n.displayName(),
	}
	if n.Manufacturer != 0 {
		d.Manufacturer = fmt.Sprintf("0x%04X", n.Manufacturer)
	}
	return d
}

func (n nodeInfo) has(endpoint uint8, class zwave.CommandClass) bool {
	for _, c := range n.Classes[endpoint] {
		if c == class {
			return true
		}
	}
	return false
}

// buildDiscovery generates HA discovery messages for a node based on its
// command classes. Sensors are announced separately once their type is known.
func buildDiscovery(info nodeInfo, prefix string) []discoveryMsg {
	if len(info.Classes) == 0 {
		return nil
	}

	avail := prefix + "/bridge/state"
	haDev := info.haDevice()

	endpoints := make([]uint8, 0, len(info.Classes))
	for ep := range info.Classes {
		endpoints = append(endpoints, ep)
	}
	slices.Sort(endpoints)

	var msgs []discoveryMsg
	for _, ep := range endpoints {
		// A multi-endpoint node's outputs live on its endpoints.
		if ep == 0 && len(endpoints) > 1 {
			continue
		}
		state := stateTopic(prefix, info.ID, ep)
		switch {
		case info.has(ep, zwave.ClassSwitchMultilevel):
			msgs = append(msgs, buildLight(info, haDev, ep, state, avail))
		case info.has(ep, zwave.ClassSwitchBinary):
			msgs = append(msgs, buildSwitch(info, haDev, ep, state, avail))
		}
	}

	if info.has(0, zwave.ClassBattery) {
		state := stateTopic(prefix, info.ID, 0)
		msgs = append(msgs, buildSensor(info, haDev, state, avail,
			"battery", "Battery", "battery", "%", "{{ value_json.battery }}"))
		msgs = append(msgs, buildBinarySensor(info, haDev, state, avail,
			"battery_low", "Battery Low", "battery",
			"{{ 'ON' if value_json.battery_low else 'OFF' }}"))
	}
	return msgs
}

// buildSensorReadingDiscovery announces the sensor behind a multilevel reading.
func buildSensorReadingDiscovery(info nodeInfo, prefix string, v zwave.ValueChanged) discoveryMsg {
	kind := sensorKindOf(v.SensorType, v.Scale)
	return buildSensor(info, info.haDevice(), stateTopic(prefix, info.ID, v.Endpoint), prefix+"/bridge/state",
		kind.property+objectSuffix(v.Endpoint), kind.label+nameSuffix(v.Endpoint), kind.deviceClass, kind.unit,
		"{{ value_json."+kind.property+" }}")
}

func nameSuffix(ep uint8) string {
	if ep == 0 {
		return ""
	}
	return " " + strconv.Itoa(int(ep))
}

func objectSuffix(ep uint8) string {
	if ep == 0 {
		return ""
	}
	return "_" + strconv.Itoa(int(ep))
}

func buildSensor(info nodeInfo, haDev haDevice, stateTopic, avail string,
	objectID, suffix, deviceClass, unit, valueTmpl string) discoveryMsg {

	nodeID := info.identifier()
	topic := fmt.Sprintf("homeassistant/sensor/%s/%s/config", nodeID, objectID)
	payload := haDiscovery{
		Name:              info.displayName() + " " + suffix,
		UniqueID:          nodeID + "_" + objectID,
		StateTopic:        stateTopic,
		AvailabilityTopic: avail,
		ValueTemplate:     valueTmpl,
		UnitOfMeasurement: unit,
		DeviceClass:       deviceClass,
		StateClass:        "measurement",
		Device:            haDev,
	}
	return discoveryMsg{Topic: topic, Payload: mustJSON(payload)}
}

func buildBinarySensor(info nodeInfo, haDev haDevice, stateTopic, avail string,
	objectID, suffix, deviceClass, valueTmpl string) discoveryMsg {

	nodeID := info.identifier()
	topic := fmt.Sprintf("homeassistant/binary_sensor/%s/%s/config", nodeID, objectID)
	payload := haDiscovery{
		Name:              info.displayName() + " " + suffix,
		UniqueID:          nodeID + "_" + objectID,
		StateTopic:        stateTopic,
		AvailabilityTopic: avail,
		ValueTemplate:     valueTmpl,
		DeviceClass:       deviceClass,
		PayloadOn:         "ON",
		PayloadOff:        "OFF",
		Device:            haDev,
	}
	return discoveryMsg{Topic: topic, Payload: mustJSON(payload)}
}

func buildLight(info nodeInfo, haDev haDevice, ep uint8, stateTopic, avail string) discoveryMsg {
	nodeID := info.identifier()
	objectID := "light" + objectSuffix(ep)
	topic := fmt.Sprintf("homeassistant/light/%s/%s/config", nodeID, objectID)
	payload := haDiscovery{
		Name:                info.displayName() + nameSuffix(ep),
		UniqueID:            nodeID + "_" + objectID,
		StateTopic:          stateTopic,
		CommandTopic:        stateTopic + "/set",
		AvailabilityTopic:   avail,
		SupportedColorModes: []string{"brightness"},
		BrightnessScale:     99,
		Schema:              "json",
		Device:              haDev,
	}
	return discoveryMsg{Topic: topic, Payload: mustJSON(payload)}
}

func buildSwitch(info nodeInfo, haDev haDevice, ep uint8, stateTopic, avail string) discoveryMsg {
	nodeID := info.identifier()
	objectID := "switch" + objectSuffix(ep)
	topic := fmt.Sprintf("homeassistant/switch/%s/%s/config", nodeID, objectID)
	payload := haDiscovery{
		Name:              info.displayName() + nameSuffix(ep),
		UniqueID:          nodeID + "_" + objectID,
		StateTopic:        stateTopic,
		CommandTopic:      stateTopic + "/set",
		AvailabilityTopic: avail,
		ValueTemplate:     "{{ value_json.state }}",
		PayloadOn:         `{"state":"ON"}`,
		PayloadOff:        `{"state":"OFF"}`,
		StateOn:           "ON",
		StateOff:          "OFF",
		Device:            haDev,
	}
	return discoveryMsg{Topic: topic, Payload: mustJSON(payload)}
}

// sensorKind names a multilevel sensor type for state and discovery.
type sensorKind struct {
	property    string
	label       string
	deviceClass string
	unit        string
}

// sensorKindOf maps a multilevel sensor type and scale to a sensor kind.
// Unlisted types fall back to sensor_<type> without a unit.
func sensorKindOf(sensorType, scale uint8) sensorKind {
	switch sensorType {
	case 0x01:
		unit := "°C"
		if scale == 1 {
			unit = "°F"
		}
		return sensorKind{"temperature", "Temperature", "temperature", unit}
	case 0x03:
		unit := "%"
		if scale == 1 {
			unit = "lx"
		}
		return sensorKind{"luminance", "Luminance", "illuminance", unit}
	case 0x04:
		unit := "W"
		if scale == 1 {
			unit = "BTU/h"
		}
		return sensorKind{"power", "Power", "power", unit}
	case 0x05:
		return sensorKind{"humidity", "Humidity", "humidity", "%"}
	case 0x0F:
		return sensorKind{"voltage", "Voltage", "voltage", "V"}
	case 0x10:
		return sensorKind{"current", "Current", "current", "A"}
	default:
		id := "sensor_" + strconv.Itoa(int(sensorType))
		return sensorKind{id, "Sensor " + strconv.Itoa(int(sensorType)), "", ""}
	}
}
