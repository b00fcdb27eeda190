package zwave

import "fmt"

// DeviceClass is the basic/generic/specific triple a node or endpoint reports.
type DeviceClass struct {
	Basic    uint8 `json:"basic"`
	Generic  uint8 `json:"generic"`
	Specific uint8 `json:"specific"`
}

func (d DeviceClass) String() string {
	return fmt.Sprintf("%s/%s/0x%02X", basicName(d.Basic), genericName(d.Generic), d.Specific)
}

// Basic device classes.
const (
	BasicController       uint8 = 0x01
	BasicStaticController uint8 = 0x02
	BasicSlave            uint8 = 0x03
	BasicRoutingSlave     uint8 = 0x04
)

// Generic device classes.
const (
	GenericController         uint8 = 0x01
	GenericStaticController   uint8 = 0x02
	GenericAVControlPoint     uint8 = 0x03
	GenericDisplay            uint8 = 0x04
	GenericNotificationSensor uint8 = 0x07
	GenericThermostat         uint8 = 0x08
	GenericWindowCovering     uint8 = 0x09
	GenericRepeaterSlave      uint8 = 0x0F
	GenericSwitchBinary       uint8 = 0x10
	GenericSwitchMultilevel   uint8 = 0x11
	GenericSwitchRemote       uint8 = 0x12
	GenericSwitchToggle       uint8 = 0x13
	GenericZIPGateway         uint8 = 0x15
	GenericVentilation        uint8 = 0x16
	GenericSecurityPanel      uint8 = 0x17
	GenericWallController     uint8 = 0x18
	GenericSensorBinary       uint8 = 0x20
	GenericSensorMultilevel   uint8 = 0x21
	GenericMeterPulse         uint8 = 0x30
	GenericMeter              uint8 = 0x31
	GenericEntryControl       uint8 = 0x40
	GenericSemiInteroperable  uint8 = 0x50
	GenericSensorAlarm        uint8 = 0xA1
	GenericNonInteroperable   uint8 = 0xFF
)

type genericClass struct {
	name      string
	specifics map[uint8]string
}

// Specific 0x00 ("not used") is valid under every generic class.
var genericClasses = map[uint8]genericClass{
	GenericController: {"Remote Controller", map[uint8]string{
		0x01: "Portable Remote Controller", 0x02: "Portable Scene Controller", 0x03: "Portable Installer Tool",
	}},
	GenericStaticController: {"Static Controller", map[uint8]string{
		0x01: "PC Controller", 0x02: "Scene Controller", 0x03: "Static Installer Tool",
	}},
	GenericAVControlPoint: {"AV Control Point", map[uint8]string{
		0x04: "Satellite Receiver", 0x11: "Satellite Receiver V2", 0x12: "Doorbell",
	}},
	GenericDisplay:            {"Display", map[uint8]string{0x01: "Simple Display"}},
	GenericNotificationSensor: {"Notification Sensor", map[uint8]string{0x01: "Notification Sensor"}},
	GenericThermostat: {"Thermostat", map[uint8]string{
		0x01: "Thermostat Heating", 0x02: "Thermostat General", 0x03: "Setback Schedule Thermostat",
		0x04: "Setpoint Thermostat", 0x05: "Setback Thermostat", 0x06: "Thermostat General V2",
	}},
	GenericWindowCovering: {"Window Covering", map[uint8]string{0x01: "Simple Window Covering"}},
	GenericRepeaterSlave:  {"Repeater Slave", map[uint8]string{0x01: "Basic Repeater Slave"}},
	GenericSwitchBinary: {"Binary Switch", map[uint8]string{
		0x01: "Binary Power Switch", 0x03: "Binary Scene Switch", 0x04: "Power Strip", 0x05: "Siren",
	}},
	GenericSwitchMultilevel: {"Multilevel Switch", map[uint8]string{
		0x01: "Multilevel Power Switch", 0x03: "Multiposition Motor", 0x04: "Multilevel Scene Switch",
		0x05: "Motor Control Class A", 0x06: "Motor Control Class B", 0x07: "Motor Control Class C",
	}},
	GenericSwitchRemote: {"Remote Switch", map[uint8]string{
		0x01: "Binary Remote Switch", 0x02: "Multilevel Remote Switch",
		0x03: "Binary Toggle Remote Switch", 0x04: "Multilevel Toggle Remote Switch",
	}},
	GenericSwitchToggle: {"Toggle Switch", map[uint8]string{
		0x01: "Binary Toggle Switch", 0x02: "Multilevel Toggle Switch",
	}},
	GenericZIPGateway:     {"Z/IP Gateway", map[uint8]string{0x01: "Z/IP Tunneling Gateway", 0x02: "Z/IP Advanced Gateway"}},
	GenericVentilation:    {"Ventilation", map[uint8]string{0x01: "Residential Heat Recovery Ventilation"}},
	GenericSecurityPanel:  {"Security Panel", map[uint8]string{0x01: "Zoned Security Panel"}},
	GenericWallController: {"Wall Controller", map[uint8]string{0x01: "Basic Wall Controller"}},
	GenericSensorBinary:   {"Binary Sensor", map[uint8]string{0x01: "Routing Binary Sensor"}},
	GenericSensorMultilevel: {"Multilevel Sensor", map[uint8]string{
		0x01: "Routing Multilevel Sensor", 0x02: "Chimney Fan",
	}},
	GenericMeterPulse: {"Pulse Meter", nil},
	GenericMeter: {"Meter", map[uint8]string{
		0x01: "Simple Meter", 0x02: "Advanced Energy Control", 0x03: "Whole Home Meter Simple",
	}},
	GenericEntryControl: {"Entry Control", map[uint8]string{
		0x01: "Door Lock", 0x02: "Advanced Door Lock", 0x03: "Secure Keypad Door Lock",
		0x05: "Secure Door", 0x06: "Secure Gate", 0x07: "Secure Barrier Add-on",
	}},
	GenericSemiInteroperable: {"Semi Interoperable", map[uint8]string{0x01: "Energy Production"}},
	GenericSensorAlarm: {"Alarm Sensor", map[uint8]string{
		0x01: "Basic Routing Alarm Sensor", 0x02: "Routing Alarm Sensor", 0x03: "Basic Zensor Alarm Sensor",
		0x04: "Zensor Alarm Sensor", 0x05: "Advanced Zensor Alarm Sensor", 0x06: "Basic Routing Smoke Sensor",
		0x07: "Routing Smoke Sensor", 0x08: "Basic Zensor Smoke Sensor", 0x09: "Zensor Smoke Sensor",
		0x0A: "Advanced Zensor Smoke Sensor",
	}},
	GenericNonInteroperable: {"Non Interoperable", nil},
}

func basicName(b uint8) string {
	switch b {
	case BasicController:
		return "Controller"
	case BasicStaticController:
		return "Static Controller"
	case BasicSlave:
		return "Slave"
	case BasicRoutingSlave:
		return "Routing Slave"
	default:
		return fmt.Sprintf("0x%02X", b)
	}
}

func genericName(g uint8) string {
	if gc, ok := genericClasses[g]; ok {
		return gc.name
	}
	return fmt.Sprintf("0x%02X", g)
}

// ResolveDeviceClass checks that generic/specific is a known pair and returns
// the triple with basic filled in. Unknown pairs wrap ErrUnresolvedDeviceClass.
func ResolveDeviceClass(basic, generic, specific uint8) (DeviceClass, error) {
	gc, ok := genericClasses[generic]
	if !ok {
		return DeviceClass{}, fmt.Errorf("generic 0x%02X: %w", generic, ErrUnresolvedDeviceClass)
	}
	if specific != 0x00 {
		if _, ok := gc.specifics[specific]; !ok {
			return DeviceClass{}, fmt.Errorf("specific 0x%02X under %s: %w", specific, gc.name, ErrUnresolvedDeviceClass)
		}
	}
	return DeviceClass{Basic: basic, Generic: generic, Specific: specific}, nil
}

// SpecificName returns the label of the specific class, or "" if unknown.
func (d DeviceClass) SpecificName() string {
	return genericClasses[d.Generic].specifics[d.Specific]
}
