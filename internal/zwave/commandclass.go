package zwave

import "fmt"

// CommandClass is a one-byte Z-Wave command class identifier.
type CommandClass uint8

const (
	ClassNoOperation              CommandClass = 0x00
	ClassBasic                    CommandClass = 0x20
	ClassSwitchBinary             CommandClass = 0x25
	ClassSwitchMultilevel         CommandClass = 0x26
	ClassSwitchAll                CommandClass = 0x27
	ClassSceneActivation          CommandClass = 0x2B
	ClassSensorBinary             CommandClass = 0x30
	ClassSensorMultilevel         CommandClass = 0x31
	ClassMeter                    CommandClass = 0x32
	ClassThermostatMode           CommandClass = 0x40
	ClassThermostatSetpoint       CommandClass = 0x43
	ClassMultiInstance            CommandClass = 0x60
	ClassDoorLock                 CommandClass = 0x62
	ClassConfiguration            CommandClass = 0x70
	ClassAlarm                    CommandClass = 0x71
	ClassManufacturerSpecific     CommandClass = 0x72
	ClassPowerLevel               CommandClass = 0x73
	ClassProtection               CommandClass = 0x75
	ClassNodeNaming               CommandClass = 0x77
	ClassBattery                  CommandClass = 0x80
	ClassClock                    CommandClass = 0x81
	ClassHail                     CommandClass = 0x82
	ClassWakeUp                   CommandClass = 0x84
	ClassAssociation              CommandClass = 0x85
	ClassVersion                  CommandClass = 0x86
	ClassIndicator                CommandClass = 0x87
	ClassMultiInstanceAssociation CommandClass = 0x8E
	ClassMultiCommand             CommandClass = 0x8F
	ClassSecurity                 CommandClass = 0x98
	ClassSensorAlarm              CommandClass = 0x9C

	// supportControlMark separates supported from controlled classes in NIF
	// and capability lists.
	supportControlMark byte = 0xEF
)

func (c CommandClass) String() string {
	if l, ok := classLabels[c]; ok {
		return l
	}
	return fmt.Sprintf("0x%02X", uint8(c))
}

var classLabels = map[CommandClass]string{
	ClassNoOperation:              "NoOperation",
	ClassBasic:                    "Basic",
	ClassSwitchBinary:             "SwitchBinary",
	ClassSwitchMultilevel:         "SwitchMultilevel",
	ClassSwitchAll:                "SwitchAll",
	ClassSceneActivation:          "SceneActivation",
	ClassSensorBinary:             "SensorBinary",
	ClassSensorMultilevel:         "SensorMultilevel",
	ClassMeter:                    "Meter",
	ClassThermostatMode:           "ThermostatMode",
	ClassThermostatSetpoint:       "ThermostatSetpoint",
	ClassMultiInstance:            "MultiInstance",
	ClassDoorLock:                 "DoorLock",
	ClassConfiguration:            "Configuration",
	ClassAlarm:                    "Alarm",
	ClassManufacturerSpecific:     "ManufacturerSpecific",
	ClassPowerLevel:               "PowerLevel",
	ClassProtection:               "Protection",
	ClassNodeNaming:               "NodeNaming",
	ClassBattery:                  "Battery",
	ClassClock:                    "Clock",
	ClassHail:                     "Hail",
	ClassWakeUp:                   "WakeUp",
	ClassAssociation:              "Association",
	ClassVersion:                  "Version",
	ClassIndicator:                "Indicator",
	ClassMultiInstanceAssociation: "MultiInstanceAssociation",
	ClassMultiCommand:             "MultiCommand",
	ClassSecurity:                 "Security",
	ClassSensorAlarm:              "SensorAlarm",
}

// supportedClasses returns the class ids in list up to the support/control mark.
func supportedClasses(list []byte) []CommandClass {
	out := make([]CommandClass, 0, len(list))
	for _, b := range list {
		if b == supportControlMark {
			break
		}
		out = append(out, CommandClass(b))
	}
	return out
}
