package zwave

import "fmt"

// ProductDatabase resolves a node's identifiers to catalogue metadata.
type ProductDatabase interface {
	Lookup(manufacturer, deviceType, deviceID uint16, appVersion string) (*Product, bool)
}

// Product is the catalogue entry for one device model.
type Product struct {
	Manufacturer   uint16
	DeviceType     uint16
	DeviceID       uint16
	Name           string
	Label          string
	CommandClasses []CommandClass
	Parameters     []ParameterInfo
	Groups         []GroupInfo
}

// ParameterInfo describes one configuration parameter.
type ParameterInfo struct {
	Index     uint8
	Label     string
	Size      int
	Default   int32
	Min       int32
	Max       int32
	ReadOnly  bool
	WriteOnly bool
	Options   []ParameterOption
}

// ParameterOption is a labelled value of an enumerated parameter.
type ParameterOption struct {
	Value int32
	Label string
}

// GroupInfo describes one association group.
type GroupInfo struct {
	Index    uint8
	Label    string
	MaxNodes uint8
}

// Allows checks value against the catalogue: Min..Max when the range is
// set, otherwise one of Options when any are listed.
func (pi ParameterInfo) Allows(value int32) error {
	if pi.Max > pi.Min {
		if value < pi.Min || value > pi.Max {
			return fmt.Errorf("parameter %d: %d not in %d..%d: %w", pi.Index, value, pi.Min, pi.Max, ErrValueOutOfRange)
		}
		return nil
	}
	if len(pi.Options) == 0 {
		return nil
	}
	for _, o := range pi.Options {
		if o.Value == value {
			return nil
		}
	}
	return fmt.Errorf("parameter %d: %d is not a listed option: %w", pi.Index, value, ErrValueOutOfRange)
}

// Parameter returns the metadata for index.
func (p *Product) Parameter(index uint8) (ParameterInfo, bool) {
	for _, pi := range p.Parameters {
		if pi.Index == index {
			return pi, true
		}
	}
	return ParameterInfo{}, false
}
