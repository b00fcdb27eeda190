package store

import "time"

// NodeSnapshot is the persisted form of an interviewed Z-Wave node.
// CBOR encoding uses integer keys for compactness.
type NodeSnapshot struct {
	ID                 uint8              `cbor:"1,keyasint" json:"id"`
	Basic              uint8              `cbor:"2,keyasint" json:"basic"`
	Generic            uint8              `cbor:"3,keyasint" json:"generic"`
	Specific           uint8              `cbor:"4,keyasint" json:"specific"`
	Listening          bool               `cbor:"5,keyasint" json:"listening"`
	Routing            bool               `cbor:"6,keyasint" json:"routing"`
	ManufacturerKnown  bool               `cbor:"7,keyasint" json:"manufacturer_known"`
	Manufacturer       uint16             `cbor:"8,keyasint" json:"manufacturer"`
	DeviceType         uint16             `cbor:"9,keyasint" json:"device_type"`
	DeviceID           uint16             `cbor:"10,keyasint" json:"device_id"`
	ApplicationVersion string             `cbor:"11,keyasint,omitempty" json:"application_version,omitempty"`
	Classes            []ClassSnapshot    `cbor:"12,keyasint" json:"classes"`
	Endpoints          []EndpointSnapshot `cbor:"13,keyasint,omitempty" json:"endpoints,omitempty"`
	SavedAt            time.Time          `cbor:"14,keyasint" json:"saved_at"`
	WakeUp             *WakeUpSnapshot    `cbor:"15,keyasint,omitempty" json:"wake_up,omitempty"`
}

// WakeUpSnapshot is the last wake-up interval a sleeping node confirmed.
type WakeUpSnapshot struct {
	Interval uint32 `cbor:"1,keyasint" json:"interval"`
	Target   uint8  `cbor:"2,keyasint" json:"target"`
}

// ClassSnapshot records one command class with its negotiated version.
type ClassSnapshot struct {
	ID        uint8 `cbor:"1,keyasint" json:"id"`
	Version   uint8 `cbor:"2,keyasint" json:"version"`
	Instances uint8 `cbor:"3,keyasint" json:"instances"`
}

// EndpointSnapshot records a multi-channel endpoint.
type EndpointSnapshot struct {
	ID       uint8           `cbor:"1,keyasint" json:"id"`
	Generic  uint8           `cbor:"2,keyasint" json:"generic"`
	Specific uint8           `cbor:"3,keyasint" json:"specific"`
	Failed   bool            `cbor:"4,keyasint,omitempty" json:"failed,omitempty"`
	Classes  []ClassSnapshot `cbor:"5,keyasint" json:"classes"`
}

// NetworkState holds the identity of the controller the nodes belong to.
type NetworkState struct {
	HomeID       uint32 `cbor:"1,keyasint" json:"home_id"`
	ControllerID uint8  `cbor:"2,keyasint" json:"controller_id"`
}
