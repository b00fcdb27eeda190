package zwave

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"
)

// handlerFactory builds the handler for one class on a node root (endpoint 0)
// or on an endpoint.
type handlerFactory func(n *Node, endpoint uint8) Handler

// Descriptor describes a command class the engine recognizes. Classes with a
// nil factory are known by name but have no handler.
type Descriptor struct {
	ID         CommandClass
	Label      string
	MaxVersion uint8
	factory    handlerFactory
}

// HasHandler reports whether the class can be instantiated.
func (d Descriptor) HasHandler() bool {
	return d.factory != nil
}

// builtinDescriptors lists every class the engine recognizes.
func builtinDescriptors() []Descriptor {
	list := []struct {
		id         CommandClass
		maxVersion uint8
		factory    handlerFactory
	}{
		{ClassNoOperation, 1, newNoOperationHandler},
		{ClassBasic, 1, newBasicHandler},
		{ClassSwitchBinary, 1, newSwitchBinaryHandler},
		{ClassSwitchMultilevel, 2, newSwitchMultilevelHandler},
		{ClassSwitchAll, 1, nil},
		{ClassSceneActivation, 1, nil},
		{ClassSensorBinary, 1, nil},
		{ClassSensorMultilevel, 5, newSensorMultilevelHandler},
		{ClassMeter, 1, nil},
		{ClassThermostatMode, 1, nil},
		{ClassThermostatSetpoint, 1, nil},
		{ClassMultiInstance, 2, newMultiInstanceHandler},
		{ClassDoorLock, 1, nil},
		{ClassConfiguration, 1, newConfigurationHandler},
		{ClassAlarm, 2, nil},
		{ClassManufacturerSpecific, 1, newManufacturerSpecificHandler},
		{ClassPowerLevel, 1, nil},
		{ClassProtection, 1, nil},
		{ClassNodeNaming, 1, nil},
		{ClassBattery, 1, newBatteryHandler},
		{ClassClock, 1, newClockHandler},
		{ClassHail, 1, nil},
		{ClassWakeUp, 2, newWakeUpHandler},
		{ClassAssociation, 2, newAssociationHandler},
		{ClassVersion, 1, newVersionHandler},
		{ClassIndicator, 1, nil},
		{ClassMultiInstanceAssociation, 2, nil},
		{ClassMultiCommand, 1, nil},
		{ClassSecurity, 1, nil},
		{ClassSensorAlarm, 1, nil},
	}
	out := make([]Descriptor, 0, len(list))
	for _, e := range list {
		out = append(out, Descriptor{ID: e.id, Label: classLabels[e.id], MaxVersion: e.maxVersion, factory: e.factory})
	}
	return out
}

// Classes answered once per node; the multi-instance engine does not ask
// for their instance count.
var defaultSingleInstance = []CommandClass{
	ClassNoOperation,
	ClassAssociation,
	ClassMultiInstanceAssociation,
	ClassConfiguration,
	ClassClock,
	ClassWakeUp,
	ClassBattery,
}

// Registry maps command class ids to descriptors and handler factories.
type Registry struct {
	mu             sync.RWMutex
	classes        map[CommandClass]Descriptor
	singleInstance map[CommandClass]bool
	logger         *slog.Logger
}

// NewRegistry creates a registry holding every class the engine recognizes.
func NewRegistry(logger *slog.Logger) *Registry {
	r := &Registry{
		classes:        make(map[CommandClass]Descriptor, len(classLabels)),
		singleInstance: make(map[CommandClass]bool, len(defaultSingleInstance)),
		logger:         logger.With("component", "registry"),
	}
	for _, d := range builtinDescriptors() {
		r.classes[d.ID] = d
	}
	for _, id := range defaultSingleInstance {
		r.singleInstance[id] = true
	}
	return r
}

// Lookup returns the descriptor for id.
func (r *Registry) Lookup(id CommandClass) (Descriptor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.classes[id]
	return d, ok
}

// All returns every descriptor ordered by id.
func (r *Registry) All() []Descriptor {
	r.mu.RLock()
	out := make([]Descriptor, 0, len(r.classes))
	for _, d := range r.classes {
		out = append(out, d)
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Instantiate builds the handler for id owned by n (endpoint 0 for the root).
// It returns nil, logging a warning, for unknown ids and ids without a handler.
func (r *Registry) Instantiate(id CommandClass, n *Node, endpoint uint8) Handler {
	d, ok := r.Lookup(id)
	if !ok {
		r.logger.Warn("unknown command class", "node", n.ID(), "endpoint", endpoint, "class", fmt.Sprintf("0x%02X", uint8(id)))
		return nil
	}
	if d.factory == nil {
		r.logger.Warn("command class not supported", "node", n.ID(), "endpoint", endpoint, "class", d.Label)
		return nil
	}
	return d.factory(n, endpoint)
}

// ClampVersion limits a device-reported version to what the engine handles.
func (r *Registry) ClampVersion(id CommandClass, version uint8) uint8 {
	d, ok := r.Lookup(id)
	if !ok || version <= d.MaxVersion {
		return version
	}
	return d.MaxVersion
}

// AssumedSingleInstance reports whether id is never queried for its instance count.
func (r *Registry) AssumedSingleInstance(id CommandClass) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.singleInstance[id]
}

// SetAssumedSingleInstance adds id to, or removes it from, the single-instance set.
func (r *Registry) SetAssumedSingleInstance(id CommandClass, single bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if single {
		r.singleInstance[id] = true
	} else {
		delete(r.singleInstance, id)
	}
	r.logger.Debug("single-instance override", "class", id.String(), "single", single)
}

// unknownClassError picks the sentinel for a class a node has no handler for.
func (r *Registry) unknownClassError(id CommandClass) error {
	if _, ok := r.Lookup(id); ok {
		return fmt.Errorf("%s: %w", id, ErrHandlerAbsent)
	}
	return fmt.Errorf("0x%02X: %w", uint8(id), ErrUnknownCommandClass)
}
