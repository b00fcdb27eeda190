package zwave

import (
	"fmt"

	"zwave-go-home/internal/serialapi"
)

const (
	multiInstanceCmdGet    byte = 0x04
	multiInstanceCmdReport byte = 0x05
	multiInstanceCmdEncap  byte = 0x06

	multiChannelCmdEndpointGet      byte = 0x07
	multiChannelCmdEndpointReport   byte = 0x08
	multiChannelCmdCapabilityGet    byte = 0x09
	multiChannelCmdCapabilityReport byte = 0x0A
	multiChannelCmdEncap            byte = 0x0D
)

const (
	endpointFlagDynamic   byte = 0x80
	endpointFlagIdentical byte = 0x40
	endpointMask          byte = 0x7F
)

// DiscoveryState is the progress of instance or endpoint discovery.
type DiscoveryState uint8

const (
	DiscoveryUnprobed DiscoveryState = iota
	DiscoveryInstancesRequested
	DiscoveryEndpointsRequested
	DiscoveryCapabilitiesRequested
	DiscoveryReady
)

func (s DiscoveryState) String() string {
	switch s {
	case DiscoveryInstancesRequested:
		return "instances_requested"
	case DiscoveryEndpointsRequested:
		return "endpoints_requested"
	case DiscoveryCapabilitiesRequested:
		return "capabilities_requested"
	case DiscoveryReady:
		return "ready"
	default:
		return "unprobed"
	}
}

// multiInstanceHandler discovers v1 instance counts or v2 endpoints and
// unwraps encapsulated commands for the owning node.
type multiInstanceHandler struct {
	baseHandler
	state     DiscoveryState
	endpoints uint8
	dynamic   bool
	identical bool
	awaiting  map[CommandClass]bool
}

func newMultiInstanceHandler(n *Node, endpoint uint8) Handler {
	h := &multiInstanceHandler{awaiting: make(map[CommandClass]bool)}
	h.init(ClassMultiInstance, n, endpoint)
	return h
}

// State returns the discovery progress.
func (h *multiInstanceHandler) State() DiscoveryState {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.state
}

// EndpointCount returns the number of endpoints the node reported.
func (h *multiInstanceHandler) EndpointCount() uint8 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.endpoints
}

// Identical reports whether the node declared all endpoints alike.
func (h *multiInstanceHandler) Identical() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.identical
}

func (h *multiInstanceHandler) setState(s DiscoveryState) {
	h.mu.Lock()
	h.state = s
	h.mu.Unlock()
	h.logger.Debug("discovery", "node", h.node.id, "state", s.String())
}

// probe starts discovery: per-class instance counts on v1, the endpoint
// list on v2.
func (h *multiInstanceHandler) probe() {
	if h.Version() >= 2 {
		h.setState(DiscoveryEndpointsRequested)
		h.node.sendAll(h.EndpointGet())
		return
	}

	reg := h.node.network.registry
	var frames []*serialapi.Frame
	h.mu.Lock()
	h.awaiting = make(map[CommandClass]bool)
	for _, rh := range h.node.Handlers() {
		class := rh.CommandClass()
		if class == ClassMultiInstance || reg.AssumedSingleInstance(class) {
			continue
		}
		h.awaiting[class] = true
		frames = append(frames, h.InstanceGet(class))
	}
	h.mu.Unlock()

	if len(frames) == 0 {
		h.setState(DiscoveryReady)
		return
	}
	h.setState(DiscoveryInstancesRequested)
	h.node.sendAll(frames...)
}

// restored marks discovery complete for a node loaded from the store.
func (h *multiInstanceHandler) restored(endpoints uint8) {
	h.mu.Lock()
	h.endpoints = endpoints
	h.state = DiscoveryReady
	h.mu.Unlock()
}

func (h *multiInstanceHandler) Handle(payload serialapi.Payload, endpoint uint8) (*Event, error) {
	cmd, err := commandByte(payload)
	if err != nil {
		return nil, err
	}
	switch cmd {
	case multiInstanceCmdReport:
		return nil, h.handleInstanceReport(payload)
	case multiInstanceCmdEncap:
		if err := payload.Check(1, 2); err != nil {
			return nil, fmt.Errorf("multi-instance encapsulation: %w", ErrTruncatedEncapsulation)
		}
		return h.node.dispatch(payload[2:], payload[1])
	case multiChannelCmdEndpointReport:
		return nil, h.handleEndpointReport(payload)
	case multiChannelCmdCapabilityReport:
		return nil, h.handleCapabilityReport(payload)
	case multiChannelCmdEncap:
		// src, dst, class
		if payload.Len()-1 < 3 {
			return nil, fmt.Errorf("multi-channel encapsulation of %d bytes: %w", payload.Len()-1, ErrTruncatedEncapsulation)
		}
		src := payload[1] & endpointMask
		return h.node.dispatchEndpoint(src, CommandClass(payload[3]), payload[4:])
	default:
		return nil, h.unsupported(cmd)
	}
}

func (h *multiInstanceHandler) handleInstanceReport(payload serialapi.Payload) error {
	if err := payload.Check(1, 2); err != nil {
		return fmt.Errorf("multi-instance report: %w", err)
	}
	class, count := CommandClass(payload[1]), payload[2]&endpointMask
	if count == 0 {
		h.logger.Warn("node reported zero instances, assuming one", "node", h.node.id, "for", class.String())
		count = 1
	}
	if rh := h.node.Handler(class); rh != nil {
		rh.SetInstances(count)
		h.logger.Debug("instances", "node", h.node.id, "for", class.String(), "count", count)
	} else {
		h.logger.Debug("instance report for class without handler", "node", h.node.id, "for", class.String())
	}

	h.mu.Lock()
	delete(h.awaiting, class)
	done := len(h.awaiting) == 0 && h.state == DiscoveryInstancesRequested
	h.mu.Unlock()
	if done {
		h.setState(DiscoveryReady)
	}
	return nil
}

func (h *multiInstanceHandler) handleEndpointReport(payload serialapi.Payload) error {
	if err := payload.Check(1, 2); err != nil {
		return fmt.Errorf("endpoint report: %w", err)
	}
	flags, count := payload[1], payload[2]&endpointMask
	dynamic := flags&endpointFlagDynamic != 0
	identical := flags&endpointFlagIdentical != 0
	if dynamic {
		h.logger.Warn("dynamic endpoints are treated as static", "node", h.node.id)
	}

	h.mu.Lock()
	h.endpoints = count
	h.dynamic = dynamic
	h.identical = identical
	h.mu.Unlock()
	h.logger.Info("endpoints", "node", h.node.id, "count", count, "identical", identical)

	eps := h.node.resetEndpoints(count)
	if count == 0 {
		h.setState(DiscoveryReady)
		return nil
	}
	h.setState(DiscoveryCapabilitiesRequested)
	if identical {
		h.node.sendAll(h.CapabilityGet(1))
		return nil
	}
	frames := make([]*serialapi.Frame, 0, len(eps))
	for _, ep := range eps {
		frames = append(frames, h.CapabilityGet(ep.ID()))
	}
	h.node.sendAll(frames...)
	return nil
}

func (h *multiInstanceHandler) handleCapabilityReport(payload serialapi.Payload) error {
	if err := payload.Check(1, 3); err != nil {
		return fmt.Errorf("capability report: %w", err)
	}
	id, generic, specific := payload[1]&endpointMask, payload[2], payload[3]

	var targets []*Endpoint
	if h.Identical() {
		targets = h.node.Endpoints()
	} else if ep := h.node.Endpoint(id); ep != nil {
		targets = []*Endpoint{ep}
	} else {
		return fmt.Errorf("capability report for endpoint %d: %w", id, ErrUnknownEndpoint)
	}

	dc, err := ResolveDeviceClass(h.node.DeviceClass().Basic, generic, specific)
	if err != nil {
		for _, ep := range targets {
			ep.markFailed()
		}
		h.checkReady()
		return fmt.Errorf("endpoint %d: %w", id, err)
	}

	classes := supportedClasses(payload[4:])
	for _, ep := range targets {
		ep.apply(dc, h.endpointHandlers(ep.ID(), classes))
		h.logger.Info("endpoint resolved", "node", h.node.id, "endpoint", ep.ID(), "class", dc.String(), "handlers", len(ep.Handlers()))
	}
	h.checkReady()
	return nil
}

// endpointHandlers instantiates the classes an endpoint advertises. Versions
// are taken from the root handler of the same class when there is one.
// Basic is added when the root supports it, since endpoints answer Basic
// without always listing it.
func (h *multiInstanceHandler) endpointHandlers(ep uint8, classes []CommandClass) []Handler {
	reg := h.node.network.registry
	if h.node.Handler(ClassBasic) != nil {
		classes = append(classes, ClassBasic)
	}
	seen := make(map[CommandClass]bool, len(classes))
	var out []Handler
	for _, class := range classes {
		if seen[class] || class == ClassMultiInstance {
			continue
		}
		seen[class] = true
		eh := reg.Instantiate(class, h.node, ep)
		if eh == nil {
			continue
		}
		version := uint8(1)
		if rh := h.node.Handler(class); rh != nil && rh.Version() > 0 {
			version = rh.Version()
		}
		eh.SetVersion(version)
		out = append(out, eh)
	}
	return out
}

func (h *multiInstanceHandler) checkReady() {
	for _, ep := range h.node.Endpoints() {
		if !ep.settled() {
			return
		}
	}
	h.setState(DiscoveryReady)
}

// InstanceGet builds a v1 request for the number of instances of class.
func (h *multiInstanceHandler) InstanceGet(class CommandClass) *serialapi.Frame {
	return h.command(multiInstanceCmdGet, byte(class))
}

// EndpointGet builds a v2 request for the endpoint count.
func (h *multiInstanceHandler) EndpointGet() *serialapi.Frame {
	return h.command(multiChannelCmdEndpointGet)
}

// CapabilityGet builds a v2 request for the device class and classes of ep.
func (h *multiInstanceHandler) CapabilityGet(ep uint8) *serialapi.Frame {
	return h.command(multiChannelCmdCapabilityGet, ep&endpointMask)
}
