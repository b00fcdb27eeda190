package zwave

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"zwave-go-home/internal/serialapi"
)

// MaxNodeID is the highest node id on a Z-Wave network.
const MaxNodeID = 232

// Node is one device on the network: its device class, identifiers, root
// handler set, endpoints and interview stage.
type Node struct {
	mu      sync.RWMutex
	id      uint8
	network *Network
	logger  *slog.Logger

	deviceClass  DeviceClass
	listening    bool
	routing      bool
	protocolInfo bool
	nodeInfo     bool

	manufacturer      uint16
	deviceType        uint16
	deviceID          uint16
	manufacturerKnown bool
	appVersion        string
	product           *Product

	handlers  map[CommandClass]Handler
	endpoints map[uint8]*Endpoint
	stage     Stage
}

func newNode(nw *Network, id uint8) *Node {
	return &Node{
		id:        id,
		network:   nw,
		logger:    nw.logger.With("node", id),
		handlers:  make(map[CommandClass]Handler),
		endpoints: make(map[uint8]*Endpoint),
	}
}

// ID returns the node id.
func (n *Node) ID() uint8 { return n.id }

// DeviceClass returns the node's device class triple.
func (n *Node) DeviceClass() DeviceClass {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.deviceClass
}

// Listening reports whether the node's receiver is always on.
func (n *Node) Listening() bool {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.listening
}

// Routing reports whether the node routes frames for others.
func (n *Node) Routing() bool {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.routing
}

// Manufacturer returns the manufacturer, device type and device ids and
// whether they have been reported.
func (n *Node) Manufacturer() (manufacturer, deviceType, deviceID uint16, ok bool) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.manufacturer, n.deviceType, n.deviceID, n.manufacturerKnown
}

// ApplicationVersion returns the firmware version as "major.minor", or "".
func (n *Node) ApplicationVersion() string {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.appVersion
}

// Product returns the catalogue entry matched for this node, or nil.
func (n *Node) Product() *Product {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.product
}

// Stage returns the interview stage.
func (n *Node) Stage() Stage {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.stage
}

// Handler returns the root handler for class, or nil.
func (n *Node) Handler(class CommandClass) Handler {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.handlers[class]
}

// Handlers returns the root handlers ordered by class id.
func (n *Node) Handlers() []Handler {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return sortedHandlers(n.handlers)
}

// Endpoint returns endpoint id, or nil.
func (n *Node) Endpoint(id uint8) *Endpoint {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.endpoints[id]
}

// Endpoints returns the endpoints ordered by id.
func (n *Node) Endpoints() []*Endpoint {
	n.mu.RLock()
	out := make([]*Endpoint, 0, len(n.endpoints))
	for _, e := range n.endpoints {
		out = append(out, e)
	}
	n.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].id < out[j].id })
	return out
}

// AddHandler instantiates the root handler for class unless one exists.
// It returns nil for classes the registry cannot instantiate.
func (n *Node) AddHandler(class CommandClass) Handler {
	if h := n.Handler(class); h != nil {
		return h
	}
	h := n.network.registry.Instantiate(class, n, 0)
	if h == nil {
		return nil
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	if existing, ok := n.handlers[class]; ok {
		return existing
	}
	n.handlers[class] = h
	n.logger.Debug("command class added", "class", class.String())
	return h
}

// RemoveHandler drops the root handler for class.
func (n *Node) RemoveHandler(class CommandClass) {
	n.mu.Lock()
	delete(n.handlers, class)
	n.mu.Unlock()
	n.logger.Debug("command class removed", "class", class.String())
}

// resetEndpoints replaces the endpoint set with count fresh endpoints.
func (n *Node) resetEndpoints(count uint8) []*Endpoint {
	n.mu.Lock()
	n.endpoints = make(map[uint8]*Endpoint, count)
	for id := uint8(1); id <= count; id++ {
		n.endpoints[id] = newEndpoint(n, id)
	}
	n.mu.Unlock()
	return n.Endpoints()
}

func (n *Node) setProtocolInfo(listening, routing bool, dc DeviceClass) {
	n.mu.Lock()
	n.listening = listening
	n.routing = routing
	n.deviceClass = dc
	n.protocolInfo = true
	n.mu.Unlock()
}

func (n *Node) setNodeInfo(dc DeviceClass) {
	n.mu.Lock()
	n.deviceClass = dc
	n.nodeInfo = true
	n.mu.Unlock()
}

func (n *Node) setManufacturer(manufacturer, deviceType, deviceID uint16) {
	n.mu.Lock()
	n.manufacturer = manufacturer
	n.deviceType = deviceType
	n.deviceID = deviceID
	n.manufacturerKnown = true
	n.mu.Unlock()
}

func (n *Node) setApplicationVersion(v string) {
	n.mu.Lock()
	n.appVersion = v
	n.mu.Unlock()
}

func (n *Node) setStage(s Stage) {
	n.mu.Lock()
	n.stage = s
	n.mu.Unlock()
}

// encapsulate wraps an application command for a v1 instance or v2 endpoint.
// Endpoint 0 addresses the root and is sent as is.
func (n *Node) encapsulate(cmd []byte, endpoint uint8) []byte {
	if endpoint == 0 {
		return cmd
	}
	mi := n.multiInstance()
	if mi == nil {
		n.logger.Warn("node has no multi-instance support, sending unencapsulated", "endpoint", endpoint)
		return cmd
	}
	if mi.Version() <= 1 {
		out := make([]byte, 0, len(cmd)+3)
		out = append(out, byte(ClassMultiInstance), multiInstanceCmdEncap, endpoint)
		return append(out, cmd...)
	}
	out := make([]byte, 0, len(cmd)+4)
	out = append(out, byte(ClassMultiInstance), multiChannelCmdEncap, 0x01, endpoint)
	return append(out, cmd...)
}

// send hands a frame to the network, which queues it if the node is asleep.
func (n *Node) send(f *serialapi.Frame) error {
	return n.network.enqueue(n, f)
}

// dispatch routes a root-level application command to its handler.
func (n *Node) dispatch(payload serialapi.Payload, instance uint8) (*Event, error) {
	cc, err := payload.ByteAt(0)
	if err != nil {
		return nil, err
	}
	class := CommandClass(cc)
	h := n.Handler(class)
	if h == nil {
		return nil, n.network.registry.unknownClassError(class)
	}
	return h.Handle(payload[1:], instance)
}

// dispatchEndpoint routes a decapsulated multi-channel command to the
// endpoint's handler, falling back to the root handler of the same class.
func (n *Node) dispatchEndpoint(endpoint uint8, class CommandClass, payload serialapi.Payload) (*Event, error) {
	if _, known := n.network.registry.Lookup(class); !known {
		return nil, fmt.Errorf("endpoint %d: 0x%02X: %w", endpoint, uint8(class), ErrUnknownCommandClass)
	}

	var h Handler
	if ep := n.Endpoint(endpoint); ep != nil {
		h = ep.Handler(class)
	} else {
		n.logger.Warn("frame from unknown endpoint", "endpoint", endpoint, "class", class.String())
	}
	if h == nil {
		h = n.Handler(class)
		if h == nil {
			return nil, fmt.Errorf("endpoint %d: %s: %w", endpoint, class, ErrHandlerAbsent)
		}
		n.logger.Warn("endpoint has no handler, falling back to root", "endpoint", endpoint, "class", class.String())
	}
	return h.Handle(payload, endpoint)
}

// --- typed handler accessors ---

func (n *Node) multiInstance() *multiInstanceHandler {
	h, _ := n.Handler(ClassMultiInstance).(*multiInstanceHandler)
	return h
}

func (n *Node) configuration() *configurationHandler {
	h, _ := n.Handler(ClassConfiguration).(*configurationHandler)
	return h
}

func (n *Node) association() *associationHandler {
	h, _ := n.Handler(ClassAssociation).(*associationHandler)
	return h
}

func (n *Node) wakeUp() *wakeUpHandler {
	h, _ := n.Handler(ClassWakeUp).(*wakeUpHandler)
	return h
}

func (n *Node) version() *versionHandler {
	h, _ := n.Handler(ClassVersion).(*versionHandler)
	return h
}
