package zwave

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"

	"zwave-go-home/internal/pending"
	"zwave-go-home/internal/serialapi"
	"zwave-go-home/internal/store"
)

// Sender transmits frames to the controller. Send must not block on the radio.
type Sender interface {
	Send(f *serialapi.Frame) error
}

// Network owns every node of one Z-Wave network together with the registry,
// pending table, event bus and collaborators they share.
type Network struct {
	// dispatchMu serializes inbound frames and node (re)initialization.
	dispatchMu sync.Mutex

	mu           sync.RWMutex
	nodes        map[uint8]*Node
	homeID       uint32
	controllerID uint8

	sender   Sender
	store    store.Store
	registry *Registry
	products ProductDatabase
	events   *EventBus
	pending  *pending.Table
	logger   *slog.Logger

	callbackID atomic.Uint32

	identifyMu    sync.Mutex
	identifyQueue []uint8

	unsubscribe func()
}

// NewNetwork creates a network context. st and products may be nil.
func NewNetwork(sender Sender, st store.Store, registry *Registry, products ProductDatabase, events *EventBus, table *pending.Table, logger *slog.Logger) *Network {
	nw := &Network{
		nodes:    make(map[uint8]*Node),
		sender:   sender,
		store:    st,
		registry: registry,
		products: products,
		events:   events,
		pending:  table,
		logger:   logger.With("component", "network"),
	}
	nw.unsubscribe = nw.subscribeReconciler()
	return nw
}

// Close detaches the network from the event bus.
func (nw *Network) Close() {
	if nw.unsubscribe != nil {
		nw.unsubscribe()
	}
}

// Registry returns the command class registry.
func (nw *Network) Registry() *Registry { return nw.registry }

// Events returns the event bus.
func (nw *Network) Events() *EventBus { return nw.events }

// Pending returns the pending-write table.
func (nw *Network) Pending() *pending.Table { return nw.pending }

// ControllerID returns the controller's own node id, 0 until known.
func (nw *Network) ControllerID() uint8 {
	nw.mu.RLock()
	defer nw.mu.RUnlock()
	return nw.controllerID
}

// HomeID returns the network's home id, 0 until known.
func (nw *Network) HomeID() uint32 {
	nw.mu.RLock()
	defer nw.mu.RUnlock()
	return nw.homeID
}

// Node returns node id.
func (nw *Network) Node(id uint8) (*Node, error) {
	nw.mu.RLock()
	defer nw.mu.RUnlock()
	n, ok := nw.nodes[id]
	if !ok {
		return nil, fmt.Errorf("node %d: %w", id, ErrUnknownNode)
	}
	return n, nil
}

// Nodes returns all nodes ordered by id.
func (nw *Network) Nodes() []*Node {
	nw.mu.RLock()
	out := make([]*Node, 0, len(nw.nodes))
	for _, n := range nw.nodes {
		out = append(out, n)
	}
	nw.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].id < out[j].id })
	return out
}

// Start asks the controller for its identity and node list. Nodes are
// created from the GetInitData response.
func (nw *Network) Start() error {
	for _, fn := range []serialapi.Function{
		serialapi.FuncMemoryGetID,
		serialapi.FuncGetVersion,
		serialapi.FuncGetCapabilities,
		serialapi.FuncGetInitData,
	} {
		if err := nw.transmit(serialapi.NewRequest(fn, nil)); err != nil {
			return fmt.Errorf("start: %s: %w", fn, err)
		}
	}
	return nil
}

// ReinitializeNode discards everything learned about node id, including
// partial endpoint discovery and its stored snapshot, and interviews it
// again. Other nodes and pending writes are untouched.
func (nw *Network) ReinitializeNode(id uint8) error {
	nw.dispatchMu.Lock()
	defer nw.dispatchMu.Unlock()

	if _, err := nw.Node(id); err != nil {
		return err
	}
	n := newNode(nw, id)
	nw.mu.Lock()
	nw.nodes[id] = n
	nw.mu.Unlock()
	nw.forgetNode(id)

	nw.logger.Info("reinitializing node", "node", id)
	n.start(StageProtocolInfo)
	return nil
}

// addNode registers a new node and starts its interview.
func (nw *Network) addNode(id uint8) *Node {
	n := newNode(nw, id)
	nw.mu.Lock()
	if existing, ok := nw.nodes[id]; ok {
		nw.mu.Unlock()
		return existing
	}
	nw.nodes[id] = n
	nw.mu.Unlock()

	nw.logger.Info("node added", "node", id)
	nw.events.Emit(Event{Type: EventNodeAdded, Data: NodeEvent{Node: id}})
	n.start(StageProtocolInfo)
	return n
}

// HandleFrame processes one inbound frame to completion. Errors are scoped
// to the frame; the next frame is handled normally.
func (nw *Network) HandleFrame(f *serialapi.Frame) error {
	nw.dispatchMu.Lock()
	defer nw.dispatchMu.Unlock()

	switch f.Function {
	case serialapi.FuncApplicationCommandHandler:
		return nw.handleApplicationCommand(f.Payload)
	case serialapi.FuncApplicationUpdate:
		return nw.handleApplicationUpdate(f.Payload)
	case serialapi.FuncIdentifyNode:
		return nw.handleIdentifyNode(f.Payload)
	case serialapi.FuncGetInitData:
		return nw.handleInitData(f.Payload)
	case serialapi.FuncMemoryGetID:
		return nw.handleMemoryGetID(f.Payload)
	case serialapi.FuncGetVersion:
		return nw.handleGetVersion(f.Payload)
	case serialapi.FuncGetCapabilities:
		return nw.handleGetCapabilities(f.Payload)
	case serialapi.FuncSendData:
		return nw.handleSendData(f)
	default:
		nw.logger.Debug("unhandled frame", "frame", f.String())
		return nil
	}
}

func (nw *Network) handleApplicationCommand(p serialapi.Payload) error {
	src, err := p.ByteAt(1)
	if err != nil {
		return fmt.Errorf("application command: %w", err)
	}
	length, err := p.ByteAt(2)
	if err != nil {
		return fmt.Errorf("application command: %w", err)
	}
	body, err := p.Slice(3)
	if err != nil {
		return fmt.Errorf("application command: %w", err)
	}
	if int(length) > len(body) {
		return fmt.Errorf("application command from node %d: %w",
			src, &serialapi.FieldOutOfRangeError{Offset: 3, Width: int(length), Len: len(p)})
	}
	body = body[:length]

	n, err := nw.Node(src)
	if err != nil {
		return err
	}
	evt, err := n.dispatch(body, 0)
	if evt != nil {
		nw.events.Emit(*evt)
	}
	n.advance()
	if err != nil {
		return fmt.Errorf("node %d: %w", src, err)
	}
	return nil
}

func (nw *Network) handleApplicationUpdate(p serialapi.Payload) error {
	status, err := p.ByteAt(0)
	if err != nil {
		return fmt.Errorf("application update: %w", err)
	}
	switch status {
	case serialapi.UpdateStateNodeInfoReceived:
	case serialapi.UpdateStateNodeInfoReqFailed:
		nw.logger.Warn("node info request failed")
		return nil
	default:
		nw.logger.Debug("application update", "status", fmt.Sprintf("0x%02X", status))
		return nil
	}

	id, err := p.ByteAt(1)
	if err != nil {
		return fmt.Errorf("node info: %w", err)
	}
	length, err := p.ByteAt(2)
	if err != nil {
		return fmt.Errorf("node info: %w", err)
	}
	if length < 3 || int(length) > len(p)-3 {
		return fmt.Errorf("node info from node %d: %w",
			id, &serialapi.FieldOutOfRangeError{Offset: 3, Width: int(length), Len: len(p)})
	}
	info := p[3 : 3+int(length)]

	n, err := nw.Node(id)
	if err != nil {
		n = nw.addNode(id)
	}
	n.setNodeInfo(DeviceClass{Basic: info[0], Generic: info[1], Specific: info[2]})
	for _, class := range supportedClasses(info[3:]) {
		n.AddHandler(class)
	}
	nw.logger.Info("node info received", "node", id, "class", n.DeviceClass().String(), "handlers", len(n.Handlers()))
	n.advance()
	return nil
}

// requestProtocolInfo sends IdentifyNode; responses carry no node id and are
// matched to requests in order.
func (nw *Network) requestProtocolInfo(id uint8) {
	nw.identifyMu.Lock()
	nw.identifyQueue = append(nw.identifyQueue, id)
	nw.identifyMu.Unlock()
	if err := nw.transmit(serialapi.NewRequest(serialapi.FuncIdentifyNode, []byte{id})); err != nil {
		nw.logger.Error("identify node", "node", id, "err", err)
	}
}

func (nw *Network) handleIdentifyNode(p serialapi.Payload) error {
	nw.identifyMu.Lock()
	if len(nw.identifyQueue) == 0 {
		nw.identifyMu.Unlock()
		return errors.New("identify node response without request")
	}
	id := nw.identifyQueue[0]
	nw.identifyQueue = nw.identifyQueue[1:]
	nw.identifyMu.Unlock()

	capability, err := p.ByteAt(0)
	if err != nil {
		return fmt.Errorf("identify node %d: %w", id, err)
	}
	basic, err := p.ByteAt(3)
	if err != nil {
		return fmt.Errorf("identify node %d: %w", id, err)
	}
	generic, _ := p.ByteAt(4)
	specific, _ := p.ByteAt(5)

	n, err := nw.Node(id)
	if err != nil {
		return err
	}
	if generic == 0 {
		nw.logger.Warn("node not present in controller", "node", id)
		return nil
	}
	listening := capability&0x80 != 0
	routing := capability&0x40 != 0
	n.setProtocolInfo(listening, routing, DeviceClass{Basic: basic, Generic: generic, Specific: specific})
	if !listening && id != nw.ControllerID() {
		// Battery devices must support Wake Up; its queue holds frames until the node wakes.
		n.AddHandler(ClassWakeUp)
	}
	nw.logger.Info("protocol info", "node", id, "listening", listening, "routing", routing, "class", n.DeviceClass().String())
	n.advance()
	return nil
}

func (nw *Network) handleInitData(p serialapi.Payload) error {
	if p.Len() < 3 {
		return fmt.Errorf("init data: %w", &serialapi.FieldOutOfRangeError{Offset: 0, Width: 3, Len: p.Len()})
	}
	maskLen := int(p[2])
	mask, err := p.Slice(3)
	if err != nil || len(mask) < maskLen {
		return fmt.Errorf("init data: %w", &serialapi.FieldOutOfRangeError{Offset: 3, Width: maskLen, Len: p.Len()})
	}
	var found []uint8
	for i := 0; i < maskLen; i++ {
		for bit := 0; bit < 8; bit++ {
			if mask[i]&(1<<bit) != 0 {
				id := i*8 + bit + 1
				if id <= MaxNodeID {
					found = append(found, uint8(id))
				}
			}
		}
	}
	nw.logger.Info("controller node list", "nodes", len(found))
	for _, id := range found {
		if _, err := nw.Node(id); err == nil {
			continue
		}
		nw.addNode(id)
	}
	return nil
}

func (nw *Network) handleMemoryGetID(p serialapi.Payload) error {
	if err := p.Check(0, 5); err != nil {
		return fmt.Errorf("memory get id: %w", err)
	}
	homeID := uint32(p[0])<<24 | uint32(p[1])<<16 | uint32(p[2])<<8 | uint32(p[3])
	controllerID := p[4]

	nw.mu.Lock()
	nw.homeID = homeID
	nw.controllerID = controllerID
	nw.mu.Unlock()
	nw.logger.Info("controller identity", "home_id", fmt.Sprintf("0x%08X", homeID), "controller", controllerID)

	if nw.store == nil {
		return nil
	}
	if prev, err := nw.store.GetNetworkState(); err == nil && prev.HomeID != homeID {
		nw.logger.Warn("home id changed, stored nodes may belong to another network",
			"stored", fmt.Sprintf("0x%08X", prev.HomeID), "current", fmt.Sprintf("0x%08X", homeID))
	}
	if err := nw.store.SaveNetworkState(&store.NetworkState{HomeID: homeID, ControllerID: controllerID}); err != nil {
		nw.logger.Error("save network state", "err", err)
	}
	return nil
}

func (nw *Network) handleGetVersion(p serialapi.Payload) error {
	end := 0
	for end < len(p) && p[end] != 0 {
		end++
	}
	libType, _ := p.ByteAt(end + 1)
	nw.logger.Info("controller version", "version", string(p[:end]), "library", libType)
	return nil
}

func (nw *Network) handleGetCapabilities(p serialapi.Payload) error {
	if err := p.Check(0, 8); err != nil {
		return fmt.Errorf("capabilities: %w", err)
	}
	nw.logger.Info("controller capabilities",
		"api_version", fmt.Sprintf("%d.%d", p[0], p[1]),
		"manufacturer", fmt.Sprintf("0x%04X", uint16(p[2])<<8|uint16(p[3])),
		"product_type", fmt.Sprintf("0x%04X", uint16(p[4])<<8|uint16(p[5])),
		"product_id", fmt.Sprintf("0x%04X", uint16(p[6])<<8|uint16(p[7])))
	return nil
}

func (nw *Network) handleSendData(f *serialapi.Frame) error {
	if f.Type == serialapi.Response {
		if ok, _ := f.Payload.ByteAt(0); ok == 0 {
			nw.logger.Warn("controller refused SendData")
		}
		return nil
	}
	cb, _ := f.Payload.ByteAt(0)
	status, _ := f.Payload.ByteAt(1)
	if status != 0 {
		nw.logger.Warn("transmission failed", "callback", cb, "status", fmt.Sprintf("0x%02X", status))
		return nil
	}
	nw.logger.Debug("transmission complete", "callback", cb)
	return nil
}

// sendData builds a SendData frame with the next callback id (1..255).
func (nw *Network) sendData(node uint8, cmd []byte) *serialapi.Frame {
	cb := uint8(nw.callbackID.Add(1)%255) + 1
	return serialapi.SendDataRequest(node, cmd, cb)
}

// enqueue transmits f, or parks it in the node's wake-up queue while a
// battery node sleeps.
func (nw *Network) enqueue(n *Node, f *serialapi.Frame) error {
	if f.Function == serialapi.FuncSendData || f.Function == serialapi.FuncRequestNodeInfo {
		if !n.Listening() && n.id != nw.ControllerID() {
			if w := n.wakeUp(); w != nil && w.queueIfAsleep(f) {
				return nil
			}
		}
	}
	return nw.transmit(f)
}

func (nw *Network) transmit(f *serialapi.Frame) error {
	if nw.sender == nil {
		return errors.New("no sender")
	}
	return nw.sender.Send(f)
}

// applyProduct looks the node up in the product catalogue and hands the
// result to handlers that use it. Declared classes the node did not list
// are added at version 1.
func (nw *Network) applyProduct(n *Node) {
	if nw.products == nil {
		return
	}
	m, t, id, ok := n.Manufacturer()
	if !ok {
		return
	}
	p, found := nw.products.Lookup(m, t, id, n.ApplicationVersion())
	if !found {
		n.logger.Info("product not in catalogue",
			"manufacturer", fmt.Sprintf("0x%04X", m), "type", fmt.Sprintf("0x%04X", t), "id", fmt.Sprintf("0x%04X", id))
		return
	}
	n.mu.Lock()
	n.product = p
	n.mu.Unlock()
	n.logger.Info("product matched", "name", p.Name, "label", p.Label)

	for _, class := range p.CommandClasses {
		if n.Handler(class) != nil {
			continue
		}
		if h := n.AddHandler(class); h != nil {
			h.SetVersion(1)
		}
	}
	for _, h := range n.Handlers() {
		if pa, ok := h.(productAware); ok {
			pa.applyProduct(p)
		}
	}
}
