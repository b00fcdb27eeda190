package zwave

import (
	"fmt"
	"sort"

	"zwave-go-home/internal/pending"
	"zwave-go-home/internal/serialapi"
)

// Status qualifies a value returned by a read path.
type Status uint8

const (
	// StatusUnknown: the device never reported the value, or the value
	// cannot be read back.
	StatusUnknown Status = iota
	// StatusPending: a write was sent and not yet confirmed.
	StatusPending
	// StatusConfirmed: the value was last reported by the device.
	StatusConfirmed
)

func (s Status) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusConfirmed:
		return "confirmed"
	default:
		return "unknown"
	}
}

func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Reading is a value with its status.
type Reading struct {
	Value  int32  `json:"value"`
	Status Status `json:"status"`
}

// Member is one node in an association group.
type Member struct {
	Node   uint8  `json:"node"`
	Status Status `json:"status"`
	// Removing is set while a removal is pending.
	Removing bool `json:"removing,omitempty"`
}

// ConfigurationValue reads parameter param of node, preferring an
// unconfirmed write.
func (nw *Network) ConfigurationValue(node, param uint8) (Reading, error) {
	n, err := nw.Node(node)
	if err != nil {
		return Reading{}, err
	}
	h := n.configuration()
	if h == nil {
		return Reading{}, fmt.Errorf("node %d: %s: %w", node, ClassConfiguration, ErrHandlerAbsent)
	}
	if v, ok := nw.pending.Get(pending.KeyConfiguration, node, int(param), 0); ok {
		return Reading{Value: v, Status: StatusPending}, nil
	}
	p, ok := h.Parameter(param)
	if !ok || p.WriteOnly || !p.Reported {
		return Reading{Status: StatusUnknown}, nil
	}
	return Reading{Value: p.Value, Status: StatusConfirmed}, nil
}

// SetConfiguration writes param and records the write as pending until the
// device reports the parameter back. Values outside the catalogue range or
// options of the node's product are refused.
func (nw *Network) SetConfiguration(node, param uint8, value int32) error {
	n, err := nw.Node(node)
	if err != nil {
		return err
	}
	h := n.configuration()
	if h == nil {
		return fmt.Errorf("node %d: %s: %w", node, ClassConfiguration, ErrHandlerAbsent)
	}
	if p := n.Product(); p != nil {
		if pi, ok := p.Parameter(param); ok {
			if err := pi.Allows(value); err != nil {
				return fmt.Errorf("node %d: %w", node, err)
			}
		}
	}
	set, err := h.Set(param, value)
	if err != nil {
		return fmt.Errorf("node %d: %w", node, err)
	}
	nw.pending.Add(pending.KeyConfiguration, node, int(param), 0, value)
	frames := []*serialapi.Frame{set}
	if p, _ := h.Parameter(param); !p.WriteOnly {
		frames = append(frames, h.Get(param))
	}
	return nw.sendFrames(n, frames...)
}

// AssociationMembers returns the confirmed members of group overlaid with
// pending additions and removals.
func (nw *Network) AssociationMembers(node, group uint8) ([]Member, error) {
	n, err := nw.Node(node)
	if err != nil {
		return nil, err
	}
	h := n.association()
	if h == nil {
		return nil, fmt.Errorf("node %d: %s: %w", node, ClassAssociation, ErrHandlerAbsent)
	}

	members := make(map[uint8]*Member)
	for _, id := range h.Members(group) {
		members[id] = &Member{Node: id, Status: StatusConfirmed}
	}
	for _, e := range nw.pending.Entries(pending.KeyAssociation, node) {
		if e.Parameter != int(group) {
			continue
		}
		id := uint8(e.Argument)
		m, ok := members[id]
		if !ok {
			m = &Member{Node: id}
			members[id] = m
		}
		m.Status = StatusPending
		m.Removing = e.Value == 0
	}

	out := make([]Member, 0, len(members))
	for _, m := range members {
		out = append(out, *m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Node < out[j].Node })
	return out, nil
}

// AddAssociation adds member to group.
func (nw *Network) AddAssociation(node, group, member uint8) error {
	return nw.changeAssociation(node, group, member, true)
}

// RemoveAssociation removes member from group.
func (nw *Network) RemoveAssociation(node, group, member uint8) error {
	return nw.changeAssociation(node, group, member, false)
}

func (nw *Network) changeAssociation(node, group, member uint8, add bool) error {
	n, err := nw.Node(node)
	if err != nil {
		return err
	}
	h := n.association()
	if h == nil {
		return fmt.Errorf("node %d: %s: %w", node, ClassAssociation, ErrHandlerAbsent)
	}
	var f *serialapi.Frame
	var value int32
	if add {
		f, value = h.Set(group, member), 1
	} else {
		f, value = h.Remove(group, member), 0
	}
	nw.pending.Add(pending.KeyAssociation, node, int(group), int(member), value)
	return nw.sendFrames(n, f, h.Get(group))
}

// WakeUpInterval reads the wake-up interval of node in seconds.
func (nw *Network) WakeUpInterval(node uint8) (Reading, error) {
	n, err := nw.Node(node)
	if err != nil {
		return Reading{}, err
	}
	h := n.wakeUp()
	if h == nil {
		return Reading{}, fmt.Errorf("node %d: %s: %w", node, ClassWakeUp, ErrHandlerAbsent)
	}
	if v, ok := nw.pending.Get(pending.KeyWakeUp, node, 0, 0); ok {
		return Reading{Value: v, Status: StatusPending}, nil
	}
	interval, ok := h.Interval()
	if !ok {
		return Reading{Status: StatusUnknown}, nil
	}
	return Reading{Value: int32(interval), Status: StatusConfirmed}, nil
}

// SetWakeUpInterval sets the interval and points wake-up notifications at
// the controller. The frames wait in the node's queue until it wakes.
func (nw *Network) SetWakeUpInterval(node uint8, interval uint32) error {
	n, err := nw.Node(node)
	if err != nil {
		return err
	}
	h := n.wakeUp()
	if h == nil {
		return fmt.Errorf("node %d: %s: %w", node, ClassWakeUp, ErrHandlerAbsent)
	}
	if interval > 0xFFFFFF {
		return fmt.Errorf("node %d: wake-up interval %d exceeds 24 bits", node, interval)
	}
	nw.pending.Add(pending.KeyWakeUp, node, 0, 0, int32(interval))
	return nw.sendFrames(n, h.IntervalSet(interval, nw.ControllerID()), h.IntervalGet())
}

// Send queues an arbitrary frame for node, honouring its wake-up queue.
func (nw *Network) Send(node uint8, f *serialapi.Frame) error {
	n, err := nw.Node(node)
	if err != nil {
		return err
	}
	return n.send(f)
}

func (nw *Network) sendFrames(n *Node, frames ...*serialapi.Frame) error {
	for _, f := range frames {
		if err := n.send(f); err != nil {
			return fmt.Errorf("node %d: send %s: %w", n.id, f.Function, err)
		}
	}
	return nil
}

// SetLevel drives the output of node, or of one of its endpoints when
// endpoint is non-zero. On v1 multi-instance nodes endpoint is an instance
// number of the root handler and must not exceed its instance count.
// Multilevel switches take level as given, binary switches treat any
// non-zero level as on, and Basic is used when neither switch class is
// supported.
func (nw *Network) SetLevel(node, endpoint, level uint8) error {
	n, err := nw.Node(node)
	if err != nil {
		return err
	}
	lookup := n.Handler
	instance := false
	if endpoint > 0 {
		if mi := n.multiInstance(); mi != nil && mi.Version() <= 1 {
			instance = true
		} else {
			ep := n.Endpoint(endpoint)
			if ep == nil {
				return fmt.Errorf("node %d endpoint %d: %w", node, endpoint, ErrUnknownEndpoint)
			}
			lookup = ep.Handler
		}
	}
	found := false
	usable := func(h Handler) bool {
		found = true
		return !instance || endpoint <= h.Instances()
	}

	if h, ok := lookup(ClassSwitchMultilevel).(*switchMultilevelHandler); ok && usable(h) {
		return nw.sendFrames(n, h.setTo(endpoint, level), h.getTo(endpoint))
	}
	if h, ok := lookup(ClassSwitchBinary).(*switchBinaryHandler); ok && usable(h) {
		return nw.sendFrames(n, h.setTo(endpoint, level != 0), h.getTo(endpoint))
	}
	if h, ok := lookup(ClassBasic).(*basicHandler); ok && usable(h) {
		return nw.sendFrames(n, h.setTo(endpoint, level), h.getTo(endpoint))
	}
	if found {
		return fmt.Errorf("node %d instance %d: %w", node, endpoint, ErrUnknownEndpoint)
	}
	return fmt.Errorf("node %d endpoint %d: %s: %w", node, endpoint, ClassSwitchBinary, ErrHandlerAbsent)
}
