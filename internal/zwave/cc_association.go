package zwave

import (
	"fmt"
	"slices"
	"sort"

	"zwave-go-home/internal/serialapi"
)

const (
	associationCmdSet             byte = 0x01
	associationCmdGet             byte = 0x02
	associationCmdReport          byte = 0x03
	associationCmdRemove          byte = 0x04
	associationCmdGroupingsGet    byte = 0x05
	associationCmdGroupingsReport byte = 0x06
)

// AssociationGroup is the confirmed state of one group.
type AssociationGroup struct {
	Index    uint8   `json:"index"`
	MaxNodes uint8   `json:"max_nodes"`
	Members  []uint8 `json:"members"`
}

type associationHandler struct {
	baseHandler
	groupCount uint8
	groups     map[uint8]*AssociationGroup
	// partial accumulates members of multi-frame reports per group.
	partial map[uint8][]uint8
}

func newAssociationHandler(n *Node, endpoint uint8) Handler {
	h := &associationHandler{
		groups:  make(map[uint8]*AssociationGroup),
		partial: make(map[uint8][]uint8),
	}
	h.init(ClassAssociation, n, endpoint)
	return h
}

func (h *associationHandler) Handle(payload serialapi.Payload, endpoint uint8) (*Event, error) {
	cmd, err := commandByte(payload)
	if err != nil {
		return nil, err
	}
	switch cmd {
	case associationCmdReport:
		return h.handleReport(payload)
	case associationCmdGroupingsReport:
		count, err := payload.ByteAt(1)
		if err != nil {
			return nil, fmt.Errorf("association groupings report: %w", err)
		}
		h.mu.Lock()
		h.groupCount = count
		h.mu.Unlock()
		h.logger.Debug("association groups", "node", h.node.id, "count", count)

		frames := make([]*serialapi.Frame, 0, count)
		for g := uint8(1); g <= count && g != 0; g++ {
			frames = append(frames, h.Get(g))
		}
		h.node.sendAll(frames...)
		return nil, nil
	default:
		return nil, h.unsupported(cmd)
	}
}

func (h *associationHandler) handleReport(payload serialapi.Payload) (*Event, error) {
	if err := payload.Check(1, 3); err != nil {
		return nil, fmt.Errorf("association report: %w", err)
	}
	group, maxNodes, follow := payload[1], payload[2], payload[3]
	nodes := payload[4:]

	h.mu.Lock()
	acc := append(h.partial[group], nodes...)
	if follow > 0 {
		h.partial[group] = acc
		h.mu.Unlock()
		h.logger.Debug("association report, more to follow", "node", h.node.id, "group", group, "follow", follow)
		return nil, nil
	}
	delete(h.partial, group)

	members := slices.Clone(acc)
	slices.Sort(members)
	members = slices.Compact(members)

	g, ok := h.groups[group]
	if !ok {
		g = &AssociationGroup{Index: group}
		h.groups[group] = g
	}
	g.MaxNodes = maxNodes
	g.Members = members
	h.mu.Unlock()

	h.logger.Debug("association report", "node", h.node.id, "group", group, "members", members)
	return h.emit(EventAssociationChanged, AssociationChanged{
		Node:    h.node.id,
		Group:   group,
		Members: slices.Clone(members),
	}), nil
}

// StaticRequests asks for the number of groups; the report triggers a Get per group.
func (h *associationHandler) StaticRequests() []*serialapi.Frame {
	return []*serialapi.Frame{h.GroupingsGet()}
}

// Set builds a request adding member to group.
func (h *associationHandler) Set(group, member uint8) *serialapi.Frame {
	return h.command(associationCmdSet, group, member)
}

// Remove builds a request removing member from group.
func (h *associationHandler) Remove(group, member uint8) *serialapi.Frame {
	return h.command(associationCmdRemove, group, member)
}

// Get builds a request for the members of group.
func (h *associationHandler) Get(group uint8) *serialapi.Frame {
	return h.command(associationCmdGet, group)
}

// GroupingsGet builds a request for the number of groups.
func (h *associationHandler) GroupingsGet() *serialapi.Frame {
	return h.command(associationCmdGroupingsGet)
}

// Members returns the confirmed members of group.
func (h *associationHandler) Members(group uint8) []uint8 {
	h.mu.Lock()
	defer h.mu.Unlock()
	if g, ok := h.groups[group]; ok {
		return slices.Clone(g.Members)
	}
	return nil
}

// GroupCount returns the number of groups the device reported.
func (h *associationHandler) GroupCount() uint8 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.groupCount
}

// Groups returns the known groups ordered by index.
func (h *associationHandler) Groups() []AssociationGroup {
	h.mu.Lock()
	out := make([]AssociationGroup, 0, len(h.groups))
	for _, g := range h.groups {
		out = append(out, AssociationGroup{Index: g.Index, MaxNodes: g.MaxNodes, Members: slices.Clone(g.Members)})
	}
	h.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Index < out[j].Index })
	return out
}

func (h *associationHandler) applyProduct(p *Product) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, gi := range p.Groups {
		g, ok := h.groups[gi.Index]
		if !ok {
			g = &AssociationGroup{Index: gi.Index}
			h.groups[gi.Index] = g
		}
		if g.MaxNodes == 0 {
			g.MaxNodes = gi.MaxNodes
		}
	}
}
