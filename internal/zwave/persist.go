package zwave

import (
	"errors"
	"fmt"
	"time"

	"zwave-go-home/internal/store"
)

// Snapshot captures what the interview learned about n.
func (n *Node) Snapshot() *store.NodeSnapshot {
	n.mu.RLock()
	s := &store.NodeSnapshot{
		ID:                 n.id,
		Basic:              n.deviceClass.Basic,
		Generic:            n.deviceClass.Generic,
		Specific:           n.deviceClass.Specific,
		Listening:          n.listening,
		Routing:            n.routing,
		ManufacturerKnown:  n.manufacturerKnown,
		Manufacturer:       n.manufacturer,
		DeviceType:         n.deviceType,
		DeviceID:           n.deviceID,
		ApplicationVersion: n.appVersion,
		SavedAt:            time.Now(),
	}
	n.mu.RUnlock()

	if h := n.wakeUp(); h != nil {
		if interval, ok := h.Interval(); ok {
			s.WakeUp = &store.WakeUpSnapshot{Interval: interval, Target: h.Target()}
		}
	}
	s.Classes = classSnapshots(n.Handlers())
	for _, ep := range n.Endpoints() {
		dc := ep.DeviceClass()
		s.Endpoints = append(s.Endpoints, store.EndpointSnapshot{
			ID:       ep.ID(),
			Generic:  dc.Generic,
			Specific: dc.Specific,
			Failed:   ep.Failed(),
			Classes:  classSnapshots(ep.Handlers()),
		})
	}
	return s
}

func classSnapshots(hs []Handler) []store.ClassSnapshot {
	out := make([]store.ClassSnapshot, 0, len(hs))
	for _, h := range hs {
		out = append(out, store.ClassSnapshot{
			ID:        uint8(h.CommandClass()),
			Version:   h.Version(),
			Instances: h.Instances(),
		})
	}
	return out
}

func (nw *Network) saveNode(n *Node) {
	if nw.store == nil {
		return
	}
	if err := nw.store.SaveNode(n.Snapshot()); err != nil {
		nw.logger.Error("save node", "node", n.id, "err", err)
	}
}

// persistWakeUp records a confirmed wake-up interval in the node's stored
// snapshot, so a sleeping node has it after a restart. Nodes not saved yet
// pick it up with their first snapshot.
func (nw *Network) persistWakeUp(e Event) {
	d, ok := e.Data.(WakeUpIntervalChanged)
	if !ok || nw.store == nil {
		return
	}
	err := nw.store.UpdateNode(d.Node, func(s *store.NodeSnapshot) error {
		s.WakeUp = &store.WakeUpSnapshot{Interval: d.Interval, Target: d.Target}
		return nil
	})
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		nw.logger.Error("save wake-up interval", "node", d.Node, "err", err)
	}
}

// forgetNode drops the stored snapshot of a node being interviewed again.
func (nw *Network) forgetNode(id uint8) {
	if nw.store == nil {
		return
	}
	if err := nw.store.DeleteNode(id); err != nil {
		nw.logger.Error("delete node", "node", id, "err", err)
	}
}

// Restore rebuilds nodes saved by a previous session. Restored nodes skip
// the interview up to the static stage.
func (nw *Network) Restore() error {
	if nw.store == nil {
		return nil
	}
	snaps, err := nw.store.ListNodes()
	if err != nil {
		return fmt.Errorf("restore nodes: %w", err)
	}

	nw.dispatchMu.Lock()
	defer nw.dispatchMu.Unlock()

	for _, s := range snaps {
		if s.ID == 0 || s.ID > MaxNodeID {
			nw.logger.Warn("skipping stored node with invalid id", "node", s.ID)
			continue
		}
		n := nw.restoreNode(s)
		nw.mu.Lock()
		nw.nodes[n.id] = n
		nw.mu.Unlock()
		nw.events.Emit(Event{Type: EventNodeAdded, Data: NodeEvent{Node: n.id}})
		n.start(StageStatic)
	}
	nw.logger.Info("nodes restored", "count", len(snaps))
	return nil
}

func (nw *Network) restoreNode(s *store.NodeSnapshot) *Node {
	n := newNode(nw, s.ID)
	n.deviceClass = DeviceClass{Basic: s.Basic, Generic: s.Generic, Specific: s.Specific}
	n.listening = s.Listening
	n.routing = s.Routing
	n.protocolInfo = true
	n.nodeInfo = true
	n.manufacturerKnown = s.ManufacturerKnown
	n.manufacturer = s.Manufacturer
	n.deviceType = s.DeviceType
	n.deviceID = s.DeviceID
	n.appVersion = s.ApplicationVersion
	n.stage = StageInstances

	for _, c := range s.Classes {
		h := n.AddHandler(CommandClass(c.ID))
		if h == nil {
			continue
		}
		h.SetVersion(c.Version)
		h.SetInstances(max(c.Instances, 1))
	}

	for _, es := range s.Endpoints {
		ep := newEndpoint(n, es.ID)
		if es.Failed {
			ep.markFailed()
		} else {
			hs := make([]Handler, 0, len(es.Classes))
			for _, c := range es.Classes {
				h := nw.registry.Instantiate(CommandClass(c.ID), n, es.ID)
				if h == nil {
					continue
				}
				h.SetVersion(c.Version)
				hs = append(hs, h)
			}
			ep.apply(DeviceClass{Basic: s.Basic, Generic: es.Generic, Specific: es.Specific}, hs)
		}
		n.endpoints[es.ID] = ep
	}
	if mi := n.multiInstance(); mi != nil {
		mi.restored(uint8(len(s.Endpoints)))
	}
	if h := n.wakeUp(); h != nil && s.WakeUp != nil {
		h.restored(s.WakeUp.Interval, s.WakeUp.Target)
	}
	return n
}
