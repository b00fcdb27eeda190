package zwave

import "zwave-go-home/internal/serialapi"

// Stage is a node's position in the interview.
type Stage uint8

const (
	StageEmpty Stage = iota
	StageProtocolInfo
	StageNodeInfo
	StageManufacturerSpecific
	StageVersions
	StageInstances
	StageStatic
	StageDone
)

var stageNames = [...]string{
	StageEmpty:                "empty",
	StageProtocolInfo:         "protocol_info",
	StageNodeInfo:             "node_info",
	StageManufacturerSpecific: "manufacturer_specific",
	StageVersions:             "versions",
	StageInstances:            "instances",
	StageStatic:               "static",
	StageDone:                 "done",
}

func (s Stage) String() string {
	if int(s) < len(stageNames) {
		return stageNames[s]
	}
	return "unknown"
}

func (s Stage) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// start moves the node to stage, issues that stage's requests and advances
// as far as the node's current state allows.
func (n *Node) start(stage Stage) {
	n.transition(stage)
	n.advance()
}

// advance moves through every stage whose completion condition holds.
// It is called after each handled frame.
func (n *Node) advance() {
	for {
		st := n.Stage()
		if st == StageDone || !n.stageComplete(st) {
			return
		}
		next := st + 1
		if st == StageProtocolInfo && n.id == n.network.ControllerID() {
			next = StageDone
		}
		n.transition(next)
	}
}

func (n *Node) transition(next Stage) {
	n.setStage(next)
	n.logger.Debug("node stage", "stage", next.String())
	n.network.events.Emit(Event{Type: EventNodeStageChanged, Data: NodeEvent{Node: n.id, Stage: next}})
	n.enterStage(next)
}

func (n *Node) stageComplete(st Stage) bool {
	switch st {
	case StageEmpty:
		return true
	case StageProtocolInfo:
		n.mu.RLock()
		defer n.mu.RUnlock()
		return n.protocolInfo
	case StageNodeInfo:
		n.mu.RLock()
		defer n.mu.RUnlock()
		return n.nodeInfo
	case StageManufacturerSpecific:
		if n.Handler(ClassManufacturerSpecific) == nil {
			return true
		}
		_, _, _, ok := n.Manufacturer()
		return ok
	case StageVersions:
		for _, h := range n.Handlers() {
			if h.Version() == 0 {
				return false
			}
		}
		return true
	case StageInstances:
		mi := n.multiInstance()
		return mi == nil || mi.State() == DiscoveryReady
	case StageStatic:
		return true
	default:
		return false
	}
}

// enterStage issues the requests a stage waits on.
func (n *Node) enterStage(st Stage) {
	nw := n.network
	switch st {
	case StageProtocolInfo:
		nw.requestProtocolInfo(n.id)

	case StageNodeInfo:
		n.sendAll(serialapi.NewRequest(serialapi.FuncRequestNodeInfo, []byte{n.id}))

	case StageManufacturerSpecific:
		if h, ok := n.Handler(ClassManufacturerSpecific).(*manufacturerSpecificHandler); ok {
			n.sendAll(h.Get())
		}

	case StageVersions:
		v := n.version()
		if v == nil {
			for _, h := range n.Handlers() {
				if h.Version() == 0 {
					h.SetVersion(1)
				}
			}
			return
		}
		if v.Version() == 0 {
			v.SetVersion(1)
		}
		frames := []*serialapi.Frame{v.Get()}
		for _, h := range n.Handlers() {
			if h.Version() == 0 {
				frames = append(frames, v.CommandClassGet(h.CommandClass()))
			}
		}
		n.sendAll(frames...)

	case StageInstances:
		if mi := n.multiInstance(); mi != nil {
			mi.probe()
		}

	case StageStatic:
		nw.applyProduct(n)
		var frames []*serialapi.Frame
		for _, h := range n.Handlers() {
			if sr, ok := h.(staticRequester); ok {
				frames = append(frames, sr.StaticRequests()...)
			}
		}
		n.sendAll(frames...)

	case StageDone:
		nw.saveNode(n)
		nw.events.Emit(Event{Type: EventNodeReady, Data: NodeEvent{Node: n.id, Stage: StageDone}})
		n.logger.Info("node ready", "class", n.DeviceClass().String(), "handlers", len(n.Handlers()), "endpoints", len(n.Endpoints()))
	}
}

func (n *Node) sendAll(frames ...*serialapi.Frame) {
	for _, f := range frames {
		if err := n.send(f); err != nil {
			n.logger.Error("send", "func", f.Function.String(), "err", err)
		}
	}
}
