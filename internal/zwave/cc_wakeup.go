package zwave

import (
	"bytes"
	"fmt"
	"time"

	"zwave-go-home/internal/serialapi"
)

const (
	wakeUpCmdIntervalSet                byte = 0x04
	wakeUpCmdIntervalGet                byte = 0x05
	wakeUpCmdIntervalReport             byte = 0x06
	wakeUpCmdNotification               byte = 0x07
	wakeUpCmdNoMoreInformation          byte = 0x08
	wakeUpCmdIntervalCapabilitiesGet    byte = 0x09
	wakeUpCmdIntervalCapabilitiesReport byte = 0x0A
)

// WakeUpCapabilities are the interval limits a v2 device reports, in seconds.
type WakeUpCapabilities struct {
	Min     uint32 `json:"min"`
	Max     uint32 `json:"max"`
	Default uint32 `json:"default"`
	Step    uint32 `json:"step"`
}

// wakeUpHandler tracks the interval and holds frames for the node while it sleeps.
type wakeUpHandler struct {
	baseHandler
	interval      uint32
	intervalKnown bool
	target        uint8
	caps          WakeUpCapabilities
	lastWake      time.Time
	awake         bool
	queue         []*serialapi.Frame
}

func newWakeUpHandler(n *Node, endpoint uint8) Handler {
	h := &wakeUpHandler{}
	h.init(ClassWakeUp, n, endpoint)
	return h
}

func (h *wakeUpHandler) Handle(payload serialapi.Payload, endpoint uint8) (*Event, error) {
	cmd, err := commandByte(payload)
	if err != nil {
		return nil, err
	}
	switch cmd {
	case wakeUpCmdIntervalReport:
		interval, err := payload.Word24At(1)
		if err != nil {
			return nil, fmt.Errorf("wake-up interval report: %w", err)
		}
		target, err := payload.ByteAt(4)
		if err != nil {
			return nil, fmt.Errorf("wake-up interval report: %w", err)
		}
		h.mu.Lock()
		h.interval = interval
		h.intervalKnown = true
		h.target = target
		h.mu.Unlock()
		h.logger.Debug("wake-up interval", "node", h.node.id, "interval", interval, "target", target)
		return h.emit(EventWakeUpIntervalChanged, WakeUpIntervalChanged{Node: h.node.id, Interval: interval, Target: target}), nil

	case wakeUpCmdNotification:
		return h.handleNotification(), nil

	case wakeUpCmdIntervalCapabilitiesReport:
		if err := payload.Check(1, 12); err != nil {
			return nil, fmt.Errorf("wake-up capabilities report: %w", err)
		}
		minI, _ := payload.Word24At(1)
		maxI, _ := payload.Word24At(4)
		defI, _ := payload.Word24At(7)
		step, _ := payload.Word24At(10)
		h.mu.Lock()
		h.caps = WakeUpCapabilities{Min: minI, Max: maxI, Default: defI, Step: step}
		h.mu.Unlock()
		h.logger.Debug("wake-up capabilities", "node", h.node.id, "min", minI, "max", maxI, "default", defI, "step", step)
		return nil, nil

	default:
		return nil, h.unsupported(cmd)
	}
}

// handleNotification marks the node awake, sends everything queued for it
// and then tells it to go back to sleep.
func (h *wakeUpHandler) handleNotification() *Event {
	now := time.Now()
	h.mu.Lock()
	h.lastWake = now
	h.awake = true
	queued := h.queue
	h.queue = nil
	h.mu.Unlock()

	h.logger.Info("node awake", "node", h.node.id, "queued", len(queued))
	nw := h.node.network
	for _, f := range queued {
		if err := nw.transmit(f); err != nil {
			h.logger.Error("flush wake-up queue", "node", h.node.id, "err", err)
		}
	}
	if err := nw.transmit(h.NoMoreInformation()); err != nil {
		h.logger.Error("send no more information", "node", h.node.id, "err", err)
	}

	h.mu.Lock()
	h.awake = false
	h.mu.Unlock()
	return h.emit(EventWakeUpNotification, WakeUpNotification{Node: h.node.id, At: now})
}

// queueIfAsleep parks f until the next notification. It reports false, and
// keeps nothing, while the node is awake.
func (h *wakeUpHandler) queueIfAsleep(f *serialapi.Frame) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.awake {
		return false
	}
	for _, q := range h.queue {
		if sameCommand(q, f) {
			return true
		}
	}
	h.queue = append(h.queue, f)
	h.logger.Debug("frame queued for wake-up", "node", h.node.id, "queued", len(h.queue))
	return true
}

// StaticRequests reads the interval, and its limits from v2 devices.
func (h *wakeUpHandler) StaticRequests() []*serialapi.Frame {
	frames := []*serialapi.Frame{h.IntervalGet()}
	if h.Version() >= 2 {
		frames = append(frames, h.IntervalCapabilitiesGet())
	}
	return frames
}

// IntervalGet builds a request for the wake-up interval.
func (h *wakeUpHandler) IntervalGet() *serialapi.Frame {
	return h.command(wakeUpCmdIntervalGet)
}

// IntervalSet builds a request setting the interval (seconds, 24 bits) and
// the node that receives notifications.
func (h *wakeUpHandler) IntervalSet(interval uint32, target uint8) *serialapi.Frame {
	return h.command(wakeUpCmdIntervalSet, byte(interval>>16), byte(interval>>8), byte(interval), target)
}

// IntervalCapabilitiesGet builds a request for the interval limits (v2).
func (h *wakeUpHandler) IntervalCapabilitiesGet() *serialapi.Frame {
	return h.command(wakeUpCmdIntervalCapabilitiesGet)
}

// NoMoreInformation tells the node it may sleep.
func (h *wakeUpHandler) NoMoreInformation() *serialapi.Frame {
	return h.command(wakeUpCmdNoMoreInformation)
}

// Interval returns the confirmed interval in seconds.
func (h *wakeUpHandler) Interval() (uint32, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.interval, h.intervalKnown
}

// Target returns the node that receives wake-up notifications.
func (h *wakeUpHandler) Target() uint8 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.target
}

// restored seeds the interval saved by a previous session.
func (h *wakeUpHandler) restored(interval uint32, target uint8) {
	h.mu.Lock()
	h.interval, h.target, h.intervalKnown = interval, target, true
	h.mu.Unlock()
}

// Capabilities returns the device-reported interval limits.
func (h *wakeUpHandler) Capabilities() WakeUpCapabilities {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.caps
}

// LastWake returns the time of the last notification.
func (h *wakeUpHandler) LastWake() time.Time {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.lastWake
}

// QueueLen returns the number of frames waiting for the node to wake.
func (h *wakeUpHandler) QueueLen() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.queue)
}

// sameCommand reports whether two frames carry the same request, ignoring
// SendData callback ids.
func sameCommand(a, b *serialapi.Frame) bool {
	if a.Function != b.Function {
		return false
	}
	if a.Function != serialapi.FuncSendData {
		return a.Equal(b)
	}
	na, ca, errA := a.Command()
	nb, cb, errB := b.Command()
	return errA == nil && errB == nil && na == nb && bytes.Equal(ca, cb)
}
