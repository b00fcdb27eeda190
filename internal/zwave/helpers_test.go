package zwave

import (
	"io"
	"log/slog"
	"sort"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"zwave-go-home/internal/pending"
	"zwave-go-home/internal/serialapi"
	"zwave-go-home/internal/store"
)

// fakeSender records every frame handed to the controller.
type fakeSender struct {
	mu     sync.Mutex
	frames []*serialapi.Frame
}

func (s *fakeSender) Send(f *serialapi.Frame) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.frames = append(s.frames, f)
	return nil
}

func (s *fakeSender) sent() []*serialapi.Frame {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*serialapi.Frame(nil), s.frames...)
}

func (s *fakeSender) reset() {
	s.mu.Lock()
	s.frames = nil
	s.mu.Unlock()
}

// commands returns the application commands sent to node via SendData.
func (s *fakeSender) commands(node uint8) [][]byte {
	var out [][]byte
	for _, f := range s.sent() {
		if f.Function != serialapi.FuncSendData {
			continue
		}
		id, cmd, err := f.Command()
		if err == nil && id == node {
			out = append(out, []byte(cmd))
		}
	}
	return out
}

// requests returns the payloads of frames sent with function fn.
func (s *fakeSender) requests(fn serialapi.Function) [][]byte {
	var out [][]byte
	for _, f := range s.sent() {
		if f.Function == fn {
			out = append(out, []byte(f.Payload))
		}
	}
	return out
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestNetwork(t *testing.T) (*Network, *fakeSender) {
	t.Helper()
	return newTestNetworkWithStore(t, nil)
}

func newTestNetworkWithStore(t *testing.T, st store.Store) (*Network, *fakeSender) {
	t.Helper()
	s := &fakeSender{}
	logger := testLogger()
	nw := NewNetwork(s, st, NewRegistry(logger), nil, NewEventBus(logger), pending.NewTable(), logger)
	nw.homeID = 0xC0FFEE01
	nw.controllerID = 1
	t.Cleanup(nw.Close)
	return nw, s
}

// installNode registers an already interviewed node with the given root
// classes at version 1.
func installNode(t *testing.T, nw *Network, id uint8, listening bool, classes ...CommandClass) *Node {
	t.Helper()
	n := newNode(nw, id)
	n.listening = listening
	n.protocolInfo = true
	n.nodeInfo = true
	n.deviceClass = DeviceClass{Basic: BasicRoutingSlave, Generic: GenericSwitchBinary, Specific: 0x01}
	n.stage = StageDone
	nw.mu.Lock()
	nw.nodes[id] = n
	nw.mu.Unlock()
	for _, c := range classes {
		h := n.AddHandler(c)
		require.NotNil(t, h, "class %s", c)
		h.SetVersion(1)
	}
	return n
}

// appCommand wraps cmd in an ApplicationCommandHandler frame from src.
func appCommand(src uint8, cmd ...byte) *serialapi.Frame {
	p := append([]byte{0x00, src, byte(len(cmd))}, cmd...)
	return serialapi.NewRequest(serialapi.FuncApplicationCommandHandler, p)
}

// recorder collects every event emitted on a bus.
type recorder struct {
	mu     sync.Mutex
	events []Event
}

func record(nw *Network) *recorder {
	r := &recorder{}
	nw.events.OnAll(func(e Event) {
		r.mu.Lock()
		r.events = append(r.events, e)
		r.mu.Unlock()
	})
	return r
}

func (r *recorder) ofType(typ string) []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Event
	for _, e := range r.events {
		if e.Type == typ {
			out = append(out, e)
		}
	}
	return out
}

// memStore is a minimal in-memory store.Store.
type memStore struct {
	mu    sync.Mutex
	nodes map[uint8]*store.NodeSnapshot
	state *store.NetworkState
}

func newMemStore() *memStore {
	return &memStore{nodes: make(map[uint8]*store.NodeSnapshot)}
}

func (m *memStore) SaveNode(n *store.NodeSnapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nodes[n.ID] = n
	return nil
}

func (m *memStore) GetNode(id uint8) (*store.NodeSnapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n, ok := m.nodes[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return n, nil
}

func (m *memStore) DeleteNode(id uint8) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.nodes, id)
	return nil
}

func (m *memStore) ListNodes() ([]*store.NodeSnapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*store.NodeSnapshot, 0, len(m.nodes))
	for _, n := range m.nodes {
		out = append(out, n)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *memStore) UpdateNode(id uint8, fn func(n *store.NodeSnapshot) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	n, ok := m.nodes[id]
	if !ok {
		return store.ErrNotFound
	}
	return fn(n)
}

func (m *memStore) SaveNetworkState(s *store.NetworkState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state = s
	return nil
}

func (m *memStore) GetNetworkState() (*store.NetworkState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state == nil {
		return nil, store.ErrNotFound
	}
	return m.state, nil
}

func (m *memStore) Close() error { return nil }
