//go:build !no_mqtt

package mqtt

import (
	"encoding/json"
	"io"
	"log/slog"
	"path/filepath"
	"sync"
	"testing"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"zwave-go-home/internal/pending"
	"zwave-go-home/internal/serialapi"
	"zwave-go-home/internal/store"
	"zwave-go-home/internal/zwave"
)

// fakeClient records publishes and subscriptions; other Client methods are
// not used by the bridge outside Stop.
type fakeClient struct {
	pahomqtt.Client

	mu         sync.Mutex
	published  map[string][]byte
	subscribed []string
}

func newFakeClient() *fakeClient {
	return &fakeClient{published: make(map[string][]byte)}
}

func (c *fakeClient) IsConnected() bool { return true }

func (c *fakeClient) Publish(topic string, _ byte, _ bool, payload interface{}) pahomqtt.Token {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.published[topic] = payload.([]byte)
	return doneToken{}
}

func (c *fakeClient) SubscribeMultiple(filters map[string]byte, _ pahomqtt.MessageHandler) pahomqtt.Token {
	c.mu.Lock()
	defer c.mu.Unlock()
	for f := range filters {
		c.subscribed = append(c.subscribed, f)
	}
	return doneToken{}
}

func (c *fakeClient) payload(topic string) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	p, ok := c.published[topic]
	return p, ok
}

type doneToken struct{}

func (doneToken) Wait() bool                     { return true }
func (doneToken) WaitTimeout(time.Duration) bool { return true }
func (doneToken) Error() error                   { return nil }
func (doneToken) Done() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}

type nopSender struct{}

func (nopSender) Send(*serialapi.Frame) error { return nil }

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// restoredNetwork returns a network holding node 5, a binary switch with a
// stored wake-up interval, restored from a bolt store.
func restoredNetwork(t *testing.T) *zwave.Network {
	t.Helper()
	db, err := store.NewBoltStore(filepath.Join(t.TempDir(), "zwave.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	err = db.SaveNode(&store.NodeSnapshot{
		ID: 5, Basic: zwave.BasicRoutingSlave, Generic: zwave.GenericSwitchBinary, Specific: 0x01,
		Listening: true,
		Classes: []store.ClassSnapshot{
			{ID: uint8(zwave.ClassSwitchBinary), Version: 1, Instances: 1},
			{ID: uint8(zwave.ClassWakeUp), Version: 1, Instances: 1},
		},
		WakeUp: &store.WakeUpSnapshot{Interval: 3600, Target: 1},
	})
	if err != nil {
		t.Fatal(err)
	}

	logger := testLogger()
	nw := zwave.NewNetwork(nopSender{}, db, zwave.NewRegistry(logger), nil, zwave.NewEventBus(logger), pending.NewTable(), logger)
	t.Cleanup(nw.Close)
	if err := nw.Restore(); err != nil {
		t.Fatal(err)
	}
	return nw
}

func testBridge(nw *zwave.Network) *Bridge {
	b := newBridge(nw, Config{Broker: "tcp://127.0.0.1:1883", TopicPrefix: "zwave"}, testLogger())
	return b
}

func TestNewBridgeSetsClientBeforeConnect(t *testing.T) {
	b := testBridge(restoredNetwork(t))
	if b.client == nil {
		t.Fatal("client must exist before Connect runs the connect handler")
	}
	if b.client.IsConnected() {
		t.Fatal("newBridge must not connect")
	}
}

func TestOnConnectUsesConnectingClient(t *testing.T) {
	b := testBridge(restoredNetwork(t))
	b.client = nil
	c := newFakeClient()

	b.onConnect(c)

	if len(c.subscribed) != 2 {
		t.Fatalf("subscribed = %v, want both set filters", c.subscribed)
	}
}

func TestOnConnectPublishes(t *testing.T) {
	b := testBridge(restoredNetwork(t))
	c := newFakeClient()
	b.client = c

	b.onConnect(c)

	if got, _ := c.payload("zwave/bridge/state"); string(got) != "online" {
		t.Errorf("bridge state = %q, want online", got)
	}
	if _, ok := c.payload("homeassistant/switch/zwave_00000000_5/switch/config"); !ok {
		t.Error("switch discovery not published")
	}
}

func TestPublishNodesRestoredState(t *testing.T) {
	b := testBridge(restoredNetwork(t))
	c := newFakeClient()
	b.client = c

	b.PublishNodes()

	raw, ok := c.payload("zwave/node_5")
	if !ok {
		t.Fatal("node state not published")
	}
	var state map[string]any
	if err := json.Unmarshal(raw, &state); err != nil {
		t.Fatal(err)
	}
	if state["wakeup_interval"] != float64(3600) || state["wakeup_interval_status"] != "confirmed" {
		t.Errorf("state = %v", state)
	}
}
