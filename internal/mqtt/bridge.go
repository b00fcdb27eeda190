//go:build !no_mqtt

package mqtt

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"zwave-go-home/internal/zwave"
)

// Config holds MQTT bridge configuration.
type Config struct {
	Broker      string
	Username    string
	Password    string
	TopicPrefix string
}

// nodeWriter is the part of the network that MQTT commands drive.
type nodeWriter interface {
	SetLevel(node, endpoint, level uint8) error
	SetConfiguration(node, param uint8, value int32) error
	AddAssociation(node, group, member uint8) error
	RemoveAssociation(node, group, member uint8) error
	SetWakeUpInterval(node uint8, interval uint32) error
}

// stateKey addresses one state topic: a node root or one of its endpoints.
type stateKey struct {
	node     uint8
	endpoint uint8
}

// Bridge connects the Z-Wave network to MQTT with HA autodiscovery.
type Bridge struct {
	client pahomqtt.Client
	nw     *zwave.Network
	prefix string
	logger *slog.Logger
	unsub  func()

	// Per-node state accumulator.
	mu     sync.Mutex
	states map[stateKey]map[string]any
	// Sensor entities already announced.
	announced map[string]bool
}

// NewBridge creates and connects an MQTT bridge.
func NewBridge(nw *zwave.Network, cfg Config, logger *slog.Logger) (*Bridge, error) {
	b := newBridge(nw, cfg, logger)
	token := b.client.Connect()
	if !token.WaitTimeout(10 * time.Second) {
		return nil, fmt.Errorf("mqtt connect timeout")
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("mqtt connect: %w", err)
	}
	return b, nil
}

// newBridge builds the bridge and its client without connecting. The client
// is set before Connect, since the connect handler runs on paho's goroutine.
func newBridge(nw *zwave.Network, cfg Config, logger *slog.Logger) *Bridge {
	b := &Bridge{
		nw:        nw,
		prefix:    cfg.TopicPrefix,
		logger:    logger.With("component", "mqtt"),
		states:    make(map[stateKey]map[string]any),
		announced: make(map[string]bool),
	}

	opts := pahomqtt.NewClientOptions().
		AddBroker(cfg.Broker).
		SetClientID("zwave-go-home").
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5 * time.Second).
		SetWill(cfg.TopicPrefix+"/bridge/state", "offline", 1, true).
		SetOnConnectHandler(b.onConnect).
		SetConnectionLostHandler(func(_ pahomqtt.Client, err error) {
			b.logger.Warn("MQTT connection lost", "err", err)
		})

	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}

	b.client = pahomqtt.NewClient(opts)
	return b
}

func (b *Bridge) onConnect(c pahomqtt.Client) {
	b.logger.Info("MQTT connected")
	b.publishBridgeState("online")
	b.PublishNodes()
	b.subscribeCommands(c)
}

// Start subscribes to network events and begins MQTT publishing.
func (b *Bridge) Start() {
	b.unsub = b.nw.Events().OnAll(b.handleEvent)
	b.logger.Info("MQTT bridge started", "prefix", b.prefix)
}

// Stop publishes offline state, unsubscribes, and disconnects.
func (b *Bridge) Stop() {
	if b.unsub != nil {
		b.unsub()
	}
	b.publishBridgeState("offline")
	b.client.Disconnect(1000)
	b.logger.Info("MQTT bridge stopped")
}

func (b *Bridge) handleEvent(event zwave.Event) {
	switch data := event.Data.(type) {
	case zwave.ValueChanged:
		b.updateAndPublishState(stateKey{data.Node, data.Endpoint}, valueProperties(data))
		if data.CommandClass == zwave.ClassSensorMultilevel {
			b.announceSensor(data)
		}

	case zwave.BatteryLevelChanged:
		b.updateAndPublishState(stateKey{node: data.Node}, map[string]any{
			"battery":     data.Level,
			"battery_low": data.Low,
		})

	case zwave.ConfigurationParameterChanged:
		b.publish(configurationTopic(b.prefix, data.Node, data.Parameter),
			mustJSON(zwave.Reading{Value: data.Value, Status: zwave.StatusConfirmed}), true)

	case zwave.AssociationChanged:
		members := make([]zwave.Member, 0, len(data.Members))
		for _, id := range data.Members {
			members = append(members, zwave.Member{Node: id, Status: zwave.StatusConfirmed})
		}
		b.publish(associationTopic(b.prefix, data.Node, data.Group), mustJSON(members), true)

	case zwave.WakeUpIntervalChanged:
		b.updateAndPublishState(stateKey{node: data.Node}, map[string]any{
			"wakeup_interval":        data.Interval,
			"wakeup_interval_status": zwave.StatusConfirmed.String(),
		})

	case zwave.WakeUpNotification:
		b.updateAndPublishState(stateKey{node: data.Node}, map[string]any{
			"last_wake": data.At.UTC().Format(time.RFC3339),
		})

	case zwave.NodeEvent:
		b.updateAndPublishState(stateKey{node: data.Node}, map[string]any{"stage": data.Stage.String()})
		if event.Type == zwave.EventNodeReady {
			b.publishDiscovery(data.Node)
		}
	}
}

// updateAndPublishState merges props into the state of key and publishes
// the complete state.
func (b *Bridge) updateAndPublishState(key stateKey, props map[string]any) {
	b.mu.Lock()
	state, ok := b.states[key]
	if !ok {
		state = make(map[string]any)
		b.states[key] = state
	}
	for k, v := range props {
		state[k] = v
	}
	payload := mustJSON(state)
	b.mu.Unlock()

	b.publish(stateTopic(b.prefix, key.node, key.endpoint), payload, true)
}

// PublishNodes publishes discovery and the stored configuration,
// association and wake-up readings of every interviewed node, pending
// writes included. The daemon calls it once nodes are restored; reconnects
// call it too.
func (b *Bridge) PublishNodes() {
	for _, n := range b.nw.Nodes() {
		if n.Stage() != zwave.StageDone {
			continue
		}
		b.publishDiscovery(n.ID())
		b.publishReadings(n)
	}
}

// publishReadings covers the parameters and groups the product catalogue
// lists for n; nothing else is known up front.
func (b *Bridge) publishReadings(n *zwave.Node) {
	id := n.ID()
	if p := n.Product(); p != nil {
		for _, pi := range p.Parameters {
			r, err := b.nw.ConfigurationValue(id, pi.Index)
			if err != nil || r.Status == zwave.StatusUnknown {
				continue
			}
			b.publish(configurationTopic(b.prefix, id, pi.Index), mustJSON(r), true)
		}
		for _, g := range p.Groups {
			if members, err := b.nw.AssociationMembers(id, g.Index); err == nil {
				b.publish(associationTopic(b.prefix, id, g.Index), mustJSON(members), true)
			}
		}
	}
	if r, err := b.nw.WakeUpInterval(id); err == nil && r.Status != zwave.StatusUnknown {
		b.updateAndPublishState(stateKey{node: id}, map[string]any{
			"wakeup_interval":        r.Value,
			"wakeup_interval_status": r.Status.String(),
		})
	}
}

func (b *Bridge) publishDiscovery(id uint8) {
	n, err := b.nw.Node(id)
	if err != nil {
		return
	}
	for _, msg := range buildDiscovery(describeNode(n, b.nw.HomeID()), b.prefix) {
		b.publish(msg.Topic, msg.Payload, true)
	}
	b.logger.Debug("discovery published", "node", id)
}

// announceSensor publishes discovery for a sensor type the first time it reports.
func (b *Bridge) announceSensor(v zwave.ValueChanged) {
	n, err := b.nw.Node(v.Node)
	if err != nil {
		return
	}
	msg := buildSensorReadingDiscovery(describeNode(n, b.nw.HomeID()), b.prefix, v)

	b.mu.Lock()
	seen := b.announced[msg.Topic]
	b.announced[msg.Topic] = true
	b.mu.Unlock()
	if !seen {
		b.publish(msg.Topic, msg.Payload, true)
	}
}

func (b *Bridge) publishBridgeState(state string) {
	b.publish(b.prefix+"/bridge/state", []byte(state), true)
}

func (b *Bridge) subscribeCommands(c pahomqtt.Client) {
	filters := map[string]byte{
		b.prefix + "/+/set":   1,
		b.prefix + "/+/+/set": 1,
	}
	token := c.SubscribeMultiple(filters, func(_ pahomqtt.Client, msg pahomqtt.Message) {
		b.handleCommand(msg.Topic(), msg.Payload())
	})
	go func() {
		if !token.WaitTimeout(5 * time.Second) {
			b.logger.Warn("MQTT subscribe timeout", "prefix", b.prefix)
		} else if err := token.Error(); err != nil {
			b.logger.Warn("MQTT subscribe error", "prefix", b.prefix, "err", err)
		}
	}()
}

func (b *Bridge) handleCommand(topic string, payload []byte) {
	node, endpoint, ok := parseCommandTopic(b.prefix, topic)
	if !ok {
		b.logger.Debug("ignoring command topic", "topic", topic)
		return
	}
	var cmd nodeCommand
	if err := json.Unmarshal(payload, &cmd); err != nil {
		b.logger.Warn("invalid MQTT command", "topic", topic, "err", err)
		return
	}
	if err := applyCommand(b.nw, node, endpoint, cmd); err != nil {
		b.logger.Warn("MQTT command failed", "node", node, "endpoint", endpoint, "err", err)
	}
	b.publishPending(node, cmd)
}

// publishPending republishes the values a command wrote, so subscribers see
// them as pending until the device confirms.
func (b *Bridge) publishPending(node uint8, cmd nodeCommand) {
	for key := range cmd.Configuration {
		param, err := strconv.ParseUint(key, 10, 8)
		if err != nil {
			continue
		}
		if r, err := b.nw.ConfigurationValue(node, uint8(param)); err == nil {
			b.publish(configurationTopic(b.prefix, node, uint8(param)), mustJSON(r), true)
		}
	}
	for _, a := range cmd.Association {
		if members, err := b.nw.AssociationMembers(node, a.Group); err == nil {
			b.publish(associationTopic(b.prefix, node, a.Group), mustJSON(members), true)
		}
	}
	if cmd.WakeUpInterval != nil {
		if r, err := b.nw.WakeUpInterval(node); err == nil {
			b.updateAndPublishState(stateKey{node: node}, map[string]any{
				"wakeup_interval":        r.Value,
				"wakeup_interval_status": r.Status.String(),
			})
		}
	}
}

// nodeCommand is the JSON body of a set topic. Every field is optional;
// configuration keys are parameter numbers. Brightness is accepted as an
// alias of level for HA JSON lights.
type nodeCommand struct {
	State          string               `json:"state,omitempty"`
	Level          *uint8               `json:"level,omitempty"`
	Brightness     *uint8               `json:"brightness,omitempty"`
	Configuration  map[string]int32     `json:"configuration,omitempty"`
	Association    []associationCommand `json:"association,omitempty"`
	WakeUpInterval *uint32              `json:"wakeup_interval,omitempty"`
}

type associationCommand struct {
	Group  uint8   `json:"group"`
	Add    []uint8 `json:"add,omitempty"`
	Remove []uint8 `json:"remove,omitempty"`
}

// applyCommand performs every write in cmd and joins the errors.
func applyCommand(w nodeWriter, node, endpoint uint8, cmd nodeCommand) error {
	var errs []error
	level := cmd.Level
	if level == nil {
		level = cmd.Brightness
	}
	switch strings.ToUpper(cmd.State) {
	case "":
		if level != nil {
			errs = append(errs, w.SetLevel(node, endpoint, *level))
		}
	case "ON":
		on := uint8(0xFF)
		if level != nil {
			on = *level
		}
		errs = append(errs, w.SetLevel(node, endpoint, on))
	case "OFF":
		errs = append(errs, w.SetLevel(node, endpoint, 0))
	default:
		errs = append(errs, fmt.Errorf("unknown state %q", cmd.State))
	}

	for key, value := range cmd.Configuration {
		param, err := strconv.ParseUint(key, 10, 8)
		if err != nil {
			errs = append(errs, fmt.Errorf("configuration parameter %q: %w", key, err))
			continue
		}
		errs = append(errs, w.SetConfiguration(node, uint8(param), value))
	}

	for _, a := range cmd.Association {
		for _, m := range a.Add {
			errs = append(errs, w.AddAssociation(node, a.Group, m))
		}
		for _, m := range a.Remove {
			errs = append(errs, w.RemoveAssociation(node, a.Group, m))
		}
	}

	if cmd.WakeUpInterval != nil {
		errs = append(errs, w.SetWakeUpInterval(node, *cmd.WakeUpInterval))
	}
	return errors.Join(errs...)
}

func (b *Bridge) publish(topic string, payload []byte, retained bool) {
	if b.client == nil || !b.client.IsConnected() {
		return
	}
	token := b.client.Publish(topic, 1, retained, payload)
	go func() {
		if !token.WaitTimeout(5 * time.Second) {
			b.logger.Warn("MQTT publish timeout", "topic", topic)
		} else if err := token.Error(); err != nil {
			b.logger.Warn("MQTT publish error", "topic", topic, "err", err)
		}
	}()
}

// stateTopic is <prefix>/node_<id> for the root and
// <prefix>/node_<id>/endpoint_<ep> for an endpoint.
func stateTopic(prefix string, node, endpoint uint8) string {
	t := prefix + "/node_" + strconv.Itoa(int(node))
	if endpoint > 0 {
		t += "/endpoint_" + strconv.Itoa(int(endpoint))
	}
	return t
}

func configurationTopic(prefix string, node, param uint8) string {
	return fmt.Sprintf("%s/configuration/%d", stateTopic(prefix, node, 0), param)
}

func associationTopic(prefix string, node, group uint8) string {
	return fmt.Sprintf("%s/association/%d", stateTopic(prefix, node, 0), group)
}

// parseCommandTopic extracts the node and endpoint from a state topic
// followed by /set.
func parseCommandTopic(prefix, topic string) (node, endpoint uint8, ok bool) {
	rest, ok := strings.CutPrefix(topic, prefix+"/")
	if !ok {
		return 0, 0, false
	}
	rest, ok = strings.CutSuffix(rest, "/set")
	if !ok {
		return 0, 0, false
	}
	parts := strings.Split(rest, "/")
	if len(parts) > 2 {
		return 0, 0, false
	}
	id, ok := parseIndexed(parts[0], "node_")
	if !ok || id == 0 {
		return 0, 0, false
	}
	if len(parts) == 2 {
		ep, ok := parseIndexed(parts[1], "endpoint_")
		if !ok || ep == 0 {
			return 0, 0, false
		}
		return id, ep, true
	}
	return id, 0, true
}

func parseIndexed(s, prefix string) (uint8, bool) {
	digits, ok := strings.CutPrefix(s, prefix)
	if !ok {
		return 0, false
	}
	n, err := strconv.ParseUint(digits, 10, 8)
	if err != nil {
		return 0, false
	}
	return uint8(n), true
}

// valueProperties maps a value event to state properties.
func valueProperties(v zwave.ValueChanged) map[string]any {
	switch v.CommandClass {
	case zwave.ClassSwitchBinary:
		return map[string]any{"state": onOff(v.Value)}
	case zwave.ClassSwitchMultilevel:
		return map[string]any{
			"state":      onOff(v.Value),
			"level":      v.Value,
			"brightness": v.Value,
		}
	case zwave.ClassBasic:
		return map[string]any{"basic": v.Value}
	case zwave.ClassSensorMultilevel:
		return map[string]any{sensorKindOf(v.SensorType, v.Scale).property: v.Value}
	default:
		return map[string]any{strings.ToLower(v.CommandClass.String()): v.Value}
	}
}

func onOff(v float64) string {
	if v != 0 {
		return "ON"
	}
	return "OFF"
}

func mustJSON(v interface{}) []byte {
	data, err := json.Marshal(v)
	if err != nil {
		return []byte("{}")
	}
	return data
}
