package zwave

import (
	"fmt"
	"log/slog"
	"sync"

	"zwave-go-home/internal/serialapi"
)

// Handler decodes and builds frames for one command class on a node root or
// an endpoint. Implementations guard their own state.
type Handler interface {
	CommandClass() CommandClass
	// Version is the negotiated class version; 0 until known.
	Version() uint8
	SetVersion(v uint8)
	// Instances is the v1 multi-instance count; always 1 on endpoints.
	Instances() uint8
	SetInstances(n uint8)
	// Handle decodes payload, which starts at the command byte. endpoint is
	// the instance or endpoint the frame came from, 0 for the root.
	Handle(payload serialapi.Payload, endpoint uint8) (*Event, error)
}

// staticRequester is implemented by handlers that read slow-changing device
// state once, when the interview reaches the static stage.
type staticRequester interface {
	StaticRequests() []*serialapi.Frame
}

// productAware is implemented by handlers that take metadata from the
// product catalogue.
type productAware interface {
	applyProduct(p *Product)
}

// baseHandler carries the state every handler has. Concrete handlers embed it
// and use mu for their own fields as well.
type baseHandler struct {
	mu        sync.Mutex
	class     CommandClass
	node      *Node
	endpoint  uint8
	version   uint8
	instances uint8
	logger    *slog.Logger
}

func (b *baseHandler) init(class CommandClass, n *Node, endpoint uint8) {
	b.class = class
	b.node = n
	b.endpoint = endpoint
	b.instances = 1
	b.logger = n.logger.With("class", class.String())
	if endpoint != 0 {
		b.logger = b.logger.With("endpoint", endpoint)
	}
}

func (b *baseHandler) CommandClass() CommandClass { return b.class }

func (b *baseHandler) Version() uint8 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.version
}

func (b *baseHandler) SetVersion(v uint8) {
	b.mu.Lock()
	b.version = v
	b.mu.Unlock()
}

func (b *baseHandler) Instances() uint8 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.instances
}

func (b *baseHandler) SetInstances(n uint8) {
	b.mu.Lock()
	b.instances = n
	b.mu.Unlock()
}

// Endpoint returns the endpoint (or v1 instance) this handler addresses, 0 for the root.
func (b *baseHandler) Endpoint() uint8 { return b.endpoint }

// command builds a SendData frame carrying [class, cmd...], encapsulated for
// the handler's endpoint.
func (b *baseHandler) command(cmd ...byte) *serialapi.Frame {
	return b.commandTo(b.endpoint, cmd...)
}

func (b *baseHandler) commandTo(endpoint uint8, cmd ...byte) *serialapi.Frame {
	data := make([]byte, 0, len(cmd)+1)
	data = append(data, byte(b.class))
	data = append(data, cmd...)
	return b.node.network.sendData(b.node.id, b.node.encapsulate(data, endpoint))
}

func (b *baseHandler) unsupported(cmd byte) error {
	b.logger.Warn("unsupported command", "node", b.node.id, "command", fmt.Sprintf("0x%02X", cmd))
	return nil
}

func (b *baseHandler) emit(eventType string, data any) *Event {
	return &Event{Type: eventType, Data: data}
}

func commandByte(payload serialapi.Payload) (byte, error) {
	return payload.ByteAt(0)
}
