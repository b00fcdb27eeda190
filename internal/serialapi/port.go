package serialapi

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"go.bug.st/serial"
	"golang.org/x/sync/errgroup"
)

// ErrPortClosed is returned by Send after the port has stopped.
var ErrPortClosed = errors.New("serialapi: port closed")

// Direction tags a traced frame.
type Direction string

const (
	DirectionRX Direction = "rx"
	DirectionTX Direction = "tx"
)

// Tracer receives every raw data frame crossing the link.
type Tracer interface {
	Trace(dir Direction, raw []byte, err error)
}

const (
	ackTimeout   = 1600 * time.Millisecond
	maxRetries   = 3
	sendQueueLen = 64
	rxQueueLen   = 32
)

// Port is the serial link to a Z-Wave controller. It frames bytes, answers
// ACK/NAK, retransmits unacknowledged frames and hands decoded frames to the
// caller in arrival order. It does not interpret frame contents.
type Port struct {
	rwc    io.ReadWriteCloser
	reader *bufio.Reader
	logger *slog.Logger
	tracer Tracer

	out    chan []byte
	frames chan *Frame
	ackCh  chan byte

	writeMu   sync.Mutex
	done      chan struct{}
	closeOnce sync.Once
}

// PortOption configures a Port.
type PortOption func(*Port)

// WithTracer records every frame to t.
func WithTracer(t Tracer) PortOption {
	return func(p *Port) { p.tracer = t }
}

// OpenPort opens a serial device with Z-Wave line settings (8N1).
func OpenPort(name string, baudRate int, logger *slog.Logger, opts ...PortOption) (*Port, error) {
	mode := &serial.Mode{
		BaudRate: baudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
	sp, err := serial.Open(name, mode)
	if err != nil {
		return nil, fmt.Errorf("serialapi: open %s: %w", name, err)
	}
	logger.Info("serial port opened", "port", name, "baud", baudRate)
	return NewPort(sp, logger, opts...), nil
}

// NewPort wraps an already open byte stream.
func NewPort(rwc io.ReadWriteCloser, logger *slog.Logger, opts ...PortOption) *Port {
	p := &Port{
		rwc:    rwc,
		reader: bufio.NewReader(rwc),
		logger: logger.With("component", "serial"),
		out:    make(chan []byte, sendQueueLen),
		frames: make(chan *Frame, rxQueueLen),
		ackCh:  make(chan byte, 4),
		done:   make(chan struct{}),
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Frames returns the channel of decoded inbound frames. It is closed when Run returns.
func (p *Port) Frames() <-chan *Frame {
	return p.frames
}

// Send queues a frame for transmission. It never waits for the controller.
func (p *Port) Send(f *Frame) error {
	raw, err := f.Encode()
	if err != nil {
		return err
	}
	select {
	case <-p.done:
		return ErrPortClosed
	default:
	}
	select {
	case p.out <- raw:
		return nil
	case <-p.done:
		return ErrPortClosed
	}
}

// Run drives the read and write loops until ctx is cancelled or the link fails.
func (p *Port) Run(ctx context.Context) error {
	defer close(p.frames)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return p.readLoop() })
	g.Go(func() error { return p.writeLoop(gctx) })
	g.Go(func() error {
		select {
		case <-gctx.Done():
		case <-p.done:
		}
		p.Close()
		return nil
	})
	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// Close stops both loops and closes the underlying stream.
func (p *Port) Close() error {
	var err error
	p.closeOnce.Do(func() {
		close(p.done)
		err = p.rwc.Close()
	})
	return err
}

func (p *Port) closed() bool {
	select {
	case <-p.done:
		return true
	default:
		return false
	}
}

// --- read side ---

func (p *Port) readLoop() error {
	backoff := 10 * time.Millisecond
	const maxBackoff = 5 * time.Second

	for {
		raw, err := p.readRaw()
		if err != nil {
			if p.closed() {
				return nil
			}
			if err == io.EOF || strings.Contains(err.Error(), "closed") {
				return fmt.Errorf("serialapi: read: %w", err)
			}
			p.logger.Error("serial read error", "err", err)
			select {
			case <-time.After(backoff):
			case <-p.done:
				return nil
			}
			backoff = min(backoff*2, maxBackoff)
			continue
		}
		backoff = 10 * time.Millisecond

		if len(raw) == 1 {
			p.handleLinkByte(raw[0])
			continue
		}

		frame, err := Decode(raw)
		if p.tracer != nil {
			p.tracer.Trace(DirectionRX, raw, err)
		}
		if err != nil {
			p.logger.Warn("frame rejected", "err", err, "raw", fmt.Sprintf("%X", raw))
			p.writeLink(NAK)
			continue
		}
		p.writeLink(ACK)
		p.logger.Debug("frame received", "type", frame.Type, "func", frame.Function, "payload", fmt.Sprintf("%X", []byte(frame.Payload)))

		select {
		case p.frames <- frame:
		case <-p.done:
			return nil
		}
	}
}

// readRaw returns a single link byte (ACK/NAK/CAN) or a complete data frame.
func (p *Port) readRaw() ([]byte, error) {
	for {
		b, err := p.reader.ReadByte()
		if err != nil {
			return nil, err
		}
		switch b {
		case ACK, NAK, CAN:
			return []byte{b}, nil
		case SOF:
			n, err := p.reader.ReadByte()
			if err != nil {
				return nil, err
			}
			raw := make([]byte, int(n)+2)
			raw[0], raw[1] = SOF, n
			if _, err := io.ReadFull(p.reader, raw[2:]); err != nil {
				return nil, err
			}
			return raw, nil
		default:
			p.logger.Debug("discarding out-of-frame byte", "byte", fmt.Sprintf("0x%02X", b))
		}
	}
}

func (p *Port) handleLinkByte(b byte) {
	select {
	case p.ackCh <- b:
	default:
		p.logger.Debug("unexpected link byte", "byte", fmt.Sprintf("0x%02X", b))
	}
}

func (p *Port) writeLink(b byte) {
	p.writeMu.Lock()
	_, err := p.rwc.Write([]byte{b})
	p.writeMu.Unlock()
	if err != nil && !p.closed() {
		p.logger.Error("serial write link byte", "err", err)
	}
}

// --- write side ---

func (p *Port) writeLoop(ctx context.Context) error {
	for {
		select {
		case raw := <-p.out:
			if err := p.writeWithACK(ctx, raw); err != nil {
				if p.closed() || ctx.Err() != nil {
					return nil
				}
				p.logger.Warn("frame not acknowledged, dropped", "err", err, "raw", fmt.Sprintf("%X", raw))
			}
		case <-ctx.Done():
			return ctx.Err()
		case <-p.done:
			return nil
		}
	}
}

// drainLinkBytes discards ACK/NAK/CAN bytes left over from an earlier,
// timed-out attempt so they cannot answer the next frame.
func (p *Port) drainLinkBytes() {
	for {
		select {
		case b := <-p.ackCh:
			p.logger.Debug("discarding stale link byte", "byte", fmt.Sprintf("0x%02X", b))
		default:
			return
		}
	}
}

// writeWithACK writes a data frame and waits for ACK, retrying on NAK, CAN or timeout.
func (p *Port) writeWithACK(ctx context.Context, raw []byte) error {
	for attempt := 0; attempt <= maxRetries; attempt++ {
		p.drainLinkBytes()
		p.writeMu.Lock()
		_, err := p.rwc.Write(raw)
		p.writeMu.Unlock()
		if err != nil {
			return fmt.Errorf("serial write: %w", err)
		}
		if p.tracer != nil {
			p.tracer.Trace(DirectionTX, raw, nil)
		}

		deadline := time.NewTimer(ackTimeout)
		select {
		case b := <-p.ackCh:
			deadline.Stop()
			if b == ACK {
				return nil
			}
			p.logger.Warn("frame refused by controller", "reply", fmt.Sprintf("0x%02X", b), "attempt", attempt+1)
		case <-deadline.C:
			p.logger.Warn("ACK timeout", "attempt", attempt+1)
		case <-ctx.Done():
			deadline.Stop()
			return ctx.Err()
		case <-p.done:
			deadline.Stop()
			return ErrPortClosed
		}
		// Back off a little more on every retry, as the controller may be busy.
		select {
		case <-time.After(time.Duration(100*(attempt+1)) * time.Millisecond):
		case <-p.done:
			return ErrPortClosed
		}
	}
	return fmt.Errorf("no ACK after %d attempts", maxRetries+1)
}
