package serialapi

import (
	"bytes"
	"errors"
	"testing"
)

func TestFrameEncodeDecodeRoundTrip(t *testing.T) {
	tests := []struct {
		name  string
		frame *Frame
	}{
		{"get init data", NewRequest(FuncGetInitData, nil)},
		{"send data", SendDataRequest(5, []byte{0x70, 0x05, 0x03}, 0x11)},
		{"identify node response", NewResponse(FuncIdentifyNode, []byte{0xD3, 0x9C, 0x01, 0x04, 0x10, 0x01})},
		{"application command", NewRequest(FuncApplicationCommandHandler, []byte{0x00, 0x05, 0x03, 0x80, 0x03, 0x64})},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw, err := tt.frame.Encode()
			if err != nil {
				t.Fatalf("encode: %v", err)
			}
			if raw[0] != SOF {
				t.Errorf("first byte = 0x%02X, want SOF", raw[0])
			}
			if int(raw[1]) != len(raw)-2 {
				t.Errorf("length byte = %d, frame is %d bytes", raw[1], len(raw))
			}
			got, err := Decode(raw)
			if err != nil {
				t.Fatalf("decode: %v", err)
			}
			if !got.Equal(tt.frame) {
				t.Errorf("round trip: got %s, want %s", got, tt.frame)
			}
		})
	}
}

func TestKnownFrameBytes(t *testing.T) {
	// SerialApiGetInitData request as sent by every Z-Wave host.
	raw, err := NewRequest(FuncGetInitData, nil).Encode()
	if err != nil {
		t.Fatal(err)
	}
	want := []byte{0x01, 0x03, 0x00, 0x02, 0xFE}
	if !bytes.Equal(raw, want) {
		t.Errorf("got %X, want %X", raw, want)
	}
}

func TestChecksumIncludesLength(t *testing.T) {
	raw := []byte{0x01, 0x03, 0x00, 0x02, 0xFE}
	if got := Checksum(raw[1:4]); got != raw[4] {
		t.Errorf("checksum over LEN..payload = 0x%02X, want 0x%02X", got, raw[4])
	}
	if got := Checksum(raw[2:4]); got == raw[4] {
		t.Errorf("checksum without LEN should differ, got 0x%02X", got)
	}
}

func TestDecodeBadChecksum(t *testing.T) {
	raw, _ := SendDataRequest(2, []byte{0x20, 0x02}, 1).Encode()
	for i := 1; i < 256; i++ {
		bad := append([]byte(nil), raw...)
		bad[len(bad)-1] ^= byte(i)
		_, err := Decode(bad)
		if !errors.Is(err, ErrChecksum) {
			t.Fatalf("xor 0x%02X: err = %v, want ErrChecksum", i, err)
		}
		if !errors.Is(err, ErrFraming) {
			t.Fatalf("checksum error should also be a framing error: %v", err)
		}
	}
}

func TestDecodeFramingErrors(t *testing.T) {
	good, _ := NewRequest(FuncGetVersion, []byte{0x01, 0x02}).Encode()

	tests := []struct {
		name string
		data []byte
	}{
		{"empty", nil},
		{"too short", []byte{0x01, 0x03, 0x00}},
		{"bad start", append([]byte{0x02}, good[1:]...)},
		{"length too long", append(append([]byte(nil), good...), 0x00)},
		{"length too short", good[:len(good)-1]},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode(tt.data)
			if !errors.Is(err, ErrFraming) {
				t.Errorf("err = %v, want ErrFraming", err)
			}
		})
	}
}

func TestPayloadAccessors(t *testing.T) {
	p := Payload{0x80, 0x01, 0x02, 0xFF, 0xFE}

	if b, err := p.ByteAt(0); err != nil || b != 0x80 {
		t.Errorf("ByteAt(0) = 0x%02X, %v", b, err)
	}
	if v, err := p.SignedByteAt(0); err != nil || v != -128 {
		t.Errorf("SignedByteAt(0) = %d, %v", v, err)
	}
	if w, err := p.WordAt(1); err != nil || w != 0x0102 {
		t.Errorf("WordAt(1) = 0x%04X, %v", w, err)
	}
	if w, err := p.Word24At(0); err != nil || w != 0x800102 {
		t.Errorf("Word24At(0) = 0x%06X, %v", w, err)
	}
	if v, err := p.ValueAt(3, 2); err != nil || v != -2 {
		t.Errorf("ValueAt(3, 2) = %d, %v", v, err)
	}

	outOfRange := []func() error{
		func() error { _, err := p.ByteAt(5); return err },
		func() error { _, err := p.ByteAt(-1); return err },
		func() error { _, err := p.WordAt(4); return err },
		func() error { _, err := p.Word24At(3); return err },
		func() error { _, err := p.ValueAt(2, 4); return err },
		func() error { _, err := p.Slice(6); return err },
	}
	for i, f := range outOfRange {
		err := f()
		if !errors.Is(err, ErrFieldOutOfRange) {
			t.Errorf("case %d: err = %v, want ErrFieldOutOfRange", i, err)
		}
		var fe *FieldOutOfRangeError
		if !errors.As(err, &fe) {
			t.Errorf("case %d: not a *FieldOutOfRangeError", i)
		}
	}
}

func TestPutValue(t *testing.T) {
	tests := []struct {
		v    int32
		size int
		want []byte
	}{
		{10, 1, []byte{0x0A}},
		{-1, 1, []byte{0xFF}},
		{300, 2, []byte{0x01, 0x2C}},
		{-2, 2, []byte{0xFF, 0xFE}},
		{0x01020304, 4, []byte{0x01, 0x02, 0x03, 0x04}},
	}
	for _, tt := range tests {
		got := PutValue(nil, tt.v, tt.size)
		if !bytes.Equal(got, tt.want) {
			t.Errorf("PutValue(%d, %d) = %X, want %X", tt.v, tt.size, got, tt.want)
		}
		back, err := Payload(got).ValueAt(0, tt.size)
		if err != nil || back != tt.v {
			t.Errorf("ValueAt after PutValue(%d) = %d, %v", tt.v, back, err)
		}
	}

	if ValueSize(127) != 1 || ValueSize(128) != 2 || ValueSize(-32769) != 4 {
		t.Error("ValueSize boundaries wrong")
	}
}

func TestSendDataCommand(t *testing.T) {
	f := SendDataRequest(7, []byte{0x84, 0x05}, 0x22)
	node, cmd, err := f.Command()
	if err != nil {
		t.Fatal(err)
	}
	if node != 7 {
		t.Errorf("node = %d, want 7", node)
	}
	if !bytes.Equal(cmd, []byte{0x84, 0x05}) {
		t.Errorf("command = %X", []byte(cmd))
	}
	if f.Payload[len(f.Payload)-1] != 0x22 {
		t.Errorf("callback id = 0x%02X", f.Payload[len(f.Payload)-1])
	}

	if _, _, err := NewRequest(FuncGetVersion, nil).Command(); err == nil {
		t.Error("expected error for non-SendData frame")
	}
}
