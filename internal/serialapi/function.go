package serialapi

import "fmt"

// Function is a Serial API function id (the byte after the message type).
type Function uint8

const (
	FuncGetInitData               Function = 0x02
	FuncApplicationCommandHandler Function = 0x04
	FuncGetCapabilities           Function = 0x07
	FuncSoftReset                 Function = 0x08
	FuncSendData                  Function = 0x13
	FuncGetVersion                Function = 0x15
	FuncMemoryGetID               Function = 0x20
	FuncIdentifyNode              Function = 0x41
	FuncApplicationUpdate         Function = 0x49
	FuncRequestNodeInfo           Function = 0x60
)

func (f Function) String() string {
	switch f {
	case FuncGetInitData:
		return "SerialApiGetInitData"
	case FuncApplicationCommandHandler:
		return "ApplicationCommandHandler"
	case FuncGetCapabilities:
		return "SerialApiGetCapabilities"
	case FuncSoftReset:
		return "SerialApiSoftReset"
	case FuncSendData:
		return "SendData"
	case FuncGetVersion:
		return "GetVersion"
	case FuncMemoryGetID:
		return "MemoryGetId"
	case FuncIdentifyNode:
		return "IdentifyNode"
	case FuncApplicationUpdate:
		return "ApplicationUpdate"
	case FuncRequestNodeInfo:
		return "RequestNodeInfo"
	default:
		return fmt.Sprintf("0x%02X", uint8(f))
	}
}

// SendData transmit options.
const (
	TransmitOptionACK       byte = 0x01
	TransmitOptionAutoRoute byte = 0x04
	TransmitOptionExplore   byte = 0x20

	DefaultTransmitOptions = TransmitOptionACK | TransmitOptionAutoRoute | TransmitOptionExplore
)

// SendDataRequest wraps an application command for delivery to nodeID.
// Payload: node(1) + len(1) + command(N) + txOptions(1) + callbackID(1).
func SendDataRequest(nodeID uint8, command []byte, callbackID uint8) *Frame {
	buf := make([]byte, 0, len(command)+4)
	buf = append(buf, nodeID, byte(len(command)))
	buf = append(buf, command...)
	buf = append(buf, DefaultTransmitOptions, callbackID)
	return &Frame{Type: Request, Function: FuncSendData, Payload: buf}
}

// Command returns the application command carried by a SendData request.
func (f *Frame) Command() (nodeID uint8, command Payload, err error) {
	if f.Function != FuncSendData {
		return 0, nil, fmt.Errorf("serialapi: %s is not SendData", f.Function)
	}
	nodeID, err = f.Payload.ByteAt(0)
	if err != nil {
		return 0, nil, err
	}
	n, err := f.Payload.ByteAt(1)
	if err != nil {
		return 0, nil, err
	}
	if err := f.Payload.Check(2, int(n)); err != nil {
		return 0, nil, err
	}
	return nodeID, f.Payload[2 : 2+int(n)], nil
}

// ApplicationUpdate status values.
const (
	UpdateStateNodeInfoReceived  byte = 0x84
	UpdateStateNodeInfoReqFailed byte = 0x81
)

// ApplicationCommandHandler receive status bits.
const (
	ReceiveStatusBroadcast byte = 0x04
)
