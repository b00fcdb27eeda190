package zwave

import "zwave-go-home/internal/serialapi"

type noOperationHandler struct {
	baseHandler
}

func newNoOperationHandler(n *Node, endpoint uint8) Handler {
	h := &noOperationHandler{}
	h.init(ClassNoOperation, n, endpoint)
	return h
}

func (h *noOperationHandler) Handle(payload serialapi.Payload, endpoint uint8) (*Event, error) {
	return nil, nil
}

// Ping builds an empty frame used to check that the node is reachable.
func (h *noOperationHandler) Ping() *serialapi.Frame {
	return h.command()
}
