package zwave

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"zwave-go-home/internal/serialapi"
)

func TestWakeUpQueueFlush(t *testing.T) {
	nw, s := newTestNetwork(t)
	n := installNode(t, nw, 7, false, ClassWakeUp)
	w := n.wakeUp()
	rec := record(nw)

	require.NoError(t, nw.SetWakeUpInterval(7, 3600))
	assert.Empty(t, s.sent(), "sleeping node gets nothing until it wakes")
	assert.Equal(t, 2, w.QueueLen())

	got, err := nw.WakeUpInterval(7)
	require.NoError(t, err)
	assert.Equal(t, Reading{Value: 3600, Status: StatusPending}, got)

	require.NoError(t, nw.HandleFrame(appCommand(7, 0x84, 0x07)))
	assert.Equal(t, [][]byte{
		{0x84, 0x04, 0x00, 0x0E, 0x10, 0x01},
		{0x84, 0x05},
		{0x84, 0x08},
	}, s.commands(7), "queued frames, then no more information")
	assert.Equal(t, 0, w.QueueLen())
	assert.False(t, w.LastWake().IsZero())
	require.Len(t, rec.ofType(EventWakeUpNotification), 1)

	require.NoError(t, nw.HandleFrame(appCommand(7, 0x84, 0x06, 0x00, 0x0E, 0x10, 0x01)))
	got, err = nw.WakeUpInterval(7)
	require.NoError(t, err)
	assert.Equal(t, Reading{Value: 3600, Status: StatusConfirmed}, got)
	assert.Equal(t, 0, nw.Pending().Len())
}

func TestWakeUpQueueCollapsesDuplicates(t *testing.T) {
	nw, _ := newTestNetwork(t)
	n := installNode(t, nw, 7, false, ClassWakeUp, ClassBattery)

	b := n.Handler(ClassBattery).(*batteryHandler)
	require.NoError(t, nw.Send(7, b.Get()))
	require.NoError(t, nw.Send(7, b.Get()))
	assert.Equal(t, 1, n.wakeUp().QueueLen())
}

func TestWakeUpListeningNodeBypassesQueue(t *testing.T) {
	nw, s := newTestNetwork(t)
	n := installNode(t, nw, 8, true, ClassWakeUp)

	require.NoError(t, nw.SetWakeUpInterval(8, 600))
	assert.Len(t, s.commands(8), 2)
	assert.Equal(t, 0, n.wakeUp().QueueLen())
}

func TestWakeUpNodeInfoRequestQueued(t *testing.T) {
	nw, s := newTestNetwork(t)
	n := installNode(t, nw, 7, false, ClassWakeUp)

	require.NoError(t, nw.Send(7, serialapi.NewRequest(serialapi.FuncRequestNodeInfo, []byte{7})))
	assert.Empty(t, s.sent())
	assert.Equal(t, 1, n.wakeUp().QueueLen())

	require.NoError(t, nw.HandleFrame(appCommand(7, 0x84, 0x07)))
	assert.Len(t, s.requests(serialapi.FuncRequestNodeInfo), 1)
}

func TestWakeUpIntervalLimits(t *testing.T) {
	nw, _ := newTestNetwork(t)
	installNode(t, nw, 7, false, ClassWakeUp)

	assert.Error(t, nw.SetWakeUpInterval(7, 0x1000000))
	assert.Equal(t, 0, nw.Pending().Len())

	got, err := nw.WakeUpInterval(7)
	require.NoError(t, err)
	assert.Equal(t, StatusUnknown, got.Status)
}

func TestWakeUpCapabilities(t *testing.T) {
	nw, _ := newTestNetwork(t)
	n := installNode(t, nw, 7, false, ClassWakeUp)

	require.NoError(t, nw.HandleFrame(appCommand(7, 0x84, 0x0A,
		0x00, 0x00, 0x3C, // min 60
		0x01, 0x51, 0x80, // max 86400
		0x00, 0x0E, 0x10, // default 3600
		0x00, 0x00, 0x3C, // step 60
	)))
	assert.Equal(t, WakeUpCapabilities{Min: 60, Max: 86400, Default: 3600, Step: 60}, n.wakeUp().Capabilities())
}

func TestWakeUpStaticRequests(t *testing.T) {
	nw, _ := newTestNetwork(t)
	n := installNode(t, nw, 7, false, ClassWakeUp)
	w := n.wakeUp()

	assert.Len(t, w.StaticRequests(), 1)
	w.SetVersion(2)
	assert.Len(t, w.StaticRequests(), 2)
}
