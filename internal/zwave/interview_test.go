package zwave

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"zwave-go-home/internal/serialapi"
	"zwave-go-home/internal/store"
)

// initData lists the given node ids in a GetInitData response.
func initData(ids ...uint8) *serialapi.Frame {
	mask := make([]byte, 29)
	for _, id := range ids {
		mask[(id-1)/8] |= 1 << ((id - 1) % 8)
	}
	p := append([]byte{0x05, 0x00, byte(len(mask))}, mask...)
	return serialapi.NewResponse(serialapi.FuncGetInitData, p)
}

func identify(capability, basic, generic, specific byte) *serialapi.Frame {
	return serialapi.NewResponse(serialapi.FuncIdentifyNode, []byte{capability, 0x9C, 0x00, basic, generic, specific})
}

func nodeInfo(id uint8, generic, specific byte, classes ...byte) *serialapi.Frame {
	p := []byte{serialapi.UpdateStateNodeInfoReceived, id, byte(3 + len(classes)), BasicRoutingSlave, generic, specific}
	return serialapi.NewRequest(serialapi.FuncApplicationUpdate, append(p, classes...))
}

func TestInterviewListeningNode(t *testing.T) {
	nw, s := newTestNetwork(t)
	rec := record(nw)

	require.NoError(t, nw.HandleFrame(initData(2)))
	n, err := nw.Node(2)
	require.NoError(t, err)
	assert.Equal(t, StageProtocolInfo, n.Stage())
	assert.Equal(t, [][]byte{{0x02}}, s.requests(serialapi.FuncIdentifyNode))
	require.Len(t, rec.ofType(EventNodeAdded), 1)

	require.NoError(t, nw.HandleFrame(identify(0xD3, BasicRoutingSlave, GenericSwitchBinary, 0x01)))
	assert.True(t, n.Listening())
	assert.True(t, n.Routing())
	assert.Equal(t, StageNodeInfo, n.Stage())
	assert.Equal(t, [][]byte{{0x02}}, s.requests(serialapi.FuncRequestNodeInfo))

	require.NoError(t, nw.HandleFrame(nodeInfo(2, GenericSwitchBinary, 0x01, 0x25, 0x72, 0x86, 0x70)))
	assert.Equal(t, StageManufacturerSpecific, n.Stage())
	assert.Len(t, n.Handlers(), 4)
	s.reset()

	require.NoError(t, nw.HandleFrame(appCommand(2, 0x72, 0x05, 0x01, 0x0F, 0x06, 0x00, 0x10, 0x00)))
	m, typ, id, ok := n.Manufacturer()
	require.True(t, ok)
	assert.Equal(t, []uint16{0x010F, 0x0600, 0x1000}, []uint16{m, typ, id})
	assert.Equal(t, StageVersions, n.Stage())
	assert.Equal(t, [][]byte{
		{0x86, 0x11},
		{0x86, 0x13, 0x25},
		{0x86, 0x13, 0x70},
		{0x86, 0x13, 0x72},
	}, s.commands(2))
	s.reset()

	require.NoError(t, nw.HandleFrame(appCommand(2, 0x86, 0x14, 0x25, 0x01)))
	require.NoError(t, nw.HandleFrame(appCommand(2, 0x86, 0x14, 0x70, 0x01)))
	assert.Equal(t, StageVersions, n.Stage())
	require.NoError(t, nw.HandleFrame(appCommand(2, 0x86, 0x14, 0x72, 0x02)))

	assert.Equal(t, StageDone, n.Stage())
	assert.Equal(t, uint8(1), n.Handler(ClassManufacturerSpecific).Version())
	assert.Contains(t, s.commands(2), []byte{0x25, 0x02}, "static requests")
	assert.Len(t, rec.ofType(EventNodeReady), 1)

	var stages []Stage
	for _, e := range rec.ofType(EventNodeStageChanged) {
		stages = append(stages, e.Data.(NodeEvent).Stage)
	}
	assert.Equal(t, []Stage{
		StageProtocolInfo, StageNodeInfo, StageManufacturerSpecific,
		StageVersions, StageInstances, StageStatic, StageDone,
	}, stages)
}

func TestInterviewSleepingNode(t *testing.T) {
	nw, s := newTestNetwork(t)

	require.NoError(t, nw.HandleFrame(initData(3)))
	require.NoError(t, nw.HandleFrame(identify(0x00, BasicRoutingSlave, GenericSensorMultilevel, 0x01)))

	n, err := nw.Node(3)
	require.NoError(t, err)
	require.NotNil(t, n.wakeUp(), "non-listening nodes get a wake-up handler")
	assert.Equal(t, StageNodeInfo, n.Stage())
	assert.Empty(t, s.requests(serialapi.FuncRequestNodeInfo))
	assert.Equal(t, 1, n.wakeUp().QueueLen())

	require.NoError(t, nw.HandleFrame(appCommand(3, 0x84, 0x07)))
	assert.Len(t, s.requests(serialapi.FuncRequestNodeInfo), 1)
	assert.Equal(t, [][]byte{{0x84, 0x08}}, s.commands(3))
}

func TestInterviewController(t *testing.T) {
	nw, _ := newTestNetwork(t)
	require.NoError(t, nw.HandleFrame(initData(1)))
	require.NoError(t, nw.HandleFrame(identify(0x80, BasicStaticController, GenericStaticController, 0x01)))

	n, err := nw.Node(1)
	require.NoError(t, err)
	assert.Equal(t, StageDone, n.Stage())
}

func TestInterviewNodeNotPresent(t *testing.T) {
	nw, _ := newTestNetwork(t)
	require.NoError(t, nw.HandleFrame(initData(4)))
	require.NoError(t, nw.HandleFrame(identify(0x00, 0x00, 0x00, 0x00)))

	n, err := nw.Node(4)
	require.NoError(t, err)
	assert.Equal(t, StageProtocolInfo, n.Stage())
}

func TestIdentifyWithoutRequest(t *testing.T) {
	nw, _ := newTestNetwork(t)
	assert.Error(t, nw.HandleFrame(identify(0x80, BasicRoutingSlave, GenericSwitchBinary, 0x01)))
}

func TestMemoryGetID(t *testing.T) {
	st := newMemStore()
	nw, _ := newTestNetworkWithStore(t, st)

	require.NoError(t, nw.HandleFrame(serialapi.NewResponse(serialapi.FuncMemoryGetID, []byte{0xDE, 0xAD, 0xBE, 0xEF, 0x01})))
	assert.Equal(t, uint32(0xDEADBEEF), nw.HomeID())
	assert.Equal(t, uint8(1), nw.ControllerID())

	state, err := st.GetNetworkState()
	require.NoError(t, err)
	assert.Equal(t, uint32(0xDEADBEEF), state.HomeID)
}

func TestReinitializeNode(t *testing.T) {
	st := newMemStore()
	nw, s := newTestNetworkWithStore(t, st)
	old := installNode(t, nw, 2, true, ClassMultiInstance, ClassConfiguration)
	old.resetEndpoints(2)
	other := installNode(t, nw, 3, true, ClassConfiguration)
	require.NoError(t, st.SaveNode(old.Snapshot()))
	require.NoError(t, st.SaveNode(other.Snapshot()))
	require.NoError(t, nw.SetConfiguration(2, 1, 5))
	s.reset()

	require.NoError(t, nw.ReinitializeNode(2))

	n, err := nw.Node(2)
	require.NoError(t, err)
	assert.NotSame(t, old, n)
	assert.Equal(t, StageProtocolInfo, n.Stage())
	assert.Empty(t, n.Handlers())
	assert.Empty(t, n.Endpoints())
	assert.Equal(t, [][]byte{{0x02}}, s.requests(serialapi.FuncIdentifyNode))

	same, err := nw.Node(3)
	require.NoError(t, err)
	assert.Same(t, other, same)
	assert.Equal(t, StageDone, same.Stage())
	assert.Equal(t, 1, nw.Pending().Len(), "pending writes survive reinitialization")

	_, err = st.GetNode(2)
	assert.ErrorIs(t, err, store.ErrNotFound, "stale snapshot dropped")
	_, err = st.GetNode(3)
	assert.NoError(t, err)

	assert.ErrorIs(t, nw.ReinitializeNode(50), ErrUnknownNode)
}
