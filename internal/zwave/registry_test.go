package zwave

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistryLookup(t *testing.T) {
	r := NewRegistry(testLogger())

	d, ok := r.Lookup(ClassBattery)
	require.True(t, ok)
	assert.Equal(t, "Battery", d.Label)
	assert.True(t, d.HasHandler())

	d, ok = r.Lookup(ClassMeter)
	require.True(t, ok)
	assert.False(t, d.HasHandler())

	_, ok = r.Lookup(CommandClass(0x01))
	assert.False(t, ok)
}

func TestRegistryAllSorted(t *testing.T) {
	r := NewRegistry(testLogger())
	all := r.All()
	require.NotEmpty(t, all)
	for i := 1; i < len(all); i++ {
		assert.Less(t, all[i-1].ID, all[i].ID)
	}
}

func TestRegistryInstantiate(t *testing.T) {
	nw, _ := newTestNetwork(t)
	n := installNode(t, nw, 2, true)
	r := nw.Registry()

	h := r.Instantiate(ClassBattery, n, 0)
	require.NotNil(t, h)
	assert.Equal(t, ClassBattery, h.CommandClass())
	assert.Equal(t, uint8(0), h.Version())
	assert.Equal(t, uint8(1), h.Instances())

	assert.Nil(t, r.Instantiate(CommandClass(0x01), n, 0), "unknown id")
	assert.Nil(t, r.Instantiate(ClassMeter, n, 0), "known id without handler")
}

func TestRegistryClampVersion(t *testing.T) {
	r := NewRegistry(testLogger())
	tests := []struct {
		class    CommandClass
		reported uint8
		want     uint8
	}{
		{ClassSensorMultilevel, 9, 5},
		{ClassSensorMultilevel, 3, 3},
		{ClassBattery, 1, 1},
		{ClassBattery, 2, 1},
		{ClassMultiInstance, 3, 2},
		{CommandClass(0x01), 7, 7},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, r.ClampVersion(tt.class, tt.reported), "%s v%d", tt.class, tt.reported)
	}
}

func TestRegistrySingleInstance(t *testing.T) {
	r := NewRegistry(testLogger())
	assert.True(t, r.AssumedSingleInstance(ClassBattery))
	assert.True(t, r.AssumedSingleInstance(ClassConfiguration))
	assert.False(t, r.AssumedSingleInstance(ClassSwitchBinary))

	r.SetAssumedSingleInstance(ClassSwitchBinary, true)
	assert.True(t, r.AssumedSingleInstance(ClassSwitchBinary))
	r.SetAssumedSingleInstance(ClassBattery, false)
	assert.False(t, r.AssumedSingleInstance(ClassBattery))
}

func TestRegistryUnknownClassError(t *testing.T) {
	r := NewRegistry(testLogger())
	assert.ErrorIs(t, r.unknownClassError(ClassMeter), ErrHandlerAbsent)
	assert.ErrorIs(t, r.unknownClassError(CommandClass(0x01)), ErrUnknownCommandClass)
}

func TestSupportedClassesStopsAtMark(t *testing.T) {
	got := supportedClasses([]byte{0x20, 0x25, 0xEF, 0x26})
	assert.Equal(t, []CommandClass{ClassBasic, ClassSwitchBinary}, got)
	assert.Empty(t, supportedClasses(nil))
}

func TestResolveDeviceClass(t *testing.T) {
	tests := []struct {
		name              string
		generic, specific uint8
		wantErr           bool
	}{
		{"known pair", GenericSwitchBinary, 0x01, false},
		{"specific not used", GenericSwitchBinary, 0x00, false},
		{"unknown specific", GenericSwitchBinary, 0x77, true},
		{"unknown generic", 0x99, 0x00, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dc, err := ResolveDeviceClass(BasicRoutingSlave, tt.generic, tt.specific)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrUnresolvedDeviceClass)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, DeviceClass{Basic: BasicRoutingSlave, Generic: tt.generic, Specific: tt.specific}, dc)
		})
	}
}

func TestEventBus(t *testing.T) {
	bus := NewEventBus(testLogger())

	var typed, all int
	off := bus.On(EventNodeReady, func(Event) { typed++ })
	bus.OnAll(func(Event) { all++ })
	bus.On(EventNodeReady, func(Event) { panic("boom") })

	bus.Emit(Event{Type: EventNodeReady})
	bus.Emit(Event{Type: EventNodeAdded})
	assert.Equal(t, 1, typed)
	assert.Equal(t, 2, all)

	off()
	bus.Emit(Event{Type: EventNodeReady})
	assert.Equal(t, 1, typed)
	assert.Equal(t, 3, all)
}
