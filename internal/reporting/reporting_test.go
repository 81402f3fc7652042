package reporting

import (
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/otus-sbus/sbus/internal/bus"
	"github.com/otus-sbus/sbus/internal/config"
	"github.com/otus-sbus/sbus/internal/log"
	"github.com/otus-sbus/sbus/internal/msgid"
	"github.com/otus-sbus/sbus/internal/routing"
	"github.com/otus-sbus/sbus/internal/status"
)

func testBus(t *testing.T) *bus.Bus {
	t.Helper()
	cfg := config.Defaults()
	cfg.Limits.MaxPipes = 16
	cfg.Limits.MaxMsgIDs = 64
	cfg.Limits.MaxDestPerPkt = 8
	cfg.Limits.OSQueueMaxDepth = 8
	return bus.New(cfg, log.Get())
}

func TestHousekeepingReflectsCounters(t *testing.T) {
	b := testBus(t)
	r := NewReporter(b, 1<<20, 8, 64, 512)

	b.Counters.MsgSendCount.Store(5)
	b.Counters.NoSubscribersCount.Store(2)

	hk := r.Housekeeping(time.Now(), 1024)
	assert.EqualValues(t, 5, hk.MsgSendCount)
	assert.EqualValues(t, 2, hk.NoSubscribersCount)
	assert.EqualValues(t, 1024, hk.MemInUse)
	assert.EqualValues(t, (1<<20)-1024, hk.UnmarkedMem)
}

func TestStatisticsZeroPadsToMissionMax(t *testing.T) {
	b := testBus(t)
	_, err := b.CreatePipe(4, "P1", "APP1")
	require.NoError(t, err)

	r := NewReporter(b, 1<<20, 8, 64, 512)
	stats := r.Statistics(4)

	require.Len(t, stats.PipeDepthStats, 4)
	assert.True(t, stats.PipeDepthStats[0].InUse)
	assert.Equal(t, "P1", stats.PipeDepthStats[0].PipeName)
	assert.False(t, stats.PipeDepthStats[1].InUse)

	assert.EqualValues(t, 64, stats.MaxMsgIdsAllowed)
	assert.EqualValues(t, 512, stats.MaxSubscriptionsAllowed)
}

func TestDumpRoutingWritesOneEntryPerDestination(t *testing.T) {
	b := testBus(t)
	p, err := b.CreatePipe(4, "P", "APP1")
	require.NoError(t, err)
	require.Equal(t, status.Success, b.Subscribe(msgid.ID(42), p, routing.QoS{}, 0, routing.Local))

	r := NewReporter(b, 1<<20, 8, 64, 512)
	path := filepath.Join(t.TempDir(), "routing.dat")
	entries, err := r.DumpRouting(path)
	require.NoError(t, err)
	assert.Equal(t, 1, entries)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Greater(t, len(data), 0)

	// RouteEntry: MsgID(4) + PipeSlot(4) follow the 33-byte fsHeader.
	gotPipeSlot := int32(binary.BigEndian.Uint32(data[37:41]))
	assert.Equal(t, p.Slot(), gotPipeSlot)
}

func TestDumpPipesWritesOneEntryPerPipe(t *testing.T) {
	b := testBus(t)
	p, err := b.CreatePipe(4, "P", "APP1")
	require.NoError(t, err)

	r := NewReporter(b, 1<<20, 8, 64, 512)
	path := filepath.Join(t.TempDir(), "pipes.dat")
	entries, err := r.DumpPipes(path)
	require.NoError(t, err)
	assert.Equal(t, 1, entries)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	// PipeEntry starts immediately after the 33-byte fsHeader with PipeSlot(4).
	gotPipeSlot := int32(binary.BigEndian.Uint32(data[33:37]))
	assert.Equal(t, p.Slot(), gotPipeSlot)
}

func TestDumpMapWritesMsgIDToRouteID(t *testing.T) {
	b := testBus(t)
	p, err := b.CreatePipe(4, "P", "APP1")
	require.NoError(t, err)
	require.Equal(t, status.Success, b.Subscribe(msgid.ID(7), p, routing.QoS{}, 0, routing.Local))

	r := NewReporter(b, 1<<20, 8, 64, 512)
	path := filepath.Join(t.TempDir(), "map.dat")
	entries, err := r.DumpMap(path)
	require.NoError(t, err)
	assert.Equal(t, 1, entries)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	// header (32-byte description + 1-byte subtype) + one MapEntry (4+4 bytes)
	assert.Equal(t, 33+8, len(data))
	assert.Equal(t, uint8(MapData), data[32])
	gotMsgID := binary.BigEndian.Uint32(data[33:37])
	assert.EqualValues(t, 7, gotMsgID)
}

func TestPriorSubscriptionsSegmentsByEntriesPerPacket(t *testing.T) {
	b := testBus(t)
	p, err := b.CreatePipe(4, "P", "APP1")
	require.NoError(t, err)

	const subEntriesPerPkt = 5
	const n = 2*subEntriesPerPkt + 3
	for i := 0; i < n; i++ {
		require.Equal(t, status.Success, b.Subscribe(msgid.ID(1000+i), p, routing.QoS{}, 0, routing.Global))
	}

	r := NewReporter(b, 1<<20, 8, 64, 512)
	var segments []AllSubsSegment
	r.PriorSubscriptions(subEntriesPerPkt, func(seg AllSubsSegment) {
		segments = append(segments, seg)
	})

	require.Len(t, segments, 3)
	assert.Len(t, segments[0].Entries, subEntriesPerPkt)
	assert.Equal(t, 1, segments[0].PktSegment)
	assert.Len(t, segments[1].Entries, subEntriesPerPkt)
	assert.Equal(t, 2, segments[1].PktSegment)
	assert.Len(t, segments[2].Entries, 3)
	assert.Equal(t, 3, segments[2].PktSegment)
}

func TestPriorSubscriptionsSkipsLocalScopeDestinations(t *testing.T) {
	b := testBus(t)
	p, err := b.CreatePipe(4, "P", "APP1")
	require.NoError(t, err)
	require.Equal(t, status.Success, b.Subscribe(msgid.ID(5000), p, routing.QoS{}, 0, routing.Local))

	r := NewReporter(b, 1<<20, 8, 64, 512)
	var segments []AllSubsSegment
	r.PriorSubscriptions(5, func(seg AllSubsSegment) {
		segments = append(segments, seg)
	})
	assert.Empty(t, segments)
}
