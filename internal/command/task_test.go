package command

import (
	"context"
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/otus-sbus/sbus/internal/bus"
	"github.com/otus-sbus/sbus/internal/config"
	"github.com/otus-sbus/sbus/internal/log"
	"github.com/otus-sbus/sbus/internal/msgid"
	"github.com/otus-sbus/sbus/internal/reporting"
	"github.com/otus-sbus/sbus/internal/routing"
	"github.com/otus-sbus/sbus/internal/status"
	"github.com/otus-sbus/sbus/pkg/ccsds"
)

type fakePublisher struct {
	hk      []reporting.HKTelemetry
	stats   []reporting.StatsTelemetry
	oneSubs []reporting.OneSub
	allSubs []reporting.AllSubsSegment
}

func (f *fakePublisher) PublishHK(h reporting.HKTelemetry)         { f.hk = append(f.hk, h) }
func (f *fakePublisher) PublishStats(s reporting.StatsTelemetry)   { f.stats = append(f.stats, s) }
func (f *fakePublisher) PublishOneSub(o reporting.OneSub)          { f.oneSubs = append(f.oneSubs, o) }
func (f *fakePublisher) PublishAllSubs(a reporting.AllSubsSegment) { f.allSubs = append(f.allSubs, a) }

func newTestTask(t *testing.T) (*Task, *bus.Bus, *fakePublisher) {
	t.Helper()
	cfg := config.Defaults()
	cfg.Limits.MaxPipes = 8
	cfg.Limits.MaxMsgIDs = 16
	cfg.Limits.MaxDestPerPkt = 4
	cfg.Limits.OSQueueMaxDepth = 8

	b := bus.New(cfg, log.Get())
	r := reporting.NewReporter(b, 1<<20, 8, 16, 64)
	pub := &fakePublisher{}
	task := NewTask(b, r, pub, t.TempDir(), 5, 4)
	require.NoError(t, task.AppInit("SB"))
	r.WireSubReporting(pub)
	return task, b, pub
}

func buildCmdPacket(t *testing.T, apid uint16, fcn uint8, payload []byte) []byte {
	t.Helper()
	h, err := ccsds.SetDefaultPrimary(0, apid)
	require.NoError(t, err)
	h = ccsds.SetType(h, ccsds.Cmd)

	total := ccsds.HeaderLength + secondaryCmdHeaderLen + len(payload)
	h, err = ccsds.SetSize(h, total)
	require.NoError(t, err)

	buf := make([]byte, total)
	require.NoError(t, ccsds.Encode(h, buf))
	buf[ccsds.HeaderLength] = fcn
	copy(buf[ccsds.HeaderLength+secondaryCmdHeaderLen:], payload)
	return buf
}

func buildHKPacket(t *testing.T) []byte {
	t.Helper()
	h, err := ccsds.SetDefaultPrimary(0, 1) // apid=1 -> SendHKMID
	require.NoError(t, err)
	h = ccsds.SetType(h, ccsds.Cmd)
	h, err = ccsds.SetSize(h, ccsds.SizeOffset)
	require.NoError(t, err)
	buf := make([]byte, ccsds.SizeOffset)
	require.NoError(t, ccsds.Encode(h, buf))
	return buf
}

func TestAppInitCreatesAndSubscribesCommandPipe(t *testing.T) {
	task, b, _ := newTestTask(t)
	assert.True(t, b.Pipes.IsMatch(task.cmdPipe))
	for _, id := range []msgid.ID{CmdMID, SendHKMID, SubRptCtrlMID} {
		dests := b.Routes.Destinations(id)
		require.Len(t, dests, 1)
		assert.Equal(t, task.cmdPipe, dests[0].PipeID)
	}
}

func TestNoopIncrementsCommandCount(t *testing.T) {
	task, b, _ := newTestTask(t)
	pkt := buildCmdPacket(t, 0, NoopCC, nil)
	task.ProcessCmdPipePkt(pkt)
	assert.EqualValues(t, 1, b.Counters.CommandCount.Load())
}

func TestBadLengthIncrementsCommandErrorCount(t *testing.T) {
	task, b, _ := newTestTask(t)
	pkt := buildCmdPacket(t, 0, NoopCC, []byte{1, 2, 3})
	task.ProcessCmdPipePkt(pkt)
	assert.EqualValues(t, 1, b.Counters.CommandErrorCount.Load())
	assert.EqualValues(t, 0, b.Counters.CommandCount.Load())
}

func TestUnknownMsgIDIncrementsCommandErrorCount(t *testing.T) {
	task, b, _ := newTestTask(t)
	h, err := ccsds.SetDefaultPrimary(0, 999)
	require.NoError(t, err)
	h = ccsds.SetType(h, ccsds.Cmd)
	h, err = ccsds.SetSize(h, ccsds.SizeOffset)
	require.NoError(t, err)
	buf := make([]byte, ccsds.SizeOffset)
	require.NoError(t, ccsds.Encode(h, buf))

	task.ProcessCmdPipePkt(buf)
	assert.EqualValues(t, 1, b.Counters.CommandErrorCount.Load())
}

func TestUnknownFcnCodeIncrementsCommandErrorCount(t *testing.T) {
	task, b, _ := newTestTask(t)
	pkt := buildCmdPacket(t, 0, 0xFF, nil)
	task.ProcessCmdPipePkt(pkt)
	assert.EqualValues(t, 1, b.Counters.CommandErrorCount.Load())
}

func TestResetCountersZeroesCommandCountToo(t *testing.T) {
	task, b, _ := newTestTask(t)
	b.Counters.MsgSendCount.Store(42)
	b.Counters.CommandCount.Store(7)

	pkt := buildCmdPacket(t, 0, ResetCountersCC, nil)
	task.ProcessCmdPipePkt(pkt)

	assert.EqualValues(t, 0, b.Counters.MsgSendCount.Load())
	assert.EqualValues(t, 0, b.Counters.CommandCount.Load())
}

func TestSendSBStatsPublishesStats(t *testing.T) {
	task, _, pub := newTestTask(t)
	pkt := buildCmdPacket(t, 0, SendSBStatsCC, nil)
	task.ProcessCmdPipePkt(pkt)
	require.Len(t, pub.stats, 1)
}

func TestSendHKPublishesHousekeeping(t *testing.T) {
	task, _, pub := newTestTask(t)
	task.ProcessCmdPipePkt(buildHKPacket(t))
	require.Len(t, pub.hk, 1)
}

func TestEnableDisableRouteCommand(t *testing.T) {
	task, b, _ := newTestTask(t)
	p, err := b.CreatePipe(4, "TARGET", "APP1")
	require.NoError(t, err)
	require.Equal(t, status.Success, b.Subscribe(77, p, routing.QoS{}, 0, routing.Local))
	require.Equal(t, status.Success, b.DisableRoute(77, p))

	payload := make([]byte, routePayloadLen)
	binary.BigEndian.PutUint32(payload[0:4], 77)
	copy(payload[4:], "TARGET")

	pkt := buildCmdPacket(t, 0, EnableRouteCC, payload)
	task.ProcessCmdPipePkt(pkt)

	dests := b.Routes.Destinations(77)
	require.Len(t, dests, 1)
	assert.True(t, dests[0].Active)
	assert.EqualValues(t, 1, b.Counters.CommandCount.Load())
}

func TestWriteRoutingInfoDumpsFile(t *testing.T) {
	task, b, _ := newTestTask(t)
	p, err := b.CreatePipe(4, "P", "APP1")
	require.NoError(t, err)
	require.Equal(t, status.Success, b.Subscribe(55, p, routing.QoS{}, 0, routing.Local))

	pkt := buildCmdPacket(t, 0, WriteRoutingInfoCC, nil)
	task.ProcessCmdPipePkt(pkt)
	assert.EqualValues(t, 1, b.Counters.CommandCount.Load())
}

func TestSendPrevSubsPublishesSegments(t *testing.T) {
	task, b, pub := newTestTask(t)
	p, err := b.CreatePipe(4, "P", "APP1")
	require.NoError(t, err)
	for i := 0; i < 7; i++ {
		require.Equal(t, status.Success, b.Subscribe(uint32ToMsgID(2000+i), p, routing.QoS{}, 0, routing.Global))
	}

	pkt := buildCmdPacket(t, 2, SendPrevSubsCC, nil) // apid=2 -> SubRptCtrlMID
	task.ProcessCmdPipePkt(pkt)

	require.Len(t, pub.allSubs, 2) // subEntriesPerPkt=5: one full segment of 5, one partial of 2
	assert.Len(t, pub.allSubs[0].Entries, 5)
	assert.Len(t, pub.allSubs[1].Entries, 2)
}

func uint32ToMsgID(v int) msgid.ID { return msgid.ID(v) }

func TestSubscribeEmitsOneSubWhenReportingEnabled(t *testing.T) {
	task, b, pub := newTestTask(t)
	p, err := b.CreatePipe(4, "P", "APP1")
	require.NoError(t, err)

	pkt := buildCmdPacket(t, 2, EnableSubReportingCC, nil) // apid=2 -> SubRptCtrlMID
	task.ProcessCmdPipePkt(pkt)

	require.Equal(t, status.Success, b.Subscribe(99, p, routing.QoS{Priority: 3}, 0, routing.Global))
	require.Len(t, pub.oneSubs, 1)
	assert.EqualValues(t, 99, pub.oneSubs[0].MsgID)
	assert.Equal(t, "P", pub.oneSubs[0].PipeID)
	assert.Equal(t, uint8(3), pub.oneSubs[0].QoS.Priority)
}

func TestSubscribeStaysSilentWhenReportingDisabled(t *testing.T) {
	_, b, pub := newTestTask(t)
	p, err := b.CreatePipe(4, "P", "APP1")
	require.NoError(t, err)

	require.Equal(t, status.Success, b.Subscribe(100, p, routing.QoS{}, 0, routing.Global))
	assert.Empty(t, pub.oneSubs)
}

func TestMainLoopExitsOnContextCancel(t *testing.T) {
	task, _, _ := newTestTask(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := task.TaskMain(ctx)
	assert.NoError(t, err)
}
