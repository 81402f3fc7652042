// Package command implements the bus's command task (C5): the
// dispatch table over the bus's own command pipe, plus an admin
// JSON-RPC-over-UDS channel (uds_server.go/uds_client.go) operators
// use to issue the same operations without constructing raw CCSDS
// packets.
package command

import (
	"context"
	"encoding/binary"
	"fmt"
	"time"

	"github.com/otus-sbus/sbus/internal/bus"
	"github.com/otus-sbus/sbus/internal/events"
	"github.com/otus-sbus/sbus/internal/msgid"
	"github.com/otus-sbus/sbus/internal/pipe"
	"github.com/otus-sbus/sbus/internal/reporting"
	"github.com/otus-sbus/sbus/internal/routing"
	"github.com/otus-sbus/sbus/internal/status"
	"github.com/otus-sbus/sbus/pkg/ccsds"
)

// Default MsgIds the command task subscribes its own pipe to during
// init. Values are process-local identifiers, not a published wire
// contract.
const (
	CmdMID        msgid.ID = 0x1800
	SendHKMID     msgid.ID = 0x1801
	SubRptCtrlMID msgid.ID = 0x1802
)

// Function codes under CmdMID.
const (
	NoopCC uint8 = iota
	ResetCountersCC
	SendSBStatsCC
	WriteRoutingInfoCC
	WritePipeInfoCC
	WriteMapInfoCC
	EnableRouteCC
	DisableRouteCC
)

// Function codes under SubRptCtrlMID.
const (
	EnableSubReportingCC uint8 = iota
	DisableSubReportingCC
	SendPrevSubsCC
)

// secondaryCmdHeaderLen is the fixed-size command secondary header
// every CmdMID/SubRptCtrlMID packet carries: a function code byte plus
// padding to keep the payload 4-byte aligned.
const secondaryCmdHeaderLen = 4

// routePayloadLen is the fixed-size ENABLE_ROUTE_CC/DISABLE_ROUTE_CC
// payload: a uint32 MsgId followed by a 16-byte pipe name, named
// rather than handle-addressed since a ground command cannot carry a
// live generation counter.
const routePayloadLen = 4 + 16

// Task is the command task's runtime state: the bus it commands, the
// reporter it drives for telemetry/dumps, and the publisher telemetry
// snapshots are handed to.
type Task struct {
	bus       *bus.Bus
	reporter  *reporting.Reporter
	publisher reporting.Publisher

	cmdPipe           pipe.ID
	dumpDir           string
	subEntriesPerPkt  int
	missionSBMaxPipes int
}

// NewTask creates a command Task. Call AppInit before TaskMain.
func NewTask(b *bus.Bus, r *reporting.Reporter, pub reporting.Publisher, dumpDir string, subEntriesPerPkt, missionSBMaxPipes int) *Task {
	return &Task{
		bus:               b,
		reporter:          r,
		publisher:         pub,
		dumpDir:           dumpDir,
		subEntriesPerPkt:  subEntriesPerPkt,
		missionSBMaxPipes: missionSBMaxPipes,
	}
}

// AppInit creates the bus's own command pipe, subscribes it to the
// three control MsgIds, and emits INIT_EID.
func (t *Task) AppInit(appID string) error {
	p, err := t.bus.CreatePipe(32, "SB_CMD_PIPE", appID)
	if err != nil {
		return fmt.Errorf("command: create command pipe: %w", err)
	}
	t.cmdPipe = p

	for _, id := range []msgid.ID{CmdMID, SendHKMID, SubRptCtrlMID} {
		if code := t.bus.Subscribe(id, p, routing.QoS{}, 0, routing.Local); code != status.Success && code != status.DuplicateSubscription {
			return fmt.Errorf("command: subscribe %v: %s", id, code)
		}
	}

	t.bus.Events.Send(events.InitEID, events.Informational, "command task initialized, pipe=%v", p)
	return nil
}

// TaskMain runs the receive loop until ctx is cancelled or the pipe
// read fails unrecoverably.
func (t *Task) TaskMain(ctx context.Context) error {
	for {
		buf, err := t.bus.ReceiveBuffer(ctx, t.cmdPipe, pipe.PendForever)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("command: receive failed: %w", err)
		}
		t.ProcessCmdPipePkt(buf.Data)
	}
}

// ProcessCmdPipePkt dispatches one command packet by MsgId and
// FcnCode, validating length before invoking a handler and bumping
// CommandCount or CommandErrorCount at most once. SEND_HK bumps
// neither, and RESET_COUNTERS zeroes both.
func (t *Task) ProcessCmdPipePkt(raw []byte) {
	hdr, err := ccsds.Decode(raw)
	if err != nil {
		t.bus.Counters.CommandErrorCount.Inc()
		return
	}
	id := msgid.FromHeader(hdr)
	body := raw[ccsds.HeaderLength:]

	switch id {
	case SendHKMID:
		t.handleSendHK()
		return
	case CmdMID:
		t.dispatchCmdMID(id, body)
	case SubRptCtrlMID:
		t.dispatchSubRptCtrl(id, body)
	default:
		t.bus.Counters.CommandErrorCount.Inc()
		t.bus.Events.Send(events.BadMsgIDEID, events.Error, "unrecognized command msgid=%v", id)
	}
}

func (t *Task) dispatchCmdMID(id msgid.ID, body []byte) {
	if len(body) < secondaryCmdHeaderLen {
		t.lenErr(id, 0, 0, secondaryCmdHeaderLen)
		return
	}
	fcn := body[0]
	rest := body[secondaryCmdHeaderLen:]

	switch fcn {
	case NoopCC:
		if !t.checkLen(id, fcn, len(rest), 0) {
			return
		}
		t.bus.Counters.CommandCount.Inc()
		t.bus.Events.Send(events.InitEID, events.Informational, "NOOP")
	case ResetCountersCC:
		if !t.checkLen(id, fcn, len(rest), 0) {
			return
		}
		t.resetCounters()
	case SendSBStatsCC:
		if !t.checkLen(id, fcn, len(rest), 0) {
			return
		}
		t.bus.Counters.CommandCount.Inc()
		t.publisher.PublishStats(t.reporter.Statistics(t.missionSBMaxPipes))
	case WriteRoutingInfoCC:
		if !t.checkLen(id, fcn, len(rest), 0) {
			return
		}
		t.dumpFile(id, fcn, func() (int, error) { return t.reporter.DumpRouting(t.dumpDir + "/routing.dat") })
	case WritePipeInfoCC:
		if !t.checkLen(id, fcn, len(rest), 0) {
			return
		}
		t.dumpFile(id, fcn, func() (int, error) { return t.reporter.DumpPipes(t.dumpDir + "/pipes.dat") })
	case WriteMapInfoCC:
		if !t.checkLen(id, fcn, len(rest), 0) {
			return
		}
		t.dumpFile(id, fcn, func() (int, error) { return t.reporter.DumpMap(t.dumpDir + "/map.dat") })
	case EnableRouteCC:
		t.dispatchRouteToggle(id, fcn, rest, true)
	case DisableRouteCC:
		t.dispatchRouteToggle(id, fcn, rest, false)
	default:
		t.bus.Counters.CommandErrorCount.Inc()
		t.bus.Events.Send(events.BadCmdCodeEID, events.Error, "unrecognized fcncode=%d under msgid=%v", fcn, id)
	}
}

func (t *Task) dispatchRouteToggle(id msgid.ID, fcn uint8, rest []byte, enable bool) {
	if !t.checkLen(id, fcn, len(rest), routePayloadLen) {
		return
	}
	target := msgid.ID(binary.BigEndian.Uint32(rest[0:4]))
	name := cString(rest[4:20])

	p, ok := t.bus.Pipes.GetPipeIDByName(name)
	if !ok {
		t.bus.Counters.CommandErrorCount.Inc()
		return
	}

	var code status.Code
	if enable {
		code = t.bus.EnableRoute(target, p)
	} else {
		code = t.bus.DisableRoute(target, p)
	}
	if code == status.Success {
		t.bus.Counters.CommandCount.Inc()
	} else {
		t.bus.Counters.CommandErrorCount.Inc()
	}
}

func (t *Task) dispatchSubRptCtrl(id msgid.ID, body []byte) {
	if len(body) < secondaryCmdHeaderLen {
		t.lenErr(id, 0, 0, secondaryCmdHeaderLen)
		return
	}
	fcn := body[0]
	rest := body[secondaryCmdHeaderLen:]
	if !t.checkLen(id, fcn, len(rest), 0) {
		return
	}

	switch fcn {
	case EnableSubReportingCC:
		t.reporter.EnableSubReporting()
		t.bus.Counters.CommandCount.Inc()
	case DisableSubReportingCC:
		t.reporter.DisableSubReporting()
		t.bus.Counters.CommandCount.Inc()
	case SendPrevSubsCC:
		t.bus.Counters.CommandCount.Inc()
		t.reporter.PriorSubscriptions(t.subEntriesPerPkt, t.publisher.PublishAllSubs)
	default:
		t.bus.Counters.CommandErrorCount.Inc()
		t.bus.Events.Send(events.BadCmdCodeEID, events.Error, "unrecognized fcncode=%d under msgid=%v", fcn, id)
	}
}

func (t *Task) handleSendHK() {
	hk := t.reporter.Housekeeping(time.Now(), 0)
	t.publisher.PublishHK(hk)
}

func (t *Task) resetCounters() {
	t.bus.Counters.CommandCount.Store(0)
	t.bus.Counters.MsgSendCount.Store(0)
	t.bus.Counters.MsgSendErrorCount.Store(0)
	t.bus.Counters.NoSubscribersCount.Store(0)
	t.bus.Counters.MsgLimitErrorCount.Store(0)
	t.bus.Counters.PipeOverflowErrorCount.Store(0)
	t.bus.Counters.InternalErrorCount.Store(0)
	t.bus.Counters.CommandErrorCount.Store(0)
}

func (t *Task) checkLen(id msgid.ID, fcn uint8, actual, expected int) bool {
	if actual != expected {
		t.lenErr(id, fcn, actual, expected)
		return false
	}
	return true
}

func (t *Task) lenErr(id msgid.ID, fcn uint8, actual, expected int) {
	t.bus.Counters.CommandErrorCount.Inc()
	t.bus.Events.Send(events.LenErrEID, events.Error,
		"bad command length: msgid=%v fcncode=%d actual=%d expected=%d", id, fcn, actual, expected)
}

func (t *Task) dumpFile(id msgid.ID, fcn uint8, dump func() (int, error)) {
	entries, err := dump()
	if err != nil {
		t.bus.Counters.CommandErrorCount.Inc()
		t.bus.Events.Send(events.FileWriteErrEID, events.Error, "file dump failed: msgid=%v fcncode=%d: %v", id, fcn, err)
		return
	}
	t.bus.Counters.CommandCount.Inc()
	t.bus.Events.Send(events.SendRtgEID, events.Debug, "file dump wrote %d entries", entries)
}

func cString(b []byte) string {
	for i, c := range b {
		if c == 0 {
			return string(b[:i])
		}
	}
	return string(b)
}
