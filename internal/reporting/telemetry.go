// Package reporting implements the bus's telemetry and file-dump
// surface (C6): housekeeping, stats, ONESUB/ALLSUBS subscription
// reports, and the routing/pipe/map file dumps.
package reporting

import (
	"time"

	"github.com/tevino/abool"

	"github.com/otus-sbus/sbus/internal/bus"
	"github.com/otus-sbus/sbus/internal/msgid"
	"github.com/otus-sbus/sbus/internal/pipe"
	"github.com/otus-sbus/sbus/internal/routing"
)

// oneSubType is the SubType every ONESUB_TLM packet carries; the bus
// has no other subscription event that reports through this channel.
const oneSubType = "SUBSCRIPTION"

// HKTelemetry mirrors HK_TLM: running counters plus a point-in-time
// memory snapshot.
type HKTelemetry struct {
	Timestamp time.Time

	CommandCount           int64
	CommandErrorCount      int64
	MsgSendCount           int64
	MsgSendErrorCount      int64
	NoSubscribersCount     int64
	MsgLimitErrorCount     int64
	PipeOverflowErrorCount int64
	InternalErrorCount     int64

	MemInUse      int64
	PeakMemInUse  int64
	UnmarkedMem   int64
	MemPoolHandle int64
}

// PipeDepthStat is one pipe's row in STATS_TLM's depth table.
type PipeDepthStat struct {
	PipeName string
	InUse    bool
	PeakDepth int32
	Depth    int32
}

// StatsTelemetry mirrors STATS_TLM.
type StatsTelemetry struct {
	MaxMsgIdsAllowed        int
	MaxPipesAllowed         int
	MaxMemAllowed           int64
	MaxPipeDepthAllowed     int
	MaxSubscriptionsAllowed int
	PipeDepthStats          []PipeDepthStat // length MISSION_SB_MAX_PIPES, zero-padded
}

// OneSub mirrors ONESUB_TLM, emitted once per successful subscribe
// when subscription reporting is enabled.
type OneSub struct {
	MsgID   uint32
	PipeID  string
	QoS     routing.QoS
	SubType string
}

// AllSubsEntry is one row of a segmented ALLSUBS_TLM reply.
type AllSubsEntry struct {
	MsgID uint32
	QoS   routing.QoS
}

// AllSubsSegment is one transmitted ALLSUBS_TLM packet.
type AllSubsSegment struct {
	PktSegment int
	TotalSegs  int // not set by PriorSubscriptions; always 0 in the segments it emits
	Entries    []AllSubsEntry
}

// Reporter produces telemetry snapshots from a live Bus. It holds no
// state of its own beyond the memory-pool accounting the bus does not
// already track and the subscription-reporting flag, so every call is
// a fresh snapshot.
type Reporter struct {
	b                *bus.Bus
	maxMemAllowed    int64
	maxPipeDepth     int
	maxMsgIDs        int
	maxSubscriptions int
	peakMemInUse     int64
	memPoolHandle    int64

	subReporting *abool.AtomicBool
}

// NewReporter creates a Reporter over b. maxMemAllowed/maxPipeDepth/
// maxMsgIDs feed STATS_TLM's fixed "allowed" fields; maxSubscriptions
// (MAX_MSG_IDS * MAX_DEST_PER_PKT, per cfe_sb_task.c) is the distinct,
// larger bound on total destinations across every route.
func NewReporter(b *bus.Bus, maxMemAllowed int64, maxPipeDepth, maxMsgIDs, maxSubscriptions int) *Reporter {
	return &Reporter{
		b:                b,
		maxMemAllowed:    maxMemAllowed,
		maxPipeDepth:     maxPipeDepth,
		maxMsgIDs:        maxMsgIDs,
		maxSubscriptions: maxSubscriptions,
		subReporting:     abool.New(),
	}
}

// Housekeeping snapshots the bus's running counters.
func (r *Reporter) Housekeeping(now time.Time, memInUse int64) HKTelemetry {
	if memInUse > r.peakMemInUse {
		r.peakMemInUse = memInUse
	}
	return HKTelemetry{
		Timestamp:              now,
		CommandCount:           r.b.Counters.CommandCount.Load(),
		CommandErrorCount:      r.b.Counters.CommandErrorCount.Load(),
		MsgSendCount:           r.b.Counters.MsgSendCount.Load(),
		MsgSendErrorCount:      r.b.Counters.MsgSendErrorCount.Load(),
		NoSubscribersCount:     r.b.Counters.NoSubscribersCount.Load(),
		MsgLimitErrorCount:     r.b.Counters.MsgLimitErrorCount.Load(),
		PipeOverflowErrorCount: r.b.Counters.PipeOverflowErrorCount.Load(),
		InternalErrorCount:     r.b.Counters.InternalErrorCount.Load(),
		MemInUse:               memInUse,
		PeakMemInUse:           r.peakMemInUse,
		UnmarkedMem:            r.maxMemAllowed - r.peakMemInUse,
		MemPoolHandle:          r.memPoolHandle,
	}
}

// Statistics walks the pipe table and builds STATS_TLM, zero-padding
// up to missionSBMaxPipes rows to match the original's fixed-size
// telemetry array.
func (r *Reporter) Statistics(missionSBMaxPipes int) StatsTelemetry {
	snap := r.b.Pipes.Snapshot()

	rows := make([]PipeDepthStat, missionSBMaxPipes)
	for i, p := range snap {
		if i >= missionSBMaxPipes {
			break
		}
		rows[i] = PipeDepthStat{
			PipeName:  p.Name,
			InUse:     true,
			PeakDepth: p.PeakDepth,
			Depth:     p.CurrentDepth,
		}
	}

	return StatsTelemetry{
		MaxMsgIdsAllowed:        r.maxMsgIDs,
		MaxPipesAllowed:         missionSBMaxPipes,
		MaxMemAllowed:           r.maxMemAllowed,
		MaxPipeDepthAllowed:     r.maxPipeDepth,
		MaxSubscriptionsAllowed: r.maxSubscriptions,
		PipeDepthStats:          rows,
	}
}

// WireSubReporting installs the hook that turns a successful Subscribe
// on r's bus into a ONESUB_TLM packet on pub, gated on
// SubReportingEnabled. Called once at startup after both the Reporter
// and its Publisher exist.
func (r *Reporter) WireSubReporting(pub Publisher) {
	r.b.SetSubReportHook(func(id msgid.ID, p pipe.ID, qos routing.QoS) {
		if !r.SubReportingEnabled() {
			return
		}
		name := ""
		if desc := r.b.Pipes.Descriptor(p); desc != nil {
			name = desc.Name
		}
		pub.PublishOneSub(OneSub{
			MsgID:   uint32(id),
			PipeID:  name,
			QoS:     qos,
			SubType: oneSubType,
		})
	})
}
