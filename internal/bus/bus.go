// Package bus wires the pipe registry (C2), routing table (C3), and
// memory pool into the dispatch path (C4): TransmitMsg and
// ReceiveBuffer. This is the aggregate the original calls SB_GlobalData.
package bus

import (
	"context"
	"sync"

	"github.com/sourcegraph/conc"
	"go.uber.org/atomic"
	"go.uber.org/multierr"

	"github.com/otus-sbus/sbus/internal/config"
	"github.com/otus-sbus/sbus/internal/events"
	"github.com/otus-sbus/sbus/internal/log"
	"github.com/otus-sbus/sbus/internal/membuf"
	"github.com/otus-sbus/sbus/internal/msgid"
	"github.com/otus-sbus/sbus/internal/pipe"
	"github.com/otus-sbus/sbus/internal/routing"
	"github.com/otus-sbus/sbus/internal/status"
	"github.com/otus-sbus/sbus/pkg/ccsds"
)

// Counters is the bus's running HK/STATS telemetry. All
// fields are updated with atomics so TransmitMsg never needs the
// routing lock to bump them.
type Counters struct {
	MsgSendCount          atomic.Int64
	MsgSendErrorCount      atomic.Int64
	NoSubscribersCount     atomic.Int64
	MsgLimitErrorCount     atomic.Int64
	PipeOverflowErrorCount atomic.Int64
	InternalErrorCount     atomic.Int64
	CommandCount           atomic.Int64
	CommandErrorCount      atomic.Int64
}

// SubReportFunc is invoked after a successful, non-duplicate Subscribe.
// It is the seam through which ONESUB_TLM reporting is wired in without
// Bus importing the reporting package back (reporting already imports
// bus); the hook itself decides whether reporting is currently enabled.
type SubReportFunc func(id msgid.ID, p pipe.ID, qos routing.QoS)

// Bus is the process-wide software bus instance.
type Bus struct {
	cfg    config.MissionConfig
	logger log.Logger
	Events *events.Sink

	Pipes  *pipe.Registry
	Routes *routing.Table
	pool   *membuf.Pool

	Counters Counters

	seqMu sync.Mutex // not taken by any method; per-route sequence counts advance under the routing table's lock in ResolveForTransmit

	onSubscribe SubReportFunc
}

// SetSubReportHook installs fn as the callback Subscribe invokes after
// every successful, non-duplicate subscription. Passing nil disables
// the callback. Called once at startup wiring, after the Reporter and
// Publisher exist.
func (b *Bus) SetSubReportHook(fn SubReportFunc) {
	b.onSubscribe = fn
}

// New creates a Bus from its static configuration.
func New(cfg config.MissionConfig, logger log.Logger) *Bus {
	return &Bus{
		cfg:    cfg,
		logger: logger,
		Events: events.NewSink(logger, cfg.Limits.MaxEventFilters),
		Pipes:  pipe.NewRegistry(cfg.Limits.MaxPipes, cfg.Limits.OSQueueMaxDepth),
		Routes: routing.NewTable(cfg.Limits.MaxMsgIDs, cfg.Limits.MaxDestPerPkt),
		pool:   membuf.NewPool(256),
	}
}

// CreatePipe allocates a new pipe owned by appID.
func (b *Bus) CreatePipe(depth int, name, appID string) (pipe.ID, error) {
	return b.Pipes.CreatePipe(depth, name, appID)
}

// DeletePipe destroys a pipe and cascades the removal to every route
// that had it as a destination.
func (b *Bus) DeletePipe(id pipe.ID) error {
	if err := b.Pipes.DeletePipe(id); err != nil {
		return err
	}
	b.Routes.UnsubscribeAll(id)
	return nil
}

// Subscribe registers pipeID as a destination for msgID. On success it
// invokes the installed sub-report hook (see SetSubReportHook), which
// is how a successful subscribe becomes a ONESUB_TLM packet when
// subscription reporting is enabled.
func (b *Bus) Subscribe(id msgid.ID, p pipe.ID, qos routing.QoS, msgCountLimit int, scope routing.Scope) status.Code {
	_, code := b.Routes.Subscribe(id, p, qos, msgCountLimit, scope)
	if code == status.Success && b.onSubscribe != nil {
		b.onSubscribe(id, p, qos)
	}
	return code
}

// Unsubscribe removes pipeID as a destination for msgID.
func (b *Bus) Unsubscribe(id msgid.ID, p pipe.ID) {
	b.Routes.Unsubscribe(id, p)
}

// EnableRoute / DisableRoute toggle one destination's active flag,
// emitting the matching event.
func (b *Bus) EnableRoute(id msgid.ID, p pipe.ID) status.Code {
	return b.toggleRoute(id, p, true)
}

func (b *Bus) DisableRoute(id msgid.ID, p pipe.ID) status.Code {
	return b.toggleRoute(id, p, false)
}

func (b *Bus) toggleRoute(id msgid.ID, p pipe.ID, enable bool) status.Code {
	var code status.Code
	if enable {
		code = b.Routes.EnableRoute(id, p)
	} else {
		code = b.Routes.DisableRoute(id, p)
	}

	missingEID, invalidEID, okEID := events.DisableRouteMissingEID, events.DisableRouteInvalidEID, events.DisableRouteOKEID
	if enable {
		missingEID, invalidEID, okEID = events.EnableRouteMissingEID, events.EnableRouteInvalidEID, events.EnableRouteOKEID
	}

	switch code {
	case status.Success:
		b.Events.Send(okEID, events.Debug, "route toggled: msgid=%v pipe enable=%v", id, enable)
	case status.BadArgument:
		if !msgid.IsValid(id) || p == pipe.Invalid {
			b.Events.Send(invalidEID, events.Error, "invalid msgid/pipe for route toggle: msgid=%v", id)
		} else {
			b.Events.Send(missingEID, events.Error, "destination not found for route toggle: msgid=%v", id)
		}
	}
	return code
}

// maxMessageSize bounds TransmitMsg's declared Size field against the
// CCSDS primary header's own addressable range (SPEC_FULL.md has no
// separate MAX_MSG_SIZE table, so the header format itself is the
// limit enforced here).
const maxMessageSize = ccsds.MaxTotalLength

// TransmitMsg decodes the header, resolves the route under the
// routing lock, then enqueues to each picked destination outside it,
// rolling back the speculative msg_count increment on a failed enqueue.
func (b *Bus) TransmitMsg(ctx context.Context, raw []byte, incrementSeqCnt bool) status.Code {
	if len(raw) < ccsds.HeaderLength {
		return status.BadArgument
	}
	hdr, err := ccsds.Decode(raw)
	if err != nil {
		return status.BadArgument
	}
	size := ccsds.GetSize(hdr)
	if size > maxMessageSize {
		return status.MsgTooBig
	}

	id := msgid.FromHeader(hdr)
	if !msgid.IsValid(id) {
		return status.BadArgument
	}

	res, found := b.Routes.ResolveForTransmit(id, incrementSeqCnt)
	if !found {
		b.Counters.NoSubscribersCount.Inc()
		return status.NoSubscribers
	}
	for _, p := range res.LimitSkipped {
		b.Counters.MsgLimitErrorCount.Inc()
		if desc := b.Pipes.Descriptor(p); desc != nil {
			desc.IncSendErrors()
		}
		b.Events.Send(events.MsgIDLimErrEID, events.Error, "msg count limit reached: msgid=%v pipe=%v", id, p)
	}
	if len(res.Picks) == 0 {
		return status.NoSubscribers
	}

	if incrementSeqCnt {
		hdr.SeqCount = res.NextSeq & 0x3FFF
		_ = ccsds.Encode(hdr, raw)
	}

	buf := b.pool.Get(len(raw))
	copy(buf.Data, raw)

	var (
		mu      sync.Mutex
		combined error
		okCount int
	)
	var wg conc.WaitGroup
	for _, pick := range res.Picks {
		pick := pick
		wg.Go(func() {
			enqErr := b.Pipes.Enqueue(pick.PipeID, buf)

			mu.Lock()
			defer mu.Unlock()
			if enqErr != nil {
				b.Routes.RollbackCount(pick.Ref)
				switch enqErr {
				case pipe.ErrQueueFull:
					b.Counters.PipeOverflowErrorCount.Inc()
					b.Events.Send(events.QFullErrEID, events.Error, "destination queue full: msgid=%v pipe=%v", id, pick.PipeID)
				default:
					b.Counters.InternalErrorCount.Inc()
					b.Counters.MsgSendErrorCount.Inc()
				}
				combined = multierr.Append(combined, enqErr)
				return
			}
			okCount++
		})
	}
	wg.Wait()
	buf.Release()

	if okCount == 0 {
		if combined != nil {
			b.logger.WithError(combined).Debugf("transmit: all destinations failed for msgid=%v", id)
		}
		return status.QueueFullErr
	}
	b.Counters.MsgSendCount.Inc()
	return status.Success
}

// ReceiveBuffer is a passthrough to the pipe registry's blocking
// dequeue.
func (b *Bus) ReceiveBuffer(ctx context.Context, id pipe.ID, timeout pipe.Timeout) (*membuf.Buffer, error) {
	return b.Pipes.ReceiveBuffer(ctx, id, timeout)
}
