// Package pipe implements the pipe registry and queueing layer (C2):
// a fixed-capacity table of bounded per-pipe queues, each owned by one
// application, with depth accounting and stale-handle detection.
package pipe

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/tevino/abool"
	"go.uber.org/atomic"

	"github.com/otus-sbus/sbus/internal/membuf"
)

var (
	// ErrBadArgument mirrors CFE_SB_BAD_ARGUMENT.
	ErrBadArgument = errors.New("pipe: bad argument")
	// ErrMaxPipesMet mirrors CFE_SB_MAX_PIPES_MET.
	ErrMaxPipesMet = errors.New("pipe: max pipes met")
	// ErrPipeCreateFailed mirrors CFE_SB_PIPE_CR_ERR.
	ErrPipeCreateFailed = errors.New("pipe: create failed")
	// ErrPipeReadFailed mirrors CFE_SB_PIPE_RD_ERR.
	ErrPipeReadFailed = errors.New("pipe: read failed")
	// ErrTimeout mirrors CFE_SB_TIME_OUT.
	ErrTimeout = errors.New("pipe: receive timed out")
	// ErrQueueFull mirrors CFE_SB_Q_FULL_ERR.
	ErrQueueFull = errors.New("pipe: queue full")
)

// ID is an opaque pipe handle: a dense slot index plus a generation
// counter, so a stale handle from a deleted-and-reused slot is
// detected rather than silently aliased.
type ID struct {
	slot       int32
	generation uint32
}

// Invalid is the zero value; no live pipe ever has generation 0.
var Invalid = ID{}

// Slot returns id's dense slot index, the numeric pipe identity used
// by file dumps (Spec's PipeId dump field). It carries no meaning on
// its own without the generation also matching a live descriptor.
func (id ID) Slot() int32 { return id.slot }

// Timeout selects ReceiveBuffer's blocking behavior.
type Timeout int

const (
	// PendForever blocks until a message arrives.
	PendForever Timeout = -1
	// Poll never blocks.
	Poll Timeout = 0
	// Any positive Timeout value is milliseconds to wait.
)

// Descriptor is one pipe's bookkeeping record.
type Descriptor struct {
	ID         ID
	AppID      string
	Name       string
	Opts       uint32
	QueueDepth int

	currentDepth atomic.Int32
	peakDepth    atomic.Int32
	sendErrors   atomic.Int32

	queue  chan *membuf.Buffer
	inHand *membuf.Buffer // the one borrowed buffer currently "in hand" for the caller's last Receive

	closed *abool.AtomicBool // set by DeletePipe so a send/receive racing the delete fails fast instead of touching a draining queue
}

// CurrentDepth returns the number of messages currently enqueued.
func (d *Descriptor) CurrentDepth() int32 { return d.currentDepth.Load() }

// PeakDepth returns the highest CurrentDepth ever observed.
func (d *Descriptor) PeakDepth() int32 { return d.peakDepth.Load() }

// SendErrors returns the count of failed enqueue attempts against this pipe.
func (d *Descriptor) SendErrors() int32 { return d.sendErrors.Load() }

// IncSendErrors bumps the pipe's send-error counter. Dispatch (C4)
// calls this for a msg-count-limit skip, which is not itself an
// enqueue attempt and so does not go through Enqueue's own counting.
func (d *Descriptor) IncSendErrors() { d.sendErrors.Inc() }

// Registry is the fixed-capacity pipe table. A Registry is safe for concurrent use.
type Registry struct {
	slots       []*Descriptor
	generations []uint32
	byName      map[string]ID
	maxDepth    int

	mu sync.Mutex
}

// NewRegistry creates a Registry with capacity maxPipes and a queue
// depth ceiling of osQueueMaxDepth.
func NewRegistry(maxPipes, osQueueMaxDepth int) *Registry {
	return &Registry{
		slots:       make([]*Descriptor, maxPipes),
		generations: make([]uint32, maxPipes),
		byName:      make(map[string]ID),
		maxDepth:    osQueueMaxDepth,
	}
}

// CreatePipe allocates a free slot and a fresh generation, creates the
// pipe's bounded queue, and records the owning app id.
func (r *Registry) CreatePipe(depth int, name, appID string) (ID, error) {
	if depth <= 0 || depth > r.maxDepth || name == "" || appID == "" {
		return Invalid, ErrBadArgument
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.byName[name]; exists {
		return Invalid, ErrBadArgument
	}

	slot := int32(-1)
	for i, d := range r.slots {
		if d == nil {
			slot = int32(i)
			break
		}
	}
	if slot < 0 {
		return Invalid, ErrMaxPipesMet
	}

	r.generations[slot]++
	id := ID{slot: slot, generation: r.generations[slot]}

	desc := &Descriptor{
		ID:         id,
		AppID:      appID,
		Name:       name,
		QueueDepth: depth,
		queue:      make(chan *membuf.Buffer, depth),
		closed:     abool.New(),
	}
	r.slots[slot] = desc
	r.byName[name] = id

	return id, nil
}

// DeletePipe destroys the pipe's queue and bumps its slot generation,
// so any handle still referring to it fails IsMatch.
func (r *Registry) DeletePipe(id ID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	desc := r.lockedDescriptor(id)
	if desc == nil {
		return ErrBadArgument
	}
	desc.closed.Set()
	if desc.inHand != nil {
		desc.inHand.Release()
		desc.inHand = nil
	}
	for {
		select {
		case buf := <-desc.queue:
			buf.Release()
		default:
			delete(r.byName, desc.Name)
			r.slots[id.slot] = nil
			r.generations[id.slot]++
			return nil
		}
	}
}

// IsMatch reports whether id refers to a currently live pipe: the slot
// is in use and the generation matches.
func (r *Registry) IsMatch(id ID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lockedDescriptor(id) != nil
}

// Descriptor returns the live descriptor for id, or nil if stale.
func (r *Registry) Descriptor(id ID) *Descriptor {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lockedDescriptor(id)
}

func (r *Registry) lockedDescriptor(id ID) *Descriptor {
	if int(id.slot) < 0 || int(id.slot) >= len(r.slots) {
		return nil
	}
	d := r.slots[id.slot]
	if d == nil || d.ID.generation != id.generation {
		return nil
	}
	return d
}

// Info is a point-in-time snapshot of one pipe descriptor, used by
// reporting (C6) so callers never hold the registry lock while writing
// telemetry or files.
type Info struct {
	ID           ID
	AppID        string
	Name         string
	Opts         uint32
	QueueDepth   int
	CurrentDepth int32
	PeakDepth    int32
	SendErrors   int32
}

// Snapshot returns an Info for every live pipe, taken under one lock
// acquisition.
func (r *Registry) Snapshot() []Info {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]Info, 0, len(r.slots))
	for _, d := range r.slots {
		if d == nil {
			continue
		}
		out = append(out, Info{
			ID:           d.ID,
			AppID:        d.AppID,
			Name:         d.Name,
			Opts:         d.Opts,
			QueueDepth:   d.QueueDepth,
			CurrentDepth: d.currentDepth.Load(),
			PeakDepth:    d.peakDepth.Load(),
			SendErrors:   d.sendErrors.Load(),
		})
	}
	return out
}

// GetPipeIDByName looks up a pipe by its registered name.
func (r *Registry) GetPipeIDByName(name string) (ID, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	id, ok := r.byName[name]
	return id, ok
}

// SetOpts/GetOpts are trivial accessors over the pipe's option bits.
func (r *Registry) SetOpts(id ID, opts uint32) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	d := r.lockedDescriptor(id)
	if d == nil {
		return ErrBadArgument
	}
	d.Opts = opts
	return nil
}

func (r *Registry) GetOpts(id ID) (uint32, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	d := r.lockedDescriptor(id)
	if d == nil {
		return 0, ErrBadArgument
	}
	return d.Opts, nil
}

// Enqueue places buf onto id's queue, retaining a reference, and
// updates depth/peak-depth accounting. Called by the dispatch path
// (C4) outside the routing lock.
func (r *Registry) Enqueue(id ID, buf *membuf.Buffer) error {
	desc := r.Descriptor(id)
	if desc == nil || desc.closed.IsSet() {
		return ErrBadArgument
	}

	buf.Retain()
	select {
	case desc.queue <- buf:
		cur := desc.currentDepth.Inc()
		for {
			peak := desc.peakDepth.Load()
			if cur <= peak || desc.peakDepth.CAS(peak, cur) {
				break
			}
		}
		return nil
	default:
		buf.Release()
		desc.sendErrors.Inc()
		return ErrQueueFull
	}
}

// ReceiveBuffer blocks on id's queue per timeout and returns the head
// message. The previously in-hand buffer (if any) is released before
// the new one is returned, keeping at most one in-hand buffer per pipe.
func (r *Registry) ReceiveBuffer(ctx context.Context, id ID, timeout Timeout) (*membuf.Buffer, error) {
	desc := r.Descriptor(id)
	if desc == nil || desc.closed.IsSet() {
		return nil, ErrBadArgument
	}

	var buf *membuf.Buffer
	switch {
	case timeout == Poll:
		select {
		case buf = <-desc.queue:
		default:
			return nil, ErrTimeout
		}
	case timeout == PendForever:
		select {
		case buf = <-desc.queue:
		case <-ctx.Done():
			return nil, ErrPipeReadFailed
		}
	default:
		timer := time.NewTimer(time.Duration(timeout) * time.Millisecond)
		defer timer.Stop()
		select {
		case buf = <-desc.queue:
		case <-timer.C:
			return nil, ErrTimeout
		case <-ctx.Done():
			return nil, ErrPipeReadFailed
		}
	}

	desc.currentDepth.Dec()
	if desc.inHand != nil {
		desc.inHand.Release()
	}
	desc.inHand = buf
	return buf, nil
}
