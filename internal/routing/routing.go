// Package routing implements the routing table (C3): MsgId -> ordered
// list of destinations, with subscribe/unsubscribe, enable/disable,
// duplicate detection, and per-MsgId/per-route destination caps.
//
// Destinations live in a flat arena indexed by small integers: each
// route stores the head index of its
// destination list and each destination stores the index of the next
// one in the same route. A pipe -> destination-indices reverse index
// makes cascading unsubscribe on pipe deletion O(destinations of that
// pipe) instead of a full table scan.
package routing

import (
	"sync"

	"github.com/otus-sbus/sbus/internal/msgid"
	"github.com/otus-sbus/sbus/internal/pipe"
	"github.com/otus-sbus/sbus/internal/status"
)

// RouteID is the dense index the table assigns a MsgId at first
// subscription. It is stable until the route's last destination is
// removed, and may be recycled afterward.
type RouteID int32

// InvalidRoute is returned when no route exists for a MsgId.
const InvalidRoute RouteID = -1

// Scope controls whether a destination is replayed in the
// prior-subscriptions dump.
type Scope int

const (
	Local Scope = iota
	Global
)

// QoS is accepted at subscribe time but not yet honored by dispatch.
type QoS struct {
	Priority    uint8
	Reliability uint8
}

// DestRef is an opaque reference to one destination, used by the
// dispatch path to report back enqueue outcomes (increment/rollback
// msg_count_current) without re-resolving the route.
type DestRef int32

type destination struct {
	inUse           bool
	pipeID          pipe.ID
	msgIDCached     msgid.ID
	active          bool
	msgCountLimit   int
	msgCountCurrent int
	destCount       int64
	scope           Scope
	qos             QoS
	next            int32 // index into arena, -1 = end of list
}

type route struct {
	msgID msgid.ID
	head  int32 // index into arena, -1 = empty
	count int
	seq   uint16 // per-route monotonic sequence counter
}

// Pick is one destination TransmitMsg should actually enqueue to.
type Pick struct {
	Ref    DestRef
	PipeID pipe.ID
}

// ResolveResult is the outcome of resolving a MsgId for transmit.
type ResolveResult struct {
	RouteID      RouteID
	Picks        []Pick     // active destinations under their msg-count limit
	LimitSkipped []pipe.ID  // active destinations skipped for being at their limit
	NextSeq      uint16     // the route's sequence count after this transmit
}

// Table is the routing table. A Table is safe for concurrent use.
type Table struct {
	mu sync.RWMutex

	routeOf map[msgid.ID]RouteID
	routes  []*route // dense by RouteID; nil = recycled slot
	freeIDs []RouteID

	arena     []destination
	freeArena []int32

	byPipe map[pipe.ID]map[int32]struct{} // reverse index for cascade delete

	maxDestPerRoute int
	maxRoutes       int

	duplicateSubscriptions int64
}

// NewTable creates a Table enforcing maxRoutes distinct MsgIds
// (MAX_MSG_IDS) and maxDestPerRoute destinations per route
// (MAX_DEST_PER_PKT).
func NewTable(maxRoutes, maxDestPerRoute int) *Table {
	return &Table{
		routeOf:         make(map[msgid.ID]RouteID),
		byPipe:          make(map[pipe.ID]map[int32]struct{}),
		maxDestPerRoute: maxDestPerRoute,
		maxRoutes:       maxRoutes,
	}
}

// Subscribe adds pipeID as a destination of msgID. A repeated
// subscription is idempotent: it never fails the caller, returns
// status.DuplicateSubscription, and does not double-count.
func (t *Table) Subscribe(id msgid.ID, p pipe.ID, qos QoS, msgCountLimit int, scope Scope) (RouteID, status.Code) {
	if !msgid.IsValid(id) || p == pipe.Invalid {
		return InvalidRoute, status.BadArgument
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	rid, exists := t.routeOf[id]
	if exists {
		if idx, found := t.findDestLocked(rid, p); found {
			_ = idx
			t.duplicateSubscriptions++
			return rid, status.DuplicateSubscription
		}
		r := t.routes[rid]
		if r.count >= t.maxDestPerRoute {
			return InvalidRoute, status.MaxMsgsMet
		}
	} else {
		if len(t.routeOf) >= t.maxRoutes {
			return InvalidRoute, status.MaxMsgsMet
		}
		rid = t.allocRouteLocked(id)
	}

	idx := t.allocDestLocked()
	r := t.routes[rid]
	d := &t.arena[idx]
	d.inUse = true
	d.pipeID = p
	d.msgIDCached = id
	d.active = true
	d.msgCountLimit = msgCountLimit
	d.msgCountCurrent = 0
	d.scope = scope
	d.qos = qos
	d.next = -1

	t.appendTailLocked(r, idx)
	t.trackPipeLocked(p, idx)

	return rid, status.Success
}

// Unsubscribe removes pipeID from msgID's destination list. A missing
// destination is tolerated silently.
func (t *Table) Unsubscribe(id msgid.ID, p pipe.ID) {
	t.mu.Lock()
	defer t.mu.Unlock()

	rid, exists := t.routeOf[id]
	if !exists {
		return
	}
	idx, found := t.findDestLocked(rid, p)
	if !found {
		return
	}
	t.removeDestLocked(rid, idx)
}

// EnableRoute / DisableRoute toggle a destination's active flag.
// Dispatch skips inactive destinations but leaves them subscribed.
func (t *Table) EnableRoute(id msgid.ID, p pipe.ID) status.Code  { return t.setActive(id, p, true) }
func (t *Table) DisableRoute(id msgid.ID, p pipe.ID) status.Code { return t.setActive(id, p, false) }

func (t *Table) setActive(id msgid.ID, p pipe.ID, active bool) status.Code {
	if !msgid.IsValid(id) || p == pipe.Invalid {
		return status.BadArgument
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	rid, exists := t.routeOf[id]
	if !exists {
		return status.BadArgument
	}
	idx, found := t.findDestLocked(rid, p)
	if !found {
		return status.BadArgument
	}
	t.arena[idx].active = active
	return status.Success
}

// UnsubscribeAll removes every destination owned by p, the cascade
// performed by DeletePipe. No duplicate reporting
// occurs; this is bookkeeping cleanup, not a user-facing unsubscribe.
func (t *Table) UnsubscribeAll(p pipe.ID) {
	t.mu.Lock()
	defer t.mu.Unlock()

	owned := t.byPipe[p]
	if len(owned) == 0 {
		return
	}
	indices := make([]int32, 0, len(owned))
	for idx := range owned {
		indices = append(indices, idx)
	}
	for _, idx := range indices {
		d := &t.arena[idx]
		rid, ok := t.routeOf[d.msgIDCached]
		if !ok {
			continue
		}
		t.removeDestLocked(rid, idx)
	}
}

// ResolveForTransmit resolves id to its destination list, skipping
// inactive destinations and those at their per-destination message
// limit, pre-incrementing msg_count_current for the ones picked to
// enqueue. incrementSeq advances and
// returns the route's sequence counter.
func (t *Table) ResolveForTransmit(id msgid.ID, incrementSeq bool) (ResolveResult, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	rid, exists := t.routeOf[id]
	if !exists {
		return ResolveResult{}, false
	}
	r := t.routes[rid]

	res := ResolveResult{RouteID: rid}
	for idx := r.head; idx != -1; idx = t.arena[idx].next {
		d := &t.arena[idx]
		if !d.active {
			continue
		}
		if d.msgCountLimit > 0 && d.msgCountCurrent >= d.msgCountLimit {
			res.LimitSkipped = append(res.LimitSkipped, d.pipeID)
			continue
		}
		d.msgCountCurrent++
		d.destCount++
		res.Picks = append(res.Picks, Pick{Ref: DestRef(idx), PipeID: d.pipeID})
	}

	if incrementSeq {
		r.seq++
	}
	res.NextSeq = r.seq
	return res, true
}

// RollbackCount undoes the speculative msg_count_current increment
// ResolveForTransmit made for ref, called when the subsequent enqueue
// fails.
func (t *Table) RollbackCount(ref DestRef) {
	t.mu.Lock()
	defer t.mu.Unlock()
	idx := int32(ref)
	if idx < 0 || int(idx) >= len(t.arena) || !t.arena[idx].inUse {
		return
	}
	if t.arena[idx].msgCountCurrent > 0 {
		t.arena[idx].msgCountCurrent--
	}
}

// DuplicateSubscriptions returns the running count of idempotent
// duplicate Subscribe calls. HK telemetry does not carry this count.
func (t *Table) DuplicateSubscriptions() int64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.duplicateSubscriptions
}

// DestinationSnapshot is a read-only view of one destination, used by
// reporting (C6) and ForEachRouteID consumers.
type DestinationSnapshot struct {
	MsgID           msgid.ID
	PipeID          pipe.ID
	Active          bool
	MsgCountLimit   int
	MsgCountCurrent int
	DestCount       int64
	Scope           Scope
	QoS             QoS
}

// Destinations returns a snapshot of every destination on id's route,
// in route (insertion) order, taken under the routing lock and
// released before any caller I/O.
func (t *Table) Destinations(id msgid.ID) []DestinationSnapshot {
	t.mu.RLock()
	defer t.mu.RUnlock()

	rid, exists := t.routeOf[id]
	if !exists {
		return nil
	}
	return t.snapshotRouteLocked(rid)
}

func (t *Table) snapshotRouteLocked(rid RouteID) []DestinationSnapshot {
	r := t.routes[rid]
	out := make([]DestinationSnapshot, 0, r.count)
	for idx := r.head; idx != -1; idx = t.arena[idx].next {
		d := &t.arena[idx]
		out = append(out, DestinationSnapshot{
			MsgID:           d.msgIDCached,
			PipeID:          d.pipeID,
			Active:          d.active,
			MsgCountLimit:   d.msgCountLimit,
			MsgCountCurrent: d.msgCountCurrent,
			DestCount:       d.destCount,
			Scope:           d.scope,
			QoS:             d.qos,
		})
	}
	return out
}

// RouteIDOf returns the RouteID currently assigned to id, if any.
func (t *Table) RouteIDOf(id msgid.ID) (RouteID, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	rid, ok := t.routeOf[id]
	return rid, ok
}

// ForEachRouteID visits every live route's MsgId in RouteID order, which
// is stable while the set of routes does not change. The callback runs
// with no routing lock held — it must call back into Table (e.g.
// Destinations) if it needs destination data.
func (t *Table) ForEachRouteID(cb func(msgid.ID)) {
	t.mu.RLock()
	ids := make([]msgid.ID, 0, len(t.routeOf))
	for _, r := range t.routes {
		if r != nil {
			ids = append(ids, r.msgID)
		}
	}
	t.mu.RUnlock()

	for _, id := range ids {
		cb(id)
	}
}

// --- internal helpers (caller holds t.mu) ---

func (t *Table) allocRouteLocked(id msgid.ID) RouteID {
	var rid RouteID
	if n := len(t.freeIDs); n > 0 {
		rid = t.freeIDs[n-1]
		t.freeIDs = t.freeIDs[:n-1]
		t.routes[rid] = &route{msgID: id, head: -1}
	} else {
		rid = RouteID(len(t.routes))
		t.routes = append(t.routes, &route{msgID: id, head: -1})
	}
	t.routeOf[id] = rid
	return rid
}

func (t *Table) allocDestLocked() int32 {
	if n := len(t.freeArena); n > 0 {
		idx := t.freeArena[n-1]
		t.freeArena = t.freeArena[:n-1]
		return idx
	}
	t.arena = append(t.arena, destination{})
	return int32(len(t.arena) - 1)
}

func (t *Table) appendTailLocked(r *route, idx int32) {
	if r.head == -1 {
		r.head = idx
	} else {
		cur := r.head
		for t.arena[cur].next != -1 {
			cur = t.arena[cur].next
		}
		t.arena[cur].next = idx
	}
	r.count++
}

func (t *Table) trackPipeLocked(p pipe.ID, idx int32) {
	set, ok := t.byPipe[p]
	if !ok {
		set = make(map[int32]struct{})
		t.byPipe[p] = set
	}
	set[idx] = struct{}{}
}

func (t *Table) findDestLocked(rid RouteID, p pipe.ID) (int32, bool) {
	r := t.routes[rid]
	for idx := r.head; idx != -1; idx = t.arena[idx].next {
		if t.arena[idx].pipeID == p {
			return idx, true
		}
	}
	return -1, false
}

// removeDestLocked unlinks idx from route rid's list, frees it back to
// the arena, drops it from the pipe reverse index, and reclaims the
// route itself if it is now empty.
func (t *Table) removeDestLocked(rid RouteID, idx int32) {
	r := t.routes[rid]
	if r.head == idx {
		r.head = t.arena[idx].next
	} else {
		cur := r.head
		for cur != -1 && t.arena[cur].next != idx {
			cur = t.arena[cur].next
		}
		if cur != -1 {
			t.arena[cur].next = t.arena[idx].next
		}
	}
	r.count--

	p := t.arena[idx].pipeID
	if set, ok := t.byPipe[p]; ok {
		delete(set, idx)
		if len(set) == 0 {
			delete(t.byPipe, p)
		}
	}

	t.arena[idx] = destination{}
	t.freeArena = append(t.freeArena, idx)

	if r.count == 0 {
		delete(t.routeOf, r.msgID)
		t.routes[rid] = nil
		t.freeIDs = append(t.freeIDs, rid)
	}
}
