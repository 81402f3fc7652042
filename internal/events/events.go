// Package events is the bus's stub of the external event service
// collaborator: SendEvent/Register. It is intentionally
// thin — the real event service (app registration, ground interface)
// is out of scope — but carries one piece of real logic before
// forwarding to the log: per-event-ID squelching so a noisy EID cannot
// spam the log.
package events

import (
	"sync"

	"github.com/otus-sbus/sbus/internal/log"
)

// ID is a bus event identifier (EID).
type ID int

// Type mirrors the original event service's severity classes.
type Type int

const (
	Debug Type = iota
	Informational
	Error
	Critical
)

// Filter squelches a specific EID so that only every 2^Mask'th
// occurrence is emitted (Mask 0 = never squelch), mirroring the event
// service's Register(filters, count, mode).
type Filter struct {
	EventID ID
	Mask    uint16 // 0 = no filtering; cFS uses a binary "count" filter mask
}

// Sink forwards events to a Logger, honoring a capped filter list.
type Sink struct {
	mu      sync.Mutex
	filters map[ID]uint16
	counts  map[ID]uint16
	maxLen  int
	logger  log.Logger
}

// NewSink creates a Sink backed by logger, allowing at most maxFilters
// registered filters.
func NewSink(logger log.Logger, maxFilters int) *Sink {
	return &Sink{
		filters: make(map[ID]uint16),
		counts:  make(map[ID]uint16),
		maxLen:  maxFilters,
		logger:  logger,
	}
}

// Register installs up to s.maxLen filters. Extra entries beyond the
// cap are silently dropped, matching the original's fixed-size table.
func (s *Sink) Register(filters []Filter) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, f := range filters {
		if len(s.filters) >= s.maxLen {
			return
		}
		s.filters[f.EventID] = f.Mask
	}
}

// Send emits an event, applying any registered mask-based squelch
// before handing off to the Logger. Mask m means "emit on every 2^m'th
// occurrence"; mask 0 means unfiltered.
func (s *Sink) Send(id ID, typ Type, format string, args ...interface{}) {
	s.mu.Lock()
	mask, filtered := s.filters[id]
	var emit bool
	if !filtered || mask == 0 {
		emit = true
	} else {
		s.counts[id]++
		emit = s.counts[id]&((1<<mask)-1) == 0
	}
	s.mu.Unlock()

	if !emit {
		return
	}

	entry := s.logger.WithField("eid", int(id))
	switch typ {
	case Debug:
		entry.Debugf(format, args...)
	case Error, Critical:
		entry.Errorf(format, args...)
	default:
		entry.Infof(format, args...)
	}
}
