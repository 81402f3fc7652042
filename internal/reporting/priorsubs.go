package reporting

import (
	"github.com/otus-sbus/sbus/internal/msgid"
	"github.com/otus-sbus/sbus/internal/routing"
)

// PriorSubscriptions implements SEND_PREV_SUBS_CC: for every live
// route, take the first destination subscribed with Global scope,
// and transmit the result as segments of at most subEntriesPerPkt
// entries via emit.
func (r *Reporter) PriorSubscriptions(subEntriesPerPkt int, emit func(AllSubsSegment)) {
	var entries []AllSubsEntry
	segment := 1

	flush := func() {
		if len(entries) == 0 {
			return
		}
		emit(AllSubsSegment{PktSegment: segment, Entries: entries})
		segment++
		entries = nil
	}

	r.b.Routes.ForEachRouteID(func(id msgid.ID) {
		for _, d := range r.b.Routes.Destinations(id) {
			if d.Scope == routing.Global {
				entries = append(entries, AllSubsEntry{MsgID: uint32(id)})
				break
			}
		}
		if len(entries) == subEntriesPerPkt {
			flush()
		}
	})
	flush()
}
