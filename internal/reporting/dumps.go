package reporting

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"os"

	"github.com/otus-sbus/sbus/internal/msgid"
)

// FileSubtype identifies the payload layout of a dump file.
type FileSubtype uint8

const (
	RouteData FileSubtype = iota + 1
	PipeData
	MapData
)

const (
	nameFieldLen = 16 // fixed width for AppName/PipeName records, matching the "fixed-size entries" file format
)

// fsHeader is the filesystem header every dump starts with: a
// human-readable description and the subtype code a reader uses to
// pick the entry layout.
type fsHeader struct {
	Description [32]byte
	Subtype     uint8
}

func writeHeader(w *bufio.Writer, description string, subtype FileSubtype) error {
	var h fsHeader
	copy(h.Description[:], description)
	h.Subtype = uint8(subtype)
	return binary.Write(w, binary.BigEndian, h)
}

// RouteEntry is one row of a routing-table dump: {MsgId, PipeId,
// State, MsgCnt, AppName, PipeName}.
type RouteEntry struct {
	MsgID    uint32
	PipeSlot int32
	Active   uint8
	MsgCount int32
	AppName  [nameFieldLen]byte
	PipeName [nameFieldLen]byte
}

// PipeEntry is one row of a pipe-table dump.
type PipeEntry struct {
	PipeSlot          int32
	MaxQueueDepth     int32
	CurrentQueueDepth int32
	PeakQueueDepth    int32
	SendErrors        int32
	Opts              uint32
	AppName           [nameFieldLen]byte
	PipeName          [nameFieldLen]byte
}

// MapEntry is one row of a MsgId->RouteId dump.
type MapEntry struct {
	MsgID        uint32
	RouteIDValue int32
}

func fixedName(s string) [nameFieldLen]byte {
	var out [nameFieldLen]byte
	copy(out[:], s)
	return out
}

// DumpRouting writes every live route's destinations to path.
// Destinations() takes its own lock per MsgId, so the file write below
// never runs while routing is locked.
func (r *Reporter) DumpRouting(path string) (entries int, err error) {
	f, err := os.Create(path)
	if err != nil {
		return 0, fmt.Errorf("reporting: create %s: %w", path, err)
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	if err := writeHeader(w, "SB routing table dump", RouteData); err != nil {
		return 0, err
	}

	var writeErr error
	r.b.Routes.ForEachRouteID(func(id msgid.ID) {
		if writeErr != nil {
			return
		}
		for _, d := range r.b.Routes.Destinations(id) {
			desc := r.b.Pipes.Descriptor(d.PipeID)
			entry := RouteEntry{
				MsgID:    uint32(id),
				PipeSlot: d.PipeID.Slot(),
				MsgCount: int32(d.MsgCountCurrent),
			}
			if d.Active {
				entry.Active = 1
			}
			if desc != nil {
				entry.AppName = fixedName(desc.AppID)
				entry.PipeName = fixedName(desc.Name)
			}
			if err := binary.Write(w, binary.BigEndian, entry); err != nil {
				writeErr = err
				return
			}
			entries++
		}
	})
	if writeErr != nil {
		return entries, writeErr
	}
	if err := w.Flush(); err != nil {
		return entries, fmt.Errorf("reporting: short write on %s: %w", path, err)
	}
	return entries, nil
}

// DumpPipes writes every live pipe's descriptor to path.
func (r *Reporter) DumpPipes(path string) (entries int, err error) {
	f, err := os.Create(path)
	if err != nil {
		return 0, fmt.Errorf("reporting: create %s: %w", path, err)
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	if err := writeHeader(w, "SB pipe table dump", PipeData); err != nil {
		return 0, err
	}

	for _, p := range r.b.Pipes.Snapshot() {
		entry := PipeEntry{
			PipeSlot:          p.ID.Slot(),
			MaxQueueDepth:     int32(p.QueueDepth),
			CurrentQueueDepth: p.CurrentDepth,
			PeakQueueDepth:    p.PeakDepth,
			SendErrors:        p.SendErrors,
			Opts:              p.Opts,
			AppName:           fixedName(p.AppID),
			PipeName:          fixedName(p.Name),
		}
		if err := binary.Write(w, binary.BigEndian, entry); err != nil {
			return entries, err
		}
		entries++
	}
	if err := w.Flush(); err != nil {
		return entries, fmt.Errorf("reporting: short write on %s: %w", path, err)
	}
	return entries, nil
}

// DumpMap writes the MsgId -> RouteId table to path.
func (r *Reporter) DumpMap(path string) (entries int, err error) {
	f, err := os.Create(path)
	if err != nil {
		return 0, fmt.Errorf("reporting: create %s: %w", path, err)
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	if err := writeHeader(w, "SB MsgId->RouteId map dump", MapData); err != nil {
		return 0, err
	}

	var writeErr error
	r.b.Routes.ForEachRouteID(func(id msgid.ID) {
		if writeErr != nil {
			return
		}
		rid, ok := r.b.Routes.RouteIDOf(id)
		if !ok {
			return
		}
		entry := MapEntry{MsgID: uint32(id), RouteIDValue: int32(rid)}
		if err := binary.Write(w, binary.BigEndian, entry); err != nil {
			writeErr = err
			return
		}
		entries++
	})
	if writeErr != nil {
		return entries, writeErr
	}
	if err := w.Flush(); err != nil {
		return entries, fmt.Errorf("reporting: short write on %s: %w", path, err)
	}
	return entries, nil
}
