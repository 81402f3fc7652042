package bus

import (
	"fmt"

	"github.com/otus-sbus/sbus/internal/config"
	"github.com/otus-sbus/sbus/internal/msgid"
	"github.com/otus-sbus/sbus/internal/routing"
)

const defaultManifestPipeDepth = 16

// ApplyManifest creates each named pipe if it doesn't already exist
// and subscribes it to its MsgId, in manifest order. A manifest lets a
// deployment wire fixed subscriptions before any application attaches,
// closing the race where the first TransmitMsg after boot would
// otherwise see NoSubscribers.
func (b *Bus) ApplyManifest(entries []config.ManifestEntry) error {
	for _, e := range entries {
		p, ok := b.Pipes.GetPipeIDByName(e.PipeName)
		if !ok {
			depth := e.PipeDepth
			if depth <= 0 {
				depth = defaultManifestPipeDepth
			}
			var err error
			p, err = b.CreatePipe(depth, e.PipeName, e.AppID)
			if err != nil {
				return fmt.Errorf("bus: manifest create pipe %s: %w", e.PipeName, err)
			}
		}

		scope := routing.Local
		if e.Scope == "global" {
			scope = routing.Global
		}

		if code := b.Subscribe(msgid.ID(e.MsgID), p, routing.QoS{}, e.MsgCountLimit, scope); code.OrNil() != nil {
			return fmt.Errorf("bus: manifest subscribe msg_id=%d pipe=%s: %w", e.MsgID, e.PipeName, code)
		}
	}
	return nil
}
