package config

import (
	"fmt"
	"os"

	"github.com/mitchellh/mapstructure"
	"gopkg.in/yaml.v3"
)

// ManifestEntry is one line of a startup subscription manifest: a
// named pipe and the MsgId it should be bound to before any
// application has a chance to race the bus's first TransmitMsg.
type ManifestEntry struct {
	PipeName      string `mapstructure:"pipe_name"`
	AppID         string `mapstructure:"app_id"`
	PipeDepth     int    `mapstructure:"pipe_depth"`
	MsgID         uint32 `mapstructure:"msg_id"`
	Scope         string `mapstructure:"scope"` // "local" | "global"
	MsgCountLimit int    `mapstructure:"msg_count_limit"`
}

// LoadManifest reads a YAML subscription manifest at path. It decodes
// through an untyped map first and mapstructure.Decode second, rather
// than unmarshaling into []ManifestEntry directly, so a malformed
// entry reports which field mapstructure rejected instead of a raw
// yaml.v3 type-mismatch error.
func LoadManifest(path string) ([]ManifestEntry, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read manifest %s: %w", path, err)
	}

	var loose []map[string]interface{}
	if err := yaml.Unmarshal(raw, &loose); err != nil {
		return nil, fmt.Errorf("config: parse manifest %s: %w", path, err)
	}

	entries := make([]ManifestEntry, len(loose))
	for i, m := range loose {
		if err := mapstructure.Decode(m, &entries[i]); err != nil {
			return nil, fmt.Errorf("config: decode manifest entry %d: %w", i, err)
		}
	}
	return entries, nil
}
