package browserdb

import (
	"encoding/json"
	"os"

	"github.com/pkg/errors"
	"github.com/tailscale/hujson"
	"go.uber.org/zap"

	"github.com/intro0siddiqui/browserdb/modes"
)

// Options tunes an engine handle. The zero value selects every default
// except EnableHeatTracking, which it leaves off; DefaultOptions turns
// it on.
type Options struct {
	// Mode is the initial backing; Persistent unless set.
	Mode modes.Mode `json:"-"`

	// UltraMode selects the in-memory backing from a config file.
	UltraMode bool `json:"ultra_mode,omitempty"`

	// MaxMemory is the overall memtable budget in bytes, split evenly
	// across the five tables.
	MaxMemory int `json:"max_memory,omitempty"`

	// BloomFPR is the bloom filter false-positive target per table
	// file.
	BloomFPR float64 `json:"bloom_fpr,omitempty"`

	// EnableHeatTracking attaches per-table access-heat trackers.
	EnableHeatTracking bool `json:"enable_heat_tracking,omitempty"`

	// HeatEntries bounds each heat tracker (advisory).
	HeatEntries int `json:"heat_entries,omitempty"`

	// L0CompactFiles is the level-0 file count that triggers
	// compaction; negative disables compaction.
	L0CompactFiles int `json:"l0_compact_files,omitempty"`

	// LevelBytes is the level-1 byte budget; each deeper level allows
	// ten times the previous.
	LevelBytes int64 `json:"level_bytes,omitempty"`

	// Logger receives engine diagnostics; zap.NewNop if nil.
	Logger *zap.Logger `json:"-"`
}

// DefaultOptions returns the stock configuration: persistent mode,
// 100MB memory budget, 1% bloom false positives, heat tracking on.
func DefaultOptions() Options {
	return Options{
		Mode:               modes.Persistent,
		MaxMemory:          modes.DefaultMaxMemory,
		BloomFPR:           0.01,
		EnableHeatTracking: true,
	}
}

// LoadOptions reads an options file in HuJSON (JSON with comments and
// trailing commas). Missing fields keep their defaults.
func LoadOptions(path string) (Options, error) {
	opts := DefaultOptions()

	data, err := os.ReadFile(path)
	if err != nil {
		return opts, errors.Wrap(err, "read options file")
	}

	standardized, err := hujson.Standardize(data)
	if err != nil {
		return opts, errors.Wrapf(err, "parse %s", path)
	}
	if err := json.Unmarshal(standardized, &opts); err != nil {
		return opts, errors.Wrapf(err, "decode %s", path)
	}

	if opts.UltraMode {
		opts.Mode = modes.Ultra
	}
	return opts, nil
}

func (o Options) modeConfig() modes.Config {
	return modes.Config{
		MaxMemory:          o.MaxMemory,
		BloomFPR:           o.BloomFPR,
		EnableHeatTracking: o.EnableHeatTracking,
		HeatEntries:        o.HeatEntries,
		L0CompactFiles:     o.L0CompactFiles,
		LevelBytes:         o.LevelBytes,
		Logger:             o.Logger,
	}
}
