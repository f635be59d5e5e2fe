package browserdb

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/intro0siddiqui/browserdb/modes"
)

func TestLoadOptions(t *testing.T) {
	path := filepath.Join(t.TempDir(), "browserdb.json")

	raw := `{
	// tuned for a small profile
	"max_memory": 5242880,
	"bloom_fpr": 0.02,
	"enable_heat_tracking": true,
	"l0_compact_files": 6, // size-tiered trigger
}`
	if err := os.WriteFile(path, []byte(raw), 0o644); err != nil {
		t.Fatal(err)
	}

	opts, err := LoadOptions(path)
	if err != nil {
		t.Fatal(err)
	}

	if opts.MaxMemory != 5242880 {
		t.Fatalf("max memory %d", opts.MaxMemory)
	}
	if opts.BloomFPR != 0.02 {
		t.Fatalf("bloom fpr %v", opts.BloomFPR)
	}
	if opts.L0CompactFiles != 6 {
		t.Fatalf("l0 compact files %d", opts.L0CompactFiles)
	}
	if opts.Mode != modes.Persistent {
		t.Fatalf("mode %v", opts.Mode)
	}
}

func TestLoadOptionsUltraMode(t *testing.T) {
	path := filepath.Join(t.TempDir(), "browserdb.json")

	if err := os.WriteFile(path, []byte(`{"ultra_mode": true}`), 0o644); err != nil {
		t.Fatal(err)
	}

	opts, err := LoadOptions(path)
	if err != nil {
		t.Fatal(err)
	}
	if opts.Mode != modes.Ultra {
		t.Fatalf("mode %v", opts.Mode)
	}
}

func TestLoadOptionsMissingFile(t *testing.T) {
	if _, err := LoadOptions(filepath.Join(t.TempDir(), "absent.json")); err == nil {
		t.Fatal("expected an error for a missing file")
	}
}

func TestLoadOptionsRejectsBadSyntax(t *testing.T) {
	path := filepath.Join(t.TempDir(), "browserdb.json")
	if err := os.WriteFile(path, []byte(`{"max_memory": }`), 0o644); err != nil {
		t.Fatal(err)
	}

	if _, err := LoadOptions(path); err == nil {
		t.Fatal("expected a parse error")
	}
}
