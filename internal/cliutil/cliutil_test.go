package cliutil_test

import (
	"testing"

	"github.com/retrodos/mzretools/internal/cliutil"
)

func TestParseFileArgPlainPath(t *testing.T) {
	path, spec, err := cliutil.ParseFileArg("game.exe")
	if err != nil {
		t.Fatalf("ParseFileArg: %v", err)
	}
	if path != "game.exe" {
		t.Errorf("path = %q, want game.exe", path)
	}
	if spec.HasOffset || spec.HasStop || spec.HasPattern {
		t.Errorf("spec = %+v, want all-zero", spec)
	}
}

func TestParseFileArgOffset(t *testing.T) {
	path, spec, err := cliutil.ParseFileArg("game.exe:0x1234")
	if err != nil {
		t.Fatalf("ParseFileArg: %v", err)
	}
	if path != "game.exe" {
		t.Errorf("path = %q, want game.exe", path)
	}
	if !spec.HasOffset || spec.Offset != 0x1234 {
		t.Errorf("spec = %+v, want offset 0x1234", spec)
	}
	if spec.HasStop {
		t.Errorf("spec.HasStop = true, want false")
	}
}

func TestParseFileArgOffsetRange(t *testing.T) {
	_, spec, err := cliutil.ParseFileArg("game.exe:0x100-0x200")
	if err != nil {
		t.Fatalf("ParseFileArg: %v", err)
	}
	if !spec.HasOffset || spec.Offset != 0x100 {
		t.Errorf("spec.Offset = %#x, want 0x100", spec.Offset)
	}
	if !spec.HasStop || spec.StopOffset != 0x200 {
		t.Errorf("spec.StopOffset = %#x, want 0x200 (HasStop=%v)", spec.StopOffset, spec.HasStop)
	}
}

func TestParseFileArgPattern(t *testing.T) {
	_, spec, err := cliutil.ParseFileArg("game.exe:[ab12??ea]")
	if err != nil {
		t.Fatalf("ParseFileArg: %v", err)
	}
	if !spec.HasPattern {
		t.Fatalf("spec.HasPattern = false, want true")
	}
	want := []struct {
		b  byte
		wc bool
	}{{0xab, false}, {0x12, false}, {0, true}, {0xea, false}}
	if len(spec.Pattern) != len(want) {
		t.Fatalf("len(Pattern) = %d, want %d", len(spec.Pattern), len(want))
	}
	for i, w := range want {
		if spec.Pattern[i].Wildcard != w.wc {
			t.Errorf("Pattern[%d].Wildcard = %v, want %v", i, spec.Pattern[i].Wildcard, w.wc)
			continue
		}
		if !w.wc && spec.Pattern[i].Byte != w.b {
			t.Errorf("Pattern[%d].Byte = %#x, want %#x", i, spec.Pattern[i].Byte, w.b)
		}
	}
}

func TestParseFileArgInvalidPatternLength(t *testing.T) {
	if _, _, err := cliutil.ParseFileArg("game.exe:[abc]"); err == nil {
		t.Fatalf("ParseFileArg: expected error for odd-length pattern")
	}
}
