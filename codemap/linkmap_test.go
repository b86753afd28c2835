package codemap_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/retrodos/mzretools/codemap"
)

const sampleLinkMap = ` Start         Length     Name                   Class

 0001:00000000 00000a12H  _TEXT                  CODE
 0002:00000000 00000100H  _DATA                  DATA

  Address         Publics by Name

 0001:00000000       _main
 0002:00000010       _g_counter
`

func TestLoadLinkMapParsesSegmentsAndPublics(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sample.map")
	if err := os.WriteFile(path, []byte(sampleLinkMap), 0644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	segs, vars, err := codemap.LoadLinkMap(path, 0x1000)
	if err != nil {
		t.Fatalf("LoadLinkMap: %v", err)
	}
	if len(segs) != 2 {
		t.Fatalf("len(segs) = %d, want 2", len(segs))
	}
	if len(vars) != 2 {
		t.Fatalf("len(vars) = %d, want 2", len(vars))
	}
	if vars[0].Name != "_main" || vars[1].Name != "_g_counter" {
		t.Errorf("vars = %+v, want _main then _g_counter", vars)
	}
	if vars[1].Addr.Offset != 0x10 {
		t.Errorf("vars[1].Addr.Offset = %#x, want 0x10", vars[1].Addr.Offset)
	}
}
