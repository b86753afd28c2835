// Command mzptr scans an executable's routines for memory operands and
// plausible immediates matching a known variable in its code map (spec
// §6.3 "mzptr exe map").
package main

import (
	"fmt"
	"log"
	"os"

	"github.com/spf13/cobra"

	"github.com/retrodos/mzretools/codemap"
	"github.com/retrodos/mzretools/dataref"
	"github.com/retrodos/mzretools/errs"
	"github.com/retrodos/mzretools/memory"
	"github.com/retrodos/mzretools/mzexe"
)

var maxDelta uint16

const loadSegment = 0x1000

func main() {
	log.SetFlags(0)
	root := &cobra.Command{
		Use:   "mzptr exe map",
		Short: "Find references to known variables in an executable's routines",
		Args:  cobra.ExactArgs(2),
		RunE:  run,
	}
	root.Flags().Uint16Var(&maxDelta, "maxdelta", 0, "accept operand offsets within this many bytes of a known variable")

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, args []string) error {
	exePath, mapPath := args[0], args[1]

	m, err := codemap.Load(mapPath, loadSegment)
	if err != nil {
		return err
	}

	mz, err := mzexe.Load(exePath)
	if err != nil {
		return err
	}
	if err := mz.Load(loadSegment); err != nil {
		return err
	}
	if m.MapSize != mz.LoadModuleSize() {
		return fmt.Errorf("%w: map size %d does not match load module size %d", errs.ErrArg, m.MapSize, mz.LoadModuleSize())
	}
	img, err := memory.NewAt(loadSegment, mz.LoadModuleData())
	if err != nil {
		return err
	}

	refs, err := dataref.Find(m, img, dataref.Options{MaxDelta: maxDelta})
	if err != nil {
		return err
	}
	for _, r := range refs {
		fmt.Println(r.String())
	}
	log.Printf("found %d candidate reference(s)", len(refs))
	return nil
}
