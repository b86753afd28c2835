// Command mzdup searches a target executable for routines matching a
// signature library built by mzsig, and marks any found in the target's
// code map (spec §6.3 "mzdup [flags] sigfile tgt.exe tgt.map").
package main

import (
	"fmt"
	"log"
	"os"

	"github.com/spf13/cobra"

	"github.com/retrodos/mzretools/codemap"
	"github.com/retrodos/mzretools/errs"
	"github.com/retrodos/mzretools/memory"
	"github.com/retrodos/mzretools/mzexe"
	"github.com/retrodos/mzretools/signature"
)

var (
	minSize int
	maxDist int
)

const loadSegment = 0x1000

func main() {
	log.SetFlags(0)
	root := &cobra.Command{
		Use:   "mzdup [flags] sigfile tgt.exe tgt.map",
		Short: "Find routines in a target executable matching a signature library",
		Args:  cobra.ExactArgs(3),
		RunE:  run,
	}
	fs := root.Flags()
	fs.IntVar(&minSize, "minsize", 15, "don't search for duplicates of routines smaller than this many instructions")
	fs.IntVar(&maxDist, "maxdist", 10, "maximum edit distance accepted as a duplicate, as a percentage of the routine's instruction count")

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, args []string) error {
	sigPath, tgtExePath, tgtMapPath := args[0], args[1], args[2]

	sigs, err := signature.Load(sigPath)
	if err != nil {
		return err
	}

	mz, err := mzexe.Load(tgtExePath)
	if err != nil {
		return err
	}
	if err := mz.Load(loadSegment); err != nil {
		return err
	}
	img, err := memory.NewAt(loadSegment, mz.LoadModuleData())
	if err != nil {
		return err
	}

	tgtMap, err := codemap.Load(tgtMapPath, loadSegment)
	if err != nil {
		return err
	}
	if tgtMap.MapSize != mz.LoadModuleSize() {
		return fmt.Errorf("%w: target map size %d does not match load module size %d", errs.ErrArg, tgtMap.MapSize, mz.LoadModuleSize())
	}

	candidates, err := signature.Build(tgtMap, img, 1, 0)
	if err != nil {
		return err
	}
	dups := signature.FindDuplicates(sigs, candidates.Items(), minSize, uint32(maxDist))
	if len(dups) == 0 {
		log.Println("no duplicates found")
		return nil
	}

	for _, d := range dups {
		log.Printf("%s matches %s (distance %d)", d.FoundRoutine, d.LibraryRoutine, d.Distance)
		r, err := tgtMap.GetRoutineByName(d.FoundRoutine)
		if err != nil {
			continue
		}
		if err := r.SetFlag("duplicate", true); err != nil {
			return err
		}
	}

	outPath := tgtMapPath + ".dup"
	if err := tgtMap.Save(outPath, loadSegment, true); err != nil {
		return err
	}
	log.Printf("saved %s with %d duplicate(s) marked", outPath, len(dups))
	return nil
}
