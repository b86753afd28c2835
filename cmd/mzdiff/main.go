// Command mzdiff compares two DOS MZ executables instruction by
// instruction, accounting for code-layout differences (spec §6.3
// "mzdiff [flags] ref.exe[:ep] cmp.exe[:ep]").
package main

import (
	"fmt"
	"log"
	"os"

	"github.com/spf13/cobra"

	"github.com/retrodos/mzretools/address"
	"github.com/retrodos/mzretools/codemap"
	"github.com/retrodos/mzretools/comparator"
	"github.com/retrodos/mzretools/internal/cliutil"
	"github.com/retrodos/mzretools/memory"
	"github.com/retrodos/mzretools/mzexe"
)

var (
	mapPath    string
	loose      bool
	variant    bool
	noCall     bool
	includeAsm bool
	refSkip    int
	tgtSkip    int
	ctxCount   int
	verbose    bool
)

const loadSegment = 0x1000

func main() {
	log.SetFlags(0)
	root := &cobra.Command{
		Use:   "mzdiff [flags] ref.exe[:ep] cmp.exe[:ep]",
		Short: "Compare two DOS MZ executables instruction by instruction",
		Args:  cobra.ExactArgs(2),
		RunE:  run,
	}
	fs := root.Flags()
	fs.StringVar(&mapPath, "map", "", "code map of the reference executable (recommended, otherwise limited)")
	fs.BoolVar(&loose, "loose", false, "allow non-strict matching, e.g. literal argument differences")
	fs.BoolVar(&variant, "variant", false, "treat instruction variants that do the same thing as matching")
	fs.BoolVar(&noCall, "nocall", false, "do not follow calls, useful for comparing a single routine")
	fs.BoolVar(&includeAsm, "asm", false, "descend into routines marked as assembly in the map")
	fs.IntVar(&refSkip, "rskip", 0, "skip up to this many consecutive mismatching instructions in the reference")
	fs.IntVar(&tgtSkip, "tskip", 0, "skip up to this many consecutive mismatching instructions in the target")
	fs.IntVar(&ctxCount, "ctx", 10, "number of context instructions to show after a mismatch")
	fs.BoolVar(&verbose, "verbose", false, "show per-routine comparison results")

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, args []string) error {
	baseArg, cmpArg := args[0], args[1]

	refEntry, refStop, hasRefStop, refMz, refImg, err := loadSide(baseArg)
	if err != nil {
		return err
	}
	log.Printf("reference %s, load module size %d, entrypoint at %s", baseArg, refMz.LoadModuleSize(), refEntry)

	tgtEntry, _, _, tgtMz, tgtImg, err := loadSide(cmpArg)
	if err != nil {
		return err
	}
	log.Printf("target %s, load module size %d, entrypoint at %s", cmpArg, tgtMz.LoadModuleSize(), tgtEntry)

	var refMap *codemap.CodeMap
	if mapPath != "" {
		refMap, err = codemap.Load(mapPath, loadSegment)
		if err != nil {
			return err
		}
	} else {
		refMap = codemap.New(loadSegment, refMz.LoadModuleSize())
		routine := codemap.NewRoutine("start", address.NewBlock(refEntry, refEntry.Add(int32(refMz.LoadModuleSize())-1)))
		routine.Reachable = append(routine.Reachable, routine.Extents)
		if err := refMap.AddRoutine(routine); err != nil {
			return err
		}
	}

	opts := comparator.Options{
		Loose:      loose,
		Variant:    variant,
		NoCall:     noCall,
		IncludeAsm: includeAsm,
		RefSkip:    refSkip,
		TargetSkip: tgtSkip,
		CtxCount:   ctxCount,
	}
	if hasRefStop {
		opts.StopAddr = refStop
	}

	c, err := comparator.New(refImg, tgtImg, refMap, opts)
	if err != nil {
		return err
	}
	result, err := c.Compare()
	if err != nil {
		return err
	}

	for _, rr := range result.Routines {
		if !rr.Matched {
			fmt.Printf("MISMATCH in %s at %s / %s\n", rr.Name, rr.Mismatch.RefAddr, rr.Mismatch.TgtAddr)
			fmt.Print(rr.Mismatch.Context)
		} else if verbose {
			fmt.Printf("MATCH %s (%d instructions compared)\n", rr.Name, rr.Compared)
		}
	}
	for _, name := range result.Missed {
		fmt.Printf("routine never reached by the comparison: %s\n", name)
	}

	if result.AllMatched {
		fmt.Println("executables match")
		return nil
	}
	fmt.Println("executables differ")
	os.Exit(1)
	return nil
}

func loadSide(arg string) (address.Address, address.Address, bool, *mzexe.Image, *memory.Image, error) {
	path, spec, err := cliutil.ParseFileArg(arg)
	if err != nil {
		return address.Address{}, address.Address{}, false, nil, nil, err
	}
	mz, mem, err := cliutil.LoadExecutable(path, loadSegment)
	if err != nil {
		return address.Address{}, address.Address{}, false, nil, nil, err
	}
	entry, stop, hasStop, err := cliutil.ResolveEntrypoint(spec, loadSegment, mem, mz.Entrypoint())
	if err != nil {
		return address.Address{}, address.Address{}, false, nil, nil, err
	}
	return entry, stop, hasStop, mz, mem, nil
}
