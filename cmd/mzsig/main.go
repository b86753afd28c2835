// Command mzsig extracts per-routine signatures from an executable at
// the locations given by a code map, for later duplicate search with
// mzdup (spec §6.3 "mzsig [flags] exe map out").
package main

import (
	"fmt"
	"log"
	"os"

	"github.com/spf13/cobra"

	"github.com/retrodos/mzretools/codemap"
	"github.com/retrodos/mzretools/memory"
	"github.com/retrodos/mzretools/mzexe"
	"github.com/retrodos/mzretools/signature"
)

var overwrite bool

const loadSegment = 0

func main() {
	log.SetFlags(0)
	root := &cobra.Command{
		Use:   "mzsig [flags] exe map out",
		Short: "Extract routine signatures from an executable at map locations",
		Args:  cobra.ExactArgs(3),
		RunE:  run,
	}
	root.Flags().BoolVar(&overwrite, "overwrite", false, "overwrite the output file if it already exists")

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, args []string) error {
	exePath, mapPath, outPath := args[0], args[1], args[2]

	if !overwrite {
		if _, err := os.Stat(outPath); err == nil {
			return fmt.Errorf("output file already exists: %s", outPath)
		}
	}

	m, err := codemap.Load(mapPath, loadSegment)
	if err != nil {
		return err
	}
	log.Printf("loaded map %s: %d routines, %d variables", mapPath, m.RoutineCount(), m.VariableCount())

	mz, err := mzexe.Load(exePath)
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

	lib, err := signature.Build(m, img, 1, 0)
	if err != nil {
		return err
	}
	log.Printf("extracted signatures from %d routines, saving to %s", lib.Count(), outPath)
	return lib.Save(outPath)
}
