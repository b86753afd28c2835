// Command mzmap scans a DOS MZ executable for routines and variables
// and saves the result as an editable code map, or prints a summary of
// an existing one (spec §6.3 "mzmap ... file.exe[:ep] file.map").
package main

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/retrodos/mzretools/address"
	"github.com/retrodos/mzretools/codemap"
	"github.com/retrodos/mzretools/explorer"
	"github.com/retrodos/mzretools/internal/cliutil"
)

var (
	loadSegStr string
	linkmapPath string
	overwrite   bool
	brief       bool
	format      bool
	verbose     bool
)

func main() {
	log.SetFlags(0)
	root := &cobra.Command{
		Use:   "mzmap [flags] file.exe[:ep] file.map",
		Short: "Build or print a code map for a DOS MZ executable",
		Args:  cobra.RangeArgs(1, 2),
		RunE:  run,
	}
	fs := root.Flags()
	fs.StringVar(&loadSegStr, "load", "0x1000", "load segment override (hex)")
	fs.StringVar(&linkmapPath, "linkmap", "", "add segments/variables from a Microsoft C linker map to the built map")
	fs.BoolVar(&overwrite, "overwrite", false, "overwrite the output map file if it already exists")
	fs.BoolVar(&brief, "brief", false, "only show uncompleted and unclaimed areas in the summary")
	fs.BoolVar(&format, "format", false, "print routines in map-file-writable form")
	fs.BoolVar(&verbose, "verbose", false, "print the map summary after building")

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, args []string) error {
	loadSegment, err := parseHexSeg(loadSegStr)
	if err != nil {
		return err
	}

	if len(args) == 1 {
		var m *codemap.CodeMap
		if strings.EqualFold(filepath.Ext(args[0]), ".lst") {
			m, err = codemap.LoadIDA(args[0], loadSegment)
		} else {
			m, err = codemap.Load(args[0], loadSegment)
		}
		if err != nil {
			return err
		}
		if m.IDA {
			log.Println(codemap.IDAWarningBanner)
		}
		fmt.Print(m.GetSummary().Report(brief))
		if format {
			fmt.Print(m.FormatRoutines(loadSegment))
		}
		return nil
	}

	exeArg, mapPath := args[0], args[1]
	if !overwrite {
		if _, err := os.Stat(mapPath); err == nil {
			return fmt.Errorf("output file already exists: %s", mapPath)
		}
	}

	exePath, epSpec, err := cliutil.ParseFileArg(exeArg)
	if err != nil {
		return err
	}
	mz, mem, err := cliutil.LoadExecutable(exePath, loadSegment)
	if err != nil {
		return err
	}
	entry, stop, hasStop, err := cliutil.ResolveEntrypoint(epSpec, loadSegment, mem, mz.Entrypoint())
	if err != nil {
		return err
	}
	log.Printf("loaded %s, load module size %d, entrypoint at %s", exePath, mz.LoadModuleSize(), entry)

	codeBegin := address.Address{Segment: loadSegment, Offset: 0}
	codeExtents := address.NewBlock(codeBegin, codeBegin.Add(int32(mz.LoadModuleSize())-1))
	opts := explorer.Options{LogSink: func(s string) { log.Println(s) }}
	if hasStop {
		opts.StopAddr = stop
	}
	ex := explorer.New(mem, entry, codeExtents, opts)
	if err := ex.Explore(); err != nil {
		return err
	}

	var segs []address.Segment
	var linkVars []codemap.Variable
	if linkmapPath != "" {
		segs, linkVars, err = codemap.LoadLinkMap(linkmapPath, loadSegment)
		if err != nil {
			return err
		}
		log.Printf("linker map %s: %d segments, %d variables", linkmapPath, len(segs), len(linkVars))
	}

	m := ex.BuildMap(segs, loadSegment)
	if m.Empty() {
		return fmt.Errorf("unable to find any routines in %s", exePath)
	}
	for _, v := range linkVars {
		m.AddVariable(v)
	}
	m.Order()

	if verbose {
		fmt.Print(m.GetSummary().Report(brief))
		if format {
			fmt.Print(m.FormatRoutines(loadSegment))
		}
	}
	if err := m.Save(mapPath, loadSegment, true); err != nil {
		return err
	}
	log.Printf("saved %s; review routine names and block ranges, this tool is not perfect", mapPath)
	return nil
}

func parseHexSeg(s string) (uint16, error) {
	v, err := strconv.ParseUint(strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X"), 16, 16)
	if err != nil {
		return 0, fmt.Errorf("invalid segment value %q: %w", s, err)
	}
	return uint16(v), nil
}
