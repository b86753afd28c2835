// Command mzhdr prints or extracts an MZ executable's load module
// (spec §6.3 "mzhdr file.exe [-l|-s|-p seg out]").
package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/retrodos/mzretools/mzexe"
)

var (
	onlyOffset bool
	onlySize   bool
	patchSeg   string
	patchOut   string
)

func main() {
	root := &cobra.Command{
		Use:   "mzhdr file.exe",
		Short: "Print or extract an MZ executable's load module",
		Args:  cobra.ExactArgs(1),
		RunE:  run,
	}
	fs := root.Flags()
	fs.BoolVarP(&onlyOffset, "offset", "l", false, "only print the offset of the load module")
	fs.BoolVarP(&onlySize, "size", "s", false, "only print the size of the load module")
	fs.StringVarP(&patchSeg, "patch-segment", "p", "", "relocate to this segment (hex) and dump the load module")
	fs.StringVarP(&patchOut, "patch-out", "o", "", "output path for --patch-segment")

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, args []string) error {
	path := args[0]
	mz, err := mzexe.Load(path)
	if err != nil {
		return err
	}

	switch {
	case onlyOffset:
		fmt.Printf("0x%x\n", mz.LoadModuleOffset())
	case onlySize:
		fmt.Printf("0x%x\n", mz.LoadModuleSize())
	case patchSeg != "":
		if patchOut == "" {
			return fmt.Errorf("--patch-segment requires --patch-out")
		}
		seg, err := strconv.ParseUint(strings.TrimPrefix(strings.TrimPrefix(patchSeg, "0x"), "0X"), 16, 16)
		if err != nil {
			return fmt.Errorf("invalid --patch-segment value %q: %w", patchSeg, err)
		}
		if err := mz.Load(uint16(seg)); err != nil {
			return err
		}
		if err := os.WriteFile(patchOut, mz.LoadModuleData(), 0644); err != nil {
			return fmt.Errorf("writing %s: %w", patchOut, err)
		}
	default:
		fmt.Println(mz.Dump())
	}
	return nil
}
