package codemap

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/retrodos/mzretools/address"
	"github.com/retrodos/mzretools/errs"
)

// LoadLinkMap does a best-effort parse of a Microsoft C linker .map
// file's "Start Length Name Class" segment table and "Publics by Name"
// symbol table (spec §6.2). mzmap's `--linkmap` option adds the parsed
// segments and variables to the map it builds after the scan; they do
// not seed the scan itself. Anything it can't confidently parse is skipped rather
// than treated as fatal — linker maps vary across toolchain versions
// and this is advisory input, not a map the rest of the module depends
// on for correctness.
func LoadLinkMap(path string, loadSegment uint16) ([]address.Segment, []Variable, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: unable to read linker map %s: %v", errs.ErrIO, path, err)
	}
	defer f.Close()

	const (
		sectionNone = iota
		sectionSegments
		sectionPublics
	)
	section := sectionNone
	var segs []address.Segment
	var vars []Variable

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		trimmed := strings.TrimSpace(scanner.Text())
		switch {
		case trimmed == "":
			continue
		case strings.HasPrefix(trimmed, "Start") && strings.Contains(trimmed, "Length"):
			section = sectionSegments
			continue
		case strings.Contains(trimmed, "Publics by Name"):
			section = sectionPublics
			continue
		case strings.HasPrefix(trimmed, "Address"):
			continue
		}

		fields := strings.Fields(trimmed)
		if len(fields) == 0 {
			continue
		}
		switch section {
		case sectionSegments:
			if len(fields) < 4 {
				continue
			}
			seg, _, err := parseSegOff(fields[0])
			if err != nil {
				continue
			}
			kind := address.SegCode
			switch strings.ToUpper(fields[len(fields)-1]) {
			case "DATA", "BSS", "CONST":
				kind = address.SegData
			case "STACK":
				kind = address.SegStack
			}
			segs = append(segs, address.Segment{Name: fields[2], Type: kind, Address: seg + loadSegment})
		case sectionPublics:
			if len(fields) < 2 {
				continue
			}
			seg, off, err := parseSegOff(fields[0])
			if err != nil {
				continue
			}
			vars = append(vars, Variable{Name: fields[1], Addr: address.Address{Segment: seg + loadSegment, Offset: off}})
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, nil, fmt.Errorf("%w: %v", errs.ErrIO, err)
	}
	return segs, vars, nil
}

func parseSegOff(s string) (uint16, uint16, error) {
	parts := strings.SplitN(s, ":", 2)
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("%w: malformed segment:offset %q", errs.ErrParse, s)
	}
	seg, err := strconv.ParseUint(parts[0], 16, 16)
	if err != nil {
		return 0, 0, fmt.Errorf("%w: invalid segment %q", errs.ErrParse, parts[0])
	}
	off, err := strconv.ParseUint(parts[1], 16, 32)
	if err != nil {
		return 0, 0, fmt.Errorf("%w: invalid offset %q", errs.ErrParse, parts[1])
	}
	return uint16(seg), uint16(off), nil
}
