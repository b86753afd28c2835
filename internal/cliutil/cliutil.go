// Package cliutil holds the small amount of plumbing shared by the six
// cmd/ front ends: loading an MZ executable into a flat image, and
// parsing the `file.exe[:ep]` entrypoint-suffix grammar (spec §6.3)
// that every front end taking an executable argument accepts.
package cliutil

import (
	"strconv"
	"strings"

	"github.com/retrodos/mzretools/address"
	"github.com/retrodos/mzretools/errs"
	"github.com/retrodos/mzretools/memory"
	"github.com/retrodos/mzretools/mzexe"

	"fmt"
)

// EntrypointSpec is the parsed form of a `:ep` suffix: either a plain
// offset (with an optional stop-range offset), or a hex-byte search
// pattern, relative to the executable's load segment.
type EntrypointSpec struct {
	HasOffset  bool
	Offset     uint16
	HasStop    bool
	StopOffset uint16
	HasPattern bool
	Pattern    []memory.Pattern
}

// ParseFileArg splits "path[:ep]" into the bare path and its parsed
// entrypoint spec (spec §6.3: "`:0x1234`", "`:0x1234-0x2000`" for a
// stop range, or a bracketed hex-byte pattern with `??` wildcards).
func ParseFileArg(arg string) (string, EntrypointSpec, error) {
	idx := strings.IndexByte(arg, ':')
	if idx < 0 {
		return arg, EntrypointSpec{}, nil
	}
	path := arg[:idx]
	rest := arg[idx+1:]
	if strings.HasPrefix(rest, "[") && strings.HasSuffix(rest, "]") {
		pat, err := parseHexPattern(rest[1 : len(rest)-1])
		if err != nil {
			return "", EntrypointSpec{}, err
		}
		return path, EntrypointSpec{HasPattern: true, Pattern: pat}, nil
	}
	parts := strings.SplitN(rest, "-", 2)
	off, err := parseHexOffset(parts[0])
	if err != nil {
		return "", EntrypointSpec{}, err
	}
	spec := EntrypointSpec{HasOffset: true, Offset: off}
	if len(parts) == 2 {
		stop, err := parseHexOffset(parts[1])
		if err != nil {
			return "", EntrypointSpec{}, err
		}
		spec.HasStop = true
		spec.StopOffset = stop
	}
	return path, spec, nil
}

func parseHexOffset(s string) (uint16, error) {
	s = strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	v, err := strconv.ParseUint(s, 16, 16)
	if err != nil {
		return 0, fmt.Errorf("%w: invalid hex offset %q", errs.ErrArg, s)
	}
	return uint16(v), nil
}

// parseHexPattern turns a continuous run of hex-digit pairs (each pair
// either two hex digits or the literal wildcard "??") into a
// memory.Pattern slice.
func parseHexPattern(s string) ([]memory.Pattern, error) {
	if len(s)%2 != 0 {
		return nil, fmt.Errorf("%w: search pattern must have an even number of hex characters: %q", errs.ErrArg, s)
	}
	pat := make([]memory.Pattern, 0, len(s)/2)
	for i := 0; i < len(s); i += 2 {
		pair := s[i : i+2]
		if pair == "??" {
			pat = append(pat, memory.Pattern{Wildcard: true})
			continue
		}
		v, err := strconv.ParseUint(pair, 16, 8)
		if err != nil {
			return nil, fmt.Errorf("%w: invalid search pattern byte %q", errs.ErrArg, pair)
		}
		pat = append(pat, memory.Pattern{Byte: byte(v)})
	}
	return pat, nil
}

// LoadExecutable opens an MZ file, relocates it at loadSegment, and
// copies its load module into a flat memory.Image at the same segment.
func LoadExecutable(path string, loadSegment uint16) (*mzexe.Image, *memory.Image, error) {
	mz, err := mzexe.Load(path)
	if err != nil {
		return nil, nil, err
	}
	if err := mz.Load(loadSegment); err != nil {
		return nil, nil, err
	}
	mem, err := memory.NewAt(loadSegment, mz.LoadModuleData())
	if err != nil {
		return nil, nil, err
	}
	return mz, mem, nil
}

// ResolveEntrypoint picks the effective entrypoint and optional stop
// address for one executable argument: a found search pattern wins,
// then an explicit offset, else the MZ header's own CS:IP relocated to
// loadSegment.
func ResolveEntrypoint(spec EntrypointSpec, loadSegment uint16, mem *memory.Image, headerEntry address.Address) (address.Address, address.Address, bool, error) {
	entry, err := headerEntry.Relocate(loadSegment)
	if err != nil {
		return address.Address{}, address.Address{}, false, err
	}
	switch {
	case spec.HasPattern:
		whole := address.NewBlock(address.Address{Segment: loadSegment, Offset: 0}, address.Address{Segment: loadSegment, Offset: 0xfffe})
		found, ok := mem.Find(spec.Pattern, whole)
		if !ok {
			return address.Address{}, address.Address{}, false, fmt.Errorf("%w: entrypoint search pattern not found in executable image", errs.ErrArg)
		}
		entry = found
	case spec.HasOffset:
		entry = address.Address{Segment: loadSegment, Offset: spec.Offset}
	}
	var stop address.Address
	if spec.HasStop {
		stop = address.Address{Segment: loadSegment, Offset: spec.StopOffset}
	}
	return entry, stop, spec.HasStop, nil
}
