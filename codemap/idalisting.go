package codemap

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/alecthomas/participle/v2"
	"github.com/alecthomas/participle/v2/lexer"

	"github.com/retrodos/mzretools/address"
	"github.com/retrodos/mzretools/errs"
)

// IDAWarningBanner accompanies every map built by LoadIDA (spec §4.5:
// "produces a best-effort map with a warning banner"). An IDA listing
// names segments symbolically and never states a load module size, so
// the segment numbering and the end of each proc/data item are inferred
// rather than read directly; the caller should treat the result as a
// starting point, not a verified map.
const IDAWarningBanner = "warning: map reconstructed from an IDA listing is best-effort; review routine, segment and variable boundaries by hand"

// idaLexer tokenizes one line of an IDA .lst listing: a symbolic
// "segment:offset" address prefix (the offset printed without the "0x"
// prefix mzmap's own format uses), directive keywords and labels, and
// the odd quote or comma found in segment class strings ('CODE').
// Trailing ";" comments are stripped before a line ever reaches this
// lexer, so no Comment rule is needed here.
var idaLexer = lexer.MustSimple([]lexer.SimpleRule{
	{Name: "Ident", Pattern: `[A-Za-z_.$?@][A-Za-z0-9_.$?@]*`},
	{Name: "Hex", Pattern: `[0-9][0-9A-Fa-f]*[Hh]?`},
	{Name: "Colon", Pattern: `:`},
	{Name: "Punct", Pattern: `['",]`},
	{Name: "Whitespace", Pattern: `[ \t]+`},
	{Name: "EOL", Pattern: `\r?\n`},
})

// idaSegDirLine matches a "<seg>:<off> segment ..." or "<seg>:<off> ends"
// line; everything past the directive is discarded.
type idaSegDirLine struct {
	Seg  string   `parser:"@Ident ':'"`
	Off  string   `parser:"@Hex"`
	Kind string   `parser:"@('segment'|'ends')"`
	Rest []string `parser:"(@Ident | @Hex | @Punct)*"`
}

// idaProcDirLine matches a "<seg>:<off> <name> proc [near|far]" or
// "<seg>:<off> <name> endp" line.
type idaProcDirLine struct {
	Seg  string   `parser:"@Ident ':'"`
	Off  string   `parser:"@Hex"`
	Name string   `parser:"@Ident"`
	Kind string   `parser:"@('proc'|'endp')"`
	Rest []string `parser:"(@Ident | @Hex | @Punct)*"`
}

// idaDataDirLine matches a "<seg>:<off> name db|dw|dd ..." line. The
// label is absent on the continuation lines of a multi-line declaration;
// LoadIDA skips those lines before parsing, since the optional Name would
// otherwise take the directive keyword itself.
type idaDataDirLine struct {
	Seg  string   `parser:"@Ident ':'"`
	Off  string   `parser:"@Hex"`
	Name *string  `parser:"@Ident?"`
	Dir  string   `parser:"@('db'|'dw'|'dd')"`
	Rest []string `parser:"(@Ident | @Hex | @Punct)*"`
}

var (
	idaSegDirParser  = participle.MustBuild[idaSegDirLine](participle.Lexer(idaLexer), participle.Elide("Whitespace"))
	idaProcDirParser = participle.MustBuild[idaProcDirLine](participle.Lexer(idaLexer), participle.Elide("Whitespace"))
	idaDataDirParser = participle.MustBuild[idaDataDirLine](participle.Lexer(idaLexer), participle.Elide("Whitespace"))
)

// idaKeywords are the directives LoadIDA recognizes (spec §4.5); any
// line that carries none of them past its address prefix is assumed to
// be an ordinary instruction or assembler directive and is skipped.
var idaKeywords = map[string]bool{
	"segment": true, "ends": true,
	"proc": true, "endp": true,
	"db": true, "dw": true, "dd": true,
}

func idaLineKeyword(fields []string) string {
	for _, f := range fields {
		if idaKeywords[strings.ToLower(f)] {
			return strings.ToLower(f)
		}
	}
	return ""
}

func idaHex(s string) (uint16, error) {
	s = strings.TrimSuffix(strings.TrimSuffix(s, "h"), "H")
	v, err := strconv.ParseUint(s, 16, 16)
	if err != nil {
		return 0, fmt.Errorf("%w: invalid hex value %q", errs.ErrParse, s)
	}
	return uint16(v), nil
}

// idaSegmentType guesses a segment's type from its declaration line; IDA
// prints the class as a quoted string, e.g. "segment byte public 'CODE'
// use16".
func idaSegmentType(line string) address.SegmentType {
	upper := strings.ToUpper(line)
	switch {
	case strings.Contains(upper, "'DATA'"):
		return address.SegData
	case strings.Contains(upper, "'STACK'"):
		return address.SegStack
	default:
		return address.SegCode
	}
}

// idaSegments synthesizes a stable, non-overlapping paragraph number for
// each symbolic segment name, in order of first appearance. IDA listings
// never state the numeric base of a segment, only its symbolic name, so
// this is an approximation: segments are spaced 0x1000 paragraphs apart,
// enough room for a 64 KB segment's worth of code or data not to bleed
// into the next one once relocated.
type idaSegments struct {
	next uint16
	num  map[string]uint16
}

func newIDASegments() *idaSegments { return &idaSegments{num: map[string]uint16{}} }

func (s *idaSegments) resolve(name string) uint16 {
	if n, ok := s.num[name]; ok {
		return n
	}
	n := s.next
	s.num[name] = n
	s.next += 0x1000
	return n
}

type idaProcState struct {
	name  string
	begin address.Address
}

// LoadIDA does a best-effort reconstruction of a code map from an IDA
// disassembly listing (spec §4.5 "Load from IDA listing"). It recognizes
// `segment`/`ends`, `proc`/`endp` and `db`/`dw`/`dd` directives; mnemonics,
// operands and comments are discarded. This is a recovery aid for when no
// real scan or linker map is available, not a substitute for one — the
// returned map always has IDA set, and callers should surface
// IDAWarningBanner to whoever asked for the load.
func LoadIDA(path string, reloc uint16) (*CodeMap, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: unable to read IDA listing %s: %v", errs.ErrIO, path, err)
	}
	m := New(reloc, 0)
	m.IDA = true

	segs := newIDASegments()
	segTypes := map[string]address.SegmentType{}
	segAdded := map[string]bool{}
	var proc *idaProcState
	var maxOff uint32

	resolveAddr := func(segName, offHex string) (address.Address, error) {
		off, err := idaHex(offHex)
		if err != nil {
			return address.Address{}, err
		}
		if uint32(off) > maxOff {
			maxOff = uint32(off)
		}
		raw := address.Address{Segment: segs.resolve(segName), Offset: off}
		return raw.Relocate(reloc)
	}

	for lineNum, raw := range strings.Split(string(data), "\n") {
		line := raw
		if idx := strings.IndexByte(line, ';'); idx >= 0 {
			line = line[:idx]
		}
		line = strings.TrimRight(line, "\r")
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}
		fields := strings.Fields(trimmed)
		if len(fields) < 2 {
			continue
		}
		keyword := idaLineKeyword(fields[1:])
		if keyword == "" {
			continue
		}

		switch keyword {
		case "segment", "ends":
			pl, err := idaSegDirParser.ParseString("", trimmed)
			if err != nil {
				return nil, fmt.Errorf("%w: %s:%d: %v", errs.ErrParse, path, lineNum+1, err)
			}
			if keyword == "segment" {
				segTypes[pl.Seg] = idaSegmentType(trimmed)
			}
			addr, err := resolveAddr(pl.Seg, pl.Off)
			if err != nil {
				return nil, fmt.Errorf("%w: %s:%d: %v", errs.ErrParse, path, lineNum+1, err)
			}
			if !segAdded[pl.Seg] {
				m.AddSegment(address.Segment{Name: pl.Seg, Type: segTypes[pl.Seg], Address: addr.Segment})
				segAdded[pl.Seg] = true
			}

		case "proc", "endp":
			pl, err := idaProcDirParser.ParseString("", trimmed)
			if err != nil {
				return nil, fmt.Errorf("%w: %s:%d: %v", errs.ErrParse, path, lineNum+1, err)
			}
			addr, err := resolveAddr(pl.Seg, pl.Off)
			if err != nil {
				return nil, fmt.Errorf("%w: %s:%d: %v", errs.ErrParse, path, lineNum+1, err)
			}
			if keyword == "proc" {
				proc = &idaProcState{name: pl.Name, begin: addr}
				continue
			}
			if proc == nil || proc.name != pl.Name {
				// orphan endp, nothing to close off against: skip it
				continue
			}
			r := NewRoutine(proc.name, address.NewBlock(proc.begin, addr))
			r.Reachable = append(r.Reachable, r.Extents)
			if err := m.AddRoutine(r); err != nil {
				return nil, fmt.Errorf("%w: %s:%d: %v", errs.ErrParse, path, lineNum+1, err)
			}
			proc = nil

		case "db", "dw", "dd":
			if strings.ToLower(fields[1]) == keyword {
				// unlabelled continuation line: no variable to record
				continue
			}
			pl, err := idaDataDirParser.ParseString("", trimmed)
			if err != nil {
				return nil, fmt.Errorf("%w: %s:%d: %v", errs.ErrParse, path, lineNum+1, err)
			}
			if pl.Name == nil {
				continue
			}
			addr, err := resolveAddr(pl.Seg, pl.Off)
			if err != nil {
				return nil, fmt.Errorf("%w: %s:%d: %v", errs.ErrParse, path, lineNum+1, err)
			}
			v := Variable{Name: *pl.Name, Addr: addr}
			if strings.Contains(trimmed, "?") {
				v.BSS = true
			}
			m.AddVariable(v)
		}
	}

	m.MapSize = maxOff + 1
	m.Order()
	return m, nil
}
