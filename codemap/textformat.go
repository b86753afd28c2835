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

// mapLexer tokenizes one line of the map text format (spec §4.5): a
// keyword/name, punctuation, and hex/decimal numbers, ignoring
// whitespace and trailing comments.
var mapLexer = lexer.MustSimple([]lexer.SimpleRule{
	{Name: "Comment", Pattern: `#[^\n]*`},
	{Name: "Ident", Pattern: `[A-Za-z_$][A-Za-z0-9_$.]*`},
	{Name: "Hex", Pattern: `[0-9][0-9A-Fa-f]*`},
	{Name: "Colon", Pattern: `:`},
	{Name: "Dash", Pattern: `-`},
	{Name: "Whitespace", Pattern: `[ \t]+`},
	{Name: "EOL", Pattern: `\r?\n`},
})

// sizeLine matches "Size <hex>".
type sizeLine struct {
	Hex string `parser:"'Size' @Hex"`
}

// segLine matches "<name> CODE|DATA|STACK <seghex>".
type segLine struct {
	Name string `parser:"@Ident"`
	Type string `parser:"@('CODE'|'DATA'|'STACK')"`
	Addr string `parser:"@Hex"`
}

// blockRange matches "<begin>-<end>" segment-relative offsets, with an
// optional leading R/U tag for reachable/unreachable chunks.
type blockRange struct {
	Tag   string `parser:"@('R'|'U')?"`
	Begin string `parser:"@Hex"`
	End   string `parser:"'-' @Hex"`
}

// routineLine matches "<name>: <seg> NEAR|FAR <begin>-<end> [chunk|flag]*".
type routineLine struct {
	Name   string       `parser:"@Ident ':'"`
	Seg    string        `parser:"@Hex"`
	Kind   string        `parser:"@('NEAR'|'FAR')"`
	Extent blockRange    `parser:"@@"`
	Chunks []*blockRange `parser:"@@*"`
	Flags  []string      `parser:"@Ident*"`
}

// varLine matches "<name>: <seg> VAR <offsethex> [external] [bss]".
type varLine struct {
	Name  string   `parser:"@Ident ':'"`
	Seg   string   `parser:"@Hex 'VAR'"`
	Off   string   `parser:"@Hex"`
	Flags []string `parser:"@Ident*"`
}

var (
	sizeParser    = participle.MustBuild[sizeLine](participle.Lexer(mapLexer), participle.Elide("Whitespace"))
	segParser     = participle.MustBuild[segLine](participle.Lexer(mapLexer), participle.Elide("Whitespace"))
	routineParser = participle.MustBuild[routineLine](participle.Lexer(mapLexer), participle.Elide("Whitespace"))
	varParser     = participle.MustBuild[varLine](participle.Lexer(mapLexer), participle.Elide("Whitespace"))
)

func parseSegAddr(seghex string, offhex string) (address.Address, error) {
	seg, err := strconv.ParseUint(seghex, 16, 16)
	if err != nil {
		return address.Address{}, fmt.Errorf("%w: invalid segment %q", errs.ErrParse, seghex)
	}
	off, err := strconv.ParseUint(offhex, 16, 16)
	if err != nil {
		return address.Address{}, fmt.Errorf("%w: invalid offset %q", errs.ErrParse, offhex)
	}
	return address.Address{Segment: uint16(seg), Offset: uint16(off)}, nil
}

func parseRoutineFlags(r *Routine, flags []string) error {
	for _, f := range flags {
		switch strings.ToLower(f) {
		case "ignore", "complete", "external", "detached", "assembly", "duplicate":
			if err := r.SetFlag(strings.ToLower(f), true); err != nil {
				return err
			}
		default:
			return fmt.Errorf("%w: unknown routine flag %q", errs.ErrParse, f)
		}
	}
	return nil
}

// Load reads a code map from its text serialization (spec §4.5). Any
// block that collides with a previously loaded routine's extents or
// chunks fails the whole load with a ParseError.
func Load(path string, reloc uint16) (*CodeMap, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: unable to read code map %s: %v", errs.ErrIO, path, err)
	}
	m := New(reloc, 0)
	for lineNum, line := range strings.Split(string(data), "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, "#") {
			continue
		}
		if err := m.loadLine(trimmed, reloc); err != nil {
			return nil, fmt.Errorf("%w: %s:%d: %v", errs.ErrParse, path, lineNum+1, err)
		}
	}
	m.Order()
	return m, nil
}

func (m *CodeMap) loadLine(line string, reloc uint16) error {
	fields := strings.Fields(line)
	switch {
	case len(fields) >= 2 && fields[0] == "Size":
		sl, err := sizeParser.ParseString("", line)
		if err != nil {
			return err
		}
		v, err := strconv.ParseUint(sl.Hex, 16, 32)
		if err != nil {
			return err
		}
		m.MapSize = uint32(v)
		return nil
	case len(fields) >= 3 && (fields[1] == "CODE" || fields[1] == "DATA" || fields[1] == "STACK"):
		sl, err := segParser.ParseString("", line)
		if err != nil {
			return err
		}
		seg, err := strconv.ParseUint(sl.Addr, 16, 16)
		if err != nil {
			return err
		}
		var typ address.SegmentType
		switch sl.Type {
		case "CODE":
			typ = address.SegCode
		case "DATA":
			typ = address.SegData
		case "STACK":
			typ = address.SegStack
		}
		m.AddSegment(address.Segment{Name: sl.Name, Type: typ, Address: uint16(seg) + reloc})
		return nil
	case len(fields) >= 3 && fields[2] == "VAR":
		vl, err := varParser.ParseString("", line)
		if err != nil {
			return err
		}
		addr, err := parseSegAddr(vl.Seg, vl.Off)
		if err != nil {
			return err
		}
		reloAddr, err := addr.Relocate(reloc)
		if err != nil {
			return err
		}
		v := Variable{Name: vl.Name, Addr: reloAddr}
		for _, f := range vl.Flags {
			switch strings.ToLower(f) {
			case "external":
				v.External = true
			case "bss":
				v.BSS = true
			}
		}
		m.AddVariable(v)
		return nil
	case len(fields) >= 3 && (fields[2] == "NEAR" || fields[2] == "FAR"):
		rl, err := routineParser.ParseString("", line)
		if err != nil {
			return err
		}
		begin, err := parseSegAddr(rl.Seg, rl.Extent.Begin)
		if err != nil {
			return err
		}
		end, err := parseSegAddr(rl.Seg, rl.Extent.End)
		if err != nil {
			return err
		}
		begin, err = begin.Relocate(reloc)
		if err != nil {
			return err
		}
		end, err = end.Relocate(reloc)
		if err != nil {
			return err
		}
		r := NewRoutine(rl.Name, address.NewBlock(begin, end))
		r.Near = rl.Kind == "NEAR"
		for _, c := range rl.Chunks {
			cb, err := parseSegAddr(rl.Seg, c.Begin)
			if err != nil {
				return err
			}
			ce, err := parseSegAddr(rl.Seg, c.End)
			if err != nil {
				return err
			}
			cb, _ = cb.Relocate(reloc)
			ce, _ = ce.Relocate(reloc)
			block := address.NewBlock(cb, ce)
			if c.Tag == "U" {
				r.Unreachable = append(r.Unreachable, block)
			} else {
				r.Reachable = append(r.Reachable, block)
			}
		}
		if err := parseRoutineFlags(r, rl.Flags); err != nil {
			return err
		}
		return m.AddRoutine(r)
	default:
		return fmt.Errorf("unrecognized map line: %q", line)
	}
}

// Save writes the map's text serialization (spec §4.5), refusing to
// overwrite an existing file unless overwrite is true.
func (m *CodeMap) Save(path string, reloc uint16, overwrite bool) error {
	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("%w: %s already exists, pass overwrite to replace it", errs.ErrIO, path)
		}
	}
	var b strings.Builder
	b.WriteString("# code map, generated by mzmap\n")
	b.WriteString("# Size <hex total bytes>\n")
	b.WriteString("# <name> CODE|DATA|STACK <seghex>\n")
	b.WriteString("# <routine>: <seg> NEAR|FAR <begin>-<end> [R<begin>-<end>|U<begin>-<end>|flag]*\n")
	b.WriteString("# <var>: <seg> VAR <offsethex> [external] [bss]\n")
	fmt.Fprintf(&b, "Size %x\n", m.MapSize)
	for _, s := range m.segments {
		fmt.Fprintf(&b, "%s %s %04x\n", s.Name, s.Type, s.Address)
	}
	for _, r := range m.routines {
		b.WriteString(m.routineString(r, reloc))
	}
	for _, v := range m.vars {
		b.WriteString(m.varString(v, reloc))
	}
	if err := os.WriteFile(path, []byte(b.String()), 0644); err != nil {
		return fmt.Errorf("%w: unable to write code map %s: %v", errs.ErrIO, path, err)
	}
	return nil
}

// FormatRoutines renders every routine and variable using the same
// writer as Save, without the header comments or a Size line, for
// mzmap's "--format: print routines in a way that's directly writable
// back to the map file" option.
func (m *CodeMap) FormatRoutines(reloc uint16) string {
	var b strings.Builder
	for _, r := range m.routines {
		b.WriteString(m.routineString(r, reloc))
	}
	for _, v := range m.vars {
		b.WriteString(m.varString(v, reloc))
	}
	return b.String()
}

func (m *CodeMap) routineString(r *Routine, reloc uint16) string {
	kind := "FAR"
	if r.Near {
		kind = "NEAR"
	}
	begin, _ := r.Extents.Begin.Rebase(reloc)
	end, _ := r.Extents.End.Rebase(reloc)
	var b strings.Builder
	fmt.Fprintf(&b, "%s: %04x %s %04x-%04x", r.Name, begin.Segment, kind, begin.Offset, end.Offset)
	for _, c := range r.Reachable {
		cb, _ := c.Begin.Rebase(reloc)
		ce, _ := c.End.Rebase(reloc)
		fmt.Fprintf(&b, " R%04x-%04x", cb.Offset, ce.Offset)
	}
	for _, c := range r.Unreachable {
		cb, _ := c.Begin.Rebase(reloc)
		ce, _ := c.End.Rebase(reloc)
		fmt.Fprintf(&b, " U%04x-%04x", cb.Offset, ce.Offset)
	}
	for _, f := range []struct {
		name string
		set  bool
	}{
		{"ignore", r.Ignore}, {"complete", r.Complete}, {"external", r.External},
		{"detached", r.Detached}, {"assembly", r.Assembly}, {"duplicate", r.Duplicate},
	} {
		if f.set {
			fmt.Fprintf(&b, " %s", f.name)
		}
	}
	b.WriteString("\n")
	return b.String()
}

func (m *CodeMap) varString(v Variable, reloc uint16) string {
	addr, _ := v.Addr.Rebase(reloc)
	var b strings.Builder
	fmt.Fprintf(&b, "%s: %04x VAR %04x", v.Name, addr.Segment, addr.Offset)
	if v.External {
		b.WriteString(" external")
	}
	if v.BSS {
		b.WriteString(" bss")
	}
	b.WriteString("\n")
	return b.String()
}
