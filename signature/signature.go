// Package signature implements the signature library (spec §3.3 last
// paragraph, §4.7, C8): per-routine instruction-shape fingerprints,
// extracted from a code map and executable, saved/loaded as text, and
// compared with a bounded edit distance for duplicate detection.
package signature

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/retrodos/mzretools/address"
	"github.com/retrodos/mzretools/codemap"
	"github.com/retrodos/mzretools/cpu"
	"github.com/retrodos/mzretools/errs"
	"github.com/retrodos/mzretools/memory"
)

// Signature is a 32-bit fingerprint of one instruction's shape:
// (prefix, class, op1.type, op2.type). Literal immediate values are
// deliberately excluded — signatures match code shape, not constants
// (spec §3.3).
type Signature uint32

// Of computes the signature of a decoded instruction.
func Of(ins cpu.Instruction) Signature {
	return Signature(uint32(ins.Prefix)<<24 | uint32(ins.Class)<<16 | uint32(ins.Op1.Type)<<8 | uint32(ins.Op2.Type))
}

// Item is one routine's full signature string plus the identity needed
// to report a match.
type Item struct {
	RoutineName string
	Extents     address.Block
	Signature   []Signature
}

// Size is the number of instructions captured in the signature.
func (it Item) Size() int { return len(it.Signature) }

// Library is an ordered collection of routine signatures.
type Library struct {
	items []Item
}

// Empty reports whether the library has no signatures.
func (l *Library) Empty() bool { return len(l.items) == 0 }

// Count is the number of signatures in the library.
func (l *Library) Count() int { return len(l.items) }

// Get returns the signature at idx.
func (l *Library) Get(idx int) (Item, error) {
	if idx < 0 || idx >= len(l.items) {
		return Item{}, fmt.Errorf("%w: signature index %d out of range", errs.ErrArg, idx)
	}
	return l.items[idx], nil
}

// Items returns all signatures in the library.
func (l *Library) Items() []Item { return l.items }

// Build extracts a signature for every routine in m whose instruction
// count lies in [minInstructions, maxInstructions] (maxInstructions==0
// means unbounded), decoding the instructions of its extents block from
// img in address order.
func Build(m *codemap.CodeMap, img *memory.Image, minInstructions, maxInstructions int) (*Library, error) {
	lib := &Library{}
	for i := 0; i < m.RoutineCount(); i++ {
		r, err := m.GetRoutine(i)
		if err != nil {
			return nil, err
		}
		if r.Ignore || r.External || r.Detached {
			continue
		}
		sigs, err := signatureOf(r, img)
		if err != nil {
			return nil, err
		}
		if len(sigs) < minInstructions {
			continue
		}
		if maxInstructions > 0 && len(sigs) > maxInstructions {
			continue
		}
		lib.items = append(lib.items, Item{RoutineName: r.Name, Extents: r.Extents, Signature: sigs})
	}
	return lib, nil
}

func signatureOf(r *codemap.Routine, img *memory.Image) ([]Signature, error) {
	blocks := []address.Block{r.Extents}
	var sigs []Signature
	for _, b := range blocks {
		cur := b.Begin
		for cur.LessEqual(b.End) {
			lin := cur.ToLinear()
			if lin >= address.MemTotal {
				break
			}
			ins, err := cpu.Decode(cur, img.Base()[lin:])
			if err != nil {
				return nil, fmt.Errorf("%w: signature decode failed at %s: %v", errs.ErrDecode, cur, err)
			}
			sigs = append(sigs, Of(ins))
			cur = cur.Add(int32(ins.Length))
		}
	}
	return sigs, nil
}

// Save writes the library in the "name: HH,HH,..." text format (spec
// §6.2).
func (l *Library) Save(path string) error {
	var b strings.Builder
	for _, it := range l.items {
		parts := make([]string, len(it.Signature))
		for i, s := range it.Signature {
			parts[i] = fmt.Sprintf("%08x", uint32(s))
		}
		fmt.Fprintf(&b, "%s: %s\n", it.RoutineName, strings.Join(parts, ","))
	}
	if err := os.WriteFile(path, []byte(b.String()), 0644); err != nil {
		return fmt.Errorf("%w: unable to write signature library %s: %v", errs.ErrIO, path, err)
	}
	return nil
}

// Load reads a signature library previously written by Save.
func Load(path string) (*Library, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: unable to read signature library %s: %v", errs.ErrIO, path, err)
	}
	defer f.Close()

	lib := &Library{}
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		name, rest, ok := strings.Cut(line, ":")
		if !ok {
			return nil, fmt.Errorf("%w: malformed signature line: %q", errs.ErrParse, line)
		}
		name = strings.TrimSpace(name)
		rest = strings.TrimSpace(rest)
		var sigs []Signature
		if rest != "" {
			for _, hexVal := range strings.Split(rest, ",") {
				v, err := strconv.ParseUint(strings.TrimSpace(hexVal), 16, 32)
				if err != nil {
					return nil, fmt.Errorf("%w: invalid signature value %q", errs.ErrParse, hexVal)
				}
				sigs = append(sigs, Signature(v))
			}
		}
		lib.items = append(lib.items, Item{RoutineName: name, Signature: sigs})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", errs.ErrIO, err)
	}
	return lib, nil
}
