// Package memory implements the flat 1 MB byte image (spec §4.2, C2)
// shared by the loader, explorer and comparator.
package memory

import (
	"fmt"
	"io"
	"os"

	"github.com/retrodos/mzretools/address"
	"github.com/retrodos/mzretools/errs"
)

const (
	// InitBreak is the start of free conventional memory, just past the
	// interrupt vector table, BDA and inter-application area.
	InitBreak = 0x500
	// End is the end of usable conventional memory (start of the UMA).
	End = 0xa0000
)

// Image is a flat, fixed-size 1 MB byte buffer standing in for the whole
// real-mode address space. It is exclusively owned by one executable
// instance (spec §5).
type Image struct {
	data [address.MemTotal]byte
	brk  uint32
}

// New returns an image pre-filled with a recognizable "uninitialized
// memory" pattern, matching the original's 0xdeadbeef fill so that a
// dump of never-written bytes is visually obvious.
func New() *Image {
	img := &Image{brk: InitBreak}
	pattern := [4]byte{0xde, 0xad, 0xbe, 0xef}
	for i := range img.data {
		img.data[i] = pattern[i%len(pattern)]
	}
	return img
}

// NewAt is like New but additionally writes data at the linear offset of
// segment:0.
func NewAt(segment uint16, data []byte) (*Image, error) {
	img := New()
	if err := img.WriteBuf(address.SegToOffset(segment), data); err != nil {
		return nil, err
	}
	return img, nil
}

// Size is always the full 1 MB.
func (img *Image) Size() uint32 { return address.MemTotal }

func (img *Image) bounds(addr, length uint32) error {
	if addr+length > address.MemTotal || addr+length < addr {
		return fmt.Errorf("%w: access outside memory bounds at 0x%x, length %d", errs.ErrMemory, addr, length)
	}
	return nil
}

// ReadByte reads one byte at a linear offset.
func (img *Image) ReadByte(addr uint32) (byte, error) {
	if err := img.bounds(addr, 1); err != nil {
		return 0, err
	}
	return img.data[addr], nil
}

// ReadWord reads a little-endian word at a linear offset.
func (img *Image) ReadWord(addr uint32) (uint16, error) {
	if err := img.bounds(addr, 2); err != nil {
		return 0, err
	}
	return uint16(img.data[addr]) | uint16(img.data[addr+1])<<8, nil
}

// WriteByte writes one byte at a linear offset.
func (img *Image) WriteByte(addr uint32, value byte) error {
	if err := img.bounds(addr, 1); err != nil {
		return err
	}
	img.data[addr] = value
	return nil
}

// WriteWord writes a little-endian word at a linear offset.
func (img *Image) WriteWord(addr uint32, value uint16) error {
	if err := img.bounds(addr, 2); err != nil {
		return err
	}
	img.data[addr] = byte(value)
	img.data[addr+1] = byte(value >> 8)
	return nil
}

// WriteBuf copies buf into the image starting at a linear offset.
func (img *Image) WriteBuf(addr uint32, buf []byte) error {
	if err := img.bounds(addr, uint32(len(buf))); err != nil {
		return err
	}
	copy(img.data[addr:], buf)
	return nil
}

// Pointer returns a read-only view of size bytes starting at addr, used by
// the decoder as a cursor over instruction bytes.
func (img *Image) Pointer(addr uint32, size uint32) ([]byte, error) {
	if err := img.bounds(addr, size); err != nil {
		return nil, err
	}
	return img.data[addr : addr+size], nil
}

// Base returns the full backing slice, for callers (like the decoder) that
// want to slice past a known start without a fixed length.
func (img *Image) Base() []byte { return img.data[:] }

// Pattern is one element of a byte-search pattern: a literal byte, or a
// wildcard that matches anything.
type Pattern struct {
	Byte     byte
	Wildcard bool
}

// Find scans block for the first occurrence of pattern. The matcher is
// intentionally naive (spec §4.2): O(n*m), no Boyer-Moore/KMP.
func (img *Image) Find(pattern []Pattern, block address.Block) (address.Address, bool) {
	if !block.IsValid() || len(pattern) == 0 {
		return address.Address{}, false
	}
	start := block.Begin.ToLinear()
	end := block.End.ToLinear()
	for at := start; at+uint32(len(pattern)) <= end+1; at++ {
		if img.matchAt(pattern, at) {
			addr, err := address.FromLinear(at)
			if err != nil {
				return address.Address{}, false
			}
			return addr, true
		}
	}
	return address.Address{}, false
}

func (img *Image) matchAt(pattern []Pattern, at uint32) bool {
	for i, p := range pattern {
		if at+uint32(i) >= address.MemTotal {
			return false
		}
		if !p.Wildcard && img.data[at+uint32(i)] != p.Byte {
			return false
		}
	}
	return true
}

// Dump writes range to path, or to w (e.g. stdout) when path is empty.
func (img *Image) Dump(rng address.Block, path string, w io.Writer) error {
	if !rng.IsValid() {
		return fmt.Errorf("%w: invalid dump range %s", errs.ErrArg, rng)
	}
	data, err := img.Pointer(rng.Begin.ToLinear(), rng.Size())
	if err != nil {
		return err
	}
	if path == "" {
		_, err := w.Write(data)
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("%w: %v", errs.ErrIO, err)
	}
	defer f.Close()
	if _, err := f.Write(data); err != nil {
		return fmt.Errorf("%w: %v", errs.ErrIO, err)
	}
	return nil
}

// AllocBlock grows the conventional-memory break by para paragraphs.
func (img *Image) AllocBlock(para uint32) error {
	size := para * 16
	if img.brk+size > End {
		return fmt.Errorf("%w: no room to allocate %d, avail = %d", errs.ErrMemory, size, img.AvailableBytes())
	}
	img.brk += size
	return nil
}

// FreeBlock shrinks the conventional-memory break by para paragraphs.
func (img *Image) FreeBlock(para uint32) error {
	size := para * 16
	if img.brk < InitBreak+size {
		return fmt.Errorf("%w: no room to free %d, avail = %d", errs.ErrMemory, size, img.AvailableBytes())
	}
	img.brk -= size
	return nil
}

// AvailableBytes reports how much conventional memory remains unallocated.
func (img *Image) AvailableBytes() uint32 { return End - img.brk }
