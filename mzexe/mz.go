// Package mzexe implements the DOS MZ executable header parser and
// relocator (spec §4.2, C3).
package mzexe

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"

	"github.com/retrodos/mzretools/address"
	"github.com/retrodos/mzretools/errs"
)

const (
	// Signature is the little-endian "MZ" magic at offset 0.
	Signature = 0x5A4D
	// HeaderSize is the fixed 28-byte MZ header (14 words).
	HeaderSize = 28
	// RelocSize is the size of one relocation table entry.
	RelocSize = 4
	// PageSize is the unit pages_in_file/last_page_size are measured in.
	PageSize = 512
	// ParagraphSize is the unit header_paragraphs/*_extra_paragraphs are
	// measured in.
	ParagraphSize = 16
)

// header is the raw, byte-exact MZ header (spec §4.2/§6.1).
type header struct {
	Signature          uint16
	LastPageSize       uint16
	PagesInFile        uint16
	NumRelocs          uint16
	HeaderParagraphs   uint16
	MinExtraParagraphs uint16
	MaxExtraParagraphs uint16
	SS                 uint16
	SP                 uint16
	Checksum           uint16
	IP                 uint16
	CS                 uint16
	RelocTableOffset   uint16
	OverlayNumber      uint16
}

// relocation is one entry of the MZ relocation table, plus the original
// word value captured at load-module-build time so Load can re-derive it
// for a different load segment.
type relocation struct {
	Offset, Segment uint16
	Original        uint16
}

// Image is a parsed MZ executable: header, relocation table and (once
// Load is called) the load-module bytes patched for a load segment.
type Image struct {
	Path string

	hdr            header
	overlay        []byte
	relocs         []relocation
	loadModuleOff  uint32
	loadModuleSize uint32
	loadModuleData []byte
	loadSegment    uint16
}

// Load parses an MZ executable's header and relocation table from path.
// It does not yet read the load-module bytes; call (*Image).Load for that.
func Load(path string) (*Image, error) {
	if path == "" {
		return nil, fmt.Errorf("%w: empty path for MzImage", errs.ErrArg)
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errs.ErrIO, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errs.ErrIO, err)
	}
	if info.Size() < HeaderSize {
		return nil, fmt.Errorf("%w: MzImage file too small (%d)", errs.ErrIO, info.Size())
	}

	raw := make([]byte, HeaderSize)
	if _, err := io.ReadFull(f, raw); err != nil {
		return nil, fmt.Errorf("%w: incorrect header read size: %v", errs.ErrIO, err)
	}
	img := &Image{Path: path}
	img.hdr = header{
		Signature:          binary.LittleEndian.Uint16(raw[0:2]),
		LastPageSize:       binary.LittleEndian.Uint16(raw[2:4]),
		PagesInFile:        binary.LittleEndian.Uint16(raw[4:6]),
		NumRelocs:          binary.LittleEndian.Uint16(raw[6:8]),
		HeaderParagraphs:   binary.LittleEndian.Uint16(raw[8:10]),
		MinExtraParagraphs: binary.LittleEndian.Uint16(raw[10:12]),
		MaxExtraParagraphs: binary.LittleEndian.Uint16(raw[12:14]),
		SS:                 binary.LittleEndian.Uint16(raw[14:16]),
		SP:                 binary.LittleEndian.Uint16(raw[16:18]),
		Checksum:           binary.LittleEndian.Uint16(raw[18:20]),
		IP:                 binary.LittleEndian.Uint16(raw[20:22]),
		CS:                 binary.LittleEndian.Uint16(raw[22:24]),
		RelocTableOffset:   binary.LittleEndian.Uint16(raw[24:26]),
		OverlayNumber:      binary.LittleEndian.Uint16(raw[26:28]),
	}
	if img.hdr.Signature != Signature {
		return nil, fmt.Errorf("%w: MzImage file has incorrect signature (0x%04x)", errs.ErrIO, img.hdr.Signature)
	}

	// Bytes between the end of the fixed header and the relocation table
	// are opaque overlay info (spec §9 open question 4): captured, never
	// interpreted.
	if uint32(img.hdr.RelocTableOffset) > HeaderSize {
		ovlSize := uint32(img.hdr.RelocTableOffset) - HeaderSize
		img.overlay = make([]byte, ovlSize)
		if _, err := io.ReadFull(f, img.overlay); err != nil {
			return nil, fmt.Errorf("%w: unable to read overlay info: %v", errs.ErrIO, err)
		}
	}

	if img.hdr.NumRelocs > 0 {
		if _, err := f.Seek(int64(img.hdr.RelocTableOffset), 0); err != nil {
			return nil, fmt.Errorf("%w: unable to seek to relocation table: %v", errs.ErrIO, err)
		}
		img.relocs = make([]relocation, img.hdr.NumRelocs)
		entry := make([]byte, RelocSize)
		for i := range img.relocs {
			if _, err := io.ReadFull(f, entry); err != nil {
				return nil, fmt.Errorf("%w: invalid relocation read size: %v", errs.ErrIO, err)
			}
			img.relocs[i].Offset = binary.LittleEndian.Uint16(entry[0:2])
			img.relocs[i].Segment = binary.LittleEndian.Uint16(entry[2:4])
		}
	}

	if img.hdr.PagesInFile == 0 {
		return nil, fmt.Errorf("%w: page count in MZ header is zero", errs.ErrDos)
	}
	img.loadModuleOff = uint32(img.hdr.HeaderParagraphs) * ParagraphSize
	img.loadModuleSize = (uint32(img.hdr.PagesInFile)-1)*PageSize + uint32(img.hdr.LastPageSize) - img.loadModuleOff

	// capture the original word value at each relocation's linear
	// address inside the load module, so Load() can later add the load
	// segment to it for any chosen load address.
	for i := range img.relocs {
		r := &img.relocs[i]
		relAddr := address.Address{Segment: r.Segment, Offset: r.Offset}
		fileOffset := int64(relAddr.ToLinear()) + int64(img.loadModuleOff)
		if _, err := f.Seek(fileOffset, 0); err != nil {
			return nil, fmt.Errorf("%w: unable to seek to relocation offset: %v", errs.ErrIO, err)
		}
		val := make([]byte, 2)
		if _, err := io.ReadFull(f, val); err != nil {
			return nil, fmt.Errorf("%w: invalid relocation value read size: %v", errs.ErrIO, err)
		}
		r.Original = binary.LittleEndian.Uint16(val)
	}

	return img, nil
}

// HeaderLength returns the header size in bytes (header_paragraphs * 16).
func (img *Image) HeaderLength() uint32 { return uint32(img.hdr.HeaderParagraphs) * ParagraphSize }

// LoadModuleSize returns the size of the executable's code+data body.
func (img *Image) LoadModuleSize() uint32 { return img.loadModuleSize }

// LoadModuleOffset returns the file offset the load module starts at.
func (img *Image) LoadModuleOffset() uint32 { return img.loadModuleOff }

// LoadModuleData returns the (already loaded and relocated) load module
// bytes. Load must have been called first.
func (img *Image) LoadModuleData() []byte { return img.loadModuleData }

// LoadSegment returns the segment the load module was last loaded at.
func (img *Image) LoadSegment() uint16 { return img.loadSegment }

// MinAlloc returns the minimum extra memory the program requires, in
// bytes.
func (img *Image) MinAlloc() uint32 { return uint32(img.hdr.MinExtraParagraphs) * ParagraphSize }

// MaxAlloc returns the maximum extra memory the program would like, in
// bytes.
func (img *Image) MaxAlloc() uint32 { return uint32(img.hdr.MaxExtraParagraphs) * ParagraphSize }

// Entrypoint returns the header's cs:ip pair, unrelocated.
func (img *Image) Entrypoint() address.Address {
	return address.Address{Segment: img.hdr.CS, Offset: img.hdr.IP}
}

// StackPointer returns the header's ss:sp pair, unrelocated.
func (img *Image) StackPointer() address.Address {
	return address.Address{Segment: img.hdr.SS, Offset: img.hdr.SP}
}

// Overlay returns the captured, uninterpreted overlay-info bytes (spec §9
// open question 4), or nil if there were none.
func (img *Image) Overlay() []byte { return img.overlay }

// Load reads the load-module bytes from disk and patches every
// relocation entry by adding loadSegment to its captured original value
// (spec §4.2 step 7).
func (img *Image) Load(loadSegment uint16) error {
	f, err := os.Open(img.Path)
	if err != nil {
		return fmt.Errorf("%w: unable to open exe file: %v", errs.ErrIO, err)
	}
	defer f.Close()

	if _, err := f.Seek(int64(img.loadModuleOff), 0); err != nil {
		return fmt.Errorf("%w: %v", errs.ErrIO, err)
	}
	data := make([]byte, img.loadModuleSize)
	n, err := io.ReadFull(f, data)
	if err != nil {
		return fmt.Errorf("%w: error reading load module data: %v", errs.ErrIO, err)
	}
	if uint32(n) != img.loadModuleSize {
		return fmt.Errorf("%w: incorrect number of bytes read: %d", errs.ErrIO, n)
	}

	img.loadModuleData = data
	img.loadSegment = loadSegment
	for _, r := range img.relocs {
		addr := address.Address{Segment: r.Segment, Offset: r.Offset}
		off := addr.ToLinear()
		patched := r.Original + loadSegment
		binary.LittleEndian.PutUint16(img.loadModuleData[off:off+2], patched)
	}
	return nil
}

// Find scans the load module for pattern (bytes, or -1 wildcards encoded
// as memory.Pattern on the caller side); kept here as a thin byte-slice
// convenience for callers that already have loaded data. See memory.Image
// for the general, wildcard-aware search used by the rest of the core.
func (img *Image) Find(pattern []int16) (address.Address, bool) {
	patSize := len(pattern)
	if patSize == 0 || uint32(patSize) > img.loadModuleSize {
		return address.Address{}, false
	}
	for at := uint32(0); at+uint32(patSize) <= img.loadModuleSize; at++ {
		match := true
		for i, p := range pattern {
			if p == -1 {
				continue
			}
			if img.loadModuleData[int(at)+i] != byte(p) {
				match = false
				break
			}
		}
		if match {
			addr, err := address.FromLinear(at)
			if err != nil {
				return address.Address{}, false
			}
			return addr, true
		}
	}
	return address.Address{}, false
}

// Dump renders a human-readable summary of the header, overlay and
// relocation table, matching the informational dump the original tool's
// mzhdr front end prints.
func (img *Image) Dump() string {
	s := fmt.Sprintf("--- %s MZ header (%d bytes)\n", img.Path, HeaderSize)
	s += fmt.Sprintf("\tsignature = 0x%04x ('MZ')\n", img.hdr.Signature)
	s += fmt.Sprintf("\tlast_page_size = 0x%04x (%d bytes)\n", img.hdr.LastPageSize, img.hdr.LastPageSize)
	s += fmt.Sprintf("\tpages_in_file = %d (%d bytes)\n", img.hdr.PagesInFile, uint32(img.hdr.PagesInFile)*PageSize)
	s += fmt.Sprintf("\tnum_relocs = %d\n", img.hdr.NumRelocs)
	s += fmt.Sprintf("\theader_paragraphs = %d (%d bytes)\n", img.hdr.HeaderParagraphs, img.HeaderLength())
	s += fmt.Sprintf("\tmin/max_extra_paragraphs = %d/%d\n", img.hdr.MinExtraParagraphs, img.hdr.MaxExtraParagraphs)
	s += fmt.Sprintf("\tss:sp = %04x:%04x\n", img.hdr.SS, img.hdr.SP)
	s += fmt.Sprintf("\tcs:ip = %04x:%04x\n", img.hdr.CS, img.hdr.IP)
	s += fmt.Sprintf("\treloc_table_offset = 0x%04x\n", img.hdr.RelocTableOffset)
	s += fmt.Sprintf("\toverlay_number = %d\n", img.hdr.OverlayNumber)
	if len(img.overlay) > 0 {
		s += fmt.Sprintf("--- overlay info (%d bytes, uninterpreted)\n", len(img.overlay))
	}
	if len(img.relocs) > 0 {
		s += fmt.Sprintf("--- relocations: %d\n", len(img.relocs))
	}
	s += fmt.Sprintf("--- load module @ 0x%x, size = 0x%x / %d bytes\n", img.loadModuleOff, img.loadModuleSize, img.loadModuleSize)
	return s
}
