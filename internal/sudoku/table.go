package sudoku

import (
	"encoding/binary"
	"errors"
	"fmt"
	"strings"
)

// Layout selects the padding cover used between hint bytes. The hint
// encoding itself is shared: a hint byte satisfies
// (b&0xC0)==0x80 && (b&0x30)!=0 and carries 2 bits of cell value and
// 4 bits of cell position.
type Layout uint8

const (
	LayoutASCII Layout = iota
	LayoutEntropy
)

func ParseLayout(s string) (Layout, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "ascii":
		return LayoutASCII, nil
	case "entropy":
		return LayoutEntropy, nil
	default:
		return 0, fmt.Errorf("unknown layout %q", s)
	}
}

const (
	// MaxHintsPerByte caps the encode-table candidates per byte value.
	MaxHintsPerByte = 50

	decodeTableSize = 1 << 14 // open-addressed; holds at most 256*50 keys

	// PaddingMarker is the reserved ASCII-layout padding sentinel.
	PaddingMarker = 0x3F
)

var (
	ErrTableInit = errors.New("sudoku: table construction failed")
	ErrShortKey  = errors.New("sudoku: key must be at least 8 bytes")
)

// IsHint reports whether b is a hint candidate on the wire. Everything else
// in the masked stream is padding and is dropped by the decoder.
func IsHint(b byte) bool {
	return b&0xC0 == 0x80 && b&0x30 != 0
}

// hintByte packs a cell value (already decremented to 0..3) and position.
// Values packing to 0 in the 0x30 field are rejected at table-build time so
// every emitted byte passes IsHint.
func hintByte(v, p uint8) byte {
	return 0x80 | (v&0x03)<<4 | p&0x0F
}

// Table holds the process-wide codec tables for one key. Immutable after
// construction; shared read-only by every session.
type Table struct {
	layout Layout

	encode      [256][MaxHintsPerByte][4]byte
	encodeCount [256]uint8

	decodeKeys [decodeTableSize]uint32
	decodeVals [decodeTableSize]uint8

	pool []byte
	seed uint32
}

// lcgSeed folds the key's first 8 bytes (big-endian) into the 32-bit LCG
// state shared by the shuffle and the per-session masking RNG.
func lcgSeed(key []byte) uint32 {
	s := binary.BigEndian.Uint64(key[:8])
	return uint32(s>>32) ^ uint32(s)
}

func lcgNext(state uint32) uint32 {
	return state*1664525 + 1013904223
}

// NewTable builds the keyed codec tables: shuffle the 288 grids with the
// key-seeded LCG, then for each byte value accept up to MaxHintsPerByte
// position combinations whose hint quadruple is predicate-clean and pins
// down the target grid uniquely among all 288.
func NewTable(key []byte, layout Layout) (*Table, error) {
	if len(key) < 8 {
		return nil, ErrShortKey
	}

	t := &Table{layout: layout, seed: lcgSeed(key)}

	grids := AllGrids()
	if len(grids) != NumGrids {
		return nil, fmt.Errorf("%w: generated %d grids", ErrTableInit, len(grids))
	}

	gridOrder := make([]Grid, NumGrids)
	copy(gridOrder, grids)
	state := t.seed
	for i := NumGrids - 1; i > 0; i-- {
		state = lcgNext(state)
		j := state % uint32(i+1)
		gridOrder[i], gridOrder[j] = gridOrder[j], gridOrder[i]
	}

	combos := allCombinations()
	if len(combos) != NumCombinations {
		return nil, fmt.Errorf("%w: generated %d combinations", ErrTableInit, len(combos))
	}

	for b := 0; b < 256; b++ {
		target := gridOrder[b]
		for _, positions := range combos {
			var hints [4]byte
			clean := true
			for i, p := range positions {
				v := target[p] - 1
				if v&0x03 == 0 {
					clean = false
					break
				}
				hints[i] = hintByte(v, p)
			}
			if !clean {
				continue
			}

			// The quadruple must identify target among all 288 grids.
			matches := 0
			for gi := range grids {
				if gridMatches(&grids[gi], &hints) {
					matches++
					if matches > 1 {
						break
					}
				}
			}
			if matches != 1 {
				continue
			}

			n := t.encodeCount[b]
			t.encode[b][n] = hints
			t.encodeCount[b] = n + 1

			if !t.decodeInsert(PackKey(hints), uint8(b)) {
				return nil, fmt.Errorf("%w: decode table full", ErrTableInit)
			}
			if t.encodeCount[b] == MaxHintsPerByte {
				break
			}
		}
		if t.encodeCount[b] == 0 {
			return nil, fmt.Errorf("%w: no hint quadruple for byte %#02x", ErrTableInit, b)
		}
	}

	t.pool = paddingPool(layout)
	return t, nil
}

func gridMatches(g *Grid, hints *[4]byte) bool {
	for _, h := range hints {
		p := h & 0x0F
		v := (h>>4)&0x03 + 1
		if g[p] != v {
			return false
		}
	}
	return true
}

// paddingPool returns the 16 cover bytes the masker may interleave. The
// ASCII layout draws from printable punctuation, the entropy layout from
// low control bytes; neither range satisfies IsHint.
func paddingPool(layout Layout) []byte {
	pool := make([]byte, 16)
	base := byte(0x20)
	if layout == LayoutEntropy {
		base = 0x00
	}
	for i := range pool {
		pool[i] = base + byte(i)
	}
	return pool
}

// PackKey canonicalizes a hint quadruple: sort the four bytes with a fixed
// network, then pack big-endian. Decode is therefore order-independent.
func PackKey(h [4]byte) uint32 {
	if h[0] > h[1] {
		h[0], h[1] = h[1], h[0]
	}
	if h[2] > h[3] {
		h[2], h[3] = h[3], h[2]
	}
	if h[0] > h[2] {
		h[0], h[2] = h[2], h[0]
	}
	if h[1] > h[3] {
		h[1], h[3] = h[3], h[1]
	}
	if h[1] > h[2] {
		h[1], h[2] = h[2], h[1]
	}
	return uint32(h[0])<<24 | uint32(h[1])<<16 | uint32(h[2])<<8 | uint32(h[3])
}

// decodeInsert adds key→val with linear probing. Key 0 marks an empty slot;
// packed keys are never 0 because every hint byte is at least 0x90.
func (t *Table) decodeInsert(key uint32, val uint8) bool {
	idx := key & (decodeTableSize - 1)
	for i := 0; i < decodeTableSize; i++ {
		if t.decodeKeys[idx] == 0 {
			t.decodeKeys[idx] = key
			t.decodeVals[idx] = val
			return true
		}
		if t.decodeKeys[idx] == key {
			return true
		}
		idx = (idx + 1) & (decodeTableSize - 1)
	}
	return false
}

// Lookup resolves a canonical quadruple key to its byte value.
func (t *Table) Lookup(key uint32) (uint8, bool) {
	idx := key & (decodeTableSize - 1)
	for i := 0; i < decodeTableSize; i++ {
		switch t.decodeKeys[idx] {
		case key:
			return t.decodeVals[idx], true
		case 0:
			return 0, false
		}
		idx = (idx + 1) & (decodeTableSize - 1)
	}
	return 0, false
}

// Pool exposes the padding bytes (read-only by convention).
func (t *Table) Pool() []byte { return t.pool }

// Layout reports which cover layout the table was built for.
func (t *Table) Layout() Layout { return t.layout }
