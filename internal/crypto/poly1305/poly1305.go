// Package poly1305 implements the Poly1305 one-time authenticator over
// GF(2^130-5). The arithmetic uses widening multiplies and carry chains
// only; no branch depends on secret data.
package poly1305

import (
	"encoding/binary"
	"math/bits"
)

const TagSize = 16

// Clamping masks for r, little-endian limb order.
const (
	rMask0 = 0x0FFFFFFC0FFFFFFF
	rMask1 = 0x0FFFFFFC0FFFFFFC
)

// 2^130 - 5 as three 64-bit limbs.
const (
	p0 = 0xFFFFFFFFFFFFFFFB
	p1 = 0xFFFFFFFFFFFFFFFF
	p2 = 0x0000000000000003
)

type MAC struct {
	h [3]uint64
	r [2]uint64
	s [2]uint64

	buffer [TagSize]byte
	offset int
}

func New(key *[32]byte) *MAC {
	m := &MAC{}
	m.r[0] = binary.LittleEndian.Uint64(key[0:8]) & rMask0
	m.r[1] = binary.LittleEndian.Uint64(key[8:16]) & rMask1
	m.s[0] = binary.LittleEndian.Uint64(key[16:24])
	m.s[1] = binary.LittleEndian.Uint64(key[24:32])
	return m
}

type uint128 struct {
	lo, hi uint64
}

func mul64(a, b uint64) uint128 {
	hi, lo := bits.Mul64(a, b)
	return uint128{lo, hi}
}

func add128(a, b uint128) uint128 {
	lo, c := bits.Add64(a.lo, b.lo, 0)
	hi, _ := bits.Add64(a.hi, b.hi, c)
	return uint128{lo, hi}
}

func shiftRightBy2(a uint128) uint128 {
	a.lo = a.lo>>2 | (a.hi&3)<<62
	a.hi = a.hi >> 2
	return a
}

const (
	maskLow2Bits    = 0x3
	maskNotLow2Bits = ^uint64(0x3)
)

// updateBlock absorbs one 16-byte block. A final short block is padded and
// carries its implicit 1 at the byte following the message instead of at
// bit 128.
func (m *MAC) updateBlock(msg []byte, final bool) {
	h0, h1, h2 := m.h[0], m.h[1], m.h[2]
	r0, r1 := m.r[0], m.r[1]

	var c uint64
	if !final {
		h0, c = bits.Add64(h0, binary.LittleEndian.Uint64(msg[0:8]), 0)
		h1, c = bits.Add64(h1, binary.LittleEndian.Uint64(msg[8:16]), c)
		h2 += c + 1
	} else {
		var buf [TagSize]byte
		copy(buf[:], msg)
		buf[len(msg)] = 1
		h0, c = bits.Add64(h0, binary.LittleEndian.Uint64(buf[0:8]), 0)
		h1, c = bits.Add64(h1, binary.LittleEndian.Uint64(buf[8:16]), c)
		h2 += c
	}

	// h *= r, then reduce with c*2^130 + n ≡ c*5 + n (mod 2^130-5).
	h0r0 := mul64(h0, r0)
	h1r0 := mul64(h1, r0)
	h2r0 := mul64(h2, r0)
	h0r1 := mul64(h0, r1)
	h1r1 := mul64(h1, r1)
	h2r1 := mul64(h2, r1)

	m0 := h0r0
	m1 := add128(h1r0, h0r1)
	m2 := add128(h2r0, h1r1)
	m3 := h2r1

	t0 := m0.lo
	t1, c := bits.Add64(m1.lo, m0.hi, 0)
	t2, c := bits.Add64(m2.lo, m1.hi, c)
	t3, _ := bits.Add64(m3.lo, m2.hi, c)

	h0, h1, h2 = t0, t1, t2&maskLow2Bits
	cc := uint128{t2 & maskNotLow2Bits, t3}

	// h += c*4 then h += c, totalling c*5.
	h0, c = bits.Add64(h0, cc.lo, 0)
	h1, c = bits.Add64(h1, cc.hi, c)
	h2 += c

	cc = shiftRightBy2(cc)
	h0, c = bits.Add64(h0, cc.lo, 0)
	h1, c = bits.Add64(h1, cc.hi, c)
	h2 += c

	m.h[0], m.h[1], m.h[2] = h0, h1, h2
}

func (m *MAC) Write(p []byte) (int, error) {
	written := len(p)
	for len(p) > 0 {
		n := TagSize - m.offset
		if n > len(p) {
			n = len(p)
		}
		copy(m.buffer[m.offset:], p[:n])
		m.offset += n
		p = p[n:]

		if m.offset == TagSize {
			m.updateBlock(m.buffer[:], false)
			m.offset = 0
		}
	}
	return written, nil
}

// Sum finalizes the accumulator into out. The MAC must not be used again.
func (m *MAC) Sum(out *[TagSize]byte) {
	if m.offset > 0 {
		m.updateBlock(m.buffer[:m.offset], true)
	}

	h0, h1, h2 := m.h[0], m.h[1], m.h[2]

	// Constant-time h mod p: compute h-p and select on the borrow.
	t0, b := bits.Sub64(h0, p0, 0)
	t1, b := bits.Sub64(h1, p1, b)
	_, b = bits.Sub64(h2, p2, b)

	keep := -b // all ones when h < p
	h0 = h0&keep | t0&^keep
	h1 = h1&keep | t1&^keep

	// tag = (h + s) mod 2^128
	var c uint64
	h0, c = bits.Add64(h0, m.s[0], 0)
	h1, _ = bits.Add64(h1, m.s[1], c)

	binary.LittleEndian.PutUint64(out[0:8], h0)
	binary.LittleEndian.PutUint64(out[8:16], h1)
}

// Sum computes the tag of msg under key in one shot.
func Sum(out *[TagSize]byte, msg []byte, key *[32]byte) {
	m := New(key)
	m.Write(msg)
	m.Sum(out)
}

// Verify reports whether mac authenticates msg under key, in constant time.
func Verify(mac *[TagSize]byte, msg []byte, key *[32]byte) bool {
	var computed [TagSize]byte
	Sum(&computed, msg, key)
	return Equal(mac[:], computed[:])
}

// Equal compares two tags with an OR-accumulated byte loop.
func Equal(a, b []byte) bool {
	if len(a) != TagSize || len(b) != TagSize {
		return false
	}
	var diff byte
	for i := 0; i < TagSize; i++ {
		diff |= a[i] ^ b[i]
	}
	return diff == 0
}
