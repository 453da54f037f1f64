package sudoku

import "errors"

// MaxMaskOutput caps a single Mask call's output growth.
const MaxMaskOutput = 128 * 1024

// paddingThreshold is 0.3*2^16 scaled into the top 16 bits of the 32-bit
// compare space: a draw fires when the current RNG state is below it.
const paddingThreshold = uint32(19661) << 16

var ErrMaskCeiling = errors.New("sudoku: mask output ceiling exceeded")

// perm4 lists the 24 orderings a hint quadruple may be emitted in.
var perm4 = [24][4]uint8{
	{0, 1, 2, 3}, {0, 1, 3, 2}, {0, 2, 1, 3}, {0, 2, 3, 1},
	{0, 3, 1, 2}, {0, 3, 2, 1}, {1, 0, 2, 3}, {1, 0, 3, 2},
	{1, 2, 0, 3}, {1, 2, 3, 0}, {1, 3, 0, 2}, {1, 3, 2, 0},
	{2, 0, 1, 3}, {2, 0, 3, 1}, {2, 1, 0, 3}, {2, 1, 3, 0},
	{2, 3, 0, 1}, {2, 3, 1, 0}, {3, 0, 1, 2}, {3, 0, 2, 1},
	{3, 1, 0, 2}, {3, 1, 2, 0}, {3, 2, 0, 1}, {3, 2, 1, 0},
}

// Codec is per-session masking/unmasking state over a shared Table. The RNG
// only drives the send side; the 4-slot accumulator only the receive side.
// Neither end shares RNG state with its peer: padding and ordering are a
// plausibility cover, not a cipher.
type Codec struct {
	table *Table
	rng   uint32

	acc    [4]byte
	accLen int
}

// NewCodec derives the masking RNG from the same key fold as the table
// shuffle.
func NewCodec(table *Table, key []byte) (*Codec, error) {
	if len(key) < 8 {
		return nil, ErrShortKey
	}
	return &Codec{table: table, rng: lcgSeed(key)}, nil
}

func (c *Codec) next() uint32 {
	c.rng = lcgNext(c.rng)
	return c.rng
}

// maybePad appends one padding-pool byte with probability
// paddingThreshold/2^32. Every decision advances the LCG exactly once, plus
// one more advance for the pool index when it fires; the advance ordering
// is fixed so a masked stream is reproducible from the key.
func (c *Codec) maybePad(out []byte) []byte {
	if c.rng < paddingThreshold {
		idx := c.next() % uint32(len(c.table.pool))
		out = append(out, c.table.pool[idx])
	}
	c.next()
	return out
}

// Mask expands in into the hint stream: per byte, an optional padding draw,
// then one of the byte's candidate quadruples in one of 24 orders, with an
// independent padding draw before each hint byte, and a final trailing
// draw. Output is bounded by MaxMaskOutput.
func (c *Codec) Mask(in []byte) ([]byte, error) {
	if len(in) == 0 {
		return nil, nil
	}
	bound := 6*len(in) + 32
	if bound > MaxMaskOutput {
		bound = MaxMaskOutput
	}
	out := make([]byte, 0, bound)

	for _, b := range in {
		out = c.maybePad(out)

		count := c.table.encodeCount[b]
		if count == 0 {
			// Unreachable for a well-formed table; emit verbatim.
			out = append(out, b)
			continue
		}
		hintIdx := c.rng % uint32(count)
		c.next()
		hints := c.table.encode[b][hintIdx]
		perm := perm4[c.rng%24]
		c.next()

		for j := 0; j < 4; j++ {
			out = c.maybePad(out)
			out = append(out, hints[perm[j]])
		}

		if len(out) > MaxMaskOutput {
			return nil, ErrMaskCeiling
		}
	}

	if c.rng < paddingThreshold {
		idx := c.next() % uint32(len(c.table.pool))
		out = append(out, c.table.pool[idx])
	}
	return out, nil
}

// Unmask folds a hint stream back into bytes. Non-hint bytes are dropped;
// the 4-slot accumulator persists across calls, so arbitrary chunk
// boundaries decode identically. A quadruple that misses the decode table
// is discarded.
func (c *Codec) Unmask(in []byte) []byte {
	out := make([]byte, 0, len(in)/4+1)
	for _, b := range in {
		if !IsHint(b) {
			continue
		}
		c.acc[c.accLen] = b
		c.accLen++
		if c.accLen < 4 {
			continue
		}
		c.accLen = 0
		if v, ok := c.table.Lookup(PackKey(c.acc)); ok {
			out = append(out, v)
		}
	}
	return out
}
