package sudoku

// Grid is a solved 4x4 Sudoku laid out row-major. Cells hold 1..4.
type Grid [16]uint8

const (
	// NumGrids is the number of valid 4x4 grids.
	NumGrids = 288
	// NumCombinations is C(16,4), the number of 4-cell position sets.
	NumCombinations = 1820
)

// AllGrids enumerates every valid 4x4 grid by backtracking. The order is
// deterministic (cells filled left-to-right, candidates tried ascending),
// which the keyed shuffle in NewTable relies on.
func AllGrids() []Grid {
	grids := make([]Grid, 0, NumGrids)
	var g Grid
	var backtrack func(int)

	backtrack = func(idx int) {
		if idx == 16 {
			grids = append(grids, g)
			return
		}
		row, col := idx/4, idx%4
		br, bc := (row/2)*2, (col/2)*2
		for num := uint8(1); num <= 4; num++ {
			valid := true
			for i := 0; i < 4; i++ {
				if g[row*4+i] == num || g[i*4+col] == num {
					valid = false
					break
				}
			}
			if valid {
			box:
				for r := 0; r < 2; r++ {
					for c := 0; c < 2; c++ {
						if g[(br+r)*4+(bc+c)] == num {
							valid = false
							break box
						}
					}
				}
			}
			if valid {
				g[idx] = num
				backtrack(idx + 1)
				g[idx] = 0
			}
		}
	}
	backtrack(0)
	return grids
}

// allCombinations lists the C(16,4) position sets in lexicographic order.
func allCombinations() [][4]uint8 {
	combos := make([][4]uint8, 0, NumCombinations)
	for a := uint8(0); a < 13; a++ {
		for b := a + 1; b < 14; b++ {
			for c := b + 1; c < 15; c++ {
				for d := c + 1; d < 16; d++ {
					combos = append(combos, [4]uint8{a, b, c, d})
				}
			}
		}
	}
	return combos
}
