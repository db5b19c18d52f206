package board

// Mark is the content of a single cell.
type Mark string

const (
	Empty    Mark = ""
	MarkX    Mark = "X"
	MarkO    Mark = "O"
	Obstacle Mark = "#"
)

// Board is a square grid of Size*Size cells indexed row-major.
type Board struct {
	Size  int
	Cells []Mark
}

func New(size int, obstacles []int) *Board {
	b := &Board{Size: size, Cells: make([]Mark, size*size)}
	for _, idx := range obstacles {
		if idx >= 0 && idx < len(b.Cells) {
			b.Cells[idx] = Obstacle
		}
	}
	return b
}

func (b *Board) InBounds(idx int) bool {
	return idx >= 0 && idx < len(b.Cells)
}

func (b *Board) At(idx int) Mark {
	return b.Cells[idx]
}

func (b *Board) Set(idx int, m Mark) {
	b.Cells[idx] = m
}

// Playable reports whether the cell exists and holds neither a mark nor an
// obstacle.
func (b *Board) Playable(idx int) bool {
	return b.InBounds(idx) && b.Cells[idx] == Empty
}

func (b *Board) Full() bool {
	for _, c := range b.Cells {
		if c == Empty {
			return false
		}
	}
	return true
}

// Strings returns the cells as plain strings for wire snapshots.
func (b *Board) Strings() []string {
	out := make([]string, len(b.Cells))
	for i, c := range b.Cells {
		out[i] = string(c)
	}
	return out
}
