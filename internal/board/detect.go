package board

// Outcome is the result of a winner scan.
type Outcome struct {
	Winner Mark  // MarkX, MarkO, or Empty when no winner
	Draw   bool  // true when the board is exhausted without a winner
	Line   []int // winning cell indexes, win-length long
}

func (o Outcome) None() bool {
	return o.Winner == Empty && !o.Draw
}

// Detect scans the board for winLength marks in a row, column, or diagonal.
// It is pure: the board is never mutated and the same input always yields
// the same outcome.
func Detect(b *Board, winLength int) Outcome {
	size := b.Size
	dirs := [4][2]int{
		{0, 1},  // right
		{1, 0},  // down
		{1, 1},  // down-right
		{1, -1}, // down-left
	}
	for row := 0; row < size; row++ {
		for col := 0; col < size; col++ {
			start := row*size + col
			mark := b.Cells[start]
			if mark == Empty || mark == Obstacle {
				continue
			}
			for _, d := range dirs {
				line := scanLine(b, row, col, d[0], d[1], winLength, mark)
				if line != nil {
					return Outcome{Winner: mark, Line: line}
				}
			}
		}
	}
	if b.Full() {
		return Outcome{Draw: true}
	}
	return Outcome{}
}

func scanLine(b *Board, row, col, dr, dc, winLength int, mark Mark) []int {
	size := b.Size
	endRow := row + (winLength-1)*dr
	endCol := col + (winLength-1)*dc
	if endRow < 0 || endRow >= size || endCol < 0 || endCol >= size {
		return nil
	}
	line := make([]int, 0, winLength)
	for i := 0; i < winLength; i++ {
		idx := (row+i*dr)*size + (col + i*dc)
		if b.Cells[idx] != mark {
			return nil
		}
		line = append(line, idx)
	}
	return line
}
