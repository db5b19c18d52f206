package progression

// XP awards per result.
const (
	XPWin  = 60
	XPDraw = 30
	XPLoss = 15
)

// XPForLevel is the amount needed to move from `level` to the next one.
// It grows with the level so high levels take longer.
func XPForLevel(level int) int64 {
	if level < 1 {
		level = 1
	}
	return int64(100 + (level-1)*50)
}

// ApplyXP adds gained XP to the current level/xp pair and resolves
// level-ups by repeated subtraction against the per-level requirement.
func ApplyXP(level int, xp, gained int64) (int, int64) {
	if level < 1 {
		level = 1
	}
	xp += gained
	for xp >= XPForLevel(level) {
		xp -= XPForLevel(level)
		level++
	}
	return level, xp
}

func XPForResult(outcome string) int64 {
	switch outcome {
	case "win":
		return XPWin
	case "draw":
		return XPDraw
	default:
		return XPLoss
	}
}
