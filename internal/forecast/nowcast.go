package forecast

// Position is a listed (day, cycle) pair with the number of files it holds.
type Position struct {
	Cursor Cursor
	Files  int
}

// SelectNowcast picks the nowcast from positions ordered newest first: the
// newest position holding files. A catalog listing a single position is
// its own nowcast even while still empty.
func SelectNowcast(positions []Position) (Position, bool) {
	for _, p := range positions {
		if p.Files > 0 {
			return p, true
		}
	}
	if len(positions) == 1 {
		return positions[0], true
	}
	return Position{}, false
}
