// Package scheduler scores availability grids. It is pure: callers pass the
// grid bounds and the approved participants' selections and get back counts,
// rankings and heatmaps.
package scheduler

import (
	"sort"

	"github.com/example/meetgrid/internal/slot"
)

// TopN is the number of entries returned in Ranking.Top.
const TopN = 5

// Voter is one approved participant's selection.
type Voter struct {
	ID    string
	Name  string
	Slots []string
}

// Score describes agreement on a single slot.
type Score struct {
	Slot      slot.ID
	Count     int
	Attendees []string
	Missing   []string
	Ratio     float64
}

// Ranking is the result of Rank.
type Ranking struct {
	Total int
	// Perfect holds slots every voter selected.
	Perfect []Score
	// Best holds the slots tied at the highest count, only when Perfect is empty.
	Best []Score
	// Top holds up to TopN slots with at least one vote, highest count first.
	Top []Score
}

// Empty reports whether nothing could be ranked.
func (r Ranking) Empty() bool {
	return len(r.Perfect) == 0 && len(r.Best) == 0 && len(r.Top) == 0
}

// Rank scores every grid cell against voters. Selections outside the grid are
// ignored and a voter counts at most once per cell. Ties are ordered by day,
// then hour.
func Rank(grid slot.Grid, voters []Voter) Ranking {
	ranking := Ranking{Total: len(voters)}
	if grid.Size() == 0 || len(voters) == 0 {
		return ranking
	}

	scores := score(grid, voters)

	maxCount := 0
	for _, s := range scores {
		if s.Count > maxCount {
			maxCount = s.Count
		}
	}
	if maxCount == 0 {
		return ranking
	}

	for _, s := range scores {
		switch {
		case s.Count == ranking.Total:
			ranking.Perfect = append(ranking.Perfect, s)
		case s.Count == maxCount && maxCount < ranking.Total:
			ranking.Best = append(ranking.Best, s)
		}
	}

	ranked := make([]Score, 0, len(scores))
	for _, s := range scores {
		if s.Count > 0 {
			ranked = append(ranked, s)
		}
	}
	// scores are already in grid order, so a stable sort keeps (day, hour) ties ordered.
	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].Count > ranked[j].Count })
	if len(ranked) > TopN {
		ranked = ranked[:TopN]
	}
	ranking.Top = ranked
	return ranking
}

// Cell is one heatmap entry.
type Cell struct {
	Slot  slot.ID
	Count int
	Names []string
}

// Heatmap returns a cell for every grid slot in grid order, including empty ones.
func Heatmap(grid slot.Grid, voters []Voter) []Cell {
	scores := score(grid, voters)
	cells := make([]Cell, len(scores))
	for i, s := range scores {
		cells[i] = Cell{Slot: s.Slot, Count: s.Count, Names: s.Attendees}
	}
	return cells
}

func score(grid slot.Grid, voters []Voter) []Score {
	cells := grid.Cells()
	index := make(map[slot.ID]int, len(cells))
	for i, id := range cells {
		index[id] = i
	}

	picked := make([][]bool, len(cells))
	for i := range picked {
		picked[i] = make([]bool, len(voters))
	}
	for v, voter := range voters {
		for _, raw := range voter.Slots {
			if i, ok := index[slot.ID(raw)]; ok {
				picked[i][v] = true
			}
		}
	}

	scores := make([]Score, len(cells))
	for i, id := range cells {
		s := Score{Slot: id, Attendees: []string{}, Missing: []string{}}
		for v, voter := range voters {
			if picked[i][v] {
				s.Attendees = append(s.Attendees, voter.Name)
			} else {
				s.Missing = append(s.Missing, voter.Name)
			}
		}
		s.Count = len(s.Attendees)
		if len(voters) > 0 {
			s.Ratio = float64(s.Count) / float64(len(voters))
		}
		scores[i] = s
	}
	return scores
}
