// Package slot encodes availability grid cells as compact string identifiers.
//
// A cell is addressed by the index of its date within the meeting schedule and
// the hour of day. The wire format is "d<day>_h<hour>", for example "d0_h18".
package slot

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// MaxHour is the exclusive upper bound of the hour axis.
const MaxHour = 24

// ErrInvalid is returned when a string is not a slot identifier.
var ErrInvalid = errors.New("slot: invalid identifier")

// ID is an encoded grid cell.
type ID string

// Encode returns the identifier for the cell at day and hour.
func Encode(day, hour int) ID {
	return ID("d" + strconv.Itoa(day) + "_h" + strconv.Itoa(hour))
}

// Decode parses s into its day index and hour. ok is false for any string that
// Encode could not have produced.
func Decode(s string) (day, hour int, ok bool) {
	rest, found := strings.CutPrefix(s, "d")
	if !found {
		return 0, 0, false
	}
	dayPart, hourPart, found := strings.Cut(rest, "_h")
	if !found {
		return 0, 0, false
	}
	day, ok = parseIndex(dayPart)
	if !ok {
		return 0, 0, false
	}
	hour, ok = parseIndex(hourPart)
	if !ok || hour >= MaxHour {
		return 0, 0, false
	}
	return day, hour, true
}

// parseIndex accepts canonical non-negative decimals only.
func parseIndex(s string) (int, bool) {
	if s == "" || len(s) > 6 {
		return 0, false
	}
	if len(s) > 1 && s[0] == '0' {
		return 0, false
	}
	n := 0
	for _, c := range s {
		if c < '0' || c > '9' {
			return 0, false
		}
		n = n*10 + int(c-'0')
	}
	return n, true
}

// Parse decodes s into an ID, returning ErrInvalid when it is malformed.
func Parse(s string) (ID, error) {
	if _, _, ok := Decode(s); !ok {
		return "", fmt.Errorf("%w: %q", ErrInvalid, s)
	}
	return ID(s), nil
}

// Day returns the decoded day index, or -1 when id is malformed.
func (id ID) Day() int {
	d, _, ok := Decode(string(id))
	if !ok {
		return -1
	}
	return d
}

// Hour returns the decoded hour, or -1 when id is malformed.
func (id ID) Hour() int {
	_, h, ok := Decode(string(id))
	if !ok {
		return -1
	}
	return h
}

func (id ID) String() string { return string(id) }

// Compare orders identifiers by day, then hour. Malformed identifiers sort
// first, lexically.
func Compare(a, b ID) int {
	ad, ah, aok := Decode(string(a))
	bd, bh, bok := Decode(string(b))
	switch {
	case !aok && !bok:
		return strings.Compare(string(a), string(b))
	case !aok:
		return -1
	case !bok:
		return 1
	case ad != bd:
		return ad - bd
	default:
		return ah - bh
	}
}

// Enumerate lists every cell of a grid with dateCount days spanning
// [startHour, endHour), ordered by day then hour.
func Enumerate(dateCount, startHour, endHour int) []ID {
	if dateCount <= 0 || startHour < 0 || endHour > MaxHour || startHour >= endHour {
		return nil
	}
	ids := make([]ID, 0, dateCount*(endHour-startHour))
	for d := 0; d < dateCount; d++ {
		for h := startHour; h < endHour; h++ {
			ids = append(ids, Encode(d, h))
		}
	}
	return ids
}

// Grid describes the bounds of a schedule's availability grid.
type Grid struct {
	Days      int
	StartHour int
	EndHour   int
}

// Size is the number of cells in the grid.
func (g Grid) Size() int {
	if g.Days <= 0 || g.StartHour >= g.EndHour {
		return 0
	}
	return g.Days * (g.EndHour - g.StartHour)
}

// Contains reports whether id decodes to a cell inside the grid.
func (g Grid) Contains(id ID) bool {
	d, h, ok := Decode(string(id))
	if !ok {
		return false
	}
	return d < g.Days && h >= g.StartHour && h < g.EndHour
}

// Cells enumerates the grid.
func (g Grid) Cells() []ID {
	return Enumerate(g.Days, g.StartHour, g.EndHour)
}

// Normalize parses raw identifiers against the grid, removing duplicates and
// ordering the result. Identifiers that are malformed or outside the grid are
// returned in rejected, in input order.
func (g Grid) Normalize(raw []string) (ids []ID, rejected []string) {
	seen := make(map[ID]struct{}, len(raw))
	ids = make([]ID, 0, len(raw))
	for _, s := range raw {
		id := ID(s)
		if !g.Contains(id) {
			rejected = append(rejected, s)
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return Compare(ids[i], ids[j]) < 0 })
	return ids, rejected
}

// Strings converts ids to their wire form.
func Strings(ids []ID) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = string(id)
	}
	return out
}
