package laptime

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/samber/lo"
)

// AllMaps is the filter value that disables map filtering.
const AllMaps = "All"

var lapPartsRE = regexp.MustCompile(`^(\d{1,2}):(\d{2})\.(\d{2,3})$`)

// Ordering selects how lap times compare.
type Ordering int

const (
	// Lexical compares lap_time strings byte-wise. "10:05.000" sorts before
	// "9:10.000" under this ordering; stored data and clients depend on it.
	Lexical Ordering = iota
	// Numeric compares the elapsed time the string denotes.
	Numeric
)

// Rank returns the records matching mapFilter ordered by lexical lap time.
// An empty filter or AllMaps keeps every record. The input is not modified.
func Rank[T any](records []T, lapTime, mapName func(T) string, mapFilter string) []T {
	return RankBy(records, lapTime, mapName, mapFilter, Lexical)
}

// RankBy is Rank with an explicit ordering. Ties keep their input order.
func RankBy[T any](records []T, lapTime, mapName func(T) string, mapFilter string, ord Ordering) []T {
	out := lo.Filter(records, func(r T, _ int) bool {
		return mapFilter == "" || mapFilter == AllMaps || mapName(r) == mapFilter
	})
	less := func(i, j int) bool { return lapTime(out[i]) < lapTime(out[j]) }
	if ord == Numeric {
		less = func(i, j int) bool { return CompareNumeric(lapTime(out[i]), lapTime(out[j])) < 0 }
	}
	sort.SliceStable(out, less)
	return out
}

// RankRecords ranks normalized records.
func RankRecords(records []Record, mapFilter string) []Record {
	return Rank(records,
		func(r Record) string { return r.LapTime },
		func(r Record) string { return r.MapName },
		mapFilter)
}

// ParseLapTime converts a grammar-conforming lap time into a duration. Two
// fractional digits are hundredths, three are milliseconds.
func ParseLapTime(s string) (time.Duration, error) {
	m := lapPartsRE.FindStringSubmatch(strings.TrimSpace(s))
	if m == nil {
		return 0, fmt.Errorf("invalid lap time %q", s)
	}
	mins, _ := strconv.Atoi(m[1])
	sec, _ := strconv.Atoi(m[2])
	frac, _ := strconv.Atoi(m[3])
	if len(m[3]) == 2 {
		frac *= 10
	}
	return time.Duration(mins)*time.Minute +
		time.Duration(sec)*time.Second +
		time.Duration(frac)*time.Millisecond, nil
}

// CompareNumeric orders lap times by elapsed time. Unparseable values sort
// after every valid one and compare lexically among themselves.
func CompareNumeric(a, b string) int {
	da, errA := ParseLapTime(a)
	db, errB := ParseLapTime(b)
	switch {
	case errA != nil && errB != nil:
		return strings.Compare(a, b)
	case errA != nil:
		return 1
	case errB != nil:
		return -1
	case da < db:
		return -1
	case da > db:
		return 1
	}
	return 0
}

// MapNames returns the distinct map names in first-seen order.
func MapNames[T any](records []T, mapName func(T) string) []string {
	return lo.Uniq(lo.Map(records, func(r T, _ int) string { return mapName(r) }))
}
