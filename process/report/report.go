// Package report summarizes stored lap records per map.
package report

import (
	"fmt"
	"io"
	"sort"
	"text/tabwriter"

	"github.com/samber/lo"

	"lapboard/models"
	"lapboard/pkg/laptime"
)

// MapSummary is one row of the per-map report.
type MapSummary struct {
	MapName  string
	Records  int
	Drivers  int
	BestLap  string
	BestUser string
}

// Summarize groups records by map and picks the best lap of each group with
// the given ordering. Rows are sorted by map name.
func Summarize(records []models.LapRecord, ord laptime.Ordering) []MapSummary {
	groups := lo.GroupBy(records, models.MapNameOf)
	out := make([]MapSummary, 0, len(groups))
	for name, recs := range groups {
		ranked := laptime.RankBy(recs, models.LapTimeOf, models.MapNameOf, laptime.AllMaps, ord)
		best := ranked[0]
		out = append(out, MapSummary{
			MapName:  name,
			Records:  len(recs),
			Drivers:  len(lo.UniqBy(recs, func(r models.LapRecord) string { return r.Username })),
			BestLap:  best.LapTime,
			BestUser: best.Username,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].MapName < out[j].MapName })
	return out
}

// Write prints rows as an aligned table. With list set, every record is
// printed under its map in rank order.
func Write(w io.Writer, rows []MapSummary, records []models.LapRecord, ord laptime.Ordering, list bool) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "MAP\tRECORDS\tDRIVERS\tBEST\tBY")
	for _, r := range rows {
		fmt.Fprintf(tw, "%s\t%d\t%d\t%s\t%s\n", r.MapName, r.Records, r.Drivers, r.BestLap, r.BestUser)
		if !list {
			continue
		}
		for i, rec := range laptime.RankBy(records, models.LapTimeOf, models.MapNameOf, r.MapName, ord) {
			fmt.Fprintf(tw, "  %d.\t%s\t%s\t%s\t\n", i+1, rec.LapTime, rec.Username, rec.UploadedAt.In(laptime.Zone).Format("2006-01-02 15:04"))
		}
	}
	return tw.Flush()
}
