// Package stats summarizes recorded request timings.
package stats

import (
	"fmt"
	"io"
	"math"
	"slices"
	"text/tabwriter"
)

const precision = 2

// Stat summarizes one series of values.
type Stat struct {
	Count   int     `json:"count"`
	Total   float64 `json:"total"`
	Average float64 `json:"average"`
	StdDev  float64 `json:"stdDev"`
	Min     float64 `json:"min"`
	Max     float64 `json:"max"`
	P50     float64 `json:"p50"`
	P95     float64 `json:"p95"`
}

// Summarize computes the statistics of values. It does not modify values.
func Summarize(values []float64) Stat {
	if len(values) == 0 {
		return Stat{}
	}
	sorted := slices.Clone(values)
	slices.Sort(sorted)

	var total float64
	for _, v := range sorted {
		total += v
	}
	avg := total / float64(len(sorted))

	var sq float64
	for _, v := range sorted {
		sq += (v - avg) * (v - avg)
	}

	return Stat{
		Count:   len(sorted),
		Total:   round(total),
		Average: round(avg),
		StdDev:  round(math.Sqrt(sq / float64(len(sorted)))),
		Min:     sorted[0],
		Max:     sorted[len(sorted)-1],
		P50:     round(Percentile(50, sorted)),
		P95:     round(Percentile(95, sorted)),
	}
}

// Percentile interpolates the p-th percentile of sorted values.
func Percentile(p float64, sorted []float64) float64 {
	n := len(sorted)
	if n == 0 {
		return 0
	}
	if n == 1 {
		return sorted[0]
	}
	rank := (p / 100.0) * float64(n-1)
	idx := int(rank)
	if idx >= n-1 {
		return sorted[n-1]
	}
	weight := rank - float64(idx)
	return sorted[idx] + (sorted[idx+1]-sorted[idx])*weight
}

func round(v float64) float64 {
	mult := math.Pow10(precision)
	return math.Round(v*mult) / mult
}

// Row is one line of a request report.
type Row struct {
	Name     string
	Failures int
	Stat     Stat
}

// WriteTable renders rows as an aligned text table of milliseconds.
func WriteTable(w io.Writer, rows []Row) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(tw, "name\treqs\tfails\tavg\tmin\tmax\tp50\tp95\t")
	for _, r := range rows {
		fmt.Fprintf(tw, "%s\t%d\t%d\t%.2f\t%.2f\t%.2f\t%.2f\t%.2f\t\n",
			r.Name, r.Stat.Count, r.Failures,
			r.Stat.Average, r.Stat.Min, r.Stat.Max, r.Stat.P50, r.Stat.P95)
	}
	return tw.Flush()
}
