// Package models defines data structures shared by the scraper packages.
package models

import "time"

// Book is one fully validated catalog item. Values are passed by copy and
// never modified after parsing.
type Book struct {
	Title        string  `csv:"title" json:"title"`
	Price        float64 `csv:"price" json:"price"`
	Rating       int     `csv:"rating" json:"rating"`
	Availability bool    `csv:"availability" json:"availability"`
	Category     string  `csv:"category" json:"category"`
	URL          string  `csv:"url" json:"url"`
}

// PageStat describes one fetched and parsed listing page.
type PageStat struct {
	Index    int           `json:"index"`
	URL      string        `json:"url"`
	Books    int           `json:"books"`
	Attempts int           `json:"attempts"`
	Latency  time.Duration `json:"latency"`
}

// RunResult holds the overall result of a catalog run.
type RunResult struct {
	Books      []Book
	Pages      []PageStat
	StartTime  time.Time
	EndTime    time.Time
	FetchCount int64
	StopReason string
}

// Elapsed returns the wall-clock duration of the run.
func (r *RunResult) Elapsed() time.Duration {
	if r == nil || r.EndTime.IsZero() {
		return 0
	}
	return r.EndTime.Sub(r.StartTime)
}
