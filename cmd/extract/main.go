// Package main extracts the leaderboard from a saved page or a live URL and
// prints the records as JSON. Nothing is persisted.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"crypto-tracker/internal/domain"
	"crypto-tracker/internal/extraction"
	"crypto-tracker/internal/orchestrator"
	"crypto-tracker/internal/source"
)

type output struct {
	ExtractedAt time.Time             `json:"extracted_at"`
	RowSource   string                `json:"row_source"`
	Degraded    bool                  `json:"degraded"`
	RowsSeen    int                   `json:"rows_seen"`
	Records     []domain.SnapshotView `json:"records"`
	Skipped     []skippedRow          `json:"skipped,omitempty"`
}

type skippedRow struct {
	Index  int    `json:"index"`
	Reason string `json:"reason"`
	Error  string `json:"error"`
}

func main() {
	file := flag.String("file", "", "Path to a saved HTML page")
	url := flag.String("url", "", "Page URL to fetch (default source URL when -file is empty)")
	topN := flag.Int("top-n", orchestrator.DefaultTopN, fmt.Sprintf("Number of distinct assets to keep (at most %d)", orchestrator.MaxTopN))
	rowScanLimit := flag.Int("row-scan-limit", 0, "Maximum candidate rows to scan (0 = all)")
	timeout := flag.Duration("timeout", source.DefaultTimeout, "HTTP timeout per attempt")
	showSkipped := flag.Bool("show-skipped", false, "Include skipped rows in the output")
	flag.Parse()

	var src source.Source
	switch {
	case *file != "":
		src = &source.FileSource{Path: *file}
	case *url != "":
		src = source.NewHTTPSource(*url, source.WithTimeout(*timeout))
	default:
		src = source.NewHTTPSource(source.DefaultURL, source.WithTimeout(*timeout))
	}

	raw, err := src.Fetch(context.Background())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error fetching page: %v\n", err)
		os.Exit(1)
	}

	result, err := orchestrator.Collect(extraction.New(), raw, *topN, *rowScanLimit)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error extracting leaderboard: %v\n", err)
		os.Exit(1)
	}

	now := time.Now().UTC()
	out := output{
		ExtractedAt: now,
		RowSource:   result.RowSource,
		Degraded:    result.Degraded,
		RowsSeen:    result.RowsSeen,
		Records:     make([]domain.SnapshotView, len(result.Records)),
	}
	for i, rec := range result.Records {
		out.Records[i] = domain.NewSnapshot(rec, now).View()
	}
	if *showSkipped {
		for _, f := range result.Failures {
			out.Skipped = append(out.Skipped, skippedRow{Index: f.Index, Reason: f.Reason, Error: f.Err.Error()})
		}
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(out); err != nil {
		fmt.Fprintf(os.Stderr, "Error encoding output: %v\n", err)
		os.Exit(1)
	}

	if len(result.Records) == 0 {
		os.Exit(2)
	}
}
