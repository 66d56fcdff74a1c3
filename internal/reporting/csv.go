package reporting

import (
	"encoding/csv"
	"strconv"
	"strings"
	"time"
)

var csvHeader = []string{
	"rank", "symbol", "name", "price", "change_24h", "change_direction",
	"market_cap", "volume_24h", "window_change", "history_points", "last_updated", "image_url",
}

// RenderCSV renders the leaderboard as a CSV string.
func RenderCSV(l *Leaderboard) (string, error) {
	var sb strings.Builder
	w := csv.NewWriter(&sb)

	if err := w.Write(csvHeader); err != nil {
		return "", err
	}

	for i, e := range l.Entries {
		s := e.Snapshot
		rank := strconv.Itoa(i + 1)
		if s.Rank != nil {
			rank = strconv.Itoa(*s.Rank)
		}
		window := ""
		if e.HasWindow {
			window = formatFloat(e.WindowChange)
		}
		row := []string{
			rank,
			s.Symbol,
			s.Name,
			formatFloat(s.Price),
			formatFloat(s.Change24h),
			string(s.ChangeDirection),
			formatFloat(s.MarketCap),
			formatFloat(s.Volume24h),
			window,
			strconv.Itoa(len(e.History)),
			s.LastUpdated.Format(time.RFC3339),
			s.ImageURL,
		}
		if err := w.Write(row); err != nil {
			return "", err
		}
	}

	w.Flush()
	return sb.String(), w.Error()
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
