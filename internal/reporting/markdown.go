package reporting

import (
	"fmt"
	"strings"
	"time"

	"crypto-tracker/internal/domain"
)

// RenderMarkdown renders the leaderboard as a Markdown string.
func RenderMarkdown(l *Leaderboard) string {
	var sb strings.Builder

	sb.WriteString("# Crypto Leaderboard\n\n")
	sb.WriteString(fmt.Sprintf("Generated: %s\n\n", l.GeneratedAt.Format(time.RFC3339)))

	if len(l.Entries) == 0 {
		sb.WriteString("No snapshots stored yet.\n")
		return sb.String()
	}

	marketCap, volume := l.Totals()
	sb.WriteString(fmt.Sprintf("Assets: %d | Total Market Cap: %s | Total 24h Volume: %s\n\n",
		len(l.Entries), formatMoney(marketCap), formatMoney(volume)))

	sb.WriteString("| Rank | Symbol | Name | Price | 24h | Market Cap | 24h Volume | Window | Updated |\n")
	sb.WriteString("|------|--------|------|-------|-----|------------|------------|--------|---------|\n")
	for i, e := range l.Entries {
		s := e.Snapshot
		rank := fmt.Sprintf("%d", i+1)
		if s.Rank != nil {
			rank = fmt.Sprintf("%d", *s.Rank)
		}
		window := "n/a"
		if e.HasWindow {
			window = fmt.Sprintf("%+.2f%% (%d pts)", e.WindowChange, len(e.History))
		}
		sb.WriteString(fmt.Sprintf("| %s | %s | %s | %s | %s | %s | %s | %s | %s |\n",
			rank, s.Symbol, escapeCell(s.Name), formatPrice(s.Price), formatChange(s.Change24h, s.ChangeDirection),
			formatMoney(s.MarketCap), formatMoney(s.Volume24h), window, s.LastUpdated.Format(time.RFC3339)))
	}
	sb.WriteString("\n")

	sb.WriteString(fmt.Sprintf("Window: change over %s, from at most %d history points per asset.\n", l.Window, l.HistoryLimit))
	return sb.String()
}

func formatPrice(p float64) string {
	if p < 1 {
		return fmt.Sprintf("$%.6f", p)
	}
	return fmt.Sprintf("$%.2f", p)
}

func formatChange(change float64, direction domain.Direction) string {
	arrow := "="
	switch direction {
	case domain.DirectionUp:
		arrow = "▲"
	case domain.DirectionDown:
		arrow = "▼"
	}
	return fmt.Sprintf("%s %.2f%%", arrow, change)
}

// formatMoney abbreviates large amounts as $1.32T, $30.12B, $900.50M.
func formatMoney(v float64) string {
	switch {
	case v >= 1e12:
		return fmt.Sprintf("$%.2fT", v/1e12)
	case v >= 1e9:
		return fmt.Sprintf("$%.2fB", v/1e9)
	case v >= 1e6:
		return fmt.Sprintf("$%.2fM", v/1e6)
	default:
		return fmt.Sprintf("$%.0f", v)
	}
}

func escapeCell(s string) string {
	return strings.ReplaceAll(s, "|", "\\|")
}
