package extraction

import (
	"sort"

	"crypto-tracker/internal/normalization"
)

// reconcile fills a missing market cap or volume from the row's currency
// cells: the largest remaining amount becomes the market cap and the next
// largest the volume. The price and already-known amounts are excluded.
func reconcile(p *partial) {
	needCap := p.marketCap <= 0
	needVolume := p.volume <= 0
	if !needCap && !needVolume {
		return
	}

	var candidates []float64
	for _, text := range p.moneyCells {
		v := normalization.ParseMagnitude(text)
		if v <= 0 || v == p.price || v == p.marketCap || v == p.volume {
			continue
		}
		candidates = append(candidates, v)
	}
	sort.Sort(sort.Reverse(sort.Float64Slice(candidates)))

	if needCap && len(candidates) > 0 {
		p.marketCap = candidates[0]
		candidates = candidates[1:]
	}
	if needVolume && len(candidates) > 0 {
		p.volume = candidates[0]
	}
}
