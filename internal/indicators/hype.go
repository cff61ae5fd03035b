package indicators

import (
	"sort"

	"memecoin-trade-bot-go/internal/models"
)

// HypeEntry ranks a coin by recent price range weighted by its strongest volume change.
type HypeEntry struct {
	CoinID    string  `json:"coin_id"`
	MinPrice  float64 `json:"min_price"`
	MaxPrice  float64 `json:"max_price"`
	MaxVolume float64 `json:"max_volume_change"`
	Samples   int     `json:"count"`
	HypeScore float64 `json:"hype_score"`
}

// RankHype scores each coin as (max-min) * max volume change, using 1 for the
// volume factor when no positive change was seen, and returns the top limit entries.
func RankHype(points []models.PricePoint, limit int) []HypeEntry {
	byCoin := make(map[string]*HypeEntry)
	var order []string
	for _, p := range points {
		e, ok := byCoin[p.CoinID]
		if !ok {
			e = &HypeEntry{CoinID: p.CoinID, MinPrice: p.Price, MaxPrice: p.Price, MaxVolume: p.VolumeChange}
			byCoin[p.CoinID] = e
			order = append(order, p.CoinID)
		}
		e.MinPrice = min(e.MinPrice, p.Price)
		e.MaxPrice = max(e.MaxPrice, p.Price)
		e.MaxVolume = max(e.MaxVolume, p.VolumeChange)
		e.Samples++
	}

	entries := make([]HypeEntry, 0, len(order))
	for _, id := range order {
		e := byCoin[id]
		factor := e.MaxVolume
		if factor <= 0 {
			factor = 1
		}
		e.HypeScore = (e.MaxPrice - e.MinPrice) * factor
		entries = append(entries, *e)
	}

	sort.SliceStable(entries, func(i, j int) bool { return entries[i].HypeScore > entries[j].HypeScore })
	if limit > 0 && len(entries) > limit {
		entries = entries[:limit]
	}
	return entries
}
