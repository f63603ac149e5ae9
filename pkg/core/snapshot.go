package core

import "time"

// Coin is one entry of the top list, ordered by market capitalization.
// JSON tags follow the CoinGecko markets payload.
type Coin struct {
	ID        string  `json:"id"`
	Name      string  `json:"name"`
	Symbol    string  `json:"symbol"`
	Price     float64 `json:"current_price"`
	Change24h float64 `json:"price_change_percentage_24h"`
}

// Snapshot is the aggregated market state served to users.
type Snapshot struct {
	BTCPrice           float64
	BTCChange24h       float64
	TotalMarketCap     float64
	MarketCapChange24h float64
	BTCDominance       float64
	FearGreed          *int // nil when the sentiment provider is unavailable
	TopCoins           []Coin
	FetchedAt          time.Time
}
