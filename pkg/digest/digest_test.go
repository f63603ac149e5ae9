package digest

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/deagle/cryptodigest/pkg/core"
)

func sampleSnapshot() *core.Snapshot {
	index := 80
	return &core.Snapshot{
		BTCPrice:           97234.12,
		BTCChange24h:       2.41,
		TotalMarketCap:     3210000000000,
		MarketCapChange24h: 1.87,
		BTCDominance:       56.42,
		FearGreed:          &index,
		TopCoins: []core.Coin{
			{ID: "bitcoin", Name: "Bitcoin", Symbol: "btc", Price: 97234.12, Change24h: 2.41},
			{ID: "ethereum", Name: "Ethereum", Symbol: "eth", Price: 3421.55, Change24h: -1.12},
		},
	}
}

func TestFormatNilSnapshot(t *testing.T) {
	assert.Equal(t, Unavailable, Format(nil, time.Now()))
}

func TestFormatSections(t *testing.T) {
	now := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	message := Format(sampleSnapshot(), now)

	assert.Contains(t, message, "Crypto digest for 01.03.2025 09:00")
	assert.Contains(t, message, "BTC dominance: *56.42%*")
	assert.Contains(t, message, "BTC price: *$97,234* (2.41% in 24h)")
	assert.Contains(t, message, "Total market cap: _$3,210,000,000,000_")
	assert.Contains(t, message, "Fear & Greed index: *80* (Extreme greed)")
	assert.Contains(t, message, "1. Bitcoin (BTC): $97,234.12 📈 2.41%")
	assert.Contains(t, message, "2. Ethereum (ETH): $3,421.55 📉 -1.12%")
}

func TestFormatOmitsSentimentWhenAbsent(t *testing.T) {
	snapshot := sampleSnapshot()
	snapshot.FearGreed = nil

	message := Format(snapshot, time.Now())

	assert.NotContains(t, message, "Fear & Greed")
}

func TestSentimentBands(t *testing.T) {
	for index, want := range map[int]string{
		90: "Extreme greed",
		75: "Extreme greed",
		60: "Greed",
		45: "Neutral",
		30: "Fear",
		10: "Extreme fear",
	} {
		_, label := classifySentiment(index)
		assert.Equal(t, want, label, "index %d", index)
	}
}
