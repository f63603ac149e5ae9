// Package digest renders market snapshots as Telegram Markdown.
package digest

import (
	"fmt"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/deagle/cryptodigest/pkg/core"
)

const timeLayout = "02.01.2006 15:04"

// Unavailable is the reply used when no snapshot could be obtained.
const Unavailable = "❌ Sorry, market data is unavailable right now. Please try again later."

// Format builds the digest message for a snapshot. The timestamp in the
// header uses the wall clock passed in, so callers control the zone.
func Format(snapshot *core.Snapshot, now time.Time) string {
	if snapshot == nil {
		return Unavailable
	}

	var sb strings.Builder

	fmt.Fprintf(&sb, "📊 Crypto digest for %s (%s)\n\n", now.Format(timeLayout), now.Format("MST"))
	fmt.Fprintf(&sb, "💰 BTC dominance: *%.2f%%*\n", snapshot.BTCDominance)
	fmt.Fprintf(&sb, "📈 BTC price: *$%s* (%.2f%% in 24h)\n",
		humanize.CommafWithDigits(snapshot.BTCPrice, 0), snapshot.BTCChange24h)
	fmt.Fprintf(&sb, "💎 Total market cap: _$%s_ (%.2f%% in 24h)\n",
		humanize.CommafWithDigits(snapshot.TotalMarketCap, 0), snapshot.MarketCapChange24h)

	if snapshot.FearGreed != nil {
		emoji, label := classifySentiment(*snapshot.FearGreed)
		fmt.Fprintf(&sb, "%s Fear & Greed index: *%d* (%s)\n", emoji, *snapshot.FearGreed, label)
	}

	sb.WriteString("\n🏆 *Top-10 cryptocurrencies:*\n")
	for i, coin := range snapshot.TopCoins {
		trend := "📉"
		if coin.Change24h > 0 {
			trend = "📈"
		}
		fmt.Fprintf(&sb, "%d. %s (%s): $%s %s %.2f%%\n",
			i+1, coin.Name, strings.ToUpper(coin.Symbol),
			humanize.CommafWithDigits(coin.Price, 2), trend, coin.Change24h)
	}

	return sb.String()
}

func classifySentiment(index int) (emoji, label string) {
	switch {
	case index >= 75:
		return "😱", "Extreme greed"
	case index >= 60:
		return "😊", "Greed"
	case index >= 40:
		return "😐", "Neutral"
	case index >= 25:
		return "😨", "Fear"
	default:
		return "😱", "Extreme fear"
	}
}
