// Package render formats analysis results as Reddit markdown.
package render

import (
	"fmt"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/Dan6erbond/reddit-comments-crypto-counter/internal/catalog"
	"github.com/Dan6erbond/reddit-comments-crypto-counter/internal/models"
)

const (
	coinPageURL     = "https://www.coingecko.com/en/coins/"
	timestampLayout = "01/02/2006, 15:04:05"
)

// Message builds the full reply body: intro, ranking table, timestamp
// and footer. With no mentions the table is replaced by a short notice.
func Message(ranked []models.RankedMention, coins []models.Coin, top int, now time.Time, footer string) string {
	var b strings.Builder
	if len(ranked) > 0 {
		fmt.Fprintf(&b, "I've analyzed the submission! These were the top %d crypto mentions:\n\n", top)
		b.WriteString(MarkdownTable(ranked, coins, top))
	} else {
		b.WriteString("I've analyzed the submission! Unfortunately, at the current time, no results were found.")
	}
	fmt.Fprintf(&b, "\n\nLast updated: %s", now.Format(timestampLayout))
	if footer != "" {
		b.WriteString("\n\n")
		b.WriteString(footer)
	}
	return b.String()
}

// MarkdownTable renders up to top ranked mentions as a markdown table.
// Tickers without a matching catalog coin are left out; the numbering
// still follows the rank within the full list.
func MarkdownTable(ranked []models.RankedMention, coins []models.Coin, top int) string {
	lines := []string{
		"Nr. | Count | Name | Ticker | Market Cap (USD) | Link",
		":--- |----:|:----|:------:|--------------:|:----",
	}
	for rank, mention := range ranked {
		if rank >= top {
			break
		}
		coin := catalog.BestBySymbol(mention.Ticker, coins)
		if coin == nil {
			continue
		}
		lines = append(lines, fmt.Sprintf("%d. | %d | %s | %s | %s | [CoinGecko ↗](%s%s)",
			rank+1, mention.Count, coin.Name, strings.ToUpper(mention.Ticker),
			marketCap(coin.MarketCap), coinPageURL, coin.ID))
	}
	return strings.Join(lines, "\n")
}

func marketCap(v *int64) string {
	if v == nil {
		return "n/a"
	}
	return "$" + humanize.Comma(*v)
}
