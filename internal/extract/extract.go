// Package extract counts cryptocurrency mentions in a Reddit comment
// tree. A mention is either a known ticker symbol appearing as a short
// standalone word, or a coin name appearing anywhere in a comment body.
package extract

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"unicode"

	"github.com/Dan6erbond/reddit-comments-crypto-counter/internal/catalog"
	"github.com/Dan6erbond/reddit-comments-crypto-counter/internal/models"
	"github.com/Dan6erbond/reddit-comments-crypto-counter/internal/reddit"
)

const (
	minTokenLen = 2
	maxTokenLen = 5
)

// Expander resolves deferred comment-tree branches during analysis.
// *reddit.Client satisfies it.
type Expander interface {
	ExpandMore(ctx context.Context, more *reddit.More) ([]reddit.Node, error)
}

// Exclusion builds the case-insensitive author set Analyze skips over.
// Empty names are dropped.
func Exclusion(authors ...string) map[string]struct{} {
	set := make(map[string]struct{}, len(authors))
	for _, author := range authors {
		if author == "" {
			continue
		}
		set[strings.ToLower(author)] = struct{}{}
	}
	return set
}

// Analyze walks the comment tree breadth-first, expanding deferred
// branches through the expander, and returns mentions ranked by count
// (descending, first-encountered order breaking ties) together with the
// number of comments analyzed. Comments whose author is in exclude are
// skipped but their replies are still walked. An expansion failure
// aborts the whole pass: a partial count would under-report whatever
// the unexpanded branches contain.
func Analyze(ctx context.Context, nodes []reddit.Node, dict *catalog.Dict, exclude map[string]struct{}, expander Expander) ([]models.RankedMention, int, error) {
	counts := make(map[string]int)
	var order []string
	analyzed := 0

	queue := make([]reddit.Node, len(nodes))
	copy(queue, nodes)

	for len(queue) > 0 {
		node := queue[0]
		queue = queue[1:]

		if node.More != nil {
			expanded, err := expander.ExpandMore(ctx, node.More)
			if err != nil {
				return nil, 0, fmt.Errorf("failed to expand comment branch: %w", err)
			}
			queue = append(queue, expanded...)
			continue
		}

		comment := node.Comment
		if comment == nil {
			continue
		}
		queue = append(queue, comment.Replies...)

		if _, skip := exclude[strings.ToLower(comment.Author)]; skip {
			continue
		}
		analyzed++

		for _, symbol := range commentMentions(comment.Body, dict) {
			if counts[symbol] == 0 {
				order = append(order, symbol)
			}
			counts[symbol]++
		}
	}

	if len(order) == 0 {
		return nil, analyzed, nil
	}
	ranked := make([]models.RankedMention, 0, len(order))
	for _, symbol := range order {
		ranked = append(ranked, models.RankedMention{Ticker: symbol, Count: counts[symbol]})
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Count > ranked[j].Count
	})
	return ranked, analyzed, nil
}

// commentMentions returns the distinct symbols mentioned in one comment
// body, each at most once regardless of how often it repeats.
func commentMentions(body string, dict *catalog.Dict) []string {
	seen := make(map[string]struct{})
	var symbols []string

	for _, tok := range tokenize(body) {
		lower := strings.ToLower(tok.text)
		if !dict.HasSymbol(lower) {
			continue
		}
		// A token that is also an ordinary English word only counts
		// when the author signals a ticker: a $ sigil or all caps.
		if !tok.sigil && isEnglishWord(lower) && !isAllUpper(tok.text) {
			continue
		}
		if _, ok := seen[lower]; ok {
			continue
		}
		seen[lower] = struct{}{}
		symbols = append(symbols, lower)
	}

	lowerBody := strings.ToLower(body)
	for _, entry := range dict.Entries() {
		if _, ok := seen[entry.Symbol]; ok {
			continue
		}
		if !strings.Contains(lowerBody, entry.Name) {
			continue
		}
		seen[entry.Symbol] = struct{}{}
		symbols = append(symbols, entry.Symbol)
	}

	return symbols
}

// token is one candidate ticker occurrence: a standalone run of ASCII
// letters plus whether a $ immediately preceded it.
type token struct {
	text  string
	sigil bool
}

// tokenize extracts standalone ASCII-letter runs of ticker length.
// Runs touching digits or underscores are part of a larger word and are
// skipped, matching word-boundary semantics.
func tokenize(body string) []token {
	runes := []rune(body)
	var tokens []token
	i := 0
	for i < len(runes) {
		if !isASCIILetter(runes[i]) {
			i++
			continue
		}
		start := i
		for i < len(runes) && isASCIILetter(runes[i]) {
			i++
		}
		length := i - start
		if length < minTokenLen || length > maxTokenLen {
			continue
		}
		if start > 0 && isWordRune(runes[start-1]) {
			continue
		}
		if i < len(runes) && isWordRune(runes[i]) {
			continue
		}
		tokens = append(tokens, token{
			text:  string(runes[start:i]),
			sigil: start > 0 && runes[start-1] == '$',
		})
	}
	return tokens
}

func isASCIILetter(r rune) bool {
	return (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z')
}

func isWordRune(r rune) bool {
	return r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r)
}

func isAllUpper(s string) bool {
	for _, r := range s {
		if r < 'A' || r > 'Z' {
			return false
		}
	}
	return true
}
