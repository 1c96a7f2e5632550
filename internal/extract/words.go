package extract

import (
	"bufio"
	"bytes"
	_ "embed"
	"strings"
)

//go:embed english_words.txt
var englishWordsRaw []byte

var englishWords = loadWords(englishWordsRaw)

func loadWords(raw []byte) map[string]struct{} {
	words := make(map[string]struct{}, 2048)
	sc := bufio.NewScanner(bytes.NewReader(raw))
	for sc.Scan() {
		w := strings.TrimSpace(sc.Text())
		if w == "" {
			continue
		}
		words[w] = struct{}{}
	}
	return words
}

// isEnglishWord reports whether the lowercase token is a common English
// word. The list only carries words of the lengths a ticker token can
// have, so longer lookups always miss.
func isEnglishWord(lower string) bool {
	_, ok := englishWords[lower]
	return ok
}
