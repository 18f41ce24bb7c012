package quality

import (
	"regexp"
	"sync"
)

// Precompiled patterns used on every assessed answer.
var (
	// pricePattern matches a number directly followed by a currency marker.
	// The capture group is the numeric part including thousands separators.
	pricePattern = sync.OnceValue(func() *regexp.Regexp {
		return regexp.MustCompile(`(\d[\d\s,.]*)\s*[€$£MAD]`)
	})

	// priceSeparatorPattern strips separators from captured prices.
	priceSeparatorPattern = sync.OnceValue(func() *regexp.Regexp {
		return regexp.MustCompile(`[\s,.]`)
	})

	// refusalPattern matches answers where the model declines instead of
	// using the supplied knowledge.
	refusalPattern = sync.OnceValue(func() *regexp.Regexp {
		return regexp.MustCompile(`(?i)I cannot|I can['’]t assist|I['’]m unable|I am unable|I don['’]t have|I['’]m not able|As an AI|Je ne peux pas|Je suis incapable|Je n['’]ai pas accès|No puedo|No tengo acceso|لا أستطيع|ما نقدرش`)
	})

	// sentenceSplitPattern splits an answer into sentences for repetition checks.
	sentenceSplitPattern = sync.OnceValue(func() *regexp.Regexp {
		return regexp.MustCompile(`[.!?]+`)
	})
)

// extractPrices returns the normalized numeric tokens adjacent to a
// currency marker, in order of appearance.
func extractPrices(text string) []string {
	matches := pricePattern().FindAllStringSubmatch(text, -1)
	if len(matches) == 0 {
		return nil
	}
	prices := make([]string, 0, len(matches))
	for _, m := range matches {
		prices = append(prices, priceSeparatorPattern().ReplaceAllString(m[1], ""))
	}
	return prices
}
