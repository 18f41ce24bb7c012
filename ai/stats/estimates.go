package stats

// TokenEstimate is the assumed cost of one call for providers that do not
// report usage.
type TokenEstimate struct {
	Input  int64
	Output int64
}

const defaultEstimateProvider = "grok"

var estimatedTokens = map[string]TokenEstimate{
	"grok":      {Input: 800, Output: 400},
	"gemini":    {Input: 1000, Output: 600},
	"anthropic": {Input: 1200, Output: 800},
	"atlasChat": {Input: 600, Output: 300},
}

// EstimateFor returns the per-call estimate for provider, falling back to
// grok's figures for unknown providers.
func EstimateFor(provider string) TokenEstimate {
	if est, ok := estimatedTokens[provider]; ok {
		return est
	}
	return estimatedTokens[defaultEstimateProvider]
}
