package qualityscorer

import (
	"context"
	"strconv"
	"strings"
)

// HeuristicModel is a deterministic local stand-in for the Gemini
// model, used when no model credentials are configured. It never
// errors, so the scorer's retry loop resolves on the first attempt
// rather than burning the retry budget against an unreachable API.
type HeuristicModel struct{}

func NewHeuristicModel() *HeuristicModel {
	return &HeuristicModel{}
}

func (m *HeuristicModel) Generate(_ context.Context, _ string, text string, image []byte) (string, error) {
	score := heuristicScore(text, image)
	return strconv.Itoa(score), nil
}

// heuristicScore rewards longer, more varied prose up to a point,
// standing in for "effort, creativity, and clarity" in the absence of
// a real model. It is not meant to be a faithful quality signal, only
// a stable, always-available default.
func heuristicScore(text string, image []byte) int {
	words := strings.Fields(text)
	wordCount := len(words)

	distinct := make(map[string]struct{}, wordCount)
	for _, w := range words {
		distinct[strings.ToLower(w)] = struct{}{}
	}

	score := 3
	switch {
	case wordCount >= 40:
		score += 4
	case wordCount >= 15:
		score += 3
	case wordCount >= 5:
		score += 1
	}
	if wordCount > 0 && float64(len(distinct))/float64(wordCount) > 0.6 {
		score += 2
	}
	if len(image) > 0 {
		score++
	}
	if score > 10 {
		score = 10
	}
	return score
}
