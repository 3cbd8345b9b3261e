// Package gibberish implements the Gibberish Classifier (C4): a pure
// function text -> {ok, gibberish, reason}, applying a rule-based check,
// a statistical check, and an optional ML classifier in order. The
// first positive signal fails the text (spec.md §4.4).
package gibberish

import (
	"strings"
	"unicode"
)

// Result is the classifier's verdict.
type Result struct {
	Gibberish bool
	Reason    string
}

// MLVerdict is what an external ML classifier returns for one text.
type MLVerdict struct {
	IsGibberish bool
	Confidence  float64
}

// MLClassifier is the pluggable black-box stage from spec.md §4.4. A nil
// MLClassifier is treated as absent, not as a failure.
type MLClassifier interface {
	Classify(text string) (MLVerdict, error)
}

// Thresholds carries the tunable values from config (spec.md §4.1).
type Thresholds struct {
	ConsonantRunRatio float64
	MeanTokenLength   float64
	MLConfidence      float64
}

var keyboardPatterns = []string{
	"qwerty", "asdf", "zxcv", "qazwsx", "wsxedc", "rfvtgb", "yhnujm",
	"abcdef", "123456", "aaaaaa", "xxxxxx", "zzzzz",
}

const vowels = "aeiou"

// Classifier runs the three-stage pipeline.
type Classifier struct {
	thresholds Thresholds
	ml         MLClassifier // optional; nil is fail-open per spec.md §4.4
}

func New(thresholds Thresholds, ml MLClassifier) *Classifier {
	return &Classifier{thresholds: thresholds, ml: ml}
}

// Classify returns {Gibberish: false} when the text passes all stages.
// An ML classifier error is treated as "ok" (fail-open); it never blocks
// otherwise-valid content (spec.md §4.4).
func (c *Classifier) Classify(text string) Result {
	cleaned := strings.ToLower(strings.TrimSpace(text))

	if res, bad := ruleBasedCheck(cleaned, c.thresholds); bad {
		return res
	}
	if res, bad := statisticalCheck(cleaned, c.thresholds); bad {
		return res
	}
	if c.ml != nil {
		verdict, err := c.ml.Classify(text)
		if err == nil && verdict.IsGibberish && verdict.Confidence >= c.thresholds.MLConfidence {
			return Result{Gibberish: true, Reason: "ml classifier"}
		}
	}
	return Result{Gibberish: false}
}

func ruleBasedCheck(text string, t Thresholds) (Result, bool) {
	if len(text) < 3 {
		return Result{Gibberish: true, Reason: "too short"}, true
	}

	distinct := make(map[rune]struct{})
	for _, r := range text {
		if r == ' ' {
			continue
		}
		distinct[r] = struct{}{}
	}
	if len(distinct) < 3 {
		return Result{Gibberish: true, Reason: "excessive character repetition"}, true
	}

	for _, pattern := range keyboardPatterns {
		if strings.Contains(text, pattern) || strings.Contains(text, reverseString(pattern)) {
			return Result{Gibberish: true, Reason: "keyboard pattern"}, true
		}
	}

	letters := lettersOnly(text)
	if len(letters) == 0 {
		return Result{}, false
	}
	vowelCount, consonantCount := 0, 0
	for _, r := range letters {
		switch {
		case strings.ContainsRune(vowels, r):
			vowelCount++
		case unicode.IsLetter(r):
			consonantCount++
		}
	}
	total := len(letters)
	consonantRatio := float64(consonantCount) / float64(total)
	vowelRatio := float64(vowelCount) / float64(total)
	if consonantRatio > t.ConsonantRunRatio || (vowelRatio < 0.1 && total > 8) {
		return Result{Gibberish: true, Reason: "vowel/consonant ratio"}, true
	}
	return Result{}, false
}

var commonNoVowelWords = map[string]struct{}{
	"by": {}, "my": {}, "gym": {}, "fly": {}, "try": {}, "cry": {}, "dry": {},
	"fry": {}, "shy": {}, "spy": {}, "why": {}, "mr": {}, "mrs": {}, "dr": {},
	"st": {}, "rd": {}, "nd": {}, "th": {},
}

func statisticalCheck(text string, t Thresholds) (Result, bool) {
	words := strings.Fields(text)
	if len(words) < 3 {
		return Result{}, false
	}

	var totalLen, actualWords int
	for _, w := range words {
		if hasAlpha(w) {
			totalLen += len([]rune(w))
			actualWords++
		}
	}
	if actualWords > 0 {
		mean := float64(totalLen) / float64(actualWords)
		if mean >= t.MeanTokenLength {
			return Result{Gibberish: true, Reason: "mean token length"}, true
		}
	}

	noVowelCount := 0
	for _, w := range words {
		lw := strings.ToLower(w)
		if isNumeric(w) || len(w) <= 2 {
			continue
		}
		if _, ok := commonNoVowelWords[lw]; ok {
			continue
		}
		if len(w) > 3 && !strings.ContainsAny(lw, vowels) {
			noVowelCount++
		}
	}
	if len(words) > 0 && float64(noVowelCount)/float64(len(words)) > 0.7 {
		return Result{Gibberish: true, Reason: "tokens without vowels"}, true
	}

	alpha := lettersOnly(text)
	if len(alpha) > 0 {
		freq := make(map[rune]int)
		for _, r := range alpha {
			freq[r]++
		}
		maxFreq := 0
		for _, n := range freq {
			if n > maxFreq {
				maxFreq = n
			}
		}
		if float64(maxFreq)/float64(len(alpha)) > 0.5 {
			return Result{Gibberish: true, Reason: "character frequency entropy"}, true
		}
	}

	return Result{}, false
}

func lettersOnly(text string) []rune {
	var out []rune
	for _, r := range text {
		if unicode.IsLetter(r) {
			out = append(out, r)
		}
	}
	return out
}

func hasAlpha(s string) bool {
	for _, r := range s {
		if unicode.IsLetter(r) {
			return true
		}
	}
	return false
}

func isNumeric(s string) bool {
	for _, r := range s {
		if !unicode.IsDigit(r) {
			return false
		}
	}
	return len(s) > 0
}

func reverseString(s string) string {
	runes := []rune(s)
	for i, j := 0, len(runes)-1; i < j; i, j = i+1, j-1 {
		runes[i], runes[j] = runes[j], runes[i]
	}
	return string(runes)
}
