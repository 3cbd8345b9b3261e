// Package validator implements the Validator (C6): it composes the
// gibberish classifier, content index, and quality scorer into the
// single decision a post submission needs (spec.md §4.6).
package validator

import (
	"context"
	"fmt"

	"rewardengine/internal/contentindex"
	"rewardengine/internal/gibberish"
	"rewardengine/internal/qualityscorer"
)

// Decision is the validator's verdict for one post submission.
type Decision struct {
	Accepted    bool
	Reason      string
	Quality     int
	Originality float64
	Degraded    bool
}

type GibberishChecker interface {
	Classify(text string) gibberish.Result
}

type QualityScorer interface {
	Score(ctx context.Context, text string, image []byte) qualityscorer.Result
}

// Validator wires C4, C3, and C5 per the spec's five-step algorithm.
type Validator struct {
	gibberish         GibberishChecker
	index             contentindex.Index
	quality           QualityScorer
	duplicateDistance float64
}

func New(g GibberishChecker, idx contentindex.Index, q QualityScorer, duplicateDistance float64) *Validator {
	return &Validator{gibberish: g, index: idx, quality: q, duplicateDistance: duplicateDistance}
}

// Validate runs the five-step algorithm from spec.md §4.6. On
// acceptance, the post has already been inserted into the content
// index under post.PostID.
func (v *Validator) Validate(ctx context.Context, post contentindex.Post) (Decision, error) {
	if res := v.gibberish.Classify(post.Content); res.Gibberish {
		return Decision{Accepted: false, Reason: "gibberish: " + res.Reason}, nil
	}

	match, found, err := v.index.Nearest(ctx, post.Content, post.Image)
	if err != nil {
		return Decision{}, fmt.Errorf("nearest neighbor lookup: %w", err)
	}
	if found && match.Distance <= v.duplicateDistance {
		return Decision{Accepted: false, Reason: "duplicate of " + match.MatchedID}, nil
	}

	originality := 1.0
	if found {
		originality = match.Distance
		if originality > 1.0 {
			originality = 1.0
		}
	}

	qres := v.quality.Score(ctx, post.Content, post.Image)

	if err := v.index.Insert(ctx, post); err != nil {
		if err == contentindex.ErrConflict {
			return Decision{Accepted: false, Reason: "post_id conflict"}, nil
		}
		return Decision{}, fmt.Errorf("insert into content index: %w", err)
	}

	return Decision{
		Accepted:    true,
		Quality:     qres.Score,
		Originality: originality,
		Degraded:    qres.Degraded,
	}, nil
}
