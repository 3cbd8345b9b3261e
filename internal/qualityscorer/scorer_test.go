package qualityscorer

import (
	"context"
	"errors"
	"testing"
	"time"
)

type fakeModel struct {
	responses []string
	errs      []error
	calls     int
}

func (f *fakeModel) Generate(_ context.Context, _, _ string, _ []byte) (string, error) {
	i := f.calls
	f.calls++
	var resp string
	var err error
	if i < len(f.responses) {
		resp = f.responses[i]
	}
	if i < len(f.errs) {
		err = f.errs[i]
	}
	return resp, err
}

func newTestScorer(model Model, retry RetryConfig) *Scorer {
	s := New(model, retry)
	s.sleepFn = func(time.Duration) {}
	return s
}

func TestScore_ParsesFirstIntegerOnSuccess(t *testing.T) {
	model := &fakeModel{responses: []string{"7"}}
	s := newTestScorer(model, DefaultRetryConfig())
	res := s.Score(context.Background(), "some text", nil)
	if res.Degraded || res.Score != 7 {
		t.Fatalf("expected score 7 non-degraded, got %+v", res)
	}
}

func TestScore_ClampsOutOfRangeScores(t *testing.T) {
	model := &fakeModel{responses: []string{"42"}}
	s := newTestScorer(model, DefaultRetryConfig())
	res := s.Score(context.Background(), "some text", nil)
	if res.Score != 10 {
		t.Fatalf("expected clamp to 10, got %d", res.Score)
	}
}

func TestScore_RetriesOnTransportErrorThenSucceeds(t *testing.T) {
	model := &fakeModel{
		responses: []string{"", "6"},
		errs:      []error{errors.New("network blip"), nil},
	}
	s := newTestScorer(model, RetryConfig{MaxAttempts: 3, BaseDelay: time.Millisecond, Budget: time.Second})
	res := s.Score(context.Background(), "some text", nil)
	if res.Degraded || res.Score != 6 {
		t.Fatalf("expected recovery on second attempt, got %+v", res)
	}
	if model.calls != 2 {
		t.Fatalf("expected exactly 2 attempts, got %d", model.calls)
	}
}

func TestScore_DegradesAfterExhaustingRetries(t *testing.T) {
	model := &fakeModel{errs: []error{
		errors.New("down"), errors.New("down"), errors.New("down"),
	}}
	s := newTestScorer(model, RetryConfig{MaxAttempts: 3, BaseDelay: time.Millisecond, Budget: time.Second})
	res := s.Score(context.Background(), "some text", nil)
	if !res.Degraded || res.Score != DegradedScore {
		t.Fatalf("expected degraded default, got %+v", res)
	}
	if model.calls != 3 {
		t.Fatalf("expected all 3 attempts used, got %d", model.calls)
	}
}

func TestScore_DegradesOnUnparsableResponse(t *testing.T) {
	model := &fakeModel{responses: []string{"not a number", "still not a number"}}
	s := newTestScorer(model, RetryConfig{MaxAttempts: 2, BaseDelay: time.Millisecond, Budget: time.Second})
	res := s.Score(context.Background(), "some text", nil)
	if !res.Degraded {
		t.Fatalf("expected degraded result on unparsable responses, got %+v", res)
	}
}

func TestParseScore_ExtractsNegativeAndClampsToZero(t *testing.T) {
	n, err := parseScore("-3 out of 10")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n != 0 {
		t.Fatalf("expected clamp to 0, got %d", n)
	}
}
