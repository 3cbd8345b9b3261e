package gibberish

import "testing"

func defaultThresholds() Thresholds {
	return Thresholds{ConsonantRunRatio: 0.85, MeanTokenLength: 20, MLConfidence: 0.85}
}

func TestClassify_AcceptsOrdinaryProse(t *testing.T) {
	c := New(defaultThresholds(), nil)
	res := c.Classify("This was a genuinely thoughtful post about the weekend hike.")
	if res.Gibberish {
		t.Fatalf("expected ordinary prose to pass, got reason %q", res.Reason)
	}
}

func TestClassify_RejectsKeyboardMash(t *testing.T) {
	c := New(defaultThresholds(), nil)
	res := c.Classify("asdf asdf qwerty qwerty zxcv zxcv")
	if !res.Gibberish {
		t.Fatalf("expected keyboard mash to be flagged as gibberish")
	}
}

func TestClassify_RejectsTooShort(t *testing.T) {
	c := New(defaultThresholds(), nil)
	res := c.Classify("hi")
	if !res.Gibberish || res.Reason != "too short" {
		t.Fatalf("expected too-short rejection, got %+v", res)
	}
}

func TestClassify_RejectsHighConsonantRun(t *testing.T) {
	c := New(defaultThresholds(), nil)
	res := c.Classify("bcdfghjklmnpqrstvwxyz bcdfg")
	if !res.Gibberish {
		t.Fatalf("expected consonant-heavy text to be flagged")
	}
}

func TestClassify_StatisticalNoVowelWords(t *testing.T) {
	c := New(defaultThresholds(), nil)
	res := c.Classify("xkcd zzyzx qwrtp mnbvc flktg")
	if !res.Gibberish {
		t.Fatalf("expected mostly-no-vowel tokens to be flagged")
	}
}

func TestClassify_CommonNoVowelWordsAreExempt(t *testing.T) {
	c := New(defaultThresholds(), nil)
	res := c.Classify("I will try to fly by my gym on the way to Mr and Mrs Smith's place")
	if res.Gibberish {
		t.Fatalf("expected common no-vowel words to be exempted, got reason %q", res.Reason)
	}
}

type fakeML struct {
	verdict MLVerdict
	err     error
}

func (f fakeML) Classify(string) (MLVerdict, error) { return f.verdict, f.err }

func TestClassify_MLStageFlagsAboveConfidence(t *testing.T) {
	c := New(defaultThresholds(), fakeML{verdict: MLVerdict{IsGibberish: true, Confidence: 0.95}})
	res := c.Classify("A perfectly reasonable sentence that passes the earlier stages fine.")
	if !res.Gibberish || res.Reason != "ml classifier" {
		t.Fatalf("expected ml classifier rejection, got %+v", res)
	}
}

func TestClassify_MLStageFailsOpenOnError(t *testing.T) {
	c := New(defaultThresholds(), fakeML{err: errBoom})
	res := c.Classify("A perfectly reasonable sentence that passes the earlier stages fine.")
	if res.Gibberish {
		t.Fatalf("expected ml classifier error to fail open, got %+v", res)
	}
}

var errBoom = errSentinel("boom")

type errSentinel string

func (e errSentinel) Error() string { return string(e) }
