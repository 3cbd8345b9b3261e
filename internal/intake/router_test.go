package intake

import (
	"context"
	"testing"
	"time"

	"rewardengine/internal/config"
	"rewardengine/internal/contentindex"
	"rewardengine/internal/queue"
	"rewardengine/internal/scoring"
	"rewardengine/internal/scorestore"
)

func testRules() config.ScoringConfig {
	rules := config.ScoringConfig{Categories: map[config.Category]config.CategoryRule{}}
	for c, r := range map[config.Category]config.CategoryRule{
		config.CategoryPost:     {PointValue: 0.5, DailyLimit: 2, MonthlyCap: 30},
		config.CategoryLike:     {PointValue: 0.1, DailyLimit: 5, MonthlyCap: 15},
		config.CategoryComment:  {PointValue: 0.1, DailyLimit: 5, MonthlyCap: 15},
		config.CategoryReferral: {PointValue: 10, DailyLimit: 1, MonthlyCap: 10},
		config.CategoryTip:      {PointValue: 0.5, DailyLimit: 1, MonthlyCap: 20},
		config.CategoryCrypto:   {PointValue: 0.5, DailyLimit: 3, MonthlyCap: 20},
	} {
		rules.Categories[c] = r
	}
	rules.PostBase = 0.5
	rules.PostQualityBonusMax = 1.0
	rules.PostOriginalityBonusMax = 0.25
	rules.RegistrationBonus = 10
	rules.VerificationBonus = 10
	return rules
}

type fakeIndex struct {
	deleteErr error
	deletedID string
}

func (f *fakeIndex) Insert(context.Context, contentindex.Post) error { return nil }
func (f *fakeIndex) Nearest(context.Context, string, []byte) (contentindex.Match, bool, error) {
	return contentindex.Match{}, false, nil
}
func (f *fakeIndex) Delete(_ context.Context, postID, _ string) error {
	f.deletedID = postID
	return f.deleteErr
}
func (f *fakeIndex) Count(context.Context) (int, error) { return 0, nil }

type fakeQueue struct {
	enqueued []queue.Job
}

func (f *fakeQueue) Enqueue(_ context.Context, job queue.Job) error {
	f.enqueued = append(f.enqueued, job)
	return nil
}
func (f *fakeQueue) Reserve(context.Context, time.Duration) (queue.Reservation, error) {
	return queue.Reservation{}, queue.ErrEmpty
}
func (f *fakeQueue) Ack(context.Context, string) error             { return nil }
func (f *fakeQueue) RecoverExpired(context.Context) (int, error) { return 0, nil }

func TestSubmitAction_LikeAwardsPoints(t *testing.T) {
	engine := scoring.New(scorestore.NewMemoryStore(), testRules())
	r := New(engine, &fakeIndex{}, &fakeQueue{}, nil, testRules())

	res, err := r.SubmitAction(context.Background(), SubmitActionRequest{
		Creator: "creator1", Interactor: "user1", Type: ActionLike,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !res.Approved || res.Significance != 0.1 {
		t.Fatalf("expected approved like worth 0.1, got %+v", res)
	}
}

func TestSubmitAction_RejectsUnknownType(t *testing.T) {
	engine := scoring.New(scorestore.NewMemoryStore(), testRules())
	r := New(engine, &fakeIndex{}, &fakeQueue{}, nil, testRules())
	if _, err := r.SubmitAction(context.Background(), SubmitActionRequest{Type: ActionType("bogus")}); err == nil {
		t.Fatalf("expected error for unknown action type")
	}
}

func TestSubmitPost_Enqueues(t *testing.T) {
	engine := scoring.New(scorestore.NewMemoryStore(), testRules())
	q := &fakeQueue{}
	r := New(engine, &fakeIndex{}, q, nil, testRules())

	err := r.SubmitPost(context.Background(), SubmitPostRequest{
		Creator: "creator1", Interactor: "user1", Content: "hello world", PostID: "p1",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(q.enqueued) != 1 || q.enqueued[0].PostID != "p1" {
		t.Fatalf("expected job enqueued for p1, got %+v", q.enqueued)
	}
}

func TestDeletePost_RefundsExactAward(t *testing.T) {
	store := scorestore.NewMemoryStore()
	engine := scoring.New(store, testRules())
	idx := &fakeIndex{}
	r := New(engine, idx, &fakeQueue{}, nil, testRules())
	ctx := context.Background()

	apply, err := engine.Apply(ctx, "user1", config.CategoryPost, scoring.PostContext{Quality: 10, Originality: 1})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := engine.RecordPostAward(ctx, scorestore.PostAward{
		PostID: "p1", UserID: "user1", AwardedDelta: apply.Delta, AwardedAt: apply.Timestamp,
	}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	status, err := r.DeletePost(ctx, "p1", "user1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if status != DeletePostOK {
		t.Fatalf("expected deleted status, got %v", status)
	}
	score, err := engine.CurrentScore(ctx, "user1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if score != 0 {
		t.Fatalf("expected refund to zero out score, got %v", score)
	}
}

func TestDeletePost_MapsIndexErrorsToStatus(t *testing.T) {
	engine := scoring.New(scorestore.NewMemoryStore(), testRules())

	notFound := New(engine, &fakeIndex{deleteErr: contentindex.ErrNotFound}, &fakeQueue{}, nil, testRules())
	status, err := notFound.DeletePost(context.Background(), "p1", "user1")
	if err != nil || status != DeletePostNotFound {
		t.Fatalf("expected not_found status, got status=%v err=%v", status, err)
	}

	forbidden := New(engine, &fakeIndex{deleteErr: contentindex.ErrUserMismatch}, &fakeQueue{}, nil, testRules())
	status, err = forbidden.DeletePost(context.Background(), "p1", "user2")
	if err != nil || status != DeletePostForbidden {
		t.Fatalf("expected forbidden status, got status=%v err=%v", status, err)
	}
}

func TestCreditOneTimeBonus_CreditsEachBonusOncePerUser(t *testing.T) {
	engine := scoring.New(scorestore.NewMemoryStore(), testRules())
	r := New(engine, &fakeIndex{}, &fakeQueue{}, nil, testRules())
	ctx := context.Background()

	first, err := r.CreditOneTimeBonus(ctx, "user1", BonusRegistration)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if first.Delta != 10 {
		t.Fatalf("expected registration bonus of 10, got %+v", first)
	}

	second, err := r.CreditOneTimeBonus(ctx, "user1", BonusRegistration)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if second.Delta != 0 {
		t.Fatalf("expected repeat registration bonus to be a no-op, got %+v", second)
	}

	verification, err := r.CreditOneTimeBonus(ctx, "user1", BonusVerification)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if verification.Delta != 10 {
		t.Fatalf("expected verification bonus of 10 despite registration already claimed, got %+v", verification)
	}
}

func TestCreditOneTimeBonus_RejectsUnknownBonus(t *testing.T) {
	engine := scoring.New(scorestore.NewMemoryStore(), testRules())
	r := New(engine, &fakeIndex{}, &fakeQueue{}, nil, testRules())
	if _, err := r.CreditOneTimeBonus(context.Background(), "user1", OneTimeBonus("bogus")); err == nil {
		t.Fatalf("expected error for unknown bonus")
	}
}
