package httpapi

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"rewardengine/internal/cohort"
	"rewardengine/internal/config"
	"rewardengine/internal/contentindex"
	"rewardengine/internal/intake"
	"rewardengine/internal/lock"
	"rewardengine/internal/queue"
	"rewardengine/internal/scorestore"
	"rewardengine/internal/scoring"
)

func testRules() config.ScoringConfig {
	rules := config.ScoringConfig{Categories: map[config.Category]config.CategoryRule{}}
	for c, r := range map[config.Category]config.CategoryRule{
		config.CategoryPost:     {Name: "posts", PointValue: 0.5, DailyLimit: 2, MonthlyCap: 30, EmpathyWeight: 0.25},
		config.CategoryLike:     {Name: "likes", PointValue: 0.1, DailyLimit: 5, MonthlyCap: 15, EmpathyWeight: 0.08},
		config.CategoryComment:  {Name: "comments", PointValue: 0.1, DailyLimit: 5, MonthlyCap: 15, EmpathyWeight: 0.08},
		config.CategoryReferral: {Name: "referrals", PointValue: 10, DailyLimit: 1, MonthlyCap: 10, EmpathyWeight: 0.05},
		config.CategoryTip:      {Name: "tipping", PointValue: 0.5, DailyLimit: 1, MonthlyCap: 20, EmpathyWeight: 0.05},
		config.CategoryCrypto:   {Name: "crypto", PointValue: 0.5, DailyLimit: 3, MonthlyCap: 20, EmpathyWeight: 0.09},
	} {
		rules.Categories[c] = r
	}
	rules.PostBase = 0.5
	rules.PostQualityBonusMax = 1.0
	rules.PostOriginalityBonusMax = 0.25
	rules.EmpathyStreakWeight = 0.5
	rules.EmpathySelectionFraction = 0.10
	rules.DuplicateDistanceThreshold = 0.1
	rules.RegistrationBonus = 10
	rules.VerificationBonus = 10
	return rules
}

type testServer struct {
	mux   http.Handler
	store scorestore.Store
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	store := scorestore.NewMemoryStore()
	rules := testRules()
	engine := scoring.New(store, rules)
	index, err := contentindex.NewChromemIndex("", rules.DuplicateDistanceThreshold, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	q := queue.NewMemoryQueue()
	blobs := contentindex.NewMemoryBlobStore()
	router := intake.New(engine, index, q, blobs, rules)

	results := cohort.NewMemoryResultStore()
	cohortEngine := cohort.New(store, rules, lock.NewProcessLock())

	intakeHandler := NewIntakeHandler(router)
	adminHandler := NewAdminHandler(cohortEngine, results, store, rules)

	return &testServer{mux: NewMux(intakeHandler, adminHandler), store: store}
}

func (s *testServer) do(t *testing.T, req *http.Request) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	s.mux.ServeHTTP(rec, req)
	return rec
}

func TestSubmitAction_AcceptsValidLike(t *testing.T) {
	srv := newTestServer(t)
	body := strings.NewReader(`{"creatorAddress":"c1","interactorAddress":"u1","Interaction":{"interactionType":"like"}}`)
	req := httptest.NewRequest(http.MethodPost, "/v1/submit_action", body)
	rec := srv.do(t, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp submitActionResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unexpected decode error: %v", err)
	}
	if !resp.Approved || resp.Significance != 0.1 {
		t.Fatalf("expected approved like worth 0.1, got %+v", resp)
	}
}

func TestSubmitAction_RejectsMissingFields(t *testing.T) {
	srv := newTestServer(t)
	req := httptest.NewRequest(http.MethodPost, "/v1/submit_action", strings.NewReader(`{}`))
	rec := srv.do(t, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestSubmitAction_RejectsUnknownInteractionType(t *testing.T) {
	srv := newTestServer(t)
	body := strings.NewReader(`{"creatorAddress":"c1","interactorAddress":"u1","Interaction":{"interactionType":"bogus"}}`)
	req := httptest.NewRequest(http.MethodPost, "/v1/submit_action", body)
	rec := srv.do(t, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown interaction type, got %d", rec.Code)
	}
}

func TestCreditBonus_CreditsRegistrationOnceThenNoops(t *testing.T) {
	srv := newTestServer(t)
	body := `{"user_id":"user1","bonus":"registration"}`

	first := srv.do(t, httptest.NewRequest(http.MethodPost, "/v1/credit_bonus", strings.NewReader(body)))
	if first.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", first.Code, first.Body.String())
	}
	if !strings.Contains(first.Body.String(), `"delta":10`) {
		t.Fatalf("expected delta 10 on first credit, got %s", first.Body.String())
	}

	second := srv.do(t, httptest.NewRequest(http.MethodPost, "/v1/credit_bonus", strings.NewReader(body)))
	if second.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", second.Code, second.Body.String())
	}
	if !strings.Contains(second.Body.String(), `"delta":0`) {
		t.Fatalf("expected delta 0 on repeat credit, got %s", second.Body.String())
	}
}

func TestCreditBonus_RejectsUnknownBonus(t *testing.T) {
	srv := newTestServer(t)
	req := httptest.NewRequest(http.MethodPost, "/v1/credit_bonus", strings.NewReader(`{"user_id":"user1","bonus":"bogus"}`))
	rec := srv.do(t, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func newMultipartRequest(t *testing.T, fields map[string]string) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		_ = mw.WriteField(k, v)
	}
	_ = mw.Close()
	req := httptest.NewRequest(http.MethodPost, "/v1/submit_post", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func TestSubmitPost_AcceptsMultipartFormAndQueues(t *testing.T) {
	srv := newTestServer(t)
	req := newMultipartRequest(t, map[string]string{
		"creatorAddress":    "c1",
		"interactorAddress": "u1",
		"data":              "a thoughtful original post",
		"post_id":           "p1",
	})
	rec := srv.do(t, req)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestSubmitPost_RejectsMissingPostID(t *testing.T) {
	srv := newTestServer(t)
	req := newMultipartRequest(t, map[string]string{
		"creatorAddress":    "c1",
		"interactorAddress": "u1",
		"data":              "content",
	})
	rec := srv.do(t, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestDeletePost_NotFoundForUnknownPost(t *testing.T) {
	srv := newTestServer(t)
	req := httptest.NewRequest(http.MethodDelete, "/v1/delete/missing?user_id=u1", nil)
	rec := srv.do(t, req)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestDailySummary_ReportsNoRunYetBeforeFirstRun(t *testing.T) {
	srv := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/admin/daily-summary", nil)
	rec := srv.do(t, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "no run yet") {
		t.Fatalf("expected 'no run yet' status, got %s", rec.Body.String())
	}
}

func TestUserActivity_NotFoundForUnknownUser(t *testing.T) {
	srv := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/admin/user-activity/unknown", nil)
	rec := srv.do(t, req)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestUserActivity_ReturnsRecordAfterActivity(t *testing.T) {
	srv := newTestServer(t)
	body := strings.NewReader(`{"creatorAddress":"c1","interactorAddress":"u1","Interaction":{"interactionType":"like"}}`)
	req := httptest.NewRequest(http.MethodPost, "/v1/submit_action", body)
	srv.do(t, req)

	req2 := httptest.NewRequest(http.MethodGet, "/admin/user-activity/u1", nil)
	rec := srv.do(t, req2)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), `"user_id":"u1"`) {
		t.Fatalf("expected user_id u1 in response, got %s", rec.Body.String())
	}
}

func TestRewards_RejectsUnknownCategory(t *testing.T) {
	srv := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/api/rewards/bogus", nil)
	rec := srv.do(t, req)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestRewards_ReturnsRuleForKnownCategory(t *testing.T) {
	srv := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/api/rewards/likes", nil)
	rec := srv.do(t, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestCORS_SetsOriginHeaderAndShortCircuitsOptions(t *testing.T) {
	srv := newTestServer(t)
	req := httptest.NewRequest(http.MethodOptions, "/v1/submit_action", nil)
	req.Header.Set("Origin", "https://example.com")
	rec := srv.do(t, req)
	if rec.Header().Get("Access-Control-Allow-Origin") != "https://example.com" {
		t.Fatalf("expected echoed origin header, got %q", rec.Header().Get("Access-Control-Allow-Origin"))
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected OPTIONS to short-circuit with 200, got %d", rec.Code)
	}
}
