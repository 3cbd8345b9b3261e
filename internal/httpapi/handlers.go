package httpapi

import (
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"rewardengine/internal/cohort"
	"rewardengine/internal/config"
	"rewardengine/internal/intake"
	"rewardengine/internal/scorestore"
)

// IntakeHandler exposes the Intake Router (C9) over HTTP (spec.md §6).
type IntakeHandler struct {
	router *intake.Router
}

func NewIntakeHandler(router *intake.Router) *IntakeHandler {
	return &IntakeHandler{router: router}
}

type submitActionRequest struct {
	CreatorAddress    string `json:"creatorAddress"`
	InteractorAddress string `json:"interactorAddress"`
	Interaction       struct {
		InteractionType string         `json:"interactionType"`
		Data            map[string]any `json:"data,omitempty"`
	} `json:"Interaction"`
}

type submitActionResponse struct {
	Approved     bool    `json:"aiAgentResponseApproved"`
	Significance float64 `json:"significanceScore"`
	Reason       string  `json:"reason,omitempty"`
	FinalScore   float64 `json:"finalUserScore"`
}

func (h *IntakeHandler) SubmitAction(w http.ResponseWriter, r *http.Request) {
	var in submitActionRequest
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	if in.CreatorAddress == "" || in.InteractorAddress == "" || in.Interaction.InteractionType == "" {
		http.Error(w, "creatorAddress, interactorAddress, and Interaction.interactionType are required", http.StatusBadRequest)
		return
	}

	result, err := h.router.SubmitAction(r.Context(), intake.SubmitActionRequest{
		Creator:    in.CreatorAddress,
		Interactor: in.InteractorAddress,
		Type:       intake.ActionType(strings.ToLower(in.Interaction.InteractionType)),
	})
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	writeJSON(w, http.StatusOK, submitActionResponse{
		Approved:     result.Approved,
		Significance: result.Significance,
		Reason:       result.Reason,
		FinalScore:   result.FinalScore,
	})
}

type creditBonusRequest struct {
	UserID string `json:"user_id"`
	Bonus  string `json:"bonus"`
}

// CreditBonus exposes the registration/verification one-time bonuses
// (spec.md §4.7 "one-time events") over HTTP, for callers such as the
// onboarding and identity-verification flows.
func (h *IntakeHandler) CreditBonus(w http.ResponseWriter, r *http.Request) {
	var in creditBonusRequest
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	if in.UserID == "" || in.Bonus == "" {
		http.Error(w, "user_id and bonus are required", http.StatusBadRequest)
		return
	}

	result, err := h.router.CreditOneTimeBonus(r.Context(), in.UserID, intake.OneTimeBonus(strings.ToLower(in.Bonus)))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"user_id":          in.UserID,
		"bonus":            in.Bonus,
		"delta":            result.Delta,
		"final_user_score": result.NormalizedScore,
	})
}

func (h *IntakeHandler) SubmitPost(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		http.Error(w, "invalid multipart form", http.StatusBadRequest)
		return
	}

	creator := r.FormValue("creatorAddress")
	interactor := r.FormValue("interactorAddress")
	content := r.FormValue("data")
	webhookURL := r.FormValue("webhookUrl")
	postID := r.FormValue("post_id")
	if creator == "" || interactor == "" || content == "" || postID == "" {
		http.Error(w, "creatorAddress, interactorAddress, data, and post_id are required", http.StatusBadRequest)
		return
	}

	var image []byte
	if file, _, err := r.FormFile("image"); err == nil {
		defer file.Close()
		image, err = io.ReadAll(file)
		if err != nil {
			http.Error(w, "failed to read image", http.StatusBadRequest)
			return
		}
	}

	if err := h.router.SubmitPost(r.Context(), intake.SubmitPostRequest{
		Creator:    creator,
		Interactor: interactor,
		Content:    content,
		PostID:     postID,
		WebhookURL: webhookURL,
		Image:      image,
	}); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]string{"status": "processing"})
}

func (h *IntakeHandler) DeletePost(w http.ResponseWriter, r *http.Request) {
	postID := r.PathValue("post_id")
	userID := r.URL.Query().Get("user_id")
	if postID == "" || userID == "" {
		http.Error(w, "post_id and user_id are required", http.StatusBadRequest)
		return
	}

	status, err := h.router.DeletePost(r.Context(), postID, userID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if status == intake.DeletePostNotFound {
		writeJSON(w, http.StatusNotFound, map[string]string{"status": string(status), "post_id": postID, "user_id": userID})
		return
	}
	if status == intake.DeletePostForbidden {
		writeJSON(w, http.StatusForbidden, map[string]string{"status": string(status), "post_id": postID, "user_id": userID})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": string(status), "post_id": postID, "user_id": userID})
}

// AdminHandler exposes the daily cohort run and read-only summary views
// (spec.md §6).
type AdminHandler struct {
	cohortEngine *cohort.Engine
	results      cohort.ResultStore
	store        scorestore.Store
	rules        config.ScoringConfig
}

func NewAdminHandler(cohortEngine *cohort.Engine, results cohort.ResultStore, store scorestore.Store, rules config.ScoringConfig) *AdminHandler {
	return &AdminHandler{cohortEngine: cohortEngine, results: results, store: store, rules: rules}
}

func (h *AdminHandler) RunDailyAnalysis(w http.ResponseWriter, r *http.Request) {
	result, err := h.cohortEngine.Run(r.Context())
	if err != nil {
		if err == cohort.ErrAlreadyRunning {
			http.Error(w, err.Error(), http.StatusConflict)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if err := h.results.SaveResult(r.Context(), result); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *AdminHandler) DailySummary(w http.ResponseWriter, r *http.Request) {
	result, found, err := h.results.LatestResult(r.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if !found {
		writeJSON(w, http.StatusOK, map[string]string{"status": "no run yet"})
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *AdminHandler) UserActivity(w http.ResponseWriter, r *http.Request) {
	userID := r.PathValue("id")
	if userID == "" {
		http.Error(w, "user id is required", http.StatusBadRequest)
		return
	}
	record, found, err := h.store.Get(r.Context(), userID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if !found {
		http.NotFound(w, r)
		return
	}
	writeJSON(w, http.StatusOK, userActivityView(record))
}

func (h *AdminHandler) Rewards(w http.ResponseWriter, r *http.Request) {
	category := config.Category(r.PathValue("category"))
	if !category.Valid() {
		http.Error(w, "unknown category", http.StatusNotFound)
		return
	}
	rule := h.rules.Rule(category)
	writeJSON(w, http.StatusOK, map[string]any{
		"category":       category,
		"name":           rule.Name,
		"description":    rule.Description,
		"point_value":    rule.PointValue,
		"daily_limit":    rule.DailyLimit,
		"monthly_cap":    rule.MonthlyCap,
		"empathy_weight": rule.EmpathyWeight,
	})
}

func userActivityView(r *scorestore.Record) map[string]any {
	points := make(map[config.Category]float64, len(r.Points))
	lifetime := make(map[config.Category]int, len(r.Timestamps))
	for _, c := range config.AllCategories {
		points[c] = r.Points[c]
		lifetime[c] = r.LifetimeCount(c)
	}
	return map[string]any{
		"user_id":                     r.UserID,
		"points":                      points,
		"lifetime_counts":             lifetime,
		"one_time_points":             r.OneTimePoints,
		"consecutive_activity_days":   r.ConsecutiveActivityDays,
		"historical_engagement_score": r.HistoricalEngagementScore,
		"last_active_date":            r.LastActiveDate,
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
