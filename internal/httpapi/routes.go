package httpapi

import "net/http"

// NewMux wires the engine's external interfaces (spec.md §6) onto a
// plain http.ServeMux, matching the reference server's routing style.
func NewMux(intakeHandler *IntakeHandler, adminHandler *AdminHandler) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /v1/submit_action", intakeHandler.SubmitAction)
	mux.HandleFunc("POST /v1/submit_post", intakeHandler.SubmitPost)
	mux.HandleFunc("POST /v1/credit_bonus", intakeHandler.CreditBonus)
	mux.HandleFunc("DELETE /v1/delete/{post_id}", intakeHandler.DeletePost)

	mux.HandleFunc("POST /admin/run-daily-analysis", adminHandler.RunDailyAnalysis)
	mux.HandleFunc("GET /admin/daily-summary", adminHandler.DailySummary)
	mux.HandleFunc("GET /admin/user-activity/{id}", adminHandler.UserActivity)
	mux.HandleFunc("GET /api/rewards/{category}", adminHandler.Rewards)

	return CORS(mux)
}
