// Package app wires the engine's components together at startup,
// mirroring the reference repository's own app package: construct
// shared state once, pass it explicitly into the pieces that need it
// (spec.md §9 "global state").
package app

import (
	"context"
	"fmt"
	"os"

	"rewardengine/internal/cohort"
	"rewardengine/internal/config"
	"rewardengine/internal/gibberish"
	"rewardengine/internal/httpapi"
	"rewardengine/internal/intake"
	"rewardengine/internal/qualityscorer"
	"rewardengine/internal/scoring"
	"rewardengine/internal/validator"
	"rewardengine/internal/webhook"
)

type App struct {
	server     *httpapi.Server
	workerPool *intake.WorkerPool
	cfg        *config.Config
	cancelWork context.CancelFunc
}

func New() (*App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	stores, err := initStores(cfg)
	if err != nil {
		return nil, fmt.Errorf("init stores: %w", err)
	}

	gibberishClassifier := gibberish.New(gibberish.Thresholds{
		ConsonantRunRatio: cfg.Scoring.GibberishConsonantRunRatio,
		MeanTokenLength:   cfg.Scoring.GibberishMeanTokenLength,
		MLConfidence:      cfg.Scoring.GibberishMLConfidence,
	}, nil) // ML stage absent by default; fail-open per spec.md §4.4

	qualityModel, err := newQualityModel(cfg)
	if err != nil {
		return nil, fmt.Errorf("init quality model: %w", err)
	}
	scorer := qualityscorer.New(qualityModel, qualityscorer.DefaultRetryConfig())

	v := validator.New(gibberishClassifier, stores.index, scorer, cfg.Scoring.DuplicateDistanceThreshold)

	engine := scoring.New(stores.score, cfg.Scoring)

	router := intake.New(engine, stores.index, stores.queue, stores.blobs, cfg.Scoring)

	dispatcher := webhook.New(nil, webhook.DefaultRetryConfig())

	workerPool := intake.NewWorkerPool(stores.queue, v, engine, dispatcher, stores.blobs, cfg.WorkerCount, cfg.VisibilityTimeout)

	cohortEngine := cohort.New(stores.score, cfg.Scoring, stores.locker)

	intakeHandler := httpapi.NewIntakeHandler(router)
	adminHandler := httpapi.NewAdminHandler(cohortEngine, stores.cohortResults, stores.score, cfg.Scoring)
	mux := httpapi.NewMux(intakeHandler, adminHandler)

	return &App{
		server:     httpapi.New(cfg.Port, mux),
		workerPool: workerPool,
		cfg:        cfg,
	}, nil
}

// Start runs the worker pool in the background and blocks serving HTTP.
func (a *App) Start() error {
	ctx, cancel := context.WithCancel(context.Background())
	a.cancelWork = cancel
	go a.workerPool.Run(ctx)
	return a.server.Start()
}

func (a *App) Shutdown(ctx context.Context) error {
	if a.cancelWork != nil {
		a.cancelWork()
	}
	return a.server.Shutdown(ctx)
}

func newQualityModel(cfg *config.Config) (qualityscorer.Model, error) {
	if os.Getenv("GEMINI_API_KEY") == "" {
		return qualityscorer.NewHeuristicModel(), nil
	}
	ctx := context.Background()
	model, err := qualityscorer.NewGeminiModel(ctx, cfg.GeminiModel)
	if err != nil {
		return nil, err
	}
	return model, nil
}
