// Package config holds the engine's immutable, build-time-tunable point
// tables, limits, thresholds, and environment-derived deployment
// settings. Config is read-only after startup (spec.md §5).
package config

import (
	"flag"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config is the full deployment configuration: environment-derived
// connection settings plus the immutable scoring rules.
type Config struct {
	Port string
	Env  string

	DatabaseURL string
	RedisURL    string
	VectorPath  string // chromem-go persistent store directory; empty = in-memory
	GeminiModel string

	WorkerCount        int
	VisibilityTimeout  time.Duration
	SchedulerCadence   time.Duration
	RequestTimeout     time.Duration
	QualityScoreBudget time.Duration

	Artifact ArtifactConfig
	Scoring  ScoringConfig
}

// ArtifactConfig configures the optional S3/MinIO-compatible blob store
// used for post images (spec.md §4.3).
type ArtifactConfig struct {
	Enabled   bool
	Endpoint  string
	Region    string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

// CanUseS3 reports whether enough connection details are present to
// construct a real S3/MinIO client.
func (a ArtifactConfig) CanUseS3() bool {
	return a.Endpoint != "" && a.AccessKey != "" && a.SecretKey != ""
}

// ScoringConfig is the immutable point table from spec.md §4.1.
type ScoringConfig struct {
	Categories map[Category]CategoryRule

	PostBase              float64
	PostQualityBonusMax   float64
	PostOriginalityBonusMax float64

	EmpathyStreakWeight     float64
	EmpathySelectionFraction float64

	DuplicateDistanceThreshold float64

	GibberishConsonantRunRatio float64
	GibberishMeanTokenLength   float64
	GibberishMLConfidence      float64

	RegistrationBonus float64
	VerificationBonus float64
}

var defaultCategoryRules = map[Category]CategoryRule{
	CategoryPost: {
		Name:          "Content Creation Rewards",
		Description:   "Rewards for users who create quality posts",
		PointValue:    0.5, // base; actual delta uses the post formula, see internal/scoring
		DailyLimit:    2,
		MonthlyCap:    30,
		EmpathyWeight: 0.25,
	},
	CategoryLike: {
		Name:          "Engagement Rewards",
		Description:   "Rewards for users who actively like content",
		PointValue:    0.1,
		DailyLimit:    5,
		MonthlyCap:    15,
		EmpathyWeight: 0.08,
	},
	CategoryComment: {
		Name:          "Discussion Rewards",
		Description:   "Rewards for users who participate in discussions",
		PointValue:    0.1,
		DailyLimit:    5,
		MonthlyCap:    15,
		EmpathyWeight: 0.08,
	},
	CategoryReferral: {
		Name:          "Growth Rewards",
		Description:   "Rewards for users who bring new members to the community",
		PointValue:    10,
		DailyLimit:    1,
		MonthlyCap:    10,
		EmpathyWeight: 0.05,
	},
	CategoryTip: {
		Name:          "Community Support Rewards",
		Description:   "Rewards for users who tip other community members",
		PointValue:    0.5,
		DailyLimit:    1,
		MonthlyCap:    20,
		EmpathyWeight: 0.05,
	},
	CategoryCrypto: {
		Name:          "Crypto Activity Rewards",
		Description:   "Rewards for users who perform crypto transactions",
		PointValue:    0.5,
		DailyLimit:    3,
		MonthlyCap:    20,
		EmpathyWeight: 0.09,
	},
}

// TotalMonthlyCap is the sum of the six monthly caps (110 in spec.md).
func (s ScoringConfig) TotalMonthlyCap() float64 {
	var total float64
	for _, c := range AllCategories {
		total += s.Categories[c].MonthlyCap
	}
	return total
}

// Rule returns the rule for c, or the zero value if c is unknown.
func (s ScoringConfig) Rule(c Category) CategoryRule {
	return s.Categories[c]
}

func defaultScoringConfig() ScoringConfig {
	categories := make(map[Category]CategoryRule, len(defaultCategoryRules))
	for k, v := range defaultCategoryRules {
		categories[k] = v
	}
	return ScoringConfig{
		Categories:                 categories,
		PostBase:                   0.5,
		PostQualityBonusMax:        1.0,
		PostOriginalityBonusMax:    0.25,
		EmpathyStreakWeight:        0.5,
		EmpathySelectionFraction:   0.10,
		DuplicateDistanceThreshold: 0.1,
		GibberishConsonantRunRatio: 0.85,
		GibberishMeanTokenLength:   20,
		GibberishMLConfidence:      0.85,
		RegistrationBonus:          10,
		VerificationBonus:          10,
	}
}

// Load reads deployment configuration from the environment (with .env
// support) and returns it alongside the immutable scoring rules.
func Load() (*Config, error) {
	_ = godotenv.Load()

	port := flag.String("port", ":8081", "server port")
	if !flag.Parsed() {
		flag.Parse()
	}

	if envPort := os.Getenv("PORT"); envPort != "" {
		if strings.HasPrefix(envPort, ":") {
			*port = envPort
		} else {
			*port = ":" + envPort
		}
	}

	env := strings.TrimSpace(os.Getenv("APP_ENV"))
	if env == "" {
		env = "local"
	}

	workers, _ := strconv.Atoi(strings.TrimSpace(os.Getenv("WORKER_COUNT")))
	if workers <= 0 {
		workers = 4
	}

	cadence := parseDurationSeconds(os.Getenv("SCHEDULER_CADENCE_SECONDS"), 86400*time.Second)
	visibility := parseDurationSeconds(os.Getenv("QUEUE_VISIBILITY_TIMEOUT_SECONDS"), 5*time.Minute)

	return &Config{
		Port:               *port,
		Env:                env,
		DatabaseURL:        strings.TrimSpace(os.Getenv("DATABASE_URL")),
		RedisURL:           strings.TrimSpace(os.Getenv("REDIS_URL")),
		VectorPath:         strings.TrimSpace(os.Getenv("VECTOR_STORE_PATH")),
		GeminiModel:        firstNonEmpty(strings.TrimSpace(os.Getenv("QUALITY_MODEL")), "gemini-2.5-flash"),
		WorkerCount:        workers,
		VisibilityTimeout:  visibility,
		SchedulerCadence:   cadence,
		RequestTimeout:     10 * time.Second,
		QualityScoreBudget: 60 * time.Second,
		Artifact:           loadArtifactConfig(env),
		Scoring:            defaultScoringConfig(),
	}, nil
}

func parseDurationSeconds(raw string, def time.Duration) time.Duration {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return def
	}
	secs, err := strconv.Atoi(raw)
	if err != nil || secs <= 0 {
		return def
	}
	return time.Duration(secs) * time.Second
}

func loadArtifactConfig(env string) ArtifactConfig {
	endpoint := strings.TrimSpace(os.Getenv("ARTIFACT_S3_ENDPOINT"))
	return ArtifactConfig{
		Enabled:   endpoint != "",
		Endpoint:  endpoint,
		Region:    firstNonEmpty(strings.TrimSpace(os.Getenv("ARTIFACT_S3_REGION")), "us-east-1"),
		AccessKey: strings.TrimSpace(os.Getenv("ARTIFACT_S3_ACCESS_KEY")),
		SecretKey: strings.TrimSpace(os.Getenv("ARTIFACT_S3_SECRET_KEY")),
		Bucket:    firstNonEmpty(strings.TrimSpace(os.Getenv("ARTIFACT_S3_BUCKET")), "reward-post-images"),
		UseSSL:    resolveUseSSL(),
	}
}

func resolveUseSSL() bool {
	raw := strings.TrimSpace(os.Getenv("ARTIFACT_S3_USE_SSL"))
	if raw == "" {
		return true
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return true
	}
	return v
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
