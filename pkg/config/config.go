// Package config loads the engine's tuning knobs and model-platform
// credentials. Grounded on cmd/api/main.go's godotenv.Load() +
// yaml.Unmarshal(configData, &agentCfg) pattern: environment variables for
// secrets/deployment knobs, a YAML file for the slower-moving per-platform
// model roster.
package config

import (
	"io/ioutil"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v2"

	"github.com/discussion-engine/orchestrator/pkg/core/controller"
)

// PlatformConfig is one entry in the models.yaml roster: which platform an
// agent role defaults to and any override.
type PlatformConfig struct {
	Provider    string `yaml:"provider"`
	Description string `yaml:"description"`
}

// ModelsConfig is the top-level shape of config/models.yaml.
type ModelsConfig struct {
	ActiveProvider string                    `yaml:"active_provider"`
	Agents         map[string]PlatformConfig `yaml:"agents"`
}

// EngineConfig is the full set of knobs cmd/discussiond wires into
// framework.Manager/hub.Hub/roomstore at startup.
type EngineConfig struct {
	BindHost    string
	BindPort    string
	DatabaseURL string

	Models ModelsConfig

	Controller controller.Config
	Publish    time.Duration // hub.Hub publish timeout
}

// Load reads .env (if present), environment variables, and
// modelsPath (YAML) into an EngineConfig, falling back to defaults for
// anything unset — exactly the teacher's "best-effort, never fatal on a
// missing optional file" posture in cmd/api/main.go.
func Load(modelsPath string) EngineConfig {
	godotenv.Load()

	cfg := EngineConfig{
		BindHost:    envOr("BIND_HOST", "0.0.0.0"),
		BindPort:    envOr("BIND_PORT", "8080"),
		DatabaseURL: os.Getenv("DATABASE_URL"),
		Controller:  controller.DefaultConfig(),
		Publish:     100 * time.Millisecond,
	}

	if data, err := ioutil.ReadFile(modelsPath); err == nil {
		var models ModelsConfig
		if yaml.Unmarshal(data, &models) == nil {
			cfg.Models = models
		}
	}

	applyTuningOverrides(&cfg)
	return cfg
}

// applyTuningOverrides lets operators override the spec-mandated defaults
// (stop_threshold, quality_floor, svr_deadline, ...) via environment
// variables without touching code, the same escape hatch the teacher
// exposes for ActiveProvider.
func applyTuningOverrides(cfg *EngineConfig) {
	if v, ok := envFloat("STOP_THRESHOLD"); ok {
		cfg.Controller.DeciderParams.StopThreshold = v
	}
	if v, ok := envFloat("QUALITY_FLOOR"); ok {
		cfg.Controller.DeciderParams.QualityFloor = v
	}
	if v, ok := envInt("MAX_TURNS"); ok {
		cfg.Controller.DeciderParams.MaxTurns = v
	}
	if v, ok := envFloat("MAX_DURATION_SECONDS"); ok {
		cfg.Controller.DeciderParams.MaxDurationSeconds = v
		cfg.Controller.SVRParams.MaxDuration = v
	}
	if v, ok := envDuration("SVR_DEADLINE_MS"); ok {
		cfg.Controller.SVRDeadline = v
	}
	if v, ok := envDuration("THINK_TIMEOUT_MS"); ok {
		cfg.Controller.Backend.ThinkTimeout = v
	}
	if v, ok := envDuration("PUBLISH_TIMEOUT_MS"); ok {
		cfg.Publish = v
	}
	// SVRParams.Weights always stays at svr.DefaultWeights(): there is no
	// env var for the weights, since partial overrides would silently
	// break the weighted sums summing to 1.
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envFloat(key string) (float64, bool) {
	v := os.Getenv(key)
	if v == "" {
		return 0, false
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, false
	}
	return f, true
}

func envInt(key string) (int, bool) {
	v := os.Getenv(key)
	if v == "" {
		return 0, false
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, false
	}
	return n, true
}

func envDuration(key string) (time.Duration, bool) {
	n, ok := envInt(key)
	if !ok {
		return 0, false
	}
	return time.Duration(n) * time.Millisecond, true
}
