// Package config gathers process settings from the environment (optionally
// seeded from a .env file) and behavioural tuning from a YAML file.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/talgya/serenissima/internal/agents"
	"github.com/talgya/serenissima/internal/economy"
	"github.com/talgya/serenissima/internal/pathfind"
)

// Config is the process configuration.
type Config struct {
	DBPath        string // ACTIVITIES_DB
	CatalogPath   string // ACTIVITIES_CATALOG; empty uses the embedded catalog
	TuningPath    string // ACTIVITIES_TUNING; empty uses defaults
	PathfinderURL string // PATHFINDER_URL; empty uses the straight-line finder
	KinURL        string // KIN_API_URL
	KinBlueprint  string // KIN_BLUEPRINT
	KinAPIKey     string // KIN_API_KEY
	OpenAIKey     string // OPENAI_API_KEY, used when no kin key is set
	AuditDir      string // ACTIVITIES_AUDIT_DIR; empty disables the audit trail
	Workers       int    // ACTIVITIES_WORKERS
	Timezone      string // ACTIVITIES_TZ
	LogLevel      string // LOG_LEVEL
	APIAddr       string // ACTIVITIES_API_ADDR; empty disables the HTTP API
	AdminKey      string // ACTIVITIES_ADMIN_KEY; empty disables POST endpoints

	Tuning Tuning
}

// Load reads .env (if present), the environment and the tuning file.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	cfg := &Config{
		DBPath:        envOrDefault("ACTIVITIES_DB", "serenissima.db"),
		CatalogPath:   os.Getenv("ACTIVITIES_CATALOG"),
		TuningPath:    os.Getenv("ACTIVITIES_TUNING"),
		PathfinderURL: os.Getenv("PATHFINDER_URL"),
		KinURL:        envOrDefault("KIN_API_URL", "https://api.kinos-engine.ai"),
		KinBlueprint:  envOrDefault("KIN_BLUEPRINT", "serenissima-ai"),
		KinAPIKey:     os.Getenv("KIN_API_KEY"),
		OpenAIKey:     os.Getenv("OPENAI_API_KEY"),
		AuditDir:      os.Getenv("ACTIVITIES_AUDIT_DIR"),
		Workers:       envIntOrDefault("ACTIVITIES_WORKERS", 8),
		Timezone:      envOrDefault("ACTIVITIES_TZ", "Europe/Rome"),
		LogLevel:      envOrDefault("LOG_LEVEL", "info"),
		APIAddr:       os.Getenv("ACTIVITIES_API_ADDR"),
		AdminKey:      os.Getenv("ACTIVITIES_ADMIN_KEY"),
	}
	if cfg.Workers < 1 {
		return nil, fmt.Errorf("ACTIVITIES_WORKERS must be positive, got %d", cfg.Workers)
	}

	tuning, err := LoadTuning(cfg.TuningPath)
	if err != nil {
		return nil, err
	}
	cfg.Tuning = *tuning
	return cfg, nil
}

// Location resolves the configured time zone.
func (c *Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("time zone %q: %w", c.Timezone, err)
	}
	return loc, nil
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envIntOrDefault(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

// Tuning holds every behavioural constant. Durations are minutes, money is
// ducats, amounts are resource units.
type Tuning struct {
	CarryCapacity   float64 `yaml:"carry_capacity"`
	HungerHours     int     `yaml:"hunger_hours"`
	StarvationHours int     `yaml:"starvation_hours"`

	IdleMinutes              int `yaml:"idle_minutes"`
	EatMinutes               int `yaml:"eat_minutes"`
	ConstructionShiftMinutes int `yaml:"construction_shift_minutes"`
	BusinessCheckMinutes     int `yaml:"business_check_minutes"`
	BusinessCheckEveryHours  int `yaml:"business_check_every_hours"`
	FishingMinutes           int `yaml:"fishing_minutes"`
	ProductionMinutes        int `yaml:"production_minutes"`
	StorageMinutes           int `yaml:"storage_minutes"`

	TavernMealPrice       float64 `yaml:"tavern_meal_price"`
	FishingYield          float64 `yaml:"fishing_yield"`
	EmergencyFishingYield float64 `yaml:"emergency_fishing_yield"`
	ForestieriLeaveBelow  float64 `yaml:"forestieri_leave_below"`

	TrustConstructionProgress float64 `yaml:"trust_construction_progress"`
	TrustConstructionComplete float64 `yaml:"trust_construction_complete"`
	TrustTrade                float64 `yaml:"trust_trade"`

	ExternalTimeoutSeconds int `yaml:"external_timeout_seconds"`
	FailureCooldownMinutes int `yaml:"failure_cooldown_minutes"`

	GondolaBaseFee   float64 `yaml:"gondola_base_fee"`
	GondolaFeePerKm  float64 `yaml:"gondola_fee_per_km"`
	DockRadiusMeters float64 `yaml:"dock_radius_meters"`

	StorageOffloadRatio   float64 `yaml:"storage_offload_ratio"`
	GalleyTreasuryPercent int64   `yaml:"galley_treasury_percent"`

	ShoppingMaxUnits   float64  `yaml:"shopping_max_units"`
	ShoppingMinDucats  float64  `yaml:"shopping_min_ducats"`
	ShoppingCategories []string `yaml:"shopping_categories"`

	LocatorSeed int64 `yaml:"locator_seed"`
}

// DefaultTuning returns the built-in tuning.
func DefaultTuning() Tuning {
	return Tuning{
		CarryCapacity:   20,
		HungerHours:     12,
		StarvationHours: 24,

		IdleMinutes:              60,
		EatMinutes:               30,
		ConstructionShiftMinutes: 60,
		BusinessCheckMinutes:     15,
		BusinessCheckEveryHours:  24,
		FishingMinutes:           60,
		ProductionMinutes:        60,
		StorageMinutes:           30,

		TavernMealPrice:       10,
		FishingYield:          3,
		EmergencyFishingYield: 2,
		ForestieriLeaveBelow:  50,

		TrustConstructionProgress: 1,
		TrustConstructionComplete: 5,
		TrustTrade:                1,

		ExternalTimeoutSeconds: 30,
		FailureCooldownMinutes: 60,

		GondolaBaseFee:   10,
		GondolaFeePerKm:  5,
		DockRadiusMeters: 150,

		StorageOffloadRatio:   0.8,
		GalleyTreasuryPercent: 50,

		ShoppingMaxUnits:   5,
		ShoppingMinDucats:  20,
		ShoppingCategories: []string{"food"},

		LocatorSeed: 42,
	}
}

// LoadTuning overlays the YAML file at path on the defaults. An empty path
// returns the defaults.
func LoadTuning(path string) (*Tuning, error) {
	t := DefaultTuning()
	if path == "" {
		return &t, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read tuning: %w", err)
	}
	if err := yaml.Unmarshal(raw, &t); err != nil {
		return nil, fmt.Errorf("parse tuning %s: %w", path, err)
	}
	if err := t.Validate(); err != nil {
		return nil, fmt.Errorf("tuning %s: %w", path, err)
	}
	return &t, nil
}

// Validate rejects values no simulation could run with.
func (t Tuning) Validate() error {
	switch {
	case t.CarryCapacity <= 0:
		return errors.New("carry_capacity must be positive")
	case t.HungerHours <= 0 || t.StarvationHours < t.HungerHours:
		return errors.New("starvation_hours must be at least hunger_hours, both positive")
	case t.IdleMinutes <= 0 || t.EatMinutes <= 0 || t.FishingMinutes <= 0:
		return errors.New("activity durations must be positive")
	case t.GalleyTreasuryPercent < 0 || t.GalleyTreasuryPercent > 100:
		return errors.New("galley_treasury_percent must be within 0..100")
	case t.StorageOffloadRatio <= 0 || t.StorageOffloadRatio > 1:
		return errors.New("storage_offload_ratio must be within (0, 1]")
	}
	return nil
}

func minutes(n int) time.Duration { return time.Duration(n) * time.Minute }

func (t Tuning) Needs() agents.Needs {
	return agents.Needs{
		HungerAfter:     time.Duration(t.HungerHours) * time.Hour,
		StarvationAfter: time.Duration(t.StarvationHours) * time.Hour,
		CarryCapacity:   t.CarryCapacity,
	}
}

func (t Tuning) FeePolicy() pathfind.FeePolicy {
	return pathfind.FeePolicy{
		Base:             economy.FromFloat(t.GondolaBaseFee),
		PerKm:            economy.FromFloat(t.GondolaFeePerKm),
		DockRadiusMeters: t.DockRadiusMeters,
	}
}

func (t Tuning) Idle() time.Duration              { return minutes(t.IdleMinutes) }
func (t Tuning) Eat() time.Duration               { return minutes(t.EatMinutes) }
func (t Tuning) ConstructionShift() time.Duration { return minutes(t.ConstructionShiftMinutes) }
func (t Tuning) BusinessCheck() time.Duration     { return minutes(t.BusinessCheckMinutes) }
func (t Tuning) Fishing() time.Duration           { return minutes(t.FishingMinutes) }
func (t Tuning) Production() time.Duration        { return minutes(t.ProductionMinutes) }
func (t Tuning) StorageWork() time.Duration       { return minutes(t.StorageMinutes) }
func (t Tuning) FailureCooldown() time.Duration   { return minutes(t.FailureCooldownMinutes) }
func (t Tuning) ExternalTimeout() time.Duration {
	return time.Duration(t.ExternalTimeoutSeconds) * time.Second
}
func (t Tuning) BusinessCheckEvery() time.Duration {
	return time.Duration(t.BusinessCheckEveryHours) * time.Hour
}
func (t Tuning) TavernMeal() economy.Ducats    { return economy.FromFloat(t.TavernMealPrice) }
func (t Tuning) LeaveBelow() economy.Ducats    { return economy.FromFloat(t.ForestieriLeaveBelow) }
func (t Tuning) ShoppingFloor() economy.Ducats { return economy.FromFloat(t.ShoppingMinDucats) }
