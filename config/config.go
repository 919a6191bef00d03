package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config es la configuración completa del desk.
type Config struct {
	Portfolio  PortfolioConfig  `yaml:"portfolio"`
	Risk       RiskConfig       `yaml:"risk"`
	Hypothesis HypothesisConfig `yaml:"hypothesis"`
	Scheduler  SchedulerConfig  `yaml:"scheduler"`
	Storage    StorageConfig    `yaml:"storage"`
	API        APIConfig        `yaml:"api"`
	Notify     NotifyConfig     `yaml:"notify"`
	Reasoner   ReasonerConfig   `yaml:"reasoner"`
	Server     ServerConfig     `yaml:"server"`
	Log        LogConfig        `yaml:"log"`
}

// PortfolioConfig define el bootstrap del portfolio simulado.
type PortfolioConfig struct {
	StartingCapital float64 `yaml:"starting_capital"` // solo se usa la primera vez
}

// RiskConfig contiene los límites del validador y los umbrales de aprobación.
type RiskConfig struct {
	MaxMarketExposurePct float64 `yaml:"max_market_exposure_pct"` // fracción del valor total por mercado
	MaxPositions         int     `yaml:"max_positions"`
	CashReservePct       float64 `yaml:"cash_reserve_pct"`        // fracción del capital inicial
	AutoMax              float64 `yaml:"auto_max"`                // amount <= auto_max → auto
	NotifyMax            float64 `yaml:"notify_max"`              // amount <= notify_max → notify
	ValidationGateAmount float64 `yaml:"validation_gate_amount"`  // amount > gate exige hasTradeValidation
}

// HypothesisConfig controla el gate de validación para trades grandes.
type HypothesisConfig struct {
	MinEvidence           int     `yaml:"min_evidence"`
	MinEvidenceConfidence float64 `yaml:"min_evidence_confidence"`
	DefaultMinSampleSize  int     `yaml:"default_min_sample_size"`
}

// SchedulerConfig controla el loop de ticks.
type SchedulerConfig struct {
	IntervalSeconds   int `yaml:"interval_seconds"`
	DispatchThreshold int `yaml:"dispatch_threshold"` // urgencia mínima (exclusiva) para despachar una señal
}

// StorageConfig controla dónde se persisten los documentos.
type StorageConfig struct {
	Backend  string `yaml:"backend"`   // file | sqlite | redis
	Dir      string `yaml:"dir"`       // backend file
	DSN      string `yaml:"dsn"`       // backend sqlite: ruta al archivo, o ":memory:"
	RedisURL string `yaml:"redis_url"` // backend redis
}

// APIConfig contiene los base URLs de las APIs de mercado.
type APIConfig struct {
	GammaBase string `yaml:"gamma_base"`
}

// NotifyConfig controla el gateway de notificaciones.
type NotifyConfig struct {
	WebhookURL string `yaml:"webhook_url"` // vacío = solo consola
}

// ReasonerConfig apunta al agente de razonamiento externo.
type ReasonerConfig struct {
	URL            string `yaml:"url"` // vacío = solo loguear las tareas
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

// ServerConfig controla la superficie HTTP del protocolo de tools.
type ServerConfig struct {
	Listen string `yaml:"listen"`
}

// LogConfig controla el formato y nivel de logging.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug | info | warn | error
	Format string `yaml:"format"` // text | json
}

// Load carga la configuración desde el archivo YAML y el archivo .env si existe.
// Los valores del .env sobreescriben los del YAML para las keys que correspondan.
func Load(path string) (*Config, error) {
	// Cargar .env si existe (silencia error si no hay archivo)
	_ = godotenv.Load()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config.Load: read %q: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config.Load: parse YAML: %w", err)
	}

	applyEnvOverrides(&cfg)
	setDefaults(&cfg)

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}
	return &cfg, nil
}

// Default devuelve la configuración por defecto, sin archivo.
func Default() *Config {
	var cfg Config
	setDefaults(&cfg)
	return &cfg
}

// TickInterval devuelve el intervalo del scheduler como time.Duration.
func (c *Config) TickInterval() time.Duration {
	return time.Duration(c.Scheduler.IntervalSeconds) * time.Second
}

// ReasonerTimeout devuelve el timeout de cada dispatch al agente.
func (c *Config) ReasonerTimeout() time.Duration {
	return time.Duration(c.Reasoner.TimeoutSeconds) * time.Second
}

// applyEnvOverrides sobreescribe valores con variables de entorno si están presentes.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("LOG_FORMAT"); v != "" {
		cfg.Log.Format = v
	}
	if v := os.Getenv("DESK_STORAGE_BACKEND"); v != "" {
		cfg.Storage.Backend = v
	}
	if v := os.Getenv("DESK_REDIS_URL"); v != "" {
		cfg.Storage.RedisURL = v
	}
	if v := os.Getenv("DESK_REASONER_URL"); v != "" {
		cfg.Reasoner.URL = v
	}
	if v := os.Getenv("DESK_WEBHOOK_URL"); v != "" {
		cfg.Notify.WebhookURL = v
	}
	if v := os.Getenv("DESK_LISTEN_ADDR"); v != "" {
		cfg.Server.Listen = v
	}
}

// setDefaults asegura que los valores requeridos tengan valores sensatos.
func setDefaults(cfg *Config) {
	if cfg.Portfolio.StartingCapital <= 0 {
		cfg.Portfolio.StartingCapital = 10000
	}
	if cfg.Risk.MaxMarketExposurePct <= 0 {
		cfg.Risk.MaxMarketExposurePct = 0.20
	}
	if cfg.Risk.MaxPositions <= 0 {
		cfg.Risk.MaxPositions = 10
	}
	if cfg.Risk.CashReservePct <= 0 {
		cfg.Risk.CashReservePct = 0.20
	}
	if cfg.Risk.AutoMax <= 0 {
		cfg.Risk.AutoMax = 50
	}
	if cfg.Risk.NotifyMax <= 0 {
		cfg.Risk.NotifyMax = 200
	}
	if cfg.Risk.ValidationGateAmount <= 0 {
		cfg.Risk.ValidationGateAmount = 50
	}
	if cfg.Hypothesis.MinEvidence <= 0 {
		cfg.Hypothesis.MinEvidence = 3
	}
	if cfg.Hypothesis.MinEvidenceConfidence <= 0 {
		cfg.Hypothesis.MinEvidenceConfidence = 0.50
	}
	if cfg.Hypothesis.DefaultMinSampleSize <= 0 {
		cfg.Hypothesis.DefaultMinSampleSize = 10
	}
	if cfg.Scheduler.IntervalSeconds <= 0 {
		cfg.Scheduler.IntervalSeconds = 300
	}
	if cfg.Scheduler.DispatchThreshold <= 0 {
		cfg.Scheduler.DispatchThreshold = 70
	}
	if cfg.Storage.Backend == "" {
		cfg.Storage.Backend = "file"
	}
	if cfg.Storage.Dir == "" {
		cfg.Storage.Dir = "data"
	}
	if cfg.Storage.DSN == "" {
		cfg.Storage.DSN = "polydesk.db"
	}
	if cfg.API.GammaBase == "" {
		cfg.API.GammaBase = "https://gamma-api.polymarket.com"
	}
	if cfg.Reasoner.TimeoutSeconds <= 0 {
		cfg.Reasoner.TimeoutSeconds = 120
	}
	if cfg.Server.Listen == "" {
		cfg.Server.Listen = "127.0.0.1:8088"
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "text"
	}
}

// validate rechaza combinaciones incoherentes que setDefaults no puede arreglar.
func (c *Config) validate() error {
	if c.Risk.NotifyMax < c.Risk.AutoMax {
		return fmt.Errorf("risk.notify_max (%.2f) must be >= risk.auto_max (%.2f)", c.Risk.NotifyMax, c.Risk.AutoMax)
	}
	if c.Risk.MaxMarketExposurePct > 1 || c.Risk.CashReservePct >= 1 {
		return fmt.Errorf("risk percentages must be fractions below 1")
	}
	switch c.Storage.Backend {
	case "file", "sqlite":
	case "redis":
		if c.Storage.RedisURL == "" {
			return fmt.Errorf("storage.redis_url is required for the redis backend")
		}
	default:
		return fmt.Errorf("unknown storage.backend %q", c.Storage.Backend)
	}
	return nil
}
