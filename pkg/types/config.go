package types

import "time"

// ServerConfig represents HTTP server configuration
type ServerConfig struct {
	Host           string        `json:"host" mapstructure:"host"`
	Port           int           `json:"port" mapstructure:"port"`
	WebSocketPath  string        `json:"websocketPath" mapstructure:"websocket_path"`
	ReadTimeout    time.Duration `json:"readTimeout" mapstructure:"read_timeout"`
	WriteTimeout   time.Duration `json:"writeTimeout" mapstructure:"write_timeout"`
	MaxConnections int           `json:"maxConnections" mapstructure:"max_connections"`
	EnableMetrics  bool          `json:"enableMetrics" mapstructure:"enable_metrics"`
}

// DataConfig represents market data storage configuration
type DataConfig struct {
	DataDir string `json:"dataDir" mapstructure:"data_dir"`
}

// BacktestDefaults represents the default backtest window applied when a
// request does not specify its own date range
type BacktestDefaults struct {
	StartDate string `json:"startDate" mapstructure:"start_date"`
	EndDate   string `json:"endDate" mapstructure:"end_date"`
}

// BacktestRequest represents a request to run one backtest
type BacktestRequest struct {
	Allocation         Allocation         `json:"allocation,omitempty"`
	RiskLevel          RiskLevel          `json:"riskLevel,omitempty"`
	InitialCapital     float64            `json:"initialCapital"`
	RebalanceFrequency RebalanceFrequency `json:"rebalanceFrequency"`
	StartDate          string             `json:"startDate,omitempty"`
	EndDate            string             `json:"endDate,omitempty"`
}

// BacktestRun tracks the lifecycle of one submitted backtest
type BacktestRun struct {
	ID          string           `json:"id"`
	Status      string           `json:"status"` // "queued", "running", "completed", "failed"
	Request     *BacktestRequest `json:"request"`
	Result      *BacktestResult  `json:"result,omitempty"`
	Report      string           `json:"report,omitempty"`
	Error       string           `json:"error,omitempty"`
	SubmittedAt time.Time        `json:"submittedAt"`
	CompletedAt time.Time        `json:"completedAt,omitempty"`
}
