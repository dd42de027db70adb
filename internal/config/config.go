package config

import (
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

type StreamMode string

const (
	StreamModeGRPC      StreamMode = "grpc"
	StreamModeWebSocket StreamMode = "websocket"
	StreamModeSQLite    StreamMode = "sqlite"
	HardcodedVersion    string     = "V0.3"

	envPrefix      = "DBHEALTH_"
	defaultEnvFile = ".env"
)

type Config struct {
	NodeID          string `env:"NODE_ID"`
	Hostname        string
	ProbeListenAddr string `env:"PROBE_ADDR" envDefault:"0.0.0.0:7443"`
	AgentVersion    string

	ProcRoot    string        `env:"PROC_ROOT" envDefault:"/proc"`
	SysRoot     string        `env:"SYS_ROOT" envDefault:"/sys"`
	HostRoot    string        `env:"HOST_ROOT"`
	ReadTimeout time.Duration `env:"READ_TIMEOUT" envDefault:"500ms"`
	ClockTicks  uint64        `env:"CLOCK_TICKS"`
	PageSize    uint64        `env:"PAGE_SIZE"`

	PollInterval    time.Duration `env:"POLL_INTERVAL" envDefault:"10s"`
	PollJitter      time.Duration `env:"POLL_JITTER" envDefault:"1s"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"10s"`
	WorkerPoolSize  int           `env:"WORKER_POOL_SIZE" envDefault:"8"`

	Watch      WatchConfig
	Thresholds Thresholds

	StreamMode       StreamMode    `env:"STREAM_MODE" envDefault:"grpc"`
	BackendGRPCAddr  string        `env:"BACKEND_GRPC_ADDR" envDefault:"127.0.0.1:3001"`
	GRPCReportMethod string        `env:"GRPC_REPORT_METHOD" envDefault:"/dbhealth.v1.HealthReportService/StreamReports"`
	BackendWSURL     string        `env:"BACKEND_WS_URL" envDefault:"ws://127.0.0.1:3001/ws/health"`
	BackendToken     string        `env:"BACKEND_TOKEN"`
	SQLitePath       string        `env:"SQLITE_PATH" envDefault:"dbhealth-reports.db"`
	SQLiteRetention  int           `env:"SQLITE_RETENTION" envDefault:"1000"`
	SinkWriteTimeout time.Duration `env:"SINK_WRITE_TIMEOUT" envDefault:"3s"`
	WebSocketPing    time.Duration `env:"WS_PING_INTERVAL" envDefault:"10s"`

	TLSEnabled    bool   `env:"TLS_ENABLED" envDefault:"false"`
	TLSSkipVerify bool   `env:"TLS_SKIP_VERIFY" envDefault:"false"`
	TLSCAPath     string `env:"TLS_CA_PATH"`
	TLSCertPath   string `env:"TLS_CERT_PATH"`
	TLSKeyPath    string `env:"TLS_KEY_PATH"`

	LogJSON  bool   `env:"LOG_JSON" envDefault:"true"`
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`
}

// WatchConfig selects the processes the agent tracks. Configured criteria are AND-ed.
type WatchConfig struct {
	NamePattern    string `env:"WATCH_NAME"`
	CmdlinePattern string `env:"WATCH_CMDLINE"`
	CgroupPattern  string `env:"WATCH_CGROUP"`
	PIDs           []int  `env:"WATCH_PIDS" envSeparator:","`
}

func (w WatchConfig) Empty() bool {
	return w.NamePattern == "" && w.CmdlinePattern == "" && w.CgroupPattern == "" && len(w.PIDs) == 0
}

type Thresholds struct {
	CPUSaturationPercent  float64 `env:"CPU_SATURATION_PERCENT" envDefault:"90"`
	CPUSaturationCycles   int     `env:"CPU_SATURATION_CYCLES" envDefault:"3"`
	MemoryDegradedBytes   uint64  `env:"MEM_DEGRADED_BYTES" envDefault:"4294967296"`
	MemoryCriticalBytes   uint64  `env:"MEM_CRITICAL_BYTES" envDefault:"0"`
	FDDegradedPercent     float64 `env:"FD_DEGRADED_PERCENT" envDefault:"80"`
	FDCriticalPercent     float64 `env:"FD_CRITICAL_PERCENT" envDefault:"95"`
	SystemMemAvailablePct float64 `env:"SYSTEM_MEM_AVAILABLE_PERCENT" envDefault:"5"`
	HysteresisCycles      int     `env:"HYSTERESIS_CYCLES" envDefault:"5"`
}

func Load() (Config, error) {
	if err := loadEnvFile(os.Getenv(envPrefix + "ENV_FILE")); err != nil {
		return Config{}, err
	}

	hostname, err := os.Hostname()
	if err != nil {
		hostname = "unknown-host"
	}

	cfg := Config{}
	if err := env.ParseWithOptions(&cfg, env.Options{Prefix: envPrefix}); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	cfg.Hostname = hostname
	cfg.AgentVersion = HardcodedVersion
	if strings.TrimSpace(cfg.NodeID) == "" {
		cfg.NodeID = hostname
	}
	cfg.StreamMode = StreamMode(strings.ToLower(string(cfg.StreamMode)))
	cfg.LogLevel = strings.ToLower(cfg.LogLevel)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// loadEnvFile applies an explicit env file, or .env when one exists in the working directory.
// Variables already set in the process environment win.
func loadEnvFile(path string) error {
	if path == "" {
		if _, err := os.Stat(defaultEnvFile); err != nil {
			return nil
		}
		path = defaultEnvFile
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("load env file %s: %w", path, err)
	}
	return nil
}

func (c Config) Validate() error {
	if c.NodeID == "" {
		return errors.New("DBHEALTH_NODE_ID is required")
	}
	if strings.TrimSpace(c.AgentVersion) == "" {
		return errors.New("agent version must not be empty")
	}
	if strings.TrimSpace(c.ProcRoot) == "" || strings.TrimSpace(c.SysRoot) == "" {
		return errors.New("DBHEALTH_PROC_ROOT and DBHEALTH_SYS_ROOT are required")
	}
	if c.PollInterval <= 0 {
		return errors.New("DBHEALTH_POLL_INTERVAL must be > 0")
	}
	if c.PollJitter < 0 || c.PollJitter >= c.PollInterval {
		return errors.New("DBHEALTH_POLL_JITTER must be >= 0 and < DBHEALTH_POLL_INTERVAL")
	}
	if c.ShutdownTimeout <= 0 {
		return errors.New("DBHEALTH_SHUTDOWN_TIMEOUT must be > 0")
	}
	if c.ReadTimeout <= 0 {
		return errors.New("DBHEALTH_READ_TIMEOUT must be > 0")
	}
	if c.SinkWriteTimeout <= 0 {
		return errors.New("DBHEALTH_SINK_WRITE_TIMEOUT must be > 0")
	}
	if c.WorkerPoolSize <= 0 {
		return errors.New("DBHEALTH_WORKER_POOL_SIZE must be > 0")
	}
	if err := c.Watch.validate(); err != nil {
		return err
	}
	if err := c.Thresholds.validate(); err != nil {
		return err
	}
	switch c.StreamMode {
	case StreamModeGRPC:
		if c.BackendGRPCAddr == "" {
			return errors.New("DBHEALTH_BACKEND_GRPC_ADDR is required for grpc mode")
		}
		if strings.TrimSpace(c.GRPCReportMethod) == "" {
			return errors.New("DBHEALTH_GRPC_REPORT_METHOD is required for grpc mode")
		}
	case StreamModeWebSocket:
		if c.BackendWSURL == "" {
			return errors.New("DBHEALTH_BACKEND_WS_URL is required for websocket mode")
		}
	case StreamModeSQLite:
		if strings.TrimSpace(c.SQLitePath) == "" {
			return errors.New("DBHEALTH_SQLITE_PATH is required for sqlite mode")
		}
	default:
		return fmt.Errorf("unsupported stream mode %q", c.StreamMode)
	}
	return nil
}

func (w WatchConfig) validate() error {
	if w.Empty() {
		return errors.New("at least one of DBHEALTH_WATCH_NAME, DBHEALTH_WATCH_CMDLINE, DBHEALTH_WATCH_CGROUP, DBHEALTH_WATCH_PIDS is required")
	}
	for key, pattern := range map[string]string{
		"DBHEALTH_WATCH_NAME":    w.NamePattern,
		"DBHEALTH_WATCH_CMDLINE": w.CmdlinePattern,
		"DBHEALTH_WATCH_CGROUP":  w.CgroupPattern,
	} {
		if pattern == "" {
			continue
		}
		if _, err := regexp.Compile(pattern); err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
	}
	for _, pid := range w.PIDs {
		if pid <= 0 {
			return fmt.Errorf("DBHEALTH_WATCH_PIDS: invalid pid %d", pid)
		}
	}
	return nil
}

func (t Thresholds) validate() error {
	if t.HysteresisCycles <= 0 {
		return errors.New("DBHEALTH_HYSTERESIS_CYCLES must be > 0")
	}
	if t.CPUSaturationCycles <= 0 {
		return errors.New("DBHEALTH_CPU_SATURATION_CYCLES must be > 0")
	}
	if t.MemoryCriticalBytes > 0 && t.MemoryCriticalBytes < t.MemoryDegradedBytes {
		return errors.New("DBHEALTH_MEM_CRITICAL_BYTES must be >= DBHEALTH_MEM_DEGRADED_BYTES")
	}
	if t.FDCriticalPercent > 0 && t.FDCriticalPercent < t.FDDegradedPercent {
		return errors.New("DBHEALTH_FD_CRITICAL_PERCENT must be >= DBHEALTH_FD_DEGRADED_PERCENT")
	}
	return nil
}

func (c Config) TLSConfig() (*tls.Config, error) {
	if !c.TLSEnabled {
		return nil, nil
	}
	tlsCfg := &tls.Config{MinVersion: tls.VersionTLS12, InsecureSkipVerify: c.TLSSkipVerify}
	if c.TLSCAPath != "" {
		caBytes, err := os.ReadFile(c.TLSCAPath)
		if err != nil {
			return nil, fmt.Errorf("read CA file: %w", err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(caBytes) {
			return nil, errors.New("append CA cert failed")
		}
		tlsCfg.RootCAs = pool
	}
	if c.TLSCertPath != "" || c.TLSKeyPath != "" {
		if c.TLSCertPath == "" || c.TLSKeyPath == "" {
			return nil, errors.New("both TLS cert and key are required")
		}
		crt, err := tls.LoadX509KeyPair(c.TLSCertPath, c.TLSKeyPath)
		if err != nil {
			return nil, fmt.Errorf("load mTLS cert/key: %w", err)
		}
		tlsCfg.Certificates = []tls.Certificate{crt}
	}
	return tlsCfg, nil
}
