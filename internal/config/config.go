package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// GlobalFlags are the persistent cobra flags shared by every command.
type GlobalFlags struct {
	ConfigPath string
	JSON       bool
	Plain      bool
	Timeout    string
	Retries    int
	NoCache    bool
	RPCURL     string
	ChainID    int64
}

// Settings is the merged runtime configuration. Precedence: defaults,
// then .env, config file, environment, flags (last wins).
type Settings struct {
	OutputMode string

	ListenAddr    string
	TargetChainID int64
	RPCURL        string

	SlippagePct float64
	// FeeTier is in the Uniswap pool fee unit, hundredths of a bip
	// (3000 = 0.3%).
	FeeTier int64

	Timeout time.Duration
	Retries int

	CacheEnabled  bool
	CachePath     string
	CacheLockPath string
	GasCacheTTL   time.Duration

	PollInterval    time.Duration
	MaxPollAttempts int

	// All upstream API keys are optional. A missing key selects the mock
	// fallback path for that provider instead of failing.
	LLMAPIKey        string
	LLMBaseURL       string
	LLMModel         string
	GasTrackerAPIKey string
	GasTrackerURL    string
}

type fileConfig struct {
	Output  string `yaml:"output"`
	Listen  string `yaml:"listen"`
	ChainID *int64 `yaml:"chain_id"`
	RPCURL  string `yaml:"rpc_url"`
	Timeout string `yaml:"timeout"`
	Retries *int   `yaml:"retries"`
	Swap    struct {
		SlippagePct *float64 `yaml:"slippage_pct"`
		FeeTier     *int64   `yaml:"fee_tier"`
	} `yaml:"swap"`
	Cache struct {
		Enabled  *bool  `yaml:"enabled"`
		Path     string `yaml:"path"`
		LockPath string `yaml:"lock_path"`
		GasTTL   string `yaml:"gas_ttl"`
	} `yaml:"cache"`
	Monitor struct {
		PollInterval string `yaml:"poll_interval"`
		MaxAttempts  *int   `yaml:"max_attempts"`
	} `yaml:"monitor"`
	Providers struct {
		LLM struct {
			APIKey    string `yaml:"api_key"`
			APIKeyEnv string `yaml:"api_key_env"`
			BaseURL   string `yaml:"base_url"`
			Model     string `yaml:"model"`
		} `yaml:"llm"`
		GasTracker struct {
			APIKey    string `yaml:"api_key"`
			APIKeyEnv string `yaml:"api_key_env"`
			BaseURL   string `yaml:"base_url"`
		} `yaml:"gas_tracker"`
	} `yaml:"providers"`
}

func Load(flags GlobalFlags) (Settings, error) {
	// .env is a developer convenience; absence is not an error.
	_ = godotenv.Load()

	settings, err := defaultSettings()
	if err != nil {
		return Settings{}, err
	}

	cfgPath, err := resolveConfigPath(flags.ConfigPath)
	if err != nil {
		return Settings{}, err
	}
	if err := applyFileConfig(cfgPath, &settings); err != nil {
		return Settings{}, err
	}

	applyEnv(&settings)

	if err := applyFlags(flags, &settings); err != nil {
		return Settings{}, err
	}

	if settings.OutputMode == "" {
		settings.OutputMode = "json"
	}
	if settings.Timeout <= 0 {
		settings.Timeout = 10 * time.Second
	}
	if settings.Retries < 0 {
		settings.Retries = 0
	}
	if settings.SlippagePct <= 0 || settings.SlippagePct >= 100 {
		settings.SlippagePct = 0.5
	}
	if settings.PollInterval <= 0 {
		settings.PollInterval = 2 * time.Second
	}
	if settings.MaxPollAttempts <= 0 {
		settings.MaxPollAttempts = 60
	}
	if settings.GasCacheTTL <= 0 {
		settings.GasCacheTTL = 12 * time.Second
	}

	return settings, nil
}

func defaultSettings() (Settings, error) {
	cachePath, lockPath, err := defaultCachePaths()
	if err != nil {
		return Settings{}, err
	}
	return Settings{
		OutputMode:      "json",
		ListenAddr:      ":8787",
		TargetChainID:   11155111,
		SlippagePct:     0.5,
		FeeTier:         3000,
		Timeout:         10 * time.Second,
		Retries:         2,
		CacheEnabled:    true,
		CachePath:       cachePath,
		CacheLockPath:   lockPath,
		GasCacheTTL:     12 * time.Second,
		PollInterval:    2 * time.Second,
		MaxPollAttempts: 60,
		LLMBaseURL:      "https://openrouter.ai/api/v1",
		LLMModel:        "anthropic/claude-sonnet-4",
		GasTrackerURL:   "https://api.etherscan.io/api",
	}, nil
}

func resolveConfigPath(input string) (string, error) {
	if strings.TrimSpace(input) != "" {
		return input, nil
	}
	base := os.Getenv("XDG_CONFIG_HOME")
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		base = filepath.Join(home, ".config")
	}
	return filepath.Join(base, "copilotd", "config.yaml"), nil
}

func defaultCachePaths() (string, string, error) {
	base := os.Getenv("XDG_CACHE_HOME")
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", "", err
		}
		base = filepath.Join(home, ".cache")
	}
	dir := filepath.Join(base, "copilotd")
	return filepath.Join(dir, "cache.db"), filepath.Join(dir, "cache.lock"), nil
}

func applyFileConfig(path string, settings *Settings) error {
	buf, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}

	var cfg fileConfig
	if err := yaml.Unmarshal(buf, &cfg); err != nil {
		return fmt.Errorf("parse config yaml: %w", err)
	}

	if cfg.Output != "" {
		settings.OutputMode = strings.ToLower(cfg.Output)
	}
	if cfg.Listen != "" {
		settings.ListenAddr = cfg.Listen
	}
	if cfg.ChainID != nil {
		settings.TargetChainID = *cfg.ChainID
	}
	if cfg.RPCURL != "" {
		settings.RPCURL = cfg.RPCURL
	}
	if cfg.Timeout != "" {
		d, err := time.ParseDuration(cfg.Timeout)
		if err != nil {
			return fmt.Errorf("config timeout: %w", err)
		}
		settings.Timeout = d
	}
	if cfg.Retries != nil {
		settings.Retries = *cfg.Retries
	}
	if cfg.Swap.SlippagePct != nil {
		settings.SlippagePct = *cfg.Swap.SlippagePct
	}
	if cfg.Swap.FeeTier != nil {
		settings.FeeTier = *cfg.Swap.FeeTier
	}
	if cfg.Cache.Enabled != nil {
		settings.CacheEnabled = *cfg.Cache.Enabled
	}
	if cfg.Cache.Path != "" {
		settings.CachePath = cfg.Cache.Path
	}
	if cfg.Cache.LockPath != "" {
		settings.CacheLockPath = cfg.Cache.LockPath
	}
	if cfg.Cache.GasTTL != "" {
		d, err := time.ParseDuration(cfg.Cache.GasTTL)
		if err != nil {
			return fmt.Errorf("config cache.gas_ttl: %w", err)
		}
		settings.GasCacheTTL = d
	}
	if cfg.Monitor.PollInterval != "" {
		d, err := time.ParseDuration(cfg.Monitor.PollInterval)
		if err != nil {
			return fmt.Errorf("config monitor.poll_interval: %w", err)
		}
		settings.PollInterval = d
	}
	if cfg.Monitor.MaxAttempts != nil {
		settings.MaxPollAttempts = *cfg.Monitor.MaxAttempts
	}
	if cfg.Providers.LLM.APIKey != "" {
		settings.LLMAPIKey = cfg.Providers.LLM.APIKey
	}
	if cfg.Providers.LLM.APIKeyEnv != "" {
		settings.LLMAPIKey = os.Getenv(cfg.Providers.LLM.APIKeyEnv)
	}
	if cfg.Providers.LLM.BaseURL != "" {
		settings.LLMBaseURL = cfg.Providers.LLM.BaseURL
	}
	if cfg.Providers.LLM.Model != "" {
		settings.LLMModel = cfg.Providers.LLM.Model
	}
	if cfg.Providers.GasTracker.APIKey != "" {
		settings.GasTrackerAPIKey = cfg.Providers.GasTracker.APIKey
	}
	if cfg.Providers.GasTracker.APIKeyEnv != "" {
		settings.GasTrackerAPIKey = os.Getenv(cfg.Providers.GasTracker.APIKeyEnv)
	}
	if cfg.Providers.GasTracker.BaseURL != "" {
		settings.GasTrackerURL = cfg.Providers.GasTracker.BaseURL
	}

	return nil
}

func applyEnv(settings *Settings) {
	if v := os.Getenv("COPILOT_OUTPUT"); v != "" {
		settings.OutputMode = strings.ToLower(v)
	}
	if v := os.Getenv("COPILOT_LISTEN"); v != "" {
		settings.ListenAddr = v
	}
	if v := os.Getenv("COPILOT_CHAIN_ID"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			settings.TargetChainID = n
		}
	}
	if v := os.Getenv("COPILOT_RPC_URL"); v != "" {
		settings.RPCURL = v
	}
	if v := os.Getenv("COPILOT_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			settings.Timeout = d
		}
	}
	if v := os.Getenv("COPILOT_RETRIES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			settings.Retries = n
		}
	}
	if v := os.Getenv("COPILOT_SLIPPAGE_PCT"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			settings.SlippagePct = f
		}
	}
	if v := os.Getenv("COPILOT_NO_CACHE"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			settings.CacheEnabled = !b
		}
	}
	if v := os.Getenv("COPILOT_CACHE_PATH"); v != "" {
		settings.CachePath = v
	}
	if v := os.Getenv("COPILOT_CACHE_LOCK_PATH"); v != "" {
		settings.CacheLockPath = v
	}
	if v := os.Getenv("COPILOT_LLM_API_KEY"); v != "" {
		settings.LLMAPIKey = v
	}
	if v := os.Getenv("COPILOT_LLM_BASE_URL"); v != "" {
		settings.LLMBaseURL = v
	}
	if v := os.Getenv("COPILOT_LLM_MODEL"); v != "" {
		settings.LLMModel = v
	}
	if v := os.Getenv("COPILOT_GASTRACKER_API_KEY"); v != "" {
		settings.GasTrackerAPIKey = v
	}
	if v := os.Getenv("COPILOT_GASTRACKER_URL"); v != "" {
		settings.GasTrackerURL = v
	}
}

func applyFlags(flags GlobalFlags, settings *Settings) error {
	if flags.JSON && flags.Plain {
		return fmt.Errorf("cannot use --json and --plain together")
	}
	if flags.JSON {
		settings.OutputMode = "json"
	}
	if flags.Plain {
		settings.OutputMode = "plain"
	}
	if flags.Timeout != "" {
		d, err := time.ParseDuration(flags.Timeout)
		if err != nil {
			return fmt.Errorf("parse --timeout: %w", err)
		}
		settings.Timeout = d
	}
	if flags.Retries >= 0 {
		settings.Retries = flags.Retries
	}
	if flags.NoCache {
		settings.CacheEnabled = false
	}
	if flags.RPCURL != "" {
		settings.RPCURL = flags.RPCURL
	}
	if flags.ChainID > 0 {
		settings.TargetChainID = flags.ChainID
	}

	if settings.OutputMode != "json" && settings.OutputMode != "plain" {
		return fmt.Errorf("output must be json or plain")
	}
	return nil
}
