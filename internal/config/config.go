package config

import (
	"time"
)

// BuildVersion is set via ldflags
var BuildVersion = "development"

// Validation tags described here: https://pkg.go.dev/github.com/go-playground/validator/v10
type Config struct {
	Environment string `env:"ENVIRONMENT" flag:"environment"`
	Log         struct {
		Color      bool   `env:"LOG_COLOR"       flag:"log-color"`
		FolderPath string `env:"LOG_FOLDER_PATH" flag:"log-folder-path" validate:"omitempty,dirpath" desc:"enables file logging and sets the folder path"`
		IsProd     bool   `env:"LOG_IS_PROD"     flag:"log-is-prod"     desc:"affects the format of the log output"`
		JSON       bool   `env:"LOG_JSON"        flag:"log-json"`
		LevelApp   string `env:"LOG_LEVEL_APP"   flag:"log-level-app"   validate:"omitempty,oneof=debug info warn error dpanic panic fatal"`
		LevelVault string `env:"LOG_LEVEL_VAULT" flag:"log-level-vault" validate:"omitempty,oneof=debug info warn error dpanic panic fatal"`
		LevelHTTP  string `env:"LOG_LEVEL_HTTP"  flag:"log-level-http"  validate:"omitempty,oneof=debug info warn error dpanic panic fatal"`
	}
	Vault struct {
		VotingTimeSeconds    int `env:"VAULT_VOTING_TIME_SECONDS"    flag:"vault-voting-time-seconds"    validate:"omitempty,number" desc:"default duration of the contributor veto window for a payout request"`
		RetryCooldownSeconds int `env:"VAULT_RETRY_COOLDOWN_SECONDS" flag:"vault-retry-cooldown-seconds" validate:"omitempty,number" desc:"default delay before a rejected payout request may be retried"`
		MaxRetryAttempts     int `env:"VAULT_MAX_RETRY_ATTEMPTS"     flag:"vault-max-retry-attempts"     validate:"omitempty,number" desc:"default number of rejections of one milestone before the project is cancelled"`
		EventHistorySize     int `env:"VAULT_EVENT_HISTORY_SIZE"     flag:"vault-event-history-size"     validate:"omitempty,number" desc:"number of notifications kept per vault"`
	}
	Web struct {
		Address   string `env:"WEB_ADDRESS"    flag:"web-address"    validate:"required,hostname_port" desc:"http server address host:port"`
		PublicUrl string `env:"WEB_PUBLIC_URL" flag:"web-public-url" validate:"omitempty,url"          desc:"public url of the fundvault node, falls back to web-address if empty"`
	}
}

func (cfg *Config) SetDefaults() {
	if cfg.Environment == "" {
		cfg.Environment = "development"
	}

	// Log

	if cfg.Log.LevelApp == "" {
		cfg.Log.LevelApp = "debug"
	}
	if cfg.Log.LevelVault == "" {
		cfg.Log.LevelVault = "info"
	}
	if cfg.Log.LevelHTTP == "" {
		cfg.Log.LevelHTTP = "info"
	}

	// Vault

	if cfg.Vault.VotingTimeSeconds == 0 {
		cfg.Vault.VotingTimeSeconds = int((72 * time.Hour).Seconds())
	}
	if cfg.Vault.RetryCooldownSeconds == 0 {
		cfg.Vault.RetryCooldownSeconds = int((24 * time.Hour).Seconds())
	}
	if cfg.Vault.MaxRetryAttempts == 0 {
		cfg.Vault.MaxRetryAttempts = 3
	}
	if cfg.Vault.EventHistorySize == 0 {
		cfg.Vault.EventHistorySize = 128
	}

	// Web

	if cfg.Web.Address == "" {
		cfg.Web.Address = "0.0.0.0:8080"
	}
	if cfg.Web.PublicUrl == "" {
		cfg.Web.PublicUrl = "http://localhost:8080"
	}
}

func (cfg *Config) VotingTime() time.Duration {
	return time.Duration(cfg.Vault.VotingTimeSeconds) * time.Second
}

func (cfg *Config) RetryCooldown() time.Duration {
	return time.Duration(cfg.Vault.RetryCooldownSeconds) * time.Second
}

// GetSanitized returns a copy of the config with sensitive data removed
// explicitly adding each field here to avoid accidentally leaking sensitive data
func (cfg *Config) GetSanitized() interface{} {
	publicCfg := Config{}

	publicCfg.Environment = cfg.Environment

	publicCfg.Log.Color = cfg.Log.Color
	publicCfg.Log.FolderPath = cfg.Log.FolderPath
	publicCfg.Log.IsProd = cfg.Log.IsProd
	publicCfg.Log.JSON = cfg.Log.JSON
	publicCfg.Log.LevelApp = cfg.Log.LevelApp
	publicCfg.Log.LevelVault = cfg.Log.LevelVault
	publicCfg.Log.LevelHTTP = cfg.Log.LevelHTTP

	publicCfg.Vault.VotingTimeSeconds = cfg.Vault.VotingTimeSeconds
	publicCfg.Vault.RetryCooldownSeconds = cfg.Vault.RetryCooldownSeconds
	publicCfg.Vault.MaxRetryAttempts = cfg.Vault.MaxRetryAttempts
	publicCfg.Vault.EventHistorySize = cfg.Vault.EventHistorySize

	publicCfg.Web.Address = cfg.Web.Address
	publicCfg.Web.PublicUrl = cfg.Web.PublicUrl

	return publicCfg
}
