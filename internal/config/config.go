// internal/config/config.go
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"

	"github.com/Corphon/SceneForge/internal/utils"
)

// 当前配置的单例实例
var (
	currentConfig *AppConfig
	configMutex   sync.RWMutex
	configFile    string
)

// Config 启动配置，来自环境变量（以及可选的 .env 文件）
type Config struct {
	Port             string `env:"PORT" envDefault:"8080"`
	DataDir          string `env:"DATA_DIR" envDefault:"data"`
	LogDir           string `env:"LOG_DIR" envDefault:"logs"`
	LogLevel         string `env:"LOG_LEVEL" envDefault:"info"`
	DebugMode        bool   `env:"DEBUG_MODE" envDefault:"true"`
	StoreBackend     string `env:"STORE_BACKEND" envDefault:"file"`
	PresetsFile      string `env:"PRESETS_FILE"`
	LLMProvider      string `env:"LLM_PROVIDER" envDefault:"google"`
	LLMAPIKey        string `env:"LLM_API_KEY"`
	LLMModel         string `env:"LLM_MODEL"`
	SceneConcurrency int    `env:"SCENE_CONCURRENCY" envDefault:"2"`
	SecretPassphrase string `env:"CONFIG_SECRET"`
}

// AppConfig 运行时配置，LLM 设置可通过 API 修改并持久化到 config.json
type AppConfig struct {
	Port             string            `json:"port"`
	DataDir          string            `json:"data_dir"`
	LogDir           string            `json:"log_dir"`
	LogLevel         string            `json:"log_level"`
	DebugMode        bool              `json:"debug_mode"`
	StoreBackend     string            `json:"store_backend"`
	PresetsFile      string            `json:"presets_file,omitempty"`
	SceneConcurrency int               `json:"scene_concurrency"`
	LLMProvider      string            `json:"llm_provider"`
	LLMConfig        map[string]string `json:"llm_config"`
}

// Load 从环境变量加载配置
func Load() (*Config, error) {
	// .env 是可选的
	_ = godotenv.Load()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	if cfg.SceneConcurrency <= 0 {
		cfg.SceneConcurrency = 1
	}

	if cfg.LLMAPIKey == "" {
		utils.GetLogger().Warn("LLM API key not set; configure it via /api/llm/config before generating", nil)
	}

	return cfg, nil
}

// InitConfig 初始化配置管理器
func InitConfig(dataDir string) error {
	baseConfig, err := Load()
	if err != nil {
		return err
	}
	if dataDir != "" {
		baseConfig.DataDir = dataDir
	}
	return initFrom(baseConfig)
}

func initFrom(baseConfig *Config) error {
	configMutex.Lock()
	defer configMutex.Unlock()

	if err := os.MkdirAll(baseConfig.DataDir, 0755); err != nil {
		return fmt.Errorf("创建数据目录失败: %w", err)
	}
	configFile = filepath.Join(baseConfig.DataDir, "config.json")

	cfg := fromBase(baseConfig)

	// 合并已保存的 LLM 设置，基础配置始终以环境变量为准
	if data, err := os.ReadFile(configFile); err == nil {
		var saved AppConfig
		if json.Unmarshal(data, &saved) == nil {
			if saved.LLMProvider != "" {
				cfg.LLMProvider = saved.LLMProvider
			}
			for k, v := range saved.LLMConfig {
				if k == "api_key" {
					opened, err := utils.OpenSecret(v, baseConfig.SecretPassphrase)
					if err != nil {
						utils.GetLogger().Warn("saved api key could not be decrypted", map[string]interface{}{"error": err})
						continue
					}
					v = opened
				}
				if v != "" {
					cfg.LLMConfig[k] = v
				}
			}
		}
	}

	currentConfig = cfg
	return saveLocked(baseConfig.SecretPassphrase)
}

func fromBase(base *Config) *AppConfig {
	llmConfig := map[string]string{}
	if base.LLMAPIKey != "" {
		llmConfig["api_key"] = base.LLMAPIKey
	}
	if base.LLMModel != "" {
		llmConfig["default_model"] = base.LLMModel
	}
	return &AppConfig{
		Port:             base.Port,
		DataDir:          base.DataDir,
		LogDir:           base.LogDir,
		LogLevel:         base.LogLevel,
		DebugMode:        base.DebugMode,
		StoreBackend:     base.StoreBackend,
		PresetsFile:      base.PresetsFile,
		SceneConcurrency: base.SceneConcurrency,
		LLMProvider:      base.LLMProvider,
		LLMConfig:        llmConfig,
	}
}

// GetCurrentConfig 返回当前配置的副本
func GetCurrentConfig() *AppConfig {
	configMutex.RLock()
	defer configMutex.RUnlock()

	if currentConfig == nil {
		baseConfig, err := Load()
		if err != nil {
			baseConfig = &Config{Port: "8080", DataDir: "data", LogDir: "logs", StoreBackend: "memory", SceneConcurrency: 1}
		}
		return fromBase(baseConfig)
	}

	configCopy := *currentConfig
	configCopy.LLMConfig = make(map[string]string, len(currentConfig.LLMConfig))
	for k, v := range currentConfig.LLMConfig {
		configCopy.LLMConfig[k] = v
	}
	return &configCopy
}

// UpdateLLMConfig 更新LLM配置
func UpdateLLMConfig(provider string, llmConfig map[string]string) error {
	configMutex.Lock()
	defer configMutex.Unlock()

	if currentConfig == nil {
		return fmt.Errorf("配置系统未初始化")
	}

	currentConfig.LLMProvider = provider
	currentConfig.LLMConfig = make(map[string]string, len(llmConfig))
	for k, v := range llmConfig {
		currentConfig.LLMConfig[k] = v
	}

	return saveLocked(os.Getenv("CONFIG_SECRET"))
}

// saveLocked 保存当前配置到文件，调用方需持有 configMutex
func saveLocked(passphrase string) error {
	if currentConfig == nil {
		return fmt.Errorf("没有配置可保存")
	}

	onDisk := *currentConfig
	onDisk.LLMConfig = make(map[string]string, len(currentConfig.LLMConfig))
	for k, v := range currentConfig.LLMConfig {
		if k == "api_key" {
			sealed, err := utils.SealSecret(v, passphrase)
			if err != nil {
				return fmt.Errorf("加密API密钥失败: %w", err)
			}
			v = sealed
		}
		onDisk.LLMConfig[k] = v
	}

	data, err := json.MarshalIndent(onDisk, "", "  ")
	if err != nil {
		return fmt.Errorf("序列化配置失败: %w", err)
	}

	tmp := configFile + ".tmp"
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		return fmt.Errorf("保存配置失败: %w", err)
	}
	return os.Rename(tmp, configFile)
}
