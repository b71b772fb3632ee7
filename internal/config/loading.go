package config

import (
	"fmt"
	"os"
	"regexp"

	"gopkg.in/yaml.v3"
)

func LoadConfig(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		if os.IsNotExist(err) {
			// 配置文件不存在，生成默认配置文件
			if err := generateDefaultConfig(filename); err != nil {
				return nil, fmt.Errorf("failed to generate default config file: %v", err)
			}
			data, err = os.ReadFile(filename)
			if err != nil {
				return nil, fmt.Errorf("failed to read generated config file: %v", err)
			}
		} else {
			return nil, fmt.Errorf("failed to read config file: %v", err)
		}
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %v", err)
	}

	expandEnvironmentVariables(&config)
	applyDefaults(&config)

	if err := validateConfig(&config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %v", err)
	}

	return &config, nil
}

// generateDefaultConfig 生成默认配置文件
func generateDefaultConfig(filename string) error {
	defaultConfig := DefaultConfig()

	data, err := yaml.Marshal(defaultConfig)
	if err != nil {
		return fmt.Errorf("failed to marshal default config: %v", err)
	}

	header := `# livecard-chat 默认配置文件
# 这是自动生成的默认配置文件，请根据需要修改各项配置
#
# 环境变量支持:
# - 您可以使用 ${ENV_VAR_NAME} 格式从环境变量加载配置值
# - 支持默认值语法: ${ENV_VAR_NAME:default_value}

`

	if err := os.WriteFile(filename, []byte(header+string(data)), 0644); err != nil {
		return fmt.Errorf("failed to write default config file: %v", err)
	}

	fmt.Printf("默认配置文件已生成: %s\n", filename)
	return nil
}

// DefaultConfig returns the built-in default configuration
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host: "127.0.0.1",
			Port: 8080,
		},
		Upstream: UpstreamConfig{
			BotURL:         "${AI_SERVICE_BOT_BASE_URL:http://127.0.0.1:9100/api/v1/info_bot/live_card_chat/completion}",
			TLSHandshake:   "10s",
			ResponseHeader: "60s",
			IdleConnection: "90s",
			OverallRequest: "30s",
			RetryDelay:     "1s",
		},
		Database: DatabaseConfig{
			Path: "./data/chat.db",
		},
		Logging: LoggingConfig{
			Level: "info",
		},
		Chat: ChatConfig{
			HistoryLimit: 20,
		},
	}
}

func applyDefaults(config *Config) {
	if config.Server.Host == "" {
		config.Server.Host = "127.0.0.1"
	}
	if config.Server.Port == 0 {
		config.Server.Port = 8080
	}
	if config.Database.Path == "" {
		config.Database.Path = "./data/chat.db"
	}
	if config.Logging.Level == "" {
		config.Logging.Level = "info"
	}
	if config.Chat.HistoryLimit == 0 {
		config.Chat.HistoryLimit = 20
	}
}

// expandEnvironmentVariables 展开配置中的环境变量
// 支持格式: ${VAR_NAME} 和 ${VAR_NAME:default_value}
func expandEnvironmentVariables(config *Config) {
	envVarRegex := regexp.MustCompile(`\$\{([^}:]+)(?::([^}]*))?\}`)

	expandString := func(str string) string {
		return envVarRegex.ReplaceAllStringFunc(str, func(match string) string {
			submatches := envVarRegex.FindStringSubmatch(match)
			if len(submatches) < 2 {
				return match
			}

			envName := submatches[1]
			defaultValue := ""
			if len(submatches) > 2 {
				defaultValue = submatches[2]
			}

			if envValue, exists := os.LookupEnv(envName); exists {
				return envValue
			}
			return defaultValue
		})
	}

	config.Server.Host = expandString(config.Server.Host)
	config.Upstream.BotURL = expandString(config.Upstream.BotURL)
	config.Database.Path = expandString(config.Database.Path)
}

func validateConfig(config *Config) error {
	if config.Upstream.BotURL == "" {
		return fmt.Errorf("upstream.bot_url must be configured")
	}
	if config.Server.Port <= 0 || config.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535")
	}
	if config.Chat.HistoryLimit < 0 {
		return fmt.Errorf("chat.history_limit cannot be negative")
	}
	return nil
}
