package config

type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Upstream UpstreamConfig `yaml:"upstream"` // AI 服务配置
	Database DatabaseConfig `yaml:"database"`
	Logging  LoggingConfig  `yaml:"logging"`
	Chat     ChatConfig     `yaml:"chat"`
}

type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// UpstreamConfig 上游 AI 服务配置
type UpstreamConfig struct {
	BotURL string `yaml:"bot_url"` // 流式聊天补全接口地址

	// 超时配置，格式如 "60s"
	TLSHandshake   string `yaml:"tls_handshake"`    // TLS握手超时，默认10s
	ResponseHeader string `yaml:"response_header"`  // 响应头超时，默认60s
	IdleConnection string `yaml:"idle_connection"`  // 空闲连接超时，默认90s
	OverallRequest string `yaml:"overall_request"`  // 非流式请求整体超时，默认30s

	RetryDelay string `yaml:"retry_delay"` // 非流式请求重试间隔，默认1s
}

type DatabaseConfig struct {
	Path string `yaml:"path"` // SQLite 数据库文件路径
}

type LoggingConfig struct {
	Level string `yaml:"level"`
}

type ChatConfig struct {
	HistoryLimit int `yaml:"history_limit"` // 发送给AI服务的历史消息条数上限
}
