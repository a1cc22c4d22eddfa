// Package config 负责加载和管理应用程序的配置。
package config

import (
	"fmt"

	"github.com/spf13/viper"
)

// 全局配置变量，存储从配置文件加载的所有设置。
var Conf Config

// Config 是整个应用程序的配置结构体，与 config.yaml 文件结构对应。
type Config struct {
	Server        ServerConfig        `mapstructure:"server"`
	Database      DatabaseConfig      `mapstructure:"database"`
	JWT           JWTConfig           `mapstructure:"jwt"`
	Log           LogConfig           `mapstructure:"log"`
	Kafka         KafkaConfig         `mapstructure:"kafka"`
	Tika          TikaConfig          `mapstructure:"tika"`
	Scanner       ScannerConfig       `mapstructure:"scanner"`
	Elasticsearch ElasticsearchConfig `mapstructure:"elasticsearch"`
	MinIO         MinIOConfig         `mapstructure:"minio"`
	AI            AIConfig            `mapstructure:"ai"`
	Pipeline      PipelineConfig      `mapstructure:"pipeline"`
}

// ServerConfig 存储服务器相关的配置。
type ServerConfig struct {
	Port string `mapstructure:"port"`
	Mode string `mapstructure:"mode"`
}

// DatabaseConfig 存储所有数据库连接的配置。
type DatabaseConfig struct {
	MySQL MySQLConfig `mapstructure:"mysql"`
	Redis RedisConfig `mapstructure:"redis"`
}

// MySQLConfig 存储 MySQL 数据库的配置。
type MySQLConfig struct {
	DSN string `mapstructure:"dsn"`
}

// RedisConfig 存储 Redis 的配置。
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// JWTConfig 存储 JWT 相关的配置。
type JWTConfig struct {
	Secret                 string `mapstructure:"secret"`
	AccessTokenExpireHours int    `mapstructure:"access_token_expire_hours"`
}

// LogConfig 存储日志相关的配置。
type LogConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	OutputPath string `mapstructure:"output_path"`
}

// KafkaConfig 存储 Kafka 相关的配置。
type KafkaConfig struct {
	Brokers string `mapstructure:"brokers"`
	Topic   string `mapstructure:"topic"`
	GroupID string `mapstructure:"group_id"`
}

// TikaConfig 存储 Tika 文本提取服务器的配置。
type TikaConfig struct {
	ServerURL string `mapstructure:"server_url"`
	MaxChars  int    `mapstructure:"max_chars"`
}

// ScannerConfig 存储病毒扫描服务的配置。
type ScannerConfig struct {
	ServerURL string `mapstructure:"server_url"`
	Name      string `mapstructure:"name"`
	Version   string `mapstructure:"version"`
}

// ElasticsearchConfig 存储 Elasticsearch 相关的配置。
type ElasticsearchConfig struct {
	Addresses string `mapstructure:"addresses"`
	Username  string `mapstructure:"username"`
	Password  string `mapstructure:"password"`
	IndexName string `mapstructure:"index_name"`
}

// MinIOConfig 存储 MinIO 对象存储的配置。
type MinIOConfig struct {
	Endpoint        string `mapstructure:"endpoint"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
	UseSSL          bool   `mapstructure:"use_ssl"`
	BucketPrefix    string `mapstructure:"bucket_prefix"`
}

// AIConfig 存储 AI 元数据提取相关的配置。
type AIConfig struct {
	Enabled     bool    `mapstructure:"enabled"`
	Provider    string  `mapstructure:"provider"`
	APIKey      string  `mapstructure:"api_key"`
	BaseURL     string  `mapstructure:"base_url"`
	Model       string  `mapstructure:"model"`
	Temperature float64 `mapstructure:"temperature"`
	MaxTokens   int     `mapstructure:"max_tokens"`
	// MinConfidence 低于该置信度的提取结果只记录、不合并分类字段。
	MinConfidence float64 `mapstructure:"min_confidence"`
}

// PipelineConfig 存储文件处理管道的运行策略。
type PipelineConfig struct {
	// StageTimeoutSeconds 单个阶段的最长执行时间（秒），0 表示使用默认值 60。
	StageTimeoutSeconds int `mapstructure:"stage_timeout_seconds"`
	// ContinueOnStageFailure 为 true 时，非关键阶段失败后继续执行后续阶段。
	ContinueOnStageFailure bool `mapstructure:"continue_on_stage_failure"`
	// CriticalStages 中列出的阶段失败时总是中止管道，不受 ContinueOnStageFailure 影响。
	CriticalStages []string `mapstructure:"critical_stages"`
	// NonCriticalStages 中列出的阶段失败不影响整体 success 标志。
	NonCriticalStages []string `mapstructure:"non_critical_stages"`
	// DisabledStages 启动时默认禁用的阶段，可在运行时重新启用。
	DisabledStages []string `mapstructure:"disabled_stages"`
	// MaxConcurrentStages 预留给未来不依赖文件流的阶段并行执行，当前按顺序执行。
	MaxConcurrentStages int `mapstructure:"max_concurrent_stages"`
}

// Init 初始化配置加载，从指定的路径读取 YAML 文件并解析到 Conf 变量中。
func Init(configPath string) {
	viper.SetConfigFile(configPath)
	viper.SetConfigType("yaml")

	if err := viper.ReadInConfig(); err != nil {
		panic(fmt.Errorf("读取配置文件失败: %w", err))
	}

	if err := viper.Unmarshal(&Conf); err != nil {
		panic(fmt.Errorf("无法将配置解析到结构体中: %w", err))
	}
}
