package config

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"github.com/sirupsen/logrus"
)

// Config 应用配置
type Config struct {
	Server      ServerConfig      `json:"server"`
	Database    DatabaseConfig    `json:"database"`
	Consul      ConsulConfig      `json:"consul"`
	Jaeger      JaegerConfig      `json:"jaeger"`
	Log         LogConfig         `json:"log"`
	Telemetry   TelemetryConfig   `json:"telemetry"`
	Backup      BackupConfig      `json:"backup"`
	Advisor     AdvisorConfig     `json:"advisor"`
	PlateLookup PlateLookupConfig `json:"plate_lookup"`
}

// ServerConfig 服务配置
type ServerConfig struct {
	Name     string `json:"name"`      // 服务名称
	Host     string `json:"host"`      // 服务地址
	HTTPPort int    `json:"http_port"` // HTTP端口
}

// DatabaseConfig 数据库配置
type DatabaseConfig struct {
	Driver   string `json:"driver"`   // 数据库驱动
	Host     string `json:"host"`     // 数据库地址
	Port     int    `json:"port"`     // 数据库端口
	User     string `json:"user"`     // 用户名
	Password string `json:"password"` // 密码
	Database string `json:"database"` // 数据库名
	MaxIdle  int    `json:"max_idle"` // 最大空闲连接
	MaxOpen  int    `json:"max_open"` // 最大打开连接
}

// ConsulConfig Consul配置
type ConsulConfig struct {
	Host string `json:"host"`
	Port int    `json:"port"`
}

// JaegerConfig Jaeger配置
type JaegerConfig struct {
	Endpoint string  `json:"endpoint"`
	Sampler  float64 `json:"sampler"` // 采样率 0.0-1.0
}

// LogConfig 日志配置
type LogConfig struct {
	Level  string `json:"level"`  // debug, info, warn, error
	Format string `json:"format"` // json, text
	Output string `json:"output"` // stdout, file
	Path   string `json:"path"`   // 日志文件路径
}

// TelemetryConfig 业务事件日志配置（JSON Lines 追加写）
type TelemetryConfig struct {
	EventsPath string `json:"events_path"` // events.jsonl 路径
}

// BackupConfig 定时备份配置
type BackupConfig struct {
	Enabled       bool   `json:"enabled"`
	Dir           string `json:"dir"`            // 备份文件目录
	IntervalHours int    `json:"interval_hours"` // 备份间隔（小时）
}

// AdvisorConfig 运营建议报告配置
type AdvisorConfig struct {
	WindowDays int    `json:"window_days"` // 统计窗口（天）
	ReportsDir string `json:"reports_dir"` // 报告输出目录
}

// PlateLookupConfig 车牌查 VIN 的外部服务配置
type PlateLookupConfig struct {
	Provider string `json:"provider"` // none / vinapi
	Key      string `json:"key"`
	Region   string `json:"region"`
}

var (
	globalConfig *Config
	configOnce   sync.Once
)

// LoadConfig 加载配置
func LoadConfig(configPath string) (*Config, error) {
	var err error
	configOnce.Do(func() {
		globalConfig = &Config{}
		// 如果配置文件不存在，使用默认配置
		if _, err = os.Stat(configPath); os.IsNotExist(err) {
			logrus.Warnf("Config file not found: %s, using default config", configPath)
			globalConfig = defaultConfig()
			err = nil
			return
		}

		data, readErr := os.ReadFile(configPath)
		if readErr != nil {
			err = fmt.Errorf("failed to read config file: %w", readErr)
			return
		}

		if unmarshalErr := json.Unmarshal(data, globalConfig); unmarshalErr != nil {
			err = fmt.Errorf("failed to parse config file: %w", unmarshalErr)
			return
		}
	})

	if err != nil {
		return nil, err
	}

	return globalConfig, nil
}

// GetConfig 获取全局配置
func GetConfig() *Config {
	if globalConfig == nil {
		return defaultConfig()
	}
	return globalConfig
}

// defaultConfig 默认配置（单店开发环境）
func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Name:     "tracker-server",
			Host:     "0.0.0.0",
			HTTPPort: 8080,
		},
		Database: DatabaseConfig{
			Driver:   "mysql",
			Host:     "localhost",
			Port:     3306,
			User:     "root",
			Password: "root",
			Database: "oilchange",
			MaxIdle:  5,
			MaxOpen:  10,
		},
		Consul: ConsulConfig{
			Host: "localhost",
			Port: 8500,
		},
		Jaeger: JaegerConfig{
			Endpoint: "localhost:6831",
			Sampler:  1.0,
		},
		Log: LogConfig{
			Level:  "debug",
			Format: "text",
			Output: "stdout",
			Path:   "logs/app.log",
		},
		Telemetry: TelemetryConfig{
			EventsPath: "data/events.jsonl",
		},
		Backup: BackupConfig{
			Enabled:       true,
			Dir:           "data/backups",
			IntervalHours: 6,
		},
		Advisor: AdvisorConfig{
			WindowDays: 30,
			ReportsDir: "data/reports",
		},
		PlateLookup: PlateLookupConfig{
			Provider: "none",
			Key:      "",
			Region:   "US",
		},
	}
}
