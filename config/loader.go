// =============================================================================
// 📦 omniroute 配置加载器
// =============================================================================
// 统一配置加载，支持 YAML 文件 + 环境变量覆盖
//
// 使用方法:
//
//	cfg, err := config.Load("config.yaml")
//
// 配置优先级: 默认值 → YAML 文件 → 环境变量
// =============================================================================
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config 是 omniroute 的完整配置结构
type Config struct {
	// Database 配置存储
	Database DatabaseConfig `yaml:"database"`

	// Redis 跨实例配置缓存（可选）
	Redis RedisConfig `yaml:"redis"`

	// Defaults 系统默认模型配置文件路径（可选）
	DefaultsPath string `yaml:"defaults_path"`

	// Log 日志配置
	Log LogConfig `yaml:"log"`
}

// DatabaseConfig 数据库配置
type DatabaseConfig struct {
	// Driver: sqlite
	Driver string `yaml:"driver"`
	// DSN 连接串
	DSN string `yaml:"dsn"`
}

// RedisConfig Redis 配置
type RedisConfig struct {
	// 是否启用 Redis 配置缓存层
	Enabled bool `yaml:"enabled"`
	// 地址
	Addr string `yaml:"addr"`
	// 密码
	Password string `yaml:"password"`
	// 数据库编号
	DB int `yaml:"db"`
	// 缓存过期时间
	TTL time.Duration `yaml:"ttl"`
}

// UnmarshalYAML 支持 "5m" 形式的 TTL 时长字符串.
func (r *RedisConfig) UnmarshalYAML(value *yaml.Node) error {
	var raw struct {
		Enabled  bool   `yaml:"enabled"`
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
		TTL      string `yaml:"ttl"`
	}
	if err := value.Decode(&raw); err != nil {
		return err
	}
	r.Enabled = raw.Enabled
	if raw.Addr != "" {
		r.Addr = raw.Addr
	}
	if raw.Password != "" {
		r.Password = raw.Password
	}
	if raw.DB != 0 {
		r.DB = raw.DB
	}
	if raw.TTL != "" {
		ttl, err := time.ParseDuration(raw.TTL)
		if err != nil {
			return fmt.Errorf("invalid redis ttl %q: %w", raw.TTL, err)
		}
		r.TTL = ttl
	}
	return nil
}

// LogConfig 日志配置
type LogConfig struct {
	// 级别: debug, info, warn, error
	Level string `yaml:"level"`
	// 格式: json, console
	Format string `yaml:"format"`
}

// Default 返回默认配置
func Default() Config {
	return Config{
		Database: DatabaseConfig{
			Driver: "sqlite",
			DSN:    "omniroute.db",
		},
		Redis: RedisConfig{
			Enabled: false,
			Addr:    "localhost:6379",
			TTL:     5 * time.Minute,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load 加载配置。path 为空时跳过文件，仅用默认值 + 环境变量.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	applyEnv(&cfg)
	return cfg, nil
}

// applyEnv 用 OMNIROUTE_* 环境变量覆盖配置
func applyEnv(cfg *Config) {
	if v := os.Getenv("OMNIROUTE_DATABASE_DSN"); v != "" {
		cfg.Database.DSN = v
	}
	if v := os.Getenv("OMNIROUTE_REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
		cfg.Redis.Enabled = true
	}
	if v := os.Getenv("OMNIROUTE_REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}
	if v := os.Getenv("OMNIROUTE_REDIS_DB"); v != "" {
		if db, err := strconv.Atoi(v); err == nil {
			cfg.Redis.DB = db
		}
	}
	if v := os.Getenv("OMNIROUTE_LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("OMNIROUTE_DEFAULTS_PATH"); v != "" {
		cfg.DefaultsPath = v
	}
}
