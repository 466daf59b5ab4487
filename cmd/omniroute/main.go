// =============================================================================
// omniroute 主入口
// =============================================================================
// 命令行中继工具：按用户模型配置路由一次对话请求，事件以 JSON 行输出
//
// 使用方法:
//
//	omniroute chat --user u1 --message "你好"          # 文本请求
//	omniroute chat --user u1 --message "看图" --image <url>
//	omniroute chat --user u1 --voice <url>             # 语音请求
//	omniroute chat --config config.yaml ...            # 指定配置文件
//	omniroute version                                  # 显示版本信息
// =============================================================================
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/BaSui01/omniroute"
	"github.com/BaSui01/omniroute/config"
	"github.com/BaSui01/omniroute/internal/cache"
	"github.com/BaSui01/omniroute/internal/metrics"
	"github.com/BaSui01/omniroute/modelconfig"
	"github.com/BaSui01/omniroute/relay/router"
)

// =============================================================================
// 📦 版本信息（构建时注入）
// =============================================================================

var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

// =============================================================================
// 🎯 主函数
// =============================================================================

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "chat":
		runChat(os.Args[2:])
	case "version":
		printVersion()
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

// =============================================================================
// 💬 chat 命令
// =============================================================================

func runChat(args []string) {
	fs := flag.NewFlagSet("chat", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to config file")
	userID := fs.String("user", "", "User ID whose model config drives routing")
	message := fs.String("message", "", "Text content")
	imageURL := fs.String("image", "", "Image URL")
	voiceURL := fs.String("voice", "", "Voice clip URL")
	transcript := fs.String("transcript", "", "Pre-computed voice transcript")
	systemPrompt := fs.String("system", "", "System prompt")
	stream := fs.Bool("stream", true, "Request streaming output")
	fs.Parse(args)

	if *userID == "" {
		fmt.Fprintln(os.Stderr, "chat: --user is required")
		os.Exit(1)
	}
	if *message == "" && *imageURL == "" && *voiceURL == "" {
		fmt.Fprintln(os.Stderr, "chat: need at least one of --message, --image, --voice")
		os.Exit(1)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger := initLogger(cfg.Log)
	defer logger.Sync()

	rt, cleanup, err := buildRouter(cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialize", zap.Error(err))
	}
	defer cleanup()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	events, err := rt.Route(ctx, router.Request{
		UserID: *userID,
		Message: router.InboundMessage{
			Text:            *message,
			ImageURL:        *imageURL,
			VoiceURL:        *voiceURL,
			VoiceTranscript: *transcript,
		},
		SystemPrompt: *systemPrompt,
		Stream:       *stream,
	})
	if err != nil {
		logger.Fatal("Route failed", zap.Error(err))
	}

	enc := json.NewEncoder(os.Stdout)
	for ev := range events {
		if err := enc.Encode(ev); err != nil {
			logger.Error("Failed to encode event", zap.Error(err))
		}
	}
}

// buildRouter 按配置组装存储、缓存、配置服务和调度注册表.
func buildRouter(cfg config.Config, logger *zap.Logger) (*router.Router, func(), error) {
	store, err := modelconfig.NewStore(sqlite.Open(cfg.Database.DSN))
	if err != nil {
		return nil, nil, fmt.Errorf("open config store: %w", err)
	}

	defaults := modelconfig.BuiltinDefaults()
	if cfg.DefaultsPath != "" {
		defaults, err = modelconfig.LoadDefaults(cfg.DefaultsPath)
		if err != nil {
			return nil, nil, fmt.Errorf("load defaults: %w", err)
		}
	}

	cleanup := func() {}
	var redisCache *cache.Manager
	if cfg.Redis.Enabled {
		redisCache, err = cache.NewManager(cache.Config{
			Addr:       cfg.Redis.Addr,
			Password:   cfg.Redis.Password,
			DB:         cfg.Redis.DB,
			DefaultTTL: cfg.Redis.TTL,
		}, logger)
		if err != nil {
			// Redis 不可用时降级为纯内存缓存
			logger.Warn("Redis not available, using in-process cache only", zap.Error(err))
		} else {
			cleanup = func() { redisCache.Close() }
		}
	}

	collector := metrics.NewCollector("omniroute", nil, logger)
	configs := modelconfig.NewService(store, defaults, modelconfig.Options{
		CacheTTL: cfg.Redis.TTL,
		Redis:    redisCache,
		Metrics:  collector,
		Logger:   logger,
	})

	registry := omniroute.NewDefaultRegistry(logger)
	rt := router.New(registry, configs, router.Options{
		Metrics: collector,
		Logger:  logger,
	})
	return rt, cleanup, nil
}

// =============================================================================
// 📋 版本和帮助
// =============================================================================

func printVersion() {
	fmt.Printf("omniroute %s\n", Version)
	fmt.Printf("  Build Time: %s\n", BuildTime)
	fmt.Printf("  Git Commit: %s\n", GitCommit)
}

func printUsage() {
	fmt.Println(`omniroute - multi-vendor model relay

Usage:
  omniroute <command> [options]

Commands:
  chat      Route one conversation turn and print the event stream
  version   Show version information
  help      Show this help message

Options for 'chat':
  --config <path>     Path to configuration file (YAML)
  --user <id>         User ID whose model config drives routing (required)
  --message <text>    Text content
  --image <url>       Image URL, routes to the multimodal slot
  --voice <url>       Voice clip URL, routes to the voice slot
  --transcript <t>    Pre-computed transcript, keeps the turn on the text slot
  --system <prompt>   System prompt
  --stream=false      Disable streaming

Examples:
  omniroute chat --user u1 --message "你好"
  omniroute chat --user u1 --message "描述这张图" --image https://example.com/a.png
  omniroute chat --user u1 --voice https://example.com/clip.mp3
  omniroute chat --config /etc/omniroute/config.yaml --user u1 --message hi`)
}

// =============================================================================
// 🔧 日志初始化
// =============================================================================

func initLogger(cfg config.LogConfig) *zap.Logger {
	var level zapcore.Level
	switch cfg.Level {
	case "debug":
		level = zapcore.DebugLevel
	case "info":
		level = zapcore.InfoLevel
	case "warn":
		level = zapcore.WarnLevel
	case "error":
		level = zapcore.ErrorLevel
	default:
		level = zapcore.InfoLevel
	}

	var encoderConfig zapcore.EncoderConfig
	encoding := "json"
	if cfg.Format == "console" {
		encoderConfig = zap.NewDevelopmentEncoderConfig()
		encoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		encoding = "console"
	} else {
		encoderConfig = zap.NewProductionEncoderConfig()
		encoderConfig.TimeKey = "timestamp"
		encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	}

	// 事件流走 stdout，日志走 stderr
	zapConfig := zap.Config{
		Level:            zap.NewAtomicLevelAt(level),
		Development:      cfg.Format == "console",
		Encoding:         encoding,
		EncoderConfig:    encoderConfig,
		OutputPaths:      []string{"stderr"},
		ErrorOutputPaths: []string{"stderr"},
	}

	logger, err := zapConfig.Build(zap.AddStacktrace(zapcore.ErrorLevel))
	if err != nil {
		logger, _ = zap.NewProduction()
	}
	return logger
}
