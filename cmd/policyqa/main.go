// =============================================================================
// PolicyQA 主入口
// =============================================================================
// 服务与命令行入口：HTTP API、健康检查、Prometheus 指标，以及直接操作索引的子命令
//
// 使用方法:
//
//	policyqa serve                              # 启动服务
//	policyqa serve --config config.yaml         # 指定配置文件
//	policyqa index --title "Leave Policy" a.md  # 摄入单个文件
//	policyqa index-dir ./policies               # 摄入目录
//	policyqa ask "How many casual leaves?"      # 提问
//	policyqa status                             # 索引状态
//	policyqa version                            # 显示版本信息
//	policyqa health                             # 健康检查
// =============================================================================

// @title PolicyQA API
// @version 1.0.0
// @description Conversational question answering over indexed company policy documents.

// @contact.name PolicyQA Team
// @contact.url https://github.com/BaSui01/policyqa

// @license.name MIT
// @license.url https://opensource.org/licenses/MIT

// @host localhost:8080
// @BasePath /
// @schemes http https

package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/BaSui01/policyqa/config"
	"github.com/BaSui01/policyqa/internal/metrics"
	"github.com/BaSui01/policyqa/internal/telemetry"
	"github.com/BaSui01/policyqa/types"
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

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var code int
	switch os.Args[1] {
	case "serve":
		code = runServe(ctx, os.Args[2:])
	case "index":
		code = runIndex(ctx, os.Args[2:])
	case "index-dir":
		code = runIndexDir(ctx, os.Args[2:])
	case "ask":
		code = runAsk(ctx, os.Args[2:])
	case "status":
		code = runStatus(ctx, os.Args[2:])
	case "version":
		printVersion()
	case "health":
		code = runHealthCheck(os.Args[2:])
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		printUsage()
		code = 1
	}

	stop()
	os.Exit(code)
}

// =============================================================================
// 🖥️ serve 命令
// =============================================================================

func runServe(ctx context.Context, args []string) int {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to config file")
	_ = fs.Parse(args)

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}

	logger := initLogger(cfg.Log)
	defer func() { _ = logger.Sync() }()

	logger.Info("starting policyqa",
		zap.String("version", Version),
		zap.String("build_time", BuildTime),
		zap.String("git_commit", GitCommit),
	)

	otelProviders, err := telemetry.Init(cfg, Version, logger)
	if err != nil {
		logger.Warn("failed to initialize telemetry", zap.Error(err))
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := otelProviders.Shutdown(shutdownCtx); err != nil {
			logger.Warn("telemetry shutdown failed", zap.Error(err))
		}
	}()

	collector := metrics.NewCollector("policyqa", logger)

	app, err := NewApp(ctx, cfg, collector, logger)
	if err != nil {
		logger.Error("failed to assemble application", zap.Error(err))
		return 1
	}
	defer func() {
		if err := app.Close(); err != nil {
			logger.Warn("failed to release resources", zap.Error(err))
		}
	}()

	if err := NewServer(cfg, app, collector, logger).Run(ctx); err != nil {
		logger.Error("server exited with error", zap.Error(err))
		return 1
	}
	logger.Info("policyqa stopped")
	return 0
}

// =============================================================================
// 📚 索引与问答命令
// =============================================================================

// withApp 加载配置并组装组件后执行 fn（不启动 HTTP，不接入指标）
func withApp(ctx context.Context, name string, args []string, setup func(fs *flag.FlagSet), fn func(app *App, fs *flag.FlagSet) error) int {
	fs := flag.NewFlagSet(name, flag.ExitOnError)
	configPath := fs.String("config", "", "Path to config file")
	if setup != nil {
		setup(fs)
	}
	_ = fs.Parse(args)

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	logger := initLogger(cfg.Log)
	defer func() { _ = logger.Sync() }()

	app, err := NewApp(ctx, cfg, nil, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize: %v\n", err)
		return 1
	}
	defer func() { _ = app.Close() }()

	if err := fn(app, fs); err != nil {
		printError(err)
		return 1
	}
	return 0
}

func runIndex(ctx context.Context, args []string) int {
	var title *string
	return withApp(ctx, "index", args,
		func(fs *flag.FlagSet) { title = fs.String("title", "", "Document title (default: derived from the file)") },
		func(app *App, fs *flag.FlagSet) error {
			if fs.NArg() != 1 {
				return types.NewInvalidRequestError("usage: policyqa index [--title <title>] <path>")
			}
			res, err := app.Service.IndexDocument(ctx, fs.Arg(0), *title)
			if err != nil {
				return err
			}
			fmt.Printf("Indexed %q from %s (%d chunks)\n", res.Title, res.SourcePath, res.Chunks)
			return nil
		})
}

func runIndexDir(ctx context.Context, args []string) int {
	return withApp(ctx, "index-dir", args, nil, func(app *App, fs *flag.FlagSet) error {
		if fs.NArg() != 1 {
			return types.NewInvalidRequestError("usage: policyqa index-dir <dir>")
		}
		res, err := app.Service.IndexDirectory(ctx, fs.Arg(0))
		if err != nil {
			return err
		}
		fmt.Printf("Indexed %d documents (%d chunks)\n", res.Indexed, res.TotalChunks)
		for _, f := range res.Failed {
			fmt.Printf("  failed: %s\n", f)
		}
		return nil
	})
}

func runAsk(ctx context.Context, args []string) int {
	return withApp(ctx, "ask", args, nil, func(app *App, fs *flag.FlagSet) error {
		question := strings.Join(fs.Args(), " ")
		answer, err := app.Service.Ask(ctx, question, nil)
		if err != nil {
			return err
		}
		fmt.Println(answer.Text)
		if len(answer.Sources) > 0 {
			fmt.Println("\nSources:")
			for _, src := range answer.Sources {
				fmt.Printf("  - %s: %s\n", src.PolicyTitle, src.Excerpt)
			}
		}
		return nil
	})
}

func runStatus(ctx context.Context, args []string) int {
	return withApp(ctx, "status", args, nil, func(app *App, _ *flag.FlagSet) error {
		st := app.Service.Status(ctx)
		fmt.Printf("Indexed:    %t\n", st.Indexed)
		fmt.Printf("State:      %s\n", st.State)
		fmt.Printf("Vectors:    %d\n", st.TotalVectors)
		fmt.Printf("Dimension:  %d\n", st.Dimension)
		fmt.Printf("Store:      %s\n", st.Store)
		fmt.Printf("Location:   %s\n", st.Location)
		if st.Error != "" {
			fmt.Printf("Error:      %s\n", st.Error)
		}
		return nil
	})
}

func printError(err error) {
	if e, ok := types.AsError(err); ok {
		fmt.Fprintf(os.Stderr, "Error [%s]: %s\n", e.Code, e.Message)
		return
	}
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
}

// =============================================================================
// 🏥 健康检查命令
// =============================================================================

func runHealthCheck(args []string) int {
	fs := flag.NewFlagSet("health", flag.ExitOnError)
	addr := fs.String("addr", "http://localhost:8080", "Server address")
	_ = fs.Parse(args)

	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Get(strings.TrimRight(*addr, "/") + "/health")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Health check failed: %v\n", err)
		return 1
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		fmt.Fprintf(os.Stderr, "Health check failed: status %d\n", resp.StatusCode)
		return 1
	}

	fmt.Println("OK")
	return 0
}

// =============================================================================
// 📋 版本和帮助
// =============================================================================

func printVersion() {
	fmt.Printf("PolicyQA %s\n", Version)
	fmt.Printf("  Build Time: %s\n", BuildTime)
	fmt.Printf("  Git Commit: %s\n", GitCommit)
}

func printUsage() {
	fmt.Println(`PolicyQA - Conversational Q&A over company policies

Usage:
  policyqa <command> [options]

Commands:
  serve       Start the HTTP server
  index       Index a single policy document (.txt, .md, .pdf)
  index-dir   Index every supported document in a directory
  ask         Ask a question against the index
  status      Show index status
  version     Show version information
  health      Check server health
  help        Show this help message

Options (serve, index, index-dir, ask, status):
  --config <path>   Path to configuration file (YAML)

Options for 'index':
  --title <title>   Document title (default: front matter, first heading or file name)

Examples:
  policyqa serve --config /etc/policyqa/config.yaml
  policyqa index --title "Leave Policy 2025" ./policies/leave.md
  policyqa index-dir ./policies
  policyqa ask "How many casual leaves do I get per year?"
  policyqa health --addr http://localhost:8080`)
}

// =============================================================================
// 🔧 配置与日志初始化
// =============================================================================

func loadConfig(path string) (*config.Config, error) {
	loader := config.NewLoader()
	if path != "" {
		loader = loader.WithConfigPath(path)
	}
	cfg, err := loader.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func initLogger(cfg config.LogConfig) *zap.Logger {
	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		level = zapcore.InfoLevel
	}

	var encoderConfig zapcore.EncoderConfig
	encoding := "json"
	if cfg.Format == "console" {
		encoding = "console"
		encoderConfig = zap.NewDevelopmentEncoderConfig()
		encoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	} else {
		encoderConfig = zap.NewProductionEncoderConfig()
		encoderConfig.TimeKey = "timestamp"
		encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	}

	outputs := cfg.OutputPaths
	if len(outputs) == 0 {
		outputs = []string{"stdout"}
	}

	zapConfig := zap.Config{
		Level:             zap.NewAtomicLevelAt(level),
		Development:       encoding == "console",
		Encoding:          encoding,
		EncoderConfig:     encoderConfig,
		OutputPaths:       outputs,
		ErrorOutputPaths:  []string{"stderr"},
		DisableCaller:     !cfg.EnableCaller,
		DisableStacktrace: !cfg.EnableStacktrace,
	}

	logger, err := zapConfig.Build()
	if err != nil {
		// 回退到基本 logger
		logger, _ = zap.NewProduction()
	}
	return logger
}
