package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/sirupsen/logrus"

	"github.com/modserve/modserve/internal/cache"
	"github.com/modserve/modserve/internal/compiler"
	"github.com/modserve/modserve/internal/config"
	"github.com/modserve/modserve/internal/invalidate"
	"github.com/modserve/modserve/internal/logging"
	"github.com/modserve/modserve/internal/server"
	"github.com/modserve/modserve/internal/translate"
	"github.com/modserve/modserve/internal/version"
)

// cliOptions 汇总 CLI 标志解析后的结果，便于在测试中注入。
type cliOptions struct {
	configPath  string
	checkOnly   bool
	showVersion bool
}

var (
	stdOut io.Writer = os.Stdout
	stdErr io.Writer = os.Stderr
)

func main() {
	opts, err := parseCLIFlags(os.Args[1:])
	if err != nil {
		fmt.Fprintln(stdErr, err.Error())
		os.Exit(2)
	}
	os.Exit(run(opts))
}

// run 根据解析到的 CLI 选项执行业务流程，并返回退出码，方便测试。
func run(opts cliOptions) int {
	if opts.showVersion {
		printVersion()
		return 0
	}

	cfg, err := config.Load(opts.configPath)
	if err != nil {
		fmt.Fprintf(stdErr, "加载配置失败: %v\n", err)
		return 1
	}

	logger, err := logging.InitLogger(cfg)
	if err != nil {
		fmt.Fprintf(stdErr, "初始化日志失败: %v\n", err)
		return 1
	}

	if opts.checkOnly {
		fields := logging.BaseFields("check_config", opts.configPath)
		fields["serve_root"] = cfg.ServeRoot
		fields["watch_mode"] = cfg.WatchMode()
		fields["result"] = "ok"
		logger.WithFields(fields).Info("配置校验通过")
		return 0
	}

	// 启动遵循“配置 → 编译后端 → 缓存 → 失效策略 → Fiber server”顺序，
	// 后端不可用时必须在服务任何请求之前失败。
	backend, err := compiler.New(cfg.Compiler)
	if err != nil {
		fmt.Fprintf(stdErr, "初始化编译后端失败: %v\n", err)
		return 1
	}

	store := cache.NewStore()

	var strategy invalidate.Strategy
	if cfg.FileWatch {
		watcher, err := invalidate.NewWatcher(store, logger, cfg.WatchDebounce.DurationValue())
		if err != nil {
			fmt.Fprintf(stdErr, "初始化文件监听失败: %v\n", err)
			return 1
		}
		defer watcher.Close()
		watcher.Start(context.Background())
		strategy = watcher
	} else {
		strategy = invalidate.NewRevalidator()
	}

	handler := translate.NewHandler(cfg, backend, store, strategy, logger)

	fields := logging.BaseFields("startup", opts.configPath)
	fields["serve_root"] = cfg.ServeRoot
	fields["listen_port"] = cfg.ListenPort
	fields["backend"] = backend.Name()
	fields["watch_mode"] = cfg.WatchMode()
	fields["dep_cache"] = cfg.DepCache
	fields["version"] = version.Full()
	logger.WithFields(fields).Info("配置加载完成")

	if err := startHTTPServer(cfg, handler, store, backend.Name(), logger); err != nil {
		fmt.Fprintf(stdErr, "HTTP 服务启动失败: %v\n", err)
		return 1
	}
	return 0
}

// parseCLIFlags 解析 CLI 参数，并结合环境变量计算最终的配置路径。
func parseCLIFlags(args []string) (cliOptions, error) {
	fs := flag.NewFlagSet("modserve", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	var (
		configFlag string
		checkOnly  bool
		showVer    bool
	)

	fs.StringVar(&configFlag, "config", "", "配置文件路径（默认 ./config.toml，可被 MODSERVE_CONFIG 覆盖）")
	fs.BoolVar(&checkOnly, "check-config", false, "仅校验配置后退出")
	fs.BoolVar(&showVer, "version", false, "显示版本信息")

	if err := fs.Parse(args); err != nil {
		return cliOptions{}, fmt.Errorf("解析参数失败: %w", err)
	}

	path := os.Getenv("MODSERVE_CONFIG")
	if configFlag != "" {
		path = configFlag
	}
	if path == "" {
		path = "config.toml"
	}

	return cliOptions{
		configPath:  path,
		checkOnly:   checkOnly,
		showVersion: showVer,
	}, nil
}

func startHTTPServer(
	cfg *config.Config,
	handler *translate.Handler,
	store cache.Store,
	backendName string,
	logger *logrus.Logger,
) error {
	app, err := server.NewApp(server.AppOptions{
		Logger:      logger,
		Translator:  handler,
		Store:       store,
		ServeRoot:   cfg.ServeRoot,
		ListenPort:  cfg.ListenPort,
		BackendName: backendName,
		WatchMode:   cfg.WatchMode(),
	})
	if err != nil {
		return err
	}

	logger.WithFields(logrus.Fields{
		"action": "listen",
		"port":   cfg.ListenPort,
	}).Info("Fiber 服务启动")

	return app.Listen(fmt.Sprintf(":%d", cfg.ListenPort))
}
