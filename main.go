package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/sirupsen/logrus"

	"github.com/folio-shell/folio-shell/internal/cache"
	"github.com/folio-shell/folio-shell/internal/config"
	"github.com/folio-shell/folio-shell/internal/logging"
	"github.com/folio-shell/folio-shell/internal/proxy"
	"github.com/folio-shell/folio-shell/internal/queue"
	"github.com/folio-shell/folio-shell/internal/server"
	"github.com/folio-shell/folio-shell/internal/server/routes"
	"github.com/folio-shell/folio-shell/internal/version"
	"github.com/folio-shell/folio-shell/internal/worker"
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

const shutdownTimeout = 10 * time.Second

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

	logger, err := logging.InitLogger(cfg.Global)
	if err != nil {
		fmt.Fprintf(stdErr, "初始化日志失败: %v\n", err)
		return 1
	}

	if opts.checkOnly {
		fields := logging.BaseFields("check_config", opts.configPath)
		fields["bucket"] = cfg.Shell.CacheName()
		fields["manifest"] = len(cfg.Shell.Manifest)
		fields["origin"] = cfg.Global.Origin
		fields["result"] = "ok"
		logger.WithFields(fields).Info("配置校验通过")
		return 0
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 启动顺序：配置 → 桶存储 → 待同步队列 → 安装/激活当前版本 → Fiber server，
	// 保证第一个请求到达时 app shell 已经入桶。
	store, err := cache.NewStore(cfg.Global.StoragePath)
	if err != nil {
		fmt.Fprintf(stdErr, "初始化缓存目录失败: %v\n", err)
		return 1
	}
	pending, err := queue.Open(cfg.Sync.QueuePath)
	if err != nil {
		fmt.Fprintf(stdErr, "初始化待同步队列失败: %v\n", err)
		return 1
	}
	defer pending.Close()

	route, err := server.NewShellRoute(cfg)
	if err != nil {
		fmt.Fprintf(stdErr, "构建路由失败: %v\n", err)
		return 1
	}

	clients := worker.NewClients()
	notifications := worker.NewNotificationCenter()
	network := worker.NewHTTPNetwork(server.NewUpstreamClient(cfg), route.Origin)
	w, err := worker.New(worker.OptionsFromConfig(cfg), worker.Deps{
		Store:         store,
		Network:       network,
		Queue:         pending,
		Clients:       clients,
		Notifications: notifications,
		Logger:        logger,
	})
	if err != nil {
		fmt.Fprintf(stdErr, "初始化 worker 失败: %v\n", err)
		return 1
	}

	registration := worker.NewRegistration(logger)
	if err := registration.Register(ctx, w); err != nil {
		// 安装失败不退出：没有 controller 时页面请求返回 503，修复源站后重启即可重新安装。
		logger.WithFields(logging.LifecycleFields("register", w.CacheName(), string(w.State()))).
			WithError(err).Error("register_failed")
	}

	go registration.RunSync(ctx, cfg.Sync.Interval.DurationValue(), cfg.Sync.Tag)

	fields := logging.BaseFields("startup", opts.configPath)
	fields["bucket"] = cfg.Shell.CacheName()
	fields["listen_port"] = cfg.Global.ListenPort
	fields["origin"] = cfg.Global.Origin
	fields["version"] = version.Full()
	logger.WithFields(fields).Info("配置加载完成")

	handler := proxy.NewForwarder(proxy.NewHandler(registration, clients, logger), logger)
	deps := routes.ControlDeps{
		Registration:  registration,
		Store:         store,
		Clients:       clients,
		Notifications: notifications,
		Logger:        logger,
	}
	if err := startHTTPServer(ctx, cfg, route, handler, deps, logger); err != nil {
		fmt.Fprintf(stdErr, "HTTP 服务启动失败: %v\n", err)
		return 1
	}

	if controller := registration.Controller(); controller != nil {
		controller.Wait()
	}
	return 0
}

// parseCLIFlags 解析 CLI 参数，并结合环境变量计算最终的配置路径。
func parseCLIFlags(args []string) (cliOptions, error) {
	fs := flag.NewFlagSet("folio-shell", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	var (
		configFlag string
		checkOnly  bool
		showVer    bool
	)

	fs.StringVar(&configFlag, "config", "", "配置文件路径（默认 ./config.toml，可被 FOLIO_SHELL_CONFIG 覆盖）")
	fs.BoolVar(&checkOnly, "check-config", false, "仅校验配置后退出")
	fs.BoolVar(&showVer, "version", false, "显示版本信息")

	if err := fs.Parse(args); err != nil {
		return cliOptions{}, fmt.Errorf("解析参数失败: %w", err)
	}

	path := os.Getenv("FOLIO_SHELL_CONFIG")
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
	ctx context.Context,
	cfg *config.Config,
	route *server.ShellRoute,
	proxyHandler server.ProxyHandler,
	deps routes.ControlDeps,
	logger *logrus.Logger,
) error {
	port := cfg.Global.ListenPort
	app, err := server.NewApp(server.AppOptions{
		Logger:     logger,
		Route:      route,
		Proxy:      proxyHandler,
		ListenPort: port,
	})
	if err != nil {
		return err
	}
	routes.RegisterControlRoutes(app, deps)

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := app.ShutdownWithContext(shutdownCtx); err != nil {
			logger.WithError(err).Warn("shutdown_failed")
		}
	}()

	logger.WithFields(logrus.Fields{
		"action": "listen",
		"port":   port,
	}).Info("Fiber 服务启动")

	return app.Listen(fmt.Sprintf(":%d", port), fiber.ListenConfig{DisableStartupMessage: true})
}
