package bootstrap

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.bug.st/serial"
	"go.uber.org/zap"

	"github.com/pocketqube-lab/comms-server/internal/app"
	"github.com/pocketqube-lab/comms-server/internal/clock"
	"github.com/pocketqube-lab/comms-server/internal/comms"
	cfgpkg "github.com/pocketqube-lab/comms-server/internal/config"
	"github.com/pocketqube-lab/comms-server/internal/gs"
	"github.com/pocketqube-lab/comms-server/internal/health"
	"github.com/pocketqube-lab/comms-server/internal/metrics"
	"github.com/pocketqube-lab/comms-server/internal/platform"
	"github.com/pocketqube-lab/comms-server/internal/storage/pg"
	redisstorage "github.com/pocketqube-lab/comms-server/internal/storage/redis"
)

// RunFlight 星上通信守护进程的统一启动流程。
// 启动顺序：指标 -> 射频前端 -> 状态机 -> HTTP -> 地检控制台
func RunFlight(cfg *cfgpkg.Config, log *zap.Logger) error {
	log.Info("starting flight comms daemon", zap.String("env", cfg.App.Env))

	// ========== 阶段1: 初始化基础组件 ==========
	reg, appm := app.NewMetrics()
	metricsHandler := metrics.Handler(reg)
	ready := health.New()
	ready.SetDBReady(true) // 星上侧无数据库
	log.Info("basic components initialized")

	// ========== 阶段2: 射频前端与平台适配 ==========
	drv, err := app.NewRadioDriver(cfg.Radio, log)
	if err != nil {
		log.Error("radio driver init failed", zap.Error(err))
		return err
	}

	plat, err := platform.NewLocal("", log)
	if err != nil {
		log.Error("platform init failed", zap.Error(err))
		return err
	}

	task := comms.NewTask(comms.Config{
		Radio:          cfg.Radio.Params(),
		BeaconInterval: cfg.Comms.BeaconInterval,
		IdleWait:       cfg.Comms.IdleWait,
		TXTimeout:      cfg.Comms.TXTimeout,
		SerialEvery:    cfg.Comms.SerialEvery,
	}, drv, clock.New(), plat, log, appm)

	// ========== 阶段3: HTTP 服务与健康检查 ==========
	healthAgg := app.NewHealthAggregator(nil)
	app.AddLinkChecker(healthAgg, task)

	httpSrv := app.NewHTTPServer(cfg.HTTP, cfg.Metrics.Path, metricsHandler, ready.Ready)
	httpSrv.Register(func(r *gin.Engine) {
		app.RegisterHealthRoutes(r, healthAgg)
	})
	go func() {
		if err := httpSrv.Start(); err != nil {
			log.Error("http server error", zap.Error(err))
		}
	}()
	log.Info("http server started", zap.String("addr", cfg.HTTP.Addr))

	// ========== 阶段4: 启动状态机 ==========
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		if err := task.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Error("comms task stopped", zap.Error(err))
		}
	}()
	ready.SetLinkReady(true)
	log.Info("comms task started")

	// ========== 阶段5: 地检串口控制台（可选）==========
	if cfg.Comms.Console.Enable {
		port, perr := serial.Open(cfg.Comms.Console.UART.Device, &serial.Mode{BaudRate: cfg.Comms.Console.UART.Baud})
		if perr != nil {
			log.Error("console uart open failed", zap.Error(perr))
			return perr
		}
		defer port.Close()
		go func() {
			if err := task.ServeConsole(ctx, port); err != nil && !errors.Is(err, context.Canceled) {
				log.Error("console stopped", zap.Error(err))
			}
		}()
		log.Info("ground-test console started", zap.String("device", cfg.Comms.Console.UART.Device))
	}

	log.Info("all services ready")
	waitForShutdown(log)

	cancel()
	shutdownCtx, scancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer scancel()
	_ = httpSrv.Shutdown(shutdownCtx)
	_ = drv.Close()
	log.Info("shutdown complete")
	return nil
}

// RunGround 地面站守护进程的统一启动流程。
// 启动顺序：指标 -> 数据库 -> Redis -> 射频环 -> HTTP -> 控制台
func RunGround(cfg *cfgpkg.Config, log *zap.Logger) error {
	log.Info("starting ground station daemon", zap.String("env", cfg.App.Env))

	// ========== 阶段1: 初始化基础组件 ==========
	reg, appm := app.NewMetrics()
	metricsHandler := metrics.Handler(reg)
	ready := health.New()
	log.Info("basic components initialized")

	// ========== 阶段2: 连接数据库（阻塞等待，失败直接返回）==========
	dbpool, err := app.ConnectDBAndMigrate(context.Background(), cfg.Database, log)
	if err != nil {
		log.Error("database initialization failed", zap.Error(err))
		return err
	}
	defer dbpool.Close()

	archive, err := app.ConnectArchive(cfg.Database)
	if err != nil {
		log.Error("archive initialization failed", zap.Error(err))
		return err
	}
	ready.SetDBReady(true)
	log.Info("database ready", zap.String("dsn", maskDSN(cfg.Database.DSN)))

	journal := &pg.Journal{Pool: dbpool}

	// ========== 阶段3: Redis 队列与缓存 ==========
	redisClient, err := app.NewRedisClient(cfg.Redis, log)
	if err != nil {
		log.Error("redis initialization failed", zap.Error(err))
		return err
	}
	if redisClient == nil {
		log.Error("redis is required for the uplink queue")
		return errors.New("redis disabled in config")
	}
	defer redisClient.Close()

	queue := app.NewUplinkQueue(redisClient)
	linkCache := redisstorage.NewLinkCache(redisClient)
	dedup := redisstorage.NewFrameDeduper(redisClient, cfg.Ground.DedupTTL)

	// ========== 阶段4: 射频环与上行调度 ==========
	drv, err := app.NewRadioDriver(cfg.Radio, log)
	if err != nil {
		log.Error("radio driver init failed", zap.Error(err))
		return err
	}

	uplinker := gs.NewUplinker(queue, archive, cfg.Ground.Uplink, log)
	station := gs.NewStation(gs.StationConfig{
		Radio:        cfg.Radio.Params(),
		AckTimeout:   cfg.Ground.Uplink.AckTimeout,
		PollInterval: cfg.Ground.Uplink.PollInterval,
		TXTimeout:    cfg.Comms.TXTimeout,
	}, gs.StationDeps{
		Driver:  drv,
		Queue:   queue,
		Archive: archive,
		Journal: journal,
		Link:    linkCache,
		Dedup:   dedup,
		Logger:  log,
		Metrics: appm,
	})

	// ========== 阶段5: HTTP API 与健康检查 ==========
	healthAgg := app.NewHealthAggregator(dbpool)
	app.AddRedisChecker(healthAgg, redisClient)

	handler := gs.NewHandler(uplinker, archive, queue, linkCache, journal, log)
	httpSrv := app.NewHTTPServer(cfg.HTTP, cfg.Metrics.Path, metricsHandler, ready.Ready)
	httpSrv.Register(func(r *gin.Engine) {
		gs.RegisterRoutes(r, handler, cfg.Ground.Auth, log)
		app.RegisterHealthRoutes(r, healthAgg)
	})
	go func() {
		if err := httpSrv.Start(); err != nil {
			log.Error("http server error", zap.Error(err))
		}
	}()
	log.Info("http server started", zap.String("addr", cfg.HTTP.Addr))

	// ========== 阶段6: 启动射频环 ==========
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		if err := station.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Error("station stopped", zap.Error(err))
		}
	}()
	ready.SetLinkReady(true)
	log.Info("station loop started")

	// ========== 阶段7: 操作台串口（可选）==========
	if cfg.Ground.Console.Enable {
		port, perr := serial.Open(cfg.Ground.Console.UART.Device, &serial.Mode{BaudRate: cfg.Ground.Console.UART.Baud})
		if perr != nil {
			log.Error("console uart open failed", zap.Error(perr))
			return perr
		}
		defer port.Close()
		console := gs.NewConsole(uplinker, 0, log)
		go func() {
			if err := console.Serve(ctx, port); err != nil && !errors.Is(err, context.Canceled) {
				log.Error("console stopped", zap.Error(err))
			}
		}()
		log.Info("operator console started", zap.String("device", cfg.Ground.Console.UART.Device))
	}

	log.Info("all services ready")
	waitForShutdown(log)

	cancel()
	shutdownCtx, scancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer scancel()
	_ = httpSrv.Shutdown(shutdownCtx)
	log.Info("shutdown complete")
	return nil
}

func waitForShutdown(log *zap.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	log.Info("received shutdown signal, gracefully shutting down...")
}

// maskDSN 脱敏数据库连接字符串（隐藏密码）
func maskDSN(dsn string) string {
	if idx := strings.Index(dsn, "@"); idx > 0 {
		if pwdIdx := strings.LastIndex(dsn[:idx], ":"); pwdIdx > 0 {
			return dsn[:pwdIdx+1] + "****" + dsn[idx:]
		}
	}
	return dsn
}
