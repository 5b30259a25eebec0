package main

import (
	"flag"
	"os"

	"go.uber.org/zap"

	"github.com/pocketqube-lab/comms-server/internal/app/bootstrap"
	cfgpkg "github.com/pocketqube-lab/comms-server/internal/config"
	"github.com/pocketqube-lab/comms-server/internal/logging"
)

func main() {
	// 子命令：groundd uplink-tle -file tle.yaml
	if len(os.Args) > 1 && os.Args[1] == "uplink-tle" {
		if err := runUplinkTLE(os.Args[2:]); err != nil {
			os.Stderr.WriteString("uplink-tle: " + err.Error() + "\n")
			os.Exit(1)
		}
		return
	}

	cfgPath := flag.String("config", "", "配置文件路径，默认 configs/example.yaml")
	flag.Parse()

	// 1) 加载配置
	cfg, err := cfgpkg.Load(*cfgPath)
	if err != nil {
		panic(err)
	}

	// 2) 初始化日志
	logger, err := logging.InitLogger(cfg.Logging)
	if err != nil {
		panic(err)
	}
	defer func() { _ = logger.Sync() }()
	zap.ReplaceGlobals(logger)

	// 3) 统一启动流程
	if err := bootstrap.RunGround(cfg, zap.L()); err != nil {
		os.Exit(1)
	}
}
