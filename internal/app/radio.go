package app

import (
	"fmt"

	"go.uber.org/zap"

	cfgpkg "github.com/pocketqube-lab/comms-server/internal/config"
	"github.com/pocketqube-lab/comms-server/internal/radio"
)

// NewRadioDriver 按配置选择射频前端实现
func NewRadioDriver(cfg cfgpkg.RadioConfig, logger *zap.Logger) (radio.Driver, error) {
	switch cfg.Driver {
	case "", "loopback":
		logger.Info("using loopback radio driver")
		return radio.NewLoopback(), nil
	case "uart":
		logger.Info("using uart radio driver",
			zap.String("device", cfg.UART.Device),
			zap.Int("baud", cfg.UART.Baud))
		return radio.OpenUARTModem(radio.UARTConfig{
			Device: cfg.UART.Device,
			Baud:   cfg.UART.Baud,
		}, logger)
	default:
		return nil, fmt.Errorf("unknown radio driver %q", cfg.Driver)
	}
}
