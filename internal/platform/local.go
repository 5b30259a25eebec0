package platform

import (
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/pocketqube-lab/comms-server/internal/comms"
)

// Local 本地联试用的平台适配器。
// 非易失存储用单个稀疏文件模拟，其余平台动作只记日志
type Local struct {
	nvmPath string
	log     *zap.Logger
}

// NewLocal 创建本地平台适配器，dataDir 为空时使用 ./data
func NewLocal(dataDir string, logger *zap.Logger) (*Local, error) {
	if dataDir == "" {
		dataDir = "data"
	}
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	return &Local{
		nvmPath: filepath.Join(dataDir, "nvm.bin"),
		log:     logger.Named("platform"),
	}, nil
}

// StorageWrite 在模拟非易失存储的指定偏移写入数据
func (l *Local) StorageWrite(addr uint32, data []byte) error {
	f, err := os.OpenFile(l.nvmPath, os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open nvm file: %w", err)
	}
	defer f.Close()

	if _, err := f.WriteAt(data, int64(addr)); err != nil {
		return fmt.Errorf("write nvm at 0x%08x: %w", addr, err)
	}
	l.log.Info("存储写入完成",
		zap.Uint32("addr", addr),
		zap.Int("len", len(data)))
	return nil
}

// Notify 上报平台事件
func (l *Local) Notify(n comms.Notification) error {
	l.log.Info("平台事件", zap.String("event", n.String()))
	return nil
}

// Reboot 本地联试不真正复位，只记录目标
func (l *Local) Reboot(t comms.RebootTarget) error {
	l.log.Warn("收到复位请求", zap.String("target", t.String()))
	return nil
}

// VarChange 记录参数修改块，星务侧解释格式
func (l *Local) VarChange(payload []byte) error {
	l.log.Info("运行参数修改", zap.Int("len", len(payload)))
	return nil
}

// Crystal 记录晶体实验参数
func (l *Local) Crystal(glass byte, diodeDelay byte, pictureDelay byte, acquisitionDelay uint32) error {
	l.log.Info("晶体实验启动",
		zap.Uint8("glass", glass),
		zap.Uint8("diode_delay_s", diodeDelay),
		zap.Uint8("picture_delay_s", pictureDelay),
		zap.Uint32("acquisition_delay_s", acquisitionDelay))
	return nil
}
