package comms

// Notification 指令执行中需要通知平台的事件
type Notification int

const (
	NotifyExitContingency Notification = iota
	NotifyExitSunsafe
	NotifyExitSurvival
	NotifyTLEUpdated
	NotifyCalibrationUpdated
	NotifyTakePhoto
)

func (n Notification) String() string {
	switch n {
	case NotifyExitContingency:
		return "exit_contingency"
	case NotifyExitSunsafe:
		return "exit_sunsafe"
	case NotifyExitSurvival:
		return "exit_survival"
	case NotifyTLEUpdated:
		return "tle_updated"
	case NotifyCalibrationUpdated:
		return "calibration_updated"
	case NotifyTakePhoto:
		return "take_photo"
	}
	return "unknown"
}

// RebootTarget 复位指令的目标子系统
type RebootTarget int

const (
	RebootOBC RebootTarget = iota
	RebootEPS
	RebootADCS
)

func (t RebootTarget) String() string {
	switch t {
	case RebootOBC:
		return "obc"
	case RebootEPS:
		return "eps"
	case RebootADCS:
		return "adcs"
	}
	return "unknown"
}

// Platform 星务平台协作面，由宿主程序注入。
// 指令执行只通过这里触达存储、电源与姿控，便于地面联试时替换为桩
type Platform interface {
	// StorageWrite 向非易失存储指定地址写入一段数据
	StorageWrite(addr uint32, data []byte) error
	// Notify 上报一次平台事件
	Notify(n Notification) error
	// Reboot 复位目标子系统
	Reboot(t RebootTarget) error
	// VarChange 下发运行参数修改块，格式由星务侧解释
	VarChange(payload []byte) error
	// Crystal 启动晶体实验，延时参数单位为秒
	Crystal(glass byte, diodeDelay byte, pictureDelay byte, acquisitionDelay uint32) error
}
