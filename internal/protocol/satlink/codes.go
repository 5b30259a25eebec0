package satlink

// MissionID 出站帧的站标识
const MissionID byte = 0x01

// ECC 标记字节：帧第 2 字节只允许这两个取值
const (
	RSOn  byte = 0xAA
	RSOff byte = 0x55
)

// 上行遥控指令（TEC）
const (
	TECObcReboot  byte = 0x01
	TECExitState  byte = 0x02
	TECVarChange  byte = 0x03
	TECSetTime    byte = 0x04
	TECEpsReboot  byte = 0x08
	TECAdcsReboot byte = 0x10
	TECAdcsTLE    byte = 0x11
	TECLoraState  byte = 0x18
	TECLoraConfig byte = 0x19
	TECLoraPing   byte = 0x1A
	TECCryExp     byte = 0x80
)

// 下行遥测应答（TER）
const (
	TERBeacon   byte = 0x30
	TERAck      byte = 0x31
	TERNack     byte = 0x32
	TERLoraLink byte = 0x33
)

var tecNames = map[byte]string{
	TECObcReboot:  "OBC_REBOOT",
	TECExitState:  "EXIT_STATE",
	TECVarChange:  "VAR_CHANGE",
	TECSetTime:    "SET_TIME",
	TECEpsReboot:  "EPS_REBOOT",
	TECAdcsReboot: "ADCS_REBOOT",
	TECAdcsTLE:    "ADCS_TLE",
	TECLoraState:  "LORA_STATE",
	TECLoraConfig: "LORA_CONFIG",
	TECLoraPing:   "LORA_PING",
	TECCryExp:     "CRY_EXP",
}

var terNames = map[byte]string{
	TERBeacon:   "BEACON",
	TERAck:      "ACK",
	TERNack:     "NACK",
	TERLoraLink: "LORA_LINK",
}

// IsTEC 判断是否为已知遥控指令码
func IsTEC(cmd byte) bool {
	_, ok := tecNames[cmd]
	return ok
}

// IsTER 判断是否为已知遥测应答码
func IsTER(cmd byte) bool {
	_, ok := terNames[cmd]
	return ok
}

// IsKnownCommand 指令码在 TEC 或 TER 枚举内
func IsKnownCommand(cmd byte) bool {
	return IsTEC(cmd) || IsTER(cmd)
}

// CommandName 返回指令助记名，未知码返回 "UNKNOWN"
func CommandName(cmd byte) string {
	if n, ok := tecNames[cmd]; ok {
		return n
	}
	if n, ok := terNames[cmd]; ok {
		return n
	}
	return "UNKNOWN"
}

// ACKNeeded 指令执行成功后是否回 ACK（链路探测自带应答，不再确认）
func ACKNeeded(cmd byte) bool {
	return cmd != TECLoraPing
}

// ACKNeededBefore 指令是否要求在执行前先回 ACK（复位类指令执行后无法再发送）
func ACKNeededBefore(cmd byte) bool {
	return cmd == TECObcReboot
}
