package satlink

import "fmt"

// ErrCode 帧级错误码，负值随 NACK 载荷下发
type ErrCode int8

const (
	ErrNone       ErrCode = 0
	ErrRSFlag     ErrCode = -1 // ECC 标记字节非法
	ErrDecode     ErrCode = -2 // RS 码字不可纠
	ErrLength     ErrCode = -3 // 帧长与载荷长度不符
	ErrMAC        ErrCode = -4 // 鉴别码校验失败
	ErrCmdFull    ErrCode = -5 // 指令队列已满
	ErrCmdPointer ErrCode = -6 // 内部指针错误
	ErrCmdUnknown ErrCode = -7 // 未知指令码
	ErrCmdPayload ErrCode = -8 // 载荷越界或格式错误
	ErrCmdMemory  ErrCode = -9 // 内存申请失败
)

var errNames = map[ErrCode]string{
	ErrNone:       "OK",
	ErrRSFlag:     "RS_FLAG",
	ErrDecode:     "RS_DECODE",
	ErrLength:     "LENGTH",
	ErrMAC:        "MAC",
	ErrCmdFull:    "CMD_FULL",
	ErrCmdPointer: "CMD_POINTER",
	ErrCmdUnknown: "CMD_UNKNOWN",
	ErrCmdPayload: "CMD_PAYLOAD",
	ErrCmdMemory:  "CMD_MEMORY",
}

func (c ErrCode) String() string {
	if n, ok := errNames[c]; ok {
		return n
	}
	return fmt.Sprintf("ERR(%d)", int8(c))
}

// Byte NACK 载荷中的单字节形式（补码）
func (c ErrCode) Byte() byte {
	return byte(c)
}

// LinkError 携带错误码的帧处理错误
type LinkError struct {
	Code ErrCode
}

func (e *LinkError) Error() string {
	return "satlink: " + e.Code.String()
}

func newLinkError(code ErrCode) *LinkError {
	return &LinkError{Code: code}
}

// CodeOf 从 error 中提取帧级错误码；非本协议错误返回 ErrCmdPointer
func CodeOf(err error) ErrCode {
	if err == nil {
		return ErrNone
	}
	if le, ok := err.(*LinkError); ok {
		return le.Code
	}
	return ErrCmdPointer
}
