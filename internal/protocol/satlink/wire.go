package satlink

import (
	"encoding/binary"

	"github.com/pocketqube-lab/comms-server/internal/fec"
)

// Marshal 序列化为线上字节：12 字节头 + 载荷，多字节域大端
func (p *Packet) Marshal() []byte {
	return p.marshal()
}

func (p *Packet) marshal() []byte {
	out := make([]byte, HeaderSize+len(p.Payload))
	out[0] = p.Station
	if p.ECC {
		out[1] = RSOn
	} else {
		out[1] = RSOff
	}
	out[2] = p.Command
	out[3] = byte(len(p.Payload))
	binary.BigEndian.PutUint32(out[4:8], p.TimeUnix)
	binary.BigEndian.PutUint32(out[8:12], p.MAC)
	copy(out[HeaderSize:], p.Payload)
	return out
}

// Unmarshal 解析并校验一帧。返回的 Packet 带 State 标记；
// 校验失败时 err 与 State 同步置位，帧内容为尽力解析的结果
func Unmarshal(data []byte) (*Packet, error) {
	p := &Packet{}
	if len(data) < HeaderSize || len(data) > MaxFrameLen {
		p.State = ErrLength
		return p, newLinkError(ErrLength)
	}

	p.Station = data[0]
	eccByte := data[1]
	p.Command = data[2]
	payloadLen := int(data[3])
	p.TimeUnix = binary.BigEndian.Uint32(data[4:8])
	p.MAC = binary.BigEndian.Uint32(data[8:12])

	switch eccByte {
	case RSOn:
		p.ECC = true
	case RSOff:
		p.ECC = false
	default:
		p.State = ErrRSFlag
		return p, newLinkError(ErrRSFlag)
	}

	if !IsKnownCommand(p.Command) {
		p.State = ErrCmdUnknown
		return p, newLinkError(ErrCmdUnknown)
	}

	// 剥离 RS 补零：只允许尾部出现填充字节
	n := len(data)
	for n > HeaderSize+payloadLen {
		if data[n-1] != fec.Padding {
			p.State = ErrLength
			return p, newLinkError(ErrLength)
		}
		n--
	}
	if payloadLen > MaxPayloadLen || n != HeaderSize+payloadLen {
		p.State = ErrLength
		return p, newLinkError(ErrLength)
	}
	p.Payload = append([]byte(nil), data[HeaderSize:n]...)

	if !p.Verify() {
		p.State = ErrMAC
		return p, newLinkError(ErrMAC)
	}

	p.State = ErrNone
	return p, nil
}

// DataHasECC 空中帧是否经过 RS 编码：
// 长度为 16 的非零倍数且第 2 字节不是 RSOff 标记
func DataHasECC(frame []byte) bool {
	return len(frame) > 0 && len(frame)%fec.BlockSize == 0 && frame[1] != RSOff
}
