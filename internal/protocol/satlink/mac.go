package satlink

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/binary"
)

// 链路鉴别密钥，协议常量，与地面站保持一致
var secretKey = []byte{0xA1, 0xB2, 0xC3, 0xD4}

// ComputeMAC 对 MAC 域清零的序列化字节计算 HMAC-SHA256，
// 取摘要高 4 字节按大端组合
func ComputeMAC(wire []byte) uint32 {
	h := hmac.New(sha256.New, secretKey)
	h.Write(wire)
	sum := h.Sum(nil)
	return binary.BigEndian.Uint32(sum[:4])
}
