package gs

import (
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// TLE 分片参数，与星上闪存区布局对齐
const (
	tleChunkCount = 5
	tleChunkSize  = 97
	tleLineLen    = 69
)

// TLE 两行根数
type TLE struct {
	Name  string `yaml:"name"`
	Line1 string `yaml:"line1"`
	Line2 string `yaml:"line2"`
}

// ParseTLEYAML 解析 YAML 格式的 TLE 上传文件
func ParseTLEYAML(data []byte) (*TLE, error) {
	var t TLE
	if err := yaml.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("parse tle yaml: %w", err)
	}
	if err := t.Validate(); err != nil {
		return nil, err
	}
	return &t, nil
}

// Validate 校验两行根数的基本格式
func (t *TLE) Validate() error {
	t.Line1 = strings.TrimRight(t.Line1, " \r\n")
	t.Line2 = strings.TrimRight(t.Line2, " \r\n")

	if len(t.Line1) != tleLineLen || !strings.HasPrefix(t.Line1, "1 ") {
		return fmt.Errorf("tle line1 invalid: want %d chars starting with \"1 \", got %d", tleLineLen, len(t.Line1))
	}
	if len(t.Line2) != tleLineLen || !strings.HasPrefix(t.Line2, "2 ") {
		return fmt.Errorf("tle line2 invalid: want %d chars starting with \"2 \", got %d", tleLineLen, len(t.Line2))
	}
	return nil
}

// Chunks 将两行根数编码为 5 个定长上行载荷。
// 每个载荷为 {分片号1..5, 97字节数据}，尾部零填充；
// 星上按分片号写入两个闪存区的固定偏移。
func (t *TLE) Chunks() ([][]byte, error) {
	if err := t.Validate(); err != nil {
		return nil, err
	}

	blob := []byte(t.Line1 + "\n" + t.Line2 + "\n")
	if len(blob) > tleChunkCount*tleChunkSize {
		return nil, fmt.Errorf("tle blob too large: %d bytes", len(blob))
	}

	padded := make([]byte, tleChunkCount*tleChunkSize)
	copy(padded, blob)

	chunks := make([][]byte, 0, tleChunkCount)
	for n := 1; n <= tleChunkCount; n++ {
		payload := make([]byte, 1+tleChunkSize)
		payload[0] = byte(n)
		copy(payload[1:], padded[(n-1)*tleChunkSize:n*tleChunkSize])
		chunks = append(chunks, payload)
	}
	return chunks, nil
}
