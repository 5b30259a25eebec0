package fec

import "fmt"

// Encode 将任意长度缓冲切成 12 字节块（尾块补零）逐块编码，
// 再将 n 个码字按列交织输出，长度为 ceil(len/12)*16
func Encode(data []byte) []byte {
	if len(data) == 0 {
		return nil
	}
	n := (len(data) + DataSize - 1) / DataSize

	codewords := make([][BlockSize]byte, n)
	for row := 0; row < n; row++ {
		var block [DataSize]byte
		start := row * DataSize
		end := start + DataSize
		if end > len(data) {
			end = len(data)
		}
		copy(block[:], data[start:end])
		for i := end - start; i < DataSize; i++ {
			block[i] = Padding
		}
		copy(codewords[row][:DataSize], block[:])
		parity := encodeBlock(block[:])
		copy(codewords[row][DataSize:], parity[:])
	}

	// 列交织：out[col*n+row] = cw[row][col]
	out := make([]byte, n*BlockSize)
	for row := 0; row < n; row++ {
		for col := 0; col < BlockSize; col++ {
			out[col*n+row] = codewords[row][col]
		}
	}
	return out
}

// Decode 解交织并逐码字纠错，剥离校验后输出 n*12 字节数据。
// 存在不可纠码字时返回 ErrUncorrectable，同时给出尽力恢复的字节
func Decode(frame []byte) ([]byte, error) {
	if len(frame) == 0 || len(frame)%BlockSize != 0 {
		return nil, fmt.Errorf("fec: frame length %d is not a positive multiple of %d", len(frame), BlockSize)
	}
	n := len(frame) / BlockSize

	var decodeErr error
	out := make([]byte, n*DataSize)
	for row := 0; row < n; row++ {
		var cw [BlockSize]byte
		for col := 0; col < BlockSize; col++ {
			cw[col] = frame[col*n+row]
		}
		if _, err := decodeBlock(cw[:]); err != nil {
			decodeErr = err
		}
		copy(out[row*DataSize:], cw[:DataSize])
	}
	return out, decodeErr
}

// EncodedLen 给定明文长度的空中帧长度
func EncodedLen(n int) int {
	if n <= 0 {
		return 0
	}
	return (n + DataSize - 1) / DataSize * BlockSize
}
