package fec

import "errors"

// RS(16,12) 缩短码：每 12 字节数据附 4 字节校验，纠错能力 2 字节/码字
const (
	BlockSize = 16
	DataSize  = 12
	Parity    = 4
	Padding   = 0x00

	fcr = 1 // 生成多项式首根指数
)

// ErrUncorrectable 码字错误超出纠错能力
var ErrUncorrectable = errors.New("fec: uncorrectable codeword")

// genpoly 码生成多项式系数（幂次升序），由根 alpha^1..alpha^4 构造
var genpoly [Parity + 1]byte

func init() {
	genpoly[0] = 1
	for i, root := 0, fcr; i < Parity; i, root = i+1, root+1 {
		genpoly[i+1] = 1
		for j := i; j > 0; j-- {
			if genpoly[j] != 0 {
				genpoly[j] = genpoly[j-1] ^ gfMul(genpoly[j], gfPow(root))
			} else {
				genpoly[j] = genpoly[j-1]
			}
		}
		genpoly[0] = gfMul(genpoly[0], gfPow(root))
	}
}

// encodeBlock 对 12 字节数据做 LFSR 系统编码，返回 4 字节校验
func encodeBlock(data []byte) [Parity]byte {
	var bb [Parity]byte
	for i := 0; i < DataSize; i++ {
		feedback := data[i] ^ bb[0]
		copy(bb[:], bb[1:])
		bb[Parity-1] = 0
		if feedback != 0 {
			for j := 0; j < Parity; j++ {
				bb[j] ^= gfMul(feedback, genpoly[Parity-1-j])
			}
		}
	}
	return bb
}

// syndromes 计算码字在 alpha^(fcr+i) 处的取值；全零表示无错
func syndromes(cw []byte) ([Parity]byte, bool) {
	var s [Parity]byte
	clean := true
	for i := 0; i < Parity; i++ {
		var acc byte
		for _, b := range cw {
			acc = gfMul(acc, gfPow(fcr+i)) ^ b
		}
		s[i] = acc
		if acc != 0 {
			clean = false
		}
	}
	return s, clean
}

// decodeBlock 原地纠错一个 16 字节码字，返回纠正的字节数
func decodeBlock(cw []byte) (int, error) {
	s, clean := syndromes(cw)
	if clean {
		return 0, nil
	}

	// Berlekamp-Massey 求错误定位多项式 lambda
	lambda := [Parity + 1]byte{1}
	prev := [Parity + 1]byte{1}
	l, m := 0, 1
	bscale := byte(1)
	for n := 0; n < Parity; n++ {
		d := s[n]
		for i := 1; i <= l; i++ {
			d ^= gfMul(lambda[i], s[n-i])
		}
		if d == 0 {
			m++
			continue
		}
		coef := gfMul(d, gfInv(bscale))
		if 2*l <= n {
			saved := lambda
			for i := 0; i+m <= Parity; i++ {
				lambda[i+m] ^= gfMul(coef, prev[i])
			}
			l = n + 1 - l
			prev = saved
			bscale = d
			m = 1
		} else {
			for i := 0; i+m <= Parity; i++ {
				lambda[i+m] ^= gfMul(coef, prev[i])
			}
			m++
		}
	}

	degree := 0
	for i := Parity; i > 0; i-- {
		if lambda[i] != 0 {
			degree = i
			break
		}
	}
	if degree == 0 || degree > Parity/2 {
		return 0, ErrUncorrectable
	}

	// Chien 搜索：逐位置检验 lambda(X^-1)=0
	var errPos []int
	for j := 0; j < BlockSize; j++ {
		x := gfPow(BlockSize - 1 - j) // 位置 j 的定位子
		xinv := gfInv(x)
		var v byte
		for i := degree; i >= 0; i-- {
			v = gfMul(v, xinv) ^ lambda[i]
		}
		if v == 0 {
			errPos = append(errPos, j)
		}
	}
	if len(errPos) != degree {
		return 0, ErrUncorrectable
	}

	// omega = S(x)*lambda(x) mod x^Parity
	var omega [Parity]byte
	for i := 0; i < Parity; i++ {
		var acc byte
		for j := 0; j <= i && j <= degree; j++ {
			acc ^= gfMul(lambda[j], s[i-j])
		}
		omega[i] = acc
	}

	// Forney 求错误值（fcr=1 时无附加因子）
	for _, j := range errPos {
		xinv := gfInv(gfPow(BlockSize - 1 - j))
		var num byte
		for i := Parity - 1; i >= 0; i-- {
			num = gfMul(num, xinv) ^ omega[i]
		}
		var den byte
		for i := 1; i <= degree; i += 2 {
			den ^= gfMul(lambda[i], gfPowMul(xinv, i-1))
		}
		if den == 0 {
			return 0, ErrUncorrectable
		}
		cw[j] ^= gfMul(num, gfInv(den))
	}
	if _, clean := syndromes(cw); !clean {
		return 0, ErrUncorrectable
	}
	return degree, nil
}

// gfPowMul 返回 x^n
func gfPowMul(x byte, n int) byte {
	v := byte(1)
	for i := 0; i < n; i++ {
		v = gfMul(v, x)
	}
	return v
}
