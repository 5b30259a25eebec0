package radio

// Params 调制与功率参数
type Params struct {
	FrequencyMHz    float64
	BandwidthKHz    float64
	SpreadingFactor int
	CodingRate      int // 分母减 4 前的 4/x 形式，取 5..8
	SyncWord        byte
	PreambleLen     int
	PowerDBm        int
	AGC             bool
}

// DefaultParams 出厂链路参数
func DefaultParams() Params {
	return Params{
		FrequencyMHz:    436.0,
		BandwidthKHz:    125.0,
		SpreadingFactor: 10,
		CodingRate:      5,
		SyncWord:        0x12,
		PreambleLen:     8,
		PowerDBm:        10,
		AGC:             true,
	}
}

// 在轨可重配的允许范围
const (
	FreqMinMHz = 400.0
	FreqMaxMHz = 500.0
	SFMin      = 6
	SFMax      = 12
	CRMin      = 5
	CRMax      = 8
	PowerMin   = -4
	PowerMax   = 17
)

// Bandwidths 允许的带宽档位（kHz）
var Bandwidths = []float64{62.5, 125, 250, 500}

// ValidFrequency 频率范围检查
func ValidFrequency(mhz float64) bool {
	return mhz >= FreqMinMHz && mhz <= FreqMaxMHz
}

// ValidBandwidth 带宽必须落在档位上
func ValidBandwidth(khz float64) bool {
	for _, b := range Bandwidths {
		if b == khz {
			return true
		}
	}
	return false
}

// ValidSpreadingFactor 扩频因子范围检查
func ValidSpreadingFactor(sf int) bool {
	return sf >= SFMin && sf <= SFMax
}

// ValidCodingRate 编码率范围检查
func ValidCodingRate(cr int) bool {
	return cr >= CRMin && cr <= CRMax
}

// ValidPower 发射功率范围检查
func ValidPower(dbm int) bool {
	return dbm >= PowerMin && dbm <= PowerMax
}

// Validate 整组参数检查
func (p Params) Validate() error {
	if !ValidFrequency(p.FrequencyMHz) || !ValidBandwidth(p.BandwidthKHz) ||
		!ValidSpreadingFactor(p.SpreadingFactor) || !ValidCodingRate(p.CodingRate) ||
		!ValidPower(p.PowerDBm) {
		return ErrRange
	}
	return nil
}
