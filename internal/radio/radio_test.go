package radio

import (
	"testing"
)

func TestDefaultParamsValid(t *testing.T) {
	if err := DefaultParams().Validate(); err != nil {
		t.Fatalf("defaults must validate: %v", err)
	}
}

func TestParamRanges(t *testing.T) {
	if ValidFrequency(399.9) || ValidFrequency(500.1) {
		t.Error("frequency bounds")
	}
	if !ValidFrequency(400) || !ValidFrequency(500) {
		t.Error("frequency endpoints inclusive")
	}
	if ValidBandwidth(100) {
		t.Error("bandwidth must be a listed step")
	}
	for _, bw := range Bandwidths {
		if !ValidBandwidth(bw) {
			t.Errorf("bandwidth %v rejected", bw)
		}
	}
	if ValidSpreadingFactor(5) || ValidSpreadingFactor(13) {
		t.Error("sf bounds")
	}
	if ValidCodingRate(4) || ValidCodingRate(9) {
		t.Error("cr bounds")
	}
	if ValidPower(-5) || ValidPower(18) {
		t.Error("power bounds")
	}
}

func TestLoopbackLifecycle(t *testing.T) {
	l := NewLoopback()
	if err := l.StartReceive(); err != ErrNotReady {
		t.Fatal("receive before begin must fail")
	}
	if err := l.Begin(DefaultParams()); err != nil {
		t.Fatal(err)
	}
	if err := l.StartReceive(); err != nil {
		t.Fatal(err)
	}

	l.Inject([]byte{0xDE, 0xAD})
	select {
	case <-l.Events():
	default:
		t.Fatal("inject should notify")
	}
	got, err := l.ReadData()
	if err != nil || len(got) != 2 || l.PacketLength() != 2 {
		t.Fatalf("read: %v % x", err, got)
	}

	if err := l.StartTransmit([]byte{1, 2, 3}); err != nil {
		t.Fatal(err)
	}
	select {
	case <-l.Events():
	default:
		t.Fatal("transmit should notify completion")
	}
	sent := l.Sent()
	if len(sent) != 1 || len(sent[0]) != 3 {
		t.Fatalf("sent = %v", sent)
	}
}

func TestLoopbackReconfigure(t *testing.T) {
	l := NewLoopback()
	if err := l.Begin(DefaultParams()); err != nil {
		t.Fatal(err)
	}
	if err := l.SetFrequency(434.5); err != nil {
		t.Fatal(err)
	}
	if err := l.SetFrequency(600); err != ErrRange {
		t.Fatal("out of range frequency accepted")
	}
	if err := l.SetOutputPower(17); err != nil {
		t.Fatal(err)
	}
	if got := l.CurrentParams(); got.FrequencyMHz != 434.5 || got.PowerDBm != 17 {
		t.Fatalf("params not applied: %+v", got)
	}
}

func TestBandwidthIndex(t *testing.T) {
	cases := map[float64]int{62.5: 6, 125: 7, 250: 8, 500: 9}
	for khz, want := range cases {
		if got := bandwidthIndex(khz); got != want {
			t.Errorf("bandwidthIndex(%v) = %d, want %d", khz, got, want)
		}
	}
}
