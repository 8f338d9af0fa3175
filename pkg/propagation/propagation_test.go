package propagation

import (
	"math"
	"testing"
)

func TestDBmConversions(t *testing.T) {
	if got := DBmToMW(0); math.Abs(got-1.0) > 1e-9 {
		t.Errorf("DBmToMW(0) = %v, want 1.0", got)
	}
	if got := DBmToMW(10); math.Abs(got-10.0) > 1e-9 {
		t.Errorf("DBmToMW(10) = %v, want 10.0", got)
	}
}

func TestDistancePowerRoundTrip(t *testing.T) {
	p := DefaultParams
	for _, d := range []float64{10, 100, 1000, 5000} {
		pTX := 14.0
		pRX := RXPower(pTX, d, p)
		got := DistanceFromPower(pTX, pRX, p)
		if rel := math.Abs(got-d) / d; rel > 1e-6 {
			t.Errorf("distance round-trip at d=%v: got %v (rel err %v)", d, got, rel)
		}
	}
}

func TestAirtimeMonotonicInSF(t *testing.T) {
	base := PHYParams{CodingRate: 1, BW: BW125, PacketLength: 20, PreambleLength: 8, SyncLength: 4.25, HeaderEnable: false, CRC: true}
	prev := 0.0
	for _, sf := range SFs {
		base.SF = sf
		at := Airtime(base)
		if at <= prev {
			t.Errorf("airtime not strictly increasing at SF=%d: %v <= %v", sf, at, prev)
		}
		prev = at
	}
}

func TestSensitivityUnknownSF(t *testing.T) {
	if _, err := Sensitivity(6, BW125); err == nil {
		t.Error("expected error for unknown SF")
	}
}

func TestFreqBucket(t *testing.T) {
	cases := map[int]int{
		868100: 868100 - 868100%200 + 100,
		868300: 868300 - 868300%200 + 100,
	}
	for freq, want := range cases {
		if got := FreqBucket(freq); got != want {
			t.Errorf("FreqBucket(%d) = %d, want %d", freq, got, want)
		}
	}
}

func TestBuildMaxRangeTable(t *testing.T) {
	phy := PHYParams{CodingRate: 1, PacketLength: 20, PreambleLength: 8, SyncLength: 4.25, HeaderEnable: false, CRC: true}
	tbl, err := BuildMaxRangeTable(14, DefaultParams, phy)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tbl.BestDist <= 0 {
		t.Errorf("expected positive best distance, got %v", tbl.BestDist)
	}
	if len(tbl.DistBySF) != 6 {
		t.Errorf("expected 6 SF entries, got %d", len(tbl.DistBySF))
	}
	// Higher SF (more sensitive) should reach further.
	if tbl.DistBySF[12] <= tbl.DistBySF[7] {
		t.Errorf("expected SF12 range > SF7 range, got %v <= %v", tbl.DistBySF[12], tbl.DistBySF[7])
	}
}

func TestBuildMaxRangeTablePacketTooLong(t *testing.T) {
	phy := PHYParams{CodingRate: 4, PacketLength: 200000, PreambleLength: 8, SyncLength: 4.25, HeaderEnable: false, CRC: true}
	_, err := BuildMaxRangeTable(14, DefaultParams, phy)
	if err != ErrPacketTooLong {
		t.Errorf("expected ErrPacketTooLong, got %v", err)
	}
}
