package gateway

import (
	"math/rand"
	"testing"

	"github.com/lora-mab/lora-sim/pkg/packet"
	"github.com/lora-mab/lora-sim/pkg/propagation"
)

func testPHY() propagation.PHYParams {
	return propagation.PHYParams{CodingRate: 1, PacketLength: 20, PreambleLength: 8, SyncLength: 4.25, HeaderEnable: false, CRC: true}
}

func makePacket(t *testing.T, deviceID int, dist float64, action packet.Action) *packet.Packet {
	t.Helper()
	p := packet.New(deviceID, 1, dist, propagation.BW125, testPHY())
	rng := rand.New(rand.NewSource(int64(deviceID)))
	if err := p.UpdateTXSettings(rng, []packet.Action{action}, []float64{1}, propagation.DefaultParams); err != nil {
		t.Fatalf("UpdateTXSettings: %v", err)
	}
	return p
}

// S9: no capture, no inter-SF — two identical-action packets both lost and
// collided; one on a different SF both succeed.
func TestNoCaptureNoInterSFSameAction(t *testing.T) {
	gw := New(1, 0, 0, InteractionMatrix(false, false), CaptureThreshold(false), 8)
	action := packet.Action{SF: 7, Freq: 868100, Power: 14}

	p1 := makePacket(t, 1, 500, action)
	p2 := makePacket(t, 2, 500, action)

	gw.Admit(1, p1)
	gw.Admit(2, p2)
	if err := gw.EnterCritical(1); err != nil {
		t.Fatal(err)
	}
	if err := gw.EnterCritical(2); err != nil {
		t.Fatal(err)
	}

	if !p1.IsLost || !p1.IsCollision {
		t.Errorf("p1 expected lost+collided, got lost=%v collision=%v", p1.IsLost, p1.IsCollision)
	}
	if !p2.IsLost || !p2.IsCollision {
		t.Errorf("p2 expected lost+collided, got lost=%v collision=%v", p2.IsLost, p2.IsCollision)
	}
}

func TestNoCaptureNoInterSFDifferentSF(t *testing.T) {
	gw := New(1, 0, 0, InteractionMatrix(false, false), CaptureThreshold(false), 8)

	p1 := makePacket(t, 1, 500, packet.Action{SF: 7, Freq: 868100, Power: 14})
	p2 := makePacket(t, 2, 500, packet.Action{SF: 9, Freq: 868100, Power: 14})

	gw.Admit(1, p1)
	gw.Admit(2, p2)
	if err := gw.EnterCritical(1); err != nil {
		t.Fatal(err)
	}
	if err := gw.EnterCritical(2); err != nil {
		t.Fatal(err)
	}

	if p1.IsLost || p1.IsCollision {
		t.Errorf("p1 expected to succeed on distinct SF with identity matrix, got lost=%v collision=%v", p1.IsLost, p1.IsCollision)
	}
	if p2.IsLost || p2.IsCollision {
		t.Errorf("p2 expected to succeed on distinct SF with identity matrix, got lost=%v collision=%v", p2.IsLost, p2.IsCollision)
	}
}

// S10: with capture enabled and a single transmission, the packet is
// received iff P_rx >= sensitivity.
func TestSingleTransmissionCaptureThreshold(t *testing.T) {
	gw := New(1, 0, 0, InteractionMatrix(true, true), CaptureThreshold(true), 8)

	// Close: should be received.
	near := makePacket(t, 1, 100, packet.Action{SF: 7, Freq: 868100, Power: 14})
	gw.Admit(1, near)
	if near.IsLost {
		t.Fatal("expected admission-time isLost=false for a strong near signal")
	}
	if err := gw.EnterCritical(1); err != nil {
		t.Fatal(err)
	}
	if near.IsLost {
		t.Error("single transmission with capture should never be lost to capture/interSF")
	}
	ok, err := gw.Remove(1)
	if err != nil {
		t.Fatal(err)
	}
	if !ok {
		t.Error("expected successful single-transmission removal")
	}

	// Far: should be lost at admission already (below sensitivity).
	far := makePacket(t, 2, 50000, packet.Action{SF: 7, Freq: 868100, Power: 2})
	gw.Admit(2, far)
	if !far.IsLost {
		t.Error("expected far weak transmission to be lost at admission")
	}
}

func TestDemodulatorCapacityInvariant(t *testing.T) {
	gw := New(1, 0, 0, InteractionMatrix(true, true), CaptureThreshold(true), 2)

	actions := []packet.Action{
		{SF: 7, Freq: 868100, Power: 14},
		{SF: 8, Freq: 868100, Power: 14},
		{SF: 9, Freq: 868100, Power: 14},
	}
	pkts := make([]*packet.Packet, len(actions))
	for i, a := range actions {
		pkts[i] = makePacket(t, i+1, 100, a)
		gw.Admit(i+1, pkts[i])
	}
	for i := range actions {
		if err := gw.EnterCritical(i + 1); err != nil {
			t.Fatal(err)
		}
		if gw.DemodulatorOccupancy() > gw.DemodulatorCap {
			t.Fatalf("demodulator occupancy %d exceeds capacity %d", gw.DemodulatorOccupancy(), gw.DemodulatorCap)
		}
	}
	if pkts[2].IsCritical {
		t.Error("third distinct-SF packet should have been rejected once demodulator pool was full")
	}
	if !pkts[2].IsLost {
		t.Error("rejected packet should be marked lost")
	}
}

func TestRemoveFloorsSignalAtZero(t *testing.T) {
	gw := New(1, 0, 0, InteractionMatrix(false, false), CaptureThreshold(false), 8)
	p := makePacket(t, 1, 100, packet.Action{SF: 7, Freq: 868100, Power: 14})
	gw.Admit(1, p)
	if _, err := gw.Remove(1); err != nil {
		t.Fatal(err)
	}
	s := gw.SignalLevel[p.Bucket]
	for i := 0; i < 6; i++ {
		if s.AtVec(i) != 0 {
			t.Errorf("expected signal slot %d floored to zero after removal, got %v", i, s.AtVec(i))
		}
	}
}
