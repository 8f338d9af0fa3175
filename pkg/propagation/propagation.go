// Package propagation implements the log-distance shadowing channel model
// and the per-spreading-factor sensitivity/airtime tables that the rest of
// the simulator builds on. Every function here is pure: no hidden state,
// no RNG, no I/O.
package propagation

import (
	"fmt"
	"math"
)

// SF is a LoRa spreading factor, 7 through 12.
type SF int

// Bandwidths supported by the sensitivity table.
const (
	BW125 = 125
	BW250 = 250
	BW500 = 500
)

// SFs enumerates the six spreading factors in ascending order, matching the
// fixed slot ordering used everywhere a per-SF vector is indexed (slot =
// SF-7).
var SFs = [6]SF{7, 8, 9, 10, 11, 12}

// SlotIndex returns the 0-based slot for sf in a 6-wide per-SF vector.
func SlotIndex(sf SF) int {
	return int(sf) - 7
}

// Params bundles the log-distance shadowing model parameters:
// Gamma is the path-loss exponent, Lpld0 the path loss at reference
// distance D0 (meters), in dB.
type Params struct {
	Gamma float64
	Lpld0 float64
	D0    float64
}

// DefaultParams matches the values used throughout the reference corpus.
var DefaultParams = Params{Gamma: 2.08, Lpld0: 107.41, D0: 40.0}

// sensitivity holds, per SF, the receiver sensitivity in dBm for BW125,
// BW250 and BW500 (config.Validate accepts all three bandwidths; the
// max-range table considers only 125 and 250 kHz).
type sensitivityRow struct {
	bw125, bw250, bw500 float64
}

var sensitivityTable = map[SF]sensitivityRow{
	7:  {-123.0, -121.5, -118.5},
	8:  {-126.0, -124.0, -121.0},
	9:  {-129.5, -126.5, -123.5},
	10: {-132.0, -129.0, -126.0},
	11: {-134.5, -131.5, -128.5},
	12: {-137.0, -134.0, -131.0},
}

// Sensitivity returns the receiver sensitivity in dBm for the given SF/BW.
func Sensitivity(sf SF, bw int) (float64, error) {
	row, ok := sensitivityTable[sf]
	if !ok {
		return 0, fmt.Errorf("propagation: unknown spreading factor %d", sf)
	}
	switch bw {
	case BW125:
		return row.bw125, nil
	case BW250:
		return row.bw250, nil
	case BW500:
		return row.bw500, nil
	default:
		return 0, fmt.Errorf("propagation: unsupported bandwidth %d kHz", bw)
	}
}

// DBmToMW converts a power in dBm to milliwatts.
func DBmToMW(dBm float64) float64 {
	return math.Pow(10.0, dBm/10.0)
}

// DBmToNW converts a power in dBm to nanowatts.
func DBmToNW(dBm float64) float64 {
	return math.Pow(10.0, (dBm+90.0)/10.0)
}

// RXPower returns the received power in dBm for a transmitter at pTX dBm,
// distance meters away, under the log-distance shadowing model.
func RXPower(pTX, distance float64, p Params) float64 {
	return pTX - p.Lpld0 - 10.0*p.Gamma*math.Log10(distance/p.D0)
}

// TXPower inverts RXPower: the transmit power in dBm needed to produce pRX
// dBm at the given distance.
func TXPower(pRX, distance float64, p Params) float64 {
	return pRX + p.Lpld0 + 10.0*p.Gamma*math.Log10(distance/p.D0)
}

// DistanceFromPathLoss inverts the shadowing model: the distance in meters
// at which a signal suffers pLoss dB of path loss.
func DistanceFromPathLoss(pLoss float64, p Params) float64 {
	return p.D0 * math.Pow(10.0, (pLoss-p.Lpld0)/(10.0*p.Gamma))
}

// DistanceFromPower returns the distance in meters implied by a known
// transmit and receive power pair.
func DistanceFromPower(pTX, pRX float64, p Params) float64 {
	return DistanceFromPathLoss(pTX-pRX, p)
}

// PHYParams carries the packet-shape inputs to the airtime formula: coding
// rate designator, payload length in bytes, preamble and sync-word length
// in symbols, whether the explicit header is enabled, and whether CRC is
// appended.
type PHYParams struct {
	SF             SF
	CodingRate     int
	BW             int
	PacketLength   int
	PreambleLength float64
	SyncLength     float64
	HeaderEnable   bool
	CRC            bool
}

// Airtime computes the LoRa on-air time of a packet, in milliseconds, with
// the low-data-rate-optimization bit fixed at 1 (DE=1) as the reference
// implementation does unconditionally.
func Airtime(p PHYParams) float64 {
	const de = 1
	tSym := math.Pow(2.0, float64(p.SF)) / float64(p.BW)
	tPreamble := (p.PreambleLength + p.SyncLength) * tSym

	header := 0.0
	if p.HeaderEnable {
		header = 1.0
	}
	crc := 0.0
	if p.CRC {
		crc = 1.0
	}

	numerator := 8.0*float64(p.PacketLength) - 4.0*float64(p.SF) + 28 + 16*crc - 20*header
	symbols := math.Ceil(numerator/(4.0*(float64(p.SF)-2*de))) * float64(p.CodingRate+4)
	payloadSymbNB := 8 + math.Max(symbols, 0)

	return tPreamble + payloadSymbNB*tSym
}

// MaxRangeTable holds, per SF, the maximum distance (meters) at which the
// declared sensitivity is still met at the given max transmit power, for
// both BW125 and BW250; plus the single (SF, BW) pair achieving the overall
// longest range, used to seed topology placement.
type MaxRangeTable struct {
	DistBySF map[SF]float64 // best-BW distance per SF
	BestDist float64
	BestSF   SF
	BestBW   int
}

// ErrPacketTooLong is returned when no (SF, BW) pair keeps the configured
// packet's airtime within the 9999 ms ceiling the reference implementation
// enforces (the "Packet length too large!" configuration error of spec §7).
var ErrPacketTooLong = fmt.Errorf("propagation: packet too long for any valid SF/BW pair")

// airtimeCeilingMs mirrors the reference implementation's hard-coded 9999 ms
// validity ceiling for a packet's time on air.
const airtimeCeilingMs = 9999.0

// BuildMaxRangeTable computes, for the given max transmit power and packet
// shape, the maximum range achievable at each SF/BW combination and returns
// the one with the greatest range whose airtime is still valid.
func BuildMaxRangeTable(maxPtx float64, params Params, phy PHYParams) (MaxRangeTable, error) {
	ptx125 := math.Min(maxPtx, 14)
	ptx250 := math.Min(maxPtx, 14)

	type cell struct {
		dist      float64
		bw        int
		validAT   bool
	}

	var best cell
	bestSF := SFs[0]
	distBySF := make(map[SF]float64, len(SFs))

	for _, sf := range SFs {
		sens125, err := Sensitivity(sf, BW125)
		if err != nil {
			return MaxRangeTable{}, err
		}
		sens250, err := Sensitivity(sf, BW250)
		if err != nil {
			return MaxRangeTable{}, err
		}

		lpl125 := ptx125 - sens125
		lpl250 := ptx250 - sens250

		dist125 := DistanceFromPathLoss(lpl125, params)
		dist250 := DistanceFromPathLoss(lpl250, params)

		at125 := Airtime(PHYParams{SF: sf, CodingRate: phy.CodingRate, BW: BW125, PacketLength: phy.PacketLength,
			PreambleLength: phy.PreambleLength, SyncLength: phy.SyncLength, HeaderEnable: phy.HeaderEnable, CRC: phy.CRC})
		at250 := Airtime(PHYParams{SF: sf, CodingRate: phy.CodingRate, BW: BW250, PacketLength: phy.PacketLength,
			PreambleLength: phy.PreambleLength, SyncLength: phy.SyncLength, HeaderEnable: phy.HeaderEnable, CRC: phy.CRC})

		c125 := cell{dist: dist125, bw: BW125, validAT: at125 <= airtimeCeilingMs}
		c250 := cell{dist: dist250, bw: BW250, validAT: at250 <= airtimeCeilingMs}

		// Track the per-SF "best BW" distance for the distance-restriction
		// table used by SF-hopping-from-distance; prefer whichever BW gives
		// the larger valid range, falling back to the invalid one so callers
		// can still see the unrestricted geometry.
		var perSF cell
		switch {
		case c125.validAT && c250.validAT:
			if dist125 >= dist250 {
				perSF = c125
			} else {
				perSF = c250
			}
		case c125.validAT:
			perSF = c125
		case c250.validAT:
			perSF = c250
		default:
			perSF = c125
		}
		distBySF[sf] = perSF.dist

		for _, c := range []cell{c125, c250} {
			if c.validAT && c.dist > best.dist {
				best = c
				bestSF = sf
			}
		}
	}

	if best.dist == 0 {
		return MaxRangeTable{}, ErrPacketTooLong
	}

	return MaxRangeTable{
		DistBySF: distBySF,
		BestDist: best.dist,
		BestSF:   bestSF,
		BestBW:   best.bw,
	}, nil
}

// FreqBucket returns the 200 kHz-aligned bucket center frequency (in the
// same units as freq, kHz, i.e. 868100 for 868.1 MHz) that a
// signal on freq falls into.
func FreqBucket(freq int) int {
	return freq - mod(freq, 200) + 100
}

func mod(a, b int) int {
	m := a % b
	if m < 0 {
		m += b
	}
	return m
}
