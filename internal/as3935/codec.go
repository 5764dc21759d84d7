package as3935

import "fmt"

// Snapshot is one block read of registers 0x00..0x08. It is a value type;
// every accessor is a pure function of the bytes captured at read time.
type Snapshot [snapshotLen]byte

// SnapshotFrom copies a block read into a Snapshot.
func SnapshotFrom(b []byte) (Snapshot, error) {
	var s Snapshot
	if len(b) < snapshotLen {
		return s, fmt.Errorf("short register block: got %d bytes, want %d", len(b), snapshotLen)
	}
	copy(s[:], b)
	return s, nil
}

// Reg returns the raw value of a register in the snapshot.
func (s Snapshot) Reg(reg byte) byte {
	return s[reg]
}

// PoweredDown reports whether the PWD bit is set.
func (s Snapshot) PoweredDown() bool {
	return s[RegAFE]&maskPowerDown != 0
}

// Indoor reports whether the indoor AFE gain profile is active.
func (s Snapshot) Indoor() bool {
	return s[RegAFE]&maskAFEGain == afeIndoor
}

// NoiseFloor returns the NF_LEV field (0..7).
func (s Snapshot) NoiseFloor() uint8 {
	return DecodeNoiseFloor(s[RegThreshold])
}

// WatchdogThreshold returns the WDTH field (0..15).
func (s Snapshot) WatchdogThreshold() uint8 {
	return FieldWatchdog.Get(s[RegThreshold])
}

// SpikeRejection returns the SREJ field (0..15).
func (s Snapshot) SpikeRejection() uint8 {
	return FieldSpikeRej.Get(s[RegLightning])
}

// MinStrikes returns the decoded minimum number of strikes (1, 5, 9 or 16).
func (s Snapshot) MinStrikes() int {
	return minStrikesTable[FieldMinStrikes.Get(s[RegLightning])]
}

// MaskDisturber reports whether disturber interrupts are masked.
func (s Snapshot) MaskDisturber() bool {
	return s[RegInterrupt]&maskMaskDist != 0
}

// LCOFrequencyDivision returns the LCO division ratio (16, 32, 64 or 128).
func (s Snapshot) LCOFrequencyDivision() int {
	return 16 << FieldLCOFdiv.Get(s[RegInterrupt])
}

// InterruptBits returns the masked INT field.
func (s Snapshot) InterruptBits() byte {
	return s[RegInterrupt] & maskInterrupt
}

// Distance returns the estimated storm distance in km; ok is false when
// the chip reports the storm out of range.
func (s Snapshot) Distance() (km uint8, ok bool) {
	return DecodeDistance(s[RegDistance])
}

// Energy returns the raw 21-bit energy of the last strike.
func (s Snapshot) Energy() uint32 {
	return DecodeEnergy(s[RegEnergyLSB], s[RegEnergyMSB], s[RegEnergyMMSB])
}

// TuningCapSteps returns the TUN_CAP field (0..15, 8pF each).
func (s Snapshot) TuningCapSteps() uint8 {
	return FieldTuningCap.Get(s[RegTuning])
}

// IRQOutput returns which oscillator, if any, is routed to the IRQ pin.
func (s Snapshot) IRQOutput() IRQOutput {
	return decodeIRQOutput(s[RegTuning])
}

// Config decodes every configuration field.
func (s Snapshot) Config() DeviceConfig {
	return DeviceConfig{
		Indoor:            s.Indoor(),
		NoiseFloor:        s.NoiseFloor(),
		WatchdogThreshold: s.WatchdogThreshold(),
		SpikeRejection:    s.SpikeRejection(),
		MinStrikes:        s.MinStrikes(),
		TuningCapSteps:    s.TuningCapSteps(),
		MaskDisturber:     s.MaskDisturber(),
		IRQOutput:         s.IRQOutput(),
	}
}

// DecodeDistance masks the low 6 bits; 0x3F means out of range.
func DecodeDistance(b byte) (km uint8, ok bool) {
	v := b & maskDistance
	if v == DistanceOutOfRange {
		return 0, false
	}
	return v, true
}

// DecodeEnergy assembles the 21-bit energy value from registers 0x04..0x06.
func DecodeEnergy(b4, b5, b6 byte) uint32 {
	return uint32(b6&maskEnergyMMSB)<<16 | uint32(b5)<<8 | uint32(b4)
}

// EncodeEnergy splits a 21-bit energy value into register bytes. Bits
// above 21 are discarded.
func EncodeEnergy(e uint32) (b4, b5, b6 byte) {
	return byte(e), byte(e >> 8), byte(e>>16) & maskEnergyMMSB
}

// DecodeNoiseFloor extracts NF_LEV from register 0x01.
func DecodeNoiseFloor(b byte) uint8 {
	return (b & maskNoiseFloor) >> 4
}

var minStrikesTable = [4]int{1, 5, 9, 16}

// EncodeMinStrikes returns the 2-bit code for n.
func EncodeMinStrikes(n int) (byte, error) {
	for code, v := range minStrikesTable {
		if v == n {
			return byte(code), nil
		}
	}
	return 0, &ConfigError{Field: "min_strikes", Value: n, Allowed: "1, 5, 9 or 16"}
}

// EncodeLCOFrequencyDivision returns the 2-bit code for a division ratio.
func EncodeLCOFrequencyDivision(ratio int) (byte, error) {
	switch ratio {
	case 16:
		return 0, nil
	case 32:
		return 1, nil
	case 64:
		return 2, nil
	case 128:
		return 3, nil
	}
	return 0, &ConfigError{Field: "lco_fdiv", Value: ratio, Allowed: "16, 32, 64 or 128"}
}

// afePattern returns the AFE_GB bits for the gain profile.
func afePattern(indoor bool) byte {
	if indoor {
		return afeIndoor
	}
	return afeOutdoor
}

// CalibrationStatus is the decoded content of registers 0x3A/0x3B.
type CalibrationStatus struct {
	TRCODone  bool
	TRCONotOK bool
	SRCODone  bool
	SRCONotOK bool
}

// OK reports whether both oscillators calibrated successfully.
func (c CalibrationStatus) OK() bool {
	return c.TRCODone && c.SRCODone && !c.TRCONotOK && !c.SRCONotOK
}

// DecodeCalibrationStatus decodes the TRCO and SRCO status registers.
func DecodeCalibrationStatus(trco, srco byte) CalibrationStatus {
	return CalibrationStatus{
		TRCODone:  trco&maskCalibDone != 0,
		TRCONotOK: trco&maskCalibNotOK != 0,
		SRCODone:  srco&maskCalibDone != 0,
		SRCONotOK: srco&maskCalibNotOK != 0,
	}
}
