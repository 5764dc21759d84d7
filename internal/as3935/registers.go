package as3935

// Register addresses.
const (
	RegAFE           = 0x00 // AFE_GB, PWD
	RegThreshold     = 0x01 // NF_LEV, WDTH
	RegLightning     = 0x02 // CL_STAT, MIN_NUM_LIGH, SREJ
	RegInterrupt     = 0x03 // LCO_FDIV, MASK_DIST, INT
	RegEnergyLSB     = 0x04
	RegEnergyMSB     = 0x05
	RegEnergyMMSB    = 0x06
	RegDistance      = 0x07
	RegTuning        = 0x08 // DISP_LCO, DISP_SRCO, DISP_TRCO, TUN_CAP
	RegTRCOStatus    = 0x3A
	RegSRCOStatus    = 0x3B
	RegPresetDefault = 0x3C
	RegCalibRCO      = 0x3D
)

// snapshotLen covers registers 0x00..0x08.
const snapshotLen = 9

// DirectCommand is written to RegPresetDefault or RegCalibRCO to trigger
// the command.
const DirectCommand = 0x96

// Bit masks.
const (
	maskPowerDown   = 0x01
	maskAFEGain     = 0x3E
	maskNoiseFloor  = 0x70
	maskWatchdog    = 0x0F
	maskClearStat   = 0x40
	maskMinStrikes  = 0x30
	maskSpikeReject = 0x0F
	maskLCOFdiv     = 0xC0
	maskMaskDist    = 0x20
	maskInterrupt   = 0x0F
	maskEnergyMMSB  = 0x1F
	maskDistance    = 0x3F
	maskIRQOutput   = 0xE0
	maskDispSRCO    = 0x40
	maskTuningCap   = 0x0F
	maskCalibDone   = 0x80
	maskCalibNotOK  = 0x40
)

// AFE gain patterns for the AFE_GB field, already shifted into place.
const (
	afeIndoor  = 0x24
	afeOutdoor = 0x1C
)

// Interrupt bits of the INT field.
const (
	IntNoise     = 0x01
	IntDisturber = 0x04
	IntLightning = 0x08
)

// DistanceOutOfRange is the raw distance value meaning "storm out of range".
const DistanceOutOfRange = 0x3F

// Field is a bit field inside one register.
type Field struct {
	Reg   byte
	Mask  byte
	Shift uint
}

// Fields written by the driver.
var (
	FieldPowerDown  = Field{Reg: RegAFE, Mask: maskPowerDown}
	FieldAFEGain    = Field{Reg: RegAFE, Mask: maskAFEGain}
	FieldNoiseFloor = Field{Reg: RegThreshold, Mask: maskNoiseFloor, Shift: 4}
	FieldWatchdog   = Field{Reg: RegThreshold, Mask: maskWatchdog}
	FieldClearStat  = Field{Reg: RegLightning, Mask: maskClearStat, Shift: 6}
	FieldMinStrikes = Field{Reg: RegLightning, Mask: maskMinStrikes, Shift: 4}
	FieldSpikeRej   = Field{Reg: RegLightning, Mask: maskSpikeReject}
	FieldLCOFdiv    = Field{Reg: RegInterrupt, Mask: maskLCOFdiv, Shift: 6}
	FieldMaskDist   = Field{Reg: RegInterrupt, Mask: maskMaskDist, Shift: 5}
	FieldIRQOutput  = Field{Reg: RegTuning, Mask: maskIRQOutput}
	FieldDispSRCO   = Field{Reg: RegTuning, Mask: maskDispSRCO, Shift: 6}
	FieldTuningCap  = Field{Reg: RegTuning, Mask: maskTuningCap}
)

// Apply returns current with the field replaced by v. Bits outside the
// field are preserved.
func (f Field) Apply(current, v byte) byte {
	return current&^f.Mask | (v<<f.Shift)&f.Mask
}

// Get extracts the field from a register value.
func (f Field) Get(b byte) byte {
	return (b & f.Mask) >> f.Shift
}

// Max is the largest value the field can hold.
func (f Field) Max() byte {
	return f.Mask >> f.Shift
}
