package as3935

// InterruptReason is the classified cause of an IRQ.
type InterruptReason string

const (
	ReasonNoiseTooHigh      InterruptReason = "NOISE_TOO_HIGH"
	ReasonDisturberDetected InterruptReason = "DISTURBER_DETECTED"
	ReasonLightningDetected InterruptReason = "LIGHTNING_DETECTED"
	ReasonUnknown           InterruptReason = "UNKNOWN"
)

// Classify maps the INT field to a reason. Several bits may be set at
// once; noise wins over disturber, disturber over lightning.
func Classify(bits byte) InterruptReason {
	bits &= maskInterrupt
	switch {
	case bits&IntNoise != 0:
		return ReasonNoiseTooHigh
	case bits&IntDisturber != 0:
		return ReasonDisturberDetected
	case bits&IntLightning != 0:
		return ReasonLightningDetected
	}
	return ReasonUnknown
}

// Code returns the INT bit for the reason, or 0 for Unknown.
func (r InterruptReason) Code() byte {
	switch r {
	case ReasonNoiseTooHigh:
		return IntNoise
	case ReasonDisturberDetected:
		return IntDisturber
	case ReasonLightningDetected:
		return IntLightning
	}
	return 0
}
