package classifier

import "time"

// NoiseLowerer is the subset of *as3935.Device the noise controller drives.
type NoiseLowerer interface {
	LowerNoiseFloor(floor uint8) (uint8, error)
}

// NoiseSource reports when noise was last seen. *Classifier implements it.
type NoiseSource interface {
	LastNoise() time.Time
}

// NoiseController walks the noise floor back down after a quiet period.
// The classifier only ever raises it.
type NoiseController struct {
	dev        NoiseLowerer
	src        NoiseSource
	relaxAfter time.Duration
	minFloor   uint8
	lastRelax  time.Time
}

// NewNoiseController creates a controller. relaxAfter == 0 disables it.
// start seeds the quiet period so nothing is lowered right after boot.
func NewNoiseController(dev NoiseLowerer, src NoiseSource, relaxAfter time.Duration, minFloor uint8, start time.Time) *NoiseController {
	return &NoiseController{
		dev:        dev,
		src:        src,
		relaxAfter: relaxAfter,
		minFloor:   minFloor,
		lastRelax:  start,
	}
}

// Tick lowers the noise floor by one step if no noise was seen for
// relaxAfter since the later of the last noise event and the last relax.
// ran reports whether the device was asked; level is the resulting floor.
func (n *NoiseController) Tick(now time.Time) (level uint8, ran bool, err error) {
	if n.relaxAfter <= 0 {
		return 0, false, nil
	}
	since := n.lastRelax
	if last := n.src.LastNoise(); last.After(since) {
		since = last
	}
	if now.Sub(since) < n.relaxAfter {
		return 0, false, nil
	}
	n.lastRelax = now
	level, err = n.dev.LowerNoiseFloor(n.minFloor)
	if err != nil {
		return 0, true, err
	}
	Logf("classifier: quiet for %v, noise floor now %d", now.Sub(since), level)
	return level, true, nil
}
