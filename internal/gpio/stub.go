//go:build !linux

package gpio

import "errors"

var errUnsupported = errors.New("gpio: not supported on this platform (requires Linux)")

// RealIRQ is not available on non-Linux platforms.
type RealIRQ struct{}

// NewRealIRQ returns an error on non-Linux platforms.
func NewRealIRQ(chipName string, pin int, handler func()) (*RealIRQ, error) {
	return nil, errUnsupported
}

// Close is not implemented on non-Linux platforms.
func (r *RealIRQ) Close() error {
	return nil
}

// RealOutput is not available on non-Linux platforms.
type RealOutput struct{}

// NewRealOutput returns an error on non-Linux platforms.
func NewRealOutput(chipName string, pin int, initial int) (*RealOutput, error) {
	return nil, errUnsupported
}

// SetValue is not implemented on non-Linux platforms.
func (o *RealOutput) SetValue(v int) error {
	return errUnsupported
}

// Close is not implemented on non-Linux platforms.
func (o *RealOutput) Close() error {
	return nil
}
