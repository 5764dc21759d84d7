package delivery

import (
	"context"
	"sync"
)

// FakeUploader records batches for test assertions.
type FakeUploader struct {
	mu sync.Mutex

	// Batches contains every batch that was accepted.
	Batches []Batch

	// Calls counts Upload invocations, including failed ones.
	Calls int

	// UploadError, if set, will be returned by Upload.
	UploadError error
}

// NewFakeUploader creates a FakeUploader for testing.
func NewFakeUploader() *FakeUploader {
	return &FakeUploader{}
}

// Upload records the batch unless UploadError is set.
func (f *FakeUploader) Upload(ctx context.Context, batch Batch) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Calls++
	if f.UploadError != nil {
		return f.UploadError
	}
	f.Batches = append(f.Batches, batch)
	return nil
}

// SetError changes the error returned by later calls.
func (f *FakeUploader) SetError(err error) {
	f.mu.Lock()
	f.UploadError = err
	f.mu.Unlock()
}

// Sent returns the total number of accepted entries.
func (f *FakeUploader) Sent() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, b := range f.Batches {
		n += len(b.Strikes)
	}
	return n
}
