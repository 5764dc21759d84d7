package delivery

import (
	"context"
	"log"
)

// LogUploader logs each entry and discards the batch. Used when upload is
// disabled so strikes are still visible on the console.
type LogUploader struct{}

// Upload logs every entry and reports success.
func (LogUploader) Upload(ctx context.Context, batch Batch) error {
	for _, e := range batch.Strikes {
		if e.Distance != nil {
			log.Printf("strike: distance=%dkm energy=%d noise_floor=%d age=%ds",
				*e.Distance, e.Energy, e.NoiseFloor, e.ReadSecondsAgo)
		} else {
			log.Printf("strike: distance=out-of-range energy=%d noise_floor=%d age=%ds",
				e.Energy, e.NoiseFloor, e.ReadSecondsAgo)
		}
	}
	return nil
}
