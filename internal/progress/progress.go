package progress

import (
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
)

const bytesPerGB = 1024 * 1024 * 1024

// Sample is the last recorded point of a transfer: cumulative bytes at a moment.
type Sample struct {
	Downloaded int64
	At         time.Time
}

// Estimate holds the values derived from two consecutive samples.
type Estimate struct {
	// Percent is always within [0, 100].
	Percent float64

	// Speed is the instantaneous rate in bytes per second.
	// Zero means no rate could be derived.
	Speed float64

	// ETA is the remaining time in seconds. Valid only when Speed > 0.
	ETA float64
}

// HasRate reports whether Speed and ETA carry meaningful values.
func (e Estimate) HasRate() bool {
	return e.Speed > 0
}

// Percent returns downloaded/total as a percentage clamped to [0, 100].
// An unknown total (<= 0) yields 0.
func Percent(downloaded, total int64) float64 {
	if total <= 0 {
		return 0
	}
	p := float64(downloaded) / float64(total) * 100
	switch {
	case p < 0:
		return 0
	case p > 100:
		return 100
	}
	return p
}

// Compute derives percent, speed and ETA from the prior sample and a new reading.
//
// Speed is a point sample between the two readings, not a smoothed average.
// It is only computed when the total is known, time advanced and bytes grew.
func Compute(prev Sample, downloaded, total int64, now time.Time) Estimate {
	e := Estimate{Percent: Percent(downloaded, total)}

	elapsed := now.Sub(prev.At).Seconds()
	delta := downloaded - prev.Downloaded
	if total > 0 && elapsed > 0 && delta > 0 {
		e.Speed = float64(delta) / elapsed
	}

	if e.Speed > 0 {
		remaining := total - downloaded
		if remaining < 0 {
			remaining = 0
		}
		e.ETA = float64(remaining) / e.Speed
	}

	return e
}

// FormatETA renders a number of seconds as a seconds, minutes or hours bucket.
func FormatETA(seconds float64) string {
	switch {
	case seconds < 60:
		return fmt.Sprintf("%.0f sec", seconds)
	case seconds < 3600:
		return fmt.Sprintf("%.1f min", seconds/60)
	default:
		return fmt.Sprintf("%.1f hours", seconds/3600)
	}
}

// FormatSpeed renders a byte rate for display, e.g. "12 MB/s".
func FormatSpeed(bytesPerSec float64) string {
	if bytesPerSec <= 0 {
		return "0 B/s"
	}
	return humanize.Bytes(uint64(bytesPerSec)) + "/s"
}

// FormatBytes is a display helper shared with log lines.
func FormatBytes(b int64) string {
	if b < 0 {
		b = 0
	}
	return humanize.IBytes(uint64(b))
}

// GB converts bytes to binary gigabytes.
func GB(bytes int64) float64 {
	if bytes <= 0 {
		return 0
	}
	return float64(bytes) / bytesPerGB
}
