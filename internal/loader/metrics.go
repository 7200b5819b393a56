package loader

import (
	"fmt"
	"time"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

var counts = message.NewPrinter(language.English)

// formatCount renders n with thousands separators.
func formatCount(n int64) string {
	return counts.Sprintf("%d", n)
}

// formatElapsed renders d as HH:MM:SS.mmm.
func formatElapsed(d time.Duration) string {
	ms := d.Milliseconds()
	return fmt.Sprintf("%02d:%02d:%02d.%03d",
		ms/3_600_000, (ms/60_000)%60, (ms/1000)%60, ms%1000)
}

// formatRate renders rows per second with two decimals.
func formatRate(rows int64, d time.Duration) string {
	secs := d.Seconds()
	if secs <= 0 {
		return "0.00"
	}
	return fmt.Sprintf("%.2f", float64(rows)/secs)
}
