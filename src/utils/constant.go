package utils

import "time"

// -----------------------------------------------------------------------------

// NPT is Nepal Standard Time. Fixed offset, no DST.
var NPT = time.FixedZone("NPT", 5*3600+45*60)

const (
	DateLayout = "2006-01-02"

	// DefaultRecentSnapshots bounds the in-process index history served to new
	// websocket clients. One trading day at one tick per minute fits.
	DefaultRecentSnapshots = 300
)
