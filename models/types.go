package models

import "time"

type ProcessingTimings struct {
	RequestID   string
	QueryDecode time.Duration
	GalleryLoad time.Duration
	Scan        time.Duration
	Total       time.Duration

	Scanned int
	Skipped int
	Matched int
}
