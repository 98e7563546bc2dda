package models

import "time"

// OwnerFacts holds denormalized per-owner usage figures (user_facts),
// recomputed best effort after structural operations. The numbers may lag
// behind the live tables briefly; they are advisory, not authoritative.
type OwnerFacts struct {
	OwnerID    string
	TotalFiles int64
	TotalSize  int64
	UpdatedAt  time.Time
}
