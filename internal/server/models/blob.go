// Package models defines server-side data models persisted in the database.
package models

import "time"

// Scan status values recorded on a Blob by the virus-scanning pipeline.
const (
	ScanStatusPending   = "pending"
	ScanStatusScanning  = "scanning"
	ScanStatusClean     = "clean"
	ScanStatusInfected  = "infected"
	ScanStatusError     = "error"
	ScanStatusUnchecked = "unchecked"
)

// Blob describes one physically stored, content-addressed object
// (storage_files). Many file entries may reference the same blob; RefCount
// tracks how many live entries do. The blob row and the physical object are
// created and deleted together: the row must never outlive a missing object.
type Blob struct {
	// ID is the opaque row identifier.
	ID string
	// ContentHash is the hex SHA-256 of the content; unique across rows.
	ContentHash string
	// ObjectKey is the location of the payload in the object store.
	ObjectKey string
	// Size is the payload size in bytes.
	Size int64
	// RefCount is the number of live file entries referencing this blob.
	RefCount int64

	// ScanStatus / ScanResult / ScannedAt are set by the scanning pipeline.
	ScanStatus *string
	ScanResult *string
	ScannedAt  *time.Time

	// MimeType is the detected media type, if known.
	MimeType *string
	// IsEncrypted marks payloads stored encrypted at rest.
	IsEncrypted bool
}
