package models

import "time"

// FileEntry is one user-visible file or folder node (user_files). Entries
// form a forest per owner through ParentID; a nil ParentID means the entry
// sits at the owner's root. Folders never carry a BlobID. User-facing delete
// is soft (DeletedAt set); rows are hard-deleted only by the expiration
// sweep or a permanent purge.
type FileEntry struct {
	ID      string
	OwnerID string
	// ParentID references a live folder of the same owner, or nil for root.
	ParentID *string
	Name     string
	IsFolder bool
	// BlobID is set for files and nil for folders.
	BlobID *string

	CreatedAt time.Time
	// ExpiresAt, when set, makes the entry eligible for the expiration sweep.
	ExpiresAt *time.Time
	// DeletedAt is nil while the entry is live.
	DeletedAt *time.Time
}

// Live reports whether the entry has not been soft-deleted.
func (e *FileEntry) Live() bool {
	return e.DeletedAt == nil
}
