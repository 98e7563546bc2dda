package models

import "time"

// AuditEventType enumerates the security-relevant events recorded in the
// audit log. The set is closed; new values require a schema review.
type AuditEventType string

const (
	AuditUserLogin     AuditEventType = "user_login"
	AuditUserRegister  AuditEventType = "user_register"
	AuditKeyGeneration AuditEventType = "key_generation"
	AuditFileEncrypt   AuditEventType = "file_encrypt"
	AuditFileUpload    AuditEventType = "file_upload"
	AuditFileDownload  AuditEventType = "file_download"
	AuditFileDecrypt   AuditEventType = "file_decrypt"
	AuditFileAccess    AuditEventType = "file_access"
	AuditFileDelete    AuditEventType = "file_delete"
	AuditShareCreate   AuditEventType = "share_create"
	AuditShareRevoke   AuditEventType = "share_revoke"
	AuditShareAccess   AuditEventType = "share_access"
	AuditSystemError   AuditEventType = "system_error"
)

// AuditEvent is an append-only audit_logs row. Events are recorded best
// effort outside the transaction that produced them and are never mutated.
type AuditEvent struct {
	ID         string
	EventType  AuditEventType
	ActorID    *string
	ResourceID *string
	Action     string
	Status     string
	// Details is an opaque structured payload, serialized JSON if present.
	Details    *string
	SourceAddr *string
	Timestamp  time.Time
}
