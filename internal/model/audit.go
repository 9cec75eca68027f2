package model

import (
	"time"

	"github.com/google/uuid"
)

// AuditAction represents the kind of operation an audit log records.
type AuditAction string

const (
	ActionCreate   AuditAction = "CREATE"
	ActionUpdate   AuditAction = "UPDATE"
	ActionDelete   AuditAction = "DELETE"
	ActionRead     AuditAction = "READ"
	ActionLogin    AuditAction = "LOGIN"
	ActionLogout   AuditAction = "LOGOUT"
	ActionRollback AuditAction = "ROLLBACK"
)

// ValidAuditAction reports whether a is a known action value.
func ValidAuditAction(a AuditAction) bool {
	switch a {
	case ActionCreate, ActionUpdate, ActionDelete, ActionRead,
		ActionLogin, ActionLogout, ActionRollback:
		return true
	}
	return false
}

// AuditStatus represents the outcome recorded on an audit log row.
type AuditStatus string

const (
	AuditSuccess    AuditStatus = "SUCCESS"
	AuditFailed     AuditStatus = "FAILED"
	AuditRolledBack AuditStatus = "ROLLED_BACK"
	AuditPending    AuditStatus = "PENDING"
)

// ValidAuditStatus reports whether s is a known status value.
func ValidAuditStatus(s AuditStatus) bool {
	switch s {
	case AuditSuccess, AuditFailed, AuditRolledBack, AuditPending:
		return true
	}
	return false
}

// Changes carries optional before/after snapshots of an entity mutation.
// The shapes are free-form; the round-trip contract is field equality
// after JSON deserialization, not a typed schema.
type Changes struct {
	Before map[string]any `json:"before,omitempty"`
	After  map[string]any `json:"after,omitempty"`
}

// AuditLog is an immutable audit trail entry. Rows are never edited except
// to transition Status to ROLLED_BACK via the compensation path.
type AuditLog struct {
	ID            uuid.UUID      `json:"id"`
	Action        AuditAction    `json:"action"`
	EntityType    string         `json:"entityType"`
	EntityID      string         `json:"entityId"`
	UserID        *string        `json:"userId,omitempty"`
	Status        AuditStatus    `json:"status"`
	Metadata      map[string]any `json:"metadata,omitempty"`
	Changes       *Changes       `json:"changes,omitempty"`
	IPAddress     *string        `json:"ipAddress,omitempty"`
	UserAgent     *string        `json:"userAgent,omitempty"`
	CorrelationID string         `json:"correlationId"`
	ServiceName   string         `json:"serviceName"`
	CreatedAt     time.Time      `json:"createdAt"`
}
