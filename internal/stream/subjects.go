package stream

import "time"

// Stream topology. A single durable stream carries every saga message;
// retention is time-bounded so replays stay possible for a week.
const (
	StreamName     = "AUDIT"
	StreamSubjects = "audit.log.>"
	StreamMaxAge   = 7 * 24 * time.Hour
)

// Saga subjects. The transaction service publishes create and rollback;
// the audit service publishes created and failed.
const (
	SubjectAuditCreate   = "audit.log.create"
	SubjectAuditCreated  = "audit.log.created"
	SubjectAuditFailed   = "audit.log.failed"
	SubjectAuditRollback = "audit.log.rollback"
)

// AuditCreated acknowledges a successfully persisted audit log.
type AuditCreated struct {
	CorrelationID string `json:"correlationId"`
	AuditLogID    string `json:"auditLogId"`
	Success       bool   `json:"success"`
}

// AuditFailed reports that the audit service could not persist an envelope.
type AuditFailed struct {
	CorrelationID string `json:"correlationId"`
	Error         string `json:"error"`
	Success       bool   `json:"success"`
}

// AuditRollback instructs the audit service to mark a saga's rows ROLLED_BACK.
type AuditRollback struct {
	CorrelationID string `json:"correlationId"`
	Reason        string `json:"reason"`
}
