package models

import (
	"encoding/json"
	"time"
)

// Actions recorded by the gateway
const (
	AuditActionSessionCreate  = "session_create"
	AuditActionSessionDestroy = "session_destroy"
	AuditActionSessionRevoke  = "session_revoke_all"
	AuditActionIPBlock        = "ip_block"
	AuditActionRequestDenied  = "request_denied"
)

// Resources
const (
	AuditResourceSession = "session"
	AuditResourceIP      = "ip_address"
	AuditResourceRequest = "request"
)

// AuditEvent is an immutable security event. Events are never updated; they
// disappear only when their retention TTL lapses.
type AuditEvent struct {
	ID         string        `json:"id"`
	UserID     string        `json:"user_id,omitempty"`
	Action     string        `json:"action"`
	Resource   string        `json:"resource"`
	ResourceID *string       `json:"resource_id,omitempty"`
	IPAddress  string        `json:"ip_address,omitempty"`
	UserAgent  string        `json:"user_agent,omitempty"`
	Timestamp  time.Time     `json:"timestamp"`
	Success    bool          `json:"success"`
	Details    AuditMetadata `json:"details,omitempty"`
}

// Day returns the UTC day bucket the event belongs to (YYYY-MM-DD).
func (e *AuditEvent) Day() string {
	return e.Timestamp.UTC().Format(time.DateOnly)
}

// AuditMetadata holds the unstructured tail of an audit event
type AuditMetadata map[string]interface{}

// MarshalJSON implements json.Marshaler
func (am AuditMetadata) MarshalJSON() ([]byte, error) {
	if am == nil {
		return []byte("null"), nil
	}
	return json.Marshal(map[string]interface{}(am))
}

// UnmarshalJSON implements json.Unmarshaler
func (am *AuditMetadata) UnmarshalJSON(data []byte) error {
	var m map[string]interface{}
	if err := json.Unmarshal(data, &m); err != nil {
		return err
	}
	*am = AuditMetadata(m)
	return nil
}

// NewDenialMetadata describes a request the gateway turned away.
func NewDenialMetadata(reason, method, path string, policy string) AuditMetadata {
	metadata := AuditMetadata{
		"reason": reason,
		"method": method,
		"path":   path,
	}
	if policy != "" {
		metadata["rate_limit_policy"] = policy
	}
	return metadata
}
