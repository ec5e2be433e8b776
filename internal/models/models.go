// Package models holds the entities persisted by the policy store (§3): scans,
// repositories, policies, violations, and action logs, plus the job-queue and
// webhook-delivery rows that back C8 and C7.
package models

import (
	"encoding/json"
	"time"
)

// ScanStatus is the lifecycle state of a Scan. Transitions strictly
// InProgress -> Completed | Failed; terminal on completion.
type ScanStatus string

const (
	ScanInProgress ScanStatus = "in_progress"
	ScanCompleted  ScanStatus = "completed"
	ScanFailed     ScanStatus = "failed"
)

// Scan represents a single organization-wide evaluation run.
type Scan struct {
	ID          int64      `json:"id" db:"id"`
	Status      ScanStatus `json:"status" db:"status"`
	StartedAt   time.Time  `json:"started_at" db:"started_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty" db:"completed_at"`
	FailureInfo string     `json:"failure_info,omitempty" db:"failure_info"`
}

// Repository is the local projection of a Platform repository owned by the
// organization. platform_repository_id is stable across renames; Name is the
// current full "owner/name".
type Repository struct {
	ID                   int64     `json:"id" db:"id"`
	PlatformRepositoryID int64     `json:"platform_repository_id" db:"platform_repository_id"`
	Name                 string    `json:"name" db:"name"`
	ComplianceStatus     string    `json:"compliance_status" db:"compliance_status"`
	LastScannedAt        *time.Time `json:"last_scanned_at,omitempty" db:"last_scanned_at"`
}

const (
	ComplianceStatusCompliant    = "compliant"
	ComplianceStatusNonCompliant = "non_compliant"
	ComplianceStatusUnknown      = "unknown"
)

// Policy is a declarative policy instance used in scans. ActionSpec is the
// canonical JSON array of action tags, kept for audit purposes (§4.5 step 4).
type Policy struct {
	ID          int64  `json:"id" db:"id"`
	PolicyKey   string `json:"policy_key" db:"policy_key"`
	Description string `json:"description" db:"description"`
	ActionSpec  string `json:"action_spec" db:"action_spec"`
}

// Actions decodes ActionSpec back into a list of action tags.
func (p *Policy) Actions() ([]string, error) {
	var tags []string
	if p.ActionSpec == "" {
		return nil, nil
	}
	if err := json.Unmarshal([]byte(p.ActionSpec), &tags); err != nil {
		return nil, err
	}
	return tags, nil
}

// EncodeActions canonicalizes a list of action tags into ActionSpec's JSON form.
func EncodeActions(tags []string) (string, error) {
	b, err := json.Marshal(tags)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// PolicyViolation is a finding for (scan, repository, policy). Uniqueness on
// (scan_id, repository_id, policy_id) is enforced by the store.
type PolicyViolation struct {
	ID           int64 `json:"id" db:"id"`
	ScanID       int64 `json:"scan_id" db:"scan_id"`
	RepositoryID int64 `json:"repository_id" db:"repository_id"`
	PolicyID     int64 `json:"policy_id" db:"policy_id"`
}

// ViolationDetail joins a PolicyViolation with its Repository and Policy, the
// shape the Action Executor (C6) and the read API consume.
type ViolationDetail struct {
	PolicyViolation
	RepositoryName string `json:"repository_name" db:"repository_name"`
	PolicyKey      string `json:"policy_key" db:"policy_key"`
	PolicyDesc     string `json:"policy_description" db:"policy_description"`
	ActionSpec     string `json:"action_spec" db:"action_spec"`
}

// ActionLogStatus is the outcome of one action attempt.
type ActionLogStatus string

const (
	ActionSuccess ActionLogStatus = "success"
	ActionFailed  ActionLogStatus = "failed"
	ActionSkipped ActionLogStatus = "skipped"
)

// ActionLog is the audit row for one action attempt (§3).
type ActionLog struct {
	ID           int64           `json:"id" db:"id"`
	RepositoryID int64           `json:"repository_id" db:"repository_id"`
	PolicyID     int64           `json:"policy_id" db:"policy_id"`
	ActionType   string          `json:"action_type" db:"action_type"`
	Status       ActionLogStatus `json:"status" db:"status"`
	Timestamp    time.Time       `json:"timestamp" db:"timestamp"`
	Details      string          `json:"details,omitempty" db:"details"`
}

// JobStatus is the lifecycle state of a queued background job (C8).
type JobStatus string

const (
	JobQueued   JobStatus = "queued"
	JobRunning  JobStatus = "running"
	JobDone     JobStatus = "done"
	JobDead     JobStatus = "dead"
)

// Job is one row of the durable, Postgres-backed background queue.
type Job struct {
	ID          string    `json:"id" db:"id"`
	Method      string    `json:"method" db:"method"`
	Args        string    `json:"args" db:"args"` // JSON-encoded
	Status      JobStatus `json:"status" db:"status"`
	Attempts    int       `json:"attempts" db:"attempts"`
	MaxAttempts int       `json:"max_attempts" db:"max_attempts"`
	RunAfter    time.Time `json:"run_after" db:"run_after"`
	LastError   string    `json:"last_error,omitempty" db:"last_error"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time `json:"updated_at" db:"updated_at"`
}

// WebhookDelivery records a processed webhook delivery ID so a redelivered
// event is recognized and not re-enqueued.
type WebhookDelivery struct {
	DeliveryID string    `json:"delivery_id" db:"delivery_id"`
	EventType  string    `json:"event_type" db:"event_type"`
	ReceivedAt time.Time `json:"received_at" db:"received_at"`
}
