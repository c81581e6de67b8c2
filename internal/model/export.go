package model

import "time"

const (
	ExportPending  = "pending"
	ExportComplete = "complete"
	ExportFailed   = "failed"
)

type Export struct {
	ID             string     `json:"id"`
	OrganizationID string     `json:"organization_id"`
	Format         string     `json:"format"`
	Status         string     `json:"status"`
	ObjectKey      string     `json:"object_key,omitempty"`
	SizeBytes      int64      `json:"size_bytes"`
	Error          string     `json:"error,omitempty"`
	CompletedAt    *time.Time `json:"completed_at,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
}

// ExportFormats lists the formats an export can be requested in.
var ExportFormats = []string{"csv", "json"}
