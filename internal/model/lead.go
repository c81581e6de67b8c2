package model

import "time"

type Lead struct {
	ID             string    `json:"id"`
	OrganizationID string    `json:"organization_id"`
	Name           string    `json:"name"`
	Email          string    `json:"email"`
	Source         string    `json:"source"`
	CreatedAt      time.Time `json:"created_at"`
}
