package model

import "time"

// PushSubscription is a browser registered to receive billing notices for an
// organization.
type PushSubscription struct {
	ID             string    `json:"id"`
	OrganizationID string    `json:"organization_id"`
	Endpoint       string    `json:"endpoint"`
	P256dhKey      string    `json:"p256dh_key"`
	AuthKey        string    `json:"auth_key"`
	DeviceName     string    `json:"device_name"`
	CreatedAt      time.Time `json:"created_at"`
}
