// FilePath: internal/models/models.device.go
package models

import "time"

// DeviceStatus is the presence state of a device.
type DeviceStatus string

const (
	StatusOnline  DeviceStatus = "ONLINE"
	StatusOffline DeviceStatus = "OFFLINE"
)

// DefaultDeviceID is the implicit device of a dashboard when an address
// carries no device token.
const DefaultDeviceID = 0

// Device is one piece of hardware attached to a dashboard. A device has at
// most one live hardware connection at a time; a second login for the same
// device supersedes the first.
type Device struct {
	ID             int          `json:"id" readxs:"*"`
	Name           string       `json:"name" readxs:"*"`
	BoardType      string       `json:"boardType" readxs:"*"`
	Token          string       `json:"token,omitempty" readxs:"admin,owner"`
	Status         DeviceStatus `json:"status" readxs:"*"`
	ConnectedAt    time.Time    `json:"connectedAt,omitempty" readxs:"*"`
	DisconnectedAt time.Time    `json:"disconnectedAt,omitempty" readxs:"*"`
}

// Tag is a named, user-editable set of device ids usable as a routing
// target. Tag ids live in their own id range (see AddressKindOf).
type Tag struct {
	ID        int    `json:"id"`
	Name      string `json:"name"`
	DeviceIDs []int  `json:"deviceIds"`
}
