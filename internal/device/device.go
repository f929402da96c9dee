// Package device holds the pool of simulation targets: known devices, their
// persisted display names and the sinks that deliver coordinates to them.
package device

import (
	"errors"
	"time"
)

// Kind is the device platform.
type Kind string

const (
	KindIOS     Kind = "ios"
	KindAndroid Kind = "android"
	KindMock    Kind = "mock"
)

// Device is one registered simulation target.
type Device struct {
	UDID       string    `json:"udid"`
	Kind       Kind      `json:"kind"`
	RealName   string    `json:"real_name,omitempty"`
	CustomName string    `json:"custom_name,omitempty"`
	LastSeen   time.Time `json:"last_seen,omitempty"`
}

// DisplayName prefers the user-assigned name over the reported one.
func (d Device) DisplayName() string {
	if d.CustomName != "" {
		return d.CustomName
	}
	if d.RealName != "" {
		return d.RealName
	}
	return d.UDID
}

var ErrUnknownDevice = errors.New("unknown device")
