// Package geo models the device geolocation capability that gates visit
// creation and finalization.
package geo

import (
	"context"

	"github.com/ruta-crm/ruta-crm/internal/shared"
)

// Position is a captured device location.
type Position struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Accuracy  float64 `json:"accuracy"`
}

// Provider suspends until the device answers the position request. The three
// outcomes are: a position, shared.ErrGeolocationDenied, or
// shared.ErrGeolocationRequired while the capability is still pending.
type Provider interface {
	RequestPosition(ctx context.Context) (Position, error)
}

// Static always returns a fixed position. Used in development and tests.
type Static struct {
	Position Position
}

// RequestPosition implements Provider.
func (s Static) RequestPosition(ctx context.Context) (Position, error) {
	return s.Position, nil
}

// Denied always refuses the capability.
type Denied struct{}

// RequestPosition implements Provider.
func (Denied) RequestPosition(ctx context.Context) (Position, error) {
	return Position{}, shared.ErrGeolocationDenied
}

// Pending models a device that has not answered yet.
type Pending struct{}

// RequestPosition implements Provider.
func (Pending) RequestPosition(ctx context.Context) (Position, error) {
	return Position{}, shared.ErrGeolocationRequired
}
