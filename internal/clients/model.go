package clients

import "time"

// Client is a person or business visited by commercials. Deactivated
// clients are kept for history; they only stop accepting new visits.
type Client struct {
	ID         int64    `json:"id"`
	NationalID *string  `json:"national_id,omitempty"`
	Name       string   `json:"name"`
	Address    string   `json:"address"`
	Phone      *string  `json:"phone,omitempty"`
	Email      *string  `json:"email,omitempty"`
	Note       *string  `json:"note,omitempty"`
	Active     bool     `json:"active"`
	Latitude   *float64 `json:"latitude,omitempty"`
	Longitude  *float64 `json:"longitude,omitempty"`
	CreatedBy  int64    `json:"created_by"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
