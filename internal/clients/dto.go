package clients

// CreateClientRequest carries the fields accepted on client creation.
// Name and address are mandatory; everything else is optional.
type CreateClientRequest struct {
	NationalID *string  `json:"national_id" validate:"omitempty,max=32"`
	Name       string   `json:"name" validate:"required,max=200"`
	Address    string   `json:"address" validate:"required,max=300"`
	Phone      *string  `json:"phone" validate:"omitempty,max=40"`
	Email      *string  `json:"email" validate:"omitempty,email"`
	Note       *string  `json:"note"`
	Latitude   *float64 `json:"latitude"`
	Longitude  *float64 `json:"longitude"`
}

// SearchRequest filters the directory listing.
type SearchRequest struct {
	Query  string
	Active *bool
	Limit  int
	Offset int
}
