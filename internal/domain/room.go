package domain

import "time"

// Room is a bookable hotel room
type Room struct {
	ID          string    `json:"id"`
	Number      string    `json:"number"`
	Name        string    `json:"name"`
	Type        string    `json:"type"`
	Description string    `json:"description,omitempty"`
	Price       float64   `json:"price"`
	Capacity    int       `json:"capacity"`
	Amenities   []string  `json:"amenities"`
	Available   bool      `json:"available"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Validate checks the fields an admin must supply
func (r *Room) Validate() error {
	if r.Number == "" {
		return NewValidationError("number", "is required")
	}
	if r.Name == "" {
		return NewValidationError("name", "is required")
	}
	if r.Type == "" {
		return NewValidationError("type", "is required")
	}
	if r.Price <= 0 {
		return NewValidationError("price", "must be greater than zero")
	}
	if r.Capacity < 1 {
		return NewValidationError("capacity", "must be at least 1")
	}
	return nil
}

// RoomFilter narrows room listings
type RoomFilter struct {
	Type          string
	MinCapacity   int
	OnlyAvailable bool
	Limit         int
	Offset        int
}
