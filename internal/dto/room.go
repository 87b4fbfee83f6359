package dto

import (
	"time"

	"github.com/anoirbs/hotel-sub000/internal/domain"
)

// CreateRoomRequest is an admin room definition
type CreateRoomRequest struct {
	Number      string   `json:"number" binding:"required,max=20"`
	Name        string   `json:"name" binding:"required,max=200"`
	Type        string   `json:"type" binding:"required,max=50"`
	Description string   `json:"description,omitempty"`
	Price       float64  `json:"price" binding:"required,gt=0"`
	Capacity    int      `json:"capacity" binding:"required,min=1"`
	Amenities   []string `json:"amenities,omitempty"`
	Available   *bool    `json:"available,omitempty"`
}

// UpdateRoomRequest changes only the fields that are set
type UpdateRoomRequest struct {
	Number      *string   `json:"number,omitempty"`
	Name        *string   `json:"name,omitempty"`
	Type        *string   `json:"type,omitempty"`
	Description *string   `json:"description,omitempty"`
	Price       *float64  `json:"price,omitempty"`
	Capacity    *int      `json:"capacity,omitempty"`
	Amenities   *[]string `json:"amenities,omitempty"`
	Available   *bool     `json:"available,omitempty"`
}

// Apply copies the set fields onto room
func (r *UpdateRoomRequest) Apply(room *domain.Room) {
	if r.Number != nil {
		room.Number = *r.Number
	}
	if r.Name != nil {
		room.Name = *r.Name
	}
	if r.Type != nil {
		room.Type = *r.Type
	}
	if r.Description != nil {
		room.Description = *r.Description
	}
	if r.Price != nil {
		room.Price = *r.Price
	}
	if r.Capacity != nil {
		room.Capacity = *r.Capacity
	}
	if r.Amenities != nil {
		room.Amenities = *r.Amenities
	}
	if r.Available != nil {
		room.Available = *r.Available
	}
}

// RoomListQuery filters the room list. CheckIn and CheckOut together keep
// only rooms free for that stay.
type RoomListQuery struct {
	Type        string `form:"type"`
	MinCapacity int    `form:"min_capacity"`
	CheckIn     string `form:"check_in"`
	CheckOut    string `form:"check_out"`
	Limit       int    `form:"limit"`
	Offset      int    `form:"offset"`

	IncludeUnavailable bool `form:"-"`
}

// AvailabilityQuery is the stay asked about
type AvailabilityQuery struct {
	CheckIn  string `form:"check_in" binding:"required"`
	CheckOut string `form:"check_out" binding:"required"`
}

// RoomResponse is a room in API responses
type RoomResponse struct {
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

// RoomListResponse is one page of rooms
type RoomListResponse struct {
	Rooms  []*RoomResponse `json:"rooms"`
	Limit  int             `json:"limit"`
	Offset int             `json:"offset"`
}

// AvailabilityResponse answers whether a room is free for a stay
type AvailabilityResponse struct {
	RoomID     string  `json:"room_id"`
	CheckIn    string  `json:"check_in"`
	CheckOut   string  `json:"check_out"`
	Available  bool    `json:"available"`
	Nights     int     `json:"nights"`
	TotalPrice float64 `json:"total_price"`
}

// FromRoom converts a domain room
func FromRoom(r *domain.Room) *RoomResponse {
	amenities := r.Amenities
	if amenities == nil {
		amenities = []string{}
	}
	return &RoomResponse{
		ID:          r.ID,
		Number:      r.Number,
		Name:        r.Name,
		Type:        r.Type,
		Description: r.Description,
		Price:       r.Price,
		Capacity:    r.Capacity,
		Amenities:   amenities,
		Available:   r.Available,
		CreatedAt:   r.CreatedAt,
		UpdatedAt:   r.UpdatedAt,
	}
}
