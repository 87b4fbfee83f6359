package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/anoirbs/hotel-sub000/internal/domain"
)

// MemoryBookingRepository is a BookingRepository for development and tests.
// A single mutex makes check-and-insert atomic, so it upholds the same
// uniqueness and no-overlap guarantees as the PostgreSQL schema.
type MemoryBookingRepository struct {
	mu    sync.RWMutex
	byID  map[string]*domain.Booking
	byRef map[string]string
}

func NewMemoryBookingRepository() *MemoryBookingRepository {
	return &MemoryBookingRepository{
		byID:  make(map[string]*domain.Booking),
		byRef: make(map[string]string),
	}
}

func copyBooking(b *domain.Booking) *domain.Booking {
	c := *b
	return &c
}

func (r *MemoryBookingRepository) FindByPaymentReference(_ context.Context, ref string) (*domain.Booking, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.byRef[ref]
	if !ok {
		return nil, nil
	}
	return copyBooking(r.byID[id]), nil
}

func (r *MemoryBookingRepository) Insert(_ context.Context, b *domain.Booking) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.byRef[b.PaymentReference]; exists {
		return domain.ErrDuplicateKey
	}
	if b.IsActive() && r.overlapsLocked(b.RoomID, b.Range(), b.ID) {
		return domain.ErrRoomUnavailable
	}

	r.byID[b.ID] = copyBooking(b)
	r.byRef[b.PaymentReference] = b.ID
	return nil
}

func (r *MemoryBookingRepository) overlapsLocked(roomID string, dr domain.DateRange, excludeID string) bool {
	for _, existing := range r.byID {
		if existing.RoomID == roomID && existing.ID != excludeID && existing.IsActive() && existing.Range().Overlaps(dr) {
			return true
		}
	}
	return false
}

func (r *MemoryBookingRepository) FindOverlapping(_ context.Context, roomID string, dr domain.DateRange, excludeStatuses []domain.BookingStatus, excludeBookingID string) ([]*domain.Booking, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*domain.Booking
	for _, b := range r.byID {
		if b.RoomID != roomID || b.ID == excludeBookingID || containsStatus(excludeStatuses, b.Status) {
			continue
		}
		if b.Range().Overlaps(dr) {
			out = append(out, copyBooking(b))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CheckIn.Before(out[j].CheckIn) })
	return out, nil
}

func containsStatus(list []domain.BookingStatus, s domain.BookingStatus) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func (r *MemoryBookingRepository) GetByID(_ context.Context, id string) (*domain.Booking, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	b, ok := r.byID[id]
	if !ok {
		return nil, domain.NewNotFound("booking", id)
	}
	return copyBooking(b), nil
}

func (r *MemoryBookingRepository) List(_ context.Context, filter domain.BookingFilter) ([]*domain.Booking, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*domain.Booking
	for _, b := range r.byID {
		if filter.UserID != "" && b.UserID != filter.UserID {
			continue
		}
		if filter.RoomID != "" && b.RoomID != filter.RoomID {
			continue
		}
		if filter.Status != "" && b.Status != filter.Status {
			continue
		}
		out = append(out, copyBooking(b))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return page(out, filter.Limit, filter.Offset), nil
}

func (r *MemoryBookingRepository) UpdateStatus(_ context.Context, id string, from, to domain.BookingStatus, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	b, ok := r.byID[id]
	if !ok {
		return domain.NewNotFound("booking", id)
	}
	if b.Status != from {
		return domain.ErrInvalidTransition
	}
	b.Status = to
	b.UpdatedAt = at
	return nil
}

func (r *MemoryBookingRepository) UpdateDates(_ context.Context, id string, dr domain.DateRange, totalPrice float64, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	b, ok := r.byID[id]
	if !ok {
		return domain.NewNotFound("booking", id)
	}
	if b.Status != domain.BookingStatusConfirmed {
		return domain.ErrInvalidTransition
	}
	if r.overlapsLocked(b.RoomID, dr, id) {
		return domain.ErrRoomUnavailable
	}
	b.CheckIn, b.CheckOut = dr.CheckIn, dr.CheckOut
	b.TotalPrice = totalPrice
	b.UpdatedAt = at
	return nil
}

func page[T any](items []T, limit, offset int) []T {
	limit = clampLimit(limit)
	if offset < 0 {
		offset = 0
	}
	if offset >= len(items) {
		return nil
	}
	end := min(offset+limit, len(items))
	return items[offset:end]
}

// MemoryRoomRepository is a RoomRepository for development and tests
type MemoryRoomRepository struct {
	mu    sync.RWMutex
	rooms map[string]*domain.Room
}

func NewMemoryRoomRepository() *MemoryRoomRepository {
	return &MemoryRoomRepository{rooms: make(map[string]*domain.Room)}
}

func copyRoom(r *domain.Room) *domain.Room {
	c := *r
	c.Amenities = append([]string{}, r.Amenities...)
	return &c
}

func (r *MemoryRoomRepository) numberTakenLocked(number, exceptID string) bool {
	for _, room := range r.rooms {
		if room.Number == number && room.ID != exceptID {
			return true
		}
	}
	return false
}

func (r *MemoryRoomRepository) Create(_ context.Context, room *domain.Room) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.numberTakenLocked(room.Number, "") {
		return domain.ErrRoomNumberTaken
	}
	r.rooms[room.ID] = copyRoom(room)
	return nil
}

func (r *MemoryRoomRepository) GetByID(_ context.Context, id string) (*domain.Room, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	room, ok := r.rooms[id]
	if !ok {
		return nil, domain.NewNotFound("room", id)
	}
	return copyRoom(room), nil
}

func (r *MemoryRoomRepository) List(_ context.Context, filter domain.RoomFilter) ([]*domain.Room, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*domain.Room
	for _, room := range r.rooms {
		if filter.Type != "" && room.Type != filter.Type {
			continue
		}
		if room.Capacity < filter.MinCapacity {
			continue
		}
		if filter.OnlyAvailable && !room.Available {
			continue
		}
		out = append(out, copyRoom(room))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Number < out[j].Number })
	return page(out, filter.Limit, filter.Offset), nil
}

func (r *MemoryRoomRepository) Update(_ context.Context, room *domain.Room) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.rooms[room.ID]; !ok {
		return domain.NewNotFound("room", room.ID)
	}
	if r.numberTakenLocked(room.Number, room.ID) {
		return domain.ErrRoomNumberTaken
	}
	r.rooms[room.ID] = copyRoom(room)
	return nil
}

// MemoryUserRepository is a UserRepository for development and tests
type MemoryUserRepository struct {
	mu      sync.RWMutex
	byID    map[string]*domain.User
	byEmail map[string]string
}

func NewMemoryUserRepository() *MemoryUserRepository {
	return &MemoryUserRepository{
		byID:    make(map[string]*domain.User),
		byEmail: make(map[string]string),
	}
}

func (r *MemoryUserRepository) Create(_ context.Context, u *domain.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.byEmail[u.Email]; exists {
		return domain.ErrEmailTaken
	}
	c := *u
	r.byID[u.ID] = &c
	r.byEmail[u.Email] = u.ID
	return nil
}

func (r *MemoryUserRepository) GetByID(_ context.Context, id string) (*domain.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	u, ok := r.byID[id]
	if !ok {
		return nil, domain.ErrUserNotFound
	}
	c := *u
	return &c, nil
}

func (r *MemoryUserRepository) GetByEmail(_ context.Context, email string) (*domain.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.byEmail[email]
	if !ok {
		return nil, domain.ErrUserNotFound
	}
	c := *r.byID[id]
	return &c, nil
}
