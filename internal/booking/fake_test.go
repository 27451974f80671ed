package booking

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/soyeahso/roombot/internal/domain"
)

// memStore is an in-memory Store whose transactions are serialised by a
// single mutex.
type memStore struct {
	mu           sync.Mutex
	rooms        []domain.Room
	reservations []domain.Reservation
	nextID       int64
	failList     error
}

func newMemStore(rooms ...domain.Room) *memStore {
	return &memStore{rooms: rooms}
}

type memTx struct{ s *memStore }

func (s *memStore) WithinTx(_ context.Context, fn func(tx Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	snapshot := append([]domain.Reservation(nil), s.reservations...)
	next := s.nextID
	if err := fn(memTx{s}); err != nil {
		s.reservations = snapshot
		s.nextID = next
		return err
	}
	return nil
}

func (t memTx) LockRoom(_ context.Context, id int64) (domain.Room, error) {
	for _, r := range t.s.rooms {
		if r.ID == id {
			return r, nil
		}
	}
	return domain.Room{}, ErrRoomNotFound
}

func (t memTx) Overlapping(_ context.Context, roomID int64, start, end time.Time) ([]domain.Reservation, error) {
	var out []domain.Reservation
	for _, r := range t.s.reservations {
		if r.RoomID == roomID && r.Active() && r.Overlaps(start, end) {
			out = append(out, r)
		}
	}
	return out, nil
}

func (t memTx) Insert(_ context.Context, r *domain.Reservation) error {
	t.s.nextID++
	r.ID = t.s.nextID
	t.s.reservations = append(t.s.reservations, *r)
	return nil
}

func (s *memStore) ListRooms(context.Context) ([]domain.Room, error) {
	if s.failList != nil {
		return nil, s.failList
	}
	return append([]domain.Room(nil), s.rooms...), nil
}

func (s *memStore) GetRoom(ctx context.Context, id int64) (domain.Room, error) {
	return memTx{s}.LockRoom(ctx, id)
}

func (s *memStore) BookedRoomIDs(_ context.Context, start, end time.Time) (map[int64]bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := map[int64]bool{}
	for _, r := range s.reservations {
		if r.Active() && r.Overlaps(start, end) {
			out[r.RoomID] = true
		}
	}
	return out, nil
}

func (s *memStore) ConfirmedByRequester(_ context.Context, requester string) ([]domain.Reservation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Reservation
	for _, r := range s.reservations {
		if r.RequesterID == requester && r.Active() {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Start.Before(out[j].Start) })
	return out, nil
}

func (s *memStore) ListReservations(_ context.Context, f ReservationFilter) ([]domain.Reservation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Reservation
	for _, r := range s.reservations {
		if f.RequesterID != "" && r.RequesterID != f.RequesterID {
			continue
		}
		if f.Status != "" && r.Status != f.Status {
			continue
		}
		out = append(out, r)
	}
	return out, nil
}

func (s *memStore) CancelReservation(_ context.Context, id int64) (domain.Reservation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.reservations {
		if s.reservations[i].ID != id {
			continue
		}
		if !s.reservations[i].Active() {
			return domain.Reservation{}, ErrAlreadyCanceled
		}
		s.reservations[i].Status = domain.StatusCanceled
		return s.reservations[i], nil
	}
	return domain.Reservation{}, ErrReservationNotFound
}
