package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/sanosuguru/go-trip-seat-reservation/internal/domain/trip"
)

// tripEntry はツアー1件と、その空席数を守るロック
type tripEntry struct {
	mu   sync.Mutex
	trip trip.Trip
	seq  int64
}

// TripStore はツアーカタログと空席在庫のインメモリ実装
// 空席数の読み取り・判定・書き込みはツアーごとのロック内で行う
type TripStore struct {
	mu    sync.RWMutex
	trips map[string]*tripEntry
	seq   int64
}

// NewTripStore は空の TripStore を作成する
func NewTripStore() *TripStore {
	return &TripStore{trips: make(map[string]*tripEntry)}
}

func (s *TripStore) entry(id string) (*tripEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.trips[id]
	if !ok {
		return nil, trip.ErrTripNotFound
	}
	return e, nil
}

// Create は新しいツアーを登録する
func (s *TripStore) Create(_ context.Context, t *trip.Trip) error {
	if t.ID == "" {
		t.ID = uuid.New().String()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.trips[t.ID]; ok {
		return trip.ErrTripAlreadyExists
	}
	s.seq++
	s.trips[t.ID] = &tripEntry{trip: *t, seq: s.seq}
	return nil
}

// GetByID はIDからツアーを取得する
func (s *TripStore) GetByID(_ context.Context, id string) (*trip.Trip, error) {
	e, err := s.entry(id)
	if err != nil {
		return nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	t := e.trip
	return &t, nil
}

// List は登録順にツアー一覧を返す
func (s *TripStore) List(_ context.Context, limit, offset int) ([]*trip.Trip, error) {
	s.mu.RLock()
	entries := make([]*tripEntry, 0, len(s.trips))
	for _, e := range s.trips {
		entries = append(entries, e)
	}
	s.mu.RUnlock()

	sort.Slice(entries, func(i, j int) bool { return entries[i].seq < entries[j].seq })

	result := make([]*trip.Trip, 0, len(entries))
	for _, e := range page(entries, limit, offset) {
		e.mu.Lock()
		t := e.trip
		e.mu.Unlock()
		result = append(result, &t)
	}
	return result, nil
}

// UpdatePrice は1人あたりの料金を更新する
func (s *TripStore) UpdatePrice(_ context.Context, id string, pricePerPerson int) (*trip.Trip, error) {
	if pricePerPerson < 0 {
		return nil, trip.ErrInvalidPrice
	}
	e, err := s.entry(id)
	if err != nil {
		return nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.trip.PricePerPerson = pricePerPerson
	e.trip.UpdatedAt = time.Now()
	t := e.trip
	return &t, nil
}

// GetAvailable は現在の空席数を返す
func (s *TripStore) GetAvailable(_ context.Context, tripID string) (int, error) {
	e, err := s.entry(tripID)
	if err != nil {
		return 0, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.trip.AvailableSeats, nil
}

// TryAdjust は空席数に delta をアトミックに適用する
func (s *TripStore) TryAdjust(_ context.Context, tripID string, delta int) (int, error) {
	e, err := s.entry(tripID)
	if err != nil {
		return 0, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	next, err := trip.ApplyDelta(e.trip.AvailableSeats, e.trip.Capacity, delta)
	if err != nil {
		return e.trip.AvailableSeats, err
	}
	e.trip.AvailableSeats = next
	e.trip.UpdatedAt = time.Now()
	return next, nil
}

var (
	_ trip.Catalog   = (*TripStore)(nil)
	_ trip.Inventory = (*TripStore)(nil)
)
