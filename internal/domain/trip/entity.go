package trip

import "time"

// Trip は予約対象となるツアー（座席数に上限のある商品）を表す
type Trip struct {
	ID             string
	Title          string
	Location       string
	StartDate      time.Time
	EndDate        time.Time
	PricePerPerson int
	Capacity       int // 作成後は変更不可
	AvailableSeats int
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// NewTrip は新しいツアーを作成する（空席数は定員で初期化）
func NewTrip(title, location string, startDate, endDate time.Time, pricePerPerson, capacity int) *Trip {
	now := time.Now()
	return &Trip{
		Title:          title,
		Location:       location,
		StartDate:      startDate,
		EndDate:        endDate,
		PricePerPerson: pricePerPerson,
		Capacity:       capacity,
		AvailableSeats: capacity,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

// Validate はツアーの検証を行う
func (t *Trip) Validate() error {
	if t.Title == "" {
		return ErrTitleRequired
	}
	if t.Capacity <= 0 {
		return ErrInvalidCapacity
	}
	if t.PricePerPerson < 0 {
		return ErrInvalidPrice
	}
	if !t.StartDate.IsZero() && !t.EndDate.IsZero() && t.EndDate.Before(t.StartDate) {
		return ErrInvalidTripDates
	}
	if t.AvailableSeats < 0 || t.AvailableSeats > t.Capacity {
		return ErrSeatCountOutOfRange
	}
	return nil
}

// PriceFor は人数分の合計金額を返す
func (t *Trip) PriceFor(numberOfPeople int) int {
	return t.PricePerPerson * numberOfPeople
}

// ReservedSeats は有効な予約が押さえている座席数を返す
func (t *Trip) ReservedSeats() int {
	return t.Capacity - t.AvailableSeats
}

// Info はカタログが予約判断時に提供する読み取り専用の情報
type Info struct {
	ID             string
	Capacity       int
	PricePerPerson int
}

// Info はツアーの予約判断用スナップショットを返す
func (t *Trip) Info() Info {
	return Info{ID: t.ID, Capacity: t.Capacity, PricePerPerson: t.PricePerPerson}
}

// PriceFor は予約時点の料金で人数分の合計金額を返す
func (i Info) PriceFor(numberOfPeople int) int {
	return i.PricePerPerson * numberOfPeople
}

// ApplyDelta は空席数に差分を適用した結果を検証付きで返す
// delta が負なら予約、正ならキャンセルによる返却を意味する
func ApplyDelta(available, capacity, delta int) (int, error) {
	next := available + delta
	if next < 0 {
		return available, ErrInsufficientCapacity
	}
	if next > capacity {
		return available, ErrCapacityExceeded
	}
	return next, nil
}
