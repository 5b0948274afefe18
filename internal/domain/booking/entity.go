package booking

import "time"

// Booking は予約エンティティを表す
type Booking struct {
	ID             string
	TripID         string // 参照のみ（ツアーは所有しない）
	UserID         string
	NumberOfPeople int
	TotalPrice     int // 予約時点で確定し、以後変わらない
	Status         Status
	IdempotencyKey string
	CreatedAt      time.Time
	UpdatedAt      time.Time
	ConfirmedAt    *time.Time
	CancelledAt    *time.Time
}

// NewBooking は保留中の新しい予約を作成する
func NewBooking(tripID, userID, idempotencyKey string, numberOfPeople, totalPrice int) *Booking {
	now := time.Now()
	return &Booking{
		TripID:         tripID,
		UserID:         userID,
		NumberOfPeople: numberOfPeople,
		TotalPrice:     totalPrice,
		Status:         StatusPending,
		IdempotencyKey: idempotencyKey,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

// Validate は予約の検証を行う
func (b *Booking) Validate() error {
	if b.TripID == "" {
		return ErrTripIDRequired
	}
	if b.UserID == "" {
		return ErrUserIDRequired
	}
	if b.NumberOfPeople < 1 {
		return ErrInvalidPartySize
	}
	if b.TotalPrice < 0 {
		return ErrInvalidTotalPrice
	}
	return nil
}

// IsActive は座席を押さえている予約かを返す
func (b *Booking) IsActive() bool {
	return b.Status.IsActive()
}

// ApplyStatus は状態遷移を検証してから適用する
// 台帳の SetStatus からのみ呼ばれる
func (b *Booking) ApplyStatus(to Status, at time.Time) error {
	if err := Transition(b.Status, to); err != nil {
		return err
	}
	b.Status = to
	b.UpdatedAt = at
	switch to {
	case StatusConfirmed:
		b.ConfirmedAt = &at
	case StatusCancelled:
		b.CancelledAt = &at
	}
	return nil
}

// Clone は呼び出し側が台帳の内部状態を書き換えられないようにコピーを返す
func (b *Booking) Clone() *Booking {
	c := *b
	if b.ConfirmedAt != nil {
		t := *b.ConfirmedAt
		c.ConfirmedAt = &t
	}
	if b.CancelledAt != nil {
		t := *b.CancelledAt
		c.CancelledAt = &t
	}
	return &c
}
