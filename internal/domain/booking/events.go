package booking

import "time"

// EventType は予約イベントの種類
type EventType string

const (
	EventReserved  EventType = "booking.reserved"
	EventConfirmed EventType = "booking.confirmed"
	EventCancelled EventType = "booking.cancelled"
)

// Event は通知用の予約イベント
type Event struct {
	Type           EventType `json:"type"`
	BookingID      string    `json:"booking_id"`
	TripID         string    `json:"trip_id"`
	UserID         string    `json:"user_id"`
	NumberOfPeople int       `json:"number_of_people"`
	TotalPrice     int       `json:"total_price"`
	Status         Status    `json:"status"`
	OccurredAt     time.Time `json:"occurred_at"`
}

// NewEvent は予約の現在状態からイベントを作成する
func NewEvent(t EventType, b *Booking) Event {
	return Event{
		Type:           t,
		BookingID:      b.ID,
		TripID:         b.TripID,
		UserID:         b.UserID,
		NumberOfPeople: b.NumberOfPeople,
		TotalPrice:     b.TotalPrice,
		Status:         b.Status,
		OccurredAt:     time.Now(),
	}
}
