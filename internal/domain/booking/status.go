package booking

import "fmt"

// Status は予約の状態を表す
type Status string

const (
	StatusPending   Status = "pending"
	StatusConfirmed Status = "confirmed"
	StatusCancelled Status = "cancelled"
)

// transitions は状態遷移表（キャンセル済みは終端状態）
var transitions = map[Status][]Status{
	StatusPending:   {StatusConfirmed, StatusCancelled},
	StatusConfirmed: {StatusCancelled},
	StatusCancelled: {},
}

// IsValid は定義済みの状態かを返す
func (s Status) IsValid() bool {
	_, ok := transitions[s]
	return ok
}

// IsActive は座席を押さえている状態かを返す
func (s Status) IsActive() bool {
	return s == StatusPending || s == StatusConfirmed
}

// IsTerminal はこれ以上遷移できない状態かを返す
func (s Status) IsTerminal() bool {
	return len(transitions[s]) == 0
}

func (s Status) String() string {
	return string(s)
}

// CanTransition は from から to への遷移が許可されているかを返す
func CanTransition(from, to Status) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Transition は遷移を検証する。副作用は持たない
func Transition(from, to Status) error {
	if !CanTransition(from, to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
	}
	return nil
}

// ParseStatus は文字列を Status に変換する
func ParseStatus(s string) (Status, error) {
	status := Status(s)
	if !status.IsValid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidStatus, s)
	}
	return status, nil
}
