package orders

import (
	"errors"
	"fmt"
	"time"
)

var ErrInvalidStatus = errors.New("invalid order status")

// Status is a closed set; the zero value is not a valid status.
type Status uint8

const (
	StatusPlanned Status = iota + 1
	StatusInProgress
	StatusDone
	StatusCanceled
)

var statusNames = map[Status]string{
	StatusPlanned:    "Planned",
	StatusInProgress: "In Progress",
	StatusDone:       "Done",
	StatusCanceled:   "Canceled",
}

// ParseStatus accepts exactly the stored literals.
func ParseStatus(s string) (Status, error) {
	for st, name := range statusNames {
		if name == s {
			return st, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrInvalidStatus, s)
}

func (s Status) String() string {
	if name, ok := statusNames[s]; ok {
		return name
	}
	return fmt.Sprintf("Status(%d)", uint8(s))
}

func (s Status) Valid() bool {
	_, ok := statusNames[s]
	return ok
}

// IsOpen: the order still promises component stock.
func (s Status) IsOpen() bool { return s == StatusPlanned || s == StatusInProgress }

func (s Status) IsTerminal() bool { return s == StatusDone || s == StatusCanceled }

var transitions = map[Status][]Status{
	StatusPlanned:    {StatusInProgress, StatusCanceled},
	StatusInProgress: {StatusDone, StatusCanceled},
}

// CanTransitionTo reports whether next may follow s. Planned may not jump
// straight to Done.
func (s Status) CanTransitionTo(next Status) bool {
	for _, t := range transitions[s] {
		if t == next {
			return true
		}
	}
	return false
}

func (s Status) MarshalText() ([]byte, error) {
	if !s.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrInvalidStatus, uint8(s))
	}
	return []byte(s.String()), nil
}

func (s *Status) UnmarshalText(b []byte) error {
	st, err := ParseStatus(string(b))
	if err != nil {
		return err
	}
	*s = st
	return nil
}

type Order struct {
	ID                int64     `json:"order_id"`
	ProductID         int64     `json:"product_id"`
	ProductName       string    `json:"product_name,omitempty"`
	QuantityToProduce int64     `json:"quantity_to_produce"`
	Status            Status    `json:"status"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}
