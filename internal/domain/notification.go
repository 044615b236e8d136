package domain

import (
	"time"

	"github.com/google/uuid"
)

type Channel string

const (
	ChannelWhatsApp Channel = "WHATSAPP"
	ChannelSMS      Channel = "SMS"
)

// NotificationRecord logs one delivery attempt on one channel. The retry
// sweep updates Attempts, Success and ErrorMessage in place.
type NotificationRecord struct {
	ID           uuid.UUID `json:"id" db:"id"`
	Phone        string    `json:"phone" db:"phone_number"`
	Channel      Channel   `json:"channel" db:"channel"`
	Message      string    `json:"message" db:"message"`
	Success      bool      `json:"success" db:"success"`
	Attempts     int       `json:"attempts" db:"attempts"`
	ErrorMessage string    `json:"error_message" db:"error_message"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
}
