package models

import "time"

// Roles a Profile can carry. Only admins may consider top-up requests.
const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

type User struct {
	ID        int    `json:"id" example:"1"`                   // User ID
	Email     string `json:"email" example:"user@example.com"` // User email
	FirstName string `json:"first_name" example:"John"`        // User first name
	LastName  string `json:"last_name" example:"Doe"`          // User last name
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Profile is the cardholder aggregate: one per user account, owns cards.
type Profile struct {
	ID             int       `json:"id" db:"id"`
	UserID         int       `json:"user_id" db:"user_id"`
	Role           string    `json:"role" db:"role"`
	TelegramChatID string    `json:"telegram_chat_id" db:"telegram_chat_id"`
	CreatedAt      time.Time `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time `json:"updated_at" db:"updated_at"`
}
