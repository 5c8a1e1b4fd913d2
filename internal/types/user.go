package types

import "time"

// AdminUsername is the built-in superuser. The admin exists from first boot,
// cannot be deleted, and is never listed as a space member.
const AdminUsername = "admin"

// User is an account. Usernames are immutable identifiers.
type User struct {
	Username     string    `json:"username"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
}

// Session is an issued auth token. Sessions expire SessionTTL after creation.
type Session struct {
	AuthToken string    `json:"auth_token"`
	Username  string    `json:"username"`
	CreatedAt time.Time `json:"created_at"`
}

// SessionTTL is how long a session stays valid after issuance.
const SessionTTL = 30 * 24 * time.Hour

// CounterKind names the per-scope sequences.
type CounterKind string

const (
	CounterNote              CounterKind = "note"
	CounterComment           CounterKind = "comment"
	CounterPendingAttachment CounterKind = "pending_attachment"
	CounterAttachment        CounterKind = "attachment"
	CounterTelegramTask      CounterKind = "telegram_task"
)

// GlobalCounterScope is the space slug used by sequences that are not bound
// to any space, such as the messenger task counter.
const GlobalCounterScope = "__global__"
