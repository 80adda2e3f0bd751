package auth

import (
	"time"

	"github.com/uptrace/bun"
)

// User is the durable account model
type User struct {
	bun.BaseModel `bun:"table:users,alias:usr"`
	ID            int64      `bun:"id,pk,autoincrement" json:"id,omitempty"`
	Nickname      string     `bun:"nickname,notnull,unique" json:"nickname,omitempty"`
	Email         string     `bun:"email,notnull,unique" json:"email,omitempty"`
	PasswordHash  string     `bun:"password_hash,notnull" json:"-"`
	LoggedInAt    *time.Time `bun:"loggedin_at,nullzero" json:"loggedin_at,omitempty"`
	CreatedAt     *time.Time `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
	UpdatedAt     *time.Time `bun:"updated_at,nullzero,default:current_timestamp" json:"updated_at,omitempty"`
}

// Profile is the public projection of a User; it never carries the password
// hash.
type Profile struct {
	ID        int64      `json:"id"`
	Nickname  string     `json:"nickname"`
	Email     string     `json:"email"`
	CreatedAt *time.Time `json:"created_at,omitempty"`
}

// Profile returns the public projection of the user.
func (u *User) Profile() *Profile {
	if u == nil {
		return nil
	}
	return &Profile{
		ID:        u.ID,
		Nickname:  u.Nickname,
		Email:     u.Email,
		CreatedAt: u.CreatedAt,
	}
}

// Session holds the single rotating nonce per user. A nil nonce means "no
// active session": every session-bound token minted earlier is unusable.
type Session struct {
	bun.BaseModel `bun:"table:sessions,alias:ses"`
	UserID        int64      `bun:"user_id,pk" json:"user_id"`
	Nonce         *int64     `bun:"nonce,nullzero" json:"nonce,omitempty"`
	UpdatedAt     *time.Time `bun:"updated_at,nullzero,default:current_timestamp" json:"updated_at,omitempty"`
}

// HasNonce reports whether the session currently has an active nonce.
func (s *Session) HasNonce() bool {
	return s != nil && s.Nonce != nil
}

// PendingRegistration is a not-yet-confirmed account request. The subject key
// is the nickname+email pair; the payload carries everything needed to
// materialize the account at confirm time.
type PendingRegistration struct {
	bun.BaseModel `bun:"table:pending_registrations,alias:preg"`
	ID            int64     `bun:"id,pk,autoincrement" json:"id"`
	Nickname      string    `bun:"nickname,notnull" json:"nickname"`
	Email         string    `bun:"email,notnull" json:"email"`
	PasswordHash  string    `bun:"password_hash,notnull" json:"-"`
	FinalDate     time.Time `bun:"final_date,notnull" json:"final_date"`
}

// PendingRecovery is a not-yet-confirmed password recovery. The subject key
// is the user id; the new password arrives at confirm time, so there is no
// extra payload.
type PendingRecovery struct {
	bun.BaseModel `bun:"table:pending_recoveries,alias:prec"`
	ID            int64     `bun:"id,pk,autoincrement" json:"id"`
	UserID        int64     `bun:"user_id,notnull" json:"user_id"`
	FinalDate     time.Time `bun:"final_date,notnull" json:"final_date"`
}
