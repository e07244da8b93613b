package domain

import "time"

// Totals is the rewardable part of a profile. Every snapshot carries all three
// fields; there is no partial form.
type Totals struct {
	Coins  int64 `json:"coins"`
	XP     int64 `json:"xp"`
	Badges int64 `json:"badges"`
}

// Valid reports whether the totals satisfy the ledger invariants.
func (t Totals) Valid() bool {
	return t.Coins >= 0 && t.XP >= 0 && t.Badges >= 0
}

// Add returns the field-wise sum of t and delta.
func (t Totals) Add(delta Totals) Totals {
	return Totals{
		Coins:  t.Coins + delta.Coins,
		XP:     t.XP + delta.XP,
		Badges: t.Badges + delta.Badges,
	}
}

// Sub returns the field-wise difference of t and delta.
func (t Totals) Sub(delta Totals) Totals {
	return Totals{
		Coins:  t.Coins - delta.Coins,
		XP:     t.XP - delta.XP,
		Badges: t.Badges - delta.Badges,
	}
}

// IsZero reports whether all fields are zero.
func (t Totals) IsZero() bool {
	return t == Totals{}
}

// Profile is the per-user ledger row
type Profile struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	Name      string    `json:"name,omitempty"`
	Age       *int      `json:"age,omitempty"`
	Totals    Totals    `json:"totals"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Account holds sign-in credentials for a profile
type Account struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
}

// SignUpAttributes are the optional profile fields supplied at sign up
type SignUpAttributes struct {
	Name string `json:"name,omitempty"`
	Age  *int   `json:"age,omitempty"`
}

// Session identifies a signed-in user. It is passed explicitly to every
// component that talks to the ledger on the user's behalf.
type Session struct {
	Token     string    `json:"token"`
	UserID    string    `json:"user_id"`
	Email     string    `json:"email"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Valid reports whether the session carries a token and a user.
func (s Session) Valid() bool {
	return s.Token != "" && s.UserID != ""
}
