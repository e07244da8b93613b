package domain

import "time"

// ContentKind distinguishes completable content
type ContentKind string

const (
	ContentKindVideo ContentKind = "video"
	ContentKindQuiz  ContentKind = "quiz"
)

// CompletionRecord marks a piece of content as completed by a user. At most
// one record exists per (user, content id).
type CompletionRecord struct {
	UserID      string      `json:"user_id"`
	ContentID   string      `json:"content_id"`
	Kind        ContentKind `json:"kind"`
	Score       int         `json:"score,omitempty"`
	CompletedAt time.Time   `json:"completed_at"`
}

// UnlockRecord gates access to a game. At most one record exists per
// (user, game id).
type UnlockRecord struct {
	UserID     string    `json:"user_id"`
	GameID     string    `json:"game_id"`
	Cost       int64     `json:"cost"`
	UnlockedAt time.Time `json:"unlocked_at"`
}

// ResultStatus classifies the answer to a ledger-mutating call
type ResultStatus string

const (
	StatusSuccess           ResultStatus = "success"
	StatusAlreadyCompleted  ResultStatus = "already_completed"
	StatusAlreadyUnlocked   ResultStatus = "already_unlocked"
	StatusInsufficientFunds ResultStatus = "insufficient_funds"
)

// LedgerResult is the authoritative answer to completeVideo, completeQuiz
// and unlockGame. Totals always holds the full post-call snapshot.
type LedgerResult struct {
	Status         ResultStatus `json:"status"`
	Message        string       `json:"message"`
	Earned         Totals       `json:"earned"`
	Totals         Totals       `json:"totals"`
	RemainingCoins int64        `json:"remaining_coins"`
}

// Succeeded reports whether the ledger applied the action.
func (r LedgerResult) Succeeded() bool {
	return r.Status == StatusSuccess
}

// ProfileChange is pushed to subscribers when a profile changes out of band.
// Only changed fields are set.
type ProfileChange struct {
	UserID    string    `json:"user_id"`
	Coins     *int64    `json:"coins,omitempty"`
	XP        *int64    `json:"xp,omitempty"`
	Badges    *int64    `json:"badges,omitempty"`
	Reason    string    `json:"reason,omitempty"`
	SourceID  string    `json:"source_id,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// NewProfileChange builds a change carrying only the fields that differ
// between before and after.
func NewProfileChange(userID string, before, after Totals, reason, sourceID string) ProfileChange {
	change := ProfileChange{
		UserID:    userID,
		Reason:    reason,
		SourceID:  sourceID,
		Timestamp: time.Now(),
	}
	if before.Coins != after.Coins {
		v := after.Coins
		change.Coins = &v
	}
	if before.XP != after.XP {
		v := after.XP
		change.XP = &v
	}
	if before.Badges != after.Badges {
		v := after.Badges
		change.Badges = &v
	}
	return change
}

// Empty reports whether the change carries no fields.
func (c ProfileChange) Empty() bool {
	return c.Coins == nil && c.XP == nil && c.Badges == nil
}

// Overlay returns base with the fields present in c applied on top.
func (c ProfileChange) Overlay(base Totals) Totals {
	if c.Coins != nil {
		base.Coins = *c.Coins
	}
	if c.XP != nil {
		base.XP = *c.XP
	}
	if c.Badges != nil {
		base.Badges = *c.Badges
	}
	return base
}

// Subscription is a live push channel that can be released exactly once.
type Subscription interface {
	Unsubscribe() error
}
