package model

import (
	sdkmath "cosmossdk.io/math"

	"github.com/exezbcz/paraport/internal/subscription"
)

type SessionStatus string

const (
	// SessionStatusPending means funding is needed but no route can provide it yet.
	SessionStatusPending    SessionStatus = "pending"
	SessionStatusReady      SessionStatus = "ready"
	SessionStatusProcessing SessionStatus = "processing"
	SessionStatusCompleted  SessionStatus = "completed"
	SessionStatusFailed     SessionStatus = "failed"
)

// Action is a call run on the destination once the teleported funds arrived.
type Action struct {
	Section string `json:"section"`
	Method  string `json:"method"`
	Args    []any  `json:"args,omitempty"`
}

type SessionParams struct {
	Address string       `json:"address"`
	Chain   Chain        `json:"chain"`
	Amount  sdkmath.Int  `json:"amount"`
	Asset   Asset        `json:"asset"`
	Mode    TeleportMode `json:"teleportMode"`
	Actions []Action     `json:"actions,omitempty"`
}

type SessionQuotes struct {
	Available []Quote `json:"available"`
	Selected  *Quote  `json:"selected,omitempty"`
	Best      *Quote  `json:"bestQuote,omitempty"`
}

type SessionFunds struct {
	Needed       bool `json:"needed"`
	Available    bool `json:"available"`
	NoFundsAtAll bool `json:"noFundsAtAll"`
}

type Session struct {
	Record[SessionStatus]
	Params     SessionParams `json:"params"`
	Quotes     SessionQuotes `json:"quotes"`
	Funds      SessionFunds  `json:"funds"`
	TeleportID string        `json:"teleportId,omitempty"`

	// Unsubscribe tears down the balance watcher feeding recomputes.
	Unsubscribe *subscription.Handle `json:"-"`
}

// Recomputable reports whether balance changes may still reshape the session.
func (s Session) Recomputable() bool {
	return s.Status == SessionStatusPending || s.Status == SessionStatusReady
}
