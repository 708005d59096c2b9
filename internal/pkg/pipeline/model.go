package pipeline

import (
	"github.com/vreid/chogrunner/internal/pkg/identity"
	"github.com/vreid/chogrunner/internal/pkg/leaderboard"
	"github.com/vreid/chogrunner/internal/pkg/payment"
	"github.com/vreid/chogrunner/internal/pkg/relay"
)

type Stage string

const (
	StageIdentity  Stage = "identity"
	StagePayment   Stage = "payment"
	StageRelay     Stage = "relay"
	StageSubmitted Stage = "submitted"
	StagePending   Stage = "pending"
	StageFailed    Stage = "failed"
)

// State is the session as the UI sees it after a request.
type State struct {
	Identity      identity.PlayerIdentity `json:"identity"`
	SigningWallet payment.SigningWallet   `json:"signingWallet"`
	Stage         Stage                   `json:"stage"`
	Message       string                  `json:"message"`
}

type Request struct {
	Session identity.Session
	Score   uint64

	// Identity, when it carries a username, is reused instead of looking
	// the session up again.
	Identity *identity.PlayerIdentity

	Reply chan<- Response
}

type Response struct {
	State State

	Payment     *payment.Transaction
	Submission  *relay.Submission
	Leaderboard []leaderboard.Entry

	Err error
}
