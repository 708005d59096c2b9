package pipeline

import (
	"context"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	log "github.com/sirupsen/logrus"
	"github.com/vreid/chogrunner/internal/pkg/chain"
	pkgcommon "github.com/vreid/chogrunner/internal/pkg/common"
	"github.com/vreid/chogrunner/internal/pkg/identity"
	"github.com/vreid/chogrunner/internal/pkg/leaderboard"
	"github.com/vreid/chogrunner/internal/pkg/payment"
	"github.com/vreid/chogrunner/internal/pkg/relay"
)

var ErrPaymentNotConfirmed = errors.New("payment not confirmed")

type IdentityResolver interface {
	Resolve(ctx context.Context, session identity.Session) (identity.PlayerIdentity, error)
}

type PaymentSubmitter interface {
	Wallet(ctx context.Context, signer chain.Signer) (payment.SigningWallet, error)
	Pay(ctx context.Context, signer chain.Signer) (payment.Transaction, error)
}

type ScoreRelay interface {
	SubmitScore(ctx context.Context, player common.Address, score uint64) (*relay.Submission, error)
}

type LeaderboardRefresher interface {
	Refresh(ctx context.Context) ([]leaderboard.Entry, error)
}

// Pipeline drives one score submission from identity to leaderboard.
type Pipeline struct {
	Identity    IdentityResolver
	Payments    PaymentSubmitter
	Relay       ScoreRelay
	Leaderboard LeaderboardRefresher

	Signer chain.Signer
}

// Serve answers requests until ctx ends or requests is closed. Requests are
// handled one at a time. Each session's identity is resolved once and reused
// for its later requests.
func (p *Pipeline) Serve(ctx context.Context, requests <-chan Request) {
	identities := map[string]identity.PlayerIdentity{}

	for {
		select {
		case <-ctx.Done():
			return
		case request, ok := <-requests:
			if !ok {
				return
			}

			if cached, found := identities[request.Session.UserID]; found && request.Identity == nil {
				request.Identity = &cached
			}

			response := p.Submit(ctx, request)

			if request.Session.UserID != "" && reusable(response.State.Identity) {
				identities[request.Session.UserID] = response.State.Identity
			}

			if request.Reply == nil {
				continue
			}

			select {
			case request.Reply <- response:
			case <-ctx.Done():
				return
			}
		}
	}
}

//nolint:funlen
func (p *Pipeline) Submit(ctx context.Context, request Request) Response {
	response := Response{State: State{Stage: StageIdentity}}

	player, err := p.resolve(ctx, request)
	response.State.Identity = player

	if err != nil {
		return fail(response, err)
	}

	logger := log.WithFields(log.Fields{
		"player": player.WalletAddress.Hex(),
		"score":  request.Score,
	})

	response.State.Stage = StagePayment

	wallet, err := p.Payments.Wallet(ctx, p.Signer)
	if err != nil {
		return fail(response, err)
	}

	response.State.SigningWallet = wallet

	tx, err := p.Payments.Pay(ctx, p.Signer)
	if tx.Hash != (common.Hash{}) {
		response.Payment = &tx
	}

	if err != nil {
		return fail(response, err)
	}

	if tx.Status != chain.TxSuccess {
		return fail(response, fmt.Errorf("%w: %s", ErrPaymentNotConfirmed, tx.Status))
	}

	logger.WithField("payment", tx.Hash.Hex()).Info("payment confirmed, relaying score")

	response.State.Stage = StageRelay

	submission, err := p.Relay.SubmitScore(ctx, player.WalletAddress, request.Score)
	if err != nil {
		return fail(response, err)
	}

	response.Submission = submission

	if submission.Status == chain.TxSuccess {
		response.State.Stage = StageSubmitted
		response.State.Message = withExplorer(
			fmt.Sprintf("Score %d submitted for %s.", request.Score, player.Username), submission.Explorer)
	} else {
		response.State.Stage = StagePending
		response.State.Message = withExplorer(
			"Score submitted but not confirmed yet. Check the explorer.", submission.Explorer)
	}

	entries, err := p.Leaderboard.Refresh(ctx)
	if err != nil {
		logger.Warnf("leaderboard refresh failed: %v", err)

		response.State.Message += " Leaderboard may be out of date."
	}

	response.Leaderboard = entries

	return response
}

func (p *Pipeline) resolve(ctx context.Context, request Request) (identity.PlayerIdentity, error) {
	if request.Identity != nil && reusable(*request.Identity) {
		return *request.Identity, nil
	}

	//nolint:wrapcheck
	return p.Identity.Resolve(ctx, request.Session)
}

func reusable(player identity.PlayerIdentity) bool {
	return player.HasUsername() && player.WalletAddress != (common.Address{})
}

func fail(response Response, err error) Response {
	log.WithField("stage", response.State.Stage).Warnf("submission failed: %v", err)

	response.State.Stage = StageFailed
	response.State.Message = describe(err)
	response.Err = err

	return response
}

func describe(err error) string {
	var appErr *pkgcommon.Error
	if errors.As(err, &appErr) {
		return withExplorer(appErr.Message, appErr.Explorer)
	}

	if errors.Is(err, identity.ErrNoLinkedWallet) {
		return "Sign in with Monad Games ID to link a wallet."
	}

	return err.Error()
}

func withExplorer(message, explorer string) string {
	if explorer == "" {
		return message
	}

	return message + " " + explorer
}
