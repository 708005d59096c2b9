package identity

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-resty/resty/v2"
	"github.com/labstack/echo/v4"
	"github.com/samber/do/v2"
	log "github.com/sirupsen/logrus"
	"github.com/vreid/chogrunner/internal/pkg/chain"
	pkgcommon "github.com/vreid/chogrunner/internal/pkg/common"
)

const (
	DefaultLookupURL       = "https://monad-games-id-site.vercel.app"
	DefaultRegistrationURL = "https://monad-games-id-site.vercel.app/"
	DefaultProviderAppID   = "cmd8euall0037le0my79qpz42"
)

var (
	ErrNoLinkedWallet = errors.New("no wallet linked through the identity provider")
	ErrNoUsername     = errors.New("wallet has no registered username")

	ErrInvalidUpstreamBody = errors.New("upstream returned invalid JSON")
)

type IdentityService struct {
	ProviderAppID   string
	RegistrationURL string

	lookup *resty.Client
}

func NewIdentity(lookupURL string, providerAppID string, registrationURL string) *IdentityService {
	return &IdentityService{
		ProviderAppID:   providerAppID,
		RegistrationURL: registrationURL,
		lookup: resty.New().
			SetBaseURL(lookupURL).
			SetTimeout(10 * time.Second), //nolint:mnd
	}
}

func NewIdentityService(i do.Injector) (*IdentityService, error) {
	result := NewIdentity(
		do.MustInvokeNamed[string](i, "identity-lookup-url"),
		do.MustInvokeNamed[string](i, "provider-app-id"),
		do.MustInvokeNamed[string](i, "registration-url"),
	)

	echoService, err := do.Invoke[*pkgcommon.EchoService](i)
	if err != nil {
		return nil, fmt.Errorf("failed to create echo service: %w", err)
	}

	echoService.Register(func(e *echo.Echo) {
		result.Register(e)
	})

	return result, nil
}

func (s *IdentityService) Register(e *echo.Echo) {
	apiGroup := e.Group("/api")

	apiGroup.GET("/check-wallet", s.GetCheckWallet)
}

// LinkedWallet returns the first embedded wallet of the cross-app account
// issued by the configured provider.
func (s *IdentityService) LinkedWallet(session Session) (common.Address, error) {
	for _, account := range session.LinkedAccounts {
		if account.Type != CrossAppAccountType || account.ProviderApp.ID != s.ProviderAppID {
			continue
		}

		if len(account.EmbeddedWallets) == 0 || !chain.IsAddress(account.EmbeddedWallets[0].Address) {
			return common.Address{}, ErrNoLinkedWallet
		}

		return common.HexToAddress(account.EmbeddedWallets[0].Address), nil
	}

	return common.Address{}, ErrNoLinkedWallet
}

func (s *IdentityService) CheckWallet(ctx context.Context, wallet common.Address) (*CheckWalletResponse, error) {
	var result CheckWalletResponse

	resp, err := s.lookup.R().
		SetContext(ctx).
		SetQueryParam("wallet", wallet.Hex()).
		SetResult(&result).
		Get("/api/check-wallet")
	if err != nil {
		return nil, pkgcommon.WrapError(pkgcommon.KindUpstream, "Username lookup failed.", err)
	}

	if resp.IsError() {
		return nil, pkgcommon.NewError(pkgcommon.KindUpstream,
			fmt.Sprintf("Username lookup failed with status %d.", resp.StatusCode()))
	}

	return &result, nil
}

// Resolve maps a session to the player's identity. When the wallet has no
// username the identity is still returned, together with ErrNoUsername.
func (s *IdentityService) Resolve(ctx context.Context, session Session) (PlayerIdentity, error) {
	wallet, err := s.LinkedWallet(session)
	if err != nil {
		return PlayerIdentity{}, err
	}

	identity := PlayerIdentity{WalletAddress: wallet}

	lookup, err := s.CheckWallet(ctx, wallet)
	if err != nil {
		return identity, err
	}

	if !lookup.HasUsername || lookup.User == nil || lookup.User.Username == "" {
		return identity, fmt.Errorf("%w: register at %s", ErrNoUsername, s.RegistrationURL)
	}

	identity.Username = lookup.User.Username

	log.WithFields(log.Fields{
		"wallet":   wallet.Hex(),
		"username": identity.Username,
	}).Debug("resolved player identity")

	return identity, nil
}

// GetCheckWallet proxies the username lookup, passing the upstream body
// through unchanged.
func (s *IdentityService) GetCheckWallet(c echo.Context) error {
	wallet := c.QueryParam("wallet")
	if wallet == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "Missing wallet address")
	}

	resp, err := s.lookup.R().
		SetContext(c.Request().Context()).
		SetQueryParam("wallet", wallet).
		Get("/api/check-wallet")
	if err != nil {
		log.Errorf("proxy error: %v", err)

		return pkgcommon.WrapError(pkgcommon.KindInternal, "Proxy failed", err)
	}

	if resp.IsError() {
		//nolint:wrapcheck
		return c.JSON(resp.StatusCode(), map[string]string{
			"error": fmt.Sprintf("Remote API error %d", resp.StatusCode()),
		})
	}

	body := resp.Body()
	if !json.Valid(body) {
		return pkgcommon.WrapError(pkgcommon.KindInternal, "Proxy failed", ErrInvalidUpstreamBody)
	}

	//nolint:wrapcheck
	return c.JSONBlob(http.StatusOK, body)
}
