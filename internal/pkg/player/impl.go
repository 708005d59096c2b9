package player

import (
	"context"
	"fmt"
	"math/big"
	"net/http"

	"github.com/ethereum/go-ethereum/common"
	"github.com/labstack/echo/v4"
	"github.com/samber/do/v2"
	"github.com/vreid/chogrunner/internal/pkg/chain"
	pkgcommon "github.com/vreid/chogrunner/internal/pkg/common"
)

type Stats struct {
	PlayerAddress     string   `json:"playerAddress"`
	TotalScore        *big.Int `json:"totalScore"`
	TotalTransactions *big.Int `json:"totalTransactions"`
}

type PlayerService struct {
	Contract *chain.ScoreContract
}

func NewPlayer(contract *chain.ScoreContract) *PlayerService {
	return &PlayerService{Contract: contract}
}

func NewPlayerService(i do.Injector) (*PlayerService, error) {
	contract := chain.NewScoreContract(
		common.HexToAddress(do.MustInvokeNamed[string](i, "contract-address")),
		do.MustInvoke[*chain.EthClient](i),
	)

	result := NewPlayer(contract)

	echoService, err := do.Invoke[*pkgcommon.EchoService](i)
	if err != nil {
		return nil, fmt.Errorf("failed to create echo service: %w", err)
	}

	echoService.Register(func(e *echo.Echo) {
		result.Register(e)
	})

	return result, nil
}

func (s *PlayerService) Register(e *echo.Echo) {
	apiGroup := e.Group("/api")

	apiGroup.GET("/player/:address", s.GetPlayer)
}

func (s *PlayerService) Stats(ctx context.Context, address string) (*Stats, error) {
	if !chain.IsAddress(address) {
		return nil, pkgcommon.NewError(pkgcommon.KindValidation, "Invalid player address.")
	}

	player := common.HexToAddress(address)

	score, err := s.Contract.TotalScoreOfPlayer(ctx, player)
	if err != nil {
		return nil, pkgcommon.WrapError(pkgcommon.KindUpstream, "Failed to read player stats.", err)
	}

	transactions, err := s.Contract.TotalTransactionsOfPlayer(ctx, player)
	if err != nil {
		return nil, pkgcommon.WrapError(pkgcommon.KindUpstream, "Failed to read player stats.", err)
	}

	return &Stats{
		PlayerAddress:     player.Hex(),
		TotalScore:        score,
		TotalTransactions: transactions,
	}, nil
}

func (s *PlayerService) GetPlayer(c echo.Context) error {
	stats, err := s.Stats(c.Request().Context(), c.Param("address"))
	if err != nil {
		return err
	}

	//nolint:wrapcheck
	return c.JSON(http.StatusOK, stats)
}
