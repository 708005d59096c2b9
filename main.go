package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/samber/do/v2"
	log "github.com/sirupsen/logrus"
	"github.com/urfave/cli/v3"
	"github.com/vreid/chogrunner/internal/pkg/chain"
	pkgcommon "github.com/vreid/chogrunner/internal/pkg/common"
	"github.com/vreid/chogrunner/internal/pkg/confirm"
	"github.com/vreid/chogrunner/internal/pkg/identity"
	"github.com/vreid/chogrunner/internal/pkg/leaderboard"
	"github.com/vreid/chogrunner/internal/pkg/ledger"
	"github.com/vreid/chogrunner/internal/pkg/payment"
	"github.com/vreid/chogrunner/internal/pkg/pipeline"
	"github.com/vreid/chogrunner/internal/pkg/player"
	"github.com/vreid/chogrunner/internal/pkg/relay"
)

// shutdownTimeout lets an in-flight submission finish its receipt polling
// before the server stops.
const shutdownTimeout = confirm.DefaultInterval*confirm.DefaultMaxAttempts + 10*time.Second

var ErrMissingArgument = errors.New("missing argument")

type ChogRunnerService struct {
	EchoService     *pkgcommon.EchoService     `do:""`
	DatabaseService *pkgcommon.DatabaseService `do:""`
	ChainService    *chain.EthClient           `do:""`

	RelayService       *relay.RelayService             `do:""`
	LedgerService      *ledger.LedgerService           `do:""`
	IdentityService    *identity.IdentityService       `do:""`
	LeaderboardService *leaderboard.LeaderboardService `do:""`
	PlayerService      *player.PlayerService           `do:""`
}

func network(cmd *cli.Command) chain.Network {
	return chain.MonadTestnet(cmd.String("rpc-url"))
}

//nolint:funlen
func runServer(ctx context.Context, cmd *cli.Command) error {
	i := do.New()

	do.ProvideNamedValue(i, "port", cmd.Int("port"))
	do.ProvideNamedValue(i, "data-dir", cmd.String("data-dir"))

	do.ProvideNamedValue(i, "network", network(cmd))
	do.ProvideNamedValue(i, "contract-address", cmd.String("contract-address"))
	do.ProvideNamedValue(i, "admin-address", cmd.String("admin-address"))
	do.ProvideNamedValue(i, "admin-private-key", cmd.String("admin-private-key"))
	do.ProvideNamedValue(i, "leaderboard-page-url", cmd.String("leaderboard-page-url"))
	do.ProvideNamedValue(i, "submit-rate", cmd.Float("submit-rate"))
	do.ProvideNamedValue(i, "submit-burst", cmd.Int("submit-burst"))

	do.ProvideNamedValue(i, "identity-lookup-url", cmd.String("identity-url"))
	do.ProvideNamedValue(i, "provider-app-id", cmd.String("provider-app-id"))
	do.ProvideNamedValue(i, "registration-url", cmd.String("registration-url"))

	do.ProvideNamedValue(i, "leaderboard-url", cmd.String("leaderboard-url"))
	do.ProvideNamedValue(i, "game-id", cmd.Int64("game-id"))

	eventChan := make(chan relay.Event, 1000) //nolint:mnd
	var eventSource <-chan relay.Event = eventChan
	var eventSink chan<- relay.Event = eventChan

	do.ProvideNamedValue(i, "event-source", eventSource)
	do.ProvideNamedValue(i, "event-sink", eventSink)

	do.Provide(i, pkgcommon.NewEchoService)
	do.Provide(i, pkgcommon.NewDatabaseService)
	do.Provide(i, chain.NewChainService)

	do.Provide(i, ledger.NewLedgerService)
	do.Provide(i, relay.NewRelayService)
	do.Provide(i, identity.NewIdentityService)
	do.Provide(i, leaderboard.NewLeaderboardService)
	do.Provide(i, player.NewPlayerService)

	do.Provide(i, do.InvokeStruct[ChogRunnerService])

	service, err := do.Invoke[ChogRunnerService](i)
	if err != nil {
		return fmt.Errorf("failed to create chogrunner service: %w", err)
	}

	service.LeaderboardService.Start()

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	errChan := make(chan error, 1)

	go func() {
		errChan <- service.EchoService.Start()
	}()

	select {
	case err = <-errChan:
	case <-ctx.Done():
		log.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		err = service.EchoService.Shutdown(shutdownCtx)
	}

	return errors.Join(
		err,
		service.DatabaseService.Shutdown(),
		service.ChainService.Shutdown(),
	)
}

func readSession(path string) (identity.Session, error) {
	var session identity.Session

	data, err := os.ReadFile(path)
	if err != nil {
		return session, fmt.Errorf("failed to read session: %w", err)
	}

	err = json.Unmarshal(data, &session)
	if err != nil {
		return session, fmt.Errorf("failed to decode session: %w", err)
	}

	return session, nil
}

func printJSON(v any) error {
	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")

	//nolint:wrapcheck
	return encoder.Encode(v)
}

func runSubmit(ctx context.Context, cmd *cli.Command) error {
	adminAddress := cmd.String("admin-address")
	if !chain.IsAddress(adminAddress) {
		return fmt.Errorf("%w: admin-address must be a 0x-prefixed 20 byte address", ErrMissingArgument)
	}

	session, err := readSession(cmd.String("session"))
	if err != nil {
		return err
	}

	key, err := chain.ParsePrivateKey(cmd.String("signing-key"))
	if err != nil {
		return fmt.Errorf("invalid signing key: %w", err)
	}

	net := network(cmd)

	client, err := chain.Dial(ctx, net)
	if err != nil {
		return err //nolint:wrapcheck
	}

	defer func() {
		_ = client.Shutdown()
	}()

	amount, err := chain.ParseUnits(cmd.String("payment-amount"), net.Decimals)
	if err != nil {
		return fmt.Errorf("invalid payment amount: %w", err)
	}

	submitter := payment.NewSubmitter(client, net, common.HexToAddress(adminAddress))
	submitter.Amount = amount

	p := &pipeline.Pipeline{
		Identity: identity.NewIdentity(
			cmd.String("identity-url"), cmd.String("provider-app-id"), cmd.String("registration-url")),
		Payments:    submitter,
		Relay:       relay.NewClient(cmd.String("relay-url")),
		Leaderboard: leaderboard.NewLeaderboard(cmd.String("leaderboard-url"), cmd.Int64("game-id"), nil),
		Signer:      chain.NewKeySigner(key, net.ChainID),
	}

	response := p.Submit(ctx, pipeline.Request{
		Session: session,
		Score:   cmd.Uint64("score"),
	})

	err = printJSON(response.State)
	if err != nil {
		return fmt.Errorf("failed to print result: %w", err)
	}

	return response.Err
}

func runLeaderboard(ctx context.Context, cmd *cli.Command) error {
	service := leaderboard.NewLeaderboard(cmd.String("leaderboard-url"), cmd.Int64("game-id"), nil)

	entries, err := service.Refresh(ctx)
	if err != nil {
		return err //nolint:wrapcheck
	}

	highlight := common.HexToAddress(cmd.String("player"))

	for _, entry := range entries {
		marker := " "

		switch {
		case cmd.String("player") != "" && entry.IsPlayer(highlight):
			marker = ">"
		case entry.Podium():
			marker = "*"
		}

		fmt.Printf("%s %3d  %-24s %d\n", marker, entry.Rank, entry.DisplayName(), entry.Score) //nolint:forbidigo
	}

	return nil
}

func runStats(ctx context.Context, cmd *cli.Command) error {
	address := cmd.Args().First()
	if address == "" {
		return fmt.Errorf("%w: player address", ErrMissingArgument)
	}

	client, err := chain.Dial(ctx, network(cmd))
	if err != nil {
		return err //nolint:wrapcheck
	}

	defer func() {
		_ = client.Shutdown()
	}()

	contract := chain.NewScoreContract(common.HexToAddress(cmd.String("contract-address")), client)

	stats, err := player.NewPlayer(contract).Stats(ctx, address)
	if err != nil {
		return err //nolint:wrapcheck
	}

	return printJSON(stats)
}

//nolint:funlen
func main() {
	chainFlags := func() []cli.Flag {
		return []cli.Flag{
			&cli.StringFlag{
				Name:    "rpc-url",
				Usage:   "primary RPC endpoint, defaults to " + chain.DefaultRPCURL,
				Sources: cli.EnvVars("CHOG_RPC_URL", "NEXT_PUBLIC_RPC_URL"),
			},
			&cli.StringFlag{
				Name:    "contract-address",
				Value:   chain.DefaultContractAddress,
				Sources: cli.EnvVars("CHOG_CONTRACT_ADDRESS"),
			},
		}
	}

	adminAddressFlag := func() cli.Flag {
		return &cli.StringFlag{
			Name:    "admin-address",
			Sources: cli.EnvVars("CHOG_ADMIN_ADDRESS", "NEXT_PUBLIC_ADMIN_ADDRESS"),
		}
	}

	identityFlags := func() []cli.Flag {
		return []cli.Flag{
			&cli.StringFlag{
				Name:    "identity-url",
				Value:   identity.DefaultLookupURL,
				Sources: cli.EnvVars("CHOG_IDENTITY_URL"),
			},
			&cli.StringFlag{
				Name:    "provider-app-id",
				Value:   identity.DefaultProviderAppID,
				Sources: cli.EnvVars("CHOG_PROVIDER_APP_ID", "NEXT_PUBLIC_PRIVY_APP_ID"),
			},
			&cli.StringFlag{
				Name:    "registration-url",
				Value:   identity.DefaultRegistrationURL,
				Sources: cli.EnvVars("CHOG_REGISTRATION_URL"),
			},
		}
	}

	leaderboardFlags := func() []cli.Flag {
		return []cli.Flag{
			&cli.StringFlag{
				Name:    "leaderboard-url",
				Value:   leaderboard.DefaultBaseURL,
				Sources: cli.EnvVars("CHOG_LEADERBOARD_URL"),
			},
			&cli.Int64Flag{
				Name:    "game-id",
				Value:   leaderboard.DefaultGameID,
				Sources: cli.EnvVars("CHOG_GAME_ID"),
			},
		}
	}

	serverFlags := []cli.Flag{
		&cli.IntFlag{
			Name:    "port",
			Value:   3000, //nolint:mnd
			Sources: cli.EnvVars("CHOG_PORT"),
		},
		&cli.StringFlag{
			Name:    "data-dir",
			Value:   "./chogrunner/data",
			Sources: cli.EnvVars("CHOG_DATA_DIR"),
		},
		adminAddressFlag(),
		&cli.StringFlag{
			Name:    "admin-private-key",
			Sources: cli.EnvVars("ADMIN_PRIVATE_KEY"),
		},
		&cli.StringFlag{
			Name:    "leaderboard-page-url",
			Value:   relay.DefaultLeaderboardURL,
			Sources: cli.EnvVars("CHOG_LEADERBOARD_PAGE_URL"),
		},
		&cli.FloatFlag{
			Name:    "submit-rate",
			Value:   1,
			Sources: cli.EnvVars("CHOG_SUBMIT_RATE"),
		},
		&cli.IntFlag{
			Name:    "submit-burst",
			Value:   5, //nolint:mnd
			Sources: cli.EnvVars("CHOG_SUBMIT_BURST"),
		},
	}

	submitFlags := []cli.Flag{
		&cli.StringFlag{
			Name:     "session",
			Usage:    "path to the identity session JSON",
			Required: true,
		},
		&cli.StringFlag{
			Name:     "signing-key",
			Sources:  cli.EnvVars("CHOG_SIGNING_KEY"),
			Required: true,
		},
		&cli.Uint64Flag{
			Name:     "score",
			Required: true,
		},
		&cli.StringFlag{
			Name:    "payment-amount",
			Value:   chain.FormatUnits(payment.DefaultAmount, 18), //nolint:mnd
			Sources: cli.EnvVars("CHOG_PAYMENT_AMOUNT"),
		},
		&cli.StringFlag{
			Name:    "relay-url",
			Value:   "http://localhost:3000",
			Sources: cli.EnvVars("CHOG_RELAY_URL"),
		},
		adminAddressFlag(),
	}

	//nolint:exhaustruct
	cmd := &cli.Command{
		Name: "chogrunner",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "log-level",
				Value:   "info",
				Sources: cli.EnvVars("CHOG_LOG_LEVEL"),
			},
			&cli.StringFlag{
				Name:    "log-format",
				Value:   "text",
				Sources: cli.EnvVars("CHOG_LOG_FORMAT"),
			},
		},
		Before: func(ctx context.Context, cmd *cli.Command) (context.Context, error) {
			pkgcommon.InitLogger(cmd.String("log-level"), cmd.String("log-format"))

			return ctx, nil
		},
		Commands: []*cli.Command{
			{
				Name:   "server",
				Flags:  concat(serverFlags, chainFlags(), identityFlags(), leaderboardFlags()),
				Action: runServer,
			},
			{
				Name:   "submit",
				Usage:  "pay, relay a score and refresh the leaderboard",
				Flags:  concat(submitFlags, chainFlags(), identityFlags(), leaderboardFlags()),
				Action: runSubmit,
			},
			{
				Name: "leaderboard",
				Flags: concat(leaderboardFlags(), []cli.Flag{
					&cli.StringFlag{
						Name:  "player",
						Usage: "wallet address to highlight",
					},
				}),
				Action: runLeaderboard,
			},
			{
				Name:      "stats",
				ArgsUsage: "<player-address>",
				Flags:     chainFlags(),
				Action:    runStats,
			},
		},
		DefaultCommand: "server",
	}

	err := cmd.Run(context.Background(), os.Args)
	if err != nil {
		log.Fatal(err)
	}
}

func concat(groups ...[]cli.Flag) []cli.Flag {
	var result []cli.Flag

	for _, group := range groups {
		result = append(result, group...)
	}

	return result
}
