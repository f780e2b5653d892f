package main

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"os"
	"time"

	"github.com/hansol-club/stockfest/internal/config"
	"github.com/hansol-club/stockfest/internal/db"
	"github.com/hansol-club/stockfest/internal/game"
	"github.com/hansol-club/stockfest/internal/logger"
	"github.com/hansol-club/stockfest/internal/market"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

// Default roster, kept from the festival game this replaced.
var defaultStocks = []string{
	"삼전전자",
	"엘에스생활건강",
	"현소자동차",
	"GA칼텍스",
	"씨마트",
	"포스크",
	"커피톡",
	"빅하트",
}

const (
	defaultStockPrice    = 2000
	defaultStockQuantity = 20
)

func main() {
	root := &cobra.Command{
		Use:          "gamectl",
		Short:        "Operate the stockfest game: seed data, run rounds, settle prices",
		SilenceUsage: true,
	}

	root.AddCommand(
		newSeedCmd(),
		newUsersCmd(),
		newAssignCmd(),
		newStartCmd(),
		newFinishCmd(),
		newStatusCmd(),
	)

	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// withGame loads config, connects the store, and hands a ready game service
// to fn. Every subcommand is a one-shot batch job against the live database.
func withGame(cmd *cobra.Command, fn func(ctx context.Context, cfg config.Config, store *db.DB, svc *game.Service) error) error {
	log, err := logger.New()
	if err != nil {
		return err
	}
	defer log.Sync()

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), 2*time.Minute)
	defer cancel()

	store, err := db.NewDB(ctx, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer store.Close(ctx)

	return fn(ctx, cfg, store, game.NewService(store, log))
}

func newRand(seed int64) *rand.Rand {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return rand.New(rand.NewSource(seed))
}

func newSeedCmd() *cobra.Command {
	var (
		rounds  int
		oddProb float64
		seed    int64
	)
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Create stocks and rounds, then precompute every round's price actions",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withGame(cmd, func(ctx context.Context, cfg config.Config, store *db.DB, _ *game.Service) error {
				existing, err := store.ListStocks(ctx)
				if err != nil {
					return err
				}
				if len(existing) > 0 {
					color.Yellow("Database already has %d stocks, nothing to seed.", len(existing))
					return nil
				}

				if rounds == 0 {
					rounds = cfg.GameRounds
				}
				if oddProb == 0 {
					oddProb = cfg.OddProb
				}

				for _, name := range defaultStocks {
					if _, err := store.CreateStock(ctx, name, defaultStockPrice, defaultStockQuantity); err != nil {
						return err
					}
				}
				for i := 1; i <= rounds; i++ {
					if _, err := store.CreateRound(ctx, i); err != nil {
						return err
					}
				}

				stocks, err := store.ListStocks(ctx)
				if err != nil {
					return err
				}
				roundInfos, err := store.ListRounds(ctx)
				if err != nil {
					return err
				}

				gen := market.NewGenerator(oddProb, newRand(seed))
				actions := gen.Actions(stocks, roundInfos)
				for i := range actions {
					if _, err := store.CreateRoundAction(ctx, &actions[i]); err != nil {
						return err
					}
				}

				color.Green("Seeded %d stocks, %d rounds, %d round actions.",
					len(stocks), len(roundInfos), len(actions))
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&rounds, "rounds", 0, "number of rounds (default GAME_ROUNDS)")
	cmd.Flags().Float64Var(&oddProb, "odd-prob", 0, "per-round trend probability (default ODD_PROB)")
	cmd.Flags().Int64Var(&seed, "seed", 0, "random seed for a reproducible price script (0 = time-based)")
	return cmd
}

func newUsersCmd() *cobra.Command {
	var (
		count    int
		password string
		balance  int64
	)
	cmd := &cobra.Command{
		Use:   "users",
		Short: "Create numbered player accounts",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withGame(cmd, func(ctx context.Context, _ config.Config, store *db.DB, _ *game.Service) error {
				for i := 0; i < count; i++ {
					if _, err := store.CreateUser(ctx, fmt.Sprintf("user %d", i), password, balance); err != nil {
						return err
					}
				}
				color.Green("Created %d users.", count)
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&count, "count", 15, "number of users to create")
	cmd.Flags().StringVar(&password, "password", "1234", "password for every created user")
	cmd.Flags().Int64Var(&balance, "balance", 10000, "starting balance")
	return cmd
}

func newAssignCmd() *cobra.Command {
	var seed int64
	cmd := &cobra.Command{
		Use:   "assign",
		Short: "Randomly hand out round actions to players (display bookkeeping)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withGame(cmd, func(ctx context.Context, _ config.Config, store *db.DB, _ *game.Service) error {
				users, err := store.ListUsers(ctx)
				if err != nil {
					return err
				}
				actions, err := store.ListRoundActions(ctx)
				if err != nil {
					return err
				}

				assigned := market.DistributeActions(actions, users, newRand(seed))
				total := 0
				for userID, ids := range assigned {
					if err := store.AssignRoundActions(ctx, ids, userID); err != nil {
						return err
					}
					total += len(ids)
				}
				color.Green("Assigned %d round actions across %d users.", total, len(assigned))
				return nil
			})
		},
	}
	cmd.Flags().Int64Var(&seed, "seed", 0, "random seed (0 = time-based)")
	return cmd
}

func newStartCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the next round",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withGame(cmd, func(ctx context.Context, _ config.Config, _ *db.DB, svc *game.Service) error {
				round, err := svc.StartRound(ctx)
				if errors.Is(err, game.ErrNoEligibleRound) {
					color.Yellow("No round to start.")
					return nil
				}
				if err != nil {
					return err
				}
				color.Green("Round %d started.", round.RoundNumber)
				return nil
			})
		},
	}
}

func newFinishCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "finish",
		Short: "End the open round and settle stock prices",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withGame(cmd, func(ctx context.Context, _ config.Config, _ *db.DB, svc *game.Service) error {
				round, err := svc.FinishRound(ctx)
				if errors.Is(err, game.ErrNoEligibleRound) {
					color.Yellow("No round to end.")
					return nil
				}
				if err != nil {
					return err
				}
				color.Green("Round %d ended and settled.", round.RoundNumber)
				return nil
			})
		},
	}
}

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the open round and the price board",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withGame(cmd, func(ctx context.Context, _ config.Config, store *db.DB, svc *game.Service) error {
				round, err := svc.CurrentRound(ctx)
				if err != nil {
					return err
				}
				if round == nil {
					color.Yellow("No round is open.")
				} else {
					color.Cyan("Round %d open since %s.", round.RoundNumber, round.StartedAt.Format(time.RFC3339))
				}

				stocks, err := store.ListStocks(ctx)
				if err != nil {
					return err
				}
				for _, s := range stocks {
					delta := s.Price - s.PrevPrice
					line := fmt.Sprintf("%-12s price %6d (prev %6d, %+d)  inventory %d",
						s.Name, s.Price, s.PrevPrice, delta, s.Quantity)
					switch {
					case delta > 0:
						color.Green(line)
					case delta < 0:
						color.Red(line)
					default:
						fmt.Println(line)
					}
				}
				return nil
			})
		},
	}
}
