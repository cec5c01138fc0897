package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/radieske/stock-bet-settlement/internal/settlement/calendar"
	"github.com/radieske/stock-bet-settlement/internal/settlement/dto"
	"github.com/radieske/stock-bet-settlement/internal/settlement/engine"
)

// Settler é o subconjunto do motor usado pela CLI
type Settler interface {
	CheckOne(ctx context.Context, id string) (engine.Outcome, error)
	SweepDue(ctx context.Context, limit int, cursor string) (engine.SweepResult, error)
	SweepAll(ctx context.Context, limit int) (engine.SweepResult, error)
}

// ConnectFunc abre as dependências só para os comandos que precisam de banco
type ConnectFunc func() (Settler, func(), error)

func newRootCmd(ctx context.Context, connect ConnectFunc, defaultLimit int) *cobra.Command {
	root := &cobra.Command{
		Use:          "settlectl",
		Short:        "Operações manuais de liquidação de apostas",
		SilenceUsage: true,
	}
	root.AddCommand(checkCmd(ctx, connect))
	root.AddCommand(sweepCmd(ctx, connect, defaultLimit))
	root.AddCommand(holidaysCmd())
	root.AddCommand(tradingDayCmd())
	return root
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func checkCmd(ctx context.Context, connect ConnectFunc) *cobra.Command {
	return &cobra.Command{
		Use:   "check <bet-id>",
		Short: "Liquida uma aposta sob demanda",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, closeFn, err := connect()
			if err != nil {
				return err
			}
			defer closeFn()

			out, err := s.CheckOne(ctx, args[0])
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), struct {
				Outcome        string          `json:"outcome"`
				AlreadySettled bool            `json:"alreadySettled"`
				Bet            dto.BetResponse `json:"bet"`
			}{string(out.Status), out.AlreadySettled, dto.FromWager(out.Wager)})
		},
	}
}

func sweepCmd(ctx context.Context, connect ConnectFunc, defaultLimit int) *cobra.Command {
	var (
		limit  int
		cursor string
		all    bool
	)
	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Liquida apostas vencidas (uma página ou todas)",
		RunE: func(cmd *cobra.Command, args []string) error {
			if limit < 1 || limit > engine.MaxSweepLimit {
				return fmt.Errorf("--limit must be between 1 and %d", engine.MaxSweepLimit)
			}
			if all && cursor != "" {
				return fmt.Errorf("--all cannot be combined with --cursor")
			}
			s, closeFn, err := connect()
			if err != nil {
				return err
			}
			defer closeFn()

			var res engine.SweepResult
			if all {
				res, err = s.SweepAll(ctx, limit)
			} else {
				res, err = s.SweepDue(ctx, limit, cursor)
			}
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), res)
		},
	}
	if defaultLimit <= 0 {
		defaultLimit = engine.DefaultSweepLimit
	}
	cmd.Flags().IntVar(&limit, "limit", defaultLimit, "apostas por página (1..500)")
	cmd.Flags().StringVar(&cursor, "cursor", "", "continua depois de <YYYY-MM-DD>|<uuid>")
	cmd.Flags().BoolVar(&all, "all", false, "segue o cursor até esgotar as apostas vencidas")
	return cmd
}

func holidaysCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "holidays <year>",
		Short: "Lista os feriados da NYSE no ano",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			year, err := strconv.Atoi(args[0])
			if err != nil || year < 1900 || year > 2200 {
				return fmt.Errorf("invalid year %q", args[0])
			}
			cal, err := calendar.New()
			if err != nil {
				return err
			}
			days := make([]string, 0, 10)
			for d := time.Date(year, 1, 1, 0, 0, 0, 0, cal.Location()); d.Year() == year; d = d.AddDate(0, 0, 1) {
				if _, ok := cal.Holidays(year)[d.Format(calendar.DayLayout)]; ok {
					days = append(days, d.Format(calendar.DayLayout))
				}
			}
			return printJSON(cmd.OutOrStdout(), days)
		},
	}
}

func tradingDayCmd() *cobra.Command {
	var prev bool
	cmd := &cobra.Command{
		Use:   "trading-day <YYYY-MM-DD>",
		Short: "Resolve a data para o pregão mais próximo",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cal, err := calendar.New()
			if err != nil {
				return err
			}
			day, err := cal.ParseDay(args[0])
			if err != nil {
				return fmt.Errorf("invalid date %q", args[0])
			}
			dir := calendar.Next
			if prev {
				dir = calendar.Prev
			}
			resolved, err := cal.ResolveToTradingDay(day, dir)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), cal.DayKey(resolved))
			return err
		},
	}
	cmd.Flags().BoolVar(&prev, "prev", false, "procura para trás em vez de para frente")
	return cmd
}
