package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"social-post-scheduler/internal/app"
	"social-post-scheduler/internal/assist"
	"social-post-scheduler/internal/config"
	"social-post-scheduler/internal/lease"
	"social-post-scheduler/internal/logging"
	"social-post-scheduler/internal/models"
	"social-post-scheduler/internal/recurrence"
	"social-post-scheduler/internal/store"
)

type rootOptions struct {
	cfg config.Config
	log *logrus.Logger
	now func() time.Time
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{now: time.Now}
	var verbose bool

	root := &cobra.Command{
		Use:          "postctl",
		Short:        "Inspect and drive the post scheduler",
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, _ []string) {
			opts.cfg = config.Load()
			level := opts.cfg.LogLevel
			if verbose {
				level = "debug"
			}
			opts.log = logging.NewWithOutput(cmd.ErrOrStderr(), level, opts.cfg.LogFormat)
		},
	}
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")

	root.AddCommand(
		newExpandCmd(opts),
		newProvidersCmd(opts),
		newAssistCmd(opts),
		newTickCmd(opts),
		newDueCmd(opts),
	)
	return root
}

func newExpandCmd(opts *rootOptions) *cobra.Command {
	var (
		pattern string
		start   string
		end     string
		limit   int
	)
	cmd := &cobra.Command{
		Use:   "expand [content]",
		Short: "Preview the posts a recurrence rule would create",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			from, err := time.Parse(time.RFC3339, start)
			if err != nil {
				return fmt.Errorf("--start: %w", err)
			}
			to, err := time.Parse(time.RFC3339, end)
			if err != nil {
				return fmt.Errorf("--end: %w", err)
			}
			content := ""
			if len(args) == 1 {
				content = args[0]
			}
			bound := limit
			if bound <= 0 {
				bound = opts.cfg.MaxSeriesLength
			}
			occ, err := recurrence.Expander{MaxOccurrences: bound}.Expand(content, from, models.Pattern(pattern), to)
			if err != nil {
				return err
			}
			now := opts.now()
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "#\tSCHEDULED FOR\tWHEN")
			for i, o := range occ {
				fmt.Fprintf(w, "%d\t%s\t%s\n", i+1, o.ScheduledFor.UTC().Format(time.RFC3339), humanize.RelTime(o.ScheduledFor, now, "ago", "from now"))
			}
			if err := w.Flush(); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s posts\n", humanize.Comma(int64(len(occ))))
			return nil
		},
	}
	cmd.Flags().StringVar(&pattern, "pattern", "weekly", "daily, weekly or monthly")
	cmd.Flags().StringVar(&start, "start", "", "first occurrence (RFC3339)")
	cmd.Flags().StringVar(&end, "end", "", "last allowed time (RFC3339)")
	cmd.Flags().IntVar(&limit, "limit", 0, "maximum series length (defaults to MAX_SERIES_LENGTH)")
	_ = cmd.MarkFlagRequired("start")
	_ = cmd.MarkFlagRequired("end")
	return cmd
}

func newProvidersCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "providers",
		Short: "List text generation backends and whether they are configured",
		RunE: func(cmd *cobra.Command, _ []string) error {
			reg := app.NewOrchestrator(opts.cfg, opts.log).Registry()
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "PROVIDER\tAVAILABLE\tMODELS")
			for _, p := range reg.List() {
				names := make([]string, 0, len(p.Models()))
				for _, m := range p.Models() {
					names = append(names, m.Name)
				}
				fmt.Fprintf(w, "%s\t%t\t%s\n", p.Name(), p.Available(), strings.Join(names, ", "))
			}
			return w.Flush()
		},
	}
}

func newAssistCmd(opts *rootOptions) *cobra.Command {
	var preferred, model string
	cmd := &cobra.Command{
		Use:   "assist <prompt>",
		Short: "Run a prompt through the provider fallback chain",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			orch := app.NewOrchestrator(opts.cfg, opts.log)
			resp, err := orch.Generate(cmd.Context(), assist.Request{
				Prompt:            args[0],
				PreferredProvider: preferred,
				Model:             model,
			})
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), resp)
		},
	}
	cmd.Flags().StringVar(&preferred, "provider", "", "preferred provider")
	cmd.Flags().StringVar(&model, "model", "", "model name passed to the provider")
	return cmd
}

func newTickCmd(opts *rootOptions) *cobra.Command {
	var noRedis bool
	cmd := &cobra.Command{
		Use:   "tick",
		Short: "Run one scheduler pass against the configured database",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			st, err := store.New(ctx, opts.cfg.PostgresDSN)
			if err != nil {
				return err
			}
			defer st.Close()

			var rdb *redis.Client
			if !noRedis {
				rdb = lease.NewRedisClient(opts.cfg)
				defer rdb.Close()
			}
			sched, err := app.NewScheduler(ctx, opts.cfg, st, rdb, opts.log)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), sched.Tick(ctx))
		},
	}
	cmd.Flags().BoolVar(&noRedis, "no-redis", false, "skip the tick lease and use a local publish bucket")
	return cmd
}

func newDueCmd(opts *rootOptions) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "due",
		Short: "List posts the next tick would deliver",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			st, err := store.New(ctx, opts.cfg.PostgresDSN)
			if err != nil {
				return err
			}
			defer st.Close()

			now := opts.now()
			due, err := st.FindDue(ctx, now, limit)
			if err != nil {
				return err
			}
			return printPosts(cmd.OutOrStdout(), due, now)
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 50, "maximum posts to list")
	return cmd
}

func printPosts(out io.Writer, list []models.Post, now time.Time) error {
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tSTATUS\tSCHEDULED\tCONTENT")
	for _, p := range list {
		when := "-"
		if p.ScheduledFor != nil {
			when = humanize.RelTime(*p.ScheduledFor, now, "ago", "from now")
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", p.ID, p.Status, when, truncate(p.Content, 40))
	}
	return w.Flush()
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}

func printJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
