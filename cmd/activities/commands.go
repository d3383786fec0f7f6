package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/talgya/serenissima/internal/activity"
	"github.com/talgya/serenissima/internal/api"
	"github.com/talgya/serenissima/internal/persistence"
	"github.com/talgya/serenissima/internal/resolver"
	"github.com/talgya/serenissima/internal/social"
)

var scheduleCmd = &cobra.Command{
	Use:   "schedule",
	Short: "Create activities for idle citizens",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()
		stats, err := a.engine.SchedulePass(cmd.Context())
		if err != nil {
			return err
		}
		handlers := make([]string, 0, len(stats.ByHandler))
		for h := range stats.ByHandler {
			handlers = append(handlers, h)
		}
		sort.Strings(handlers)
		for _, h := range handlers {
			a.logger.Info("created", "handler", h, "count", stats.ByHandler[h])
		}
		return nil
	},
}

var resolveCmd = &cobra.Command{
	Use:   "resolve",
	Short: "Resolve activities that have ended",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()
		_, err = a.engine.ResolvePass(cmd.Context())
		return err
	},
}

var tickCmd = &cobra.Command{
	Use:   "tick",
	Short: "Resolve, then schedule, once",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()
		stats, err := a.engine.Tick(cmd.Context())
		if err != nil {
			return err
		}
		a.logTick(stats)
		return nil
	},
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Tick on an interval until interrupted",
	RunE: func(cmd *cobra.Command, args []string) error {
		interval, err := cmd.Flags().GetDuration("interval")
		if err != nil {
			return err
		}
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()
		return a.engine.Run(cmd.Context(), interval)
	},
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Tick on an interval and serve the HTTP API",
	RunE: func(cmd *cobra.Command, args []string) error {
		interval, err := cmd.Flags().GetDuration("interval")
		if err != nil {
			return err
		}
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()
		if a.cfg.APIAddr == "" {
			return errors.New("ACTIVITIES_API_ADDR is not set")
		}
		if a.cfg.AdminKey == "" {
			a.logger.Warn("ACTIVITIES_ADMIN_KEY not set, manual ticks disabled")
		}

		srv := &api.Server{
			Store:    a.store,
			Engine:   a.engine,
			Addr:     a.cfg.APIAddr,
			AdminKey: a.cfg.AdminKey,
			Logger:   a.logger,
		}
		g, ctx := errgroup.WithContext(cmd.Context())
		g.Go(func() error { return a.engine.Run(ctx, interval) })
		g.Go(func() error { return srv.ListenAndServe(ctx) })
		return g.Wait()
	},
}

var seedCmd = &cobra.Command{
	Use:   "seed <fixture.json>",
	Short: "Load citizens, buildings, contracts and resources from a JSON fixture",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		raw, err := os.ReadFile(args[0])
		if err != nil {
			return err
		}
		var seed persistence.Seed
		if err := json.Unmarshal(raw, &seed); err != nil {
			return fmt.Errorf("parse %s: %w", args[0], err)
		}
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()
		if err := seed.Apply(cmd.Context(), a.store); err != nil {
			return err
		}
		a.logger.Info("fixture loaded", "file", args[0],
			"citizens", len(seed.Citizens), "buildings", len(seed.Buildings),
			"contracts", len(seed.Contracts), "resources", len(seed.Resources))
		return nil
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Summarize pending work, failures and money in circulation",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()
		return printStatus(cmd, a, cmd.OutOrStdout())
	},
}

func init() {
	runCmd.Flags().Duration("interval", 5*time.Minute, "time between ticks")
	serveCmd.Flags().Duration("interval", 5*time.Minute, "time between ticks")
	statusCmd.Flags().Duration("since", 24*time.Hour, "window for recent failures")
}

func printStatus(cmd *cobra.Command, a *app, out io.Writer) error {
	ctx := cmd.Context()
	since, err := cmd.Flags().GetDuration("since")
	if err != nil {
		return err
	}
	now := time.Now()

	pending, err := a.store.Activities(ctx, persistence.ActivityFilter{Status: activity.StatusCreated})
	if err != nil {
		return err
	}
	failed, err := a.store.Activities(ctx, persistence.ActivityFilter{
		Status: activity.StatusFailed, ProcessedAfter: now.Add(-since),
	})
	if err != nil {
		return err
	}
	inVenice := true
	citizens, err := a.store.Citizens(ctx, persistence.CitizenFilter{InVenice: &inVenice})
	if err != nil {
		return err
	}
	reports, err := a.store.Notifications(ctx, social.AdminRecipient)
	if err != nil {
		return err
	}

	running, due := 0, 0
	byType := map[activity.Type]int{}
	for _, act := range pending {
		byType[act.Type]++
		if act.IsConcluded(now) {
			due++
		} else {
			running++
		}
	}
	var purse int64
	for _, c := range citizens {
		if c.Username != resolver.Treasury {
			purse += int64(c.Ducats)
		}
	}

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "citizens in Venice\t%s\n", humanize.Comma(int64(len(citizens))))
	fmt.Fprintf(tw, "activities running\t%s\n", humanize.Comma(int64(running)))
	fmt.Fprintf(tw, "awaiting resolution\t%s\n", humanize.Comma(int64(due)))
	fmt.Fprintf(tw, "failed since %s\t%s\n", humanize.Time(now.Add(-since)), humanize.Comma(int64(len(failed))))
	fmt.Fprintf(tw, "ducats held by citizens\t%s\n", humanize.CommafWithDigits(float64(purse)/100, 2))
	if len(reports) > 0 {
		last := reports[len(reports)-1]
		fmt.Fprintf(tw, "last failure report\t%s\n", humanize.Time(last.CreatedAt))
	}
	types := make([]activity.Type, 0, len(byType))
	for t := range byType {
		types = append(types, t)
	}
	sort.Slice(types, func(i, j int) bool { return byType[types[i]] > byType[types[j]] })
	for _, t := range types {
		fmt.Fprintf(tw, "  %s\t%d\n", t, byType[t])
	}
	return tw.Flush()
}
