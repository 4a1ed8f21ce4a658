package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/kaamsathi/kaamsathi-api/internal/bootstrap"
	"github.com/kaamsathi/kaamsathi-api/internal/data"
	"github.com/kaamsathi/kaamsathi-api/internal/service"
)

type reconcileOptions struct {
	Timeout time.Duration
	JSON    bool
	NoCache bool
}

func parseReconcileFlags(args []string) (reconcileOptions, error) {
	var opts reconcileOptions
	fs := newFlagSet("reconcile")
	fs.BoolVar(&opts.JSON, "json", false, "Print the report as JSON")
	fs.BoolVar(&opts.NoCache, "no-cache", false, "Skip Redis; cached job documents are left to expire")
	if err := parseTimed(fs, &opts.Timeout, 2*time.Minute, args); err != nil {
		return reconcileOptions{}, err
	}
	return opts, nil
}

func runReconcile(cmdCtx *commandContext, args []string) error {
	opts, err := parseReconcileFlags(args)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(cmdCtx.Ctx, opts.Timeout)
	defer cancel()

	infra, err := bootstrap.ConnectInfra(&cmdCtx.Config, cmdCtx.Logger,
		bootstrap.Needs{DB: true, RedisIfConfigured: !opts.NoCache})
	if err != nil {
		return err
	}
	defer closeInfra(cmdCtx, infra)

	rc := bootstrap.ReconcilerConfig{
		DB:          infra.DB,
		Logger:      cmdCtx.Logger,
		Config:      cmdCtx.Config.Reconciler,
		Marketplace: cmdCtx.Config.Marketplace,
	}
	if infra.Redis != nil {
		rc.Cache = data.NewRedisCacheRepo(infra.Redis)
	}
	runner, err := bootstrap.NewReconcilerRunner(rc)
	if err != nil {
		return err
	}

	report, err := runner.RunOnce(ctx)
	if err != nil {
		return fmt.Errorf("reconcile: %w", err)
	}
	if opts.JSON {
		enc := json.NewEncoder(cmdCtx.Out)
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	}
	return printReconcileReport(cmdCtx.Out, report)
}

func printReconcileReport(w io.Writer, report *service.ReconcileReport) error {
	if report == nil {
		return writeln(w, "No report produced")
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	rows := []struct {
		label string
		value any
	}{
		{"Expired jobs", report.Expired},
		{"Capacity drift corrected", len(report.Drift)},
		{"Employer mismatches", report.Mismatches},
		{"Purged notifications", report.Purged},
		{"Elapsed", report.Elapsed.Round(time.Millisecond)},
	}
	for _, r := range rows {
		if err := writef(tw, "%s:\t%v\n", r.label, r.value); err != nil {
			return fmt.Errorf("print reconcile summary: %w", err)
		}
	}
	if err := tw.Flush(); err != nil {
		return fmt.Errorf("flush reconcile summary: %w", err)
	}
	if len(report.Drift) == 0 {
		return nil
	}

	if err := writeln(w, "\nCapacity drift"); err != nil {
		return err
	}
	tw = tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	if err := writef(tw, "JOB\tSTORED\tRECOUNT\tMAX\n"); err != nil {
		return err
	}
	for _, d := range report.Drift {
		if err := writef(tw, "%s\t%d\t%d\t%d\n", d.JobID, d.Stored, d.Recount, d.MaxSlots); err != nil {
			return fmt.Errorf("print drift row: %w", err)
		}
	}
	return tw.Flush()
}
