package main

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/kaamsathi/kaamsathi-api/internal/bootstrap"
	"github.com/kaamsathi/kaamsathi-api/internal/data"
)

// cacheScopes maps CLI scopes to key patterns under the cache prefix.
var cacheScopes = map[string][]string{
	"jobs":   {"jobs:*"},
	"views":  {"jobs:viewed:*"},
	"unread": {"notifications:unread:*"},
	"all":    {"*"},
}

type cacheOptions struct {
	Scope  string
	UserID string
	JobID  string
	DryRun bool
	Yes    bool
}

func parseCacheFlags(name string, args []string) (cacheOptions, error) {
	fs := newFlagSet(name)

	opts := cacheOptions{}
	fs.StringVar(&opts.Scope, "scope", "all", "Key family: jobs, views, unread or all")
	fs.StringVar(&opts.UserID, "user-id", "", "Only the unread count of this user")
	fs.StringVar(&opts.JobID, "job-id", "", "Only the document and view markers of this job")
	if name == "cache-clear" {
		fs.BoolVar(&opts.DryRun, "dry-run", false, "Report what would be deleted")
		fs.BoolVar(&opts.Yes, "yes", false, "Skip confirmation prompt")
	}

	if err := fs.Parse(args); err != nil {
		return cacheOptions{}, err
	}
	opts.Scope = strings.ToLower(strings.TrimSpace(opts.Scope))
	if _, ok := cacheScopes[opts.Scope]; !ok {
		return cacheOptions{}, fmt.Errorf("invalid --scope %q", opts.Scope)
	}
	if opts.UserID != "" && opts.JobID != "" {
		return cacheOptions{}, errors.New("--user-id and --job-id are mutually exclusive")
	}
	return opts, nil
}

// cachePatterns returns the SCAN patterns for opts, relative to the cache prefix.
func cachePatterns(opts cacheOptions) []string {
	switch {
	case opts.UserID != "":
		return []string{"notifications:unread:" + opts.UserID}
	case opts.JobID != "":
		return []string{"jobs:" + opts.JobID, "jobs:viewed:" + opts.JobID + ":*"}
	default:
		return cacheScopes[opts.Scope]
	}
}

func withCache(cmdCtx *commandContext, f func(context.Context, *data.RedisCacheRepo) error) error {
	ctx, cancel := context.WithTimeout(cmdCtx.Ctx, 2*time.Minute)
	defer cancel()

	infra, err := bootstrap.ConnectInfra(&cmdCtx.Config, cmdCtx.Logger, bootstrap.Needs{Redis: true})
	if err != nil {
		return err
	}
	defer closeInfra(cmdCtx, infra)
	return f(ctx, data.NewRedisCacheRepo(infra.Redis))
}

func runListCacheKeys(cmdCtx *commandContext, args []string) error {
	opts, err := parseCacheFlags("cache-keys", args)
	if err != nil {
		return err
	}
	return withCache(cmdCtx, func(ctx context.Context, cache *data.RedisCacheRepo) error {
		total := 0
		for _, pattern := range cachePatterns(opts) {
			cmdCtx.Logger.Info("scanning cache", "pattern", pattern)
			n, scanErr := cache.Scan(ctx, pattern, func(k data.CachedKey) error {
				return writef(cmdCtx.Out, "  %s (TTL: %s)\n", k.Key, renderTTL(k.TTL))
			})
			total += n
			if scanErr != nil {
				return scanErr
			}
		}
		if total == 0 {
			return writeln(cmdCtx.Out, "(no keys found)")
		}
		return writef(cmdCtx.Out, "\nTotal keys: %d\n", total)
	})
}

func renderTTL(d time.Duration) string {
	switch d {
	case -1:
		return "no expiry"
	case -2:
		return "key missing"
	default:
		return d.String()
	}
}

func cacheConfirmation(opts cacheOptions) confirmation {
	c := confirmation{
		Action:  "clear cached entries",
		Warning: "WARNING: cleared entries are rebuilt from Postgres on next read.",
		Skip:    opts.DryRun || opts.Yes,
	}
	switch {
	case opts.UserID != "":
		c.Target = fmt.Sprintf("unread count of user %q", opts.UserID)
	case opts.JobID != "":
		c.Target = fmt.Sprintf("job %q", opts.JobID)
	default:
		c.Target = fmt.Sprintf("scope %q", opts.Scope)
	}
	return c
}

func runClearCache(cmdCtx *commandContext, args []string) error {
	opts, err := parseCacheFlags("cache-clear", args)
	if err != nil {
		return err
	}
	if err := cmdCtx.Prompt.confirm(cacheConfirmation(opts)); err != nil {
		return err
	}

	return withCache(cmdCtx, func(ctx context.Context, cache *data.RedisCacheRepo) error {
		var sum data.PurgeResult
		for _, pattern := range cachePatterns(opts) {
			cmdCtx.Logger.Info("purging cache", "pattern", pattern, "dry_run", opts.DryRun)
			res, purgeErr := cache.Purge(ctx, pattern, opts.DryRun)
			sum.Matched += res.Matched
			sum.Deleted += res.Deleted
			sum.FailedBatches += res.FailedBatches
			if purgeErr != nil {
				return purgeErr
			}
		}
		if sum.FailedBatches > 0 {
			cmdCtx.Logger.Error("some cache delete batches failed", "failed_batches", sum.FailedBatches)
		}
		switch {
		case sum.Matched == 0:
			return writeln(cmdCtx.Out, "No cached keys matched")
		case opts.DryRun:
			return writef(cmdCtx.Out, "Dry-run: would delete %d/%d keys\n", sum.Deleted, sum.Matched)
		default:
			return writef(cmdCtx.Out, "Deleted %d/%d keys (%d failed batches)\n", sum.Deleted, sum.Matched, sum.FailedBatches)
		}
	})
}
