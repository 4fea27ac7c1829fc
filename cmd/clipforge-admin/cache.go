package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/redis/go-redis/v9"
)

const playlistCachePattern = "playlist:listing:*"

type cacheClearOptions struct {
	DryRun bool
	Yes    bool
}

func parseCacheClearFlags(args []string) (cacheClearOptions, error) {
	fs := flag.NewFlagSet("clear-playlist-cache", flag.ContinueOnError)
	dryRun := fs.Bool("dry-run", false, "report matching keys without deleting them")
	yes := fs.Bool("yes", false, "skip the confirmation prompt")
	if err := fs.Parse(args); err != nil {
		return cacheClearOptions{}, err
	}
	return cacheClearOptions{DryRun: *dryRun, Yes: *yes}, nil
}

func runListPlaylistCache(cmdCtx *commandContext, _ []string) error {
	ctx, cancel := context.WithTimeout(cmdCtx.Ctx, 2*time.Minute)
	defer cancel()

	redisClient, err := requireRedis(cmdCtx)
	if err != nil || redisClient == nil {
		return err
	}
	defer func() {
		if closeErr := redisClient.Close(); closeErr != nil {
			cmdCtx.Logger.Warn("redis close failed", "error", closeErr)
		}
	}()

	cmdCtx.Logger.Info("scanning redis", "pattern", playlistCachePattern)

	if err = writef(os.Stdout, "\nPlaylist Listing Cache\n"); err != nil {
		return fmt.Errorf("print cache header: %w", err)
	}

	total, err := writePlaylistCacheKeys(playlistCacheScanInput{
		Ctx:    ctx,
		Iter:   redisClient.Scan(ctx, 0, playlistCachePattern, 100).Iterator(),
		Client: redisClient,
		Logger: cmdCtx.Logger,
	})
	if err != nil {
		return err
	}

	if total == 0 {
		return writeln(os.Stdout, "(no keys found)")
	}
	return writef(os.Stdout, "\nTotal keys: %d\n", total)
}

type playlistCacheScanInput struct {
	Ctx    context.Context
	Iter   *redis.ScanIterator
	Client redis.UniversalClient
	Logger *slog.Logger
}

func writePlaylistCacheKeys(input playlistCacheScanInput) (int, error) {
	if input.Iter == nil {
		return 0, errors.New("redis scan: nil iterator")
	}

	total := 0
	for input.Iter.Next(input.Ctx) {
		key := input.Iter.Val()
		total++

		ttl, ttlErr := input.Client.TTL(input.Ctx, key).Result()
		if ttlErr != nil {
			input.Logger.ErrorContext(input.Ctx, "failed to fetch TTL", "key", key, "error", ttlErr)
			if err := writef(os.Stdout, "  %s (TTL: error: %v)\n", key, ttlErr); err != nil {
				return 0, fmt.Errorf("print cache key ttl error: %w", err)
			}
			continue
		}
		if err := writef(os.Stdout, "  %s (TTL: %s)\n", key, renderTTL(ttl)); err != nil {
			return 0, fmt.Errorf("print cache key: %w", err)
		}
	}

	if err := input.Iter.Err(); err != nil {
		return 0, fmt.Errorf("redis scan: %w", err)
	}
	return total, nil
}

func runClearPlaylistCache(cmdCtx *commandContext, args []string) error {
	opts, err := parseCacheClearFlags(args)
	if err != nil {
		return err
	}

	if !opts.DryRun {
		if confirmErr := confirmAction(opts.Yes, "clear playlist cache keys", "the configured Redis"); confirmErr != nil {
			return confirmErr
		}
	}

	ctx, cancel := context.WithTimeout(cmdCtx.Ctx, 2*time.Minute)
	defer cancel()

	redisClient, err := requireRedis(cmdCtx)
	if err != nil || redisClient == nil {
		return err
	}
	defer func() {
		if closeErr := redisClient.Close(); closeErr != nil {
			cmdCtx.Logger.Warn("redis close failed", "error", closeErr)
		}
	}()

	iter := redisClient.Scan(ctx, 0, playlistCachePattern, 100).Iterator()

	total := 0
	deleted := 0
	batch := make([]string, 0, 100)
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		if opts.DryRun {
			batch = batch[:0]
			return nil
		}
		n, delErr := redisClient.Del(ctx, batch...).Result()
		if delErr != nil {
			return fmt.Errorf("redis del: %w", delErr)
		}
		deleted += int(n)
		batch = batch[:0]
		return nil
	}

	for iter.Next(ctx) {
		total++
		batch = append(batch, iter.Val())
		if len(batch) == cap(batch) {
			if err = flush(); err != nil {
				return err
			}
		}
	}
	if err = iter.Err(); err != nil {
		return fmt.Errorf("redis scan: %w", err)
	}
	if err = flush(); err != nil {
		return err
	}

	if opts.DryRun {
		return writef(os.Stdout, "Dry-run: would delete %d keys\n", total)
	}
	return writef(os.Stdout, "Deleted %d/%d keys\n", deleted, total)
}

// requireRedis connects Redis only, printing a notice when it is not configured.
//
//nolint:ireturn // returning redis.UniversalClient keeps sentinel support flexible.
func requireRedis(cmdCtx *commandContext) (redis.UniversalClient, error) {
	_, redisClient, err := connectInfraWithOptions(&connectInfraOptions{
		Logger:    cmdCtx.Logger,
		Config:    &cmdCtx.Config,
		WantRedis: true,
	})
	if err != nil {
		return nil, err
	}
	if redisClient == nil {
		if writeErr := writeln(os.Stderr, "Redis client is not available"); writeErr != nil {
			return nil, fmt.Errorf("print redis availability: %w", writeErr)
		}
		return nil, nil
	}
	return redisClient, nil
}

func renderTTL(d time.Duration) string {
	switch {
	case d == -1*time.Second:
		return "no expiry"
	case d == -2*time.Second:
		return "key missing"
	default:
		return d.String()
	}
}
