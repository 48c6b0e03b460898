package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/attaboy/tracking/internal/infra"
	"github.com/attaboy/tracking/internal/repository"
	"github.com/spf13/cobra"
)

var invalidateCmd = &cobra.Command{
	Use:   "invalidate <trackingLinkId>...",
	Short: "Drop cached tracking links after editing their placement",
	Long: `Remove tracking links from the Redis link cache so the next click or
visit reads offers, split test weights and landing pages from Postgres.
Traffic source status is never served from the cache and needs no
invalidation.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runInvalidate,
}

func init() {
	rootCmd.AddCommand(invalidateCmd)
}

func runInvalidate(cmd *cobra.Command, args []string) error {
	logger := newLogger()
	cfg, err := loadConfig(logger)
	if err != nil {
		return err
	}
	if cfg.RedisURL == "" {
		return fmt.Errorf("REDIS_URL is not set; the link cache is disabled")
	}

	ctx := context.Background()
	rdb, err := infra.NewRedisClient(ctx, cfg.RedisURL)
	if err != nil {
		return fmt.Errorf("failed to connect: %w", err)
	}
	defer rdb.Close()

	cache := repository.NewCachedTrackingLinks(nil, nil, rdb, cfg.LinkCacheTTL, logger)
	return InvalidateLinks(ctx, cmd.OutOrStdout(), cache, args)
}

// InvalidateLinks drops each id from the cache, stopping at the first failure.
func InvalidateLinks(ctx context.Context, w io.Writer, cache *repository.CachedTrackingLinks, ids []string) error {
	for _, id := range ids {
		if err := cache.Invalidate(ctx, id); err != nil {
			return fmt.Errorf("failed to invalidate %s: %w", id, err)
		}
		fmt.Fprintf(w, "invalidated %s\n", id)
	}
	return nil
}
