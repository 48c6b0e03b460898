package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strings"

	"github.com/attaboy/tracking/internal/destination"
	"github.com/attaboy/tracking/internal/domain"
	"github.com/attaboy/tracking/internal/infra"
	"github.com/attaboy/tracking/internal/repository"
	"github.com/attaboy/tracking/internal/split"
	"github.com/spf13/cobra"
)

var resolveCount int

var resolveCmd = &cobra.Command{
	Use:   "resolve <trackingLinkId>",
	Short: "Dry-run destination resolution for a tracking link",
	Long: `Resolve a tracking link N times without recording anything and print
how often each destination template was chosen. Useful to sanity check
split test weights.`,
	Args: cobra.ExactArgs(1),
	RunE: runResolve,
}

func init() {
	resolveCmd.Flags().IntVarP(&resolveCount, "count", "n", 1000, "number of resolutions")
	rootCmd.AddCommand(resolveCmd)
}

func runResolve(cmd *cobra.Command, args []string) error {
	if resolveCount <= 0 {
		return fmt.Errorf("-n must be positive")
	}
	logger := newLogger()
	cfg, err := loadConfig(logger)
	if err != nil {
		return err
	}

	ctx := context.Background()
	pool, err := infra.NewPostgresPool(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to connect: %w", err)
	}
	defer pool.Close()

	link, err := repository.NewTrackingLinkRepository().FindByID(ctx, pool, args[0])
	if err != nil {
		return fmt.Errorf("failed to load tracking link: %w", err)
	}
	if link == nil {
		return fmt.Errorf("tracking link '%s' not found", args[0])
	}

	shares, err := Distribution(link, split.NewSelector(), resolveCount, logger)
	if err != nil {
		return err
	}
	PrintDistribution(cmd.OutOrStdout(), link, shares, resolveCount)
	return nil
}

// Share is how often one destination was chosen.
type Share struct {
	URL   string
	Kind  destination.Kind
	Count int
}

// Distribution resolves link n times and returns the chosen destinations,
// most frequent first.
func Distribution(link *domain.TrackingLink, picker destination.Picker, n int, logger *slog.Logger) ([]Share, error) {
	resolver := destination.NewResolver(picker, logger)
	byURL := map[string]*Share{}
	for i := 0; i < n; i++ {
		dest, err := resolver.Resolve(link, nil)
		if err != nil {
			return nil, err
		}
		s, ok := byURL[dest.URL]
		if !ok {
			s = &Share{URL: dest.URL, Kind: dest.Kind}
			byURL[dest.URL] = s
		}
		s.Count++
	}

	shares := make([]Share, 0, len(byURL))
	for _, s := range byURL {
		shares = append(shares, *s)
	}
	sort.Slice(shares, func(i, j int) bool {
		if shares[i].Count != shares[j].Count {
			return shares[i].Count > shares[j].Count
		}
		return shares[i].URL < shares[j].URL
	})
	return shares, nil
}

// PrintDistribution writes shares as a table.
func PrintDistribution(w io.Writer, link *domain.TrackingLink, shares []Share, n int) {
	fmt.Fprintf(w, "LINK: %s\n", link.ID)
	fmt.Fprintf(w, "TARGET: %s\n", link.Placement.TargetType)
	fmt.Fprintf(w, "RESOLUTIONS: %d\n\n", n)
	fmt.Fprintln(w, "SHARE    COUNT    KIND          DESTINATION")
	fmt.Fprintln(w, strings.Repeat("─", 60))
	for _, s := range shares {
		fmt.Fprintf(w, "%5.1f%%   %-7d  %-12s  %s\n", float64(s.Count)*100/float64(n), s.Count, s.Kind, s.URL)
	}
}
