package cli

import (
	"bytes"
	"io"
	"log/slog"
	"testing"

	"github.com/attaboy/tracking/internal/destination"
	"github.com/attaboy/tracking/internal/domain"
	"github.com/attaboy/tracking/internal/split"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// cycle returns draws that walk evenly through [0, 1).
func cycle(steps int) func() float64 {
	i := 0
	return func() float64 {
		v := float64(i%steps) / float64(steps)
		i++
		return v
	}
}

func weightedLink() *domain.TrackingLink {
	return &domain.TrackingLink{
		ID: "tl-1",
		Placement: domain.Placement{
			TargetType: domain.TargetSplitTest,
			SplitTest: &domain.SplitTest{ID: "st", Variants: []domain.Variant{
				{ID: "a", Weight: 1, Offer: &domain.Offer{ID: "a", URL: "https://a.com"}},
				{ID: "b", Weight: 1, Offer: &domain.Offer{ID: "b", URL: "https://b.com"}},
				{ID: "c", Weight: 2, Offer: &domain.Offer{ID: "c", URL: "https://c.com"}},
			}},
		},
	}
}

func TestDistribution(t *testing.T) {
	shares, err := Distribution(weightedLink(), split.NewSelectorWithSource(cycle(4)), 400, discardLogger())
	require.NoError(t, err)

	require.Len(t, shares, 3)
	assert.Equal(t, Share{URL: "https://c.com", Kind: destination.KindSplitTest, Count: 200}, shares[0])
	assert.Equal(t, "https://a.com", shares[1].URL)
	assert.Equal(t, 100, shares[1].Count)
	assert.Equal(t, 100, shares[2].Count)
}

func TestDistribution_Unresolvable(t *testing.T) {
	_, err := Distribution(&domain.TrackingLink{ID: "empty"}, split.NewSelector(), 10, discardLogger())
	assert.True(t, domain.HasCode(err, domain.CodeUnresolvedDestination))
}

func TestPrintDistribution(t *testing.T) {
	var buf bytes.Buffer
	PrintDistribution(&buf, weightedLink(), []Share{{URL: "https://c.com", Kind: destination.KindSplitTest, Count: 3}}, 4)

	out := buf.String()
	assert.Contains(t, out, "LINK: tl-1")
	assert.Contains(t, out, "TARGET: SPLIT_TEST")
	assert.Contains(t, out, " 75.0%")
	assert.Contains(t, out, "https://c.com")
}

func TestCommandsRegistered(t *testing.T) {
	names := map[string]bool{}
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}
	assert.True(t, names["migrate"])
	assert.True(t, names["token"])
	assert.True(t, names["resolve"])
	assert.True(t, names["invalidate"])
}
