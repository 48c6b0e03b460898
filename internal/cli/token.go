package cli

import (
	"fmt"

	"github.com/attaboy/tracking/internal/auth"
	"github.com/spf13/cobra"
)

var (
	tokenNetwork string
	tokenStatus  string
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Issue a postback token for an affiliate network",
	Long: `Print a signed postback token for an affiliate network.

The network passes it as a Bearer header or as the token query parameter:
  GET /postback?click_id={click_id}&transaction_id={txn}&token=<token>

Example:
  trackctl token --network net-42`,
	Args: cobra.NoArgs,
	RunE: runToken,
}

func init() {
	tokenCmd.Flags().StringVar(&tokenNetwork, "network", "", "network id (token subject)")
	tokenCmd.Flags().StringVar(&tokenStatus, "status", auth.StatusActive, "network status claim (active or suspended)")
	tokenCmd.MarkFlagRequired("network")
	rootCmd.AddCommand(tokenCmd)
}

func runToken(cmd *cobra.Command, args []string) error {
	logger := newLogger()
	cfg, err := loadConfig(logger)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	if tokenStatus != auth.StatusActive && tokenStatus != auth.StatusSuspended {
		return fmt.Errorf("unknown status %q", tokenStatus)
	}

	mgr := auth.NewTokenManager(cfg.JWTSecret, cfg.PostbackTokenExpiry)
	token, err := mgr.GenerateToken(auth.RealmNetwork, tokenNetwork, tokenStatus)
	if err != nil {
		return fmt.Errorf("failed to sign token: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintln(out, token)
	fmt.Fprintf(out, "\nPostback URL: %s/postback?click_id={click_id}&token=%s\n", cfg.PublicBaseURL, token)
	fmt.Fprintf(out, "Expires in: %s\n", cfg.PostbackTokenExpiry)
	return nil
}
