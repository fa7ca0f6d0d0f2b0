package main

import (
	"fmt"
	"os"
	"time"

	"github.com/sachida369/AICaller/internal/auth"
	"github.com/sachida369/AICaller/internal/config"
	"github.com/sachida369/AICaller/internal/rbac"

	"github.com/spf13/cobra"
)

var (
	flagSubject string
	flagRole    string
	flagTTL     time.Duration
)

// rootCmd prints a signed API access token
var rootCmd = &cobra.Command{
	Use:   "issue-token",
	Short: "Print a signed API access token",
	Long: `Sign an access token for the AICaller API with the configured JWT secret.

Configuration is read the same way the API reads it (CONFIG_FILE, then environment),
so JWT_SECRET, JWT_ISSUER and JWT_AUDIENCE must match the running server.

Roles:
  viewer   - read leads, campaigns, summaries and events
  operator - everything a viewer can do, plus uploads and campaign control
  admin    - unrestricted`,
	Args:          cobra.NoArgs,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          runIssueToken,
}

func init() {
	rootCmd.Flags().StringVar(&flagSubject, "subject", "", "operator identity recorded on audit events (required)")
	rootCmd.Flags().StringVar(&flagRole, "role", rbac.RoleOperator, "token role: viewer, operator or admin")
	rootCmd.Flags().DurationVar(&flagTTL, "ttl", 0, "token lifetime; defaults to JWT_ACCESS_TTL")
	_ = rootCmd.MarkFlagRequired("subject")
}

func runIssueToken(cmd *cobra.Command, args []string) error {
	if !rbac.IsKnownRole(flagRole) {
		return fmt.Errorf("unknown role %q", flagRole)
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if !cfg.Auth.Enabled() {
		return fmt.Errorf("JWT_SECRET is not set; the API runs without authentication")
	}
	if flagTTL > 0 {
		cfg.Auth.AccessTokenTTL = flagTTL
	}

	m, err := auth.NewManager(cfg.Auth)
	if err != nil {
		return err
	}
	tok, err := m.Issue(time.Now(), flagSubject, flagRole)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), tok)
	return nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "issue-token:", err)
		os.Exit(1)
	}
}
