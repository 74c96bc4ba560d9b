package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/stackgate/stackgate/internal/config"
	"github.com/stackgate/stackgate/internal/logging"
)

// RegisterConfigureCommands adds profile management commands.
func RegisterConfigureCommands(root *cobra.Command) {
	var (
		endpoint    string
		accessKeyID string
		secretKey   string
		region      string
	)

	configureCmd := &cobra.Command{
		Use:   "configure",
		Short: "Store gateway endpoint and credentials",
		Long: `Write the CLI profile to ~/.stackgate/config.json. Flags update only the
fields they name; everything else keeps its stored value. When a new access
key id is given without --secret-key, the secret is prompted for so it never
lands in shell history.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			profile, err := config.LoadProfile()
			if err != nil {
				return fmt.Errorf("loading profile: %w", err)
			}

			if endpoint != "" {
				profile.Endpoint = endpoint
			}
			if region != "" {
				profile.Region = region
			}
			if accessKeyID != "" {
				profile.AccessKeyID = accessKeyID
				profile.SecretAccessKey = ""
			}
			if secretKey != "" {
				profile.SecretAccessKey = secretKey
			}

			if profile.AccessKeyID != "" && profile.SecretAccessKey == "" {
				fmt.Fprint(os.Stderr, "Secret access key: ")
				secretBytes, err := term.ReadPassword(int(os.Stdin.Fd()))
				if err != nil {
					return fmt.Errorf("reading secret key: %w", err)
				}
				fmt.Fprintln(os.Stderr)
				profile.SecretAccessKey = string(secretBytes)
			}

			if err := config.SaveProfile(profile); err != nil {
				return fmt.Errorf("saving profile: %w", err)
			}

			fmt.Printf("Profile written to %s\n", filepath.Join(config.ProfileDir(), config.ProfileFileName))
			return nil
		},
	}

	configureCmd.Flags().StringVar(&endpoint, "endpoint", "", "Gateway endpoint URL")
	configureCmd.Flags().StringVar(&accessKeyID, "access-key-id", "", "API access key id")
	configureCmd.Flags().StringVar(&secretKey, "secret-key", "", "API secret key (prompted when omitted)")
	configureCmd.Flags().StringVar(&region, "region", "", "SigV4 signing region")

	configureCmd.AddCommand(newConfigureShowCmd())

	root.AddCommand(configureCmd)
}

func newConfigureShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show the stored profile",
		RunE: func(cmd *cobra.Command, args []string) error {
			profile, err := config.LoadProfile()
			if err != nil {
				return fmt.Errorf("loading profile: %w", err)
			}

			fmt.Printf("Endpoint:      %s\n", profile.Endpoint)
			fmt.Printf("Region:        %s\n", profile.Region)
			if profile.AccessKeyID == "" {
				fmt.Println("Access key id: (not configured)")
				return nil
			}
			fmt.Printf("Access key id: %s\n", profile.AccessKeyID)
			fmt.Printf("Secret key:    %s\n", logging.RedactValue(profile.SecretAccessKey))
			return nil
		},
	}
}
