package main

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/stackgate/stackgate/internal/audit"
	"github.com/stackgate/stackgate/internal/config"
	"github.com/stackgate/stackgate/internal/keystore"
)

func newKeysCmd() *cobra.Command {
	keysCmd := &cobra.Command{
		Use:   "keys",
		Short: "Manage API signing keys",
	}

	keysCmd.PersistentFlags().String("keystore", "", "Keystore file (default: <state dir>/"+keystore.DefaultFileName+")")
	keysCmd.PersistentFlags().String("passphrase", os.Getenv("STACKGATE_KEYSTORE_PASSPHRASE"), "Keystore passphrase (prompted when empty)")

	keysCmd.AddCommand(newKeysAddCmd())
	keysCmd.AddCommand(newKeysListCmd())
	keysCmd.AddCommand(newKeysRemoveCmd())

	return keysCmd
}

func newKeysAddCmd() *cobra.Command {
	var (
		tenant      string
		principal   string
		accessKeyID string
		secretKey   string
	)

	cmd := &cobra.Command{
		Use:   "add",
		Short: "Create a signing key for a caller",
		Long: `Create an API signing key bound to a tenant and principal. The key id and
secret are generated unless given explicitly. The secret is printed exactly
once; it cannot be recovered later, only replaced.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if tenant == "" {
				return fmt.Errorf("--tenant is required")
			}
			if principal == "" {
				return fmt.Errorf("--principal is required")
			}

			var err error
			if accessKeyID == "" {
				if accessKeyID, err = generateAccessKeyID(); err != nil {
					return fmt.Errorf("generating access key id: %w", err)
				}
			}
			if secretKey == "" {
				if secretKey, err = generateSecretKey(); err != nil {
					return fmt.Errorf("generating secret key: %w", err)
				}
			}

			cfg, store, err := openStore(cmd)
			if err != nil {
				return err
			}
			defer store.Close()

			if err := store.Put(keystore.Credential{
				AccessKeyID:     accessKeyID,
				SecretAccessKey: secretKey,
				Tenant:          tenant,
				Principal:       principal,
			}); err != nil {
				return err
			}
			if err := store.Save(); err != nil {
				return err
			}
			recordKeyEvent(cfg, audit.EventKeyAdded, tenant, principal, accessKeyID)

			fmt.Printf("Signing key created for %s/%s\n", tenant, principal)
			fmt.Printf("  Access key id: %s\n", accessKeyID)
			fmt.Printf("  Secret key:    %s\n", secretKey)
			fmt.Println("\nStore the secret now; it is not shown again.")
			return nil
		},
	}

	cmd.Flags().StringVar(&tenant, "tenant", "", "Tenant the key belongs to (required)")
	cmd.Flags().StringVar(&principal, "principal", "", "Principal the key authenticates as (required)")
	cmd.Flags().StringVar(&accessKeyID, "access-key-id", "", "Access key id (generated when empty)")
	cmd.Flags().StringVar(&secretKey, "secret-key", "", "Secret key (generated when empty)")

	return cmd
}

func newKeysListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List stored signing keys",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, store, err := openStore(cmd)
			if err != nil {
				return err
			}
			defer store.Close()

			ids := store.List()
			if len(ids) == 0 {
				fmt.Println("No signing keys stored.")
				return nil
			}

			fmt.Printf("%-24s %-16s %-16s %s\n", "ACCESS KEY ID", "TENANT", "PRINCIPAL", "CREATED")
			for _, id := range ids {
				cred, err := store.Lookup(id)
				if err != nil {
					return err
				}
				fmt.Printf("%-24s %-16s %-16s %s\n",
					id, cred.Tenant, cred.Principal, cred.CreatedAt.Format(time.RFC3339))
			}
			return nil
		},
	}
}

func newKeysRemoveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rm <access-key-id>",
		Short: "Remove a signing key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			accessKeyID := args[0]

			cfg, store, err := openStore(cmd)
			if err != nil {
				return err
			}
			defer store.Close()

			cred, err := store.Lookup(accessKeyID)
			if err != nil {
				return err
			}
			if err := store.Remove(accessKeyID); err != nil {
				return err
			}
			if err := store.Save(); err != nil {
				return err
			}
			recordKeyEvent(cfg, audit.EventKeyRemoved, cred.Tenant, cred.Principal, accessKeyID)

			fmt.Printf("Removed %s (%s/%s). Requests signed with it will be rejected.\n",
				accessKeyID, cred.Tenant, cred.Principal)
			return nil
		},
	}
}

// openStore resolves the keystore location and passphrase from flags, the
// environment, and finally an interactive prompt.
func openStore(cmd *cobra.Command) (*config.Config, *keystore.Store, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}

	path, _ := cmd.Flags().GetString("keystore")
	if path == "" {
		path = cfg.Auth.KeystoreFile
	}
	if path == "" {
		path = filepath.Join(cfg.State.Dir, keystore.DefaultFileName)
	}

	passphrase, _ := cmd.Flags().GetString("passphrase")
	if passphrase == "" {
		fmt.Fprint(os.Stderr, "Keystore passphrase: ")
		passBytes, err := term.ReadPassword(int(os.Stdin.Fd()))
		if err != nil {
			return nil, nil, fmt.Errorf("reading passphrase: %w", err)
		}
		fmt.Fprintln(os.Stderr)
		passphrase = string(passBytes)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, nil, fmt.Errorf("creating state directory: %w", err)
	}
	store, err := keystore.OpenOrCreate(path, passphrase)
	if err != nil {
		return nil, nil, err
	}
	return cfg, store, nil
}

// recordKeyEvent appends a key lifecycle record to the audit chain. Key
// management still works when the audit database cannot be opened; the
// failure is reported but not fatal.
func recordKeyEvent(cfg *config.Config, event audit.EventType, tenant, principal, accessKeyID string) {
	db, err := audit.Open(cfg.State.Dir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "warning: audit log unavailable: %v\n", err)
		return
	}
	defer db.Close()

	logger, err := audit.NewLogger(db)
	if err != nil {
		fmt.Fprintf(os.Stderr, "warning: audit log unavailable: %v\n", err)
		return
	}
	if err := logger.Log(event, tenant, principal, "", "", map[string]string{"access_key_id": accessKeyID}); err != nil {
		fmt.Fprintf(os.Stderr, "warning: audit append failed: %v\n", err)
	}
}

const accessKeyAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ234567"

// generateAccessKeyID returns a fresh key id with the SGIA prefix, the same
// shape as the AWS-style ids clients already know how to handle.
func generateAccessKeyID() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	for i, b := range buf {
		buf[i] = accessKeyAlphabet[int(b)%len(accessKeyAlphabet)]
	}
	return "SGIA" + string(buf), nil
}

// generateSecretKey returns a 40-character secret, 240 bits of entropy.
func generateSecretKey() (string, error) {
	buf := make([]byte, 30)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(buf), nil
}
