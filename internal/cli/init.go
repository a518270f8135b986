package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/bit-project/bit/pkg/bit"
	"github.com/bit-project/bit/pkg/color"
	"github.com/bit-project/bit/pkg/config"
	"github.com/bit-project/bit/pkg/model"
)

var (
	initMode      string
	initRemote    string
	initBind      string
	initUser      string
	initSecret    string
	initScheme    string
	initPublicKey string
)

var initCmd = &cobra.Command{
	Use:   "init [path]",
	Short: "Initialize a new bit repository",
	Long: `Initialize a new bit repository in path (default: the current directory).

Modes:
  local   standalone, no synchronization
  remote  works offline and synchronizes with a server (needs --remote)
  server  the authority that signs and orders every change (needs --bind)

This creates:
  - .bit/ directory with the commit logs, documents and audit trail
  - .bit/config.yaml with the chosen mode
  - format_version file (version 1)`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := "."
		if len(args) == 1 {
			path = args[0]
		}
		path, err := filepath.Abs(path)
		if err != nil {
			return err
		}
		if err := os.MkdirAll(path, 0755); err != nil {
			return fmt.Errorf("create %s: %w", path, err)
		}

		var mode model.Mode
		switch initMode {
		case "local":
			mode = model.LocalMode()
		case "remote":
			mode = model.RemoteMode(initRemote)
		case "server":
			mode = model.ServerMode(initBind)
		default:
			return fmt.Errorf("unknown mode %q (local, remote, server)", initMode)
		}

		cfg := config.Default()
		if initUser != "" {
			cfg.User = initUser
		}
		cfg.Auth.Secret = initSecret
		if initScheme != "" {
			cfg.Signing.Scheme = initScheme
		}
		cfg.Signing.PublicKey = initPublicKey
		if mode.IsRemote() && cfg.Signing.Scheme == "ed25519" && cfg.Signing.PublicKey == "" {
			return fmt.Errorf("ed25519 remote repositories need --public-key")
		}

		c, err := bit.Init(path, bit.InitOptions{Mode: mode, Config: cfg})
		if err != nil {
			return err
		}
		defer c.Close()

		return printOr(map[string]any{
			"repo_root":  c.RepoRoot(),
			"repo_id":    c.RepoID(),
			"mode":       mode.String(),
			"public_key": c.PublicKey(),
		}, func() {
			printf("Initialized bit repository in %s\n", color.Success(c.RepoRoot()))
			printf("  Mode: %s\n", color.Header(mode.String()))
			if pk := c.PublicKey(); pk != "" {
				printf("  Public key: %s\n", color.ID(pk))
				printf("  Clients need: %s\n", color.Dim("bit init --mode remote --scheme ed25519 --public-key "+pk))
			}
		})
	},
}

func init() {
	initCmd.Flags().StringVar(&initMode, "mode", "local", "repository mode: local, remote or server")
	initCmd.Flags().StringVar(&initRemote, "remote", "", "server URL (remote mode)")
	initCmd.Flags().StringVar(&initBind, "bind", "", "listen address (server mode)")
	initCmd.Flags().StringVar(&initUser, "user", "", "acting uid (default: $BIT_USER or the login name)")
	initCmd.Flags().StringVar(&initSecret, "secret", "", "shared HS256 secret for bearer auth")
	initCmd.Flags().StringVar(&initScheme, "scheme", "", "signing scheme: digest or ed25519")
	initCmd.Flags().StringVar(&initPublicKey, "public-key", "", "server public key (remote mode, ed25519)")
	rootCmd.AddCommand(initCmd)
}
