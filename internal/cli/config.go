package cli

import (
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/bit-project/bit/pkg/color"
	"github.com/bit-project/bit/pkg/config"
)

var configCmd = &cobra.Command{
	Use:   "config <command>",
	Short: "Manage bit configuration",
	Long: `Manage bit configuration stored in .bit/config.yaml.

Settable keys:
  ` + strings.Join(config.Keys(), "\n  ") + `

mode, remote_url and bind_address are fixed when the repository is created.`,
	DisableFlagsInUseLine: true,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		r, err := requireRepo()
		if err != nil {
			return err
		}
		cfg, err := config.Load(r.Root)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		values := configValues(cfg)
		return printOr(values, func() {
			printf("# %s\n", color.Dim(config.Path(r.Root)))
			tw := tabwriter.NewWriter(os.Stdout, 0, 4, 1, ' ', 0)
			for _, key := range append([]string{"mode", "remote_url", "bind_address"}, config.Keys()...) {
				v, ok := values[key]
				if !ok {
					continue
				}
				if v == "" {
					v = color.Dim("(not set)")
				}
				fmt.Fprintf(tw, "%s:\t%s\n", key, v)
			}
			tw.Flush()
		})
	},
}

// configValues flattens cfg into its dotted keys with the auth secret masked.
func configValues(cfg *config.Config) map[string]string {
	values := map[string]string{"mode": cfg.Mode}
	if cfg.RemoteURL != "" {
		values["remote_url"] = cfg.RemoteURL
	}
	if cfg.BindAddress != "" {
		values["bind_address"] = cfg.BindAddress
	}
	for _, key := range config.Keys() {
		v, _ := cfg.Get(key)
		if key == "auth.secret" && v != "" {
			v = "(set)"
		}
		values[key] = v
	}
	return values
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Long: `Set a configuration value in .bit/config.yaml.

Examples:
  bit config set user alice
  bit config set commit_message "{user} {date}: {count} change(s)"
  bit config set transport.retries 5
  bit config set logging.format json`,
	Args:      cobra.ExactArgs(2),
	ValidArgs: config.Keys(),
	RunE: func(cmd *cobra.Command, args []string) error {
		r, err := requireRepo()
		if err != nil {
			return err
		}
		cfg, err := config.Load(r.Root)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		if err := cfg.Set(args[0], args[1]); err != nil {
			return err
		}
		if err := config.Save(r.Root, cfg); err != nil {
			return fmt.Errorf("save config: %w", err)
		}
		return printOr(map[string]string{args[0]: args[1]}, func() {
			printf("Set %s = %s\n", args[0], args[1])
		})
	},
}

var configGetCmd = &cobra.Command{
	Use:       "get <key>",
	Short:     "Get a configuration value",
	Args:      cobra.ExactArgs(1),
	ValidArgs: config.Keys(),
	RunE: func(cmd *cobra.Command, args []string) error {
		r, err := requireRepo()
		if err != nil {
			return err
		}
		cfg, err := config.Load(r.Root)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		value, err := cfg.Get(args[0])
		if err != nil {
			return err
		}
		return printOr(map[string]string{args[0]: value}, func() {
			if value == "" {
				printf("%s (not set)\n", args[0])
				return
			}
			printf("%s\n", value)
		})
	},
}

func init() {
	configCmd.AddCommand(configShowCmd, configSetCmd, configGetCmd)
	rootCmd.AddCommand(configCmd)
}
