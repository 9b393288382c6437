package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/progress-overlay/internal/palette"
	"github.com/JakeFAU/progress-overlay/internal/server"
	"github.com/JakeFAU/progress-overlay/internal/store"
)

// openStore is swapped in tests.
var openStore = func(ctx context.Context) (store.AppConfigStore, error) {
	cfg, err := resolveConfig(ctx)
	if err != nil {
		return nil, err
	}
	if cfg.Store.Backend == "memory" {
		return nil, errors.New("store.backend memory is process-local; use postgres or the HTTP API")
	}
	return server.OpenAppStore(ctx, cfg, zap.NewNop())
}

func newAppsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "apps",
		Short: "Inspects and edits per-app overlay settings",
	}
	cmd.AddCommand(newAppsListCmd())
	cmd.AddCommand(newAppsSetCmd())
	return cmd
}

func newAppsListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "Lists every known app",
		RunE: func(cmd *cobra.Command, _ []string) error {
			apps, err := openStore(cmd.Context())
			if err != nil {
				return err
			}
			defer apps.Close()
			all, err := apps.All(cmd.Context())
			if err != nil {
				return fmt.Errorf("list apps: %w", err)
			}
			if all == nil {
				all = []store.AppConfig{}
			}
			return writeOutput(cmd.OutOrStdout(), all)
		},
	}
}

func newAppsSetCmd() *cobra.Command {
	var (
		showProgress    bool
		color           string
		useDefaultColor bool
		useMaterialYou  bool
	)
	cmd := &cobra.Command{
		Use:   "set PACKAGE_ID",
		Short: "Updates the settings of one app",
		Long: `Updates only the flags given on the command line. --color "" clears
the app override.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			apps, err := openStore(cmd.Context())
			if err != nil {
				return err
			}
			defer apps.Close()
			app, err := apps.GetOrCreate(cmd.Context(), args[0])
			if err != nil {
				return fmt.Errorf("load app: %w", err)
			}
			flags := cmd.Flags()
			if flags.Changed("show-progress") {
				app.ShowProgress = showProgress
			}
			if flags.Changed("use-default-color") {
				app.UseDefaultColor = useDefaultColor
			}
			if flags.Changed("use-material-you") {
				app.UseMaterialYouColor = useMaterialYou
			}
			if flags.Changed("color") {
				if color == "" {
					app.Color = nil
				} else {
					c, err := palette.ParseHex(color)
					if err != nil {
						return err
					}
					app.Color = &c
				}
			}
			if err := apps.Update(cmd.Context(), app); err != nil {
				return fmt.Errorf("update app: %w", err)
			}
			return writeOutput(cmd.OutOrStdout(), app)
		},
	}
	cmd.Flags().BoolVar(&showProgress, "show-progress", true, "show the overlay for this app")
	cmd.Flags().StringVar(&color, "color", "", "override color as #RRGGBB or #AARRGGBB")
	cmd.Flags().BoolVar(&useDefaultColor, "use-default-color", true, "ignore the override and use the global appearance")
	cmd.Flags().BoolVar(&useMaterialYou, "use-material-you", false, "use the system accent as the app color")
	return cmd
}

func writeOutput(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("write output: %w", err)
	}
	return nil
}
