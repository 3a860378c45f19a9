package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/geoflow/geoflow/core/application/driver"
	"github.com/geoflow/geoflow/core/application/services"
	"github.com/geoflow/geoflow/core/application/templates"
	"github.com/geoflow/geoflow/core/config"
	"github.com/geoflow/geoflow/core/infrastructure/di"
	"github.com/geoflow/geoflow/core/logger"
)

var execute bool

// askCmd runs a single query through an in-process driver
var askCmd = &cobra.Command{
	Use:   "ask <query>",
	Short: "Plan a query and print its chain-of-thought workflow",
	Long: `Plan a query without starting the server. The session lives only for the
duration of the command. With --execute the workflow is run to completion and
the resulting map layer is printed.`,
	Args:          cobra.MinimumNArgs(1),
	RunE:          askQuery,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.AddCommand(askCmd)

	askCmd.Flags().BoolVarP(&execute, "execute", "x", false, "Execute the workflow and wait for the layer")
}

func askQuery(cmd *cobra.Command, args []string) error {
	log := logger.New("ask")

	// Keep the rendered workflow readable
	if !verbose && logLevel == 0 {
		logger.SetLogLevel(logger.LogLevelWarn)
	}

	cfg, err := loadConfig()
	if err != nil {
		return log.Errorf("%w", err)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return runAsk(ctx, cmd.OutOrStdout(), cfg, strings.Join(args, " "), execute)
}

// runAsk drives one session on a private driver and renders it to out
func runAsk(ctx context.Context, out io.Writer, cfg *config.Config, query string, execute bool) error {
	log := logger.New("ask")

	selector, err := templates.LoadSelector(cfg.Templates.File)
	if err != nil {
		return log.Errorf("failed to load workflow templates: %w", err)
	}

	d := driver.New(di.DriverConfig(cfg), selector)
	svc := services.NewWorkflowService(d, selector, di.MapConfig(cfg))
	if err := d.Start(ctx); err != nil {
		return log.Errorf("%w", err)
	}
	defer d.Stop()

	events, unsubscribe := d.Subscribe()
	defer unsubscribe()

	session, err := svc.SubmitQuery(ctx, query)
	if err != nil {
		return log.Errorf("%w", err)
	}
	fmt.Fprint(out, logger.FormatSession(session))

	if !execute || len(session.Steps) == 0 {
		return nil
	}

	if _, err := svc.ExecuteWorkflow(ctx, session.ID); err != nil {
		return log.Errorf("%w", err)
	}
	fmt.Fprintln(out)

	for {
		select {
		case <-ctx.Done():
			return log.Errorf("interrupted before the workflow completed")
		case ev, ok := <-events:
			if !ok {
				return log.Errorf("driver stopped before the workflow completed")
			}
			if ev.SessionID != session.ID {
				continue
			}
			switch ev.Type {
			case driver.EventStepUpdated:
				if ev.Step != nil && ev.Step.Status.Terminal() {
					fmt.Fprintln(out, logger.FormatStep(*ev.Step))
				}
			case driver.EventLayerAdded:
				if ev.Layer != nil {
					fmt.Fprintln(out)
					fmt.Fprintln(out, logger.FormatLayer(*ev.Layer))
				}
				return nil
			}
		}
	}
}
