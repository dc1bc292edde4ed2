package cmd

import (
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"
	"github.com/templui/pixelplan/internal/app"
	"github.com/templui/pixelplan/internal/service"
	"gopkg.in/yaml.v3"
)

func PlansCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "plans",
		Short: "Account plan catalog",
	}

	cmd.AddCommand(plansSyncCmd())
	cmd.AddCommand(plansListCmd())
	cmd.AddCommand(plansAssignCmd())
	return cmd
}

func plansSyncCmd() *cobra.Command {
	var prune bool

	cmd := &cobra.Command{
		Use:   "sync <plans.yaml>",
		Short: "Create or update plans from a catalog file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(a *app.App) error {
				result, err := a.PlanService.SyncFile(cmd.Context(), args[0], prune)
				if err != nil {
					return err
				}
				fmt.Printf("upserted %v, deleted %v\n", result.Upserted, result.Deleted)
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&prune, "prune", false, "delete plans missing from the file (never the default plan)")
	return cmd
}

func plansListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "Print the plan catalog as YAML",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(a *app.App) error {
				plans, err := a.PlanService.List(cmd.Context())
				if err != nil {
					return err
				}

				enc := yaml.NewEncoder(os.Stdout)
				enc.SetIndent(2)
				defer enc.Close()
				return enc.Encode(service.CatalogFromPlans(plans))
			})
		},
	}
}

func plansAssignCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "assign <user-id> <plan-id>",
		Short: "Move a user to another plan",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			planID, err := strconv.ParseInt(args[1], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid plan id %q: %w", args[1], err)
			}

			return withApp(cmd.Context(), func(a *app.App) error {
				err := a.PlanService.Assign(cmd.Context(), args[0], planID)
				if err != nil {
					return err
				}
				fmt.Printf("user %s assigned to plan %d\n", args[0], planID)
				return nil
			})
		},
	}
}
