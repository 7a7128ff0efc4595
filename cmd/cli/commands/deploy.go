package commands

import (
	"encoding/json"
	"net/http"

	"github.com/spf13/cobra"
)

// NewDeployCmd groups endpoint and deployment operations.
func NewDeployCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "deploy",
		Short: "Manage endpoints and deployments",
	}

	cmd.AddCommand(newEndpointCreateCmd())
	cmd.AddCommand(newDeployStartCmd())
	cmd.AddCommand(newDeployPromoteCmd())
	cmd.AddCommand(newDeployRollbackCmd())
	cmd.AddCommand(newEndpointHealthCmd())

	return cmd
}

func newEndpointCreateCmd() *cobra.Command {
	var modelID, versionID string
	var minInstances, maxInstances int

	cmd := &cobra.Command{
		Use:   "create-endpoint <name>",
		Short: "Create a serving endpoint",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var out json.RawMessage
			err := newClient().do(http.MethodPost, "/endpoints", map[string]interface{}{
				"name":          args[0],
				"model_id":      modelID,
				"version_id":    versionID,
				"min_instances": minInstances,
				"max_instances": maxInstances,
			}, &out)
			if err != nil {
				return err
			}
			return printJSON(out)
		},
	}

	cmd.Flags().StringVar(&modelID, "model-id", "", "Model to serve")
	cmd.Flags().StringVar(&versionID, "version-id", "", "Version to serve")
	cmd.Flags().IntVar(&minInstances, "min-instances", 1, "Minimum instances")
	cmd.Flags().IntVar(&maxInstances, "max-instances", 4, "Maximum instances")

	return cmd
}

func newDeployStartCmd() *cobra.Command {
	var modelID, versionID, strategy string

	cmd := &cobra.Command{
		Use:   "start <endpoint-id>",
		Short: "Deploy a version to an endpoint",
		Example: `  # Canary a new version at 10% traffic
  modelops-cli deploy start ep_ab12cd34 --model-id model_1 --version-id model_1_v2 --strategy canary`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var out json.RawMessage
			err := newClient().do(http.MethodPost, "/endpoints/"+args[0]+"/deploy", map[string]string{
				"model_id":   modelID,
				"version_id": versionID,
				"strategy":   strategy,
			}, &out)
			if err != nil {
				return err
			}
			return printJSON(out)
		},
	}

	cmd.Flags().StringVar(&modelID, "model-id", "", "Model to deploy")
	cmd.Flags().StringVar(&versionID, "version-id", "", "Version to deploy")
	cmd.Flags().StringVar(&strategy, "strategy", "immediate", "Deployment strategy (immediate, canary, blue_green, rolling)")

	return cmd
}

func newDeployPromoteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "promote <deployment-id>",
		Short: "Promote an in-flight deployment to full traffic",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var out json.RawMessage
			if err := newClient().do(http.MethodPost, "/deployments/"+args[0]+"/promote", map[string]string{}, &out); err != nil {
				return err
			}
			return printJSON(out)
		},
	}
}

func newDeployRollbackCmd() *cobra.Command {
	var reason string

	cmd := &cobra.Command{
		Use:   "rollback <deployment-id>",
		Short: "Roll a deployment back to the previous version",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var out json.RawMessage
			err := newClient().do(http.MethodPost, "/deployments/"+args[0]+"/rollback", map[string]string{
				"reason": reason,
			}, &out)
			if err != nil {
				return err
			}
			return printJSON(out)
		},
	}

	cmd.Flags().StringVar(&reason, "reason", "manual", "Rollback reason")

	return cmd
}

func newEndpointHealthCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "health <endpoint-id>",
		Short: "Check endpoint health from traffic counters",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var out json.RawMessage
			if err := newClient().do(http.MethodGet, "/endpoints/"+args[0]+"/health", nil, &out); err != nil {
				return err
			}
			return printJSON(out)
		},
	}
}
