package commands

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/spf13/cobra"
)

// NewModelCmd groups model and version operations.
func NewModelCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "model",
		Short: "Manage models and versions",
	}

	cmd.AddCommand(newModelRegisterCmd())
	cmd.AddCommand(newModelGetCmd())
	cmd.AddCommand(newModelLineageCmd())
	cmd.AddCommand(newVersionCreateCmd())
	cmd.AddCommand(newVersionPromoteCmd())
	cmd.AddCommand(newVersionArchiveCmd())

	return cmd
}

func newModelRegisterCmd() *cobra.Command {
	var baseModel, provider string
	var tags []string

	cmd := &cobra.Command{
		Use:   "register <name>",
		Short: "Register a new model",
		Example: `  # Register a support-bot model on a Llama base
  modelops-cli model register support-bot --base-model llama-3-8b --provider internal`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var out json.RawMessage
			err := newClient().do(http.MethodPost, "/models", map[string]interface{}{
				"name":       args[0],
				"base_model": baseModel,
				"provider":   provider,
				"tags":       tags,
			}, &out)
			if err != nil {
				return err
			}
			return printJSON(out)
		},
	}

	cmd.Flags().StringVar(&baseModel, "base-model", "", "Base model identifier")
	cmd.Flags().StringVar(&provider, "provider", "", "Model provider")
	cmd.Flags().StringSliceVar(&tags, "tag", nil, "Model tags (repeatable)")

	return cmd
}

func newModelGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <model-id>",
		Short: "Show a model",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var out json.RawMessage
			if err := newClient().do(http.MethodGet, "/models/"+args[0], nil, &out); err != nil {
				return err
			}
			return printJSON(out)
		},
	}
}

func newModelLineageCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "lineage <model-id>",
		Short: "Show the version lineage of a model",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var out json.RawMessage
			if err := newClient().do(http.MethodGet, "/models/"+args[0]+"/lineage", nil, &out); err != nil {
				return err
			}
			return printJSON(out)
		},
	}
}

func newVersionCreateCmd() *cobra.Command {
	var jobID, datasetID, metricsJSON, hyperparamsJSON string

	cmd := &cobra.Command{
		Use:   "create-version <model-id>",
		Short: "Create a new version of a model",
		Example: `  # Record a version from a completed training job
  modelops-cli model create-version model_ab12cd34 --job-id job_1 \
    --metrics '{"accuracy":0.92,"latency":120}'`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			body := map[string]interface{}{
				"job_id":     jobID,
				"dataset_id": datasetID,
			}
			if metricsJSON != "" {
				var m map[string]float64
				if err := json.Unmarshal([]byte(metricsJSON), &m); err != nil {
					return fmt.Errorf("invalid --metrics: %w", err)
				}
				body["metrics"] = m
			}
			if hyperparamsJSON != "" {
				var hp map[string]interface{}
				if err := json.Unmarshal([]byte(hyperparamsJSON), &hp); err != nil {
					return fmt.Errorf("invalid --hyperparameters: %w", err)
				}
				body["hyperparameters"] = hp
			}

			var out json.RawMessage
			if err := newClient().do(http.MethodPost, "/models/"+args[0]+"/versions", body, &out); err != nil {
				return err
			}
			return printJSON(out)
		},
	}

	cmd.Flags().StringVar(&jobID, "job-id", "", "Training job identifier")
	cmd.Flags().StringVar(&datasetID, "dataset-id", "", "Training dataset identifier")
	cmd.Flags().StringVar(&metricsJSON, "metrics", "", "Evaluation metrics as JSON")
	cmd.Flags().StringVar(&hyperparamsJSON, "hyperparameters", "", "Hyperparameters as JSON")

	return cmd
}

func newVersionPromoteCmd() *cobra.Command {
	var stage, approver string

	cmd := &cobra.Command{
		Use:   "promote <version-id>",
		Short: "Promote a version to a lifecycle stage",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var out json.RawMessage
			err := newClient().do(http.MethodPost, "/versions/"+args[0]+"/promote", map[string]string{
				"stage":    stage,
				"approver": approver,
			}, &out)
			if err != nil {
				return err
			}
			return printJSON(out)
		},
	}

	cmd.Flags().StringVar(&stage, "stage", "staging", "Target stage (development, staging, production)")
	cmd.Flags().StringVar(&approver, "approver", "", "Who approved the promotion")

	return cmd
}

func newVersionArchiveCmd() *cobra.Command {
	var reason string

	cmd := &cobra.Command{
		Use:   "archive <version-id>",
		Short: "Archive a version",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var out json.RawMessage
			err := newClient().do(http.MethodPost, "/versions/"+args[0]+"/archive", map[string]string{
				"reason": reason,
			}, &out)
			if err != nil {
				return err
			}
			return printJSON(out)
		},
	}

	cmd.Flags().StringVar(&reason, "reason", "manual", "Archive reason")

	return cmd
}
