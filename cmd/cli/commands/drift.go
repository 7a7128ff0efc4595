package commands

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/spf13/cobra"
)

// NewDriftCmd groups drift monitor operations.
func NewDriftCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "drift",
		Short: "Manage drift monitors",
	}

	cmd.AddCommand(newDriftCreateCmd())
	cmd.AddCommand(newDriftBaselineCmd())
	cmd.AddCommand(newDriftSnapshotCmd())
	cmd.AddCommand(newDriftCheckCmd())
	cmd.AddCommand(newDriftHistoryCmd())
	cmd.AddCommand(newDriftRetrainCmd())

	return cmd
}

func newDriftCreateCmd() *cobra.Command {
	var endpointID string
	var metricNames []string

	cmd := &cobra.Command{
		Use:   "create <model-id>",
		Short: "Create a drift monitor for a model",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var out json.RawMessage
			err := newClient().do(http.MethodPost, "/monitors", map[string]interface{}{
				"model_id":     args[0],
				"endpoint_id":  endpointID,
				"metric_names": metricNames,
			}, &out)
			if err != nil {
				return err
			}
			return printJSON(out)
		},
	}

	cmd.Flags().StringVar(&endpointID, "endpoint-id", "", "Endpoint the monitor watches")
	cmd.Flags().StringSliceVar(&metricNames, "metric", nil, "Metric names to watch (repeatable)")

	return cmd
}

func newDriftBaselineCmd() *cobra.Command {
	var metricsJSON string

	cmd := &cobra.Command{
		Use:   "baseline <monitor-id>",
		Short: "Set a monitor's baseline metrics",
		Example: `  modelops-cli drift baseline mon_ab12cd34 --metrics '{"accuracy":0.92,"latency":110}'`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var m map[string]float64
			if err := json.Unmarshal([]byte(metricsJSON), &m); err != nil {
				return fmt.Errorf("invalid --metrics: %w", err)
			}
			var out json.RawMessage
			err := newClient().do(http.MethodPut, "/monitors/"+args[0]+"/baseline", map[string]interface{}{
				"metrics": m,
			}, &out)
			if err != nil {
				return err
			}
			return printJSON(out)
		},
	}

	cmd.Flags().StringVar(&metricsJSON, "metrics", "", "Baseline metrics as JSON")
	cmd.MarkFlagRequired("metrics")

	return cmd
}

func newDriftSnapshotCmd() *cobra.Command {
	var metricsJSON string

	cmd := &cobra.Command{
		Use:   "snapshot <monitor-id>",
		Short: "Record a metric snapshot",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var m map[string]float64
			if err := json.Unmarshal([]byte(metricsJSON), &m); err != nil {
				return fmt.Errorf("invalid --metrics: %w", err)
			}
			var out json.RawMessage
			err := newClient().do(http.MethodPost, "/monitors/"+args[0]+"/snapshot", map[string]interface{}{
				"metrics": m,
			}, &out)
			if err != nil {
				return err
			}
			return printJSON(out)
		},
	}

	cmd.Flags().StringVar(&metricsJSON, "metrics", "", "Current metrics as JSON")
	cmd.MarkFlagRequired("metrics")

	return cmd
}

func newDriftCheckCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check <monitor-id>",
		Short: "Run drift detection against the baseline",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var out json.RawMessage
			if err := newClient().do(http.MethodPost, "/monitors/"+args[0]+"/drift", map[string]string{}, &out); err != nil {
				return err
			}
			return printJSON(out)
		},
	}
}

func newDriftHistoryCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "history <monitor-id>",
		Short: "Show past drift checks",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var out json.RawMessage
			if err := newClient().do(http.MethodGet, "/monitors/"+args[0]+"/history", nil, &out); err != nil {
				return err
			}
			return printJSON(out)
		},
	}
}

func newDriftRetrainCmd() *cobra.Command {
	var threshold float64

	cmd := &cobra.Command{
		Use:   "retrain <monitor-id>",
		Short: "Ask whether the model should be retrained",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var out json.RawMessage
			err := newClient().do(http.MethodPost, "/monitors/"+args[0]+"/retrain", map[string]interface{}{
				"threshold": threshold,
			}, &out)
			if err != nil {
				return err
			}
			return printJSON(out)
		},
	}

	cmd.Flags().Float64Var(&threshold, "threshold", 0, "Relative-change threshold (0 uses the server default)")

	return cmd
}
