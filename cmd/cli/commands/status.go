package commands

import (
	"encoding/json"
	"net/http"

	"github.com/spf13/cobra"
)

// NewStatusCmd reports the aggregate lifecycle status.
func NewStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show aggregate registry, rollout, and drift status",
		RunE: func(cmd *cobra.Command, args []string) error {
			var out json.RawMessage
			if err := newClient().do(http.MethodGet, "/status", nil, &out); err != nil {
				return err
			}
			return printJSON(out)
		},
	}
}
