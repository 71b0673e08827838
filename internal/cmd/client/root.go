package client

import (
	"github.com/spf13/cobra"
)

// BaseURLFunc resolves the server HTTP base URL at call time.
type BaseURLFunc func() string

// NewRoot constructs a root Cobra command for the enrichd client.
// It registers the batch and queue command groups.
func NewRoot(baseURL BaseURLFunc) *cobra.Command {
	root := &cobra.Command{
		Use:   "enrichd",
		Short: "Enrichment queue client commands",
	}
	root.AddCommand(NewBatchCommand(baseURL))
	root.AddCommand(NewQueueCommand(baseURL))
	return root
}
