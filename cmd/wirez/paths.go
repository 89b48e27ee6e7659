package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/zoobzio/wirez"
	"github.com/zoobzio/wirez/frame"
	"github.com/zoobzio/wirez/internal/config"
)

func newPathsCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "paths",
		Short: "List the transforms a definition registers",
		Long:  "Print one 'kind id key' line per registered transform, in pipeline order.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			def, err := config.Load(cmd.Context(), configPath)
			if err != nil {
				return err
			}

			store := frame.NewStore(def.DB)
			defer store.Close()
			r := wirez.NewRegistry()
			defer r.Close()
			if err := def.Install(store, r); err != nil {
				return err
			}

			for _, p := range r.Paths() {
				fmt.Fprintf(cmd.OutOrStdout(), "%-6s %s %s\n", p.Kind, p.ID, p.Key)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "application definition file")
	_ = cmd.MarkFlagRequired("config") //nolint:errcheck
	return cmd
}
