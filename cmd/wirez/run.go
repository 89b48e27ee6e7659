package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/zoobzio/wirez"
	"github.com/zoobzio/wirez/frame"
	"github.com/zoobzio/wirez/internal/config"
	"github.com/zoobzio/wirez/internal/ctxlog"
)

const (
	formatJSON    = "json"
	formatMsgpack = "msgpack"
)

func newRunCmd() *cobra.Command {
	var (
		configPath string
		queries    []string
		format     string
		rateLimit  float64
	)

	cmd := &cobra.Command{
		Use:   "run [event[:json]]...",
		Short: "Dispatch events against a definition and print the result",
		Long: `Load the definition, dispatch each event in order, then print the
value of every --query and the final db.

An event or query is written as its ID, optionally followed by a colon and
a JSON value. A JSON array supplies several arguments; any other JSON value
is a single argument:

  wirez run --config app.hcl inc:5 'rename:"grace"' --query nickname`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if format != formatJSON && format != formatMsgpack {
				return fmt.Errorf("unknown format %q", format)
			}

			ctx := cmd.Context()
			logger := ctxlog.FromContext(ctx)

			def, err := config.Load(ctx, configPath)
			if err != nil {
				return err
			}

			store := frame.NewStore(def.DB).WithLogger(logger).WithRateLimit(rateLimit, 1)
			defer store.Close()
			r := wirez.NewRegistry()
			defer r.Close()
			if err := def.Install(store, r); err != nil {
				return err
			}

			for _, raw := range args {
				event, err := parseVector(raw)
				if err != nil {
					return fmt.Errorf("event %q: %w", raw, err)
				}
				logger.Debug("dispatching event", "event", event.ID())
				store.Dispatch(event)
			}
			if err := store.Drain(ctx); err != nil {
				return err
			}

			results := make(map[string]any, len(queries))
			for _, raw := range queries {
				query, err := parseVector(raw)
				if err != nil {
					return fmt.Errorf("query %q: %w", raw, err)
				}
				value, err := store.Subscribe(ctx, query)
				if err != nil {
					return err
				}
				results[raw] = value
			}

			return writeResult(cmd, format, frame.DB{"db": store.DB(), "queries": results})
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "application definition file")
	cmd.Flags().StringArrayVarP(&queries, "query", "q", nil, "query to run after the events, as id[:json]")
	cmd.Flags().StringVarP(&format, "format", "f", formatJSON, "output format: json or msgpack")
	cmd.Flags().Float64Var(&rateLimit, "rate", 0, "maximum events handled per second, 0 for unlimited")
	_ = cmd.MarkFlagRequired("config") //nolint:errcheck
	return cmd
}

// parseVector turns "id" or "id:json" into an event vector.
func parseVector(raw string) (frame.Event, error) {
	id, payload, found := strings.Cut(raw, ":")
	if id == "" {
		return nil, fmt.Errorf("missing id")
	}
	if !found {
		return frame.NewEvent(id), nil
	}

	var value any
	if err := json.Unmarshal([]byte(payload), &value); err != nil {
		return nil, fmt.Errorf("invalid json: %w", err)
	}
	if args, ok := value.([]any); ok {
		return frame.NewEvent(id, args...), nil
	}
	return frame.NewEvent(id, value), nil
}

func writeResult(cmd *cobra.Command, format string, result frame.DB) error {
	out := cmd.OutOrStdout()
	if format == formatMsgpack {
		data, err := frame.EncodeDB(result)
		if err != nil {
			return err
		}
		_, err = out.Write(data)
		return err
	}

	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(result)
}
