package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/zoobzio/wirez/frame"
)

const appHCL = `
db = {
  counter = 1
}

setter "inc" {
  path = ["counter"]

  transform "add" {
    op   = "add"
    args = [1]
  }
}

getter "counter" {
  path = ["counter"]

  transform "double" {
    op   = "mul"
    args = [2]
  }
}
`

func writeConfig(t *testing.T, src string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "app.hcl")
	require.NoError(t, os.WriteFile(path, []byte(src), 0o600))
	return path
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	out := &bytes.Buffer{}
	cmd := newRootCmd()
	cmd.SetOut(out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestRun(t *testing.T) {
	path := writeConfig(t, appHCL)

	t.Run("JSON Output", func(t *testing.T) {
		out, err := execute(t, "run", "--config", path, "--query", "counter", "inc:5", "inc:[10]")
		require.NoError(t, err)

		var result struct {
			DB      map[string]any `json:"db"`
			Queries map[string]any `json:"queries"`
		}
		require.NoError(t, json.Unmarshal([]byte(out), &result))
		require.Equal(t, 11.0, result.DB["counter"])
		require.Equal(t, 22.0, result.Queries["counter"])
	})

	t.Run("Msgpack Output", func(t *testing.T) {
		out, err := execute(t, "run", "-c", path, "-f", "msgpack", "inc:2")
		require.NoError(t, err)

		decoded, err := frame.DecodeDB([]byte(out))
		require.NoError(t, err)
		require.Equal(t, 3.0, frame.GetIn(decoded, frame.Path{"db", "counter"}))
	})

	t.Run("Unknown Event Fails", func(t *testing.T) {
		_, err := execute(t, "run", "--config", path, "nope")
		require.Error(t, err)
		require.ErrorIs(t, err, frame.ErrNoHandler)
	})

	t.Run("Rate Limited", func(t *testing.T) {
		out, err := execute(t, "run", "--config", path, "--rate", "1000", "inc:1", "inc:1")
		require.NoError(t, err)
		require.Contains(t, out, `"counter": 3`)
	})

	t.Run("Bad Event JSON", func(t *testing.T) {
		_, err := execute(t, "run", "--config", path, "inc:{")
		require.ErrorContains(t, err, "invalid json")
	})

	t.Run("Bad Format", func(t *testing.T) {
		_, err := execute(t, "run", "--config", path, "--format", "xml")
		require.ErrorContains(t, err, "unknown format")
	})

	t.Run("Missing Config Flag", func(t *testing.T) {
		_, err := execute(t, "run")
		require.Error(t, err)
	})
}

func TestPaths(t *testing.T) {
	path := writeConfig(t, appHCL)

	out, err := execute(t, "paths", "--config", path, "--log-level", "debug", "--log-format", "json")
	require.NoError(t, err)
	require.Equal(t, "setter inc add\ngetter counter double\n", out)
}

func TestParseVector(t *testing.T) {
	tests := []struct {
		raw  string
		want frame.Event
	}{
		{"inc", frame.Event{"inc"}},
		{"inc:5", frame.Event{"inc", 5.0}},
		{`rename:"grace"`, frame.Event{"rename", "grace"}},
		{"add:[1,2]", frame.Event{"add", 1.0, 2.0}},
		{"set:[[1,2]]", frame.Event{"set", []any{1.0, 2.0}}},
		{`put:{"a":1}`, frame.Event{"put", map[string]any{"a": 1.0}}},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			got, err := parseVector(tt.raw)
			require.NoError(t, err)
			require.Equal(t, tt.want, got)
		})
	}

	_, err := parseVector(":5")
	require.Error(t, err)
}
