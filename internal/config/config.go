// Package config loads application definitions for the wirez CLI.
//
// A definition is an HCL file describing the initial db and the setters and
// getters to register, each with an ordered list of transforms:
//
//	db = {
//	  counter = 0
//	}
//
//	setter "inc" {
//	  path = ["counter"]
//
//	  transform "add" {
//	    op   = "add"
//	    args = [1]
//	  }
//	}
//
//	getter "greeting" {
//	  path = ["user", "name"]
//
//	  transform "fallback" {
//	    op   = "default"
//	    args = ["anonymous"]
//	  }
//	}
package config

import (
	"context"
	"fmt"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"

	"github.com/zoobzio/wirez"
	"github.com/zoobzio/wirez/frame"
	"github.com/zoobzio/wirez/internal/ctxlog"
)

// Definition is a decoded application definition.
type Definition struct {
	DB      frame.DB
	Setters []Handler
	Getters []Handler
}

// Handler describes one setter or getter.
type Handler struct {
	ID         frame.ID
	Path       frame.Path
	Transforms []Transform
}

// Transform describes one pipeline stage.
type Transform struct {
	Key  wirez.Name
	Op   string
	Args []any
}

type fileRoot struct {
	DB      hcl.Expression `hcl:"db,optional"`
	Setters []*handlerBlock `hcl:"setter,block"`
	Getters []*handlerBlock `hcl:"getter,block"`
}

type handlerBlock struct {
	ID         string            `hcl:"id,label"`
	Path       []string          `hcl:"path"`
	Transforms []*transformBlock `hcl:"transform,block"`
}

type transformBlock struct {
	Key  string         `hcl:"key,label"`
	Op   string         `hcl:"op"`
	Args hcl.Expression `hcl:"args,optional"`
}

// Load reads and decodes the definition at path.
func Load(ctx context.Context, path string) (*Definition, error) {
	logger := ctxlog.FromContext(ctx)
	logger.Debug("loading definition", "path", path)

	file, diags := hclparse.NewParser().ParseHCLFile(path)
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to parse %s: %w", path, diags)
	}
	def, err := decode(file.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", path, err)
	}

	logger.Debug("definition loaded", "path", path, "setters", len(def.Setters), "getters", len(def.Getters))
	return def, nil
}

// Parse decodes a definition held in memory. filename is used in
// diagnostics only.
func Parse(src []byte, filename string) (*Definition, error) {
	file, diags := hclparse.NewParser().ParseHCL(src, filename)
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to parse %s: %w", filename, diags)
	}
	return decode(file.Body)
}

func decode(body hcl.Body) (*Definition, error) {
	var root fileRoot
	if diags := gohcl.DecodeBody(body, nil, &root); diags.HasErrors() {
		return nil, diags
	}

	def := &Definition{DB: frame.DB{}}
	if root.DB != nil {
		db, err := evalNative(root.DB)
		if err != nil {
			return nil, fmt.Errorf("db: %w", err)
		}
		switch v := db.(type) {
		case nil:
		case map[string]any:
			def.DB = v
		default:
			return nil, fmt.Errorf("db: expected an object, got %T", db)
		}
	}

	var err error
	if def.Setters, err = translateHandlers("setter", root.Setters); err != nil {
		return nil, err
	}
	if def.Getters, err = translateHandlers("getter", root.Getters); err != nil {
		return nil, err
	}
	return def, nil
}

func translateHandlers(kind string, blocks []*handlerBlock) ([]Handler, error) {
	seen := make(map[string]struct{}, len(blocks))
	handlers := make([]Handler, 0, len(blocks))
	for _, block := range blocks {
		if _, dup := seen[block.ID]; dup {
			return nil, fmt.Errorf("%s %q: declared twice", kind, block.ID)
		}
		seen[block.ID] = struct{}{}

		h := Handler{ID: block.ID, Path: frame.Path(block.Path)}
		for _, tb := range block.Transforms {
			tr, err := translateTransform(tb)
			if err != nil {
				return nil, fmt.Errorf("%s %q: %w", kind, block.ID, err)
			}
			h.Transforms = append(h.Transforms, tr)
		}
		handlers = append(handlers, h)
	}
	return handlers, nil
}

func translateTransform(block *transformBlock) (Transform, error) {
	tr := Transform{Key: block.Key, Op: block.Op}
	if block.Args != nil {
		raw, err := evalNative(block.Args)
		if err != nil {
			return tr, fmt.Errorf("transform %q: args: %w", block.Key, err)
		}
		switch v := raw.(type) {
		case nil:
		case []any:
			tr.Args = v
		default:
			tr.Args = []any{v}
		}
	}
	if _, err := tr.Build(); err != nil {
		return tr, fmt.Errorf("transform %q: %w", block.Key, err)
	}
	return tr, nil
}

func evalNative(expr hcl.Expression) (any, error) {
	val, diags := expr.Value(nil)
	if diags.HasErrors() {
		return nil, diags
	}
	return ctyToNative(val)
}

// Install registers every setter and getter of def on f, with their
// transforms in r.
func (d *Definition) Install(f frame.Frame, r *wirez.Registry) error {
	for _, h := range d.Setters {
		if err := install(r, wirez.KindSetter, h); err != nil {
			return err
		}
		wirez.RegisterSetter(f, h.ID, h.Path, wirez.WithRegistry(r))
	}
	for _, h := range d.Getters {
		if err := install(r, wirez.KindGetter, h); err != nil {
			return err
		}
		wirez.RegisterGetter(f, h.ID, h.Path, wirez.WithRegistry(r))
	}
	return nil
}

func install(r *wirez.Registry, kind wirez.Kind, h Handler) error {
	for _, tr := range h.Transforms {
		fn, err := tr.Build()
		if err != nil {
			return fmt.Errorf("%s %q: transform %q: %w", kind, h.ID, tr.Key, err)
		}
		r.Register(kind, h.ID, tr.Key, fn)
	}
	return nil
}
