// Package policy filters content items with Rego policies before they are classified.
//
// Policies are .rego files in one directory. A policy drops an item by making
// data.content.drop true for it, with the item as input:
//
//	package content
//
//	drop if input.source == "spam-feed"
//	drop if count(input.text) < 20
package policy

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m3-org/ainews/pkg/model"
	"github.com/m3-org/ainews/pkg/utils/logging"
	"github.com/open-policy-agent/opa/v1/rego"
	"github.com/open-policy-agent/opa/v1/topdown/print"
)

const dropQuery = "data.content.drop"

// Policy is a prepared content filter. A nil Policy keeps every item.
type Policy struct {
	drop *rego.PreparedEvalQuery
}

// regoPrintHook forwards Rego print() output to the logger of the evaluation context
type regoPrintHook struct {
	ctx context.Context
}

func (h *regoPrintHook) Print(pctx print.Context, message string) error {
	logging.From(h.ctx).Debug("rego print", "message", message)
	return nil
}

// Load reads all Rego files from policyDir. It returns nil when the directory has none.
func Load(ctx context.Context, policyDir string) (*Policy, error) {
	files, err := filepath.Glob(filepath.Join(policyDir, "*.rego"))
	if err != nil {
		return nil, goerr.Wrap(err, "failed to glob policy files", goerr.V("dir", policyDir))
	}
	if len(files) == 0 {
		return nil, nil
	}

	options := make([]func(*rego.Rego), 0, len(files)+2)
	options = append(options, rego.Query(dropQuery), rego.EnablePrintStatements(true))
	for _, file := range files {
		data, err := os.ReadFile(file)
		if err != nil {
			return nil, goerr.Wrap(err, "failed to read policy file", goerr.V("path", file))
		}
		options = append(options, rego.Module(file, string(data)))
	}

	prepared, err := rego.New(options...).PrepareForEval(ctx)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to prepare policy", goerr.V("query", dropQuery))
	}

	logging.From(ctx).Debug("content policy loaded", "files", len(files))
	return &Policy{drop: &prepared}, nil
}

// Filter returns the items the policy keeps, in input order
func (p *Policy) Filter(ctx context.Context, items []*model.ContentItem) ([]*model.ContentItem, error) {
	if p == nil || p.drop == nil {
		return items, nil
	}

	kept := make([]*model.ContentItem, 0, len(items))
	for _, item := range items {
		drop, err := p.shouldDrop(ctx, item)
		if err != nil {
			return nil, goerr.Wrap(err, "failed to evaluate content policy", goerr.V("key", item.Key()))
		}
		if drop {
			logging.From(ctx).Debug("content item dropped by policy", "key", item.Key(), "source", item.Source)
			continue
		}
		kept = append(kept, item)
	}
	return kept, nil
}

func (p *Policy) shouldDrop(ctx context.Context, item *model.ContentItem) (bool, error) {
	raw, err := json.Marshal(item)
	if err != nil {
		return false, goerr.Wrap(err, "failed to marshal content item")
	}
	var input map[string]any
	if err := json.Unmarshal(raw, &input); err != nil {
		return false, goerr.Wrap(err, "failed to convert content item")
	}

	rs, err := p.drop.Eval(ctx, rego.EvalInput(input), rego.EvalPrintHook(&regoPrintHook{ctx: ctx}))
	if err != nil {
		return false, goerr.Wrap(err, "failed to evaluate drop rule")
	}
	if len(rs) == 0 || len(rs[0].Expressions) == 0 {
		return false, nil
	}

	drop, ok := rs[0].Expressions[0].Value.(bool)
	if !ok {
		return false, goerr.New("drop rule must be boolean", goerr.V("value", rs[0].Expressions[0].Value))
	}
	return drop, nil
}
