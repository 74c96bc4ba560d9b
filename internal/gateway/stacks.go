package gateway

import (
	"context"
	"sort"

	"github.com/stackgate/stackgate/internal/cfn"
	"github.com/stackgate/stackgate/internal/engine"
	"github.com/stackgate/stackgate/internal/identifier"
	"github.com/stackgate/stackgate/internal/template"
)

var stackSummaryKeys = []cfn.KeyPair{
	{Engine: engine.StackCreationTime, API: "CreationTime"},
	{Engine: engine.StackUpdatedTime, API: "LastUpdatedTime"},
	{Engine: engine.StackID, API: "StackId"},
	{Engine: engine.StackName, API: "StackName"},
	{Engine: engine.StackStatusReason, API: "StackStatusReason"},
	{Engine: engine.StackTemplateDescription, API: "TemplateDescription"},
}

var stackDetailKeys = []cfn.KeyPair{
	{Engine: engine.StackCapabilities, API: "Capabilities"},
	{Engine: engine.StackCreationTime, API: "CreationTime"},
	{Engine: engine.StackDescription, API: "Description"},
	{Engine: engine.StackDisableRollback, API: "DisableRollback"},
	{Engine: engine.StackUpdatedTime, API: "LastUpdatedTime"},
	{Engine: engine.StackNotificationTopics, API: "NotificationARNs"},
	{Engine: engine.StackParameters, API: "Parameters"},
	{Engine: engine.StackID, API: "StackId"},
	{Engine: engine.StackName, API: "StackName"},
	{Engine: engine.StackStatusReason, API: "StackStatusReason"},
	{Engine: engine.StackTimeout, API: "TimeoutInMinutes"},
}

var stackOutputKeys = []cfn.KeyPair{
	{Engine: engine.OutputDescription, API: "Description"},
	{Engine: engine.OutputKey, API: "OutputKey"},
	{Engine: engine.OutputValue, API: "OutputValue"},
}

// resolve turns a stack name or ARN into a full identity, asking the engine
// only for bare names.
func (g *Gateway) resolve(ctx context.Context, sub Subject, nameOrToken string) (identifier.ID, error) {
	lookup := func(ctx context.Context, name string) (identifier.ID, error) {
		return g.engine.IdentifyStack(ctx, sub.Caller(), name)
	}
	return identifier.Resolve(ctx, lookup, nameOrToken)
}

func (g *Gateway) handleListStacks(ctx context.Context, sub Subject, p cfn.Params) (any, error) {
	stacks, err := g.engine.ListStacks(ctx, sub.Caller())
	if err != nil {
		return nil, err
	}

	summaries := make([]any, 0, len(stacks))
	for _, s := range stacks {
		summaries = append(summaries, formatStackSummary(s))
	}
	return cfn.Document{"StackSummaries": summaries}, nil
}

func formatStackSummary(s engine.Record) cfn.Document {
	doc := cfn.ReformatKeys(stackSummaryKeys, s)
	doc["StackStatus"] = cfn.DeriveStatus(s, engine.StackAction, engine.StackStatus)
	// The engine reports a deletion time only for stacks already gone.
	if v, ok := s[engine.StackDeletionTime]; ok {
		doc["DeletionTime"] = v
	}
	return identifier.ProjectTokens(doc)
}

func (g *Gateway) handleDescribeStacks(ctx context.Context, sub Subject, p cfn.Params) (any, error) {
	// No StackName means every stack visible to the caller.
	var id *identifier.ID
	if p.Has("StackName") {
		resolved, err := g.resolve(ctx, sub, p.Get("StackName"))
		if err != nil {
			return nil, err
		}
		id = &resolved
	}

	stacks, err := g.engine.ShowStack(ctx, sub.Caller(), id)
	if err != nil {
		return nil, err
	}

	out := make([]any, 0, len(stacks))
	for _, s := range stacks {
		out = append(out, formatStackDetail(s))
	}
	return cfn.Document{"Stacks": out}, nil
}

func formatStackDetail(s engine.Record) cfn.Document {
	doc := cfn.ReformatKeys(stackDetailKeys, s)
	doc["StackStatus"] = cfn.DeriveStatus(s, engine.StackAction, engine.StackStatus)

	// Outputs exist only once a stack completes; the API always carries the
	// field. Output attribute keys may hold resource-type colons, which the
	// XML serializer would read as namespaces.
	outputs := []any{}
	if raw, ok := s[engine.StackOutputs].([]any); ok {
		for _, e := range raw {
			if o, ok := e.(map[string]any); ok {
				outputs = append(outputs, cfn.ReformatKeys(stackOutputKeys, cfn.SanitizeKeys(o)))
			}
		}
	}
	doc["Outputs"] = outputs

	params, _ := doc["Parameters"].(map[string]any)
	doc["Parameters"] = cfn.ParametersToPairs(params)

	return identifier.ProjectTokens(doc)
}

func (g *Gateway) handleCreateStack(ctx context.Context, sub Subject, p cfn.Params) (any, error) {
	return g.createOrUpdate(ctx, sub, p, true)
}

func (g *Gateway) handleUpdateStack(ctx context.Context, sub Subject, p cfn.Params) (any, error) {
	return g.createOrUpdate(ctx, sub, p, false)
}

func (g *Gateway) createOrUpdate(ctx context.Context, sub Subject, p cfn.Params, create bool) (any, error) {
	userParams := p.ExtractPairs("Parameters", "ParameterKey", "ParameterValue")

	args, err := extractCreateArgs(p)
	if err != nil {
		return nil, err
	}

	tmpl, err := g.acquireTemplate(ctx, p)
	if err != nil {
		return nil, err
	}

	name, err := p.Require("StackName")
	if err != nil {
		return nil, err
	}

	var result engine.Record
	if create {
		result, err = g.engine.CreateStack(ctx, sub.Caller(), name, tmpl, userParams, nil, args)
	} else {
		id, rerr := g.resolve(ctx, sub, name)
		if rerr != nil {
			return nil, rerr
		}
		result, err = g.engine.UpdateStack(ctx, sub.Caller(), id, tmpl, userParams, nil, args)
	}
	if err != nil {
		return nil, err
	}

	// A result that forms a complete identifier is the new stack's identity;
	// anything else passes through untouched.
	if id, err := identifier.FromRecord(result); err == nil {
		return cfn.Document{"StackId": id.ARN()}, nil
	}
	return result, nil
}

// extractCreateArgs maps the request-level create/update arguments onto the
// engine's argument names. DisableRollback and OnFailure express the same
// setting, so supplying both is rejected before anything reaches the engine.
func extractCreateArgs(p cfn.Params) (map[string]string, error) {
	if p.Has("DisableRollback") && p.Has("OnFailure") {
		return nil, cfn.InvalidParameterCombination("DisableRollback and OnFailure may not be used together")
	}

	args := map[string]string{}
	if p.Has("TimeoutInMinutes") {
		args[engine.ParamTimeout] = p.Get("TimeoutInMinutes")
	}
	if p.Has("DisableRollback") {
		args[engine.ParamDisableRollback] = p.Get("DisableRollback")
	}
	switch p.Get("OnFailure") {
	case "DO_NOTHING":
		args[engine.ParamDisableRollback] = "true"
	case "ROLLBACK", "DELETE":
		args[engine.ParamDisableRollback] = "false"
	}
	return args, nil
}

// acquireTemplate returns the parsed template named by TemplateBody or
// TemplateUrl.
func (g *Gateway) acquireTemplate(ctx context.Context, p cfn.Params) (map[string]any, error) {
	var raw []byte
	switch {
	case p.Has("TemplateBody"):
		raw = []byte(p.Get("TemplateBody"))
	case p.Has("TemplateUrl"):
		data, err := g.fetcher.Fetch(ctx, p.Get("TemplateUrl"))
		if err != nil {
			return nil, cfn.InvalidParameterValue("Failed to fetch template: " + err.Error())
		}
		raw = data
	default:
		return nil, cfn.MissingParameter("TemplateBody or TemplateUrl were not given.")
	}

	tmpl, err := template.Parse(raw)
	if err != nil {
		return nil, cfn.InvalidParameterValue("The Template must be a JSON or YAML document.")
	}
	return tmpl, nil
}

func (g *Gateway) handleDeleteStack(ctx context.Context, sub Subject, p cfn.Params) (any, error) {
	name, err := p.Require("StackName")
	if err != nil {
		return nil, err
	}
	id, err := g.resolve(ctx, sub, name)
	if err != nil {
		return nil, err
	}

	res, err := g.engine.DeleteStack(ctx, sub.Caller(), id)
	if err != nil {
		return nil, err
	}
	// A nil result is full success; the engine reports soft failures in-band.
	if res != nil {
		if msg, ok := res["Error"]; ok {
			return msg, nil
		}
	}
	return "", nil
}

func (g *Gateway) handleGetTemplate(ctx context.Context, sub Subject, p cfn.Params) (any, error) {
	name, err := p.Require("StackName")
	if err != nil {
		return nil, err
	}
	id, err := g.resolve(ctx, sub, name)
	if err != nil {
		return nil, err
	}

	tmpl, err := g.engine.GetTemplate(ctx, sub.Caller(), id)
	if err != nil {
		return nil, err
	}
	if tmpl == nil {
		return nil, cfn.InvalidParameterValue("stack not found")
	}
	return cfn.Document{"TemplateBody": tmpl}, nil
}

func (g *Gateway) handleValidateTemplate(ctx context.Context, sub Subject, p cfn.Params) (any, error) {
	tmpl, err := g.acquireTemplate(ctx, p)
	if err != nil {
		return nil, err
	}

	res, err := g.engine.ValidateTemplate(ctx, sub.Caller(), tmpl)
	if err != nil {
		return nil, err
	}
	// Validation problems come back in-band under Error, and that text is
	// the whole result.
	if msg, ok := res["Error"]; ok {
		return msg, nil
	}

	if params, ok := res["Parameters"].(map[string]any); ok {
		res["Parameters"] = formatValidateParameters(params)
	}
	return res, nil
}

// formatValidateParameters projects the engine's parameter map into the
// list shape of the API, sorted by key for stable output.
func formatValidateParameters(params map[string]any) []any {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([]any, 0, len(keys))
	for _, k := range keys {
		attrs, _ := params[k].(map[string]any)
		out = append(out, cfn.Document{
			"ParameterKey": k,
			"DefaultValue": attrOr(attrs, engine.ValidateDefault, ""),
			"Description":  attrOr(attrs, engine.ValidateDescription, ""),
			"NoEcho":       attrOr(attrs, engine.ValidateNoEcho, "false"),
		})
	}
	return out
}

func attrOr(attrs map[string]any, key string, fallback any) any {
	if v, ok := attrs[key]; ok {
		return v
	}
	return fallback
}

func (g *Gateway) handleEstimateTemplateCost(ctx context.Context, sub Subject, p cfn.Params) (any, error) {
	return cfn.Document{"Url": "http://en.wikipedia.org/wiki/Gratis"}, nil
}
