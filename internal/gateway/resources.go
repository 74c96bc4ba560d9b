package gateway

import (
	"context"

	"github.com/stackgate/stackgate/internal/cfn"
	"github.com/stackgate/stackgate/internal/engine"
	"github.com/stackgate/stackgate/internal/identifier"
)

var resourceDetailKeys = []cfn.KeyPair{
	{Engine: engine.ResourceDescription, API: "Description"},
	{Engine: engine.ResourceUpdatedTime, API: "LastUpdatedTimestamp"},
	{Engine: engine.ResourceName, API: "LogicalResourceId"},
	{Engine: engine.ResourceMetadata, API: "Metadata"},
	{Engine: engine.ResourcePhysicalID, API: "PhysicalResourceId"},
	{Engine: engine.ResourceStatusReason, API: "ResourceStatusReason"},
	{Engine: engine.ResourceType, API: "ResourceType"},
	{Engine: engine.ResourceStackID, API: "StackId"},
	{Engine: engine.ResourceStackName, API: "StackName"},
}

var stackResourceKeys = []cfn.KeyPair{
	{Engine: engine.ResourceDescription, API: "Description"},
	{Engine: engine.ResourceName, API: "LogicalResourceId"},
	{Engine: engine.ResourcePhysicalID, API: "PhysicalResourceId"},
	{Engine: engine.ResourceStatusReason, API: "ResourceStatusReason"},
	{Engine: engine.ResourceType, API: "ResourceType"},
	{Engine: engine.ResourceStackID, API: "StackId"},
	{Engine: engine.ResourceStackName, API: "StackName"},
	{Engine: engine.ResourceUpdatedTime, API: "Timestamp"},
}

var resourceSummaryKeys = []cfn.KeyPair{
	{Engine: engine.ResourceUpdatedTime, API: "LastUpdatedTimestamp"},
	{Engine: engine.ResourceName, API: "LogicalResourceId"},
	{Engine: engine.ResourcePhysicalID, API: "PhysicalResourceId"},
	{Engine: engine.ResourceStatusReason, API: "ResourceStatusReason"},
	{Engine: engine.ResourceType, API: "ResourceType"},
}

func (g *Gateway) handleDescribeStackResource(ctx context.Context, sub Subject, p cfn.Params) (any, error) {
	name, err := p.Require("StackName")
	if err != nil {
		return nil, err
	}
	id, err := g.resolve(ctx, sub, name)
	if err != nil {
		return nil, err
	}

	res, err := g.engine.DescribeStackResource(ctx, sub.Caller(), id, p.Get("LogicalResourceId"))
	if err != nil {
		return nil, err
	}

	doc := cfn.ReformatKeys(resourceDetailKeys, res)
	doc["ResourceStatus"] = cfn.DeriveStatus(res, engine.ResourceAction, engine.ResourceStatus)
	return cfn.Document{"StackResourceDetail": identifier.ProjectTokens(doc)}, nil
}

func (g *Gateway) handleDescribeStackResources(ctx context.Context, sub Subject, p cfn.Params) (any, error) {
	// The resource set can be addressed through its stack or through one of
	// its members' physical ids, not both at once.
	if p.Has("StackName") && p.Has("PhysicalResourceId") {
		return nil, cfn.InvalidParameterCombination("Use `StackName` or `PhysicalResourceId` but not both")
	}

	var id identifier.ID
	var err error
	if p.Has("StackName") {
		id, err = g.resolve(ctx, sub, p.Get("StackName"))
	} else {
		id, err = g.engine.FindPhysicalResource(ctx, sub.Caller(), p.Get("PhysicalResourceId"))
	}
	if err != nil {
		return nil, err
	}

	resources, err := g.engine.DescribeStackResources(ctx, sub.Caller(), id, p.Get("LogicalResourceId"))
	if err != nil {
		return nil, err
	}

	out := make([]any, 0, len(resources))
	for _, r := range resources {
		doc := cfn.ReformatKeys(stackResourceKeys, r)
		doc["ResourceStatus"] = cfn.DeriveStatus(r, engine.ResourceAction, engine.ResourceStatus)
		out = append(out, identifier.ProjectTokens(doc))
	}
	return cfn.Document{"StackResources": out}, nil
}

func (g *Gateway) handleListStackResources(ctx context.Context, sub Subject, p cfn.Params) (any, error) {
	name, err := p.Require("StackName")
	if err != nil {
		return nil, err
	}
	id, err := g.resolve(ctx, sub, name)
	if err != nil {
		return nil, err
	}

	resources, err := g.engine.ListStackResources(ctx, sub.Caller(), id)
	if err != nil {
		return nil, err
	}

	summaries := make([]any, 0, len(resources))
	for _, r := range resources {
		doc := cfn.ReformatKeys(resourceSummaryKeys, r)
		doc["ResourceStatus"] = cfn.DeriveStatus(r, engine.ResourceAction, engine.ResourceStatus)
		summaries = append(summaries, doc)
	}
	return cfn.Document{"StackResourceSummaries": summaries}, nil
}
