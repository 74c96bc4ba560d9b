package gateway

import (
	"context"
	"encoding/json"

	"github.com/stackgate/stackgate/internal/cfn"
	"github.com/stackgate/stackgate/internal/engine"
	"github.com/stackgate/stackgate/internal/identifier"
)

var stackEventKeys = []cfn.KeyPair{
	{Engine: engine.EventID, API: "EventId"},
	{Engine: engine.ResourceName, API: "LogicalResourceId"},
	{Engine: engine.ResourcePhysicalID, API: "PhysicalResourceId"},
	{Engine: engine.EventProperties, API: "ResourceProperties"},
	{Engine: engine.ResourceStatusReason, API: "ResourceStatusReason"},
	{Engine: engine.ResourceType, API: "ResourceType"},
	{Engine: engine.ResourceStackID, API: "StackId"},
	{Engine: engine.ResourceStackName, API: "StackName"},
	{Engine: engine.EventTimestamp, API: "Timestamp"},
}

func (g *Gateway) handleDescribeStackEvents(ctx context.Context, sub Subject, p cfn.Params) (any, error) {
	// No StackName means events for every stack visible to the caller.
	var id *identifier.ID
	if p.Has("StackName") {
		resolved, err := g.resolve(ctx, sub, p.Get("StackName"))
		if err != nil {
			return nil, err
		}
		id = &resolved
	}

	events, err := g.engine.ListEvents(ctx, sub.Caller(), id)
	if err != nil {
		return nil, err
	}

	out := make([]any, 0, len(events))
	for _, e := range events {
		out = append(out, formatStackEvent(e))
	}
	return cfn.Document{"StackEvents": out}, nil
}

func formatStackEvent(e engine.Record) cfn.Document {
	doc := cfn.ReformatKeys(stackEventKeys, e)
	doc["ResourceStatus"] = cfn.DeriveStatus(e, engine.ResourceAction, engine.ResourceStatus)

	// ResourceProperties goes out as a JSON string, "null" when absent.
	props, err := json.Marshal(doc["ResourceProperties"])
	if err != nil {
		props = []byte("null")
	}
	doc["ResourceProperties"] = string(props)

	return identifier.ProjectTokens(doc)
}
