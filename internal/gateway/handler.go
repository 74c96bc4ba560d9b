package gateway

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/stackgate/stackgate/internal/audit"
	"github.com/stackgate/stackgate/internal/cfn"
	"github.com/stackgate/stackgate/internal/notify"
	"github.com/stackgate/stackgate/internal/policy"
)

// actionHandler binds one API action to its implementation. The action name
// in the table doubles as the policy action.
type actionHandler struct {
	fn       func(ctx context.Context, sub Subject, p cfn.Params) (any, error)
	mutating bool
}

// request carries one inbound call through the pipeline. Fields fill in as
// the pipeline advances; a field is zero until its stage has run.
type request struct {
	id      string
	subject Subject
	params  cfn.Params
	action  string
}

func (g *Gateway) serveQuery(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	g.metrics.RequestStarted()
	defer g.metrics.RequestDone()

	req := &request{id: uuid.NewString()}
	result, fault := g.process(r.Context(), req, r)

	status := http.StatusOK
	var doc cfn.Document
	if fault != nil {
		g.metrics.RecordFault(fault.Code)
		status = fault.Status
		doc = cfn.FormatFault(fault, req.id)
	} else {
		doc = cfn.FormatResponse(req.action, result, req.id)
	}

	writeDoc(w, req.params.Get("ContentType") == "JSON", status, doc)

	elapsed := time.Since(start)
	g.metrics.RecordRequest(g.actionLabel(req.action), strconv.Itoa(status), elapsed)
	g.log.Info().
		Str("request_id", req.id).
		Str("action", req.action).
		Str("tenant", req.subject.Tenant).
		Int("status", status).
		Dur("elapsed", elapsed).
		Msg("request")
}

// process runs the pipeline: body, parameters, signature, dispatch, policy,
// handler. The first failing stage ends the request with a fault. Parameters
// parse before authentication so fault rendering honors ContentType even on
// rejected requests.
func (g *Gateway) process(ctx context.Context, req *request, r *http.Request) (any, *cfn.Fault) {
	body, fault := g.readBody(r)
	if fault != nil {
		return nil, fault
	}

	p, fault := parseParams(r, body)
	if fault != nil {
		return nil, fault
	}
	req.params = p
	req.action = p.Get("Action")

	sub, fault := g.authenticate(ctx, r, body)
	if fault != nil {
		g.auditEvent(audit.EventAuthFailure, req, fault.Detail)
		return nil, fault
	}
	req.subject = sub

	h, ok := g.actions[req.action]
	if !ok {
		return nil, cfn.InvalidAction("The action or operation requested is invalid")
	}

	if fault := g.enforce(ctx, sub, req.action); fault != nil {
		g.auditEvent(audit.EventPolicyDenied, req, fault.Detail)
		return nil, fault
	}

	result, err := h.fn(ctx, sub, p)
	if err != nil {
		fault := cfn.MapRemoteError(err)
		if fault.Status >= http.StatusInternalServerError {
			g.log.Error().Err(err).Str("action", req.action).Msg("action failed")
		} else {
			g.log.Debug().Err(err).Str("action", req.action).Msg("action rejected")
		}
		return nil, fault
	}

	if h.mutating {
		g.recordMutation(req, result)
	}
	return result, nil
}

// readBody drains the request body under the configured cap.
func (g *Gateway) readBody(r *http.Request) ([]byte, *cfn.Fault) {
	if r.Body == nil {
		return nil, nil
	}
	body, err := io.ReadAll(io.LimitReader(r.Body, g.maxBody+1))
	if err != nil {
		return nil, cfn.InternalFailure("The request processing has failed due to an internal error")
	}
	if int64(len(body)) > g.maxBody {
		return nil, cfn.InvalidParameterValue("Request body exceeds the maximum allowed size")
	}
	return body, nil
}

// parseParams merges query-string and form-body parameters into the flat
// set. The body was consumed for signature checking, so it is restored
// before form parsing.
func parseParams(r *http.Request, body []byte) (cfn.Params, *cfn.Fault) {
	r.Body = io.NopCloser(bytes.NewReader(body))
	if err := r.ParseForm(); err != nil {
		return nil, cfn.InvalidParameterValue("The request parameters could not be parsed")
	}
	return cfn.ParamsFromValues(r.Form), nil
}

// enforce authorizes the action for the subject. Evaluation failures never
// leak their cause to the caller.
func (g *Gateway) enforce(ctx context.Context, sub Subject, action string) *cfn.Fault {
	if g.policy == nil {
		return nil
	}
	err := g.policy.Enforce(ctx, policy.Input{
		Tenant:      sub.Tenant,
		Principal:   sub.Principal,
		AccessKeyID: sub.AccessKeyID,
		Action:      action,
	})
	if err == nil {
		return nil
	}
	if errors.Is(err, policy.ErrDenied) {
		return cfn.AccessDenied(fmt.Sprintf("Action %s not allowed for user", action))
	}
	g.log.Error().Err(err).Str("action", action).Msg("policy evaluation failed")
	return cfn.InternalFailure("Error authorizing action " + action)
}

// recordMutation appends the audit row and publishes the broker event for a
// completed mutating action. Both are best-effort.
func (g *Gateway) recordMutation(req *request, result any) {
	stackName := req.params.Get("StackName")
	stackID := ""
	if doc, ok := result.(cfn.Document); ok {
		stackID, _ = doc["StackId"].(string)
	}

	if g.audit != nil {
		detail := map[string]string{"stack_name": stackName}
		if stackID != "" {
			detail["stack_id"] = stackID
		}
		if err := g.audit.Log(audit.EventAPICall, req.subject.Tenant, req.subject.Principal,
			req.action, req.id, detail); err != nil {
			g.log.Error().Err(err).Msg("audit append failed")
		}
	}

	g.notify.Publish(notify.Event{
		Action:    req.action,
		Tenant:    req.subject.Tenant,
		Principal: req.subject.Principal,
		StackName: stackName,
		StackID:   stackID,
		RequestID: req.id,
	})
}

func (g *Gateway) auditEvent(t audit.EventType, req *request, detail string) {
	if g.audit == nil {
		return
	}
	if err := g.audit.Log(t, req.subject.Tenant, req.subject.Principal,
		req.action, req.id, detail); err != nil {
		g.log.Error().Err(err).Msg("audit append failed")
	}
}

// actionLabel bounds the metrics label set to the known actions.
func (g *Gateway) actionLabel(action string) string {
	if _, ok := g.actions[action]; ok {
		return action
	}
	return "unknown"
}

func writeDoc(w http.ResponseWriter, asJSON bool, status int, doc cfn.Document) {
	var out []byte
	contentType := "application/xml"
	if asJSON {
		out = cfn.MarshalJSON(doc)
		contentType = "application/json"
	} else {
		out = cfn.MarshalXML(doc)
	}
	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(status)
	w.Write(out)
}
