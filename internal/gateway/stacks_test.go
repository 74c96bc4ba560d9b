package gateway_test

import (
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"reflect"
	"strings"
	"testing"

	"github.com/stackgate/stackgate/internal/engine"
	"github.com/stackgate/stackgate/internal/engine/enginetest"
	"github.com/stackgate/stackgate/internal/identifier"
)

func stackIdentity(name, id string) map[string]any {
	return map[string]any{
		"tenant":     testTenant,
		"stack_name": name,
		"stack_id":   id,
		"path":       "",
	}
}

func TestListStacksProjection(t *testing.T) {
	fake := &enginetest.Fake{
		ListStacksFn: func(c engine.Caller) ([]engine.Record, error) {
			if c.Tenant != testTenant {
				t.Errorf("caller tenant = %q", c.Tenant)
			}
			return []engine.Record{
				{
					"stack_identity":       stackIdentity("wordpress", "1"),
					"stack_name":           "wordpress",
					"stack_action":         "CREATE",
					"stack_status":         "COMPLETE",
					"stack_status_reason":  "Stack successfully created",
					"creation_time":        "2013-08-04T20:57:55Z",
					"template_description": "blog stack",
					"internal_field":       "must not leak",
				},
			}, nil
		},
	}
	h := setupGateway(t, fake)

	status, doc := doAction(t, h, url.Values{"Action": {"ListStacks"}})
	if status != http.StatusOK {
		t.Fatalf("status = %d: %v", status, doc)
	}

	result := unwrapResult(t, doc, "ListStacks").(map[string]any)
	summaries := result["StackSummaries"].([]any)
	if len(summaries) != 1 {
		t.Fatalf("got %d summaries", len(summaries))
	}
	s := summaries[0].(map[string]any)

	if s["StackStatus"] != "CREATE_COMPLETE" {
		t.Errorf("StackStatus = %v", s["StackStatus"])
	}
	if s["StackId"] != "arn:stackgate:cfn::t1:stacks/wordpress/1" {
		t.Errorf("StackId = %v", s["StackId"])
	}
	if s["TemplateDescription"] != "blog stack" {
		t.Errorf("TemplateDescription = %v", s["TemplateDescription"])
	}
	if _, ok := s["internal_field"]; ok {
		t.Error("engine-only field leaked into the response")
	}
	if _, ok := s["DeletionTime"]; ok {
		t.Error("DeletionTime present for a live stack")
	}
}

func TestDescribeStacksAllForm(t *testing.T) {
	var gotID *identifier.ID
	fake := &enginetest.Fake{
		ShowStackFn: func(c engine.Caller, id *identifier.ID) ([]engine.Record, error) {
			gotID = id
			return []engine.Record{
				{
					"stack_identity":      stackIdentity("wordpress", "1"),
					"stack_name":          "wordpress",
					"stack_action":        "UPDATE",
					"stack_status":        "COMPLETE",
					"creation_time":       "2013-08-04T20:57:55Z",
					"disable_rollback":    true,
					"timeout_mins":        float64(60),
					"parameters":          map[string]any{"KeyName": "mykey"},
					"notification_topics": []any{},
					"capabilities":        []any{},
					"outputs": []any{
						map[string]any{
							"output_key":   "WebsiteURL",
							"output_value": map[string]any{"Fn::Join": "http://example"},
							"description":  "URL",
						},
					},
				},
			}, nil
		},
	}
	h := setupGateway(t, fake)

	status, doc := doAction(t, h, url.Values{"Action": {"DescribeStacks"}})
	if status != http.StatusOK {
		t.Fatalf("status = %d: %v", status, doc)
	}
	if fake.CallCount("show_stack") != 1 {
		t.Fatalf("calls = %v", fake.Calls())
	}
	if gotID != nil {
		t.Errorf("identity = %+v, want nil for the all-stacks form", gotID)
	}
	if fake.CallCount("identify_stack") != 0 {
		t.Error("identify_stack called without a StackName")
	}

	result := unwrapResult(t, doc, "DescribeStacks").(map[string]any)
	stacks := result["Stacks"].([]any)
	s := stacks[0].(map[string]any)

	if s["StackStatus"] != "UPDATE_COMPLETE" {
		t.Errorf("StackStatus = %v", s["StackStatus"])
	}
	if s["DisableRollback"] != true {
		t.Errorf("DisableRollback = %v", s["DisableRollback"])
	}

	params := s["Parameters"].([]any)
	want := map[string]any{"ParameterKey": "KeyName", "ParameterValue": "mykey"}
	if !reflect.DeepEqual(params[0], want) {
		t.Errorf("Parameters[0] = %v, want %v", params[0], want)
	}

	outputs := s["Outputs"].([]any)
	o := outputs[0].(map[string]any)
	if o["OutputKey"] != "WebsiteURL" {
		t.Errorf("OutputKey = %v", o["OutputKey"])
	}
	// Colons in nested output keys would read as XML namespaces.
	val := o["OutputValue"].(map[string]any)
	if _, ok := val["Fn.Join"]; !ok {
		t.Errorf("output value keys were not sanitized: %v", val)
	}
}

func TestDescribeStacksResolvesBareName(t *testing.T) {
	fake := &enginetest.Fake{
		IdentifyStackFn: func(c engine.Caller, name string) (identifier.ID, error) {
			if name != "wordpress" {
				t.Errorf("identify name = %q", name)
			}
			return identifier.New(testTenant, "wordpress", "1", ""), nil
		},
		ShowStackFn: func(c engine.Caller, id *identifier.ID) ([]engine.Record, error) {
			if id == nil || id.Name != "wordpress" || id.ID != "1" {
				t.Errorf("show identity = %+v", id)
			}
			return nil, nil
		},
	}
	h := setupGateway(t, fake)

	status, _ := doAction(t, h, url.Values{
		"Action":    {"DescribeStacks"},
		"StackName": {"wordpress"},
	})
	if status != http.StatusOK {
		t.Fatalf("status = %d", status)
	}
	if n := fake.CallCount("identify_stack"); n != 1 {
		t.Errorf("identify_stack called %d times, want 1", n)
	}
}

func TestDescribeStacksARNSkipsResolution(t *testing.T) {
	fake := &enginetest.Fake{
		ShowStackFn: func(c engine.Caller, id *identifier.ID) ([]engine.Record, error) {
			if id == nil || id.Name != "wordpress" {
				t.Errorf("show identity = %+v", id)
			}
			return nil, nil
		},
	}
	h := setupGateway(t, fake)

	status, _ := doAction(t, h, url.Values{
		"Action":    {"DescribeStacks"},
		"StackName": {"arn:stackgate:cfn::t1:stacks/wordpress/1"},
	})
	if status != http.StatusOK {
		t.Fatalf("status = %d", status)
	}
	if n := fake.CallCount("identify_stack"); n != 0 {
		t.Errorf("identify_stack called %d times for an ARN", n)
	}
}

func TestCreateStack(t *testing.T) {
	fake := &enginetest.Fake{
		CreateStackFn: func(c engine.Caller, name string, tmpl map[string]any, params, files, args map[string]string) (engine.Record, error) {
			if name != "wordpress" {
				t.Errorf("stack name = %q", name)
			}
			if _, ok := tmpl["Resources"]; !ok {
				t.Errorf("template not parsed: %v", tmpl)
			}
			if params["KeyName"] != "mykey" {
				t.Errorf("user params = %v", params)
			}
			if args["timeout_mins"] != "30" {
				t.Errorf("args = %v", args)
			}
			return engine.Record(stackIdentity("wordpress", "1")), nil
		},
	}
	h := setupGateway(t, fake)

	params := url.Values{
		"Action":           {"CreateStack"},
		"StackName":        {"wordpress"},
		"TemplateBody":     {`{"Resources": {"R": {"Type": "X"}}}`},
		"TimeoutInMinutes": {"30"},
	}
	params.Set("Parameters.member.1.ParameterKey", "KeyName")
	params.Set("Parameters.member.1.ParameterValue", "mykey")

	status, doc := doAction(t, h, params)
	if status != http.StatusOK {
		t.Fatalf("status = %d: %v", status, doc)
	}

	result := unwrapResult(t, doc, "CreateStack").(map[string]any)
	if result["StackId"] != "arn:stackgate:cfn::t1:stacks/wordpress/1" {
		t.Errorf("StackId = %v", result["StackId"])
	}
}

func TestCreateStackPassesNonIdentifierResultThrough(t *testing.T) {
	fake := &enginetest.Fake{
		CreateStackFn: func(c engine.Caller, name string, tmpl map[string]any, params, files, args map[string]string) (engine.Record, error) {
			return engine.Record{"Error": "quota exceeded"}, nil
		},
	}
	h := setupGateway(t, fake)

	status, doc := doAction(t, h, url.Values{
		"Action":       {"CreateStack"},
		"StackName":    {"wordpress"},
		"TemplateBody": {`{"Resources": {}}`},
	})
	if status != http.StatusOK {
		t.Fatalf("status = %d: %v", status, doc)
	}
	result := unwrapResult(t, doc, "CreateStack").(map[string]any)
	if result["Error"] != "quota exceeded" {
		t.Errorf("result = %v", result)
	}
}

func TestCreateStackRollbackArgsConflict(t *testing.T) {
	fake := &enginetest.Fake{}
	h := setupGateway(t, fake)

	status, doc := doAction(t, h, url.Values{
		"Action":          {"CreateStack"},
		"StackName":       {"wordpress"},
		"TemplateBody":    {`{"Resources": {}}`},
		"DisableRollback": {"true"},
		"OnFailure":       {"DELETE"},
	})
	if status != http.StatusBadRequest {
		t.Fatalf("status = %d", status)
	}
	code, msg := faultCode(t, doc)
	if code != "InvalidParameterCombination" {
		t.Errorf("code = %q", code)
	}
	if msg != "DisableRollback and OnFailure may not be used together" {
		t.Errorf("message = %q", msg)
	}
	if len(fake.Calls()) != 0 {
		t.Errorf("engine was called: %v", fake.Calls())
	}
}

func TestCreateStackOnFailureMapping(t *testing.T) {
	tests := []struct {
		onFailure string
		want      string
	}{
		{"DO_NOTHING", "true"},
		{"ROLLBACK", "false"},
		{"DELETE", "false"},
	}

	for _, tt := range tests {
		t.Run(tt.onFailure, func(t *testing.T) {
			var gotArgs map[string]string
			fake := &enginetest.Fake{
				CreateStackFn: func(c engine.Caller, name string, tmpl map[string]any, params, files, args map[string]string) (engine.Record, error) {
					gotArgs = args
					return nil, nil
				},
			}
			h := setupGateway(t, fake)

			status, _ := doAction(t, h, url.Values{
				"Action":       {"CreateStack"},
				"StackName":    {"wordpress"},
				"TemplateBody": {`{"Resources": {}}`},
				"OnFailure":    {tt.onFailure},
			})
			if status != http.StatusOK {
				t.Fatalf("status = %d", status)
			}
			if gotArgs["disable_rollback"] != tt.want {
				t.Errorf("disable_rollback = %q, want %q", gotArgs["disable_rollback"], tt.want)
			}
		})
	}
}

func TestCreateStackWithoutTemplate(t *testing.T) {
	fake := &enginetest.Fake{}
	h := setupGateway(t, fake)

	status, doc := doAction(t, h, url.Values{
		"Action":    {"CreateStack"},
		"StackName": {"wordpress"},
	})
	if status != http.StatusBadRequest {
		t.Fatalf("status = %d", status)
	}
	code, msg := faultCode(t, doc)
	if code != "MissingParameter" {
		t.Errorf("code = %q", code)
	}
	if msg != "TemplateBody or TemplateUrl were not given." {
		t.Errorf("message = %q", msg)
	}
	if len(fake.Calls()) != 0 {
		t.Errorf("engine was called: %v", fake.Calls())
	}
}

func TestCreateStackFromTemplateURL(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"Resources": {"R": {"Type": "X"}}}`)
	}))
	defer srv.Close()

	var gotTmpl map[string]any
	fake := &enginetest.Fake{
		CreateStackFn: func(c engine.Caller, name string, tmpl map[string]any, params, files, args map[string]string) (engine.Record, error) {
			gotTmpl = tmpl
			return nil, nil
		},
	}
	h := setupGateway(t, fake)

	status, doc := doAction(t, h, url.Values{
		"Action":      {"CreateStack"},
		"StackName":   {"wordpress"},
		"TemplateUrl": {srv.URL + "/tmpl.json"},
	})
	if status != http.StatusOK {
		t.Fatalf("status = %d: %v", status, doc)
	}
	if _, ok := gotTmpl["Resources"]; !ok {
		t.Errorf("fetched template not parsed: %v", gotTmpl)
	}
}

func TestCreateStackTemplateFetchFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer srv.Close()

	fake := &enginetest.Fake{}
	h := setupGateway(t, fake)

	status, doc := doAction(t, h, url.Values{
		"Action":      {"CreateStack"},
		"StackName":   {"wordpress"},
		"TemplateUrl": {srv.URL + "/tmpl.json"},
	})
	if status != http.StatusBadRequest {
		t.Fatalf("status = %d", status)
	}
	code, msg := faultCode(t, doc)
	if code != "InvalidParameterValue" {
		t.Errorf("code = %q", code)
	}
	if !strings.HasPrefix(msg, "Failed to fetch template: ") {
		t.Errorf("message = %q", msg)
	}
	if len(fake.Calls()) != 0 {
		t.Errorf("engine was called: %v", fake.Calls())
	}
}

func TestCreateStackRejectsJunkTemplate(t *testing.T) {
	fake := &enginetest.Fake{}
	h := setupGateway(t, fake)

	status, doc := doAction(t, h, url.Values{
		"Action":       {"CreateStack"},
		"StackName":    {"wordpress"},
		"TemplateBody": {"{not valid json or yaml: ["},
	})
	if status != http.StatusBadRequest {
		t.Fatalf("status = %d", status)
	}
	code, msg := faultCode(t, doc)
	if code != "InvalidParameterValue" {
		t.Errorf("code = %q", code)
	}
	if msg != "The Template must be a JSON or YAML document." {
		t.Errorf("message = %q", msg)
	}
	if len(fake.Calls()) != 0 {
		t.Errorf("engine was called: %v", fake.Calls())
	}
}

func TestUpdateStackResolvesName(t *testing.T) {
	fake := &enginetest.Fake{
		IdentifyStackFn: func(c engine.Caller, name string) (identifier.ID, error) {
			return identifier.New(testTenant, "wordpress", "1", ""), nil
		},
		UpdateStackFn: func(c engine.Caller, id identifier.ID, tmpl map[string]any, params, files, args map[string]string) (engine.Record, error) {
			if id.Name != "wordpress" || id.ID != "1" {
				t.Errorf("update identity = %+v", id)
			}
			return engine.Record(stackIdentity("wordpress", "1")), nil
		},
	}
	h := setupGateway(t, fake)

	status, doc := doAction(t, h, url.Values{
		"Action":       {"UpdateStack"},
		"StackName":    {"wordpress"},
		"TemplateBody": {`{"Resources": {}}`},
	})
	if status != http.StatusOK {
		t.Fatalf("status = %d: %v", status, doc)
	}
	want := []string{"identify_stack", "update_stack"}
	if !reflect.DeepEqual(fake.Calls(), want) {
		t.Errorf("calls = %v, want %v", fake.Calls(), want)
	}
}

func TestDeleteStack(t *testing.T) {
	fake := &enginetest.Fake{
		IdentifyStackFn: func(c engine.Caller, name string) (identifier.ID, error) {
			return identifier.New(testTenant, "wordpress", "1", ""), nil
		},
	}
	h := setupGateway(t, fake)

	status, doc := doAction(t, h, url.Values{
		"Action":    {"DeleteStack"},
		"StackName": {"wordpress"},
	})
	if status != http.StatusOK {
		t.Fatalf("status = %d: %v", status, doc)
	}
	if result := unwrapResult(t, doc, "DeleteStack"); result != "" {
		t.Errorf("result = %v, want empty string", result)
	}
}

func TestDeleteStackSoftError(t *testing.T) {
	fake := &enginetest.Fake{
		IdentifyStackFn: func(c engine.Caller, name string) (identifier.ID, error) {
			return identifier.New(testTenant, "wordpress", "1", ""), nil
		},
		DeleteStackFn: func(c engine.Caller, id identifier.ID) (engine.Record, error) {
			return engine.Record{"Error": "stack is busy"}, nil
		},
	}
	h := setupGateway(t, fake)

	status, doc := doAction(t, h, url.Values{
		"Action":    {"DeleteStack"},
		"StackName": {"wordpress"},
	})
	if status != http.StatusOK {
		t.Fatalf("status = %d", status)
	}
	if result := unwrapResult(t, doc, "DeleteStack"); result != "stack is busy" {
		t.Errorf("result = %v", result)
	}
}

func TestDeleteStackRequiresName(t *testing.T) {
	h := setupGateway(t, &enginetest.Fake{})

	status, doc := doAction(t, h, url.Values{"Action": {"DeleteStack"}})
	if status != http.StatusBadRequest {
		t.Fatalf("status = %d", status)
	}
	code, msg := faultCode(t, doc)
	if code != "MissingParameter" {
		t.Errorf("code = %q", code)
	}
	if msg != "The request is missing required parameter StackName" {
		t.Errorf("message = %q", msg)
	}
}

func TestGetTemplate(t *testing.T) {
	tmpl := map[string]any{"Resources": map[string]any{"R": map[string]any{"Type": "X"}}}
	fake := &enginetest.Fake{
		IdentifyStackFn: func(c engine.Caller, name string) (identifier.ID, error) {
			return identifier.New(testTenant, "wordpress", "1", ""), nil
		},
		GetTemplateFn: func(c engine.Caller, id identifier.ID) (engine.Record, error) {
			return tmpl, nil
		},
	}
	h := setupGateway(t, fake)

	status, doc := doAction(t, h, url.Values{
		"Action":    {"GetTemplate"},
		"StackName": {"wordpress"},
	})
	if status != http.StatusOK {
		t.Fatalf("status = %d: %v", status, doc)
	}
	result := unwrapResult(t, doc, "GetTemplate").(map[string]any)
	if !reflect.DeepEqual(result["TemplateBody"], tmpl) {
		t.Errorf("TemplateBody = %v", result["TemplateBody"])
	}
}

func TestGetTemplateAbsentStack(t *testing.T) {
	fake := &enginetest.Fake{
		IdentifyStackFn: func(c engine.Caller, name string) (identifier.ID, error) {
			return identifier.New(testTenant, "wordpress", "1", ""), nil
		},
	}
	h := setupGateway(t, fake)

	status, doc := doAction(t, h, url.Values{
		"Action":    {"GetTemplate"},
		"StackName": {"wordpress"},
	})
	if status != http.StatusBadRequest {
		t.Fatalf("status = %d", status)
	}
	code, msg := faultCode(t, doc)
	if code != "InvalidParameterValue" {
		t.Errorf("code = %q", code)
	}
	if msg != "stack not found" {
		t.Errorf("message = %q", msg)
	}
}

func TestValidateTemplate(t *testing.T) {
	fake := &enginetest.Fake{
		ValidateTemplateFn: func(c engine.Caller, tmpl map[string]any) (engine.Record, error) {
			return engine.Record{
				"Description": "test template",
				"Parameters": map[string]any{
					"KeyName": map[string]any{
						"Default":     "mykey",
						"Description": "ssh key",
					},
					"DBPassword": map[string]any{
						"NoEcho": "true",
					},
				},
			}, nil
		},
	}
	h := setupGateway(t, fake)

	status, doc := doAction(t, h, url.Values{
		"Action":       {"ValidateTemplate"},
		"TemplateBody": {`{"Parameters": {}, "Resources": {}}`},
	})
	if status != http.StatusOK {
		t.Fatalf("status = %d: %v", status, doc)
	}

	result := unwrapResult(t, doc, "ValidateTemplate").(map[string]any)
	params := result["Parameters"].([]any)
	if len(params) != 2 {
		t.Fatalf("got %d parameters", len(params))
	}

	// Sorted by key: DBPassword then KeyName.
	first := params[0].(map[string]any)
	if first["ParameterKey"] != "DBPassword" || first["NoEcho"] != "true" {
		t.Errorf("params[0] = %v", first)
	}
	if first["DefaultValue"] != "" || first["Description"] != "" {
		t.Errorf("missing attribute defaults: %v", first)
	}

	second := params[1].(map[string]any)
	if second["ParameterKey"] != "KeyName" || second["DefaultValue"] != "mykey" {
		t.Errorf("params[1] = %v", second)
	}
	if second["NoEcho"] != "false" {
		t.Errorf("NoEcho default = %v", second["NoEcho"])
	}
}

func TestValidateTemplateSoftError(t *testing.T) {
	fake := &enginetest.Fake{
		ValidateTemplateFn: func(c engine.Caller, tmpl map[string]any) (engine.Record, error) {
			return engine.Record{"Error": "Resources must contain Resource. Found a [string] instead"}, nil
		},
	}
	h := setupGateway(t, fake)

	status, doc := doAction(t, h, url.Values{
		"Action":       {"ValidateTemplate"},
		"TemplateBody": {`{"Resources": "wrong"}`},
	})
	if status != http.StatusOK {
		t.Fatalf("status = %d", status)
	}
	result := unwrapResult(t, doc, "ValidateTemplate")
	if result != "Resources must contain Resource. Found a [string] instead" {
		t.Errorf("result = %v", result)
	}
}

func TestEstimateTemplateCost(t *testing.T) {
	fake := &enginetest.Fake{}
	h := setupGateway(t, fake)

	status, doc := doAction(t, h, url.Values{"Action": {"EstimateTemplateCost"}})
	if status != http.StatusOK {
		t.Fatalf("status = %d", status)
	}
	result := unwrapResult(t, doc, "EstimateTemplateCost").(map[string]any)
	if result["Url"] != "http://en.wikipedia.org/wiki/Gratis" {
		t.Errorf("Url = %v", result["Url"])
	}
	if len(fake.Calls()) != 0 {
		t.Errorf("engine was called: %v", fake.Calls())
	}
}
