package gateway_test

import (
	"net/http"
	"net/url"
	"reflect"
	"testing"

	"github.com/stackgate/stackgate/internal/engine"
	"github.com/stackgate/stackgate/internal/engine/enginetest"
	"github.com/stackgate/stackgate/internal/identifier"
)

func eventIdentity(stackName, stackID, resource, eventID string) map[string]any {
	stack := identifier.New(testTenant, stackName, stackID, "")
	return identifier.NewEvent(stack, resource, eventID).Record()
}

func TestDescribeStackEvents(t *testing.T) {
	var gotID *identifier.ID
	fake := &enginetest.Fake{
		ListEventsFn: func(c engine.Caller, id *identifier.ID) ([]engine.Record, error) {
			gotID = id
			return []engine.Record{
				{
					"event_identity":         eventIdentity("wordpress", "1", "WebServer", "42"),
					"event_time":             "2013-08-04T20:57:55Z",
					"resource_name":          "WebServer",
					"resource_action":        "CREATE",
					"resource_status":        "IN_PROGRESS",
					"resource_status_reason": "state changed",
					"resource_type":          "AWS::EC2::Instance",
					"physical_resource_id":   "i-1234",
					"resource_properties":    map[string]any{"InstanceType": "m1.small"},
					"stack_identity":         stackIdentity("wordpress", "1"),
					"stack_name":             "wordpress",
				},
			}, nil
		},
	}
	h := setupGateway(t, fake)

	status, doc := doAction(t, h, url.Values{
		"Action":    {"DescribeStackEvents"},
		"StackName": {"arn:stackgate:cfn::t1:stacks/wordpress/1"},
	})
	if status != http.StatusOK {
		t.Fatalf("status = %d: %v", status, doc)
	}
	if gotID == nil || gotID.Name != "wordpress" {
		t.Fatalf("list_events identity = %+v", gotID)
	}

	result := unwrapResult(t, doc, "DescribeStackEvents").(map[string]any)
	events := result["StackEvents"].([]any)
	e := events[0].(map[string]any)

	if e["EventId"] != "42" {
		t.Errorf("EventId = %v, want the short event token", e["EventId"])
	}
	if e["ResourceStatus"] != "CREATE_IN_PROGRESS" {
		t.Errorf("ResourceStatus = %v", e["ResourceStatus"])
	}
	if e["ResourceProperties"] != `{"InstanceType":"m1.small"}` {
		t.Errorf("ResourceProperties = %v, want a JSON string", e["ResourceProperties"])
	}
	if e["StackId"] != "arn:stackgate:cfn::t1:stacks/wordpress/1" {
		t.Errorf("StackId = %v", e["StackId"])
	}
	if e["Timestamp"] != "2013-08-04T20:57:55Z" {
		t.Errorf("Timestamp = %v", e["Timestamp"])
	}
}

func TestDescribeStackEventsAllStacks(t *testing.T) {
	listed := false
	fake := &enginetest.Fake{
		ListEventsFn: func(c engine.Caller, id *identifier.ID) ([]engine.Record, error) {
			listed = true
			if id != nil {
				t.Errorf("identity = %+v, want nil", id)
			}
			return nil, nil
		},
	}
	h := setupGateway(t, fake)

	status, _ := doAction(t, h, url.Values{"Action": {"DescribeStackEvents"}})
	if status != http.StatusOK {
		t.Fatalf("status = %d", status)
	}
	if !listed {
		t.Fatal("list_events was not called")
	}
	if fake.CallCount("identify_stack") != 0 {
		t.Error("identify_stack called without a StackName")
	}
}

func TestDescribeStackEventsMissingProperties(t *testing.T) {
	fake := &enginetest.Fake{
		ListEventsFn: func(c engine.Caller, id *identifier.ID) ([]engine.Record, error) {
			return []engine.Record{
				{
					"event_identity":  eventIdentity("wordpress", "1", "WebServer", "7"),
					"resource_action": "DELETE",
					"resource_status": "COMPLETE",
				},
			}, nil
		},
	}
	h := setupGateway(t, fake)

	_, doc := doAction(t, h, url.Values{"Action": {"DescribeStackEvents"}})
	result := unwrapResult(t, doc, "DescribeStackEvents").(map[string]any)
	e := result["StackEvents"].([]any)[0].(map[string]any)

	if e["ResourceProperties"] != "null" {
		t.Errorf("ResourceProperties = %v, want null", e["ResourceProperties"])
	}
}

func TestDescribeStackResource(t *testing.T) {
	fake := &enginetest.Fake{
		DescribeStackResourceFn: func(c engine.Caller, id identifier.ID, resourceName string) (engine.Record, error) {
			if id.Name != "wordpress" {
				t.Errorf("identity = %+v", id)
			}
			if resourceName != "WebServer" {
				t.Errorf("resource name = %q", resourceName)
			}
			return engine.Record{
				"resource_name":        "WebServer",
				"resource_action":      "CREATE",
				"resource_status":      "COMPLETE",
				"resource_type":        "AWS::EC2::Instance",
				"physical_resource_id": "i-1234",
				"metadata":             map[string]any{"AWS::CloudFormation::Init": map[string]any{}},
				"updated_time":         "2013-08-04T20:57:55Z",
				"stack_identity":       stackIdentity("wordpress", "1"),
				"stack_name":           "wordpress",
			}, nil
		},
	}
	h := setupGateway(t, fake)

	status, doc := doAction(t, h, url.Values{
		"Action":            {"DescribeStackResource"},
		"StackName":         {"arn:stackgate:cfn::t1:stacks/wordpress/1"},
		"LogicalResourceId": {"WebServer"},
	})
	if status != http.StatusOK {
		t.Fatalf("status = %d: %v", status, doc)
	}

	result := unwrapResult(t, doc, "DescribeStackResource").(map[string]any)
	detail := result["StackResourceDetail"].(map[string]any)

	if detail["ResourceStatus"] != "CREATE_COMPLETE" {
		t.Errorf("ResourceStatus = %v", detail["ResourceStatus"])
	}
	if detail["LastUpdatedTimestamp"] != "2013-08-04T20:57:55Z" {
		t.Errorf("LastUpdatedTimestamp = %v", detail["LastUpdatedTimestamp"])
	}
	if detail["StackId"] != "arn:stackgate:cfn::t1:stacks/wordpress/1" {
		t.Errorf("StackId = %v", detail["StackId"])
	}
	if _, ok := detail["Metadata"]; !ok {
		t.Error("Metadata missing from detail")
	}
}

func TestDescribeStackResourceRequiresStackName(t *testing.T) {
	fake := &enginetest.Fake{}
	h := setupGateway(t, fake)

	status, doc := doAction(t, h, url.Values{
		"Action":            {"DescribeStackResource"},
		"LogicalResourceId": {"WebServer"},
	})
	if status != http.StatusBadRequest {
		t.Fatalf("status = %d", status)
	}
	if code, _ := faultCode(t, doc); code != "MissingParameter" {
		t.Errorf("code = %q", code)
	}
	if len(fake.Calls()) != 0 {
		t.Errorf("engine was called: %v", fake.Calls())
	}
}

func TestDescribeStackResourcesMutualExclusion(t *testing.T) {
	fake := &enginetest.Fake{}
	h := setupGateway(t, fake)

	status, doc := doAction(t, h, url.Values{
		"Action":             {"DescribeStackResources"},
		"StackName":          {"wordpress"},
		"PhysicalResourceId": {"i-1234"},
	})
	if status != http.StatusBadRequest {
		t.Fatalf("status = %d", status)
	}
	code, msg := faultCode(t, doc)
	if code != "InvalidParameterCombination" {
		t.Errorf("code = %q", code)
	}
	if msg != "Use `StackName` or `PhysicalResourceId` but not both" {
		t.Errorf("message = %q", msg)
	}
	if len(fake.Calls()) != 0 {
		t.Errorf("engine was called: %v", fake.Calls())
	}
}

func TestDescribeStackResourcesByPhysicalID(t *testing.T) {
	fake := &enginetest.Fake{
		FindPhysicalResourceFn: func(c engine.Caller, physicalID string) (identifier.ID, error) {
			if physicalID != "i-1234" {
				t.Errorf("physical id = %q", physicalID)
			}
			return identifier.New(testTenant, "wordpress", "1", ""), nil
		},
		DescribeStackResourcesFn: func(c engine.Caller, id identifier.ID, resourceName string) ([]engine.Record, error) {
			if id.Name != "wordpress" {
				t.Errorf("identity = %+v", id)
			}
			return []engine.Record{
				{
					"resource_name":        "WebServer",
					"resource_action":      "CREATE",
					"resource_status":      "COMPLETE",
					"resource_type":        "AWS::EC2::Instance",
					"physical_resource_id": "i-1234",
					"updated_time":         "2013-08-04T20:57:55Z",
					"stack_identity":       stackIdentity("wordpress", "1"),
					"stack_name":           "wordpress",
				},
			}, nil
		},
	}
	h := setupGateway(t, fake)

	status, doc := doAction(t, h, url.Values{
		"Action":             {"DescribeStackResources"},
		"PhysicalResourceId": {"i-1234"},
	})
	if status != http.StatusOK {
		t.Fatalf("status = %d: %v", status, doc)
	}

	want := []string{"find_physical_resource", "describe_stack_resources"}
	if !reflect.DeepEqual(fake.Calls(), want) {
		t.Errorf("calls = %v, want %v", fake.Calls(), want)
	}

	result := unwrapResult(t, doc, "DescribeStackResources").(map[string]any)
	resources := result["StackResources"].([]any)
	r := resources[0].(map[string]any)
	if r["Timestamp"] != "2013-08-04T20:57:55Z" {
		t.Errorf("Timestamp = %v", r["Timestamp"])
	}
	if r["ResourceStatus"] != "CREATE_COMPLETE" {
		t.Errorf("ResourceStatus = %v", r["ResourceStatus"])
	}
}

func TestDescribeStackResourcesByStackName(t *testing.T) {
	var gotFilter string
	fake := &enginetest.Fake{
		DescribeStackResourcesFn: func(c engine.Caller, id identifier.ID, resourceName string) ([]engine.Record, error) {
			gotFilter = resourceName
			return nil, nil
		},
	}
	h := setupGateway(t, fake)

	status, _ := doAction(t, h, url.Values{
		"Action":            {"DescribeStackResources"},
		"StackName":         {"arn:stackgate:cfn::t1:stacks/wordpress/1"},
		"LogicalResourceId": {"WebServer"},
	})
	if status != http.StatusOK {
		t.Fatalf("status = %d", status)
	}
	if gotFilter != "WebServer" {
		t.Errorf("resource filter = %q", gotFilter)
	}
	if fake.CallCount("find_physical_resource") != 0 {
		t.Error("find_physical_resource called despite StackName")
	}
}

func TestListStackResources(t *testing.T) {
	fake := &enginetest.Fake{
		ListStackResourcesFn: func(c engine.Caller, id identifier.ID) ([]engine.Record, error) {
			return []engine.Record{
				{
					"resource_name":        "WebServer",
					"resource_action":      "CREATE",
					"resource_status":      "COMPLETE",
					"resource_type":        "AWS::EC2::Instance",
					"physical_resource_id": "i-1234",
					"updated_time":         "2013-08-04T20:57:55Z",
					"stack_identity":       stackIdentity("wordpress", "1"),
					"stack_name":           "wordpress",
				},
			}, nil
		},
	}
	h := setupGateway(t, fake)

	status, doc := doAction(t, h, url.Values{
		"Action":    {"ListStackResources"},
		"StackName": {"arn:stackgate:cfn::t1:stacks/wordpress/1"},
	})
	if status != http.StatusOK {
		t.Fatalf("status = %d: %v", status, doc)
	}

	result := unwrapResult(t, doc, "ListStackResources").(map[string]any)
	summaries := result["StackResourceSummaries"].([]any)
	s := summaries[0].(map[string]any)

	if s["ResourceStatus"] != "CREATE_COMPLETE" {
		t.Errorf("ResourceStatus = %v", s["ResourceStatus"])
	}
	if s["LastUpdatedTimestamp"] != "2013-08-04T20:57:55Z" {
		t.Errorf("LastUpdatedTimestamp = %v", s["LastUpdatedTimestamp"])
	}
	// Summaries never carry stack identity fields.
	if _, ok := s["StackId"]; ok {
		t.Errorf("summary carries StackId: %v", s)
	}
	if _, ok := s["StackName"]; ok {
		t.Errorf("summary carries StackName: %v", s)
	}
}
