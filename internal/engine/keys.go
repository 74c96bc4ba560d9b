package engine

// Field names of engine result records. These are the wire contract with the
// engine: the projection keymaps are defined over them and they never leak
// into API responses.
const (
	StackID                  = "stack_identity"
	StackName                = "stack_name"
	StackAction              = "stack_action"
	StackStatus              = "stack_status"
	StackStatusReason        = "stack_status_reason"
	StackCreationTime        = "creation_time"
	StackUpdatedTime         = "updated_time"
	StackDeletionTime        = "deletion_time"
	StackTemplateDescription = "template_description"
	StackDescription         = "description"
	StackParameters          = "parameters"
	StackOutputs             = "outputs"
	StackCapabilities        = "capabilities"
	StackNotificationTopics  = "notification_topics"
	StackDisableRollback     = "disable_rollback"
	StackTimeout             = "timeout_mins"
)

// Stack output entries.
const (
	OutputKey         = "output_key"
	OutputValue       = "output_value"
	OutputDescription = "description"
)

// Resource records. Event records use the same resource vocabulary plus the
// event-specific fields.
const (
	ResourceName         = "resource_name"
	ResourceAction       = "resource_action"
	ResourceStatus       = "resource_status"
	ResourceStatusReason = "resource_status_reason"
	ResourcePhysicalID   = "physical_resource_id"
	ResourceType         = "resource_type"
	ResourceDescription  = "description"
	ResourceMetadata     = "metadata"
	ResourceUpdatedTime  = "updated_time"
	ResourceStackID      = "stack_identity"
	ResourceStackName    = "stack_name"
)

const (
	EventID         = "event_identity"
	EventTimestamp  = "event_time"
	EventProperties = "resource_properties"
)

// Create/update argument names.
const (
	ParamTimeout         = "timeout_mins"
	ParamDisableRollback = "disable_rollback"
)

// Field names of validate_template parameter entries, which use the template
// document's own vocabulary.
const (
	ValidateDefault     = "Default"
	ValidateDescription = "Description"
	ValidateNoEcho      = "NoEcho"
)
