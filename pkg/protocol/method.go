package protocol

// Method is the canonical, wire-protocol-independent operation name. Every
// adapter translates its own wire vocabulary to and from this enum so C8,
// C4 and C10 never need to know which protocol an agent speaks.
type Method string

const (
	SendMessage       Method = "send_message"
	StreamMessage     Method = "stream_message"
	GetTask           Method = "get_task"
	ListTasks         Method = "list_tasks"
	CancelTask        Method = "cancel_task"
	SubscribeTask     Method = "subscribe_task"
	SetPushConfig     Method = "set_push_config"
	GetPushConfig     Method = "get_push_config"
	ListPushConfigs   Method = "list_push_configs"
	DeletePushConfig  Method = "delete_push_config"
	GetAgentCard      Method = "get_agent_card"

	Initialize          Method = "initialize"
	Initialized         Method = "initialized"
	Ping                Method = "ping"
	Shutdown            Method = "shutdown"
	ListTools           Method = "list_tools"
	CallTool            Method = "call_tool"
	ToolsChanged        Method = "tools_changed"
	ListResources       Method = "list_resources"
	ListResourceTmpls   Method = "list_resource_templates"
	ReadResource        Method = "read_resource"
	SubscribeResource   Method = "subscribe_resource"
	UnsubscribeResource Method = "unsubscribe_resource"
	ResourcesChanged    Method = "resources_changed"
	ResourceUpdated     Method = "resource_updated"
	ListPrompts         Method = "list_prompts"
	GetPrompt           Method = "get_prompt"
	PromptsChanged      Method = "prompts_changed"
	CreateMessage       Method = "create_message"
	CreateElicitation   Method = "create_elicitation"
	ListRoots           Method = "list_roots"
	RootsChanged        Method = "roots_changed"
	SetLogLevel         Method = "set_log_level"
	LogMessage          Method = "log_message"
	Progress            Method = "progress"
	Cancelled           Method = "cancelled"
)

// Streaming reports whether a canonical method opens a long-lived response
// (SSE for A2A, server-push for MCP) rather than a single round trip.
func Streaming(m Method) bool {
	return m == StreamMessage || m == SubscribeTask
}
