package validator

import (
	"bytes"
	"encoding/json"
)

// Method names accepted by the gateway.
const (
	MethodInitialize    = "initialize"
	MethodPing          = "ping"
	MethodToolsList     = "tools/list"
	MethodToolsCall     = "tools/call"
	MethodResourcesList = "resources/list"
	MethodResourcesRead = "resources/read"
	MethodPromptsList   = "prompts/list"
	MethodPromptsGet    = "prompts/get"
)

// Request is the closed set of validated requests. Code past the validator
// switches on the concrete type instead of reading raw params.
type Request interface {
	Method() string
	isRequest()
}

type Initialize struct{}

type Ping struct{}

type ListTools struct{}

type ListResources struct{}

type ListPrompts struct{}

type ToolCall struct {
	Name      string
	Arguments map[string]any
}

type ResourceRead struct {
	URI string
}

type PromptGet struct {
	Name      string
	Arguments map[string]any
}

func (Initialize) Method() string    { return MethodInitialize }
func (Ping) Method() string          { return MethodPing }
func (ListTools) Method() string     { return MethodToolsList }
func (ListResources) Method() string { return MethodResourcesList }
func (ListPrompts) Method() string   { return MethodPromptsList }
func (ToolCall) Method() string      { return MethodToolsCall }
func (ResourceRead) Method() string  { return MethodResourcesRead }
func (PromptGet) Method() string     { return MethodPromptsGet }

func (Initialize) isRequest()    {}
func (Ping) isRequest()          {}
func (ListTools) isRequest()     {}
func (ListResources) isRequest() {}
func (ListPrompts) isRequest()   {}
func (ToolCall) isRequest()      {}
func (ResourceRead) isRequest()  {}
func (PromptGet) isRequest()     {}

// Supports reports whether method is routed by the gateway.
func Supports(method string) bool {
	switch method {
	case MethodInitialize, MethodPing,
		MethodToolsList, MethodToolsCall,
		MethodResourcesList, MethodResourcesRead,
		MethodPromptsList, MethodPromptsGet:
		return true
	}
	return false
}

// Parse decodes and validates the params of method. On success the returned
// request carries normalized names and sanitized arguments; on failure it is
// nil and the result lists every problem found.
func Parse(method string, raw json.RawMessage) (Request, Result) {
	if !Supports(method) {
		return nil, Result{Errors: []string{"unsupported method " + method}}
	}

	params, result := decodeParams(raw)
	if !result.Valid {
		return nil, result
	}

	switch method {
	case MethodInitialize:
		return Initialize{}, result
	case MethodPing:
		return Ping{}, result
	case MethodToolsList:
		return ListTools{}, result
	case MethodResourcesList:
		return ListResources{}, result
	case MethodPromptsList:
		return ListPrompts{}, result
	case MethodToolsCall:
		if result = ValidateToolCall(params); !result.Valid {
			return nil, result
		}
		return ToolCall{
			Name:      NormalizeName(params["name"].(string)),
			Arguments: argumentsOf(params),
		}, result
	case MethodPromptsGet:
		if result = ValidatePromptGet(params); !result.Valid {
			return nil, result
		}
		return PromptGet{
			Name:      NormalizeName(params["name"].(string)),
			Arguments: argumentsOf(params),
		}, result
	default:
		if result = ValidateResourceRead(params); !result.Valid {
			return nil, result
		}
		return ResourceRead{URI: params["uri"].(string)}, result
	}
}

func decodeParams(raw json.RawMessage) (map[string]any, Result) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return map[string]any{}, Result{Valid: true}
	}

	// Numbers stay json.Number so large integers reach the backend intact.
	dec := json.NewDecoder(bytes.NewReader(trimmed))
	dec.UseNumber()

	var params map[string]any
	if err := dec.Decode(&params); err != nil || dec.More() {
		return nil, Result{Errors: []string{"params must be a JSON object"}}
	}
	if params == nil {
		params = map[string]any{}
	}
	return params, Result{Valid: true}
}

func argumentsOf(params map[string]any) map[string]any {
	args, _ := params["arguments"].(map[string]any)
	return SanitizeArguments(args)
}
