package protocol

// Error codes surfaced to sinks and CLI callers.
const (
	ErrToolNotFound       = "TOOL_NOT_FOUND"
	ErrToolExecFailed     = "TOOL_EXECUTION_FAILED"
	ErrLLMInvalidResponse = "LLM_INVALID_RESPONSE"
	ErrLLMNetwork         = "LLM_NETWORK_ERROR"
	ErrLLMRateLimited     = "LLM_RATE_LIMITED"
	ErrLLMUnsupported     = "LLM_UNSUPPORTED_MODEL"
	ErrParsing            = "PARSING_ERROR"
	ErrMaxIterations      = "MAX_ITERATIONS_REACHED"
	ErrCriticalReflection = "CRITICAL_REFLECTION_FAILURE"

	// Additional codes for configuration and wiring problems
	ErrInvalidConfig = "INVALID_CONFIG"
	ErrInternal      = "INTERNAL"
)
