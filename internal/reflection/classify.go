package reflection

import (
	"encoding/json"
	"errors"

	"github.com/nextlevelbuilder/agentcore/internal/providers"
	"github.com/nextlevelbuilder/agentcore/internal/tools"
)

// Category classifies a failure for strategy matching.
type Category string

const (
	CategoryToolExecution    Category = "tool-execution"
	CategoryLLMCommunication Category = "llm-communication"
	CategoryParsing          Category = "parsing"
	CategoryRateLimit        Category = "rate-limit"
	CategoryUnknown          Category = "unknown"
)

// Classify maps an error to its category.
func Classify(err error) Category {
	switch {
	case err == nil:
		return CategoryUnknown
	case errors.Is(err, providers.ErrRateLimited):
		return CategoryRateLimit
	case errors.Is(err, providers.ErrNetwork):
		return CategoryLLMCommunication
	case errors.Is(err, providers.ErrInvalidResponse), isJSONError(err):
		return CategoryParsing
	case errors.Is(err, tools.ErrNotFound):
		return CategoryToolExecution
	default:
		return CategoryUnknown
	}
}

// RetryableByDefault reports whether errors of this category may be retried
// when no strategy or reflection says otherwise.
func (c Category) RetryableByDefault() bool {
	switch c {
	case CategoryLLMCommunication, CategoryRateLimit, CategoryParsing:
		return true
	default:
		return false
	}
}

func isJSONError(err error) bool {
	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	return errors.As(err, &syntaxErr) || errors.As(err, &typeErr)
}
