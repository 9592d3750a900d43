package reflection

import "time"

// Record is one observed failure in an execution.
type Record struct {
	Category Category  `json:"category"`
	Message  string    `json:"message"`
	Step     int       `json:"step"`
	At       time.Time `json:"at"`
}

// ErrorContext accumulates every failure of one execution. It is owned by a
// single loop and never reset; strategies and the escalation prompt read it.
type ErrorContext struct {
	Task         string
	StartedAt    time.Time
	CurrentStep  int
	LastTool     string
	LastToolArgs string
	History      []Record
}

func NewErrorContext(task string, startedAt time.Time) *ErrorContext {
	return &ErrorContext{Task: task, StartedAt: startedAt}
}

// Observe appends a failure record and returns it.
func (c *ErrorContext) Observe(err error) Record {
	rec := Record{
		Category: Classify(err),
		Message:  err.Error(),
		Step:     c.CurrentStep,
		At:       time.Now(),
	}
	c.History = append(c.History, rec)
	return rec
}

// Recurring reports whether the two most recent failures share a category.
func (c *ErrorContext) Recurring() bool {
	n := len(c.History)
	if n < 2 {
		return false
	}
	return c.History[n-1].Category == c.History[n-2].Category
}

// CountCategory returns how many recorded failures have the given category.
func (c *ErrorContext) CountCategory(cat Category) int {
	n := 0
	for _, rec := range c.History {
		if rec.Category == cat {
			n++
		}
	}
	return n
}

// Elapsed returns time since the execution started.
func (c *ErrorContext) Elapsed() time.Duration {
	return time.Since(c.StartedAt)
}
