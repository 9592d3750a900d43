package agent

import "strings"

// completionLexicon is the set of phrases that mark a tool-free response as
// task completion. This is a documented heuristic over free text, not a
// structural signal: a response merely mentioning "done" completes the run.
// Kept deliberately, false positives and all; a structured "mark done" tool
// would change observable behavior.
var completionLexicon = []string{
	"task complete",
	"task completed",
	"done",
	"finished",
}

// isCompletion reports whether a response without tool calls should end the
// run. Matching is case-insensitive substring containment.
func isCompletion(content string) bool {
	if content == "" {
		return false
	}
	lower := strings.ToLower(content)
	for _, phrase := range completionLexicon {
		if strings.Contains(lower, phrase) {
			return true
		}
	}
	return false
}

// continuationPrompt is appended when the model neither calls a tool nor
// signals completion, so the loop can repeat from thinking.
const continuationPrompt = `You made no tool calls and the task does not appear finished.
Continue working on the task. When it is complete, say so explicitly.`
