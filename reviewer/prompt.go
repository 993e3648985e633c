package reviewer

import (
	"fmt"
	"strings"

	"github.com/pithecene-io/warden/types"
)

// SystemPrompt is sent as the system message of every review request.
const SystemPrompt = "You are a progress monitoring assistant. Analyze the AI assistant's work and determine if it is making progress or stuck in a loop."

const noPreviousAssessments = "No previous assessments."

const promptTemplate = "You are monitoring an AI assistant's progress on a task.\n" +
	"\n" +
	"Task: %s\n" +
	"\n" +
	"Current iteration: %d\n" +
	"\n" +
	"Previous progress assessments:\n" +
	"%s\n" +
	"\n" +
	"Current output (last %d lines):\n" +
	"```\n" +
	"%s\n" +
	"```\n" +
	"\n" +
	"Assess whether the assistant is:\n" +
	"1. Making meaningful progress (continue) - the assistant is generating code, making changes, or working toward the goal\n" +
	"2. Stuck in a loop or not progressing (abort) - the assistant is repeating itself, going in circles, or clearly failing to make progress\n" +
	"\n" +
	"Respond with JSON in this exact format:\n" +
	"{\n" +
	"  \"action\": \"continue|abort\",\n" +
	"  \"reason\": \"Brief explanation of your assessment\"\n" +
	"}"

// BuildPrompt renders the user prompt for rc. The sample is embedded
// verbatim inside a code fence.
func BuildPrompt(rc types.ReviewContext) string {
	return fmt.Sprintf(promptTemplate,
		rc.TaskDescription,
		rc.Iteration,
		renderSummaries(rc.PreviousSummaries),
		countLines(rc.CurrentSample),
		rc.CurrentSample,
	)
}

func renderSummaries(summaries []string) string {
	if len(summaries) == 0 {
		return noPreviousAssessments
	}
	lines := make([]string, len(summaries))
	for i, s := range summaries {
		lines[i] = fmt.Sprintf("%d. %s", i+1, s)
	}
	return strings.Join(lines, "\n")
}

// countLines counts lines the way a line iterator does: a trailing newline
// does not start a new line, and the empty string has none.
func countLines(s string) int {
	if s == "" {
		return 0
	}
	n := strings.Count(s, "\n")
	if !strings.HasSuffix(s, "\n") {
		n++
	}
	return n
}
