package services

import (
	"fmt"

	"github.com/yoockh/yoointerview/internal/models"
)

// Fixed texts used when the generation capability is unavailable or the
// interviewer is paused.
const (
	PauseNotice   = "The interviewer is paused while your coding exercise is open. Submit your solution to continue the conversation."
	FallbackReply = "Sorry, I had trouble processing that. Could you please repeat or rephrase your last answer?"

	fallbackEvaluation = "Thanks for the submission. Walk me through your approach: what is its time and space complexity, and which edge cases did you consider?"
)

var builtinQuestions = []string{
	"Tell me about yourself and the kind of work you have been doing recently.",
	"Walk me through a project you are proud of. What was your role and what were the hardest technical decisions?",
	"Describe a difficult bug you tracked down. How did you find the root cause and what did you change?",
	"How would you implement a rate limiter for a public API? Explain the data structures you would use.",
	"Design a URL shortening service. How would you handle storage, scaling and link expiry?",
	"How do you decide what to test in a new feature, and how do you keep the test suite fast and reliable?",
	"Tell me about a time you disagreed with a teammate on a technical approach. How was it resolved?",
	"What would you do in your first month to get productive in an unfamiliar codebase?",
}

var builtinTask = models.CodingTask{
	ID:    "builtin-balanced-brackets",
	Title: "Balanced Brackets",
	Description: "Write a function that takes a string containing only the characters ()[]{} " +
		"and returns true when every bracket is closed by the matching bracket in the correct order.",
	Languages: []string{"javascript", "python", "go", "java"},
	Examples: []models.TaskExample{
		{Input: `"([]{})"`, Output: "true"},
		{Input: `"([)]"`, Output: "false"},
	},
	Tests: []string{
		`isBalanced("") == true`,
		`isBalanced("()[]{}") == true`,
		`isBalanced("(]") == false`,
		`isBalanced("((") == false`,
		`isBalanced("{[()()]}") == true`,
	},
}

// BuiltinQuestions returns a copy of the fixed question set.
func BuiltinQuestions() []string {
	return append([]string(nil), builtinQuestions...)
}

// BuiltinTasks returns the fixed single coding task.
func BuiltinTasks() []models.CodingTask {
	t := builtinTask
	t.Languages = append([]string(nil), builtinTask.Languages...)
	t.Examples = append([]models.TaskExample(nil), builtinTask.Examples...)
	t.Tests = append([]string(nil), builtinTask.Tests...)
	return []models.CodingTask{t}
}

func welcomeMessage(name, firstQuestion string) string {
	if name == "" {
		name = "there"
	}
	return fmt.Sprintf("Hi %s, welcome to your technical interview. Let's begin. %s", name, firstQuestion)
}

func pauseAnnouncement(testName string) string {
	if testName == "" {
		return "Your coding exercise has started. I'll wait for your submission before continuing."
	}
	return fmt.Sprintf("Your coding exercise %q has started. I'll wait for your submission before continuing.", testName)
}

func submissionMessage(language string, passed bool, result string) string {
	verdict := "failed"
	if passed {
		verdict = "passed"
	}
	if language == "" {
		language = "unspecified language"
	}
	msg := fmt.Sprintf("I submitted my solution in %s. The tests %s.", language, verdict)
	if result != "" {
		msg += " Result: " + result
	}
	return msg
}
