package services

import (
	"strings"
	"text/template"
)

type PromptData struct {
	CandidateName  string
	Role           string
	Skills         []string
	Experience     string
	ProjectSummary string
	Questions      []string
}

var systemPromptTmpl = template.Must(template.New("system").Funcs(template.FuncMap{
	"join": strings.Join,
	"inc":  func(i int) int { return i + 1 },
}).Parse(`You are a technical interviewer conducting a live interview with {{.CandidateName}}{{if .Role}} for the {{.Role}} role{{end}}.
{{- if .Skills}}
Candidate skills: {{join .Skills ", "}}.
{{- end}}
{{- if .Experience}}
Experience: {{.Experience}}
{{- end}}
{{- if .ProjectSummary}}
Project summary: {{.ProjectSummary}}
{{- end}}

Ask one question at a time and keep your replies short. Cover these priority questions in order, with follow-ups when an answer is thin:
{{- range $i, $q := .Questions}}
{{inc $i}}. {{$q}}
{{- end}}

Coding exercises: when a coding exercise starts, stop asking new questions and wait for the candidate's submission. When the submission arrives, evaluate the code and its test result, then resume with follow-up questions.`))

// BuildSystemPrompt renders the interviewer instructions for one candidate.
func BuildSystemPrompt(d PromptData) (string, error) {
	if strings.TrimSpace(d.CandidateName) == "" {
		d.CandidateName = "the candidate"
	}
	var b strings.Builder
	if err := systemPromptTmpl.Execute(&b, d); err != nil {
		return "", err
	}
	return b.String(), nil
}
