package analyzer

import (
	"fmt"
	"strings"
)

const (
	requestHeader  = "===== REQUEST =====\n"
	responseHeader = "===== RESPONSE =====\n"
	sectionTrailer = "\n\n"

	instructionTemplate = "Based on the following system instructions:[ %s ]  %s "
)

// Validate checks that at least one included section carries text.
func (r AnalysisRequest) Validate() error {
	if !r.IncludeRequest && !r.IncludeResponse {
		return &ValidationError{Reason: "neither request nor response is included"}
	}

	hasRequest := r.IncludeRequest && strings.TrimSpace(r.RequestText) != ""
	hasResponse := r.IncludeResponse && strings.TrimSpace(r.ResponseText) != ""
	if !hasRequest && !hasResponse {
		return &ValidationError{Reason: "no request or response content to analyze"}
	}

	return nil
}

// Payload returns the combined text fed to the model on stdin.
func (r AnalysisRequest) Payload() string {
	var b strings.Builder
	if r.IncludeRequest {
		b.WriteString(requestHeader)
		b.WriteString(r.RequestText)
		b.WriteString(sectionTrailer)
	}
	if r.IncludeResponse {
		b.WriteString(responseHeader)
		b.WriteString(r.ResponseText)
		b.WriteString(sectionTrailer)
	}
	return b.String()
}

// Instruction merges the system instruction with the analyst's own.
func (r AnalysisRequest) Instruction() string {
	return fmt.Sprintf(instructionTemplate,
		r.SystemInstruction,
		strings.TrimSpace(r.CustomInstruction))
}

// Args returns the argument vector for the model runner:
// run <model> <instruction>.
func (r AnalysisRequest) Args() []string {
	return []string{"run", r.ModelName, r.Instruction()}
}
