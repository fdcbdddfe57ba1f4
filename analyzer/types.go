package analyzer

import "fmt"

// AnalysisRequest is everything needed to run one model invocation over a
// captured exchange. It is built per submission and never mutated.
type AnalysisRequest struct {
	RequestText       string `json:"requestText"`
	ResponseText      string `json:"responseText"`
	IncludeRequest    bool   `json:"includeRequest"`
	IncludeResponse   bool   `json:"includeResponse"`
	CustomInstruction string `json:"customInstruction"`
	SystemInstruction string `json:"systemInstruction"`
	ModelName         string `json:"model"`
	ExecutablePath    string `json:"path"`
}

// ValidationError reports a request with no eligible content.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid analysis request: %s", e.Reason)
}
