package llmassist

import (
	"context"
	"fmt"
)

// FakeAnalyzer is an in-process AnalyzerPort used by bridge tests so they
// don't depend on a live LLM service.
type FakeAnalyzer struct {
	CommandResponse func(sessionID, command string) (string, error)
	OutputResponse  func(sessionID, command, output string) (string, error)
}

func (f *FakeAnalyzer) AnalyzeCommand(_ context.Context, sessionID, command string) (string, error) {
	if f.CommandResponse != nil {
		return f.CommandResponse(sessionID, command)
	}
	return fmt.Sprintf("explanation of %q", command), nil
}

func (f *FakeAnalyzer) AnalyzeOutput(_ context.Context, sessionID, command, output string) (string, error) {
	if f.OutputResponse != nil {
		return f.OutputResponse(sessionID, command, output)
	}
	return fmt.Sprintf("analysis of output for %q", command), nil
}
