package llm

import "context"

// MockStep scripts one generation call for the Mock client.
type MockStep struct {
	Tokens    []string
	ToolCalls []ToolCall
	Err       error
}

// Mock replays scripted steps, one per Stream call. Calls past the end of
// the script return an empty result.
type Mock struct {
	Steps []MockStep
	// Requests records every request seen, for assertions.
	Requests []Request
	next     int
}

func (m *Mock) Stream(ctx context.Context, req Request, onToken func(string) error) (*Result, error) {
	m.Requests = append(m.Requests, req)
	if m.next >= len(m.Steps) {
		return &Result{}, nil
	}
	step := m.Steps[m.next]
	m.next++
	if step.Err != nil {
		return nil, step.Err
	}
	var content string
	for _, tok := range step.Tokens {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		content += tok
		if err := onToken(tok); err != nil {
			return nil, err
		}
	}
	return &Result{Content: content, ToolCalls: step.ToolCalls}, nil
}
