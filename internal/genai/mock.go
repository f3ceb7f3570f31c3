package genai

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/openai/openai-go"

	tferrors "github.com/randalmurphal/traveops/pkg/turnflow/errors"
)

// errScriptedFailure backs nil entries in MockClient.ToolResponses.
var errScriptedFailure = errors.New("scripted failure")

// MockClient is a scripted ClientInterface for the packages that drive
// the workflow. Queued responses are consumed in order per method; Err,
// when set, fails every call. The zero value is usable.
type MockClient struct {
	ModelName string

	// Err fails every call when set.
	Err error

	// GenerateResponses feeds Generate and GenerateWithMessages, and
	// backs content-only GenerateWithTools replies once ToolResponses
	// runs out.
	GenerateResponses []string

	// StructuredResponses holds raw JSON documents consumed by
	// GenerateStructured. An exhausted queue is an error, so tests fail
	// loudly instead of decoding nothing.
	StructuredResponses []string

	// ToolResponses feeds GenerateWithTools. A nil entry makes that
	// call fail, for exercising fallback paths mid-conversation.
	ToolResponses []*ToolCallResponse

	// Recorded inputs for assertions.
	SystemPrompts     []string
	UserPrompts       []string
	ToolCallHistories [][]openai.ChatCompletionMessageParamUnion
}

var _ ClientInterface = (*MockClient)(nil)

func (m *MockClient) Model() string {
	if m.ModelName == "" {
		return "mock-model"
	}
	return m.ModelName
}

func (m *MockClient) Generate(ctx context.Context, system, user string) (string, error) {
	m.SystemPrompts = append(m.SystemPrompts, system)
	m.UserPrompts = append(m.UserPrompts, user)
	if m.Err != nil {
		return "", m.Err
	}
	return m.nextGenerate(), nil
}

func (m *MockClient) GenerateWithMessages(ctx context.Context, messages []openai.ChatCompletionMessageParamUnion) (string, error) {
	if m.Err != nil {
		return "", m.Err
	}
	return m.nextGenerate(), nil
}

func (m *MockClient) GenerateStructured(ctx context.Context, system, user string, out any) error {
	m.SystemPrompts = append(m.SystemPrompts, system)
	m.UserPrompts = append(m.UserPrompts, user)
	if m.Err != nil {
		return m.Err
	}
	if len(m.StructuredResponses) == 0 {
		return errors.New("mock: no structured response queued")
	}
	raw := m.StructuredResponses[0]
	m.StructuredResponses = m.StructuredResponses[1:]
	if err := json.Unmarshal([]byte(raw), out); err != nil {
		return &tferrors.JSONParseError{Input: raw, Message: err.Error()}
	}
	return nil
}

func (m *MockClient) GenerateWithTools(ctx context.Context, messages []openai.ChatCompletionMessageParamUnion, tools []openai.ChatCompletionToolParam) (*ToolCallResponse, error) {
	m.ToolCallHistories = append(m.ToolCallHistories, messages)
	if m.Err != nil {
		return nil, m.Err
	}
	if len(m.ToolResponses) > 0 {
		r := m.ToolResponses[0]
		m.ToolResponses = m.ToolResponses[1:]
		if r == nil {
			return nil, errScriptedFailure
		}
		return r, nil
	}
	return &ToolCallResponse{Content: m.nextGenerate()}, nil
}

func (m *MockClient) nextGenerate() string {
	if len(m.GenerateResponses) == 0 {
		return ""
	}
	r := m.GenerateResponses[0]
	m.GenerateResponses = m.GenerateResponses[1:]
	return r
}
