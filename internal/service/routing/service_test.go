package routing

import (
	"context"
	"errors"
	"testing"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/require"

	"github.com/zhouzirui/emergency-hub/backend/internal/analysis/category"
	"github.com/zhouzirui/emergency-hub/backend/internal/model/chat"
	"github.com/zhouzirui/emergency-hub/backend/internal/model/facility"
)

type scriptedModel struct {
	reply string
	err   error
	calls int
}

func (m *scriptedModel) Generate(context.Context, []*schema.Message, ...model.Option) (*schema.Message, error) {
	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	return schema.AssistantMessage(m.reply, nil), nil
}

func (m *scriptedModel) Stream(ctx context.Context, in []*schema.Message, opts ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	msg, err := m.Generate(ctx, in, opts...)
	if err != nil {
		return nil, err
	}
	return schema.StreamReaderFromArray([]*schema.Message{msg}), nil
}

func (m *scriptedModel) BindTools([]*schema.ToolInfo) error { return nil }

func newService(t *testing.T, m *scriptedModel, enabled bool) *Service {
	t.Helper()
	var cm model.ChatModel
	if m != nil {
		cm = m
	}
	svc, err := NewService(context.Background(), cm, Config{Enabled: enabled}, nil)
	require.NoError(t, err)
	return svc
}

func TestClassifyDisabledUsesKeywords(t *testing.T) {
	m := &scriptedModel{reply: `{"categories":["police"]}`}
	svc := newService(t, m, false)

	require.False(t, svc.Enabled())
	got := svc.Classify(context.Background(), nil, "I need an ambulance")
	require.Equal(t, []facility.Category{facility.Medical}, got.Categories)
	require.Zero(t, m.calls)
}

func TestClassifyWithoutModelIsDisabled(t *testing.T) {
	svc := newService(t, nil, true)
	require.False(t, svc.Enabled())
	require.True(t, svc.Classify(context.Background(), nil, "hello").General())
}

func TestClassifyUsesModelVerdict(t *testing.T) {
	m := &scriptedModel{reply: "Sure:\n```json\n{\"categories\":[\"police\",\"medical\"],\"urgency\":\"medium\",\"confidence\":80,\"reason\":\"robbery with injury\"}\n```"}
	svc := newService(t, m, true)

	history := []chat.Message{{Type: chat.TypeUser, Content: "someone grabbed my bag"}}
	got := svc.Classify(context.Background(), history, "my friend got hurt too")

	require.Equal(t, 1, m.calls)
	require.Equal(t, []facility.Category{facility.Medical, facility.Police}, got.Categories)
	require.True(t, got.MultiService)
	require.Equal(t, 80, got.Confidence)
	require.Equal(t, "robbery with injury", got.Reason)
}

func TestClassifyKeepsKeywordUrgency(t *testing.T) {
	m := &scriptedModel{reply: `{"categories":["fire"],"urgency":"medium"}`}
	svc := newService(t, m, true)

	got := svc.Classify(context.Background(), nil, "urgent, smoke everywhere")
	require.Equal(t, category.Critical, got.Urgency)
	require.Equal(t, 60, got.Confidence)
}

func TestClassifyFallsBack(t *testing.T) {
	cases := []struct {
		name  string
		model *scriptedModel
	}{
		{"model error", &scriptedModel{err: errors.New("quota exceeded")}},
		{"not json", &scriptedModel{reply: "medical, probably"}},
		{"unknown label", &scriptedModel{reply: `{"categories":["coast_guard"]}`}},
		{"empty categories", &scriptedModel{reply: `{"categories":[]}`}},
		{"blank reply", &scriptedModel{reply: "   "}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			svc := newService(t, tc.model, true)
			got := svc.Classify(context.Background(), nil, "house on fire")
			require.Equal(t, []facility.Category{facility.Fire}, got.Categories)
			require.Equal(t, 1, tc.model.calls)
		})
	}
}

func TestClassifyGeneralVerdict(t *testing.T) {
	m := &scriptedModel{reply: `{"categories":["general"],"confidence":40}`}
	svc := newService(t, m, true)

	got := svc.Classify(context.Background(), nil, "what are your opening hours")
	require.True(t, got.General())
	require.False(t, got.MultiService)
}

func TestFormatHistory(t *testing.T) {
	require.Equal(t, "(no earlier messages)", formatHistory(nil, 6))

	history := []chat.Message{
		{Type: chat.TypeUser, Content: "one"},
		{Type: chat.TypeAssistant, Content: "two"},
		{Type: chat.TypeUser, Content: "  "},
		{Type: chat.TypeUser, Content: "three"},
	}
	require.Equal(t, "Operator: two\nCaller: three", formatHistory(history, 3))
}

func TestFormatHistoryKeepsCombinedReplies(t *testing.T) {
	history := []chat.Message{
		{Type: chat.TypeUser, Content: "fire with injuries"},
		{Type: chat.TypeSystem, Content: "MULTI-SERVICE EMERGENCY RESPONSE: nearest stations listed"},
		{Type: chat.TypeUser, Content: "which one is closest?"},
	}
	require.Equal(t,
		"Caller: fire with injuries\nOperator: MULTI-SERVICE EMERGENCY RESPONSE: nearest stations listed\nCaller: which one is closest?",
		formatHistory(history, 6))
}
