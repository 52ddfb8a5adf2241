package cmd

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/KaramelBytes/surveyloom/internal/ai"
	"github.com/KaramelBytes/surveyloom/internal/dataset"
	"github.com/KaramelBytes/surveyloom/internal/persona"
	"github.com/KaramelBytes/surveyloom/internal/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// echoRuntime answers every request with the same text and no tool calls.
type echoRuntime struct{ reply string }

func (r echoRuntime) Generate(_ context.Context, _ ai.GenerateRequest) (*ai.GenerateResponse, error) {
	return &ai.GenerateResponse{
		Choices: []ai.Choice{{Message: ai.Message{Role: ai.RoleAssistant, Content: r.reply}}},
	}, nil
}

func newTestController(t *testing.T) *session.Controller {
	t.Helper()
	q, err := dataset.DecodeQuestionnaire("q.csv", strings.NewReader(testQuestionnaireCSV))
	require.NoError(t, err)
	res, err := dataset.DecodeResults("r.csv", []byte(testResultsCSV))
	require.NoError(t, err)
	ctrl, err := session.New(session.Options{
		Runtime: echoRuntime{reply: "63% of households reported outages."},
		Store:   dataset.Build(q, res),
		Config:  session.Config{Model: "test/model", SelectorModel: "test/selector", Persona: persona.Economist},
	})
	require.NoError(t, err)
	return ctrl
}

func TestHandleSlashCommandQuit(t *testing.T) {
	ctrl := newTestController(t)
	var out bytes.Buffer
	assert.True(t, handleSlashCommand(ctrl, "/quit", &out))
	assert.True(t, handleSlashCommand(ctrl, "/EXIT", &out))
	assert.False(t, handleSlashCommand(ctrl, "/help", &out))
	assert.Contains(t, out.String(), "/persona")
}

func TestHandleSlashCommandSwitchesSettings(t *testing.T) {
	ctrl := newTestController(t)
	var out bytes.Buffer

	handleSlashCommand(ctrl, "/persona", &out)
	assert.Contains(t, out.String(), "Current persona: economist")

	out.Reset()
	handleSlashCommand(ctrl, "/persona custom Use short bullet points.", &out)
	assert.Contains(t, out.String(), "Persona set to custom")
	assert.Equal(t, persona.Custom, ctrl.Config().Persona)
	assert.Equal(t, "Use short bullet points.", ctrl.Config().CustomStyle)

	out.Reset()
	handleSlashCommand(ctrl, "/persona pirate", &out)
	assert.Contains(t, out.String(), "✗ Error")
	assert.Equal(t, persona.Custom, ctrl.Config().Persona)

	out.Reset()
	handleSlashCommand(ctrl, "/model other/model", &out)
	assert.Equal(t, "other/model", ctrl.Config().Model)

	out.Reset()
	handleSlashCommand(ctrl, "/selector other/selector", &out)
	assert.Equal(t, "other/selector", ctrl.Config().SelectorModel)

	out.Reset()
	handleSlashCommand(ctrl, "/bogus", &out)
	assert.Contains(t, out.String(), "Unknown command")
}

func TestHandleSlashCommandQueriesBeforeAnswer(t *testing.T) {
	ctrl := newTestController(t)
	var out bytes.Buffer
	handleSlashCommand(ctrl, "/queries", &out)
	assert.Contains(t, out.String(), "(no answers yet)")
}

func TestRunChatLines(t *testing.T) {
	ctrl := newTestController(t)
	var out bytes.Buffer
	in := strings.NewReader("How common were outages?\n\n/trace\n/quit\nnever sent\n")

	require.NoError(t, runChatLines(context.Background(), ctrl, in, &out))
	assert.Contains(t, out.String(), "63% of households reported outages.")

	msgs := ctrl.Messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, session.RoleUser, msgs[0].Role)
	assert.Equal(t, "How common were outages?", msgs[0].Content)
	assert.Equal(t, session.RoleAssistant, msgs[1].Role)

	msg, ok := lastAnswer(ctrl)
	require.True(t, ok)
	assert.Equal(t, msgs[1].ID, msg.ID)
}

func TestRunChatTurnCancelledRestoresInput(t *testing.T) {
	ctrl := newTestController(t)
	var out bytes.Buffer
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	restore := runChatTurn(ctx, ctrl, "What about trust?", &out)
	assert.Equal(t, "What about trust?", restore)
	assert.Contains(t, out.String(), "Cancelled")
	assert.Empty(t, ctrl.Messages())
}
