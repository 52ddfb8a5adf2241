package agent

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/KaramelBytes/surveyloom/internal/ai"
	"github.com/KaramelBytes/surveyloom/internal/catalog"
	"github.com/KaramelBytes/surveyloom/internal/dataset"
	"github.com/KaramelBytes/surveyloom/internal/logging"
)

func TestSelectFiltersToCatalog(t *testing.T) {
	f := newFixture()
	rt := &scriptedRuntime{replies: []ai.Message{
		text(`{"variables": ["electricity_outages", "made_up", "trust_in_banks", "electricity_outages"]}`),
	}}
	s := NewSelector(rt, "sel/model", f.catalog, logging.NewTestLogger(t))

	got := s.Select(context.Background(), "outages and bank trust")
	assert.Equal(t, []string{"electricity_outages", "trust_in_banks"}, got)

	req := rt.request(0)
	assert.Equal(t, "sel/model", req.Model)
	require.NotNil(t, req.ResponseFormat)
	assert.Equal(t, "json_schema", req.ResponseFormat.Type)
	assert.Empty(t, req.Tools)
	assert.Contains(t, req.Messages[1].Content, "trust_in_banks (text) [QUALITATIVE]")
	assert.Contains(t, req.Messages[1].Content, "outages and bank trust")
}

func TestSelectAcceptsBareArrayAndFence(t *testing.T) {
	f := newFixture()
	for _, body := range []string{
		`["hh_size"]`,
		"```json\n{\"variables\": [\"hh_size\"]}\n```",
	} {
		rt := &scriptedRuntime{replies: []ai.Message{text(body)}}
		got := NewSelector(rt, "m", f.catalog, nil).Select(context.Background(), "size")
		assert.Equal(t, []string{"hh_size"}, got, body)
	}
}

func TestSelectDegradesToEmpty(t *testing.T) {
	f := newFixture()
	cases := map[string]*scriptedRuntime{
		"provider error": {errs: map[int]error{0: errors.New("provider error 502")}},
		"no choices":     {},
		"malformed":      {replies: []ai.Message{text("I think electricity_outages")}},
		"empty":          {replies: []ai.Message{text("")}},
	}
	for name, rt := range cases {
		got := NewSelector(rt, "m", f.catalog, logging.NewTestLogger(t)).Select(context.Background(), "x")
		assert.NotNil(t, got, name)
		assert.Empty(t, got, name)
	}
}

func TestSelectEmptyCatalogSkipsCall(t *testing.T) {
	rt := &scriptedRuntime{replies: []ai.Message{text(`["a"]`)}}
	empty := catalog.Build(dataset.Questionnaire{}, nil)
	got := NewSelector(rt, "m", empty, nil).Select(context.Background(), "x")
	assert.Empty(t, got)
	assert.Zero(t, rt.calls())
}

func TestSelectCancelled(t *testing.T) {
	f := newFixture()
	rt := newBlockingRuntime()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan []string, 1)
	go func() { done <- NewSelector(rt, "m", f.catalog, nil).Select(ctx, "x") }()
	<-rt.started
	cancel()
	assert.Empty(t, <-done)
}
