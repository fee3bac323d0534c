package services

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ima-agent/internal/app/models"
	"ima-agent/internal/pkg/code"
)

// sliceSource 按顺序返回预设事件，耗尽后返回 err
type sliceSource struct {
	events []models.Event
	err    error
}

func (s *sliceSource) Next() (models.Event, error) {
	if len(s.events) == 0 {
		if s.err == nil {
			return models.Event{}, ErrTruncated
		}
		return models.Event{}, s.err
	}
	ev := s.events[0]
	s.events = s.events[1:]
	return ev, nil
}

func text(s string) models.Event {
	return models.Event{Kind: models.EventText, Data: `"` + s + `"`}
}

func ref(id, title string) models.Event {
	return models.Event{Kind: models.EventReference, Data: `{"id":"` + id + `","title":"` + title + `"}`}
}

var done = models.Event{Kind: models.EventDone, Data: "{}"}

func TestAssemble_ThreeEventStream(t *testing.T) {
	res, err := Assemble(&sliceSource{events: []models.Event{text("Paris"), ref("r1", "Geo"), done}})
	require.NoError(t, err)
	assert.Equal(t, &models.Result{
		Answer:     "Paris",
		References: []models.Reference{{ID: "r1", Title: "Geo"}},
	}, res)
}

func TestAssemble_DedupesReferencesInFirstSeenOrder(t *testing.T) {
	res, err := Assemble(&sliceSource{events: []models.Event{
		ref("b", "B"), text("x"), ref("a", "A"), ref("b", "B again"), text("y"), ref("c", "C"), ref("a", "A"), done,
	}})
	require.NoError(t, err)
	assert.Equal(t, "xy", res.Answer)

	var ids, titles []string
	for _, r := range res.References {
		ids = append(ids, r.ID)
		titles = append(titles, r.Title)
	}
	assert.Equal(t, []string{"b", "a", "c"}, ids)
	assert.Equal(t, []string{"B", "A", "C"}, titles)
}

func TestAssemble_TextIsNotDeduplicated(t *testing.T) {
	res, err := Assemble(&sliceSource{events: []models.Event{text("ha"), text("ha"), done}})
	require.NoError(t, err)
	assert.Equal(t, "haha", res.Answer)
}

func TestAssemble_MissingDoneIsIncomplete(t *testing.T) {
	res, err := Assemble(&sliceSource{events: []models.Event{text("Paris"), ref("r1", "Geo")}})
	assert.Nil(t, res)
	assert.ErrorIs(t, err, code.ErrIncompleteStream)
	assert.True(t, code.Retryable(err))
}

func TestAssemble_ReadErrors(t *testing.T) {
	tests := []struct {
		name string
		err  error
		kind error
	}{
		{"eof", io.EOF, code.ErrIncompleteStream},
		{"unexpected eof", io.ErrUnexpectedEOF, code.ErrIncompleteStream},
		{"reset", errors.New("connection reset by peer"), code.ErrNetwork},
		{"classified", code.Newf(code.ErrAuthentication, "HTTP 401"), code.ErrAuthentication},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Assemble(&sliceSource{events: []models.Event{text("a")}, err: tt.err})
			assert.Equal(t, tt.kind, code.KindOf(err))
		})
	}

	_, err := Assemble(&sliceSource{err: context.DeadlineExceeded})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Nil(t, code.KindOf(err))
}

func TestAssemble_ErrorEvents(t *testing.T) {
	tests := []struct {
		name string
		ev   models.Event
		kind error
	}{
		{"login expired code", models.Event{Kind: models.EventError, Data: `{"code":600001,"msg":"x"}`}, code.ErrAuthentication},
		{"login expired message", models.Event{Kind: models.EventError, Data: `{"code":1,"msg":"登录过期，请重新登录"}`}, code.ErrAuthentication},
		{"other remote error", models.Event{Kind: models.EventError, Data: `{"code":500,"msg":"internal"}`}, code.ErrMalformedStream},
		{"plain text", models.Event{Kind: models.EventError, Data: `token expired`}, code.ErrAuthentication},
		{"unknown marker", models.Event{Kind: models.EventError, Marker: "surprise", Opaque: true}, code.ErrMalformedStream},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := Assemble(&sliceSource{events: []models.Event{text("partial"), tt.ev, done}})
			assert.Nil(t, res)
			assert.Equal(t, tt.kind, code.KindOf(err))
		})
	}
}

func TestAssemble_MalformedPayloads(t *testing.T) {
	for _, ev := range []models.Event{
		{Kind: models.EventText, Data: `{"no":"text"}`},
		{Kind: models.EventText, Data: `"unterminated`},
		{Kind: models.EventText, Data: `{"Text":1}`},
		{Kind: models.EventReference, Data: `{"title":"no id"}`},
		{Kind: models.EventReference, Data: `[1,2]`},
	} {
		_, err := Assemble(&sliceSource{events: []models.Event{ev, done}})
		assert.ErrorIs(t, err, code.ErrMalformedStream, ev.Data)
	}
}

func TestAssemble_TextPayloadShapes(t *testing.T) {
	res, err := Assemble(&sliceSource{events: []models.Event{
		{Kind: models.EventText, Data: `{"text":"a"}`},
		{Kind: models.EventText, Data: `{"content":"b"}`},
		{Kind: models.EventText, Data: `"c\n"`},
		{Kind: models.EventReference, Data: `{"id":"r","title":"t","url":"https://u"}`},
		done,
	}})
	require.NoError(t, err)
	assert.Equal(t, "abc\n", res.Answer)
	assert.Equal(t, "https://u", res.References[0].Locator)
}

func TestAssemble_FromDecoder(t *testing.T) {
	stream := "event: text\ndata: \"Paris\"\n\n" +
		"event: reference\ndata: {\"id\":\"r1\",\"title\":\"Geo\"}\n\n" +
		"event: reference\ndata: {\"id\":\"r1\",\"title\":\"Geo\"}\n\n" +
		"event: done\ndata: {}\n\n"
	res, err := Assemble(NewDecoder(&chunkReader{data: []byte(stream), size: 3}))
	require.NoError(t, err)
	assert.Equal(t, "Paris", res.Answer)
	assert.Len(t, res.References, 1)

	_, err = Assemble(NewDecoder(strings.NewReader(stream[:len(stream)-len("event: done\ndata: {}\n\n")])))
	assert.ErrorIs(t, err, code.ErrIncompleteStream)
}

func TestAssemble_BareTextDelta(t *testing.T) {
	res, err := Assemble(NewDecoder(strings.NewReader("event: text\ndata: Paris\n\nevent: text\ndata:  is nice\n\nevent: done\ndata: {}\n\n")))
	require.NoError(t, err)
	assert.Equal(t, "Paris is nice", res.Answer)
}

func TestAssemble_FullResponseMessage(t *testing.T) {
	stream := `{"msgs":[{"type":3,"content":{"answer":"{\"Text\":\"Paris\"}","context_refs":"{\"medias\":[{\"id\":\"m1\",\"title\":\"Geo\",\"timestamp\":1700000000}]}"}}]}` +
		"\n[DONE]\n"
	res, err := Assemble(NewDecoder(strings.NewReader(stream)))
	require.NoError(t, err)
	assert.Equal(t, &models.Result{
		Answer:     "Paris",
		References: []models.Reference{{ID: "m1", Title: "Geo", Timestamp: 1700000000}},
	}, res)

	_, err = Assemble(NewDecoder(strings.NewReader(`{"msgs":[{"type":3,"content":{"answer":""}}]}` + "\n[DONE]\n")))
	assert.ErrorIs(t, err, code.ErrMalformedStream)
	assert.True(t, code.Retryable(err))
}

func TestAssembler_ResultIsACopy(t *testing.T) {
	a := NewAssembler()
	_, err := a.Apply(ref("r1", "Geo"))
	require.NoError(t, err)
	res := a.Result()
	_, err = a.Apply(ref("r2", "Other"))
	require.NoError(t, err)
	assert.Len(t, res.References, 1)
}
