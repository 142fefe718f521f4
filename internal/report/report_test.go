package report

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"icdeck/internal/faults"
)

type memSink struct {
	objects map[string][]byte
	err     error
}

func newMemSink() *memSink { return &memSink{objects: map[string][]byte{}} }

func (m *memSink) Put(_ context.Context, key, _ string, body []byte) error {
	if m.err != nil {
		return m.err
	}
	if _, ok := m.objects[key]; ok {
		return ErrExists
	}
	m.objects[key] = body
	return nil
}

func (m *memSink) Location(key string) string { return "mem://" + key }

var fixed = time.Date(2024, 5, 6, 7, 8, 9, 0, time.UTC)

func deck() []Section {
	return []Section{
		{Title: "Executive Summary", Text: "Here is the summary you asked for:\n1. **Transaction Overview**\n- Buyer: Acme"},
		{Title: "Company Overview", Text: "1. Company Description\n2. Business Model"},
		{Title: "Financial Overview", Text: "No numbered content."},
	}
}

func TestClean(t *testing.T) {
	assert.Equal(t, "1. Transaction Overview\n- Buyer: Acme", Clean(deck()[0].Text))
	assert.Equal(t, "No numbered content.", Clean("  No numbered content.\n"))
	assert.Equal(t, "", Clean(""))
	assert.Equal(t, "1. Risks\n- FX", Clean("```markdown\n1. **Risks**\n- FX\n```"))
}

func TestRender(t *testing.T) {
	out := string(Render("acme", fixed, deck()))

	assert.True(t, strings.HasPrefix(out, "# Investment Committee Deck: acme\n"))
	assert.Contains(t, out, "_Generated 2024-05-06T07:08:09Z_")
	assert.Contains(t, out, "## Executive Summary\n\n### 1. Transaction Overview\n- Buyer: Acme\n")
	assert.Contains(t, out, "### 2. Business Model\n")
	assert.NotContains(t, out, "**")
	assert.NotContains(t, out, "Here is the summary")

	es := strings.Index(out, "## Executive Summary")
	co := strings.Index(out, "## Company Overview")
	fo := strings.Index(out, "## Financial Overview")
	assert.True(t, es < co && co < fo)
}

func TestAssembler_KeyAndStore(t *testing.T) {
	sink := newMemSink()
	a := NewAssembler(sink, "output", WithClock(func() time.Time { return fixed }))

	art, err := a.Assemble(context.Background(), "acme", deck())
	require.NoError(t, err)
	assert.Equal(t, "output/IC_deck_acme_2024-05-06_07-08-09.md", art.Key)
	assert.Equal(t, "mem://"+art.Key, art.Location)
	assert.Equal(t, len(sink.objects[art.Key]), art.Bytes)
	assert.True(t, fixed.Equal(art.GeneratedAt))
}

func TestAssembler_SameSecondDoesNotOverwrite(t *testing.T) {
	sink := newMemSink()
	a := NewAssembler(sink, "output", WithClock(func() time.Time { return fixed }))

	first, err := a.Assemble(context.Background(), "acme", deck())
	require.NoError(t, err)
	second, err := a.Assemble(context.Background(), "acme", deck())
	require.NoError(t, err)

	assert.NotEqual(t, first.Key, second.Key)
	assert.Equal(t, "output/IC_deck_acme_2024-05-06_07-08-10.md", second.Key)
	assert.Len(t, sink.objects, 2)
}

func TestAssembler_Rejects(t *testing.T) {
	a := NewAssembler(newMemSink(), "")

	_, err := a.Assemble(context.Background(), "", deck())
	assert.ErrorIs(t, err, faults.ErrConfiguration)

	_, err = a.Assemble(context.Background(), "acme", deck()[:2])
	assert.ErrorContains(t, err, "needs 3 sections")

	sink := newMemSink()
	sink.err = errors.New("AccessDenied")
	_, err = NewAssembler(sink, "").Assemble(context.Background(), "acme", deck())
	assert.ErrorContains(t, err, "AccessDenied")
}

func TestAssembler_KeyWithoutPrefix(t *testing.T) {
	a := NewAssembler(newMemSink(), "")
	assert.Equal(t, "IC_deck_globex_2024-05-06_07-08-09.md", a.Key("globex", fixed))
}
