package loopdetect

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vektra-dev/browseragent/internal/agentcore"
)

func clickAction(index float64) agentcore.AgentAction {
	return agentcore.AgentAction{"click-element": {"index": index}}
}

func TestRecordActionTracksRepetitionCount(t *testing.T) {
	d := New(20, zerolog.Nop())
	d.RecordAction(clickAction(3))
	d.RecordAction(clickAction(3))
	assert.Equal(t, 2, d.MaxRepetitionCount())
}

func TestRecordActionWindowEviction(t *testing.T) {
	d := New(2, zerolog.Nop())
	d.RecordAction(clickAction(1))
	d.RecordAction(clickAction(2))
	d.RecordAction(clickAction(2))
	// window size 2: ring now holds only the last two insertions (click-2, click-2)
	assert.Equal(t, 2, d.MaxRepetitionCount())
}

func TestGetNudgeMessageThresholds(t *testing.T) {
	d := New(20, zerolog.Nop())
	require.Nil(t, d.GetNudgeMessage())

	for i := 0; i < 5; i++ {
		d.RecordAction(clickAction(1))
	}
	soft := d.GetNudgeMessage()
	require.NotNil(t, soft)

	for i := 0; i < 3; i++ {
		d.RecordAction(clickAction(1))
	}
	mid := d.GetNudgeMessage()
	require.NotNil(t, mid)
	assert.NotEqual(t, *soft, *mid)

	for i := 0; i < 4; i++ {
		d.RecordAction(clickAction(1))
	}
	strong := d.GetNudgeMessage()
	require.NotNil(t, strong)
	assert.Equal(t, 12, d.MaxRepetitionCount())
}

func TestRecordPageStateStagnation(t *testing.T) {
	d := New(20, zerolog.Nop())
	for i := 0; i < 5; i++ {
		d.RecordPageState("https://example.com", "same content", 10)
	}
	assert.Equal(t, 4, d.ConsecutiveStagnantPages())
	nudge := d.GetNudgeMessage()
	require.Nil(t, nudge)

	d.RecordPageState("https://example.com", "same content", 10)
	nudge = d.GetNudgeMessage()
	require.NotNil(t, nudge)
}

func TestRecordPageStateResetsOnChange(t *testing.T) {
	d := New(20, zerolog.Nop())
	d.RecordPageState("https://example.com", "same", 10)
	d.RecordPageState("https://example.com", "same", 10)
	require.Equal(t, 1, d.ConsecutiveStagnantPages())

	d.RecordPageState("https://example.com/other", "different", 12)
	assert.Equal(t, 0, d.ConsecutiveStagnantPages())
}

func TestRecordPageStateOscillationNudge(t *testing.T) {
	d := New(20, zerolog.Nop())
	pages := []struct {
		url  string
		text string
	}{
		{"https://example.com/a", "page a"},
		{"https://example.com/b", "page b"},
	}
	for i := 0; i < 5; i++ {
		p := pages[i%2]
		d.RecordPageState(p.url, p.text, 10)
	}
	assert.Equal(t, 0, d.ConsecutiveStagnantPages(), "no two adjacent observations match")
	assert.Equal(t, 2, d.DistinctRecentPageCount())

	nudge := d.GetNudgeMessage()
	require.NotNil(t, nudge)
	assert.Contains(t, *nudge, "2 distinct page states")
}

func TestFingerprintEqualReflexiveAndSymmetric(t *testing.T) {
	a := Fingerprint{URL: "https://example.com", ElementCount: 3, TextHash: djb2("hello")}
	b := Fingerprint{URL: "https://example.com", ElementCount: 3, TextHash: djb2("hello")}
	c := Fingerprint{URL: "https://example.com", ElementCount: 4, TextHash: djb2("hello")}

	assert.True(t, a.Equal(a))
	assert.True(t, a.Equal(b))
	assert.True(t, b.Equal(a))
	assert.False(t, a.Equal(c))
	assert.False(t, c.Equal(a))
}
