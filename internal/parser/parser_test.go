package parser

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

const pipeLine = "2024-03-01T10:15:00Z|10.0.0.5|93.184.216.34|alice|allowed|https://example.com/index.html|200|5120|Mozilla/5.0|https|news|media|42.5"

func TestParsePipeLayout(t *testing.T) {
	t.Parallel()

	p := New(zaptest.NewLogger(t))
	entries := p.Parse(pipeLine)
	require.Len(t, entries, 1)

	e := entries[0]
	assert.Equal(t, "2024-03-01T10:15:00Z", e.Timestamp)
	assert.Equal(t, "10.0.0.5", e.SourceAddress)
	assert.Equal(t, "93.184.216.34", e.DestinationAddress)
	assert.Equal(t, "alice", e.User)
	assert.Equal(t, "allowed", e.Action)
	assert.Equal(t, "https://example.com/index.html", e.URL)
	assert.Equal(t, "200", e.StatusCode)
	assert.Equal(t, int64(5120), e.ByteCount)
	assert.Equal(t, "Mozilla/5.0", e.UserAgent)
	assert.Equal(t, "https", e.Protocol)
	assert.Equal(t, "news", e.Category)
	assert.Equal(t, "media", e.Subcategory)
	assert.Equal(t, 42.5, e.DurationMS)
	assert.Equal(t, pipeLine, e.RawLine)
}

func TestParseCommaLayout(t *testing.T) {
	t.Parallel()

	p := New(zaptest.NewLogger(t))
	line := `2024-03-01 10:15:00,bob,blocked,"https://bad.example,com/x",403,150000,curl/8.0,10.0.0.9,203.0.113.7,malware,botnet,https`
	entries := p.Parse(line)
	require.Len(t, entries, 1)

	e := entries[0]
	assert.Equal(t, "bob", e.User)
	assert.Equal(t, "blocked", e.Action)
	// Comma inside the quoted URL field must not split.
	assert.Equal(t, "https://bad.example,com/x", e.URL)
	assert.Equal(t, "10.0.0.9", e.SourceAddress)
	assert.Equal(t, "203.0.113.7", e.DestinationAddress)
	assert.Equal(t, "malware", e.Category)
	assert.Equal(t, int64(150000), e.ByteCount)
}

func TestParseSemicolonAndTabLayouts(t *testing.T) {
	t.Parallel()

	p := New(zaptest.NewLogger(t))

	semicolon := strings.ReplaceAll(pipeLine, "|", ";")
	require.Len(t, p.Parse(semicolon), 1)

	tabbed := strings.ReplaceAll(pipeLine, "|", "\t")
	require.Len(t, p.Parse(tabbed), 1)
}

func TestParseSkipsInvalidLines(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		line string
	}{
		{"too few fields", "2024-03-01T10:15:00Z|10.0.0.5|dest|user|allowed"},
		{"blank", "   "},
		{"comment", "# header"},
		{"missing source address", "2024-03-01T10:15:00Z||dest|user|allowed|url|200|100|agent|https"},
		{"empty timestamp field", "|10.0.0.5|dest|user|allowed|url|200|100|agent|https"},
	}

	p := New(zaptest.NewLogger(t))
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Empty(t, p.Parse(tt.line))
		})
	}
}

func TestParseMixedYield(t *testing.T) {
	t.Parallel()

	raw := pipeLine + "\n" + "garbage line\n\n" + pipeLine + "\n"
	p := New(zaptest.NewLogger(t))
	assert.Len(t, p.Parse(raw), 2)
}

func TestNormalizeTimestamp(t *testing.T) {
	t.Parallel()

	p := New(zaptest.NewLogger(t))
	fixed := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	p.now = func() time.Time { return fixed }

	tests := []struct {
		name string
		in   string
		want string
	}{
		{"epoch seconds", "1718000000", "2024-06-10T06:13:20Z"},
		{"epoch millis", "1718000000000", "2024-06-10T06:13:20Z"},
		{"rfc3339", "2024-03-01T10:15:00Z", "2024-03-01T10:15:00Z"},
		{"locale datetime", "2024-03-01 10:15:00", "2024-03-01T10:15:00Z"},
		{"us datetime", "03/01/2024 10:15:00", "2024-03-01T10:15:00Z"},
		{"date only", "2024-03-01", "2024-03-01T00:00:00Z"},
		{"garbage defaults to now", "not-a-time", "2024-03-01T12:00:00Z"},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, p.normalizeTimestamp(tt.in))
		})
	}
}

func TestValidateAcceptsWellFormedFile(t *testing.T) {
	t.Parallel()

	var sb strings.Builder
	for i := 0; i < 20; i++ {
		fmt.Fprintf(&sb, "2024-03-01T10:%02d:00Z|10.0.0.%d|dest|user|allowed|http://example.com|200|100|Mozilla/5.0|https\n", i, i)
	}

	p := New(zaptest.NewLogger(t))
	report := p.Validate(sb.String())
	assert.True(t, report.Valid)
	assert.Empty(t, report.Reason)
	assert.Equal(t, 1.0, report.YieldRate)
}

func TestValidateRejectsLowYield(t *testing.T) {
	t.Parallel()

	// 40% parseable: 4 good lines, 6 garbage.
	var sb strings.Builder
	for i := 0; i < 4; i++ {
		sb.WriteString(pipeLine + "\n")
	}
	for i := 0; i < 6; i++ {
		sb.WriteString("this is not a log line\n")
	}

	p := New(zaptest.NewLogger(t))
	report := p.Validate(sb.String())
	assert.False(t, report.Valid)
	assert.Contains(t, report.Reason, "40%")
	assert.Contains(t, report.Reason, "at least 10 fields")
}

func TestValidateMonotonic(t *testing.T) {
	t.Parallel()

	// Borderline file: exactly 50% yield passes.
	raw := pipeLine + "\ngarbage\n"
	p := New(zaptest.NewLogger(t))
	require.True(t, p.Validate(raw).Valid)

	// Adding parseable lines never flips the verdict negative.
	assert.True(t, p.Validate(raw+pipeLine+"\n").Valid)
}

func TestValidateEmptyInput(t *testing.T) {
	t.Parallel()

	p := New(zaptest.NewLogger(t))
	report := p.Validate("")
	assert.False(t, report.Valid)
	assert.Contains(t, report.Reason, "no log lines")
}

func TestEntryTime(t *testing.T) {
	t.Parallel()

	p := New(zaptest.NewLogger(t))
	entries := p.Parse(pipeLine)
	require.Len(t, entries, 1)
	assert.Equal(t, time.Date(2024, 3, 1, 10, 15, 0, 0, time.UTC), entries[0].Time())
}
