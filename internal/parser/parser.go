// Package parser normalizes raw proxy log text into LogEntry records.
//
// Upstream exporters disagree on delimiters and field order, so parsing is
// best-effort: lines that do not normalize are skipped, never surfaced as
// errors. Yield rate is the first-class signal for format validation.
package parser

import (
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
)

// Minimum number of delimiter-separated fields for a line to be
// considered structurally valid.
const minFields = 10

// Number of lines sampled by Validate and the yield-rate floor below
// which a file is rejected.
const (
	validateSampleSize = 100
	minYieldRate       = 0.5
)

// LogEntry is the normalized, immutable representation of one proxy log
// line. SourceAddress and Timestamp are always present; a line missing
// either is dropped during normalization and never forwarded.
type LogEntry struct {
	Timestamp          string  `json:"timestamp"` // ISO-8601
	SourceAddress      string  `json:"source_address"`
	DestinationAddress string  `json:"destination_address,omitempty"`
	User               string  `json:"user,omitempty"`
	Action             string  `json:"action,omitempty"`
	URL                string  `json:"url,omitempty"`
	StatusCode         string  `json:"status_code,omitempty"`
	ByteCount          int64   `json:"byte_count,omitempty"`
	DurationMS         float64 `json:"duration_ms,omitempty"`
	UserAgent          string  `json:"user_agent,omitempty"`
	Protocol           string  `json:"protocol,omitempty"`
	Category           string  `json:"category,omitempty"`
	Subcategory        string  `json:"subcategory,omitempty"`
	RawLine            string  `json:"-"`
}

// Time returns the entry timestamp as time.Time. The zero time is
// returned only if the stored timestamp was corrupted after parsing,
// which normalization rules out.
func (e *LogEntry) Time() time.Time {
	t, err := time.Parse(time.RFC3339, e.Timestamp)
	if err != nil {
		return time.Time{}
	}
	return t
}

// FormatReport is the outcome of Validate.
type FormatReport struct {
	Valid       bool    `json:"valid"`
	Reason      string  `json:"reason,omitempty"`
	SampledLine int     `json:"sampled_lines"`
	YieldRate   float64 `json:"yield_rate"`
}

// Parser converts raw delimited text into LogEntry records.
type Parser struct {
	logger *zap.Logger
	now    func() time.Time // injectable for tests
}

// New creates a Parser.
func New(logger *zap.Logger) *Parser {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Parser{
		logger: logger,
		now:    time.Now,
	}
}

// Parse splits raw text into lines and normalizes each one. Lines that
// fail to normalize reduce yield; they are counted, logged at debug, and
// otherwise ignored. Parse never panics across this boundary.
func (p *Parser) Parse(raw string) []LogEntry {
	lines := splitLines(raw)
	entries := make([]LogEntry, 0, len(lines))

	skipped := 0
	for _, line := range lines {
		entry, ok := p.parseLine(line)
		if !ok {
			skipped++
			continue
		}
		entries = append(entries, entry)
	}

	if skipped > 0 {
		p.logger.Debug("skipped unparseable lines",
			zap.Int("skipped", skipped),
			zap.Int("parsed", len(entries)))
	}

	return entries
}

// Validate samples up to 100 lines and accepts the format only if at
// least half of them normalize. Idempotent; adding parseable lines to a
// borderline file can only move the verdict toward acceptance.
func (p *Parser) Validate(raw string) FormatReport {
	lines := splitLines(raw)
	if len(lines) == 0 {
		return FormatReport{
			Valid:  false,
			Reason: "file contains no log lines",
		}
	}

	sample := lines
	if len(sample) > validateSampleSize {
		sample = sample[:validateSampleSize]
	}

	parsed := 0
	for _, line := range sample {
		if _, ok := p.parseLine(line); ok {
			parsed++
		}
	}

	rate := float64(parsed) / float64(len(sample))
	report := FormatReport{
		Valid:       rate >= minYieldRate,
		SampledLine: len(sample),
		YieldRate:   rate,
	}
	if !report.Valid {
		report.Reason = "only " + strconv.Itoa(int(rate*100)) +
			"% of sampled lines parsed; expected pipe-, semicolon-, tab-, or comma-delimited proxy records with at least 10 fields"
	}
	return report
}

// parseLine normalizes a single line. The bool result is false for
// structurally invalid lines (a skip, not an error).
func (p *Parser) parseLine(line string) (LogEntry, bool) {
	line = strings.TrimSpace(line)
	if line == "" || strings.HasPrefix(line, "#") {
		return LogEntry{}, false
	}

	delim := detectDelimiter(line)

	var fields []string
	if delim == ',' {
		fields = splitQuoted(line)
	} else {
		fields = strings.Split(line, string(delim))
	}
	if len(fields) < minFields {
		return LogEntry{}, false
	}

	for i, f := range fields {
		fields[i] = stripQuotes(strings.TrimSpace(f))
	}

	var entry LogEntry
	if delim == ',' {
		entry = mapCommaLayout(fields)
	} else {
		entry = mapDelimitedLayout(fields)
	}
	entry.RawLine = line

	// Timestamp field must exist even though unparseable values fall
	// back to "now"; an empty first field means the line is garbage.
	if strings.TrimSpace(fields[0]) == "" {
		return LogEntry{}, false
	}
	if entry.SourceAddress == "" {
		return LogEntry{}, false
	}

	entry.Timestamp = p.normalizeTimestamp(entry.Timestamp)
	return entry, true
}

// mapDelimitedLayout maps the pipe/semicolon/tab export layout:
//
//	timestamp|source|destination|user|action|url|status|bytes|agent|protocol[|category[|subcategory[|duration_ms]]]
func mapDelimitedLayout(f []string) LogEntry {
	entry := LogEntry{
		Timestamp:          f[0],
		SourceAddress:      f[1],
		DestinationAddress: f[2],
		User:               f[3],
		Action:             strings.ToLower(f[4]),
		URL:                f[5],
		StatusCode:         f[6],
		ByteCount:          parseInt(f[7]),
		UserAgent:          f[8],
		Protocol:           f[9],
	}
	if len(f) > 10 {
		entry.Category = strings.ToLower(f[10])
	}
	if len(f) > 11 {
		entry.Subcategory = strings.ToLower(f[11])
	}
	if len(f) > 12 {
		entry.DurationMS = parseFloat(f[12])
	}
	return entry
}

// mapCommaLayout maps the CSV export layout used by NSS-style feeds:
//
//	timestamp,user,action,url,status,bytes,agent,source,destination,category[,subcategory[,protocol[,duration_ms]]]
func mapCommaLayout(f []string) LogEntry {
	entry := LogEntry{
		Timestamp:          f[0],
		User:               f[1],
		Action:             strings.ToLower(f[2]),
		URL:                f[3],
		StatusCode:         f[4],
		ByteCount:          parseInt(f[5]),
		UserAgent:          f[6],
		SourceAddress:      f[7],
		DestinationAddress: f[8],
		Category:           strings.ToLower(f[9]),
	}
	if len(f) > 10 {
		entry.Subcategory = strings.ToLower(f[10])
	}
	if len(f) > 11 {
		entry.Protocol = f[11]
	}
	if len(f) > 12 {
		entry.DurationMS = parseFloat(f[12])
	}
	return entry
}

// detectDelimiter scans for pipe, semicolon, then tab; comma is the
// fallback and the only delimiter split quote-aware.
func detectDelimiter(line string) rune {
	switch {
	case strings.ContainsRune(line, '|'):
		return '|'
	case strings.ContainsRune(line, ';'):
		return ';'
	case strings.ContainsRune(line, '\t'):
		return '\t'
	default:
		return ','
	}
}

// splitQuoted splits on commas outside double quotes. A quote toggles
// the in-quotes state; commas inside quotes do not split.
func splitQuoted(line string) []string {
	var fields []string
	var cur strings.Builder
	inQuotes := false

	for _, r := range line {
		switch {
		case r == '"':
			inQuotes = !inQuotes
			cur.WriteRune(r)
		case r == ',' && !inQuotes:
			fields = append(fields, cur.String())
			cur.Reset()
		default:
			cur.WriteRune(r)
		}
	}
	fields = append(fields, cur.String())
	return fields
}

// stripQuotes removes a single pair of wrapping double quotes.
func stripQuotes(s string) string {
	if len(s) >= 2 && strings.HasPrefix(s, `"`) && strings.HasSuffix(s, `"`) {
		return s[1 : len(s)-1]
	}
	return s
}

// timestampFormats covers the locale formats seen in upstream exports.
var timestampFormats = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"01/02/2006 15:04:05",
	"02/Jan/2006:15:04:05 -0700",
	"Jan 2 15:04:05 2006",
	"2006-01-02",
}

// normalizeTimestamp renders any supported timestamp form as RFC3339
// UTC. Epoch seconds and epoch milliseconds are distinguished by
// magnitude. Unparseable input defaults to the current time so the
// record survives with reduced temporal fidelity.
func (p *Parser) normalizeTimestamp(raw string) string {
	raw = strings.TrimSpace(raw)

	if n, err := strconv.ParseFloat(raw, 64); err == nil && n > 0 {
		sec := int64(n)
		if sec > 1e12 { // epoch millis
			return time.UnixMilli(sec).UTC().Format(time.RFC3339)
		}
		return time.Unix(sec, 0).UTC().Format(time.RFC3339)
	}

	for _, layout := range timestampFormats {
		if t, err := time.Parse(layout, raw); err == nil {
			return t.UTC().Format(time.RFC3339)
		}
	}

	return p.now().UTC().Format(time.RFC3339)
}

func splitLines(raw string) []string {
	var lines []string
	for _, line := range strings.Split(raw, "\n") {
		if strings.TrimSpace(line) == "" {
			continue
		}
		lines = append(lines, line)
	}
	return lines
}

func parseInt(s string) int64 {
	n, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil {
		return 0
	}
	return n
}

func parseFloat(s string) float64 {
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0
	}
	return f
}
