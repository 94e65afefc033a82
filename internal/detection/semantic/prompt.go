package semantic

import (
	"fmt"
	"strings"

	"github.com/vmuthusamy/sentry-log-analysis-sub000/internal/parser"
)

// systemPrompt fixes the analyst role and the strict output schema.
// The schema field names match Verdict's JSON tags; changing either
// breaks the transport contract.
const systemPrompt = `You are a network security analyst reviewing proxy log records for anomalous or malicious behavior.

Respond with a single JSON object and nothing else, using exactly these fields:
{
  "isAnomaly": boolean,
  "riskScore": number between 0 and 10,
  "anomalyType": string,
  "description": string,
  "confidence": number between 0 and 1,
  "explanation": string,
  "recommendations": array of strings
}`

// scoringHeuristics are embedded in every user prompt so tier and
// temperature changes cannot drift the scoring floor.
const scoringHeuristics = `Apply these scoring heuristics:
- Blocked or denied actions: riskScore at least 7
- Domains matching malicious patterns (.ru, .biz, unknown-, suspicious-, tor-, dark-, proxy-, malware, phish): riskScore at least 8
- Malware, phishing, or proxy-avoidance categories: riskScore at least 9
- Non-browser user agents (curl, wget, python, postman) accessing blocked content: riskScore at least 8
- Transfers larger than 100KB: riskScore at least 7`

// buildUserPrompt embeds the record's fields and the fixed scoring
// heuristics into the analysis request.
func buildUserPrompt(entry parser.LogEntry) string {
	var sb strings.Builder
	sb.WriteString("Analyze this proxy log record:\n")
	fmt.Fprintf(&sb, "- timestamp: %s\n", entry.Timestamp)
	fmt.Fprintf(&sb, "- source address: %s\n", entry.SourceAddress)
	if entry.DestinationAddress != "" {
		fmt.Fprintf(&sb, "- destination address: %s\n", entry.DestinationAddress)
	}
	if entry.User != "" {
		fmt.Fprintf(&sb, "- user: %s\n", entry.User)
	}
	fmt.Fprintf(&sb, "- action: %s\n", entry.Action)
	if entry.URL != "" {
		fmt.Fprintf(&sb, "- url: %s\n", entry.URL)
	}
	if entry.StatusCode != "" {
		fmt.Fprintf(&sb, "- status code: %s\n", entry.StatusCode)
	}
	fmt.Fprintf(&sb, "- bytes transferred: %d\n", entry.ByteCount)
	if entry.UserAgent != "" {
		fmt.Fprintf(&sb, "- user agent: %s\n", entry.UserAgent)
	}
	if entry.Category != "" {
		fmt.Fprintf(&sb, "- category: %s\n", entry.Category)
	}
	if entry.Subcategory != "" {
		fmt.Fprintf(&sb, "- subcategory: %s\n", entry.Subcategory)
	}
	sb.WriteString("\n")
	sb.WriteString(scoringHeuristics)
	return sb.String()
}
