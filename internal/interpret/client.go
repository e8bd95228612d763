package interpret

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/meridian-crm/go-scheduling-backend/internal/domain"
)

// intentSchema is the JSON schema sent with every interpretation call. The
// gateway constrains model output to this shape; we still re-validate on the
// way back in because the schema is advisory, not a guarantee.
const intentSchema = `{
  "type": "object",
  "additionalProperties": false,
  "required": ["intent", "confidence"],
  "properties": {
    "intent": {"type": "string", "enum": ["accept", "decline", "counter_propose", "question", "unclear"]},
    "selected_time": {"type": "string", "format": "date-time"},
    "counter_proposed_times": {"type": "array", "items": {"type": "string", "format": "date-time"}},
    "sentiment": {"type": "string", "enum": ["positive", "neutral", "negative"]},
    "confidence": {"type": "number", "minimum": 0, "maximum": 1},
    "reasoning": {"type": "string"}
  }
}`

// Client calls an AI gateway that accepts {prompt, schema} and returns a JSON
// object conforming to the schema. It owns the prompt construction (grounding
// table included) and the boundary validation of the result.
type Client struct {
	// Endpoint is the full URL of the structured-output completion endpoint.
	Endpoint string
	// APIKey, when set, is sent as a bearer token.
	APIKey string
	// Timeout bounds each call. Zero means 20s.
	Timeout time.Duration
	// HTTPClient is replaceable for tests. Nil means http.DefaultClient.
	HTTPClient *http.Client
}

// gatewayRequest is the wire request body.
type gatewayRequest struct {
	Prompt string          `json:"prompt"`
	Schema json.RawMessage `json:"schema"`
}

// Classify implements Interpreter: builds the grounded prompt, performs the
// call with a bounded timeout, and decodes/validates the tagged union.
func (c *Client) Classify(ctx context.Context, in Input) (domain.Interpretation, error) {
	timeout := c.Timeout
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	body, err := json.Marshal(gatewayRequest{
		Prompt: BuildPrompt(in),
		Schema: json.RawMessage(intentSchema),
	})
	if err != nil {
		return domain.Interpretation{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.Endpoint, bytes.NewReader(body))
	if err != nil {
		return domain.Interpretation{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.APIKey)
	}

	hc := c.HTTPClient
	if hc == nil {
		hc = http.DefaultClient
	}
	resp, err := hc.Do(req)
	if err != nil {
		return domain.Interpretation{}, fmt.Errorf("interpret: gateway call: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return domain.Interpretation{}, fmt.Errorf("interpret: read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return domain.Interpretation{}, fmt.Errorf("interpret: gateway status %d", resp.StatusCode)
	}
	return domain.DecodeInterpretation(raw)
}

var _ Interpreter = (*Client)(nil)

// BuildPrompt renders the interpretation prompt: role, grounding table,
// proposed times as ISO instants, and the raw reply. The instructions pin the
// output to ISO 8601 instants taken from the table so "Monday" can only ever
// mean the table's Monday.
func BuildPrompt(in Input) string {
	var b strings.Builder
	b.WriteString("You classify a prospect's reply to a meeting-scheduling email.\n\n")
	b.WriteString(in.Table.Render())
	b.WriteString("\nTimes proposed to the prospect (ISO 8601):\n")
	if len(in.ProposedTimes) == 0 {
		b.WriteString("  (none)\n")
	}
	for _, t := range in.ProposedTimes {
		fmt.Fprintf(&b, "  %s (%s)\n", t.Format(time.RFC3339), t.Weekday())
	}
	b.WriteString("\nRules:\n")
	b.WriteString("  - Resolve weekday names strictly via the calendar above; never infer dates.\n")
	b.WriteString("  - selected_time must be one of the proposed times, as ISO 8601.\n")
	b.WriteString("  - counter_proposed_times must be ISO 8601 instants on dates from the calendar.\n")
	b.WriteString("  - If the reply is ambiguous or the date cannot be resolved, use intent \"unclear\".\n")
	if in.Subject != "" {
		fmt.Fprintf(&b, "\nSubject: %s\n", in.Subject)
	}
	fmt.Fprintf(&b, "\nReply:\n%s\n", in.Body)
	return b.String()
}
