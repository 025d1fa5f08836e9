package prompt

import (
	"encoding/json"
	"fmt"
	"strings"
)

// SystemInstruction frames the assistant role on every inference call.
const SystemInstruction = "You are an SAP short dump analysis expert."

// ResponseExample is the JSON shape the model is asked to answer with.
const ResponseExample = `{
  "summary": "<one paragraph explaining what happened>",
  "root_cause": "<most likely technical root cause>",
  "priority": "<High|Medium|Low>",
  "affected_objects": ["<program, class or table names>"],
  "recommendations": ["<concrete next step>"],
  "sap_notes": ["<relevant SAP note numbers, if any>"]
}`

const dumpTemplate = `Analyze the following SAP ST22 short dump and respond with ONE valid JSON object only, no markdown and no commentary, matching this example:
%s

Dump (JSON):
%s

ABAP source around the termination point:
%s
`

// BuildDumpPrompt renders the user message for a dump payload. code is the
// ABAP excerpt shipped with the dump and may be empty.
func BuildDumpPrompt(dump map[string]any, code string) (string, error) {
	b, err := json.MarshalIndent(dump, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshalling dump: %w", err)
	}
	if strings.TrimSpace(code) == "" {
		code = "(not provided)"
	}
	return fmt.Sprintf(dumpTemplate, ResponseExample, b, code), nil
}
