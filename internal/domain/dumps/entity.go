package dumps

import (
	"fmt"
	"time"

	"github.com/bryanwahyu/st22-gateway/internal/domain/ai"
)

// RecordID is the caller supplied key of a dump (dump_header.id)
type RecordID string

// Payload is the ST22 dump as submitted by the client
type Payload map[string]any

// AnalysisRecord is the latest analysis stored for one dump
type AnalysisRecord struct {
	RecordID       RecordID            `json:"record_id"`
	InputPayload   Payload             `json:"input_payload"`
	AnalysisResult ai.NormalizedResult `json:"analysis_result"`
	CreatedAt      time.Time           `json:"created_at"`
}

// Header returns the dump_header object of the payload, or nil.
func (p Payload) Header() map[string]any {
	h, _ := p["dump_header"].(map[string]any)
	return h
}

// ID returns dump_header.id as a string when present.
func (p Payload) ID() RecordID {
	switch v := p.Header()["id"].(type) {
	case string:
		return RecordID(v)
	case nil:
		return ""
	default:
		return RecordID(fmtAny(v))
	}
}

// Code returns the dump_code field (the ABAP source excerpt) when present.
func (p Payload) Code() string {
	s, _ := p["dump_code"].(string)
	return s
}

// fmtAny renders a JSON scalar id; whole numbers drop the decimal part.
func fmtAny(v any) string {
	switch n := v.(type) {
	case float64:
		if n == float64(int64(n)) {
			return fmt.Sprintf("%d", int64(n))
		}
	}
	return fmt.Sprint(v)
}
