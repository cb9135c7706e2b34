package server

import (
	"encoding/json"

	"github.com/veritag-systems/rfid-label-agent/label"
)

// Message types emitted by the agent.
const (
	TypeResult   = "result"
	TypeProgress = "progress"
)

// Actions a client may request.
const (
	ActionPrint      = "print"
	ActionBatchPrint = "batch_print"
	ActionTestPrint  = "test_print"
	ActionRead       = "read"
	ActionWriteTag   = "write_tag"
	ActionVerify     = "verify"
	ActionDetect     = "detect"
	ActionStatus     = "status"
)

// Request is the client-to-agent envelope. ID is echoed back on every
// message belonging to the request; when absent the agent assigns one.
type Request struct {
	ID      string          `json:"id,omitempty"`
	Action  string          `json:"action"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Response is the agent-to-client envelope. A batch request produces zero or
// more progress messages followed by exactly one result message.
type Response struct {
	ID     string `json:"id"`
	Type   string `json:"type"`
	Action string `json:"action"`
	OK     bool   `json:"ok"`
	Error  string `json:"error,omitempty"`
	Result any    `json:"result,omitempty"`
}

// LabelPayload carries one label's fields over the wire.
type LabelPayload struct {
	AssetID  string `json:"asset_id"`
	EPC      string `json:"epc,omitempty"`
	Name     string `json:"name,omitempty"`
	Location string `json:"location,omitempty"`
	Category string `json:"category,omitempty"`
}

func (p LabelPayload) description() label.Description {
	return label.Description{
		AssetID:  p.AssetID,
		EPC:      p.EPC,
		Name:     p.Name,
		Location: p.Location,
		Category: p.Category,
	}
}

// PrintRequest asks for a single label. Language overrides the agent's
// configured selection ("auto", "zpl" or "ipl") when set.
type PrintRequest struct {
	Label    LabelPayload `json:"label"`
	Language string       `json:"language,omitempty"`
}

// BatchPrintRequest asks for a whole batch in one request.
type BatchPrintRequest struct {
	Labels   []LabelPayload `json:"labels"`
	Language string         `json:"language,omitempty"`
}

// PrintResult reports one send outcome.
type PrintResult struct {
	Success  bool   `json:"success"`
	Message  string `json:"message"`
	Language string `json:"language"`
}

// BatchPrintResult is the batch summary.
type BatchPrintResult struct {
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
	Skipped   int `json:"skipped"`
}

// ProgressEvent is streamed after each attempted batch item.
type ProgressEvent struct {
	Index   int    `json:"index"`
	Total   int    `json:"total"`
	AssetID string `json:"asset_id"`
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// ReadTagResult is one tag observation.
type ReadTagResult struct {
	EPC  string `json:"epc"`
	RSSI int    `json:"rssi"`
}

// WriteTagRequest asks the reader to encode an identifier.
type WriteTagRequest struct {
	EPC string `json:"epc"`
}

// VerifyRequest asks for a verify-by-readback.
type VerifyRequest struct {
	EPC string `json:"epc"`
}

// VerifyResult reports the comparison and the fresh observation it used.
type VerifyResult struct {
	Matched  bool          `json:"matched"`
	Observed ReadTagResult `json:"observed"`
}

// DetectResult reports a dialect probe ("zpl", "ipl" or "unknown").
type DetectResult struct {
	Language string `json:"language"`
}

// StatusResult describes the agent's fixed configuration and reader state.
type StatusResult struct {
	Version     string `json:"version"`
	ReaderState string `json:"reader_state"`
	PrinterMode string `json:"printer_mode"`
	PrinterHost string `json:"printer_host,omitempty"`
	PrinterPort int    `json:"printer_port,omitempty"`
	Language    string `json:"language"`
}
