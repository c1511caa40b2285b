// Package eventlog implements the Security Event Log (C8): an append-only
// JSONL channel per category plus a best-effort relational mirror. DB
// failures never block the primary JSONL write, per spec §4.8/§7.
package eventlog

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// Severity is one of the four incident severities spec §4.8 names.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// ChangeRecord is one prompt-registry transition (registered, updated_hash,
// replaced_prompt), written to storage/prompt_changes.jsonl.
type ChangeRecord struct {
	Timestamp    time.Time `json:"timestamp"`
	PromptName   string    `json:"prompt_name"`
	ChangeType   string    `json:"change_type"`
	ChangeSource string    `json:"change_source"`
	OldHash      string    `json:"old_hash,omitempty"`
	NewHash      string    `json:"new_hash"`
	SourceFile   string    `json:"source_file,omitempty"`
}

// Incident is a security-relevant detection (token mismatch, injection
// marker, prompt tampering), written to storage/security_incidents.jsonl
// and mirrored to the security_detections table.
type Incident struct {
	Timestamp    time.Time      `json:"timestamp"`
	IncidentType string         `json:"incident_type"`
	Severity     Severity       `json:"severity"`
	Pattern      string         `json:"pattern,omitempty"`
	Sample       string         `json:"sample,omitempty"`
	Metadata     map[string]any `json:"metadata,omitempty"`
	ActionTaken  string         `json:"action_taken"`
}

// SanitizationRecord is one field-level sanitization action, written to
// storage/response_sanitization.jsonl.
type SanitizationRecord struct {
	Timestamp time.Time `json:"timestamp"`
	JobID     string    `json:"job_id"`
	FieldPath string    `json:"field_path"`
	Action    string    `json:"action"`
	Reason    string    `json:"reason"`
}

// DetectionMirror is the narrow relational-mirror boundary: a best-effort
// insert into the security_detections table. Implementations must never
// let a failure here propagate to the JSONL write path.
type DetectionMirror interface {
	InsertDetection(detectionType string, severity Severity, pattern, sample string, metadata map[string]any, actionTaken string) error
}

// Sink is the C8 contract consumed by C1/C3/C4.
type Sink interface {
	WriteChange(ChangeRecord) error
	WriteIncident(Incident) error
	WriteSanitization(SanitizationRecord) error
}

// JSONLSink appends each record category to its own file. Appends are
// serialized per file with a dedicated mutex (spec §5: "implementations
// must serialize appends to each file").
type JSONLSink struct {
	changesPath       string
	incidentsPath     string
	sanitizationsPath string

	changesMu       sync.Mutex
	incidentsMu     sync.Mutex
	sanitizationsMu sync.Mutex

	mirror DetectionMirror // may be nil
}

// NewJSONLSink creates a sink rooted at dir (conventionally "storage/").
// mirror may be nil, in which case the relational mirror is skipped.
func NewJSONLSink(dir string, mirror DetectionMirror) (*JSONLSink, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	return &JSONLSink{
		changesPath:       filepath.Join(dir, "prompt_changes.jsonl"),
		incidentsPath:     filepath.Join(dir, "security_incidents.jsonl"),
		sanitizationsPath: filepath.Join(dir, "response_sanitization.jsonl"),
		mirror:            mirror,
	}, nil
}

func appendLine(path string, mu *sync.Mutex, v any) error {
	mu.Lock()
	defer mu.Unlock()

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	line, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_, err = f.Write(append(line, '\n'))
	return err
}

func (s *JSONLSink) WriteChange(r ChangeRecord) error {
	if r.Timestamp.IsZero() {
		r.Timestamp = time.Now().UTC()
	}
	return appendLine(s.changesPath, &s.changesMu, r)
}

func (s *JSONLSink) WriteIncident(r Incident) error {
	if r.Timestamp.IsZero() {
		r.Timestamp = time.Now().UTC()
	}
	if err := appendLine(s.incidentsPath, &s.incidentsMu, r); err != nil {
		return err
	}
	if s.mirror != nil {
		if err := s.mirror.InsertDetection(r.IncidentType, r.Severity, r.Pattern, r.Sample, r.Metadata, r.ActionTaken); err != nil {
			log.Warn().Err(err).Msg("security_detections mirror insert failed; JSONL write already succeeded")
		}
	}
	return nil
}

func (s *JSONLSink) WriteSanitization(r SanitizationRecord) error {
	if r.Timestamp.IsZero() {
		r.Timestamp = time.Now().UTC()
	}
	if err := appendLine(s.sanitizationsPath, &s.sanitizationsMu, r); err != nil {
		return err
	}
	if s.mirror != nil {
		meta := map[string]any{"job_id": r.JobID, "field_path": r.FieldPath}
		if err := s.mirror.InsertDetection("sanitization", SeverityLow, r.Action, r.Reason, meta, r.Action); err != nil {
			log.Warn().Err(err).Msg("security_detections mirror insert failed; JSONL write already succeeded")
		}
	}
	return nil
}

var _ Sink = (*JSONLSink)(nil)
