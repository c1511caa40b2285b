// Package promptreg implements the Prompt Registry (C1): canonical
// template storage, SHA-256 hash compare/replace, and the normalization
// pipeline that makes that comparison dynamic-field-tolerant.
//
// Grounded on original_source/modules/ai_job_description_analysis/
// prompt_security_manager.py.
package promptreg

import (
	"encoding/json"
	"fmt"
	"os"
	"regexp"
	"sync"
	"time"

	"github.com/merlin2/tieranalysis/internal/eventlog"
)

// Source identifies who is presenting a prompt for validation. User-origin
// changes are trusted; agent/system-origin changes are treated as possible
// tampering and auto-replaced with the canonical text.
type Source string

const (
	SourceUser   Source = "user"
	SourceAgent  Source = "agent"
	SourceSystem Source = "system"
)

// Entry is one registry record: the hash of a named template plus its
// provenance.
type Entry struct {
	Hash          string    `json:"hash"`
	RegisteredAt  time.Time `json:"registered_at"`
	LastUpdated   time.Time `json:"last_updated"`
	LastUpdatedBy Source    `json:"last_updated_by"`
	SourceFile    string    `json:"source_file,omitempty"`
}

// CanonicalGetter retrieves the authoritative prompt text for a template
// name from its versioned source (embedded string, file, git object).
type CanonicalGetter func() (string, error)

// Registry is the hash registry: name -> Entry, persisted as one JSON
// document. Read on every prompt use, written rarely — guarded by an
// RWMutex per spec §5.
type Registry struct {
	mu       sync.RWMutex
	entries  map[string]Entry
	path     string
	sink     eventlog.Sink
}

// New loads a registry from path. A missing or unreadable file yields an
// empty registry rather than an error, per spec §4.1 failure semantics
// ("registry-load failures produce an empty registry; first use
// re-registers").
func New(path string, sink eventlog.Sink) *Registry {
	r := &Registry{
		entries: make(map[string]Entry),
		path:    path,
		sink:    sink,
	}
	r.load()
	return r
}

func (r *Registry) load() {
	data, err := os.ReadFile(r.path)
	if err != nil {
		return
	}
	var entries map[string]Entry
	if err := json.Unmarshal(data, &entries); err != nil {
		return
	}
	r.entries = entries
}

func (r *Registry) save() error {
	data, err := json.MarshalIndent(r.entries, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(r.path, data, 0o644)
}

// Register computes the canonical hash of templateText, stores or
// overwrites the registry entry for name, logs the transition, and
// returns the hash.
func (r *Registry) Register(name, templateText string, source Source) (string, error) {
	hash := Hash(templateText)

	r.mu.Lock()
	prev, existed := r.entries[name]
	now := time.Now().UTC()
	entry := Entry{
		Hash:          hash,
		RegisteredAt:  now,
		LastUpdated:   now,
		LastUpdatedBy: source,
	}
	if existed {
		entry.RegisteredAt = prev.RegisteredAt
	}
	r.entries[name] = entry
	err := r.save()
	r.mu.Unlock()

	if err != nil {
		return hash, err
	}

	if r.sink != nil {
		changeType := "registered"
		oldHash := ""
		if existed {
			changeType = "updated_hash"
			oldHash = prev.Hash
		}
		_ = r.sink.WriteChange(eventlog.ChangeRecord{
			PromptName:   name,
			ChangeType:   changeType,
			ChangeSource: string(source),
			OldHash:      oldHash,
			NewHash:      hash,
		})
	}
	return hash, nil
}

// ValidateAndHandle implements the C1 contract from spec §4.1 exactly.
func (r *Registry) ValidateAndHandle(name, currentText string, source Source, canonicalGetter CanonicalGetter) (textToUse string, wasReplaced bool, err error) {
	r.mu.RLock()
	entry, known := r.entries[name]
	r.mu.RUnlock()

	currentHash := Hash(currentText)

	if !known {
		if _, err := r.Register(name, currentText, source); err != nil {
			return currentText, false, err
		}
		return currentText, false, nil
	}

	if currentHash == entry.Hash {
		return currentText, false, nil
	}

	if source == SourceUser {
		if err := r.updateHash(name, currentHash, source); err != nil {
			return currentText, false, err
		}
		if r.sink != nil {
			_ = r.sink.WriteIncident(eventlog.Incident{
				IncidentType: "prompt_change",
				Severity:     eventlog.SeverityLow,
				ActionTaken:  "hash_updated",
			})
		}
		return currentText, false, nil
	}

	// agent or system source: suspected tampering.
	canonical, getErr := canonicalGetter()
	if getErr != nil {
		// Canonical-retrieval failure: log incident, return current text
		// unchanged. Availability over strictness (spec §4.1).
		if r.sink != nil {
			_ = r.sink.WriteIncident(eventlog.Incident{
				IncidentType: "canonical_retrieval_failed",
				Severity:     eventlog.SeverityHigh,
				Pattern:      name,
				ActionTaken:  "returned_current_text",
			})
		}
		return currentText, false, nil
	}

	canonicalHash := Hash(canonical)
	if canonicalHash == entry.Hash {
		// Canonical source matches what's on record: the current text was
		// tampered with. Auto-replace and log.
		if r.sink != nil {
			_ = r.sink.WriteIncident(eventlog.Incident{
				IncidentType: "replaced_prompt",
				Severity:     eventlog.SeverityHigh,
				Pattern:      name,
				ActionTaken:  "auto_replaced_with_canonical",
				Metadata:     map[string]any{"change_source": string(source)},
			})
		}
		return canonical, true, nil
	}

	// Canonical text itself changed (a legitimate code update): adopt it as
	// the new registered hash.
	if err := r.updateHash(name, canonicalHash, source); err != nil {
		return canonical, true, err
	}
	return canonical, true, nil
}

func (r *Registry) updateHash(name, newHash string, source Source) error {
	r.mu.Lock()
	prev := r.entries[name]
	now := time.Now().UTC()
	r.entries[name] = Entry{
		Hash:          newHash,
		RegisteredAt:  prev.RegisteredAt,
		LastUpdated:   now,
		LastUpdatedBy: source,
	}
	err := r.save()
	r.mu.Unlock()
	return err
}

// Status returns a snapshot of the registry for diagnostics.
func (r *Registry) Status() map[string]Entry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]Entry, len(r.entries))
	for k, v := range r.entries {
		out[k] = v
	}
	return out
}

var promptMarkers = regexp.MustCompile(`(?s)PROMPT_START\s*\n(.*?)\n\s*PROMPT_END`)

// ExtractFromSource pulls the template text between PROMPT_START/PROMPT_END
// markers out of a source file's contents, per spec §4.1.
func ExtractFromSource(fileContents string) (string, error) {
	m := promptMarkers.FindStringSubmatch(fileContents)
	if m == nil {
		return "", fmt.Errorf("promptreg: no PROMPT_START/PROMPT_END markers found")
	}
	return m[1], nil
}
