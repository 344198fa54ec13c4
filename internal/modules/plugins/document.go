package plugins

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/vmihailenco/msgpack/v5"
)

// DocumentVersion is written into every exported configuration document.
const DocumentVersion = "1.0.0"

// ConfigDocument is the import/export shape of the whole registry.
type ConfigDocument struct {
	Version  string      `json:"version"`
	Exported time.Time   `json:"exported"`
	Config   Collections `json:"config"`
}

// Collections holds every plugin keyed by id, one map per kind.
type Collections struct {
	Indicators map[string]*Indicator `json:"indicators"`
	Formulas   map[string]*Formula   `json:"formulas"`
	Regimes    map[string]*Regime    `json:"regimes"`
}

// Len returns the total number of plugins in the document.
func (d ConfigDocument) Len() int {
	return len(d.Config.Indicators) + len(d.Config.Formulas) + len(d.Config.Regimes)
}

// ImportFailure records one document entry that could not be registered.
type ImportFailure struct {
	Kind  Kind   `json:"kind"`
	ID    string `json:"id"`
	Error string `json:"error"`
}

// ImportResult counts the entries imported per kind.
type ImportResult struct {
	Indicators int             `json:"indicators"`
	Formulas   int             `json:"formulas"`
	Regimes    int             `json:"regimes"`
	Failures   []ImportFailure `json:"failures"`
}

// Total returns the number of imported entries across kinds.
func (r ImportResult) Total() int {
	return r.Indicators + r.Formulas + r.Regimes
}

func (r *ImportResult) add(kind Kind) {
	switch kind {
	case KindIndicator:
		r.Indicators++
	case KindFormula:
		r.Formulas++
	case KindRegime:
		r.Regimes++
	}
}

// ExportConfig snapshots every plugin into a configuration document.
func (r *Registry) ExportConfig() ConfigDocument {
	doc := ConfigDocument{
		Version:  DocumentVersion,
		Exported: r.timestamp(),
		Config: Collections{
			Indicators: make(map[string]*Indicator),
			Formulas:   make(map[string]*Formula),
			Regimes:    make(map[string]*Regime),
		},
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	for id, p := range r.collections[KindIndicator] {
		doc.Config.Indicators[id] = p.Clone().(*Indicator)
	}
	for id, p := range r.collections[KindFormula] {
		doc.Config.Formulas[id] = p.Clone().(*Formula)
	}
	for id, p := range r.collections[KindRegime] {
		doc.Config.Regimes[id] = p.Clone().(*Regime)
	}

	return doc
}

// ImportConfig registers every plugin of a JSON configuration document.
//
// The document shape is checked as a whole before anything is registered: a
// missing config object or a collection that is not an object fails with
// ErrInvalidDocument and leaves the registry untouched. Entries are then imported
// one by one under the operation lock; entries that fail (invalid, duplicate,
// malformed) are logged, reported in the result and skipped. Kinds are imported in
// indicator, formula, regime order and entries in id order. An entry without an id
// takes its key in the collection.
func (r *Registry) ImportConfig(ctx context.Context, raw []byte) (ImportResult, error) {
	collections, err := parseDocument(raw)
	if err != nil {
		return ImportResult{Failures: []ImportFailure{}}, err
	}

	r.opMu.Lock()
	defer r.opMu.Unlock()

	result := r.importCollections(ctx, collections)

	r.log.Info().
		Int("indicators", result.Indicators).
		Int("formulas", result.Formulas).
		Int("regimes", result.Regimes).
		Int("failures", len(result.Failures)).
		Msg("Configuration imported")

	return result, nil
}

// Replace deletes every plugin and imports a configuration document in one
// operation: no other mutation can land between the removal and the import.
// An invalid document fails with ErrInvalidDocument before anything is deleted.
//
// Returns:
//   - int: number of deleted plugins
//   - ImportResult: per-kind counts and failed entries of the import
//   - error: ErrInvalidDocument
func (r *Registry) Replace(ctx context.Context, raw []byte) (int, ImportResult, error) {
	collections, err := parseDocument(raw)
	if err != nil {
		return 0, ImportResult{Failures: []ImportFailure{}}, err
	}

	r.opMu.Lock()
	defer r.opMu.Unlock()

	deleted := r.clear(ctx)
	result := r.importCollections(ctx, collections)

	r.log.Info().
		Int("deleted", deleted).
		Int("imported", result.Total()).
		Int("failures", len(result.Failures)).
		Msg("Configuration replaced")

	return deleted, result, nil
}

// parseDocument checks the envelope and every collection of a configuration
// document. Absent and null collections are omitted from the result.
func parseDocument(raw []byte) (map[Kind]map[string]json.RawMessage, error) {
	var envelope struct {
		Config json.RawMessage `json:"config"`
	}
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return nil, ErrInvalidDocument
	}

	collections, ok := decodeObject(envelope.Config)
	if !ok {
		return nil, ErrInvalidDocument
	}

	out := make(map[Kind]map[string]json.RawMessage, len(Kinds))
	for _, kind := range Kinds {
		rawCollection, present := collections[kind.Plural()]
		if !present || isNull(rawCollection) {
			continue
		}
		entries, ok := decodeObject(rawCollection)
		if !ok {
			return nil, ErrInvalidDocument
		}
		out[kind] = entries
	}
	return out, nil
}

// importCollections registers parsed entries with the operation lock held.
func (r *Registry) importCollections(ctx context.Context, collections map[Kind]map[string]json.RawMessage) ImportResult {
	result := ImportResult{Failures: []ImportFailure{}}

	for _, kind := range Kinds {
		entries := collections[kind]
		for _, key := range sortedKeys(entries) {
			if err := r.importEntry(ctx, kind, key, entries[key]); err != nil {
				r.log.Warn().
					Err(err).
					Str("kind", string(kind)).
					Str("id", key).
					Msg("Failed to import plugin")
				result.Failures = append(result.Failures, ImportFailure{Kind: kind, ID: key, Error: err.Error()})
				continue
			}
			result.add(kind)
		}
	}
	return result
}

func (r *Registry) importEntry(ctx context.Context, kind Kind, key string, raw json.RawMessage) error {
	p, err := DecodePlugin(kind, raw)
	if err != nil {
		return err
	}
	if p.Common().ID == "" {
		p.Common().ID = key
	}
	_, err = r.register(ctx, kind, p)
	return err
}

func decodeObject(raw json.RawMessage) (map[string]json.RawMessage, bool) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return nil, false
	}
	var out map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &out); err != nil {
		return nil, false
	}
	return out, true
}

func isNull(raw json.RawMessage) bool {
	return bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}

// EncodeMsgpack encodes a configuration document as MessagePack.
// The document keeps its JSON field names and timestamp strings.
func EncodeMsgpack(doc ConfigDocument) ([]byte, error) {
	raw, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("failed to encode document: %w", err)
	}

	var generic map[string]any
	if err := json.Unmarshal(raw, &generic); err != nil {
		return nil, fmt.Errorf("failed to convert document: %w", err)
	}

	out, err := msgpack.Marshal(generic)
	if err != nil {
		return nil, fmt.Errorf("failed to encode msgpack document: %w", err)
	}
	return out, nil
}

// MsgpackToJSON converts a MessagePack configuration document to JSON so it can be
// passed to ImportConfig. Anything that is not a MessagePack map is ErrInvalidDocument.
func MsgpackToJSON(raw []byte) ([]byte, error) {
	var generic map[string]any
	if err := msgpack.Unmarshal(raw, &generic); err != nil {
		return nil, ErrInvalidDocument
	}

	out, err := json.Marshal(generic)
	if err != nil {
		return nil, fmt.Errorf("failed to convert msgpack document: %w", err)
	}
	return out, nil
}
