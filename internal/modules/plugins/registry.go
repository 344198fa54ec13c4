package plugins

import (
	"context"
	"fmt"
	"math/rand"
	"sort"
	"sync"
	"time"

	"github.com/aristath/oracle-portfolio/pkg/expr"
	"github.com/rs/zerolog"
)

// Registry is the in-memory catalog of indicators, formulas and regimes.
//
// Reads are safe for concurrent use. Every mutating operation (Register, Update,
// Delete, ImportConfig, Replace) holds one operation lock for its full
// duration, lifecycle hooks included, so mutations never interleave. Hooks may read the registry but must not call a
// mutating method synchronously; doing so deadlocks.
type Registry struct {
	opMu sync.Mutex

	mu          sync.RWMutex
	collections map[Kind]map[string]Plugin
	calculators map[string]Calculator

	hooks *HookBus
	cache *expr.Cache
	log   zerolog.Logger

	now    func() time.Time
	random func() float64
}

// NewRegistry creates an empty registry
func NewRegistry(log zerolog.Logger) *Registry {
	r := &Registry{
		collections: make(map[Kind]map[string]Plugin, len(Kinds)),
		calculators: make(map[string]Calculator),
		cache:       expr.NewCache(),
		log:         log.With().Str("component", "plugin_registry").Logger(),
		now:         time.Now,
		random:      rand.Float64,
	}
	for _, kind := range Kinds {
		r.collections[kind] = make(map[string]Plugin)
	}
	r.hooks = NewHookBus(log)
	return r
}

// Hooks returns the lifecycle hook bus
func (r *Registry) Hooks() *HookBus {
	return r.hooks
}

// timestamp returns the current time in UTC without monotonic reading so that
// stamped values survive a JSON round trip unchanged.
func (r *Registry) timestamp() time.Time {
	return r.now().UTC().Round(0)
}

func checkKind(kind Kind, p Plugin) error {
	if !kind.Valid() {
		return &UnknownKindError{Kind: string(kind)}
	}
	if p != nil && p.Kind() != kind {
		return &ValidationError{Errors: []string{fmt.Sprintf("Type de plugin incohérent: %s attendu, %s reçu", kind, p.Kind())}}
	}
	return nil
}

// missingPluginMessage is reported for a nil plugin.
const missingPluginMessage = "Plugin requis"

func isNilPlugin(p Plugin) bool {
	switch v := p.(type) {
	case nil:
		return true
	case *Indicator:
		return v == nil
	case *Formula:
		return v == nil
	case *Regime:
		return v == nil
	}
	return false
}

// checkPlugin is checkKind for operations that need a plugin value.
func checkPlugin(kind Kind, p Plugin) error {
	if err := checkKind(kind, nil); err != nil {
		return err
	}
	if isNilPlugin(p) {
		return &ValidationError{Errors: []string{missingPluginMessage}}
	}
	return checkKind(kind, p)
}

// Register validates and inserts a plugin.
//
// before_add hooks receive the candidate and may adjust it. The candidate is then
// validated and checked for duplicates; on failure the collection is untouched.
// after_add hooks receive a copy of the stored plugin.
//
// Returns:
//   - Plugin: copy of the stored plugin
//   - error: *ValidationError, *DuplicateError or *UnknownKindError
func (r *Registry) Register(ctx context.Context, kind Kind, p Plugin) (Plugin, error) {
	if err := checkPlugin(kind, p); err != nil {
		return nil, err
	}

	r.opMu.Lock()
	defer r.opMu.Unlock()

	return r.register(ctx, kind, p)
}

// register runs Register with the operation lock already held.
func (r *Registry) register(ctx context.Context, kind Kind, p Plugin) (Plugin, error) {
	candidate := p.Clone()
	r.hooks.Execute(ctx, &BeforeAddData{Kind: kind, Plugin: candidate})

	if err := Validate(candidate).Err(); err != nil {
		return nil, err
	}

	id := candidate.Common().ID

	r.mu.Lock()
	if _, exists := r.collections[kind][id]; exists {
		r.mu.Unlock()
		return nil, &DuplicateError{Kind: kind, ID: id}
	}
	r.collections[kind][id] = candidate
	r.mu.Unlock()

	r.log.Info().
		Str("kind", string(kind)).
		Str("id", id).
		Str("name", candidate.Common().Name).
		Msg("Plugin registered")

	r.hooks.Execute(ctx, &AfterAddData{Kind: kind, Plugin: candidate.Clone()})

	return candidate.Clone(), nil
}

// RegisterRaw decodes a JSON plugin document and registers it
func (r *Registry) RegisterRaw(ctx context.Context, kind Kind, raw []byte) (Plugin, error) {
	p, err := DecodePlugin(kind, raw)
	if err != nil {
		return nil, err
	}
	return r.Register(ctx, kind, p)
}

// Update deep-merges partial onto the stored plugin.
//
// Nested objects are merged key by key, lists and scalars replaced. The modified
// timestamp is refreshed and the merged result validated before it replaces the
// stored plugin; a failed validation leaves the stored plugin untouched. The id
// cannot be changed through an update.
func (r *Registry) Update(ctx context.Context, kind Kind, id string, partial map[string]any) (Plugin, error) {
	if err := checkKind(kind, nil); err != nil {
		return nil, err
	}

	r.opMu.Lock()
	defer r.opMu.Unlock()

	current, ok := r.lookup(kind, id)
	if !ok {
		return nil, &NotFoundError{Kind: kind, ID: id}
	}

	r.hooks.Execute(ctx, &BeforeUpdateData{Kind: kind, Current: current.Clone(), Updates: Merge(nil, partial)})

	merged, err := MergePlugin(current, partial)
	if err != nil {
		return nil, err
	}
	if merged.Common().ID != id {
		return nil, &ValidationError{Errors: []string{"ID ne peut pas être modifié"}}
	}
	merged.Common().Metadata.Modified = r.timestamp()

	if err := Validate(merged).Err(); err != nil {
		return nil, err
	}

	r.mu.Lock()
	r.collections[kind][id] = merged
	r.mu.Unlock()

	r.log.Info().
		Str("kind", string(kind)).
		Str("id", id).
		Msg("Plugin updated")

	r.hooks.Execute(ctx, &AfterUpdateData{Kind: kind, Previous: current.Clone(), Plugin: merged.Clone()})

	return merged.Clone(), nil
}

// Delete removes a plugin
func (r *Registry) Delete(ctx context.Context, kind Kind, id string) error {
	if err := checkKind(kind, nil); err != nil {
		return err
	}

	r.opMu.Lock()
	defer r.opMu.Unlock()

	return r.remove(ctx, kind, id)
}

// remove runs Delete with the operation lock already held.
func (r *Registry) remove(ctx context.Context, kind Kind, id string) error {
	current, ok := r.lookup(kind, id)
	if !ok {
		return &NotFoundError{Kind: kind, ID: id}
	}

	r.hooks.Execute(ctx, &BeforeDeleteData{Kind: kind, Plugin: current.Clone()})

	r.mu.Lock()
	delete(r.collections[kind], id)
	r.mu.Unlock()

	r.log.Info().
		Str("kind", string(kind)).
		Str("id", id).
		Msg("Plugin deleted")

	r.hooks.Execute(ctx, &AfterDeleteData{Kind: kind, Plugin: current})

	return nil
}

// Load inserts an already persisted plugin without running hooks.
// It is used to rebuild the registry at startup; validation and the duplicate
// check still apply.
func (r *Registry) Load(p Plugin) error {
	if isNilPlugin(p) {
		return &ValidationError{Errors: []string{missingPluginMessage}}
	}
	kind := p.Kind()
	if err := checkKind(kind, p); err != nil {
		return err
	}
	if err := Validate(p).Err(); err != nil {
		return err
	}

	r.opMu.Lock()
	defer r.opMu.Unlock()

	id := p.Common().ID

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.collections[kind][id]; exists {
		return &DuplicateError{Kind: kind, ID: id}
	}
	r.collections[kind][id] = p.Clone()
	return nil
}

// clear deletes every plugin with the operation lock held so that hooks observe
// each removal. Returns the number of deleted plugins.
func (r *Registry) clear(ctx context.Context) int {
	deleted := 0
	for _, kind := range Kinds {
		for _, p := range r.Plugins(kind) {
			if err := r.remove(ctx, kind, p.Common().ID); err != nil {
				r.log.Warn().Err(err).Str("kind", string(kind)).Msg("Failed to delete plugin during clear")
				continue
			}
			deleted++
		}
	}
	return deleted
}

func (r *Registry) lookup(kind Kind, id string) (Plugin, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.collections[kind][id]
	return p, ok
}

// Plugins returns copies of every plugin of a kind sorted by id.
// An unknown kind yields an empty list.
func (r *Registry) Plugins(kind Kind) []Plugin {
	r.mu.RLock()
	defer r.mu.RUnlock()

	collection, ok := r.collections[kind]
	if !ok {
		r.log.Warn().Str("kind", string(kind)).Msg("Unknown plugin kind requested")
		return []Plugin{}
	}

	out := make([]Plugin, 0, len(collection))
	for _, p := range collection {
		out = append(out, p.Clone())
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Common().ID < out[j].Common().ID
	})
	return out
}

// Plugin returns a copy of one plugin
func (r *Registry) Plugin(kind Kind, id string) (Plugin, error) {
	if err := checkKind(kind, nil); err != nil {
		return nil, err
	}
	p, ok := r.lookup(kind, id)
	if !ok {
		return nil, &NotFoundError{Kind: kind, ID: id}
	}
	return p.Clone(), nil
}

// Counts returns the number of plugins per kind
func (r *Registry) Counts() map[Kind]int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[Kind]int, len(Kinds))
	for _, kind := range Kinds {
		out[kind] = len(r.collections[kind])
	}
	return out
}

// Validate checks a plugin against the rules of kind without touching the registry
func (r *Registry) Validate(kind Kind, p Plugin) (Validation, error) {
	if err := checkPlugin(kind, p); err != nil {
		if ve, ok := err.(*ValidationError); ok {
			return Validation{Valid: false, Errors: ve.Errors}, nil
		}
		return Validation{}, err
	}
	return Validate(p), nil
}

// ValidateRaw decodes a JSON plugin document and validates it.
// Decoding failures are reported as an invalid result.
func (r *Registry) ValidateRaw(kind Kind, raw []byte) (Validation, error) {
	p, err := DecodePlugin(kind, raw)
	if err != nil {
		if ve, ok := err.(*ValidationError); ok {
			return Validation{Valid: false, Errors: ve.Errors}, nil
		}
		return Validation{}, err
	}
	return r.Validate(kind, p)
}

// Template returns a fresh copy of the default plugin of a kind
func (r *Registry) Template(kind Kind) (Plugin, error) {
	return NewTemplate(kind, r.timestamp())
}

// CreateFromTemplate builds an unregistered plugin from the template of kind with
// overrides deep-merged on top
func (r *Registry) CreateFromTemplate(kind Kind, overrides map[string]any) (Plugin, error) {
	return CreateFromTemplate(kind, overrides, r.timestamp())
}

// SetCalculator replaces the calculate function of the indicator with the given id.
// A nil fn restores the default series calculation.
func (r *Registry) SetCalculator(id string, fn Calculator) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if fn == nil {
		delete(r.calculators, id)
		return
	}
	r.calculators[id] = fn
}

// Calculate computes an indicator value.
//
// A calculator registered with SetCalculator takes precedence. Otherwise the
// historical series is used; with no series a placeholder in [0,1) is returned.
func (r *Registry) Calculate(ctx context.Context, ind *Indicator, data TestData) (float64, error) {
	r.mu.RLock()
	fn := r.calculators[ind.ID]
	r.mu.RUnlock()

	if fn != nil {
		v, err := fn(ctx, ind, data)
		if err != nil {
			return 0, &EvaluationError{PluginID: ind.ID, Err: err}
		}
		return v, nil
	}

	if v, ok := ind.Calculate(data.HistoricalData); ok {
		return v, nil
	}

	r.log.Warn().Str("id", ind.ID).Msg("No historical data, using placeholder value")
	return r.random(), nil
}

// Evaluate computes a formula using the registry's expression cache
func (r *Registry) Evaluate(f *Formula, variables, parameters map[string]float64) (float64, error) {
	return f.Evaluate(variables, parameters, r.cache)
}
