package plugins

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"time"

	"github.com/aristath/oracle-portfolio/pkg/expr"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// ErrWizardNotFound is returned for an unknown wizard session id.
var ErrWizardNotFound = errors.New("Assistant non trouvé")

// Step is one page of the plugin creation wizard.
type Step struct {
	Number int    `json:"number"`
	Title  string `json:"title"`
}

// WizardSteps lists the wizard pages in order.
var WizardSteps = []Step{
	{Number: 1, Title: "Informations de base"},
	{Number: 2, Title: "Configuration"},
	{Number: 3, Title: "Interface utilisateur"},
	{Number: 4, Title: "Validation et tests"},
	{Number: 5, Title: "Finalisation"},
}

// sampleSeriesLength is the number of daily observations generated for indicator tests.
const sampleSeriesLength = 100

// SampleTestData generates the data used to test a draft plugin of the given kind.
func SampleTestData(kind Kind, now time.Time, rnd *rand.Rand) TestData {
	switch kind {
	case KindIndicator:
		series := make([]Observation, sampleSeriesLength)
		for i := range series {
			series[i] = Observation{
				Date:  now.AddDate(0, 0, -i),
				Value: rnd.Float64() * 100,
			}
		}
		return TestData{HistoricalData: series}
	case KindFormula:
		return TestData{Variables: map[string]float64{"a": 0.6, "b": 0.4, "c": 0.8}}
	case KindRegime:
		return TestData{
			Indicators: map[string]float64{
				"gdp_growth":   2.5,
				"inflation":    2.0,
				"unemployment": 5.5,
				"vix":          15.0,
			},
			Confidence: Ptr(0.8),
		}
	}
	return TestData{}
}

// Wizard is a step-by-step draft of a new plugin.
//
// The draft is kept in structured form so that partially filled forms, including
// values of the wrong shape, can be edited before they decode into a plugin.
type Wizard struct {
	mu sync.Mutex

	id       string
	kind     Kind
	step     int
	draft    map[string]any
	registry *Registry
	updated  time.Time
}

// WizardState is the JSON view of a wizard.
type WizardState struct {
	ID         string         `json:"id"`
	Kind       Kind           `json:"kind"`
	Step       Step           `json:"step"`
	Steps      []Step         `json:"steps"`
	Draft      map[string]any `json:"draft"`
	Validation Validation     `json:"validation"`
	Updated    time.Time      `json:"updated"`
}

// NewWizard starts a wizard for kind from the kind's template.
func NewWizard(reg *Registry, kind Kind) (*Wizard, error) {
	template, err := reg.Template(kind)
	if err != nil {
		return nil, err
	}
	draft, err := ToMap(template)
	if err != nil {
		return nil, err
	}

	return &Wizard{
		id:       uuid.NewString(),
		kind:     kind,
		step:     1,
		draft:    draft,
		registry: reg,
		updated:  reg.timestamp(),
	}, nil
}

// ID returns the wizard session id
func (w *Wizard) ID() string {
	return w.id
}

// Kind returns the kind of plugin being drafted
func (w *Wizard) Kind() Kind {
	return w.kind
}

// Set applies one dotted-path edit to the draft.
//
// Setting the name also derives the id while the id is empty or still derived from
// the previous name. Setting the expression of a formula refreshes its declared
// variables with the identifiers the expression references, parameters excluded.
func (w *Wizard) Set(path string, value any) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.set(path, value)
}

// SetMany applies several dotted-path edits in key order.
func (w *Wizard) SetMany(updates map[string]any) {
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, path := range sortedKeys(updates) {
		w.set(path, updates[path])
	}
}

func (w *Wizard) set(path string, value any) {
	if path == "name" {
		if name, ok := value.(string); ok {
			currentID, _ := w.draft["id"].(string)
			previous, _ := w.draft["name"].(string)
			if currentID == "" || currentID == GenerateID(previous) {
				w.draft["id"] = GenerateID(name)
			}
		}
	}

	w.draft = Merge(w.draft, ExpandPath(path, value))

	if path == "expression" && w.kind == KindFormula {
		if src, ok := value.(string); ok {
			w.refreshVariables(src)
		}
	}

	w.updated = w.registry.timestamp()
}

func (w *Wizard) refreshVariables(src string) {
	e, err := expr.Parse(src)
	if err != nil {
		return
	}

	params, _ := w.draft["parameters"].(map[string]any)
	vars := make([]any, 0)
	for _, name := range e.Variables() {
		if _, isParam := params[name]; isParam {
			continue
		}
		vars = append(vars, name)
	}
	w.draft["variables"] = vars
}

// Next advances to the next step and returns it. The last step is sticky.
func (w *Wizard) Next() Step {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.step < len(WizardSteps) {
		w.step++
	}
	w.updated = w.registry.timestamp()
	return WizardSteps[w.step-1]
}

// Prev moves back one step and returns it. The first step is sticky.
func (w *Wizard) Prev() Step {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.step > 1 {
		w.step--
	}
	w.updated = w.registry.timestamp()
	return WizardSteps[w.step-1]
}

// Updated returns the time of the last edit or step change
func (w *Wizard) Updated() time.Time {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.updated
}

// Step returns the current step
func (w *Wizard) Step() Step {
	w.mu.Lock()
	defer w.mu.Unlock()
	return WizardSteps[w.step-1]
}

// Plugin decodes the draft into a plugin
func (w *Wizard) Plugin() (Plugin, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return FromMap(w.kind, w.draft)
}

// Validate returns live feedback on the draft. Decoding failures are reported as
// validation errors.
func (w *Wizard) Validate() Validation {
	p, err := w.Plugin()
	if err != nil {
		var ve *ValidationError
		if errors.As(err, &ve) {
			return Validation{Valid: false, Errors: ve.Errors}
		}
		return Validation{Valid: false, Errors: []string{err.Error()}}
	}
	return Validate(p)
}

// Test runs the performance test on the draft with generated sample data.
// The draft is not registered.
func (w *Wizard) Test(ctx context.Context) (PerformanceResult, error) {
	p, err := w.Plugin()
	if err != nil {
		return PerformanceResult{}, err
	}

	now := w.registry.timestamp()
	data := SampleTestData(w.kind, now, rand.New(rand.NewSource(now.UnixNano())))
	if f, ok := p.(*Formula); ok {
		data.Parameters = cloneFloatMap(f.Parameters)
	}
	return w.registry.RunPerformance(ctx, p, data), nil
}

// Finalize validates the draft and registers it.
func (w *Wizard) Finalize(ctx context.Context) (Plugin, error) {
	p, err := w.Plugin()
	if err != nil {
		return nil, err
	}
	if err := Validate(p).Err(); err != nil {
		return nil, err
	}
	return w.registry.Register(ctx, w.kind, p)
}

// State returns the JSON view of the wizard
func (w *Wizard) State() WizardState {
	validation := w.Validate()

	w.mu.Lock()
	defer w.mu.Unlock()
	return WizardState{
		ID:         w.id,
		Kind:       w.kind,
		Step:       WizardSteps[w.step-1],
		Steps:      WizardSteps,
		Draft:      Merge(nil, w.draft),
		Validation: validation,
		Updated:    w.updated,
	}
}

// Wizards keeps the open wizard sessions.
type Wizards struct {
	mu       sync.RWMutex
	sessions map[string]*Wizard
	registry *Registry
	log      zerolog.Logger
}

// NewWizards creates an empty session store
func NewWizards(reg *Registry, log zerolog.Logger) *Wizards {
	return &Wizards{
		sessions: make(map[string]*Wizard),
		registry: reg,
		log:      log.With().Str("component", "plugin_wizards").Logger(),
	}
}

// Start opens a new wizard for kind
func (s *Wizards) Start(kind Kind) (*Wizard, error) {
	w, err := NewWizard(s.registry, kind)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.sessions[w.id] = w
	s.mu.Unlock()

	s.log.Debug().Str("wizard_id", w.id).Str("kind", string(kind)).Msg("Wizard started")
	return w, nil
}

// Get returns an open wizard
func (s *Wizards) Get(id string) (*Wizard, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	w, ok := s.sessions[id]
	if !ok {
		return nil, ErrWizardNotFound
	}
	return w, nil
}

// Close discards a wizard
func (s *Wizards) Close(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, id)
}

// Expire closes every wizard idle for longer than maxIdle and returns how many
// were closed.
func (s *Wizards) Expire(maxIdle time.Duration) int {
	cutoff := s.registry.timestamp().Add(-maxIdle)

	s.mu.Lock()
	defer s.mu.Unlock()

	expired := 0
	for id, w := range s.sessions {
		if w.Updated().Before(cutoff) {
			delete(s.sessions, id)
			expired++
		}
	}

	if expired > 0 {
		s.log.Info().
			Int("expired", expired).
			Int("open", len(s.sessions)).
			Msg("Idle wizards expired")
	}
	return expired
}

// Len returns the number of open wizards
func (s *Wizards) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}
