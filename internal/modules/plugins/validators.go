package plugins

import (
	"fmt"
	"math"
	"net/url"
	"regexp"
	"slices"
	"strconv"
	"strings"

	"github.com/aristath/oracle-portfolio/pkg/expr"
)

var idPattern = regexp.MustCompile(`^[a-z0-9_]+$`)

// smokeTestVars are bound when checking that a formula expression evaluates.
var smokeTestVars = expr.Vars{"a": 1, "b": 2, "c": 3}

// allocationTolerance is the accepted distance between the allocation total and 100.
const allocationTolerance = 0.01

// Validation is the outcome of validating a plugin.
type Validation struct {
	Valid  bool     `json:"valid"`
	Errors []string `json:"errors"`
}

// Err returns the validation as a *ValidationError, or nil when valid.
func (v Validation) Err() error {
	if v.Valid {
		return nil
	}
	return &ValidationError{Errors: v.Errors}
}

// Validate checks p against the rules of its kind. It never mutates p.
func Validate(p Plugin) Validation {
	if isNilPlugin(p) {
		return Validation{Valid: false, Errors: []string{missingPluginMessage}}
	}

	errs := validateCommon(p.Common())

	switch t := p.(type) {
	case *Indicator:
		errs = append(errs, validateIndicator(t)...)
	case *Formula:
		errs = append(errs, validateFormula(t)...)
	case *Regime:
		errs = append(errs, validateRegime(t)...)
	}

	if errs == nil {
		errs = []string{}
	}
	return Validation{Valid: len(errs) == 0, Errors: errs}
}

func validateCommon(b *Base) []string {
	var errs []string

	if b.ID == "" {
		errs = append(errs, "ID requis")
	}
	if strings.TrimSpace(b.Name) == "" {
		errs = append(errs, "Nom requis")
	}
	if b.ID != "" && !idPattern.MatchString(b.ID) {
		errs = append(errs, "ID doit contenir uniquement des lettres minuscules, chiffres et underscores")
	}

	return errs
}

func validateIndicator(i *Indicator) []string {
	var errs []string

	if i.Weight < 0 || i.Weight > 100 || math.IsNaN(i.Weight) {
		errs = append(errs, "Pondération doit être entre 0 et 100")
	}
	if i.Config.APIEndpoint != "" && !isAbsoluteURL(i.Config.APIEndpoint) {
		errs = append(errs, "Endpoint API invalide")
	}
	if i.Config.UpdateFrequency != "" && !slices.Contains(UpdateFrequencies, i.Config.UpdateFrequency) {
		errs = append(errs, "Fréquence de mise à jour invalide")
	}
	if i.Config.Normalization != "" && !slices.Contains(Normalizations, i.Config.Normalization) {
		errs = append(errs, "Normalisation invalide")
	}
	if i.Config.LagPeriods < 0 {
		errs = append(errs, "Périodes de décalage doivent être positives")
	}

	return errs
}

func isAbsoluteURL(raw string) bool {
	u, err := url.ParseRequestURI(raw)
	if err != nil {
		return false
	}
	return u.Scheme != "" && u.Host != ""
}

func validateFormula(f *Formula) []string {
	var errs []string

	if strings.TrimSpace(f.Expression) == "" {
		errs = append(errs, "Expression mathématique requise")
	} else if _, err := expr.Evaluate(f.Expression, smokeTestEnv(f)); err != nil {
		errs = append(errs, fmt.Sprintf("Expression invalide: %v", err))
	}
	if r := f.Config.OutputRange; r != nil && r.Min >= r.Max {
		errs = append(errs, "Valeur min doit être inférieure à valeur max")
	}

	return errs
}

// smokeTestEnv binds a, b and c, every declared variable (as 1) and the parameters.
// Non-finite results are accepted; only parse and lookup failures are reported.
func smokeTestEnv(f *Formula) expr.Env {
	declared := make(expr.Vars, len(f.Variables))
	for _, name := range f.Variables {
		declared[name] = 1
	}
	return expr.Chain{smokeTestVars, declared, expr.Vars(f.Parameters)}
}

func validateRegime(r *Regime) []string {
	var errs []string

	if len(r.Allocations) > 0 {
		assets := sortedKeys(r.Allocations)
		var total float64
		for _, asset := range assets {
			total += r.Allocations[asset]
		}
		if math.Abs(total-100) > allocationTolerance {
			errs = append(errs, fmt.Sprintf("Total des allocations doit être 100%% (actuellement %s%%)",
				strconv.FormatFloat(total, 'f', -1, 64)))
		}
		for _, asset := range assets {
			if r.Allocations[asset] < 0 {
				errs = append(errs, fmt.Sprintf("Allocation %s ne peut être négative", asset))
			}
		}
	}

	if t := r.Config.TriggerThreshold; t != nil && (*t < 0 || *t > 1) {
		errs = append(errs, "Seuil de déclenchement doit être entre 0 et 1")
	}
	if c := r.Config.ConfidenceRequired; c != nil && (*c < 0 || *c > 1) {
		errs = append(errs, "Confiance requise doit être entre 0 et 1")
	}

	return errs
}
