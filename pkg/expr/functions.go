package expr

import (
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"
)

type function struct {
	minArgs int
	maxArgs int // -1 for variadic
	call    func(args []float64) float64
}

func (f function) arity() string {
	switch {
	case f.maxArgs < 0:
		return fmt.Sprintf("at least %d argument(s)", f.minArgs)
	case f.minArgs == f.maxArgs:
		return fmt.Sprintf("%d argument(s)", f.minArgs)
	default:
		return fmt.Sprintf("%d to %d arguments", f.minArgs, f.maxArgs)
	}
}

func unary(fn func(float64) float64) function {
	return function{minArgs: 1, maxArgs: 1, call: func(args []float64) float64 { return fn(args[0]) }}
}

// Sigmoid is the logistic function 1 / (1 + e^-x).
func Sigmoid(x float64) float64 {
	return 1 / (1 + math.Exp(-x))
}

var functions = map[string]function{
	"sigmoid": unary(Sigmoid),
	"abs":     unary(math.Abs),
	"sqrt":    unary(math.Sqrt),
	"log":     unary(math.Log),
	"ln":      unary(math.Log),
	"log10":   unary(math.Log10),
	"exp":     unary(math.Exp),
	"round":   unary(math.Round),
	"floor":   unary(math.Floor),
	"ceil":    unary(math.Ceil),
	"tanh":    unary(math.Tanh),
	"pow": {minArgs: 2, maxArgs: 2, call: func(args []float64) float64 {
		return math.Pow(args[0], args[1])
	}},
	"clamp": {minArgs: 3, maxArgs: 3, call: func(args []float64) float64 {
		return math.Max(args[1], math.Min(args[2], args[0]))
	}},
	"min": {minArgs: 1, maxArgs: -1, call: func(args []float64) float64 {
		m := args[0]
		for _, v := range args[1:] {
			m = math.Min(m, v)
		}
		return m
	}},
	"max": {minArgs: 1, maxArgs: -1, call: func(args []float64) float64 {
		m := args[0]
		for _, v := range args[1:] {
			m = math.Max(m, v)
		}
		return m
	}},
	"mean": {minArgs: 1, maxArgs: -1, call: func(args []float64) float64 {
		return stat.Mean(args, nil)
	}},
	"stddev": {minArgs: 1, maxArgs: -1, call: func(args []float64) float64 {
		if len(args) < 2 {
			return 0
		}
		return stat.StdDev(args, nil)
	}},
}

var constants = map[string]float64{
	"pi": math.Pi,
	"e":  math.E,
}

// Functions returns the sorted names of the whitelisted functions.
func Functions() []string {
	names := make([]string, 0, len(functions))
	for name := range functions {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
