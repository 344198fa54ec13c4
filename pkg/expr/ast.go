package expr

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

type node interface {
	eval(env Env) (float64, error)
	collect(seen map[string]bool, out *[]string)
	String() string
}

type numberNode struct {
	value float64
}

func (n *numberNode) eval(Env) (float64, error) {
	return n.value, nil
}

func (n *numberNode) collect(map[string]bool, *[]string) {}

func (n *numberNode) String() string {
	return strconv.FormatFloat(n.value, 'g', -1, 64)
}

type identNode struct {
	name string
}

func (n *identNode) eval(env Env) (float64, error) {
	if env != nil {
		if v, ok := env.Lookup(n.name); ok {
			return v, nil
		}
	}
	if v, ok := constants[n.name]; ok {
		return v, nil
	}
	return 0, &UnknownIdentifierError{Name: n.name}
}

func (n *identNode) collect(seen map[string]bool, out *[]string) {
	if _, isConst := constants[n.name]; isConst {
		return
	}
	if !seen[n.name] {
		seen[n.name] = true
		*out = append(*out, n.name)
	}
}

func (n *identNode) String() string {
	return n.name
}

type unaryNode struct {
	op      byte
	operand node
}

func (n *unaryNode) eval(env Env) (float64, error) {
	v, err := n.operand.eval(env)
	if err != nil {
		return 0, err
	}
	if n.op == '-' {
		return -v, nil
	}
	return v, nil
}

func (n *unaryNode) collect(seen map[string]bool, out *[]string) {
	n.operand.collect(seen, out)
}

func (n *unaryNode) String() string {
	return fmt.Sprintf("(%c%s)", n.op, n.operand)
}

type binaryNode struct {
	op          byte
	left, right node
}

func (n *binaryNode) eval(env Env) (float64, error) {
	l, err := n.left.eval(env)
	if err != nil {
		return 0, err
	}
	r, err := n.right.eval(env)
	if err != nil {
		return 0, err
	}

	// Division and modulo by zero follow IEEE 754 and yield Inf or NaN.
	switch n.op {
	case '+':
		return l + r, nil
	case '-':
		return l - r, nil
	case '*':
		return l * r, nil
	case '/':
		return l / r, nil
	case '%':
		return math.Mod(l, r), nil
	case '^':
		return math.Pow(l, r), nil
	}
	return 0, fmt.Errorf("unsupported operator %q", n.op)
}

func (n *binaryNode) collect(seen map[string]bool, out *[]string) {
	n.left.collect(seen, out)
	n.right.collect(seen, out)
}

func (n *binaryNode) String() string {
	return fmt.Sprintf("(%s %c %s)", n.left, n.op, n.right)
}

type callNode struct {
	name string
	fn   function
	args []node
}

func (n *callNode) eval(env Env) (float64, error) {
	values := make([]float64, len(n.args))
	for i, arg := range n.args {
		v, err := arg.eval(env)
		if err != nil {
			return 0, err
		}
		values[i] = v
	}
	return n.fn.call(values), nil
}

func (n *callNode) collect(seen map[string]bool, out *[]string) {
	for _, arg := range n.args {
		arg.collect(seen, out)
	}
}

func (n *callNode) String() string {
	parts := make([]string, len(n.args))
	for i, arg := range n.args {
		parts[i] = arg.String()
	}
	return fmt.Sprintf("%s(%s)", n.name, strings.Join(parts, ", "))
}
