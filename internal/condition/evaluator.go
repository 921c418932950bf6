package condition

// Resolver supplies field values by dotted path.
type Resolver interface {
	Resolve(path []string) (any, bool)
}

// truth is a three-valued result. A comparison on a field the resolver does
// not know is unknown, and NOT of unknown stays unknown, so `NOT a == b` and
// `a != b` agree when a is absent.
type truth int8

const (
	unknown truth = iota
	isFalse
	isTrue
)

func truthOf(b bool) truth {
	if b {
		return isTrue
	}
	return isFalse
}

// Evaluate walks the AST. It never fails: an expression whose outcome depends
// on an absent field is false, and operand type mismatches are false too.
func Evaluate(expr Expr, r Resolver) bool {
	return eval(expr, r) == isTrue
}

func eval(expr Expr, r Resolver) truth {
	switch e := expr.(type) {
	case *BinaryExpr:
		left, right := eval(e.Left, r), eval(e.Right, r)
		if e.Op == "AND" {
			switch {
			case left == isFalse || right == isFalse:
				return isFalse
			case left == isTrue && right == isTrue:
				return isTrue
			}
			return unknown
		}
		switch {
		case left == isTrue || right == isTrue:
			return isTrue
		case left == isFalse && right == isFalse:
			return isFalse
		}
		return unknown
	case *NotExpr:
		switch eval(e.Expr, r) {
		case isTrue:
			return isFalse
		case isFalse:
			return isTrue
		}
		return unknown
	case *ComparisonExpr:
		left, ok := operandValue(e.Left, r)
		if !ok {
			return unknown
		}
		right, ok := operandValue(e.Right, r)
		if !ok {
			return unknown
		}
		return truthOf(compare(e, left, right))
	}
	return unknown
}

func operandValue(op Operand, r Resolver) (any, bool) {
	switch o := op.(type) {
	case *LiteralOperand:
		return o.Value, true
	case *FieldOperand:
		return r.Resolve(o.Path)
	}
	return nil, false
}
