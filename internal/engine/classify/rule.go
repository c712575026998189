package classify

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/vietddude/resilience/internal/core/domain"
)

// Predicate is caller-supplied match logic for cases the declarative
// matchers cannot express.
type Predicate func(err error, ctx *domain.ErrorContext) bool

// Matcher selects the failures a rule applies to. Exactly the fields
// that are set participate; all set fields must match.
type Matcher struct {
	Message     *regexp.Regexp
	Name        *regexp.Regexp
	Code        *regexp.Regexp
	StatusCodes []int
	Predicate   Predicate
}

// Match reports whether the matcher accepts the failure.
func (m Matcher) Match(err error, ctx *domain.ErrorContext) bool {
	if err == nil {
		return false
	}
	if m.Message != nil && !m.Message.MatchString(err.Error()) {
		return false
	}
	if m.Name != nil && !m.Name.MatchString(errorName(err)) {
		return false
	}
	if m.Code != nil && !m.Code.MatchString(errorCode(err)) {
		return false
	}
	if len(m.StatusCodes) > 0 {
		if ctx == nil {
			return false
		}
		found := false
		for _, c := range m.StatusCodes {
			if ctx.StatusCode == c {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if m.Predicate != nil && !m.Predicate(err, ctx) {
		return false
	}
	return true
}

// ConditionOp is a field comparison operator.
type ConditionOp string

const (
	OpEquals     ConditionOp = "equals"
	OpContains   ConditionOp = "contains"
	OpStartsWith ConditionOp = "starts_with"
	OpEndsWith   ConditionOp = "ends_with"
	OpMatches    ConditionOp = "matches"
	OpExists     ConditionOp = "exists"
)

// Condition is a declarative check against the failure or its context.
// Field names "message", "name" and "code" address the error itself;
// anything else resolves through ErrorContext.Field.
type Condition struct {
	Field  string
	Op     ConditionOp
	Value  string
	Negate bool
}

// Eval evaluates the condition.
func (c Condition) Eval(err error, ctx *domain.ErrorContext) bool {
	val, ok := fieldValue(c.Field, err, ctx)
	var res bool
	switch c.Op {
	case OpExists:
		res = ok
	case OpEquals:
		res = ok && val == c.Value
	case OpContains:
		res = ok && strings.Contains(val, c.Value)
	case OpStartsWith:
		res = ok && strings.HasPrefix(val, c.Value)
	case OpEndsWith:
		res = ok && strings.HasSuffix(val, c.Value)
	case OpMatches:
		if ok {
			matched, err := regexp.MatchString(c.Value, val)
			res = err == nil && matched
		}
	}
	if c.Negate {
		return !res
	}
	return res
}

func fieldValue(field string, err error, ctx *domain.ErrorContext) (string, bool) {
	switch field {
	case "message":
		if err == nil {
			return "", false
		}
		return err.Error(), true
	case "name":
		if err == nil {
			return "", false
		}
		return errorName(err), true
	case "code":
		code := errorCode(err)
		return code, code != ""
	}
	v, ok := ctx.Field(field)
	if !ok {
		return "", false
	}
	switch t := v.(type) {
	case string:
		return t, true
	case int:
		return strconv.Itoa(t), true
	default:
		return fmt.Sprintf("%v", t), true
	}
}

// Rule maps a family of failures to a partial classification.
type Rule struct {
	ID             string
	Priority       int
	Weight         float64
	Matcher        Matcher
	Classification domain.Classification
	Conditions     []Condition
	Enabled        bool
}

// RulePerformance is observed accuracy feedback for weight tuning.
type RulePerformance struct {
	Accuracy       float64
	TargetAccuracy float64
}

// Coder is implemented by errors that carry a machine-readable code.
type Coder interface {
	Code() string
}

func errorCode(err error) string {
	if c, ok := err.(Coder); ok {
		return c.Code()
	}
	return ""
}

// errorName reports the concrete Go type of the error.
func errorName(err error) string {
	return fmt.Sprintf("%T", err)
}
