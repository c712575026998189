package message

import (
	"github.com/vietddude/resilience/internal/core/domain"
	"github.com/vietddude/resilience/internal/engine/classify"
)

// Template maps a family of classified failures to user-facing copy.
// Empty ErrorType or Severity match any value. TitleKey and BodyKey
// resolve through the locale string tables; unresolved keys are used
// verbatim so templates can also carry literal copy.
type Template struct {
	ID          string
	Priority    int
	ErrorType   domain.ErrorType
	Severity    domain.Severity
	Conditions  []classify.Condition
	TitleKey    string
	BodyKey     string
	Category    string
	Dismissible bool
	Actions     []domain.MessageAction
}

func (t Template) matches(cerr *domain.ClassifiedError) bool {
	if t.ErrorType != "" && t.ErrorType != cerr.Classification.Type {
		return false
	}
	if t.Severity != "" && t.Severity != cerr.Classification.Severity {
		return false
	}
	for _, cond := range t.Conditions {
		if !cond.Eval(cerr.Err, cerr.Context) {
			return false
		}
	}
	return true
}
