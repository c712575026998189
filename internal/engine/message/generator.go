package message

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"sync"

	"github.com/vietddude/resilience/internal/core/domain"
)

var placeholderRe = regexp.MustCompile(`\{([a-zA-Z0-9_.]+)\}`)

// Generator turns classified failures into user-facing messages. It
// never performs side effects; the caller decides what to do with the
// returned actions.
type Generator struct {
	mu        sync.RWMutex
	templates map[string]Template
	tables    map[string]Table
	locale    string
}

// NewGenerator creates a generator with the built-in locale table and
// the default locale active.
func NewGenerator() *Generator {
	return &Generator{
		templates: make(map[string]Template),
		tables:    map[string]Table{DefaultLocale: builtinEN},
		locale:    DefaultLocale,
	}
}

// RegisterTemplate adds or replaces a template, returning the previous
// one with the same ID if any.
func (g *Generator) RegisterTemplate(t Template) (*Template, error) {
	if t.ID == "" {
		return nil, fmt.Errorf("template ID is required")
	}
	g.mu.Lock()
	defer g.mu.Unlock()

	var prev *Template
	if old, ok := g.templates[t.ID]; ok {
		prev = &old
	}
	g.templates[t.ID] = t
	return prev, nil
}

// RemoveTemplate deletes a template by ID.
func (g *Generator) RemoveTemplate(id string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	_, ok := g.templates[id]
	delete(g.templates, id)
	return ok
}

// AddLocale merges a string table for the given locale. Existing keys
// are overwritten.
func (g *Generator) AddLocale(locale string, table Table) {
	g.mu.Lock()
	defer g.mu.Unlock()

	dst, ok := g.tables[locale]
	if !ok {
		dst = make(Table, len(table))
		g.tables[locale] = dst
	}
	for k, v := range table {
		dst[k] = v
	}
}

// SetLocale switches the active locale. Missing keys still resolve
// through the default locale.
func (g *Generator) SetLocale(locale string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.locale = locale
}

// Locale reports the active locale.
func (g *Generator) Locale() string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.locale
}

// Generate produces the user-facing message for a classified failure.
// The highest-priority matching template wins; with no match a generic
// message is synthesized from the classification.
func (g *Generator) Generate(cerr *domain.ClassifiedError) domain.UserMessage {
	if cerr == nil {
		cerr = &domain.ClassifiedError{Classification: domain.UnknownClassification}
	}

	g.mu.RLock()
	candidates := make([]Template, 0, len(g.templates))
	for _, t := range g.templates {
		candidates = append(candidates, t)
	}
	locale := g.locale
	g.mu.RUnlock()

	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].Priority != candidates[j].Priority {
			return candidates[i].Priority > candidates[j].Priority
		}
		return candidates[i].ID < candidates[j].ID
	})

	for _, t := range candidates {
		if t.matches(cerr) {
			return g.render(t, cerr, locale)
		}
	}
	return g.generic(cerr, locale)
}

func (g *Generator) render(t Template, cerr *domain.ClassifiedError, locale string) domain.UserMessage {
	category := t.Category
	if category == "" {
		category = cerr.Classification.Category
	}
	actions := make([]domain.MessageAction, len(t.Actions))
	for i, a := range t.Actions {
		actions[i] = domain.MessageAction{
			Label:  g.interpolate(g.resolve(a.Label, locale), cerr),
			Action: a.Action,
		}
	}
	return domain.UserMessage{
		Title:       g.interpolate(g.resolve(t.TitleKey, locale), cerr),
		Message:     g.interpolate(g.resolve(t.BodyKey, locale), cerr),
		Severity:    cerr.Classification.Severity,
		Category:    category,
		Dismissible: t.Dismissible,
		Actions:     actions,
	}
}

// generic synthesizes a message from the classification alone.
func (g *Generator) generic(cerr *domain.ClassifiedError, locale string) domain.UserMessage {
	typ := string(cerr.Classification.Type)
	title := g.resolveOr(typ+".title", "generic.title", locale)
	body := g.resolveOr(typ+".body", "generic.body", locale)

	var actions []domain.MessageAction
	if cerr.Classification.Recoverability.Retryable() {
		actions = append(actions, domain.MessageAction{
			Label:  g.resolve("action.retry", locale),
			Action: "retry",
		})
	}
	if cerr.Classification.Type == domain.ErrorTypeAuthentication {
		actions = append(actions, domain.MessageAction{
			Label:  g.resolve("action.sign_in", locale),
			Action: "sign_in",
		})
	}

	category := cerr.Classification.Category
	if category == "" {
		category = typ
	}
	return domain.UserMessage{
		Title:       g.interpolate(title, cerr),
		Message:     g.interpolate(body, cerr),
		Severity:    cerr.Classification.Severity,
		Category:    category,
		Dismissible: cerr.Classification.Severity != domain.SeverityCritical,
		Actions:     actions,
	}
}

// resolve looks up a key in the active locale, then the default
// locale. Unknown keys are returned verbatim so literal copy works.
func (g *Generator) resolve(key string, locale string) string {
	g.mu.RLock()
	defer g.mu.RUnlock()

	if t, ok := g.tables[locale]; ok {
		if s, ok := t[key]; ok {
			return s
		}
	}
	if locale != DefaultLocale {
		if s, ok := g.tables[DefaultLocale][key]; ok {
			return s
		}
	}
	return key
}

// resolveOr resolves key, falling back to fallbackKey when neither
// locale defines it.
func (g *Generator) resolveOr(key, fallbackKey, locale string) string {
	if s := g.resolve(key, locale); s != key {
		return s
	}
	return g.resolve(fallbackKey, locale)
}

// interpolate substitutes {placeholder} tokens from the failure and
// its context. Unresolvable placeholders collapse to the empty string.
func (g *Generator) interpolate(s string, cerr *domain.ClassifiedError) string {
	return placeholderRe.ReplaceAllStringFunc(s, func(tok string) string {
		name := tok[1 : len(tok)-1]
		v, ok := placeholderValue(name, cerr)
		if !ok {
			return ""
		}
		return v
	})
}

func placeholderValue(name string, cerr *domain.ClassifiedError) (string, bool) {
	switch name {
	case "type":
		return string(cerr.Classification.Type), true
	case "severity":
		return string(cerr.Classification.Severity), true
	case "category":
		return cerr.Classification.Category, cerr.Classification.Category != ""
	case "message":
		if cerr.Err == nil {
			return "", false
		}
		return cerr.Err.Error(), true
	}
	v, ok := cerr.Context.Field(name)
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
