// Package scoring computes a book's priority score from its attributes and a
// per-user weight formula.
package scoring

import (
	"strings"

	model "github.com/okian/readq/internal/domain/model"
	"golang.org/x/text/cases"
)

// Option applies a configuration option to the Calculator.
type Option func(*Calculator)

// WithDefaults replaces the built-in defaults entirely.
func WithDefaults(d Defaults) Option {
	return func(c *Calculator) {
		c.defaults = d
	}
}

// WithDefaultFormula replaces the formula used when a user has none.
func WithDefaultFormula(f model.FormulaConfig) Option {
	return func(c *Calculator) {
		c.defaults.Formula = f
	}
}

// WithPrivilegedAvailability sets the availability label that receives the
// privileged weight.
func WithPrivilegedAvailability(label string) Option {
	return func(c *Calculator) {
		if label != "" {
			c.defaults.PrivilegedAvailability = label
		}
	}
}

// WithMissingTypeWeight sets the type weight used when a type table has
// neither the book's type nor a default.
func WithMissingTypeWeight(w float64) Option {
	return func(c *Calculator) {
		c.defaults.MissingTypeWeight = w
	}
}

// WithMissingPrivilegedWeight sets the weight of the privileged availability
// when the table does not configure one.
func WithMissingPrivilegedWeight(w float64) Option {
	return func(c *Calculator) {
		c.defaults.MissingPrivilegedWeight = w
	}
}

// Scorer computes a book's score under an optional custom formula.
type Scorer interface {
	// Compute returns the score of book. A nil cfg selects the defaults.
	Compute(book model.Book, cfg *model.FormulaConfig) float64
}

// Breakdown is the per-dimension contribution to a score.
type Breakdown struct {
	Type         float64 `json:"type"`
	Availability float64 `json:"availability"`
	Priority     float64 `json:"priority"`
	Year         float64 `json:"year"`
	Class        float64 `json:"book_class"`
	Category     float64 `json:"category"`
	Total        float64 `json:"total"`
}

// Calculator is a pure Scorer. It holds no mutable state and is safe for
// concurrent use.
type Calculator struct {
	defaults Defaults
}

// NewCalculator creates a calculator seeded with the built-in defaults.
func NewCalculator(opts ...Option) *Calculator {
	c := &Calculator{defaults: BuiltinDefaults()}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Defaults returns the defaults the calculator falls back to.
func (c *Calculator) Defaults() Defaults { return c.defaults }

// Compute returns the score of book.
func (c *Calculator) Compute(book model.Book, cfg *model.FormulaConfig) float64 {
	return c.Explain(book, cfg).Total
}

// Explain returns the score of book split by dimension. Finished books
// score zero on every dimension.
func (c *Calculator) Explain(book model.Book, cfg *model.FormulaConfig) Breakdown {
	if book.Status.Finished() {
		return Breakdown{}
	}
	if cfg == nil {
		cfg = &model.FormulaConfig{}
	}
	b := Breakdown{
		Type:         c.typeWeight(book.Type, cfg),
		Availability: c.availabilityWeight(book.Availability, cfg),
		Priority:     c.priorityWeight(book.Priority, cfg),
		Year:         c.yearWeight(book.Year, cfg),
		Class:        c.classWeight(book.Class, cfg),
		Category:     c.categoryWeight(book.Category, cfg),
	}
	b.Total = b.Type + b.Availability + b.Priority + b.Year + b.Class + b.Category
	return b
}

// ClassOf returns the class whose taxonomy lists category, or DefaultClass.
func (c *Calculator) ClassOf(category string) string {
	for _, cc := range c.defaults.Taxonomy {
		for _, name := range cc.Categories {
			if name == category {
				return cc.Class
			}
		}
	}
	return DefaultClass
}

func (c *Calculator) typeWeight(label string, cfg *model.FormulaConfig) float64 {
	tw := cfg.Type
	if tw == nil {
		tw = c.defaults.Formula.Type
	}
	if tw == nil {
		return c.defaults.MissingTypeWeight
	}
	if w, ok := tw.Weights.Lookup(label); ok {
		return w
	}
	if tw.Default != nil {
		return *tw.Default
	}
	return c.defaults.MissingTypeWeight
}

func (c *Calculator) availabilityWeight(label string, cfg *model.FormulaConfig) float64 {
	aw := cfg.Availability
	if aw == nil {
		aw = c.defaults.Formula.Availability
	}
	if label == c.defaults.PrivilegedAvailability {
		if aw != nil && aw.Privileged != nil {
			return *aw.Privileged
		}
		return c.defaults.MissingPrivilegedWeight
	}
	if aw != nil && aw.Default != nil {
		return *aw.Default
	}
	return 0
}

func (c *Calculator) priorityWeight(label string, cfg *model.FormulaConfig) float64 {
	if !model.IsPriority(label) {
		return 0
	}
	table := cfg.Priority
	if table == nil {
		table = c.defaults.Formula.Priority
	}
	if table == nil {
		return 0
	}
	w, _ := table.Lookup(label)
	return w
}

func (c *Calculator) yearWeight(year *int, cfg *model.FormulaConfig) float64 {
	if year == nil || *year == 0 {
		return 0
	}
	yw := cfg.Year
	if yw == nil {
		yw = c.defaults.Formula.Year
	}
	if yw == nil {
		return 0
	}
	for _, r := range yw.Ranges {
		if r.Contains(*year) {
			return r.Weight
		}
	}
	return 0
}

func (c *Calculator) classWeight(label string, cfg *model.FormulaConfig) float64 {
	if label == "" {
		return 0
	}
	table := cfg.Class
	if table == nil {
		table = c.defaults.Formula.Class
	}
	if table == nil {
		return 0
	}
	w, _ := table.Lookup(label)
	return w
}

func (c *Calculator) categoryWeight(label string, cfg *model.FormulaConfig) float64 {
	if label == "" {
		return 0
	}
	table := cfg.Category
	if table == nil {
		table = c.defaults.Formula.Category
	}
	if table == nil {
		return 0
	}
	if w, ok := table.Lookup(label); ok {
		return w
	}
	// Caser is stateful, so each call gets its own.
	fold := cases.Fold()
	needle := fold.String(label)
	for _, entry := range *table {
		name := fold.String(entry.Label)
		if name == "" {
			continue
		}
		if strings.Contains(needle, name) || strings.Contains(name, needle) {
			return entry.Value
		}
	}
	return 0
}
