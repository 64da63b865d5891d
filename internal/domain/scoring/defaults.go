package scoring

import model "github.com/okian/readq/internal/domain/model"

// Built-in fallback constants.
const (
	// DefaultPrivilegedAvailability is the availability label scored by
	// AvailabilityWeights.Privileged.
	DefaultPrivilegedAvailability = "physical"
	// DefaultMissingTypeWeight applies when a type table has neither the
	// book's type nor a default.
	DefaultMissingTypeWeight float64 = 2
	// DefaultMissingPrivilegedWeight applies when the availability table has
	// no privileged weight.
	DefaultMissingPrivilegedWeight float64 = 2
	// DefaultClass is assigned when a category belongs to no known class.
	DefaultClass = "Personal Development"
)

// Defaults holds the built-in formula and fallbacks used when a user has no
// custom formula, or a custom formula omits a dimension.
type Defaults struct {
	Formula                 model.FormulaConfig
	PrivilegedAvailability  string
	MissingTypeWeight       float64
	MissingPrivilegedWeight float64
	// Taxonomy maps each class to its categories, in display order.
	Taxonomy []ClassCategories
}

// ClassCategories lists the categories grouped under one class.
type ClassCategories struct {
	Class      string
	Categories []string
}

// BuiltinDefaults returns a fresh copy of the built-in defaults.
func BuiltinDefaults() Defaults {
	category := defaultCategoryWeights()
	return Defaults{
		Formula: model.FormulaConfig{
			Type: &model.TypeWeights{
				Weights: model.WeightTable{{Label: "Technical", Value: 0}},
				Default: model.FloatPtr(0),
			},
			Availability: &model.AvailabilityWeights{
				Privileged: model.FloatPtr(DefaultMissingPrivilegedWeight),
				Default:    model.FloatPtr(0),
			},
			Priority: &model.WeightTable{
				{Label: model.PriorityLow, Value: 0},
				{Label: model.PriorityMedium, Value: 0},
				{Label: model.PriorityMediumHigh, Value: 0},
				{Label: model.PriorityHigh, Value: 0},
			},
			Year: &model.YearWeights{Ranges: []model.YearRange{
				{Max: model.IntPtr(2005), Weight: 0},
				{Min: model.IntPtr(2006), Max: model.IntPtr(2021), Weight: 0},
				{Min: model.IntPtr(2022), Weight: 0},
			}},
			Class:    &model.WeightTable{},
			Category: &category,
		},
		PrivilegedAvailability:  DefaultPrivilegedAvailability,
		MissingTypeWeight:       DefaultMissingTypeWeight,
		MissingPrivilegedWeight: DefaultMissingPrivilegedWeight,
		Taxonomy:                defaultTaxonomy(),
	}
}

func defaultCategoryWeights() model.WeightTable {
	return model.WeightTable{
		{Label: "Productivity", Value: 5},
		{Label: "Leadership", Value: 7},
		{Label: "Emotional Intelligence", Value: 7},
		{Label: "Personal Development", Value: 5},
		{Label: "Creativity", Value: 3},
		{Label: "Communication", Value: 5},
		{Label: "Well-being", Value: 5},
		{Label: "National Literature", Value: 5},
		{Label: "History/Fiction", Value: 7},
		{Label: "Diversity and Inclusion", Value: 3},
		{Label: "Business", Value: 2},
		{Label: "Personal Finance", Value: 4},
		{Label: "General Knowledge", Value: 7},
		{Label: "Statistics", Value: 7},
		{Label: "MLOps", Value: 5},
		{Label: "Data Engineering", Value: 5},
		{Label: "Software Architecture", Value: 1},
		{Label: "Programming", Value: 3},
		{Label: "Machine Learning", Value: 7},
		{Label: "Computer Vision", Value: 7},
		{Label: "AI", Value: 6},
		{Label: "Data Science", Value: 7},
		{Label: "Data Analysis", Value: 5},
		{Label: "Leadership & Strategic Thinking", Value: 7},
		{Label: "Architecture of the Mind (Mindset)", Value: 7},
		{Label: "AI Systems & LLMs", Value: 6},
		{Label: "Storytelling & Visualization", Value: 5},
		{Label: "Biohacking & Existence", Value: 5},
		{Label: "Epics & Reflective Fiction", Value: 7},
		{Label: "Social Justice & Intersectionality", Value: 3},
		{Label: "Economic Freedom", Value: 4},
		{Label: "Cosmology", Value: 7},
		{Label: "Statistics & Uncertainty", Value: 7},
		{Label: "ML Engineering & MLOps", Value: 5},
	}
}

func defaultTaxonomy() []ClassCategories {
	return []ClassCategories{
		{Class: "Technology & AI", Categories: []string{
			"Data Analysis", "Data Science", "AI", "Computer Vision",
			"Machine Learning", "Programming", "AI Systems & LLMs",
		}},
		{Class: "Engineering & Architecture", Categories: []string{
			"Software Architecture", "Architecture of the Mind (Mindset)",
			"Data Engineering", "MLOps", "ML Engineering & MLOps",
		}},
		{Class: "Knowledge & Science", Categories: []string{
			"General Knowledge", "Statistics", "Statistics & Uncertainty", "Cosmology",
		}},
		{Class: "Business & Finance", Categories: []string{
			"Personal Finance", "Business", "Economic Freedom",
		}},
		{Class: "Literature & Culture", Categories: []string{
			"Diversity and Inclusion", "History/Fiction", "National Literature",
			"Epics & Reflective Fiction", "Social Justice & Intersectionality",
		}},
		{Class: DefaultClass, Categories: []string{
			"Well-being", "Communication", "Creativity", "Personal Development",
			"Emotional Intelligence", "Leadership", "Leadership & Strategic Thinking",
			"Productivity", "Biohacking & Existence", "Storytelling & Visualization",
			"General",
		}},
	}
}
