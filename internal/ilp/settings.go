package ilp

// Settings is the platform configuration the provisioning components read.
// It is built once from the loaded config and passed to each component.
type Settings struct {
	// DefaultCategoryID is the fallback category for unresolvable category
	// specs, and the category a metacourse may be moved out of.
	DefaultCategoryID int64

	// CourseDefaults overlays the built-in create defaults, keyed by course
	// field name.
	CourseDefaults map[string]string

	// CategoryCutoffs maps a category id to the epoch second after which
	// its grade cutoff has passed.
	CategoryCutoffs map[int64]int64

	// ModifySectionVisibility allows plain updates to change visible.
	ModifySectionVisibility bool

	// ModifyCrosslistVisibility allows crosslist updates to change visible.
	ModifyCrosslistVisibility bool
}

// DefaultSettings returns settings with both visibility toggles enabled and
// category 1 as the default category.
func DefaultSettings() Settings {
	return Settings{
		DefaultCategoryID:         1,
		ModifySectionVisibility:   true,
		ModifyCrosslistVisibility: true,
	}
}
