package ilp

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"golang.org/x/text/cases"
)

// PathSeparator separates category names in a category path.
const PathSeparator = "|"

// decimalNumber matches plain decimal numbers such as "12", "-3" and "12.0".
// Special float forms (NaN, Inf, hex) are names, not ids.
var decimalNumber = regexp.MustCompile(`^[+-]?(\d+(\.\d*)?|\.\d+)([eE][+-]?\d+)?$`)

// newCategorySortOrder is the sort order given to categories created from a path.
const newCategorySortOrder = 999

// CategoryResolver turns a category spec (an id or a "|"-delimited path of
// names) into a category id, creating missing categories along the path.
type CategoryResolver struct {
	database          Database
	cache             ContextCache
	logger            Logger
	defaultCategoryID int64
}

// NewCategoryResolver creates a CategoryResolver. cache may be nil.
func NewCategoryResolver(database Database, cache ContextCache, settings Settings, logger Logger) *CategoryResolver {
	return &CategoryResolver{
		database:          database,
		cache:             cache,
		logger:            logger,
		defaultCategoryID: settings.DefaultCategoryID,
	}
}

// Resolve returns the category id for spec.
//
// A numeric spec naming an existing category is returned unchanged. Any
// other non-empty spec is walked as a path from the root: each name is
// looked up under the current parent (first match wins) and created when
// missing. If nothing resolves, fallback is returned, or the configured
// default category when fallback is 0.
func (r *CategoryResolver) Resolve(spec string, fallback int64) (int64, error) {
	if decimalNumber.MatchString(spec) {
		f, err := strconv.ParseFloat(spec, 64)
		if id := int64(f); err == nil && float64(id) == f {
			exists, err := r.database.CategoryExists(id)
			if err != nil {
				return 0, fmt.Errorf("checking category %d: %w", id, err)
			}
			if exists {
				return id, nil
			}
		}
	} else if spec != "" {
		id, ok, err := r.resolvePath(spec)
		if err != nil {
			return 0, err
		}
		if ok {
			return id, nil
		}
	}

	if fallback != 0 {
		return fallback, nil
	}
	return r.defaultCategoryID, nil
}

// resolvePath walks the path, creating missing nodes. ok is false when the
// path has no usable segment or the final node does not carry the last name.
func (r *CategoryResolver) resolvePath(spec string) (id int64, ok bool, err error) {
	names := strings.Split(strings.Trim(spec, PathSeparator), PathSeparator)

	var current *Category
	var parent, depth int64
	for _, name := range names {
		if name == "" {
			continue
		}
		depth++

		found, err := r.database.FindCategoriesByNameAndParent(name, parent)
		if err != nil {
			return 0, false, fmt.Errorf("finding category %q: %w", name, err)
		}
		if len(found) > 0 {
			current = found[0]
			parent = current.ID
			continue
		}

		current, err = r.database.CreateCategory(&Category{
			Name:      name,
			Parent:    parent,
			Depth:     depth,
			SortOrder: newCategorySortOrder,
		})
		if err != nil {
			return 0, false, &CategoryCreateError{Name: name, Err: err}
		}
		r.logger.Info("category created", "name", name, "id", current.ID, "depth", depth)
		r.markDirty(current.ID)
		parent = current.ID
	}

	if current == nil {
		return 0, false, nil
	}
	last := names[len(names)-1]
	fold := cases.Fold()
	if fold.String(current.Name) != fold.String(last) {
		return 0, false, nil
	}
	return current.ID, true, nil
}

func (r *CategoryResolver) markDirty(categoryID int64) {
	if r.cache == nil {
		return
	}
	if err := r.cache.MarkDirty(CategoryContextPath(categoryID)); err != nil {
		r.logger.Warn("marking category context dirty", "id", categoryID, "error", err)
	}
}

// CategoryContextPath is the context cache key of a category.
func CategoryContextPath(categoryID int64) string {
	return fmt.Sprintf("category/%d", categoryID)
}
