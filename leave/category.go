/*
category.go - Leave category registry

PURPOSE:
  Leave types are configuration data, not compiled branches. Each category
  declares which quota pool it draws from and who may request it; the rest
  of the engine dispatches on those declarations by looking the category up.

HOW IT WORKS:
  1. A CategorySet is built from stored definitions (or the defaults)
  2. Quota accounting asks the set for the category's QuotaKind
  3. Submission asks whether the user's gender may use the category

QUOTA KINDS:
  QuotaAnnual:          entitlement keyed by calendar year, year-restricted
  QuotaOvertimeBalance: the user's overtime snapshot, unrestricted by year
  QuotaNone:            no pool, never rejected for quota

USAGE:
  set := leave.DefaultCategories()
  def, ok := set.Lookup(leave.CategoryAnnual)
  if def.Quota == leave.QuotaAnnual { ... }

SEE ALSO:
  - quota.go: Entitlement dispatch by QuotaKind
  - request.go: Gender restriction at submission
*/
package leave

import (
	"sort"
	"sync"
)

// =============================================================================
// CATEGORY DEFINITION
// =============================================================================

type QuotaKind string

const (
	QuotaNone            QuotaKind = ""
	QuotaAnnual          QuotaKind = "annual"
	QuotaOvertimeBalance QuotaKind = "overtime_balance"
)

type GenderRestriction string

const (
	AllowAll   GenderRestriction = "ALL"
	MaleOnly   GenderRestriction = "MALE_ONLY"
	FemaleOnly GenderRestriction = "FEMALE_ONLY"
)

type CategoryDef struct {
	Code          Category          `json:"code"`
	Name          string            `json:"name"`
	Quota         QuotaKind         `json:"quota"`
	AllowedGender GenderRestriction `json:"allowedGender"`
}

// Enforced reports whether requests of this category are checked against a
// quota pool.
func (d CategoryDef) Enforced() bool {
	return d.Quota != QuotaNone
}

// AllowedFor reports whether a user of the given gender may use the category.
func (d CategoryDef) AllowedFor(g Gender) bool {
	switch d.AllowedGender {
	case "", AllowAll:
		return true
	case MaleOnly:
		return g == GenderMale
	case FemaleOnly:
		return g == GenderFemale
	}
	return false
}

// =============================================================================
// CATEGORY SET
// =============================================================================

// CategorySet is a concurrency-safe lookup table of category definitions.
type CategorySet struct {
	mu   sync.RWMutex
	defs map[Category]CategoryDef
}

// NewCategorySet returns a set holding defs.
func NewCategorySet(defs ...CategoryDef) *CategorySet {
	s := &CategorySet{defs: make(map[Category]CategoryDef, len(defs))}
	for _, d := range defs {
		s.defs[d.Code] = d
	}
	return s
}

// DefaultCategories is the built-in category table used when no categories
// are configured.
func DefaultCategories() *CategorySet {
	return NewCategorySet(
		CategoryDef{Code: CategoryAnnual, Name: "Annual leave", Quota: QuotaAnnual, AllowedGender: AllowAll},
		CategoryDef{Code: CategoryCompensatory, Name: "Compensatory leave", Quota: QuotaOvertimeBalance, AllowedGender: AllowAll},
		CategoryDef{Code: CategoryOvertime, Name: "Overtime", AllowedGender: AllowAll},
		CategoryDef{Code: CategorySick, Name: "Sick leave", AllowedGender: AllowAll},
		CategoryDef{Code: CategoryPersonal, Name: "Personal leave", AllowedGender: AllowAll},
		CategoryDef{Code: "MENSTRUAL", Name: "Menstrual leave", AllowedGender: FemaleOnly},
		CategoryDef{Code: "PATERNITY", Name: "Paternity leave", AllowedGender: MaleOnly},
	)
}

// Register adds or replaces a definition.
func (s *CategorySet) Register(d CategoryDef) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.defs[d.Code] = d
}

// Replace swaps the whole table for defs.
func (s *CategorySet) Replace(defs ...CategoryDef) {
	table := make(map[Category]CategoryDef, len(defs))
	for _, d := range defs {
		table[d.Code] = d
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.defs = table
}

// Lookup finds a category definition by code.
func (s *CategorySet) Lookup(code Category) (CategoryDef, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.defs[code]
	return d, ok
}

// Resolve returns the definition for code, or a quota-free definition when
// the code is not registered. Historical requests may carry categories that
// have since been removed from configuration.
func (s *CategorySet) Resolve(code Category) CategoryDef {
	if d, ok := s.Lookup(code); ok {
		return d
	}
	return CategoryDef{Code: code, Name: string(code), AllowedGender: AllowAll}
}

// List returns all definitions ordered by code.
func (s *CategorySet) List() []CategoryDef {
	s.mu.RLock()
	defer s.mu.RUnlock()
	result := make([]CategoryDef, 0, len(s.defs))
	for _, d := range s.defs {
		result = append(result, d)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Code < result[j].Code })
	return result
}

// AvailableFor returns the categories the user may request.
func (s *CategorySet) AvailableFor(u User) []CategoryDef {
	var result []CategoryDef
	for _, d := range s.List() {
		if d.AllowedFor(u.Gender) {
			result = append(result, d)
		}
	}
	return result
}
