package model

import (
	"fmt"
	"strings"
)

// Category is the internal expense category assigned by the classifier.
type Category string

// Expense categories.
const (
	CategoryLabor         Category = "labor"
	CategorySubcontractor Category = "subcontractor"
	CategoryMaterials     Category = "materials"
	CategoryEquipment     Category = "equipment"
	CategoryPermits       Category = "permits"
	CategoryManagement    Category = "management"
	CategoryOther         Category = "other"
)

// Categories lists every valid category in display order.
func Categories() []Category {
	return []Category{
		CategoryLabor,
		CategorySubcontractor,
		CategoryMaterials,
		CategoryEquipment,
		CategoryPermits,
		CategoryManagement,
		CategoryOther,
	}
}

// ParseCategory converts a stored or user-supplied value into a Category.
func ParseCategory(s string) (Category, error) {
	want := Category(strings.ToLower(strings.TrimSpace(s)))
	for _, c := range Categories() {
		if c == want {
			return c, nil
		}
	}
	return "", fmt.Errorf("unknown category %q", s)
}

// String implements fmt.Stringer.
func (c Category) String() string {
	return string(c)
}
