package model

import "time"

// AccountMapping is an operator-curated override from an accounting account path to a category.
type AccountMapping struct {
	UpdatedAt         time.Time
	QBAccountFullPath string
	InternalCategory  Category
	IsActive          bool
}
