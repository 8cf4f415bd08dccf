// Package option provides composable query modifiers for the generic
// repository.
package option

import (
	"fmt"

	"gorm.io/gorm"
)

type Operator string

const (
	EQ  Operator = "="
	GT  Operator = ">"
	GTE Operator = ">="
	LT  Operator = "<"
	LTE Operator = "<="
)

// QueryOption mutates a gorm statement before execution.
type QueryOption interface {
	Apply(*gorm.DB) *gorm.DB
}

type Condition struct {
	Field    string
	Operator Operator
	Value    any
}

type operatorOption struct {
	cond Condition
}

func (o operatorOption) Apply(db *gorm.DB) *gorm.DB {
	if o.cond.Field == "" || o.cond.Operator == "" {
		return db
	}
	return db.Where(fmt.Sprintf("%s %s ?", o.cond.Field, o.cond.Operator), o.cond.Value)
}

// ApplyOperator adds a single comparison condition.
func ApplyOperator(cond Condition) QueryOption {
	return operatorOption{cond: cond}
}

type QuerySortBy struct {
	// Allow whitelists sortable columns.
	Allow map[string]bool
	// Field and Desc select the ordering; an empty or disallowed Field
	// falls back to created_at descending.
	Field string
	Desc  bool
}

type sortByOption struct {
	sort QuerySortBy
}

func (o sortByOption) Apply(db *gorm.DB) *gorm.DB {
	field := o.sort.Field
	if field == "" || !o.sort.Allow[field] {
		field = "created_at"
	}
	direction := "ASC"
	if o.sort.Desc || o.sort.Field == "" {
		direction = "DESC"
	}
	return db.Order(fmt.Sprintf("%s %s", field, direction))
}

func WithSortBy(sort QuerySortBy) QueryOption {
	return sortByOption{sort: sort}
}

type limitOption struct {
	limit int
}

func (o limitOption) Apply(db *gorm.DB) *gorm.DB {
	if o.limit <= 0 {
		return db
	}
	return db.Limit(o.limit)
}

func WithLimit(limit int) QueryOption {
	return limitOption{limit: limit}
}
