package database

import (
	"fmt"

	"github.com/huandu/go-sqlbuilder"
)

// Excluded references the row proposed for insertion inside ON CONFLICT clauses.
func Excluded(column string) any {
	return sqlbuilder.Raw(fmt.Sprintf("EXCLUDED.%s", column))
}

// Now is the database clock.
func Now() any {
	return sqlbuilder.Raw("NOW()")
}

func NewInsertBuilder() *sqlbuilder.InsertBuilder {
	return sqlbuilder.PostgreSQL.NewInsertBuilder()
}

func NewUpdateBuilder() *sqlbuilder.UpdateBuilder {
	return sqlbuilder.PostgreSQL.NewUpdateBuilder()
}

func NewSelectBuilder() *sqlbuilder.SelectBuilder {
	return sqlbuilder.PostgreSQL.NewSelectBuilder()
}

// Struct builds statements from db-tagged model structs using the Postgres flavor.
type Struct struct {
	*sqlbuilder.Struct
}

func NewStruct(v any) *Struct {
	return &Struct{sqlbuilder.NewStruct(v).For(sqlbuilder.PostgreSQL)}
}

// Columns lists the db-tagged columns of the struct, qualified by table when given.
func (s *Struct) Columns(table string) []string {
	cols := s.Struct.Columns()
	if table == "" {
		return cols
	}
	qualified := make([]string, len(cols))
	for i, col := range cols {
		qualified[i] = table + "." + col
	}
	return qualified
}
