package query

import (
	"database/sql/driver"

	"github.com/lib/pq"
)

// stringArray renders as a Postgres text[] parameter.
type stringArray []string

func (a stringArray) Value() (driver.Value, error) {
	return pq.StringArray(a).Value()
}
