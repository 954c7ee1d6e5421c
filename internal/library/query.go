package library

import (
	"fmt"
	"strings"
	"time"
)

// SortField is a column items can be ordered by.
type SortField string

const (
	SortByName         SortField = "name"
	SortBySortName     SortField = "sortName"
	SortByCreatedAt    SortField = "createdAt"
	SortByPremiereDate SortField = "premiereDate"
)

// Direction is a sort direction.
type Direction string

const (
	Ascending  Direction = "asc"
	Descending Direction = "desc"
)

// Order is one (field, direction) pair of an ORDER BY.
type Order struct {
	Field     SortField
	Direction Direction
}

// Query filters items. Without ParentID a recursive query spans the whole
// library and a non-recursive one only top-level items.
type Query struct {
	Kinds          []Kind
	ExcludeVirtual bool
	Recursive      bool
	ParentID       *int64
	MinDateCreated *time.Time
	OrderBy        []Order
	Limit          int // 0 = no limit
}

var sortColumns = map[SortField]string{
	SortByName:         "i.name COLLATE NOCASE",
	SortBySortName:     "i.sort_name COLLATE NOCASE",
	SortByCreatedAt:    "i.created_at",
	SortByPremiereDate: "i.premiere_date",
}

const itemColumns = `i.id, i.external_id, i.parent_id, i.kind, i.name, i.sort_name, i.overview,
	i.is_virtual, i.premiere_date, i.created_at, i.last_refreshed_at,
	(SELECT json_group_object(p.provider, p.value) FROM item_provider_ids p WHERE p.item_id = i.id),
	(SELECT json_group_array(json_object('type', m.image_type, 'path', m.path, 'remote', m.remote))
	   FROM item_images m WHERE m.item_id = i.id)`

// build renders the query as SQL. The id tie-break keeps ordering stable.
func (q Query) build() (string, []any, error) {
	var (
		sb    strings.Builder
		conds []string
		args  []any
	)

	switch {
	case q.Recursive && q.ParentID != nil:
		sb.WriteString(`WITH RECURSIVE tree(id) AS (
	SELECT id FROM items WHERE parent_id = ?
	UNION ALL
	SELECT c.id FROM items c JOIN tree t ON c.parent_id = t.id
) `)
		args = append(args, *q.ParentID)
		conds = append(conds, "i.id IN (SELECT id FROM tree)")
	case !q.Recursive && q.ParentID != nil:
		conds = append(conds, "i.parent_id = ?")
		args = append(args, *q.ParentID)
	case !q.Recursive:
		conds = append(conds, "i.parent_id IS NULL")
	}

	if len(q.Kinds) > 0 {
		marks := make([]string, len(q.Kinds))
		for i, k := range q.Kinds {
			marks[i] = "?"
			args = append(args, string(k))
		}
		conds = append(conds, "i.kind IN ("+strings.Join(marks, ", ")+")")
	}

	if q.ExcludeVirtual {
		conds = append(conds, "i.is_virtual = 0")
	}

	if q.MinDateCreated != nil {
		conds = append(conds, "i.created_at >= ?")
		args = append(args, formatTime(*q.MinDateCreated))
	}

	sb.WriteString("SELECT ")
	sb.WriteString(itemColumns)
	sb.WriteString(" FROM items i")
	if len(conds) > 0 {
		sb.WriteString(" WHERE ")
		sb.WriteString(strings.Join(conds, " AND "))
	}

	orders := make([]string, 0, len(q.OrderBy)+1)
	for _, o := range q.OrderBy {
		col, ok := sortColumns[o.Field]
		if !ok {
			return "", nil, fmt.Errorf("%w: unknown sort field %q", ErrInvalidQuery, o.Field)
		}
		dir := "ASC"
		if o.Direction == Descending {
			dir = "DESC"
		}
		orders = append(orders, col+" "+dir)
	}
	orders = append(orders, "i.id ASC")
	sb.WriteString(" ORDER BY ")
	sb.WriteString(strings.Join(orders, ", "))

	if q.Limit > 0 {
		sb.WriteString(" LIMIT ?")
		args = append(args, q.Limit)
	}

	return sb.String(), args, nil
}
