// Package resolver coerces human-readable foreign key references in a
// proposed payload (a project name, an assignee email) into row ids.
// The command engine calls it before every create/update.
package resolver

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"

	"github.com/planora/hub/internal/schema"
)

const maxCandidates = 5

// Coercion is the result of resolving one payload. When NeedResolve is
// set the caller must surface Message (and Choices, if any) to the user
// instead of persisting anything.
type Coercion struct {
	Data        map[string]any
	NeedResolve bool
	Message     string
	Choices     []schema.Choice
}

type Resolver struct {
	db    *sql.DB
	reg   *schema.Registry
	cache *Cache // nil = caching disabled
}

func New(db *sql.DB, reg *schema.Registry, cache *Cache) *Resolver {
	return &Resolver{db: db, reg: reg, cache: cache}
}

// Coerce rewrites reference fields in data from labels to ids.
// The input map is not mutated; a rewritten copy is returned.
func (r *Resolver) Coerce(ctx context.Context, actor schema.ActingContext, entityKey string, data map[string]any) (Coercion, error) {
	desc, ok := r.reg.Describe(entityKey)
	if !ok {
		return Coercion{}, fmt.Errorf("unknown entity: %s", entityKey)
	}

	out := make(map[string]any, len(data))
	for k, v := range data {
		out[k] = v
	}

	for _, ref := range desc.References {
		raw, present := out[ref.Field]
		if !present || raw == nil {
			continue
		}
		label, isLabel := labelValue(raw)
		if !isLabel {
			continue
		}

		target, ok := r.reg.Describe(ref.Entity)
		if !ok {
			return Coercion{}, fmt.Errorf("reference %s points at unregistered entity %s", ref.Field, ref.Entity)
		}

		if r.cache != nil {
			if id, hit := r.cache.Get(ctx, ref.Entity, actor.TeamID, label); hit {
				out[ref.Field] = id
				continue
			}
		}

		matches, err := r.lookup(ctx, actor, target, ref.AltLabel, label)
		if err != nil {
			return Coercion{}, err
		}
		switch len(matches) {
		case 0:
			return Coercion{
				NeedResolve: true,
				Message:     fmt.Sprintf("could not find %s matching %q", target.Key, label),
			}, nil
		case 1:
			out[ref.Field] = matches[0].ID
			if r.cache != nil {
				r.cache.Put(ctx, ref.Entity, actor.TeamID, label, matches[0].ID.(int64))
			}
		default:
			return Coercion{
				NeedResolve: true,
				Message:     fmt.Sprintf("multiple %s match %q", target.Key, label),
				Choices:     matches,
			}, nil
		}
	}

	return Coercion{Data: out}, nil
}

// Invalidate drops cached lookups for an entity after a mutation.
func (r *Resolver) Invalidate(ctx context.Context, entityKey string, teamID int64) {
	if r.cache != nil {
		r.cache.Invalidate(ctx, entityKey, teamID)
	}
}

// lookup finds candidate rows by label substring, exact matches first.
func (r *Resolver) lookup(ctx context.Context, actor schema.ActingContext, target *schema.Descriptor, altLabel, label string) ([]schema.Choice, error) {
	needle := "%" + strings.ToLower(label) + "%"
	exact := strings.ToLower(label)

	match := fmt.Sprintf("LOWER(%s) LIKE ?", target.LabelField)
	rank := fmt.Sprintf("CASE WHEN LOWER(%s) = ? THEN 0 ELSE 1 END", target.LabelField)
	args := []any{needle}
	rankArgs := []any{exact}
	if altLabel != "" {
		match = fmt.Sprintf("(LOWER(%s) LIKE ? OR LOWER(%s) LIKE ?)", target.LabelField, altLabel)
		rank = fmt.Sprintf("CASE WHEN LOWER(%s) = ? OR LOWER(%s) = ? THEN 0 ELSE 1 END", target.LabelField, altLabel)
		args = append(args, needle)
		rankArgs = append(rankArgs, exact)
	}

	where := []string{match}
	if target.TenantColumn != "" {
		where = append(where, target.TenantColumn+" = ?")
		args = append(args, actor.TeamID)
	}
	if target.SoftDelete {
		where = append(where, "deleted_at IS NULL")
	}

	query := fmt.Sprintf(`SELECT id, %s FROM %s WHERE %s ORDER BY %s, id LIMIT %d`,
		target.LabelField, target.Table, strings.Join(where, " AND "), rank, maxCandidates)
	rows, err := r.db.QueryContext(ctx, query, append(args, rankArgs...)...)
	if err != nil {
		return nil, fmt.Errorf("resolve %s by label: %w", target.Key, err)
	}
	defer rows.Close()

	var out []schema.Choice
	for rows.Next() {
		var id int64
		var lbl string
		if err := rows.Scan(&id, &lbl); err != nil {
			return nil, err
		}
		out = append(out, schema.Choice{ID: id, Label: lbl})
	}
	return out, rows.Err()
}

// labelValue reports whether v is a free-text reference that needs
// resolution. Numeric values (and numeric strings) are already ids.
func labelValue(v any) (string, bool) {
	s, ok := v.(string)
	if !ok {
		return "", false
	}
	s = strings.TrimSpace(s)
	if s == "" {
		return "", false
	}
	if _, err := strconv.ParseInt(s, 10, 64); err == nil {
		return "", false
	}
	return s, true
}
