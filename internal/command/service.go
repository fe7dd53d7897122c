// Package command implements the schema-driven command engine: five
// generic verbs (query, open, create, update, delete) executed against
// any registered entity, driven entirely by registry metadata.
package command

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/planora/hub/internal/model"
	"github.com/planora/hub/internal/resolver"
	"github.com/planora/hub/internal/schema"
)

const (
	defaultSort   = "id"
	defaultOrder  = "desc"
	defaultLimit  = 20
	maxLimit      = 100
	maxChoices    = 5
	plannerPrefix = "planner."
)

// Publisher receives entity change notifications after successful writes.
type Publisher interface {
	Publish(teamID int64, ev *model.ChangeEvent)
}

// Service executes verbs over the open entity set. It is stateless;
// every call is a self-contained request/response.
type Service struct {
	db   *sql.DB
	reg  *schema.Registry
	fk   *resolver.Resolver
	feed Publisher // optional
}

func New(db *sql.DB, reg *schema.Registry, fk *resolver.Resolver, feed Publisher) *Service {
	return &Service{db: db, reg: reg, fk: fk, feed: feed}
}

// Execute dispatches one verb call. Expected failures come back inside
// the Outcome; the error return is reserved for infrastructure faults.
func (s *Service) Execute(ctx context.Context, actor schema.ActingContext, verb string, slots map[string]any) (Outcome, error) {
	if slots == nil {
		slots = map[string]any{}
	}
	switch verb {
	case "query":
		return s.Query(ctx, actor, slots)
	case "open":
		return s.Open(ctx, actor, slots)
	case "create":
		return s.Create(ctx, actor, slots)
	case "update":
		return s.Update(ctx, actor, slots)
	case "delete":
		return s.Delete(ctx, actor, slots)
	}
	return fail(fmt.Sprintf("unknown verb: %s", verb)), nil
}

// Query lists rows of one entity, narrowed to validated fields, the
// acting tenant and the entity's row-level visibility rule.
func (s *Service) Query(ctx context.Context, actor schema.ActingContext, slots map[string]any) (Outcome, error) {
	modelKey := slotString(slots, "model")
	if modelKey == "" {
		var choices []schema.Choice
		for _, k := range s.reg.KeysUnderNamespace(plannerPrefix) {
			choices = append(choices, schema.Choice{ID: k, Label: k})
		}
		return failChoices("which entity do you want to query?", choices), nil
	}
	desc, ok := s.describe(modelKey)
	if !ok {
		return fail(fmt.Sprintf("unknown model: %s", modelKey)), nil
	}

	// Tenant-scoped entities are implicitly denied without an active team.
	if desc.TenantColumn != "" && actor.TeamID == 0 {
		return Outcome{OK: true, Message: "0 results", Data: map[string]any{"items": []map[string]any{}}}, nil
	}

	sortField := s.reg.ValidateSortField(modelKey, slotString(slots, "sort"), defaultSort)
	order := slotString(slots, "order")
	if order != "asc" && order != "desc" {
		order = defaultOrder
	}
	limit := slotInt64(slots, "limit")
	if limit <= 0 {
		limit = defaultLimit
	}
	if limit > maxLimit {
		limit = maxLimit
	}
	fields := s.reg.ValidateFieldList(modelKey, slotFieldList(slots, "fields"))

	where, args := scopeWhere(desc, actor)
	if q := slotString(slots, "q"); q != "" {
		if col := desc.SearchField(); col != "" {
			where = append(where, fmt.Sprintf("LOWER(%s) LIKE ?", col))
			args = append(args, "%"+strings.ToLower(q)+"%")
		}
	}
	filters := s.reg.ValidateFilterMap(modelKey, slotDataMap(slots, "filters"))
	for _, k := range sortedKeys(filters) {
		where = append(where, k+" = ?")
		args = append(args, filters[k])
	}

	// Column and table names come from registry metadata or validated
	// field lists, never from raw caller input.
	query := fmt.Sprintf("SELECT %s FROM %s", strings.Join(fields, ", "), desc.Table)
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += fmt.Sprintf(" ORDER BY %s %s LIMIT %d", sortField, strings.ToUpper(order), limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return Outcome{}, fmt.Errorf("query %s: %w", modelKey, err)
	}
	defer rows.Close()

	items, err := scanItems(rows)
	if err != nil {
		return Outcome{}, fmt.Errorf("scan %s: %w", modelKey, err)
	}
	return Outcome{
		OK:      true,
		Message: fmt.Sprintf("%d results", len(items)),
		Data:    map[string]any{"items": items},
	}, nil
}

// Open resolves a reference (id, uuid or fuzzy label) to a single row
// and returns its navigation URL.
func (s *Service) Open(ctx context.Context, actor schema.ActingContext, slots map[string]any) (Outcome, error) {
	modelKey := slotString(slots, "model")
	if modelKey == "" {
		return fail("model is required"), nil
	}
	desc, ok := s.describe(modelKey)
	if !ok {
		return fail(fmt.Sprintf("unknown model: %s", modelKey)), nil
	}

	var rowID int64
	switch {
	case slotInt64(slots, "id") > 0:
		id := slotInt64(slots, "id")
		found, err := s.rowExists(ctx, desc, actor, "id", id)
		if err != nil {
			return Outcome{}, err
		}
		if !found {
			return failResolve(fmt.Sprintf("%s %d not found", modelKey, id)), nil
		}
		rowID = id
	case slotString(slots, "uuid") != "" && desc.HasField("uuid"):
		var err error
		rowID, err = s.rowIDByColumn(ctx, desc, actor, "uuid", slotString(slots, "uuid"))
		if err != nil {
			return Outcome{}, err
		}
		if rowID == 0 {
			return failResolve(fmt.Sprintf("%s not found", modelKey)), nil
		}
	case slotString(slots, "name") != "":
		matches, err := s.findByLabel(ctx, desc, actor, slotString(slots, "name"))
		if err != nil {
			return Outcome{}, err
		}
		switch len(matches) {
		case 0:
			return failResolve(fmt.Sprintf("no %s matches %q", modelKey, slotString(slots, "name"))), nil
		case 1:
			rowID = matches[0].ID.(int64)
		default:
			return failChoices(fmt.Sprintf("multiple %s match %q", modelKey, slotString(slots, "name")), matches), nil
		}
	default:
		return fail("id, uuid or name is required"), nil
	}

	url, ok := desc.NavigateURL(rowID)
	if !ok {
		return fail(fmt.Sprintf("navigation unavailable for %s", modelKey)), nil
	}
	return Outcome{
		OK:       true,
		Message:  fmt.Sprintf("opening %s %d", modelKey, rowID),
		Data:     map[string]any{"id": rowID},
		Navigate: url,
	}, nil
}

// Create validates and persists a new row. References in data are
// coerced first; required fields are checked against the coerced data
// before the writable-fields filter runs.
func (s *Service) Create(ctx context.Context, actor schema.ActingContext, slots map[string]any) (Outcome, error) {
	modelKey := slotString(slots, "model")
	if modelKey == "" {
		return fail("model is required"), nil
	}
	desc, ok := s.describe(modelKey)
	if !ok {
		return fail(fmt.Sprintf("unknown model: %s", modelKey)), nil
	}
	data := slotDataMap(slots, "data")
	if data == nil {
		return fail("data is required"), nil
	}
	if out, denied := s.requireTenant(desc, actor); denied {
		return out, nil
	}

	coerced, out, err := s.coerce(ctx, actor, modelKey, data)
	if err != nil || out != nil {
		return deref(out), err
	}

	if missing := missingRequired(coerced, s.reg.RequiredFields(modelKey)); len(missing) > 0 {
		return failMissing(fmt.Sprintf("missing required fields: %s", strings.Join(missing, ", ")), missing), nil
	}

	payload := allowList(coerced, s.reg.WritableFields(modelKey))
	now := time.Now().UTC().Format(time.RFC3339Nano)
	if desc.TenantColumn != "" {
		payload[desc.TenantColumn] = actor.TeamID
	}
	if desc.OwnerColumn != "" {
		payload[desc.OwnerColumn] = actor.UserID
	}
	if desc.HasField("uuid") {
		payload["uuid"] = uuid.NewString()
	}
	if desc.HasField("created_at") {
		payload["created_at"] = now
	}
	if desc.HasField("updated_at") {
		payload["updated_at"] = now
	}

	cols := sortedKeys(payload)
	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(cols)), ", ")
	args := make([]any, 0, len(cols))
	for _, c := range cols {
		args = append(args, payload[c])
	}
	res, err := s.db.ExecContext(ctx, fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		desc.Table, strings.Join(cols, ", "), placeholders), args...)
	if err != nil {
		return Outcome{}, fmt.Errorf("insert %s: %w", modelKey, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return Outcome{}, fmt.Errorf("insert %s: %w", modelKey, err)
	}

	s.notify(ctx, actor, modelKey, "created", id, labelOf(payload, desc))
	outcome := Outcome{
		OK:      true,
		Message: fmt.Sprintf("%s created", modelKey),
		Data:    map[string]any{"id": id},
	}
	if url, ok := desc.NavigateURL(id); ok {
		outcome.Navigate = url
	}
	return outcome, nil
}

// Update applies a change to one row behind a two-phase confirmation
// gate: without confirmed=true nothing is written and the coerced,
// normalized payload is echoed back for the caller to present.
func (s *Service) Update(ctx context.Context, actor schema.ActingContext, slots map[string]any) (Outcome, error) {
	modelKey := slotString(slots, "model")
	if modelKey == "" {
		return fail("model is required"), nil
	}
	desc, ok := s.describe(modelKey)
	if !ok {
		return fail(fmt.Sprintf("unknown model: %s", modelKey)), nil
	}
	id := slotInt64(slots, "id")
	if id <= 0 {
		return fail("id is required"), nil
	}
	data := slotDataMap(slots, "data")
	if data == nil {
		return fail("data is required"), nil
	}
	if out, denied := s.requireTenant(desc, actor); denied {
		return out, nil
	}

	found, err := s.rowExists(ctx, desc, actor, "id", id)
	if err != nil {
		return Outcome{}, err
	}
	if !found {
		return failResolve(fmt.Sprintf("%s %d not found", modelKey, id)), nil
	}

	coerced, out, err := s.coerce(ctx, actor, modelKey, data)
	if err != nil || out != nil {
		return deref(out), err
	}
	normalize(coerced)

	if !slotBool(slots, "confirmed") {
		return Outcome{
			OK:              false,
			Message:         fmt.Sprintf("confirm update of %s %d", modelKey, id),
			NeedResolve:     true,
			ConfirmRequired: true,
			Data:            map[string]any{"proposed": coerced},
		}, nil
	}

	payload := allowList(coerced, s.reg.WritableFields(modelKey))
	if desc.HasField("updated_at") {
		payload["updated_at"] = time.Now().UTC().Format(time.RFC3339Nano)
	}
	cols := sortedKeys(payload)
	sets := make([]string, 0, len(cols))
	args := make([]any, 0, len(cols)+2)
	for _, c := range cols {
		sets = append(sets, c+" = ?")
		args = append(args, payload[c])
	}
	query := fmt.Sprintf("UPDATE %s SET %s WHERE id = ?", desc.Table, strings.Join(sets, ", "))
	args = append(args, id)
	if desc.TenantColumn != "" {
		query += fmt.Sprintf(" AND %s = ?", desc.TenantColumn)
		args = append(args, actor.TeamID)
	}
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return Outcome{}, fmt.Errorf("update %s %d: %w", modelKey, id, err)
	}

	s.notify(ctx, actor, modelKey, "updated", id, labelOf(payload, desc))
	outcome := Outcome{
		OK:      true,
		Message: fmt.Sprintf("%s %d updated", modelKey, id),
		Data:    map[string]any{"id": id},
	}
	if url, ok := desc.NavigateURL(id); ok {
		outcome.Navigate = url
	}
	return outcome, nil
}

// Delete removes one row, resolved by exact id or by label substring.
// Name resolution deliberately takes the first match.
func (s *Service) Delete(ctx context.Context, actor schema.ActingContext, slots map[string]any) (Outcome, error) {
	modelKey := slotString(slots, "model")
	if modelKey == "" {
		return fail("model is required"), nil
	}
	desc, ok := s.describe(modelKey)
	if !ok {
		return fail(fmt.Sprintf("unknown model: %s", modelKey)), nil
	}
	if out, denied := s.requireTenant(desc, actor); denied {
		return out, nil
	}

	id := slotInt64(slots, "id")
	name := slotString(slots, "name")
	if id <= 0 && name == "" {
		return fail("id or name is required"), nil
	}

	if id <= 0 {
		where, args := scopeWhere(desc, actor)
		where = append(where, fmt.Sprintf("LOWER(%s) LIKE ?", desc.LabelField))
		args = append(args, "%"+strings.ToLower(name)+"%")
		query := fmt.Sprintf("SELECT id FROM %s WHERE %s ORDER BY id LIMIT 1",
			desc.Table, strings.Join(where, " AND "))
		err := s.db.QueryRowContext(ctx, query, args...).Scan(&id)
		if err == sql.ErrNoRows {
			return fail(fmt.Sprintf("no %s matches %q", modelKey, name)), nil
		}
		if err != nil {
			return Outcome{}, fmt.Errorf("resolve %s by name: %w", modelKey, err)
		}
	} else {
		found, err := s.rowExists(ctx, desc, actor, "id", id)
		if err != nil {
			return Outcome{}, err
		}
		if !found {
			return fail(fmt.Sprintf("%s %d not found", modelKey, id)), nil
		}
	}

	if desc.SoftDelete {
		query := fmt.Sprintf("UPDATE %s SET deleted_at = ? WHERE id = ?", desc.Table)
		args := []any{time.Now().UTC().Format(time.RFC3339Nano), id}
		if desc.TenantColumn != "" {
			query += fmt.Sprintf(" AND %s = ?", desc.TenantColumn)
			args = append(args, actor.TeamID)
		}
		if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
			return Outcome{}, fmt.Errorf("soft delete %s %d: %w", modelKey, id, err)
		}
	} else {
		query := fmt.Sprintf("DELETE FROM %s WHERE id = ?", desc.Table)
		args := []any{id}
		if desc.TenantColumn != "" {
			query += fmt.Sprintf(" AND %s = ?", desc.TenantColumn)
			args = append(args, actor.TeamID)
		}
		if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
			return Outcome{}, fmt.Errorf("delete %s %d: %w", modelKey, id, err)
		}
	}

	s.notify(ctx, actor, modelKey, "deleted", id, "")
	return Outcome{
		OK:      true,
		Message: fmt.Sprintf("%s %d deleted", modelKey, id),
		Data:    map[string]any{"id": id},
	}, nil
}

// --- internal helpers ---

// describe hides resolve-only entities from the verbs. A reference
// target like users stays resolvable through the foreign key resolver
// but is never directly addressable.
func (s *Service) describe(modelKey string) (*schema.Descriptor, bool) {
	desc, ok := s.reg.Describe(modelKey)
	if !ok || desc.ResolveOnly {
		return nil, false
	}
	return desc, true
}

// requireTenant rejects writes to tenant-scoped entities without an
// authenticated actor and active team.
func (s *Service) requireTenant(desc *schema.Descriptor, actor schema.ActingContext) (Outcome, bool) {
	if desc.TenantColumn == "" {
		return Outcome{}, false
	}
	if !actor.Authenticated() {
		return fail("unauthenticated"), true
	}
	if actor.TeamID == 0 {
		return fail("no active team"), true
	}
	return Outcome{}, false
}

// coerce runs the foreign key resolver and maps its need-resolve
// signals onto the outcome envelope.
func (s *Service) coerce(ctx context.Context, actor schema.ActingContext, modelKey string, data map[string]any) (map[string]any, *Outcome, error) {
	res, err := s.fk.Coerce(ctx, actor, modelKey, data)
	if err != nil {
		return nil, nil, err
	}
	if res.NeedResolve {
		if len(res.Choices) > 0 {
			out := failChoices(res.Message, res.Choices)
			return nil, &out, nil
		}
		out := failResolve(res.Message)
		return nil, &out, nil
	}
	return res.Data, nil, nil
}

func (s *Service) rowExists(ctx context.Context, desc *schema.Descriptor, actor schema.ActingContext, column string, value any) (bool, error) {
	id, err := s.rowIDByColumn(ctx, desc, actor, column, value)
	return id != 0, err
}

func (s *Service) rowIDByColumn(ctx context.Context, desc *schema.Descriptor, actor schema.ActingContext, column string, value any) (int64, error) {
	where, args := scopeWhere(desc, actor)
	where = append(where, column+" = ?")
	args = append(args, value)
	var id int64
	err := s.db.QueryRowContext(ctx,
		fmt.Sprintf("SELECT id FROM %s WHERE %s", desc.Table, strings.Join(where, " AND ")),
		args...).Scan(&id)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("lookup %s by %s: %w", desc.Key, column, err)
	}
	return id, nil
}

// findByLabel returns up to maxChoices candidates, exact label first.
func (s *Service) findByLabel(ctx context.Context, desc *schema.Descriptor, actor schema.ActingContext, name string) ([]schema.Choice, error) {
	where, args := scopeWhere(desc, actor)
	where = append(where, fmt.Sprintf("LOWER(%s) LIKE ?", desc.LabelField))
	args = append(args, "%"+strings.ToLower(name)+"%")
	query := fmt.Sprintf(`SELECT id, %s FROM %s WHERE %s
		ORDER BY CASE WHEN LOWER(%s) = ? THEN 0 ELSE 1 END, id LIMIT %d`,
		desc.LabelField, desc.Table, strings.Join(where, " AND "), desc.LabelField, maxChoices)
	args = append(args, strings.ToLower(name))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("find %s by label: %w", desc.Key, err)
	}
	defer rows.Close()

	var out []schema.Choice
	for rows.Next() {
		var id int64
		var label string
		if err := rows.Scan(&id, &label); err != nil {
			return nil, err
		}
		out = append(out, schema.Choice{ID: id, Label: label})
	}
	return out, rows.Err()
}

func (s *Service) notify(ctx context.Context, actor schema.ActingContext, entityKey, action string, id int64, label string) {
	s.fk.Invalidate(ctx, entityKey, actor.TeamID)
	if s.feed == nil {
		return
	}
	s.feed.Publish(actor.TeamID, &model.ChangeEvent{
		Ts:     time.Now().UTC().Format(time.RFC3339Nano),
		Entity: entityKey,
		Action: action,
		ID:     id,
		Label:  label,
	})
}

// scopeWhere builds the tenant, soft-delete and visibility clauses that
// every generic read shares.
func scopeWhere(desc *schema.Descriptor, actor schema.ActingContext) ([]string, []any) {
	var where []string
	var args []any
	if desc.TenantColumn != "" {
		where = append(where, desc.TenantColumn+" = ?")
		args = append(args, actor.TeamID)
	}
	if desc.SoftDelete {
		where = append(where, "deleted_at IS NULL")
	}
	if desc.Visibility != nil {
		clause, vargs := desc.Visibility(actor)
		where = append(where, clause)
		args = append(args, vargs...)
	}
	return where, args
}

// allowList copies only writable keys into the persisted payload.
// Pure mass-assignment protection, independent of the storage layer.
func allowList(data map[string]any, writable []string) map[string]any {
	out := map[string]any{}
	for _, k := range writable {
		if v, ok := data[k]; ok {
			out[k] = v
		}
	}
	return out
}

// missingRequired checks the pre-filter data: a required field that is
// present but not writable still counts as satisfied.
func missingRequired(data map[string]any, required []string) []string {
	var missing []string
	for _, f := range required {
		v, ok := data[f]
		if !ok || v == nil {
			missing = append(missing, f)
			continue
		}
		if s, isStr := v.(string); isStr && strings.TrimSpace(s) == "" {
			missing = append(missing, f)
		}
	}
	return missing
}

// normalize trims free-text fields in place and canonicalizes due dates.
func normalize(data map[string]any) {
	for _, f := range []string{"title", "name", "description"} {
		if s, ok := data[f].(string); ok {
			data[f] = strings.TrimSpace(s)
		}
	}
	if s, ok := data["due_date"].(string); ok {
		if parsed, ok := parseDueDate(s); ok {
			data["due_date"] = parsed
		}
	}
}

// parseDueDate accepts the external date representations callers send
// and normalizes them to YYYY-MM-DD.
func parseDueDate(s string) (string, bool) {
	s = strings.TrimSpace(s)
	for _, layout := range []string{"2006-01-02", time.RFC3339, "02.01.2006"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.Format("2006-01-02"), true
		}
	}
	return "", false
}

func labelOf(payload map[string]any, desc *schema.Descriptor) string {
	if s, ok := payload[desc.LabelField].(string); ok {
		return s
	}
	return ""
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func scanItems(rows *sql.Rows) ([]map[string]any, error) {
	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	items := []map[string]any{}
	for rows.Next() {
		vals := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		item := make(map[string]any, len(cols))
		for i, c := range cols {
			v := vals[i]
			if b, ok := v.([]byte); ok {
				v = string(b)
			}
			item[c] = v
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

func deref(out *Outcome) Outcome {
	if out == nil {
		return Outcome{}
	}
	return *out
}
