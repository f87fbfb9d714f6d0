package db

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/nrjais/basestore/internal/shape"
)

func ConnectPostgres(ctx context.Context, databaseURL string) (*pgxpool.Pool, error) {
	config, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse postgres config: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create postgres connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping postgres: %w", err)
	}

	slog.Info("Database connection established", "db", "PostgreSQL")
	return pool, nil
}

// PostgresDatabase implements Database using PostgreSQL.
type PostgresDatabase struct {
	*pgQueries
	pool *pgxpool.Pool
}

var _ Database = (*PostgresDatabase)(nil)

func NewPostgresDatabase(pool *pgxpool.Pool) *PostgresDatabase {
	return &PostgresDatabase{pgQueries: &pgQueries{conn: pool}, pool: pool}
}

func (p *PostgresDatabase) InTx(ctx context.Context, fn func(q Queries) error) error {
	return pgx.BeginFunc(ctx, p.pool, func(tx pgx.Tx) error {
		return fn(&pgQueries{conn: tx})
	})
}

func (p *PostgresDatabase) Close() {
	p.pool.Close()
}

type pgQueries struct {
	conn PostgresPool
}

// translate maps driver errors onto the package sentinels.
func translate(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505":
			return fmt.Errorf("%w: %s", ErrDuplicate, pgErr.ConstraintName)
		case "23503":
			return fmt.Errorf("%w: %s", ErrForeignKey, pgErr.ConstraintName)
		}
	}
	return err
}

func (q *pgQueries) InsertBase(ctx context.Context, base Base) error {
	sql := `INSERT INTO bases (id, name, created_by, created_at) VALUES ($1, $2, $3, $4)`
	if _, err := q.conn.Exec(ctx, sql, base.ID, base.Name, base.CreatedBy, base.CreatedAt); err != nil {
		return fmt.Errorf("failed to insert base '%s': %w", base.ID, translate(err))
	}
	return nil
}

func (q *pgQueries) GetBase(ctx context.Context, id string) (Base, error) {
	var b Base
	err := q.conn.QueryRow(ctx,
		`SELECT id, name, created_by, created_at FROM bases WHERE id = $1`, id,
	).Scan(&b.ID, &b.Name, &b.CreatedBy, &b.CreatedAt)
	if err != nil {
		return Base{}, translate(err)
	}
	return b, nil
}

func (q *pgQueries) ListBases(ctx context.Context) ([]Base, error) {
	rows, err := q.conn.Query(ctx, `SELECT id, name, created_by, created_at FROM bases ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query bases: %w", err)
	}
	defer rows.Close()

	var bases []Base
	for rows.Next() {
		var b Base
		if err := rows.Scan(&b.ID, &b.Name, &b.CreatedBy, &b.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan base row: %w", err)
		}
		bases = append(bases, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating base rows: %w", err)
	}
	return bases, nil
}

func (q *pgQueries) DeleteBase(ctx context.Context, id string) error {
	return q.deleteByID(ctx, "bases", id)
}

func (q *pgQueries) deleteByID(ctx context.Context, table, id string) error {
	cmdTag, err := q.conn.Exec(ctx, fmt.Sprintf(`DELETE FROM %s WHERE id = $1`, table), id)
	if err != nil {
		return fmt.Errorf("failed to delete from %s '%s': %w", table, id, translate(err))
	}
	if cmdTag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (q *pgQueries) InsertFields(ctx context.Context, fields []Field) error {
	sql := `INSERT INTO fields (id, base_id, name, type, config, created_at) VALUES ($1, $2, $3, $4, $5, $6)`
	for _, f := range fields {
		if _, err := q.conn.Exec(ctx, sql, f.ID, f.BaseID, f.Name, string(f.Type), nullableJSON(f.Config), f.CreatedAt); err != nil {
			return fmt.Errorf("failed to insert field '%s' (%s): %w", f.Name, f.Type, translate(err))
		}
	}
	return nil
}

const fieldColumns = `f.id, f.base_id, f.name, f.type, f.config, f.created_at`

func scanField(row pgx.Row, f *Field) error {
	var typ string
	if err := row.Scan(&f.ID, &f.BaseID, &f.Name, &typ, &f.Config, &f.CreatedAt); err != nil {
		return err
	}
	f.Type = shape.FieldType(typ)
	return nil
}

func (q *pgQueries) GetField(ctx context.Context, id string) (Field, error) {
	var f Field
	err := scanField(q.conn.QueryRow(ctx, `SELECT `+fieldColumns+` FROM fields f WHERE f.id = $1`, id), &f)
	if err != nil {
		return Field{}, translate(err)
	}
	return f, nil
}

func (q *pgQueries) ListFields(ctx context.Context, baseID string) ([]Field, error) {
	rows, err := q.conn.Query(ctx, `SELECT `+fieldColumns+` FROM fields f WHERE f.base_id = $1 ORDER BY f.created_at, f.id`, baseID)
	if err != nil {
		return nil, fmt.Errorf("failed to query fields for base '%s': %w", baseID, err)
	}
	defer rows.Close()

	var fields []Field
	for rows.Next() {
		var f Field
		if err := scanField(rows, &f); err != nil {
			return nil, fmt.Errorf("failed to scan field row: %w", err)
		}
		fields = append(fields, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating field rows: %w", err)
	}
	return fields, nil
}

func (q *pgQueries) DeleteField(ctx context.Context, id string) error {
	return q.deleteByID(ctx, "fields", id)
}

func (q *pgQueries) InsertOption(ctx context.Context, opt Option) error {
	sql := `INSERT INTO options (id, field_id, name, color) VALUES ($1, $2, $3, $4)`
	if _, err := q.conn.Exec(ctx, sql, opt.ID, opt.FieldID, opt.Name, opt.Color); err != nil {
		return fmt.Errorf("failed to insert option '%s': %w", opt.Name, translate(err))
	}
	return nil
}

func (q *pgQueries) GetOption(ctx context.Context, id string) (Option, error) {
	var o Option
	err := q.conn.QueryRow(ctx, `SELECT id, field_id, name, color FROM options WHERE id = $1`, id).
		Scan(&o.ID, &o.FieldID, &o.Name, &o.Color)
	if err != nil {
		return Option{}, translate(err)
	}
	return o, nil
}

func (q *pgQueries) ListOptions(ctx context.Context, fieldID string) ([]Option, error) {
	rows, err := q.conn.Query(ctx, `SELECT id, field_id, name, color FROM options WHERE field_id = $1 ORDER BY name`, fieldID)
	if err != nil {
		return nil, fmt.Errorf("failed to query options for field '%s': %w", fieldID, err)
	}
	defer rows.Close()

	var opts []Option
	for rows.Next() {
		var o Option
		if err := rows.Scan(&o.ID, &o.FieldID, &o.Name, &o.Color); err != nil {
			return nil, fmt.Errorf("failed to scan option row: %w", err)
		}
		opts = append(opts, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating option rows: %w", err)
	}
	return opts, nil
}

func (q *pgQueries) FindOption(ctx context.Context, fieldID, key string) (Option, error) {
	sql := `
        SELECT id, field_id, name, color
        FROM options
        WHERE field_id = $1 AND (id = $2 OR name = $2)
        ORDER BY (id = $2) DESC
        LIMIT 1`
	var o Option
	err := q.conn.QueryRow(ctx, sql, fieldID, key).Scan(&o.ID, &o.FieldID, &o.Name, &o.Color)
	if err != nil {
		return Option{}, translate(err)
	}
	return o, nil
}

func (q *pgQueries) UpdateOption(ctx context.Context, opt Option) error {
	cmdTag, err := q.conn.Exec(ctx, `UPDATE options SET name = $1, color = $2 WHERE id = $3`, opt.Name, opt.Color, opt.ID)
	if err != nil {
		return fmt.Errorf("failed to update option '%s': %w", opt.ID, translate(err))
	}
	if cmdTag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (q *pgQueries) DeleteOption(ctx context.Context, id string) error {
	return q.deleteByID(ctx, "options", id)
}

func (q *pgQueries) InsertRecord(ctx context.Context, rec Record) error {
	sql := `INSERT INTO records (id, base_id, created_at) VALUES ($1, $2, $3)`
	if _, err := q.conn.Exec(ctx, sql, rec.ID, rec.BaseID, rec.CreatedAt); err != nil {
		return fmt.Errorf("failed to insert record '%s': %w", rec.ID, translate(err))
	}
	return nil
}

func (q *pgQueries) GetRecord(ctx context.Context, id string) (Record, error) {
	var r Record
	err := q.conn.QueryRow(ctx, `SELECT id, base_id, created_at FROM records WHERE id = $1`, id).
		Scan(&r.ID, &r.BaseID, &r.CreatedAt)
	if err != nil {
		return Record{}, translate(err)
	}
	return r, nil
}

func (q *pgQueries) DeleteRecord(ctx context.Context, id string) error {
	return q.deleteByID(ctx, "records", id)
}

func (q *pgQueries) CountRecords(ctx context.Context, baseID string) (int, error) {
	var n int
	if err := q.conn.QueryRow(ctx, `SELECT count(*) FROM records WHERE base_id = $1`, baseID).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count records for base '%s': %w", baseID, err)
	}
	return n, nil
}

// recordWhere renders the base scope plus one EXISTS clause per value filter.
func recordWhere(q RecordQuery) (string, []any) {
	args := []any{q.BaseID}
	var sb strings.Builder
	sb.WriteString("r.base_id = $1")
	for _, f := range q.Filters {
		args = append(args, f.FieldID, []byte(f.Value))
		fmt.Fprintf(&sb,
			" AND EXISTS (SELECT 1 FROM record_values v WHERE v.record_id = r.id AND v.field_id = $%d AND v.value = $%d::jsonb)",
			len(args)-1, len(args))
	}
	return sb.String(), args
}

func (q *pgQueries) FindRecords(ctx context.Context, rq RecordQuery) ([]Record, error) {
	where, args := recordWhere(rq)
	dir := "DESC"
	if rq.Sort == SortAsc {
		dir = "ASC"
	}
	args = append(args, rq.Limit, rq.Offset)
	sql := fmt.Sprintf(`
        SELECT r.id, r.base_id, r.created_at
        FROM records r
        WHERE %s
        ORDER BY r.created_at %s, r.id %s
        LIMIT $%d OFFSET $%d`, where, dir, dir, len(args)-1, len(args))

	rows, err := q.conn.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query records for base '%s': %w", rq.BaseID, err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var r Record
		if err := rows.Scan(&r.ID, &r.BaseID, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan record row: %w", err)
		}
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating record rows: %w", err)
	}
	return records, nil
}

func (q *pgQueries) CountMatching(ctx context.Context, rq RecordQuery) (int, error) {
	where, args := recordWhere(rq)
	var n int
	if err := q.conn.QueryRow(ctx, `SELECT count(*) FROM records r WHERE `+where, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count records for base '%s': %w", rq.BaseID, err)
	}
	return n, nil
}

const valueColumns = `v.id, v.record_id, v.field_id, v.value, v.created_by, v.updated_by, v.created_at, v.updated_at`

func scanValue(row pgx.Row, v *Value, extra ...any) error {
	dest := append([]any{&v.ID, &v.RecordID, &v.FieldID, &v.Value, &v.CreatedBy, &v.UpdatedBy, &v.CreatedAt, &v.UpdatedAt}, extra...)
	return row.Scan(dest...)
}

func (q *pgQueries) ListRecordValues(ctx context.Context, recordIDs []string) ([]FieldValue, error) {
	if len(recordIDs) == 0 {
		return nil, nil
	}
	sql := `
        SELECT ` + valueColumns + `, ` + fieldColumns + `
        FROM record_values v
        JOIN fields f ON f.id = v.field_id
        WHERE v.record_id = ANY($1)
        ORDER BY v.record_id, f.created_at, f.id`
	rows, err := q.conn.Query(ctx, sql, recordIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to query values for %d records: %w", len(recordIDs), err)
	}
	defer rows.Close()

	var values []FieldValue
	for rows.Next() {
		var fv FieldValue
		var typ string
		f := &fv.Field
		if err := scanValue(rows, &fv.Value, &f.ID, &f.BaseID, &f.Name, &typ, &f.Config, &f.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan value row: %w", err)
		}
		f.Type = shape.FieldType(typ)
		values = append(values, fv)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating value rows: %w", err)
	}
	return values, nil
}

func (q *pgQueries) InsertValues(ctx context.Context, values []Value) error {
	sql := `
        INSERT INTO record_values (id, record_id, field_id, value, created_by, updated_by, created_at, updated_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`
	for _, v := range values {
		_, err := q.conn.Exec(ctx, sql, v.ID, v.RecordID, v.FieldID, []byte(v.Value), v.CreatedBy, v.UpdatedBy, v.CreatedAt, v.UpdatedAt)
		if err != nil {
			return fmt.Errorf("failed to insert value for record '%s', field '%s': %w", v.RecordID, v.FieldID, translate(err))
		}
	}
	return nil
}

func (q *pgQueries) UpsertValue(ctx context.Context, v Value) (Value, error) {
	sql := `
        INSERT INTO record_values AS v (id, record_id, field_id, value, created_by, updated_by, created_at, updated_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
        ON CONFLICT (record_id, field_id)
        DO UPDATE SET value = EXCLUDED.value, updated_by = EXCLUDED.updated_by, updated_at = EXCLUDED.updated_at
        RETURNING ` + valueColumns
	var out Value
	err := scanValue(q.conn.QueryRow(ctx, sql,
		v.ID, v.RecordID, v.FieldID, []byte(v.Value), v.CreatedBy, v.UpdatedBy, v.CreatedAt, v.UpdatedAt,
	), &out)
	if err != nil {
		return Value{}, fmt.Errorf("failed to upsert value for record '%s', field '%s': %w", v.RecordID, v.FieldID, translate(err))
	}
	return out, nil
}

func (q *pgQueries) GetUser(ctx context.Context, id string) (User, error) {
	sql := `
        SELECT u.id, u.first_name, u.last_name, u.middle_name, u.age, p.id, p.name
        FROM users u
        LEFT JOIN positions p ON p.id = u.position_id
        WHERE u.id = $1`
	var u User
	var posID, posName *string
	err := q.conn.QueryRow(ctx, sql, id).
		Scan(&u.ID, &u.FirstName, &u.LastName, &u.MiddleName, &u.Age, &posID, &posName)
	if err != nil {
		return User{}, translate(err)
	}
	if posID != nil && posName != nil {
		u.Position = &Position{ID: *posID, Name: *posName}
	}
	return u, nil
}

func nullableJSON(raw []byte) any {
	if len(raw) == 0 {
		return nil
	}
	return raw
}
