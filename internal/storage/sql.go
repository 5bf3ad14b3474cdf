package storage

import (
	"context"
	"database/sql"
	"strconv"
	"strings"

	"github.com/cockroachdb/errors"

	logx "botlog/pkg/logx"
)

// dialect captures the few places where SQLite and PostgreSQL differ.
type dialect struct {
	name      string
	idColumn  string
	floatType string
	numbered  bool // $1, $2 placeholders instead of ?
}

var (
	sqliteDialect = dialect{
		name:      "sqlite",
		idColumn:  "id INTEGER PRIMARY KEY AUTOINCREMENT",
		floatType: "REAL",
	}
	postgresDialect = dialect{
		name:      "postgres",
		idColumn:  "id BIGSERIAL PRIMARY KEY",
		floatType: "DOUBLE PRECISION",
		numbered:  true,
	}
)

// rebind rewrites ? placeholders for dialects that number them.
func (d dialect) rebind(q string) string {
	if !d.numbered {
		return q
	}
	var b strings.Builder
	n := 0
	for _, r := range q {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

type sqlStore struct {
	db  *sql.DB
	d   dialect
	log logx.Logger
}

func newSQLStore(ctx context.Context, db *sql.DB, d dialect, log logx.Logger) (*sqlStore, error) {
	s := &sqlStore{db: db, d: d, log: log}
	if err := s.migrate(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *sqlStore) migrate(ctx context.Context) error {
	ddl := `CREATE TABLE IF NOT EXISTS ` + ChannelLogsTable + ` (
	` + s.d.idColumn + `,
	channel TEXT NOT NULL,
	created ` + s.d.floatType + ` NOT NULL,
	nick TEXT NOT NULL,
	message TEXT NOT NULL
)`
	if _, err := s.db.ExecContext(ctx, ddl); err != nil {
		return errors.Wrapf(err, "%s: create %s", s.d.name, ChannelLogsTable)
	}
	return nil
}

func (s *sqlStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *sqlStore) InsertChannelLog(ctx context.Context, doc ChannelLog) error {
	if s == nil || s.db == nil {
		return ErrDisabled
	}
	_, err := s.db.ExecContext(ctx, s.d.rebind(
		`INSERT INTO `+ChannelLogsTable+`(channel, created, nick, message) VALUES(?,?,?,?)`),
		doc.Channel, doc.Created, doc.Nick, doc.Message,
	)
	return errors.Wrap(err, "insert channel log")
}

func (s *sqlStore) EnsureIndex(ctx context.Context, spec IndexSpec) error {
	if s == nil || s.db == nil {
		return ErrDisabled
	}
	if err := spec.validate(); err != nil {
		return err
	}
	cols := make([]string, 0, len(spec.Keys))
	for _, k := range spec.Keys {
		cols = append(cols, k.Field+" "+strings.ToUpper(k.Direction.String()))
	}
	q := `CREATE INDEX IF NOT EXISTS ` + spec.Name() + ` ON ` + ChannelLogsTable +
		` (` + strings.Join(cols, ", ") + `)`
	if _, err := s.db.ExecContext(ctx, q); err != nil {
		return errors.Wrapf(err, "ensure index %s", spec.Name())
	}
	s.log.Debug("index ensured", logx.String("index", spec.Name()))
	return nil
}

func (s *sqlStore) Recent(ctx context.Context, q Query) ([]ChannelLog, error) {
	if s == nil || s.db == nil {
		return nil, ErrDisabled
	}
	var (
		conds []string
		args  []any
	)
	if q.Nick != "" {
		conds = append(conds, "nick = ?")
		args = append(args, q.Nick)
	}
	if q.Channel != "" {
		conds = append(conds, "channel = ?")
		args = append(args, q.Channel)
	}
	if !q.Before.IsZero() {
		conds = append(conds, "created < ?")
		args = append(args, EpochSeconds(q.Before))
	}

	stmt := `SELECT channel, created, nick, message FROM ` + ChannelLogsTable
	if len(conds) > 0 {
		stmt += ` WHERE ` + strings.Join(conds, " AND ")
	}
	stmt += ` ORDER BY created DESC LIMIT ?`
	args = append(args, q.limit())

	rows, err := s.db.QueryContext(ctx, s.d.rebind(stmt), args...)
	if err != nil {
		return nil, errors.Wrap(err, "query channel logs")
	}
	defer rows.Close()

	var out []ChannelLog
	for rows.Next() {
		var doc ChannelLog
		if err := rows.Scan(&doc.Channel, &doc.Created, &doc.Nick, &doc.Message); err != nil {
			return nil, errors.Wrap(err, "scan channel log")
		}
		out = append(out, doc)
	}
	return out, errors.Wrap(rows.Err(), "iterate channel logs")
}
