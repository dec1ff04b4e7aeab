package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/yourorg/apiscout/internal/loader"
	"github.com/yourorg/apiscout/pkg/types"
)

type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	s := &SQLiteStore{db: db}
	if err := s.Init(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) Init() error {
	if _, err := s.db.Exec(`PRAGMA journal_mode=WAL;`); err != nil {
		return err
	}
	if _, err := s.db.Exec(`PRAGMA busy_timeout=5000;`); err != nil {
		return err
	}
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS sessions (
			id TEXT PRIMARY KEY,
			source TEXT NOT NULL,
			host TEXT NOT NULL,
			record_count INTEGER NOT NULL DEFAULT 0,
			route_count INTEGER NOT NULL DEFAULT 0,
			status TEXT NOT NULL,
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS traffic_records (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			session_id TEXT NOT NULL,
			seq INTEGER NOT NULL,
			method TEXT NOT NULL,
			url TEXT NOT NULL,
			status_code INTEGER NOT NULL,
			request_body TEXT NOT NULL,
			response_body TEXT NOT NULL,
			page TEXT NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_records_session ON traffic_records(session_id);`,
		`CREATE TABLE IF NOT EXISTS routes (
			session_id TEXT NOT NULL,
			seq INTEGER NOT NULL,
			method TEXT NOT NULL,
			template TEXT NOT NULL,
			summary_json TEXT NOT NULL,
			PRIMARY KEY(session_id, seq)
		);`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

const sessionColumns = `id,source,host,record_count,route_count,status,created_at,updated_at`

func (s *SQLiteStore) CreateSession(source, host string) (*types.Session, error) {
	now := time.Now().UTC()
	id, err := s.nextSessionID(now)
	if err != nil {
		return nil, err
	}
	sess := &types.Session{ID: id, Source: source, Host: host, Status: StatusImported, CreatedAt: now, UpdatedAt: now}
	_, err = s.db.Exec(`INSERT INTO sessions(`+sessionColumns+`) VALUES(?,?,?,?,?,?,?,?)`,
		sess.ID, sess.Source, sess.Host, sess.RecordCount, sess.RouteCount, sess.Status, sess.CreatedAt, sess.UpdatedAt)
	return sess, err
}

func (s *SQLiteStore) nextSessionID(now time.Time) (string, error) {
	prefix := fmt.Sprintf("sess_%s_", now.Format("20060102"))
	rows, err := s.db.Query(`SELECT id FROM sessions WHERE id LIKE ?`, prefix+"%")
	if err != nil {
		return "", err
	}
	defer rows.Close()
	maxN := 0
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return "", err
		}
		var n int
		_, _ = fmt.Sscanf(id, prefix+"%03d", &n)
		if n > maxN {
			maxN = n
		}
	}
	return fmt.Sprintf("%s%03d", prefix, maxN+1), nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanSession(row scanner) (types.Session, error) {
	var out types.Session
	err := row.Scan(&out.ID, &out.Source, &out.Host, &out.RecordCount, &out.RouteCount, &out.Status, &out.CreatedAt, &out.UpdatedAt)
	return out, err
}

func (s *SQLiteStore) GetSession(id string) (*types.Session, error) {
	out, err := scanSession(s.db.QueryRow(`SELECT `+sessionColumns+` FROM sessions WHERE id=?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (s *SQLiteStore) UpdateSessionStatus(id, status string) error {
	_, err := s.db.Exec(`UPDATE sessions SET status=?, updated_at=? WHERE id=?`, status, time.Now().UTC(), id)
	return err
}

func (s *SQLiteStore) ListSessions() ([]types.Session, error) {
	rows, err := s.db.Query(`SELECT ` + sessionColumns + ` FROM sessions ORDER BY created_at DESC, id DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []types.Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, sess)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) DeleteSession(id string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if _, err := tx.Exec(`DELETE FROM traffic_records WHERE session_id=?`, id); err != nil {
		return err
	}
	if _, err := tx.Exec(`DELETE FROM routes WHERE session_id=?`, id); err != nil {
		return err
	}
	if _, err := tx.Exec(`DELETE FROM sessions WHERE id=?`, id); err != nil {
		return err
	}
	return tx.Commit()
}

// SaveRecords appends records to the session.
func (s *SQLiteStore) SaveRecords(sessionID string, records []types.TrafficRecord) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()
	stmt, err := tx.Prepare(`INSERT INTO traffic_records(session_id,seq,method,url,status_code,request_body,response_body,page) VALUES(?,?,?,?,?,?,?,?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()
	for _, r := range records {
		if _, err := stmt.Exec(sessionID, r.Seq, r.Method, r.URL, r.StatusCode, r.RequestBody.String(), r.ResponseBody.String(), r.Page); err != nil {
			return err
		}
	}
	if _, err := tx.Exec(`UPDATE sessions SET record_count=record_count+?, updated_at=? WHERE id=?`, len(records), time.Now().UTC(), sessionID); err != nil {
		return err
	}
	return tx.Commit()
}

// GetRecords returns the stored records in capture order, re-normalized
// from their URLs.
func (s *SQLiteStore) GetRecords(sessionID string) ([]types.TrafficRecord, error) {
	rows, err := s.db.Query(`SELECT seq,method,url,status_code,request_body,response_body,page FROM traffic_records WHERE session_id=? ORDER BY seq ASC, id ASC`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]types.TrafficRecord, 0)
	for rows.Next() {
		var (
			e           loader.Entry
			seq         int
			reqS, respS string
		)
		if err := rows.Scan(&seq, &e.Method, &e.URL, &e.Status, &reqS, &respS, &e.Page); err != nil {
			return nil, err
		}
		if e.RequestBody, err = types.Parse([]byte(reqS)); err != nil {
			return nil, fmt.Errorf("record %d request body: %w", seq, err)
		}
		if e.ResponseBody, err = types.Parse([]byte(respS)); err != nil {
			return nil, fmt.Errorf("record %d response body: %w", seq, err)
		}
		r, err := loader.Normalize(e)
		if err != nil {
			return nil, fmt.Errorf("record %d: %w", seq, err)
		}
		r.Seq = seq
		out = append(out, r)
	}
	return out, rows.Err()
}

// SaveCatalog replaces the routes of the session and marks it analyzed.
func (s *SQLiteStore) SaveCatalog(sessionID string, catalog *types.Catalog) error {
	if catalog == nil {
		return errors.New("catalog is nil")
	}
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if _, err := tx.Exec(`DELETE FROM routes WHERE session_id=?`, sessionID); err != nil {
		return err
	}
	stmt, err := tx.Prepare(`INSERT INTO routes(session_id,seq,method,template,summary_json) VALUES(?,?,?,?,?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()
	for i, r := range catalog.Routes {
		data, err := json.Marshal(r)
		if err != nil {
			return fmt.Errorf("encode route %s: %w", r.Key(), err)
		}
		if _, err := stmt.Exec(sessionID, i, r.Method, r.Template, string(data)); err != nil {
			return err
		}
	}
	res, err := tx.Exec(`UPDATE sessions SET route_count=?, record_count=?, host=?, status=?, updated_at=? WHERE id=?`,
		len(catalog.Routes), catalog.Records, catalog.Host(), StatusAnalyzed, time.Now().UTC(), sessionID)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return tx.Commit()
}

func (s *SQLiteStore) GetCatalog(sessionID string) (*types.Catalog, error) {
	sess, err := s.GetSession(sessionID)
	if err != nil {
		return nil, err
	}
	rows, err := s.db.Query(`SELECT summary_json FROM routes WHERE session_id=? ORDER BY seq ASC`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	catalog := &types.Catalog{Source: sess.Source, Records: sess.RecordCount, Routes: []types.RouteSummary{}}
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, err
		}
		var r types.RouteSummary
		if err := json.Unmarshal([]byte(raw), &r); err != nil {
			return nil, fmt.Errorf("decode route: %w", err)
		}
		catalog.Routes = append(catalog.Routes, r)
	}
	return catalog, rows.Err()
}

func (s *SQLiteStore) Close() error {
	if s.db == nil {
		return errors.New("store is nil")
	}
	return s.db.Close()
}
