package storage

import (
	"database/sql"
	"embed"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Store wraps a SQLite database holding meeting records.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) a SQLite database in dataDir and runs pending migrations.
// Pass ":memory:" as dataDir for an in-memory database (used by tests).
func Open(dataDir string) (*Store, error) {
	var dsn string
	if dataDir == ":memory:" {
		dsn = ":memory:"
	} else {
		if err := os.MkdirAll(dataDir, 0o755); err != nil {
			return nil, fmt.Errorf("creating data directory: %w", err)
		}
		dsn = filepath.Join(dataDir, "speakinsights.db")
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	// Limit to single connection to avoid "database is locked" errors.
	db.SetMaxOpenConns(1)

	// Set busy timeout so concurrent access waits briefly instead of failing immediately.
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}

	// Enable WAL mode for better concurrent read performance.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting journal mode: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return s, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate reads embedded SQL migration files and applies any that haven't been run yet.
func (s *Store) migrate() error {
	// Ensure schema_version table exists (bootstrap).
	if _, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS schema_version (
		version INTEGER PRIMARY KEY,
		applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
	)`); err != nil {
		return fmt.Errorf("creating schema_version table: %w", err)
	}

	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("reading migrations directory: %w", err)
	}

	// Sort by filename to guarantee ascending order.
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name() < entries[j].Name()
	})

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}

		version, err := parseMigrationVersion(entry.Name())
		if err != nil {
			return err
		}

		// Check if already applied.
		var exists int
		if err := s.db.QueryRow("SELECT COUNT(*) FROM schema_version WHERE version = ?", version).Scan(&exists); err != nil {
			return fmt.Errorf("checking migration %d: %w", version, err)
		}
		if exists > 0 {
			continue
		}

		content, err := migrationsFS.ReadFile("migrations/" + entry.Name())
		if err != nil {
			return fmt.Errorf("reading migration %s: %w", entry.Name(), err)
		}

		tx, err := s.db.Begin()
		if err != nil {
			return fmt.Errorf("beginning transaction for migration %d: %w", version, err)
		}

		if _, err := tx.Exec(string(content)); err != nil {
			tx.Rollback()
			return fmt.Errorf("applying migration %d: %w", version, err)
		}

		if _, err := tx.Exec("INSERT INTO schema_version (version) VALUES (?)", version); err != nil {
			tx.Rollback()
			return fmt.Errorf("recording migration %d: %w", version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("committing migration %d: %w", version, err)
		}
	}

	return nil
}

func parseMigrationVersion(filename string) (int, error) {
	var version int
	if _, err := fmt.Sscanf(filename, "%d_", &version); err != nil {
		return 0, fmt.Errorf("parsing migration version from %q: %w", filename, err)
	}
	return version, nil
}

// AppliedMigrations returns the list of applied migration versions in ascending order.
func (s *Store) AppliedMigrations() ([]int, error) {
	rows, err := s.db.Query("SELECT version FROM schema_version ORDER BY version ASC")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var versions []int
	for rows.Next() {
		var v int
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		versions = append(versions, v)
	}
	return versions, rows.Err()
}

const meetingColumns = `id, title, date, audio_filename, transcript, formatted_transcript,
	transcription_metadata, summary, sentiment, sentiment_score, action_items, created_at`

// CreateMeeting inserts a new meeting and returns its assigned id.
// The insert is a single statement: either the full record is written or
// nothing is. Date and CreatedAt default to the current time when zero.
func (s *Store) CreateMeeting(m Meeting) (int64, error) {
	now := time.Now().UTC()
	if m.Date.IsZero() {
		m.Date = now
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = now
	}

	items := m.ActionItems
	if items == nil {
		items = []string{}
	}
	itemsJSON, err := json.Marshal(items)
	if err != nil {
		return 0, fmt.Errorf("marshaling action items: %w", err)
	}

	var metaJSON sql.NullString
	if m.Metadata != nil {
		b, err := json.Marshal(m.Metadata)
		if err != nil {
			return 0, fmt.Errorf("marshaling transcription metadata: %w", err)
		}
		metaJSON = sql.NullString{String: string(b), Valid: true}
	}

	res, err := s.db.Exec(`
		INSERT INTO meetings (title, date, audio_filename, transcript, formatted_transcript,
			transcription_metadata, summary, sentiment, sentiment_score, action_items, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		m.Title, m.Date.UTC().Format(time.RFC3339), m.AudioFilename, m.Transcript,
		m.FormattedTranscript, metaJSON, nullString(m.Summary), nullString(m.Sentiment),
		nullFloat(m.SentimentScore), string(itemsJSON), m.CreatedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return 0, fmt.Errorf("inserting meeting: %w", err)
	}
	return res.LastInsertId()
}

// GetMeeting returns the meeting with the given id, or ErrNotFound.
func (s *Store) GetMeeting(id int64) (Meeting, error) {
	row := s.db.QueryRow(`SELECT `+meetingColumns+` FROM meetings WHERE id = ?`, id)
	m, err := scanMeeting(row)
	if err == sql.ErrNoRows {
		return Meeting{}, ErrNotFound
	}
	return m, err
}

// ListMeetings returns up to limit meetings starting at offset, most recent
// first. Records with identical created_at are ordered by id descending so
// the ordering is stable.
func (s *Store) ListMeetings(limit, offset int) ([]Meeting, error) {
	rows, err := s.db.Query(`
		SELECT `+meetingColumns+` FROM meetings
		ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?`, limit, offset,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []Meeting
	for rows.Next() {
		m, err := scanMeeting(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, m)
	}
	return results, rows.Err()
}

// SearchMeetings returns up to limit meetings whose title or transcript
// contains query, case-insensitively, most recent first.
func (s *Store) SearchMeetings(query string, limit int) ([]Meeting, error) {
	pattern := "%" + strings.ToLower(query) + "%"
	rows, err := s.db.Query(`
		SELECT `+meetingColumns+` FROM meetings
		WHERE lower(title) LIKE ? OR lower(transcript) LIKE ?
		ORDER BY created_at DESC, id DESC LIMIT ?`, pattern, pattern, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []Meeting
	for rows.Next() {
		m, err := scanMeeting(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, m)
	}
	return results, rows.Err()
}

// CountMeetings returns the total number of stored meetings.
func (s *Store) CountMeetings() (int, error) {
	var n int
	err := s.db.QueryRow("SELECT COUNT(*) FROM meetings").Scan(&n)
	return n, err
}

// UpdateAnalysis overwrites the analysis fields of an existing meeting.
// Transcript, audio_filename, created_at and id are left untouched.
// Returns ErrNotFound when no meeting has the given id.
func (s *Store) UpdateAnalysis(id int64, summary, sentiment string, score float64, actionItems []string) error {
	if actionItems == nil {
		actionItems = []string{}
	}
	itemsJSON, err := json.Marshal(actionItems)
	if err != nil {
		return fmt.Errorf("marshaling action items: %w", err)
	}

	res, err := s.db.Exec(`
		UPDATE meetings SET summary = ?, sentiment = ?, sentiment_score = ?, action_items = ?
		WHERE id = ?`,
		summary, sentiment, score, string(itemsJSON), id,
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMeeting(row rowScanner) (Meeting, error) {
	var m Meeting
	var date, createdAt, itemsJSON string
	var metaJSON, summary, sentiment sql.NullString
	var score sql.NullFloat64

	err := row.Scan(&m.ID, &m.Title, &date, &m.AudioFilename, &m.Transcript,
		&m.FormattedTranscript, &metaJSON, &summary, &sentiment, &score,
		&itemsJSON, &createdAt)
	if err != nil {
		return Meeting{}, err
	}

	if m.Date, err = time.Parse(time.RFC3339, date); err != nil {
		return Meeting{}, fmt.Errorf("parsing date: %w", err)
	}
	if m.CreatedAt, err = time.Parse(time.RFC3339, createdAt); err != nil {
		return Meeting{}, fmt.Errorf("parsing created_at: %w", err)
	}
	if err := json.Unmarshal([]byte(itemsJSON), &m.ActionItems); err != nil {
		return Meeting{}, fmt.Errorf("parsing action items: %w", err)
	}
	if metaJSON.Valid {
		var meta TranscriptionMeta
		if err := json.Unmarshal([]byte(metaJSON.String), &meta); err != nil {
			return Meeting{}, fmt.Errorf("parsing transcription metadata: %w", err)
		}
		m.Metadata = &meta
	}
	if summary.Valid {
		m.Summary = &summary.String
	}
	if sentiment.Valid {
		m.Sentiment = &sentiment.String
	}
	if score.Valid {
		m.SentimentScore = &score.Float64
	}
	return m, nil
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func nullFloat(f *float64) sql.NullFloat64 {
	if f == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *f, Valid: true}
}
