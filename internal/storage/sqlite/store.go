// Package sqlite persists finalized transcripts in a local SQLite database.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	_ "modernc.org/sqlite"

	"interview-transcription-service/internal/models"
	"interview-transcription-service/internal/observability/logging"
)

// ErrNotFound is returned when no transcript exists for a session.
var ErrNotFound = errors.New("transcript not found")

// timeLayout is fixed-width so stored timestamps sort as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// Store implements transcript.Saver on SQLite.
type Store struct {
	db     *sql.DB
	logger zerolog.Logger
}

// Open opens (or creates) the database at path and initializes the schema.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// SQLite allows one writer
	db.SetMaxOpenConns(1)

	s := &Store{db: db, logger: logging.WithComponent("sqlite")}
	if err := s.initDB(); err != nil {
		db.Close()
		return nil, err
	}
	s.logger.Info().Str("path", path).Msg("Transcript store opened")
	return s, nil
}

// initDB initializes the database tables
func (s *Store) initDB() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS transcripts (
			session_id TEXT PRIMARY KEY,
			case_id TEXT NOT NULL,
			investigator_language TEXT,
			participant_language TEXT,
			language_mode TEXT,
			session_type TEXT,
			started_at TIMESTAMP NOT NULL,
			ended_at TIMESTAMP NOT NULL,
			duration_ms INTEGER NOT NULL,
			message_count INTEGER NOT NULL
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create transcripts table: %w", err)
	}

	_, err = s.db.Exec(`
		CREATE TABLE IF NOT EXISTS utterances (
			session_id TEXT NOT NULL,
			sequence INTEGER NOT NULL,
			source TEXT NOT NULL,
			speaker TEXT NOT NULL,
			original_text TEXT NOT NULL,
			original_language TEXT,
			investigator_display TEXT NOT NULL,
			participant_display TEXT NOT NULL,
			error TEXT,
			confidence REAL,
			created_at TIMESTAMP NOT NULL,
			PRIMARY KEY (session_id, sequence)
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create utterances table: %w", err)
	}

	_, err = s.db.Exec(`CREATE INDEX IF NOT EXISTS idx_transcripts_case_id ON transcripts(case_id)`)
	if err != nil {
		return fmt.Errorf("failed to create case_id index: %w", err)
	}
	return nil
}

// Save stores a transcript and its utterances in one transaction.
func (s *Store) Save(ctx context.Context, t models.Transcript) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	md := t.Metadata
	_, err = tx.ExecContext(ctx,
		`INSERT INTO transcripts
		(session_id, case_id, investigator_language, participant_language, language_mode, session_type, started_at, ended_at, duration_ms, message_count)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.SessionID,
		t.CaseID,
		md.InvestigatorLanguage,
		md.ParticipantLanguage,
		string(md.LanguageMode),
		string(md.SessionType),
		md.StartedAt.UTC().Format(timeLayout),
		md.EndedAt.UTC().Format(timeLayout),
		md.DurationMs,
		md.MessageCount,
	)
	if err != nil {
		return fmt.Errorf("failed to insert transcript: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO utterances
		(session_id, sequence, source, speaker, original_text, original_language, investigator_display, participant_display, error, confidence, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare utterance insert: %w", err)
	}
	defer stmt.Close()

	for _, u := range t.Utterances {
		_, err := stmt.ExecContext(ctx,
			t.SessionID,
			u.Sequence,
			string(u.Source),
			u.Speaker,
			u.OriginalText,
			u.OriginalLanguage,
			u.InvestigatorDisplay,
			u.ParticipantDisplay,
			u.Error,
			u.Confidence,
			u.Timestamp.UTC().Format(timeLayout),
		)
		if err != nil {
			return fmt.Errorf("failed to insert utterance %d: %w", u.Sequence, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transcript: %w", err)
	}

	s.logger.Info().
		Str("sessionId", t.SessionID).
		Str("caseId", t.CaseID).
		Int("messageCount", len(t.Utterances)).
		Msg("Transcript saved")
	return nil
}

// Get loads the transcript of a session.
func (s *Store) Get(ctx context.Context, sessionID string) (models.Transcript, error) {
	t := models.Transcript{EventType: models.EventTypeTranscript, SessionID: sessionID}
	var (
		mode, sessionType  string
		investigator, part sql.NullString
		startedAt, endedAt string
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT case_id, investigator_language, participant_language, language_mode, session_type, started_at, ended_at, duration_ms, message_count
		FROM transcripts WHERE session_id = ?`, sessionID,
	).Scan(&t.CaseID, &investigator, &part, &mode, &sessionType, &startedAt, &endedAt, &t.Metadata.DurationMs, &t.Metadata.MessageCount)
	if errors.Is(err, sql.ErrNoRows) {
		return t, ErrNotFound
	}
	if err != nil {
		return t, fmt.Errorf("failed to query transcript: %w", err)
	}

	t.Metadata.InvestigatorLanguage = investigator.String
	t.Metadata.ParticipantLanguage = part.String
	t.Metadata.LanguageMode = models.LanguageMode(mode)
	t.Metadata.SessionType = models.SessionType(sessionType)
	t.Metadata.StartedAt, _ = time.Parse(time.RFC3339Nano, startedAt)
	t.Metadata.EndedAt, _ = time.Parse(time.RFC3339Nano, endedAt)

	t.Utterances, err = s.utterances(ctx, sessionID)
	if err != nil {
		return t, err
	}
	return t, nil
}

func (s *Store) utterances(ctx context.Context, sessionID string) ([]models.RenderedUtterance, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT sequence, source, speaker, original_text, original_language, investigator_display, participant_display, error, confidence, created_at
		FROM utterances WHERE session_id = ? ORDER BY sequence`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query utterances: %w", err)
	}
	defer rows.Close()

	var out []models.RenderedUtterance
	for rows.Next() {
		u := models.RenderedUtterance{EventType: models.EventTypeUtterance, SessionID: sessionID}
		var (
			source, createdAt string
			lang, errMsg      sql.NullString
			confidence        sql.NullFloat64
		)
		if err := rows.Scan(&u.Sequence, &source, &u.Speaker, &u.OriginalText, &lang, &u.InvestigatorDisplay, &u.ParticipantDisplay, &errMsg, &confidence, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan utterance: %w", err)
		}
		u.Source = models.Source(source)
		u.OriginalLanguage = lang.String
		u.Error = errMsg.String
		u.Confidence = confidence.Float64
		u.Timestamp, _ = time.Parse(time.RFC3339Nano, createdAt)
		out = append(out, u)
	}
	return out, rows.Err()
}

// SessionsForCase lists the session IDs saved for a case, oldest first.
func (s *Store) SessionsForCase(ctx context.Context, caseID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT session_id FROM transcripts WHERE case_id = ? ORDER BY started_at`, caseID)
	if err != nil {
		return nil, fmt.Errorf("failed to query sessions: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}
