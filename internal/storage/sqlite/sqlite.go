// Package sqlite provides a SQLite-backed implementation of the
// storage.Storage interface using Go's standard database/sql package.
//
// Importing github.com/mattn/go-sqlite3 registers the "sqlite3" driver
// with database/sql; sqlite3.Error is also used to recognise
// unique-constraint violations.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/mattn/go-sqlite3"

	"github.com/aanand-mishra/studyabroad-api/internal/config"
	"github.com/aanand-mishra/studyabroad-api/internal/storage"
	"github.com/aanand-mishra/studyabroad-api/internal/types"
)

// SQLite is the concrete implementation of storage.Storage.
// A single *sql.DB is safe for concurrent use by multiple goroutines.
type SQLite struct {
	Db *sql.DB
}

var _ storage.Storage = (*SQLite)(nil)

const schema = `
CREATE TABLE IF NOT EXISTS applicants (
	id                INTEGER PRIMARY KEY AUTOINCREMENT,
	email             TEXT     NOT NULL UNIQUE,
	password_hash     TEXT     NOT NULL,
	name              TEXT     NOT NULL,
	dob               DATETIME NOT NULL,
	gender            TEXT     NOT NULL,
	phone_number      TEXT     NOT NULL,
	id_card_number    TEXT     NOT NULL,
	city              TEXT     NOT NULL,
	district          TEXT     NOT NULL,
	ward              TEXT     NOT NULL,
	address_line      TEXT     NOT NULL,
	country           TEXT     NOT NULL,
	school_name       TEXT     NOT NULL,
	program_name      TEXT     NOT NULL,
	degree_type       TEXT     NOT NULL,
	certificate_type  TEXT     NOT NULL,
	certificate_image TEXT     NOT NULL DEFAULT '',
	grade_type        TEXT     NOT NULL,
	grade_score       REAL     NOT NULL,
	created_at        DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS chat_messages (
	seq        INTEGER PRIMARY KEY AUTOINCREMENT,
	id         TEXT     NOT NULL UNIQUE,
	client_id  TEXT     NOT NULL,
	user_id    TEXT     NOT NULL DEFAULT '',
	role       TEXT     NOT NULL,
	name       TEXT     NOT NULL DEFAULT '',
	message    TEXT     NOT NULL,
	created_at DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_chat_messages_client ON chat_messages (client_id, seq);
`

// New opens the SQLite database at cfg.StoragePath, creating its directory
// and tables if they do not exist yet.
func New(cfg *config.Config) (*SQLite, error) {
	if err := os.MkdirAll(filepath.Dir(cfg.StoragePath), 0o755); err != nil {
		return nil, fmt.Errorf("sqlite.New: create storage dir: %w", err)
	}

	db, err := sql.Open("sqlite3", cfg.StoragePath)
	if err != nil {
		return nil, fmt.Errorf("sqlite.New: open db: %w", err)
	}

	// SQLite allows one writer at a time; a single connection turns
	// concurrent writes into queued ones instead of "database is locked".
	db.SetMaxOpenConns(1)

	// CREATE ... IF NOT EXISTS makes this a no-op on later startups.
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite.New: create tables: %w", err)
	}

	return &SQLite{Db: db}, nil
}

// Close releases the connection pool.
func (s *SQLite) Close() error {
	return s.Db.Close()
}

// isUnique reports whether err is a UNIQUE constraint violation.
func isUnique(err error) bool {
	var se sqlite3.Error
	return errors.As(err, &se) && se.ExtendedCode == sqlite3.ErrConstraintUnique
}

const applicantColumns = `id, email, password_hash, name, dob, gender, phone_number, id_card_number,
	city, district, ward, address_line, country, school_name, program_name, degree_type,
	certificate_type, certificate_image, grade_type, grade_score, created_at`

// scanner is implemented by both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanApplicant(row scanner) (types.Applicant, error) {
	var a types.Applicant
	err := row.Scan(
		&a.ID, &a.Email, &a.PasswordHash, &a.Name, &a.DOB, &a.Gender, &a.PhoneNumber, &a.IDCardNumber,
		&a.City, &a.District, &a.Ward, &a.AddressLine, &a.Country, &a.SchoolName, &a.ProgramName, &a.DegreeType,
		&a.CertificateType, &a.CertificateImage, &a.GradeType, &a.GradeScore, &a.CreatedAt,
	)
	return a, err
}

// CreateApplicant inserts a new row into the applicants table.
// Placeholders (?) keep user input out of the SQL text.
func (s *SQLite) CreateApplicant(ctx context.Context, a types.Applicant) (int64, error) {
	stmt, err := s.Db.PrepareContext(ctx, `
		INSERT INTO applicants (email, password_hash, name, dob, gender, phone_number, id_card_number,
			city, district, ward, address_line, country, school_name, program_name, degree_type,
			certificate_type, certificate_image, grade_type, grade_score, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return 0, fmt.Errorf("CreateApplicant: prepare: %w", err)
	}
	defer stmt.Close()

	result, err := stmt.ExecContext(ctx,
		a.Email, a.PasswordHash, a.Name, a.DOB, a.Gender, a.PhoneNumber, a.IDCardNumber,
		a.City, a.District, a.Ward, a.AddressLine, a.Country, a.SchoolName, a.ProgramName, a.DegreeType,
		a.CertificateType, a.CertificateImage, a.GradeType, a.GradeScore, a.CreatedAt,
	)
	if err != nil {
		if isUnique(err) {
			return 0, fmt.Errorf("CreateApplicant: %s: %w", a.Email, storage.ErrDuplicate)
		}
		return 0, fmt.Errorf("CreateApplicant: exec: %w", err)
	}

	lastID, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("CreateApplicant: last insert id: %w", err)
	}

	return lastID, nil
}

func (s *SQLite) getApplicant(ctx context.Context, op, where string, arg any) (types.Applicant, error) {
	stmt, err := s.Db.PrepareContext(ctx, "SELECT "+applicantColumns+" FROM applicants WHERE "+where+" LIMIT 1")
	if err != nil {
		return types.Applicant{}, fmt.Errorf("%s: prepare: %w", op, err)
	}
	defer stmt.Close()

	a, err := scanApplicant(stmt.QueryRowContext(ctx, arg))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.Applicant{}, fmt.Errorf("%s: %v: %w", op, arg, storage.ErrNotFound)
		}
		return types.Applicant{}, fmt.Errorf("%s: scan: %w", op, err)
	}

	return a, nil
}

func (s *SQLite) GetApplicantByID(ctx context.Context, id int64) (types.Applicant, error) {
	return s.getApplicant(ctx, "GetApplicantByID", "id = ?", id)
}

func (s *SQLite) GetApplicantByEmail(ctx context.Context, email string) (types.Applicant, error) {
	return s.getApplicant(ctx, "GetApplicantByEmail", "email = ?", email)
}

// GetApplicants returns all applicant rows, oldest first.
func (s *SQLite) GetApplicants(ctx context.Context) ([]types.Applicant, error) {
	stmt, err := s.Db.PrepareContext(ctx, "SELECT "+applicantColumns+" FROM applicants ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("GetApplicants: prepare: %w", err)
	}
	defer stmt.Close()

	rows, err := stmt.QueryContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("GetApplicants: query: %w", err)
	}
	defer rows.Close()

	// non-nil so the JSON encodes as [] rather than null
	applicants := make([]types.Applicant, 0)
	for rows.Next() {
		a, err := scanApplicant(rows)
		if err != nil {
			return nil, fmt.Errorf("GetApplicants: scan row: %w", err)
		}
		applicants = append(applicants, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("GetApplicants: rows iteration: %w", err)
	}

	return applicants, nil
}

// SaveChatMessage appends a message to its conversation.
func (s *SQLite) SaveChatMessage(ctx context.Context, m types.ChatMessage) error {
	stmt, err := s.Db.PrepareContext(ctx, `
		INSERT INTO chat_messages (id, client_id, user_id, role, name, message, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("SaveChatMessage: prepare: %w", err)
	}
	defer stmt.Close()

	_, err = stmt.ExecContext(ctx, m.ID, m.ClientID, m.UserID, m.Role, m.Name, m.Message, m.CreatedAt)
	if err != nil {
		if isUnique(err) {
			return fmt.Errorf("SaveChatMessage: %s: %w", m.ID, storage.ErrDuplicate)
		}
		return fmt.Errorf("SaveChatMessage: exec: %w", err)
	}

	return nil
}

// GetChatMessages returns a conversation in insertion order. The order is
// by seq, not created_at: arrival order is authoritative.
func (s *SQLite) GetChatMessages(ctx context.Context, clientID string) ([]types.ChatMessage, error) {
	stmt, err := s.Db.PrepareContext(ctx, `
		SELECT id, client_id, user_id, role, name, message, created_at
		FROM chat_messages WHERE client_id = ? ORDER BY seq
	`)
	if err != nil {
		return nil, fmt.Errorf("GetChatMessages: prepare: %w", err)
	}
	defer stmt.Close()

	rows, err := stmt.QueryContext(ctx, clientID)
	if err != nil {
		return nil, fmt.Errorf("GetChatMessages: query: %w", err)
	}
	defer rows.Close()

	messages := make([]types.ChatMessage, 0)
	for rows.Next() {
		var m types.ChatMessage
		if err := rows.Scan(&m.ID, &m.ClientID, &m.UserID, &m.Role, &m.Name, &m.Message, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("GetChatMessages: scan row: %w", err)
		}
		messages = append(messages, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("GetChatMessages: rows iteration: %w", err)
	}

	return messages, nil
}
