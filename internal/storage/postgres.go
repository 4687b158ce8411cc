package storage

import (
	"context"
	"database/sql"
	"embed"
	"fmt"

	"github.com/lib/pq"
	"github.com/xaenox/linkstash/internal/models"
)

//go:embed migrations.sql
var migrations embed.FS

type DatabaseConfig struct {
	Host        string
	Port        int
	User        string
	Password    string
	DBName      string
	SSLMode     string
	UseInMemory bool
}

type PostgresStorage struct {
	db *sql.DB
}

func NewPostgresStorage(config DatabaseConfig) (*PostgresStorage, error) {
	connStr := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		config.Host, config.Port, config.User, config.Password, config.DBName, config.SSLMode)

	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, fmt.Errorf("error opening database: %v", err)
	}

	// Test the connection
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("error connecting to the database: %v", err)
	}

	storage := &PostgresStorage{db: db}

	if err := storage.initializeSchema(); err != nil {
		return nil, fmt.Errorf("error initializing database schema: %v", err)
	}

	return storage, nil
}

func (s *PostgresStorage) initializeSchema() error {
	migrationSQL, err := migrations.ReadFile("migrations.sql")
	if err != nil {
		return fmt.Errorf("error reading migrations file: %v", err)
	}

	_, err = s.db.Exec(string(migrationSQL))
	if err != nil {
		return fmt.Errorf("error executing migrations: %v", err)
	}

	return nil
}

const noteColumns = `id, owner_id, note_type, status, attempts, title, url, raw_input,
	raw_content, summary, tags, thumbnail, source_platform, failure_reason,
	user_titled, created_at, updated_at`

func scanNote(row interface{ Scan(...any) error }) (*models.Note, error) {
	note := &models.Note{}
	err := row.Scan(
		&note.ID,
		&note.OwnerID,
		&note.Type,
		&note.Status,
		&note.Attempts,
		&note.Title,
		&note.URL,
		&note.RawInput,
		&note.RawContent,
		&note.Summary,
		pq.Array(&note.Tags),
		&note.Thumbnail,
		&note.SourcePlatform,
		&note.FailureReason,
		&note.UserTitled,
		&note.CreatedAt,
		&note.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return note, nil
}

func (s *PostgresStorage) CreateNote(ctx context.Context, note *models.Note) error {
	query := `
		INSERT INTO notes (id, owner_id, note_type, status, attempts, title, url,
			raw_input, raw_content, summary, tags, thumbnail, source_platform,
			failure_reason, user_titled)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		RETURNING created_at, updated_at`

	err := s.db.QueryRowContext(ctx, query,
		note.ID,
		note.OwnerID,
		note.Type,
		note.Status,
		note.Attempts,
		note.Title,
		note.URL,
		note.RawInput,
		note.RawContent,
		note.Summary,
		pq.Array(note.Tags),
		note.Thumbnail,
		note.SourcePlatform,
		note.FailureReason,
		note.UserTitled,
	).Scan(&note.CreatedAt, &note.UpdatedAt)

	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code.Name() == "unique_violation" {
			return ErrConflict
		}
		return fmt.Errorf("error creating note: %v", err)
	}

	return nil
}

func (s *PostgresStorage) GetNote(ctx context.Context, ownerID, id string) (*models.Note, error) {
	query := fmt.Sprintf(`SELECT %s FROM notes WHERE id = $1 AND owner_id = $2`, noteColumns)

	note, err := scanNote(s.db.QueryRowContext(ctx, query, id, ownerID))
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("error querying note: %v", err)
	}
	return note, nil
}

func (s *PostgresStorage) ListNotes(ctx context.Context, ownerID string, opts ListOptions) ([]*models.Note, int, error) {
	page := opts.Page
	if page < 1 {
		page = 1
	}
	limit := opts.Limit
	if limit < 1 {
		limit = 50
	}
	offset := (page - 1) * limit

	where := `owner_id = $1`
	args := []any{ownerID}
	if opts.Tag != "" {
		where += ` AND $2 = ANY(tags)`
		args = append(args, opts.Tag)
	}

	var total int
	countQuery := fmt.Sprintf(`SELECT COUNT(*) FROM notes WHERE %s`, where)
	if err := s.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("error counting notes: %v", err)
	}

	query := fmt.Sprintf(`SELECT %s FROM notes WHERE %s ORDER BY created_at DESC LIMIT %d OFFSET %d`,
		noteColumns, where, limit, offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("error querying notes: %v", err)
	}
	defer rows.Close()

	notes, err := collectNotes(rows)
	if err != nil {
		return nil, 0, err
	}
	return notes, total, nil
}

func (s *PostgresStorage) ListAllNotes(ctx context.Context, ownerID string, limit int) ([]*models.Note, error) {
	query := fmt.Sprintf(`SELECT %s FROM notes WHERE owner_id = $1 ORDER BY created_at DESC`, noteColumns)
	if limit > 0 {
		query += fmt.Sprintf(` LIMIT %d`, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, ownerID)
	if err != nil {
		return nil, fmt.Errorf("error querying notes: %v", err)
	}
	defer rows.Close()

	return collectNotes(rows)
}

func (s *PostgresStorage) DeleteNote(ctx context.Context, ownerID, id string) error {
	result, err := s.db.ExecContext(ctx,
		`DELETE FROM notes WHERE id = $1 AND owner_id = $2`, id, ownerID)
	if err != nil {
		return fmt.Errorf("error deleting note: %v", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("error getting rows affected: %v", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStorage) InsertIfAbsent(ctx context.Context, note *models.Note) (bool, error) {
	query := `
		INSERT INTO notes (id, owner_id, note_type, status, attempts, title, url,
			raw_input, raw_content, summary, tags, thumbnail, source_platform,
			failure_reason, user_titled, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
		ON CONFLICT (id) DO NOTHING`

	result, err := s.db.ExecContext(ctx, query,
		note.ID,
		note.OwnerID,
		note.Type,
		note.Status,
		note.Attempts,
		note.Title,
		note.URL,
		note.RawInput,
		note.RawContent,
		note.Summary,
		pq.Array(note.Tags),
		note.Thumbnail,
		note.SourcePlatform,
		note.FailureReason,
		note.UserTitled,
		note.CreatedAt,
	)
	if err != nil {
		return false, fmt.Errorf("error importing note: %v", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("error getting rows affected: %v", err)
	}
	return affected > 0, nil
}

func (s *PostgresStorage) ClaimNote(ctx context.Context, id string) (*models.Note, error) {
	query := fmt.Sprintf(`
		UPDATE notes
		SET status = 'processing', attempts = attempts + 1, updated_at = NOW()
		WHERE id = $1 AND status = 'pending'
		RETURNING %s`, noteColumns)

	note, err := scanNote(s.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, s.classifyMiss(ctx, id)
	}
	if err != nil {
		return nil, fmt.Errorf("error claiming note: %v", err)
	}
	return note, nil
}

func (s *PostgresStorage) CompleteNote(ctx context.Context, id string, enr models.Enrichment) error {
	query := `
		UPDATE notes
		SET status = 'ready', title = $2, summary = $3, tags = $4, thumbnail = $5,
			raw_content = $6, source_platform = $7, failure_reason = '', updated_at = NOW()
		WHERE id = $1 AND status = 'processing'`

	return s.conditionalUpdate(ctx, id, query,
		id, enr.Title, enr.Summary, pq.Array(enr.Tags), enr.Thumbnail,
		enr.RawContent, enr.SourcePlatform)
}

func (s *PostgresStorage) FailNote(ctx context.Context, id string, reason string) error {
	query := `
		UPDATE notes
		SET status = 'failed', failure_reason = $2, updated_at = NOW()
		WHERE id = $1 AND status = 'processing'`

	return s.conditionalUpdate(ctx, id, query, id, reason)
}

func (s *PostgresStorage) ReleaseNote(ctx context.Context, id string) error {
	query := `
		UPDATE notes
		SET status = 'pending', updated_at = NOW()
		WHERE id = $1 AND status = 'processing'`

	return s.conditionalUpdate(ctx, id, query, id)
}

func (s *PostgresStorage) UnfinishedNotes(ctx context.Context) ([]string, error) {
	// Notes stuck in processing belong to an interrupted run; no worker in
	// this process can hold a claim yet.
	_, err := s.db.ExecContext(ctx,
		`UPDATE notes SET status = 'pending', updated_at = NOW() WHERE status = 'processing'`)
	if err != nil {
		return nil, fmt.Errorf("error resetting stuck notes: %v", err)
	}

	rows, err := s.db.QueryContext(ctx, `SELECT id FROM notes WHERE status = 'pending'`)
	if err != nil {
		return nil, fmt.Errorf("error querying unfinished notes: %v", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("error scanning note id: %v", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (s *PostgresStorage) Close() error {
	return s.db.Close()
}

func (s *PostgresStorage) conditionalUpdate(ctx context.Context, id, query string, args ...any) error {
	result, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("error updating note: %v", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("error getting rows affected: %v", err)
	}
	if affected == 0 {
		return s.classifyMiss(ctx, id)
	}
	return nil
}

// classifyMiss distinguishes a deleted note from one in the wrong state after
// a conditional update matched no rows.
func (s *PostgresStorage) classifyMiss(ctx context.Context, id string) error {
	var exists bool
	err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM notes WHERE id = $1)`, id).Scan(&exists)
	if err != nil {
		return fmt.Errorf("error checking note existence: %v", err)
	}
	if !exists {
		return ErrNotFound
	}
	return ErrNotClaimable
}

func collectNotes(rows *sql.Rows) ([]*models.Note, error) {
	notes := []*models.Note{}
	for rows.Next() {
		note, err := scanNote(rows)
		if err != nil {
			return nil, fmt.Errorf("error scanning note: %v", err)
		}
		notes = append(notes, note)
	}
	return notes, rows.Err()
}
