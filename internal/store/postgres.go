package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
)

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) DB() *sql.DB {
	return s.db
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.SQLState() == "23505"
}

func (s *PostgresStore) CreateUser(ctx context.Context, user User) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (id, email, display_name, password_hash)
		VALUES ($1, $2, $3, $4)
	`, user.ID, user.Email, user.DisplayName, user.PasswordHash)
	if isUniqueViolation(err) {
		return ErrConflict
	}
	if err != nil {
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetUserByEmail(ctx context.Context, email string) (User, error) {
	var user User
	err := s.db.QueryRowContext(ctx, `
		SELECT id, email, display_name, password_hash, created_at
		FROM users
		WHERE email=$1
	`, email).Scan(&user.ID, &user.Email, &user.DisplayName, &user.PasswordHash, &user.CreatedAt)
	if err != nil {
		return User{}, err
	}
	return user, nil
}

func (s *PostgresStore) GetUserByID(ctx context.Context, userID string) (User, error) {
	var user User
	err := s.db.QueryRowContext(ctx, `
		SELECT id, email, display_name, password_hash, created_at
		FROM users
		WHERE id=$1
	`, userID).Scan(&user.ID, &user.Email, &user.DisplayName, &user.PasswordHash, &user.CreatedAt)
	if err != nil {
		return User{}, err
	}
	return user, nil
}

func (s *PostgresStore) SaveRefreshSession(ctx context.Context, tokenHash, userID string, expiresAt time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO refresh_sessions (token_hash, user_id, expires_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (token_hash) DO UPDATE SET user_id=EXCLUDED.user_id, expires_at=EXCLUDED.expires_at, revoked_at=NULL
	`, tokenHash, userID, expiresAt)
	if err != nil {
		return fmt.Errorf("save refresh session: %w", err)
	}
	return nil
}

func (s *PostgresStore) RevokeRefreshSession(ctx context.Context, tokenHash string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE refresh_sessions SET revoked_at=NOW() WHERE token_hash=$1`, tokenHash)
	if err != nil {
		return fmt.Errorf("revoke refresh session: %w", err)
	}
	return nil
}

func (s *PostgresStore) LookupRefreshSession(ctx context.Context, tokenHash string) (User, error) {
	const query = `
		SELECT u.id, u.email, u.display_name, u.created_at
		FROM refresh_sessions rs
		JOIN users u ON u.id = rs.user_id
		WHERE rs.token_hash = $1
			AND rs.revoked_at IS NULL
			AND rs.expires_at > NOW()
	`
	var user User
	err := s.db.QueryRowContext(ctx, query, tokenHash).Scan(&user.ID, &user.Email, &user.DisplayName, &user.CreatedAt)
	if err != nil {
		return User{}, err
	}
	return user, nil
}

func (s *PostgresStore) RevokeAccessToken(ctx context.Context, jti string, exp time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO revoked_access_tokens (jti, expires_at)
		VALUES ($1, $2)
		ON CONFLICT (jti) DO NOTHING
	`, jti, exp)
	if err != nil {
		return fmt.Errorf("revoke access token: %w", err)
	}
	return nil
}

func (s *PostgresStore) IsAccessTokenRevoked(ctx context.Context, jti string) (bool, error) {
	var revoked bool
	err := s.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM revoked_access_tokens WHERE jti=$1)`, jti).Scan(&revoked)
	if err != nil {
		return false, fmt.Errorf("check revoked token: %w", err)
	}
	return revoked, nil
}

// InsertProject creates the project and the owner's membership in one
// transaction.
func (s *PostgresStore) InsertProject(ctx context.Context, project Project) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin project tx: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO projects (id, owner_id, name, description)
		VALUES ($1, $2, $3, $4)
	`, project.ID, project.OwnerID, project.Name, project.Description); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("insert project: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO project_members (project_id, user_id, role)
		VALUES ($1, $2, 'owner')
	`, project.ID, project.OwnerID); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("insert owner membership: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit project tx: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListProjectsForUser(ctx context.Context, userID string) ([]Project, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT p.id, p.owner_id, p.name, p.description, pm.role, p.created_at, p.updated_at
		FROM projects p
		JOIN project_members pm ON pm.project_id = p.id
		WHERE pm.user_id = $1
		ORDER BY p.updated_at DESC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("list projects: %w", err)
	}
	defer rows.Close()

	items := make([]Project, 0)
	for rows.Next() {
		var item Project
		if err := rows.Scan(&item.ID, &item.OwnerID, &item.Name, &item.Description, &item.Role, &item.CreatedAt, &item.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan project: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate projects: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) GetProject(ctx context.Context, projectID string) (Project, error) {
	var item Project
	err := s.db.QueryRowContext(ctx, `
		SELECT id, owner_id, name, description, created_at, updated_at
		FROM projects
		WHERE id=$1
	`, projectID).Scan(&item.ID, &item.OwnerID, &item.Name, &item.Description, &item.CreatedAt, &item.UpdatedAt)
	if err != nil {
		return Project{}, err
	}
	return item, nil
}

func (s *PostgresStore) UpdateProject(ctx context.Context, projectID, name, description string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE projects SET name=$2, description=$3, updated_at=NOW() WHERE id=$1
	`, projectID, name, description)
	if err != nil {
		return fmt.Errorf("update project: %w", err)
	}
	return nil
}

func (s *PostgresStore) DeleteProject(ctx context.Context, projectID string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM projects WHERE id=$1`, projectID); err != nil {
		return fmt.Errorf("delete project: %w", err)
	}
	return nil
}

// ProjectRole returns the user's role in the project, or sql.ErrNoRows when
// the user is not a member.
func (s *PostgresStore) ProjectRole(ctx context.Context, projectID, userID string) (string, error) {
	var role string
	err := s.db.QueryRowContext(ctx, `
		SELECT role FROM project_members WHERE project_id=$1 AND user_id=$2
	`, projectID, userID).Scan(&role)
	if err != nil {
		return "", err
	}
	return role, nil
}

func (s *PostgresStore) AddProjectMember(ctx context.Context, projectID, userID, role string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO project_members (project_id, user_id, role)
		VALUES ($1, $2, $3)
		ON CONFLICT (project_id, user_id) DO UPDATE SET role=EXCLUDED.role
	`, projectID, userID, role)
	if err != nil {
		return fmt.Errorf("upsert project member: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListDocuments(ctx context.Context, projectID string) ([]Document, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, project_id, title, content, type, updated_by_name, created_at, updated_at
		FROM documents
		WHERE project_id=$1
		ORDER BY updated_at DESC
	`, projectID)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	defer rows.Close()

	items := make([]Document, 0)
	for rows.Next() {
		var item Document
		if err := rows.Scan(&item.ID, &item.ProjectID, &item.Title, &item.Content, &item.Type, &item.UpdatedBy, &item.CreatedAt, &item.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan document: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate documents: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) GetDocument(ctx context.Context, documentID string) (Document, error) {
	var item Document
	err := s.db.QueryRowContext(ctx, `
		SELECT id, project_id, title, content, type, updated_by_name, created_at, updated_at
		FROM documents
		WHERE id=$1
	`, documentID).Scan(&item.ID, &item.ProjectID, &item.Title, &item.Content, &item.Type, &item.UpdatedBy, &item.CreatedAt, &item.UpdatedAt)
	if err != nil {
		return Document{}, err
	}
	return item, nil
}

func (s *PostgresStore) InsertDocument(ctx context.Context, item Document) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO documents (id, project_id, title, content, type, updated_by_name)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, item.ID, item.ProjectID, item.Title, item.Content, item.Type, item.UpdatedBy)
	if err != nil {
		return fmt.Errorf("insert document: %w", err)
	}
	return nil
}

func (s *PostgresStore) UpdateDocumentMeta(ctx context.Context, documentID, title, docType, updatedBy string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE documents
		SET title=$2, type=$3, updated_by_name=$4, updated_at=NOW()
		WHERE id=$1
	`, documentID, title, docType, updatedBy)
	if err != nil {
		return fmt.Errorf("update document meta: %w", err)
	}
	return nil
}

func (s *PostgresStore) UpdateDocumentContent(ctx context.Context, documentID, content, updatedBy string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE documents
		SET content=$2, updated_by_name=$3, updated_at=NOW()
		WHERE id=$1
	`, documentID, content, updatedBy)
	if err != nil {
		return fmt.Errorf("update document content: %w", err)
	}
	return nil
}

func (s *PostgresStore) DeleteDocument(ctx context.Context, documentID string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM documents WHERE id=$1`, documentID); err != nil {
		return fmt.Errorf("delete document: %w", err)
	}
	return nil
}

func (s *PostgresStore) InsertMessage(ctx context.Context, msg Message) error {
	edits := msg.Edits
	if len(edits) == 0 {
		edits = json.RawMessage(`[]`)
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO messages (id, document_id, role, content, edits)
		VALUES ($1, $2, $3, $4, $5::jsonb)
	`, msg.ID, msg.DocumentID, msg.Role, msg.Content, string(edits))
	if err != nil {
		return fmt.Errorf("insert message: %w", err)
	}
	return nil
}

// ListMessages returns the most recent messages of a document, oldest first.
func (s *PostgresStore) ListMessages(ctx context.Context, documentID string, limit int) ([]Message, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, document_id, role, content, edits, created_at FROM (
			SELECT id, document_id, role, content, edits, created_at
			FROM messages
			WHERE document_id=$1
			ORDER BY created_at DESC
			LIMIT $2
		) recent
		ORDER BY created_at ASC
	`, documentID, limit)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	defer rows.Close()

	items := make([]Message, 0)
	for rows.Next() {
		var item Message
		var edits []byte
		if err := rows.Scan(&item.ID, &item.DocumentID, &item.Role, &item.Content, &edits, &item.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		item.Edits = json.RawMessage(edits)
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate messages: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) InsertFeedback(ctx context.Context, item Feedback) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO feedback (id, user_id, project_id, rating, message, page)
		VALUES ($1, NULLIF($2, ''), NULLIF($3, ''), $4, $5, $6)
	`, item.ID, item.UserID, item.ProjectID, item.Rating, item.Message, item.Page)
	if err != nil {
		return fmt.Errorf("insert feedback: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListFeedback(ctx context.Context, projectID string, limit int) ([]Feedback, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, COALESCE(user_id, ''), COALESCE(project_id, ''), rating, message, page, created_at
		FROM feedback
		WHERE project_id=$1
		ORDER BY created_at DESC
		LIMIT $2
	`, projectID, limit)
	if err != nil {
		return nil, fmt.Errorf("list feedback: %w", err)
	}
	defer rows.Close()

	items := make([]Feedback, 0)
	for rows.Next() {
		var item Feedback
		if err := rows.Scan(&item.ID, &item.UserID, &item.ProjectID, &item.Rating, &item.Message, &item.Page, &item.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan feedback: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate feedback: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) UpsertGitHubConnection(ctx context.Context, conn GitHubConnection) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO github_connections (project_id, repo_url, branch, encrypted_token)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (project_id) DO UPDATE
		SET repo_url=EXCLUDED.repo_url, branch=EXCLUDED.branch, encrypted_token=EXCLUDED.encrypted_token, updated_at=NOW()
	`, conn.ProjectID, conn.RepoURL, conn.Branch, conn.EncryptedToken)
	if err != nil {
		return fmt.Errorf("upsert github connection: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetGitHubConnection(ctx context.Context, projectID string) (GitHubConnection, error) {
	var conn GitHubConnection
	var lastSynced sql.NullTime
	err := s.db.QueryRowContext(ctx, `
		SELECT project_id, repo_url, branch, encrypted_token, last_synced_at, last_commit, updated_at
		FROM github_connections
		WHERE project_id=$1
	`, projectID).Scan(&conn.ProjectID, &conn.RepoURL, &conn.Branch, &conn.EncryptedToken, &lastSynced, &conn.LastCommit, &conn.UpdatedAt)
	if err != nil {
		return GitHubConnection{}, err
	}
	if lastSynced.Valid {
		at := lastSynced.Time
		conn.LastSyncedAt = &at
	}
	return conn, nil
}

func (s *PostgresStore) DeleteGitHubConnection(ctx context.Context, projectID string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM github_connections WHERE project_id=$1`, projectID); err != nil {
		return fmt.Errorf("delete github connection: %w", err)
	}
	return nil
}

func (s *PostgresStore) MarkGitHubSynced(ctx context.Context, projectID, commit string, at time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE github_connections SET last_synced_at=$2, last_commit=$3 WHERE project_id=$1
	`, projectID, at, commit)
	if err != nil {
		return fmt.Errorf("mark github synced: %w", err)
	}
	return nil
}

// Ping verifies the database connection is alive
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}
