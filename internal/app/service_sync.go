package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"

	"skribe/api/internal/export"
	"skribe/api/internal/gitrepo"
	"skribe/api/internal/rbac"
	"skribe/api/internal/store"
)

const defaultHistoryLimit = 50

type GitHubInput struct {
	RepoURL string `json:"repoUrl"`
	Branch  string `json:"branch"`
	Token   string `json:"token"`
}

func commitPayload(c store.CommitInfo) map[string]any {
	return map[string]any{
		"hash":      c.Hash,
		"message":   c.Message,
		"author":    c.Author,
		"createdAt": c.CreatedAt,
	}
}

func (s *Service) DocumentHistory(ctx context.Context, session Session, documentID string, limit int) (map[string]any, error) {
	doc, _, err := s.authorizeDocument(ctx, session, documentID, rbac.ActionRead)
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	commits, err := s.git.History(doc.ProjectID, doc.ID, limit)
	if err != nil {
		return nil, fmt.Errorf("load history: %w", err)
	}
	items := make([]map[string]any, 0, len(commits))
	for _, c := range commits {
		items = append(items, commitPayload(c))
	}
	return map[string]any{"documentId": doc.ID, "history": items}, nil
}

func (s *Service) DocumentAt(ctx context.Context, session Session, documentID, hash string) (map[string]any, error) {
	doc, _, err := s.authorizeDocument(ctx, session, documentID, rbac.ActionRead)
	if err != nil {
		return nil, err
	}
	content, err := s.git.ContentAt(doc.ProjectID, doc.ID, hash)
	if err != nil {
		if errors.Is(err, gitrepo.ErrNotFound) {
			return nil, notFound("Revision not found")
		}
		return nil, fmt.Errorf("load revision: %w", err)
	}
	return map[string]any{"documentId": doc.ID, "hash": hash, "content": content}, nil
}

func (s *Service) ExportDocument(ctx context.Context, session Session, documentID, format string) (*export.Result, error) {
	parsed, err := export.ParseFormat(format)
	if err != nil {
		return nil, validationError("format must be one of md, html, pdf, docx", nil)
	}
	doc, _, err := s.authorizeDocument(ctx, session, documentID, rbac.ActionRead)
	if err != nil {
		return nil, err
	}
	project, err := s.store.GetProject(ctx, doc.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("load project: %w", err)
	}
	return s.exporter.Export(ctx, export.Document{
		ID:          doc.ID,
		Title:       doc.Title,
		Type:        doc.Type,
		Content:     doc.Content,
		Author:      doc.UpdatedBy,
		ProjectName: project.Name,
		UpdatedAt:   doc.UpdatedAt,
	}, parsed)
}

func githubPayload(conn store.GitHubConnection) map[string]any {
	return map[string]any{
		"connected":    true,
		"repoUrl":      conn.RepoURL,
		"branch":       conn.Branch,
		"lastSyncedAt": conn.LastSyncedAt,
		"lastCommit":   conn.LastCommit,
		"updatedAt":    conn.UpdatedAt,
	}
}

// ConnectGitHub stores the repository and an encrypted access token. The
// token is never returned.
func (s *Service) ConnectGitHub(ctx context.Context, session Session, projectID string, input GitHubInput) (map[string]any, error) {
	if _, err := s.authorizeProject(ctx, session, projectID, rbac.ActionManage); err != nil {
		return nil, err
	}
	if s.box == nil {
		return nil, domainError(http.StatusServiceUnavailable, "ENCRYPTION_UNAVAILABLE", "Token encryption is not configured", nil)
	}
	repoURL := strings.TrimSpace(input.RepoURL)
	parsed, err := url.Parse(repoURL)
	if err != nil || parsed.Scheme != "https" || parsed.Host == "" {
		return nil, validationError("repoUrl must be an https URL", nil)
	}
	token := strings.TrimSpace(input.Token)
	if token == "" {
		return nil, validationError("token is required", nil)
	}
	sealed, err := s.box.Seal(token)
	if err != nil {
		return nil, fmt.Errorf("encrypt token: %w", err)
	}

	conn := store.GitHubConnection{
		ProjectID:      projectID,
		RepoURL:        repoURL,
		Branch:         nonEmpty(strings.TrimSpace(input.Branch), "main"),
		EncryptedToken: sealed,
		UpdatedAt:      time.Now().UTC(),
	}
	if err := s.store.UpsertGitHubConnection(ctx, conn); err != nil {
		return nil, fmt.Errorf("save github connection: %w", err)
	}
	return githubPayload(conn), nil
}

func (s *Service) GitHubStatus(ctx context.Context, session Session, projectID string) (map[string]any, error) {
	if _, err := s.authorizeProject(ctx, session, projectID, rbac.ActionRead); err != nil {
		return nil, err
	}
	conn, err := s.store.GetGitHubConnection(ctx, projectID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return map[string]any{"connected": false}, nil
		}
		return nil, fmt.Errorf("load github connection: %w", err)
	}
	return githubPayload(conn), nil
}

func (s *Service) DisconnectGitHub(ctx context.Context, session Session, projectID string) error {
	if _, err := s.authorizeProject(ctx, session, projectID, rbac.ActionManage); err != nil {
		return err
	}
	if err := s.store.DeleteGitHubConnection(ctx, projectID); err != nil {
		return fmt.Errorf("delete github connection: %w", err)
	}
	return nil
}

// SyncGitHub mirrors every project document into the local repository and
// pushes it to the connected branch.
func (s *Service) SyncGitHub(ctx context.Context, session Session, projectID string) (map[string]any, error) {
	if _, err := s.authorizeProject(ctx, session, projectID, rbac.ActionSync); err != nil {
		return nil, err
	}
	conn, err := s.store.GetGitHubConnection(ctx, projectID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domainError(http.StatusConflict, "GITHUB_NOT_CONNECTED", "Connect a GitHub repository first", nil)
		}
		return nil, fmt.Errorf("load github connection: %w", err)
	}
	if s.box == nil {
		return nil, domainError(http.StatusServiceUnavailable, "ENCRYPTION_UNAVAILABLE", "Token encryption is not configured", nil)
	}
	token, err := s.box.Open(conn.EncryptedToken)
	if err != nil {
		return nil, domainError(http.StatusConflict, "GITHUB_TOKEN_INVALID", "Stored token could not be read; reconnect the repository", nil)
	}

	docs, err := s.store.ListDocuments(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	files := make([]gitrepo.DocumentFile, 0, len(docs))
	for _, doc := range docs {
		files = append(files, gitrepo.DocumentFile{ID: doc.ID, Title: doc.Title, Content: doc.Content})
	}

	commit := conn.LastCommit
	info, err := s.git.Mirror(projectID, files, authorFor(session), "Sync from Skribe")
	switch {
	case err == nil:
		commit = info.Hash
	case errors.Is(err, gitrepo.ErrNoChanges):
	default:
		return nil, fmt.Errorf("mirror documents: %w", err)
	}

	if err := s.git.Push(ctx, projectID, conn.RepoURL, conn.Branch, token); err != nil {
		if errors.Is(err, gitrepo.ErrDiverged) {
			return nil, domainError(http.StatusConflict, "GITHUB_DIVERGED", "The remote branch has commits Skribe does not have", map[string]any{"branch": conn.Branch})
		}
		log.Printf("app: push project %s: %v", projectID, err)
		return nil, domainError(http.StatusBadGateway, "GITHUB_PUSH_FAILED", "Could not push to GitHub", nil)
	}

	now := time.Now().UTC()
	if err := s.store.MarkGitHubSynced(ctx, projectID, commit, now); err != nil {
		return nil, fmt.Errorf("mark synced: %w", err)
	}
	conn.LastCommit = commit
	conn.LastSyncedAt = &now
	payload := githubPayload(conn)
	payload["documents"] = len(files)
	return payload, nil
}
