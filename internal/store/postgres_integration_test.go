package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"path/filepath"
	"testing"
	"time"
)

func TestPostgresStoreProjectLifecycle(t *testing.T) {
	db, ctx := testDB(t)
	if err := ApplyMigrations(ctx, db, filepath.Join("..", "..", "db", "migrations")); err != nil {
		t.Fatalf("apply migrations: %v", err)
	}
	s := NewPostgresStore(db)

	owner := User{ID: "usr_owner", Email: "owner@example.com", DisplayName: "Owner", PasswordHash: "hash"}
	if err := s.CreateUser(ctx, owner); err != nil {
		t.Fatalf("create user: %v", err)
	}
	if err := s.CreateUser(ctx, User{ID: "usr_dup", Email: owner.Email, DisplayName: "Dup", PasswordHash: "x"}); !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict for duplicate email, got %v", err)
	}

	project := Project{ID: "prj_1", OwnerID: owner.ID, Name: "Launch"}
	if err := s.InsertProject(ctx, project); err != nil {
		t.Fatalf("insert project: %v", err)
	}
	role, err := s.ProjectRole(ctx, project.ID, owner.ID)
	if err != nil || role != "owner" {
		t.Fatalf("expected owner role, got %q (%v)", role, err)
	}
	if _, err := s.ProjectRole(ctx, project.ID, "usr_stranger"); !errors.Is(err, sql.ErrNoRows) {
		t.Fatalf("expected sql.ErrNoRows for non-member, got %v", err)
	}

	doc := Document{ID: "doc_1", ProjectID: project.ID, Title: "Vision", Type: "vision", Content: "# Vision\n\nBecome the default planning tool.", UpdatedBy: "Owner"}
	if err := s.InsertDocument(ctx, doc); err != nil {
		t.Fatalf("insert document: %v", err)
	}
	if err := s.UpdateDocumentContent(ctx, doc.ID, doc.Content+"\n\nPlanning wins.", "Owner"); err != nil {
		t.Fatalf("update content: %v", err)
	}

	edits, _ := json.Marshal([]map[string]any{{"tool": "rewrite_document", "success": true}})
	if err := s.InsertMessage(ctx, Message{ID: "msg_1", DocumentID: doc.ID, Role: "assistant", Content: "Done.", Edits: edits}); err != nil {
		t.Fatalf("insert message: %v", err)
	}
	messages, err := s.ListMessages(ctx, doc.ID, 10)
	if err != nil || len(messages) != 1 {
		t.Fatalf("list messages: %v (%d)", err, len(messages))
	}

	if err := s.UpsertGitHubConnection(ctx, GitHubConnection{ProjectID: project.ID, RepoURL: "https://github.com/acme/plans.git", Branch: "main", EncryptedToken: "sealed"}); err != nil {
		t.Fatalf("upsert github connection: %v", err)
	}
	if err := s.MarkGitHubSynced(ctx, project.ID, "abc123", time.Now()); err != nil {
		t.Fatalf("mark synced: %v", err)
	}
	conn, err := s.GetGitHubConnection(ctx, project.ID)
	if err != nil || conn.LastSyncedAt == nil || conn.LastCommit != "abc123" {
		t.Fatalf("unexpected connection %+v (%v)", conn, err)
	}

	if err := s.DeleteProject(ctx, project.ID); err != nil {
		t.Fatalf("delete project: %v", err)
	}
	if _, err := s.GetDocument(ctx, doc.ID); !errors.Is(err, sql.ErrNoRows) {
		t.Fatalf("expected documents to cascade, got %v", err)
	}
}
