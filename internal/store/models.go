package store

import (
	"encoding/json"
	"errors"
	"time"
)

// ErrConflict is returned when a unique constraint rejects a write.
var ErrConflict = errors.New("conflict")

type User struct {
	ID           string
	Email        string
	DisplayName  string
	PasswordHash string
	CreatedAt    time.Time
}

type Project struct {
	ID          string
	OwnerID     string
	Name        string
	Description string
	// Role is the requesting user's membership role when listed for a user.
	Role      string
	CreatedAt time.Time
	UpdatedAt time.Time
}

type Document struct {
	ID        string
	ProjectID string
	Title     string
	Content   string
	Type      string
	UpdatedBy string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// DocumentTypes are the planning document kinds a project can hold.
var DocumentTypes = []string{"vision", "strategy", "product_brief", "roadmap", "okrs", "custom"}

func ValidDocumentType(value string) bool {
	for _, t := range DocumentTypes {
		if t == value {
			return true
		}
	}
	return false
}

type Message struct {
	ID         string
	DocumentID string
	Role       string
	Content    string
	Edits      json.RawMessage
	CreatedAt  time.Time
}

type Feedback struct {
	ID        string
	UserID    string
	ProjectID string
	Rating    int
	Message   string
	Page      string
	CreatedAt time.Time
}

type GitHubConnection struct {
	ProjectID      string
	RepoURL        string
	Branch         string
	EncryptedToken string
	LastSyncedAt   *time.Time
	LastCommit     string
	UpdatedAt      time.Time
}

type CommitInfo struct {
	Hash      string
	Message   string
	Author    string
	CreatedAt time.Time
}
