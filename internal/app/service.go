package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"skribe/api/internal/assistant"
	"skribe/api/internal/auth"
	"skribe/api/internal/authpw"
	"skribe/api/internal/config"
	"skribe/api/internal/email"
	"skribe/api/internal/export"
	"skribe/api/internal/gitrepo"
	"skribe/api/internal/rbac"
	"skribe/api/internal/search"
	"skribe/api/internal/secret"
	"skribe/api/internal/store"
	"skribe/api/internal/util"
)

type Session struct {
	Token        string
	RefreshToken string
	UserID       string
	UserName     string
	Email        string
	JTI          string
	ExpiresAt    time.Time
}

type dataStore interface {
	CreateUser(context.Context, store.User) error
	GetUserByEmail(context.Context, string) (store.User, error)
	GetUserByID(context.Context, string) (store.User, error)
	sessionStore

	InsertProject(context.Context, store.Project) error
	ListProjectsForUser(context.Context, string) ([]store.Project, error)
	GetProject(context.Context, string) (store.Project, error)
	UpdateProject(context.Context, string, string, string) error
	DeleteProject(context.Context, string) error
	ProjectRole(context.Context, string, string) (string, error)

	ListDocuments(context.Context, string) ([]store.Document, error)
	GetDocument(context.Context, string) (store.Document, error)
	InsertDocument(context.Context, store.Document) error
	UpdateDocumentMeta(context.Context, string, string, string, string) error
	UpdateDocumentContent(context.Context, string, string, string) error
	DeleteDocument(context.Context, string) error

	InsertMessage(context.Context, store.Message) error
	ListMessages(context.Context, string, int) ([]store.Message, error)

	InsertFeedback(context.Context, store.Feedback) error
	ListFeedback(context.Context, string, int) ([]store.Feedback, error)

	UpsertGitHubConnection(context.Context, store.GitHubConnection) error
	GetGitHubConnection(context.Context, string) (store.GitHubConnection, error)
	DeleteGitHubConnection(context.Context, string) error
	MarkGitHubSynced(context.Context, string, string, time.Time) error

	Ping(ctx context.Context) error
}

// sessionStore holds refresh sessions and revoked access tokens. Postgres
// implements it; Redis replaces it when configured.
type sessionStore interface {
	SaveRefreshSession(context.Context, string, string, time.Time) error
	LookupRefreshSession(context.Context, string) (store.User, error)
	RevokeRefreshSession(context.Context, string) error
	RevokeAccessToken(context.Context, string, time.Time) error
	IsAccessTokenRevoked(context.Context, string) (bool, error)
}

type documentLocker interface {
	LockDocument(ctx context.Context, documentID string, ttl time.Duration) (func(), error)
}

type gitService interface {
	CommitDocument(string, gitrepo.DocumentFile, gitrepo.Author, string) (store.CommitInfo, error)
	RemoveDocument(string, string, gitrepo.Author, string) (store.CommitInfo, error)
	Mirror(string, []gitrepo.DocumentFile, gitrepo.Author, string) (store.CommitInfo, error)
	History(string, string, int) ([]store.CommitInfo, error)
	ContentAt(string, string, string) (string, error)
	Push(context.Context, string, string, string, string) error
}

type searchService interface {
	Search(context.Context, search.Query) search.Response
	IndexDocument(search.DocumentRecord)
	DeleteDocument(string)
}

type exporter interface {
	Export(context.Context, export.Document, export.Format) (*export.Result, error)
}

type mailer interface {
	IsConfigured() bool
	SendFeedbackNotification(string, email.FeedbackData) error
	SendWelcomeEmail(string, email.WelcomeData) error
}

type chatRunner interface {
	Run(context.Context, assistant.Input, func(assistant.Event)) (assistant.Output, error)
}

type Service struct {
	cfg       config.Config
	store     dataStore
	sessions  sessionStore
	locker    documentLocker
	git       gitService
	search    searchService
	passwords *authpw.Service
	exporter  exporter
	mailer    mailer
	chat      chatRunner
	box       *secret.Box
}

func New(cfg config.Config, dataStore *store.PostgresStore, gitService *gitrepo.Service, searchService *search.Service) *Service {
	return newService(cfg, dataStore, dataStore, gitService, searchService)
}

// NewWithSessionStore keeps refresh sessions, revoked tokens and chat locks
// in sessions instead of Postgres.
func NewWithSessionStore(cfg config.Config, dataStore *store.PostgresStore, sessions interface {
	sessionStore
	documentLocker
}, gitService *gitrepo.Service, searchService *search.Service) *Service {
	s := newService(cfg, dataStore, sessions, gitService, searchService)
	s.locker = sessions
	return s
}

func newService(cfg config.Config, data dataStore, sessions sessionStore, git gitService, searchSvc searchService) *Service {
	box, err := secret.NewBox(cfg.EncryptionKey)
	if err != nil {
		log.Printf("app: github token encryption disabled: %v", err)
	}
	return &Service{
		cfg:       cfg,
		store:     data,
		sessions:  sessions,
		locker:    newMemoryLocker(),
		git:       git,
		search:    searchSvc,
		passwords: authpw.NewService(data),
		exporter:  export.NewService(nil),
		box:       box,
	}
}

// SetExporter replaces the default inline-only exporter.
func (s *Service) SetExporter(e *export.Service) { s.exporter = e }

func (s *Service) SetMailer(m *email.Service) { s.mailer = m }

// SetAssistant enables chat.
func (s *Service) SetAssistant(a *assistant.Assistant) { s.chat = a }

func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

func (s *Service) Can(role string, action rbac.Action) bool {
	return rbac.Can(rbac.Normalize(role), action)
}

func (s *Service) SignUp(ctx context.Context, emailAddr, password, displayName string) (Session, error) {
	user, err := s.passwords.SignUp(ctx, authpw.SignUpRequest{
		Email:       emailAddr,
		Password:    password,
		DisplayName: displayName,
	})
	if err != nil {
		return Session{}, err
	}
	if s.mailer != nil && s.mailer.IsConfigured() {
		go func() {
			if err := s.mailer.SendWelcomeEmail(user.Email, email.WelcomeData{UserName: user.DisplayName}); err != nil {
				log.Printf("app: welcome email to %s: %v", user.ID, err)
			}
		}()
	}
	return s.issueSession(ctx, user)
}

func (s *Service) SignIn(ctx context.Context, emailAddr, password string) (Session, error) {
	user, err := s.passwords.SignIn(ctx, emailAddr, password)
	if err != nil {
		return Session{}, err
	}
	return s.issueSession(ctx, user)
}

func (s *Service) Refresh(ctx context.Context, refreshToken string) (Session, error) {
	if strings.TrimSpace(refreshToken) == "" {
		return Session{}, auth.ErrInvalidToken
	}
	tokenHash := auth.HashToken(refreshToken)
	found, err := s.sessions.LookupRefreshSession(ctx, tokenHash)
	if err != nil {
		return Session{}, auth.ErrInvalidToken
	}
	if err := s.sessions.RevokeRefreshSession(ctx, tokenHash); err != nil {
		return Session{}, fmt.Errorf("revoke refresh session: %w", err)
	}
	user, err := s.store.GetUserByID(ctx, found.ID)
	if err != nil {
		return Session{}, auth.ErrInvalidToken
	}
	return s.issueSession(ctx, user)
}

func (s *Service) issueSession(ctx context.Context, user store.User) (Session, error) {
	now := time.Now()
	expiresAt := now.Add(s.cfg.AccessTTL)
	jti := util.NewID("jti")

	token, err := auth.IssueToken([]byte(s.cfg.JWTSecret), auth.Claims{
		Sub:  user.ID,
		Name: user.DisplayName,
		JTI:  jti,
		Exp:  expiresAt.Unix(),
	})
	if err != nil {
		return Session{}, err
	}

	refresh, err := auth.NewOpaqueToken()
	if err != nil {
		return Session{}, err
	}
	if err := s.sessions.SaveRefreshSession(ctx, auth.HashToken(refresh), user.ID, now.Add(s.cfg.RefreshTTL)); err != nil {
		return Session{}, fmt.Errorf("save refresh session: %w", err)
	}

	return Session{
		Token:        token,
		RefreshToken: refresh,
		UserID:       user.ID,
		UserName:     user.DisplayName,
		Email:        user.Email,
		JTI:          jti,
		ExpiresAt:    expiresAt,
	}, nil
}

func (s *Service) SessionFromToken(ctx context.Context, token string) (Session, error) {
	claims, err := auth.ParseToken([]byte(s.cfg.JWTSecret), token)
	if err != nil {
		return Session{}, err
	}
	revoked, err := s.sessions.IsAccessTokenRevoked(ctx, claims.JTI)
	if err != nil {
		return Session{}, err
	}
	if revoked {
		return Session{}, auth.ErrInvalidToken
	}

	user, err := s.store.GetUserByID(ctx, claims.Sub)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Session{}, auth.ErrInvalidToken
		}
		return Session{}, err
	}

	return Session{
		Token:     token,
		UserID:    user.ID,
		UserName:  user.DisplayName,
		Email:     user.Email,
		JTI:       claims.JTI,
		ExpiresAt: time.Unix(claims.Exp, 0),
	}, nil
}

func (s *Service) Logout(ctx context.Context, session Session, refreshToken string) error {
	if session.JTI != "" {
		if err := s.sessions.RevokeAccessToken(ctx, session.JTI, session.ExpiresAt); err != nil {
			log.Printf("app: revoke access token: %v", err)
		}
	}
	if refreshToken != "" {
		if err := s.sessions.RevokeRefreshSession(ctx, auth.HashToken(refreshToken)); err != nil {
			log.Printf("app: revoke refresh session: %v", err)
		}
	}
	return nil
}

// authorizeProject returns the caller's role in the project. Non-members
// get NOT_FOUND so project IDs do not leak.
func (s *Service) authorizeProject(ctx context.Context, session Session, projectID string, action rbac.Action) (string, error) {
	role, err := s.store.ProjectRole(ctx, projectID, session.UserID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", notFound("Project not found")
		}
		return "", fmt.Errorf("load project role: %w", err)
	}
	if !s.Can(role, action) {
		return role, domainError(http.StatusForbidden, "FORBIDDEN", "Forbidden", map[string]any{"action": action, "role": role})
	}
	return role, nil
}

func (s *Service) authorizeDocument(ctx context.Context, session Session, documentID string, action rbac.Action) (store.Document, string, error) {
	doc, err := s.store.GetDocument(ctx, documentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return store.Document{}, "", notFound("Document not found")
		}
		return store.Document{}, "", fmt.Errorf("load document: %w", err)
	}
	role, err := s.authorizeProject(ctx, session, doc.ProjectID, action)
	if err != nil {
		if isNotFound(err) {
			return store.Document{}, "", notFound("Document not found")
		}
		return store.Document{}, "", err
	}
	return doc, role, nil
}

func authorFor(session Session) gitrepo.Author {
	return gitrepo.Author{Name: session.UserName, Email: session.Email}
}

func nonEmpty(value, fallback string) string {
	if strings.TrimSpace(value) == "" {
		return fallback
	}
	return value
}
