package app

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sort"
	"sync"
	"testing"
	"time"

	"skribe/api/internal/assistant"
	"skribe/api/internal/authpw"
	"skribe/api/internal/config"
	"skribe/api/internal/email"
	"skribe/api/internal/export"
	"skribe/api/internal/gitrepo"
	"skribe/api/internal/search"
	"skribe/api/internal/secret"
	"skribe/api/internal/store"
)

type fakeStore struct {
	mu        sync.Mutex
	users     map[string]store.User
	refresh   map[string]string
	revoked   map[string]bool
	projects  map[string]store.Project
	members   map[string]map[string]string
	documents map[string]store.Document
	messages  []store.Message
	feedback  []store.Feedback
	github    map[string]store.GitHubConnection
	pingErr   error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		users:     map[string]store.User{},
		refresh:   map[string]string{},
		revoked:   map[string]bool{},
		projects:  map[string]store.Project{},
		members:   map[string]map[string]string{},
		documents: map[string]store.Document{},
		github:    map[string]store.GitHubConnection{},
	}
}

func (f *fakeStore) CreateUser(_ context.Context, user store.User) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.users {
		if u.Email == user.Email {
			return store.ErrConflict
		}
	}
	f.users[user.ID] = user
	return nil
}

func (f *fakeStore) GetUserByEmail(_ context.Context, emailAddr string) (store.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.users {
		if u.Email == emailAddr {
			return u, nil
		}
	}
	return store.User{}, sql.ErrNoRows
}

func (f *fakeStore) GetUserByID(_ context.Context, id string) (store.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[id]
	if !ok {
		return store.User{}, sql.ErrNoRows
	}
	return u, nil
}

func (f *fakeStore) SaveRefreshSession(_ context.Context, hash, userID string, _ time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.refresh[hash] = userID
	return nil
}

func (f *fakeStore) LookupRefreshSession(_ context.Context, hash string) (store.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	userID, ok := f.refresh[hash]
	if !ok {
		return store.User{}, sql.ErrNoRows
	}
	return store.User{ID: userID}, nil
}

func (f *fakeStore) RevokeRefreshSession(_ context.Context, hash string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.refresh, hash)
	return nil
}

func (f *fakeStore) RevokeAccessToken(_ context.Context, jti string, _ time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.revoked[jti] = true
	return nil
}

func (f *fakeStore) IsAccessTokenRevoked(_ context.Context, jti string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.revoked[jti], nil
}

func (f *fakeStore) InsertProject(_ context.Context, project store.Project) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.projects[project.ID] = project
	f.members[project.ID] = map[string]string{project.OwnerID: "owner"}
	return nil
}

func (f *fakeStore) addMember(projectID, userID, role string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.members[projectID][userID] = role
}

func (f *fakeStore) ListProjectsForUser(_ context.Context, userID string) ([]store.Project, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []store.Project{}
	for id, members := range f.members {
		if role, ok := members[userID]; ok {
			p := f.projects[id]
			p.Role = role
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (f *fakeStore) GetProject(_ context.Context, id string) (store.Project, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.projects[id]
	if !ok {
		return store.Project{}, sql.ErrNoRows
	}
	return p, nil
}

func (f *fakeStore) UpdateProject(_ context.Context, id, name, description string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	p := f.projects[id]
	p.Name, p.Description = name, description
	f.projects[id] = p
	return nil
}

func (f *fakeStore) DeleteProject(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.projects, id)
	delete(f.members, id)
	for docID, d := range f.documents {
		if d.ProjectID == id {
			delete(f.documents, docID)
		}
	}
	return nil
}

func (f *fakeStore) ProjectRole(_ context.Context, projectID, userID string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	role, ok := f.members[projectID][userID]
	if !ok {
		return "", sql.ErrNoRows
	}
	return role, nil
}

func (f *fakeStore) ListDocuments(_ context.Context, projectID string) ([]store.Document, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []store.Document{}
	for _, d := range f.documents {
		if d.ProjectID == projectID {
			out = append(out, d)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (f *fakeStore) GetDocument(_ context.Context, id string) (store.Document, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	d, ok := f.documents[id]
	if !ok {
		return store.Document{}, sql.ErrNoRows
	}
	return d, nil
}

func (f *fakeStore) InsertDocument(_ context.Context, doc store.Document) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.documents[doc.ID] = doc
	return nil
}

func (f *fakeStore) UpdateDocumentMeta(_ context.Context, id, title, docType, updatedBy string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	d := f.documents[id]
	d.Title, d.Type, d.UpdatedBy = title, docType, updatedBy
	f.documents[id] = d
	return nil
}

func (f *fakeStore) UpdateDocumentContent(_ context.Context, id, content, updatedBy string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	d := f.documents[id]
	d.Content, d.UpdatedBy = content, updatedBy
	f.documents[id] = d
	return nil
}

func (f *fakeStore) DeleteDocument(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.documents, id)
	return nil
}

func (f *fakeStore) InsertMessage(_ context.Context, msg store.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.messages = append(f.messages, msg)
	return nil
}

func (f *fakeStore) ListMessages(_ context.Context, documentID string, limit int) ([]store.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []store.Message{}
	for _, m := range f.messages {
		if m.DocumentID == documentID {
			out = append(out, m)
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}

func (f *fakeStore) InsertFeedback(_ context.Context, item store.Feedback) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.feedback = append(f.feedback, item)
	return nil
}

func (f *fakeStore) ListFeedback(_ context.Context, projectID string, _ int) ([]store.Feedback, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []store.Feedback{}
	for _, item := range f.feedback {
		if item.ProjectID == projectID {
			out = append(out, item)
		}
	}
	return out, nil
}

func (f *fakeStore) UpsertGitHubConnection(_ context.Context, conn store.GitHubConnection) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.github[conn.ProjectID] = conn
	return nil
}

func (f *fakeStore) GetGitHubConnection(_ context.Context, projectID string) (store.GitHubConnection, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	conn, ok := f.github[projectID]
	if !ok {
		return store.GitHubConnection{}, sql.ErrNoRows
	}
	return conn, nil
}

func (f *fakeStore) DeleteGitHubConnection(_ context.Context, projectID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.github, projectID)
	return nil
}

func (f *fakeStore) MarkGitHubSynced(_ context.Context, projectID, commit string, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	conn := f.github[projectID]
	conn.LastCommit = commit
	conn.LastSyncedAt = &at
	f.github[projectID] = conn
	return nil
}

func (f *fakeStore) Ping(context.Context) error { return f.pingErr }

type pushCall struct {
	projectID, remoteURL, branch, token string
}

type fakeGit struct {
	mu       sync.Mutex
	commits  []gitrepo.DocumentFile
	removed  []string
	mirrored [][]gitrepo.DocumentFile
	pushes   []pushCall
	history  []store.CommitInfo
	revision map[string]string
	pushErr  error
}

func (f *fakeGit) CommitDocument(_ string, doc gitrepo.DocumentFile, _ gitrepo.Author, _ string) (store.CommitInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.commits = append(f.commits, doc)
	return store.CommitInfo{Hash: "c" + doc.ID}, nil
}

func (f *fakeGit) RemoveDocument(_ string, documentID string, _ gitrepo.Author, _ string) (store.CommitInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.removed = append(f.removed, documentID)
	return store.CommitInfo{}, nil
}

func (f *fakeGit) Mirror(_ string, docs []gitrepo.DocumentFile, _ gitrepo.Author, _ string) (store.CommitInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.mirrored = append(f.mirrored, docs)
	return store.CommitInfo{Hash: "mirror-hash"}, nil
}

func (f *fakeGit) History(_, _ string, limit int) ([]store.CommitInfo, error) {
	if limit < len(f.history) {
		return f.history[:limit], nil
	}
	return f.history, nil
}

func (f *fakeGit) ContentAt(_, _, hash string) (string, error) {
	content, ok := f.revision[hash]
	if !ok {
		return "", gitrepo.ErrNotFound
	}
	return content, nil
}

func (f *fakeGit) Push(_ context.Context, projectID, remoteURL, branch, token string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pushes = append(f.pushes, pushCall{projectID, remoteURL, branch, token})
	return f.pushErr
}

type fakeSearch struct {
	mu      sync.Mutex
	indexed []string
	deleted []string
	queries []search.Query
}

func (f *fakeSearch) Search(_ context.Context, q search.Query) search.Response {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queries = append(f.queries, q)
	return search.Response{Results: []search.Result{}, Query: q.Text}
}

func (f *fakeSearch) IndexDocument(doc search.DocumentRecord) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.indexed = append(f.indexed, doc.ID)
}

func (f *fakeSearch) DeleteDocument(id string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, id)
}

type fakeMailer struct {
	feedback chan email.FeedbackData
}

func (f *fakeMailer) IsConfigured() bool { return true }

func (f *fakeMailer) SendFeedbackNotification(_ string, data email.FeedbackData) error {
	f.feedback <- data
	return nil
}

func (f *fakeMailer) SendWelcomeEmail(string, email.WelcomeData) error { return nil }

// scriptedModel replays turns in order, then answers with plain text.
type scriptedModel struct {
	turns []assistant.Turn
	err   error
}

func (m *scriptedModel) Stream(_ context.Context, _ assistant.Request, onText func(string)) (assistant.Turn, error) {
	if m.err != nil {
		return assistant.Turn{}, m.err
	}
	if len(m.turns) == 0 {
		onText("Done.")
		return assistant.Turn{Text: "Done."}, nil
	}
	turn := m.turns[0]
	m.turns = m.turns[1:]
	if turn.Text != "" {
		onText(turn.Text)
	}
	return turn, nil
}

type testEnv struct {
	svc    *Service
	store  *fakeStore
	git    *fakeGit
	search *fakeSearch
	server http.Handler
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	fs := newFakeStore()
	fg := &fakeGit{revision: map[string]string{}}
	fsearch := &fakeSearch{}
	box, err := secret.NewBox("test-encryption-key")
	if err != nil {
		t.Fatalf("new box: %v", err)
	}
	svc := &Service{
		cfg: config.Config{
			JWTSecret:  "test-secret",
			AccessTTL:  time.Hour,
			RefreshTTL: 24 * time.Hour,
		},
		store:     fs,
		sessions:  fs,
		locker:    newMemoryLocker(),
		git:       fg,
		search:    fsearch,
		passwords: authpw.NewService(fs),
		exporter:  export.NewService(nil),
		box:       box,
	}
	return &testEnv{svc: svc, store: fs, git: fg, search: fsearch, server: NewHTTPServer(svc, "*").Handler()}
}

// login creates a user directly in the store and returns a bearer token.
func (e *testEnv) login(t *testing.T, id, name string) string {
	t.Helper()
	user := store.User{ID: id, Email: id + "@example.com", DisplayName: name}
	if err := e.store.CreateUser(context.Background(), user); err != nil {
		t.Fatalf("create user: %v", err)
	}
	session, err := e.svc.issueSession(context.Background(), user)
	if err != nil {
		t.Fatalf("issue session: %v", err)
	}
	return session.Token
}

func (e *testEnv) seedProject(t *testing.T, ownerID string) string {
	t.Helper()
	project := store.Project{ID: "prj-1", OwnerID: ownerID, Name: "Launch"}
	if err := e.store.InsertProject(context.Background(), project); err != nil {
		t.Fatalf("insert project: %v", err)
	}
	return project.ID
}

func (e *testEnv) seedDocument(t *testing.T, projectID, content string) string {
	t.Helper()
	doc := store.Document{ID: "doc-1", ProjectID: projectID, Title: "Vision", Type: "vision", Content: content}
	if err := e.store.InsertDocument(context.Background(), doc); err != nil {
		t.Fatalf("insert document: %v", err)
	}
	return doc.ID
}

func (e *testEnv) do(t *testing.T, method, path, token, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Buffer
	if body == "" {
		reader = &bytes.Buffer{}
	} else {
		reader = bytes.NewBufferString(body)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rr := httptest.NewRecorder()
	e.server.ServeHTTP(rr, req)
	return rr
}

func decodeJSON(t *testing.T, rr *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var payload map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &payload); err != nil {
		t.Fatalf("parse response: %v body=%s", err, rr.Body.String())
	}
	return payload
}

func expectStatus(t *testing.T, rr *httptest.ResponseRecorder, status int) {
	t.Helper()
	if rr.Code != status {
		t.Fatalf("expected status %d, got %d body=%s", status, rr.Code, rr.Body.String())
	}
}

func expectCode(t *testing.T, rr *httptest.ResponseRecorder, status int, code string) {
	t.Helper()
	expectStatus(t, rr, status)
	if got := decodeJSON(t, rr)["code"]; got != code {
		t.Fatalf("expected code %s, got %v", code, got)
	}
}

var errBoom = errors.New("boom")
