// Package gitrepo mirrors project documents into per-project git
// repositories and pushes them to GitHub.
package gitrepo

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	git "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	githttp "github.com/go-git/go-git/v5/plumbing/transport/http"

	"skribe/api/internal/store"
	"skribe/api/internal/util"
)

const documentsDir = "documents"

var (
	// ErrNoChanges is returned when a commit would not change the tree.
	ErrNoChanges = errors.New("no changes to commit")
	// ErrDiverged is returned when the remote branch has commits the local
	// repository does not.
	ErrDiverged = errors.New("remote branch has diverged")
	ErrNotFound = errors.New("document not found in history")
)

type DocumentFile struct {
	ID      string
	Title   string
	Content string
}

type Author struct {
	Name  string
	Email string
}

type Service struct {
	baseDir string
	lockMu  sync.Mutex
	locks   map[string]*sync.Mutex
}

func New(baseDir string) *Service {
	return &Service{
		baseDir: baseDir,
		locks:   make(map[string]*sync.Mutex),
	}
}

// DocumentPath is the repository path a document is written to.
func DocumentPath(doc DocumentFile) string {
	return path.Join(documentsDir, util.Slugify(doc.Title)+"-"+doc.ID+".md")
}

func isDocumentFile(name, documentID string) bool {
	return strings.HasPrefix(name, documentsDir+"/") && strings.HasSuffix(name, "-"+documentID+".md")
}

// CommitDocument writes one document and commits it. A renamed document
// replaces its previous file.
func (s *Service) CommitDocument(projectID string, doc DocumentFile, author Author, message string) (store.CommitInfo, error) {
	lock := s.projectLock(projectID)
	lock.Lock()
	defer lock.Unlock()

	repo, err := s.openOrInit(projectID)
	if err != nil {
		return store.CommitInfo{}, err
	}
	worktree, err := repo.Worktree()
	if err != nil {
		return store.CommitInfo{}, fmt.Errorf("open worktree: %w", err)
	}

	target := DocumentPath(doc)
	existing, err := s.trackedFiles(projectID)
	if err != nil {
		return store.CommitInfo{}, err
	}
	for _, name := range existing {
		if name != target && isDocumentFile(name, doc.ID) {
			if _, err := worktree.Remove(name); err != nil {
				return store.CommitInfo{}, fmt.Errorf("git rm %s: %w", name, err)
			}
		}
	}
	if err := s.writeFile(projectID, target, doc.Content); err != nil {
		return store.CommitInfo{}, err
	}
	if _, err := worktree.Add(target); err != nil {
		return store.CommitInfo{}, fmt.Errorf("git add %s: %w", target, err)
	}
	return commit(repo, worktree, author, message)
}

// RemoveDocument deletes a document's file and commits the removal.
func (s *Service) RemoveDocument(projectID, documentID string, author Author, message string) (store.CommitInfo, error) {
	lock := s.projectLock(projectID)
	lock.Lock()
	defer lock.Unlock()

	repo, err := s.openOrInit(projectID)
	if err != nil {
		return store.CommitInfo{}, err
	}
	worktree, err := repo.Worktree()
	if err != nil {
		return store.CommitInfo{}, fmt.Errorf("open worktree: %w", err)
	}
	existing, err := s.trackedFiles(projectID)
	if err != nil {
		return store.CommitInfo{}, err
	}
	removed := false
	for _, name := range existing {
		if isDocumentFile(name, documentID) {
			if _, err := worktree.Remove(name); err != nil {
				return store.CommitInfo{}, fmt.Errorf("git rm %s: %w", name, err)
			}
			removed = true
		}
	}
	if !removed {
		return store.CommitInfo{}, ErrNoChanges
	}
	return commit(repo, worktree, author, message)
}

// Mirror makes the documents directory match docs exactly and commits the
// result.
func (s *Service) Mirror(projectID string, docs []DocumentFile, author Author, message string) (store.CommitInfo, error) {
	lock := s.projectLock(projectID)
	lock.Lock()
	defer lock.Unlock()

	repo, err := s.openOrInit(projectID)
	if err != nil {
		return store.CommitInfo{}, err
	}
	worktree, err := repo.Worktree()
	if err != nil {
		return store.CommitInfo{}, fmt.Errorf("open worktree: %w", err)
	}

	wanted := make(map[string]bool, len(docs))
	for _, doc := range docs {
		target := DocumentPath(doc)
		wanted[target] = true
		if err := s.writeFile(projectID, target, doc.Content); err != nil {
			return store.CommitInfo{}, err
		}
		if _, err := worktree.Add(target); err != nil {
			return store.CommitInfo{}, fmt.Errorf("git add %s: %w", target, err)
		}
	}

	existing, err := s.trackedFiles(projectID)
	if err != nil {
		return store.CommitInfo{}, err
	}
	for _, name := range existing {
		if !wanted[name] {
			if _, err := worktree.Remove(name); err != nil {
				return store.CommitInfo{}, fmt.Errorf("git rm %s: %w", name, err)
			}
		}
	}
	return commit(repo, worktree, author, message)
}

// History lists the commits that touched a document, newest first.
func (s *Service) History(projectID, documentID string, limit int) ([]store.CommitInfo, error) {
	lock := s.projectLock(projectID)
	lock.Lock()
	defer lock.Unlock()

	items := make([]store.CommitInfo, 0)
	repo, err := git.PlainOpen(s.repoPath(projectID))
	if errors.Is(err, git.ErrRepositoryNotExists) {
		return items, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open repo: %w", err)
	}
	head, err := repo.Head()
	if errors.Is(err, plumbing.ErrReferenceNotFound) {
		return items, nil
	}
	if err != nil {
		return nil, fmt.Errorf("resolve HEAD: %w", err)
	}

	iter, err := repo.Log(&git.LogOptions{
		From:       head.Hash(),
		PathFilter: func(name string) bool { return isDocumentFile(name, documentID) },
	})
	if err != nil {
		return nil, fmt.Errorf("read log: %w", err)
	}
	defer iter.Close()

	err = iter.ForEach(func(commitObj *object.Commit) error {
		items = append(items, toCommitInfo(commitObj))
		if limit > 0 && len(items) >= limit {
			return io.EOF
		}
		return nil
	})
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("iterate log: %w", err)
	}
	return items, nil
}

// ContentAt returns the document as it was at the given commit. Short hashes
// are accepted.
func (s *Service) ContentAt(projectID, documentID, hash string) (string, error) {
	lock := s.projectLock(projectID)
	lock.Lock()
	defer lock.Unlock()

	repo, err := git.PlainOpen(s.repoPath(projectID))
	if err != nil {
		return "", fmt.Errorf("open repo: %w", err)
	}
	resolved, err := resolveHash(repo, hash)
	if err != nil {
		return "", err
	}
	commitObj, err := repo.CommitObject(resolved)
	if err != nil {
		return "", fmt.Errorf("read commit %s: %w", hash, err)
	}
	files, err := commitObj.Files()
	if err != nil {
		return "", fmt.Errorf("read tree %s: %w", hash, err)
	}
	defer files.Close()

	var content string
	found := false
	err = files.ForEach(func(f *object.File) error {
		if !isDocumentFile(f.Name, documentID) {
			return nil
		}
		text, err := f.Contents()
		if err != nil {
			return err
		}
		content, found = text, true
		return io.EOF
	})
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("read document at %s: %w", hash, err)
	}
	if !found {
		return "", ErrNotFound
	}
	return content, nil
}

// Push sends main to remoteURL's branch. An empty token pushes without
// credentials.
func (s *Service) Push(ctx context.Context, projectID, remoteURL, branch, token string) error {
	lock := s.projectLock(projectID)
	lock.Lock()
	defer lock.Unlock()

	repo, err := git.PlainOpen(s.repoPath(projectID))
	if err != nil {
		return fmt.Errorf("open repo: %w", err)
	}
	if err := ensureRemote(repo, remoteURL); err != nil {
		return err
	}

	opts := &git.PushOptions{
		RemoteName: "origin",
		RefSpecs:   []config.RefSpec{config.RefSpec("refs/heads/main:refs/heads/" + branch)},
	}
	if token != "" {
		opts.Auth = &githttp.BasicAuth{Username: "x-access-token", Password: token}
	}
	err = repo.PushContext(ctx, opts)
	switch {
	case err == nil, errors.Is(err, git.NoErrAlreadyUpToDate):
		return nil
	case errors.Is(err, git.ErrNonFastForwardUpdate):
		return ErrDiverged
	default:
		return fmt.Errorf("push %s: %w", branch, err)
	}
}

func ensureRemote(repo *git.Repository, remoteURL string) error {
	remote, err := repo.Remote("origin")
	if err == nil {
		urls := remote.Config().URLs
		if len(urls) == 1 && urls[0] == remoteURL {
			return nil
		}
		if err := repo.DeleteRemote("origin"); err != nil {
			return fmt.Errorf("delete stale remote: %w", err)
		}
	} else if !errors.Is(err, git.ErrRemoteNotFound) {
		return fmt.Errorf("read remote: %w", err)
	}
	if _, err := repo.CreateRemote(&config.RemoteConfig{Name: "origin", URLs: []string{remoteURL}}); err != nil {
		return fmt.Errorf("create remote: %w", err)
	}
	return nil
}

func (s *Service) repoPath(projectID string) string {
	return filepath.Join(s.baseDir, projectID)
}

func (s *Service) projectLock(projectID string) *sync.Mutex {
	s.lockMu.Lock()
	defer s.lockMu.Unlock()
	lock, ok := s.locks[projectID]
	if ok {
		return lock
	}
	lock = &sync.Mutex{}
	s.locks[projectID] = lock
	return lock
}

func (s *Service) openOrInit(projectID string) (*git.Repository, error) {
	dir := s.repoPath(projectID)
	repo, err := git.PlainOpen(dir)
	if err == nil {
		return repo, nil
	}
	if !errors.Is(err, git.ErrRepositoryNotExists) {
		return nil, fmt.Errorf("open repo: %w", err)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create repo dir: %w", err)
	}
	repo, err = git.PlainInitWithOptions(dir, &git.PlainInitOptions{
		InitOptions: git.InitOptions{DefaultBranch: plumbing.Main},
	})
	if err != nil {
		return nil, fmt.Errorf("init repo: %w", err)
	}
	return repo, nil
}

func (s *Service) writeFile(projectID, name, content string) error {
	full := filepath.Join(s.repoPath(projectID), filepath.FromSlash(name))
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return fmt.Errorf("create %s dir: %w", documentsDir, err)
	}
	if err := os.WriteFile(full, []byte(content), 0o644); err != nil {
		return fmt.Errorf("write %s: %w", name, err)
	}
	return nil
}

// trackedFiles lists the files currently in the documents directory,
// slash-separated and relative to the repository root.
func (s *Service) trackedFiles(projectID string) ([]string, error) {
	entries, err := os.ReadDir(filepath.Join(s.repoPath(projectID), documentsDir))
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read %s dir: %w", documentsDir, err)
	}
	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if !entry.IsDir() {
			names = append(names, path.Join(documentsDir, entry.Name()))
		}
	}
	sort.Strings(names)
	return names, nil
}

func commit(repo *git.Repository, worktree *git.Worktree, author Author, message string) (store.CommitInfo, error) {
	status, err := worktree.Status()
	if err != nil {
		return store.CommitInfo{}, fmt.Errorf("read status: %w", err)
	}
	if status.IsClean() {
		return store.CommitInfo{}, ErrNoChanges
	}

	email := author.Email
	if email == "" {
		email = sanitizeEmail(author.Name) + "@users.skribe.dev"
	}
	hash, err := worktree.Commit(message, &git.CommitOptions{
		Author: &object.Signature{Name: author.Name, Email: email, When: time.Now()},
	})
	if err != nil {
		return store.CommitInfo{}, fmt.Errorf("commit: %w", err)
	}
	commitObj, err := repo.CommitObject(hash)
	if err != nil {
		return store.CommitInfo{}, fmt.Errorf("read commit object: %w", err)
	}
	return toCommitInfo(commitObj), nil
}

func toCommitInfo(commitObj *object.Commit) store.CommitInfo {
	return store.CommitInfo{
		Hash:      commitObj.Hash.String(),
		Message:   strings.TrimSpace(commitObj.Message),
		Author:    commitObj.Author.Name,
		CreatedAt: commitObj.Author.When,
	}
}

func sanitizeEmail(input string) string {
	out := make([]rune, 0, len(input))
	for _, r := range input {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			out = append(out, r)
			continue
		}
		if r == ' ' || r == '-' || r == '_' {
			out = append(out, '.')
		}
	}
	if len(out) == 0 {
		return "user"
	}
	return string(out)
}

func resolveHash(repo *git.Repository, hash string) (plumbing.Hash, error) {
	if len(hash) == 40 {
		return plumbing.NewHash(hash), nil
	}
	resolved, err := repo.ResolveRevision(plumbing.Revision(hash))
	if err != nil {
		return plumbing.ZeroHash, fmt.Errorf("resolve hash %s: %w", hash, err)
	}
	return *resolved, nil
}
