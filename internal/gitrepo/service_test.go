package gitrepo

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"

	git "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
)

var avery = Author{Name: "Avery Stone", Email: "avery@example.com"}

func TestCommitDocumentLifecycle(t *testing.T) {
	tempDir := t.TempDir()
	svc := New(tempDir)
	doc := DocumentFile{ID: "doc_1", Title: "Product Vision", Content: "# Vision\n\nv1\n"}

	first, err := svc.CommitDocument("prj_1", doc, avery, "Create Product Vision")
	if err != nil {
		t.Fatalf("CommitDocument() error = %v", err)
	}
	if first.Hash == "" || first.Author != "Avery Stone" {
		t.Fatalf("unexpected commit %+v", first)
	}
	if _, err := os.Stat(filepath.Join(tempDir, "prj_1", "documents", "product-vision-doc_1.md")); err != nil {
		t.Fatalf("document file missing: %v", err)
	}

	if _, err := svc.CommitDocument("prj_1", doc, avery, "No-op"); !errors.Is(err, ErrNoChanges) {
		t.Fatalf("expected ErrNoChanges, got %v", err)
	}

	renamed := DocumentFile{ID: "doc_1", Title: "Vision 2027", Content: "# Vision\n\nv2\n"}
	second, err := svc.CommitDocument("prj_1", renamed, avery, "Rename and edit")
	if err != nil {
		t.Fatalf("CommitDocument() rename error = %v", err)
	}
	if _, err := os.Stat(filepath.Join(tempDir, "prj_1", "documents", "product-vision-doc_1.md")); !os.IsNotExist(err) {
		t.Fatalf("expected old file to be removed, stat err = %v", err)
	}

	other := DocumentFile{ID: "doc_2", Title: "Roadmap", Content: "# Roadmap\n"}
	if _, err := svc.CommitDocument("prj_1", other, avery, "Create Roadmap"); err != nil {
		t.Fatalf("CommitDocument() other error = %v", err)
	}

	history, err := svc.History("prj_1", "doc_1", 10)
	if err != nil {
		t.Fatalf("History() error = %v", err)
	}
	if len(history) != 2 {
		t.Fatalf("expected 2 commits touching doc_1, got %d", len(history))
	}
	if history[0].Hash != second.Hash || history[1].Hash != first.Hash {
		t.Fatalf("history out of order: %+v", history)
	}

	old, err := svc.ContentAt("prj_1", "doc_1", first.Hash[:7])
	if err != nil {
		t.Fatalf("ContentAt() error = %v", err)
	}
	if old != doc.Content {
		t.Fatalf("ContentAt() = %q, want %q", old, doc.Content)
	}
	if _, err := svc.ContentAt("prj_1", "doc_2", first.Hash); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound before doc_2 existed, got %v", err)
	}
}

func TestHistoryWithoutRepository(t *testing.T) {
	svc := New(t.TempDir())
	history, err := svc.History("prj_missing", "doc_1", 10)
	if err != nil {
		t.Fatalf("History() error = %v", err)
	}
	if len(history) != 0 {
		t.Fatalf("expected empty history, got %d", len(history))
	}
}

func TestMirrorAndRemove(t *testing.T) {
	tempDir := t.TempDir()
	svc := New(tempDir)
	docs := []DocumentFile{
		{ID: "doc_a", Title: "Strategy", Content: "# Strategy\n"},
		{ID: "doc_b", Title: "OKRs", Content: "# OKRs\n"},
	}
	if _, err := svc.Mirror("prj_1", docs, avery, "Sync"); err != nil {
		t.Fatalf("Mirror() error = %v", err)
	}
	if _, err := svc.Mirror("prj_1", docs[:1], avery, "Sync"); err != nil {
		t.Fatalf("Mirror() shrink error = %v", err)
	}
	if _, err := os.Stat(filepath.Join(tempDir, "prj_1", "documents", "okrs-doc_b.md")); !os.IsNotExist(err) {
		t.Fatalf("expected doc_b to be removed by mirror, stat err = %v", err)
	}

	if _, err := svc.RemoveDocument("prj_1", "doc_a", avery, "Delete Strategy"); err != nil {
		t.Fatalf("RemoveDocument() error = %v", err)
	}
	if _, err := svc.RemoveDocument("prj_1", "doc_a", avery, "Delete again"); !errors.Is(err, ErrNoChanges) {
		t.Fatalf("expected ErrNoChanges, got %v", err)
	}
}

func TestPushToLocalRemote(t *testing.T) {
	tempDir := t.TempDir()
	remoteDir := filepath.Join(t.TempDir(), "remote.git")
	if _, err := git.PlainInit(remoteDir, true); err != nil {
		t.Fatalf("init bare remote: %v", err)
	}

	svc := New(tempDir)
	commit, err := svc.CommitDocument("prj_1", DocumentFile{ID: "doc_1", Title: "Vision", Content: "# Vision\n"}, avery, "Create Vision")
	if err != nil {
		t.Fatalf("CommitDocument() error = %v", err)
	}
	if err := svc.Push(context.Background(), "prj_1", remoteDir, "skribe", ""); err != nil {
		t.Fatalf("Push() error = %v", err)
	}
	if err := svc.Push(context.Background(), "prj_1", remoteDir, "skribe", ""); err != nil {
		t.Fatalf("Push() up-to-date error = %v", err)
	}

	remote, err := git.PlainOpen(remoteDir)
	if err != nil {
		t.Fatalf("open remote: %v", err)
	}
	ref, err := remote.Reference(plumbing.NewBranchReferenceName("skribe"), true)
	if err != nil {
		t.Fatalf("remote branch missing: %v", err)
	}
	if ref.Hash().String() != commit.Hash {
		t.Fatalf("remote at %s, want %s", ref.Hash(), commit.Hash)
	}
}

func TestConcurrentCommitsSameProject(t *testing.T) {
	svc := New(t.TempDir())

	const writers = 8
	var wg sync.WaitGroup
	errCh := make(chan error, writers)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			doc := DocumentFile{ID: fmt.Sprintf("doc_%02d", idx), Title: "Note", Content: fmt.Sprintf("note %d\n", idx)}
			if _, err := svc.CommitDocument("prj_1", doc, avery, fmt.Sprintf("Commit %02d", idx)); err != nil {
				errCh <- err
			}
		}(i)
	}
	wg.Wait()
	close(errCh)
	for err := range errCh {
		t.Fatalf("CommitDocument() concurrent error = %v", err)
	}

	for i := 0; i < writers; i++ {
		history, err := svc.History("prj_1", fmt.Sprintf("doc_%02d", i), 0)
		if err != nil {
			t.Fatalf("History() error = %v", err)
		}
		if len(history) != 1 {
			t.Fatalf("doc_%02d: expected 1 commit, got %d", i, len(history))
		}
	}
}
