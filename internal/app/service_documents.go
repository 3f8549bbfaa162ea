package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"skribe/api/internal/editor"
	"skribe/api/internal/gitrepo"
	"skribe/api/internal/rbac"
	"skribe/api/internal/search"
	"skribe/api/internal/selection"
	"skribe/api/internal/store"
	"skribe/api/internal/util"
)

const (
	maxProjectNameLength = 120
	maxTitleLength       = 200
	editLockTTL          = 30 * time.Second
)

type DocumentPatch struct {
	Title   *string `json:"title"`
	Type    *string `json:"type"`
	Content *string `json:"content"`
}

type EditInput struct {
	Tool      string             `json:"tool"`
	Input     map[string]any     `json:"input"`
	Selection *selection.Context `json:"selection"`
}

type SelectionInput struct {
	Nodes    []string        `json:"nodes"`
	Anchor   selection.Point `json:"anchor"`
	Focus    selection.Point `json:"focus"`
	Snapshot string          `json:"snapshot"`
}

func projectPayload(p store.Project) map[string]any {
	return map[string]any{
		"id":          p.ID,
		"ownerId":     p.OwnerID,
		"name":        p.Name,
		"description": p.Description,
		"role":        p.Role,
		"createdAt":   p.CreatedAt,
		"updatedAt":   p.UpdatedAt,
	}
}

func documentPayload(d store.Document) map[string]any {
	return map[string]any{
		"id":        d.ID,
		"projectId": d.ProjectID,
		"title":     d.Title,
		"type":      d.Type,
		"content":   d.Content,
		"updatedBy": d.UpdatedBy,
		"createdAt": d.CreatedAt,
		"updatedAt": d.UpdatedAt,
	}
}

// documentSummary omits content for list views.
func documentSummary(d store.Document) map[string]any {
	payload := documentPayload(d)
	delete(payload, "content")
	return payload
}

func (s *Service) ListProjects(ctx context.Context, session Session) ([]map[string]any, error) {
	projects, err := s.store.ListProjectsForUser(ctx, session.UserID)
	if err != nil {
		return nil, fmt.Errorf("list projects: %w", err)
	}
	items := make([]map[string]any, 0, len(projects))
	for _, p := range projects {
		items = append(items, projectPayload(p))
	}
	return items, nil
}

func (s *Service) CreateProject(ctx context.Context, session Session, name, description string) (map[string]any, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, validationError("name is required", nil)
	}
	if len([]rune(name)) > maxProjectNameLength {
		return nil, validationError(fmt.Sprintf("name must be at most %d characters", maxProjectNameLength), nil)
	}
	now := time.Now().UTC()
	project := store.Project{
		ID:          util.NewID("prj"),
		OwnerID:     session.UserID,
		Name:        name,
		Description: strings.TrimSpace(description),
		Role:        string(rbac.RoleOwner),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.store.InsertProject(ctx, project); err != nil {
		return nil, fmt.Errorf("insert project: %w", err)
	}
	return projectPayload(project), nil
}

func (s *Service) GetProject(ctx context.Context, session Session, projectID string) (map[string]any, error) {
	role, err := s.authorizeProject(ctx, session, projectID, rbac.ActionRead)
	if err != nil {
		return nil, err
	}
	project, err := s.store.GetProject(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("load project: %w", err)
	}
	project.Role = role
	docs, err := s.ListDocuments(ctx, session, projectID)
	if err != nil {
		return nil, err
	}
	return map[string]any{"project": projectPayload(project), "documents": docs}, nil
}

func (s *Service) UpdateProject(ctx context.Context, session Session, projectID string, name, description *string) (map[string]any, error) {
	role, err := s.authorizeProject(ctx, session, projectID, rbac.ActionManage)
	if err != nil {
		return nil, err
	}
	project, err := s.store.GetProject(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("load project: %w", err)
	}
	if name != nil {
		trimmed := strings.TrimSpace(*name)
		if trimmed == "" {
			return nil, validationError("name cannot be empty", nil)
		}
		project.Name = trimmed
	}
	if description != nil {
		project.Description = strings.TrimSpace(*description)
	}
	if err := s.store.UpdateProject(ctx, projectID, project.Name, project.Description); err != nil {
		return nil, fmt.Errorf("update project: %w", err)
	}
	project.Role = role
	project.UpdatedAt = time.Now().UTC()
	return projectPayload(project), nil
}

func (s *Service) DeleteProject(ctx context.Context, session Session, projectID string) error {
	if _, err := s.authorizeProject(ctx, session, projectID, rbac.ActionManage); err != nil {
		return err
	}
	docs, err := s.store.ListDocuments(ctx, projectID)
	if err != nil {
		return fmt.Errorf("list documents: %w", err)
	}
	if err := s.store.DeleteProject(ctx, projectID); err != nil {
		return fmt.Errorf("delete project: %w", err)
	}
	for _, doc := range docs {
		s.search.DeleteDocument(doc.ID)
	}
	return nil
}

func (s *Service) ListDocuments(ctx context.Context, session Session, projectID string) ([]map[string]any, error) {
	if _, err := s.authorizeProject(ctx, session, projectID, rbac.ActionRead); err != nil {
		return nil, err
	}
	docs, err := s.store.ListDocuments(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	items := make([]map[string]any, 0, len(docs))
	for _, doc := range docs {
		items = append(items, documentSummary(doc))
	}
	return items, nil
}

func (s *Service) CreateDocument(ctx context.Context, session Session, projectID, title, docType, content string) (map[string]any, error) {
	if _, err := s.authorizeProject(ctx, session, projectID, rbac.ActionWrite); err != nil {
		return nil, err
	}
	title = strings.TrimSpace(title)
	if title == "" {
		return nil, validationError("title is required", nil)
	}
	if len([]rune(title)) > maxTitleLength {
		return nil, validationError(fmt.Sprintf("title must be at most %d characters", maxTitleLength), nil)
	}
	docType = nonEmpty(strings.TrimSpace(docType), "custom")
	if !store.ValidDocumentType(docType) {
		return nil, validationError("unknown document type", map[string]any{"allowed": store.DocumentTypes})
	}

	now := time.Now().UTC()
	doc := store.Document{
		ID:        util.NewID("doc"),
		ProjectID: projectID,
		Title:     title,
		Type:      docType,
		Content:   content,
		UpdatedBy: session.UserName,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.store.InsertDocument(ctx, doc); err != nil {
		return nil, fmt.Errorf("insert document: %w", err)
	}
	s.recordRevision(session, doc, "Create "+doc.Title)
	return documentPayload(doc), nil
}

func (s *Service) GetDocument(ctx context.Context, session Session, documentID string) (map[string]any, error) {
	doc, role, err := s.authorizeDocument(ctx, session, documentID, rbac.ActionRead)
	if err != nil {
		return nil, err
	}
	payload := documentPayload(doc)
	payload["role"] = role
	return payload, nil
}

func (s *Service) UpdateDocument(ctx context.Context, session Session, documentID string, patch DocumentPatch) (map[string]any, error) {
	doc, _, err := s.authorizeDocument(ctx, session, documentID, rbac.ActionWrite)
	if err != nil {
		return nil, err
	}
	if patch.Content != nil {
		locked, release, err := s.lockDocument(ctx, doc.ID, editLockTTL)
		if err != nil {
			return nil, err
		}
		defer release()
		doc = locked
	}

	metaChanged := false
	if patch.Title != nil {
		title := strings.TrimSpace(*patch.Title)
		if title == "" {
			return nil, validationError("title cannot be empty", nil)
		}
		metaChanged = metaChanged || title != doc.Title
		doc.Title = title
	}
	if patch.Type != nil {
		if !store.ValidDocumentType(*patch.Type) {
			return nil, validationError("unknown document type", map[string]any{"allowed": store.DocumentTypes})
		}
		metaChanged = metaChanged || *patch.Type != doc.Type
		doc.Type = *patch.Type
	}
	if metaChanged {
		if err := s.store.UpdateDocumentMeta(ctx, doc.ID, doc.Title, doc.Type, session.UserName); err != nil {
			return nil, fmt.Errorf("update document: %w", err)
		}
	}

	contentChanged := patch.Content != nil && *patch.Content != doc.Content
	if contentChanged {
		doc.Content = *patch.Content
		if err := s.store.UpdateDocumentContent(ctx, doc.ID, doc.Content, session.UserName); err != nil {
			return nil, fmt.Errorf("update document content: %w", err)
		}
	}

	if metaChanged || contentChanged {
		doc.UpdatedBy = session.UserName
		doc.UpdatedAt = time.Now().UTC()
		s.recordRevision(session, doc, "Update "+doc.Title)
	}
	return documentPayload(doc), nil
}

func (s *Service) DeleteDocument(ctx context.Context, session Session, documentID string) error {
	doc, _, err := s.authorizeDocument(ctx, session, documentID, rbac.ActionWrite)
	if err != nil {
		return err
	}
	if err := s.store.DeleteDocument(ctx, doc.ID); err != nil {
		return fmt.Errorf("delete document: %w", err)
	}
	if _, err := s.git.RemoveDocument(doc.ProjectID, doc.ID, authorFor(session), "Delete "+doc.Title); err != nil && !errors.Is(err, gitrepo.ErrNoChanges) {
		log.Printf("app: remove document %s from repo: %v", doc.ID, err)
	}
	s.search.DeleteDocument(doc.ID)
	return nil
}

// EditDocument applies one edit tool call to the stored document. Tool
// failures are reported in the payload, not as errors.
func (s *Service) EditDocument(ctx context.Context, session Session, documentID string, input EditInput) (map[string]any, error) {
	if strings.TrimSpace(input.Tool) == "" {
		return nil, validationError("tool is required", nil)
	}
	if _, _, err := s.authorizeDocument(ctx, session, documentID, rbac.ActionWrite); err != nil {
		return nil, err
	}
	doc, release, err := s.lockDocument(ctx, documentID, editLockTTL)
	if err != nil {
		return nil, err
	}
	defer release()

	var sel *editor.Selection
	if input.Selection != nil {
		if input.Selection.Stale(doc.Content) {
			if input.Tool == editor.ToolReplaceSelection {
				return editPayload(editor.Result{
					Success:    false,
					NewContent: doc.Content,
					Message:    "The document changed since the text was selected. Select it again and retry.",
				}, doc), nil
			}
		} else {
			sel = input.Selection.Selection()
		}
	}

	if input.Input == nil {
		input.Input = map[string]any{}
	}
	res := editor.Execute(input.Tool, input.Input, doc.Content, sel)
	if res.Success && res.NewContent != doc.Content {
		doc.Content = res.NewContent
		if err := s.store.UpdateDocumentContent(ctx, doc.ID, doc.Content, session.UserName); err != nil {
			return nil, fmt.Errorf("update document content: %w", err)
		}
		doc.UpdatedBy = session.UserName
		doc.UpdatedAt = time.Now().UTC()
		s.recordRevision(session, doc, fmt.Sprintf("%s on %s", input.Tool, doc.Title))
	}
	return editPayload(res, doc), nil
}

func editPayload(res editor.Result, doc store.Document) map[string]any {
	payload := map[string]any{
		"success":  res.Success,
		"message":  res.Message,
		"content":  res.NewContent,
		"document": documentPayload(doc),
	}
	if res.Replacements > 0 {
		payload["replacements"] = res.Replacements
	}
	return payload
}

// ReconcileSelection maps a selection in the rendered document back to
// source offsets. Nodes default to the server's rendering of the source.
func (s *Service) ReconcileSelection(ctx context.Context, session Session, documentID string, input SelectionInput) (*selection.Context, error) {
	doc, _, err := s.authorizeDocument(ctx, session, documentID, rbac.ActionRead)
	if err != nil {
		return nil, err
	}
	source := doc.Content
	if input.Snapshot != "" {
		source = input.Snapshot
	}
	nodes := input.Nodes
	if len(nodes) == 0 {
		nodes = selection.RenderedNodes(source)
	}
	return selection.Reconcile(nodes, &selection.Range{Anchor: input.Anchor, Focus: input.Focus}, source), nil
}

func (s *Service) ListMessages(ctx context.Context, session Session, documentID string, limit int) ([]map[string]any, error) {
	if _, _, err := s.authorizeDocument(ctx, session, documentID, rbac.ActionRead); err != nil {
		return nil, err
	}
	messages, err := s.store.ListMessages(ctx, documentID, limit)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	items := make([]map[string]any, 0, len(messages))
	for _, m := range messages {
		items = append(items, map[string]any{
			"id":        m.ID,
			"role":      m.Role,
			"content":   m.Content,
			"edits":     m.Edits,
			"createdAt": m.CreatedAt,
		})
	}
	return items, nil
}

// lockDocument takes the write lock and then reads the document, so the
// caller edits the content as it stands once earlier writers are done.
func (s *Service) lockDocument(ctx context.Context, documentID string, ttl time.Duration) (store.Document, func(), error) {
	release, err := s.locker.LockDocument(ctx, documentID, ttl)
	if err != nil {
		return store.Document{}, nil, err
	}
	doc, err := s.store.GetDocument(ctx, documentID)
	if err != nil {
		release()
		if errors.Is(err, sql.ErrNoRows) {
			return store.Document{}, nil, notFound("Document not found")
		}
		return store.Document{}, nil, fmt.Errorf("reload document: %w", err)
	}
	return doc, release, nil
}

// recordRevision commits the document to the project repository and
// refreshes the search index. Postgres stays the source of truth, so
// failures are logged.
func (s *Service) recordRevision(session Session, doc store.Document, message string) {
	file := gitrepo.DocumentFile{ID: doc.ID, Title: doc.Title, Content: doc.Content}
	if _, err := s.git.CommitDocument(doc.ProjectID, file, authorFor(session), message); err != nil && !errors.Is(err, gitrepo.ErrNoChanges) {
		log.Printf("app: commit document %s: %v", doc.ID, err)
	}
	s.search.IndexDocument(search.DocumentRecord{
		ID:        doc.ID,
		ProjectID: doc.ProjectID,
		Title:     doc.Title,
		Type:      doc.Type,
		Content:   doc.Content,
		UpdatedAt: doc.UpdatedAt.Unix(),
	})
}
