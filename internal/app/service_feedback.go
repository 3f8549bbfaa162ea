package app

import (
	"context"
	"fmt"
	"log"
	"strings"

	"skribe/api/internal/email"
	"skribe/api/internal/rbac"
	"skribe/api/internal/search"
	"skribe/api/internal/store"
	"skribe/api/internal/util"
)

const (
	maxFeedbackLength = 5000
	maxSearchLimit    = 50
)

type FeedbackInput struct {
	Rating    int    `json:"rating"`
	Message   string `json:"message"`
	Page      string `json:"page"`
	ProjectID string `json:"projectId"`
}

func (s *Service) SubmitFeedback(ctx context.Context, session Session, input FeedbackInput) (map[string]any, error) {
	if input.Rating < 1 || input.Rating > 5 {
		return nil, validationError("rating must be between 1 and 5", nil)
	}
	message := strings.TrimSpace(input.Message)
	if len(message) > maxFeedbackLength {
		return nil, validationError(fmt.Sprintf("message must be at most %d characters", maxFeedbackLength), nil)
	}

	projectName := ""
	if input.ProjectID != "" {
		if _, err := s.authorizeProject(ctx, session, input.ProjectID, rbac.ActionRead); err != nil {
			return nil, err
		}
		if project, err := s.store.GetProject(ctx, input.ProjectID); err == nil {
			projectName = project.Name
		}
	}

	item := store.Feedback{
		ID:        util.NewID("fbk"),
		UserID:    session.UserID,
		ProjectID: input.ProjectID,
		Rating:    input.Rating,
		Message:   message,
		Page:      strings.TrimSpace(input.Page),
	}
	if err := s.store.InsertFeedback(ctx, item); err != nil {
		return nil, fmt.Errorf("insert feedback: %w", err)
	}

	if to := s.cfg.FeedbackNotifyEmail; to != "" && s.mailer != nil && s.mailer.IsConfigured() {
		data := email.FeedbackData{
			UserName:    session.UserName,
			UserEmail:   session.Email,
			ProjectName: projectName,
			Rating:      item.Rating,
			Message:     item.Message,
			Page:        item.Page,
		}
		go func() {
			if err := s.mailer.SendFeedbackNotification(to, data); err != nil {
				log.Printf("app: feedback notification %s: %v", item.ID, err)
			}
		}()
	}
	return map[string]any{"id": item.ID, "ok": true}, nil
}

func (s *Service) ListFeedback(ctx context.Context, session Session, projectID string, limit int) ([]map[string]any, error) {
	if _, err := s.authorizeProject(ctx, session, projectID, rbac.ActionManage); err != nil {
		return nil, err
	}
	items, err := s.store.ListFeedback(ctx, projectID, limit)
	if err != nil {
		return nil, fmt.Errorf("list feedback: %w", err)
	}
	out := make([]map[string]any, 0, len(items))
	for _, f := range items {
		out = append(out, map[string]any{
			"id":        f.ID,
			"userId":    f.UserID,
			"rating":    f.Rating,
			"message":   f.Message,
			"page":      f.Page,
			"createdAt": f.CreatedAt,
		})
	}
	return out, nil
}

// Search is scoped to the projects the caller belongs to.
func (s *Service) Search(ctx context.Context, session Session, text, projectID string, limit, offset int) (search.Response, error) {
	if limit <= 0 || limit > maxSearchLimit {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	projects, err := s.store.ListProjectsForUser(ctx, session.UserID)
	if err != nil {
		return search.Response{}, fmt.Errorf("list projects: %w", err)
	}
	ids := make([]string, 0, len(projects))
	for _, p := range projects {
		ids = append(ids, p.ID)
	}
	return s.search.Search(ctx, search.Query{
		Text:       text,
		UserID:     session.UserID,
		ProjectIDs: ids,
		ProjectID:  projectID,
		Limit:      limit,
		Offset:     offset,
	}), nil
}
