package app

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"skribe/api/internal/assistant"
	"skribe/api/internal/rbac"
	"skribe/api/internal/selection"
	"skribe/api/internal/store"
	"skribe/api/internal/util"
)

const (
	chatHistoryLimit  = 20
	chatLockTTL       = 5 * time.Minute
	maxMessageLength  = 20000
	messagesListLimit = 200
)

type ChatInput struct {
	Message   string             `json:"message"`
	Selection *selection.Context `json:"selection"`
}

func (s *Service) ChatEnabled() bool {
	return s.chat != nil
}

// Chat runs one assistant turn against the document. Every tool call the
// model makes is applied to the running content; the final content is
// persisted once the run ends, even when the model errors part way.
func (s *Service) Chat(ctx context.Context, session Session, documentID string, input ChatInput, emit func(assistant.Event)) (map[string]any, error) {
	if s.chat == nil {
		return nil, domainError(http.StatusServiceUnavailable, "CHAT_UNAVAILABLE", "Chat is not configured", nil)
	}
	message := strings.TrimSpace(input.Message)
	if message == "" {
		return nil, validationError("message is required", nil)
	}
	if len(message) > maxMessageLength {
		return nil, validationError(fmt.Sprintf("message must be at most %d characters", maxMessageLength), nil)
	}

	if _, _, err := s.authorizeDocument(ctx, session, documentID, rbac.ActionChat); err != nil {
		return nil, err
	}
	doc, release, err := s.lockDocument(ctx, documentID, chatLockTTL)
	if err != nil {
		return nil, err
	}
	defer release()

	stored, err := s.store.ListMessages(ctx, doc.ID, chatHistoryLimit)
	if err != nil {
		return nil, fmt.Errorf("load chat history: %w", err)
	}
	history := make([]assistant.ChatMessage, 0, len(stored))
	for _, m := range stored {
		history = append(history, assistant.ChatMessage{Role: m.Role, Content: m.Content})
	}

	if err := s.store.InsertMessage(ctx, store.Message{
		ID:         util.NewID("msg"),
		DocumentID: doc.ID,
		Role:       assistant.RoleUser,
		Content:    message,
	}); err != nil {
		return nil, fmt.Errorf("save user message: %w", err)
	}

	out, runErr := s.chat.Run(ctx, assistant.Input{
		DocumentType: doc.Type,
		Title:        doc.Title,
		Content:      doc.Content,
		Selection:    input.Selection,
		History:      history,
		Message:      message,
	}, emit)

	// The request context may already be cancelled; persistence must still
	// happen for edits the client has seen.
	saveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()

	if out.Changed {
		doc.Content = out.Content
		if err := s.store.UpdateDocumentContent(saveCtx, doc.ID, doc.Content, session.UserName); err != nil {
			return nil, fmt.Errorf("update document content: %w", err)
		}
		doc.UpdatedBy = session.UserName
		doc.UpdatedAt = time.Now().UTC()
		s.recordRevision(session, doc, fmt.Sprintf("Assistant edit on %s (%d tool calls)", doc.Title, len(out.Edits)))
	}

	if runErr != nil {
		log.Printf("app: chat on document %s: %v", doc.ID, runErr)
		return nil, domainError(http.StatusBadGateway, "CHAT_FAILED", "The assistant could not complete the request", nil)
	}

	edits, err := json.Marshal(out.Edits)
	if err != nil {
		return nil, fmt.Errorf("encode edits: %w", err)
	}
	reply := out.Reply
	if reply == "" && out.Changed {
		reply = "Updated the document."
	}
	if err := s.store.InsertMessage(saveCtx, store.Message{
		ID:         util.NewID("msg"),
		DocumentID: doc.ID,
		Role:       assistant.RoleAssistant,
		Content:    reply,
		Edits:      edits,
	}); err != nil {
		return nil, fmt.Errorf("save assistant message: %w", err)
	}

	return map[string]any{
		"reply":     reply,
		"content":   out.Content,
		"changed":   out.Changed,
		"edits":     out.Edits,
		"truncated": out.Truncated,
		"document":  documentPayload(doc),
	}, nil
}
