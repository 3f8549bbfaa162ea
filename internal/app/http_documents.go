package app

import (
	"log"
	"net/http"
	"strconv"

	"skribe/api/internal/assistant"
)

func (s *HTTPServer) handleDocuments(w http.ResponseWriter, r *http.Request, session Session, documentID string, parts []string) {
	if len(parts) == 3 {
		switch r.Method {
		case http.MethodGet:
			payload, err := s.service.GetDocument(r.Context(), session, documentID)
			if err != nil {
				writeServiceError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"document": payload})
		case http.MethodPatch:
			var body DocumentPatch
			if err := decodeBody(r, &body); err != nil {
				writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
				return
			}
			payload, err := s.service.UpdateDocument(r.Context(), session, documentID, body)
			if err != nil {
				writeServiceError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"document": payload})
		case http.MethodDelete:
			if err := s.service.DeleteDocument(r.Context(), session, documentID); err != nil {
				writeServiceError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"ok": true})
		default:
			writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
		}
		return
	}

	if len(parts) == 4 && parts[3] == "edit" && r.Method == http.MethodPost {
		var body EditInput
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		payload, err := s.service.EditDocument(r.Context(), session, documentID, body)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, payload)
		return
	}

	if len(parts) == 4 && parts[3] == "selection" && r.Method == http.MethodPost {
		var body SelectionInput
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		resolved, err := s.service.ReconcileSelection(r.Context(), session, documentID, body)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"selection": resolved})
		return
	}

	if len(parts) == 4 && parts[3] == "messages" && r.Method == http.MethodGet {
		limit, err := queryInt(r, "limit", messagesListLimit)
		if err != nil {
			writeError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", err.Error(), nil)
			return
		}
		items, err := s.service.ListMessages(r.Context(), session, documentID, limit)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"messages": items})
		return
	}

	if len(parts) == 4 && parts[3] == "chat" && r.Method == http.MethodPost {
		s.handleChat(w, r, session, documentID)
		return
	}

	if len(parts) == 4 && parts[3] == "export" && r.Method == http.MethodGet {
		result, err := s.service.ExportDocument(r.Context(), session, documentID, r.URL.Query().Get("format"))
		if err != nil {
			writeServiceError(w, err)
			return
		}
		w.Header().Set("Content-Disposition", "attachment; filename=\""+result.Filename+"\"")
		w.Header().Set("Content-Type", result.MimeType)
		w.Header().Set("Content-Length", strconv.Itoa(len(result.Data)))
		if result.URL != "" {
			w.Header().Set("X-Export-URL", result.URL)
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(result.Data)
		return
	}

	if len(parts) == 4 && parts[3] == "history" && r.Method == http.MethodGet {
		limit, err := queryInt(r, "limit", defaultHistoryLimit)
		if err != nil {
			writeError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", err.Error(), nil)
			return
		}
		payload, err := s.service.DocumentHistory(r.Context(), session, documentID, limit)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, payload)
		return
	}

	if len(parts) == 5 && parts[3] == "history" && r.Method == http.MethodGet {
		payload, err := s.service.DocumentAt(r.Context(), session, documentID, parts[4])
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, payload)
		return
	}

	writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
}

// handleChat streams text, edit, done and error events, or answers with a
// single JSON body when stream=false.
func (s *HTTPServer) handleChat(w http.ResponseWriter, r *http.Request, session Session, documentID string) {
	var body ChatInput
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}

	if r.URL.Query().Get("stream") == "false" {
		payload, err := s.service.Chat(r.Context(), session, documentID, body, nil)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, payload)
		return
	}

	stream := newEventStream(w)
	emit := func(event assistant.Event) {
		var err error
		switch event.Type {
		case assistant.EventText:
			err = stream.send("text", map[string]any{"text": event.Text})
		case assistant.EventEdit:
			err = stream.send("edit", map[string]any{
				"tool":    event.Edit.Tool,
				"input":   event.Edit.Input,
				"success": event.Edit.Success,
				"message": event.Edit.Message,
				"content": event.Content,
			})
		}
		if err != nil {
			log.Printf("app: chat stream for document %s: %v", documentID, err)
		}
	}

	payload, err := s.service.Chat(r.Context(), session, documentID, body, emit)
	if err != nil {
		if !stream.started {
			writeServiceError(w, err)
			return
		}
		_, code, message, _ := mapError(err)
		_ = stream.send("error", map[string]any{"code": code, "error": message})
		return
	}
	_ = stream.send("done", payload)
}
