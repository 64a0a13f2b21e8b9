package server

import (
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/poiesic/querysafe"
	"github.com/poiesic/querysafe/chat"
	"github.com/poiesic/querysafe/core"
	"github.com/poiesic/querysafe/ingestion"
	"github.com/poiesic/querysafe/storage"
)

type errorBody struct {
	Error string `json:"error"`
}

type chatRequest struct {
	Query          string `json:"query"`
	ChatbotID      string `json:"chatbot_id"`
	ConversationID string `json:"conversation_id"`
	Visitor        string `json:"visitor_id"`
}

type match struct {
	Content  string  `json:"content"`
	Distance float32 `json:"distance"`
}

type chatResponse struct {
	Answer         string  `json:"answer"`
	ConversationID string  `json:"conversation_id"`
	Generation     uint64  `json:"generation"`
	Matches        []match `json:"matches"`
}

type documentView struct {
	ID         uint64    `json:"id"`
	Name       string    `json:"name"`
	MimeType   string    `json:"mime_type,omitempty"`
	Size       int64     `json:"size"`
	UploadedAt time.Time `json:"uploaded_at"`
}

type statusView struct {
	ChatbotID       string    `json:"chatbot_id"`
	Status          string    `json:"status"`
	Generation      uint64    `json:"generation"`
	Chunks          int       `json:"chunks"`
	Model           string    `json:"model,omitempty"`
	LastError       string    `json:"last_error,omitempty"`
	FailedDocuments []string  `json:"failed_documents,omitempty"`
	UpdatedAt       time.Time `json:"updated_at,omitzero"`
}

type conversationView struct {
	ID          string    `json:"id"`
	Visitor     string    `json:"visitor_id,omitempty"`
	StartedAt   time.Time `json:"started_at"`
	LastUpdated time.Time `json:"last_updated"`
}

type messageView struct {
	Role      string    `json:"role"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

func newDocumentView(doc *core.Document) documentView {
	return documentView{
		ID:         uint64(doc.Id),
		Name:       doc.Name,
		MimeType:   doc.MimeType,
		Size:       doc.Size,
		UploadedAt: doc.UploadedAt,
	}
}

func newStatusView(state *core.TenantState) statusView {
	return statusView{
		ChatbotID:       string(state.Tenant),
		Status:          string(state.Status),
		Generation:      state.Generation,
		Chunks:          state.ChunkCount,
		Model:           state.ModelTag,
		LastError:       state.LastError,
		FailedDocuments: state.FailedDocuments,
		UpdatedAt:       state.UpdatedAt,
	}
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) chat(c *gin.Context) {
	var req chatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorBody{Error: "invalid request body"})
		return
	}
	if strings.TrimSpace(req.ChatbotID) == "" {
		c.JSON(http.StatusBadRequest, errorBody{Error: "chatbot_id is required"})
		return
	}

	resp, err := s.engine.Answer(c.Request.Context(), chat.Request{
		Tenant:         core.TenantID(req.ChatbotID),
		Query:          req.Query,
		ConversationID: req.ConversationID,
		Visitor:        req.Visitor,
	})
	if err != nil {
		s.writeError(c, err)
		return
	}

	matches := make([]match, len(resp.Retrieved))
	for i, r := range resp.Retrieved {
		matches[i] = match{Content: r.Text, Distance: 1 - r.Score}
	}
	c.JSON(http.StatusOK, chatResponse{
		Answer:         resp.Answer,
		ConversationID: resp.ConversationID,
		Generation:     resp.Generation,
		Matches:        matches,
	})
}

func (s *Server) listChatbots(c *gin.Context) {
	states, err := s.engine.Coordinator().Tenants(c.Request.Context())
	if err != nil {
		s.writeError(c, err)
		return
	}
	views := make([]statusView, len(states))
	for i, state := range states {
		views[i] = newStatusView(state)
	}
	c.JSON(http.StatusOK, gin.H{"chatbots": views})
}

func (s *Server) status(c *gin.Context) {
	state, err := s.engine.Coordinator().State(c.Request.Context(), core.TenantID(c.Param("tenant")))
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, newStatusView(state))
}

func (s *Server) listDocuments(c *gin.Context) {
	docs, err := s.engine.Documents(c.Request.Context(), core.TenantID(c.Param("tenant")))
	if err != nil {
		s.writeError(c, err)
		return
	}
	views := make([]documentView, len(docs))
	for i, doc := range docs {
		views[i] = newDocumentView(doc)
	}
	c.JSON(http.StatusOK, gin.H{"documents": views})
}

func (s *Server) uploadDocuments(c *gin.Context) {
	tenant := core.TenantID(c.Param("tenant"))
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, s.maxUploadBytes)

	form, err := c.MultipartForm()
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			c.JSON(http.StatusRequestEntityTooLarge, errorBody{Error: "upload too large"})
			return
		}
		c.JSON(http.StatusBadRequest, errorBody{Error: "expected multipart form with field \"files\""})
		return
	}

	headers := form.File["files"]
	uploads := make([]querysafe.Upload, 0, len(headers))
	for _, fh := range headers {
		upload, err := readUpload(fh)
		if err != nil {
			s.writeError(c, err)
			return
		}
		uploads = append(uploads, upload)
	}

	docs, err := s.engine.Upload(c.Request.Context(), tenant, uploads...)
	if err != nil {
		s.writeError(c, err)
		return
	}
	views := make([]documentView, len(docs))
	for i, doc := range docs {
		views[i] = newDocumentView(doc)
	}
	c.JSON(http.StatusAccepted, gin.H{
		"chatbot_id": string(tenant),
		"status":     string(core.StatusTraining),
		"documents":  views,
	})
}

func readUpload(fh *multipart.FileHeader) (querysafe.Upload, error) {
	f, err := fh.Open()
	if err != nil {
		return querysafe.Upload{}, fmt.Errorf("failed to open %s: %w", fh.Filename, err)
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return querysafe.Upload{}, fmt.Errorf("failed to read %s: %w", fh.Filename, err)
	}
	return querysafe.Upload{
		Name:     fh.Filename,
		MimeType: fh.Header.Get("Content-Type"),
		Data:     data,
	}, nil
}

func (s *Server) deleteDocument(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		c.JSON(http.StatusBadRequest, errorBody{Error: "invalid document id"})
		return
	}
	tenant := core.TenantID(c.Param("tenant"))
	if err := s.engine.DeleteDocument(c.Request.Context(), tenant, core.ID(id)); err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{
		"chatbot_id": string(tenant),
		"status":     string(core.StatusTraining),
	})
}

func (s *Server) deleteChatbot(c *gin.Context) {
	if err := s.engine.DeleteChatbot(c.Request.Context(), core.TenantID(c.Param("tenant"))); err != nil {
		s.writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) listConversations(c *gin.Context) {
	convs, err := s.engine.Conversations(c.Request.Context(), core.TenantID(c.Param("tenant")))
	if err != nil {
		s.writeError(c, err)
		return
	}
	views := make([]conversationView, len(convs))
	for i, conv := range convs {
		views[i] = conversationView{
			ID:          conv.Id,
			Visitor:     conv.Visitor,
			StartedAt:   conv.StartedAt,
			LastUpdated: conv.LastUpdated,
		}
	}
	c.JSON(http.StatusOK, gin.H{"conversations": views})
}

func (s *Server) conversationHistory(c *gin.Context) {
	limit := DefaultHistoryLimit
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			c.JSON(http.StatusBadRequest, errorBody{Error: "invalid limit"})
			return
		}
		limit = n
	}

	id := c.Param("id")
	msgs, err := s.engine.History(c.Request.Context(), core.TenantID(c.Param("tenant")), id, limit)
	if err != nil {
		s.writeError(c, err)
		return
	}
	views := make([]messageView, len(msgs))
	for i, msg := range msgs {
		views[i] = messageView{Role: strings.ToLower(msg.Role.Label()), Text: msg.Text, Timestamp: msg.Timestamp}
	}
	c.JSON(http.StatusOK, gin.H{"conversation_id": id, "messages": views})
}

func (s *Server) deleteConversation(c *gin.Context) {
	err := s.engine.DeleteConversation(c.Request.Context(), core.TenantID(c.Param("tenant")), c.Param("id"))
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// writeError maps engine errors onto HTTP responses.
func (s *Server) writeError(c *gin.Context, err error) {
	var (
		status int
		msg    string
	)
	switch {
	case errors.Is(err, core.ErrInvalidTenant),
		errors.Is(err, core.ErrEmptyContent),
		errors.Is(err, chat.ErrEmptyQuery),
		errors.Is(err, querysafe.ErrNoFiles):
		status, msg = http.StatusBadRequest, err.Error()
	case errors.Is(err, core.ErrInputTooLong):
		status, msg = http.StatusRequestEntityTooLarge, "query too long"
	case errors.Is(err, storage.ErrNotFound):
		status, msg = http.StatusNotFound, "not found"
	case core.IsNotIndexed(err):
		status, msg = http.StatusConflict, "chatbot not ready"
	case errors.As(err, new(*core.GenerationError)):
		status, msg = http.StatusBadGateway, "generation unavailable"
	case errors.As(err, new(*core.EmbeddingError)):
		status, msg = http.StatusBadGateway, "embedding unavailable"
	case errors.Is(err, ingestion.ErrRunInProgress):
		status, msg = http.StatusConflict, "chatbot is being rebuilt"
	case errors.Is(err, ingestion.ErrCoordinatorClosed):
		status, msg = http.StatusServiceUnavailable, "shutting down"
	default:
		status, msg = http.StatusInternalServerError, "internal error"
	}
	_ = c.Error(err)
	c.JSON(status, errorBody{Error: msg})
}
