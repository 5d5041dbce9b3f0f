package server

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/MarcoPoloResearchLab/notesync/internal/auth"
	"github.com/MarcoPoloResearchLab/notesync/internal/notes"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
)

const (
	userIDContextKey         = "notesync_user_id"
	accessTokenQueryKey      = "access_token"
	defaultHeartbeatInterval = 25 * time.Second
)

var (
	errMissingTokenManager  = errors.New("token manager dependency required")
	errMissingNotesService  = errors.New("notes service dependency required")
	errInvalidAuthorization = errors.New("authorization header missing or invalid")
)

// TokenValidator resolves a bearer token to the owner it was issued for.
type TokenValidator interface {
	ValidateToken(token string) (string, error)
}

type Dependencies struct {
	TokenManager      TokenValidator
	NotesService      *notes.Service
	Realtime          *RealtimeDispatcher
	Logger            *zap.Logger
	HeartbeatInterval time.Duration
}

func NewHTTPHandler(deps Dependencies) (http.Handler, error) {
	if deps.TokenManager == nil {
		return nil, errMissingTokenManager
	}
	if deps.NotesService == nil {
		return nil, errMissingNotesService
	}

	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	realtime := deps.Realtime
	if realtime == nil {
		realtime = NewRealtimeDispatcher()
	}
	heartbeat := deps.HeartbeatInterval
	if heartbeat <= 0 {
		heartbeat = defaultHeartbeatInterval
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(corsMiddleware())

	handler := &httpHandler{
		tokens:            deps.TokenManager,
		notesService:      deps.NotesService,
		realtime:          realtime,
		logger:            logger,
		heartbeatInterval: heartbeat,
	}

	protected := router.Group("/")
	protected.Use(handler.authorizeRequest)
	protected.POST("/notes", handler.handleCreateNote)
	protected.GET("/notes", handler.handleListNotes)
	protected.GET("/notes/events", handler.handleNoteEvents)
	protected.PATCH("/notes/:id", handler.handleUpdateNote)
	protected.DELETE("/notes/:id", handler.handleDeleteNote)

	return router, nil
}

func corsMiddleware() gin.HandlerFunc {
	return cors.New(cors.Config{
		AllowAllOrigins: true,
		AllowMethods:    []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowHeaders:    []string{"Authorization", "Content-Type", "Last-Event-ID"},
		MaxAge:          12 * time.Hour,
	})
}

type httpHandler struct {
	tokens            TokenValidator
	notesService      *notes.Service
	realtime          *RealtimeDispatcher
	logger            *zap.Logger
	heartbeatInterval time.Duration
}

type createNoteResponse struct {
	ID string `json:"id"`
}

type listNotesResponse struct {
	Notes []notes.Note `json:"notes"`
}

func (h *httpHandler) handleCreateNote(c *gin.Context) {
	userID, ok := h.requestUser(c)
	if !ok {
		return
	}

	var payload notes.Note
	if err := c.ShouldBindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	if payload.UserID != "" && payload.UserID != userID {
		c.JSON(http.StatusForbidden, gin.H{"error": "forbidden"})
		return
	}
	payload.UserID = userID

	created, err := h.notesService.CreateNote(c.Request.Context(), userID, payload)
	if err != nil {
		h.respondServiceError(c, http.StatusInternalServerError, "create_failed", err)
		return
	}
	h.publishNoteChange(userID, created.ID)
	c.JSON(http.StatusCreated, createNoteResponse{ID: created.ID.String()})
}

func (h *httpHandler) handleListNotes(c *gin.Context) {
	userID, ok := h.requestUser(c)
	if !ok {
		return
	}
	if owner := strings.TrimSpace(c.Query("owner")); owner != "" && owner != userID.String() {
		c.JSON(http.StatusForbidden, gin.H{"error": "forbidden"})
		return
	}

	listed, err := h.notesService.ListNotes(c.Request.Context(), userID)
	if err != nil {
		h.respondServiceError(c, http.StatusInternalServerError, "list_failed", err)
		return
	}
	c.JSON(http.StatusOK, listNotesResponse{Notes: listed})
}

func (h *httpHandler) handleUpdateNote(c *gin.Context) {
	userID, ok := h.requestUser(c)
	if !ok {
		return
	}
	noteID, err := notes.NewNoteID(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_note_id"})
		return
	}

	var patch notes.NotePatch
	if err := c.ShouldBindJSON(&patch); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}

	if _, err := h.notesService.UpdateNote(c.Request.Context(), userID, noteID, patch); err != nil {
		if errors.Is(err, notes.ErrNoteNotFound) {
			h.respondServiceError(c, http.StatusNotFound, "not_found", err)
			return
		}
		h.respondServiceError(c, http.StatusInternalServerError, "update_failed", err)
		return
	}
	h.publishNoteChange(userID, noteID)
	c.Status(http.StatusNoContent)
}

func (h *httpHandler) handleDeleteNote(c *gin.Context) {
	userID, ok := h.requestUser(c)
	if !ok {
		return
	}
	noteID, err := notes.NewNoteID(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_note_id"})
		return
	}

	removed, err := h.notesService.DeleteNote(c.Request.Context(), userID, noteID)
	if err != nil {
		h.respondServiceError(c, http.StatusInternalServerError, "delete_failed", err)
		return
	}
	if removed {
		h.publishNoteChange(userID, noteID)
	}
	c.Status(http.StatusNoContent)
}

func (h *httpHandler) requestUser(c *gin.Context) (notes.UserID, bool) {
	userID, err := notes.NewUserID(c.GetString(userIDContextKey))
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return "", false
	}
	return userID, true
}

func (h *httpHandler) respondServiceError(c *gin.Context, status int, reason string, err error) {
	body := gin.H{"error": reason}
	var serviceErr *notes.ServiceError
	if errors.As(err, &serviceErr) {
		body["code"] = serviceErr.Code()
	}
	if status >= http.StatusInternalServerError {
		h.logger.Error("note request failed", zap.String("reason", reason), zap.Error(err))
	}
	c.JSON(status, body)
}

func (h *httpHandler) publishNoteChange(userID notes.UserID, noteIDs ...notes.NoteID) {
	h.realtime.Publish(RealtimeMessage{
		UserID:    userID,
		EventType: RealtimeEventNoteChanged,
		NoteIDs:   noteIDs,
		Timestamp: time.Now().UTC(),
	})
}

// authorizeRequest accepts a bearer header, or an access_token query parameter
// for EventSource clients that cannot set headers.
func (h *httpHandler) authorizeRequest(c *gin.Context) {
	token := ""
	if header := c.GetHeader("Authorization"); header != "" {
		if !strings.HasPrefix(header, "Bearer ") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": errInvalidAuthorization.Error()})
			return
		}
		token = strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	} else {
		token = strings.TrimSpace(c.Query(accessTokenQueryKey))
	}
	if token == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": errInvalidAuthorization.Error()})
		return
	}

	subject, err := h.tokens.ValidateToken(token)
	if err != nil {
		if errors.Is(err, auth.ErrExpiredToken) || errors.Is(err, jwt.ErrTokenExpired) {
			h.logger.Info("token validation failed", zap.Error(err))
		} else {
			h.logger.Warn("token validation failed", zap.Error(err))
		}
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	c.Set(userIDContextKey, subject)
	c.Next()
}
