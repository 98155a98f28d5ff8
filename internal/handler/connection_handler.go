package handler

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"sailsdock/internal/model"
	"sailsdock/internal/repository"
	applog "sailsdock/pkg/logger"
	"sailsdock/pkg/mq"
)

type EventPublisher interface {
	Publish(routingKey string, payload any) error
}

type ConnectionHandler struct {
	connections *repository.ConnectionRepository
	publisher   EventPublisher
	logger      *zap.Logger
}

func NewConnectionHandler(connections *repository.ConnectionRepository, publisher EventPublisher, logger *zap.Logger) *ConnectionHandler {
	return &ConnectionHandler{connections: connections, publisher: publisher, logger: logger}
}

type createConnectionRequest struct {
	Provider     string `json:"provider" binding:"required"`
	Email        string `json:"email" binding:"required,email"`
	AccessToken  string `json:"accessToken" binding:"required"`
	RefreshToken string `json:"refreshToken" binding:"required"`
	ExpiresIn    int    `json:"expiresIn"`
}

func (h *ConnectionHandler) Create(c *gin.Context) {
	var req createConnectionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.Provider != model.ProviderOutlook && req.Provider != model.ProviderGmail {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unsupported provider"})
		return
	}

	conn := &model.MailboxConnection{
		OwnerID:      c.GetString(ctxUserID),
		Provider:     req.Provider,
		Email:        req.Email,
		AccessToken:  req.AccessToken,
		RefreshToken: req.RefreshToken,
	}
	if req.ExpiresIn > 0 {
		expiresAt := time.Now().Add(time.Duration(req.ExpiresIn) * time.Second)
		conn.ExpiresAt = &expiresAt
	}

	if err := h.connections.Create(c.Request.Context(), conn); err != nil {
		applog.WithTrace(c.Request.Context(), h.logger).Error("connection create failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to connect mailbox"})
		return
	}
	c.JSON(http.StatusCreated, connectionView(conn))
}

func (h *ConnectionHandler) List(c *gin.Context) {
	conns, err := h.connections.ListByOwner(c.Request.Context(), c.GetString(ctxUserID))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list mailboxes"})
		return
	}
	views := make([]gin.H, 0, len(conns))
	for i := range conns {
		views = append(views, connectionView(&conns[i]))
	}
	c.JSON(http.StatusOK, gin.H{"connections": views})
}

func (h *ConnectionHandler) Delete(c *gin.Context) {
	err := h.connections.Delete(c.Request.Context(), c.Param("id"), c.GetString(ctxUserID))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "mailbox not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to disconnect mailbox"})
		return
	}
	c.Status(http.StatusNoContent)
}

type triggerSyncRequest struct {
	Folder      string `json:"folder"`
	MaxMessages int    `json:"maxMessages"`
}

// TriggerSync enqueues a sync run for the worker instead of running it
// inline; the response only confirms the request was accepted.
func (h *ConnectionHandler) TriggerSync(c *gin.Context) {
	ctx := c.Request.Context()
	ownerID := c.GetString(ctxUserID)
	id := c.Param("id")

	conn, err := h.connections.FindByID(ctx, id)
	if err != nil || conn.OwnerID != ownerID {
		c.JSON(http.StatusNotFound, gin.H{"error": "mailbox not found"})
		return
	}

	var req triggerSyncRequest
	_ = c.ShouldBindJSON(&req)

	payload := mq.SyncRequestedPayload{
		ConnectionID: conn.ID,
		OwnerID:      ownerID,
		Folder:       req.Folder,
		MaxMessages:  req.MaxMessages,
		RequestedAt:  time.Now().UTC(),
	}
	if err := h.publisher.Publish(mq.RoutingKeySyncRequested, payload); err != nil {
		applog.WithTrace(ctx, h.logger).Error("sync request publish failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to request sync"})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"status": "sync requested", "connectionId": conn.ID})
}

func connectionView(conn *model.MailboxConnection) gin.H {
	return gin.H{
		"id":           conn.ID,
		"provider":     conn.Provider,
		"email":        conn.Email,
		"lastSyncedAt": conn.LastSyncedAt,
		"createdAt":    conn.CreatedAt,
	}
}
