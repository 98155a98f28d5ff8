package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"sailsdock/internal/provider"
	"sailsdock/internal/repository"
	"sailsdock/internal/service/credential"
	applog "sailsdock/pkg/logger"
)

type EmailHandler struct {
	emails      *repository.EmailRepository
	connections *repository.ConnectionRepository
	credentials *credential.Manager
	providers   *provider.Registry
	logger      *zap.Logger
}

func NewEmailHandler(
	emails *repository.EmailRepository,
	connections *repository.ConnectionRepository,
	credentials *credential.Manager,
	providers *provider.Registry,
	logger *zap.Logger,
) *EmailHandler {
	return &EmailHandler{
		emails:      emails,
		connections: connections,
		credentials: credentials,
		providers:   providers,
		logger:      logger,
	}
}

func (h *EmailHandler) List(c *gin.Context) {
	filter := repository.ListFilter{}
	if v, ok := c.GetQuery("isRead"); ok {
		if parsed, err := strconv.ParseBool(v); err == nil {
			filter.IsRead = &parsed
		}
	}
	if v, ok := c.GetQuery("isStarred"); ok {
		if parsed, err := strconv.ParseBool(v); err == nil {
			filter.IsStarred = &parsed
		}
	}
	if v, ok := c.GetQuery("businessId"); ok {
		filter.BusinessID = &v
	}
	if v, ok := c.GetQuery("contactId"); ok {
		filter.ContactID = &v
	}
	if v, err := strconv.Atoi(c.Query("limit")); err == nil && v > 0 {
		filter.Limit = v
	}
	if v, err := strconv.Atoi(c.Query("offset")); err == nil && v >= 0 {
		filter.Offset = v
	}

	emails, err := h.emails.ListByOwner(c.Request.Context(), c.GetString(ctxUserID), filter)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list emails"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"emails": emails, "count": len(emails)})
}

type updateEmailRequest struct {
	IsRead    *bool `json:"isRead"`
	IsStarred *bool `json:"isStarred"`
}

// Update persists flag changes locally, then mirrors them to the provider on
// a best-effort basis. A provider failure never fails the request.
func (h *EmailHandler) Update(c *gin.Context) {
	var req updateEmailRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.IsRead == nil && req.IsStarred == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "nothing to update"})
		return
	}

	ctx := c.Request.Context()
	ownerID := c.GetString(ctxUserID)
	id := c.Param("id")

	email, err := h.emails.FindByID(ctx, id, ownerID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "email not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "lookup failed"})
		return
	}

	if err := h.emails.UpdateFlags(ctx, id, ownerID, req.IsRead, req.IsStarred); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "update failed"})
		return
	}

	synced := h.propagateFlags(c, email.MailboxConnectionID, email.ExternalID, req)
	c.JSON(http.StatusOK, gin.H{"id": id, "providerSynced": synced})
}

func (h *EmailHandler) propagateFlags(c *gin.Context, connectionID, externalID string, req updateEmailRequest) bool {
	ctx := c.Request.Context()
	logger := applog.WithTrace(ctx, h.logger)

	conn, err := h.connections.FindByID(ctx, connectionID)
	if err != nil {
		logger.Warn("flag propagation skipped: connection lookup failed", zap.Error(err))
		return false
	}
	conn, err = h.credentials.RefreshIfNeeded(ctx, conn)
	if err != nil {
		logger.Warn("flag propagation skipped: credential refresh failed", zap.Error(err))
		return false
	}
	adapter, err := h.providers.Get(conn.Provider)
	if err != nil {
		logger.Warn("flag propagation skipped", zap.Error(err))
		return false
	}
	return adapter.SetFlags(ctx, conn, externalID, provider.FlagUpdate{
		IsRead:    req.IsRead,
		IsStarred: req.IsStarred,
	})
}
