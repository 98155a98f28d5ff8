package handler

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"sailsdock/internal/model"
	"sailsdock/internal/service/timeline"
	applog "sailsdock/pkg/logger"
)

type UserFinder interface {
	FindByID(ctx context.Context, id string) (*model.User, error)
}

type TimelineHandler struct {
	timelines *timeline.Service
	users     UserFinder
	logger    *zap.Logger
}

func NewTimelineHandler(timelines *timeline.Service, users UserFinder, logger *zap.Logger) *TimelineHandler {
	return &TimelineHandler{timelines: timelines, users: users, logger: logger}
}

func (h *TimelineHandler) BusinessTimeline(c *gin.Context) {
	h.serve(c, timeline.ScopeBusiness)
}

func (h *TimelineHandler) ContactTimeline(c *gin.Context) {
	h.serve(c, timeline.ScopeContact)
}

func (h *TimelineHandler) serve(c *gin.Context, scopeKind string) {
	ctx := c.Request.Context()
	workspaceID := c.GetString(ctxWorkspaceID)
	scopeID := c.Param("id")
	opts := optionsFromQuery(c)

	var actor *model.TimelineActor
	if u, err := h.users.FindByID(ctx, c.GetString(ctxUserID)); err == nil {
		actor = &model.TimelineActor{ID: u.ID, Name: u.Name, Image: u.Image}
	}

	result, err := h.timelines.GetTimeline(ctx, workspaceID, actor, scopeKind, scopeID, opts)
	if err != nil {
		var notFound *timeline.ScopeNotFoundError
		if errors.As(err, &notFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": notFound.Error()})
			return
		}
		applog.WithTrace(ctx, h.logger).Error("timeline query failed",
			zap.String("scope_kind", scopeKind),
			zap.String("scope_id", scopeID),
			zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "timeline query failed"})
		return
	}

	c.JSON(http.StatusOK, result)
}

func optionsFromQuery(c *gin.Context) timeline.Options {
	opts := timeline.DefaultOptions()
	if v, err := strconv.Atoi(c.Query("limit")); err == nil && v > 0 {
		opts.Limit = v
	}
	if v, err := strconv.Atoi(c.Query("page")); err == nil && v > 0 {
		opts.Page = v
	}
	opts.IncludeActivities = boolQuery(c, "includeActivities", opts.IncludeActivities)
	opts.IncludeEmails = boolQuery(c, "includeEmails", opts.IncludeEmails)
	opts.IncludeSms = boolQuery(c, "includeSms", opts.IncludeSms)
	opts.IncludeOffers = boolQuery(c, "includeOffers", opts.IncludeOffers)
	opts.IncludeTickets = boolQuery(c, "includeTickets", opts.IncludeTickets)
	return opts
}

func boolQuery(c *gin.Context, name string, fallback bool) bool {
	v, ok := c.GetQuery(name)
	if !ok {
		return fallback
	}
	parsed, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return parsed
}
