package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rojo-studio/rojo-server/internal/chat"
	"github.com/rojo-studio/rojo-server/internal/contentfilter"
	"github.com/rojo-studio/rojo-server/internal/projects"
	"github.com/rojo-studio/rojo-server/internal/ratelimit"
	internalsettings "github.com/rojo-studio/rojo-server/internal/settings"
	"github.com/rojo-studio/rojo-server/internal/usage"
	log "github.com/sirupsen/logrus"
)

// UsageRecorder receives one record per relayed request.
type UsageRecorder interface {
	HandleUsage(ctx context.Context, record usage.Record)
}

// ChatHandler relays chat completions to the upstream model as SSE.
type ChatHandler struct {
	client   *chat.Client
	filter   *contentfilter.Filter
	limiter  *ratelimit.Limiter
	projects *projects.Service
	usage    UsageRecorder
}

// NewChatHandler constructs a ChatHandler. recorder may be nil.
func NewChatHandler(client *chat.Client, filter *contentfilter.Filter, limiter *ratelimit.Limiter, svc *projects.Service, recorder UsageRecorder) *ChatHandler {
	return &ChatHandler{client: client, filter: filter, limiter: limiter, projects: svc, usage: recorder}
}

// chatRequest defines the request body for the relay.
type chatRequest struct {
	Message             string         `json:"message"`
	ConversationHistory []chat.Message `json:"conversationHistory"`
	ProjectID           *uint64        `json:"projectId"`
	Wait                bool           `json:"wait"`
}

// Chat checks the message, admits it against the rate limiter and streams
// the upstream completion back as data events.
func (h *ChatHandler) Chat(c *gin.Context) {
	var body chatRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	if body.Message == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Message is required"})
		return
	}

	ctx := c.Request.Context()
	userID := currentUserID(c)

	if result := h.filter.CheckMessage(ctx, userID, body.Message); !result.Allowed {
		c.JSON(http.StatusBadRequest, gin.H{"error": contentfilter.ReplacementMessage, "reason": result.Reason})
		return
	}
	if body.ProjectID != nil {
		if _, errGet := h.projects.Get(ctx, userID, *body.ProjectID); errGet != nil {
			respondProjectError(c, errGet)
			return
		}
	}
	if !h.client.Configured() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "AI service is not configured"})
		return
	}

	if body.Wait {
		if errAwait := h.limiter.Await(ctx, userID); errAwait != nil {
			// The client went away while queued.
			return
		}
	} else if ok, _ := h.limiter.Admit(ctx, userID); !ok {
		c.JSON(http.StatusTooManyRequests, gin.H{
			"error":     "Rate limit exceeded",
			"rateLimit": h.limiter.Status(userID),
		})
		return
	}

	requestID := uuid.NewString()
	if !h.limiter.BeginInFlight(requestID) {
		c.JSON(http.StatusTooManyRequests, gin.H{
			"error":     "Too many requests in progress, please retry shortly",
			"rateLimit": h.limiter.Status(userID),
		})
		return
	}
	defer h.limiter.EndInFlight(context.WithoutCancel(ctx), requestID)

	turns := internalsettings.PositiveIntValue(internalsettings.ChatHistoryTurnsKey, internalsettings.DefaultChatHistoryTurns)
	messages := chat.BuildMessages(body.ConversationHistory, body.Message, turns)

	record := usage.Record{
		RequestID: requestID,
		UserID:    userID,
		ProjectID: body.ProjectID,
		Model:     h.client.Model(),
		StartedAt: time.Now().UTC(),
	}
	started := false
	errStream := h.client.Stream(ctx, messages, func(fragment string) error {
		if !started {
			c.Header("Content-Type", "text/event-stream")
			c.Header("Cache-Control", "no-cache")
			c.Header("Connection", "keep-alive")
			c.Status(http.StatusOK)
			started = true
		}
		if _, errWrite := c.Writer.Write(chat.EncodeFragment(fragment)); errWrite != nil {
			return errWrite
		}
		c.Writer.Flush()
		record.Fragments++
		record.Bytes += int64(len(fragment))
		return nil
	})
	record.FinishedAt = time.Now().UTC()
	record.Err = errStream
	if h.usage != nil {
		h.usage.HandleUsage(ctx, record)
	}

	if errStream == nil {
		if !started {
			c.Header("Content-Type", "text/event-stream")
			c.Status(http.StatusOK)
		}
		return
	}
	fields := log.Fields{"request_id": requestID, "user_id": userID, "fragments": record.Fragments}
	var providerErr *chat.ProviderError
	if errors.As(errStream, &providerErr) {
		fields["status"] = providerErr.StatusCode
	}
	if errors.Is(errStream, context.Canceled) {
		log.WithFields(fields).Info("chat relay: client disconnected")
		return
	}
	log.WithError(errStream).WithFields(fields).Warn("chat relay: upstream failed")
	if !started {
		c.JSON(http.StatusBadGateway, gin.H{"error": "Failed to get AI response"})
	}
}

// RateLimitHandler reports the caller's quota.
type RateLimitHandler struct {
	limiter *ratelimit.Limiter
}

// NewRateLimitHandler constructs a RateLimitHandler.
func NewRateLimitHandler(limiter *ratelimit.Limiter) *RateLimitHandler {
	return &RateLimitHandler{limiter: limiter}
}

// Status returns used, limit, reset time and queue position.
func (h *RateLimitHandler) Status(c *gin.Context) {
	c.JSON(http.StatusOK, h.limiter.Status(currentUserID(c)))
}
