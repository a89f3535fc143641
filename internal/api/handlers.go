package api

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"personachat/internal/account"
	"personachat/internal/agent"
	"personachat/internal/auth"
	"personachat/internal/calendar"
	"personachat/internal/models"
)

const maxMessageLength = 4000

// TurnDriver runs one conversational turn and yields its event sequence.
type TurnDriver interface {
	RunTurn(ctx context.Context, userID int64, userMessage string, priorHistory []models.HistoryItem) <-chan agent.StreamEvent
}

// RateGate guards per-user request quotas. Reserve consumes a slot, Status
// only observes.
type RateGate interface {
	Reserve(ctx context.Context, userID int64) (models.RateLimitStatus, error)
	Status(ctx context.Context, userID int64) (models.RateLimitStatus, error)
}

// ConversationStore persists per-user conversation state.
type ConversationStore interface {
	Get(ctx context.Context, userID int64) (*models.ConversationState, error)
	AppendTurn(ctx context.Context, userID int64, userMsg, assistantMsg models.Message, newHistory []models.HistoryItem) (*models.ConversationState, error)
	Clear(ctx context.Context, userID int64) error
}

// Handler wires HTTP routes to the chat driver, conversation store, and
// account services.
type Handler struct {
	accounts      *account.Service
	auth          *auth.Service
	driver        TurnDriver
	limiter       RateGate
	conversations ConversationStore
	turnTimeout   time.Duration
	webhookSecret string
}

// NewHandler constructs a Handler instance.
func NewHandler(accounts *account.Service, authService *auth.Service, driver TurnDriver, limiter RateGate, conversations ConversationStore, turnTimeout time.Duration, webhookSecret string) *Handler {
	if turnTimeout <= 0 {
		turnTimeout = 2 * time.Minute
	}
	return &Handler{
		accounts:      accounts,
		auth:          authService,
		driver:        driver,
		limiter:       limiter,
		conversations: conversations,
		turnTimeout:   turnTimeout,
		webhookSecret: webhookSecret,
	}
}

// RegisterRoutes attaches all HTTP routes to the router.
func (h *Handler) RegisterRoutes(router *gin.Engine) {
	api := router.Group("/api")
	api.POST("/users/register", h.registerUser)
	api.POST("/users/login", h.loginUser)
	api.POST("/cal/webhook", h.calendarWebhook)

	authed := api.Group("")
	authed.Use(h.auth.Middleware(), h.auth.CSRFMiddleware())
	authed.POST("/users/logout", h.logoutUser)
	authed.POST("/chat-stream", h.chatStream)
	authed.POST("/chat", h.chat)
	authed.GET("/conversation", h.getConversation)
	authed.POST("/conversation/clear", h.clearConversation)
	authed.GET("/usage", h.getUsage)
}

func (h *Handler) authorizedUserID(c *gin.Context) (int64, bool) {
	userID, ok := auth.UserIDFromContext(c)
	if !ok || userID <= 0 {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return 0, false
	}
	return userID, true
}

// User create&login interface
type credentialsRequest struct {
	Username    string `json:"username"`
	Password    string `json:"password"`
	DisplayName string `json:"display_name"`
	Email       string `json:"email"`
}

func (h *Handler) registerUser(c *gin.Context) {
	var req credentialsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	user, err := h.accounts.Register(c.Request.Context(), req.Username, req.Password, req.DisplayName, req.Email)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"id":         user.ID,
		"username":   user.Username,
		"created_at": user.CreatedAt,
	})
}

func (h *Handler) loginUser(c *gin.Context) {
	var req credentialsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	user, err := h.accounts.Login(c.Request.Context(), req.Username, req.Password)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
		return
	}
	authToken, err := h.auth.IssueToken(c.Request.Context(), user.ID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "issue token failed"})
		return
	}
	csrfToken, err := h.auth.NewCSRFToken()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "issue token failed"})
		return
	}
	h.setAuthCookies(c, authToken, csrfToken)
	c.JSON(http.StatusOK, gin.H{
		"id":         user.ID,
		"username":   user.Username,
		"created_at": user.CreatedAt,
		"auth_token": authToken,
	})
}

func (h *Handler) logoutUser(c *gin.Context) {
	if _, ok := h.authorizedUserID(c); !ok {
		return
	}
	if authToken, ok := auth.AuthTokenFromContext(c); ok {
		_ = h.auth.RevokeToken(c.Request.Context(), authToken)
	}
	h.clearAuthCookies(c)
	c.Status(http.StatusNoContent)
}

type chatRequest struct {
	Message string `json:"message"`
}

// gateTurn runs the shared pre-turn checks: quota first, then message
// validation, then conversation load. Rejections never consume quota beyond
// the reservation itself.
func (h *Handler) gateTurn(c *gin.Context, userID int64) (message string, usage models.RateLimitStatus, prior []models.HistoryItem, ok bool) {
	usage, err := h.limiter.Reserve(c.Request.Context(), userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "rate limit check failed"})
		return "", usage, nil, false
	}
	if !usage.Allowed {
		c.JSON(http.StatusTooManyRequests, gin.H{
			"error":           "Rate limit exceeded",
			"minuteRemaining": usage.MinuteRemaining,
			"dayRemaining":    usage.DayRemaining,
		})
		return "", usage, nil, false
	}

	var req chatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid message"})
		return "", usage, nil, false
	}
	message = strings.TrimSpace(req.Message)
	if message == "" || len(message) > maxMessageLength {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid message"})
		return "", usage, nil, false
	}

	state, err := h.conversations.Get(c.Request.Context(), userID)
	if err != nil {
		log.Error().Err(err).Int64("user_id", userID).Msg("load conversation failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load conversation"})
		return "", usage, nil, false
	}
	if state != nil {
		prior = state.AgentHistory
	}
	return message, usage, prior, true
}

func (h *Handler) chatStream(c *gin.Context) {
	userID, ok := h.authorizedUserID(c)
	if !ok {
		return
	}
	message, usage, prior, ok := h.gateTurn(c, userID)
	if !ok {
		return
	}

	flusher, ok := c.Writer.(http.Flusher)
	if !ok {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "streaming not supported"})
		return
	}
	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")
	c.Writer.Header().Set("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)

	// The client may disconnect mid-turn; the turn still runs to its terminal
	// event on a detached context so a completed reply is persisted.
	turnCtx, cancel := context.WithTimeout(context.WithoutCancel(c.Request.Context()), h.turnTimeout)
	defer cancel()

	clientGone := false
	sendFrame := func(payload any) {
		if clientGone {
			return
		}
		select {
		case <-c.Request.Context().Done():
			clientGone = true
			return
		default:
		}
		data, err := json.Marshal(payload)
		if err != nil {
			log.Error().Err(err).Msg("encode frame failed")
			return
		}
		if _, err := fmt.Fprintf(c.Writer, "data: %s\n\n", data); err != nil {
			clientGone = true
			return
		}
		flusher.Flush()
	}

	for event := range h.driver.RunTurn(turnCtx, userID, message, prior) {
		switch event.Type {
		case agent.EventTypeContent:
			sendFrame(gin.H{"type": "content", "content": event.Content})
		case agent.EventTypeError:
			log.Error().Str("err", event.Err).Int64("user_id", userID).Msg("turn failed")
			sendFrame(gin.H{"type": "error", "error": event.Err})
		case agent.EventTypeDone:
			userMsg, assistantMsg := turnMessages(message, event.Content)
			if _, err := h.conversations.AppendTurn(turnCtx, userID, userMsg, assistantMsg, event.UpdatedHistory); err != nil {
				log.Error().Err(err).Int64("user_id", userID).Msg("persist turn failed")
				sendFrame(gin.H{"type": "error", "error": "failed to save conversation"})
				continue
			}
			sendFrame(gin.H{"type": "done", "response": event.Content, "usage": usage})
		}
	}
}

func (h *Handler) chat(c *gin.Context) {
	userID, ok := h.authorizedUserID(c)
	if !ok {
		return
	}
	message, usage, prior, ok := h.gateTurn(c, userID)
	if !ok {
		return
	}

	turnCtx, cancel := context.WithTimeout(context.WithoutCancel(c.Request.Context()), h.turnTimeout)
	defer cancel()
	turnCtx = agent.WithoutPacing(turnCtx)

	for event := range h.driver.RunTurn(turnCtx, userID, message, prior) {
		switch event.Type {
		case agent.EventTypeError:
			log.Error().Str("err", event.Err).Int64("user_id", userID).Msg("turn failed")
			c.JSON(http.StatusInternalServerError, gin.H{"error": event.Err})
		case agent.EventTypeDone:
			userMsg, assistantMsg := turnMessages(message, event.Content)
			if _, err := h.conversations.AppendTurn(turnCtx, userID, userMsg, assistantMsg, event.UpdatedHistory); err != nil {
				log.Error().Err(err).Int64("user_id", userID).Msg("persist turn failed")
				c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to save conversation"})
				continue
			}
			c.JSON(http.StatusOK, gin.H{"response": event.Content, "usage": usage})
		}
	}
}

func turnMessages(userText, assistantText string) (models.Message, models.Message) {
	now := time.Now().UTC()
	return models.Message{Role: models.RoleUser, Content: userText, Timestamp: now},
		models.Message{Role: models.RoleAssistant, Content: assistantText, Timestamp: now}
}

func (h *Handler) getConversation(c *gin.Context) {
	userID, ok := h.authorizedUserID(c)
	if !ok {
		return
	}
	state, err := h.conversations.Get(c.Request.Context(), userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load conversation"})
		return
	}
	messages := make([]models.Message, 0)
	if state != nil {
		messages = state.Messages
	}
	usage, err := h.limiter.Status(c.Request.Context(), userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "rate limit check failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"messages": messages, "usage": usage})
}

func (h *Handler) clearConversation(c *gin.Context) {
	userID, ok := h.authorizedUserID(c)
	if !ok {
		return
	}
	if err := h.conversations.Clear(c.Request.Context(), userID); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to clear conversation"})
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) getUsage(c *gin.Context) {
	userID, ok := h.authorizedUserID(c)
	if !ok {
		return
	}
	usage, err := h.limiter.Status(c.Request.Context(), userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "rate limit check failed"})
		return
	}
	c.JSON(http.StatusOK, usage)
}

func (h *Handler) calendarWebhook(c *gin.Context) {
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, 1<<20))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid body"})
		return
	}
	signature := c.GetHeader("x-cal-signature-256")
	if !calendar.VerifyWebhookSignature(body, signature, h.webhookSecret) {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid signature"})
		return
	}

	var payload calendar.WebhookPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}
	attendee := ""
	if len(payload.Payload.Attendees) > 0 {
		attendee = payload.Payload.Attendees[0].Email
	}
	log.Info().
		Str("event", payload.TriggerEvent).
		Str("uid", payload.Payload.Booking.UID).
		Str("title", payload.Payload.Booking.Title).
		Str("start", payload.Payload.Booking.Start).
		Str("attendee", attendee).
		Msg("calendar webhook")
	c.JSON(http.StatusOK, gin.H{"received": true})
}

func (h *Handler) setAuthCookies(c *gin.Context, authToken, csrfToken string) {
	ttl := int(h.auth.TokenTTL().Seconds())
	if ttl <= 0 {
		ttl = 3600
	}
	secure := gin.Mode() == gin.ReleaseMode
	setCookie(c, &http.Cookie{
		Name:     h.auth.AuthCookieName(),
		Value:    authToken,
		MaxAge:   ttl,
		Path:     "/",
		Secure:   secure,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	setCookie(c, &http.Cookie{
		Name:     h.auth.CSRFCookieName(),
		Value:    csrfToken,
		MaxAge:   ttl,
		Path:     "/",
		Secure:   secure,
		HttpOnly: false,
		SameSite: http.SameSiteStrictMode,
	})
}

func (h *Handler) clearAuthCookies(c *gin.Context) {
	for _, name := range []string{h.auth.AuthCookieName(), h.auth.CSRFCookieName()} {
		setCookie(c, &http.Cookie{
			Name:     name,
			Value:    "",
			MaxAge:   -1,
			Path:     "/",
			HttpOnly: name == h.auth.AuthCookieName(),
			SameSite: http.SameSiteLaxMode,
		})
	}
}

func setCookie(c *gin.Context, cookie *http.Cookie) {
	http.SetCookie(c.Writer, cookie)
}
