package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/pollchain/pollchain-go/internal/domain"
	"github.com/pollchain/pollchain-go/internal/metrics"
	"github.com/pollchain/pollchain-go/internal/service"
	"github.com/pollchain/pollchain-go/internal/session"
)

// SessionBinder is the session/wallet lifecycle surface the handlers drive.
type SessionBinder interface {
	EstablishSession(ctx context.Context) (*domain.User, error)
	Login(ctx context.Context, req domain.LoginRequest) (*domain.User, error)
	Logout(ctx context.Context) error
	ConnectWallet(ctx context.Context) (string, error)
	DisconnectWallet()
	State() session.State
	User() (*domain.User, bool)
	RefreshIfNeeded(ctx context.Context)
}

// AccountAPI covers the backend auth endpoints the handlers proxy straight
// through without binder involvement.
type AccountAPI interface {
	Signup(ctx context.Context, req domain.SignupRequest) (*domain.User, error)
	UpdateProfile(ctx context.Context, req domain.UpdateProfileRequest) (*domain.User, error)
	ActiveUsers(ctx context.Context) (int, error)
}

// WalletInfo reports the connected account for the status endpoint.
type WalletInfo interface {
	Address() (string, bool)
}

type Handler struct {
	service     service.Service
	binder      SessionBinder
	account     AccountAPI
	wallet      WalletInfo
	logger      *zap.Logger
	rateLimiter *RateLimiter
}

func NewHandler(svc service.Service, binder SessionBinder, account AccountAPI, wallet WalletInfo, redis RedisClient, logger *zap.Logger) *Handler {
	return &Handler{
		service:     svc,
		binder:      binder,
		account:     account,
		wallet:      wallet,
		logger:      logger,
		rateLimiter: NewRateLimiter(redis, logger),
	}
}

func (h *Handler) RegisterRoutes(r *gin.Engine) {
	r.Use(metrics.MetricsMiddleware())

	r.POST("/api/auth/signup", h.signup)
	r.POST("/api/auth/login", h.login)
	r.GET("/api/auth/session", h.checkSession)

	api := r.Group("/api")
	api.Use(SessionRequired(h.binder))
	{
		api.POST("/auth/logout", h.logout)
		api.POST("/auth/profile", h.updateProfile)
		api.GET("/auth/active-users", h.activeUsers)

		api.POST("/wallet/connect", h.connectWallet)
		api.POST("/wallet/disconnect", h.disconnectWallet)
		api.GET("/wallet/status", h.walletStatus)

		limited := api.Group("")
		limited.Use(h.rateLimiter.RateLimit(), h.rateLimiter.BurstLimit())
		{
			limited.POST("/polls", h.createPoll)
			limited.GET("/polls", h.explorePolls)
			limited.GET("/polls/mine", h.myPolls)
			limited.GET("/polls/address/:address", h.pollsByAddress)
			limited.GET("/polls/:id", h.getPoll)
			limited.POST("/polls/:id/vote", h.vote)
			limited.DELETE("/polls/:id", h.deletePoll)
			limited.GET("/stats", h.stats)
			limited.POST("/stats/refresh", h.refreshStats)
		}
	}

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
}

func (h *Handler) signup(c *gin.Context) {
	var req domain.SignupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"status":  "error",
			"message": "Invalid request body",
		})
		return
	}

	user, err := h.account.Signup(c.Request.Context(), req)
	if err != nil {
		h.logger.Error("signup failed", zap.Error(err), zap.String("email", req.Email))
		c.JSON(http.StatusBadGateway, gin.H{
			"status":  "error",
			"message": err.Error(),
		})
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"status": "success",
		"data":   gin.H{"user": user},
	})
}

func (h *Handler) login(c *gin.Context) {
	var req domain.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"status":  "error",
			"message": "Invalid request body",
		})
		return
	}

	user, err := h.binder.Login(c.Request.Context(), req)
	if err != nil {
		h.logger.Info("login rejected", zap.Error(err), zap.String("email", req.Email))
		c.JSON(http.StatusUnauthorized, gin.H{
			"status":  "error",
			"message": err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"status": "success",
		"data": gin.H{
			"user":  user,
			"state": h.binder.State().String(),
		},
	})
}

// checkSession mirrors the check-session/refresh-token fallback: it tries to
// establish a session from existing cookies and reports the outcome.
func (h *Handler) checkSession(c *gin.Context) {
	user, err := h.binder.EstablishSession(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{
			"status":  "error",
			"message": "Session expired, login again",
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"status": "success",
		"data": gin.H{
			"user":  user,
			"state": h.binder.State().String(),
		},
	})
}

func (h *Handler) logout(c *gin.Context) {
	if err := h.binder.Logout(c.Request.Context()); err != nil {
		h.logger.Warn("logout failed upstream", zap.Error(err))
		c.JSON(http.StatusBadGateway, gin.H{
			"status":  "error",
			"message": err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "success"})
}

func (h *Handler) updateProfile(c *gin.Context) {
	var req domain.UpdateProfileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"status":  "error",
			"message": "Invalid request body",
		})
		return
	}

	user, err := h.account.UpdateProfile(c.Request.Context(), req)
	if err != nil {
		h.logger.Error("profile update failed", zap.Error(err))
		c.JSON(http.StatusBadGateway, gin.H{
			"status":  "error",
			"message": err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"status": "success",
		"data":   gin.H{"user": user},
	})
}

func (h *Handler) activeUsers(c *gin.Context) {
	count, err := h.account.ActiveUsers(c.Request.Context())
	if err != nil {
		h.logger.Warn("active users lookup failed", zap.Error(err))
		count = 0
	}
	c.JSON(http.StatusOK, gin.H{
		"status": "success",
		"data":   gin.H{"active_users": count},
	})
}

func (h *Handler) connectWallet(c *gin.Context) {
	addr, err := h.binder.ConnectWallet(c.Request.Context())
	if err != nil {
		h.respondError(c, "connect wallet", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"status": "success",
		"data":   gin.H{"address": addr},
	})
}

func (h *Handler) disconnectWallet(c *gin.Context) {
	h.binder.DisconnectWallet()
	c.JSON(http.StatusOK, gin.H{"status": "success"})
}

func (h *Handler) walletStatus(c *gin.Context) {
	addr, connected := h.wallet.Address()
	c.JSON(http.StatusOK, gin.H{
		"status": "success",
		"data": domain.WalletStatus{
			Connected: connected,
			Address:   addr,
			State:     h.binder.State().String(),
		},
	})
}

func (h *Handler) createPoll(c *gin.Context) {
	var req domain.CreatePollRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"status":  "error",
			"message": "Invalid request body",
		})
		return
	}

	if err := h.service.CreatePoll(c.Request.Context(), req); err != nil {
		h.respondError(c, "create poll", err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"status": "success"})
}

func (h *Handler) explorePolls(c *gin.Context) {
	offset, err := parseUintQuery(c, "offset", 0)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"status":  "error",
			"message": "invalid offset",
		})
		return
	}
	limit, err := parseUintQuery(c, "limit", domain.DefaultLimit)
	if err != nil || limit < 1 || limit > domain.MaxPageSize {
		c.JSON(http.StatusBadRequest, gin.H{
			"status":  "error",
			"message": "invalid limit",
		})
		return
	}

	page, err := h.service.ExplorePolls(c.Request.Context(), offset, limit)
	if err != nil {
		h.respondError(c, "fetch polls", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"status": "success",
		"data": gin.H{
			"polls":  page.Polls,
			"total":  page.Total,
			"offset": page.Offset,
			"limit":  page.Limit,
			"pages":  page.Pages,
		},
	})
}

func (h *Handler) myPolls(c *gin.Context) {
	polls, err := h.service.MyPolls(c.Request.Context())
	if err != nil {
		h.respondError(c, "fetch your polls", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"status": "success",
		"data":   gin.H{"polls": polls},
	})
}

func (h *Handler) pollsByAddress(c *gin.Context) {
	polls, err := h.service.PollsByAddress(c.Request.Context(), c.Param("address"))
	if err != nil {
		h.respondError(c, "fetch polls for address", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"status": "success",
		"data":   gin.H{"polls": polls},
	})
}

func (h *Handler) getPoll(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"status":  "error",
			"message": "invalid poll id",
		})
		return
	}

	poll, err := h.service.GetPoll(c.Request.Context(), id)
	if err != nil {
		h.respondError(c, "fetch poll", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"status": "success",
		"data":   poll,
	})
}

func (h *Handler) vote(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"status":  "error",
			"message": "invalid poll id",
		})
		return
	}

	var req domain.VoteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"status":  "error",
			"message": "Invalid request body",
		})
		return
	}

	poll, err := h.service.Vote(c.Request.Context(), id, *req.OptionIndex)
	if err != nil {
		h.respondError(c, "cast vote", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"status": "success",
		"data":   poll,
	})
}

func (h *Handler) deletePoll(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"status":  "error",
			"message": "invalid poll id",
		})
		return
	}

	deletedID, err := h.service.DeletePoll(c.Request.Context(), id)
	if err != nil {
		h.respondError(c, "delete poll", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"status": "success",
		"data":   gin.H{"poll_id": deletedID},
	})
}

func (h *Handler) stats(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "success",
		"data":   h.service.Stats(),
	})
}

func (h *Handler) refreshStats(c *gin.Context) {
	h.service.RefreshStats(c.Request.Context())
	c.JSON(http.StatusOK, gin.H{
		"status": "success",
		"data":   h.service.Stats(),
	})
}

// respondError maps domain failures onto HTTP statuses. Revert reasons go
// back verbatim; everything else keeps the operation-specific wrapping it
// already carries.
func (h *Handler) respondError(c *gin.Context, op string, err error) {
	var revert *domain.RevertError
	switch {
	case errors.As(err, &revert):
		c.JSON(http.StatusBadRequest, gin.H{
			"status":  "error",
			"message": revert.Reason,
		})
	case errors.Is(err, domain.ErrInvalidInput):
		c.JSON(http.StatusBadRequest, gin.H{
			"status":  "error",
			"message": err.Error(),
		})
	case errors.Is(err, domain.ErrSignerNotInitialized), errors.Is(err, domain.ErrNotConnected):
		c.JSON(http.StatusConflict, gin.H{
			"status":  "error",
			"message": "wallet not connected",
		})
	case errors.Is(err, domain.ErrNoSession), errors.Is(err, domain.ErrSessionExpired):
		c.JSON(http.StatusUnauthorized, gin.H{
			"status":  "error",
			"message": "authentication required",
		})
	case errors.Is(err, domain.ErrUserRejected):
		c.JSON(http.StatusForbidden, gin.H{
			"status":  "error",
			"message": "connection request rejected",
		})
	case errors.Is(err, domain.ErrProviderUnavailable):
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status":  "error",
			"message": "no signing provider available",
		})
	case errors.Is(err, domain.ErrEventTimeout):
		c.JSON(http.StatusGatewayTimeout, gin.H{
			"status":  "error",
			"message": err.Error(),
		})
	default:
		h.logger.Error("operation failed", zap.String("operation", op), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{
			"status":  "error",
			"message": err.Error(),
		})
	}
}

func parseUintQuery(c *gin.Context, name string, fallback uint64) (uint64, error) {
	raw := c.Query(name)
	if raw == "" {
		return fallback, nil
	}
	return strconv.ParseUint(raw, 10, 64)
}
