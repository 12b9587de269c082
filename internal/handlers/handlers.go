package handlers

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/hzblue/lottery-backend/internal/auth"
	"github.com/hzblue/lottery-backend/internal/config"
	"github.com/hzblue/lottery-backend/internal/lottery"
	"github.com/hzblue/lottery-backend/internal/models"
	"github.com/hzblue/lottery-backend/internal/store"
)

type Handler struct {
	store      *store.Store
	draws      *lottery.Service
	reconciler *lottery.Reconciler // nil when no fast-path ledger is configured
	cfg        config.Config
}

func New(st *store.Store, draws *lottery.Service, rec *lottery.Reconciler, cfg config.Config) *Handler {
	return &Handler{store: st, draws: draws, reconciler: rec, cfg: cfg}
}

func (h *Handler) RegisterRoutes(r *gin.Engine) {
	r.GET("/health", func(c *gin.Context) { c.JSON(200, gin.H{"ok": true}) })

	api := r.Group("/api")
	api.POST("/auth/register", h.register)
	api.POST("/auth/login", h.login)
	api.GET("/lottery/prizes", h.listPrizes)
	api.GET("/lottery/global-history", h.globalHistory)

	user := api.Group("/", h.authRequired())
	user.POST("/lottery/draw", h.draw)
	user.GET("/user/profile", h.profile)
	user.GET("/user/lottery-history", h.userHistory)

	admin := r.Group("/admin/api")
	admin.POST("/login", h.adminLogin)
	guarded := admin.Group("/", h.adminRequired())
	guarded.GET("/activities", h.listActivities)
	guarded.POST("/activities", h.createActivity)
	guarded.GET("/prizes", h.adminListPrizes)
	guarded.POST("/prizes", h.createPrize)
	guarded.PATCH("/prizes/:id/enabled", h.setPrizeEnabled)
}

// --- middleware ---

func bearerToken(c *gin.Context) string {
	v := c.GetHeader("Authorization")
	if strings.HasPrefix(v, "Bearer ") {
		return strings.TrimPrefix(v, "Bearer ")
	}
	return ""
}

func (h *Handler) authRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, err := auth.VerifyToken(h.cfg.JWTSecret, bearerToken(c))
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		uid, err := uuid.Parse(claims.UID)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		c.Set("uid", uid)
		c.Next()
	}
}

func (h *Handler) adminRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, err := auth.VerifyToken(h.cfg.JWTSecret, bearerToken(c))
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		if !claims.IsAdmin {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "forbidden"})
			return
		}
		c.Next()
	}
}

func currentUID(c *gin.Context) uuid.UUID {
	return c.MustGet("uid").(uuid.UUID)
}

// --- auth ---

type registerReq struct {
	Username string  `json:"username" binding:"required"`
	Password string  `json:"password" binding:"required"`
	Email    *string `json:"email"`
}

func (h *Handler) register(c *gin.Context) {
	var req registerReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	req.Username = strings.TrimSpace(req.Username)
	if req.Username == "" || len(req.Password) < 6 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "username empty or password shorter than 6 chars"})
		return
	}
	taken, err := h.store.UsernameTaken(c.Request.Context(), req.Username)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal"})
		return
	}
	if taken {
		c.JSON(http.StatusBadRequest, gin.H{"error": "username already exists"})
		return
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal"})
		return
	}
	u := models.User{ID: uuid.New(), Username: req.Username, PasswordHash: hash, Email: req.Email}
	if err := h.store.CreateUser(c.Request.Context(), &u); err != nil {
		logrus.WithError(err).Error("user create failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal"})
		return
	}

	token, err := auth.SignToken(h.cfg.JWTSecret, u.ID, false)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"token": token})
}

type loginReq struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

func (h *Handler) login(c *gin.Context) {
	var req loginReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	u, err := h.store.FindUserByUsername(c.Request.Context(), req.Username)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal"})
		return
	}
	if !auth.VerifyPassword(req.Password, u.PasswordHash) {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	token, err := auth.SignToken(h.cfg.JWTSecret, u.ID, false)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"token": token})
}

// --- user ---

func (h *Handler) profile(c *gin.Context) {
	u, err := h.store.GetUser(c.Request.Context(), currentUID(c))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"id":          u.ID,
		"username":    u.Username,
		"email":       u.Email,
		"lastDrawAt":  u.LastDrawAt,
		"createdAt":   u.CreatedAt,
		"updatedAt":   u.UpdatedAt,
	})
}

func (h *Handler) userHistory(c *gin.Context) {
	rows, err := h.store.UserHistory(c.Request.Context(), currentUID(c), 100)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"records": rows})
}

// --- lottery ---

func (h *Handler) draw(c *gin.Context) {
	res, err := h.draws.Draw(c.Request.Context(), currentUID(c))
	if err != nil {
		if errors.Is(err, lottery.ErrRateLimited) {
			c.JSON(http.StatusTooManyRequests, gin.H{"error": "draw rate limited, try again later"})
			return
		}
		logrus.WithError(err).Error("draw failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal"})
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *Handler) listPrizes(c *gin.Context) {
	rows, err := h.store.AvailablePrizes(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"prizes": rows})
}

func (h *Handler) globalHistory(c *gin.Context) {
	rows, err := h.store.GlobalHistory(c.Request.Context(), 200)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"records": rows})
}

// --- admin ---

type adminLoginReq struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

func (h *Handler) adminLogin(c *gin.Context) {
	var req adminLoginReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.Username != h.cfg.AdminUsername || req.Password != h.cfg.AdminPassword {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	token, err := auth.SignToken(h.cfg.JWTSecret, uuid.Nil, true)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"token": token})
}

func (h *Handler) listActivities(c *gin.Context) {
	rows, err := h.store.ListActivities(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"activities": rows})
}

type createActivityReq struct {
	Name        string    `json:"name" binding:"required"`
	Description *string   `json:"description"`
	StartTime   time.Time `json:"startTime" binding:"required"`
	EndTime     time.Time `json:"endTime" binding:"required"`
	Status      string    `json:"status"`
}

func (h *Handler) createActivity(c *gin.Context) {
	var req createActivityReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.Status == "" {
		req.Status = models.ActivityPlanned
	}
	a := models.Activity{
		ID:          uuid.New(),
		Name:        req.Name,
		Description: req.Description,
		StartTime:   req.StartTime,
		EndTime:     req.EndTime,
		Status:      req.Status,
	}
	if err := h.store.CreateActivity(c.Request.Context(), &a); err != nil {
		logrus.WithError(err).Error("activity create failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": a.ID})
}

func (h *Handler) adminListPrizes(c *gin.Context) {
	rows, err := h.store.ListPrizes(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"prizes": rows})
}

type createPrizeReq struct {
	ActivityID  uuid.UUID `json:"activityId" binding:"required"`
	Name        string    `json:"name" binding:"required"`
	Description *string   `json:"description"`
	TotalCount  int64     `json:"totalCount" binding:"required"`
	Weight      int       `json:"weight"`
	Enabled     bool      `json:"enabled"`
}

func (h *Handler) createPrize(c *gin.Context) {
	var req createPrizeReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.TotalCount < 0 || req.Weight < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "totalCount and weight must be non-negative"})
		return
	}
	p := models.Prize{
		ID:             uuid.New(),
		ActivityID:     req.ActivityID,
		Name:           req.Name,
		Description:    req.Description,
		TotalCount:     req.TotalCount,
		RemainingCount: req.TotalCount,
		Weight:         req.Weight,
		Enabled:        req.Enabled,
	}
	if err := h.store.CreatePrize(c.Request.Context(), &p); err != nil {
		logrus.WithError(err).Error("prize create failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal"})
		return
	}
	h.seedLedger(c, p.ID)
	c.JSON(http.StatusOK, gin.H{"id": p.ID})
}

type setEnabledReq struct {
	Enabled *bool `json:"enabled" binding:"required"`
}

func (h *Handler) setPrizeEnabled(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "bad prize id"})
		return
	}
	var req setEnabledReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := h.store.SetPrizeEnabled(c.Request.Context(), id, *req.Enabled); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal"})
		return
	}
	if *req.Enabled {
		h.seedLedger(c, id)
	}
	c.JSON(http.StatusOK, gin.H{"id": id, "enabled": *req.Enabled})
}

// seedLedger reseeds the fast-path stock counter after admin-side stock
// changes. Without it an unseeded counter reads as zero and every fast-path
// draw reports out of stock.
func (h *Handler) seedLedger(c *gin.Context, prizeID uuid.UUID) {
	if h.reconciler == nil {
		return
	}
	if err := h.reconciler.SeedPrize(c.Request.Context(), prizeID); err != nil {
		logrus.WithError(err).WithField("prize_id", prizeID).Error("ledger stock seed failed")
	}
}
