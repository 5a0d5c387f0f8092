package main

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"authd/models"
)

func setupRoutes(r *gin.Engine) {
	r.POST("/register", registerHandler)
	r.POST("/auth/login", loginHandler)
	r.POST("/auth/refresh", refreshHandler)
	r.POST("/auth/logout", logoutHandler)

	authGroup := r.Group("")
	authGroup.Use(authMiddleware())
	authGroup.GET("/me", meHandler)
	authGroup.POST("/auth/logout-all", logoutAllHandler)

	admin := r.Group("/admin")
	admin.Use(authMiddleware(), requireAdmin())
	admin.GET("/policies", listPoliciesHandler)
	admin.POST("/policies", createPolicyHandler)
	admin.PUT("/policies/:id", updatePolicyHandler)
	admin.DELETE("/policies/:id", deletePolicyHandler)
	admin.GET("/lockouts", listLockoutsHandler)
	admin.POST("/lockouts/:principal/unlock", unlockHandler)
	admin.GET("/sessions/:principal", listSessionsHandler)
	admin.DELETE("/sessions/:id", revokeSessionHandler)
	admin.POST("/purge", purgeHandler)
}

func bearerToken(c *gin.Context) string {
	authHeader := c.GetHeader("Authorization")
	if len(authHeader) < 8 || authHeader[:7] != "Bearer " {
		return ""
	}
	return authHeader[7:]
}

// authMiddleware validates the bearer token on every protected request. All
// failure modes produce the same 401 body; the real reason is in the logs.
func authMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := bearerToken(c)
		if token == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"detail": "Unauthenticated"})
			c.Abort()
			return
		}
		pr, err := authSvc.Authenticate(c.Request.Context(), token)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"detail": "Unauthenticated"})
			c.Abort()
			return
		}
		c.Set("principal", pr)
		c.Next()
	}
}

func requireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		pr := currentPrincipal(c)
		if pr == nil || pr.Role != "admin" {
			c.JSON(http.StatusForbidden, gin.H{"detail": "forbidden"})
			c.Abort()
			return
		}
		c.Next()
	}
}

func currentPrincipal(c *gin.Context) *Principal {
	v, _ := c.Get("principal")
	pr, _ := v.(*Principal)
	return pr
}

func registerHandler(c *gin.Context) {
	var req struct {
		Username string  `json:"username" binding:"required"`
		Password string  `json:"password" binding:"required"`
		TenantID *string `json:"tenant_id"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := RegisterUser(req.Username, req.Password, req.TenantID); err != nil {
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "user registered successfully"})
}

func loginHandler(c *gin.Context) {
	var req struct {
		Principal  string `json:"principal" binding:"required"`
		Credential string `json:"credential" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	pair, err := authSvc.Login(c.Request.Context(), req.Principal, req.Credential)
	if err != nil {
		var locked *AccountLockedError
		switch {
		case errors.As(err, &locked):
			c.Header("Retry-After", strconv.Itoa(retryAfterSeconds(locked.Until)))
			c.JSON(http.StatusLocked, gin.H{"detail": "account locked"})
		case errors.Is(err, ErrInvalidCredentials):
			c.JSON(http.StatusUnauthorized, gin.H{"detail": "invalid credentials"})
		case errors.Is(err, ErrUnavailable):
			c.JSON(http.StatusServiceUnavailable, gin.H{"detail": "try again later"})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"detail": "login failed"})
		}
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"access_token":  pair.AccessToken,
		"refresh_token": pair.RefreshToken,
		"token_type":    "bearer",
		"expires_in":    pair.ExpiresIn,
	})
}

func retryAfterSeconds(until time.Time) int {
	d := time.Until(until)
	if d <= 0 {
		return 1
	}
	return int((d + time.Second - 1) / time.Second)
}

func refreshHandler(c *gin.Context) {
	var req struct {
		RefreshToken string `json:"refresh_token" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	access, expiresIn, err := authSvc.Refresh(c.Request.Context(), req.RefreshToken)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"detail": "Unauthenticated"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"access_token": access, "expires_in": expiresIn})
}

// logoutHandler is deliberately not behind authMiddleware: a second logout
// with an already-blacklisted token must still return 200.
func logoutHandler(c *gin.Context) {
	token := bearerToken(c)
	if token == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"detail": "Unauthenticated"})
		return
	}
	if err := authSvc.Logout(c.Request.Context(), token); err != nil {
		if errors.Is(err, ErrUnauthenticated) {
			c.JSON(http.StatusUnauthorized, gin.H{"detail": "Unauthenticated"})
			return
		}
		c.JSON(http.StatusServiceUnavailable, gin.H{"detail": "try again later"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "logged out"})
}

func logoutAllHandler(c *gin.Context) {
	pr := currentPrincipal(c)
	count, err := authSvc.LogoutAll(c.Request.Context(), pr.ID)
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"detail": "try again later"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"revoked_count": count})
}

func meHandler(c *gin.Context) {
	pr := currentPrincipal(c)
	c.JSON(http.StatusOK, gin.H{"principal": pr.ID, "tenant": pr.Tenant, "role": pr.Role})
}

// --- admin: security policies ---

type policyRequest struct {
	TenantID                    *string `json:"tenant_id"`
	Active                      *bool   `json:"active"`
	PasswordMinLength           int     `json:"password_min_length"`
	PasswordRequireMixed        bool    `json:"password_require_mixed"`
	PasswordExpiryDays          int     `json:"password_expiry_days"`
	PasswordHistoryCount        int     `json:"password_history_count"`
	LockoutMaxAttempts          int     `json:"lockout_max_attempts"`
	LockoutDurationMinutes      int     `json:"lockout_duration_minutes"`
	LockoutType                 string  `json:"lockout_type"`
	SessionTimeoutMinutes       int     `json:"session_timeout_minutes"`
	SessionMaxConcurrent        int     `json:"session_max_concurrent"`
	SessionAbsoluteTimeoutHours int     `json:"session_absolute_timeout_hours"`
}

func (req *policyRequest) apply(p *models.SecurityPolicy) error {
	if req.LockoutType != models.LockoutFixed && req.LockoutType != models.LockoutProgressive {
		return errors.New("lockout_type must be fixed or progressive")
	}
	p.TenantID = req.TenantID
	p.Active = true
	if req.Active != nil {
		p.Active = *req.Active
	}
	p.PasswordMinLength = req.PasswordMinLength
	p.PasswordRequireMixed = req.PasswordRequireMixed
	p.PasswordExpiryDays = req.PasswordExpiryDays
	p.PasswordHistoryCount = req.PasswordHistoryCount
	p.LockoutMaxAttempts = req.LockoutMaxAttempts
	p.LockoutDurationMinutes = req.LockoutDurationMinutes
	p.LockoutType = req.LockoutType
	p.SessionTimeoutMinutes = req.SessionTimeoutMinutes
	p.SessionMaxConcurrent = req.SessionMaxConcurrent
	p.SessionAbsoluteTimeoutHours = req.SessionAbsoluteTimeoutHours
	return nil
}

// reloadPolicies refreshes the in-memory resolver after a policy write so the
// hot path keeps seeing current rules.
func reloadPolicies(c *gin.Context) bool {
	if err := policyResolver.Load(c.Request.Context()); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "policy reload failed"})
		return false
	}
	return true
}

func listPoliciesHandler(c *gin.Context) {
	var rows []models.SecurityPolicy
	if err := db.Order("id asc").Find(&rows).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query failed"})
		return
	}
	c.JSON(http.StatusOK, rows)
}

func createPolicyHandler(c *gin.Context) {
	var req policyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	var pol models.SecurityPolicy
	if err := req.apply(&pol); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := db.Create(&pol).Error; err != nil {
		if isUniqueConstraintError(err) {
			c.JSON(http.StatusConflict, gin.H{"error": "policy for tenant already exists"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "create failed"})
		return
	}
	if !reloadPolicies(c) {
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": pol.ID})
}

func updatePolicyHandler(c *gin.Context) {
	id := c.Param("id")
	var pol models.SecurityPolicy
	if err := db.First(&pol, id).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "policy not found"})
		return
	}
	var req policyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := req.apply(&pol); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := db.Save(&pol).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "update failed"})
		return
	}
	if !reloadPolicies(c) {
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": pol.ID})
}

func deletePolicyHandler(c *gin.Context) {
	id := c.Param("id")
	var pol models.SecurityPolicy
	if err := db.First(&pol, id).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "policy not found"})
		return
	}
	if pol.TenantID == nil {
		// the service refuses to run without a default policy
		c.JSON(http.StatusBadRequest, gin.H{"error": "cannot delete the system-default policy"})
		return
	}
	if err := db.Delete(&pol).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "delete failed"})
		return
	}
	if !reloadPolicies(c) {
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "policy deleted"})
}

// --- admin: lockouts ---

func listLockoutsHandler(c *gin.Context) {
	rows, err := lockoutTracker.ListLocked(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query failed"})
		return
	}
	c.JSON(http.StatusOK, rows)
}

func unlockHandler(c *gin.Context) {
	principal := c.Param("principal")
	if err := lockoutTracker.Unlock(c.Request.Context(), principal); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "unlock failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "unlocked"})
}

// --- admin: sessions ---

func listSessionsHandler(c *gin.Context) {
	principal := c.Param("principal")
	rows, err := sessionRegistry.List(c.Request.Context(), principal)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query failed"})
		return
	}
	c.JSON(http.StatusOK, rows)
}

func revokeSessionHandler(c *gin.Context) {
	id := c.Param("id")
	if err := sessionRegistry.Revoke(c.Request.Context(), id); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "revoke failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "session revoked"})
}

// --- admin: manual purge ---

func purgeHandler(c *gin.Context) {
	removed, err := revocationStore.PurgeExpired(c.Request.Context(), time.Now())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "purge failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"removed": removed})
}
