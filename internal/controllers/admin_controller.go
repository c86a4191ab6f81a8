package controllers

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"examgate_backend/internal/models"
	"examgate_backend/internal/ws"
)

type AdminController struct {
	DB   *gorm.DB
	Hubs *ws.Hubs
}

// ListUsers supports limit/page/role/blocked filters.
func (ac *AdminController) ListUsers(c *gin.Context) {
	limit := 20
	page := 1
	if v := c.Query("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}
	if v := c.Query("page"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			page = n
		}
	}

	base := ac.DB.Model(&models.User{})
	if role := strings.TrimSpace(c.Query("role")); role != "" {
		base = base.Where("role = ?", role)
	}
	switch strings.ToLower(c.Query("blocked")) {
	case "true", "1":
		base = base.Where("is_blocked = ?", true)
	case "false", "0":
		base = base.Where("is_blocked = ?", false)
	}

	var total int64
	if err := base.Count(&total).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	var users []models.User
	if err := base.Order("created_at ASC").Offset((page - 1) * limit).Limit(limit).Find(&users).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	out := make([]gin.H, 0, len(users))
	for i := range users {
		out = append(out, userResponse(&users[i]))
	}
	c.JSON(http.StatusOK, gin.H{
		"data": out,
		"meta": gin.H{"total": total, "limit": limit, "page": page},
	})
}

func (ac *AdminController) GetUser(c *gin.Context) {
	var user models.User
	if err := ac.DB.Where("user_id = ?", c.Param("user_id")).First(&user).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
		return
	}
	c.JSON(http.StatusOK, userResponse(&user))
}

type updateUserRequest struct {
	FullName *string `json:"full_name"`
	Role     *string `json:"role"`
	Active   *bool   `json:"active"`
}

func (ac *AdminController) UpdateUser(c *gin.Context) {
	var user models.User
	if err := ac.DB.Where("user_id = ?", c.Param("user_id")).First(&user).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
		return
	}

	var req updateUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if req.FullName != nil {
		user.FullName = *req.FullName
	}
	if req.Role != nil {
		if !IsValidRole(*req.Role) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid role"})
			return
		}
		user.Role = *req.Role
	}
	if req.Active != nil {
		user.Active = *req.Active
	}
	if err := ac.DB.Save(&user).Error; err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, userResponse(&user))
}

func (ac *AdminController) DeleteUser(c *gin.Context) {
	res := ac.DB.Where("user_id = ?", c.Param("user_id")).Delete(&models.User{})
	if res.Error != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": res.Error.Error()})
		return
	}
	if res.RowsAffected == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "deleted"})
}

// BlockUser manually raises the block flag.
func (ac *AdminController) BlockUser(c *gin.Context) {
	ac.setBlocked(c, true)
}

// UnblockUser clears the block flag so the student can request access
// again. The guardian will not re-block until the student files a new
// attendance request bound to an elapsed window.
func (ac *AdminController) UnblockUser(c *gin.Context) {
	ac.setBlocked(c, false)
}

func (ac *AdminController) setBlocked(c *gin.Context, blocked bool) {
	var user models.User
	if err := ac.DB.Where("user_id = ?", c.Param("user_id")).First(&user).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
		return
	}

	user.IsBlocked = blocked
	if err := ac.DB.Save(&user).Error; err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if ac.Hubs != nil && blocked {
		ac.Hubs.Student.Notify(user.UserID, ws.StudentMessage{
			Type:    ws.EventForceBlocked,
			Blocked: true,
			Reason:  "Blocked by admin",
		})
	}
	c.JSON(http.StatusOK, userResponse(&user))
}

func userResponse(user *models.User) gin.H {
	return gin.H{
		"user_id":    user.UserID,
		"full_name":  user.FullName,
		"email":      user.Email,
		"role":       user.Role,
		"is_blocked": user.IsBlocked,
		"active":     user.Active,
		"created_at": user.CreatedAt,
	}
}
