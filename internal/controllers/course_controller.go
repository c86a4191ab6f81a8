package controllers

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"examgate_backend/internal/models"
	"examgate_backend/internal/timewindow"
)

type CourseController struct {
	DB *gorm.DB
}

type courseRequest struct {
	Name     string `json:"name" binding:"required"`
	MaxLevel int    `json:"max_level"`
	Config   string `json:"config"`
	Active   *bool  `json:"active"`
}

func (cc *CourseController) Create(c *gin.Context) {
	var req courseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if !validCourseConfig(req.Config) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "config must be a JSON object"})
		return
	}

	active := true
	if req.Active != nil {
		active = *req.Active
	}
	course := models.Course{
		Name:     req.Name,
		MaxLevel: req.MaxLevel,
		Config:   req.Config,
		Active:   active,
	}
	if err := cc.DB.Create(&course).Error; err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, courseResponse(&course))
}

func (cc *CourseController) List(c *gin.Context) {
	var courses []models.Course
	if err := cc.DB.Order("created_at ASC").Find(&courses).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	out := make([]gin.H, 0, len(courses))
	for i := range courses {
		out = append(out, courseResponse(&courses[i]))
	}
	c.JSON(http.StatusOK, gin.H{"data": out})
}

func (cc *CourseController) Get(c *gin.Context) {
	var course models.Course
	if err := cc.DB.First(&course, "id = ?", c.Param("id")).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "course not found"})
		return
	}
	c.JSON(http.StatusOK, courseResponse(&course))
}

type courseUpdateRequest struct {
	Name     *string `json:"name"`
	MaxLevel *int    `json:"max_level"`
	Config   *string `json:"config"`
	Active   *bool   `json:"active"`
}

func (cc *CourseController) Update(c *gin.Context) {
	var course models.Course
	if err := cc.DB.First(&course, "id = ?", c.Param("id")).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "course not found"})
		return
	}

	var req courseUpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.Config != nil && !validCourseConfig(*req.Config) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "config must be a JSON object"})
		return
	}

	if req.Name != nil {
		course.Name = *req.Name
	}
	if req.MaxLevel != nil {
		course.MaxLevel = *req.MaxLevel
	}
	if req.Config != nil {
		course.Config = *req.Config
	}
	if req.Active != nil {
		course.Active = *req.Active
	}
	if err := cc.DB.Save(&course).Error; err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, courseResponse(&course))
}

func (cc *CourseController) Delete(c *gin.Context) {
	res := cc.DB.Delete(&models.Course{}, "id = ?", c.Param("id"))
	if res.Error != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": res.Error.Error()})
		return
	}
	if res.RowsAffected == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "course not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "deleted"})
}

// TimeLimits previews the resolved per-level limits, useful when editing
// the config document.
func (cc *CourseController) TimeLimits(c *gin.Context) {
	var course models.Course
	if err := cc.DB.First(&course, "id = ?", c.Param("id")).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "course not found"})
		return
	}

	cfg := timewindow.ParseCourseConfig(course.Config)
	maxLevel := course.MaxLevel
	if maxLevel < 1 {
		maxLevel = 1
	}
	limits := map[int]int{}
	for level := 1; level <= maxLevel; level++ {
		limits[level] = timewindow.ResolveTimeLimit(cfg, level)
	}
	c.JSON(http.StatusOK, gin.H{"course_id": course.ID, "time_limit_minutes": limits})
}

func validCourseConfig(raw string) bool {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return true
	}
	var cfg map[string]any
	return json.Unmarshal([]byte(raw), &cfg) == nil
}

func courseResponse(course *models.Course) gin.H {
	return gin.H{
		"id":        course.ID,
		"name":      course.Name,
		"max_level": course.MaxLevel,
		"config":    course.Config,
		"active":    course.Active,
	}
}
