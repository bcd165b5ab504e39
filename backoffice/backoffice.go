package backoffice

import (
	"errors"
	"net/http"
	"os"
	"strings"

	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"github.com/wafflestudio18-5/team2-server/common"
	"github.com/wafflestudio18-5/team2-server/logger"
	"github.com/wafflestudio18-5/team2-server/models"
)

// BackofficeModule is the staff-only curation surface. It is the only way
// main_order and trending_order get written; the owner-facing story API
// treats them as read-only placement.
type BackofficeModule struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewBackofficeModule(db *gorm.DB, log *logger.Logger) *BackofficeModule {
	return &BackofficeModule{db: db, log: log.With("module", "backoffice")}
}

func (b *BackofficeModule) RegisterRoutes(router *gin.Engine) {
	backofficeGroup := router.Group("/$")
	{
		backofficeGroup.POST("/login/", b.login)
		backofficeGroup.POST("/logout/", b.logout)
		backofficeGroup.GET("/stories/", b.requireStaff, b.listStories)
		backofficeGroup.PUT("/story/:id/curation/", b.requireStaff, b.setCuration)
	}
}

// requireStaff gates the curation endpoints on the staff session flag set
// by a successful login.
func (b *BackofficeModule) requireStaff(c *gin.Context) {
	session := sessions.Default(c)
	if staff, ok := session.Get("backoffice_staff").(bool); !ok || !staff {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
			"detail": "Authentication credentials were not provided.",
		})
		return
	}
	c.Next()
}

// login checks the shared staff password against the bcrypt hash in
// BACKOFFICE_PASSWORD_HASH.
func (b *BackofficeModule) login(c *gin.Context) {
	hash := strings.TrimSpace(os.Getenv("BACKOFFICE_PASSWORD_HASH"))
	if hash == "" {
		common.AbortWithError(c, common.NotImplemented("backoffice is not configured"))
		return
	}

	var req struct {
		Password string `json:"password"`
	}
	_ = c.ShouldBindJSON(&req)

	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(req.Password)); err != nil {
		common.AbortWithError(c, common.Unauthorized("wrong password"))
		return
	}

	session := sessions.Default(c)
	session.Set("backoffice_staff", true)
	_ = session.Save()
	c.Status(http.StatusNoContent)
}

func (b *BackofficeModule) logout(c *gin.Context) {
	session := sessions.Default(c)
	session.Delete("backoffice_staff")
	_ = session.Save()
	c.Status(http.StatusNoContent)
}

// listStories shows published stories with their curated placement, the
// working set for slot assignment.
func (b *BackofficeModule) listStories(c *gin.Context) {
	var stories []models.Story
	if err := b.db.Where("published = ?", true).
		Order("published_at DESC").
		Find(&stories).Error; err != nil {
		common.AbortWithError(c, common.ServiceUnavailable("could not list stories"))
		return
	}

	items := make([]gin.H, 0, len(stories))
	for i := range stories {
		story := &stories[i]
		items = append(items, gin.H{
			"id":             story.ID,
			"writer_id":      story.WriterID,
			"title":          story.Title,
			"main_order":     story.MainOrder,
			"trending_order": story.TrendingOrder,
			"published_at":   story.PublishedAt,
		})
	}
	c.JSON(http.StatusOK, gin.H{"stories": items})
}

// setCuration assigns or clears a story's curated slots. Range checking
// (main 1..5, trending 1..6) lives in the model hook so no surface can
// bypass it.
func (b *BackofficeModule) setCuration(c *gin.Context) {
	var story models.Story
	if err := b.db.First(&story, "id = ?", c.Param("id")).Error; err != nil {
		common.AbortWithError(c, common.NotFound("Not found."))
		return
	}

	var req struct {
		MainOrder     *int `json:"main_order"`
		TrendingOrder *int `json:"trending_order"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		common.AbortWithError(c, common.BadRequest("malformed request body"))
		return
	}

	story.MainOrder = req.MainOrder
	story.TrendingOrder = req.TrendingOrder
	err := b.db.Model(&story).
		Select("main_order", "trending_order").
		Updates(map[string]interface{}{
			"main_order":     req.MainOrder,
			"trending_order": req.TrendingOrder,
		}).Error
	if err != nil {
		if errors.Is(err, models.ErrOrderOutOfRange) {
			common.AbortWithError(c, common.BadRequest("curated order out of range"))
			return
		}
		common.AbortWithError(c, common.ServiceUnavailable("could not update curation"))
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"id":             story.ID,
		"main_order":     story.MainOrder,
		"trending_order": story.TrendingOrder,
	})
}
