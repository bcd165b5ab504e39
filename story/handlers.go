package story

import (
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/wafflestudio18-5/team2-server/cache"
	"github.com/wafflestudio18-5/team2-server/common"
	"github.com/wafflestudio18-5/team2-server/logger"
	"github.com/wafflestudio18-5/team2-server/models"
	"github.com/wafflestudio18-5/team2-server/user"
)

const jsonContentType = "application/json; charset=utf-8"

type StoryModule struct {
	db    *gorm.DB
	svc   *Service
	auth  *user.Auth
	store cache.Store
	log   *logger.Logger
}

func NewStoryModule(db *gorm.DB, store cache.Store, auth *user.Auth, log *logger.Logger) *StoryModule {
	return &StoryModule{
		db:    db,
		svc:   NewService(db, log),
		auth:  auth,
		store: store,
		log:   log.With("module", "story"),
	}
}

func (m *StoryModule) RegisterRoutes(router *gin.Engine) {
	storyGroup := router.Group("/story")
	{
		storyGroup.GET("/", m.list)
		storyGroup.POST("/", m.auth.Required, m.create)
		storyGroup.GET("/main/", m.mainList)
		storyGroup.GET("/trending/", m.trendingList)
		storyGroup.GET("/:id/", m.auth.Optional, m.retrieve)
		storyGroup.PUT("/:id/", m.auth.Required, m.update)
		storyGroup.DELETE("/:id/", m.auth.Required, m.delete)
		storyGroup.POST("/:id/publish/", m.auth.Required, m.togglePublish)
		storyGroup.GET("/:id/html/", m.auth.Optional, m.renderHTML)
		storyGroup.GET("/:id/comment/", m.listComments)
		storyGroup.POST("/:id/comment/", m.auth.Required, m.postComment)
		storyGroup.PUT("/:id/comment/", m.auth.Required, m.editComment)
		storyGroup.DELETE("/:id/comment/", m.auth.Required, m.deleteComment)
		storyGroup.GET("/:id/tag/", m.listTags)
		storyGroup.POST("/:id/tag/", m.auth.Required, m.addTag)
		storyGroup.DELETE("/:id/tag/", m.auth.Required, m.removeTag)
	}
}

func writerPayload(writer *models.User) gin.H {
	if writer == nil {
		return nil
	}
	return gin.H{
		"id":            writer.ID,
		"username":      writer.Username,
		"name":          writer.Name,
		"profile_image": writer.ProfileImage,
	}
}

func storyPayload(story *models.Story) gin.H {
	body := json.RawMessage(story.Body)
	if len(body) == 0 {
		body = json.RawMessage("[]")
	}
	return gin.H{
		"id":             story.ID,
		"writer":         writerPayload(story.Writer),
		"title":          story.Title,
		"subtitle":       story.Subtitle,
		"body":           body,
		"featured_image": story.FeaturedImage,
		"created_at":     story.CreatedAt,
		"updated_at":     story.UpdatedAt,
		"published":      story.Published,
		"published_at":   story.PublishedAt,
	}
}

func listItemPayload(story *models.Story) gin.H {
	return gin.H{
		"id":             story.ID,
		"writer":         writerPayload(story.Writer),
		"title":          story.Title,
		"subtitle":       story.Subtitle,
		"featured_image": story.FeaturedImage,
		"created_at":     story.CreatedAt,
		"published_at":   story.PublishedAt,
	}
}

func commentPayload(comment *models.StoryComment) gin.H {
	return gin.H{
		"id":         comment.ID,
		"story_id":   comment.StoryID,
		"writer":     writerPayload(comment.Writer),
		"body":       comment.Body,
		"created_at": comment.CreatedAt,
		"updated_at": comment.UpdatedAt,
	}
}

func (m *StoryModule) create(c *gin.Context) {
	var input Input
	_ = c.ShouldBindJSON(&input)

	story, appErr := m.svc.Create(user.CurrentUser(c), input)
	if appErr != nil {
		common.AbortWithError(c, appErr)
		return
	}
	c.JSON(http.StatusCreated, storyPayload(story))
}

func (m *StoryModule) update(c *gin.Context) {
	var input Input
	_ = c.ShouldBindJSON(&input)

	story, appErr := m.svc.Update(c.Param("id"), user.CurrentUser(c), input)
	if appErr != nil {
		common.AbortWithError(c, appErr)
		return
	}
	c.JSON(http.StatusOK, storyPayload(story))
}

func (m *StoryModule) retrieve(c *gin.Context) {
	current := user.CurrentUser(c)
	story, appErr := m.svc.Retrieve(c.Param("id"), current)
	if appErr != nil {
		common.AbortWithError(c, appErr)
		return
	}
	if story.Published {
		m.svc.TrackRead(story, current)
	}
	c.JSON(http.StatusOK, storyPayload(story))
}

func (m *StoryModule) togglePublish(c *gin.Context) {
	story, appErr := m.svc.TogglePublish(c.Param("id"), user.CurrentUser(c))
	if appErr != nil {
		common.AbortWithError(c, appErr)
		return
	}
	c.JSON(http.StatusOK, storyPayload(story))
}

func (m *StoryModule) delete(c *gin.Context) {
	if appErr := m.svc.Delete(c.Param("id"), user.CurrentUser(c)); appErr != nil {
		common.AbortWithError(c, appErr)
		return
	}
	c.Status(http.StatusNoContent)
}

// renderHTML serves the story as a rendered HTML fragment, with the same
// visibility rule as retrieve.
func (m *StoryModule) renderHTML(c *gin.Context) {
	story, appErr := m.svc.Retrieve(c.Param("id"), user.CurrentUser(c))
	if appErr != nil {
		common.AbortWithError(c, appErr)
		return
	}
	rendered, err := RenderHTML(story)
	if err != nil {
		common.AbortWithError(c, common.BadRequest("story body is malformed"))
		return
	}
	c.Data(http.StatusOK, "text/html; charset=utf-8", []byte(rendered))
}

// list serves GET /story/. The first page of the unfiltered listing is
// read through the cache; a title filter or any later page queries live.
// The declared tag filter is not built yet and says so.
func (m *StoryModule) list(c *gin.Context) {
	if _, ok := c.GetQuery("tag"); ok {
		common.AbortWithError(c, common.NotImplemented("tag filter is not implemented"))
		return
	}

	title := c.Query("title")
	pageParam := c.Query("page")
	cacheable := title == "" && (pageParam == "" || pageParam == "1")

	if cacheable {
		if cached, ok := m.store.Get(c.Request.Context(), cache.ViewDefault.Key()); ok {
			c.Header("X-Cache", "HIT")
			c.Data(http.StatusOK, jsonContentType, cached)
			return
		}
		c.Header("X-Cache", "MISS")
	}

	// Count first so pagination can reject out-of-range pages.
	count, appErr := m.svc.CountDefault(title)
	if appErr != nil {
		common.AbortWithError(c, appErr)
		return
	}
	page, pErr := common.Paginate(c, listPageSize, count)
	if pErr != nil {
		common.AbortWithError(c, pErr)
		return
	}
	stories, appErr := m.svc.ListDefault(title, page.Offset(), page.Size)
	if appErr != nil {
		common.AbortWithError(c, appErr)
		return
	}

	items := make([]gin.H, 0, len(stories))
	for i := range stories {
		items = append(items, listItemPayload(&stories[i]))
	}
	envelope := gin.H{
		"count":    page.Count,
		"next":     page.Next,
		"previous": page.Previous,
		"stories":  items,
	}

	payload, err := json.Marshal(envelope)
	if err != nil {
		common.AbortWithError(c, err)
		return
	}
	if cacheable {
		m.store.Set(c.Request.Context(), cache.ViewDefault.Key(), payload, cache.ViewDefault.TTL())
	}
	c.Data(http.StatusOK, jsonContentType, payload)
}

func (m *StoryModule) mainList(c *gin.Context) {
	m.curatedList(c, cache.ViewMain, m.svc.ListMain)
}

func (m *StoryModule) trendingList(c *gin.Context) {
	m.curatedList(c, cache.ViewTrending, m.svc.ListTrending)
}

func (m *StoryModule) curatedList(c *gin.Context, view cache.View, fetch func() ([]models.Story, *common.Err)) {
	if cached, ok := m.store.Get(c.Request.Context(), view.Key()); ok {
		c.Header("X-Cache", "HIT")
		c.Data(http.StatusOK, jsonContentType, cached)
		return
	}
	c.Header("X-Cache", "MISS")

	stories, appErr := fetch()
	if appErr != nil {
		common.AbortWithError(c, appErr)
		return
	}

	items := make([]gin.H, 0, len(stories))
	for i := range stories {
		items = append(items, listItemPayload(&stories[i]))
	}
	payload, err := json.Marshal(gin.H{"stories": items})
	if err != nil {
		common.AbortWithError(c, err)
		return
	}
	m.store.Set(c.Request.Context(), view.Key(), payload, view.TTL())
	c.Data(http.StatusOK, jsonContentType, payload)
}

func (m *StoryModule) listComments(c *gin.Context) {
	// Count first; the page links need the total.
	count, appErr := m.svc.CountComments(c.Param("id"))
	if appErr != nil {
		common.AbortWithError(c, appErr)
		return
	}
	page, pErr := common.Paginate(c, listPageSize, count)
	if pErr != nil {
		common.AbortWithError(c, pErr)
		return
	}
	comments, appErr := m.svc.ListComments(c.Param("id"), page.Offset(), page.Size)
	if appErr != nil {
		common.AbortWithError(c, appErr)
		return
	}

	items := make([]gin.H, 0, len(comments))
	for i := range comments {
		items = append(items, commentPayload(&comments[i]))
	}
	c.JSON(http.StatusOK, gin.H{
		"count":    page.Count,
		"next":     page.Next,
		"previous": page.Previous,
		"comments": items,
	})
}

func (m *StoryModule) postComment(c *gin.Context) {
	var req struct {
		Body string `json:"body"`
	}
	_ = c.ShouldBindJSON(&req)

	comment, appErr := m.svc.PostComment(c.Param("id"), user.CurrentUser(c), req.Body)
	if appErr != nil {
		common.AbortWithError(c, appErr)
		return
	}
	c.JSON(http.StatusCreated, commentPayload(comment))
}

func (m *StoryModule) editComment(c *gin.Context) {
	commentID := c.Query("id")
	if commentID == "" {
		common.AbortWithError(c, common.BadRequest("id query parameter is required"))
		return
	}

	var req struct {
		Body *string `json:"body"`
	}
	_ = c.ShouldBindJSON(&req)

	comment, appErr := m.svc.EditComment(c.Param("id"), commentID, user.CurrentUser(c), req.Body)
	if appErr != nil {
		common.AbortWithError(c, appErr)
		return
	}
	c.JSON(http.StatusOK, commentPayload(comment))
}

func (m *StoryModule) deleteComment(c *gin.Context) {
	commentID := c.Query("id")
	if commentID == "" {
		common.AbortWithError(c, common.BadRequest("id query parameter is required"))
		return
	}
	if appErr := m.svc.DeleteComment(c.Param("id"), commentID, user.CurrentUser(c)); appErr != nil {
		common.AbortWithError(c, appErr)
		return
	}
	c.Status(http.StatusNoContent)
}

func (m *StoryModule) listTags(c *gin.Context) {
	story, names, appErr := m.svc.ListTags(c.Param("id"))
	if appErr != nil {
		common.AbortWithError(c, appErr)
		return
	}
	c.JSON(http.StatusOK, gin.H{"story": story.ID, "tags": names})
}

func (m *StoryModule) addTag(c *gin.Context) {
	var req struct {
		Name string `json:"name"`
	}
	_ = c.ShouldBindJSON(&req)

	storyTag, appErr := m.svc.AddTag(c.Param("id"), user.CurrentUser(c), req.Name)
	if appErr != nil {
		common.AbortWithError(c, appErr)
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"story":      storyTag.StoryID,
		"name":       storyTag.Tag.Name,
		"created_at": storyTag.CreatedAt,
	})
}

func (m *StoryModule) removeTag(c *gin.Context) {
	var req struct {
		Name string `json:"name"`
	}
	_ = c.ShouldBindJSON(&req)

	if appErr := m.svc.RemoveTag(c.Param("id"), user.CurrentUser(c), req.Name); appErr != nil {
		common.AbortWithError(c, appErr)
		return
	}
	c.Status(http.StatusNoContent)
}
