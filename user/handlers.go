package user

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/wafflestudio18-5/team2-server/common"
	"github.com/wafflestudio18-5/team2-server/logger"
	"github.com/wafflestudio18-5/team2-server/models"
	"github.com/wafflestudio18-5/team2-server/token"
)

const (
	authTypeTest  = "TEST"
	authTypeOAuth = "OAUTH"
	authTypeEmail = "EMAIL"

	reqTypeInit   = "INIT"
	reqTypeCheck  = "CHECK"
	reqTypeCreate = "CREATE"
	reqTypeLogin  = "LOGIN"
)

const storyPageSize = 10

type UserModule struct {
	db       *gorm.DB
	svc      *Service
	tokens   *token.Store
	auth     *Auth
	verifier Verifier
	log      *logger.Logger
}

// NewUserModule wires the identity endpoints. verifier may be nil when no
// external identity provider is configured.
func NewUserModule(db *gorm.DB, tokens *token.Store, verifier Verifier, log *logger.Logger) *UserModule {
	return &UserModule{
		db:       db,
		svc:      NewService(db, log),
		tokens:   tokens,
		auth:     NewAuth(db),
		verifier: verifier,
		log:      log.With("module", "user"),
	}
}

func (u *UserModule) RegisterRoutes(router *gin.Engine) {
	userGroup := router.Group("/user")
	{
		userGroup.POST("/", u.signup)
		userGroup.POST("/login/", u.login)
		userGroup.POST("/logout/", u.auth.Required, u.logout)
		userGroup.POST("/social/", u.social)
		userGroup.GET("/:id/", u.auth.Optional, u.retrieve)
		userGroup.PUT("/:id/", u.auth.Required, u.update)
		userGroup.GET("/:id/story/", u.auth.Optional, u.stories)
	}
}

// Auth returns the middleware other modules use to authenticate requests.
func (u *UserModule) Auth() *Auth {
	return u.auth
}

type authRequest struct {
	AuthType     string `json:"auth_type"`
	ReqType      string `json:"req_type"`
	Username     string `json:"username"`
	Email        string `json:"email"`
	Name         string `json:"name"`
	ProfileImage string `json:"profile_image"`
	AccessToken  string `json:"access_token"`
}

func userPayload(user *models.User, key string) gin.H {
	return gin.H{
		"id":            user.ID,
		"username":      user.Username,
		"name":          user.Name,
		"profile_image": user.ProfileImage,
		"token":         key,
	}
}

func (u *UserModule) signup(c *gin.Context) {
	var req authRequest
	_ = c.ShouldBindJSON(&req)

	switch req.AuthType {
	case authTypeTest:
		if req.Username == "" {
			common.AbortWithError(c, common.BadRequest("username is required"))
			return
		}
		if req.Name == "" || req.Email == "" {
			common.AbortWithError(c, common.BadRequest("name and email are required"))
			return
		}
		profile := Profile{Name: req.Name, Email: req.Email, ProfileImage: req.ProfileImage}
		user, appErr := u.svc.CreateUser(req.Username, profile, true)
		if appErr != nil {
			common.AbortWithError(c, appErr)
			return
		}
		u.finishAuth(c, user, http.StatusCreated)

	case authTypeOAuth:
		common.AbortWithError(c, common.NotImplemented("OAUTH is not yet implemented."))

	case authTypeEmail:
		u.emailSignup(c, &req)

	default:
		common.AbortWithError(c,
			common.BadRequest("auth_type should be one of [TEST OAUTH EMAIL]"))
	}
}

// emailSignup drives the three-step passwordless signup: INIT sends a
// token by email, CHECK burns it to prove control of the address and hands
// back a short-lived replacement, CREATE burns the replacement and creates
// the account.
func (u *UserModule) emailSignup(c *gin.Context, req *authRequest) {
	switch req.ReqType {
	case reqTypeInit:
		if req.Email == "" {
			common.AbortWithError(c, common.BadRequest("email is required"))
			return
		}
		auth, appErr := u.tokens.Issue(req.Email)
		if appErr != nil {
			common.AbortWithError(c, appErr)
			return
		}
		if appErr := u.tokens.Deliver(auth, true); appErr != nil {
			common.AbortWithError(c, appErr)
			return
		}
		c.JSON(http.StatusOK, gin.H{"email": req.Email})

	case reqTypeCheck:
		if req.AccessToken == "" {
			common.AbortWithError(c, common.BadRequest("access_token is required"))
			return
		}
		address, appErr := u.tokens.Redeem(req.AccessToken, true)
		if appErr != nil {
			common.AbortWithError(c, appErr)
			return
		}
		reissued, appErr := u.tokens.Reissue(address.Email)
		if appErr != nil {
			common.AbortWithError(c, appErr)
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"email":        address.Email,
			"access_token": reissued.Token,
		})

	case reqTypeCreate:
		if req.AccessToken == "" {
			common.AbortWithError(c, common.BadRequest("access_token is required"))
			return
		}
		if req.Username == "" {
			common.AbortWithError(c, common.BadRequest("username is required"))
			return
		}
		if req.Name == "" || req.Email == "" {
			common.AbortWithError(c, common.BadRequest("name and email are required"))
			return
		}
		address, appErr := u.tokens.Redeem(req.AccessToken, false)
		if appErr != nil {
			common.AbortWithError(c, appErr)
			return
		}
		if req.Email != address.Email {
			common.AbortWithError(c, common.BadRequest("Email does not match."))
			return
		}
		profile := Profile{Name: req.Name, Email: req.Email, ProfileImage: req.ProfileImage}
		user, appErr := u.svc.CreateUser(req.Username, profile, false)
		if appErr != nil {
			common.AbortWithError(c, appErr)
			return
		}
		u.finishAuth(c, user, http.StatusCreated)

	default:
		common.AbortWithError(c,
			common.BadRequest("req_type should be one of [INIT CHECK CREATE]"))
	}
}

func (u *UserModule) login(c *gin.Context) {
	var req authRequest
	_ = c.ShouldBindJSON(&req)

	switch req.AuthType {
	case authTypeTest:
		if req.Username == "" {
			common.AbortWithError(c, common.BadRequest("username is required"))
			return
		}
		user, appErr := u.svc.ResolveTestLogin(req.Username)
		if appErr != nil {
			common.AbortWithError(c, appErr)
			return
		}
		u.finishAuth(c, user, http.StatusOK)

	case authTypeOAuth:
		common.AbortWithError(c, common.NotImplemented("OAUTH is not yet implemented."))

	case authTypeEmail:
		u.emailLogin(c, &req)

	default:
		common.AbortWithError(c,
			common.BadRequest("auth_type should be one of [TEST OAUTH EMAIL]"))
	}
}

func (u *UserModule) emailLogin(c *gin.Context, req *authRequest) {
	switch req.ReqType {
	case reqTypeInit:
		if req.Email == "" {
			common.AbortWithError(c, common.BadRequest("email is required"))
			return
		}
		var address models.EmailAddress
		if err := u.db.Where("email = ?", req.Email).First(&address).Error; err != nil || address.Available() {
			common.AbortWithError(c, common.NotFound("A user with that email does not exist."))
			return
		}
		auth, appErr := u.tokens.Issue(req.Email)
		if appErr != nil {
			common.AbortWithError(c, appErr)
			return
		}
		if appErr := u.tokens.Deliver(auth, false); appErr != nil {
			common.AbortWithError(c, appErr)
			return
		}
		c.JSON(http.StatusOK, gin.H{"email": req.Email})

	case reqTypeLogin:
		if req.AccessToken == "" {
			common.AbortWithError(c, common.BadRequest("access_token is required"))
			return
		}
		address, appErr := u.tokens.Redeem(req.AccessToken, true)
		if appErr != nil {
			common.AbortWithError(c, appErr)
			return
		}
		user, appErr := u.svc.ResolveEmailLogin(address)
		if appErr != nil {
			common.AbortWithError(c, appErr)
			return
		}
		u.finishAuth(c, user, http.StatusOK)

	default:
		common.AbortWithError(c,
			common.BadRequest("req_type should be one of [INIT LOGIN]"))
	}
}

// social logs in with a provider credential verified by the external
// identity collaborator.
func (u *UserModule) social(c *gin.Context) {
	if u.verifier == nil {
		common.AbortWithError(c, common.NotImplemented("social login is not configured"))
		return
	}

	var req struct {
		Provider   string `json:"provider"`
		Credential string `json:"credential"`
	}
	_ = c.ShouldBindJSON(&req)
	if req.Provider == "" || req.Credential == "" {
		common.AbortWithError(c, common.BadRequest("provider and credential are required"))
		return
	}

	identity, err := u.verifier.Verify(req.Provider, req.Credential)
	if err != nil {
		common.AbortWithError(c, common.Unauthorized("could not verify identity"))
		return
	}

	user, appErr := u.svc.SocialLogin(*identity)
	if appErr != nil {
		common.AbortWithError(c, appErr)
		return
	}
	u.finishAuth(c, user, http.StatusOK)
}

func (u *UserModule) finishAuth(c *gin.Context, user *models.User, status int) {
	authToken, appErr := u.svc.IssueAuthToken(user)
	if appErr != nil {
		common.AbortWithError(c, appErr)
		return
	}
	Login(c, user)
	c.JSON(status, userPayload(user, authToken.Key))
}

func (u *UserModule) logout(c *gin.Context) {
	Logout(c)
	c.Status(http.StatusNoContent)
}

func (u *UserModule) retrieve(c *gin.Context) {
	id := c.Param("id")
	current := CurrentUser(c)

	if id == "me" {
		if current == nil {
			common.AbortWithError(c, common.Unauthorized("Authentication credentials were not provided."))
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"id":            current.ID,
			"username":      current.Username,
			"name":          current.Name,
			"bio":           current.Bio,
			"profile_image": current.ProfileImage,
			"email":         u.svc.PrimaryEmail(current),
			"connection":    u.svc.Connections(current),
		})
		return
	}

	var target models.User
	if err := u.db.First(&target, id).Error; err != nil {
		common.AbortWithError(c, common.NotFound("Not found."))
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"id":            target.ID,
		"username":      target.Username,
		"name":          target.Name,
		"bio":           target.Bio,
		"profile_image": target.ProfileImage,
	})
}

// update edits the caller's own profile; partial, self-only.
func (u *UserModule) update(c *gin.Context) {
	if c.Param("id") != "me" {
		common.AbortWithError(c, common.Forbidden("Cannot edit a profile other than 'me'"))
		return
	}
	current := CurrentUser(c)

	var req struct {
		Name         *string `json:"name"`
		Bio          *string `json:"bio"`
		ProfileImage *string `json:"profile_image"`
	}
	_ = c.ShouldBindJSON(&req)

	if req.Name != nil {
		if *req.Name == "" {
			common.AbortWithError(c, common.BadRequest("name may not be blank"))
			return
		}
		current.Name = *req.Name
	}
	if req.Bio != nil {
		current.Bio = *req.Bio
	}
	if req.ProfileImage != nil {
		current.ProfileImage = *req.ProfileImage
	}

	if err := u.db.Save(current).Error; err != nil {
		common.AbortWithError(c, common.ServiceUnavailable("could not update profile"))
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"id":            current.ID,
		"username":      current.Username,
		"name":          current.Name,
		"bio":           current.Bio,
		"profile_image": current.ProfileImage,
		"email":         u.svc.PrimaryEmail(current),
		"connection":    u.svc.Connections(current),
	})
}

// stories lists a user's stories. "me" covers drafts too unless narrowed
// with ?public=true; the public param is only queryable for "me".
func (u *UserModule) stories(c *gin.Context) {
	id := c.Param("id")
	current := CurrentUser(c)
	_, hasPublic := c.GetQuery("public")

	if hasPublic && id != "me" {
		common.AbortWithError(c, common.Forbidden("Cannot query 'public' for user other than 'me'"))
		return
	}

	var writerID uint
	mine := id == "me"
	if mine {
		if current == nil {
			common.AbortWithError(c, common.Unauthorized("Authentication credentials were not provided."))
			return
		}
		writerID = current.ID
	} else {
		var target models.User
		if err := u.db.First(&target, id).Error; err != nil {
			common.AbortWithError(c, common.NotFound("Not found."))
			return
		}
		writerID = target.ID
	}

	publishedOnly := !mine || c.Query("public") == "true"
	filter := func(db *gorm.DB) *gorm.DB {
		db = db.Where("writer_id = ?", writerID)
		if publishedOnly {
			db = db.Where("published = ?", true)
		}
		return db
	}

	var count int64
	if err := filter(u.db.Model(&models.Story{})).Count(&count).Error; err != nil {
		common.AbortWithError(c, common.ServiceUnavailable("could not list stories"))
		return
	}
	page, appErr := common.Paginate(c, storyPageSize, count)
	if appErr != nil {
		common.AbortWithError(c, appErr)
		return
	}

	var stories []models.Story
	if err := filter(u.db).Order("created_at DESC").
		Offset(page.Offset()).Limit(page.Size).
		Find(&stories).Error; err != nil {
		common.AbortWithError(c, common.ServiceUnavailable("could not list stories"))
		return
	}

	items := make([]gin.H, 0, len(stories))
	for i := range stories {
		story := &stories[i]
		if mine && !publishedOnly {
			items = append(items, gin.H{
				"id":           story.ID,
				"title":        story.Title,
				"subtitle":     story.Subtitle,
				"created_at":   story.CreatedAt,
				"updated_at":   story.UpdatedAt,
				"published_at": story.PublishedAt,
				"published":    story.Published,
			})
		} else {
			items = append(items, gin.H{
				"id":           story.ID,
				"title":        story.Title,
				"subtitle":     story.Subtitle,
				"body":         story.Body,
				"published_at": story.PublishedAt,
			})
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"count":    page.Count,
		"next":     page.Next,
		"previous": page.Previous,
		"stories":  items,
	})
}
