package user

import (
	"net/http"
	"strings"

	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/wafflestudio18-5/team2-server/models"
)

const contextUserKey = "current_user"

// Auth middleware resolves the requesting user from either a
// "Authorization: Token <key>" header or the session cookie set at login.
type Auth struct {
	db *gorm.DB
}

func NewAuth(db *gorm.DB) *Auth {
	return &Auth{db: db}
}

func (a *Auth) resolve(c *gin.Context) *models.User {
	if header := c.GetHeader("Authorization"); header != "" {
		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || parts[0] != "Token" {
			return nil
		}
		var authToken models.AuthToken
		if err := a.db.Where("key = ?", parts[1]).First(&authToken).Error; err != nil {
			return nil
		}
		var user models.User
		if err := a.db.First(&user, authToken.UserID).Error; err != nil {
			return nil
		}
		return &user
	}

	session := sessions.Default(c)
	userID := session.Get("user_id")
	if userID == nil {
		return nil
	}
	id, ok := userID.(uint)
	if !ok {
		return nil
	}
	var user models.User
	if err := a.db.First(&user, id).Error; err != nil {
		return nil
	}
	return &user
}

// Required rejects unauthenticated requests with 401.
func (a *Auth) Required(c *gin.Context) {
	user := a.resolve(c)
	if user == nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
			"detail": "Authentication credentials were not provided.",
		})
		return
	}
	c.Set(contextUserKey, user)
	c.Next()
}

// Optional resolves the user when credentials are present and continues
// anonymously otherwise.
func (a *Auth) Optional(c *gin.Context) {
	if user := a.resolve(c); user != nil {
		c.Set(contextUserKey, user)
	}
	c.Next()
}

// CurrentUser returns the authenticated user set by the middleware, or nil.
func CurrentUser(c *gin.Context) *models.User {
	value, ok := c.Get(contextUserKey)
	if !ok {
		return nil
	}
	user, ok := value.(*models.User)
	if !ok {
		return nil
	}
	return user
}

// Login records the user in the session alongside the returned API token.
func Login(c *gin.Context, user *models.User) {
	session := sessions.Default(c)
	session.Set("user_id", user.ID)
	_ = session.Save()
}

// Logout clears the session.
func Logout(c *gin.Context) {
	session := sessions.Default(c)
	session.Clear()
	_ = session.Save()
}
