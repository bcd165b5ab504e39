package user

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/wafflestudio18-5/team2-server/common"
	"github.com/wafflestudio18-5/team2-server/logger"
	"github.com/wafflestudio18-5/team2-server/models"
)

func setupTestDB() *gorm.DB {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if err != nil {
		panic("failed to connect database")
	}
	db.AutoMigrate(
		&models.User{},
		&models.EmailAddress{},
		&models.EmailAuth{},
		&models.UserSocial{},
		&models.AuthToken{},
		&models.Story{},
	)
	return db
}

func setupService() (*Service, *gorm.DB) {
	db := setupTestDB()
	return NewService(db, logger.NewNop()), db
}

func TestCreateUser(t *testing.T) {
	svc, db := setupService()

	user, appErr := svc.CreateUser("seoyoon", Profile{
		Name:  "Seoyoon Moon",
		Email: "seoyoon@wadium.shop",
	}, false)

	assert.Nil(t, appErr)
	assert.Equal(t, "seoyoon", user.Username)
	assert.False(t, user.IsTest)

	var address models.EmailAddress
	assert.NoError(t, db.First(&address, "email = ?", "seoyoon@wadium.shop").Error)
	assert.False(t, address.Available())
	assert.Equal(t, user.ID, *address.UserID)
	assert.True(t, address.Primary)
}

func TestCreateUser_DuplicateUsername(t *testing.T) {
	svc, _ := setupService()

	_, appErr := svc.CreateUser("test", Profile{Name: "a", Email: "a@example.com"}, true)
	assert.Nil(t, appErr)

	_, appErr = svc.CreateUser("test", Profile{Name: "b", Email: "b@example.com"}, true)
	assert.NotNil(t, appErr)
	assert.Equal(t, common.KindConflict, appErr.Kind)
}

func TestCreateUser_DuplicateEmail(t *testing.T) {
	svc, db := setupService()

	_, appErr := svc.CreateUser("first", Profile{Name: "a", Email: "shared@example.com"}, true)
	assert.Nil(t, appErr)

	_, appErr = svc.CreateUser("second", Profile{Name: "b", Email: "shared@example.com"}, true)
	assert.NotNil(t, appErr)
	assert.Equal(t, common.KindConflict, appErr.Kind)

	// the failed signup rolled back entirely
	var userCount int64
	db.Model(&models.User{}).Count(&userCount)
	assert.Equal(t, int64(1), userCount)

	var addressCount int64
	db.Model(&models.EmailAddress{}).Where("email = ?", "shared@example.com").Count(&addressCount)
	assert.Equal(t, int64(1), addressCount)
}

func TestCreateUser_ClaimsIssuedAddress(t *testing.T) {
	svc, db := setupService()

	// address row already exists from a token issuance, unclaimed
	db.Create(&models.EmailAddress{Email: "seen@example.com"})

	user, appErr := svc.CreateUser("claimer", Profile{Name: "c", Email: "seen@example.com"}, false)
	assert.Nil(t, appErr)

	var address models.EmailAddress
	db.First(&address, "email = ?", "seen@example.com")
	assert.Equal(t, user.ID, *address.UserID)
	assert.True(t, address.Primary)
}

func TestUniqueUsername(t *testing.T) {
	svc, db := setupService()

	for _, name := range []string{"test", "test1", "test3", "test10"} {
		db.Create(&models.User{Username: name, Name: name})
	}

	assert.Equal(t, "test0", svc.UniqueUsername("test@example.com"))
}

func TestUniqueUsername_FreeBase(t *testing.T) {
	svc, _ := setupService()

	assert.Equal(t, "alice", svc.UniqueUsername("alice@example.com"))
}

func TestUniqueUsername_CaseSensitive(t *testing.T) {
	svc, db := setupService()

	db.Create(&models.User{Username: "Bob", Name: "Bob"})

	// exact matching: "Bob" does not take "bob"
	assert.Equal(t, "bob", svc.UniqueUsername("bob@example.com"))
}

func TestResolveTestLogin(t *testing.T) {
	svc, _ := setupService()

	_, appErr := svc.CreateUser("tester", Profile{Name: "t", Email: "t@example.com"}, true)
	assert.Nil(t, appErr)

	user, appErr := svc.ResolveTestLogin("tester")
	assert.Nil(t, appErr)
	assert.Equal(t, "tester", user.Username)
}

func TestResolveTestLogin_NotFound(t *testing.T) {
	svc, _ := setupService()

	_, appErr := svc.ResolveTestLogin("nobody")
	assert.NotNil(t, appErr)
	assert.Equal(t, common.KindNotFound, appErr.Kind)
}

func TestResolveTestLogin_NotTestUser(t *testing.T) {
	svc, _ := setupService()

	_, appErr := svc.CreateUser("real", Profile{Name: "r", Email: "r@example.com"}, false)
	assert.Nil(t, appErr)

	_, appErr = svc.ResolveTestLogin("real")
	assert.NotNil(t, appErr)
	assert.Equal(t, common.KindForbidden, appErr.Kind)
}

func TestResolveEmailLogin_Unclaimed(t *testing.T) {
	svc, db := setupService()

	address := models.EmailAddress{Email: "free@example.com"}
	db.Create(&address)

	_, appErr := svc.ResolveEmailLogin(&address)
	assert.NotNil(t, appErr)
	assert.Equal(t, common.KindNotFound, appErr.Kind)
}

func TestSocialLogin_NewAccount(t *testing.T) {
	svc, db := setupService()

	user, appErr := svc.SocialLogin(Identity{
		Provider:     "google",
		AccountID:    "sub-123",
		Email:        "newbie@example.com",
		Name:         "Newbie",
		ProfileImage: "https://example.com/pic.png",
	})

	assert.Nil(t, appErr)
	assert.Equal(t, "newbie", user.Username)

	var social models.UserSocial
	assert.NoError(t, db.First(&social, "provider = ? AND provider_account_id = ?", "google", "sub-123").Error)
	assert.Equal(t, user.ID, social.UserID)
}

func TestSocialLogin_BridgesEmailSignup(t *testing.T) {
	svc, _ := setupService()

	existing, appErr := svc.CreateUser("existing", Profile{Name: "e", Email: "e@example.com"}, false)
	assert.Nil(t, appErr)

	user, appErr := svc.SocialLogin(Identity{
		Provider:  "google",
		AccountID: "sub-456",
		Email:     "e@example.com",
		Name:      "E",
	})

	assert.Nil(t, appErr)
	assert.Equal(t, existing.ID, user.ID)
}

func TestSocialLogin_Repeat(t *testing.T) {
	svc, db := setupService()

	identity := Identity{Provider: "facebook", AccountID: "fb-1", Email: "fb@example.com", Name: "FB"}
	first, appErr := svc.SocialLogin(identity)
	assert.Nil(t, appErr)

	second, appErr := svc.SocialLogin(identity)
	assert.Nil(t, appErr)
	assert.Equal(t, first.ID, second.ID)

	var count int64
	db.Model(&models.UserSocial{}).Count(&count)
	assert.Equal(t, int64(1), count)
}

func TestIssueAuthToken_Stable(t *testing.T) {
	svc, _ := setupService()

	user, appErr := svc.CreateUser("keyed", Profile{Name: "k", Email: "k@example.com"}, true)
	assert.Nil(t, appErr)

	first, appErr := svc.IssueAuthToken(user)
	assert.Nil(t, appErr)
	assert.NotEmpty(t, first.Key)

	second, appErr := svc.IssueAuthToken(user)
	assert.Nil(t, appErr)
	assert.Equal(t, first.Key, second.Key)
}
