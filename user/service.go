package user

import (
	"errors"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/wafflestudio18-5/team2-server/common"
	"github.com/wafflestudio18-5/team2-server/logger"
	"github.com/wafflestudio18-5/team2-server/models"
)

// Profile carries the fields needed to create an account alongside the
// username.
type Profile struct {
	Name         string
	Email        string
	ProfileImage string
}

// Identity is a verified external-identity assertion. Producing one (the
// OAuth handshake) is the verifier collaborator's job, not ours.
type Identity struct {
	Provider     string
	AccountID    string
	Email        string
	Name         string
	ProfileImage string
}

// Verifier turns an opaque provider credential into a verified Identity.
type Verifier interface {
	Verify(provider, credential string) (*Identity, error)
}

type Service struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewService(db *gorm.DB, log *logger.Logger) *Service {
	return &Service{db: db, log: log.With("service", "UserService")}
}

// CreateUser creates the user, claims the email as primary, and stores the
// profile in one transaction. The EmailAddress row is locked while
// claiming, so two concurrent signups for the same email cannot both
// commit.
func (s *Service) CreateUser(username string, profile Profile, isTest bool) (*models.User, *common.Err) {
	user := models.User{
		Username:     username,
		IsTest:       isTest,
		Name:         profile.Name,
		Bio:          "",
		ProfileImage: profile.ProfileImage,
	}

	txErr := s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&user).Error; err != nil {
			if isUniqueViolation(err) {
				return common.Conflict("A user with that username already exists.")
			}
			return err
		}

		var address models.EmailAddress
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("email = ?", profile.Email).
			First(&address).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			address = models.EmailAddress{Email: profile.Email, UserID: &user.ID, Primary: true}
			if err := tx.Create(&address).Error; err != nil {
				if isUniqueViolation(err) {
					return common.Conflict("A user with that email already exists.")
				}
				return err
			}
			return nil
		} else if err != nil {
			return err
		}

		if !address.Available() {
			return common.Conflict("A user with that email already exists.")
		}
		address.UserID = &user.ID
		address.Primary = true
		return tx.Save(&address).Error
	})

	if txErr != nil {
		var appErr *common.Err
		if errors.As(txErr, &appErr) {
			return nil, appErr
		}
		s.log.Error("create user failed", "username", username, "err", txErr)
		return nil, common.ServiceUnavailable("could not create user")
	}
	return &user, nil
}

// UniqueUsername derives a username from the email's local part and, when
// taken, appends the smallest non-negative integer suffix not already in
// use. Matching is exact, not case-folded.
func (s *Service) UniqueUsername(email string) string {
	base := email
	if at := strings.Index(email, "@"); at >= 0 {
		base = email[:at]
	}
	if base == "" {
		base = "user"
	}

	var usernames []string
	s.db.Model(&models.User{}).
		Where("username LIKE ?", base+"%").
		Pluck("username", &usernames)

	taken := make(map[string]bool, len(usernames))
	for _, name := range usernames {
		taken[name] = true
	}

	if !taken[base] {
		return base
	}
	for n := 0; ; n++ {
		candidate := base + strconv.Itoa(n)
		if !taken[candidate] {
			return candidate
		}
	}
}

// ResolveTestLogin authenticates a disposable test account by username
// alone.
func (s *Service) ResolveTestLogin(username string) (*models.User, *common.Err) {
	var user models.User
	err := s.db.Where("username = ?", username).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, common.NotFound("A user with that username does not exist.")
	} else if err != nil {
		return nil, common.ServiceUnavailable("could not look up user")
	}
	if !user.IsTest {
		return nil, common.Forbidden("A user with that username is not a test user.")
	}
	return &user, nil
}

// ResolveEmailLogin maps a redeemed email address to its owning account.
func (s *Service) ResolveEmailLogin(address *models.EmailAddress) (*models.User, *common.Err) {
	if address == nil || address.Available() {
		return nil, common.NotFound("A user with that email does not exist.")
	}
	var user models.User
	if err := s.db.First(&user, *address.UserID).Error; err != nil {
		return nil, common.NotFound("A user with that email does not exist.")
	}
	return &user, nil
}

// SocialLogin resolves a verified external identity to an account. An
// already-claimed email logs into the existing account, which bridges an
// email signup to a later social login for the same address; otherwise a
// fresh account is created with a derived username.
func (s *Service) SocialLogin(identity Identity) (*models.User, *common.Err) {
	var social models.UserSocial
	err := s.db.Where("provider = ? AND provider_account_id = ?",
		identity.Provider, identity.AccountID).First(&social).Error
	if err == nil {
		var user models.User
		if err := s.db.First(&user, social.UserID).Error; err != nil {
			return nil, common.ServiceUnavailable("could not look up user")
		}
		return &user, nil
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, common.ServiceUnavailable("could not look up identity")
	}

	var user *models.User
	var address models.EmailAddress
	err = s.db.Where("email = ?", identity.Email).First(&address).Error
	if err == nil && !address.Available() {
		var owner models.User
		if err := s.db.First(&owner, *address.UserID).Error; err != nil {
			return nil, common.ServiceUnavailable("could not look up user")
		}
		user = &owner
	} else if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, common.ServiceUnavailable("could not look up email")
	}

	if user == nil {
		profile := Profile{
			Name:         identity.Name,
			Email:        identity.Email,
			ProfileImage: identity.ProfileImage,
		}
		created, appErr := s.CreateUser(s.UniqueUsername(identity.Email), profile, false)
		if appErr != nil {
			return nil, appErr
		}
		user = created
	}

	link := models.UserSocial{
		UserID:            user.ID,
		Provider:          identity.Provider,
		ProviderAccountID: identity.AccountID,
		Email:             identity.Email,
	}
	if err := s.db.Create(&link).Error; err != nil {
		return nil, common.ServiceUnavailable("could not link identity")
	}
	return user, nil
}

// IssueAuthToken returns the user's API token, creating one on first use.
func (s *Service) IssueAuthToken(user *models.User) (*models.AuthToken, *common.Err) {
	var authToken models.AuthToken
	err := s.db.Where("user_id = ?", user.ID).First(&authToken).Error
	if err == nil {
		return &authToken, nil
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, common.ServiceUnavailable("could not issue auth token")
	}

	authToken = models.AuthToken{
		Key:    strings.ReplaceAll(uuid.NewString(), "-", ""),
		UserID: user.ID,
	}
	if err := s.db.Create(&authToken).Error; err != nil {
		return nil, common.ServiceUnavailable("could not issue auth token")
	}
	return &authToken, nil
}

// PrimaryEmail returns the user's login email, if one is claimed.
func (s *Service) PrimaryEmail(user *models.User) string {
	var address models.EmailAddress
	err := s.db.Where("user_id = ? AND `primary` = ?", user.ID, true).First(&address).Error
	if err != nil {
		return ""
	}
	return address.Email
}

// Connections returns provider -> account id for the user's linked
// external identities.
func (s *Service) Connections(user *models.User) map[string]string {
	var socials []models.UserSocial
	s.db.Where("user_id = ?", user.ID).Find(&socials)

	out := make(map[string]string, len(socials))
	for _, social := range socials {
		out[social.Provider] = social.ProviderAccountID
	}
	return out
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(strings.ToLower(err.Error()), "unique")
}
