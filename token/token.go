package token

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/wafflestudio18-5/team2-server/common"
	"github.com/wafflestudio18-5/team2-server/logger"
	"github.com/wafflestudio18-5/team2-server/models"
)

const (
	// TokenLength is the fixed size of an access token: 12 lowercase hex
	// characters, 48 bits of entropy.
	TokenLength = 12

	// emailTokenLifetime starts counting when the email is actually sent.
	emailTokenLifetime = 2 * time.Hour

	// reissueLifetime bridges the signup steps after a CHECK redeem
	// without sending another email.
	reissueLifetime = 10 * time.Minute

	// Uniqueness collisions are near impossible at 48 bits, but the
	// constraint is enforced, so creation retries a few times.
	createAttempts = 3
)

// Deliverer sends an access token out of band. Implemented by the email
// package; tests substitute a fake.
type Deliverer interface {
	SendToken(email string, signup bool, token string) (sent bool, sentAt *time.Time)
}

// Store issues, delivers, and redeems single-use email access tokens.
type Store struct {
	db        *gorm.DB
	deliverer Deliverer
	log       *logger.Logger
}

func NewStore(db *gorm.DB, deliverer Deliverer, log *logger.Logger) *Store {
	return &Store{db: db, deliverer: deliverer, log: log.With("service", "TokenStore")}
}

func generateToken() string {
	buf := make([]byte, TokenLength/2)
	if _, err := rand.Read(buf); err != nil {
		panic(err)
	}
	return hex.EncodeToString(buf)
}

// Issue creates a fresh undelivered token for the address, creating the
// EmailAddress row the first time the email is seen.
func (s *Store) Issue(email string) (*models.EmailAuth, *common.Err) {
	address := models.EmailAddress{Email: email}
	if err := s.db.FirstOrCreate(&address, models.EmailAddress{Email: email}).Error; err != nil {
		return nil, common.ServiceUnavailable("could not issue token")
	}

	for i := 0; i < createAttempts; i++ {
		auth := models.EmailAuth{
			EmailAddressID: address.Email,
			Token:          generateToken(),
			Valid:          true,
		}
		err := s.db.Create(&auth).Error
		if err == nil {
			auth.EmailAddress = &address
			return &auth, nil
		}
		if !isUniqueViolation(err) {
			return nil, common.ServiceUnavailable("could not issue token")
		}
	}
	return nil, common.ServiceUnavailable("could not issue token")
}

// Deliver hands the token to the delivery collaborator. Only a successful
// send makes the token usable for login: it becomes an email token and the
// expiry clock starts. A failed send leaves the row behind, unusable.
func (s *Store) Deliver(auth *models.EmailAuth, signup bool) *common.Err {
	sent, _ := s.deliverer.SendToken(auth.EmailAddressID, signup, auth.Token)
	if !sent {
		s.log.Warn("token delivery failed", "email", auth.EmailAddressID)
		return common.ServiceUnavailable("Failed to send email. Please try again later.")
	}

	expiresAt := time.Now().Add(emailTokenLifetime)
	auth.IsEmailToken = true
	auth.ExpiresAt = &expiresAt
	if err := s.db.Model(auth).Updates(map[string]interface{}{
		"is_email_token": true,
		"expires_at":     expiresAt,
	}).Error; err != nil {
		return common.ServiceUnavailable("could not deliver token")
	}
	return nil
}

// Redeem consumes a token. Tokens are strictly single use: every outcome
// except "never existed" burns the row, so a replayed token always fails.
func (s *Store) Redeem(tokenStr string, mustBeEmail bool) (*models.EmailAddress, *common.Err) {
	tokenStr = strings.ToLower(strings.TrimSpace(tokenStr))
	if len(tokenStr) != TokenLength {
		return nil, common.BadRequest("access_token must be %d characters", TokenLength)
	}

	var auth models.EmailAuth
	err := s.db.Preload("EmailAddress").Where("token = ?", tokenStr).First(&auth).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, common.NotFound("Not found.")
	} else if err != nil {
		return nil, common.ServiceUnavailable("could not redeem token")
	}

	if !auth.Valid {
		return nil, common.Unauthorized("This token is invalid.")
	}
	if mustBeEmail && !auth.IsEmailToken {
		s.invalidate(&auth)
		return nil, common.Unauthorized("This token is invalid.")
	}
	if auth.Expired() {
		s.invalidate(&auth)
		return nil, common.Unauthorized("This token has expired.")
	}

	s.invalidate(&auth)
	return auth.EmailAddress, nil
}

// Reissue creates a short-lived second-stage token for an address whose
// control was just proven by a CHECK redeem. It is never emailed, so it is
// redeemable only with mustBeEmail=false.
func (s *Store) Reissue(email string) (*models.EmailAuth, *common.Err) {
	expiresAt := time.Now().Add(reissueLifetime)
	for i := 0; i < createAttempts; i++ {
		auth := models.EmailAuth{
			EmailAddressID: email,
			Token:          generateToken(),
			Valid:          true,
			ExpiresAt:      &expiresAt,
		}
		err := s.db.Create(&auth).Error
		if err == nil {
			return &auth, nil
		}
		if !isUniqueViolation(err) {
			return nil, common.ServiceUnavailable("could not issue token")
		}
	}
	return nil, common.ServiceUnavailable("could not issue token")
}

func (s *Store) invalidate(auth *models.EmailAuth) {
	auth.Valid = false
	if err := s.db.Model(auth).Update("valid", false).Error; err != nil {
		s.log.Error("token invalidation failed", "token_id", auth.ID, "err", err)
	}
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(strings.ToLower(err.Error()), "unique")
}
