package models

import (
	"errors"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// DefaultTitle replaces a blank story title on create and update.
const DefaultTitle = "Untitled"

type User struct {
	ID           uint      `gorm:"primary_key;autoIncrement" json:"id"`
	Username     string    `gorm:"unique;not null;index" json:"username"`
	IsTest       bool      `gorm:"default:false" json:"-"` // test accounts may log in without a credential
	Name         string    `gorm:"not null" json:"name"`
	Bio          string    `json:"bio"`
	ProfileImage string    `json:"profile_image"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// EmailAddress is a durable identity anchor. It is shared between User and
// EmailAuth but owned by neither; UserID stays nil until the address is
// claimed by a signup.
type EmailAddress struct {
	Email   string `gorm:"primary_key" json:"email"`
	UserID  *uint  `gorm:"index:idx_email_user_primary" json:"user_id,omitempty"`
	Primary bool   `gorm:"default:false;index:idx_email_user_primary" json:"primary"`
}

// Available reports whether the address can still be claimed.
func (e *EmailAddress) Available() bool {
	return e.UserID == nil
}

// EmailAuth is a single-use passwordless access token tied to an email
// address. ExpiresAt is only set once a delivery attempt succeeds.
// IsEmailToken distinguishes tokens the user received by email (usable for
// login and the signup CHECK step) from tokens handed back over the API
// (usable only to finalize account creation).
type EmailAuth struct {
	ID             uint          `gorm:"primary_key;autoIncrement" json:"id"`
	EmailAddressID string        `gorm:"not null;index" json:"-"`
	EmailAddress   *EmailAddress `gorm:"foreignKey:EmailAddressID;references:Email" json:"-"`
	Token          string        `gorm:"size:12;unique;not null" json:"-"`
	ExpiresAt      *time.Time    `json:"-"`
	Valid          bool          `gorm:"default:true" json:"-"`
	IsEmailToken   bool          `gorm:"default:false" json:"-"`
}

// Expired reports whether the token's lifetime has passed. A token without
// an expiry (never delivered, never reissued) is not expired.
func (a *EmailAuth) Expired() bool {
	return a.ExpiresAt != nil && !a.ExpiresAt.After(time.Now())
}

// UserSocial links a user to an external identity provider account,
// keyed by (provider, provider_account_id).
type UserSocial struct {
	ID                uint   `gorm:"primary_key;autoIncrement" json:"id"`
	UserID            uint   `gorm:"not null;index" json:"user_id"`
	Provider          string `gorm:"not null;uniqueIndex:idx_provider_account" json:"provider"`
	ProviderAccountID string `gorm:"not null;uniqueIndex:idx_provider_account" json:"provider_account_id"`
	Email             string `gorm:"not null" json:"email"`
}

// AuthToken is the API bearer credential returned by signup and login.
type AuthToken struct {
	Key    string `gorm:"primary_key" json:"key"`
	UserID uint   `gorm:"not null;uniqueIndex" json:"user_id"`
}

type Story struct {
	ID            uint           `gorm:"primary_key;autoIncrement" json:"id"`
	WriterID      uint           `gorm:"not null;index" json:"-"`
	Writer        *User          `gorm:"foreignKey:WriterID" json:"-"`
	Title         string         `gorm:"size:100;not null;index" json:"title"`
	Subtitle      string         `gorm:"size:140" json:"subtitle"`
	Body          datatypes.JSON `json:"body"`
	FeaturedImage string         `json:"featured_image"`
	Published     bool           `gorm:"default:false;index" json:"published"`
	PublishedAt   *time.Time     `json:"published_at"`
	MainOrder     *int           `gorm:"index" json:"main_order,omitempty"`
	TrendingOrder *int           `gorm:"index" json:"trending_order,omitempty"`
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
}

var ErrOrderOutOfRange = errors.New("curated order out of range")

// BeforeSave keeps curated placement inside its fixed slot ranges
// (main 1..5, trending 1..6) no matter which surface writes it.
func (s *Story) BeforeSave(tx *gorm.DB) error {
	if s.MainOrder != nil && (*s.MainOrder < 1 || *s.MainOrder > 5) {
		return ErrOrderOutOfRange
	}
	if s.TrendingOrder != nil && (*s.TrendingOrder < 1 || *s.TrendingOrder > 6) {
		return ErrOrderOutOfRange
	}
	return nil
}

type StoryComment struct {
	ID        uint      `gorm:"primary_key;autoIncrement" json:"id"`
	StoryID   uint      `gorm:"not null;index" json:"story_id"`
	WriterID  uint      `gorm:"not null;index" json:"-"`
	Writer    *User     `gorm:"foreignKey:WriterID" json:"-"`
	Body      string    `gorm:"type:text;not null" json:"body"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type Tag struct {
	ID        uint      `gorm:"primary_key;autoIncrement" json:"id"`
	Name      string    `gorm:"size:100;unique;not null" json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

type StoryTag struct {
	ID        uint      `gorm:"primary_key;autoIncrement" json:"id"`
	StoryID   uint      `gorm:"not null;uniqueIndex:idx_story_tag" json:"story_id"`
	TagID     uint      `gorm:"not null;uniqueIndex:idx_story_tag" json:"tag_id"`
	Tag       *Tag      `gorm:"foreignKey:TagID" json:"-"`
	CreatedAt time.Time `json:"created_at"`
}

// StoryRead records that a user opened a published story, throttled so a
// refresh burst counts once per window.
type StoryRead struct {
	ID      uint      `gorm:"primary_key;autoIncrement" json:"id"`
	StoryID uint      `gorm:"not null;uniqueIndex:idx_story_read" json:"story_id"`
	UserID  uint      `gorm:"not null;uniqueIndex:idx_story_read" json:"user_id"`
	Count   int       `gorm:"not null;default:0" json:"count"`
	ReadAt  time.Time `json:"read_at"`
}
