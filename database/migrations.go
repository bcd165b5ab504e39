package database

import (
	"gorm.io/gorm"

	"github.com/wafflestudio18-5/team2-server/models"
)

func RunMigrations(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.User{},
		&models.EmailAddress{},
		&models.EmailAuth{},
		&models.UserSocial{},
		&models.AuthToken{},
		&models.Story{},
		&models.StoryComment{},
		&models.Tag{},
		&models.StoryTag{},
		&models.StoryRead{},
	)
}
