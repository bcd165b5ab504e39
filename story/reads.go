package story

import (
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/wafflestudio18-5/team2-server/models"
)

// readThrottle keeps a refresh burst from inflating the count: the same
// reader is counted again only after this window.
const readThrottle = 30 * time.Minute

// TrackRead records that user opened the story. Owners reading their own
// work are not counted. Failures are logged and swallowed; read tracking
// never breaks a retrieve.
func (s *Service) TrackRead(story *models.Story, user *models.User) {
	if user == nil || user.ID == story.WriterID {
		return
	}

	var read models.StoryRead
	err := s.db.Where("story_id = ? AND user_id = ?", story.ID, user.ID).First(&read).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		read = models.StoryRead{
			StoryID: story.ID,
			UserID:  user.ID,
			Count:   1,
			ReadAt:  time.Now(),
		}
		if err := s.db.Create(&read).Error; err != nil {
			s.log.Warn("read tracking failed", "story", story.ID, "err", err)
		}
		return
	} else if err != nil {
		s.log.Warn("read tracking failed", "story", story.ID, "err", err)
		return
	}

	if time.Since(read.ReadAt) < readThrottle {
		return
	}
	read.Count++
	read.ReadAt = time.Now()
	if err := s.db.Save(&read).Error; err != nil {
		s.log.Warn("read tracking failed", "story", story.ID, "err", err)
	}
}
