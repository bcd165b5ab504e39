package story

import (
	"gorm.io/gorm"

	"github.com/wafflestudio18-5/team2-server/common"
	"github.com/wafflestudio18-5/team2-server/models"
)

const listPageSize = 10

// Listing predicates are explicit and composed the same way everywhere;
// no handler builds its own visibility filter.

func published(db *gorm.DB) *gorm.DB {
	return db.Where("published = ?", true)
}

// uncurated keeps the default list free of editorially placed stories.
func uncurated(db *gorm.DB) *gorm.DB {
	return db.Where("main_order IS NULL AND trending_order IS NULL")
}

func titled(title string) func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		if title == "" {
			return db
		}
		return db.Where("title LIKE ?", "%"+title+"%")
	}
}

// CountDefault counts the stories the default listing would return.
func (s *Service) CountDefault(title string) (int64, *common.Err) {
	var count int64
	err := s.db.Model(&models.Story{}).
		Scopes(published, uncurated, titled(title)).
		Count(&count).Error
	if err != nil {
		return 0, common.ServiceUnavailable("could not list stories")
	}
	return count, nil
}

// ListDefault returns one page of the published, uncurated stories,
// newest first, optionally filtered by title substring.
func (s *Service) ListDefault(title string, offset, limit int) ([]models.Story, *common.Err) {
	var stories []models.Story
	err := s.db.Preload("Writer").
		Scopes(published, uncurated, titled(title)).
		Order("published_at DESC").
		Offset(offset).Limit(limit).
		Find(&stories).Error
	if err != nil {
		return nil, common.ServiceUnavailable("could not list stories")
	}
	return stories, nil
}

// ListMain returns the stories occupying the five curated main slots.
func (s *Service) ListMain() ([]models.Story, *common.Err) {
	var stories []models.Story
	err := s.db.Preload("Writer").
		Scopes(published).
		Where("main_order BETWEEN 1 AND 5").
		Order("main_order ASC").
		Find(&stories).Error
	if err != nil {
		return nil, common.ServiceUnavailable("could not list stories")
	}
	return stories, nil
}

// ListTrending returns the stories occupying the six trending slots.
func (s *Service) ListTrending() ([]models.Story, *common.Err) {
	var stories []models.Story
	err := s.db.Preload("Writer").
		Scopes(published).
		Where("trending_order BETWEEN 1 AND 6").
		Order("trending_order ASC").
		Find(&stories).Error
	if err != nil {
		return nil, common.ServiceUnavailable("could not list stories")
	}
	return stories, nil
}
