package story

import (
	"encoding/json"
	"errors"
	"net/url"
	"time"

	"gorm.io/gorm"

	"github.com/wafflestudio18-5/team2-server/common"
	"github.com/wafflestudio18-5/team2-server/logger"
	"github.com/wafflestudio18-5/team2-server/models"
)

// Service owns the story lifecycle: draft on create, publish/unpublish as
// a single owner-only toggle, owner-only mutation, existence-hiding reads.
type Service struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewService(db *gorm.DB, log *logger.Logger) *Service {
	return &Service{db: db, log: log.With("service", "StoryService")}
}

// Input carries partial story fields. Nil pointers mean "unchanged" on
// update; on create they fall back to empty values.
type Input struct {
	Title         *string         `json:"title"`
	Subtitle      *string         `json:"subtitle"`
	Body          json.RawMessage `json:"body"`
	FeaturedImage *string         `json:"featured_image"`
}

// validateInput rejects a malformed featured-image URL before anything is
// persisted, so a bad update never half-applies.
func validateInput(input *Input) *common.Err {
	if input.FeaturedImage != nil && *input.FeaturedImage != "" {
		parsed, err := url.ParseRequestURI(*input.FeaturedImage)
		if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") {
			return common.BadRequest("featured_image must be a valid URL")
		}
	}
	return nil
}

func coerceTitle(title string) string {
	if title == "" {
		return models.DefaultTitle
	}
	return title
}

// Create starts a new draft owned by writer.
func (s *Service) Create(writer *models.User, input Input) (*models.Story, *common.Err) {
	if appErr := validateInput(&input); appErr != nil {
		return nil, appErr
	}

	story := models.Story{
		WriterID: writer.ID,
		Writer:   writer,
		Title:    models.DefaultTitle,
		Body:     []byte("[]"),
	}
	if input.Title != nil {
		story.Title = coerceTitle(*input.Title)
	}
	if input.Subtitle != nil {
		story.Subtitle = *input.Subtitle
	}
	if len(input.Body) > 0 {
		story.Body = []byte(input.Body)
	}
	if input.FeaturedImage != nil {
		story.FeaturedImage = *input.FeaturedImage
	}

	if err := s.db.Create(&story).Error; err != nil {
		s.log.Error("story create failed", "writer", writer.ID, "err", err)
		return nil, common.ServiceUnavailable("could not create story")
	}
	return &story, nil
}

// load fetches a story with its writer, reporting a plain 404 when absent.
func (s *Service) load(id string) (*models.Story, *common.Err) {
	var story models.Story
	err := s.db.Preload("Writer").First(&story, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, common.NotFound("Not found.")
	} else if err != nil {
		return nil, common.ServiceUnavailable("could not load story")
	}
	return &story, nil
}

// guardMutation loads a story for an owner-only operation. A draft is
// reported as missing to everyone but its owner, so non-owners cannot
// probe for its existence; a published story yields Forbidden instead.
func (s *Service) guardMutation(id string, actor *models.User) (*models.Story, *common.Err) {
	story, appErr := s.load(id)
	if appErr != nil {
		return nil, appErr
	}
	if story.WriterID != actor.ID {
		if !story.Published {
			return nil, common.NotFound("Not found.")
		}
		return nil, common.Forbidden("You do not have permission to perform this action.")
	}
	return story, nil
}

// Retrieve returns the story when it is published or the actor owns it.
// Anyone else gets the same 404 a missing story would produce.
func (s *Service) Retrieve(id string, actor *models.User) (*models.Story, *common.Err) {
	story, appErr := s.load(id)
	if appErr != nil {
		return nil, appErr
	}
	if !story.Published && (actor == nil || story.WriterID != actor.ID) {
		return nil, common.NotFound("Not found.")
	}
	return story, nil
}

// Update applies the non-nil fields. Validation runs before any field is
// touched; the blank-title coercion applies on every update of the title.
func (s *Service) Update(id string, actor *models.User, input Input) (*models.Story, *common.Err) {
	story, appErr := s.guardMutation(id, actor)
	if appErr != nil {
		return nil, appErr
	}
	if appErr := validateInput(&input); appErr != nil {
		return nil, appErr
	}

	if input.Title != nil {
		story.Title = coerceTitle(*input.Title)
	}
	if input.Subtitle != nil {
		story.Subtitle = *input.Subtitle
	}
	if len(input.Body) > 0 {
		story.Body = []byte(input.Body)
	}
	if input.FeaturedImage != nil {
		story.FeaturedImage = *input.FeaturedImage
	}

	if err := s.db.Save(story).Error; err != nil {
		return nil, common.ServiceUnavailable("could not update story")
	}
	return story, nil
}

// TogglePublish flips the story between Draft and Published. Publishing
// stamps published_at; unpublishing clears it. Applying the toggle twice
// restores the original state.
func (s *Service) TogglePublish(id string, actor *models.User) (*models.Story, *common.Err) {
	story, appErr := s.guardMutation(id, actor)
	if appErr != nil {
		return nil, appErr
	}

	if story.Published {
		story.Published = false
		story.PublishedAt = nil
	} else {
		now := time.Now()
		story.Published = true
		story.PublishedAt = &now
	}

	if err := s.db.Select("published", "published_at", "updated_at").Save(story).Error; err != nil {
		return nil, common.ServiceUnavailable("could not publish story")
	}
	return story, nil
}

// Delete removes the story and everything it owns: comments, tag
// attachments, and read records go with it.
func (s *Service) Delete(id string, actor *models.User) *common.Err {
	story, appErr := s.guardMutation(id, actor)
	if appErr != nil {
		return appErr
	}

	txErr := s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("story_id = ?", story.ID).Delete(&models.StoryComment{}).Error; err != nil {
			return err
		}
		if err := tx.Where("story_id = ?", story.ID).Delete(&models.StoryTag{}).Error; err != nil {
			return err
		}
		if err := tx.Where("story_id = ?", story.ID).Delete(&models.StoryRead{}).Error; err != nil {
			return err
		}
		return tx.Delete(story).Error
	})
	if txErr != nil {
		s.log.Error("story delete failed", "story", story.ID, "err", txErr)
		return common.ServiceUnavailable("could not delete story")
	}
	return nil
}
