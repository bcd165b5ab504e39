package story

import (
	"errors"

	"gorm.io/gorm"

	"github.com/wafflestudio18-5/team2-server/common"
	"github.com/wafflestudio18-5/team2-server/models"
)

// AddTag attaches a tag to the actor's story. Tag rows are global and
// deduplicated by name; the attachment is unique per (story, tag) pair.
func (s *Service) AddTag(storyID string, actor *models.User, name string) (*models.StoryTag, *common.Err) {
	story, appErr := s.guardMutation(storyID, actor)
	if appErr != nil {
		return nil, appErr
	}
	if name == "" {
		return nil, common.BadRequest("name may not be blank")
	}

	var tag models.Tag
	if err := s.db.FirstOrCreate(&tag, models.Tag{Name: name}).Error; err != nil {
		return nil, common.ServiceUnavailable("could not create tag")
	}

	var existing models.StoryTag
	err := s.db.Where("story_id = ? AND tag_id = ?", story.ID, tag.ID).First(&existing).Error
	if err == nil {
		return nil, common.BadRequest("This tag is already attached to the story.")
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, common.ServiceUnavailable("could not attach tag")
	}

	storyTag := models.StoryTag{StoryID: story.ID, TagID: tag.ID, Tag: &tag}
	if err := s.db.Create(&storyTag).Error; err != nil {
		// Unique pair constraint closes the check-then-create window.
		return nil, common.BadRequest("This tag is already attached to the story.")
	}
	return &storyTag, nil
}

func (s *Service) RemoveTag(storyID string, actor *models.User, name string) *common.Err {
	story, appErr := s.guardMutation(storyID, actor)
	if appErr != nil {
		return appErr
	}
	if name == "" {
		return common.BadRequest("name may not be blank")
	}

	var tag models.Tag
	err := s.db.Where("name = ?", name).First(&tag).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return common.BadRequest("This tag is not attached to the story.")
	} else if err != nil {
		return common.ServiceUnavailable("could not look up tag")
	}

	result := s.db.Where("story_id = ? AND tag_id = ?", story.ID, tag.ID).Delete(&models.StoryTag{})
	if result.Error != nil {
		return common.ServiceUnavailable("could not detach tag")
	}
	if result.RowsAffected == 0 {
		return common.BadRequest("This tag is not attached to the story.")
	}
	return nil
}

// ListTags returns a published story's tag names in attachment order.
func (s *Service) ListTags(storyID string) (*models.Story, []string, *common.Err) {
	story, appErr := s.loadPublished(storyID)
	if appErr != nil {
		return nil, nil, appErr
	}

	var storyTags []models.StoryTag
	if err := s.db.Preload("Tag").
		Where("story_id = ?", story.ID).
		Order("created_at ASC, id ASC").
		Find(&storyTags).Error; err != nil {
		return nil, nil, common.ServiceUnavailable("could not list tags")
	}

	names := make([]string, 0, len(storyTags))
	for _, storyTag := range storyTags {
		if storyTag.Tag != nil {
			names = append(names, storyTag.Tag.Name)
		}
	}
	return story, names, nil
}
