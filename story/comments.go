package story

import (
	"errors"

	"gorm.io/gorm"

	"github.com/wafflestudio18-5/team2-server/common"
	"github.com/wafflestudio18-5/team2-server/models"
)

// loadPublished fetches a story for comment operations. Drafts behave as
// if they do not exist, including for the owner's existing comments.
func (s *Service) loadPublished(id string) (*models.Story, *common.Err) {
	story, appErr := s.load(id)
	if appErr != nil {
		return nil, appErr
	}
	if !story.Published {
		return nil, common.NotFound("Not found.")
	}
	return story, nil
}

// PostComment adds a comment to a published story. Any authenticated user
// may comment, the owner included.
func (s *Service) PostComment(storyID string, author *models.User, body string) (*models.StoryComment, *common.Err) {
	story, appErr := s.loadPublished(storyID)
	if appErr != nil {
		return nil, appErr
	}
	if body == "" {
		return nil, common.BadRequest("body may not be blank")
	}

	comment := models.StoryComment{
		StoryID:  story.ID,
		WriterID: author.ID,
		Writer:   author,
		Body:     body,
	}
	if err := s.db.Create(&comment).Error; err != nil {
		return nil, common.ServiceUnavailable("could not post comment")
	}
	return &comment, nil
}

func (s *Service) loadComment(storyID, commentID string) (*models.StoryComment, *common.Err) {
	story, appErr := s.loadPublished(storyID)
	if appErr != nil {
		return nil, appErr
	}

	var comment models.StoryComment
	err := s.db.Preload("Writer").
		Where("id = ? AND story_id = ?", commentID, story.ID).
		First(&comment).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, common.NotFound("Not found.")
	} else if err != nil {
		return nil, common.ServiceUnavailable("could not load comment")
	}
	return &comment, nil
}

// EditComment replaces the body; author-only. A nil newBody leaves the
// comment unchanged.
func (s *Service) EditComment(storyID, commentID string, actor *models.User, newBody *string) (*models.StoryComment, *common.Err) {
	comment, appErr := s.loadComment(storyID, commentID)
	if appErr != nil {
		return nil, appErr
	}
	if comment.WriterID != actor.ID {
		return nil, common.Forbidden("You do not have permission to perform this action.")
	}
	if newBody == nil {
		return comment, nil
	}
	if *newBody == "" {
		return nil, common.BadRequest("body may not be blank")
	}

	comment.Body = *newBody
	if err := s.db.Save(comment).Error; err != nil {
		return nil, common.ServiceUnavailable("could not edit comment")
	}
	return comment, nil
}

func (s *Service) DeleteComment(storyID, commentID string, actor *models.User) *common.Err {
	comment, appErr := s.loadComment(storyID, commentID)
	if appErr != nil {
		return appErr
	}
	if comment.WriterID != actor.ID {
		return common.Forbidden("You do not have permission to perform this action.")
	}
	if err := s.db.Delete(comment).Error; err != nil {
		return common.ServiceUnavailable("could not delete comment")
	}
	return nil
}

// CountComments counts a published story's comments, applying the same
// existence-hiding rule as the listing itself.
func (s *Service) CountComments(storyID string) (int64, *common.Err) {
	story, appErr := s.loadPublished(storyID)
	if appErr != nil {
		return 0, appErr
	}

	var count int64
	if err := s.db.Model(&models.StoryComment{}).
		Where("story_id = ?", story.ID).
		Count(&count).Error; err != nil {
		return 0, common.ServiceUnavailable("could not list comments")
	}
	return count, nil
}

// ListComments pages through a published story's comments, oldest first.
func (s *Service) ListComments(storyID string, offset, limit int) ([]models.StoryComment, *common.Err) {
	story, appErr := s.loadPublished(storyID)
	if appErr != nil {
		return nil, appErr
	}

	var comments []models.StoryComment
	if err := s.db.Where("story_id = ?", story.ID).Preload("Writer").
		Order("created_at ASC, id ASC").
		Offset(offset).Limit(limit).
		Find(&comments).Error; err != nil {
		return nil, common.ServiceUnavailable("could not list comments")
	}
	return comments, nil
}
