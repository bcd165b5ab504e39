package story

import (
	"encoding/json"
	"fmt"
	"testing"
	"time"

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
		&models.AuthToken{},
		&models.Story{},
		&models.StoryComment{},
		&models.Tag{},
		&models.StoryTag{},
		&models.StoryRead{},
	)
	return db
}

func setupService(t *testing.T) (*Service, *gorm.DB) {
	db := setupTestDB()
	return NewService(db, logger.NewNop()), db
}

func createUser(db *gorm.DB, username string) *models.User {
	user := models.User{Username: username, Name: username}
	db.Create(&user)
	return &user
}

func storyID(story *models.Story) string {
	return fmt.Sprint(story.ID)
}

func strPtr(s string) *string { return &s }

func publishStory(t *testing.T, svc *Service, story *models.Story, owner *models.User) *models.Story {
	published, appErr := svc.TogglePublish(storyID(story), owner)
	assert.Nil(t, appErr)
	assert.True(t, published.Published)
	return published
}

func TestCreate_Defaults(t *testing.T) {
	svc, _ := setupService(t)
	writer := createUser(svc.db, "writer")

	story, appErr := svc.Create(writer, Input{})

	assert.Nil(t, appErr)
	assert.Equal(t, "Untitled", story.Title)
	assert.JSONEq(t, "[]", string(story.Body))
	assert.False(t, story.Published)
	assert.Nil(t, story.PublishedAt)
}

func TestCreate_BlankTitleCoerced(t *testing.T) {
	svc, _ := setupService(t)
	writer := createUser(svc.db, "writer")

	story, appErr := svc.Create(writer, Input{Title: strPtr("")})

	assert.Nil(t, appErr)
	assert.Equal(t, "Untitled", story.Title)
}

func TestCreate_BadFeaturedImage(t *testing.T) {
	svc, db := setupService(t)
	writer := createUser(db, "writer")

	_, appErr := svc.Create(writer, Input{FeaturedImage: strPtr("not a url")})

	assert.NotNil(t, appErr)
	assert.Equal(t, common.KindBadRequest, appErr.Kind)

	var count int64
	db.Model(&models.Story{}).Count(&count)
	assert.Equal(t, int64(0), count)
}

func TestRetrieve_DraftVisibility(t *testing.T) {
	svc, db := setupService(t)
	owner := createUser(db, "owner")
	other := createUser(db, "other")
	draft, _ := svc.Create(owner, Input{Title: strPtr("Secret")})

	got, appErr := svc.Retrieve(storyID(draft), owner)
	assert.Nil(t, appErr)
	assert.Equal(t, "Secret", got.Title)

	// non-owner and anonymous both see a plain 404
	_, appErr = svc.Retrieve(storyID(draft), other)
	assert.NotNil(t, appErr)
	assert.Equal(t, common.KindNotFound, appErr.Kind)

	_, appErr = svc.Retrieve(storyID(draft), nil)
	assert.NotNil(t, appErr)
	assert.Equal(t, common.KindNotFound, appErr.Kind)
}

func TestRetrieve_PublishedIsPublic(t *testing.T) {
	svc, db := setupService(t)
	owner := createUser(db, "owner")
	story, _ := svc.Create(owner, Input{})
	publishStory(t, svc, story, owner)

	got, appErr := svc.Retrieve(storyID(story), nil)
	assert.Nil(t, appErr)
	assert.True(t, got.Published)
}

func TestUpdate_Partial(t *testing.T) {
	svc, db := setupService(t)
	owner := createUser(db, "owner")
	story, _ := svc.Create(owner, Input{
		Title:    strPtr("Original"),
		Subtitle: strPtr("Sub"),
	})

	updated, appErr := svc.Update(storyID(story), owner, Input{Subtitle: strPtr("New sub")})

	assert.Nil(t, appErr)
	assert.Equal(t, "Original", updated.Title)
	assert.Equal(t, "New sub", updated.Subtitle)
}

func TestUpdate_BlankTitleCoerced(t *testing.T) {
	svc, db := setupService(t)
	owner := createUser(db, "owner")
	story, _ := svc.Create(owner, Input{Title: strPtr("Original")})

	updated, appErr := svc.Update(storyID(story), owner, Input{Title: strPtr("")})

	assert.Nil(t, appErr)
	assert.Equal(t, "Untitled", updated.Title)
}

func TestUpdate_BadFeaturedImageLeavesStoryIntact(t *testing.T) {
	svc, db := setupService(t)
	owner := createUser(db, "owner")
	story, _ := svc.Create(owner, Input{Title: strPtr("Original")})

	_, appErr := svc.Update(storyID(story), owner, Input{
		Title:         strPtr("Changed"),
		FeaturedImage: strPtr("ftp://nope"),
	})
	assert.NotNil(t, appErr)
	assert.Equal(t, common.KindBadRequest, appErr.Kind)

	var stored models.Story
	db.First(&stored, story.ID)
	assert.Equal(t, "Original", stored.Title)
}

func TestUpdate_NonOwner(t *testing.T) {
	svc, db := setupService(t)
	owner := createUser(db, "owner")
	other := createUser(db, "other")
	draft, _ := svc.Create(owner, Input{})

	// a draft hides its existence
	_, appErr := svc.Update(storyID(draft), other, Input{Title: strPtr("x")})
	assert.NotNil(t, appErr)
	assert.Equal(t, common.KindNotFound, appErr.Kind)

	// a published story is visibly off limits
	publishStory(t, svc, draft, owner)
	_, appErr = svc.Update(storyID(draft), other, Input{Title: strPtr("x")})
	assert.NotNil(t, appErr)
	assert.Equal(t, common.KindForbidden, appErr.Kind)
}

func TestTogglePublish_RoundTrip(t *testing.T) {
	svc, db := setupService(t)
	owner := createUser(db, "owner")
	story, _ := svc.Create(owner, Input{})

	published, appErr := svc.TogglePublish(storyID(story), owner)
	assert.Nil(t, appErr)
	assert.True(t, published.Published)
	assert.NotNil(t, published.PublishedAt)
	assert.WithinDuration(t, time.Now(), *published.PublishedAt, time.Minute)

	unpublished, appErr := svc.TogglePublish(storyID(story), owner)
	assert.Nil(t, appErr)
	assert.False(t, unpublished.Published)
	assert.Nil(t, unpublished.PublishedAt)
}

func TestDelete_Cascades(t *testing.T) {
	svc, db := setupService(t)
	owner := createUser(db, "owner")
	commenter := createUser(db, "commenter")
	story, _ := svc.Create(owner, Input{})
	publishStory(t, svc, story, owner)

	_, appErr := svc.PostComment(storyID(story), commenter, "nice one")
	assert.Nil(t, appErr)
	_, appErr = svc.AddTag(storyID(story), owner, "golang")
	assert.Nil(t, appErr)
	db.Create(&models.StoryRead{StoryID: story.ID, UserID: commenter.ID, Count: 1, ReadAt: time.Now()})

	appErr = svc.Delete(storyID(story), owner)
	assert.Nil(t, appErr)

	for _, model := range []interface{}{
		&models.Story{}, &models.StoryComment{}, &models.StoryTag{}, &models.StoryRead{},
	} {
		var count int64
		db.Model(model).Count(&count)
		assert.Equal(t, int64(0), count)
	}

	// the global tag row survives
	var tagCount int64
	db.Model(&models.Tag{}).Count(&tagCount)
	assert.Equal(t, int64(1), tagCount)
}

func TestPostComment_DraftHidden(t *testing.T) {
	svc, db := setupService(t)
	owner := createUser(db, "owner")
	draft, _ := svc.Create(owner, Input{})

	// even the owner cannot comment on a draft
	_, appErr := svc.PostComment(storyID(draft), owner, "note to self")
	assert.NotNil(t, appErr)
	assert.Equal(t, common.KindNotFound, appErr.Kind)
}

func TestPostComment_BlankBody(t *testing.T) {
	svc, db := setupService(t)
	owner := createUser(db, "owner")
	story, _ := svc.Create(owner, Input{})
	publishStory(t, svc, story, owner)

	_, appErr := svc.PostComment(storyID(story), owner, "")
	assert.NotNil(t, appErr)
	assert.Equal(t, common.KindBadRequest, appErr.Kind)
}

func TestEditComment(t *testing.T) {
	svc, db := setupService(t)
	owner := createUser(db, "owner")
	author := createUser(db, "author")
	other := createUser(db, "other")
	story, _ := svc.Create(owner, Input{})
	publishStory(t, svc, story, owner)

	comment, _ := svc.PostComment(storyID(story), author, "first take")
	commentID := fmt.Sprint(comment.ID)

	// author-only
	_, appErr := svc.EditComment(storyID(story), commentID, other, strPtr("hijacked"))
	assert.NotNil(t, appErr)
	assert.Equal(t, common.KindForbidden, appErr.Kind)

	// nil body is a no-op
	unchanged, appErr := svc.EditComment(storyID(story), commentID, author, nil)
	assert.Nil(t, appErr)
	assert.Equal(t, "first take", unchanged.Body)

	// blank body is rejected
	_, appErr = svc.EditComment(storyID(story), commentID, author, strPtr(""))
	assert.NotNil(t, appErr)
	assert.Equal(t, common.KindBadRequest, appErr.Kind)

	edited, appErr := svc.EditComment(storyID(story), commentID, author, strPtr("second take"))
	assert.Nil(t, appErr)
	assert.Equal(t, "second take", edited.Body)
}

func TestDeleteComment_AuthorOnly(t *testing.T) {
	svc, db := setupService(t)
	owner := createUser(db, "owner")
	author := createUser(db, "author")
	story, _ := svc.Create(owner, Input{})
	publishStory(t, svc, story, owner)

	comment, _ := svc.PostComment(storyID(story), author, "mine")
	commentID := fmt.Sprint(comment.ID)

	// the story owner does not own the comment
	appErr := svc.DeleteComment(storyID(story), commentID, owner)
	assert.NotNil(t, appErr)
	assert.Equal(t, common.KindForbidden, appErr.Kind)

	assert.Nil(t, svc.DeleteComment(storyID(story), commentID, author))

	var count int64
	db.Model(&models.StoryComment{}).Count(&count)
	assert.Equal(t, int64(0), count)
}

func TestListComments_OldestFirst(t *testing.T) {
	svc, db := setupService(t)
	owner := createUser(db, "owner")
	reader := createUser(db, "reader")
	story, _ := svc.Create(owner, Input{})
	publishStory(t, svc, story, owner)

	for i := 1; i <= 3; i++ {
		_, appErr := svc.PostComment(storyID(story), reader, fmt.Sprintf("comment %d", i))
		assert.Nil(t, appErr)
	}

	count, appErr := svc.CountComments(storyID(story))
	assert.Nil(t, appErr)
	assert.Equal(t, int64(3), count)

	comments, appErr := svc.ListComments(storyID(story), 0, 10)
	assert.Nil(t, appErr)
	assert.Len(t, comments, 3)
	assert.Equal(t, "comment 1", comments[0].Body)
	assert.Equal(t, "comment 3", comments[2].Body)
}

func TestAddTag(t *testing.T) {
	svc, db := setupService(t)
	owner := createUser(db, "owner")
	story, _ := svc.Create(owner, Input{})

	storyTag, appErr := svc.AddTag(storyID(story), owner, "golang")
	assert.Nil(t, appErr)
	assert.Equal(t, "golang", storyTag.Tag.Name)

	// same name on a second story reuses the global tag row
	second, _ := svc.Create(owner, Input{})
	_, appErr = svc.AddTag(storyID(second), owner, "golang")
	assert.Nil(t, appErr)

	var tagCount int64
	db.Model(&models.Tag{}).Count(&tagCount)
	assert.Equal(t, int64(1), tagCount)
}

func TestAddTag_DuplicateAttachment(t *testing.T) {
	svc, db := setupService(t)
	owner := createUser(db, "owner")
	story, _ := svc.Create(owner, Input{})

	_, appErr := svc.AddTag(storyID(story), owner, "golang")
	assert.Nil(t, appErr)

	_, appErr = svc.AddTag(storyID(story), owner, "golang")
	assert.NotNil(t, appErr)
	assert.Equal(t, common.KindBadRequest, appErr.Kind)
	assert.Equal(t, "This tag is already attached to the story.", appErr.Detail)
}

func TestRemoveTag(t *testing.T) {
	svc, db := setupService(t)
	owner := createUser(db, "owner")
	story, _ := svc.Create(owner, Input{})

	_, appErr := svc.AddTag(storyID(story), owner, "golang")
	assert.Nil(t, appErr)

	assert.Nil(t, svc.RemoveTag(storyID(story), owner, "golang"))

	appErr = svc.RemoveTag(storyID(story), owner, "golang")
	assert.NotNil(t, appErr)
	assert.Equal(t, "This tag is not attached to the story.", appErr.Detail)
}

func TestListTags_PublishedOnly(t *testing.T) {
	svc, db := setupService(t)
	owner := createUser(db, "owner")
	story, _ := svc.Create(owner, Input{})
	_, appErr := svc.AddTag(storyID(story), owner, "draft-tag")
	assert.Nil(t, appErr)

	_, _, appErr = svc.ListTags(storyID(story))
	assert.NotNil(t, appErr)
	assert.Equal(t, common.KindNotFound, appErr.Kind)

	publishStory(t, svc, story, owner)
	_, names, appErr := svc.ListTags(storyID(story))
	assert.Nil(t, appErr)
	assert.Equal(t, []string{"draft-tag"}, names)
}

func TestListDefault_ExcludesDraftsAndCurated(t *testing.T) {
	svc, db := setupService(t)
	owner := createUser(db, "owner")

	draft, _ := svc.Create(owner, Input{Title: strPtr("Draft")})
	_ = draft

	plain, _ := svc.Create(owner, Input{Title: strPtr("Plain")})
	publishStory(t, svc, plain, owner)

	curated, _ := svc.Create(owner, Input{Title: strPtr("Curated")})
	publishStory(t, svc, curated, owner)
	one := 1
	db.Model(&models.Story{}).Where("id = ?", curated.ID).Update("main_order", one)

	count, appErr := svc.CountDefault("")
	assert.Nil(t, appErr)
	assert.Equal(t, int64(1), count)

	stories, appErr := svc.ListDefault("", 0, 10)
	assert.Nil(t, appErr)
	assert.Len(t, stories, 1)
	assert.Equal(t, "Plain", stories[0].Title)
}

func TestListDefault_TitleFilterAndOrder(t *testing.T) {
	svc, db := setupService(t)
	owner := createUser(db, "owner")

	older, _ := svc.Create(owner, Input{Title: strPtr("Go story")})
	publishStory(t, svc, older, owner)
	past := time.Now().Add(-time.Hour)
	db.Model(&models.Story{}).Where("id = ?", older.ID).Update("published_at", past)

	newer, _ := svc.Create(owner, Input{Title: strPtr("Another Go tale")})
	publishStory(t, svc, newer, owner)

	unrelated, _ := svc.Create(owner, Input{Title: strPtr("Cooking")})
	publishStory(t, svc, unrelated, owner)

	stories, appErr := svc.ListDefault("Go", 0, 10)
	assert.Nil(t, appErr)
	assert.Len(t, stories, 2)
	// newest first
	assert.Equal(t, "Another Go tale", stories[0].Title)
	assert.Equal(t, "Go story", stories[1].Title)
}

func TestListMainAndTrending(t *testing.T) {
	svc, db := setupService(t)
	owner := createUser(db, "owner")

	makeCurated := func(title string, mainOrder, trendingOrder *int) {
		story, _ := svc.Create(owner, Input{Title: strPtr(title)})
		publishStory(t, svc, story, owner)
		db.Model(&models.Story{}).Where("id = ?", story.ID).Updates(map[string]interface{}{
			"main_order":     mainOrder,
			"trending_order": trendingOrder,
		})
	}
	two, five, three := 2, 5, 3
	makeCurated("Main second", &two, nil)
	makeCurated("Main fifth", &five, &three)
	makeCurated("Uncurated", nil, nil)

	main, appErr := svc.ListMain()
	assert.Nil(t, appErr)
	assert.Len(t, main, 2)
	assert.Equal(t, "Main second", main[0].Title)
	assert.Equal(t, "Main fifth", main[1].Title)

	trending, appErr := svc.ListTrending()
	assert.Nil(t, appErr)
	assert.Len(t, trending, 1)
	assert.Equal(t, "Main fifth", trending[0].Title)
}

func TestTrackRead(t *testing.T) {
	svc, db := setupService(t)
	owner := createUser(db, "owner")
	reader := createUser(db, "reader")
	story, _ := svc.Create(owner, Input{})
	publishStory(t, svc, story, owner)

	// owners reading their own work are not counted
	svc.TrackRead(story, owner)
	var count int64
	db.Model(&models.StoryRead{}).Count(&count)
	assert.Equal(t, int64(0), count)

	svc.TrackRead(story, reader)
	var read models.StoryRead
	assert.NoError(t, db.First(&read, "story_id = ? AND user_id = ?", story.ID, reader.ID).Error)
	assert.Equal(t, 1, read.Count)

	// a second read inside the window does not increment
	svc.TrackRead(story, reader)
	db.First(&read, read.ID)
	assert.Equal(t, 1, read.Count)

	// backdate past the window and read again
	stale := time.Now().Add(-time.Hour)
	db.Model(&models.StoryRead{}).Where("id = ?", read.ID).Update("read_at", stale)
	svc.TrackRead(story, reader)
	db.First(&read, read.ID)
	assert.Equal(t, 2, read.Count)
}

func TestStoryBody_RoundTripsRawJSON(t *testing.T) {
	svc, db := setupService(t)
	owner := createUser(db, "owner")

	body := json.RawMessage(`[{"type":"paragraph","detail":{"content":"hello"}}]`)
	story, appErr := svc.Create(owner, Input{Body: body})
	assert.Nil(t, appErr)

	var stored models.Story
	db.First(&stored, story.ID)
	assert.JSONEq(t, string(body), string(stored.Body))
}
