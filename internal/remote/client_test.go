package remote

import (
	"context"
	"fmt"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"rmashqip/internal/db"
	"rmashqip/internal/models"
)

func newTestClient(t *testing.T) (*Client, *gorm.DB) {
	t.Helper()
	gdb, err := db.OpenTest()
	require.NoError(t, err)
	return NewClient(gdb, zerolog.Nop()), gdb
}

func seedProfile(t *testing.T, c *Client, id, name string) *models.Profile {
	t.Helper()
	p, err := c.CreateProfile(context.Background(), &models.Profile{ID: id, FullName: name, Email: id + "@example.com"})
	require.NoError(t, err)
	return p
}

type fakeRecounter struct {
	ids []string
}

func (f *fakeRecounter) ScheduleRecount(postID string) {
	f.ids = append(f.ids, postID)
}

type fakeUploader struct {
	bucket string
	path   string
	body   string
}

func (f *fakeUploader) Put(_ context.Context, bucket, path string, r io.Reader, _ int64, _ string) (string, error) {
	data, _ := io.ReadAll(r)
	f.bucket, f.path, f.body = bucket, path, string(data)
	return "https://cdn.example.com/" + bucket + "/" + path, nil
}

func (f *fakeUploader) ImagesBucket() string  { return "images" }
func (f *fakeUploader) AvatarsBucket() string { return "avatars" }

func TestNilClientNotConfigured(t *testing.T) {
	var c *Client
	ctx := context.Background()

	_, err := c.GetPosts(ctx, "")
	assert.ErrorIs(t, err, ErrNotConfigured)
	_, err = c.GetProfile(ctx, "u1")
	assert.ErrorIs(t, err, ErrNotConfigured)
	_, err = c.UploadImage(ctx, "u1", "a.png", strings.NewReader("x"), 1, "image/png")
	assert.ErrorIs(t, err, ErrNotConfigured)

	// 没有数据库的客户端同样降级
	c = NewClient(nil, zerolog.Nop())
	_, err = c.ListEvents(ctx, true)
	assert.ErrorIs(t, err, ErrNotConfigured)
}

func TestCreateProfileConflict(t *testing.T) {
	c, _ := newTestClient(t)
	ctx := context.Background()

	p := seedProfile(t, c, "u1", "Luka")
	assert.Equal(t, models.RoleUser, p.Role)

	_, err := c.CreateProfile(ctx, &models.Profile{ID: "u1"})
	assert.ErrorIs(t, err, ErrConflict)

	_, err = c.CreateProfile(ctx, &models.Profile{})
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = c.GetProfile(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestUpdateProfile(t *testing.T) {
	c, _ := newTestClient(t)
	ctx := context.Background()
	seedProfile(t, c, "u1", "Luka")

	name := "Luka Modrić"
	bio := "Hala Madrid"
	p, err := c.UpdateProfile(ctx, "u1", ProfileUpdate{FullName: &name, Bio: &bio})
	require.NoError(t, err)
	assert.Equal(t, name, p.FullName)
	assert.Equal(t, bio, p.Bio)

	empty := "  "
	_, err = c.UpdateProfile(ctx, "u1", ProfileUpdate{Username: &empty})
	assert.ErrorIs(t, err, ErrInvalidInput)

	long := strings.Repeat("a", 201)
	_, err = c.UpdateProfile(ctx, "u1", ProfileUpdate{Bio: &long})
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestCreatePostAndFeedOrder(t *testing.T) {
	c, _ := newTestClient(t)
	ctx := context.Background()
	seedProfile(t, c, "u1", "Luka")

	_, err := c.CreatePost(ctx, PostInput{AuthorID: "u1", Content: "   "})
	assert.ErrorIs(t, err, ErrInvalidInput)
	_, err = c.CreatePost(ctx, PostInput{AuthorID: "u1", Content: strings.Repeat("x", maxContentLength+1)})
	assert.ErrorIs(t, err, ErrInvalidInput)

	first, err := c.CreatePost(ctx, PostInput{AuthorID: "u1", Content: "first"})
	require.NoError(t, err)
	assert.Equal(t, "Luka", first.Author.FullName)
	time.Sleep(10 * time.Millisecond)
	second, err := c.CreatePost(ctx, PostInput{AuthorID: "u1", Content: "second"})
	require.NoError(t, err)

	posts, err := c.GetPosts(ctx, "")
	require.NoError(t, err)
	require.Len(t, posts, 2)
	assert.Equal(t, second.ID, posts[0].ID)
	assert.Equal(t, first.ID, posts[1].ID)

	// 只有图片也可以发布
	_, err = c.CreatePost(ctx, PostInput{AuthorID: "u1", ImageURL: "https://cdn.example.com/a.png"})
	assert.NoError(t, err)
}

func TestUpdateAndDeletePostPermissions(t *testing.T) {
	c, _ := newTestClient(t)
	ctx := context.Background()
	seedProfile(t, c, "u1", "Luka")
	seedProfile(t, c, "u2", "Toni")

	post, err := c.CreatePost(ctx, PostInput{AuthorID: "u1", Content: "hello"})
	require.NoError(t, err)

	_, err = c.UpdatePost(ctx, post.ID, "u2", "hijack")
	assert.ErrorIs(t, err, ErrForbidden)

	updated, err := c.UpdatePost(ctx, post.ID, "u1", "edited")
	require.NoError(t, err)
	assert.Equal(t, "edited", updated.Content)

	assert.ErrorIs(t, c.DeletePost(ctx, post.ID, "u2", false), ErrForbidden)
	require.NoError(t, c.DeletePost(ctx, post.ID, "u2", true))

	// 软删除后不可见
	_, err = c.GetPost(ctx, post.ID, "")
	assert.ErrorIs(t, err, ErrNotFound)
	posts, err := c.GetPosts(ctx, "")
	require.NoError(t, err)
	assert.Empty(t, posts)
	assert.ErrorIs(t, c.DeletePost(ctx, post.ID, "u1", false), ErrNotFound)
}

func TestLikeIsIdempotent(t *testing.T) {
	c, gdb := newTestClient(t)
	rc := &fakeRecounter{}
	c.WithRecounter(rc)
	ctx := context.Background()
	seedProfile(t, c, "u1", "Luka")
	seedProfile(t, c, "u2", "Toni")

	post, err := c.CreatePost(ctx, PostInput{AuthorID: "u1", Content: "hello"})
	require.NoError(t, err)

	count, err := c.LikePost(ctx, post.ID, "u2")
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	count, err = c.LikePost(ctx, post.ID, "u2")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
	assert.Equal(t, []string{post.ID}, rc.ids)

	got, err := c.GetPost(ctx, post.ID, "u2")
	require.NoError(t, err)
	assert.True(t, got.IsLiked)

	count, err = c.UnlikePost(ctx, post.ID, "u2")
	require.NoError(t, err)
	assert.Equal(t, 0, count)
	count, err = c.UnlikePost(ctx, post.ID, "u2")
	require.NoError(t, err)
	assert.Equal(t, 0, count)

	// 点赞通知异步写入
	assert.Eventually(t, func() bool {
		var n int64
		gdb.Model(&models.Notification{}).Where("user_id = ? AND type = ?", "u1", models.NotificationTypeLike).Count(&n)
		return n == 1
	}, time.Second, 10*time.Millisecond)

	_, err = c.LikePost(ctx, "missing", "u2")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestTrendingPosts(t *testing.T) {
	c, gdb := newTestClient(t)
	ctx := context.Background()
	seedProfile(t, c, "u1", "Luka")

	for i := 0; i < 12; i++ {
		p, err := c.CreatePost(ctx, PostInput{AuthorID: "u1", Content: fmt.Sprintf("post %d", i)})
		require.NoError(t, err)
		require.NoError(t, gdb.Model(&models.Post{}).Where("id = ?", p.ID).Update("likes_count", i+1).Error)
	}

	posts, err := c.GetTrendingPosts(ctx, "")
	require.NoError(t, err)
	require.Len(t, posts, 8) // 点赞数 5..12
	assert.Equal(t, 12, posts[0].LikesCount)
	for i := 1; i < len(posts); i++ {
		assert.GreaterOrEqual(t, posts[i-1].LikesCount, posts[i].LikesCount)
		assert.GreaterOrEqual(t, posts[i].LikesCount, trendingMinLikes)
	}
}

func TestToggleSavedAndSavedPosts(t *testing.T) {
	c, _ := newTestClient(t)
	ctx := context.Background()
	seedProfile(t, c, "u1", "Luka")

	post, err := c.CreatePost(ctx, PostInput{AuthorID: "u1", Content: "hello"})
	require.NoError(t, err)

	saved, err := c.ToggleSaved(ctx, post.ID, "u1")
	require.NoError(t, err)
	assert.True(t, saved)

	posts, err := c.GetSavedPosts(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, posts, 1)
	assert.True(t, posts[0].IsSaved)

	saved, err = c.ToggleSaved(ctx, post.ID, "u1")
	require.NoError(t, err)
	assert.False(t, saved)
}

func TestSharePost(t *testing.T) {
	c, _ := newTestClient(t)
	ctx := context.Background()
	seedProfile(t, c, "u1", "Luka")
	post, err := c.CreatePost(ctx, PostInput{AuthorID: "u1", Content: "hello"})
	require.NoError(t, err)

	n, err := c.SharePost(ctx, post.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	_, err = c.SharePost(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestFollow(t *testing.T) {
	c, _ := newTestClient(t)
	ctx := context.Background()
	seedProfile(t, c, "u1", "Luka")
	seedProfile(t, c, "u2", "Toni")

	assert.ErrorIs(t, c.FollowUser(ctx, "u1", "u1"), ErrSelfFollow)
	assert.ErrorIs(t, c.FollowUser(ctx, "u1", "missing"), ErrNotFound)

	require.NoError(t, c.FollowUser(ctx, "u1", "u2"))
	require.NoError(t, c.FollowUser(ctx, "u1", "u2"))

	ok, err := c.IsFollowing(ctx, "u1", "u2")
	require.NoError(t, err)
	assert.True(t, ok)

	counts, err := c.GetFollowCounts(ctx, "u2")
	require.NoError(t, err)
	assert.Equal(t, FollowCounts{Followers: 1, Following: 0}, counts)

	followers, err := c.GetFollowers(ctx, "u2")
	require.NoError(t, err)
	require.Len(t, followers, 1)
	assert.Equal(t, "u1", followers[0].ID)

	following, err := c.GetFollowing(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, following, 1)
	assert.Equal(t, "u2", following[0].ID)

	require.NoError(t, c.UnfollowUser(ctx, "u1", "u2"))
	ok, err = c.IsFollowing(ctx, "u1", "u2")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestComments(t *testing.T) {
	c, gdb := newTestClient(t)
	ctx := context.Background()
	seedProfile(t, c, "u1", "Luka")
	seedProfile(t, c, "u2", "Toni")
	post, err := c.CreatePost(ctx, PostInput{AuthorID: "u1", Content: "hello"})
	require.NoError(t, err)

	_, err = c.CreateComment(ctx, post.ID, "u2", " ")
	assert.ErrorIs(t, err, ErrInvalidInput)

	comment, err := c.CreateComment(ctx, post.ID, "u2", "Hala Madrid!")
	require.NoError(t, err)
	assert.Equal(t, "Toni", comment.Author.FullName)

	got, err := c.GetPost(ctx, post.ID, "")
	require.NoError(t, err)
	assert.Equal(t, 1, got.CommentsCount)

	_, err = c.UpdateComment(ctx, comment.ID, "u1", "nope")
	assert.ErrorIs(t, err, ErrForbidden)
	updated, err := c.UpdateComment(ctx, comment.ID, "u2", "Vamos!")
	require.NoError(t, err)
	assert.Equal(t, "Vamos!", updated.Content)

	assert.ErrorIs(t, c.DeleteComment(ctx, comment.ID, "u1", false), ErrForbidden)
	require.NoError(t, c.DeleteComment(ctx, comment.ID, "u2", false))

	comments, err := c.GetComments(ctx, post.ID)
	require.NoError(t, err)
	assert.Empty(t, comments)

	assert.Eventually(t, func() bool {
		var n int64
		gdb.Model(&models.Notification{}).Where("user_id = ? AND type = ?", "u1", models.NotificationTypeComment).Count(&n)
		return n == 1
	}, time.Second, 10*time.Millisecond)
}

func TestNotifications(t *testing.T) {
	c, _ := newTestClient(t)
	ctx := context.Background()

	assert.ErrorIs(t, c.CreateNotification(ctx, &models.Notification{UserID: "u1"}), ErrInvalidInput)

	n1 := &models.Notification{UserID: "u1", Title: "Ndeshje e re"}
	require.NoError(t, c.CreateNotification(ctx, n1))
	assert.Equal(t, models.NotificationTypeSystem, n1.Type)
	require.NoError(t, c.CreateNotification(ctx, &models.Notification{UserID: "u1", Title: "Tjetër", Type: models.NotificationTypeMatch}))

	unread, err := c.UnreadCount(ctx, "u1")
	require.NoError(t, err)
	assert.EqualValues(t, 2, unread)

	assert.ErrorIs(t, c.MarkAsRead(ctx, n1.ID, "u2"), ErrNotFound)
	require.NoError(t, c.MarkAsRead(ctx, n1.ID, "u1"))
	unread, err = c.UnreadCount(ctx, "u1")
	require.NoError(t, err)
	assert.EqualValues(t, 1, unread)

	require.NoError(t, c.MarkAllAsRead(ctx, "u1"))
	unread, err = c.UnreadCount(ctx, "u1")
	require.NoError(t, err)
	assert.EqualValues(t, 0, unread)

	list, err := c.GetNotifications(ctx, "u1", 0)
	require.NoError(t, err)
	assert.Len(t, list, 2)
}

func TestUpcomingEventsAndMatches(t *testing.T) {
	c, _ := newTestClient(t)
	ctx := context.Background()
	now := time.Now()

	_, err := c.CreateEvent(ctx, &models.Event{Title: " "})
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = c.CreateEvent(ctx, &models.Event{Title: "Later", EventDate: now.Add(48 * time.Hour)})
	require.NoError(t, err)
	_, err = c.CreateEvent(ctx, &models.Event{Title: "Soon", EventDate: now.Add(time.Hour)})
	require.NoError(t, err)
	_, err = c.CreateEvent(ctx, &models.Event{Title: "Past", EventDate: now.Add(-time.Hour)})
	require.NoError(t, err)

	events, err := c.ListEvents(ctx, true)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, "Soon", events[0].Title)
	assert.Equal(t, "Later", events[1].Title)

	all, err := c.ListEvents(ctx, false)
	require.NoError(t, err)
	assert.Len(t, all, 3)

	m, err := c.CreateMatch(ctx, &models.Match{HomeTeam: "Real Madrid", AwayTeam: "Sevilla", MatchDate: now.Add(time.Hour)})
	require.NoError(t, err)
	assert.Equal(t, models.MatchStatusScheduled, m.Status)

	home, away := 3, 1
	_, err = c.UpdateMatch(ctx, m.ID, &models.Match{HomeTeam: "Real Madrid", AwayTeam: "Sevilla", MatchDate: m.MatchDate, HomeScore: &home, AwayScore: &away, Status: models.MatchStatusFinished})
	require.NoError(t, err)

	upcoming, err := c.ListMatches(ctx, true)
	require.NoError(t, err)
	assert.Empty(t, upcoming)

	require.NoError(t, c.DeleteMatch(ctx, m.ID))
	assert.ErrorIs(t, c.DeleteMatch(ctx, m.ID), ErrNotFound)
}

func TestUploadPaths(t *testing.T) {
	c, _ := newTestClient(t)
	up := &fakeUploader{}
	c.WithUploader(up)
	ctx := context.Background()

	url, err := c.UploadImage(ctx, "u1", "../my photo.png", strings.NewReader("png"), 3, "image/png")
	require.NoError(t, err)
	assert.Equal(t, "images", up.bucket)
	assert.True(t, strings.HasPrefix(up.path, "u1/"))
	assert.True(t, strings.HasSuffix(up.path, "-my_photo.png"))
	assert.Contains(t, url, up.path)

	_, err = c.UploadAvatar(ctx, "u1", "me.JPG", strings.NewReader("jpg"), 3, "image/jpeg")
	require.NoError(t, err)
	assert.Equal(t, "avatars", up.bucket)
	assert.True(t, strings.HasSuffix(up.path, ".jpg"))
}

func TestBannedAuthorCannotPost(t *testing.T) {
	c, _ := newTestClient(t)
	ctx := context.Background()
	seedProfile(t, c, "u1", "Luka")
	post, err := c.CreatePost(ctx, PostInput{AuthorID: "u1", Content: "hello"})
	require.NoError(t, err)

	require.NoError(t, c.SetBanned(ctx, "u1", true))

	_, err = c.CreatePost(ctx, PostInput{AuthorID: "u1", Content: "again"})
	assert.ErrorIs(t, err, ErrForbidden)
	_, err = c.CreateComment(ctx, post.ID, "u1", "comment")
	assert.ErrorIs(t, err, ErrBanned)

	_, err = c.CreatePost(ctx, PostInput{AuthorID: "ghost", Content: "who"})
	assert.ErrorIs(t, err, ErrInvalidInput)
}
