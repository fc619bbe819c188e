package services

import (
	"context"
	"io"
	"strings"
	"sync"
	"testing"

	"github.com/furniro/apiserver/internal/store"
	"github.com/furniro/apiserver/internal/store/memory"
	"github.com/furniro/apiserver/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var pngBytes = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR\x00\x00\x00\x01\x00\x00\x00\x01")

func articleInput(title, date, category string) ArticleInput {
	return ArticleInput{
		Title:    title,
		Location: "Lagos",
		Date:     date,
		Content:  "Body of " + title,
		Category: category,
	}
}

type newsFixture struct {
	svc    *NewsService
	repo   *memory.NewsRepository
	images *memImages
	events *recordingPublisher
}

func newNewsFixture(t *testing.T) newsFixture {
	t.Helper()
	f := newsFixture{
		repo:   memory.NewNewsRepository(),
		images: newMemImages(),
		events: &recordingPublisher{},
	}
	f.svc = NewNewsService(f.repo, f.images, f.events, nil)
	return f
}

func TestAddAndListNewestFirst(t *testing.T) {
	f := newNewsFixture(t)
	ctx := context.Background()

	older, err := f.svc.Add(ctx, articleInput("Spring sale", "2024-03-01", "offers"))
	require.NoError(t, err)
	newer, err := f.svc.Add(ctx, articleInput("New showroom", "2024-05-10", "events"))
	require.NoError(t, err)
	sameDay, err := f.svc.Add(ctx, articleInput("Late post", "2024-05-10", "events"))
	require.NoError(t, err)

	assert.Equal(t, 0, older.Likes)
	assert.NotZero(t, older.ID)

	articles, err := f.svc.List(ctx)
	require.NoError(t, err)
	require.Len(t, articles, 3)
	assert.Equal(t, []int{sameDay.ID, newer.ID, older.ID}, []int{articles[0].ID, articles[1].ID, articles[2].ID})
	assert.Equal(t, "2024-05-10", articles[0].Date.String())
}

func TestAddValidation(t *testing.T) {
	f := newNewsFixture(t)
	ctx := context.Background()

	in := articleInput("Sale", "2024-03-01", "offers")
	in.Location = " "
	_, err := f.svc.Add(ctx, in)
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "All fields are required", verr.Message)

	_, err = f.svc.Add(ctx, articleInput("Sale", "yesterday", "offers"))
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Message, "Invalid date")

	articles, err := f.svc.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, articles)
}

func TestSearch(t *testing.T) {
	f := newNewsFixture(t)
	ctx := context.Background()

	_, err := f.svc.Add(ctx, articleInput("Sofa Week", "2024-01-01", "offers"))
	require.NoError(t, err)
	_, err = f.svc.Add(ctx, articleInput("Opening night", "2024-02-01", "Events"))
	require.NoError(t, err)

	byTitle, err := f.svc.Search(ctx, "sofa")
	require.NoError(t, err)
	require.Len(t, byTitle, 1)
	assert.Equal(t, "Sofa Week", byTitle[0].Title)

	byCategory, err := f.svc.Search(ctx, "event")
	require.NoError(t, err)
	require.Len(t, byCategory, 1)
	assert.Equal(t, "Opening night", byCategory[0].Title)

	_, err = f.svc.Search(ctx, "chairs")
	assert.ErrorIs(t, err, store.ErrNotFound)

	_, err = f.svc.Search(ctx, "   ")
	assert.True(t, IsValidation(err))

	spaced, err := f.svc.Search(ctx, " week")
	require.NoError(t, err)
	require.Len(t, spaced, 1)
	assert.Equal(t, "Sofa Week", spaced[0].Title)

	_, err = f.svc.Search(ctx, " sofa")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestUpdateKeepsLikes(t *testing.T) {
	f := newNewsFixture(t)
	ctx := context.Background()

	created, err := f.svc.Add(ctx, articleInput("Sale", "2024-03-01", "offers"))
	require.NoError(t, err)
	_, err = f.svc.Like(ctx, created.ID, "ana@example.com")
	require.NoError(t, err)

	updated, err := f.svc.Update(ctx, created.ID, articleInput("Bigger sale", "2024-03-02", "offers"))
	require.NoError(t, err)
	assert.Equal(t, "Bigger sale", updated.Title)
	assert.Equal(t, 1, updated.Likes)

	stored, err := f.repo.Get(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, "Bigger sale", stored.Title)
	assert.Equal(t, "2024-03-02", stored.Date.String())
	assert.Equal(t, 1, stored.Likes)
}

func TestUpdateMissingArticleIsNotAnError(t *testing.T) {
	f := newNewsFixture(t)
	ctx := context.Background()

	echoed, err := f.svc.Update(ctx, 42, articleInput("Ghost", "2024-03-01", "offers"))
	require.NoError(t, err)
	assert.Equal(t, 42, echoed.ID)
	assert.Equal(t, "Ghost", echoed.Title)

	articles, err := f.svc.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, articles)
	assert.Empty(t, f.events.eventTypes())
}

func TestDeleteIsIdempotentAndDropsLikes(t *testing.T) {
	f := newNewsFixture(t)
	ctx := context.Background()

	created, err := f.svc.Add(ctx, articleInput("Sale", "2024-03-01", "offers"))
	require.NoError(t, err)
	_, err = f.svc.Like(ctx, created.ID, "ana@example.com")
	require.NoError(t, err)

	require.NoError(t, f.svc.Delete(ctx, created.ID))
	require.NoError(t, f.svc.Delete(ctx, created.ID))
	require.NoError(t, f.svc.Delete(ctx, 9999))

	_, err = f.repo.Get(ctx, created.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)
	assert.Zero(t, f.repo.LikeRecords(created.ID))
	assert.Equal(t, []string{types.EventNewsCreated, types.EventNewsLiked, types.EventNewsDeleted}, f.events.eventTypes())
}

func TestLikeOncePerEmail(t *testing.T) {
	f := newNewsFixture(t)
	ctx := context.Background()

	created, err := f.svc.Add(ctx, articleInput("Sale", "2024-03-01", "offers"))
	require.NoError(t, err)

	first, err := f.svc.Like(ctx, created.ID, "Ana@Example.com")
	require.NoError(t, err)
	assert.Equal(t, types.LikeResult{Liked: true, Likes: 1}, first)

	again, err := f.svc.Like(ctx, created.ID, " ana@example.com")
	require.NoError(t, err)
	assert.Equal(t, types.LikeResult{Liked: false, Likes: 1}, again)

	other, err := f.svc.Like(ctx, created.ID, "bo@example.com")
	require.NoError(t, err)
	assert.Equal(t, types.LikeResult{Liked: true, Likes: 2}, other)
	assert.Equal(t, 2, f.repo.LikeRecords(created.ID))
}

func TestLikeErrors(t *testing.T) {
	f := newNewsFixture(t)
	ctx := context.Background()

	_, err := f.svc.Like(ctx, 1, "")
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "Email required", verr.Message)

	_, err = f.svc.Like(ctx, 1, "ana@example.com")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestConcurrentLikesCountOnce(t *testing.T) {
	f := newNewsFixture(t)
	ctx := context.Background()

	created, err := f.svc.Add(ctx, articleInput("Sale", "2024-03-01", "offers"))
	require.NoError(t, err)

	const attempts = 32
	var (
		wg    sync.WaitGroup
		mu    sync.Mutex
		liked int
	)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			result, err := f.svc.Like(ctx, created.ID, "ana@example.com")
			if !assert.NoError(t, err) {
				return
			}
			if result.Liked {
				mu.Lock()
				liked++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, liked)
	stored, err := f.repo.Get(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, stored.Likes)
	assert.Equal(t, 1, f.repo.LikeRecords(created.ID))
}

func TestAddWithImage(t *testing.T) {
	f := newNewsFixture(t)
	ctx := context.Background()

	in := articleInput("Sale", "2024-03-01", "offers")
	in.Image = &ImageUpload{Filename: "banner.PNG", Data: pngBytes}
	created, err := f.svc.Add(ctx, in)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(created.ImageKey, "news/"))
	assert.True(t, strings.HasSuffix(created.ImageKey, ".png"))

	rc, contentType, err := f.svc.Image(ctx, created.ID)
	require.NoError(t, err)
	defer rc.Close()
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, pngBytes, data)
	assert.Equal(t, "image/png", contentType)
}

func TestImageRejections(t *testing.T) {
	f := newNewsFixture(t)
	ctx := context.Background()

	in := articleInput("Sale", "2024-03-01", "offers")
	in.Image = &ImageUpload{Filename: "notes.png", Data: []byte("just some text")}
	_, err := f.svc.Add(ctx, in)
	assert.True(t, IsValidation(err))

	in.Image = &ImageUpload{Filename: "huge.png", Data: append(append([]byte{}, pngBytes...), make([]byte, MaxImageBytes)...)}
	_, err = f.svc.Add(ctx, in)
	assert.True(t, IsValidation(err))

	noStorage := NewNewsService(memory.NewNewsRepository(), nil, nil, nil)
	in.Image = &ImageUpload{Filename: "banner.png", Data: pngBytes}
	_, err = noStorage.Add(ctx, in)
	assert.True(t, IsValidation(err))

	assert.Empty(t, f.images.keys())
}

func TestUpdateReplacesImage(t *testing.T) {
	f := newNewsFixture(t)
	ctx := context.Background()

	in := articleInput("Sale", "2024-03-01", "offers")
	in.Image = &ImageUpload{Filename: "a.png", Data: pngBytes}
	created, err := f.svc.Add(ctx, in)
	require.NoError(t, err)

	kept, err := f.svc.Update(ctx, created.ID, articleInput("Sale", "2024-03-01", "offers"))
	require.NoError(t, err)
	assert.Equal(t, created.ImageKey, kept.ImageKey)

	in.Image = &ImageUpload{Filename: "b.png", Data: pngBytes}
	replaced, err := f.svc.Update(ctx, created.ID, in)
	require.NoError(t, err)
	assert.NotEqual(t, created.ImageKey, replaced.ImageKey)
	assert.Equal(t, []string{replaced.ImageKey}, f.images.keys())

	require.NoError(t, f.svc.Delete(ctx, created.ID))
	assert.Empty(t, f.images.keys())
}

func TestImageMissing(t *testing.T) {
	f := newNewsFixture(t)
	ctx := context.Background()

	created, err := f.svc.Add(ctx, articleInput("Sale", "2024-03-01", "offers"))
	require.NoError(t, err)

	_, _, err = f.svc.Image(ctx, created.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)

	_, _, err = f.svc.Image(ctx, 777)
	assert.ErrorIs(t, err, store.ErrNotFound)
}
