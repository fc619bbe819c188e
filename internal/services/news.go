package services

import (
	"bytes"
	"context"
	"errors"
	"io"
	"mime"
	"net/http"
	"path"
	"strconv"
	"strings"

	"github.com/furniro/apiserver/internal/storage"
	"github.com/furniro/apiserver/internal/store"
	"github.com/furniro/apiserver/types"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// MaxImageBytes bounds an uploaded article image.
const MaxImageBytes = 5 << 20

const imageKeyPrefix = "news/"

// NewsRepository defines persistence operations for news articles.
type NewsRepository interface {
	List(ctx context.Context) ([]types.Article, error)
	Search(ctx context.Context, query string) ([]types.Article, error)
	Get(ctx context.Context, id int) (types.Article, error)
	Create(ctx context.Context, article types.Article) (types.Article, error)
	Update(ctx context.Context, article types.Article) (types.Article, error)
	Delete(ctx context.Context, id int) error
	Like(ctx context.Context, id int, email string) (types.LikeResult, error)
}

// ImageStorage keeps article images. *storage.Storage satisfies it.
type ImageStorage interface {
	Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error
	Get(ctx context.Context, key string) (io.ReadCloser, error)
	Delete(ctx context.Context, key string) error
}

// ArticleInput is the full set of editable article fields. Every text
// field is required on both create and update.
type ArticleInput struct {
	Title    string
	Location string
	Date     string
	Content  string
	Category string
	Image    *ImageUpload
}

// ImageUpload is an image attached to an article write.
type ImageUpload struct {
	Filename string
	Data     []byte
}

// NewsService encapsulates news use-cases.
type NewsService struct {
	repo   NewsRepository
	images ImageStorage
	emitter
}

// NewNewsService constructs the service. images may be nil, in which case
// image uploads are rejected.
func NewNewsService(repo NewsRepository, images ImageStorage, events EventPublisher, logger *zap.Logger) *NewsService {
	return &NewsService{
		repo:    repo,
		images:  images,
		emitter: newEmitter(events, logger),
	}
}

// List returns every article, newest first.
func (s *NewsService) List(ctx context.Context) ([]types.Article, error) {
	return s.repo.List(ctx)
}

func (s *NewsService) Get(ctx context.Context, id int) (types.Article, error) {
	return s.repo.Get(ctx, id)
}

// Search returns the articles whose title or category contains query.
// An empty result is reported as store.ErrNotFound rather than an empty
// list; the storefront relies on that to show its "no results" state.
func (s *NewsService) Search(ctx context.Context, query string) ([]types.Article, error) {
	if strings.TrimSpace(query) == "" {
		return nil, invalidf("Search query required")
	}

	articles, err := s.repo.Search(ctx, query)
	if err != nil {
		return nil, err
	}
	if len(articles) == 0 {
		return nil, store.ErrNotFound
	}
	return articles, nil
}

// Add creates an article with zero likes.
func (s *NewsService) Add(ctx context.Context, in ArticleInput) (types.Article, error) {
	article, err := in.article()
	if err != nil {
		return types.Article{}, err
	}

	if in.Image != nil {
		key, err := s.putImage(ctx, in.Image)
		if err != nil {
			return types.Article{}, err
		}
		article.ImageKey = key
	}

	created, err := s.repo.Create(ctx, article)
	if err != nil {
		s.dropImage(ctx, article.ImageKey)
		return types.Article{}, err
	}

	s.emit(ctx, types.EventNewsCreated, strconv.Itoa(created.ID), map[string]any{"title": created.Title})
	return created, nil
}

// Update replaces all editable fields of article id. Updating an id that
// does not exist is not an error: nothing is written and the submitted
// article is echoed back with that id.
func (s *NewsService) Update(ctx context.Context, id int, in ArticleInput) (types.Article, error) {
	article, err := in.article()
	if err != nil {
		return types.Article{}, err
	}
	article.ID = id

	var previousKey string
	if in.Image != nil {
		if current, err := s.repo.Get(ctx, id); err == nil {
			previousKey = current.ImageKey
		} else if !errors.Is(err, store.ErrNotFound) {
			return types.Article{}, err
		}

		key, err := s.putImage(ctx, in.Image)
		if err != nil {
			return types.Article{}, err
		}
		article.ImageKey = key
	}

	updated, err := s.repo.Update(ctx, article)
	if err != nil {
		s.dropImage(ctx, article.ImageKey)
		if errors.Is(err, store.ErrNotFound) {
			s.logger.Debug("update of missing article ignored", zap.Int("id", id))
			article.ImageKey = ""
			return article, nil
		}
		return types.Article{}, err
	}

	if previousKey != "" && previousKey != updated.ImageKey {
		s.dropImage(ctx, previousKey)
	}
	s.emit(ctx, types.EventNewsUpdated, strconv.Itoa(id), map[string]any{"title": updated.Title})
	return updated, nil
}

// Delete removes article id together with its likes and image. Deleting
// an id that does not exist succeeds.
func (s *NewsService) Delete(ctx context.Context, id int) error {
	var imageKey string
	if current, err := s.repo.Get(ctx, id); err == nil {
		imageKey = current.ImageKey
	} else if !errors.Is(err, store.ErrNotFound) {
		return err
	}

	if err := s.repo.Delete(ctx, id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil
		}
		return err
	}

	s.dropImage(ctx, imageKey)
	s.emit(ctx, types.EventNewsDeleted, strconv.Itoa(id), nil)
	return nil
}

// Like credits article id with a like from email, at most once per email.
// A repeated like is not an error: the result has Liked=false and the
// unchanged count.
func (s *NewsService) Like(ctx context.Context, id int, email string) (types.LikeResult, error) {
	email = normalizeEmail(email)
	if email == "" {
		return types.LikeResult{}, invalidf("Email required")
	}

	result, err := s.repo.Like(ctx, id, email)
	if err != nil {
		return types.LikeResult{}, err
	}
	if result.Liked {
		s.emit(ctx, types.EventNewsLiked, strconv.Itoa(id), map[string]any{
			"email": email,
			"likes": result.Likes,
		})
	}
	return result, nil
}

// Image opens the image of article id. It returns store.ErrNotFound when
// the article has no image.
func (s *NewsService) Image(ctx context.Context, id int) (io.ReadCloser, string, error) {
	article, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, "", err
	}
	if article.ImageKey == "" || s.images == nil {
		return nil, "", store.ErrNotFound
	}

	rc, err := s.images.Get(ctx, article.ImageKey)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotFound) {
			return nil, "", store.ErrNotFound
		}
		return nil, "", err
	}

	contentType := mime.TypeByExtension(path.Ext(article.ImageKey))
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	return rc, contentType, nil
}

func (s *NewsService) putImage(ctx context.Context, img *ImageUpload) (string, error) {
	if s.images == nil {
		return "", invalidf("Image uploads are not enabled")
	}
	if len(img.Data) == 0 {
		return "", invalidf("Image is empty")
	}
	if len(img.Data) > MaxImageBytes {
		return "", invalidf("Image must be at most %d MiB", MaxImageBytes>>20)
	}

	contentType := http.DetectContentType(img.Data)
	if !strings.HasPrefix(contentType, "image/") {
		return "", invalidf("Image must be a picture")
	}

	key := imageKeyPrefix + uuid.NewString() + imageExt(img.Filename, contentType)
	if err := s.images.Put(ctx, key, bytes.NewReader(img.Data), int64(len(img.Data)), contentType); err != nil {
		return "", err
	}
	return key, nil
}

func (s *NewsService) dropImage(ctx context.Context, key string) {
	if key == "" || s.images == nil {
		return
	}
	if err := s.images.Delete(ctx, key); err != nil {
		s.logger.Warn("delete image failed", zap.String("key", key), zap.Error(err))
	}
}

func (in ArticleInput) article() (types.Article, error) {
	article := types.Article{
		Title:    strings.TrimSpace(in.Title),
		Location: strings.TrimSpace(in.Location),
		Content:  strings.TrimSpace(in.Content),
		Category: strings.TrimSpace(in.Category),
	}
	rawDate := strings.TrimSpace(in.Date)
	if article.Title == "" || article.Location == "" || rawDate == "" || article.Content == "" || article.Category == "" {
		return types.Article{}, invalidf("All fields are required")
	}

	date, err := types.ParseDate(rawDate)
	if err != nil {
		return types.Article{}, invalidf("Invalid date, expected YYYY-MM-DD")
	}
	article.Date = date
	return article, nil
}

func imageExt(filename, contentType string) string {
	ext := strings.ToLower(path.Ext(filename))
	if ext != "" && mime.TypeByExtension(ext) == contentType {
		return ext
	}
	if exts, err := mime.ExtensionsByType(contentType); err == nil && len(exts) > 0 {
		return exts[0]
	}
	return ""
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
