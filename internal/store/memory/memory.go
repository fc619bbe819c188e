// Package memory provides process-local repositories with the same
// semantics as the Postgres ones in internal/store. It backs the "memory"
// database driver and the service and handler tests.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/furniro/apiserver/internal/store"
	"github.com/furniro/apiserver/types"
)

type UserRepository struct {
	mu     *sync.RWMutex
	nextID int
	users  []types.User
}

func NewUserRepository() *UserRepository {
	return &UserRepository{
		mu:     &sync.RWMutex{},
		nextID: 1,
	}
}

func (r *UserRepository) GetByEmail(ctx context.Context, email string) (types.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if i := r.indexOf(email); i >= 0 {
		return r.users[i], nil
	}
	return types.User{}, store.ErrNotFound
}

func (r *UserRepository) Create(ctx context.Context, user types.User) (types.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.indexOf(user.Email) >= 0 {
		return types.User{}, store.ErrDuplicate
	}

	now := time.Now()
	user.ID = r.nextID
	user.CreatedAt = now
	user.UpdatedAt = now
	r.nextID++
	r.users = append(r.users, user)

	return user, nil
}

func (r *UserRepository) UpdateRole(ctx context.Context, email, role string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	i := r.indexOf(email)
	if i < 0 {
		return store.ErrNotFound
	}
	r.users[i].Role = role
	r.users[i].UpdatedAt = time.Now()

	return nil
}

func (r *UserRepository) Delete(ctx context.Context, email string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	i := r.indexOf(email)
	if i < 0 {
		return store.ErrNotFound
	}
	r.users = append(r.users[:i], r.users[i+1:]...)

	return nil
}

func (r *UserRepository) List(ctx context.Context) ([]types.UserSummary, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	users := make([]types.UserSummary, 0, len(r.users))
	for _, user := range r.users {
		users = append(users, user.Summary())
	}
	return users, nil
}

func (r *UserRepository) indexOf(email string) int {
	for i, user := range r.users {
		if strings.EqualFold(user.Email, email) {
			return i
		}
	}
	return -1
}

type likeKey struct {
	email  string
	newsID int
}

type NewsRepository struct {
	mu       *sync.RWMutex
	nextID   int
	articles map[int]types.Article
	likes    map[likeKey]struct{}
}

func NewNewsRepository() *NewsRepository {
	return &NewsRepository{
		mu:       &sync.RWMutex{},
		nextID:   1,
		articles: make(map[int]types.Article),
		likes:    make(map[likeKey]struct{}),
	}
}

func (r *NewsRepository) List(ctx context.Context) ([]types.Article, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.filter(func(types.Article) bool { return true }), nil
}

func (r *NewsRepository) Search(ctx context.Context, query string) ([]types.Article, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	needle := strings.ToLower(query)
	return r.filter(func(a types.Article) bool {
		return strings.Contains(strings.ToLower(a.Title), needle) ||
			strings.Contains(strings.ToLower(a.Category), needle)
	}), nil
}

func (r *NewsRepository) Get(ctx context.Context, id int) (types.Article, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	article, ok := r.articles[id]
	if !ok {
		return types.Article{}, store.ErrNotFound
	}
	return article, nil
}

func (r *NewsRepository) Create(ctx context.Context, article types.Article) (types.Article, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	article.ID = r.nextID
	article.Likes = 0
	r.nextID++
	r.articles[article.ID] = article

	return article, nil
}

func (r *NewsRepository) Update(ctx context.Context, article types.Article) (types.Article, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	current, ok := r.articles[article.ID]
	if !ok {
		return types.Article{}, store.ErrNotFound
	}
	article.Likes = current.Likes
	if article.ImageKey == "" {
		article.ImageKey = current.ImageKey
	}
	r.articles[article.ID] = article

	return article, nil
}

func (r *NewsRepository) Delete(ctx context.Context, id int) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.articles[id]; !ok {
		return store.ErrNotFound
	}
	delete(r.articles, id)
	for key := range r.likes {
		if key.newsID == id {
			delete(r.likes, key)
		}
	}

	return nil
}

func (r *NewsRepository) Like(ctx context.Context, id int, email string) (types.LikeResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	article, ok := r.articles[id]
	if !ok {
		return types.LikeResult{}, store.ErrNotFound
	}

	key := likeKey{email: email, newsID: id}
	if _, liked := r.likes[key]; liked {
		return types.LikeResult{Liked: false, Likes: article.Likes}, nil
	}

	r.likes[key] = struct{}{}
	article.Likes++
	r.articles[id] = article

	return types.LikeResult{Liked: true, Likes: article.Likes}, nil
}

// LikeRecords returns how many like records exist for an article.
func (r *NewsRepository) LikeRecords(id int) int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	count := 0
	for key := range r.likes {
		if key.newsID == id {
			count++
		}
	}
	return count
}

// filter must be called with the lock held.
func (r *NewsRepository) filter(keep func(types.Article) bool) []types.Article {
	articles := make([]types.Article, 0, len(r.articles))
	for _, article := range r.articles {
		if keep(article) {
			articles = append(articles, article)
		}
	}
	sort.Slice(articles, func(i, j int) bool {
		if !articles[i].Date.Equal(articles[j].Date.Time) {
			return articles[i].Date.After(articles[j].Date.Time)
		}
		return articles[i].ID > articles[j].ID
	})
	return articles
}
