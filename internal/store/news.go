package store

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/furniro/apiserver/types"
)

const articleColumns = `id, title, location, date, content, category, likes, image_key`

var likePatternEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// NewsRepository handles persistence for news articles and their likes.
type NewsRepository struct {
	db *sql.DB
}

func NewNewsRepository(db *sql.DB) *NewsRepository {
	return &NewsRepository{db: db}
}

func (r *NewsRepository) List(ctx context.Context) ([]types.Article, error) {
	const query = `
		SELECT ` + articleColumns + `
		FROM news
		ORDER BY date DESC, id DESC`
	return r.queryArticles(ctx, query)
}

// Search matches query as a literal, case-insensitive substring of the
// title or the category.
func (r *NewsRepository) Search(ctx context.Context, query string) ([]types.Article, error) {
	const stmt = `
		SELECT ` + articleColumns + `
		FROM news
		WHERE title ILIKE $1 ESCAPE '\' OR category ILIKE $1 ESCAPE '\'
		ORDER BY date DESC, id DESC`
	pattern := "%" + likePatternEscaper.Replace(query) + "%"
	return r.queryArticles(ctx, stmt, pattern)
}

func (r *NewsRepository) Get(ctx context.Context, id int) (types.Article, error) {
	const query = `
		SELECT ` + articleColumns + `
		FROM news
		WHERE id = $1`
	article, err := scanArticle(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.Article{}, ErrNotFound
		}
		return types.Article{}, err
	}
	return article, nil
}

func (r *NewsRepository) Create(ctx context.Context, article types.Article) (types.Article, error) {
	now := time.Now()
	article.Likes = 0

	const query = `
		INSERT INTO news (title, location, date, content, category, likes, image_key, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, 0, $6, $7, $7)
		RETURNING id`
	if err := r.db.QueryRowContext(
		ctx,
		query,
		article.Title,
		article.Location,
		article.Date,
		article.Content,
		article.Category,
		article.ImageKey,
		now,
	).Scan(&article.ID); err != nil {
		return types.Article{}, err
	}
	return article, nil
}

// Update overwrites the editable fields of an article. The like counter is
// never written here, and an empty ImageKey keeps the stored one.
func (r *NewsRepository) Update(ctx context.Context, article types.Article) (types.Article, error) {
	const query = `
		UPDATE news
		SET title = $1,
			location = $2,
			date = $3,
			content = $4,
			category = $5,
			image_key = COALESCE(NULLIF($6, ''), image_key),
			updated_at = $7
		WHERE id = $8
		RETURNING likes, image_key`
	err := r.db.QueryRowContext(
		ctx,
		query,
		article.Title,
		article.Location,
		article.Date,
		article.Content,
		article.Category,
		article.ImageKey,
		time.Now(),
		article.ID,
	).Scan(&article.Likes, &article.ImageKey)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.Article{}, ErrNotFound
		}
		return types.Article{}, err
	}
	return article, nil
}

func (r *NewsRepository) Delete(ctx context.Context, id int) error {
	const query = `DELETE FROM news WHERE id = $1`
	result, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// Like records that email liked article id and bumps the counter, as one
// transaction. The news_likes primary key decides who wins between
// concurrent identical requests: only the insert that actually added a row
// increments, everybody else reads the current count back.
func (r *NewsRepository) Like(ctx context.Context, id int, email string) (types.LikeResult, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return types.LikeResult{}, err
	}
	defer func() {
		_ = tx.Rollback()
	}()

	const insertLike = `
		INSERT INTO news_likes (user_email, news_id, created_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (user_email, news_id) DO NOTHING`
	result, err := tx.ExecContext(ctx, insertLike, email, id, time.Now())
	if err != nil {
		if isForeignKeyViolation(err) {
			return types.LikeResult{}, ErrNotFound
		}
		return types.LikeResult{}, err
	}
	inserted, err := result.RowsAffected()
	if err != nil {
		return types.LikeResult{}, err
	}

	var likes int
	if inserted == 1 {
		const increment = `UPDATE news SET likes = likes + 1 WHERE id = $1 RETURNING likes`
		err = tx.QueryRowContext(ctx, increment, id).Scan(&likes)
	} else {
		const current = `SELECT likes FROM news WHERE id = $1`
		err = tx.QueryRowContext(ctx, current, id).Scan(&likes)
	}
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.LikeResult{}, ErrNotFound
		}
		return types.LikeResult{}, err
	}

	if err := tx.Commit(); err != nil {
		return types.LikeResult{}, err
	}
	return types.LikeResult{Liked: inserted == 1, Likes: likes}, nil
}

func (r *NewsRepository) queryArticles(ctx context.Context, query string, args ...any) ([]types.Article, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	articles := make([]types.Article, 0)
	for rows.Next() {
		article, err := scanArticle(rows)
		if err != nil {
			return nil, err
		}
		articles = append(articles, article)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return articles, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanArticle(row rowScanner) (types.Article, error) {
	var article types.Article
	err := row.Scan(
		&article.ID,
		&article.Title,
		&article.Location,
		&article.Date,
		&article.Content,
		&article.Category,
		&article.Likes,
		&article.ImageKey,
	)
	return article, err
}
