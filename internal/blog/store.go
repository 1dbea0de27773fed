package blog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/jmoiron/sqlx"
	"github.com/residencyreview/eras-review-api/internal/models"
)

// ErrNotFound is returned when no post matches.
var ErrNotFound = errors.New("blog post not found")

const maxSlugAttempts = 3

const postColumns = `id, slug, title, excerpt, content_html, meta_title, meta_description,
	keywords, tags, faq, cover_image_url, author, status, ai_generated, topic,
	reading_minutes, published_at, created_at, updated_at`

// Store is the SQL access layer for blog_posts.
type Store struct {
	DB *sqlx.DB
}

// ListFilter selects posts for listings. Zero values mean "any".
type ListFilter struct {
	Status   string
	Tag      string
	Page     int
	PageSize int
}

func (f ListFilter) limits() (int, int) {
	page, size := f.Page, f.PageSize
	if page < 1 {
		page = 1
	}
	if size < 1 || size > 50 {
		size = 10
	}
	return size, (page - 1) * size
}

// List returns posts newest first plus the total number of matches.
func (s *Store) List(ctx context.Context, f ListFilter) ([]models.BlogPost, int, error) {
	var where []string
	var args []interface{}
	if f.Status != "" {
		where = append(where, "status = ?")
		args = append(args, f.Status)
	}
	if f.Tag != "" {
		where = append(where, "JSON_CONTAINS(tags, JSON_QUOTE(?))")
		args = append(args, f.Tag)
	}
	clause := ""
	if len(where) > 0 {
		clause = " WHERE " + strings.Join(where, " AND ")
	}

	var total int
	if err := s.DB.GetContext(ctx, &total, "SELECT COUNT(*) FROM blog_posts"+clause, args...); err != nil {
		return nil, 0, fmt.Errorf("count posts: %w", err)
	}

	limit, offset := f.limits()
	query := "SELECT " + postColumns + " FROM blog_posts" + clause +
		" ORDER BY COALESCE(published_at, created_at) DESC, id DESC LIMIT ? OFFSET ?"
	var posts []models.BlogPost
	if err := s.DB.SelectContext(ctx, &posts, query, append(args, limit, offset)...); err != nil {
		return nil, 0, fmt.Errorf("list posts: %w", err)
	}
	for i := range posts {
		if err := posts[i].DecodeJSONFields(); err != nil {
			return nil, 0, err
		}
	}
	return posts, total, nil
}

// AllPublished returns every published post, newest first, for feeds and sitemaps.
func (s *Store) AllPublished(ctx context.Context) ([]models.BlogPost, error) {
	var posts []models.BlogPost
	query := "SELECT " + postColumns + " FROM blog_posts WHERE status = ? ORDER BY published_at DESC"
	if err := s.DB.SelectContext(ctx, &posts, query, models.PostStatusPublished); err != nil {
		return nil, fmt.Errorf("list published posts: %w", err)
	}
	for i := range posts {
		if err := posts[i].DecodeJSONFields(); err != nil {
			return nil, err
		}
	}
	return posts, nil
}

func (s *Store) getOne(ctx context.Context, where string, args ...interface{}) (*models.BlogPost, error) {
	var post models.BlogPost
	err := s.DB.GetContext(ctx, &post, "SELECT "+postColumns+" FROM blog_posts WHERE "+where, args...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get post: %w", err)
	}
	if err := post.DecodeJSONFields(); err != nil {
		return nil, err
	}
	return &post, nil
}

// PublishedBySlug returns a published post.
func (s *Store) PublishedBySlug(ctx context.Context, slug string) (*models.BlogPost, error) {
	return s.getOne(ctx, "slug = ? AND status = ?", slug, models.PostStatusPublished)
}

// BySlug returns a post in any status.
func (s *Store) BySlug(ctx context.Context, slug string) (*models.BlogPost, error) {
	return s.getOne(ctx, "slug = ?", slug)
}

// ByID returns a post in any status.
func (s *Store) ByID(ctx context.Context, id int64) (*models.BlogPost, error) {
	return s.getOne(ctx, "id = ?", id)
}

// UniqueSlug returns base, or base-2, base-3 ... whichever is free.
func (s *Store) UniqueSlug(ctx context.Context, base string) (string, error) {
	var taken []string
	err := s.DB.SelectContext(ctx, &taken,
		"SELECT slug FROM blog_posts WHERE slug = ? OR slug LIKE ?", base, base+"-%")
	if err != nil {
		return "", fmt.Errorf("check slug: %w", err)
	}
	return NextSlug(base, taken), nil
}

// NextSlug picks the first free candidate among base, base-2, base-3 ...
func NextSlug(base string, taken []string) string {
	used := make(map[string]bool, len(taken))
	for _, t := range taken {
		used[t] = true
	}
	if !used[base] {
		return base
	}
	for n := 2; ; n++ {
		candidate := base + "-" + strconv.Itoa(n)
		if !used[candidate] {
			return candidate
		}
	}
}

// Insert stores a new post and sets its ID.
func (s *Store) Insert(ctx context.Context, post *models.BlogPost) error {
	if err := post.EncodeJSONFields(); err != nil {
		return err
	}
	res, err := s.DB.NamedExecContext(ctx, `
		INSERT INTO blog_posts
		(slug, title, excerpt, content_html, meta_title, meta_description, keywords, tags, faq,
		 cover_image_url, author, status, ai_generated, topic, reading_minutes, published_at, created_at, updated_at)
		VALUES
		(:slug, :title, :excerpt, :content_html, :meta_title, :meta_description, :keywords, :tags, :faq,
		 :cover_image_url, :author, :status, :ai_generated, :topic, :reading_minutes, :published_at, :created_at, :updated_at)`,
		post)
	if err != nil {
		return fmt.Errorf("insert post: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("insert post: %w", err)
	}
	post.ID = id
	return nil
}

// InsertUnique inserts post under a free variant of its slug, retrying when
// another writer takes the same slug first.
func (s *Store) InsertUnique(ctx context.Context, post *models.BlogPost) error {
	base := post.Slug
	for attempt := 1; ; attempt++ {
		slug, err := s.UniqueSlug(ctx, base)
		if err != nil {
			return err
		}
		post.Slug = slug
		err = s.Insert(ctx, post)
		if err == nil || !IsDuplicateSlug(err) || attempt >= maxSlugAttempts {
			return err
		}
	}
}

// IsDuplicateSlug reports a unique-key violation from MySQL.
func IsDuplicateSlug(err error) bool {
	var myErr *mysql.MySQLError
	return errors.As(err, &myErr) && myErr.Number == 1062
}

// Update rewrites the editable columns of an existing post.
func (s *Store) Update(ctx context.Context, post *models.BlogPost) error {
	if err := post.EncodeJSONFields(); err != nil {
		return err
	}
	res, err := s.DB.NamedExecContext(ctx, `
		UPDATE blog_posts SET
			slug = :slug, title = :title, excerpt = :excerpt, content_html = :content_html,
			meta_title = :meta_title, meta_description = :meta_description,
			keywords = :keywords, tags = :tags, faq = :faq, cover_image_url = :cover_image_url,
			author = :author, reading_minutes = :reading_minutes, updated_at = :updated_at
		WHERE id = :id`, post)
	if err != nil {
		return fmt.Errorf("update post: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// Publish marks a post published, keeping the first publication time.
func (s *Store) Publish(ctx context.Context, id int64, now time.Time) error {
	res, err := s.DB.ExecContext(ctx, `
		UPDATE blog_posts
		SET status = ?, published_at = COALESCE(published_at, ?), updated_at = ?
		WHERE id = ?`, models.PostStatusPublished, now, now, id)
	if err != nil {
		return fmt.Errorf("publish post: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// Delete removes a post.
func (s *Store) Delete(ctx context.Context, id int64) error {
	res, err := s.DB.ExecContext(ctx, "DELETE FROM blog_posts WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("delete post: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// TopicUsage returns when each catalogue topic was last generated.
func (s *Store) TopicUsage(ctx context.Context) (map[string]time.Time, error) {
	rows, err := s.DB.QueryContext(ctx, `
		SELECT topic, MAX(created_at)
		FROM blog_posts
		WHERE topic IS NOT NULL
		GROUP BY topic`)
	if err != nil {
		return nil, fmt.Errorf("topic usage: %w", err)
	}
	defer rows.Close()

	used := map[string]time.Time{}
	for rows.Next() {
		var topic string
		var at time.Time
		if err := rows.Scan(&topic, &at); err != nil {
			return nil, fmt.Errorf("scan topic usage: %w", err)
		}
		used[topic] = at
	}
	return used, rows.Err()
}
