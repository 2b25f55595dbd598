package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/varoOP/clubgate/internal/domain"
)

// CacheRepo implements domain.CacheStorage on top of SQLite
type CacheRepo struct {
	log zerolog.Logger
	db  *DB
}

// NewCacheRepo creates a new cache storage repository
func NewCacheRepo(log zerolog.Logger, db *DB) *CacheRepo {
	return &CacheRepo{
		log: log.With().Str("repo", "cache").Logger(),
		db:  db,
	}
}

var _ domain.CacheStorage = (*CacheRepo)(nil)

// Open returns the named cache, creating the partition row when missing
func (r *CacheRepo) Open(ctx context.Context, name string) (domain.Cache, error) {
	queryBuilder := r.db.squirrel.
		Insert("caches").
		Options("OR IGNORE").
		Columns("name", "created_at").
		Values(name, time.Now().UTC().Format(time.RFC3339Nano))

	query, args, err := queryBuilder.ToSql()
	if err != nil {
		return nil, errors.Wrap(err, "error building query")
	}

	r.log.Trace().Str("query", query).Interface("args", args).Msg("Open")

	if _, err := r.db.handler.ExecContext(ctx, query, args...); err != nil {
		return nil, errors.Wrapf(err, "error opening cache %s", name)
	}

	return &cacheHandle{repo: r, name: name}, nil
}

// Has reports whether a cache with the given name exists
func (r *CacheRepo) Has(ctx context.Context, name string) (bool, error) {
	query, args, err := r.db.squirrel.
		Select("COUNT(*)").
		From("caches").
		Where(sq.Eq{"name": name}).
		ToSql()
	if err != nil {
		return false, errors.Wrap(err, "error building query")
	}

	var count int
	if err := r.db.handler.QueryRowContext(ctx, query, args...).Scan(&count); err != nil {
		return false, errors.Wrap(err, "error executing query")
	}

	return count > 0, nil
}

// Delete drops a cache partition and all of its entries
func (r *CacheRepo) Delete(ctx context.Context, name string) (bool, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return false, err
	}
	defer tx.Rollback()

	entries, args, err := r.db.squirrel.Delete("cache_entries").Where(sq.Eq{"cache_name": name}).ToSql()
	if err != nil {
		return false, errors.Wrap(err, "error building delete query")
	}
	if _, err := tx.ExecContext(ctx, entries, args...); err != nil {
		return false, errors.Wrap(err, "error deleting cache entries")
	}

	caches, args, err := r.db.squirrel.Delete("caches").Where(sq.Eq{"name": name}).ToSql()
	if err != nil {
		return false, errors.Wrap(err, "error building delete query")
	}

	r.log.Trace().Str("query", caches).Interface("args", args).Msg("Delete")

	res, err := tx.ExecContext(ctx, caches, args...)
	if err != nil {
		return false, errors.Wrap(err, "error deleting cache")
	}

	if err := tx.Commit(); err != nil {
		return false, errors.Wrap(err, "error committing delete")
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, errors.Wrap(err, "error reading affected rows")
	}

	return n > 0, nil
}

// Keys lists cache names in creation order
func (r *CacheRepo) Keys(ctx context.Context) ([]string, error) {
	query, args, err := r.db.squirrel.
		Select("name").
		From("caches").
		OrderBy("rowid").
		ToSql()
	if err != nil {
		return nil, errors.Wrap(err, "error building query")
	}

	rows, err := r.db.handler.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "error executing query")
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, errors.Wrap(err, "error scanning row")
		}
		names = append(names, name)
	}

	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "error iterating rows")
	}

	return names, nil
}

// Match finds the request URL in the oldest cache that holds it
func (r *CacheRepo) Match(ctx context.Context, url string) (*domain.Response, bool, error) {
	queryBuilder := r.entrySelect().
		Join("caches c ON c.name = e.cache_name").
		Where(sq.Eq{"e.request_url": url}).
		OrderBy("c.rowid").
		Limit(1)

	return r.scanOne(ctx, queryBuilder)
}

// Count returns the number of entries stored in a cache
func (r *CacheRepo) Count(ctx context.Context, name string) (int, error) {
	query, args, err := r.db.squirrel.
		Select("COUNT(*)").
		From("cache_entries").
		Where(sq.Eq{"cache_name": name}).
		ToSql()
	if err != nil {
		return 0, errors.Wrap(err, "error building query")
	}

	var count int
	if err := r.db.handler.QueryRowContext(ctx, query, args...).Scan(&count); err != nil {
		return 0, errors.Wrap(err, "error executing query")
	}

	return count, nil
}

func (r *CacheRepo) entrySelect() sq.SelectBuilder {
	return r.db.squirrel.
		Select("e.request_url", "e.status_code", "e.status", "e.response_type", "e.headers", "e.body", "e.stored_at").
		From("cache_entries e")
}

func (r *CacheRepo) scanOne(ctx context.Context, queryBuilder sq.SelectBuilder) (*domain.Response, bool, error) {
	query, args, err := queryBuilder.ToSql()
	if err != nil {
		return nil, false, errors.Wrap(err, "error building query")
	}

	r.log.Trace().Str("query", query).Interface("args", args).Msg("Match")

	var (
		resp     domain.Response
		respType string
		headers  string
		storedAt string
	)

	err = r.db.handler.QueryRowContext(ctx, query, args...).
		Scan(&resp.URL, &resp.StatusCode, &resp.Status, &respType, &headers, &resp.Body, &storedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, errors.Wrap(err, "error executing query")
	}

	resp.Type = domain.ResponseType(respType)
	resp.Header = http.Header{}
	if err := json.Unmarshal([]byte(headers), &resp.Header); err != nil {
		return nil, false, errors.Wrap(err, "error decoding stored headers")
	}
	if resp.Header == nil {
		resp.Header = http.Header{}
	}
	if t, err := time.Parse(time.RFC3339Nano, storedAt); err == nil {
		resp.StoredAt = t
	}

	return &resp, true, nil
}

// cacheHandle is a single named partition
type cacheHandle struct {
	repo *CacheRepo
	name string
}

func (c *cacheHandle) Name() string {
	return c.name
}

func (c *cacheHandle) Match(ctx context.Context, url string) (*domain.Response, bool, error) {
	queryBuilder := c.repo.entrySelect().
		Where(sq.Eq{"e.cache_name": c.name, "e.request_url": url})

	return c.repo.scanOne(ctx, queryBuilder)
}

func (c *cacheHandle) Put(ctx context.Context, url string, resp *domain.Response) error {
	if resp == nil {
		return errors.New("nil response")
	}
	resp = resp.Shareable()

	headers, err := json.Marshal(resp.Header)
	if err != nil {
		return errors.Wrap(err, "error encoding headers")
	}

	storedAt := resp.StoredAt
	if storedAt.IsZero() {
		storedAt = time.Now()
	}

	queryBuilder := c.repo.db.squirrel.
		Replace("cache_entries").
		Columns("cache_name", "request_url", "status_code", "status", "response_type", "headers", "body", "stored_at").
		Values(c.name, url, resp.StatusCode, resp.Status, string(resp.Type), string(headers), resp.Body, storedAt.UTC().Format(time.RFC3339Nano))

	query, args, err := queryBuilder.ToSql()
	if err != nil {
		return errors.Wrap(err, "error building query")
	}

	c.repo.log.Trace().Str("cache", c.name).Str("url", url).Msg("Put")

	if _, err := c.repo.db.handler.ExecContext(ctx, query, args...); err != nil {
		return errors.Wrap(err, "error executing query")
	}

	return nil
}

func (c *cacheHandle) Delete(ctx context.Context, url string) (bool, error) {
	query, args, err := c.repo.db.squirrel.
		Delete("cache_entries").
		Where(sq.Eq{"cache_name": c.name, "request_url": url}).
		ToSql()
	if err != nil {
		return false, errors.Wrap(err, "error building delete query")
	}

	res, err := c.repo.db.handler.ExecContext(ctx, query, args...)
	if err != nil {
		return false, errors.Wrap(err, "error executing delete query")
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, errors.Wrap(err, "error reading affected rows")
	}

	return n > 0, nil
}

func (c *cacheHandle) Keys(ctx context.Context) ([]string, error) {
	query, args, err := c.repo.db.squirrel.
		Select("request_url").
		From("cache_entries").
		Where(sq.Eq{"cache_name": c.name}).
		OrderBy("rowid").
		ToSql()
	if err != nil {
		return nil, errors.Wrap(err, "error building query")
	}

	rows, err := c.repo.db.handler.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "error executing query")
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, errors.Wrap(err, "error scanning row")
		}
		keys = append(keys, key)
	}

	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "error iterating rows")
	}

	return keys, nil
}
