package database

import (
	"context"
	"database/sql"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/varoOP/clubgate/internal/domain"
)

// PrefsRepo implements domain.PrefsRepo
type PrefsRepo struct {
	log zerolog.Logger
	db  *DB
}

func NewPrefsRepo(log zerolog.Logger, db *DB) *PrefsRepo {
	return &PrefsRepo{
		log: log.With().Str("repo", "prefs").Logger(),
		db:  db,
	}
}

var _ domain.PrefsRepo = (*PrefsRepo)(nil)

func (r *PrefsRepo) Get(ctx context.Context, key domain.PrefKey) (string, error) {
	query, args, err := r.db.squirrel.
		Select("value").
		From("prefs").
		Where(sq.Eq{"key": string(key)}).
		ToSql()
	if err != nil {
		return "", errors.Wrap(err, "error building query")
	}

	var value string
	if err := r.db.handler.QueryRowContext(ctx, query, args...).Scan(&value); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", domain.ErrNotFound
		}
		return "", errors.Wrap(err, "error executing query")
	}

	return value, nil
}

func (r *PrefsRepo) Set(ctx context.Context, key domain.PrefKey, value string) error {
	query, args, err := r.db.squirrel.
		Replace("prefs").
		Columns("key", "value", "updated_at").
		Values(string(key), value, time.Now().UTC().Format(time.RFC3339)).
		ToSql()
	if err != nil {
		return errors.Wrap(err, "error building query")
	}

	r.log.Trace().Str("key", string(key)).Msg("Set")

	if _, err := r.db.handler.ExecContext(ctx, query, args...); err != nil {
		return errors.Wrap(err, "error executing query")
	}

	return nil
}

func (r *PrefsRepo) Delete(ctx context.Context, key domain.PrefKey) error {
	query, args, err := r.db.squirrel.
		Delete("prefs").
		Where(sq.Eq{"key": string(key)}).
		ToSql()
	if err != nil {
		return errors.Wrap(err, "error building delete query")
	}

	if _, err := r.db.handler.ExecContext(ctx, query, args...); err != nil {
		return errors.Wrap(err, "error executing delete query")
	}

	return nil
}
