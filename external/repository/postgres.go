package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/foxseedlab/dmzstatus/internal/repository"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Table names are fixed here and never come from user input.
var postgresTimestampTables = map[repository.TimestampTable]string{
	repository.TableLastText:       "member_last_text",
	repository.TableLastVoiceLeave: "member_last_voice_leave",
}

type PostgresRepository struct {
	pool *pgxpool.Pool
}

func NewPostgresRepository(pool *pgxpool.Pool) repository.Repository {
	return &PostgresRepository{pool: pool}
}

func (r *PostgresRepository) GetTimestamp(ctx context.Context, table repository.TimestampTable, member string) (*time.Time, error) {
	name, ok := postgresTimestampTables[table]
	if !ok {
		return nil, fmt.Errorf("%w: %s", repository.ErrUnknownTable, table)
	}
	var at time.Time
	err := r.pool.QueryRow(ctx,
		`SELECT at FROM `+name+` WHERE member = $1`,
		member).Scan(&at)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	at = at.UTC()
	return &at, nil
}

func (r *PostgresRepository) SetTimestamp(ctx context.Context, table repository.TimestampTable, member string, at time.Time) error {
	name, ok := postgresTimestampTables[table]
	if !ok {
		return fmt.Errorf("%w: %s", repository.ErrUnknownTable, table)
	}
	_, err := r.pool.Exec(ctx,
		`INSERT INTO `+name+` (member, at, updated_at)
		 VALUES ($1, $2, NOW())
		 ON CONFLICT (member) DO UPDATE SET at = EXCLUDED.at, updated_at = NOW()`,
		member, at)
	return err
}

func (r *PostgresRepository) GetVoiceSeconds(ctx context.Context, member string) (*float64, error) {
	var seconds float64
	err := r.pool.QueryRow(ctx,
		`SELECT seconds FROM member_voice_seconds WHERE member = $1`,
		member).Scan(&seconds)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &seconds, nil
}

func (r *PostgresRepository) SetVoiceSeconds(ctx context.Context, member string, seconds float64) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO member_voice_seconds (member, seconds, updated_at)
		 VALUES ($1, $2, NOW())
		 ON CONFLICT (member) DO UPDATE SET seconds = EXCLUDED.seconds, updated_at = NOW()`,
		member, seconds)
	return err
}

func (r *PostgresRepository) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}

func (r *PostgresRepository) Close() error {
	r.pool.Close()
	return nil
}
