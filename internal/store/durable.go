package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	sq "github.com/Masterminds/squirrel"
	_ "github.com/mattn/go-sqlite3"

	"github.com/avetrov/offsync/internal/config"
	"github.com/avetrov/offsync/internal/logger"
	"github.com/avetrov/offsync/migrations"
)

const upsertPartition = `INSERT INTO partitions (key, state, updated_at)
	VALUES (?, ?, ?)
	ON CONFLICT(key) DO UPDATE SET state = excluded.state, updated_at = excluded.updated_at;`

type sqliteDurableStore struct {
	db      *sql.DB
	allowed map[string]struct{}
	log     *logger.Logger
}

// NewDurableStore opens (creating if needed) the sqlite database at
// cfg.DSN, runs pending migrations and returns a [DurableStore] restricted
// to the settings and offline partitions. Open or migration failures are
// wrapped in ErrStorageUnavailable so the caller can fall back to an
// in-memory store.
func NewDurableStore(ctx context.Context, cfg config.DB, log *logger.Logger) (DurableStore, error) {
	if err := createLocalDBFileIfNotExists(cfg.DSN); err != nil {
		log.Err(err).Str("func", "NewDurableStore").Msg("error creating database file")
		return nil, fmt.Errorf("create database file: %w", ErrStorageUnavailable)
	}

	conn, err := sql.Open("sqlite3", cfg.DSN)
	if err != nil {
		log.Err(err).Str("func", "NewDurableStore").Msg("error connecting database")
		return nil, fmt.Errorf("open sqlite connection: %w", ErrStorageUnavailable)
	}

	// ping database
	if err = conn.PingContext(ctx); err != nil {
		log.Err(err).Str("func", "NewDurableStore").Msg("error connecting database (ping)")
		return nil, fmt.Errorf("ping sqlite: %w", ErrStorageUnavailable)
	}

	if err = migrations.Migrate(conn); err != nil {
		log.Err(err).Str("func", "NewDurableStore").Msg("migration failed")
		return nil, fmt.Errorf("migrate sqlite: %w", ErrStorageUnavailable)
	}
	log.Debug().Str("func", "NewDurableStore").Msg("connected to database successfully")

	return newSQLiteDurableStore(conn, log), nil
}

func newSQLiteDurableStore(conn *sql.DB, log *logger.Logger) *sqliteDurableStore {
	return &sqliteDurableStore{
		db: conn,
		allowed: map[string]struct{}{
			PartitionSettings: {},
			PartitionOffline:  {},
		},
		log: log,
	}
}

func (s *sqliteDurableStore) Persist(ctx context.Context, partition string, state any) error {
	if err := s.checkPartition(partition); err != nil {
		return err
	}

	payload, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("encode partition %s: %w", partition, err)
	}

	if _, err = s.db.ExecContext(ctx, upsertPartition, partition, payload, time.Now().UTC()); err != nil {
		s.log.Err(err).
			Str("func", "sqliteDurableStore.Persist").
			Str("partition", partition).
			Msg("failed to execute upsert for partition state")
		return fmt.Errorf("persist partition %s: %w", partition, err)
	}

	return nil
}

func (s *sqliteDurableStore) Rehydrate(ctx context.Context, partition string, out any) error {
	if err := s.checkPartition(partition); err != nil {
		return err
	}

	query, args, err := sq.Select("state").
		From("partitions").
		Where(sq.Eq{"key": partition}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build rehydrate query: %w", err)
	}

	var payload []byte
	err = s.db.QueryRowContext(ctx, query, args...).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrPartitionNotFound
	}
	if err != nil {
		s.log.Err(err).
			Str("func", "sqliteDurableStore.Rehydrate").
			Str("partition", partition).
			Msg("failed to read partition state")
		return fmt.Errorf("rehydrate partition %s: %w", partition, err)
	}

	if err = json.Unmarshal(payload, out); err != nil {
		return fmt.Errorf("decode partition %s: %w", partition, err)
	}

	return nil
}

func (s *sqliteDurableStore) Close() error {
	return s.db.Close()
}

func (s *sqliteDurableStore) checkPartition(partition string) error {
	if _, ok := s.allowed[partition]; !ok {
		return fmt.Errorf("partition %q: %w", partition, ErrPartitionNotAllowed)
	}
	return nil
}

func createLocalDBFileIfNotExists(dbFile string) error {
	if _, err := os.Stat(dbFile); os.IsNotExist(err) {
		// if not found - create
		f, err := os.Create(dbFile)
		if err != nil {
			return fmt.Errorf("error creating DB file: %w", err)
		}
		f.Close()
	}

	// file already exists
	return nil
}
