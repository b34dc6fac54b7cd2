package securestore

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/dmitrijs2005/cryptchat/internal/client/migrations"
	"github.com/dmitrijs2005/cryptchat/internal/client/repositories/preferences"
	"github.com/dmitrijs2005/cryptchat/internal/common"
	"github.com/dmitrijs2005/cryptchat/internal/cryptox"
	"github.com/dmitrijs2005/cryptchat/internal/dbx"
	"github.com/dmitrijs2005/cryptchat/internal/filex"
	"github.com/dmitrijs2005/cryptchat/internal/logging"
	"github.com/pressly/goose/v3"

	_ "modernc.org/sqlite"
)

const canaryKey = "__securestore_canary__"

var canaryValue = []byte("cryptchat/securestore/v1")

var errReservedKey = errors.New("securestore: reserved or empty key")

// test seams
var (
	openDB  = sql.Open
	migrate = func(ctx context.Context, db *sql.DB) error {
		p, err := goose.NewProvider(goose.DialectSQLite3, db, migrations.Migrations)
		if err != nil {
			return fmt.Errorf("goose provider: %w", err)
		}
		if _, err := p.Up(ctx); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
		return nil
	}
)

// Store is an encrypted string map persisted in SQLite. It is safe for
// concurrent use.
type Store struct {
	name   string
	path   string
	db     *sql.DB
	repo   *preferences.SQLiteRepository
	key    []byte
	logger logging.Logger
}

// Open opens (creating if needed) the store named name at path.
//
// A master key that cannot be obtained, or one that does not open the
// existing store (wrong device passphrase, replaced key file), is returned
// as an error and nothing on disk is touched; the latter wraps
// common.ErrInvalidCredential. Only a store that is itself unreadable is
// wiped and recreated, once; if that also fails the returned error wraps
// common.ErrStorageCorruption.
func Open(ctx context.Context, path, name string, provider MasterKeyProvider, logger logging.Logger) (*Store, error) {
	if logger == nil {
		logger = logging.Nop()
	}
	logger = logger.With("store", name)

	master, err := provider.MasterKey(ctx)
	if err != nil {
		return nil, fmt.Errorf("%s: master key: %w", name, err)
	}
	key, err := cryptox.DeriveSubkey(master, "cryptchat/securestore/"+name)
	common.WipeByteArray(master)
	if err != nil {
		return nil, err
	}

	s, err := open(ctx, path, name, key, logger)
	if err == nil {
		return s, nil
	}
	if keyMismatch(err) {
		common.WipeByteArray(key)
		logger.Warn(ctx, "secure store does not open with this master key")
		return nil, fmt.Errorf("%w: %s: master key does not match the store", common.ErrInvalidCredential, name)
	}

	logger.Warn(ctx, "secure store unreadable, recreating", "error", err)
	if rmErr := removeFiles(path); rmErr != nil {
		common.WipeByteArray(key)
		return nil, fmt.Errorf("%w: %s: %v", common.ErrStorageCorruption, name, rmErr)
	}

	s, err = open(ctx, path, name, key, logger)
	if err != nil {
		common.WipeByteArray(key)
		logger.Error(ctx, "secure store unusable after reset", "error", err)
		return nil, fmt.Errorf("%w: %s: %v", common.ErrStorageCorruption, name, err)
	}
	return s, nil
}

// keyMismatch reports a well-formed canary whose tag does not verify: the
// store is intact but sealed under another key.
func keyMismatch(err error) bool {
	return errors.Is(err, common.ErrAuthenticationFailure) && !cryptox.IsCorruptBlob(err)
}

func open(ctx context.Context, path, name string, key []byte, logger logging.Logger) (*Store, error) {
	if _, err := filex.EnsureDir(filepath.Dir(path)); err != nil {
		return nil, err
	}

	db, err := openDB("sqlite", path+"?_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	db.SetMaxOpenConns(1)

	if err := migrate(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}

	s := &Store{
		name:   name,
		path:   path,
		db:     db,
		repo:   preferences.NewSQLiteRepository(db),
		key:    key,
		logger: logger,
	}
	if err := s.verifyCanary(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) verifyCanary(ctx context.Context) error {
	raw, err := s.repo.Get(ctx, canaryKey)
	if err != nil {
		return err
	}
	if raw == nil {
		return s.writeCanary(ctx, s.repo)
	}
	pt, err := cryptox.OpenBlobAD(raw, s.key, []byte(canaryKey))
	if err != nil {
		return fmt.Errorf("canary: %w", err)
	}
	if !bytes.Equal(pt, canaryValue) {
		return fmt.Errorf("canary: %w", cryptox.ErrCorruptBlob)
	}
	return nil
}

func (s *Store) writeCanary(ctx context.Context, r preferences.Repository) error {
	sealed, err := cryptox.SealBlobAD(canaryValue, s.key, []byte(canaryKey))
	if err != nil {
		return err
	}
	return r.Set(ctx, canaryKey, sealed)
}

func removeFiles(path string) error {
	for _, suffix := range []string{"", "-journal", "-wal", "-shm"} {
		if err := filex.RemoveIfExists(path + suffix); err != nil {
			return err
		}
	}
	return nil
}

func checkKey(key string) error {
	if key == "" || key == canaryKey {
		return errReservedKey
	}
	return nil
}

// Name returns the logical store name used for key derivation.
func (s *Store) Name() string { return s.name }

// GetString returns the value stored under key. The bool is false when the
// key is absent.
func (s *Store) GetString(ctx context.Context, key string) (string, bool, error) {
	if err := checkKey(key); err != nil {
		return "", false, err
	}
	raw, err := s.repo.Get(ctx, key)
	if err != nil {
		return "", false, err
	}
	if raw == nil {
		return "", false, nil
	}
	pt, err := cryptox.OpenBlobAD(raw, s.key, []byte(key))
	if err != nil {
		return "", false, fmt.Errorf("%s[%s]: %w", s.name, key, err)
	}
	return string(pt), true, nil
}

func (s *Store) seal(key, value string) ([]byte, error) {
	if err := checkKey(key); err != nil {
		return nil, err
	}
	return cryptox.SealBlobAD([]byte(value), s.key, []byte(key))
}

func (s *Store) PutString(ctx context.Context, key, value string) error {
	sealed, err := s.seal(key, value)
	if err != nil {
		return err
	}
	return s.repo.Set(ctx, key, sealed)
}

// PutStrings writes all pairs in one transaction.
func (s *Store) PutStrings(ctx context.Context, kv map[string]string) error {
	sealed := make(map[string][]byte, len(kv))
	for k, v := range kv {
		b, err := s.seal(k, v)
		if err != nil {
			return err
		}
		sealed[k] = b
	}
	return dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		r := preferences.NewSQLiteRepository(tx)
		for k, b := range sealed {
			if err := r.Set(ctx, k, b); err != nil {
				return err
			}
		}
		return nil
	})
}

// Remove deletes key. Removing an absent key is not an error.
func (s *Store) Remove(ctx context.Context, key string) error {
	if err := checkKey(key); err != nil {
		return err
	}
	return s.repo.Delete(ctx, key)
}

// RemoveAll deletes every key in keys in one transaction.
func (s *Store) RemoveAll(ctx context.Context, keys []string) error {
	for _, k := range keys {
		if err := checkKey(k); err != nil {
			return err
		}
	}
	return dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		r := preferences.NewSQLiteRepository(tx)
		for _, k := range keys {
			if err := r.Delete(ctx, k); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *Store) Contains(ctx context.Context, key string) (bool, error) {
	if err := checkKey(key); err != nil {
		return false, err
	}
	raw, err := s.repo.Get(ctx, key)
	if err != nil {
		return false, err
	}
	return raw != nil, nil
}

// Keys lists stored keys, optionally restricted to those starting with
// prefix.
func (s *Store) Keys(ctx context.Context, prefix string) ([]string, error) {
	all, err := s.repo.Keys(ctx)
	if err != nil {
		return nil, err
	}
	keys := make([]string, 0, len(all))
	for _, k := range all {
		if k == canaryKey || !strings.HasPrefix(k, prefix) {
			continue
		}
		keys = append(keys, k)
	}
	return keys, nil
}

// Clear removes every value. The store stays open and usable.
func (s *Store) Clear(ctx context.Context) error {
	return dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		r := preferences.NewSQLiteRepository(tx)
		if err := r.Clear(ctx); err != nil {
			return err
		}
		return s.writeCanary(ctx, r)
	})
}

func (s *Store) Close() error {
	common.WipeByteArray(s.key)
	return s.db.Close()
}
