package kv

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/amoylab/sessionkv/internal/common/config"

	"github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"
)

// DatabaseType represents the supported database types
type DatabaseType string

const (
	PostgreSQL DatabaseType = "postgres"
	MySQL      DatabaseType = "mysql"
	SQLite     DatabaseType = "sqlite"
)

// ErrInvalidDatabaseType is returned when an invalid database type is provided
var ErrInvalidDatabaseType = gorm.ErrInvalidDB

// Entry is the row layout of the kv_entries table. ExpiresAt holds unix
// milliseconds, zero meaning no expiry.
type Entry struct {
	Key       string `gorm:"column:key;primaryKey;size:255"`
	Value     []byte `gorm:"column:value"`
	Version   uint64 `gorm:"column:version;not null"`
	ExpiresAt int64  `gorm:"column:expires_at;not null;default:0;index"`
}

func (Entry) TableName() string {
	return "kv_entries"
}

// DBClient implements Client on a SQL table through gorm
type DBClient struct {
	logger *zap.Logger
	db     *gorm.DB
	now    func() time.Time

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

var _ Client = (*DBClient)(nil)

// NewDBClient opens the configured database, migrates the table and starts
// the expiry sweeper when sweepInterval is positive
func NewDBClient(logger *zap.Logger, cfg *config.DatabaseConfig) (*DBClient, error) {
	logger = logger.Named("kv.db")

	var dialector gorm.Dialector
	switch DatabaseType(cfg.Type) {
	case PostgreSQL:
		dialector = postgres.Open(cfg.GetDSN())
	case MySQL:
		dialector = mysql.Open(cfg.GetDSN())
	case SQLite:
		dialector = sqlite.Open(cfg.GetDSN())
	default:
		return nil, ErrInvalidDatabaseType
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if DatabaseType(cfg.Type) == SQLite {
		// every sqlite connection sees its own :memory: database
		sqlDB, err := db.DB()
		if err != nil {
			return nil, err
		}
		sqlDB.SetMaxOpenConns(1)
	}

	return newDBClient(logger, db, cfg.SweepInterval)
}

func newDBClient(logger *zap.Logger, db *gorm.DB, sweepInterval time.Duration) (*DBClient, error) {
	// Auto migrate the schema
	if err := db.AutoMigrate(&Entry{}); err != nil {
		return nil, fmt.Errorf("failed to migrate kv_entries: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	c := &DBClient{
		logger: logger,
		db:     db,
		now:    time.Now,
		cancel: cancel,
	}
	if sweepInterval > 0 {
		c.wg.Add(1)
		go c.sweepLoop(ctx, sweepInterval)
	}
	return c, nil
}

// rowVersion keeps versions within a signed BIGINT
func rowVersion(avoid Version) Version {
	for {
		if v := randomVersion(avoid) & math.MaxInt64; v != 0 && v != avoid {
			return v
		}
	}
}

func (c *DBClient) expiresAt(ttl time.Duration) int64 {
	if ttl <= 0 {
		return 0
	}
	return c.now().Add(ttl).UnixMilli()
}

// live restricts a query to rows that have not expired
func (c *DBClient) live(tx *gorm.DB) *gorm.DB {
	return tx.Where("expires_at = 0 OR expires_at > ?", c.now().UnixMilli())
}

func byKey(key string) map[string]any {
	return map[string]any{"key": key}
}

func (c *DBClient) Get(ctx context.Context, key string) (*Item, error) {
	var e Entry
	err := c.live(c.db.WithContext(ctx).Where(byKey(key))).First(&e).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrKeyNotFound
		}
		return nil, err
	}
	return &Item{Value: e.Value, Version: Version(e.Version)}, nil
}

func (c *DBClient) Insert(ctx context.Context, key string, value []byte, ttl time.Duration) (Version, error) {
	v := rowVersion(0)
	err := c.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// an expired row still holds the primary key until the sweeper runs
		if err := tx.Where(byKey(key)).
			Where("expires_at <> 0 AND expires_at <= ?", c.now().UnixMilli()).
			Delete(&Entry{}).Error; err != nil {
			return err
		}
		res := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&Entry{
			Key:       key,
			Value:     value,
			Version:   uint64(v),
			ExpiresAt: c.expiresAt(ttl),
		})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrKeyExists
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return v, nil
}

func (c *DBClient) Upsert(ctx context.Context, key string, value []byte, ttl time.Duration) (Version, error) {
	v := rowVersion(0)
	err := c.db.WithContext(ctx).Clauses(clause.OnConflict{UpdateAll: true}).Create(&Entry{
		Key:       key,
		Value:     value,
		Version:   uint64(v),
		ExpiresAt: c.expiresAt(ttl),
	}).Error
	if err != nil {
		return 0, err
	}
	return v, nil
}

func (c *DBClient) CompareAndSwap(ctx context.Context, key string, value []byte, ttl time.Duration, expected Version) (Version, error) {
	v := rowVersion(expected)
	res := c.live(c.db.WithContext(ctx).Model(&Entry{}).
		Where(map[string]any{"key": key, "version": uint64(expected)})).
		Updates(map[string]any{
			"value":      value,
			"version":    uint64(v),
			"expires_at": c.expiresAt(ttl),
		})
	if res.Error != nil {
		return 0, res.Error
	}
	if res.RowsAffected == 0 {
		if _, err := c.Get(ctx, key); err != nil {
			return 0, err
		}
		return 0, ErrVersionMismatch
	}
	return v, nil
}

func (c *DBClient) Remove(ctx context.Context, key string) error {
	res := c.live(c.db.WithContext(ctx).Where(byKey(key))).Delete(&Entry{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrKeyNotFound
	}
	return nil
}

func (c *DBClient) Touch(ctx context.Context, key string, ttl time.Duration) error {
	res := c.live(c.db.WithContext(ctx).Model(&Entry{}).Where(byKey(key))).
		Update("expires_at", c.expiresAt(ttl))
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		// mysql reports zero affected rows when the value is unchanged
		_, err := c.Get(ctx, key)
		return err
	}
	return nil
}

// Sweep deletes expired rows and returns how many were removed
func (c *DBClient) Sweep(ctx context.Context) (int64, error) {
	res := c.db.WithContext(ctx).
		Where("expires_at <> 0 AND expires_at <= ?", c.now().UnixMilli()).
		Delete(&Entry{})
	return res.RowsAffected, res.Error
}

func (c *DBClient) sweepLoop(ctx context.Context, interval time.Duration) {
	defer c.wg.Done()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := c.Sweep(ctx)
			if err != nil {
				if ctx.Err() == nil {
					c.logger.Warn("failed to sweep expired entries", zap.Error(err))
				}
				continue
			}
			if n > 0 {
				c.logger.Debug("swept expired entries", zap.Int64("count", n))
			}
		}
	}
}

func (c *DBClient) Close() error {
	c.cancel()
	c.wg.Wait()
	sqlDB, err := c.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
