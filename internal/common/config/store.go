package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"
)

type (
	// StoreConfig represents the key-value store client configuration
	StoreConfig struct {
		Type     string         `yaml:"type" toml:"type"`         // memory, redis or db
		Bucket   string         `yaml:"bucket" toml:"bucket"`     // namespace prepended to every key
		Redis    RedisConfig    `yaml:"redis" toml:"redis"`       // configuration for redis type
		Database DatabaseConfig `yaml:"database" toml:"database"` // configuration for db type
	}

	// RedisConfig represents the Redis connection used by the store client
	RedisConfig struct {
		ClusterType string `yaml:"cluster_type" toml:"cluster_type"` // single, sentinel or cluster
		Addr        string `yaml:"addr" toml:"addr"`                 // one or more addresses separated by ; or ,
		MasterName  string `yaml:"master_name" toml:"master_name"`   // sentinel master name
		Username    string `yaml:"username" toml:"username"`
		Password    string `yaml:"password" toml:"password"`
		DB          int    `yaml:"db" toml:"db"`
		Prefix      string `yaml:"prefix" toml:"prefix"` // key prefix inside redis
	}

	// DatabaseConfig represents the SQL database used by the store client
	DatabaseConfig struct {
		Type          string        `yaml:"type" toml:"type"`                     // mysql, postgres, sqlite
		Host          string        `yaml:"host" toml:"host"`                     // localhost
		Port          int           `yaml:"port" toml:"port"`                     // 3306 (for mysql), 5432 (for postgres)
		User          string        `yaml:"user" toml:"user"`                     // root (for mysql), postgres (for postgres)
		Password      string        `yaml:"password" toml:"password"`             // password
		DBName        string        `yaml:"dbname" toml:"dbname"`                 // database name, file path for sqlite
		SSLMode       string        `yaml:"sslmode" toml:"sslmode"`               // disable (for postgres)
		SweepInterval time.Duration `yaml:"sweep_interval" toml:"sweep_interval"` // how often expired rows are deleted
	}
)

// SetDefaults fills zero values with their defaults
func (c *StoreConfig) SetDefaults() {
	if c.Type == "" {
		c.Type = "memory"
	}
	if c.Redis.ClusterType == "" {
		c.Redis.ClusterType = "single"
	}
	if c.Redis.Addr == "" {
		c.Redis.Addr = "localhost:6379"
	}
	if c.Database.Type == "" {
		c.Database.Type = "sqlite"
	}
	if c.Database.DBName == "" && c.Database.Type == "sqlite" {
		c.Database.DBName = "./data/sessionkv.db"
	}
	if c.Database.SweepInterval == 0 {
		c.Database.SweepInterval = time.Minute
	}
}

// GetDSN returns the database connection string
func (c *DatabaseConfig) GetDSN() string {
	switch c.Type {
	case "postgres":
		return c.getPostgresDSN()
	case "mysql":
		return c.getMySQLDSN()
	case "sqlite":
		if c.DBName != ":memory:" {
			// Ensure the directory for the SQLite database exists.
			if err := os.MkdirAll(filepath.Dir(c.DBName), 0755); err != nil {
				panic(fmt.Errorf("failed to create directory for sqlite database: %w", err))
			}
		}
		return c.DBName // For SQLite, DBName is the file path
	default:
		return ""
	}
}

// getPostgresDSN returns PostgreSQL connection string
func (c *DatabaseConfig) getPostgresDSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.DBName, c.SSLMode)
}

// getMySQLDSN returns MySQL connection string
func (c *DatabaseConfig) getMySQLDSN() string {
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=utf8mb4&parseTime=True&loc=Local",
		c.User, c.Password, c.Host, c.Port, c.DBName)
}
