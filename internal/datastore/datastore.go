// Package datastore opens the relational database shared by the result cache
// and the preference table. SQLite is the default; MySQL is available for
// deployments that run several analyzers against one cache.
package datastore

import (
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"time"

	gomysql "github.com/go-sql-driver/mysql"
	"gorm.io/driver/mysql"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/tphakala/imagelens/internal/conf"
	"github.com/tphakala/imagelens/internal/errors"
	"github.com/tphakala/imagelens/internal/logger"
)

const slowQueryThreshold = 200 * time.Millisecond

// Manager owns one database connection.
type Manager interface {
	DB() *gorm.DB
	// Path returns the sqlite file or host:port/database for display
	Path() string
	Migrate(models ...any) error
	IsMySQL() bool
	Close() error
}

// Open connects to the backend selected by cache.backend.
func Open(settings *conf.Settings) (Manager, error) {
	switch settings.Cache.Backend {
	case "mysql":
		return NewMySQLManager(&settings.MySQL)
	case "sqlite", "":
		path := conf.ResolveDataPath(settings.Cache.Path, conf.ConfigFileUsed())
		return NewSQLiteManager(path)
	default:
		return nil, errors.Newf("unsupported database backend %q", settings.Cache.Backend).
			Component("datastore").
			Category(errors.CategoryConfiguration).
			Build()
	}
}

func gormConfig() *gorm.Config {
	return &gorm.Config{
		Logger: logger.NewGormLogger(GetLogger(), slowQueryThreshold),
	}
}

// SQLiteManager handles a single sqlite database file.
type SQLiteManager struct {
	db     *gorm.DB
	dbPath string
}

// NewSQLiteManager opens or creates the database at path.
func NewSQLiteManager(path string) (*SQLiteManager, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, errors.New(err).
				Component("datastore").
				Category(errors.CategoryFileIO).
				Context("path", path).
				Context("operation", "create_database_dir").
				Build()
		}
	}

	dsn := fmt.Sprintf("%s?_journal_mode=WAL&_busy_timeout=5000", path)
	db, err := gorm.Open(sqlite.Open(dsn), gormConfig())
	if err != nil {
		return nil, errors.New(err).
			Component("datastore").
			Category(errors.CategoryDatabase).
			Context("backend", "sqlite").
			Context("operation", "open").
			Build()
	}

	// sqlite allows one writer; a single connection avoids SQLITE_BUSY churn
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying database: %w", err)
	}
	sqlDB.SetMaxOpenConns(1)

	GetLogger().Info("sqlite database opened", logger.String("path", path))
	return &SQLiteManager{db: db, dbPath: path}, nil
}

func (m *SQLiteManager) DB() *gorm.DB  { return m.db }
func (m *SQLiteManager) Path() string  { return m.dbPath }
func (m *SQLiteManager) IsMySQL() bool { return false }

func (m *SQLiteManager) Migrate(models ...any) error {
	return migrate(m.db, "sqlite", models...)
}

func (m *SQLiteManager) Close() error {
	return closeDB(m.db)
}

// MySQLManager handles a MySQL database.
type MySQLManager struct {
	db       *gorm.DB
	location string
}

// MySQLDSN builds the driver connection string.
func MySQLDSN(s *conf.MySQLSettings) string {
	cfg := gomysql.NewConfig()
	cfg.User = s.Username
	cfg.Passwd = s.Password
	cfg.Net = "tcp"
	cfg.Addr = net.JoinHostPort(s.Host, strconv.Itoa(s.Port))
	cfg.DBName = s.Database
	cfg.ParseTime = true
	cfg.Params = map[string]string{"charset": "utf8mb4"}
	return cfg.FormatDSN()
}

// NewMySQLManager connects to the configured server.
func NewMySQLManager(s *conf.MySQLSettings) (*MySQLManager, error) {
	location := fmt.Sprintf("%s:%d/%s", s.Host, s.Port, s.Database)

	db, err := gorm.Open(mysql.Open(MySQLDSN(s)), gormConfig())
	if err != nil {
		return nil, errors.New(err).
			Component("datastore").
			Category(errors.CategoryDatabase).
			Context("backend", "mysql").
			Context("location", location).
			Context("operation", "open").
			Build()
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying database: %w", err)
	}
	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetMaxOpenConns(100)
	sqlDB.SetConnMaxLifetime(time.Hour)

	GetLogger().Info("mysql database opened", logger.String("location", location))
	return &MySQLManager{db: db, location: location}, nil
}

func (m *MySQLManager) DB() *gorm.DB  { return m.db }
func (m *MySQLManager) Path() string  { return m.location }
func (m *MySQLManager) IsMySQL() bool { return true }

func (m *MySQLManager) Migrate(models ...any) error {
	return migrate(m.db, "mysql", models...)
}

func (m *MySQLManager) Close() error {
	return closeDB(m.db)
}

func migrate(db *gorm.DB, backend string, models ...any) error {
	if err := db.AutoMigrate(models...); err != nil {
		return errors.New(err).
			Component("datastore").
			Category(errors.CategoryDatabase).
			Context("backend", backend).
			Context("operation", "auto_migrate").
			Build()
	}
	return nil
}

func closeDB(db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("failed to get underlying database: %w", err)
	}
	return sqlDB.Close()
}
