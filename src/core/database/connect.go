package database

import (
	"context"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"Postboard/src/core/config"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
	"gorm.io/gorm/schema"
)

const (
	DriverPostgres = "postgres"
	DriverMySQL    = "mysql"
	DriverSQLite   = "sqlite"
)

var DB *gorm.DB

// pool backs the postgres dialector; nil for the other drivers.
var pool *pgxpool.Pool

// ConnectDB opens the configured database, applies the schema and stores the
// handle in DB.
func ConnectDB(s config.Settings) {
	db, err := Open(context.Background(), s)
	if err != nil {
		log.Fatalf("Error connecting to the database: %v", err)
	}
	if err := Migrate(db, s.DBDriver); err != nil {
		log.Fatalf("Error migrating the database: %v", err)
	}
	DB = db
	fmt.Println("Database successfully connected!")
}

// Open returns a gorm handle for the driver named in s.DBDriver.
func Open(ctx context.Context, s config.Settings) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch s.DBDriver {
	case DriverPostgres:
		p, err := newPostgresPool(ctx, s)
		if err != nil {
			return nil, err
		}
		pool = p
		dialector = postgres.New(postgres.Config{Conn: stdlib.OpenDBFromPool(p)})
	case DriverMySQL:
		dialector = mysql.Open(mysqlDSN(s))
	case DriverSQLite:
		dsn := s.DBDSN
		if dsn == "" {
			dsn = "postboard.db"
		}
		dialector = sqlite.Open(dsn)
	default:
		return nil, fmt.Errorf("unsupported DB_DRIVER %q", s.DBDriver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		PrepareStmt:    false,
		TranslateError: true,
		Logger:         newLogger(s.DBLogLevel),
		NamingStrategy: schema.NamingStrategy{
			TablePrefix:   "",
			SingularTable: false,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", s.DBDriver, err)
	}

	if s.DBDriver == DriverMySQL {
		sqlDB, err := db.DB()
		if err != nil {
			return nil, err
		}
		sqlDB.SetMaxOpenConns(s.DBMaxConns)
		sqlDB.SetConnMaxLifetime(time.Hour)
	}
	return db, nil
}

// newPostgresPool builds the pgx pool that gorm and the migrator share.
func newPostgresPool(ctx context.Context, s config.Settings) (*pgxpool.Pool, error) {
	dsn := s.DBDSN
	if dsn == "" {
		dsn = fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=disable",
			s.DBHost, s.DBPort, s.DBUser, s.DBPassword, s.DBName)
	}
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	cfg.MaxConns = int32(s.DBMaxConns)
	cfg.ConnConfig.DefaultQueryExecMode = pgx.QueryExecModeCacheStatement
	cfg.ConnConfig.StatementCacheCapacity = 256

	p, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := p.Ping(ctx); err != nil {
		p.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return p, nil
}

func mysqlDSN(s config.Settings) string {
	if s.DBDSN != "" {
		return s.DBDSN
	}
	port := s.DBPort
	if port == "" || port == "5432" {
		port = "3306"
	}
	return fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?charset=utf8mb4&parseTime=True&loc=UTC",
		s.DBUser, s.DBPassword, s.DBHost, port, s.DBName)
}

func newLogger(level string) logger.Interface {
	lvl := logger.Warn
	switch strings.ToLower(level) {
	case "silent":
		lvl = logger.Silent
	case "error":
		lvl = logger.Error
	case "info":
		lvl = logger.Info
	}
	return logger.New(log.New(os.Stdout, "\r\n", log.LstdFlags), logger.Config{
		SlowThreshold:             200 * time.Millisecond,
		LogLevel:                  lvl,
		IgnoreRecordNotFoundError: true,
		Colorful:                  false,
	})
}

// Close releases the connection resources opened by ConnectDB.
func Close() {
	if DB != nil {
		if sqlDB, err := DB.DB(); err == nil {
			sqlDB.Close()
		}
	}
	if pool != nil {
		pool.Close()
	}
}
