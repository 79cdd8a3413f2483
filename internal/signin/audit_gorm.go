package signin

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	sqliteDialector "github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var (
	// ErrUnsupportedDialect indicates that no GORM dialector is available for the scheme.
	ErrUnsupportedDialect = errors.New("attempt_store.unsupported_dialect")

	errEmptyDatabaseURL    = errors.New("attempt_store.empty_database_url")
	errSQLiteEmptyPath     = errors.New("attempt_store.sqlite.empty_path")
	errSQLiteInvalidURL    = errors.New("attempt_store.sqlite.invalid_url")
	errUnsupportedNoScheme = errors.New("attempt_store.unsupported_no_scheme")
)

// DatabaseAttemptStore persists sign-in attempt records using GORM.
type DatabaseAttemptStore struct {
	db          *gorm.DB
	driverLabel string
}

// Driver exposes the selected database driver label.
func (store *DatabaseAttemptStore) Driver() string {
	return store.driverLabel
}

type attemptDBRecord struct {
	AttemptID    string `gorm:"column:attempt_id;primaryKey"`
	Flow         string `gorm:"column:flow;index;not null"`
	Outcome      string `gorm:"column:outcome;index;not null"`
	Subject      string `gorm:"column:subject;not null;default:''"`
	ObservedUnix int64  `gorm:"column:observed_unix;index;not null"`
}

func (attemptDBRecord) TableName() string {
	return "signin_attempts"
}

// NewDatabaseAttemptStore constructs a GORM-backed store from a sqlite:// or
// postgres:// URL.
func NewDatabaseAttemptStore(ctx context.Context, databaseURL string) (*DatabaseAttemptStore, error) {
	if strings.TrimSpace(databaseURL) == "" {
		return nil, fmt.Errorf("attempt_store.open: %w", errEmptyDatabaseURL)
	}
	dialector, driverLabel, err := resolveDialector(databaseURL)
	if err != nil {
		return nil, err
	}
	gormDB, openErr := gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if openErr != nil {
		return nil, fmt.Errorf("attempt_store.open.%s: %w", driverLabel, openErr)
	}
	if migrateErr := gormDB.WithContext(ctx).AutoMigrate(&attemptDBRecord{}); migrateErr != nil {
		return nil, fmt.Errorf("attempt_store.migrate.%s: %w", driverLabel, migrateErr)
	}
	return &DatabaseAttemptStore{
		db:          gormDB,
		driverLabel: driverLabel,
	}, nil
}

// Append inserts an attempt record, filling the attempt id and timestamp when unset.
func (store *DatabaseAttemptStore) Append(ctx context.Context, record AttemptRecord) error {
	if record.AttemptID == "" {
		record.AttemptID = uuid.NewString()
	}
	if record.ObservedUnix == 0 {
		record.ObservedUnix = time.Now().UTC().Unix()
	}
	row := attemptDBRecord{
		AttemptID:    record.AttemptID,
		Flow:         string(record.Flow),
		Outcome:      record.Outcome,
		Subject:      record.Subject,
		ObservedUnix: record.ObservedUnix,
	}
	if err := store.db.WithContext(ctx).Create(&row).Error; err != nil {
		return fmt.Errorf("attempt_store.append.%s: %w", store.driverLabel, err)
	}
	return nil
}

// List returns the most recent attempt records, newest first.
func (store *DatabaseAttemptStore) List(ctx context.Context, limit int) ([]AttemptRecord, error) {
	if limit <= 0 {
		limit = 100
	}
	var rows []attemptDBRecord
	err := store.db.WithContext(ctx).
		Order("observed_unix DESC, attempt_id DESC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("attempt_store.list.%s: %w", store.driverLabel, err)
	}
	listed := make([]AttemptRecord, 0, len(rows))
	for _, row := range rows {
		listed = append(listed, AttemptRecord{
			AttemptID:    row.AttemptID,
			Flow:         FlowType(row.Flow),
			Outcome:      row.Outcome,
			Subject:      row.Subject,
			ObservedUnix: row.ObservedUnix,
		})
	}
	return listed, nil
}

func resolveDialector(databaseURL string) (gorm.Dialector, string, error) {
	parsed, err := url.Parse(databaseURL)
	if err != nil {
		return nil, "", fmt.Errorf("attempt_store.parse_url: %w", err)
	}
	if parsed.Scheme == "" {
		return nil, "", fmt.Errorf("attempt_store.dialect: %w", errUnsupportedNoScheme)
	}
	switch strings.ToLower(parsed.Scheme) {
	case "postgres", "postgresql":
		return postgres.Open(databaseURL), "postgres", nil
	case "sqlite", "sqlite3":
		dsn, dsnErr := buildSQLiteDSN(parsed)
		if dsnErr != nil {
			return nil, "", fmt.Errorf("attempt_store.sqlite: %w", dsnErr)
		}
		return sqliteDialector.Open(dsn), "sqlite", nil
	default:
		return nil, "", fmt.Errorf("attempt_store.dialect.%s: %w", strings.ToLower(parsed.Scheme), ErrUnsupportedDialect)
	}
}

func buildSQLiteDSN(parsed *url.URL) (string, error) {
	if parsed == nil {
		return "", errSQLiteInvalidURL
	}
	var builder strings.Builder
	switch {
	case parsed.Opaque != "":
		builder.WriteString(parsed.Opaque)
	case parsed.Host != "":
		builder.WriteString(parsed.Host)
		if parsed.Path != "" {
			if !strings.HasPrefix(parsed.Path, "/") {
				builder.WriteString("/")
			}
			builder.WriteString(parsed.Path)
		}
	default:
		builder.WriteString(parsed.Path)
	}
	if builder.Len() == 0 {
		return "", errSQLiteEmptyPath
	}
	if parsed.RawQuery != "" {
		builder.WriteString("?")
		builder.WriteString(parsed.RawQuery)
	}
	return builder.String(), nil
}
