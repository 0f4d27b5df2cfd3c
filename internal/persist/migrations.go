package persist

import (
	"context"
	"embed"
	"fmt"

	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	"go.uber.org/zap"
)

//go:embed migrations/*.sql
var migrations embed.FS

// versionTable keeps the journal's goose history apart from any other
// application sharing the database.
const versionTable = "coreloop_journal_version"

// RunMigrations applies all pending journal migrations.
func RunMigrations(ctx context.Context, db *DB) error {
	goose.SetLogger(gooseLogger{db.log.Sugar()})
	goose.SetBaseFS(migrations)
	goose.SetTableName(versionTable)
	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("set dialect: %w", err)
	}

	sqlDB := stdlib.OpenDBFromPool(db.Pool)
	defer sqlDB.Close()

	if err := goose.UpContext(ctx, sqlDB, "migrations"); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	return nil
}

// gooseLogger routes goose output to zap at debug level.
type gooseLogger struct {
	log *zap.SugaredLogger
}

func (l gooseLogger) Fatalf(format string, v ...interface{}) { l.log.Fatalf(format, v...) }
func (l gooseLogger) Printf(format string, v ...interface{}) { l.log.Debugf(format, v...) }
