package migration

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	auditdomain "github.com/smallbiznis/backoffice/internal/audit/domain"
	authdomain "github.com/smallbiznis/backoffice/internal/auth/domain"
	featuredomain "github.com/smallbiznis/backoffice/internal/feature/domain"
	merchantdomain "github.com/smallbiznis/backoffice/internal/merchant/domain"
	roledomain "github.com/smallbiznis/backoffice/internal/role/domain"
	subscriptiondomain "github.com/smallbiznis/backoffice/internal/subscription/domain"
	userdomain "github.com/smallbiznis/backoffice/internal/user/domain"
	"gorm.io/gorm"
)

const migrationsDir = "sql"

//go:embed sql/*.sql
var embeddedMigrations embed.FS

// Models lists every table owned by the service, in dependency order.
func Models() []any {
	return []any{
		&featuredomain.Feature{},
		&roledomain.Role{},
		&roledomain.RoleFeature{},
		&merchantdomain.Merchant{},
		&userdomain.User{},
		&userdomain.UserRole{},
		&subscriptiondomain.Subscription{},
		&authdomain.Session{},
		&auditdomain.AuditLog{},
	}
}

// Migrate applies the embedded SQL migrations on postgres and falls back
// to gorm AutoMigrate for every other dialect.
func Migrate(conn *gorm.DB) error {
	if conn.Dialector.Name() != "postgres" {
		return AutoMigrate(conn)
	}
	sqlDB, err := conn.DB()
	if err != nil {
		return err
	}
	return RunMigrations(sqlDB)
}

func AutoMigrate(conn *gorm.DB) error {
	if err := conn.AutoMigrate(Models()...); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}
	return nil
}

func RunMigrations(db *sql.DB) error {
	if db == nil {
		return errors.New("migration database handle is required")
	}

	sub, err := fs.Sub(embeddedMigrations, migrationsDir)
	if err != nil {
		return fmt.Errorf("open migrations: %w", err)
	}

	source, err := iofs.New(sub, ".")
	if err != nil {
		return fmt.Errorf("create migration source: %w", err)
	}

	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("create migration driver: %w", err)
	}

	migrator, err := migrate.NewWithInstance("iofs", source, "postgres", driver)
	if err != nil {
		return fmt.Errorf("create migrator: %w", err)
	}

	upErr := migrator.Up()
	if upErr != nil && !errors.Is(upErr, migrate.ErrNoChange) {
		return fmt.Errorf("apply migrations: %w", upErr)
	}
	// Do not call migrator.Close here because it would close the shared *sql.DB.

	return nil
}
