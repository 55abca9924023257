package commands

import (
	"context"
	"fmt"

	"github.com/nikhilbhutani/payrollflow/internal/database"
)

type MigrateCmd struct {
	Dir string `help:"Migrations directory (defaults to MIGRATIONS_PATH)"`
}

func (m *MigrateCmd) Run(ctx context.Context) error {
	cfg, db, err := connect(ctx)
	if err != nil {
		return err
	}
	defer db.Close()

	dir := m.Dir
	if dir == "" {
		dir = cfg.Database.MigrationsPath
	}
	if err := database.RunMigrations(ctx, db, dir); err != nil {
		return err
	}
	fmt.Println("migrations applied")
	return nil
}
