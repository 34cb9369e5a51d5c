package db

import (
	"context"
	_ "embed"
	"fmt"
	"strings"
)

const crashSchema = "crash"

// pre_automigrate.sql creates the schema, pgcrypto and the enum types the
// models reference. post_automigrate.sql adds the source foreign key and the
// listing indexes. Unique indexes come from the model tags.
var (
	//go:embed sql/pre_automigrate.sql
	preAutoMigrateSQL string

	//go:embed sql/post_automigrate.sql
	postAutoMigrateSQL string
)

type migrationStep struct {
	name string
	sql  string
	// models are auto-migrated instead of running sql.
	models []any
}

func crashMigrationSteps() []migrationStep {
	return []migrationStep{
		{name: "sql/pre_automigrate.sql", sql: preAutoMigrateSQL},
		{name: "models", models: autoMigrateModels()},
		{name: "sql/post_automigrate.sql", sql: postAutoMigrateSQL},
	}
}

// migrateCrashSchema runs every step in order on each start. All scripts are
// idempotent.
func (p *Pool) migrateCrashSchema(ctx context.Context) error {
	if p == nil || p.gdb == nil {
		return fmt.Errorf("database pool is not initialized")
	}

	for _, step := range crashMigrationSteps() {
		if len(step.models) > 0 {
			if err := p.gdb.WithContext(ctx).AutoMigrate(step.models...); err != nil {
				return fmt.Errorf("auto-migrate %s models: %w", crashSchema, err)
			}
			continue
		}

		script := strings.TrimSpace(step.sql)
		if script == "" {
			continue
		}
		if err := p.gdb.WithContext(ctx).Exec(script).Error; err != nil {
			return fmt.Errorf("run %s migration %s: %w", crashSchema, step.name, err)
		}
	}
	return nil
}
