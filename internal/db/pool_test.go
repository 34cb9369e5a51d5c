package db

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm/logger"
)

func TestIsUniqueViolation(t *testing.T) {
	t.Parallel()

	wrapped := fmt.Errorf("insert incident: %w", &pgconn.PgError{Code: "23505", ConstraintName: "incidents_dedupe_key_key"})
	constraint, ok := IsUniqueViolation(wrapped)
	if !ok || constraint != "incidents_dedupe_key_key" {
		t.Fatalf("expected unique violation, got ok=%v constraint=%q", ok, constraint)
	}

	if _, ok := IsUniqueViolation(&pgconn.PgError{Code: "23503"}); ok {
		t.Fatalf("foreign key violation must not count as unique violation")
	}
	if _, ok := IsUniqueViolation(errors.New("boom")); ok {
		t.Fatalf("plain error must not count as unique violation")
	}
}

func TestResolveGormLogLevel(t *testing.T) {
	t.Parallel()

	cases := []struct {
		level, env string
		want       logger.LogLevel
	}{
		{"debug", "prod", logger.Info},
		{"info", "prod", logger.Warn},
		{"error", "prod", logger.Error},
		{"silent", "prod", logger.Silent},
		{"weird", "local", logger.Warn},
		{"weird", "prod", logger.Error},
	}
	for _, tc := range cases {
		if got := resolveGormLogLevel(tc.level, tc.env); got != tc.want {
			t.Fatalf("resolveGormLogLevel(%q, %q) = %v, want %v", tc.level, tc.env, got, tc.want)
		}
	}
}

func TestNullableTextAndQualityDefault(t *testing.T) {
	t.Parallel()

	if nullableText("   ") != nil {
		t.Fatalf("expected blank text to be nil")
	}
	if got := nullableText(" Denver "); got == nil || *got != "Denver" {
		t.Fatalf("unexpected nullable text: %v", got)
	}
	if got := qualityOrDefault(""); got != "OK" {
		t.Fatalf("expected OK default, got %q", got)
	}
	if got := qualityOrDefault("needs_review"); got != "NEEDS_REVIEW" {
		t.Fatalf("expected upper-cased status, got %q", got)
	}
}

func TestIncidentHasArticle(t *testing.T) {
	t.Parallel()

	empty := ""
	body := "# Key Facts"
	if (Incident{}).HasArticle() {
		t.Fatalf("nil body must not count as article")
	}
	if (Incident{ArticleBody: &empty}).HasArticle() {
		t.Fatalf("empty body must not count as article")
	}
	if !(Incident{ArticleBody: &body}).HasArticle() {
		t.Fatalf("expected body to count as article")
	}
}

func TestCrashMigrationStepsOrder(t *testing.T) {
	t.Parallel()

	steps := crashMigrationSteps()
	if len(steps) != 3 {
		t.Fatalf("expected 3 migration steps, got %d", len(steps))
	}
	if !strings.Contains(steps[0].sql, "CREATE SCHEMA IF NOT EXISTS crash") {
		t.Fatalf("expected the first step to create the crash schema")
	}
	if len(steps[1].models) != len(autoMigrateModels()) || steps[1].sql != "" {
		t.Fatalf("expected the second step to auto-migrate models only")
	}
	if !strings.Contains(steps[2].sql, "incident_sources_incident_fk") {
		t.Fatalf("expected the last step to add the source foreign key")
	}
	for _, step := range steps {
		if step.name == "" {
			t.Fatalf("migration step without a name: %+v", step)
		}
	}
}
