package app

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"horse.fit/crashreports/internal/cli"
	"horse.fit/crashreports/internal/db"
	"horse.fit/crashreports/internal/enrich"
	"horse.fit/crashreports/internal/globaltime"
	"horse.fit/crashreports/internal/incident"
)

var articleExtensions = map[string]struct{}{
	".md":       {},
	".markdown": {},
	".txt":      {},
}

type validateResult struct {
	Scanned     int
	OK          int
	NeedsReview int
	Failed      int
}

func (r *validateResult) add(status incident.QualityStatus) {
	r.Scanned++
	switch status {
	case incident.QualityOK:
		r.OK++
	case incident.QualityNeedsReview:
		r.NeedsReview++
	default:
		r.Failed++
	}
}

func runValidateArticle(args []string) int {
	fs := flag.NewFlagSet("validate-article", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	envLoader := cli.AddEnvFlag(fs, ".env", "Path to the .env file (only used with --slug)")
	file := fs.String("file", "", "Markdown article file to validate")
	dir := fs.String("dir", "", "Directory of .md/.markdown/.txt articles to validate")
	recursive := fs.Bool("recursive", true, "Recursively scan --dir")
	slug := fs.String("slug", "", "Validate the stored article of this incident")
	update := fs.Bool("update", false, "With --slug, store the recomputed quality status")
	timeout := fs.Duration("timeout", 20*time.Second, "Database timeout for --slug")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}

	modes := 0
	for _, value := range []string{*file, *dir, *slug} {
		if strings.TrimSpace(value) != "" {
			modes++
		}
	}
	if modes != 1 {
		fmt.Fprintln(os.Stderr, "exactly one of --file, --dir or --slug is required")
		return 2
	}
	if *update && strings.TrimSpace(*slug) == "" {
		fmt.Fprintln(os.Stderr, "--update requires --slug")
		return 2
	}

	if strings.TrimSpace(*slug) != "" {
		return validateStoredArticle(envLoader, strings.TrimSpace(*slug), *update, *timeout)
	}

	var files []string
	if strings.TrimSpace(*file) != "" {
		files = []string{strings.TrimSpace(*file)}
	} else {
		collected, err := collectArticleFiles(strings.TrimSpace(*dir), *recursive)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Validation setup failed: %v\n", err)
			return 1
		}
		files = collected
	}

	result := validateArticleFiles(files, os.Stdout)
	fmt.Printf("validate-article scanned=%d ok=%d needs_review=%d failed=%d\n",
		result.Scanned, result.OK, result.NeedsReview, result.Failed)

	if result.Scanned == 0 {
		fmt.Fprintln(os.Stderr, "Validation failed: no article files found")
		return 1
	}
	if result.Failed > 0 {
		return 1
	}
	return 0
}

func validateArticleFiles(files []string, out io.Writer) validateResult {
	var result validateResult
	for _, path := range files {
		raw, err := os.ReadFile(path)
		if err != nil {
			result.add(incident.QualityFailed)
			fmt.Fprintf(out, "FAILED %s: read failed: %v\n", path, err)
			continue
		}
		v := enrich.ValidateArticle(string(raw))
		result.add(v.Status())
		printValidation(out, path, v)
	}
	return result
}

func printValidation(out io.Writer, label string, v enrich.Validation) {
	fmt.Fprintf(out, "%s %s\n", v.Status(), label)
	for _, msg := range v.Errors {
		fmt.Fprintf(out, "  error: %s\n", msg)
	}
	for _, msg := range v.Warnings {
		fmt.Fprintf(out, "  warning: %s\n", msg)
	}
}

func validateStoredArticle(envLoader *cli.EnvLoader, slug string, update bool, timeout time.Duration) int {
	cfg, logger, code := loadRuntime(envLoader)
	if code != 0 {
		return code
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	pool, err := db.NewPool(ctx, cfg)
	if err != nil {
		logger.Error().Err(err).Msg("validate-article failed to connect to database")
		fmt.Fprintf(os.Stderr, "Failed to connect to database: %v\n", err)
		return 1
	}
	defer pool.Close()

	inc, err := pool.FindIncidentBySlug(ctx, slug)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			fmt.Fprintf(os.Stderr, "Incident %q not found\n", slug)
			return 1
		}
		fmt.Fprintf(os.Stderr, "Failed to load incident: %v\n", err)
		return 1
	}
	if !inc.HasArticle() {
		fmt.Fprintf(os.Stderr, "Incident %q has no article yet\n", slug)
		return 1
	}

	v := enrich.ValidateArticle(*inc.ArticleBody)
	printValidation(os.Stdout, slug, v)

	if update {
		if err := pool.UpdateQuality(ctx, inc.IncidentID, string(v.Status()), v.Notes(), globaltime.UTC()); err != nil {
			logger.Error().Err(err).Str("slug", slug).Msg("update article quality failed")
			fmt.Fprintf(os.Stderr, "Failed to store quality status: %v\n", err)
			return 1
		}
		logger.Info().Str("slug", slug).Str("status", string(v.Status())).Msg("article quality updated")
	}

	if v.Status() == incident.QualityFailed {
		return 1
	}
	return 0
}

func collectArticleFiles(root string, recursive bool) ([]string, error) {
	cleanRoot := strings.TrimSpace(root)
	if cleanRoot == "" {
		return nil, fmt.Errorf("directory path is empty")
	}

	info, err := os.Stat(cleanRoot)
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", cleanRoot, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%s is not a directory", cleanRoot)
	}

	var files []string
	err = filepath.WalkDir(cleanRoot, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if d.IsDir() {
			if path == cleanRoot {
				return nil
			}
			if !recursive || strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}
		if strings.HasPrefix(d.Name(), ".") {
			return nil
		}
		if _, ok := articleExtensions[strings.ToLower(filepath.Ext(d.Name()))]; ok {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk directory %s: %w", cleanRoot, err)
	}

	sort.Strings(files)
	return files, nil
}
