package app

import (
	"fmt"
	"os"
	"strings"
)

// Run executes the CLI command and returns a process exit code.
func Run(args []string) int {
	if len(args) == 0 {
		printUsage()
		return 2
	}

	switch strings.ToLower(strings.TrimSpace(args[0])) {
	case "help", "--help", "-h":
		printUsage()
		return 0
	case "health":
		return runHealth(args[1:])
	case "ingest":
		return runIngest(args[1:])
	case "enrich", "worker":
		return runEnrich(args[1:])
	case "backfill":
		return runBackfill(args[1:])
	case "validate-article":
		return runValidateArticle(args[1:])
	case "serve":
		return runServe(args[1:])
	case "schedule":
		return runSchedule(args[1:])
	case "hash-password":
		return runHashPassword(args[1:])
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n\n", args[0])
		printUsage()
		return 2
	}
}

func printUsage() {
	fmt.Fprintln(os.Stderr, "crashreports CLI")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "Usage:")
	fmt.Fprintln(os.Stderr, "  crashreports <command> [flags]")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "Commands:")
	fmt.Fprintln(os.Stderr, "  health            Verify database connectivity")
	fmt.Fprintln(os.Stderr, "  ingest            Fetch feeds once and upsert accident incidents")
	fmt.Fprintln(os.Stderr, "  enrich            Consume enrichment jobs, or enrich one incident with --incident")
	fmt.Fprintln(os.Stderr, "  worker            Alias for enrich")
	fmt.Fprintln(os.Stderr, "  backfill          Generate articles for incidents missing one")
	fmt.Fprintln(os.Stderr, "  validate-article  Check an article file or a stored incident article")
	fmt.Fprintln(os.Stderr, "  serve             Start Echo API server")
	fmt.Fprintln(os.Stderr, "  schedule          Run ingest and backfill on their cron specs")
	fmt.Fprintln(os.Stderr, "  hash-password     Print a bcrypt hash for ADMIN_PASSWORD_HASH")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "Use \"crashreports <command> -h\" for command-specific flags.")
}
