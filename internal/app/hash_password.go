package app

import (
	"bufio"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"horse.fit/crashreports/internal/auth"
)

func runHashPassword(args []string) int {
	return hashPassword(args, os.Stdin, os.Stdout)
}

func hashPassword(args []string, stdin io.Reader, stdout io.Writer) int {
	fs := flag.NewFlagSet("hash-password", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	password := fs.String("password", "", "Password to hash (read from stdin when empty)")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}
	if fs.NArg() != 0 {
		fmt.Fprintln(os.Stderr, "hash-password does not accept positional args")
		return 2
	}

	value := *password
	if strings.TrimSpace(value) == "" {
		line, err := bufio.NewReader(stdin).ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			fmt.Fprintf(os.Stderr, "Failed to read password: %v\n", err)
			return 1
		}
		value = line
	}

	hash, err := auth.HashPassword(value)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to hash password: %v\n", err)
		return 2
	}
	fmt.Fprintln(stdout, hash)
	return 0
}
