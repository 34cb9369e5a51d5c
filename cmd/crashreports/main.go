package main

import (
	"os"

	"horse.fit/crashreports/internal/app"
)

func main() {
	os.Exit(app.Run(os.Args[1:]))
}
