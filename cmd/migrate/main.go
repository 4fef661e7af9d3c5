package main

import (
	"context"
	"os"

	"wxdata/internal/cli"
)

func main() {
	os.Exit(cli.Execute(context.Background(), cli.NewMigrateCommand()))
}
