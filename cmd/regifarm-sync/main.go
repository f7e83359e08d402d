package main

import (
	"context"
	"os"

	"github.com/PatrikBaldon/RegiFarm-sub002/internal/app"
	"github.com/PatrikBaldon/RegiFarm-sub002/internal/cli"
)

func main() {
	os.Exit(cli.Execute(context.Background(), cli.NewRootCmd(app.Options{})))
}
