package main

import (
	"context"
	"log"
	"os"

	"github.com/dmitrijs2005/tokenkeeper/internal/buildinfo"
	"github.com/dmitrijs2005/tokenkeeper/internal/flagx"
	"github.com/dmitrijs2005/tokenkeeper/internal/server"
	"github.com/dmitrijs2005/tokenkeeper/internal/server/config"
)

func main() {

	args := os.Args[1:]
	positional := flagx.Positional(args, config.ValueFlags())

	// version and help need neither config nor storage
	if len(positional) == 0 || positional[0] == "help" {
		log.SetFlags(0)
		log.Print(server.Usage())
		return
	}
	if positional[0] == "version" {
		buildinfo.PrintBuildData(os.Stdout)
		return
	}

	ctx := context.Background()
	cfg := config.LoadConfig(args)
	app, err := server.NewApp(ctx, cfg)

	if err != nil {
		log.Printf("%v", err)
		os.Exit(1)
	}

	err = app.Execute(ctx, args)
	if cerr := app.Close(); cerr != nil {
		log.Printf("close error: %v", cerr)
	}

	if err != nil {
		log.Printf("%v", err)
		os.Exit(1)
	}
}
