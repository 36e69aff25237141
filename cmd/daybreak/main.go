package main

import (
	"context"
	"fmt"
	"os"

	"github.com/0xRadioAc7iv/go-daybreak/core"
	"github.com/0xRadioAc7iv/go-daybreak/internal/server"
	"github.com/0xRadioAc7iv/go-daybreak/internal/utils"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, "daybreak:", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	flags, err := parseFlags(args)
	if err != nil {
		return err
	}

	log, err := utils.NewLogger(flags.logLevel)
	if err != nil {
		return err
	}
	defer log.Sync()

	registry := core.NewRegistry()
	defer func() {
		if err := registry.CloseAll(); err != nil {
			log.Errorf("closing databases: %v", err)
		}
	}()

	opts := append(flags.options(), core.WithLogger(log), core.WithRegistry(registry))
	db, err := core.Open(flags.file, opts...)
	if err != nil {
		return err
	}

	ln, err := server.Listen(flags.host, flags.port)
	if err != nil {
		return err
	}
	log.Infof("serving %s on %s, press Ctrl+C to exit", db.Path(), ln.Addr())

	ctx, stop := utils.ContextWithProcessInterruptOrKill(context.Background())
	defer stop()

	handler := server.NewHandler(db, log)
	if err := server.Serve(ctx, ln, log, handler.ServeConn); err != nil {
		return err
	}
	log.Infof("shutting down")
	return nil
}
