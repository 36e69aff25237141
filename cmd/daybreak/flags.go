package main

import (
	"errors"
	"flag"
	"strings"
	"time"

	"github.com/0xRadioAc7iv/go-daybreak/core"
	"github.com/0xRadioAc7iv/go-daybreak/internal"
)

type serverFlags struct {
	file            string
	host            string
	port            int
	sync            bool
	syncInterval    time.Duration
	compactInterval time.Duration
	garbageRatio    float64
	logLevel        string
}

func parseFlags(args []string) (*serverFlags, error) {
	fs := flag.NewFlagSet("daybreak", flag.ContinueOnError)

	f := &serverFlags{}
	fs.StringVar(&f.file, "file", core.DefaultDatabaseFile, "Database file to serve")
	fs.StringVar(&f.host, "host", internal.DEFAULT_HOST, "Host to bind the TCP Server to")
	fs.IntVar(&f.port, "port", internal.DEFAULT_PORT, "Port to use for the TCP Server")
	fs.BoolVar(&f.sync, "sync", true, "Fsync the journal periodically")
	fs.DurationVar(&f.syncInterval, "sync-interval", core.DefaultSyncInterval, "Interval between fsyncs")
	fs.DurationVar(&f.compactInterval, "compact-interval", core.DefaultCompactInterval, "Interval between garbage checks (0 disables auto compaction)")
	fs.Float64Var(&f.garbageRatio, "garbage-ratio", core.DefaultGarbageRatio, "Share of dead records that triggers compaction")
	fs.StringVar(&f.logLevel, "log-level", "info", "Log level (debug, info, warn, error)")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if fs.NArg() > 0 {
		return nil, errors.New("unexpected arguments: " + strings.Join(fs.Args(), " "))
	}
	return f, nil
}

func (f *serverFlags) options() []core.Option {
	var opts []core.Option
	if f.sync {
		opts = append(opts, core.WithSyncInterval(f.syncInterval))
	}
	if f.compactInterval > 0 {
		opts = append(opts, core.WithAutoCompact(f.compactInterval, f.garbageRatio))
	}
	return opts
}
