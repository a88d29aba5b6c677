package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/askdb/askdb/internal/config"
	"github.com/askdb/askdb/internal/database"
	"github.com/askdb/askdb/internal/observability"
	"github.com/askdb/askdb/internal/seed"
	"github.com/askdb/askdb/internal/storage"
	s3store "github.com/askdb/askdb/internal/storage/s3"
)

func main() {
	force := flag.Bool("force", false, "recreate the demo tables even when the database already has tables")
	publish := flag.Bool("publish", false, "upload the seeded database file to the object store")
	createBucket := flag.Bool("create-bucket", false, "create the object store bucket when it is missing")
	flag.Parse()

	if err := config.LoadDotEnv(); err != nil {
		fmt.Fprintf(os.Stderr, "env file error: %v\n", err)
		os.Exit(1)
	}
	cfg, err := config.LoadFromEnv("askdb-seed")
	if err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		os.Exit(1)
	}
	logger := observability.NewLogger(cfg, os.Stderr)

	dialect, err := database.ParseDialect(cfg.Database.Dialect)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	db, err := database.Open(ctx, database.Config{Dialect: dialect, DSN: cfg.Database.DSN, MaxOpenConns: 1})
	if err != nil {
		fmt.Fprintf(os.Stderr, "database open error: %v\n", err)
		os.Exit(1)
	}

	applied, err := seed.New(db, dialect, logger).Apply(ctx, *force)
	_ = db.Close()
	if err != nil {
		fmt.Fprintf(os.Stderr, "seed failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("applied %d seed script(s)\n", applied)

	if !*publish {
		return
	}
	if !dialect.FileBacked() {
		fmt.Fprintf(os.Stderr, "cannot publish a %s database\n", dialect)
		os.Exit(1)
	}
	storeCfg := s3store.ConfigFrom(cfg.ObjectStore)
	storeCfg.AutoCreateBucket = *createBucket
	store, err := s3store.New(ctx, storeCfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "object store error: %v\n", err)
		os.Exit(1)
	}

	path := database.FilePath(cfg.Database.DSN)
	key := strings.TrimSpace(cfg.Snapshot.Key)
	if key == "" {
		key, err = storage.BuildSnapshotKey(string(dialect), filepath.Base(path), time.Now())
		if err != nil {
			fmt.Fprintf(os.Stderr, "snapshot key error: %v\n", err)
			os.Exit(1)
		}
	}
	info, err := store.PutFile(ctx, key, path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "publish failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("published %s (%d bytes)\n", info.Key, info.Size)
}
