package main

import (
	"context"
	"errors"
	"time"

	"github.com/target/opsconsole/config"
	"github.com/target/opsconsole/internal/bootstrap"
)

const defaultMigrationTimeout = 5 * time.Minute

func runResolve(c *commandContext, args []string) error {
	fs := newFlagSet(c, "resolve")
	if err := parseFlags(fs, args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return usagef("expected exactly one KEY")
	}
	console, err := c.consoleFor()
	if err != nil {
		return err
	}
	id, err := console.Resolver.Resolve(c.Ctx, fs.Arg(0))
	if err != nil {
		return err
	}
	writef(c.Stdout, "%s\t%s\t%s\t%s\n", id.Key, id.DisplayName(), id.Area, id.Role)
	return nil
}

func runMigrate(c *commandContext, args []string) error {
	fs := newFlagSet(c, "migrate")
	timeout := fs.Duration("timeout", defaultMigrationTimeout, "migration timeout")
	if err := parseFlags(fs, args); err != nil {
		return err
	}
	if c.Config.Store.Backend != config.StoreBackendPostgres {
		c.Logger.Warn("STORE_BACKEND is not postgres; migrating anyway", "backend", string(c.Config.Store.Backend))
	}

	ctx, cancel := context.WithTimeout(c.Ctx, *timeout)
	defer cancel()

	db, err := bootstrap.ConnectDB(ctx, bootstrap.DatabaseConfig{DBConfig: c.Config.Postgres, Logger: c.Logger})
	if err != nil {
		return err
	}
	applied, err := bootstrap.RunMigrations(ctx, db, c.Logger)
	if closeErr := db.Close(); closeErr != nil {
		err = errors.Join(err, closeErr)
	}
	if err != nil {
		return err
	}
	if len(applied) == 0 {
		writef(c.Stdout, "schema up to date\n")
		return nil
	}
	for _, v := range applied {
		writef(c.Stdout, "applied %s\n", v)
	}
	return nil
}
