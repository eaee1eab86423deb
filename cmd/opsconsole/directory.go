package main

import (
	"encoding/json"
	"strings"
	"text/tabwriter"

	"github.com/spf13/pflag"
	domainauth "github.com/target/opsconsole/internal/domain/auth"
)

func runDirectory(c *commandContext, args []string) error {
	if len(args) == 0 {
		return usagef("missing subcommand")
	}
	sub, rest := args[0], args[1:]
	switch sub {
	case "list":
		return runDirectoryList(c, rest)
	case "add":
		return runDirectoryWrite(c, "add", rest)
	case "update":
		return runDirectoryWrite(c, "update", rest)
	case "remove":
		return runDirectoryRemove(c, rest)
	default:
		return usagef("unknown subcommand %q", sub)
	}
}

func runDirectoryList(c *commandContext, args []string) error {
	fs := newFlagSet(c, "directory list")
	asJSON := fs.Bool("json", false, "print JSON instead of a table")
	if err := parseFlags(fs, args); err != nil {
		return err
	}
	console, err := c.consoleFor()
	if err != nil {
		return err
	}
	ids, err := console.Directory.Load(c.Ctx)
	if err != nil {
		return err
	}

	if *asJSON {
		enc := json.NewEncoder(c.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(ids)
	}
	tw := tabwriter.NewWriter(c.Stdout, 0, 0, 2, ' ', 0)
	writef(tw, "KEY\tNAME\tAREA\tROLE\n")
	for _, id := range ids {
		writef(tw, "%s\t%s\t%s\t%s\n", id.Key, id.DisplayName(), id.Area, id.Role)
	}
	return tw.Flush()
}

type identityFlags struct {
	key, first, last, area, role, email string
	version                             int64
}

func (f *identityFlags) register(fs *pflag.FlagSet, withVersion bool) {
	fs.StringVar(&f.key, "key", "", "employee key")
	fs.StringVar(&f.first, "first", "", "first name")
	fs.StringVar(&f.last, "last", "", "last name")
	fs.StringVar(&f.area, "area", "", "area or department")
	fs.StringVar(&f.role, "role", "", "MANAGER, SUPERVISOR, ADMIN or OPERATOR")
	fs.StringVar(&f.email, "email", "", "email address")
	if withVersion {
		fs.Int64Var(&f.version, "version", 0, "expected server version; enables conflict detection")
	}
}

func (f *identityFlags) identity() (domainauth.Identity, error) {
	role, ok := domainauth.ParseRole(f.role)
	if !ok {
		return domainauth.Identity{}, usagef("invalid --role %q", f.role)
	}
	id := domainauth.Identity{
		Key:       strings.TrimSpace(f.key),
		FirstName: f.first,
		LastName:  f.last,
		Area:      f.area,
		Role:      role,
		Email:     f.email,
		Version:   f.version,
	}
	return id, nil
}

// requireSession restores the persisted session; directory writes need a signed-in operator.
func (c *commandContext) requireSession() error {
	console, err := c.consoleFor()
	if err != nil {
		return err
	}
	if _, ok := console.Sessions.RestoreSession(c.Ctx); !ok {
		return errNotSignedIn
	}
	return nil
}

func runDirectoryWrite(c *commandContext, op string, args []string) error {
	fs := newFlagSet(c, "directory "+op)
	var f identityFlags
	f.register(fs, op == "update")
	if err := parseFlags(fs, args); err != nil {
		return err
	}
	id, err := f.identity()
	if err != nil {
		return err
	}
	if err := c.requireSession(); err != nil {
		return err
	}

	if op == "add" {
		stored, err := c.console.Directory.Create(c.Ctx, id)
		if err != nil {
			return err
		}
		writef(c.Stdout, "added %s (%s)\n", stored.Key, stored.DisplayName())
		return nil
	}
	if err := c.console.Directory.Update(c.Ctx, id); err != nil {
		return err
	}
	writef(c.Stdout, "updated %s\n", id.Key)
	return nil
}

func runDirectoryRemove(c *commandContext, args []string) error {
	fs := newFlagSet(c, "directory remove")
	if err := parseFlags(fs, args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return usagef("expected exactly one KEY")
	}
	if err := c.requireSession(); err != nil {
		return err
	}
	key := fs.Arg(0)
	if err := c.console.Directory.Remove(c.Ctx, key); err != nil {
		return err
	}
	writef(c.Stdout, "removed %s\n", key)
	return nil
}
