package main

import (
	"context"
	"errors"
	"time"

	domainauth "github.com/target/opsconsole/internal/domain/auth"
	"github.com/target/opsconsole/internal/domain/capture"
	apperrors "github.com/target/opsconsole/internal/errors"
	"github.com/target/opsconsole/internal/service"
)

var errNotSignedIn = apperrors.InvalidStatef("not signed in")

func runWhoami(c *commandContext, args []string) error {
	if err := parseFlags(newFlagSet(c, "whoami"), args); err != nil {
		return err
	}
	console, err := c.consoleFor()
	if err != nil {
		return err
	}
	s, ok := console.Sessions.RestoreSession(c.Ctx)
	if !ok {
		return errNotSignedIn
	}
	printSession(c, s)
	return nil
}

func runLogin(c *commandContext, args []string) error {
	fs := newFlagSet(c, "login")
	key := fs.String("key", "", "employee key (prompted when empty)")
	secretFile := fs.String("secret-file", "", "read the secret from the first line of this file")
	if err := parseFlags(fs, args); err != nil {
		return err
	}
	if fs.NArg() > 0 {
		return usagef("unexpected argument %q", fs.Arg(0))
	}

	console, err := c.consoleFor()
	if err != nil {
		return err
	}
	k, secret, err := c.credentials(*key, *secretFile)
	if err != nil {
		return err
	}
	s, err := console.Sessions.Login(c.Ctx, k, secret)
	if err != nil {
		return err
	}
	printSignedIn(c, s)
	return nil
}

func (c *commandContext) credentials(key, secretFile string) (string, string, error) {
	var err error
	if key == "" {
		if key, err = c.promptLine("Key"); err != nil {
			return "", "", err
		}
	}
	var secret string
	if secretFile != "" {
		secret, err = readSecretFile(secretFile)
	} else {
		secret, err = c.promptSecret("Secret")
	}
	if err != nil {
		return "", "", err
	}
	return key, secret, nil
}

func runLogout(c *commandContext, args []string) error {
	if err := parseFlags(newFlagSet(c, "logout"), args); err != nil {
		return err
	}
	console, err := c.consoleFor()
	if err != nil {
		return err
	}
	console.Sessions.Logout(c.Ctx)
	writef(c.Stdout, "signed out\n")
	return nil
}

func runPasswd(c *commandContext, args []string) error {
	fs := newFlagSet(c, "passwd")
	key := fs.String("key", "", "key whose secret changes (defaults to the signed-in key)")
	if err := parseFlags(fs, args); err != nil {
		return err
	}

	console, err := c.consoleFor()
	if err != nil {
		return err
	}
	k := *key
	if k == "" {
		s, ok := console.Sessions.RestoreSession(c.Ctx)
		if !ok {
			return errNotSignedIn
		}
		k = s.Identity.Key
	} else {
		console.Sessions.RestoreSession(c.Ctx)
	}

	secret, err := c.promptSecret("New secret")
	if err != nil {
		return err
	}
	confirm, err := c.promptSecret("Repeat new secret")
	if err != nil {
		return err
	}
	if secret != confirm {
		return apperrors.ValidationField("secret", "secrets do not match")
	}
	if err := console.Sessions.ChangeSecret(c.Ctx, k, secret); err != nil {
		return err
	}
	writef(c.Stdout, "secret changed for %s\n", k)
	return nil
}

func runBiometric(c *commandContext, args []string) error {
	fs := newFlagSet(c, "biometric")
	timeout := fs.Duration("timeout", 2*time.Minute, "give up after this long")
	noFallback := fs.Bool("no-fallback", false, "fail instead of prompting for credentials")
	if err := parseFlags(fs, args); err != nil {
		return err
	}

	console, err := c.consoleFor()
	if err != nil {
		return err
	}
	login, err := console.Login()
	if err != nil {
		return err
	}
	unsubscribe := login.Machine().Subscribe(func(e capture.Event) {
		switch e.Kind {
		case capture.EventRetryScheduled:
			writef(c.Stderr, "capture failed (%v), retry %d scheduled\n", e.Err, e.Attempt)
		case capture.EventExhausted:
			writef(c.Stderr, "capture gave up after %d retries\n", e.Attempt)
		}
	})
	defer unsubscribe()

	ctx := c.Ctx
	if *timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, *timeout)
		defer cancel()
	}

	writef(c.Stderr, "look at the camera...\n")
	s, err := login.Biometric(ctx)
	if err == nil {
		printSignedIn(c, s)
		return nil
	}
	if !errors.Is(err, service.ErrFallbackToManual) || *noFallback {
		return err
	}

	writef(c.Stderr, "biometric sign-in unavailable, enter credentials\n")
	key, secret, err := c.credentials("", "")
	if err != nil {
		return err
	}
	s, err = login.SubmitCredentials(c.Ctx, key, secret)
	if err != nil {
		return err
	}
	printSignedIn(c, s)
	return nil
}

func printSignedIn(c *commandContext, s domainauth.Session) {
	writef(c.Stdout, "signed in as %s (%s, %s)\n", s.Identity.DisplayName(), s.Identity.Key, s.Identity.Role)
	if s.Identity.IsFirstLogin {
		writef(c.Stdout, "first sign-in: run `opsconsole passwd` to choose a new secret\n")
	}
}

func printSession(c *commandContext, s domainauth.Session) {
	writef(c.Stdout, "key:     %s\n", s.Identity.Key)
	writef(c.Stdout, "name:    %s\n", s.Identity.DisplayName())
	writef(c.Stdout, "role:    %s\n", s.Identity.Role)
	if s.Identity.Area != "" {
		writef(c.Stdout, "area:    %s\n", s.Identity.Area)
	}
	writef(c.Stdout, "method:  %s\n", s.AuthMethod)
	writef(c.Stdout, "since:   %s\n", s.EstablishedAt.Format(time.RFC3339))
	writef(c.Stdout, "session: %s\n", s.ID)
}
