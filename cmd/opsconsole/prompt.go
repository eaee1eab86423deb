package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"
)

// promptLine prints label and reads one line from stdin.
func (c *commandContext) promptLine(label string) (string, error) {
	writef(c.Stderr, "%s: ", label)
	line, err := c.in.ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && line != "") {
		return "", fmt.Errorf("read %s: %w", strings.ToLower(label), err)
	}
	return strings.TrimSpace(line), nil
}

// promptSecret reads a secret without echo when stdin is a terminal, otherwise one line.
func (c *commandContext) promptSecret(label string) (string, error) {
	f, ok := c.Stdin.(*os.File)
	if !ok || !term.IsTerminal(int(f.Fd())) {
		return c.promptLine(label)
	}
	writef(c.Stderr, "%s: ", label)
	raw, err := term.ReadPassword(int(f.Fd()))
	writef(c.Stderr, "\n")
	if err != nil {
		return "", fmt.Errorf("read %s: %w", strings.ToLower(label), err)
	}
	return string(raw), nil
}

// readSecretFile returns the first line of path, trimmed.
func readSecretFile(path string) (string, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read secret file: %w", err)
	}
	secret, _, _ := strings.Cut(string(raw), "\n")
	return strings.TrimRight(secret, "\r"), nil
}
