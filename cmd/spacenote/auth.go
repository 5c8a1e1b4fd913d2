package main

import (
	"context"
	"fmt"
	"os"
	"syscall"

	"golang.org/x/term"

	"github.com/spacenote/spacenote/internal/app"
)

// login resolves a session token for the --username account. The password
// comes from SPACENOTE_PASSWORD or an interactive prompt.
func login(ctx context.Context, a *app.App) (string, error) {
	password := os.Getenv("SPACENOTE_PASSWORD")
	if password == "" {
		var err error
		password, err = promptPassword(fmt.Sprintf("Password for %s: ", usernameFlag))
		if err != nil {
			return "", err
		}
	}
	return a.Login(ctx, usernameFlag, password)
}

// promptPassword reads a password from the terminal without echo.
func promptPassword(prompt string) (string, error) {
	fmt.Fprint(os.Stderr, prompt)
	password, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("read password: %w", err)
	}
	return string(password), nil
}
