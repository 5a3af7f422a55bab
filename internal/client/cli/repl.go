package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
)

// printlnFn is a test seam for user-facing output. In tests, replace it with a stub.
var printlnFn = fmt.Println

// execIface defines the minimal command surface the REPL needs to operate.
// The real App type satisfies this interface; tests can provide a lightweight stub.
type execIface interface {
	isLoggedIn() bool
	Register(ctx context.Context) error
	Verify(ctx context.Context) error
	Login(ctx context.Context) error
	Me(ctx context.Context) error
	Refresh(ctx context.Context) error
	Logout(ctx context.Context) error
	Forgot(ctx context.Context) error
	Reset(ctx context.Context) error
}

// runREPL reads commands line by line from reader and dispatches them to a.
// It returns on EOF or "exit"/"quit". Command errors are printed and the
// loop continues.
//
//	Not logged in: register, verify, login, forgot, reset, help, exit
//	Logged in:     me, refresh, logout, forgot, reset, help, exit
func runREPL(ctx context.Context, a execIface, statusFn func() string, reader *bufio.Reader) {
	commands := map[string]func(context.Context) error{
		"register": a.Register,
		"verify":   a.Verify,
		"login":    a.Login,
		"me":       a.Me,
		"refresh":  a.Refresh,
		"logout":   a.Logout,
		"forgot":   a.Forgot,
		"reset":    a.Reset,
	}

	for {
		printlnFn(fmt.Sprintf("ak %s> ", statusFn()))
		line, err := reader.ReadString('\n')
		if err != nil && (!errors.Is(err, io.EOF) || strings.TrimSpace(line) == "") {
			return
		}
		parts := strings.Fields(line)
		if len(parts) == 0 {
			continue
		}
		cmd := parts[0]

		switch cmd {
		case "help":
			if a.isLoggedIn() {
				printlnFn("Available commands: me, refresh, logout, forgot, reset, exit")
			} else {
				printlnFn("Available commands: register, verify, login, forgot, reset, exit")
			}

		case "exit", "quit":
			printlnFn("Bye!")
			return

		default:
			run, ok := commands[cmd]
			if !ok {
				printlnFn("Unknown command:", cmd)
				continue
			}
			if err := run(ctx); err != nil {
				printlnFn("Error:", err)
			}
		}
	}
}
