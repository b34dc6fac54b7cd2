package cli

import (
	"bufio"
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/dmitrijs2005/cryptchat/internal/client/messaging"
)

// printlnFn is a test seam for user-facing output. In tests, replace it with a stub.
var printlnFn = fmt.Println

// execIface defines the minimal command surface the REPL needs to operate.
// The real App type satisfies this interface; tests can provide a lightweight stub.
type execIface interface {
	isUnlocked() bool

	SetPIN(ctx context.Context) error
	Unlock(ctx context.Context) error
	Lock(ctx context.Context) error
	ChangePIN(ctx context.Context) error
	Reset(ctx context.Context) error

	AddImage(ctx context.Context, path string) error
	List(ctx context.Context) error
	Thumb(ctx context.Context, id, dest string) error
	Show(ctx context.Context, id string) error
	Export(ctx context.Context, id string) error
	Move(ctx context.Context, id string) error
	Delete(ctx context.Context, id string) error
	Biometric(ctx context.Context, action string) error

	NewConversation(ctx context.Context, peer string) error
	DHGen(ctx context.Context, peer string) error
	DHAgree(ctx context.Context, peer, peerPublic string) error
	Send(ctx context.Context, peer, text string, opts messaging.SendOptions) error
	SendImage(ctx context.Context, peer, path string, opts messaging.SendOptions) error
	History(ctx context.Context, peer string, limit int) error
	Encrypt(ctx context.Context, peer, text string) error
	Decrypt(ctx context.Context, peer, ciphertext, iv string) error
	Forget(ctx context.Context, peer string) error
}

const (
	helpLocked = "Available commands: setpin, unlock, (l)ist, bio unlock|on|off|status, reset, " +
		"newconv, dhgen, dhagree, send, sendimg, history, encrypt, decrypt, forget, exit"
	helpUnlocked = "Available commands: add, (l)ist, show, thumb, export, move, delete, changepin, lock, " +
		"bio, reset, newconv, dhgen, dhagree, send, sendimg, history, encrypt, decrypt, forget, exit"
)

// usage lists the argument shape of commands that take arguments.
var usage = map[string]string{
	"add":     "add <path>",
	"thumb":   "thumb <id> [dest]",
	"show":    "show <id>",
	"export":  "export <id>",
	"move":    "move <id>",
	"delete":  "delete <id>",
	"newconv": "newconv <peer>",
	"dhgen":   "dhgen <peer>",
	"dhagree": "dhagree <peer> <public-key>",
	"send":    "send <peer> [once] [ttl=1h] [text...]",
	"sendimg": "sendimg <peer> [once] [ttl=1h] <path>",
	"history": "history <peer> [limit]",
	"encrypt": "encrypt <peer> <text...>",
	"decrypt": "decrypt <peer> <ciphertext> <iv>",
	"forget":  "forget <peer>",
}

// runREPL starts a simple read–eval–print loop for the cryptchat CLI.
//
// It reads a line from the provided scanner, parses the first token as the
// command, and dispatches to methods on 'a'. Commands given too few
// arguments print their usage. The loop exits on scanner EOF or when the
// user types "exit" or "quit".
//
// Any errors returned by command handlers are ignored here; handlers report
// their own errors. This keeps the REPL loop resilient and focused on I/O.
func runREPL(ctx context.Context, a execIface, statusFn func() string, scanner *bufio.Scanner) {
	for {
		printlnFn(fmt.Sprintf("cc %s> ", statusFn()))
		if !scanner.Scan() {
			return
		}
		parts := strings.Fields(scanner.Text())
		if len(parts) == 0 {
			continue
		}
		cmd, args := parts[0], parts[1:]

		need := func(n int) bool {
			if len(args) < n {
				printlnFn("Usage:", usage[cmd])
				return false
			}
			return true
		}

		switch cmd {
		case "help":
			if a.isUnlocked() {
				printlnFn(helpUnlocked)
			} else {
				printlnFn(helpLocked)
			}

		case "setpin":
			_ = a.SetPIN(ctx)
		case "unlock":
			_ = a.Unlock(ctx)
		case "lock":
			_ = a.Lock(ctx)
		case "changepin":
			_ = a.ChangePIN(ctx)
		case "reset":
			_ = a.Reset(ctx)

		case "add":
			if need(1) {
				_ = a.AddImage(ctx, strings.Join(args, " "))
			}
		case "l", "list":
			_ = a.List(ctx)
		case "thumb":
			if need(1) {
				dest := ""
				if len(args) > 1 {
					dest = args[1]
				}
				_ = a.Thumb(ctx, args[0], dest)
			}
		case "show":
			if need(1) {
				_ = a.Show(ctx, args[0])
			}
		case "export":
			if need(1) {
				_ = a.Export(ctx, args[0])
			}
		case "move":
			if need(1) {
				_ = a.Move(ctx, args[0])
			}
		case "delete":
			if need(1) {
				_ = a.Delete(ctx, args[0])
			}
		case "bio":
			action := ""
			if len(args) > 0 {
				action = args[0]
			}
			_ = a.Biometric(ctx, action)

		case "newconv":
			if need(1) {
				_ = a.NewConversation(ctx, args[0])
			}
		case "dhgen":
			if need(1) {
				_ = a.DHGen(ctx, args[0])
			}
		case "dhagree":
			if need(2) {
				_ = a.DHAgree(ctx, args[0], args[1])
			}
		case "send", "sendimg":
			if !need(1) {
				continue
			}
			opts, rest, err := parseSendFlags(args[1:])
			if err != nil {
				printlnFn("Bad option:", err)
				continue
			}
			if cmd == "send" {
				_ = a.Send(ctx, args[0], strings.Join(rest, " "), opts)
				continue
			}
			if len(rest) == 0 {
				printlnFn("Usage:", usage[cmd])
				continue
			}
			_ = a.SendImage(ctx, args[0], strings.Join(rest, " "), opts)
		case "history":
			if need(1) {
				limit := 0
				if len(args) > 1 {
					n, err := strconv.Atoi(args[1])
					if err != nil {
						printlnFn("Usage:", usage[cmd])
						continue
					}
					limit = n
				}
				_ = a.History(ctx, args[0], limit)
			}
		case "encrypt":
			if need(2) {
				_ = a.Encrypt(ctx, args[0], strings.Join(args[1:], " "))
			}
		case "decrypt":
			if need(3) {
				_ = a.Decrypt(ctx, args[0], args[1], args[2])
			}
		case "forget":
			if need(1) {
				_ = a.Forget(ctx, args[0])
			}

		case "exit", "quit":
			printlnFn("Bye!")
			return

		default:
			printlnFn("Unknown command:", cmd)
		}
	}
}
