package cli

import (
	"bufio"
	"context"
	"fmt"
)

func (a *App) getStatus() string {
	s := ""
	if a.config != nil && a.config.UserID != "" {
		s = a.config.UserID + " "
	}
	if a.Mode != "" {
		s = s + string(a.Mode)
	}
	if s != "" {
		s = fmt.Sprintf("(%s)", s)
	}
	return s
}

// Root runs the REPL on stdin until the user exits.
func (a *App) Root(ctx context.Context) {
	a.println("Welcome to cryptchat (type 'help' for commands)")
	if set, err := a.passwords.IsPasswordSet(ctx); err == nil && !set {
		a.println("No vault PIN yet; run 'setpin' to create one")
	}
	runREPL(ctx, a, a.getStatus, bufio.NewScanner(byteReader{a.reader}))
}

// byteReader feeds a Scanner one byte per Read so the scanner never buffers
// past the current line; prompts issued by commands read the rest from the
// same bufio.Reader.
type byteReader struct{ r *bufio.Reader }

func (b byteReader) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	c, err := b.r.ReadByte()
	if err != nil {
		return 0, err
	}
	p[0] = c
	return 1, nil
}
