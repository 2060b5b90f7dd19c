package commands

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"cipherdb/internal/crypto"
	"cipherdb/internal/domain"
)

// terminalConfirmer asks y/N questions on the terminal. Prompts are
// serialized so concurrent requests do not interleave.
type terminalConfirmer struct {
	mu    sync.Mutex
	in    *bufio.Reader
	out   io.Writer
	lines chan string
}

func newTerminalConfirmer(in io.Reader, out io.Writer) *terminalConfirmer {
	return &terminalConfirmer{in: bufio.NewReader(in), out: out}
}

// readLine returns the next input line, or ctx's error. A read left
// pending by a canceled prompt is picked up by the next one.
func (c *terminalConfirmer) readLine(ctx context.Context) (string, error) {
	if c.lines == nil {
		c.lines = make(chan string, 1)
		go func() {
			defer close(c.lines)
			for {
				line, err := c.in.ReadString('\n')
				if line != "" {
					c.lines <- line
				}
				if err != nil {
					return
				}
			}
		}()
	}
	select {
	case line, ok := <-c.lines:
		if !ok {
			return "", io.EOF
		}
		return strings.TrimSpace(line), nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func (c *terminalConfirmer) ask(ctx context.Context, question string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintf(c.out, "%s [y/N] ", question)
	line, err := c.readLine(ctx)
	if err == io.EOF {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	switch strings.ToLower(line) {
	case "y", "yes":
		return true, nil
	}
	return false, nil
}

func (c *terminalConfirmer) ConfirmSeedRequest(ctx context.Context, fp domain.Fingerprint) (bool, error) {
	return c.ask(ctx, fmt.Sprintf("Another device asks for this account's seed.\nFingerprint: %s\nSend the seed?", crypto.DisplayFingerprint(fp)))
}

func (c *terminalConfirmer) ConfirmGrant(ctx context.Context, p domain.GrantPrompt) (bool, error) {
	return c.ask(ctx, fmt.Sprintf("Share %q with %s (%s)?\nTheir fingerprint: %s\nContinue?",
		p.Database, p.Peer, access(p.ReadOnly), crypto.DisplayFingerprint(p.Fingerprint)))
}

func (c *terminalConfirmer) ConfirmAccept(ctx context.Context, p domain.GrantPrompt) (bool, error) {
	return c.ask(ctx, fmt.Sprintf("%s offers %q (%s).\nFingerprint: %s\nAccept?",
		p.Peer, p.Database, access(p.ReadOnly), crypto.DisplayFingerprint(p.Fingerprint)))
}

func access(readOnly bool) string {
	if readOnly {
		return "read-only"
	}
	return "read-write"
}
