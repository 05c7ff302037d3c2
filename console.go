package corplink

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"golang.org/x/term"
)

// Console is how the client talks to the operator during login and connect.
// Reads block until a line is available or the context is done.
type Console interface {
	ReadLine(ctx context.Context) (string, error)
	ReadSecret(ctx context.Context) (string, error)
	Display(msg string)
}

// TerminalConsole reads from stdin and writes to stdout.
// Secrets are read without echo when stdin is a terminal.
type TerminalConsole struct {
	in  *os.File
	out io.Writer

	reader     *bufio.Reader
	readerOnce sync.Once
}

func NewTerminalConsole() *TerminalConsole {
	return &TerminalConsole{in: os.Stdin, out: os.Stdout}
}

func (c *TerminalConsole) Display(msg string) {
	fmt.Fprintln(c.out, msg)
}

func (c *TerminalConsole) ReadLine(ctx context.Context) (string, error) {
	c.readerOnce.Do(func() { c.reader = bufio.NewReader(c.in) })

	return readAsync(ctx, func() (string, error) {
		line, err := c.reader.ReadString('\n')
		if err != nil && !(err == io.EOF && line != "") {
			return "", err
		}

		return strings.TrimSpace(line), nil
	})
}

func (c *TerminalConsole) ReadSecret(ctx context.Context) (string, error) {
	fd := int(c.in.Fd())

	if !term.IsTerminal(fd) {
		return c.ReadLine(ctx)
	}

	return readAsync(ctx, func() (string, error) {
		b, err := term.ReadPassword(fd)

		fmt.Fprintln(c.out)

		if err != nil {
			return "", err
		}

		return strings.TrimSpace(string(b)), nil
	})
}

// readAsync runs a blocking read. On cancellation the read keeps running
// and its result is dropped.
func readAsync(ctx context.Context, read func() (string, error)) (string, error) {
	type result struct {
		line string
		err  error
	}

	resCh := make(chan result, 1)

	go func() {
		line, err := read()
		resCh <- result{line: line, err: err}
	}()

	select {
	case <-ctx.Done():
		return "", ctx.Err()

	case res := <-resCh:
		return res.line, res.err
	}
}
