package media

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"
)

// OutputStream identifies which pipe a line of tool output arrived on.
type OutputStream string

const (
	// StreamStdout marks lines read from the process's stdout.
	StreamStdout OutputStream = "stdout"
	// StreamStderr marks lines read from the process's stderr.
	StreamStderr OutputStream = "stderr"
)

// LineFunc receives each line of subprocess output as it arrives. It is
// called synchronously from the stream readers and must not block.
type LineFunc func(stream OutputStream, line string)

// Command describes one external process invocation.
type Command struct {
	Bin    string
	Args   []string
	Dir    string
	OnLine LineFunc
}

// CommandRunner runs one external process to completion, streaming its
// output line by line.
type CommandRunner interface {
	Run(ctx context.Context, cmd Command) error
}

// SubprocessError reports an external tool that exited abnormally, carrying
// the tail of its stderr for diagnosis.
type SubprocessError struct {
	Bin        string
	ExitCode   int
	StderrTail string
	Err        error
}

func (e *SubprocessError) Error() string {
	if e.StderrTail != "" {
		return fmt.Sprintf("%s failed (exit %d): %s", e.Bin, e.ExitCode, e.StderrTail)
	}
	return fmt.Sprintf("%s failed: %v", e.Bin, e.Err)
}

func (e *SubprocessError) Unwrap() error {
	return e.Err
}

// tailKeep bounds how much stderr is retained for error reporting.
const tailKeep = 4096

// ExecRunner implements CommandRunner on os/exec.
type ExecRunner struct{}

// Run starts the command, reads stdout and stderr concurrently until both
// close, then waits for exit. yt-dlp rewrites progress lines with carriage
// returns, so the readers split on CR as well as LF.
func (r *ExecRunner) Run(ctx context.Context, cmd Command) error {
	if cmd.Bin == "" {
		return errors.New("command binary is required")
	}

	proc := exec.CommandContext(ctx, cmd.Bin, cmd.Args...)
	proc.Dir = cmd.Dir

	stdoutPipe, err := proc.StdoutPipe()
	if err != nil {
		return fmt.Errorf("setup stdout pipe: %w", err)
	}
	stderrPipe, err := proc.StderrPipe()
	if err != nil {
		return fmt.Errorf("setup stderr pipe: %w", err)
	}

	if err := proc.Start(); err != nil {
		return fmt.Errorf("start %s: %w", cmd.Bin, err)
	}

	var tailMu sync.Mutex
	var stderrTail strings.Builder

	var g errgroup.Group
	read := func(stream OutputStream, pipe io.Reader) func() error {
		return func() error {
			scanner := bufio.NewScanner(pipe)
			scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
			scanner.Split(splitByNewlineOrCR)
			for scanner.Scan() {
				line := scanner.Text()
				if stream == StreamStderr {
					tailMu.Lock()
					appendTail(&stderrTail, line)
					tailMu.Unlock()
				}
				if cmd.OnLine != nil {
					cmd.OnLine(stream, line)
				}
			}
			return scanner.Err()
		}
	}
	g.Go(read(StreamStdout, stdoutPipe))
	g.Go(read(StreamStderr, stderrPipe))

	readErr := g.Wait()
	waitErr := proc.Wait()

	if waitErr != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}

		tailMu.Lock()
		tail := strings.TrimSpace(stderrTail.String())
		tailMu.Unlock()

		exitCode := -1
		var exitErr *exec.ExitError
		if errors.As(waitErr, &exitErr) {
			exitCode = exitErr.ExitCode()
		}
		return &SubprocessError{
			Bin:        cmd.Bin,
			ExitCode:   exitCode,
			StderrTail: tail,
			Err:        waitErr,
		}
	}
	if readErr != nil {
		return fmt.Errorf("read %s output: %w", cmd.Bin, readErr)
	}
	return nil
}

// splitByNewlineOrCR is a bufio.SplitFunc that treats both \n and \r as line
// terminators.
func splitByNewlineOrCR(data []byte, atEOF bool) (advance int, token []byte, err error) {
	for i := 0; i < len(data); i++ {
		if data[i] == '\n' || data[i] == '\r' {
			if i == 0 {
				return 1, nil, nil
			}
			return i + 1, data[:i], nil
		}
	}
	if atEOF && len(data) > 0 {
		return len(data), data, nil
	}
	return 0, nil, nil
}

func appendTail(b *strings.Builder, line string) {
	if b.Len() >= tailKeep {
		return
	}
	toWrite := line + "\n"
	if remain := tailKeep - b.Len(); len(toWrite) > remain {
		toWrite = toWrite[:remain]
	}
	b.WriteString(toWrite)
}
