package ssh

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"

	"golang.org/x/crypto/ssh"
)

type Session interface {
	Run(ctx context.Context, cmd string, stdout, stderr io.Writer) error
	CopyFile(ctx context.Context, content io.Reader, remotePath string, mode uint32) error
	FetchFile(ctx context.Context, remotePath string) ([]byte, error)
	ListDir(ctx context.Context, remotePath string) ([]string, error)
	Close() error
}

type session struct {
	conn *ssh.Client
	host Host
}

func newSession(conn *ssh.Client, host Host) (Session, error) {
	return &session{
		conn: conn,
		host: host,
	}, nil
}

// closeOnCancel closes c as soon as ctx is cancelled, interrupting whatever
// remote command runs on it. The returned stop function must be called once
// the command has finished.
func closeOnCancel(ctx context.Context, c io.Closer) (stop func()) {
	done := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			c.Close()
		case <-done:
		}
	}()
	return func() { close(done) }
}

func (s *session) Run(ctx context.Context, cmd string, stdout, stderr io.Writer) error {
	sess, err := s.conn.NewSession()
	if err != nil {
		return fmt.Errorf("failed to create SSH session: %w", err)
	}
	defer sess.Close()

	stop := closeOnCancel(ctx, sess)
	defer stop()

	sess.Stdout = stdout
	sess.Stderr = stderr

	if err := sess.Run(cmd); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("command failed: %w", err)
	}

	return nil
}

func (s *session) CopyFile(ctx context.Context, content io.Reader, remotePath string, mode uint32) error {
	// Read all content into memory first
	data, err := io.ReadAll(content)
	if err != nil {
		return fmt.Errorf("failed to read content: %w", err)
	}

	// Use atomic write: write to temp file, then move. The temp file sits
	// next to the target, so concurrent uploads into different directories
	// never collide.
	tmpPath := tempUploadPath(remotePath)

	sess, err := s.conn.NewSession()
	if err != nil {
		return fmt.Errorf("failed to create SSH session: %w", err)
	}
	defer sess.Close()

	stop := closeOnCancel(ctx, sess)
	defer stop()

	// Write content to temp file using cat
	stdin, err := sess.StdinPipe()
	if err != nil {
		return fmt.Errorf("failed to get stdin pipe: %w", err)
	}

	writeCmd := fmt.Sprintf("cat > %s && chmod %o %s", tmpPath, mode, tmpPath)
	if err := sess.Start(writeCmd); err != nil {
		return fmt.Errorf("failed to start write command: %w", err)
	}

	if _, err := stdin.Write(data); err != nil {
		stdin.Close()
		return fmt.Errorf("failed to write data: %w", err)
	}
	stdin.Close()

	if err := sess.Wait(); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("write command failed: %w", err)
	}

	// Move temp file to final location (atomic)
	mvCmd := fmt.Sprintf("mv %s %s", tmpPath, remotePath)
	if err := s.Run(ctx, mvCmd, io.Discard, io.Discard); err != nil {
		return fmt.Errorf("failed to move file to final location: %w", err)
	}

	return nil
}

func tempUploadPath(remotePath string) string {
	return remotePath + ".partial"
}

func (s *session) FetchFile(ctx context.Context, remotePath string) ([]byte, error) {
	var stdout bytes.Buffer
	if err := s.Run(ctx, fmt.Sprintf("cat %s", remotePath), &stdout, io.Discard); err != nil {
		return nil, fmt.Errorf("failed to fetch %s: %w", remotePath, err)
	}
	return stdout.Bytes(), nil
}

func (s *session) ListDir(ctx context.Context, remotePath string) ([]string, error) {
	var stdout bytes.Buffer
	if err := s.Run(ctx, fmt.Sprintf("ls -1 %s", remotePath), &stdout, io.Discard); err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", remotePath, err)
	}

	var names []string
	for _, line := range strings.Split(stdout.String(), "\n") {
		line = strings.TrimSpace(line)
		if line != "" {
			names = append(names, line)
		}
	}
	return names, nil
}

func (s *session) Close() error {
	// Connection is managed by the client, not individual sessions
	return nil
}
