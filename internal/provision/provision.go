// Package provision pushes files onto freshly created instances over SSH.
// Connection establishment retries with exponential backoff because new
// instances accept connections some time after their address is assigned.
package provision

import (
	"context"
	"fmt"
	"math"
	"net"
	"os"
	"path"
	"time"

	"github.com/pkg/sftp"
	"golang.org/x/crypto/ssh"
)

const (
	DefaultPort        = 22
	DefaultMaxAttempts = 5

	connectTimeout = 30 * time.Second
	initialBackoff = 2 * time.Second
	maxBackoff     = 30 * time.Second
)

// TimeoutError reports that the target never accepted an SSH connection
// within the attempt budget.
type TimeoutError struct {
	Host     string
	Attempts int
	LastErr  error
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("provisioner gave up on %s after %d attempts: %v", e.Host, e.Attempts, e.LastErr)
}

func (e *TimeoutError) Unwrap() error { return e.LastErr }

// Request describes a single file push onto a remote host.
type Request struct {
	Host        string
	Port        int
	User        string
	Source      string
	Destination string
	// PrivateKeyPEM authenticates the connection. The material is held in
	// memory only for the duration of the push.
	PrivateKeyPEM []byte
	// MaxAttempts bounds connection retries; zero means DefaultMaxAttempts.
	MaxAttempts int
}

// DialFunc establishes an SSH connection. Tests substitute a fake.
type DialFunc func(network, addr string, config *ssh.ClientConfig) (*ssh.Client, error)

// Runner copies files to remote hosts over SFTP.
type Runner struct {
	dial DialFunc
	// sleep is swapped out in tests to avoid real backoff waits.
	sleep func(time.Duration)
}

func NewRunner() *Runner {
	return &Runner{dial: ssh.Dial, sleep: time.Sleep}
}

// NewRunnerWithDial returns a runner using a caller-supplied dialer and no
// backoff sleeps between attempts.
func NewRunnerWithDial(dial DialFunc) *Runner {
	return &Runner{dial: dial, sleep: func(time.Duration) {}}
}

// Run connects to the host described by req and copies Source to
// Destination. Connection failures are retried with exponential backoff up
// to req.MaxAttempts; exhaustion yields a *TimeoutError. Failures after
// the connection is up are not retried.
func (r *Runner) Run(ctx context.Context, req *Request) error {
	signer, err := ssh.ParsePrivateKey(req.PrivateKeyPEM)
	if err != nil {
		return fmt.Errorf("failed to parse private key: %w", err)
	}

	port := req.Port
	if port == 0 {
		port = DefaultPort
	}
	maxAttempts := req.MaxAttempts
	if maxAttempts == 0 {
		maxAttempts = DefaultMaxAttempts
	}

	clientConfig := &ssh.ClientConfig{
		User:            req.User,
		Auth:            []ssh.AuthMethod{ssh.PublicKeys(signer)},
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
		Timeout:         connectTimeout,
	}
	addr := net.JoinHostPort(req.Host, fmt.Sprintf("%d", port))

	var client *ssh.Client
	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		client, lastErr = r.dial("tcp", addr, clientConfig)
		if lastErr == nil {
			break
		}

		if attempt < maxAttempts-1 {
			backoff := time.Duration(float64(initialBackoff) * math.Pow(2, float64(attempt)))
			if backoff > maxBackoff {
				backoff = maxBackoff
			}
			r.sleep(backoff)
		}
	}
	if client == nil {
		return &TimeoutError{Host: req.Host, Attempts: maxAttempts, LastErr: lastErr}
	}
	defer client.Close()

	return r.push(client, req.Source, req.Destination)
}

func (r *Runner) push(client *ssh.Client, source, destination string) error {
	sftpClient, err := sftp.NewClient(client)
	if err != nil {
		return fmt.Errorf("failed to open SFTP session: %w", err)
	}
	defer sftpClient.Close()

	if dir := path.Dir(destination); dir != "." && dir != "/" {
		if err := sftpClient.MkdirAll(dir); err != nil {
			return fmt.Errorf("failed to create remote directory %s: %w", dir, err)
		}
	}

	local, err := os.Open(source)
	if err != nil {
		return fmt.Errorf("failed to open source file %s: %w", source, err)
	}
	defer local.Close()

	remote, err := sftpClient.Create(destination)
	if err != nil {
		return fmt.Errorf("failed to create remote file %s: %w", destination, err)
	}
	defer remote.Close()

	if _, err := remote.ReadFrom(local); err != nil {
		return fmt.Errorf("failed to copy %s to %s: %w", source, destination, err)
	}
	return nil
}
