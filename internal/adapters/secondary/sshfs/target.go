package sshfs

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"

	"edge-deploy-service/internal/core/domain"
	ports "edge-deploy-service/internal/core/ports/output"
)

const retryBackoff = 2 * time.Second

// HostKeyPolicy decides how server host keys are checked.
type HostKeyPolicy struct {
	KnownHostsPath string
	// Insecure accepts any host key. Only meant for lab devices.
	Insecure bool
}

func (p HostKeyPolicy) callback() (ssh.HostKeyCallback, error) {
	if p.Insecure {
		return ssh.InsecureIgnoreHostKey(), nil //nolint:gosec // opt-in
	}
	cb, err := knownhosts.New(expandHome(p.KnownHostsPath))
	if err != nil {
		return nil, fmt.Errorf("load known_hosts %s: %w", p.KnownHostsPath, err)
	}
	return cb, nil
}

// sshTarget reaches an edge device over SSH and speaks SFTP to it.
type sshTarget struct {
	desc     domain.Target
	hostKeys HostKeyPolicy
}

var _ ports.Target = (*sshTarget)(nil)

func (t *sshTarget) Descriptor() domain.Target {
	return t.desc
}

// Connect dials the device, retrying transient network failures up to the
// target's retry budget. Authentication and host key failures are returned
// immediately.
func (t *sshTarget) Connect(ctx context.Context) (ports.RemoteFS, error) {
	auth, err := authMethods(t.desc)
	if err != nil {
		return nil, err
	}
	hostKeyCallback, err := t.hostKeys.callback()
	if err != nil {
		return nil, err
	}

	cfg := &ssh.ClientConfig{
		User:            t.desc.User,
		Auth:            auth,
		HostKeyCallback: hostKeyCallback,
		Timeout:         t.desc.Timeout,
	}

	logger := log.WithField("target", t.desc.String())

	var lastErr error
	for attempt := 0; attempt <= t.desc.Retries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(retryBackoff):
			}
		}

		client, err := dial(ctx, t.desc.Address(), cfg)
		if err == nil {
			remote, err := newRemoteFS(client)
			if err != nil {
				client.Close()
				return nil, err
			}
			logger.WithField("attempt", attempt+1).Debug("connected to target")
			return remote, nil
		}
		if isAuthError(err) {
			return nil, fmt.Errorf("%w: %s@%s: %v", domain.ErrAuthenticationFailed, t.desc.User, t.desc.Host, err)
		}
		if isHostKeyError(err) {
			return nil, fmt.Errorf("%w: host key for %s rejected: %v", domain.ErrAuthenticationFailed, t.desc.Address(), err)
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		lastErr = err
		logger.WithError(err).WithField("attempt", attempt+1).Warn("connection attempt failed")
	}
	return nil, fmt.Errorf("dial %s after %d attempts: %w", t.desc.Address(), t.desc.Retries+1, lastErr)
}

func dial(ctx context.Context, addr string, cfg *ssh.ClientConfig) (*ssh.Client, error) {
	d := net.Dialer{Timeout: cfg.Timeout}
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, err
	}

	// Bound the handshake, then lift the deadline for the session.
	_ = conn.SetDeadline(time.Now().Add(cfg.Timeout))
	c, chans, reqs, err := ssh.NewClientConn(conn, addr, cfg)
	if err != nil {
		conn.Close()
		return nil, err
	}
	_ = conn.SetDeadline(time.Time{})
	return ssh.NewClient(c, chans, reqs), nil
}

// authMethods builds key auth from the first readable key and adds password
// auth when a password is configured. Having neither is an authentication
// failure, not a dial error.
func authMethods(t domain.Target) ([]ssh.AuthMethod, error) {
	var methods []ssh.AuthMethod

	if t.KeyPath != "" {
		signer, err := loadSigner(t.KeyPath, t.Password)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", domain.ErrAuthenticationFailed, err)
		}
		methods = append(methods, ssh.PublicKeys(signer))
	}
	if t.Password != "" {
		methods = append(methods, ssh.Password(t.Password))
	}
	if len(methods) == 0 {
		return nil, fmt.Errorf("%w: no ssh key or password for %s@%s", domain.ErrAuthenticationFailed, t.User, t.Host)
	}
	return methods, nil
}

func loadSigner(keyPath, passphrase string) (ssh.Signer, error) {
	pem, err := os.ReadFile(expandHome(keyPath))
	if err != nil {
		return nil, fmt.Errorf("read key %s: %w", keyPath, err)
	}
	signer, err := ssh.ParsePrivateKey(pem)
	if err == nil {
		return signer, nil
	}
	var missing *ssh.PassphraseMissingError
	if errors.As(err, &missing) && passphrase != "" {
		return ssh.ParsePrivateKeyWithPassphrase(pem, []byte(passphrase))
	}
	return nil, fmt.Errorf("parse key %s: %w", keyPath, err)
}

func isAuthError(err error) bool {
	return strings.Contains(err.Error(), "unable to authenticate")
}

// isHostKeyError reports a known_hosts rejection. Retrying cannot change the
// key the device presents.
func isHostKeyError(err error) bool {
	var keyErr *knownhosts.KeyError
	var revoked *knownhosts.RevokedError
	if errors.As(err, &keyErr) || errors.As(err, &revoked) {
		return true
	}
	return strings.Contains(err.Error(), "knownhosts: key")
}
