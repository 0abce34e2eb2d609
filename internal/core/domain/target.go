package domain

import (
	"fmt"
	"net"
	"strconv"
	"time"
)

// Target is a remote edge device plus the credential reference needed to
// reach it. It is resolved per operation and never cached.
type Target struct {
	Scheme   string        `json:"scheme"`
	Host     string        `json:"host"`
	Port     int           `json:"port"`
	User     string        `json:"user"`
	KeyPath  string        `json:"-"`
	Password string        `json:"-"`
	BaseDir  string        `json:"base_dir"`
	Timeout  time.Duration `json:"-"`
	Retries  int           `json:"-"`
}

// Address returns host:port suitable for dialing.
func (t Target) Address() string {
	return net.JoinHostPort(t.Host, strconv.Itoa(t.Port))
}

// String identifies the target without leaking credentials.
func (t Target) String() string {
	return fmt.Sprintf("%s://%s@%s%s", t.Scheme, t.User, t.Address(), t.BaseDir)
}

// Validate checks the fields every transport needs.
func (t Target) Validate() error {
	if t.Host == "" {
		return fmt.Errorf("%w: host is required", ErrInvalidTarget)
	}
	if t.BaseDir == "" {
		return fmt.Errorf("%w: base directory is required", ErrInvalidTarget)
	}
	if t.Timeout <= 0 {
		return fmt.Errorf("%w: timeout must be positive", ErrInvalidTarget)
	}
	if t.Retries < 0 {
		return fmt.Errorf("%w: max_retries must be non-negative", ErrInvalidTarget)
	}
	return nil
}
