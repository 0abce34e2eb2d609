package services

import (
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"

	"edge-deploy-service/internal/core/domain"
	ports "edge-deploy-service/internal/core/ports/output"
)

// TargetRegistry maps identifier schemes onto target implementations.
// It is filled once at startup and only read afterwards.
type TargetRegistry struct {
	factories map[string]ports.TargetFactory
}

func NewTargetRegistry() *TargetRegistry {
	return &TargetRegistry{factories: make(map[string]ports.TargetFactory)}
}

// Register binds scheme to factory. It panics on duplicates since that is
// a wiring bug.
func (r *TargetRegistry) Register(scheme string, factory ports.TargetFactory) {
	scheme = strings.ToLower(scheme)
	if _, dup := r.factories[scheme]; dup {
		panic(fmt.Sprintf("target scheme %q registered twice", scheme))
	}
	r.factories[scheme] = factory
}

// Schemes lists the registered schemes in sorted order.
func (r *TargetRegistry) Schemes() []string {
	out := make([]string, 0, len(r.factories))
	for s := range r.factories {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

// Resolve parses identifier and hands it to the factory registered for its
// scheme.
func (r *TargetRegistry) Resolve(identifier string) (ports.Target, error) {
	ep, err := ParseEndpoint(identifier)
	if err != nil {
		return nil, err
	}

	factory, ok := r.factories[ep.Scheme]
	if !ok {
		return nil, fmt.Errorf("%w: %q (registered: %s)", domain.ErrUnknownScheme, ep.Scheme, strings.Join(r.Schemes(), ", "))
	}

	target, err := factory(ep)
	if err != nil {
		return nil, fmt.Errorf("resolve target %s: %w", identifier, err)
	}
	return target, nil
}

// ParseEndpoint splits scheme://[user@]host[:port][/path].
func ParseEndpoint(identifier string) (ports.Endpoint, error) {
	identifier = strings.TrimSpace(identifier)
	if !strings.Contains(identifier, "://") {
		return ports.Endpoint{}, fmt.Errorf("%w: %q is not of the form scheme://host[:port]", domain.ErrInvalidTarget, identifier)
	}

	u, err := url.Parse(identifier)
	if err != nil {
		return ports.Endpoint{}, fmt.Errorf("%w: %v", domain.ErrInvalidTarget, err)
	}

	ep := ports.Endpoint{
		Raw:    identifier,
		Scheme: strings.ToLower(u.Scheme),
		Host:   u.Hostname(),
		Path:   u.Path,
	}
	if ep.Scheme == "" {
		return ports.Endpoint{}, fmt.Errorf("%w: missing scheme in %q", domain.ErrInvalidTarget, identifier)
	}
	if u.User != nil {
		ep.User = u.User.Username()
	}
	if p := u.Port(); p != "" {
		port, err := strconv.Atoi(p)
		if err != nil || port < 1 || port > 65535 {
			return ports.Endpoint{}, fmt.Errorf("%w: bad port %q", domain.ErrInvalidTarget, p)
		}
		ep.Port = port
	}
	return ep, nil
}
