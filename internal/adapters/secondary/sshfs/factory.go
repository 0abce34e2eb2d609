// Package sshfs provides the SSH/SFTP edge targets registered under the
// jetson:// and ssh:// schemes.
package sshfs

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"edge-deploy-service/internal/config"
	"edge-deploy-service/internal/core/domain"
	ports "edge-deploy-service/internal/core/ports/output"
)

// fileConfig is the on-disk target description referenced by
// jetson://<name>.yaml. Timeout is in seconds.
type fileConfig struct {
	DeviceIP       string `yaml:"device_ip"`
	Port           int    `yaml:"port"`
	Username       string `yaml:"username"`
	SSHKeyPath     string `yaml:"ssh_key_path"`
	Password       string `yaml:"password"`
	DeploymentBase string `yaml:"deployment_base_path"`
	Timeout        int    `yaml:"timeout"`
	MaxRetries     *int   `yaml:"max_retries"`
}

// Factory builds SSH targets from endpoints, applying configured defaults.
type Factory struct {
	scheme   string
	defaults config.TargetConfig
	hostKeys HostKeyPolicy
}

func NewFactory(scheme string, defaults config.TargetConfig, transport config.TransportConfig) *Factory {
	return &Factory{
		scheme:   scheme,
		defaults: defaults,
		hostKeys: HostKeyPolicy{
			KnownHostsPath: transport.KnownHostsPath,
			Insecure:       transport.InsecureHostKey,
		},
	}
}

// Build implements ports.TargetFactory.
func (f *Factory) Build(ep ports.Endpoint) (ports.Target, error) {
	desc, err := f.describe(ep)
	if err != nil {
		return nil, err
	}
	if desc.KeyPath == "" && desc.Password == "" {
		desc.KeyPath = firstExisting(f.defaults.DefaultKeys)
		if desc.KeyPath == "" {
			return nil, fmt.Errorf("%w: no ssh_key_path or password given and no default key found (tried %s)",
				domain.ErrInvalidTarget, strings.Join(f.defaults.DefaultKeys, ", "))
		}
	}
	if desc.KeyPath != "" {
		if _, err := os.Stat(desc.KeyPath); err != nil {
			return nil, fmt.Errorf("%w: ssh key %s: %v", domain.ErrInvalidTarget, desc.KeyPath, err)
		}
	}
	if err := desc.Validate(); err != nil {
		return nil, err
	}
	return &sshTarget{desc: desc, hostKeys: f.hostKeys}, nil
}

func (f *Factory) describe(ep ports.Endpoint) (domain.Target, error) {
	desc := domain.Target{
		Scheme:  f.scheme,
		Host:    ep.Host,
		Port:    f.defaults.DefaultPort,
		User:    f.defaults.DefaultUser,
		BaseDir: f.defaults.DefaultBaseDir,
		Timeout: f.defaults.Timeout,
		Retries: f.defaults.MaxRetries,
	}

	if ref := configRef(ep); ref != "" {
		fc, err := f.loadFile(ref)
		if err != nil {
			return domain.Target{}, err
		}
		applyFile(&desc, fc)
		return desc, nil
	}

	if ep.User != "" {
		desc.User = ep.User
	}
	if ep.Port != 0 {
		desc.Port = ep.Port
	}
	if ep.Path != "" && ep.Path != "/" {
		desc.BaseDir = ep.Path
	}
	return desc, nil
}

// configRef returns the YAML file named by the endpoint, if any.
func configRef(ep ports.Endpoint) string {
	ref := strings.TrimPrefix(ep.Raw[len(ep.Scheme)+len("://"):], "/")
	if strings.HasSuffix(ref, ".yaml") || strings.HasSuffix(ref, ".yml") {
		return ref
	}
	return ""
}

// loadFile searches the config dir, then the working directory, then the
// path as given with ~ expanded.
func (f *Factory) loadFile(ref string) (*fileConfig, error) {
	candidates := []string{
		filepath.Join(f.defaults.ConfigDir, ref),
		ref,
		expandHome(ref),
	}

	for _, p := range candidates {
		data, err := os.ReadFile(p)
		if err != nil {
			continue
		}
		var fc fileConfig
		if err := yaml.Unmarshal(data, &fc); err != nil {
			return nil, fmt.Errorf("%w: parse %s: %v", domain.ErrInvalidTarget, p, err)
		}
		log.WithField("config", p).Debug("loaded target config")
		return &fc, nil
	}
	return nil, fmt.Errorf("%w: config file %q not found (searched %s)", domain.ErrInvalidTarget, ref, strings.Join(candidates, ", "))
}

func applyFile(desc *domain.Target, fc *fileConfig) {
	desc.Host = fc.DeviceIP
	if fc.Port != 0 {
		desc.Port = fc.Port
	}
	if fc.Username != "" {
		desc.User = fc.Username
	}
	if fc.SSHKeyPath != "" {
		desc.KeyPath = expandHome(fc.SSHKeyPath)
	}
	desc.Password = fc.Password
	if fc.DeploymentBase != "" {
		desc.BaseDir = fc.DeploymentBase
	}
	if fc.Timeout != 0 {
		desc.Timeout = time.Duration(fc.Timeout) * time.Second
	}
	if fc.MaxRetries != nil {
		desc.Retries = *fc.MaxRetries
	}
}

func firstExisting(paths []string) string {
	for _, p := range paths {
		expanded := expandHome(p)
		if info, err := os.Stat(expanded); err == nil && info.Mode().IsRegular() {
			return expanded
		}
	}
	return ""
}

func expandHome(p string) string {
	if p != "~" && !strings.HasPrefix(p, "~/") {
		return p
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return p
	}
	return filepath.Join(home, strings.TrimPrefix(p, "~"))
}
