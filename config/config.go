package config

import (
	"errors"
	"fmt"
	"os"
	"reflect"
	"strings"
	"time"

	"github.com/liweiyi88/pgbackup/dumper"
	"github.com/liweiyi88/pgbackup/dumper/runner"
	"github.com/liweiyi88/pgbackup/executor"
	"github.com/liweiyi88/pgbackup/notifier/slack"
	"github.com/liweiyi88/pgbackup/storage"
	"github.com/liweiyi88/pgbackup/storage/local"
	"github.com/liweiyi88/pgbackup/storage/s3"
	"github.com/liweiyi88/pgbackup/storage/sftp"
	"github.com/liweiyi88/pgbackup/transport"
	"gopkg.in/yaml.v3"
)

const (
	DefaultSshPort    = 22
	DefaultBackupRoot = "backups"
)

var (
	ErrMissingHost       = errors.New("host is required")
	ErrDuplicateHost     = errors.New("host is defined more than once")
	ErrInvalidWorkers    = errors.New("workers must be positive")
	ErrMissingRemote     = errors.New("remote section is required for remote operations")
	ErrInvalidJobTimeout = errors.New("jobtimeout must not be negative")
)

type Host struct {
	Host      string   `yaml:"host"`
	Port      int      `yaml:"port"`
	Databases []string `yaml:"databases"`
}

// Remote is the SSH server the commands run on when --remote is set.
type Remote struct {
	Host           string `yaml:"host"`
	Port           int    `yaml:"port"`
	User           string `yaml:"user"`
	Password       string `yaml:"password"`
	Key            string `yaml:"key"`
	CredentialFile string `yaml:"credentialfile"`
}

func (remote *Remote) Target() transport.RemoteTarget {
	return transport.RemoteTarget{
		Host:     remote.Host,
		Port:     remote.Port,
		User:     remote.User,
		Password: remote.Password,
		Key:      remote.Key,
	}
}

type Config struct {
	BackupRoot     string        `yaml:"backuproot"`
	Workers        int           `yaml:"workers"`
	Policy         string        `yaml:"policy"`
	JobTimeout     time.Duration `yaml:"jobtimeout"`
	CredentialFile string        `yaml:"credentialfile"`
	DumpOptions    []string      `yaml:"options"`
	Hosts          []*Host       `yaml:"hosts"`
	Remote         *Remote       `yaml:"remote"`
	Notifier       struct {
		Slack []*slack.Slack `yaml:"slack"`
	} `yaml:"notifier"`
	Storage struct {
		Local []*local.Local `yaml:"local"`
		S3    []*s3.S3       `yaml:"s3"`
		Sftp  []*sftp.Sftp   `yaml:"sftp"`
	} `yaml:"storage"`
}

// Default is used when no config file is given.
func Default() *Config {
	config := &Config{}
	config.applyDefaults()
	return config
}

func Load(filename string) (*Config, error) {
	content, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file from %s, error: %w", filename, err)
	}

	return Parse(content)
}

func Parse(content []byte) (*Config, error) {
	var config Config
	if err := yaml.Unmarshal(content, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config content, error: %w", err)
	}

	config.applyDefaults()

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration, error: %w", err)
	}

	return &config, nil
}

func (config *Config) applyDefaults() {
	if config.BackupRoot == "" {
		config.BackupRoot = DefaultBackupRoot
	}

	if config.Workers == 0 {
		config.Workers = executor.DefaultMaxWorkers
	}

	for _, host := range config.Hosts {
		if host != nil && host.Port == 0 {
			host.Port = dumper.DefaultPort
		}
	}

	if config.Remote != nil && config.Remote.Port == 0 {
		config.Remote.Port = DefaultSshPort
	}
}

func (config *Config) Validate() error {
	var errs error

	if config.Workers < 0 {
		errs = errors.Join(errs, ErrInvalidWorkers)
	}

	if config.JobTimeout < 0 {
		errs = errors.Join(errs, ErrInvalidJobTimeout)
	}

	if _, err := runner.ParsePolicy(config.Policy); err != nil {
		errs = errors.Join(errs, err)
	}

	seen := make(map[string]bool)
	for i, host := range config.Hosts {
		if host == nil || strings.TrimSpace(host.Host) == "" {
			errs = errors.Join(errs, fmt.Errorf("hosts[%d]: %w", i, ErrMissingHost))
			continue
		}

		if seen[host.Host] {
			errs = errors.Join(errs, fmt.Errorf("%s: %w", host.Host, ErrDuplicateHost))
		}

		seen[host.Host] = true
	}

	return errs
}

func (config *Config) RunnerPolicy() runner.Policy {
	policy, _ := runner.ParsePolicy(config.Policy)
	return policy
}

// LookupHost returns the configured entry for host, nil when it is not configured.
func (config *Config) LookupHost(host string) *Host {
	for _, h := range config.Hosts {
		if h.Host == host {
			return h
		}
	}

	return nil
}

// Storages returns every configured upload destination.
func (config *Config) Storages() []storage.Storage {
	var storages []storage.Storage

	v := reflect.ValueOf(config.Storage)
	for i := 0; i < v.NumField(); i++ {
		field := v.Field(i)
		switch field.Kind() {
		case reflect.Slice:
			for i := 0; i < field.Len(); i++ {
				s, ok := field.Index(i).Interface().(storage.Storage)
				if ok {
					storages = append(storages, s)
				}
			}
		}
	}

	return storages
}
