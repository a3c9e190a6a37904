package env

import (
	"errors"
	"fmt"
	"os"
)

const (
	AWS_REGION            = "AWS_REGION"
	AWS_ACCESS_KEY_ID     = "AWS_ACCESS_KEY_ID"
	AWS_SECRET_ACCESS_KEY = "AWS_SECRET_ACCESS_KEY"
	AWS_SESSION_TOKEN     = "AWS_SESSION_TOKEN"
	DATABASE_DSN          = "DATABASE_DSN"
	SSH_PASSWORD          = "PGBACKUP_SSH_PASSWORD"
	SSH_KEY               = "PGBACKUP_SSH_KEY"
)

var ErrMissingEnv = errors.New("at least one env is required to resolve")

type AWSCredentials struct {
	AccessKeyID     string
	SecretAccessKey string
	SessionToken    string
	Region          string
}

type SshCredentials struct {
	Password string
	Key      string
}

func EnsureRequiredVars(vars []string) error {
	var errs error

	for _, v := range vars {
		if os.Getenv(v) == "" {
			errs = errors.Join(errs, fmt.Errorf("missing required environment variable %s", v))
		}
	}

	return errs
}

type EnvResolver struct {
	aws         bool
	databaseDSN bool
	ssh         bool
}

type resolverOption func(resolver *EnvResolver)

func NewEnvResolver(opts ...resolverOption) *EnvResolver {
	resolver := &EnvResolver{}

	for _, opt := range opts {
		opt(resolver)
	}

	return resolver
}

func WithAWS() resolverOption {
	return func(resolver *EnvResolver) {
		resolver.aws = true
	}
}

func WithDatabaseDSN() resolverOption {
	return func(resolver *EnvResolver) {
		resolver.databaseDSN = true
	}
}

// WithSsh requires PGBACKUP_SSH_PASSWORD or PGBACKUP_SSH_KEY.
func WithSsh() resolverOption {
	return func(resolver *EnvResolver) {
		resolver.ssh = true
	}
}

type Values struct {
	AWSCredentials AWSCredentials
	SshCredentials SshCredentials
	DatabaseDSN    string
}

func (resolver *EnvResolver) Resolve() (Values, error) {
	if !resolver.aws && !resolver.databaseDSN && !resolver.ssh {
		return Values{}, ErrMissingEnv
	}

	requiredVars := make([]string, 0)

	if resolver.aws {
		requiredVars = append(requiredVars, AWS_REGION, AWS_ACCESS_KEY_ID, AWS_SECRET_ACCESS_KEY)
	}

	if resolver.databaseDSN {
		requiredVars = append(requiredVars, DATABASE_DSN)
	}

	errs := EnsureRequiredVars(requiredVars)

	if resolver.ssh && os.Getenv(SSH_PASSWORD) == "" && os.Getenv(SSH_KEY) == "" {
		errs = errors.Join(errs, fmt.Errorf("missing required environment variable %s or %s", SSH_PASSWORD, SSH_KEY))
	}

	if errs != nil {
		return Values{}, errs
	}

	return Values{
		AWSCredentials: AWSCredentials{
			AccessKeyID:     os.Getenv(AWS_ACCESS_KEY_ID),
			SecretAccessKey: os.Getenv(AWS_SECRET_ACCESS_KEY),
			SessionToken:    os.Getenv(AWS_SESSION_TOKEN),
			Region:          os.Getenv(AWS_REGION),
		},
		SshCredentials: SshCredentials{
			Password: os.Getenv(SSH_PASSWORD),
			Key:      os.Getenv(SSH_KEY),
		},
		DatabaseDSN: os.Getenv(DATABASE_DSN),
	}, nil
}
