package config

import (
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"

	"github.com/zots0127/marketadmin/internal/domain/entities"
)

var (
	validateOnce sync.Once
	validate     *validator.Validate

	settingKeyPattern = regexp.MustCompile(`^[a-z][a-z0-9_]{0,63}$`)
	bucketPattern     = regexp.MustCompile(`^[a-z0-9][a-z0-9.-]{1,61}[a-z0-9]$`)
)

func engine() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New()
		_ = validate.RegisterValidation("entity_kind", func(fl validator.FieldLevel) bool {
			return entities.IsKnownKind(entities.Kind(strings.TrimSpace(fl.Field().String())))
		})
		_ = validate.RegisterValidation("origin", func(fl validator.FieldLevel) bool {
			return isValidOrigin(fl.Field().String())
		})
	})
	return validate
}

// Validate checks struct tags first, then the rules that span several fields
func Validate(config *Config) error {
	if config == nil {
		return errors.New("config is nil")
	}

	if err := engine().Struct(config); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) {
			return formatFieldErrors(fieldErrs)
		}
		return err
	}

	if err := validateStore(&config.Store); err != nil {
		return fmt.Errorf("store: %w", err)
	}
	if err := validateSecurity(&config.Security); err != nil {
		return fmt.Errorf("security: %w", err)
	}
	if err := validateS3(&config.S3); err != nil {
		return fmt.Errorf("s3: %w", err)
	}
	for key := range config.Settings.Defaults {
		if !settingKeyPattern.MatchString(key) {
			return fmt.Errorf("settings: invalid default key %q", key)
		}
	}

	return nil
}

func formatFieldErrors(errs validator.ValidationErrors) error {
	msgs := make([]string, 0, len(errs))
	for _, fe := range errs {
		ns := fe.Namespace()
		if i := strings.Index(ns, "."); i >= 0 {
			ns = ns[i+1:]
		}
		if fe.Param() != "" {
			msgs = append(msgs, fmt.Sprintf("%s failed %s=%s (got %v)", ns, fe.Tag(), fe.Param(), fe.Value()))
		} else {
			msgs = append(msgs, fmt.Sprintf("%s failed %s (got %v)", ns, fe.Tag(), fe.Value()))
		}
	}
	return errors.New(strings.Join(msgs, "; "))
}

func validateStore(store *StoreConfig) error {
	switch store.Driver {
	case "sqlite":
		if store.SQLite.Path == "" {
			return errors.New("sqlite path is required")
		}
	case "postgres":
		if store.Postgres.DSN == "" {
			return errors.New("postgres dsn is required")
		}
		if store.Postgres.MaxIdleConns > store.Postgres.MaxOpenConns {
			return errors.New("postgres max_idle_conns cannot exceed max_open_conns")
		}
	case "cms":
		if store.CMS.BaseURL == "" {
			return errors.New("cms base_url is required")
		}
	}
	return nil
}

func validateSecurity(security *SecurityConfig) error {
	if !security.EnableAuth {
		return nil
	}
	if security.JWTSecret == "" {
		return errors.New("jwt secret is required when auth is enabled")
	}
	if len(security.JWTSecret) < 16 {
		return errors.New("jwt secret must be at least 16 characters")
	}
	return nil
}

func validateS3(s3 *S3Config) error {
	if !s3.Enabled {
		return nil
	}
	if s3.AccessKey == "" || s3.SecretKey == "" {
		return errors.New("access key and secret key are required when s3 is enabled")
	}
	if !bucketPattern.MatchString(s3.Bucket) {
		return fmt.Errorf("invalid bucket name %q", s3.Bucket)
	}
	return nil
}

func isValidOrigin(origin string) bool {
	if origin == "*" {
		return true
	}
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != "" && (u.Path == "" || u.Path == "/")
}
