package config

import (
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks the configuration against the struct validation tags and
// a handful of cross-field rules the tags cannot express.
func Validate(cfg *Config) error {
	if err := validate.Struct(cfg); err != nil {
		var errs validator.ValidationErrors
		if ok := asValidationErrors(err, &errs); ok {
			return fmt.Errorf("invalid configuration: %s", describe(errs))
		}
		return err
	}

	if cfg.Elasticsearch.VectorDims != cfg.AI.Embedding.Dimension {
		return fmt.Errorf("elasticsearch.vector_dims (%d) must equal ai.embedding.dimension (%d)",
			cfg.Elasticsearch.VectorDims, cfg.AI.Embedding.Dimension)
	}

	if cfg.Admin.Username != "" && cfg.Admin.PasswordHash == "" {
		return fmt.Errorf("admin.username is set but admin.password_hash is empty")
	}

	return nil
}

func asValidationErrors(err error, target *validator.ValidationErrors) bool {
	errs, ok := err.(validator.ValidationErrors)
	if ok {
		*target = errs
	}
	return ok
}

func describe(errs validator.ValidationErrors) string {
	parts := make([]string, 0, len(errs))
	for _, fe := range errs {
		parts = append(parts, fmt.Sprintf("%s failed %q", fe.Namespace(), fe.Tag()))
	}
	return strings.Join(parts, "; ")
}
