package config

import (
	"fmt"
	"strings"
	"text/template"

	"github.com/Masterminds/sprig/v3"

	"ciwarden/internal/ci"
)

// ValidationError represents a validation error with context
type ValidationError struct {
	Field   string
	Value   interface{}
	Message string
}

// Error implements the error interface
func (ve ValidationError) Error() string {
	if ve.Field == "" {
		return ve.Message
	}
	return fmt.Sprintf("field '%s': %s", ve.Field, ve.Message)
}

// ValidateRequired checks if a required string field is not empty
func ValidateRequired(field, value, entityType string) error {
	if strings.TrimSpace(value) == "" {
		return ValidationError{
			Field:   field,
			Value:   value,
			Message: fmt.Sprintf("is required for %s", entityType),
		}
	}
	return nil
}

// ValidateOneOf checks if a value is in a list of allowed values
func ValidateOneOf(field, value string, allowed []string) error {
	for _, allowedValue := range allowed {
		if value == allowedValue {
			return nil
		}
	}
	return ValidationError{
		Field:   field,
		Value:   value,
		Message: fmt.Sprintf("must be one of: %s", strings.Join(allowed, ", ")),
	}
}

var (
	credentialTypes = []string{
		string(ci.CredentialTypeGitHub),
		string(ci.CredentialTypeGitLab),
		string(ci.CredentialTypeGitea),
		string(ci.CredentialTypeBitbucket),
	}
	triggerKinds = []string{
		string(ci.TriggerKindCommit),
		string(ci.TriggerKindPullRequest),
		string(ci.TriggerKindManual),
	}
)

// Validate checks cfg and collects every problem found. filePath is only used
// for reporting.
func Validate(cfg Config, filePath string) *ConfigurationErrorCollection {
	errs := &ConfigurationErrorCollection{}
	add := func(section string, err error) {
		if err != nil {
			errs.add(filePath, section, err)
		}
	}

	if cfg.Workspace.PathTemplate != "" {
		if _, err := template.New("workspace").Funcs(sprig.TxtFuncMap()).Parse(cfg.Workspace.PathTemplate); err != nil {
			add("workspace", ValidationError{Field: "pathTemplate", Value: cfg.Workspace.PathTemplate, Message: err.Error()})
		}
	}
	if cfg.Poll.Interval < 0 {
		add("poll", ValidationError{Field: "interval", Value: cfg.Poll.Interval, Message: "must not be negative"})
	}
	if cfg.Executor.Workers < 0 {
		add("executor", ValidationError{Field: "workers", Value: cfg.Executor.Workers, Message: "must not be negative"})
	}

	credentials := make(map[string]CredentialConfig)
	for i, c := range cfg.Credentials {
		entity := fmt.Sprintf("credential #%d", i+1)
		add("credentials", ValidateRequired("name", c.Name, entity))
		add("credentials", ValidateOneOf("type", c.Type, credentialTypes))
		if c.Type == string(ci.CredentialTypeGitea) {
			add("credentials", ValidateRequired("baseURL", c.BaseURL, entity))
		}
		if _, dup := credentials[c.Name]; dup {
			if c.Name != "" {
				add("credentials", ValidationError{Field: "name", Value: c.Name, Message: "is defined more than once"})
			}
			continue
		}
		credentials[c.Name] = c
	}

	projects := make(map[string]bool)
	for i, p := range cfg.Projects {
		entity := fmt.Sprintf("project #%d", i+1)
		add("projects", ValidateRequired("id", p.ID, entity))
		if strings.Contains(p.ID, "/") {
			add("projects", ValidationError{Field: "id", Value: p.ID, Message: "must not contain '/'"})
		}
		if projects[p.ID] && p.ID != "" {
			add("projects", ValidationError{Field: "id", Value: p.ID, Message: "is defined more than once"})
		}
		projects[p.ID] = true

		if err := ValidateRequired("repo", p.Repo, entity); err != nil {
			add("projects", err)
		} else if parts := strings.Split(p.Repo, "/"); len(parts) < 2 || parts[0] == "" || parts[len(parts)-1] == "" {
			add("projects", ValidationError{Field: "repo", Value: p.Repo, Message: "must be owner/name"})
		}

		cred, ok := credentials[p.Credential]
		if !ok {
			add("projects", ValidationError{Field: "credential", Value: p.Credential, Message: fmt.Sprintf("%s refers to an unknown credential", entity)})
		} else if p.CloneURL == "" && !(cred.Type == string(ci.CredentialTypeGitHub) && cred.BaseURL == "") {
			add("projects", ValidateRequired("cloneURL", p.CloneURL, entity))
		}

		for j, t := range p.Triggers {
			if err := ValidateOneOf("type", t.Type, triggerKinds); err != nil {
				add("projects", fmt.Errorf("%s trigger #%d: %w", entity, j+1, err))
				continue
			}
			if _, err := ci.NewJobTrigger(ci.TriggerKind(t.Type), t.Branch); err != nil {
				add("projects", fmt.Errorf("%s trigger #%d: %w", entity, j+1, err))
			}
		}
	}

	return errs
}
