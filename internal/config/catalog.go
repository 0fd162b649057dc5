package config

import (
	"fmt"
	"sort"

	"ciwarden/internal/ci"
	"ciwarden/pkg/logging"
)

// Catalog is the resolved view of the configured credentials and projects.
type Catalog struct {
	credentials []ci.Credential
	projects    map[string][]ci.Project
}

// NewCatalog resolves cfg. Tokens are read through getenv; a credential whose
// token variable is unset is kept and used anonymously.
func NewCatalog(cfg Config, getenv func(string) string) (*Catalog, error) {
	c := &Catalog{projects: make(map[string][]ci.Project)}

	byName := make(map[string]ci.Credential, len(cfg.Credentials))
	for _, cc := range cfg.Credentials {
		cred := ci.Credential{
			Name:    cc.Name,
			Type:    ci.CredentialType(cc.Type),
			BaseURL: cc.BaseURL,
		}
		if cc.TokenEnv != "" {
			cred.Token = getenv(cc.TokenEnv)
			if cred.Token == "" {
				logging.Warn("ConfigLoader", "Credential %s: %s is not set, using anonymous access", cc.Name, cc.TokenEnv)
			}
		}
		byName[cc.Name] = cred
		c.credentials = append(c.credentials, cred)
	}

	for _, pc := range cfg.Projects {
		cred, ok := byName[pc.Credential]
		if !ok {
			return nil, fmt.Errorf("project %s refers to unknown credential %q", pc.ID, pc.Credential)
		}

		project := ci.Project{
			ID:                     pc.ID,
			RepoFullName:           pc.Repo,
			CloneURL:               pc.CloneURL,
			Credential:             cred.Name,
			RequiredCredentialType: cred.Type,
		}
		if project.CloneURL == "" && cred.Type == ci.CredentialTypeGitHub && cred.BaseURL == "" {
			project.CloneURL = fmt.Sprintf("https://github.com/%s.git", pc.Repo)
		}
		for _, tc := range pc.Triggers {
			trigger, err := ci.NewJobTrigger(ci.TriggerKind(tc.Type), tc.Branch)
			if err != nil {
				return nil, fmt.Errorf("project %s: %w", pc.ID, err)
			}
			project.Triggers = append(project.Triggers, trigger)
		}
		c.projects[cred.Name] = append(c.projects[cred.Name], project)
	}
	return c, nil
}

// Credentials returns the configured credentials in file order.
func (c *Catalog) Credentials() []ci.Credential {
	return append([]ci.Credential(nil), c.credentials...)
}

// Projects returns the projects reached through credential.
func (c *Catalog) Projects(credential ci.Credential) []ci.Project {
	return append([]ci.Project(nil), c.projects[credential.Name]...)
}

// AllProjects returns every project, sorted by id.
func (c *Catalog) AllProjects() []ci.Project {
	var all []ci.Project
	for _, projects := range c.projects {
		all = append(all, projects...)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].ID < all[j].ID })
	return all
}
