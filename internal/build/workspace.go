package build

import (
	"bytes"
	"fmt"
	"path/filepath"
	"strings"
	"text/template"

	"github.com/Masterminds/sprig/v3"
)

// DefaultPathTemplate lays workspaces out as <owner>_<repo>/<short sha>.
const DefaultPathTemplate = `{{ .Repo | replace "/" "_" }}/{{ .SHA | trunc 12 }}`

// pathData is the data available to workspace path templates.
type pathData struct {
	Project string
	Repo    string
	SHA     string
}

// workspaceLayout renders per-execution workspace directories below a root.
type workspaceLayout struct {
	root string
	tmpl *template.Template
}

func newWorkspaceLayout(root, pathTemplate string) (*workspaceLayout, error) {
	if root == "" {
		return nil, fmt.Errorf("workspace root is required")
	}
	if pathTemplate == "" {
		pathTemplate = DefaultPathTemplate
	}

	tmpl, err := template.New("workspace").
		Funcs(sprig.TxtFuncMap()).
		Option("missingkey=error").
		Parse(pathTemplate)
	if err != nil {
		return nil, fmt.Errorf("parsing workspace path template: %w", err)
	}

	root, err = filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolving workspace root: %w", err)
	}
	return &workspaceLayout{root: root, tmpl: tmpl}, nil
}

// dir returns the workspace directory for one build. The rendered path must
// stay below the root.
func (w *workspaceLayout) dir(projectID, repo, sha string) (string, error) {
	var buf bytes.Buffer
	if err := w.tmpl.Execute(&buf, pathData{Project: projectID, Repo: repo, SHA: sha}); err != nil {
		return "", fmt.Errorf("rendering workspace path: %w", err)
	}

	rel := strings.TrimSpace(buf.String())
	if rel == "" {
		return "", fmt.Errorf("workspace path template rendered an empty path")
	}

	dir := filepath.Join(w.root, rel)
	if dir != w.root && !strings.HasPrefix(dir, w.root+string(filepath.Separator)) {
		return "", fmt.Errorf("workspace path %q escapes root %q", rel, w.root)
	}
	if dir == w.root {
		return "", fmt.Errorf("workspace path %q resolves to the root itself", rel)
	}
	return dir, nil
}

// baseDir is where the canonical clone of a repository is kept.
func (w *workspaceLayout) baseDir(repo string) string {
	return filepath.Join(w.root, strings.ReplaceAll(repo, "/", "_"), "_base")
}
