package build

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWorkspaceLayout(t *testing.T) {
	root := t.TempDir()

	tests := []struct {
		name     string
		template string
		want     string
		wantErr  bool
	}{
		{
			name: "default template",
			want: filepath.Join(root, "org_api", "0123456789ab"),
		},
		{
			name:     "project scoped",
			template: `{{ .Project }}/{{ .SHA | trunc 7 }}`,
			want:     filepath.Join(root, "api", "0123456"),
		},
		{
			name:     "sprig functions",
			template: `{{ .Repo | upper | replace "/" "-" }}`,
			want:     filepath.Join(root, "ORG-API"),
		},
		{
			name:     "escapes root",
			template: `../{{ .SHA }}`,
			wantErr:  true,
		},
		{
			name:     "renders root itself",
			template: `.`,
			wantErr:  true,
		},
		{
			name:     "empty",
			template: `{{ "" }}`,
			wantErr:  true,
		},
		{
			name:     "unknown field",
			template: `{{ .Branch }}`,
			wantErr:  true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			layout, err := newWorkspaceLayout(root, tt.template)
			require.NoError(t, err)

			got, err := layout.dir("api", "org/api", "0123456789abcdef")
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestWorkspaceLayout_InvalidTemplate(t *testing.T) {
	_, err := newWorkspaceLayout(t.TempDir(), `{{ .SHA `)
	assert.Error(t, err)

	_, err = newWorkspaceLayout("", "")
	assert.Error(t, err)
}
