package reqfile

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/frederic-klein/reqinstall/internal/dist"
	"github.com/frederic-klein/reqinstall/internal/reqerr"
)

func TestParseLine(t *testing.T) {
	tests := []struct {
		name    string
		line    string
		wantReq dist.Requirement
		wantOK  bool
		wantErr bool
	}{
		{name: "empty", line: ""},
		{name: "whitespace only", line: "   \t"},
		{name: "comment", line: "# pinned deps"},
		{name: "indented comment", line: "   # indented"},
		{name: "simple pin", line: "requests==2.31.0", wantReq: dist.Requirement{Name: "requests", Version: "2.31.0"}, wantOK: true},
		{name: "single group version", line: "x==1", wantReq: dist.Requirement{Name: "x", Version: "1"}, wantOK: true},
		{name: "trailing whitespace", line: "six==1.16.0  \t", wantReq: dist.Requirement{Name: "six", Version: "1.16.0"}, wantOK: true},
		{name: "dashed name", line: "scikit-learn==1.4.2", wantReq: dist.Requirement{Name: "scikit-learn", Version: "1.4.2"}, wantOK: true},
		{name: "range operator", line: "foo>=1.0", wantErr: true},
		{name: "no version", line: "foo", wantErr: true},
		{name: "extras", line: "foo[bar]==1.0 ; python_version<'3.8'", wantErr: true},
		{name: "env marker", line: "foo==1.0; sys_platform=='linux'", wantErr: true},
		{name: "prerelease", line: "foo==1.0rc1", wantErr: true},
		{name: "leading whitespace", line: "  foo==1.0", wantErr: true},
		{name: "triple equals", line: "foo===1.0", wantErr: true},
		{name: "trailing dot", line: "foo==1.", wantErr: true},
		{name: "inline comment", line: "foo==1.0 # note", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, ok, err := ParseLine(tt.line, 7)

			if tt.wantErr {
				require.Error(t, err)
				var e *reqerr.Error
				require.True(t, errors.As(err, &e))
				assert.Equal(t, reqerr.KindInvalidFormat, e.Kind)
				assert.Equal(t, 7, e.Line)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.wantReq, req)
		})
	}
}

func TestParser_Validate(t *testing.T) {
	tests := []struct {
		name     string
		content  string
		wantReqs []dist.Requirement
	}{
		{
			name:     "only ignorable lines",
			content:  "# header\n\n   \n# another\n",
			wantReqs: nil,
		},
		{
			name:     "empty input",
			content:  "",
			wantReqs: nil,
		},
		{
			name:    "file order kept",
			content: "b==2.0\n# comment\na==1.0\n",
			wantReqs: []dist.Requirement{
				{Name: "b", Version: "2.0"},
				{Name: "a", Version: "1.0"},
			},
		},
		{
			name:    "no trailing newline",
			content: "numpy==1.26.4",
			wantReqs: []dist.Requirement{
				{Name: "numpy", Version: "1.26.4"},
			},
		},
		{
			name:    "names are case sensitive",
			content: "Flask==3.0.0\nflask==3.0.0\n",
			wantReqs: []dist.Requirement{
				{Name: "Flask", Version: "3.0.0"},
				{Name: "flask", Version: "3.0.0"},
			},
		},
		{
			name:    "pin longer than the default scanner buffer",
			content: "a==1\n" + strings.Repeat("n", 70*1024) + "==2.0\n",
			wantReqs: []dist.Requirement{
				{Name: "a", Version: "1"},
				{Name: strings.Repeat("n", 70*1024), Version: "2.0"},
			},
		},
		{
			name:    "windows line endings",
			content: "a==1\r\nb==2\r\n",
			wantReqs: []dist.Requirement{
				{Name: "a", Version: "1"},
				{Name: "b", Version: "2"},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			parser := NewParser()

			got, err := parser.Validate(strings.NewReader(tt.content))

			require.NoError(t, err)
			assert.Equal(t, tt.wantReqs, got)
		})
	}
}

func TestParser_Validate_Errors(t *testing.T) {
	tests := []struct {
		name     string
		content  string
		wantKind reqerr.Kind
		wantLine int
		wantPkg  string
	}{
		{
			name:     "malformed second line",
			content:  "# ok\nfoo>=1.0\n",
			wantKind: reqerr.KindInvalidFormat,
			wantLine: 2,
		},
		{
			name:     "line numbers count blank lines",
			content:  "a==1\n\n\nbad line\n",
			wantKind: reqerr.KindInvalidFormat,
			wantLine: 4,
		},
		{
			name:     "duplicate same version",
			content:  "a==1.0\nb==2.0\na==1.0\n",
			wantKind: reqerr.KindRepeatedRequirement,
			wantPkg:  "a",
		},
		{
			name:     "duplicate different version",
			content:  "a==1.0\na==2.0\n",
			wantKind: reqerr.KindRepeatedRequirement,
			wantPkg:  "a",
		},
		{
			name:     "first error wins",
			content:  "a==1\na==1\nnot valid\n",
			wantKind: reqerr.KindRepeatedRequirement,
			wantPkg:  "a",
		},
		{
			name:     "long malformed line",
			content:  "a==1\n" + strings.Repeat("x", 70*1024) + ">=1.0\n",
			wantKind: reqerr.KindInvalidFormat,
			wantLine: 2,
		},
		{
			name:     "line over the size limit",
			content:  "a==1\nb==2\n" + strings.Repeat("x", maxLineSize+1) + "\nc==3\n",
			wantKind: reqerr.KindInvalidFormat,
			wantLine: 3,
		},
		{
			name:     "format error before later duplicate",
			content:  "a==1\n???\na==1\n",
			wantKind: reqerr.KindInvalidFormat,
			wantLine: 2,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			parser := NewParser()

			got, err := parser.Validate(strings.NewReader(tt.content))

			assert.Nil(t, got)
			var e *reqerr.Error
			require.True(t, errors.As(err, &e), "want *reqerr.Error, got %v", err)
			assert.Equal(t, tt.wantKind, e.Kind)
			assert.Equal(t, tt.wantLine, e.Line)
			assert.Equal(t, tt.wantPkg, e.Package)
		})
	}
}

func TestParser_Parse(t *testing.T) {
	// Arrange
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "requirements.txt")
	require.NoError(t, os.WriteFile(path, []byte("requests==2.31.0\nidna==3.6\n"), 0644))

	// Act
	got, err := NewParser().Parse(path)

	// Assert
	require.NoError(t, err)
	assert.Equal(t, []dist.Requirement{
		{Name: "requests", Version: "2.31.0"},
		{Name: "idna", Version: "3.6"},
	}, got)
}

func TestParser_Parse_MissingFile(t *testing.T) {
	_, err := NewParser().Parse(filepath.Join(t.TempDir(), "missing.txt"))

	require.Error(t, err)
	assert.False(t, reqerr.IsInputError(err))
	assert.True(t, errors.Is(err, os.ErrNotExist))
}
