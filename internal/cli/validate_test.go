package cli

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const testDeployYAML = `
name: demo
resources:
  - name: store
    kind: storage/account
    attributes:
      account_name: appdata${{ identifier.suffix }}
    outputs: [host]
  - name: container
    kind: storage/container
    attributes:
      account: ${{ resources.store.host }}
`

func writeTempDeploy(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "deploy.yml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write temp file: %v", err)
	}
	return path
}

func TestValidateCmd_ValidDeployment(t *testing.T) {
	path := writeTempDeploy(t, testDeployYAML)

	cmd := newValidateCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{path})

	if err := cmd.Execute(); err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}

	if !strings.Contains(out.String(), "2 resources in 2 batches") {
		t.Errorf("unexpected output: %s", out.String())
	}
}

func TestValidateCmd_CyclicDeployment(t *testing.T) {
	path := writeTempDeploy(t, `
name: demo
resources:
  - name: a
    kind: k
    attributes:
      in: ${{ resources.b.out }}
    outputs: [out]
  - name: b
    kind: k
    attributes:
      in: ${{ resources.a.out }}
    outputs: [out]
`)

	cmd := newValidateCmd()
	cmd.SetOut(new(bytes.Buffer))
	cmd.SetErr(new(bytes.Buffer))
	cmd.SetArgs([]string{path})

	err := cmd.Execute()
	if err == nil {
		t.Fatal("expected an error for a cyclic deployment")
	}

	var exitErr *ExitError
	if !errors.As(err, &exitErr) || exitErr.Code != exitBuildError {
		t.Errorf("expected exit code %d, got: %v", exitBuildError, err)
	}
}

func TestValidateCmd_MissingFile(t *testing.T) {
	cmd := newValidateCmd()
	cmd.SetOut(new(bytes.Buffer))
	cmd.SetErr(new(bytes.Buffer))
	cmd.SetArgs([]string{filepath.Join(t.TempDir(), "nope.yml")})

	var exitErr *ExitError
	if err := cmd.Execute(); !errors.As(err, &exitErr) || exitErr.Code != exitBuildError {
		t.Errorf("expected build error exit code, got: %v", err)
	}
}
