package cli

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestApplyCmd_Flags(t *testing.T) {
	cmd := newApplyCmd()

	for _, name := range []string{
		"file", "region", "var", "var-file", "secrets-file", "seed",
		"parallelism", "dry-run", "simulate", "auto-approve",
		"aws-secrets-region",
	} {
		if cmd.Flags().Lookup(name) == nil {
			t.Errorf("expected --%s flag", name)
		}
	}
}

func TestApplyCmd_SimulateApply(t *testing.T) {
	t.Setenv(EnvStateBackend, "local")
	t.Setenv(EnvStatePrefix+"PATH", t.TempDir())

	path := writeTempDeploy(t, testDeployYAML)

	cmd := newApplyCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{path, "--simulate", "--auto-approve", "--seed", "7"})

	if err := cmd.Execute(); err != nil {
		t.Fatalf("expected apply to succeed, got: %v", err)
	}

	if !strings.Contains(out.String(), "applied") {
		t.Errorf("expected run summary in output, got: %s", out.String())
	}
}

func TestApplyCmd_SeededSuffixIsReproducible(t *testing.T) {
	t.Setenv(EnvStateBackend, "local")
	t.Setenv(EnvStatePrefix+"PATH", t.TempDir())

	path := writeTempDeploy(t, testDeployYAML)

	run := func() string {
		cmd := newApplyCmd()
		var out bytes.Buffer
		cmd.SetOut(&out)
		cmd.SetArgs([]string{path, "--simulate", "--auto-approve", "--seed", "42"})
		if err := cmd.Execute(); err != nil {
			t.Fatalf("apply failed: %v", err)
		}
		return out.String()
	}

	first := run()
	second := run()

	suffix := extractSuffix(t, first)
	if !strings.Contains(second, suffix) {
		t.Errorf("expected suffix %q in second run output:\n%s", suffix, second)
	}
}

func extractSuffix(t *testing.T, output string) string {
	t.Helper()
	for _, line := range strings.Split(output, "\n") {
		if strings.Contains(line, "Suffix:") {
			fields := strings.Fields(line)
			return fields[len(fields)-1]
		}
	}
	t.Fatalf("no suffix line in output:\n%s", output)
	return ""
}

func TestApplyCmd_MalformedFile(t *testing.T) {
	path := writeTempDeploy(t, "resources: [")

	cmd := newApplyCmd()
	cmd.SetOut(new(bytes.Buffer))
	cmd.SetErr(new(bytes.Buffer))
	cmd.SetArgs([]string{path, "--auto-approve"})

	var exitErr *ExitError
	if err := cmd.Execute(); !errors.As(err, &exitErr) || exitErr.Code != exitBuildError {
		t.Errorf("expected build error exit code, got: %v", err)
	}
}

func TestApplyCmd_UnknownKindRejectedBeforeApply(t *testing.T) {
	t.Setenv(EnvStateBackend, "local")
	t.Setenv(EnvStatePrefix+"PATH", t.TempDir())

	path := writeTempDeploy(t, testDeployYAML)

	// Without --simulate no driver handles storage/account, so the run
	// must be rejected before any resource is attempted.
	cmd := newApplyCmd()
	cmd.SetOut(new(bytes.Buffer))
	cmd.SetErr(new(bytes.Buffer))
	cmd.SetArgs([]string{path, "--auto-approve"})

	var exitErr *ExitError
	if err := cmd.Execute(); !errors.As(err, &exitErr) || exitErr.Code != exitBuildError {
		t.Errorf("expected build error exit code, got: %v", err)
	}
}

func TestApplyCmd_MissingSecretFailsRun(t *testing.T) {
	t.Setenv(EnvStateBackend, "local")
	t.Setenv(EnvStatePrefix+"PATH", t.TempDir())

	path := writeTempDeploy(t, `
name: demo
resources:
  - name: db
    kind: sql/server
    attributes:
      admin_password: ${{ secrets.no_such_secret_anywhere }}
`)

	cmd := newApplyCmd()
	cmd.SetOut(new(bytes.Buffer))
	cmd.SetErr(new(bytes.Buffer))
	cmd.SetArgs([]string{path, "--simulate", "--auto-approve"})

	var exitErr *ExitError
	if err := cmd.Execute(); !errors.As(err, &exitErr) || exitErr.Code != exitRunFailed {
		t.Errorf("expected run failure exit code, got: %v", err)
	}
}

func TestApplyCmd_SecretsFile(t *testing.T) {
	t.Setenv(EnvStateBackend, "local")
	t.Setenv(EnvStatePrefix+"PATH", t.TempDir())

	dir := t.TempDir()
	secretsPath := filepath.Join(dir, "secrets.env")
	if err := os.WriteFile(secretsPath, []byte("db_password=hunter2\n"), 0600); err != nil {
		t.Fatal(err)
	}

	path := writeTempDeploy(t, `
name: demo
resources:
  - name: db
    kind: sql/server
    attributes:
      admin_password: ${{ secrets.db_password }}
`)

	cmd := newApplyCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{path, "--simulate", "--auto-approve", "--secrets-file", secretsPath})

	if err := cmd.Execute(); err != nil {
		t.Fatalf("expected apply to succeed with the secrets file, got: %v", err)
	}
	if strings.Contains(out.String(), "hunter2") {
		t.Error("secret value leaked into the run summary")
	}
}

func TestApplyCmd_VarFile(t *testing.T) {
	t.Setenv(EnvStateBackend, "local")
	t.Setenv(EnvStatePrefix+"PATH", t.TempDir())

	varsPath := filepath.Join(t.TempDir(), "vars.env")
	if err := os.WriteFile(varsPath, []byte("region=northeurope\n"), 0644); err != nil {
		t.Fatal(err)
	}

	path := writeTempDeploy(t, `
name: demo
variables:
  region: westeurope
resources:
  - name: store
    kind: storage/account
    attributes:
      location: ${{ variables.region }}
`)

	cmd := newApplyCmd()
	cmd.SetOut(new(bytes.Buffer))
	cmd.SetArgs([]string{
		path, "--simulate", "--auto-approve",
		"--var-file", varsPath,
		"--var", "region=eastus",
	})

	if err := cmd.Execute(); err != nil {
		t.Fatalf("expected apply to succeed, got: %v", err)
	}
}

func TestApplyCmd_RefusesWithoutTerminal(t *testing.T) {
	path := writeTempDeploy(t, testDeployYAML)

	cmd := newApplyCmd()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs([]string{path, "--simulate"})

	if err := cmd.Execute(); err != nil {
		t.Fatalf("cancelled apply should not error, got: %v", err)
	}
	if !strings.Contains(out.String(), "Apply cancelled.") {
		t.Errorf("expected cancellation notice, got: %s", out.String())
	}
}

func TestParseVars(t *testing.T) {
	vars, err := parseVars([]string{"region=westeurope", "flag=a=b"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if vars["region"] != "westeurope" || vars["flag"] != "a=b" {
		t.Errorf("unexpected vars: %v", vars)
	}

	if _, err := parseVars([]string{"oops"}); err == nil {
		t.Error("expected an error for a malformed variable")
	}
}
