package cli

import (
	"bufio"
	"fmt"
	"os"
	"os/user"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/cloudseed-io/seedctl/pkg/deployment"
	"github.com/cloudseed-io/seedctl/pkg/engine"
	"github.com/cloudseed-io/seedctl/pkg/envfile"
	"github.com/cloudseed-io/seedctl/pkg/secrets"
)

// Exit codes for apply: 0 when every resource applied, 1 when the run
// started but failed or was partial, 2 when the declaration was rejected
// before any resource was attempted.
const (
	exitApplied    = 0
	exitRunFailed  = 1
	exitBuildError = 2
)

// ExitError carries a process exit code up to main.
type ExitError struct {
	Code int
	Err  error
}

func (e *ExitError) Error() string {
	if e.Err != nil {
		return e.Err.Error()
	}
	return fmt.Sprintf("exit code %d", e.Code)
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

func newApplyCmd() *cobra.Command {
	var (
		file             string
		region           string
		vars             []string
		varFile          string
		secretsFile      string
		seed             int64
		parallelism      int
		dryRun           bool
		simulate         bool
		autoApprove      bool
		awsSecretsRegion string
	)

	cmd := &cobra.Command{
		Use:   "apply [path]",
		Short: "Apply a deployment declaration",
		Long: `Apply a deployment declaration file.

Resources are applied in dependency order, with independent resources
in parallel. A failed resource skips everything downstream of it but
does not stop independent branches. The outcome of every resource is
written to a run record.

Examples:
  seedctl apply deploy.yml
  seedctl apply -f deploy.hcl --var region=westeurope
  seedctl apply deploy.yml --simulate --seed 42`,
		Args:         cobra.MaximumNArgs(1),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			path := file
			if path == "" && len(args) > 0 {
				path = args[0]
			}
			if path == "" {
				return &ExitError{Code: exitBuildError, Err: fmt.Errorf("no declaration file given")}
			}

			dep, err := deployment.Load(path)
			if err != nil {
				return &ExitError{Code: exitBuildError, Err: err}
			}

			variables := make(map[string]string)
			if varFile != "" {
				fromFile, err := envfile.ParseFile(varFile)
				if err != nil {
					return &ExitError{Code: exitBuildError, Err: err}
				}
				variables = fromFile
			}
			fromFlags, err := parseVars(vars)
			if err != nil {
				return &ExitError{Code: exitBuildError, Err: err}
			}
			for k, v := range fromFlags {
				variables[k] = v
			}
			if region != "" {
				variables["region"] = region
			}

			if !autoApprove && !dryRun {
				if !confirm(cmd, dep) {
					fmt.Fprintln(cmd.OutOrStdout(), "Apply cancelled.")
					return nil
				}
			}

			backendType, _ := cmd.Flags().GetString("backend")
			backendConfig, _ := cmd.Flags().GetStringArray("backend-config")
			stateManager, err := createStateManagerWithConfig(backendType, backendConfig)
			if err != nil {
				return &ExitError{Code: exitBuildError, Err: err}
			}

			registry := createRegistry(dep, simulate)

			secretManager := createSecretManager()
			if secretsFile != "" {
				values, err := envfile.ParseFile(secretsFile)
				if err != nil {
					return &ExitError{Code: exitBuildError, Err: err}
				}
				secretManager.RegisterProvider(&secrets.StaticProvider{
					ProviderName: "file",
					Values:       values,
				})
			}
			if awsSecretsRegion != "" {
				provider, err := secrets.NewAWSProvider(cmd.Context(), awsSecretsRegion)
				if err != nil {
					return &ExitError{Code: exitBuildError, Err: err}
				}
				secretManager.RegisterProvider(provider)
			}

			eng := engine.New(stateManager, registry, secretManager)

			opts := engine.RunOptions{
				Deployment:  dep,
				Variables:   variables,
				Parallelism: parallelism,
				DryRun:      dryRun,
				Who:         whoAmI(),
				Output:      cmd.OutOrStdout(),
			}
			if cmd.Flags().Changed("seed") {
				opts.Seed = &seed
			}

			result, err := eng.Run(cmd.Context(), opts)
			if err != nil {
				return &ExitError{Code: exitBuildError, Err: err}
			}

			if !result.Success {
				return &ExitError{
					Code: exitRunFailed,
					Err:  fmt.Errorf("run %s finished with status %s", result.Record.ID, result.Record.Status),
				}
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "", "Path to the declaration file")
	cmd.Flags().StringVar(&region, "region", "", "Shorthand for --var region=<value>")
	cmd.Flags().StringArrayVar(&vars, "var", nil, "Variable override (key=value, repeatable)")
	cmd.Flags().StringVar(&varFile, "var-file", "", "Dotenv file with variable overrides")
	cmd.Flags().StringVar(&secretsFile, "secrets-file", "", "Dotenv file served through the secret resolver")
	cmd.Flags().Int64Var(&seed, "seed", 0, "Seed the identifier suffix for reproducible names")
	cmd.Flags().IntVar(&parallelism, "parallelism", defaultParallelism, "Max concurrent applies within a batch")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Resolve and schedule without mutating anything")
	cmd.Flags().BoolVar(&simulate, "simulate", false, "Converge every kind in memory instead of using real drivers")
	cmd.Flags().BoolVar(&autoApprove, "auto-approve", false, "Skip the confirmation prompt")
	cmd.Flags().StringVar(&awsSecretsRegion, "aws-secrets-region", "", "Enable the AWS Secrets Manager provider in this region")

	return cmd
}

func parseVars(vars []string) (map[string]string, error) {
	out := make(map[string]string, len(vars))
	for _, v := range vars {
		parts := strings.SplitN(v, "=", 2)
		if len(parts) != 2 || parts[0] == "" {
			return nil, fmt.Errorf("invalid --var %q, expected key=value", v)
		}
		out[parts[0]] = parts[1]
	}
	return out, nil
}

// confirm prompts before applying. Non-interactive invocations must pass
// --auto-approve.
func confirm(cmd *cobra.Command, dep *deployment.Deployment) bool {
	if !term.IsTerminal(int(os.Stdin.Fd())) {
		fmt.Fprintln(cmd.ErrOrStderr(), "Refusing to apply without a terminal; pass --auto-approve to proceed.")
		return false
	}

	fmt.Fprintf(cmd.OutOrStdout(), "About to apply %d resources for deployment %q. Continue? [y/N] ",
		len(dep.Resources), dep.Name)

	reader := bufio.NewReader(os.Stdin)
	answer, err := reader.ReadString('\n')
	if err != nil {
		return false
	}
	answer = strings.ToLower(strings.TrimSpace(answer))
	return answer == "y" || answer == "yes"
}

func whoAmI() string {
	username := "unknown"
	if u, err := user.Current(); err == nil {
		username = u.Username
	}
	host, err := os.Hostname()
	if err != nil {
		host = "unknown"
	}
	return username + "@" + host
}
