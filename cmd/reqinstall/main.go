package main

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/frederic-klein/reqinstall/internal/config"
	"github.com/frederic-klein/reqinstall/internal/dist"
	"github.com/frederic-klein/reqinstall/internal/index"
	"github.com/frederic-klein/reqinstall/internal/installer"
	"github.com/frederic-klein/reqinstall/internal/logging"
	"github.com/frederic-klein/reqinstall/internal/planner"
	"github.com/frederic-klein/reqinstall/internal/provision"
	"github.com/frederic-klein/reqinstall/internal/reqerr"
)

var (
	configPath       string
	requirementsPath string
	verbosity        int
)

func main() {
	if err := newRootCmd(os.Stdout).Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd(out io.Writer) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "reqinstall",
		Short:         "Install pinned Python requirements into per-version directories",
		Long:          "reqinstall validates a requirements file of exact name==version pins, confirms each release exists on the package index, and installs every one into <target>/<name>/<version> without dependencies. A failed install rolls back every directory the run created.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.SetOut(out)

	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&configPath, "config", "c", "", "Config file (.yaml or .toml)")
	flags.StringVarP(&requirementsPath, "requirements", "r", "./requirements.txt", "Requirements file path, - for stdin")
	flags.CountVarP(&verbosity, "verbose", "v", "Increase log verbosity (repeatable)")
	flags.StringP("target", "t", "", "Destination root directory")
	flags.String("index", "", "Package index base URL")
	flags.String("docker-image", "", "Run pip inside this Docker image")
	flags.Bool("verify-receipts", false, "Treat destinations without an install receipt as not installed")
	flags.Duration("timeout", 0, "Timeout for each package index request")

	rootCmd.AddCommand(
		&cobra.Command{
			Use:   "validate",
			Short: "Check the requirements file format without network access",
			RunE:  runValidate,
		},
		&cobra.Command{
			Use:   "plan",
			Short: "Validate, check the package index and show what would be installed",
			RunE:  runPlan,
		},
		&cobra.Command{
			Use:   "install",
			Short: "Validate, check and install requirements",
			RunE:  runInstall,
		},
	)

	return rootCmd
}

// flagKeys maps CLI flags to config keys.
var flagKeys = map[string]string{
	"target":          "destination",
	"index":           "index_url",
	"docker-image":    "docker_image",
	"verify-receipts": "verify_receipts",
	"timeout":         "request_timeout",
}

func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	overrides := make(map[string]interface{})
	for flagName, key := range flagKeys {
		f := cmd.Flags().Lookup(flagName)
		if f != nil && f.Changed {
			overrides[key] = f.Value.String()
		}
	}
	if cmd.Flags().Changed("verbose") {
		overrides["verbosity"] = verbosity
	}

	cfg, err := config.Load(config.LoadOptions{ConfigFile: configPath, Overrides: overrides})
	if err != nil {
		return nil, err
	}
	logging.SetupLogger(cfg.Verbosity)
	return cfg, nil
}

func newProvisioner(cfg *config.Config) *provision.Provisioner {
	idx := index.NewPackageIndex(cfg.IndexURL, cfg.RequestTimeout)
	inst := installer.NewInstaller(
		installer.WithPipCommand(cfg.Pip.Command),
		installer.WithDockerImage(cfg.DockerImage),
		installer.WithIndexURL(idx.URL()),
	)
	return provision.New(idx, planner.NewPlanner(cfg.VerifyReceipts), inst)
}

func openRequirements(cmd *cobra.Command) (io.ReadCloser, error) {
	if requirementsPath == "-" {
		return io.NopCloser(cmd.InOrStdin()), nil
	}
	f, err := os.Open(requirementsPath)
	if err != nil {
		return nil, fmt.Errorf("opening requirements file: %w", err)
	}
	return f, nil
}

func runValidate(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return report(cmd, err)
	}

	r, err := openRequirements(cmd)
	if err != nil {
		return report(cmd, err)
	}
	defer r.Close()

	reqs, err := newProvisioner(cfg).Validate(r)
	if err != nil {
		return report(cmd, err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "%s: %d valid requirements\n", requirementsPath, len(reqs))
	return nil
}

func runPlan(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return report(cmd, err)
	}

	r, err := openRequirements(cmd)
	if err != nil {
		return report(cmd, err)
	}
	defer r.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	res, err := newProvisioner(cfg).Prepare(ctx, r, cfg.Destination)
	if err != nil {
		return report(cmd, err)
	}

	printRecords(cmd.OutOrStdout(), res.Records)
	return nil
}

func runInstall(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return report(cmd, err)
	}

	r, err := openRequirements(cmd)
	if err != nil {
		return report(cmd, err)
	}
	defer r.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Info().Str("requirements", requirementsPath).Str("target", cfg.Destination).Msg("Installing requirements")

	outcome := <-newProvisioner(cfg).Start(ctx, r, cfg.Destination)
	if outcome.Err != nil {
		return report(cmd, outcome.Err)
	}

	printRecords(cmd.OutOrStdout(), outcome.Result.Records)
	fmt.Fprintf(cmd.OutOrStdout(), "Installed %d, skipped %d under %s\n",
		len(outcome.Result.Plan.Targets), len(outcome.Result.Plan.Skipped), cfg.Destination)
	return nil
}

func printRecords(w io.Writer, records []provision.Record) {
	for _, rec := range records {
		verb := "install"
		switch rec.Status {
		case dist.StatusSkipped:
			verb = "skip"
		case dist.StatusInstalled:
			verb = "ok"
		}
		fmt.Fprintf(w, "%-7s %s  %s\n", verb, rec.Requirement, rec.Path)
	}
}

// report prints err for the user and returns it so the exit code is non-zero.
func report(cmd *cobra.Command, err error) error {
	if reqerr.IsInputError(err) {
		fmt.Fprintf(cmd.ErrOrStderr(), "invalid requirements: %v\n", err)
	} else {
		fmt.Fprintf(cmd.ErrOrStderr(), "error: %v\n", err)
	}
	return err
}
