package installer

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"

	"github.com/frederic-klein/reqinstall/internal/dist"
	"github.com/frederic-klein/reqinstall/internal/logging"
	"github.com/frederic-klein/reqinstall/internal/planner"
	"github.com/frederic-klein/reqinstall/internal/receipt"
	"github.com/frederic-klein/reqinstall/internal/reqerr"
)

// outputLines is how much command output is kept in an installation error.
const outputLines = 5

// Option configures an Installer.
type Option func(*Installer)

// WithRunner replaces the command runner.
func WithRunner(r Runner) Option {
	return func(i *Installer) {
		i.runner = r
	}
}

// WithPipCommand sets the pip invocation, e.g. ["pip3"] or ["python3", "-m", "pip"].
func WithPipCommand(pip []string) Option {
	return func(i *Installer) {
		if len(pip) > 0 {
			i.command.Pip = pip
		}
	}
}

// WithDockerImage runs pip inside image instead of on the host.
func WithDockerImage(image string) Option {
	return func(i *Installer) {
		i.command.DockerImage = image
	}
}

// WithIndexURL records the index the requirements were checked against in receipts.
func WithIndexURL(url string) Option {
	return func(i *Installer) {
		i.indexURL = url
	}
}

// Installer installs planned targets and rolls back the whole batch if any
// target fails.
type Installer struct {
	runner   Runner
	command  Command
	indexURL string
	log      zerolog.Logger
}

// NewInstaller creates an installer that shells out to pip on the host.
func NewInstaller(opts ...Option) *Installer {
	i := &Installer{
		runner:  ExecRunner{},
		command: Command{Pip: DefaultPipCommand},
		log:     logging.GetLogger("installer"),
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// Start runs Install on its own goroutine. The channel yields exactly one
// result and is then closed.
func (i *Installer) Start(ctx context.Context, plan planner.Plan) <-chan error {
	done := make(chan error, 1)
	go func() {
		defer close(done)
		done <- i.Install(ctx, plan)
	}()
	return done
}

// Install creates every target directory, then installs targets one at a
// time in plan order. If any install fails, every directory created by this
// call is removed before the error is returned. Directories that existed
// beforehand are never removed.
func (i *Installer) Install(ctx context.Context, plan planner.Plan) error {
	if plan.Empty() {
		i.log.Debug().Msg("Nothing to install")
		return nil
	}
	defer logging.LogOperationStart(i.log, "install")()

	for _, target := range plan.Targets {
		if !target.WithinRoot(plan.Root) {
			return reqerr.InstallationFailure(target.Name, target.Version,
				fmt.Errorf("destination %s is outside %s", target.Path, plan.Root))
		}
	}

	b := &batch{}
	for _, target := range plan.Targets {
		if err := b.create(target.Path); err != nil {
			if rbErr := b.rollback(); rbErr != nil {
				err = errors.Join(err, rbErr)
			}
			return fmt.Errorf("creating %s: %w", target.Path, err)
		}
	}
	i.log.Debug().Strs("created", b.created).Msg("Directories created")

	for _, target := range plan.Targets {
		if err := i.installOne(ctx, target); err != nil {
			i.log.Error().
				Err(err).
				Str("package", target.Name).
				Str("version", target.Version).
				Msg("Install failed, rolling back batch")

			if rbErr := b.rollback(); rbErr != nil {
				i.log.Warn().Err(rbErr).Msg("Rollback incomplete")
				err = errors.Join(err, rbErr)
			} else {
				i.log.Warn().Int("removed", len(b.created)).Msg("Batch rolled back")
			}
			return reqerr.InstallationFailure(target.Name, target.Version, err)
		}
	}

	i.log.Info().Int("count", len(plan.Targets)).Msg("Installed requirements")
	return nil
}

func (i *Installer) installOne(ctx context.Context, target dist.Target) error {
	name, args, err := i.command.Build(target)
	if err != nil {
		return err
	}

	i.log.Debug().
		Str("package", target.Name).
		Str("version", target.Version).
		Str("command", name).
		Strs("args", args).
		Msg("Running install command")

	output, err := i.runner.Run(ctx, name, args, "")
	if err != nil {
		if out := tail(output, outputLines); out != "" {
			return fmt.Errorf("%w\n%s", err, out)
		}
		return err
	}

	cmdline := append([]string{name}, args...)
	if err := receipt.Write(target.Path, receipt.New(target.Requirement, i.indexURL, cmdline)); err != nil {
		return err
	}
	return nil
}

// batch tracks the directories one Install call created.
type batch struct {
	created []string
}

// create makes path and its missing parents, recording the top-most
// directory that did not exist before.
func (b *batch) create(path string) error {
	top, err := topMissing(path)
	if err != nil {
		return err
	}
	if top == "" {
		return nil
	}
	if err := os.MkdirAll(path, 0755); err != nil {
		return err
	}
	b.created = append(b.created, top)
	return nil
}

// rollback removes created directories newest first. It keeps going past
// failures and returns them joined.
func (b *batch) rollback() error {
	var errs []error
	for idx := len(b.created) - 1; idx >= 0; idx-- {
		if err := os.RemoveAll(b.created[idx]); err != nil {
			errs = append(errs, fmt.Errorf("removing %s: %w", b.created[idx], err))
		}
	}
	return errors.Join(errs...)
}

// topMissing returns the outermost ancestor of path (path included) that does
// not exist, or "" when path already exists.
func topMissing(path string) (string, error) {
	top := ""
	for p := filepath.Clean(path); ; {
		_, err := os.Stat(p)
		if err == nil {
			return top, nil
		}
		if !os.IsNotExist(err) {
			return "", err
		}
		top = p

		parent := filepath.Dir(p)
		if parent == p {
			return top, nil
		}
		p = parent
	}
}
