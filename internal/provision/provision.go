// Package provision runs the requirements pipeline: validate the file,
// confirm every requirement on the package index, plan what is missing under
// the destination root, and install it.
//
// Each stage stops the pipeline at its first error. Nothing touches the
// filesystem until validation and the remote checks have passed.
package provision

import (
	"context"
	"io"

	"github.com/rs/zerolog"

	"github.com/frederic-klein/reqinstall/internal/dist"
	"github.com/frederic-klein/reqinstall/internal/logging"
	"github.com/frederic-klein/reqinstall/internal/planner"
	"github.com/frederic-klein/reqinstall/internal/reqfile"
)

// Checker confirms requirements exist remotely. *index.PackageIndex implements it.
type Checker interface {
	CheckAll(ctx context.Context, reqs []dist.Requirement) error
}

// Installer installs a plan. *installer.Installer implements it.
type Installer interface {
	Install(ctx context.Context, plan planner.Plan) error
}

// Record is the outcome for one requirement.
type Record struct {
	dist.Requirement
	Path   string
	Status dist.Status
}

// Result describes a pipeline run.
type Result struct {
	Requirements []dist.Requirement
	Plan         planner.Plan
	Records      []Record
}

// Outcome is delivered by Start.
type Outcome struct {
	Result *Result
	Err    error
}

// Provisioner wires the pipeline stages together.
type Provisioner struct {
	parser    *reqfile.Parser
	checker   Checker
	planner   *planner.Planner
	installer Installer
	log       zerolog.Logger
}

// New creates a Provisioner from its stages.
func New(checker Checker, pl *planner.Planner, inst Installer) *Provisioner {
	return &Provisioner{
		parser:    reqfile.NewParser(),
		checker:   checker,
		planner:   pl,
		installer: inst,
		log:       logging.GetLogger("provision"),
	}
}

// Validate runs only the file validation stage.
func (p *Provisioner) Validate(r io.Reader) ([]dist.Requirement, error) {
	defer logging.LogOperationStart(p.log, "validate")()
	return p.parser.Validate(r)
}

// Prepare validates the requirements, checks them on the index and plans
// the install under root. It never changes the filesystem.
func (p *Provisioner) Prepare(ctx context.Context, r io.Reader, root string) (*Result, error) {
	reqs, err := p.Validate(r)
	if err != nil {
		return nil, err
	}
	p.log.Info().Int("count", len(reqs)).Msg("Requirements file is valid")

	done := logging.LogOperationStart(p.log, "check")
	err = p.checker.CheckAll(ctx, reqs)
	done()
	if err != nil {
		return nil, err
	}

	plan := p.planner.Plan(reqs, root)
	return &Result{
		Requirements: reqs,
		Plan:         plan,
		Records:      records(reqs, plan, dist.StatusPending),
	}, nil
}

// Run executes the whole pipeline synchronously.
func (p *Provisioner) Run(ctx context.Context, r io.Reader, root string) (*Result, error) {
	res, err := p.Prepare(ctx, r, root)
	if err != nil {
		return nil, err
	}

	if err := p.installer.Install(ctx, res.Plan); err != nil {
		return nil, err
	}

	res.Records = records(res.Requirements, res.Plan, dist.StatusInstalled)
	p.log.Info().
		Int("installed", len(res.Plan.Targets)).
		Int("skipped", len(res.Plan.Skipped)).
		Msg("Provisioning finished")
	return res, nil
}

// Start runs the pipeline on its own goroutine so the caller is not blocked.
// The channel yields exactly one Outcome and is then closed.
func (p *Provisioner) Start(ctx context.Context, r io.Reader, root string) <-chan Outcome {
	out := make(chan Outcome, 1)
	go func() {
		defer close(out)
		res, err := p.Run(ctx, r, root)
		out <- Outcome{Result: res, Err: err}
	}()
	return out
}

// records lists every requirement in file order. Planned targets get
// planned, skipped targets get dist.StatusSkipped.
func records(reqs []dist.Requirement, plan planner.Plan, planned dist.Status) []Record {
	skipped := make(map[string]bool, len(plan.Skipped))
	for _, t := range plan.Skipped {
		skipped[t.Name] = true
	}

	out := make([]Record, 0, len(reqs))
	for _, req := range reqs {
		status := planned
		if skipped[req.Name] {
			status = dist.StatusSkipped
		}
		out = append(out, Record{
			Requirement: req,
			Path:        dist.DestinationPath(plan.Root, req.Name, req.Version),
			Status:      status,
		})
	}
	return out
}
