package planner

import (
	"os"

	"github.com/rs/zerolog"

	"github.com/frederic-klein/reqinstall/internal/dist"
	"github.com/frederic-klein/reqinstall/internal/logging"
	"github.com/frederic-klein/reqinstall/internal/receipt"
)

// Plan is the ordered list of targets still to install.
type Plan struct {
	Root    string
	Targets []dist.Target
	Skipped []dist.Target
}

// Empty reports whether there is nothing left to install.
func (p Plan) Empty() bool {
	return len(p.Targets) == 0
}

// Planner decides which requirements still need installing under a root.
type Planner struct {
	verifyReceipts bool
	log            zerolog.Logger
}

// NewPlanner creates a planner. With verifyReceipts set, an existing
// destination only counts as installed when it holds a matching receipt.
func NewPlanner(verifyReceipts bool) *Planner {
	return &Planner{
		verifyReceipts: verifyReceipts,
		log:            logging.GetLogger("planner"),
	}
}

// Plan maps reqs to targets under root and drops those already installed.
// Input order is kept.
func (p *Planner) Plan(reqs []dist.Requirement, root string) Plan {
	plan := Plan{Root: root}

	for _, req := range reqs {
		target := dist.NewTarget(root, req)

		if p.installed(target) {
			p.log.Debug().
				Str("package", req.Name).
				Str("version", req.Version).
				Str("path", target.Path).
				Msg("Already installed, skipping")
			plan.Skipped = append(plan.Skipped, target)
			continue
		}
		plan.Targets = append(plan.Targets, target)
	}

	p.log.Debug().
		Int("toInstall", len(plan.Targets)).
		Int("skipped", len(plan.Skipped)).
		Msg("Plan ready")
	return plan
}

func (p *Planner) installed(target dist.Target) bool {
	if _, err := os.Stat(target.Path); err != nil {
		return false
	}
	if !p.verifyReceipts {
		return true
	}

	if _, err := receipt.Read(target.Path); err != nil {
		if receipt.IsMissing(err) {
			p.log.Warn().Str("path", target.Path).Msg("Destination exists without receipt, reinstalling")
		} else {
			p.log.Warn().Err(err).Str("path", target.Path).Msg("Unreadable receipt, reinstalling")
		}
		return false
	}
	return receipt.Complete(target.Path, target.Requirement)
}
