package provision

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/AegisDefend/aegis-installer/internal/catalog"
	"github.com/AegisDefend/aegis-installer/internal/config"
	"github.com/AegisDefend/aegis-installer/internal/fetcher"
	"github.com/AegisDefend/aegis-installer/internal/installer"
	"github.com/AegisDefend/aegis-installer/internal/platform"
	"github.com/AegisDefend/aegis-installer/internal/receipt"
	"github.com/AegisDefend/aegis-installer/internal/selector"
	"github.com/AegisDefend/aegis-installer/pkg/logger"
)

// catalogLister lists available packages.
type catalogLister interface {
	ListPackages(ctx context.Context, q catalog.Query) ([]catalog.PackageRecord, error)
}

// artifactFetcher downloads a selected package to the staging path.
type artifactFetcher interface {
	Fetch(ctx context.Context, sel selector.Result) (fetcher.StagedArtifact, error)
}

// installRunner drives the install state machine.
type installRunner interface {
	Run(ctx context.Context, plan installer.Plan) (installer.State, error)
}

// Pipeline wires the stages strictly forward: descriptor + credentials ->
// catalog -> selector -> fetcher -> installer. No stage loops back and no
// state is shared except each stage's returned value.
type Pipeline struct {
	cfg     *config.Config
	desc    platform.Descriptor
	catalog catalogLister
	fetcher artifactFetcher
	driver  installRunner
	logger  *logger.Logger
	runID   string
}

// New builds a pipeline with real collaborators for the current host.
func New(cfg *config.Config) (*Pipeline, error) {
	desc, err := platform.Detect(cfg.Install.ArchOverride)
	if err != nil {
		return nil, err
	}

	return &Pipeline{
		cfg:  cfg,
		desc: desc,
		catalog: catalog.NewClient(
			cfg.Console.URL, cfg.Console.APIKey, cfg.Console.AuthScheme, cfg.Console.Timeout),
		fetcher: fetcher.New(
			cfg.Console.APIKey, cfg.Console.AuthScheme, cfg.Download.Dir,
			cfg.Download.Timeout, cfg.Download.Retries),
		driver: installer.NewDriver(),
		logger: logger.NewLogger("provision"),
		runID:  uuid.New().String(),
	}, nil
}

// newWith builds a pipeline with injected collaborators, for tests.
func newWith(cfg *config.Config, desc platform.Descriptor, lister catalogLister, f artifactFetcher, driver installRunner) *Pipeline {
	return &Pipeline{
		cfg:     cfg,
		desc:    desc,
		catalog: lister,
		fetcher: f,
		driver:  driver,
		logger:  logger.NewLogger("provision"),
		runID:   uuid.New().String(),
	}
}

// Run executes one provisioning pass. Every failure is fatal: an empty
// selection, a rejected API key or a failed install step stops the run with
// an error, never with a silent fallback. The staged artifact is removed on
// both success and failure.
func (p *Pipeline) Run(ctx context.Context) error {
	startedAt := time.Now().UTC()
	p.logger.WithFields(logger.Fields{
		"run_id":  p.runID,
		"channel": p.cfg.Console.Channel,
		"arch":    string(p.desc.Arch),
		"package": string(p.desc.Package),
	}).Info("Starting agent provisioning")

	records, err := p.catalog.ListPackages(ctx,
		catalog.QueryFor(p.desc, p.cfg.Console.Channel, p.cfg.Selection.Limit))
	if err != nil {
		return err
	}

	sel, err := selector.Select(records, p.cfg.Console.Channel, p.desc.Arch,
		selector.Policy(p.cfg.Selection.Policy), p.logger)
	if err != nil {
		return err
	}

	artifact, err := p.fetcher.Fetch(ctx, sel)
	if err != nil {
		return err
	}
	defer func() {
		if err := artifact.Remove(); err != nil {
			p.logger.WithError(err).Warn("Could not clean up staged artifact")
		}
	}()

	variant, err := installer.ResolveVariant(p.desc, sel.MajorVersion)
	if err != nil {
		return err
	}

	state, err := p.driver.Run(ctx, installer.Plan{
		Variant:    variant,
		Artifact:   artifact.Path,
		SiteToken:  p.cfg.Console.SiteToken,
		AutoReboot: p.cfg.Install.AutoReboot,
		SkipStart:  p.cfg.Install.SkipStart,
	})
	if err != nil {
		return fmt.Errorf("install halted at state %s: %w", state, err)
	}

	p.writeReceipt(sel, variant, state, startedAt)

	p.logger.WithFields(logger.Fields{
		"run_id":  p.runID,
		"package": sel.FileName,
		"version": sel.Version,
		"state":   state.String(),
	}).Info("Agent provisioning completed")
	return nil
}

// writeReceipt records the run outcome next to the staging directory. Best
// effort: a receipt failure does not fail an otherwise successful install.
func (p *Pipeline) writeReceipt(sel selector.Result, variant installer.Variant, state installer.State, startedAt time.Time) {
	rec := &receipt.Receipt{
		RunID:      p.runID,
		Package:    sel.FileName,
		Version:    sel.Version,
		Channel:    p.cfg.Console.Channel,
		Arch:       string(p.desc.Arch),
		Variant:    variant.String(),
		FinalState: state.String(),
		StartedAt:  startedAt,
		FinishedAt: time.Now().UTC(),
	}

	dir := p.cfg.Download.Dir
	if dir == "" {
		dir = os.TempDir()
	}
	path := filepath.Join(dir, "aegis-install-receipt.yaml")
	if err := rec.Write(path); err != nil {
		p.logger.WithError(err).Warn("Could not write install receipt")
		return
	}
	p.logger.WithField("path", path).Info("Install receipt written")
}
