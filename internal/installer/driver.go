package installer

import (
	"context"
	"fmt"

	"github.com/AegisDefend/aegis-installer/internal/cmdrunner"
	"github.com/AegisDefend/aegis-installer/pkg/logger"
)

// Default command surface of the installed agent.
const (
	DefaultAgentCtl    = "aegisctl"
	DefaultServiceName = "aegis-agent.service"
)

// State tracks how far the install sequence progressed. Transitions are
// strictly forward; a failed step leaves the driver at the last reached state.
type State int

const (
	StateNotStarted State = iota
	StateDownloaded
	StateInstalled
	StateTokenSet
	StateStarted
)

func (s State) String() string {
	switch s {
	case StateNotStarted:
		return "not-started"
	case StateDownloaded:
		return "downloaded"
	case StateInstalled:
		return "installed"
	case StateTokenSet:
		return "token-set"
	case StateStarted:
		return "started"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Plan is everything the driver needs for one install run.
type Plan struct {
	Variant     Variant
	Artifact    string
	SiteToken   string
	AutoReboot  bool
	SkipStart   bool
	AgentCtl    string
	ServiceName string
}

func (p Plan) agentCtl() string {
	if p.AgentCtl != "" {
		return p.AgentCtl
	}
	return DefaultAgentCtl
}

func (p Plan) serviceName() string {
	if p.ServiceName != "" {
		return p.ServiceName
	}
	return DefaultServiceName
}

// UnitChecker reports a systemd unit's activation state.
type UnitChecker interface {
	ActiveState(ctx context.Context, unit string) (string, error)
}

// Driver runs the install sequence against a staged artifact.
type Driver struct {
	runner  cmdrunner.Runner
	systemd UnitChecker
	logger  *logger.Logger
}

// NewDriver creates a driver using the real command runner and systemd bus.
func NewDriver() *Driver {
	return &Driver{
		runner:  cmdrunner.NewCommandsRunner(),
		systemd: SystemdChecker{},
		logger:  logger.NewLogger("installer"),
	}
}

// NewDriverWith creates a driver with injected collaborators.
func NewDriverWith(runner cmdrunner.Runner, systemd UnitChecker) *Driver {
	return &Driver{
		runner:  runner,
		systemd: systemd,
		logger:  logger.NewLogger("installer"),
	}
}

// Run drives the state machine Downloaded -> Installed -> TokenSet ->
// Started. Any failed step halts the sequence; later steps are never invoked
// against a partial install. Cancellation is honored between steps, but a
// step already running goes to completion so the package manager is not left
// in an inconsistent state.
func (d *Driver) Run(ctx context.Context, plan Plan) (State, error) {
	state := StateDownloaded

	if err := ctx.Err(); err != nil {
		return state, err
	}
	if err := d.install(ctx, plan); err != nil {
		return state, fmt.Errorf("install step failed: %w", err)
	}
	state = StateInstalled
	d.logger.WithField("variant", plan.Variant.String()).Info("Package installed")

	if err := ctx.Err(); err != nil {
		return state, err
	}
	if err := d.SetToken(ctx, plan); err != nil {
		return state, fmt.Errorf("token step failed: %w", err)
	}
	state = StateTokenSet

	if plan.SkipStart {
		d.logger.Info("Skipping agent start as configured")
		return state, nil
	}

	if err := ctx.Err(); err != nil {
		return state, err
	}
	if err := d.StartService(ctx, plan); err != nil {
		return state, fmt.Errorf("start step failed: %w", err)
	}
	state = StateStarted

	d.confirmActive(ctx, plan)
	return state, nil
}

// install invokes the platform installer for the plan's variant. The command
// runs under a non-cancelable context: aborting dpkg or rpm mid-flight can
// leave the package database locked.
func (d *Driver) install(ctx context.Context, plan Plan) error {
	ictx := context.WithoutCancel(ctx)

	switch plan.Variant {
	case VariantDpkg:
		return d.runner.Run(ictx, "dpkg", "-i", plan.Artifact)
	case VariantRPM:
		return d.runner.Run(ictx, "rpm", "-i", "--nodigest", plan.Artifact)
	case VariantExeModern:
		return d.runner.Run(ictx, plan.Artifact, "-t", plan.SiteToken, "-q")
	case VariantExeLegacy:
		reboot := "/NORESTART"
		if plan.AutoReboot {
			reboot = "/FORCERESTART"
		}
		return d.runner.Run(ictx, plan.Artifact,
			fmt.Sprintf("/SITE_TOKEN=%s", plan.SiteToken), "/SILENT", reboot)
	default:
		return fmt.Errorf("unknown install variant %s", plan.Variant)
	}
}

// SetToken associates the agent with the customer site. Idempotent; callable
// independently of Run. Windows installers receive the token as part of the
// install invocation, so this is a no-op for exe variants.
func (d *Driver) SetToken(ctx context.Context, plan Plan) error {
	if plan.Variant == VariantExeModern || plan.Variant == VariantExeLegacy {
		d.logger.Debug("Site token was passed to the installer, skipping token step")
		return nil
	}

	if err := d.runner.Run(ctx, plan.agentCtl(), "management", "token", "set", plan.SiteToken); err != nil {
		return err
	}
	d.logger.Info("Site token set")
	return nil
}

// StartService starts the installed agent. Idempotent; callable
// independently of Run. Windows installers start the service themselves, so
// this is a no-op for exe variants.
func (d *Driver) StartService(ctx context.Context, plan Plan) error {
	if plan.Variant == VariantExeModern || plan.Variant == VariantExeLegacy {
		d.logger.Debug("Installer starts the service itself, skipping start step")
		return nil
	}

	if err := d.runner.Run(ctx, plan.agentCtl(), "control", "start"); err != nil {
		return err
	}
	d.logger.Info("Agent service started")
	return nil
}

// confirmActive checks the agent unit's activation state over the systemd
// bus. Best effort: hosts without systemd only get a debug log.
func (d *Driver) confirmActive(ctx context.Context, plan Plan) {
	if plan.Variant == VariantExeModern || plan.Variant == VariantExeLegacy {
		return
	}
	if d.systemd == nil {
		return
	}

	state, err := d.systemd.ActiveState(ctx, plan.serviceName())
	if err != nil {
		d.logger.WithError(err).Debug("Could not query unit state")
		return
	}
	if state != "active" {
		d.logger.WithFields(logger.Fields{
			"unit":  plan.serviceName(),
			"state": state,
		}).Warn("Agent unit is not active after start")
		return
	}
	d.logger.WithField("unit", plan.serviceName()).Info("Agent unit is active")
}
