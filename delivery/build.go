package delivery

import (
	"github.com/hazyhaar/sosrelay/browser"
	"github.com/hazyhaar/sosrelay/config"
	"github.com/hazyhaar/sosrelay/driver"
	"github.com/hazyhaar/sosrelay/probe"
	"github.com/hazyhaar/sosrelay/schedule"
)

// Deps are the collaborators of the standard chain. Zero fields use the
// real implementations.
type Deps struct {
	Probe     ProbeFunc
	Attach    AttachFunc
	Driver    DriverResolver
	Launch    LaunchFunc
	Scheduler Scheduler
}

// Build assembles attach → launch → scheduled from cfg, dropping any
// strategy cfg disables.
func Build(cfg *config.Config, deps Deps, opts ...Option) *Controller {
	c := NewController(nil, opts...)
	log := c.log

	if deps.Probe == nil {
		deps.Probe = probe.Reachable
	}
	if deps.Attach == nil {
		deps.Attach = AttachBrowser(log, cfg.Attach.ProbeTimeout)
	}
	if deps.Driver == nil {
		deps.Driver = driver.Default
	}
	if deps.Launch == nil {
		deps.Launch = LaunchBrowser
	}
	if deps.Scheduler == nil {
		deps.Scheduler = schedule.New(log)
	}

	if !cfg.Attach.Disabled {
		c.strategies = append(c.strategies, &Attach{
			AppURL:       cfg.AppURL,
			Hosts:        cfg.Attach.Hosts,
			Port:         cfg.Attach.Port,
			ProbeTimeout: cfg.Attach.ProbeTimeout,
			Locator:      cfg.Attach.Locator,
			MaxWait:      cfg.Attach.MaxWait,
			Settle:       cfg.Attach.Settle,
			PostSend:     cfg.Attach.PostSend,
			Probe:        deps.Probe,
			Connect:      deps.Attach,
			Logger:       log,
		})
	}
	if !cfg.Launch.Disabled {
		c.strategies = append(c.strategies, &Launch{
			AppURL: cfg.AppURL,
			Browser: browser.LaunchConfig{
				Headless:             cfg.Launch.Headless,
				WindowWidth:          cfg.Launch.WindowWidth,
				WindowHeight:         cfg.Launch.WindowHeight,
				DisableNotifications: !cfg.Launch.EnableNotifications,
				DisableSandbox:       !cfg.Launch.EnableSandbox,
			},
			Profile:  cfg.Launch.Profile,
			Locators: cfg.Launch.Locators,
			MaxWait:  cfg.Launch.MaxWait,
			Settle:   cfg.Launch.Settle,
			PostSend: cfg.Launch.PostSend,
			Driver:   deps.Driver,
			Start:    deps.Launch,
			Logger:   log,
		})
	}
	if !cfg.Scheduled.Disabled {
		c.strategies = append(c.strategies, &Scheduled{
			AppURL:    cfg.AppURL,
			LeadTime:  cfg.Scheduled.LeadTime,
			Scheduler: deps.Scheduler,
			Logger:    log,
		})
	}
	return c
}
