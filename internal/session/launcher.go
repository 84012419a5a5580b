// Package session drives one isolated browser session against the eCourts
// portal. Each Session owns its own Chrome process and profile directory.
package session

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"
)

// DefaultPortalURL is the CNR search page.
const DefaultPortalURL = "https://services.ecourts.gov.in/ecourtindia_v6/"

// Config controls how sessions are launched.
type Config struct {
	PortalURL         string
	UserAgent         string
	Proxy             string
	Headless          bool
	UseXvfb           bool
	Display           string
	ExecPath          string
	ProfileRoot       string
	NavigationTimeout time.Duration
	ActionTimeout     time.Duration
}

// Launcher opens sessions. It is safe for concurrent use; every Open call
// gets a fresh Chrome process and profile directory.
type Launcher struct {
	cfg    Config
	logger *zap.Logger
}

// NewLauncher validates cfg and prepares the process-wide display if needed.
func NewLauncher(cfg Config, logger *zap.Logger) (*Launcher, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if strings.TrimSpace(cfg.PortalURL) == "" {
		cfg.PortalURL = DefaultPortalURL
	}
	if cfg.NavigationTimeout <= 0 {
		cfg.NavigationTimeout = 45 * time.Second
	}
	if cfg.ActionTimeout <= 0 {
		cfg.ActionTimeout = 15 * time.Second
	}
	if cfg.ProfileRoot != "" {
		if err := os.MkdirAll(cfg.ProfileRoot, 0o750); err != nil {
			return nil, fmt.Errorf("create profile root: %w", err)
		}
	}
	if cfg.UseXvfb {
		if err := EnsureDisplay(cfg.Display, logger); err != nil {
			return nil, err
		}
	}
	return &Launcher{cfg: cfg, logger: logger}, nil
}

// Open starts a browser bound to a new profile directory. The returned
// Session must be closed; Close also removes the profile directory.
func (l *Launcher) Open(ctx context.Context) (*Session, error) {
	profileDir, err := os.MkdirTemp(l.cfg.ProfileRoot, "cnr-profile-*")
	if err != nil {
		return nil, fmt.Errorf("create profile dir: %w", err)
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), l.allocatorOptions(profileDir)...)
	browserCtx, browserCancel := chromedp.NewContext(allocCtx)

	s := &Session{
		cfg:           l.cfg,
		profileDir:    profileDir,
		browserCtx:    browserCtx,
		browserCancel: browserCancel,
		allocCancel:   allocCancel,
		logger:        l.logger.With(zap.String("profile", profileDir)),
	}

	startCtx, cancel := s.scoped(ctx, l.cfg.NavigationTimeout)
	defer cancel()
	if err := chromedp.Run(startCtx, l.networkSetupAction()); err != nil {
		closeErr := s.Close()
		return nil, errors.Join(fmt.Errorf("start browser: %w", err), closeErr)
	}
	s.logger.Debug("session opened")
	return s, nil
}

func (l *Launcher) allocatorOptions(profileDir string) []chromedp.ExecAllocatorOption {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.UserDataDir(profileDir),
		chromedp.Flag("headless", l.cfg.Headless && !l.cfg.UseXvfb),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("enable-automation", false),
		chromedp.WindowSize(1280, 900),
	)
	if l.cfg.UserAgent != "" {
		opts = append(opts, chromedp.UserAgent(l.cfg.UserAgent))
	}
	if l.cfg.Proxy != "" {
		opts = append(opts, chromedp.ProxyServer(l.cfg.Proxy))
	}
	if l.cfg.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(l.cfg.ExecPath))
	}
	if l.cfg.UseXvfb {
		opts = append(opts, chromedp.Env("DISPLAY="+displayName(l.cfg.Display)))
	}
	return opts
}

func (l *Launcher) networkSetupAction() chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		if err := network.Enable().Do(ctx); err != nil {
			return fmt.Errorf("enable network domain: %w", err)
		}
		if l.cfg.UserAgent != "" {
			if err := emulation.SetUserAgentOverride(l.cfg.UserAgent).Do(ctx); err != nil {
				return fmt.Errorf("set user-agent: %w", err)
			}
		}
		return nil
	})
}
