package service

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	domainauth "github.com/target/opsconsole/internal/domain/auth"
	"github.com/target/opsconsole/internal/domain/capture"
)

// LoginMode is the sign-in surface currently offered.
type LoginMode string

const (
	LoginModeManual    LoginMode = "manual"
	LoginModeBiometric LoginMode = "biometric"
)

// LoginController switches between credential entry and biometric capture.
// Leaving biometric mode always cancels the capture machine, and an exhausted
// capture switches back to manual entry on its own.
type LoginController struct {
	sessions *SessionManager
	machine  *CaptureMachine
	logger   *slog.Logger

	mu          sync.Mutex
	mode        LoginMode
	unsubscribe func()
}

// NewLoginController starts in manual mode.
func NewLoginController(sessions *SessionManager, machine *CaptureMachine, logger *slog.Logger) *LoginController {
	if logger == nil {
		logger = slog.Default()
	}
	c := &LoginController{
		sessions: sessions,
		machine:  machine,
		logger:   logger.With("component", "login_controller"),
		mode:     LoginModeManual,
	}
	c.unsubscribe = machine.Subscribe(func(e capture.Event) {
		if e.Kind == capture.EventExhausted {
			c.logger.Info("biometric capture exhausted; switching to manual entry")
			c.UseManual()
		}
	})
	return c
}

// Mode returns the active mode.
func (c *LoginController) Mode() LoginMode {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.mode
}

// UseBiometric switches to biometric mode and starts capture. An acquisition failure is not
// returned: the machine retries on its own.
func (c *LoginController) UseBiometric(ctx context.Context) error {
	c.setMode(LoginModeBiometric)
	if err := c.machine.Start(ctx); err != nil && c.machine.State() == capture.StateIdle {
		return err
	}
	return nil
}

// Biometric switches to biometric mode and blocks until capture signs someone in.
// On exhaustion the controller is back in manual mode and ErrFallbackToManual is returned.
func (c *LoginController) Biometric(ctx context.Context) (domainauth.Session, error) {
	c.setMode(LoginModeBiometric)
	if _, err := AuthenticateBiometric(ctx, c.machine); err != nil {
		if errors.Is(err, ErrFallbackToManual) {
			c.UseManual()
		}
		return domainauth.Session{}, err
	}
	session, err := c.sessions.RequireSession()
	if err != nil {
		return domainauth.Session{}, err
	}
	return session, nil
}

// UseManual switches to credential entry, canceling any capture in progress.
func (c *LoginController) UseManual() {
	c.setMode(LoginModeManual)
	if c.machine.State() != capture.StateIdle {
		c.machine.Cancel()
	}
}

// SubmitCredentials signs in with key and secret, leaving biometric mode first.
func (c *LoginController) SubmitCredentials(ctx context.Context, key, secret string) (domainauth.Session, error) {
	c.UseManual()
	return c.sessions.Login(ctx, key, secret)
}

// Close detaches the controller and shuts the capture machine down.
func (c *LoginController) Close() {
	c.unsubscribe()
	c.machine.Close()
}

// Machine exposes the capture machine, for status displays.
func (c *LoginController) Machine() *CaptureMachine { return c.machine }

func (c *LoginController) setMode(mode LoginMode) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.mode = mode
}
