package acquire

import (
	"context"

	"github.com/JakeFAU/ecourts-cnr-fetcher/internal/session"
)

// LauncherOpener adapts a session.Launcher to Opener.
type LauncherOpener struct {
	Launcher *session.Launcher
}

// Open launches a browser with its own profile directory.
func (o LauncherOpener) Open(ctx context.Context) (Session, error) {
	s, err := o.Launcher.Open(ctx)
	if err != nil {
		return nil, err
	}
	return s, nil
}
