package notify

import (
	"context"

	"github.com/dmitrijs2005/authkeeper/internal/logging"
)

// LogNotifier writes the code to the log instead of sending it. Development
// only: the passcode ends up in plain text in the log stream.
type LogNotifier struct {
	logger logging.Logger
}

func NewLogNotifier(l logging.Logger) *LogNotifier {
	return &LogNotifier{logger: l.With("module", "notify")}
}

func (n *LogNotifier) Notify(ctx context.Context, m Message) error {
	if _, ok := subjects[m.Kind]; !ok {
		return ErrUnknownKind
	}
	n.logger.Info(ctx, "otp issued", "kind", string(m.Kind), "to", m.To, "code", m.Code, "expires_in", m.ExpiresIn.String())
	return nil
}
