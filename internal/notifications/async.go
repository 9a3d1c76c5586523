package notifications

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/KTAKhang/SEP490-Group10-sub002/pkg/logger"
)

const defaultNotifyTimeout = 10 * time.Second

// AsyncNotifier sends messages off the request path. Failures are logged and
// never reach the caller.
type AsyncNotifier struct {
	svc     Service
	logg    *logger.Logger
	timeout time.Duration
	wait    func(func())
}

func NewAsyncNotifier(svc Service, logg *logger.Logger, timeout time.Duration) *AsyncNotifier {
	if logg == nil {
		logg = logger.Nop()
	}
	if timeout <= 0 {
		timeout = defaultNotifyTimeout
	}
	return &AsyncNotifier{
		svc:     svc,
		logg:    logg,
		timeout: timeout,
		wait:    func(fn func()) { go fn() },
	}
}

// Notify queues msg for userID. A nil notifier is a no-op.
func (n *AsyncNotifier) Notify(ctx context.Context, userID uuid.UUID, msg Message) {
	if n == nil || n.svc == nil {
		return
	}
	// the send outlives the request
	base := context.WithoutCancel(ctx)
	n.wait(func() {
		sendCtx, cancel := context.WithTimeout(base, n.timeout)
		defer cancel()
		if _, err := n.svc.SendToUser(sendCtx, userID, msg); err != nil {
			n.logg.Error(n.logg.WithField(sendCtx, "notify_user_id", userID.String()), "notification send failed", err)
		}
	})
}
