package email

import (
	"context"
	"time"
)

// Sender delivers transactional mail. Delivery is fire-and-forget from the
// core's perspective: at-least-once is assumed and no receipt is tracked.
// Implementations must honor ctx so a slow SMTP server cannot hang a request.
type Sender interface {
	SendOTP(ctx context.Context, toEmail, code string, expiresAt time.Time) error
}
