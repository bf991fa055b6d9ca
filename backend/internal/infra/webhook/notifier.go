package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	promptdomain "github.com/antrhizom/prompt-managerin/backend/internal/domain/prompt"

	"github.com/avast/retry-go/v4"
)

const eventDeletionRequested = "deletion_requested"

// Options 控制投递重试。
type Options struct {
	URL      string
	Attempts int
	Delay    time.Duration
	Timeout  time.Duration
}

// Notifier 把删除申请以 JSON POST 到外部 webhook（例如自动化平台）。
type Notifier struct {
	url      string
	client   *http.Client
	attempts uint
	delay    time.Duration
}

type payload struct {
	Event string `json:"event"`
	promptdomain.DeletionNotice
}

// errPermanent 标记无需重试的 4xx 响应。
var errPermanent = errors.New("webhook rejected notice")

// NewNotifier 校验 URL 并补齐默认的重试参数。
func NewNotifier(opts Options) (*Notifier, error) {
	url := strings.TrimSpace(opts.URL)
	if !strings.HasPrefix(url, "http://") && !strings.HasPrefix(url, "https://") {
		return nil, fmt.Errorf("invalid webhook url %q", opts.URL)
	}
	if opts.Attempts <= 0 {
		opts.Attempts = 3
	}
	if opts.Delay <= 0 {
		opts.Delay = 2 * time.Second
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	return &Notifier{
		url:      url,
		client:   &http.Client{Timeout: opts.Timeout},
		attempts: uint(opts.Attempts),
		delay:    opts.Delay,
	}, nil
}

// Name 用作指标与日志中的渠道名。
func (n *Notifier) Name() string { return "webhook" }

// NotifyDeletionRequest 投递通知，网络错误与 5xx 会按配置重试，4xx 立即放弃。
func (n *Notifier) NotifyDeletionRequest(ctx context.Context, notice promptdomain.DeletionNotice) error {
	body, err := json.Marshal(payload{Event: eventDeletionRequested, DeletionNotice: notice})
	if err != nil {
		return fmt.Errorf("encode webhook payload: %w", err)
	}

	return retry.Do(
		func() error {
			req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(body))
			if err != nil {
				return retry.Unrecoverable(err)
			}
			req.Header.Set("Content-Type", "application/json")
			resp, err := n.client.Do(req)
			if err != nil {
				return err
			}
			_, _ = io.Copy(io.Discard, resp.Body)
			_ = resp.Body.Close()
			switch {
			case resp.StatusCode >= 200 && resp.StatusCode < 300:
				return nil
			case resp.StatusCode >= 400 && resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests:
				return retry.Unrecoverable(fmt.Errorf("%w: status %d", errPermanent, resp.StatusCode))
			default:
				return fmt.Errorf("webhook status %d", resp.StatusCode)
			}
		},
		retry.Context(ctx),
		retry.Attempts(n.attempts),
		retry.Delay(n.delay),
		retry.LastErrorOnly(true),
	)
}
