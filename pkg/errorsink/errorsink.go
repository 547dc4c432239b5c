// Package errorsink reports non-GOOD block comparisons to an external
// sink, replacing the original system's Sentry push_scope/
// capture_message call with a Slack message carrying the same
// tag/context shape.
package errorsink

import (
	"context"
	"fmt"
	"net/http"

	"github.com/google/uuid"
	"github.com/slack-go/slack"

	applerrors "github.com/blockset-corp/chainaudit/internal/errors"
	"github.com/blockset-corp/chainaudit/pkg/chainmodel"
	"github.com/blockset-corp/chainaudit/pkg/chainsource"
	"github.com/blockset-corp/chainaudit/pkg/metrics"
	sharedhttp "github.com/blockset-corp/chainaudit/pkg/shared/http"
)

// Report is everything a single non-GOOD block comparison contributes
// to an error report: the tags and contexts the original attached to
// its Sentry scope, plus the human-readable message.
type Report struct {
	JobID        uuid.UUID
	BlockID      uuid.UUID
	BlockHeight  int64
	Status       chainmodel.Status
	ServiceID    string
	BlockchainID string
	Canonical    chainsource.Block
	Service      chainsource.Block
	Message      string
}

// Reporter sends a Report to an external sink.
type Reporter interface {
	Report(ctx context.Context, report Report) error
}

// SlackReporter posts error reports to a Slack incoming webhook.
type SlackReporter struct {
	WebhookURL string
	Channel    string
	HTTPClient *http.Client
}

// NewSlackReporter builds a SlackReporter targeting one webhook URL and
// channel, using a client tuned for the webhook path: a short timeout,
// so a stalled error report never stalls a worker. The post is made
// once; a failed post is not retried.
func NewSlackReporter(webhookURL, channel string) *SlackReporter {
	return &SlackReporter{
		WebhookURL: webhookURL,
		Channel:    channel,
		HTTPClient: sharedhttp.NewClient(sharedhttp.SlackClientConfig()),
	}
}

// colorByStatus maps a non-GOOD status to a Slack attachment color, warn
// for BAD (a comparison disagreement) and danger for FAIL (canonical
// itself unreachable).
var colorByStatus = map[chainmodel.Status]string{
	chainmodel.StatusBad:  "warning",
	chainmodel.StatusFail: "danger",
}

// Report posts report as a Slack message carrying the same tag/context
// shape the original Sentry scope used: job_id, block_id, status,
// service_id, blockchain_id as fields, and canonical_*/service_* as the
// attachment context.
func (r *SlackReporter) Report(ctx context.Context, report Report) error {
	msg := &slack.WebhookMessage{
		Channel: r.Channel,
		Attachments: []slack.Attachment{
			{
				Color: colorByStatus[report.Status],
				Title: fmt.Sprintf("chain audit: %s", report.Message),
				Fields: []slack.AttachmentField{
					{Title: "job_id", Value: report.JobID.String(), Short: true},
					{Title: "block_id", Value: report.BlockID.String(), Short: true},
					{Title: "block_height", Value: fmt.Sprintf("%d", report.BlockHeight), Short: true},
					{Title: "status", Value: string(report.Status), Short: true},
					{Title: "service_id", Value: report.ServiceID, Short: true},
					{Title: "blockchain_id", Value: report.BlockchainID, Short: true},
					{Title: "canonical_http_status", Value: fmt.Sprintf("%d", report.Canonical.HTTPStatus), Short: true},
					{Title: "service_http_status", Value: fmt.Sprintf("%d", report.Service.HTTPStatus), Short: true},
				},
			},
		},
	}

	client := r.HTTPClient
	if client == nil {
		client = sharedhttp.NewClient(sharedhttp.SlackClientConfig())
	}
	if err := slack.PostWebhookCustomHTTPContext(ctx, r.WebhookURL, client, msg); err != nil {
		return applerrors.Wrap(err, applerrors.ErrorTypeNetwork, "failed to post error report to slack")
	}
	metrics.RecordErrorReport("slack")
	return nil
}

// NoopReporter discards every report. Used where no sink is configured
// (e.g. local development) so the scheduler never has to nil-check its
// Reporter.
type NoopReporter struct{}

// Report implements Reporter by doing nothing.
func (NoopReporter) Report(ctx context.Context, report Report) error {
	return nil
}
