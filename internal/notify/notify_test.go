package notify

import (
	"context"
	"errors"
	"testing"

	"draftlab/analytics/internal/models"

	"github.com/sendgrid/sendgrid-go/helpers/mail"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEmail_IndexRequested(t *testing.T) {
	var sent *mail.SGMailV3
	e := NewEmail("key", "alerts@draftlab.test", "ops@draftlab.test").
		WithSender(func(ctx context.Context, msg *mail.SGMailV3) (int, string, error) {
			sent = msg
			return 202, "", nil
		})

	err := e.IndexRequested(context.Background(), models.IndexRequest{
		IndexURL:     "https://draftlab.test/admin/indexes?collection=wrStats&fields=team%2Cseason",
		QueryDetails: "team == NYJ",
		Screen:       "wr-rankings",
	})
	require.NoError(t, err)
	require.NotNil(t, sent)
	assert.Equal(t, "[Draft Analytics] Composite index requested", sent.Subject)
	assert.Equal(t, "ops@draftlab.test", sent.Personalizations[0].To[0].Address)
	assert.Contains(t, sent.Content[0].Value, "team == NYJ")
}

func TestEmail_ProviderError(t *testing.T) {
	e := NewEmail("key", "a@b.c", "d@e.f").
		WithSender(func(ctx context.Context, msg *mail.SGMailV3) (int, string, error) {
			return 401, "unauthorized", nil
		})

	err := e.AggregationFailed(context.Background(), "full", errors.New("boom"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "401")
}

func TestEmail_TransportError(t *testing.T) {
	e := NewEmail("key", "a@b.c", "d@e.f").
		WithSender(func(ctx context.Context, msg *mail.SGMailV3) (int, string, error) {
			return 0, "", errors.New("dial tcp: timeout")
		})

	assert.Error(t, e.AggregationFailed(context.Background(), "incremental", errors.New("boom")))
}

func TestLog_NeverFails(t *testing.T) {
	assert.NoError(t, Log{}.AggregationFailed(context.Background(), "full", errors.New("boom")))
	assert.NoError(t, Log{}.IndexRequested(context.Background(), models.IndexRequest{}))
}

func TestAggregationFailedMessage_EscapesHTML(t *testing.T) {
	m := aggregationFailedMessage("full", errors.New("<script>"))
	assert.Contains(t, m.HTML, "&lt;script&gt;")
	assert.Contains(t, m.Text, "<script>")
}
