package gmail

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	gmailapi "google.golang.org/api/gmail/v1"
	"google.golang.org/api/googleapi"

	"github.com/joshsymonds/subwatch/internal/common"
)

func TestBuildQuery(t *testing.T) {
	after := time.Date(2025, 3, 7, 15, 30, 0, 0, time.UTC)

	query := BuildQuery(after)
	assert.True(t, strings.HasPrefix(query, "after:2025/03/07 "))
	assert.Contains(t, query, "receipt OR invoice")
}

func encodeBody(s string) string {
	return base64.URLEncoding.WithPadding(base64.NoPadding).EncodeToString([]byte(s))
}

func TestExtractBody(t *testing.T) {
	tests := []struct {
		name    string
		payload *gmailapi.MessagePart
		want    string
	}{
		{
			name: "single part",
			payload: &gmailapi.MessagePart{
				MimeType: "text/plain",
				Body:     &gmailapi.MessagePartBody{Data: encodeBody("hello")},
			},
			want: "hello",
		},
		{
			name: "plain preferred over html",
			payload: &gmailapi.MessagePart{
				MimeType: "multipart/alternative",
				Parts: []*gmailapi.MessagePart{
					{MimeType: "text/html", Body: &gmailapi.MessagePartBody{Data: encodeBody("<b>rich</b>")}},
					{MimeType: "text/plain", Body: &gmailapi.MessagePartBody{Data: encodeBody("plain")}},
				},
			},
			want: "plain",
		},
		{
			name: "html fallback",
			payload: &gmailapi.MessagePart{
				MimeType: "multipart/alternative",
				Parts: []*gmailapi.MessagePart{
					{MimeType: "text/html", Body: &gmailapi.MessagePartBody{Data: encodeBody("<b>rich</b>")}},
				},
			},
			want: "<b>rich</b>",
		},
		{
			name: "nested multipart",
			payload: &gmailapi.MessagePart{
				MimeType: "multipart/mixed",
				Parts: []*gmailapi.MessagePart{
					{
						MimeType: "multipart/alternative",
						Parts: []*gmailapi.MessagePart{
							{MimeType: "text/plain", Body: &gmailapi.MessagePartBody{Data: encodeBody("nested")}},
						},
					},
				},
			},
			want: "nested",
		},
		{
			name:    "nil payload",
			payload: nil,
			want:    "",
		},
		{
			name: "invalid base64 ignored",
			payload: &gmailapi.MessagePart{
				MimeType: "text/plain",
				Body:     &gmailapi.MessagePartBody{Data: "!!not-base64!!"},
			},
			want: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, extractBody(tt.payload))
		})
	}
}

func TestExtractBodyCapsLength(t *testing.T) {
	long := strings.Repeat("a", maxBodyBytes*2)
	payload := &gmailapi.MessagePart{
		MimeType: "text/plain",
		Body:     &gmailapi.MessagePartBody{Data: encodeBody(long)},
	}

	assert.Len(t, extractBody(payload), maxBodyBytes)
}

func TestWrapAPIError(t *testing.T) {
	t.Run("rate limited", func(t *testing.T) {
		err := wrapAPIError("listing", &googleapi.Error{Code: 429})
		assert.ErrorIs(t, err, common.ErrRateLimit)
	})

	t.Run("server errors retry", func(t *testing.T) {
		err := wrapAPIError("listing", &googleapi.Error{Code: 503})
		var retryable *common.RetryableError
		require.True(t, errors.As(err, &retryable))
		assert.True(t, retryable.Retryable)
	})

	t.Run("auth errors do not retry", func(t *testing.T) {
		err := wrapAPIError("listing", &googleapi.Error{Code: 401})
		var retryable *common.RetryableError
		require.True(t, errors.As(err, &retryable))
		assert.False(t, retryable.Retryable)
	})

	t.Run("other errors pass through", func(t *testing.T) {
		cause := fmt.Errorf("broken pipe")
		err := wrapAPIError("listing", cause)
		assert.ErrorIs(t, err, cause)
	})
}
