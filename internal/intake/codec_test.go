package intake

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"diningflow/internal/domain"
)

func sampleRequest() domain.Request {
	return domain.Request{
		Cuisine:        "japanese",
		Location:       "Manhattan",
		PartySize:      4,
		Date:           "2026-08-26",
		Time:           "19:00",
		ContactAddress: "a@b.com",
		CreatedAt:      time.Date(2026, 8, 25, 12, 0, 0, 0, time.UTC),
	}
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	item, err := Encode(sampleRequest())
	require.NoError(t, err)
	require.NotEmpty(t, item.RequestID)
	require.NotEmpty(t, item.Body)
	require.False(t, item.EnqueuedAt.IsZero())

	decoded, err := Decode(item.Body)
	require.NoError(t, err)

	want := sampleRequest()
	want.RequestID = item.RequestID
	assert.Equal(t, want, decoded)
}

func TestEncodeDerivesStableUniqueIDs(t *testing.T) {
	a := sampleRequest()
	b := sampleRequest()

	itemA1, err := Encode(a)
	require.NoError(t, err)
	itemA2, err := Encode(a)
	require.NoError(t, err)
	// Same content and timestamp derive the same id.
	assert.Equal(t, itemA1.RequestID, itemA2.RequestID)

	// A retry a moment later is a distinct logical request.
	b.CreatedAt = b.CreatedAt.Add(time.Nanosecond)
	itemB, err := Encode(b)
	require.NoError(t, err)
	assert.NotEqual(t, itemA1.RequestID, itemB.RequestID)
}

func TestEncodePreservesExistingID(t *testing.T) {
	req := sampleRequest()
	req.RequestID = "req_fixed"
	item, err := Encode(req)
	require.NoError(t, err)
	assert.Equal(t, "req_fixed", item.RequestID)
}

func TestDecodeRejectsMalformedBody(t *testing.T) {
	_, err := Decode([]byte("{not json"))
	require.Error(t, err)
	assert.True(t, domain.IsTerminal(err))
}

func TestDecodeRejectsUnknownVersion(t *testing.T) {
	_, err := Decode([]byte(`{"v":99,"request":{}}`))
	require.Error(t, err)
	assert.True(t, domain.IsTerminal(err))
}

func TestDecodeRejectsIncompleteRequest(t *testing.T) {
	_, err := Decode([]byte(`{"v":1,"request":{"request_id":"req_x","cuisine":"japanese"}}`))
	require.Error(t, err)
	assert.True(t, domain.IsTerminal(err))
}
