package intake

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"diningflow/internal/domain"
)

// codecVersion is the wire version of the WorkItem body. Decode
// rejects anything else so old consumers fail loudly on new formats.
const codecVersion = 1

// Namespace for request id derivation. Ids are content-addressed over
// the request fields plus the creation timestamp, so two users asking
// for the same thing (or one user retrying) still get distinct ids.
var requestNamespace = uuid.MustParse("f3c1a2b4-8d6e-4c5a-9b70-1e2d3c4b5a69")

type envelope struct {
	Version int            `json:"v"`
	Request domain.Request `json:"request"`
}

// Encode wraps a validated Request in a versioned queue body,
// deriving its request id if not already set. The embedded Request is
// the canonical form: Decode(Encode(r).Body) round-trips it exactly.
func Encode(req domain.Request) (domain.WorkItem, error) {
	if req.CreatedAt.IsZero() {
		req.CreatedAt = time.Now().UTC()
	}
	if req.RequestID == "" {
		req.RequestID = deriveRequestID(req)
	}
	body, err := json.Marshal(envelope{Version: codecVersion, Request: req})
	if err != nil {
		return domain.WorkItem{}, fmt.Errorf("encode work item: %w", err)
	}
	return domain.WorkItem{
		RequestID:  req.RequestID,
		Body:       body,
		EnqueuedAt: time.Now().UTC(),
	}, nil
}

// Decode parses a queue body back into a Request. Any failure here is
// terminal: a malformed WorkItem can never succeed on redelivery.
func Decode(body []byte) (domain.Request, error) {
	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return domain.Request{}, domain.Terminal(fmt.Errorf("decode work item: %w", err))
	}
	if env.Version != codecVersion {
		return domain.Request{}, domain.Terminal(fmt.Errorf("decode work item: unsupported version %d", env.Version))
	}
	req := env.Request
	if req.RequestID == "" || req.Cuisine == "" || req.Location == "" ||
		req.PartySize <= 0 || req.Date == "" || req.Time == "" || req.ContactAddress == "" {
		return domain.Request{}, domain.Terminal(fmt.Errorf("decode work item: incomplete request"))
	}
	return req, nil
}

func deriveRequestID(req domain.Request) string {
	seed := fmt.Sprintf("%s|%s|%d|%s|%s|%s|%d",
		req.Cuisine, req.Location, req.PartySize, req.Date, req.Time,
		req.ContactAddress, req.CreatedAt.UnixNano())
	return "req_" + uuid.NewSHA1(requestNamespace, []byte(seed)).String()
}
