package audit

import (
	"context"
	"crypto/ed25519"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/ILLUVRSE/Venture/case-engine/internal/canonical"
	"github.com/ILLUVRSE/Venture/case-engine/internal/signer"
)

// Chain links events in process order. The chain head lives in memory, so a
// restart starts a new chain whose first event has no PrevHash.
type Chain struct {
	signer signer.Signer
	sinks  []Sink
	logger *zap.SugaredLogger
	now    func() time.Time

	mu       sync.Mutex
	prevHash string
}

func NewChain(s signer.Signer, logger *zap.SugaredLogger, sinks ...Sink) (*Chain, error) {
	if s == nil {
		return nil, errors.New("audit chain requires a signer")
	}
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Chain{
		signer: s,
		sinks:  sinks,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}, nil
}

// Record appends an event and publishes it to every sink. The event is
// committed to the chain even when a sink fails; sink errors are combined
// and returned.
func (c *Chain) Record(ctx context.Context, caseID uuid.UUID, eventType string, payload interface{}) (Event, error) {
	body, err := canonical.Marshal(payload)
	if err != nil {
		return Event{}, fmt.Errorf("audit canonicalize %s: %w", eventType, err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	sum, err := chainHash(body, c.prevHash)
	if err != nil {
		return Event{}, err
	}
	sig, signerID, err := c.signer.Sign(sum)
	if err != nil {
		return Event{}, fmt.Errorf("audit sign %s: %w", eventType, err)
	}
	ev := Event{
		ID:        uuid.NewString(),
		CaseID:    caseID,
		EventType: eventType,
		Payload:   body,
		PrevHash:  c.prevHash,
		Hash:      hex.EncodeToString(sum),
		Signature: base64.StdEncoding.EncodeToString(sig),
		SignerID:  signerID,
		Ts:        c.now(),
	}
	c.prevHash = ev.Hash

	var publishErr error
	for _, sink := range c.sinks {
		if err := sink.Publish(ctx, ev); err != nil {
			c.logger.Warnw("audit sink publish failed", "eventId", ev.ID, "caseId", caseID, "eventType", eventType, "error", err)
			publishErr = multierr.Append(publishErr, err)
		}
	}
	return ev, publishErr
}

// Head returns the hash of the most recent event.
func (c *Chain) Head() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.prevHash
}

func chainHash(body []byte, prevHash string) ([]byte, error) {
	concat := append([]byte(nil), body...)
	if prevHash != "" {
		prev, err := hex.DecodeString(prevHash)
		if err != nil {
			return nil, fmt.Errorf("decode prev hash: %w", err)
		}
		concat = append(concat, prev...)
	}
	sum := sha256.Sum256(concat)
	return sum[:], nil
}

// VerifyChain checks that events are correctly linked, hashed and signed, in
// the order given. It reports the first problem found.
func VerifyChain(events []Event, pub ed25519.PublicKey) error {
	prev := ""
	for i, ev := range events {
		if i > 0 && ev.PrevHash != prev {
			return fmt.Errorf("event %s: prevHash does not link to previous event", ev.ID)
		}
		body, err := canonical.Canonicalize(ev.Payload)
		if err != nil {
			return fmt.Errorf("event %s: %w", ev.ID, err)
		}
		sum, err := chainHash(body, ev.PrevHash)
		if err != nil {
			return fmt.Errorf("event %s: %w", ev.ID, err)
		}
		if computed := hex.EncodeToString(sum); computed != ev.Hash {
			return fmt.Errorf("hash mismatch for event %s: computed=%s stored=%s", ev.ID, computed, ev.Hash)
		}
		sig, err := base64.StdEncoding.DecodeString(ev.Signature)
		if err != nil {
			return fmt.Errorf("invalid signature encoding for event %s: %w", ev.ID, err)
		}
		if !ed25519.Verify(pub, sum, sig) {
			return fmt.Errorf("signature verification failed for event %s with signer %s", ev.ID, ev.SignerID)
		}
		prev = ev.Hash
	}
	return nil
}
