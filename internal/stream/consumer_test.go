package stream

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/IBM/sarama"

	"github.com/securepay-ai/sentinel/internal/domain"
)

type fakeAnalyzer struct {
	mu    sync.Mutex
	calls []string
	err   error
	dup   bool
}

func (f *fakeAnalyzer) Analyze(ctx context.Context, tx *domain.TransactionRequest) (*domain.AnalyzeResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, tx.TransactionID)
	if f.err != nil {
		return nil, f.err
	}
	return &domain.AnalyzeResponse{
		FraudAssessment: &domain.FraudAssessment{TransactionID: tx.TransactionID},
		Duplicate:       f.dup,
	}, nil
}

func (f *fakeAnalyzer) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func message(t *testing.T, tx *domain.TransactionRequest) *sarama.ConsumerMessage {
	t.Helper()
	value, err := json.Marshal(tx)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return &sarama.ConsumerMessage{Topic: "payments.transactions", Value: value}
}

func TestHandleFeedsThePipeline(t *testing.T) {
	fake := &fakeAnalyzer{}
	c := &Consumer{topic: "payments.transactions", analyzer: fake}

	c.handle(context.Background(), message(t, &domain.TransactionRequest{
		TransactionID:   "tx-stream-1",
		Amount:          5000,
		Currency:        "BDT",
		SenderAccount:   "acct-a",
		ReceiverAccount: "acct-b",
		Type:            domain.TypeP2P,
	}))

	if fake.callCount() != 1 {
		t.Fatalf("expected 1 pipeline call, got %d", fake.callCount())
	}
	if fake.calls[0] != "tx-stream-1" {
		t.Errorf("expected tx-stream-1, got %s", fake.calls[0])
	}
}

func TestHandleSkipsMalformedMessage(t *testing.T) {
	fake := &fakeAnalyzer{}
	c := &Consumer{topic: "payments.transactions", analyzer: fake}

	c.handle(context.Background(), &sarama.ConsumerMessage{
		Topic: "payments.transactions",
		Value: []byte("{not json"),
	})

	if fake.callCount() != 0 {
		t.Errorf("malformed message must not reach the pipeline, got %d calls", fake.callCount())
	}
}

func TestHandleToleratesRejectedTransaction(t *testing.T) {
	fake := &fakeAnalyzer{err: errors.New("unsupported currency \"USD\"")}
	c := &Consumer{topic: "payments.transactions", analyzer: fake}

	c.handle(context.Background(), message(t, &domain.TransactionRequest{
		TransactionID:   "tx-stream-2",
		Amount:          5000,
		Currency:        "USD",
		SenderAccount:   "acct-a",
		ReceiverAccount: "acct-b",
		Type:            domain.TypeP2P,
	}))

	if fake.callCount() != 1 {
		t.Fatalf("expected the rejection to come from the pipeline, got %d calls", fake.callCount())
	}
}

func TestHandleCountsDuplicates(t *testing.T) {
	fake := &fakeAnalyzer{dup: true}
	c := &Consumer{topic: "payments.transactions", analyzer: fake}

	c.handle(context.Background(), message(t, &domain.TransactionRequest{
		TransactionID:   "tx-stream-3",
		Amount:          5000,
		Currency:        "BDT",
		SenderAccount:   "acct-a",
		ReceiverAccount: "acct-b",
		Type:            domain.TypeP2P,
	}))

	if fake.callCount() != 1 {
		t.Fatalf("expected 1 pipeline call, got %d", fake.callCount())
	}
}
