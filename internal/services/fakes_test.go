package services

import (
	"context"
	"fmt"
	"sync"
)

// fakeSender records sends and returns queued errors in order.
type fakeSender struct {
	mu     sync.Mutex
	sent   []SendRequest
	errs   []error
	seq    int
	onSend func(SendRequest)
}

func (f *fakeSender) Send(_ context.Context, req SendRequest) (SendResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.onSend != nil {
		f.onSend(req)
	}
	if len(f.errs) > 0 {
		err := f.errs[0]
		f.errs = f.errs[1:]
		if err != nil {
			return SendResult{}, err
		}
	}
	f.seq++
	f.sent = append(f.sent, req)
	return SendResult{
		ProviderMessageID: fmt.Sprintf("SM%d", f.seq),
		Status:            "queued",
		ResolvedFrom:      "+15550000000",
	}, nil
}

func (f *fakeSender) Sent() []SendRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]SendRequest(nil), f.sent...)
}
