package services

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Ananth-NQI/linkup-backend/internal/models"
	"github.com/Ananth-NQI/linkup-backend/internal/storage"
)

func TestDeliverOnce_SendsOnceForKey(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	sender := &fakeSender{}
	d := NewDelivery(store, sender, "https://example.com/webhook/sms/status", nil)

	req := DeliveryRequest{Key: "reply:SM1", UserID: "u1", To: "+15551234567", Body: "hello"}
	out, err := d.DeliverOnce(ctx, req)
	require.NoError(t, err)
	require.False(t, out.AlreadyDelivered)
	require.Equal(t, "SM1", out.Message.ProviderMessageID)

	out, err = d.DeliverOnce(ctx, req)
	require.NoError(t, err)
	require.True(t, out.AlreadyDelivered)
	require.Len(t, sender.Sent(), 1)
	require.Equal(t, "https://example.com/webhook/sms/status", sender.Sent()[0].StatusCallbackURL)

	delivered, err := d.IsDelivered(ctx, "reply:SM1")
	require.NoError(t, err)
	require.True(t, delivered)

	msg, err := store.GetOutboundMessageByKey(ctx, "reply:SM1")
	require.NoError(t, err)
	require.Equal(t, models.JobStatusSent, msg.JobStatus)
	require.Equal(t, "+15550000000", msg.FromPhone)
}

func TestDeliverOnce_FailureKeepsRowRetryable(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	sender := &fakeSender{errs: []error{&SendError{Retryable: true, Err: errors.New("timeout")}}}
	d := NewDelivery(store, sender, "", nil)

	req := DeliveryRequest{Key: "k", To: "+1", Body: "first"}
	_, err := d.DeliverOnce(ctx, req)
	require.Error(t, err)
	require.True(t, IsRetryable(err))

	msg, err := store.GetOutboundMessageByKey(ctx, "k")
	require.NoError(t, err)
	require.False(t, msg.Delivered())
	require.Equal(t, "send failed (retryable): timeout", msg.LastError)
	require.Equal(t, 1, msg.Attempts)

	// the retry sends the originally recorded body
	out, err := d.DeliverOnce(ctx, DeliveryRequest{Key: "k", To: "+1", Body: "second"})
	require.NoError(t, err)
	require.False(t, out.AlreadyDelivered)
	require.Equal(t, "first", sender.Sent()[0].Body)
}

func TestDeliverOnce_WrapsPlainErrorsAsRetryable(t *testing.T) {
	store := storage.NewMemoryStore()
	d := NewDelivery(store, &fakeSender{errs: []error{errors.New("boom")}}, "", nil)
	_, err := d.DeliverOnce(context.Background(), DeliveryRequest{Key: "k", To: "+1", Body: "x"})
	var se *SendError
	require.ErrorAs(t, err, &se)
	require.True(t, se.Retryable)
}

func TestDeliverOnce_HeldLeaseIsRetryable(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	sender := &fakeSender{}
	d := NewDelivery(store, sender, "", nil)

	_, err := store.InsertOutboundMessage(ctx, &models.OutboundMessage{IdempotencyKey: "k", ToPhone: "+1", Body: "x"})
	require.NoError(t, err)
	claimed, err := store.ClaimOutboundSend(ctx, "k", d.now().Add(-d.lease))
	require.NoError(t, err)
	require.True(t, claimed)

	_, err = d.DeliverOnce(ctx, DeliveryRequest{Key: "k", To: "+1", Body: "x"})
	require.ErrorIs(t, err, ErrSendInProgress)
	require.True(t, IsRetryable(err))
	require.Empty(t, sender.Sent())
}

func TestDeliverOnce_RequiresKey(t *testing.T) {
	d := NewDelivery(storage.NewMemoryStore(), &fakeSender{}, "", nil)
	_, err := d.DeliverOnce(context.Background(), DeliveryRequest{To: "+1", Body: "x"})
	require.Error(t, err)
}

func TestRedeliver(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	sender := &fakeSender{errs: []error{errors.New("boom")}}
	d := NewDelivery(store, sender, "", nil)

	_, err := d.DeliverOnce(ctx, DeliveryRequest{Key: "reply:SM9", To: "+1", Body: "x"})
	require.Error(t, err)

	rec, err := d.Recorded(ctx, "reply:SM9")
	require.NoError(t, err)
	require.NotNil(t, rec)

	out, err := d.Redeliver(ctx, "reply:SM9")
	require.NoError(t, err)
	require.False(t, out.AlreadyDelivered)

	out, err = d.Redeliver(ctx, "reply:SM9")
	require.NoError(t, err)
	require.True(t, out.AlreadyDelivered)
	require.Len(t, sender.Sent(), 1)

	rec, err = d.Recorded(ctx, "missing")
	require.NoError(t, err)
	require.Nil(t, rec)
}
