package oplog

import (
	"context"
	"errors"
	"testing"

	"github.com/MarkoPoloResearchLab/travelbook/pkg/travel"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestLogOperation(test *testing.T) {
	test.Parallel()
	core, observed := observer.New(zap.DebugLevel)
	adapter := New(zap.New(core))

	txRef, err := travel.NewTxRef("9f1c2f3e-1111-4a2b-8c3d-123456789abc")
	require.NoError(test, err)
	amount, err := travel.NewAmountCents(15000)
	require.NoError(test, err)

	adapter.LogOperation(context.Background(), travel.OperationLog{
		Operation: "reconcile",
		TxRef:     txRef,
		Amount:    amount,
		From:      travel.PaymentStatusPending,
		To:        travel.PaymentStatusSuccess,
		Status:    "ok",
	})
	adapter.LogOperation(context.Background(), travel.OperationLog{
		Operation: "notify",
		TxRef:     txRef,
		Status:    "error",
		Error:     errors.New("queue full"),
	})

	entries := observed.All()
	require.Len(test, entries, 2)

	success := entries[0]
	assert.Equal(test, zapcore.InfoLevel, success.Level)
	assert.Equal(test, "operation", success.LoggerName)
	fields := success.ContextMap()
	assert.Equal(test, "reconcile", fields["operation"])
	assert.Equal(test, txRef.String(), fields["tx_ref"])
	assert.Equal(test, "150.00", fields["amount"])
	assert.Equal(test, "success", fields["to"])
	assert.NotContains(test, fields, "booking_id")

	failure := entries[1]
	assert.Equal(test, zapcore.WarnLevel, failure.Level)
	assert.Equal(test, "queue full", failure.ContextMap()["error"])
}
