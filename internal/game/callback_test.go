package game

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/betlink/hub/internal/domain"
)

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func callbackBody(t *testing.T, token, action, ref, nonce string, amount string, ts int64, extra map[string]interface{}) []byte {
	t.Helper()
	body := map[string]interface{}{
		"token":        token,
		"action":       action,
		"round_id":     "round-1",
		"reference_id": ref,
		"amount":       amount,
		"currency":     "USD",
		"timestamp":    ts,
		"nonce":        nonce,
	}
	for k, v := range extra {
		body[k] = v
	}
	raw, err := json.Marshal(body)
	require.NoError(t, err)
	return raw
}

func signedCallback(t *testing.T, fx *gameFixture, body []byte) (*domain.CallbackResponse, error) {
	t.Helper()
	return fx.svc.ProcessCallback(context.Background(), fx.partnerID, body, CallbackSignature(fx.secret, body))
}

func TestCallbackBetDebitsWallet(t *testing.T) {
	fx := newGameFixture(t, domain.IntegrationDirect, "https://provider.test")
	res := fx.launch(t)

	body := callbackBody(t, res.Token, "bet", "bet-1", "nonce-0001", "10", time.Now().Unix(), nil)
	resp, err := signedCallback(t, fx, body)
	require.NoError(t, err)

	assert.Equal(t, "success", resp.Status)
	assert.True(t, resp.Balance.Equal(dec("90")))
	require.Len(t, fx.walletOps.history, 1)
	assert.Equal(t, domain.TxBet, fx.walletOps.history[0].Type)
	require.Len(t, fx.gameTxs.txs, 1)
	assert.Equal(t, domain.TxCompleted, fx.gameTxs.txs[0].Status)
}

func TestCallbackWinCreditsWallet(t *testing.T) {
	fx := newGameFixture(t, domain.IntegrationDirect, "https://provider.test")
	res := fx.launch(t)

	body := callbackBody(t, res.Token, "win", "win-1", "nonce-0002", "25", time.Now().Unix(), nil)
	resp, err := signedCallback(t, fx, body)
	require.NoError(t, err)
	assert.True(t, resp.Balance.Equal(dec("125")))
}

func TestCallbackRefund(t *testing.T) {
	fx := newGameFixture(t, domain.IntegrationDirect, "https://provider.test")
	res := fx.launch(t)

	body := callbackBody(t, res.Token, "bet", "bet-1", "nonce-0003", "10", time.Now().Unix(), nil)
	_, err := signedCallback(t, fx, body)
	require.NoError(t, err)

	body = callbackBody(t, res.Token, "refund", "ref-1", "nonce-0004", "10", time.Now().Unix(),
		map[string]interface{}{"original_reference_id": "bet-1"})
	resp, err := signedCallback(t, fx, body)
	require.NoError(t, err)
	assert.Equal(t, "success", resp.Status)
}

func TestCallbackRefundRequiresOriginalReference(t *testing.T) {
	fx := newGameFixture(t, domain.IntegrationDirect, "https://provider.test")
	res := fx.launch(t)

	body := callbackBody(t, res.Token, "refund", "ref-1", "nonce-0005", "10", time.Now().Unix(), nil)
	_, err := signedCallback(t, fx, body)
	var appErr *domain.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, "INVALID_REQUEST", appErr.Code)
}

func TestCallbackTimestampWindow(t *testing.T) {
	fx := newGameFixture(t, domain.IntegrationDirect, "https://provider.test")
	res := fx.launch(t)

	// Exactly at the boundary is accepted.
	body := callbackBody(t, res.Token, "bet", "bet-edge", "nonce-0006", "1", time.Now().Unix()-300, nil)
	_, err := signedCallback(t, fx, body)
	require.NoError(t, err)

	// One second past is rejected.
	body = callbackBody(t, res.Token, "bet", "bet-late", "nonce-0007", "1", time.Now().Unix()-301, nil)
	_, err = signedCallback(t, fx, body)
	var appErr *domain.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, "UNAUTHORIZED", appErr.Code)
	assert.Contains(t, appErr.Message, "timestamp")
}

func TestCallbackNonceReplayRejected(t *testing.T) {
	fx := newGameFixture(t, domain.IntegrationDirect, "https://provider.test")
	res := fx.launch(t)

	body := callbackBody(t, res.Token, "bet", "bet-1", "nonce-0008", "10", time.Now().Unix(), nil)
	_, err := signedCallback(t, fx, body)
	require.NoError(t, err)

	body = callbackBody(t, res.Token, "bet", "bet-2", "nonce-0008", "10", time.Now().Unix(), nil)
	_, err = signedCallback(t, fx, body)
	var appErr *domain.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Contains(t, appErr.Message, "nonce")
}

func TestCallbackInvalidSignature(t *testing.T) {
	fx := newGameFixture(t, domain.IntegrationDirect, "https://provider.test")
	res := fx.launch(t)

	body := callbackBody(t, res.Token, "bet", "bet-1", "nonce-0009", "10", time.Now().Unix(), nil)
	_, err := fx.svc.ProcessCallback(context.Background(), fx.partnerID, body, CallbackSignature("wrong", body))
	var appErr *domain.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Contains(t, appErr.Message, "signature")
	assert.Empty(t, fx.walletOps.history, "no money moves on a bad signature")
}

func TestCallbackUnknownToken(t *testing.T) {
	fx := newGameFixture(t, domain.IntegrationDirect, "https://provider.test")

	body := callbackBody(t, "deadbeef", "bet", "bet-1", "nonce-0010", "10", time.Now().Unix(), nil)
	_, err := signedCallback(t, fx, body)
	var appErr *domain.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, "UNAUTHORIZED", appErr.Code)
}

func TestCallbackDuplicateReferenceReplays(t *testing.T) {
	fx := newGameFixture(t, domain.IntegrationDirect, "https://provider.test")
	res := fx.launch(t)

	body := callbackBody(t, res.Token, "bet", "bet-1", "nonce-0011", "10", time.Now().Unix(), nil)
	first, err := signedCallback(t, fx, body)
	require.NoError(t, err)

	// Same reference with a fresh nonce: replay from the live balance, no
	// second wallet operation.
	body = callbackBody(t, res.Token, "bet", "bet-1", "nonce-0012", "10", time.Now().Unix(), nil)
	second, err := signedCallback(t, fx, body)
	require.NoError(t, err)

	assert.Equal(t, first.TransactionID, second.TransactionID)
	assert.True(t, second.Balance.Equal(dec("90")))
	assert.Len(t, fx.walletOps.history, 1)
}

func TestCallbackFailedOperationRecordsFailure(t *testing.T) {
	fx := newGameFixture(t, domain.IntegrationDirect, "https://provider.test")
	res := fx.launch(t)

	body := callbackBody(t, res.Token, "bet", "bet-big", "nonce-0013", "500", time.Now().Unix(), nil)
	_, err := signedCallback(t, fx, body)
	var appErr *domain.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, "INSUFFICIENT_FUNDS", appErr.Code)

	require.Len(t, fx.gameTxs.txs, 1)
	assert.Equal(t, domain.TxFailed, fx.gameTxs.txs[0].Status)
}

func TestCallbackMalformedBody(t *testing.T) {
	fx := newGameFixture(t, domain.IntegrationDirect, "https://provider.test")

	_, err := fx.svc.ProcessCallback(context.Background(), fx.partnerID, []byte("{"), "sig")
	var appErr *domain.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, "INVALID_REQUEST", appErr.Code)
}
