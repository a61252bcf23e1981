package game

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/betlink/hub/internal/domain"
)

// ProcessCallback runs the full callback pipeline over the raw body:
// parse, timestamp window, nonce reservation, HMAC over the raw bytes,
// session resolution, idempotency, then the wallet operation. The order
// matters: everything cheap and replay-related runs before money moves.
func (s *Service) ProcessCallback(ctx context.Context, partnerID uuid.UUID, rawBody []byte, signature string) (*domain.CallbackResponse, error) {
	var req domain.CallbackRequest
	if err := json.Unmarshal(rawBody, &req); err != nil {
		return nil, domain.ErrValidation("malformed callback body")
	}
	if err := validateCallback(req); err != nil {
		return nil, err
	}

	skew := s.now().Unix() - req.Timestamp
	if skew < 0 {
		skew = -skew
	}
	if skew > int64(s.cfg.CallbackSkew.Seconds()) {
		return nil, domain.ErrUnauthorized("invalid timestamp")
	}

	fresh, err := s.cache.CheckAndStoreNonce(ctx, req.Nonce, s.cfg.NonceTTL)
	if err != nil {
		return nil, domain.ErrUpstream("nonce store unavailable", err)
	}
	if !fresh {
		return nil, domain.ErrUnauthorized("nonce already used")
	}

	partner, err := s.partners.FindByID(ctx, s.db, partnerID)
	if err != nil {
		return nil, err
	}
	if partner == nil {
		return nil, domain.ErrUnauthorized("unknown partner")
	}
	secret, err := s.encryptor.DecryptString(partner.SharedSecret)
	if err != nil {
		return nil, domain.ErrInternal("decrypt shared secret", err)
	}
	if !VerifyCallbackSignature(secret, rawBody, signature) {
		return nil, domain.ErrUnauthorized("invalid signature")
	}

	session, err := s.sessions.FindByToken(ctx, s.db, req.Token)
	if err != nil {
		return nil, err
	}
	if session == nil || session.PartnerID != partnerID {
		return nil, domain.ErrUnauthorized("unknown session token")
	}
	if session.Status != domain.SessionActive {
		return nil, domain.ErrUnauthorized("session is not active")
	}

	existing, err := s.gameTxs.FindByReference(ctx, s.db, req.ReferenceID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		if existing.Status != domain.TxCompleted {
			return nil, domain.ErrConflict(fmt.Sprintf("reference %s exists with status %s", req.ReferenceID, existing.Status))
		}
		return s.replayResponse(ctx, session, existing)
	}

	result, opErr := s.dispatch(ctx, session, req)
	status := domain.TxCompleted
	var walletTxID *uuid.UUID
	if opErr != nil {
		status = domain.TxFailed
	} else {
		walletTxID = &result.TransactionID
	}

	if _, recErr := s.gameTxs.Insert(ctx, s.db, &domain.GameTransaction{
		ReferenceID:   req.ReferenceID,
		SessionID:     session.ID,
		RoundID:       req.RoundID,
		Action:        req.Action,
		Amount:        req.Amount,
		Currency:      req.Currency,
		Status:        status,
		TransactionID: walletTxID,
	}); recErr != nil {
		s.logger.Error("record game transaction", "reference_id", req.ReferenceID, "error", recErr)
	}
	if opErr != nil {
		return nil, opErr
	}

	return &domain.CallbackResponse{
		Status:        "success",
		Balance:       result.Balance,
		Currency:      result.Currency,
		TransactionID: result.TransactionID,
	}, nil
}

func validateCallback(req domain.CallbackRequest) error {
	if req.Token == "" || req.RoundID == "" {
		return domain.ErrValidation("token and round_id are required")
	}
	switch req.Action {
	case domain.CallbackBet, domain.CallbackWin, domain.CallbackRefund:
	default:
		return domain.ErrValidation(fmt.Sprintf("unknown action %q", req.Action))
	}
	if err := domain.ValidateReferenceID(req.ReferenceID); err != nil {
		return err
	}
	if req.Timestamp == 0 {
		return domain.ErrValidation("timestamp is required")
	}
	return domain.ValidateNonce(req.Nonce)
}

func (s *Service) dispatch(ctx context.Context, session *domain.GameSession, req domain.CallbackRequest) (*domain.WalletOpResult, error) {
	meta, _ := json.Marshal(map[string]string{"round_id": req.RoundID})

	switch req.Action {
	case domain.CallbackBet:
		return s.wallets.Debit(ctx, domain.WalletOpRequest{
			PlayerID:      session.PlayerID,
			PartnerID:     session.PartnerID,
			Currency:      req.Currency,
			Amount:        req.Amount,
			ReferenceID:   req.ReferenceID,
			Type:          domain.TxBet,
			GameID:        &session.GameID,
			GameSessionID: &session.ID,
			Metadata:      meta,
		})
	case domain.CallbackWin:
		return s.wallets.Credit(ctx, domain.WalletOpRequest{
			PlayerID:      session.PlayerID,
			PartnerID:     session.PartnerID,
			Currency:      req.Currency,
			Amount:        req.Amount,
			ReferenceID:   req.ReferenceID,
			Type:          domain.TxWin,
			GameID:        &session.GameID,
			GameSessionID: &session.ID,
			Metadata:      meta,
		})
	case domain.CallbackRefund:
		if req.OriginalReferenceID == "" {
			return nil, domain.ErrValidation("refund requires original_reference_id")
		}
		return s.wallets.Rollback(ctx, domain.RollbackRequest{
			PlayerID:            session.PlayerID,
			PartnerID:           session.PartnerID,
			ReferenceID:         req.ReferenceID,
			OriginalReferenceID: req.OriginalReferenceID,
			Metadata:            meta,
		})
	}
	return nil, domain.ErrValidation(fmt.Sprintf("unknown action %q", req.Action))
}

// replayResponse rebuilds a callback response for a completed duplicate from
// the live wallet balance rather than the stale snapshot.
func (s *Service) replayResponse(ctx context.Context, session *domain.GameSession, existing *domain.GameTransaction) (*domain.CallbackResponse, error) {
	w, err := s.wallets.GetWallet(ctx, session.PlayerID, session.PartnerID, existing.Currency)
	if err != nil {
		return nil, err
	}
	resp := &domain.CallbackResponse{
		Status:   "success",
		Balance:  w.Balance,
		Currency: w.Currency,
	}
	if existing.TransactionID != nil {
		resp.TransactionID = *existing.TransactionID
	}
	return resp, nil
}
