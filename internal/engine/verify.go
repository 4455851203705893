package engine

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/npanium/zkLeaderboard/internal/crypto"
	"github.com/npanium/zkLeaderboard/internal/domain"
)

// VerifyAuthorization checks deadline, nonce and signature of auth without
// consuming the nonce.
func (e *Engine) VerifyAuthorization(auth domain.BetAuthorization) error {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.verifyLocked(auth)
}

func (e *Engine) verifyLocked(auth domain.BetAuthorization) error {
	now := e.now().Unix()
	if now > 0 && uint64(now) > auth.Deadline {
		return fmt.Errorf("engine: deadline %d passed at %d: %w", auth.Deadline, now, domain.ErrSignatureExpired)
	}
	if want := e.nonces.Get(auth.Bettor); auth.Nonce != want {
		return fmt.Errorf("engine: nonce %d, expected %d: %w", auth.Nonce, want, domain.ErrInvalidNonce)
	}
	signer, err := crypto.RecoverSigner(crypto.AuthorizationDigest(auth), auth.Signature)
	if err != nil {
		return fmt.Errorf("engine: %w", err)
	}
	if signer != auth.Bettor {
		return fmt.Errorf("engine: recovered %s for bettor %s: %w", signer.Hex(), auth.Bettor.Hex(), domain.ErrSignerMismatch)
	}
	return nil
}

// PlaceBetWithSignature places a bet relayed on behalf of auth.Bettor. The
// bettor's nonce is consumed only when the bet is recorded.
func (e *Engine) PlaceBetWithSignature(ctx context.Context, auth domain.BetAuthorization) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.verifyLocked(auth); err != nil {
		e.logger.DebugContext(ctx, "authorization rejected",
			slog.String("bettor", auth.Bettor.Hex()),
			slog.Uint64("nonce", auth.Nonce),
			slog.String("error", err.Error()),
		)
		return err
	}
	if err := e.placeBetLocked(context.WithoutCancel(ctx), auth.Bettor, auth.Candidate, auth.Position, auth.Amount); err != nil {
		return err
	}
	e.nonces.consume(auth.Bettor)
	return nil
}
