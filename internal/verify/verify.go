// Package verify is the proof-verifier boundary. Real ZK verification is an
// external oracle; this package wraps it and keeps the engine's two very
// different failure modes apart: an unavailable verifier is transient and
// retryable, an invalid proof is a terminal business outcome.
package verify

// #region imports
import (
	"context"
	"errors"

	"github.com/reefipedia/reef/internal/polyp"
)

// #endregion

// #region errors

// ErrVerifierUnavailable indicates a transient verifier outage. The polyp
// stays in Draft and the caller retries with backoff. This is never the
// result for a proof that simply fails to verify.
var ErrVerifierUnavailable = errors.New("verify: verifier unavailable")

// #endregion errors

// #region verifier

// Verifier checks a proof against the hashes it claims to bind.
type Verifier interface {
	// Verify returns whether the proof is cryptographically valid for the
	// given text and vector hashes. A false return is a definitive invalid
	// proof, not an error.
	Verify(ctx context.Context, proof polyp.Proof, textHash, vectorHash string) (bool, error)
}

// #endregion verifier

// #region binding-verifier

// BindingVerifier validates the structural hash bindings and delegates the
// cryptographic check to an inner verifier. A binding mismatch short-circuits
// to invalid without consulting the oracle: the proof attests the wrong
// content regardless of its own validity.
type BindingVerifier struct {
	inner Verifier
}

// NewBindingVerifier wraps inner with hash-binding checks.
func NewBindingVerifier(inner Verifier) *BindingVerifier {
	return &BindingVerifier{inner: inner}
}

// Verify checks bindings first, then the proof itself.
func (v *BindingVerifier) Verify(ctx context.Context, proof polyp.Proof, textHash, vectorHash string) (bool, error) {
	if proof.TextHash != textHash || proof.VectorHash != vectorHash {
		return false, nil
	}
	return v.inner.Verify(ctx, proof, textHash, vectorHash)
}

// #endregion binding-verifier

// #region placeholder

// PlaceholderVerifier accepts every structurally bound proof. It stands in
// for a real SP1/Risc0 verifier during development; the hash-binding checks
// around it stay real.
type PlaceholderVerifier struct{}

// NewPlaceholderVerifier creates a verifier that approves bound proofs.
func NewPlaceholderVerifier() *PlaceholderVerifier {
	return &PlaceholderVerifier{}
}

// Verify reports valid for any proof whose claimed hashes match.
func (v *PlaceholderVerifier) Verify(_ context.Context, proof polyp.Proof, textHash, vectorHash string) (bool, error) {
	return proof.TextHash == textHash && proof.VectorHash == vectorHash, nil
}

// #endregion placeholder
