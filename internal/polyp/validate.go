package polyp

// #region imports
import (
	"fmt"
	"math"
)

// #endregion

// l2Tolerance is the allowed deviation of an l2-normalized vector's norm from 1.
const l2Tolerance = 1e-3

// #region validate-embedding

// ValidateEmbedding checks the structural invariants of an embedding:
// vector length equals the model's declared dimensionality, and an
// "l2"-normalized vector has unit norm within floating-point tolerance.
func ValidateEmbedding(e Embedding) error {
	if len(e.Values) == 0 {
		return fmt.Errorf("%w: empty vector", ErrValidation)
	}
	if len(e.Values) != e.ModelID.Dimensions {
		return fmt.Errorf("%w: vector has %d values, model %s declares %d dimensions",
			ErrValidation, len(e.Values), e.ModelID.Name, e.ModelID.Dimensions)
	}
	if e.Normalization == "l2" {
		var sumSq float64
		for _, v := range e.Values {
			sumSq += float64(v) * float64(v)
		}
		norm := math.Sqrt(sumSq)
		if math.Abs(norm-1.0) > l2Tolerance {
			return fmt.Errorf("%w: l2-normalized vector has norm %.6f", ErrValidation, norm)
		}
	}
	return nil
}

// #endregion validate-embedding

// #region validate-binding

// ValidateBinding checks that a proof binds the same text hash and vector
// hash as the subject's actual content. A mismatch is structural corruption,
// distinct from the proof itself failing verification.
func ValidateBinding(sub Subject, proof Proof) error {
	if got := TextHash(sub.Payload.Content); proof.TextHash != got {
		return fmt.Errorf("%w: proof text hash %s does not match content hash %s",
			ErrValidation, proof.TextHash, got)
	}
	if got := VectorHash(sub.Vector.Values); proof.VectorHash != got {
		return fmt.Errorf("%w: proof vector hash %s does not match vector hash %s",
			ErrValidation, proof.VectorHash, got)
	}
	if proof.ModelID != sub.Vector.ModelID {
		return fmt.Errorf("%w: proof model %s does not match subject model %s",
			ErrValidation, proof.ModelID.SpaceKey(), sub.Vector.ModelID.SpaceKey())
	}
	return nil
}

// #endregion validate-binding

// #region validate-subject

// ValidateSubject checks everything required before a polyp may be created.
func ValidateSubject(sub Subject, proof Proof) error {
	if sub.Payload.Content == "" {
		return fmt.Errorf("%w: empty payload content", ErrValidation)
	}
	if err := ValidateEmbedding(sub.Vector); err != nil {
		return err
	}
	return ValidateBinding(sub, proof)
}

// #endregion validate-subject
