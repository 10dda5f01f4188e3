package polyp

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"math"
	"testing"
	"time"
)

func testModel(dims int) ModelID {
	return ModelID{Provider: "test", Name: "test-model", WeightsHash: "abc123", Dimensions: dims}
}

func unitVector(dims int) []float32 {
	v := make([]float32, dims)
	norm := float32(math.Sqrt(float64(dims)))
	for i := range v {
		v[i] = 1.0 / norm
	}
	return v
}

func testSubject(content string, dims int) Subject {
	return Subject{
		Payload: Payload{Content: content, ContentType: "text/plain"},
		Vector: Embedding{
			Values:        unitVector(dims),
			ModelID:       testModel(dims),
			Quantization:  "float32",
			Normalization: "l2",
		},
		Provenance: Provenance{
			CreatorHotkey: "deadbeef",
			CreatorDID:    "did:reef:test",
			Source:        SourceAttribution{AccessedAt: time.Now().UTC()},
			Pipeline:      Pipeline{Steps: []PipelineStep{{Name: "embed", Version: "1.0.0"}}},
		},
	}
}

// boundProof builds a proof whose hashes match the subject's actual content.
func boundProof(sub Subject) Proof {
	return Proof{
		ProofType:  "placeholder",
		ProofValue: "0x00",
		VKHash:     "0x00",
		TextHash:   TextHash(sub.Payload.Content),
		VectorHash: VectorHash(sub.Vector.Values),
		ModelID:    sub.Vector.ModelID,
		CreatedAt:  time.Now().UTC(),
	}
}

func TestValidateSubjectAccepts(t *testing.T) {
	sub := testSubject("the speed of light is 299792458 m/s", 8)
	if err := ValidateSubject(sub, boundProof(sub)); err != nil {
		t.Fatalf("ValidateSubject: %v", err)
	}
}

func TestValidateEmbeddingDimensionMismatch(t *testing.T) {
	sub := testSubject("x", 8)
	sub.Vector.ModelID.Dimensions = 16
	err := ValidateEmbedding(sub.Vector)
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
}

func TestValidateEmbeddingL2Norm(t *testing.T) {
	sub := testSubject("x", 4)
	sub.Vector.Values = []float32{3, 0, 0, 0} // norm 3, tagged l2
	err := ValidateEmbedding(sub.Vector)
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation for non-unit l2 vector, got %v", err)
	}

	// Untagged vectors are not norm-checked.
	sub.Vector.Normalization = "none"
	if err := ValidateEmbedding(sub.Vector); err != nil {
		t.Fatalf("unexpected error for unnormalized vector: %v", err)
	}
}

func TestValidateBindingMismatch(t *testing.T) {
	sub := testSubject("original text", 8)
	proof := boundProof(sub)
	proof.TextHash = TextHash("tampered text")
	err := ValidateBinding(sub, proof)
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation for text hash mismatch, got %v", err)
	}

	proof = boundProof(sub)
	proof.VectorHash = VectorHash([]float32{9, 9})
	if err := ValidateBinding(sub, proof); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation for vector hash mismatch, got %v", err)
	}
}

func TestVectorHashStableLayout(t *testing.T) {
	// One float32 1.0 is the little-endian bytes 00 00 80 3f.
	got := VectorHash([]float32{1.0})
	want := sha256Hex([]byte{0x00, 0x00, 0x80, 0x3f})
	if got != want {
		t.Fatalf("VectorHash = %s, want %s", got, want)
	}
	if got == VectorHash([]float32{1.0000001}) {
		t.Fatal("VectorHash must be sensitive to value changes")
	}
}

func sha256Hex(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

func TestMerkleRootMatchesManualDigest(t *testing.T) {
	sub := testSubject("content", 4)
	p := &Polyp{Subject: sub, Proof: boundProof(sub)}
	cid, err := ContentCID(p)
	if err != nil {
		t.Fatalf("ContentCID: %v", err)
	}
	if len(cid) != 64 {
		t.Fatalf("expected 64-char hex digest, got %d chars", len(cid))
	}
	root := MerkleRoot([16]byte{1}, cid)
	if len(root) != 64 {
		t.Fatalf("expected 64-char merkle root, got %d chars", len(root))
	}
	if root == MerkleRoot([16]byte{2}, cid) {
		t.Fatal("merkle root must depend on polyp id")
	}
}
