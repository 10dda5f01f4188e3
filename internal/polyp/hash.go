package polyp

// #region imports
import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math"
)

// #endregion

// #region text-hash

// TextHash returns the hex-encoded SHA-256 digest of the UTF-8 text.
func TextHash(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}

// #endregion text-hash

// #region vector-hash

// VectorHash returns the hex-encoded SHA-256 digest of the vector's IEEE-754
// little-endian float32 bytes. The byte layout must stay stable across
// releases: proofs bind against it.
func VectorHash(values []float32) string {
	h := sha256.New()
	var buf [4]byte
	for _, v := range values {
		binary.LittleEndian.PutUint32(buf[:], math.Float32bits(v))
		h.Write(buf[:])
	}
	return hex.EncodeToString(h.Sum(nil))
}

// #endregion vector-hash

// #region content-cid

// ContentCID derives the content address for a polyp's immutable content:
// the hex SHA-256 of the canonical JSON of subject and proof. A networked
// deployment would pin this to IPFS; the address itself is transport-neutral.
func ContentCID(p *Polyp) (string, error) {
	canonical := struct {
		Subject Subject `json:"subject"`
		Proof   Proof   `json:"proof"`
	}{Subject: p.Subject, Proof: p.Proof}

	data, err := json.Marshal(canonical)
	if err != nil {
		return "", fmt.Errorf("marshal content: %w", err)
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}

// #endregion content-cid

// #region merkle

// MerkleRoot computes the single-leaf merkle commitment for a hardened polyp:
// SHA-256(id bytes || cid bytes). The proof for a single-leaf tree is empty.
func MerkleRoot(id [16]byte, cid string) string {
	h := sha256.New()
	h.Write(id[:])
	h.Write([]byte(cid))
	return hex.EncodeToString(h.Sum(nil))
}

// #endregion merkle
