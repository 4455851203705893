package crypto

import (
	"crypto/ecdsa"
	"encoding/hex"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"

	"github.com/npanium/zkLeaderboard/internal/domain"
)

// BetMessageLen is the size of a packed bet authorization:
// bettor(20) || candidate(20) || position(1) || amount(32) || nonce(32) || deadline(32).
const BetMessageLen = common.AddressLength*2 + 1 + 32*3

// SignatureLen is the size of an r || s || v signature.
const SignatureLen = 65

// Signature is the (v, r, s) triple of a secp256k1 signature.
type Signature struct {
	V byte
	R [32]byte
	S [32]byte
}

// ParseSignature splits a 65-byte r || s || v signature. V is normalised to
// the recovery id range {0, 1}; both {0, 1} and {27, 28} are accepted.
func ParseSignature(sig []byte) (Signature, error) {
	if len(sig) != SignatureLen {
		return Signature{}, fmt.Errorf("crypto/signer: signature must be %d bytes, got %d: %w",
			SignatureLen, len(sig), domain.ErrInvalidSignature)
	}
	var out Signature
	copy(out.R[:], sig[:32])
	copy(out.S[:], sig[32:64])
	v := sig[64]
	if v >= 27 {
		v -= 27
	}
	if v > 1 {
		return Signature{}, fmt.Errorf("crypto/signer: bad recovery id %d: %w", sig[64], domain.ErrInvalidSignature)
	}
	out.V = v
	return out, nil
}

// Bytes returns the 65-byte r || s || v encoding with v in {27, 28}.
func (s Signature) Bytes() []byte {
	return concatBytes(s.R[:], s.S[:], []byte{s.V + 27})
}

// DecodeSignatureHex parses a 0x-prefixed or bare hex signature.
func DecodeSignatureHex(s string) ([]byte, error) {
	raw, err := hex.DecodeString(strings.TrimPrefix(strings.TrimSpace(s), "0x"))
	if err != nil {
		return nil, fmt.Errorf("crypto/signer: decode signature hex: %w", domain.ErrInvalidSignature)
	}
	return raw, nil
}

// PackBetMessage builds the canonical fixed-width encoding of a bet
// authorization. No length prefixes or delimiters are used; every field has
// a fixed width so the encoding is injective.
func PackBetMessage(bettor, candidate common.Address, position bool, amount *uint256.Int, nonce, deadline uint64) []byte {
	pos := byte(0)
	if position {
		pos = 1
	}
	if amount == nil {
		amount = new(uint256.Int)
	}
	return concatBytes(
		bettor.Bytes(),
		candidate.Bytes(),
		[]byte{pos},
		word(amount),
		word(new(uint256.Int).SetUint64(nonce)),
		word(new(uint256.Int).SetUint64(deadline)),
	)
}

// BetDigest returns the digest a bettor signs for the packed message:
//
//	keccak256("\x19Ethereum Signed Message:\n32" || keccak256(message))
func BetDigest(message []byte) []byte {
	return accounts.TextHash(ethcrypto.Keccak256(message))
}

// AuthorizationDigest packs and hashes auth in one step.
func AuthorizationDigest(auth domain.BetAuthorization) []byte {
	return BetDigest(PackBetMessage(auth.Bettor, auth.Candidate, auth.Position, auth.Amount, auth.Nonce, auth.Deadline))
}

// RecoverSigner recovers the address that produced sig over digest. Malformed
// signatures fail with domain.ErrInvalidSignature.
func RecoverSigner(digest, sig []byte) (common.Address, error) {
	parsed, err := ParseSignature(sig)
	if err != nil {
		return common.Address{}, err
	}
	r := new(big.Int).SetBytes(parsed.R[:])
	s := new(big.Int).SetBytes(parsed.S[:])
	if !ethcrypto.ValidateSignatureValues(parsed.V, r, s, false) {
		return common.Address{}, fmt.Errorf("crypto/signer: signature values out of range: %w", domain.ErrInvalidSignature)
	}

	raw := concatBytes(parsed.R[:], parsed.S[:], []byte{parsed.V})
	pub, err := ethcrypto.SigToPub(digest, raw)
	if err != nil {
		return common.Address{}, fmt.Errorf("crypto/signer: recover: %v: %w", err, domain.ErrInvalidSignature)
	}
	return ethcrypto.PubkeyToAddress(*pub), nil
}

// Signer holds a secp256k1 key and produces bet authorizations and raw
// digest signatures. Relayers and tests use it; the engine only recovers.
type Signer struct {
	privateKey *ecdsa.PrivateKey
	address    common.Address
}

// NewSigner creates a Signer from a hex-encoded secp256k1 private key.
func NewSigner(privateKeyHex string) (*Signer, error) {
	keyHex := strings.TrimPrefix(privateKeyHex, "0x")
	pk, err := ethcrypto.HexToECDSA(keyHex)
	if err != nil {
		return nil, fmt.Errorf("crypto/signer: invalid private key: %w", err)
	}
	return NewSignerFromKey(pk), nil
}

// NewSignerFromKey wraps an existing private key.
func NewSignerFromKey(pk *ecdsa.PrivateKey) *Signer {
	return &Signer{
		privateKey: pk,
		address:    ethcrypto.PubkeyToAddress(pk.PublicKey),
	}
}

// GenerateSigner creates a Signer with a fresh random key.
func GenerateSigner() (*Signer, error) {
	pk, err := ethcrypto.GenerateKey()
	if err != nil {
		return nil, fmt.Errorf("crypto/signer: generate key: %w", err)
	}
	return NewSignerFromKey(pk), nil
}

// Address returns the address derived from the signer's key.
func (s *Signer) Address() common.Address {
	return s.address
}

// PrivateKey exposes the key for transaction signing.
func (s *Signer) PrivateKey() *ecdsa.PrivateKey {
	return s.privateKey
}

// SignBetAuthorization signs auth and stores the 65-byte signature on it.
// auth.Bettor is not checked against the signer; a mismatch is detected by
// the engine at verification time.
func (s *Signer) SignBetAuthorization(auth *domain.BetAuthorization) error {
	sig, err := s.SignDigest(AuthorizationDigest(*auth))
	if err != nil {
		return err
	}
	auth.Signature = sig
	return nil
}

// SignDigest signs a 32-byte digest and returns r || s || v with v in
// {27, 28}.
func (s *Signer) SignDigest(digest []byte) ([]byte, error) {
	sig, err := ethcrypto.Sign(digest, s.privateKey)
	if err != nil {
		return nil, fmt.Errorf("crypto/signer: signing: %w", err)
	}

	// go-ethereum returns v in {0,1}; wallets produce {27,28}.
	if sig[64] < 27 {
		sig[64] += 27
	}
	return sig, nil
}

// word returns the 32-byte big-endian representation of n.
func word(n *uint256.Int) []byte {
	b := n.Bytes32()
	return b[:]
}

// concatBytes concatenates multiple byte slices into one.
func concatBytes(slices ...[]byte) []byte {
	total := 0
	for _, s := range slices {
		total += len(s)
	}
	buf := make([]byte, 0, total)
	for _, s := range slices {
		buf = append(buf, s...)
	}
	return buf
}
