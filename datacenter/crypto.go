package datacenter

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/sha256"

	"github.com/teranos/mtcore/errors"
)

// MTProto 2.0 message decryption (§4.D decryptServerResponse). This is
// bespoke non-self-describing binary crypto, not something any
// third-party package in the example pack models, so it is built on
// crypto/aes + crypto/cipher + crypto/sha256 directly (see DESIGN.md).

const (
	ivLength  = 32
	keyLength = 32
)

// deriveAESKeyIV derives the AES-256-IGE key and iv for one direction of
// an MTProto 2.0 encrypted message from the auth key and message key, per
// the standard "msg_key_large" construction.
func deriveAESKeyIV(authKey []byte, msgKey []byte, serverToClient bool) (key, iv []byte) {
	x := 0
	if serverToClient {
		x = 8
	}

	sha256a := sha256.New()
	sha256a.Write(msgKey)
	sha256a.Write(authKey[x : x+36])
	a := sha256a.Sum(nil)

	sha256b := sha256.New()
	sha256b.Write(authKey[x+40 : x+76])
	sha256b.Write(msgKey)
	b := sha256b.Sum(nil)

	key = make([]byte, keyLength)
	copy(key[0:8], a[0:8])
	copy(key[8:8+16], b[8:8+16])
	copy(key[24:24+8], a[24:24+8])

	iv = make([]byte, ivLength)
	copy(iv[0:8], b[0:8])
	copy(iv[8:8+16], a[8:8+16])
	copy(iv[24:24+8], b[24:24+8])

	return key, iv
}

// DecryptServerResponse decrypts one encrypted frame from a datacenter
// using authKey, verifying the message key against the plaintext's own
// sha256 prefix (§4.D decryptServerResponse). keyID is checked by the
// caller against the connection's negotiated auth key before calling
// this; this function assumes keyID already matched.
func DecryptServerResponse(authKey []byte, msgKey []byte, encrypted []byte) ([]byte, error) {
	if len(authKey) != 256 {
		return nil, errors.New("decryptServerResponse: auth key must be 2048 bits")
	}
	if len(encrypted)%16 != 0 || len(encrypted) == 0 {
		return nil, errors.New("decryptServerResponse: ciphertext not a multiple of the AES block size")
	}

	key, iv := deriveAESKeyIV(authKey, msgKey, true)

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, errors.Wrap(err, "decryptServerResponse: building aes cipher")
	}

	plaintext := make([]byte, len(encrypted))
	igeDecrypt(block, iv, encrypted, plaintext)

	sum := sha256.Sum256(append(append([]byte{}, authKey[96:96+32]...), plaintext...))
	if string(sum[8:24]) != string(msgKey) {
		return nil, errors.New("decryptServerResponse: message key mismatch")
	}

	return plaintext, nil
}

// igeDecrypt implements AES-256-IGE, the non-standard chaining mode
// MTProto uses instead of CBC. cipher.BlockMode doesn't cover it, so it
// is hand-rolled directly on crypto/cipher's block primitive.
func igeDecrypt(block cipher.Block, iv []byte, src, dst []byte) {
	blockSize := block.BlockSize()
	ivLen := len(iv)
	xPrev := make([]byte, blockSize)
	yPrev := make([]byte, blockSize)
	copy(xPrev, iv[:ivLen/2])
	copy(yPrev, iv[ivLen/2:])

	buf := make([]byte, blockSize)
	for i := 0; i < len(src); i += blockSize {
		chunk := src[i : i+blockSize]

		xored := make([]byte, blockSize)
		for j := range xored {
			xored[j] = chunk[j] ^ yPrev[j]
		}
		block.Decrypt(buf, xored)
		for j := range buf {
			buf[j] ^= xPrev[j]
		}

		copy(dst[i:i+blockSize], buf)
		copy(xPrev, chunk)
		copy(yPrev, buf)
	}
}
