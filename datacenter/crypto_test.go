package datacenter

import (
	"crypto/aes"
	"crypto/rand"
	"crypto/sha256"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// igeEncrypt is the test-side mirror of igeDecrypt, used only to build
// fixtures for DecryptServerResponse below.
func igeEncrypt(block interface{ Encrypt(dst, src []byte) }, iv []byte, src, dst []byte) {
	blockSize := 16
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
			xored[j] = chunk[j] ^ xPrev[j]
		}
		block.Encrypt(buf, xored)
		for j := range buf {
			buf[j] ^= yPrev[j]
		}

		copy(dst[i:i+blockSize], buf)
		copy(xPrev, buf)
		copy(yPrev, chunk)
	}
}

func TestDecryptServerResponseRoundTrip(t *testing.T) {
	authKey := make([]byte, 256)
	_, err := rand.Read(authKey)
	require.NoError(t, err)

	plaintext := make([]byte, 64)
	_, err = rand.Read(plaintext)
	require.NoError(t, err)

	sum := sha256.Sum256(append(append([]byte{}, authKey[96:96+32]...), plaintext...))
	msgKey := sum[8:24]

	key, iv := deriveAESKeyIV(authKey, msgKey, true)
	block, err := aes.NewCipher(key)
	require.NoError(t, err)

	ciphertext := make([]byte, len(plaintext))
	igeEncrypt(block, iv, plaintext, ciphertext)

	decrypted, err := DecryptServerResponse(authKey, msgKey, ciphertext)
	require.NoError(t, err)
	assert.Equal(t, plaintext, decrypted)
}

func TestDecryptServerResponseRejectsBadKeyLength(t *testing.T) {
	_, err := DecryptServerResponse(make([]byte, 10), make([]byte, 16), make([]byte, 16))
	assert.Error(t, err)
}

func TestDecryptServerResponseRejectsShortCiphertext(t *testing.T) {
	_, err := DecryptServerResponse(make([]byte, 256), make([]byte, 16), make([]byte, 15))
	assert.Error(t, err)
}
