package crypto

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SATIVAR/SATIVAR-AI-CHAT-sub002/pkg/models"
)

func testParams() KeyParams {
	return KeyParams{Iterations: 1, MemoryKiB: 1024, Parallelism: 1}
}

func TestSealedBox_RoundTrip(t *testing.T) {
	box, err := NewSealedBox("correct horse", "tenant-salt", testParams())
	require.NoError(t, err)

	blob, err := box.Seal(models.Credentials{Username: "api", Password: "s3cret"})
	require.NoError(t, err)

	creds, err := box.Decrypt(blob)
	require.NoError(t, err)
	assert.Equal(t, "api", creds.Username)
	assert.Equal(t, "s3cret", creds.Password)
}

func TestSealedBox_Failures(t *testing.T) {
	box, err := NewSealedBox("correct horse", "tenant-salt", testParams())
	require.NoError(t, err)
	other, err := NewSealedBox("wrong horse", "tenant-salt", testParams())
	require.NoError(t, err)

	blob, err := box.Seal(models.Credentials{Username: "api", Password: "s3cret"})
	require.NoError(t, err)

	_, err = other.Decrypt(blob)
	assert.ErrorIs(t, err, ErrDecryptFailed)

	_, err = box.Decrypt([]byte("short"))
	assert.ErrorIs(t, err, ErrMalformedBlob)

	tampered := append([]byte{}, blob...)
	tampered[len(tampered)-1] ^= 0xff
	_, err = box.Decrypt(tampered)
	assert.ErrorIs(t, err, ErrDecryptFailed)

	empty, err := box.Seal(models.Credentials{Password: "only-password"})
	require.NoError(t, err)
	_, err = box.Decrypt(empty)
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestNewSealedBox_Validation(t *testing.T) {
	_, err := NewSealedBox("", "tenant-salt", testParams())
	assert.Error(t, err)

	_, err = NewSealedBox("passphrase", "short", testParams())
	assert.Error(t, err)
}
