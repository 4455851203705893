package crypto

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEncryptedKeyFileLoadsSigner(t *testing.T) {
	require := require.New(t)

	blob, err := EncryptKey(devKey, "correct horse")
	require.NoError(err)

	path := filepath.Join(t.TempDir(), "operator.json")
	require.NoError(os.WriteFile(path, blob, 0o600))

	signer, err := LoadSigner(KeyConfig{EncryptedKeyPath: path, KeyPassword: "correct horse"})
	require.NoError(err)
	require.Equal("0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266", signer.Address().Hex())

	_, err = LoadSigner(KeyConfig{EncryptedKeyPath: path, KeyPassword: "wrong"})
	require.Error(err)
}

func TestLoadKeyPrefersRawKey(t *testing.T) {
	require := require.New(t)

	k, err := LoadKey(KeyConfig{RawPrivateKey: devKey, EncryptedKeyPath: "/does/not/exist"})
	require.NoError(err)
	require.Equal(strings.TrimPrefix(devKey, "0x"), k)

	_, err = LoadKey(KeyConfig{RawPrivateKey: "0xnothex"})
	require.Error(err)

	_, err = LoadKey(KeyConfig{})
	require.Error(err)
}

func TestEncryptKeyValidation(t *testing.T) {
	_, err := EncryptKey(devKey, "")
	require.Error(t, err)

	_, err = EncryptKey("0xabcd", "pw")
	require.Error(t, err)
}
