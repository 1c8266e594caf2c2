package mtstate

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleState() *State {
	return &State{
		Version:                CurrentVersion,
		TestBackend:            false,
		ClientBlocked:          false,
		LastInitSystemLanguage: "en-US",
		HasCurrentDatacenter:   true,
		CurrentDatacenterID:    2,
		TimeOffset:             1.5,
		LastDcUpdateTime:       1730000000,
		PushSessionID:          123456789,
		RegisteredForPush:      true,
		SessionsToDestroy:      []int64{1, 2, 3},
		Datacenters: []DatacenterRecord{
			{
				ID: 2,
				Addresses: []AddressRecord{
					{Address: "149.154.167.51", Port: 443},
				},
				PermanentAuthKey:   []byte{0xde, 0xad, 0xbe, 0xef},
				PermanentAuthKeyID: 42,
				EphemeralKeys: []EphemeralKeyRecord{
					{Media: true, Bound: false, Key: []byte{1, 2, 3}, KeyID: 7},
				},
				Salts: []SaltRecord{
					{ValidSince: 100, ValidUntil: 200, Salt: 999},
				},
				SessionIDsByClass: map[int32]int64{0: 111, 1: 222},
				AuthorizedForUser: true,
			},
		},
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "mtstate.dat")

	want := sampleState()
	require.NoError(t, Save(path, want))

	got, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestLoadMissingFileReturnsDefault(t *testing.T) {
	dir := t.TempDir()
	got, err := Load(filepath.Join(dir, "absent.dat"))
	require.NoError(t, err)
	assert.Equal(t, Default(), got)
}

func TestLoadRejectsCorruptCRC(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "mtstate.dat")
	require.NoError(t, Save(path, sampleState()))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	data[0] ^= 0xFF
	require.NoError(t, os.WriteFile(path, data, 0644))

	_, err = Load(path)
	assert.Error(t, err)
}

func TestLoadFutureVersionIgnoresFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "mtstate.dat")

	st := sampleState()
	st.Version = CurrentVersion + 1
	require.NoError(t, Save(path, st))

	got, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, Default(), got)
}
