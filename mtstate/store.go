// Package mtstate persists the per-instance binary protocol state
// described in spec §4.C: the tgnet.dat-equivalent record of datacenter
// keys/salts/sessions, time offset, and push session bookkeeping. This is
// deliberately independent of the TOML bootstrap layer in package config —
// the two never merge (see SPEC_FULL.md Part II).
package mtstate

import (
	"bytes"
	"encoding/binary"
	"hash/crc32"
	"os"
	"path/filepath"

	"github.com/teranos/mtcore/errors"
)

// CurrentVersion is the highest state-file version this build understands.
// Per §4.C, "if the version exceeds the supported one, ignore the file."
const CurrentVersion = 1

// State is the full decoded contents of a tgnet.dat-equivalent file.
type State struct {
	Version int32

	TestBackend  bool
	ClientBlocked bool
	LastInitSystemLanguage string

	HasCurrentDatacenter bool
	CurrentDatacenterID  int32
	TimeOffset           float64
	LastDcUpdateTime     int64 // epoch seconds
	PushSessionID        int64
	RegisteredForPush    bool
	SessionsToDestroy    []int64

	Datacenters []DatacenterRecord
}

// DatacenterRecord is the serialized shape of one datacenter's durable
// state (§3 Datacenter, §4.C "each delegating to a Datacenter serializer").
type DatacenterRecord struct {
	ID int32

	Addresses []AddressRecord

	IsCDN bool

	PermanentAuthKey   []byte
	PermanentAuthKeyID int64

	EphemeralKeys []EphemeralKeyRecord

	Salts []SaltRecord

	SessionIDsByClass map[int32]int64 // keyed by connection.Class

	AuthorizedForUser bool
}

// AddressRecord is one entry of a datacenter's address list.
type AddressRecord struct {
	Address string
	Port    int32
	IPv6    bool
	Media   bool
}

// EphemeralKeyRecord is one of up to two ephemeral keys per media flag
// (bound/unbound, §3 Datacenter).
type EphemeralKeyRecord struct {
	Media  bool
	Bound  bool
	Key    []byte
	KeyID  int64
}

// SaltRecord is one entry of the durable salt pool.
type SaltRecord struct {
	ValidSince int32
	ValidUntil int32
	Salt       int64
}

// Default returns an empty, current-version state with no datacenters —
// the caller is expected to populate Datacenters from config.SetDefaults'
// bootstrap address table on first run (§4.C "Initialize the default
// datacenter table if empty").
func Default() *State {
	return &State{Version: CurrentVersion}
}

// Load reads and validates a state file written by Save. A missing file
// is not an error; it returns Default(). A version newer than
// CurrentVersion is ignored per §4.C and also returns Default().
func Load(path string) (*State, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return Default(), nil
	}
	if err != nil {
		return nil, errors.Wrapf(err, "mtstate: read %s", path)
	}

	if len(data) < 4 {
		return nil, errors.Newf("mtstate: %s is too short to contain a CRC trailer", path)
	}

	body, trailer := data[:len(data)-4], data[len(data)-4:]
	wantCRC := binary.BigEndian.Uint32(trailer)
	gotCRC := crc32.ChecksumIEEE(body)
	if wantCRC != gotCRC {
		return nil, errors.Newf("mtstate: %s failed CRC32 check (corrupt or truncated)", path)
	}

	r := bytes.NewReader(body)
	st, err := decode(r)
	if err != nil {
		return nil, errors.Wrapf(err, "mtstate: decode %s", path)
	}

	if st.Version > CurrentVersion {
		return Default(), nil
	}

	if st.HasCurrentDatacenter {
		if !hasUsablePermanentKey(st, st.CurrentDatacenterID) {
			st.CurrentDatacenterID = 0
			st.HasCurrentDatacenter = false
			st.Datacenters = nil
		}
	}

	return st, nil
}

func hasUsablePermanentKey(st *State, dcID int32) bool {
	for _, dc := range st.Datacenters {
		if dc.ID == dcID {
			return len(dc.PermanentAuthKey) > 0
		}
	}
	return false
}

// Save atomically writes state to path: encode to a temp file in the same
// directory, fsync, then rename over the target (§4.C "write to temp,
// fsync, rename").
func Save(path string, st *State) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return errors.Wrapf(err, "mtstate: mkdir %s", dir)
	}

	var buf bytes.Buffer
	if err := encode(&buf, st); err != nil {
		return errors.Wrap(err, "mtstate: encode")
	}

	crc := crc32.ChecksumIEEE(buf.Bytes())
	var trailer [4]byte
	binary.BigEndian.PutUint32(trailer[:], crc)
	buf.Write(trailer[:])

	tmp, err := os.CreateTemp(dir, ".mtstate-*.tmp")
	if err != nil {
		return errors.Wrap(err, "mtstate: create temp file")
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(buf.Bytes()); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return errors.Wrap(err, "mtstate: write temp file")
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return errors.Wrap(err, "mtstate: fsync temp file")
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return errors.Wrap(err, "mtstate: close temp file")
	}

	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return errors.Wrap(err, "mtstate: rename temp file into place")
	}

	return nil
}
