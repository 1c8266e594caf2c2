package mtstate

import (
	"encoding/binary"
	"io"
	"math"

	"github.com/teranos/mtcore/errors"
)

// Binary layout (big-endian throughout), matching the field order given
// in §4.C: version; test-backend flag; client-blocked flag; last init
// system language tag; presence flag for current-dc record; if present,
// its fields; list of datacenter records.

func encode(w io.Writer, st *State) error {
	if err := writeInt32(w, st.Version); err != nil {
		return err
	}
	if err := writeBool(w, st.TestBackend); err != nil {
		return err
	}
	if err := writeBool(w, st.ClientBlocked); err != nil {
		return err
	}
	if err := writeString(w, st.LastInitSystemLanguage); err != nil {
		return err
	}
	if err := writeBool(w, st.HasCurrentDatacenter); err != nil {
		return err
	}
	if st.HasCurrentDatacenter {
		if err := writeInt32(w, st.CurrentDatacenterID); err != nil {
			return err
		}
		if err := writeFloat64(w, st.TimeOffset); err != nil {
			return err
		}
		if err := writeInt64(w, st.LastDcUpdateTime); err != nil {
			return err
		}
		if err := writeInt64(w, st.PushSessionID); err != nil {
			return err
		}
		if err := writeBool(w, st.RegisteredForPush); err != nil {
			return err
		}
		if err := writeInt32(w, int32(len(st.SessionsToDestroy))); err != nil {
			return err
		}
		for _, id := range st.SessionsToDestroy {
			if err := writeInt64(w, id); err != nil {
				return err
			}
		}
	}

	if err := writeInt32(w, int32(len(st.Datacenters))); err != nil {
		return err
	}
	for i := range st.Datacenters {
		if err := encodeDatacenter(w, &st.Datacenters[i]); err != nil {
			return err
		}
	}
	return nil
}

func encodeDatacenter(w io.Writer, dc *DatacenterRecord) error {
	if err := writeInt32(w, dc.ID); err != nil {
		return err
	}
	if err := writeBool(w, dc.IsCDN); err != nil {
		return err
	}

	if err := writeInt32(w, int32(len(dc.Addresses))); err != nil {
		return err
	}
	for _, a := range dc.Addresses {
		if err := writeString(w, a.Address); err != nil {
			return err
		}
		if err := writeInt32(w, a.Port); err != nil {
			return err
		}
		if err := writeBool(w, a.IPv6); err != nil {
			return err
		}
		if err := writeBool(w, a.Media); err != nil {
			return err
		}
	}

	if err := writeBytes(w, dc.PermanentAuthKey); err != nil {
		return err
	}
	if err := writeInt64(w, dc.PermanentAuthKeyID); err != nil {
		return err
	}

	if err := writeInt32(w, int32(len(dc.EphemeralKeys))); err != nil {
		return err
	}
	for _, k := range dc.EphemeralKeys {
		if err := writeBool(w, k.Media); err != nil {
			return err
		}
		if err := writeBool(w, k.Bound); err != nil {
			return err
		}
		if err := writeBytes(w, k.Key); err != nil {
			return err
		}
		if err := writeInt64(w, k.KeyID); err != nil {
			return err
		}
	}

	if err := writeInt32(w, int32(len(dc.Salts))); err != nil {
		return err
	}
	for _, s := range dc.Salts {
		if err := writeInt32(w, s.ValidSince); err != nil {
			return err
		}
		if err := writeInt32(w, s.ValidUntil); err != nil {
			return err
		}
		if err := writeInt64(w, s.Salt); err != nil {
			return err
		}
	}

	if err := writeInt32(w, int32(len(dc.SessionIDsByClass))); err != nil {
		return err
	}
	for class, sessionID := range dc.SessionIDsByClass {
		if err := writeInt32(w, class); err != nil {
			return err
		}
		if err := writeInt64(w, sessionID); err != nil {
			return err
		}
	}

	return writeBool(w, dc.AuthorizedForUser)
}

func decode(r io.Reader) (*State, error) {
	st := &State{}

	var err error
	if st.Version, err = readInt32(r); err != nil {
		return nil, err
	}
	if st.TestBackend, err = readBool(r); err != nil {
		return nil, err
	}
	if st.ClientBlocked, err = readBool(r); err != nil {
		return nil, err
	}
	if st.LastInitSystemLanguage, err = readString(r); err != nil {
		return nil, err
	}
	if st.HasCurrentDatacenter, err = readBool(r); err != nil {
		return nil, err
	}
	if st.HasCurrentDatacenter {
		if st.CurrentDatacenterID, err = readInt32(r); err != nil {
			return nil, err
		}
		if st.TimeOffset, err = readFloat64(r); err != nil {
			return nil, err
		}
		if st.LastDcUpdateTime, err = readInt64(r); err != nil {
			return nil, err
		}
		if st.PushSessionID, err = readInt64(r); err != nil {
			return nil, err
		}
		if st.RegisteredForPush, err = readBool(r); err != nil {
			return nil, err
		}
		n, err := readInt32(r)
		if err != nil {
			return nil, err
		}
		st.SessionsToDestroy = make([]int64, n)
		for i := range st.SessionsToDestroy {
			if st.SessionsToDestroy[i], err = readInt64(r); err != nil {
				return nil, err
			}
		}
	}

	n, err := readInt32(r)
	if err != nil {
		return nil, err
	}
	st.Datacenters = make([]DatacenterRecord, n)
	for i := range st.Datacenters {
		dc, err := decodeDatacenter(r)
		if err != nil {
			return nil, err
		}
		st.Datacenters[i] = *dc
	}

	return st, nil
}

func decodeDatacenter(r io.Reader) (*DatacenterRecord, error) {
	dc := &DatacenterRecord{}
	var err error

	if dc.ID, err = readInt32(r); err != nil {
		return nil, err
	}
	if dc.IsCDN, err = readBool(r); err != nil {
		return nil, err
	}

	n, err := readInt32(r)
	if err != nil {
		return nil, err
	}
	dc.Addresses = make([]AddressRecord, n)
	for i := range dc.Addresses {
		a := &dc.Addresses[i]
		if a.Address, err = readString(r); err != nil {
			return nil, err
		}
		if a.Port, err = readInt32(r); err != nil {
			return nil, err
		}
		if a.IPv6, err = readBool(r); err != nil {
			return nil, err
		}
		if a.Media, err = readBool(r); err != nil {
			return nil, err
		}
	}

	if dc.PermanentAuthKey, err = readBytes(r); err != nil {
		return nil, err
	}
	if dc.PermanentAuthKeyID, err = readInt64(r); err != nil {
		return nil, err
	}

	n, err = readInt32(r)
	if err != nil {
		return nil, err
	}
	dc.EphemeralKeys = make([]EphemeralKeyRecord, n)
	for i := range dc.EphemeralKeys {
		k := &dc.EphemeralKeys[i]
		if k.Media, err = readBool(r); err != nil {
			return nil, err
		}
		if k.Bound, err = readBool(r); err != nil {
			return nil, err
		}
		if k.Key, err = readBytes(r); err != nil {
			return nil, err
		}
		if k.KeyID, err = readInt64(r); err != nil {
			return nil, err
		}
	}

	n, err = readInt32(r)
	if err != nil {
		return nil, err
	}
	dc.Salts = make([]SaltRecord, n)
	for i := range dc.Salts {
		s := &dc.Salts[i]
		if s.ValidSince, err = readInt32(r); err != nil {
			return nil, err
		}
		if s.ValidUntil, err = readInt32(r); err != nil {
			return nil, err
		}
		if s.Salt, err = readInt64(r); err != nil {
			return nil, err
		}
	}

	n, err = readInt32(r)
	if err != nil {
		return nil, err
	}
	dc.SessionIDsByClass = make(map[int32]int64, n)
	for i := int32(0); i < n; i++ {
		class, err := readInt32(r)
		if err != nil {
			return nil, err
		}
		sessionID, err := readInt64(r)
		if err != nil {
			return nil, err
		}
		dc.SessionIDsByClass[class] = sessionID
	}

	if dc.AuthorizedForUser, err = readBool(r); err != nil {
		return nil, err
	}

	return dc, nil
}

func writeInt32(w io.Writer, v int32) error {
	return binary.Write(w, binary.BigEndian, v)
}

func writeInt64(w io.Writer, v int64) error {
	return binary.Write(w, binary.BigEndian, v)
}

func writeFloat64(w io.Writer, v float64) error {
	return binary.Write(w, binary.BigEndian, math.Float64bits(v))
}

func writeBool(w io.Writer, v bool) error {
	var b byte
	if v {
		b = 1
	}
	_, err := w.Write([]byte{b})
	return err
}

func writeBytes(w io.Writer, v []byte) error {
	if err := writeInt32(w, int32(len(v))); err != nil {
		return err
	}
	_, err := w.Write(v)
	return err
}

func writeString(w io.Writer, v string) error {
	return writeBytes(w, []byte(v))
}

func readInt32(r io.Reader) (int32, error) {
	var v int32
	err := binary.Read(r, binary.BigEndian, &v)
	return v, wrapShort(err)
}

func readInt64(r io.Reader) (int64, error) {
	var v int64
	err := binary.Read(r, binary.BigEndian, &v)
	return v, wrapShort(err)
}

func readFloat64(r io.Reader) (float64, error) {
	var bits uint64
	err := binary.Read(r, binary.BigEndian, &bits)
	return math.Float64frombits(bits), wrapShort(err)
}

func readBool(r io.Reader) (bool, error) {
	var b [1]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return false, wrapShort(err)
	}
	return b[0] != 0, nil
}

func readBytes(r io.Reader) ([]byte, error) {
	n, err := readInt32(r)
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, nil
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, wrapShort(err)
	}
	return buf, nil
}

func readString(r io.Reader) (string, error) {
	b, err := readBytes(r)
	return string(b), err
}

func wrapShort(err error) error {
	if err == nil {
		return nil
	}
	return errors.Wrap(err, "mtstate: truncated record")
}
