package am

import (
	"bytes"
	"os"
	"path/filepath"
	"strconv"

	"github.com/BurntSushi/toml"

	"github.com/teranos/mtcore/errors"
)

// DatacenterOverride pins a single datacenter's address to something
// other than the production table, the way a test backend or a CDN
// redirect needs to (§4.C, "datacenter address table").
type DatacenterOverride struct {
	Address string `toml:"address"`
	Port    int    `toml:"port"`
}

// dcOverrideFile is the on-disk shape: one entry per datacenter id, kept
// in its own small file distinct from the main layered config so a
// deployment tool can rewrite it without touching api credentials.
type dcOverrideFile struct {
	Datacenters map[string]DatacenterOverride `toml:"datacenters"`
}

// GetDatacenterOverridePath returns ~/.mtcore/dc_overrides.toml.
func GetDatacenterOverridePath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".mtcore", "dc_overrides.toml")
}

// LoadDatacenterOverrides reads the override file, returning an empty map
// if it does not exist yet.
func LoadDatacenterOverrides() (map[int32]DatacenterOverride, error) {
	path := GetDatacenterOverridePath()
	if path == "" {
		return nil, errors.New("could not determine home directory")
	}

	out := make(map[int32]DatacenterOverride)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return out, nil
		}
		return nil, errors.Wrap(err, "failed to read datacenter override file")
	}

	var file dcOverrideFile
	if err := toml.Unmarshal(data, &file); err != nil {
		return nil, errors.Wrap(err, "failed to parse datacenter override file")
	}
	for idStr, override := range file.Datacenters {
		id, err := strconv.ParseInt(idStr, 10, 32)
		if err != nil {
			continue // a malformed key is skipped rather than failing the whole load
		}
		out[int32(id)] = override
	}
	return out, nil
}

// SetDatacenterOverride pins dcID to address/port, reading-modifying-
// writing the override file in place the way the teacher's per-plugin
// config helper does (read existing, mutate one entry, re-encode whole).
func SetDatacenterOverride(dcID int32, address string, port int) error {
	path := GetDatacenterOverridePath()
	if path == "" {
		return errors.New("could not determine home directory")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0750); err != nil {
		return errors.Wrap(err, "failed to create config directory")
	}

	var file dcOverrideFile
	if data, err := os.ReadFile(path); err == nil {
		if err := toml.Unmarshal(data, &file); err != nil {
			return errors.Wrap(err, "failed to parse existing datacenter override file")
		}
	}
	if file.Datacenters == nil {
		file.Datacenters = make(map[string]DatacenterOverride)
	}
	file.Datacenters[strconv.FormatInt(int64(dcID), 10)] = DatacenterOverride{Address: address, Port: port}

	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(file); err != nil {
		return errors.Wrap(err, "failed to encode datacenter override file")
	}
	if err := os.WriteFile(path, buf.Bytes(), DefaultFilePermissions); err != nil {
		return errors.Wrap(err, "failed to write datacenter override file")
	}
	return nil
}
