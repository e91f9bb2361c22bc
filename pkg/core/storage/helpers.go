package storage

import (
	"errors"
	"fmt"
)

// Version returns the schema version stored in the given Store, it's empty
// for a fresh store.
func Version(s Store) (string, error) {
	version, err := s.Get(SYSVersion.Bytes())
	if errors.Is(err, ErrKeyNotFound) {
		return "", nil
	}
	return string(version), err
}

// PutVersion stores the given schema version.
func PutVersion(s Store, v string) error {
	return s.PutChangeSet(map[string][]byte{string(SYSVersion.Bytes()): []byte(v)})
}

// CheckVersion stores v in a fresh store and fails if a non-empty store
// has a different version.
func CheckVersion(s Store, v string) error {
	stored, err := Version(s)
	if err != nil {
		return err
	}
	switch stored {
	case "":
		return PutVersion(s, v)
	case v:
		return nil
	default:
		return fmt.Errorf("incompatible storage version: %q, expected %q", stored, v)
	}
}
