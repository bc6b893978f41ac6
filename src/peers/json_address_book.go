package peers

import (
	"bytes"
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
)

const jsonAddressBookPath = "peers.json"

// JSONAddressBook persists ConnectionInfos in a JSON file.
type JSONAddressBook struct {
	l    sync.Mutex
	path string
}

// NewJSONAddressBook creates a JSONAddressBook for the peers.json file of a
// base directory.
func NewJSONAddressBook(base string) *JSONAddressBook {
	return &JSONAddressBook{
		path: filepath.Join(base, jsonAddressBookPath),
	}
}

// Path returns the path of the underlying file.
func (j *JSONAddressBook) Path() string {
	return j.path
}

// Read parses the underlying file. A missing or empty file yields nothing.
func (j *JSONAddressBook) Read() ([]*ConnectionInfo, error) {
	j.l.Lock()
	defer j.l.Unlock()

	buf, err := os.ReadFile(j.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}

	if len(bytes.TrimSpace(buf)) == 0 {
		return nil, nil
	}

	var infos []*ConnectionInfo
	dec := json.NewDecoder(bytes.NewReader(buf))
	if err := dec.Decode(&infos); err != nil {
		return nil, err
	}

	return infos, nil
}

// Write persists infos, replacing the content of the file.
func (j *JSONAddressBook) Write(infos []*ConnectionInfo) error {
	j.l.Lock()
	defer j.l.Unlock()

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetIndent("", "  ")
	if err := enc.Encode(infos); err != nil {
		return err
	}

	return os.WriteFile(j.path, buf.Bytes(), 0644)
}
