package credstore

import (
	"crypto/rand"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	"github.com/pkg/errors"
	"golang.org/x/crypto/nacl/secretbox"
	"golang.org/x/crypto/scrypt"
)

const (
	saltLength  = 16
	nonceLength = 24
	keyLength   = 32

	scryptN = 1 << 15
	scryptR = 8
	scryptP = 1
)

var (
	ErrEmptyPassphrase = errors.New("empty passphrase")
	ErrCorruptStore    = errors.New("credential file corrupt or wrong passphrase")
)

var _ Store = (*File)(nil)

// File persists credentials in a single file, encrypted at rest with a
// passphrase-derived key. Credentials are bearer secrets; they never
// touch disk in the clear.
type File struct {
	path       string
	passphrase []byte
	mu         sync.Mutex
}

// fileEnvelope is the on-disk layout. The salt is regenerated on every
// write, so the derived key never repeats a nonce pairing.
type fileEnvelope struct {
	Salt  []byte `json:"salt"`
	Nonce []byte `json:"nonce"`
	Box   []byte `json:"box"`
}

// NewFile creates a file-backed store at path. The parent directory is
// created on first write.
func NewFile(path, passphrase string) (*File, error) {
	if passphrase == "" {
		return nil, errors.Wrap(ErrEmptyPassphrase, "[credstore.NewFile]")
	}
	return &File{path: path, passphrase: []byte(passphrase)}, nil
}

func (f *File) Get(kind Kind) (string, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	values, err := f.load()
	if err != nil {
		return "", false, err
	}
	value, ok := values[kind]
	return value, ok, nil
}

func (f *File) Set(kind Kind, value string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	values, err := f.load()
	if err != nil {
		return err
	}
	values[kind] = value
	return f.save(values)
}

func (f *File) SetPair(access, refresh string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	values, err := f.load()
	if err != nil {
		return err
	}
	values[AccessToken] = access
	values[RefreshToken] = refresh
	return f.save(values)
}

func (f *File) Clear() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := os.Remove(f.path); err != nil && !os.IsNotExist(err) {
		return errors.Wrap(err, "[File.Clear] remove")
	}
	return nil
}

func (f *File) load() (map[Kind]string, error) {
	raw, err := os.ReadFile(f.path)
	if os.IsNotExist(err) {
		return make(map[Kind]string), nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "[File.load] read")
	}

	var env fileEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, errors.Wrap(ErrCorruptStore, "[File.load] envelope")
	}
	if len(env.Salt) != saltLength || len(env.Nonce) != nonceLength {
		return nil, errors.Wrap(ErrCorruptStore, "[File.load] envelope lengths")
	}

	key, err := f.deriveKey(env.Salt)
	if err != nil {
		return nil, err
	}
	var nonce [nonceLength]byte
	copy(nonce[:], env.Nonce)

	plain, ok := secretbox.Open(nil, env.Box, &nonce, key)
	if !ok {
		return nil, errors.Wrap(ErrCorruptStore, "[File.load] open box")
	}

	values := make(map[Kind]string)
	if err := json.Unmarshal(plain, &values); err != nil {
		return nil, errors.Wrap(ErrCorruptStore, "[File.load] payload")
	}
	return values, nil
}

func (f *File) save(values map[Kind]string) error {
	plain, err := json.Marshal(values)
	if err != nil {
		return errors.Wrap(err, "[File.save] marshal")
	}

	salt := make([]byte, saltLength)
	if _, err := rand.Read(salt); err != nil {
		return errors.Wrap(err, "[File.save] salt")
	}
	var nonce [nonceLength]byte
	if _, err := rand.Read(nonce[:]); err != nil {
		return errors.Wrap(err, "[File.save] nonce")
	}

	key, err := f.deriveKey(salt)
	if err != nil {
		return err
	}
	env := fileEnvelope{
		Salt:  salt,
		Nonce: nonce[:],
		Box:   secretbox.Seal(nil, plain, &nonce, key),
	}
	encoded, err := json.Marshal(env)
	if err != nil {
		return errors.Wrap(err, "[File.save] marshal envelope")
	}

	if err := os.MkdirAll(filepath.Dir(f.path), 0o700); err != nil {
		return errors.Wrap(err, "[File.save] mkdir")
	}
	if err := os.WriteFile(f.path, encoded, 0o600); err != nil {
		return errors.Wrap(err, "[File.save] write")
	}
	return nil
}

func (f *File) deriveKey(salt []byte) (*[keyLength]byte, error) {
	derived, err := scrypt.Key(f.passphrase, salt, scryptN, scryptR, scryptP, keyLength)
	if err != nil {
		return nil, errors.Wrap(err, "[File.deriveKey] scrypt")
	}
	var key [keyLength]byte
	copy(key[:], derived)
	return &key, nil
}
