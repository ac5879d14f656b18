// internal/common/secret/store.go
package secret

import (
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"unicode/utf8"

	"github.com/fernet/fernet-go"
	"golang.org/x/crypto/pbkdf2"

	apperrors "astro-backend-llm/internal/common/errors"
)

const (
	Iterations = 100000
	KeyLength  = 32

	redacted = "[REDACTED]"
)

var (
	ErrEmptyCiphertext    = errors.New("ciphertext is empty")
	ErrInvalidToken       = errors.New("token failed verification")
	ErrNonUTF8Plaintext   = errors.New("plaintext is not valid UTF-8")
	ErrMissingPlaceholder = errors.New("template does not contain the prompt placeholder")
)

// DeriveKey stretches input with PBKDF2-HMAC-SHA256 and returns the 32-byte key as url-safe
// base64, the encoding Fernet expects.
//
// Existing sealed templates were produced with the application label as the KDF input and the
// passphrase as the salt, so the argument order is kept.
func DeriveKey(input, salt []byte) string {
	raw := pbkdf2.Key(input, salt, Iterations, KeyLength, sha256.New)
	return base64.URLEncoding.EncodeToString(raw)
}

// Store decrypts sealed instruction templates. It holds only derived key material.
type Store struct {
	key *fernet.Key
}

func NewStore(passphrase, label string) (*Store, error) {
	if passphrase == "" {
		return nil, apperrors.NewConfigurationError("secret.passphrase is required")
	}
	if label == "" {
		return nil, apperrors.NewConfigurationError("secret.kdf_label is required")
	}

	k, err := fernet.DecodeKey(DeriveKey([]byte(label), []byte(passphrase)))
	if err != nil {
		return nil, apperrors.NewConfigurationError(fmt.Sprintf("derive key: %v", err))
	}
	return &Store{key: k}, nil
}

// Key returns the encoded Fernet key.
func (s *Store) Key() string {
	return s.key.Encode()
}

func (s *Store) Encrypt(plaintext []byte) ([]byte, error) {
	if !utf8.Valid(plaintext) {
		return nil, ErrNonUTF8Plaintext
	}
	return fernet.EncryptAndSign(plaintext, s.key)
}

// DecryptBytes verifies and decrypts a Fernet token. Surrounding whitespace is ignored.
func (s *Store) DecryptBytes(token []byte) (string, error) {
	token = []byte(strings.TrimSpace(string(token)))
	if len(token) == 0 {
		return "", apperrors.NewDecryptionError(ErrEmptyCiphertext)
	}

	// ttl 0 disables the age check; sealed templates are long-lived.
	msg := fernet.VerifyAndDecrypt(token, 0, []*fernet.Key{s.key})
	if msg == nil {
		return "", apperrors.NewDecryptionError(ErrInvalidToken)
	}
	if !utf8.Valid(msg) {
		return "", apperrors.NewDecryptionError(ErrNonUTF8Plaintext)
	}
	return string(msg), nil
}

// Decrypt reads the sealed file at path once and returns its plaintext.
func (s *Store) Decrypt(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) || errors.Is(err, fs.ErrPermission) {
			return "", apperrors.NewFileNotFoundError(path, err)
		}
		return "", apperrors.NewFileNotFoundError(path, fmt.Errorf("read template: %w", err))
	}
	return s.DecryptBytes(data)
}

// LoadTemplate decrypts path and wraps the result in a Template bound to placeholder.
func (s *Store) LoadTemplate(path, placeholder string) (*Template, error) {
	text, err := s.Decrypt(path)
	if err != nil {
		return nil, err
	}
	return NewTemplate(text, placeholder)
}

// Template is the decrypted instruction text. It never prints its contents.
type Template struct {
	text        string
	placeholder string
}

func NewTemplate(text, placeholder string) (*Template, error) {
	if placeholder == "" {
		return nil, apperrors.NewConfigurationError("secret.placeholder is required")
	}
	if !strings.Contains(text, placeholder) {
		return nil, apperrors.NewConfigurationError(
			fmt.Sprintf("%v: %q", ErrMissingPlaceholder, placeholder))
	}
	return &Template{text: text, placeholder: placeholder}, nil
}

// Render substitutes prompt for every occurrence of the placeholder.
func (t *Template) Render(prompt string) string {
	return strings.ReplaceAll(t.text, t.placeholder, prompt)
}

func (t *Template) Len() int {
	return utf8.RuneCountInString(t.text)
}

func (t *Template) String() string { return redacted }

func (t *Template) GoString() string { return redacted }

func (t *Template) MarshalJSON() ([]byte, error) {
	return []byte(`"` + redacted + `"`), nil
}
