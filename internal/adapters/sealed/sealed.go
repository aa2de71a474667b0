// Package sealed encrypts credential records at rest with an age X25519
// identity. The identity file holds one AGE-SECRET-KEY line; records are
// sealed to its public recipient.
package sealed

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"filippo.io/age"

	"github.com/bnema/multisession/internal/ports"
)

const identityFileMode = 0o600

type Sealer struct {
	identity  *age.X25519Identity
	recipient *age.X25519Recipient
}

var _ ports.Sealer = (*Sealer)(nil)

func New(identity *age.X25519Identity) *Sealer {
	return &Sealer{identity: identity, recipient: identity.Recipient()}
}

// LoadIdentityFile reads an age identity file written by GenerateIdentityFile
// or age-keygen.
func LoadIdentityFile(path string) (*Sealer, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read identity file: %w", err)
	}

	identities, err := age.ParseIdentities(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("parse identity file %q: %w", path, err)
	}

	for _, identity := range identities {
		if x25519, ok := identity.(*age.X25519Identity); ok {
			return New(x25519), nil
		}
	}

	return nil, fmt.Errorf("identity file %q holds no X25519 identity", path)
}

// GenerateIdentityFile creates a new identity at path and returns its public
// recipient. An existing file is never overwritten.
func GenerateIdentityFile(path string) (string, error) {
	identity, err := age.GenerateX25519Identity()
	if err != nil {
		return "", fmt.Errorf("generate age identity: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return "", fmt.Errorf("create identity directory: %w", err)
	}

	file, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, identityFileMode)
	if err != nil {
		if errors.Is(err, os.ErrExist) {
			return "", fmt.Errorf("identity file %q already exists", path)
		}
		return "", fmt.Errorf("create identity file: %w", err)
	}

	content := strings.Join([]string{
		"# public key: " + identity.Recipient().String(),
		identity.String(),
		"",
	}, "\n")
	if _, err := file.WriteString(content); err != nil {
		_ = file.Close()
		return "", fmt.Errorf("write identity file: %w", err)
	}
	if err := file.Close(); err != nil {
		return "", fmt.Errorf("close identity file: %w", err)
	}

	return identity.Recipient().String(), nil
}

func (s *Sealer) Recipient() string {
	return s.recipient.String()
}

func (s *Sealer) Seal(plaintext []byte) ([]byte, error) {
	var buf bytes.Buffer
	writer, err := age.Encrypt(&buf, s.recipient)
	if err != nil {
		return nil, fmt.Errorf("create age encryptor: %w", err)
	}
	if _, err := writer.Write(plaintext); err != nil {
		return nil, fmt.Errorf("write plaintext to age encryptor: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("finalize age encryption: %w", err)
	}

	return buf.Bytes(), nil
}

func (s *Sealer) Open(ciphertext []byte) ([]byte, error) {
	reader, err := age.Decrypt(bytes.NewReader(ciphertext), s.identity)
	if err != nil {
		return nil, fmt.Errorf("decrypt record: %w", err)
	}

	plaintext, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("read decrypted record: %w", err)
	}

	return plaintext, nil
}
