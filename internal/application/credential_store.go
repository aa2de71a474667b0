package application

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/bnema/multisession/internal/codec"
	"github.com/bnema/multisession/internal/domain"
	"github.com/bnema/multisession/internal/logging"
	"github.com/bnema/multisession/internal/ports"
)

const (
	namespacePrefix = "device"
	credsRecord     = "creds"
	keysDir         = "keys"
)

// CredentialStore persists one CredentialBundle per account on a BlobStore.
// Writes for the same account are serialized.
type CredentialStore struct {
	blobs  ports.BlobStore
	sealer ports.Sealer
	logger *zap.Logger

	locksMu sync.Mutex
	locks   map[domain.AccountID]*sync.Mutex
}

var _ ports.CredentialStore = (*CredentialStore)(nil)

// NewCredentialStore wraps blobs. sealer may be nil, in which case records
// are stored unsealed.
func NewCredentialStore(blobs ports.BlobStore, sealer ports.Sealer, logger *zap.Logger) *CredentialStore {
	if logger == nil {
		logger = zap.NewNop()
	}

	return &CredentialStore{
		blobs:  blobs,
		sealer: sealer,
		logger: logger,
		locks:  map[domain.AccountID]*sync.Mutex{},
	}
}

// Namespace is the storage prefix owning every record of id.
func Namespace(id domain.AccountID) string {
	return namespacePrefix + string(id) + "/"
}

// Load returns the persisted bundle for id. A missing namespace is created
// and an empty bundle returned.
func (s *CredentialStore) Load(ctx context.Context, id domain.AccountID) (domain.CredentialBundle, error) {
	unlock := s.lock(id)
	defer unlock()

	ns := Namespace(id)
	if err := s.blobs.Prepare(ctx, ns); err != nil {
		return domain.CredentialBundle{}, storageErr("prepare namespace", err)
	}

	var bundle domain.CredentialBundle
	creds, err := s.readRecord(ctx, ns+credsRecord)
	switch {
	case err == nil:
		bundle.Creds = creds
	case errors.Is(err, domain.ErrRecordNotFound):
	default:
		return domain.CredentialBundle{}, storageErr("load creds", err)
	}

	keys, err := s.blobs.List(ctx, ns+keysDir+"/")
	if err != nil {
		return domain.CredentialBundle{}, storageErr("list key records", err)
	}
	for _, key := range keys {
		value, err := s.readRecord(ctx, key)
		if err != nil {
			if errors.Is(err, domain.ErrRecordNotFound) {
				continue
			}
			return domain.CredentialBundle{}, storageErr("load key record", err)
		}
		name, err := keyName(strings.TrimPrefix(key, ns+keysDir+"/"))
		if err != nil {
			return domain.CredentialBundle{}, storageErr("load key record", err)
		}
		if bundle.Keys == nil {
			bundle.Keys = make(map[string][]byte, len(keys))
		}
		bundle.Keys[name] = value
	}

	return bundle, nil
}

// Apply durably persists a credential rotation. It returns only after every
// record of delta is written.
func (s *CredentialStore) Apply(ctx context.Context, id domain.AccountID, delta domain.CredentialDelta) error {
	if delta.Empty() {
		return nil
	}

	unlock := s.lock(id)
	defer unlock()

	ns := Namespace(id)
	for name, value := range delta.Keys {
		if name == "" {
			return storageErr("write key record", errors.New("empty key name"))
		}
		key := ns + keysDir + "/" + recordName(name)
		if value == nil {
			if err := s.blobs.Delete(ctx, key); err != nil {
				return storageErr("delete key record", err)
			}
			continue
		}
		if err := s.writeRecord(ctx, key, value); err != nil {
			return storageErr("write key record", err)
		}
	}

	// creds last: a crash mid-delta leaves the previous creds pointing at
	// keys that are a superset of what they need.
	if delta.Creds != nil {
		if err := s.writeRecord(ctx, ns+credsRecord, delta.Creds); err != nil {
			return storageErr("write creds", err)
		}
	}

	s.logger.Debug("credentials updated",
		logging.Account(id),
		zap.Bool("creds", delta.Creds != nil),
		zap.Int("keys", len(delta.Keys)),
	)

	return nil
}

func (s *CredentialStore) Delete(ctx context.Context, id domain.AccountID) error {
	unlock := s.lock(id)
	defer unlock()

	if err := s.blobs.DeletePrefix(ctx, Namespace(id)); err != nil {
		return storageErr("delete namespace", err)
	}

	s.logger.Info("credentials deleted", logging.Account(id))
	return nil
}

// Paired reports whether a creds record exists for id.
func (s *CredentialStore) Paired(ctx context.Context, id domain.AccountID) (bool, error) {
	unlock := s.lock(id)
	defer unlock()

	creds, err := s.readRecord(ctx, Namespace(id)+credsRecord)
	if err != nil {
		if errors.Is(err, domain.ErrRecordNotFound) {
			return false, nil
		}
		return false, storageErr("load creds", err)
	}

	return len(creds) > 0, nil
}

func (s *CredentialStore) readRecord(ctx context.Context, key string) ([]byte, error) {
	data, err := s.blobs.Get(ctx, key)
	if err != nil {
		return nil, err
	}

	payload, sealed, err := codec.Decode(data)
	if err != nil {
		return nil, fmt.Errorf("record %q: %w", key, err)
	}
	if !sealed {
		return payload, nil
	}
	if s.sealer == nil {
		return nil, fmt.Errorf("record %q is sealed but no identity is configured", key)
	}

	plaintext, err := s.sealer.Open(payload)
	if err != nil {
		return nil, fmt.Errorf("open record %q: %w", key, err)
	}

	return plaintext, nil
}

func (s *CredentialStore) writeRecord(ctx context.Context, key string, value []byte) error {
	payload := value
	sealed := false
	if s.sealer != nil {
		ciphertext, err := s.sealer.Seal(value)
		if err != nil {
			return err
		}
		payload = ciphertext
		sealed = true
	}

	data, err := codec.Encode(payload, sealed)
	if err != nil {
		return err
	}

	return s.blobs.Put(ctx, key, data)
}

func (s *CredentialStore) lock(id domain.AccountID) func() {
	s.locksMu.Lock()
	mu, ok := s.locks[id]
	if !ok {
		mu = &sync.Mutex{}
		s.locks[id] = mu
	}
	s.locksMu.Unlock()

	mu.Lock()
	return mu.Unlock
}

// recordName maps a protocol key name onto a single path segment. Hex keeps
// it reversible and safe on case-insensitive filesystems.
func recordName(name string) string {
	return hex.EncodeToString([]byte(name))
}

func keyName(record string) (string, error) {
	name, err := hex.DecodeString(record)
	if err != nil {
		return "", fmt.Errorf("%w: key record name %q: %w", domain.ErrCorruptRecord, record, err)
	}
	return string(name), nil
}

func storageErr(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", domain.ErrStorage, op, err)
}
