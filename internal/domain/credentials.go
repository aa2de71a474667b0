package domain

import "maps"

// CredentialBundle is the durable authentication state of one account: the
// primary creds blob plus the incremental key records the protocol rotates.
type CredentialBundle struct {
	Creds []byte
	Keys  map[string][]byte
}

func (b CredentialBundle) Paired() bool {
	return len(b.Creds) > 0
}

// Apply returns a copy of b with delta merged in. A nil key value deletes
// that record.
func (b CredentialBundle) Apply(delta CredentialDelta) CredentialBundle {
	next := CredentialBundle{Creds: b.Creds, Keys: maps.Clone(b.Keys)}
	if delta.Creds != nil {
		next.Creds = delta.Creds
	}
	if len(delta.Keys) > 0 && next.Keys == nil {
		next.Keys = make(map[string][]byte, len(delta.Keys))
	}
	for name, value := range delta.Keys {
		if value == nil {
			delete(next.Keys, name)
			continue
		}
		next.Keys[name] = value
	}

	return next
}

type CredentialDelta struct {
	Creds []byte
	Keys  map[string][]byte
}

func (d CredentialDelta) Empty() bool {
	return d.Creds == nil && len(d.Keys) == 0
}
