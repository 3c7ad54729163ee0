package fileutils

import (
	"github.com/mrnavastar/mclaunch/util/errs"
	"github.com/zalando/go-keyring"
)

// SecretStore keeps values that must not land in the JSON stores.
type SecretStore interface {
	Get(key string) (string, error)
	Set(key, value string) error
	Delete(key string) error
}

type KeyringSecrets struct {
	service string
}

func NewKeyringSecrets(service string) *KeyringSecrets {
	if service == "" {
		service = keyringService
	}
	return &KeyringSecrets{service: service}
}

func (k *KeyringSecrets) Get(key string) (string, error) {
	value, err := keyring.Get(k.service, key)
	if err == keyring.ErrNotFound {
		return "", errs.Newf(errs.KindNotFound, "", "secret %s not found", key)
	}
	return value, err
}

func (k *KeyringSecrets) Set(key, value string) error {
	return keyring.Set(k.service, key, value)
}

// Delete is a no-op for missing keys.
func (k *KeyringSecrets) Delete(key string) error {
	if err := keyring.Delete(k.service, key); err != nil && err != keyring.ErrNotFound {
		return err
	}
	return nil
}
