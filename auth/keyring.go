// Package auth provides a high-level API for persisting and retrieving proxy credentials from the system keyring.
package auth

import (
	"github.com/zalando/go-keyring"
)

const (
	service = "tubeflow-cli"
	user    = "proxy-credentials"
)

// SetProxyCredentials persists the "user:password" pair for the configured proxy to the system keyring.
func SetProxyCredentials(credentials string) error {
	return keyring.Set(service, user, credentials)
}

// GetProxyCredentials retrieves the stored "user:password" pair from the system keyring.
func GetProxyCredentials() (string, error) {
	return keyring.Get(service, user)
}

// DeleteProxyCredentials removes the stored proxy credentials from the system keyring.
func DeleteProxyCredentials() error {
	return keyring.Delete(service, user)
}
