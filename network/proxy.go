package network

import (
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/spf13/viper"
	"github.com/tubeflow-cli/tubeflow/auth"
	"github.com/tubeflow-cli/tubeflow/key"
	"github.com/tubeflow-cli/tubeflow/log"
	"golang.org/x/net/proxy"
)

// ConfiguredClient builds the HTTP client the playback stack should use, honoring
// the proxy and TLS fingerprint settings. Falls back to the shared client when
// nothing special is configured.
func ConfiguredClient() *http.Client {
	if viper.GetBool(key.ProxyEnable) {
		client, err := proxiedClient()
		if err != nil {
			log.Warnf("proxy configuration rejected, using direct connection: %v", err)
		} else {
			return client
		}
	}

	if viper.GetBool(key.NetworkChromeTLS) {
		return FingerprintClient()
	}

	return Client
}

// proxiedClient builds a client routed through the configured SOCKS5 proxy.
func proxiedClient() (*http.Client, error) {
	rawURL := viper.GetString(key.ProxyURL)
	if rawURL == "" {
		return nil, fmt.Errorf("proxy enabled but %s is empty", key.ProxyURL)
	}

	parsed, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parse proxy url: %w", err)
	}
	if parsed.Scheme != "socks5" && parsed.Scheme != "socks5h" {
		return nil, fmt.Errorf("unsupported proxy scheme %q", parsed.Scheme)
	}

	proxyAuth, err := proxyCredentials(parsed)
	if err != nil {
		return nil, err
	}

	dialer, err := proxy.SOCKS5("tcp", parsed.Host, proxyAuth, proxy.Direct)
	if err != nil {
		return nil, fmt.Errorf("create socks5 dialer: %w", err)
	}

	transport := newTransport()
	transport.DialContext = nil
	if contextDialer, ok := dialer.(proxy.ContextDialer); ok {
		transport.DialContext = contextDialer.DialContext
	} else {
		transport.Dial = dialer.Dial
	}

	return &http.Client{
		Timeout:   Client.Timeout,
		Transport: transport,
	}, nil
}

// proxyCredentials resolves proxy authentication from the URL itself or, when
// configured, the system keyring.
func proxyCredentials(proxyURL *url.URL) (*proxy.Auth, error) {
	if user := proxyURL.User; user != nil {
		password, _ := user.Password()
		return &proxy.Auth{User: user.Username(), Password: password}, nil
	}

	if !viper.GetBool(key.ProxyUseKeyring) {
		return nil, nil
	}

	stored, err := auth.GetProxyCredentials()
	if err != nil {
		return nil, fmt.Errorf("read proxy credentials from keyring: %w", err)
	}

	username, password, found := strings.Cut(stored, ":")
	if !found {
		return nil, fmt.Errorf("keyring proxy credentials are not in user:password form")
	}
	return &proxy.Auth{User: username, Password: password}, nil
}
