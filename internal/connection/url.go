// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package connection

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"
)

// ErrInvalidURLScheme is returned when a backend URL is not http or https.
var ErrInvalidURLScheme = errors.New("only http and https schemes are allowed")

// ErrMissingHost is returned when a backend URL has no host.
var ErrMissingHost = errors.New("backend url has no host")

// ValidateBaseURL checks that raw is an absolute http(s) URL with a host.
// Schemes like file:// or javascript:// are always rejected.
func ValidateBaseURL(raw string) error {
	parsed, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("parse backend url: %w", err)
	}

	scheme := strings.ToLower(parsed.Scheme)
	if scheme != "http" && scheme != "https" {
		return ErrInvalidURLScheme
	}
	if parsed.Hostname() == "" {
		return ErrMissingHost
	}
	return nil
}

// IsLocalhost checks if a host string refers to the loopback interface.
// Accepts "localhost", any 127.0.0.0/8 address and IPv6 loopback forms,
// with or without a port.
func IsLocalhost(host string) bool {
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	host = strings.ToLower(strings.Trim(host, "[]"))

	if host == "localhost" {
		return true
	}
	if ip := net.ParseIP(host); ip != nil {
		return ip.IsLoopback()
	}
	return false
}
