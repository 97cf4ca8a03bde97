// Package urls provides utility functions for working with URLs.
package urls

import (
	"bufio"
	"io"
	"net/url"
	"strings"
)

const (
	schemeHTTP  = "http"
	schemeHTTPS = "https"
)

// IsURLValid checks if the given URL is an absolute http(s) URL.
func IsURLValid(raw string) bool {
	u, err := url.Parse(raw)

	return err == nil && u.Host != "" && (u.Scheme == schemeHTTP || u.Scheme == schemeHTTPS)
}

// Normalize trims spaces, parses and returns the URL in string format.
func Normalize(raw string) string {
	raw = strings.TrimSpace(raw)

	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}

	return u.String()
}

// Extract returns every valid URL found in r, in input order.
// Tokens are split on whitespace so both one-per-line and space separated lists work.
// Duplicates are kept: the requester decides what to fetch.
func Extract(r io.Reader) ([]string, error) {
	scanner := bufio.NewScanner(r)
	scanner.Split(bufio.ScanWords)

	var found []string

	for scanner.Scan() {
		token := Normalize(scanner.Text())
		if IsURLValid(token) {
			found = append(found, token)
		}
	}

	if err := scanner.Err(); err != nil {
		return found, err
	}

	return found, nil
}

// ExtractString is Extract over a string.
func ExtractString(s string) []string {
	found, _ := Extract(strings.NewReader(s))

	return found
}
