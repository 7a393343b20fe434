// Package transport builds the HTTP clients used to reach the remote
// classification and account services.
package transport

import (
	"time"

	"github.com/go-resty/resty/v2"
)

const userAgent = "webclassification-agent/1.0"

// NewClassifier returns the client for verdict calls. It carries no
// request timeout: a hung classifier stalls that page's verdict rather
// than failing open via timeout.
func NewClassifier(baseURL string) *resty.Client {
	return resty.New().
		SetBaseURL(baseURL).
		SetHeader("User-Agent", userAgent).
		SetHeader("Content-Type", "application/json")
}

// NewAccount returns the client for registration and login calls.
func NewAccount(baseURL string) *resty.Client {
	return resty.New().
		SetBaseURL(baseURL).
		SetTimeout(15 * time.Second).
		SetHeader("User-Agent", userAgent).
		SetHeader("Content-Type", "application/json")
}
