// Package registration implements the one-shot device onboarding flow:
// new-device registration and existing-device login, both of which persist
// the device identity and notify the broker.
package registration

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/KalaHanok/webclassification/internal/broker"
	"github.com/KalaHanok/webclassification/internal/identity"
	"github.com/KalaHanok/webclassification/internal/infrastructure/logging"
	"github.com/KalaHanok/webclassification/internal/infrastructure/monitoring"
)

const (
	registerEndpoint = "/api/register/"
	deviceIDEndpoint = "/api/get-device-id/"
)

// ErrPasswordMismatch is returned before any network call when the
// password confirmation does not match.
var ErrPasswordMismatch = errors.New("passwords do not match")

// ErrNoDeviceID is returned when a login response carries no device ID.
var ErrNoDeviceID = errors.New("no device ID received")

// Notifier receives the updateRegistration message after a successful
// registration or login. The broker satisfies this.
type Notifier interface {
	Dispatch(ctx context.Context, req broker.Request) broker.Response
}

// Flow performs registration and login against the remote account service.
type Flow struct {
	client   *resty.Client
	store    *identity.Store
	notifier Notifier
	log      *logging.Logger
	metrics  *monitoring.Metrics
}

// NewFlow creates a registration flow. The client should come from
// transport.NewAccount.
func NewFlow(client *resty.Client, store *identity.Store, notifier Notifier, log *logging.Logger, metrics *monitoring.Metrics) *Flow {
	if log == nil {
		log = logging.NewNop()
	}
	return &Flow{client: client, store: store, notifier: notifier, log: log, metrics: metrics}
}

// Identity returns the currently persisted device identity.
func (f *Flow) Identity(ctx context.Context) (identity.Identity, error) {
	return f.store.Load(ctx)
}

// errorBody is the remote service's error envelope.
type errorBody struct {
	Detail string `json:"detail"`
}

// message picks the server's detail when present, else the generic
// per-variant fallback.
func (e *errorBody) message(fallback string) string {
	if e != nil && e.Detail != "" {
		return e.Detail
	}
	return fallback
}

// registerPayload is the wire body for new-device registration.
type registerPayload struct {
	Username string `json:"username"`
	Password string `json:"password"`
	DeviceID string `json:"device_id"`
}

// loginPayload is the wire body for existing-device login.
type loginPayload struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// loginResult is the device-resolution response.
type loginResult struct {
	DeviceID string `json:"device_id"`
}

// Register performs new-device registration: a fresh device ID is
// generated locally, the account is created remotely, and on success the
// identity is persisted and the broker notified. A confirmation mismatch
// fails locally without touching the network.
func (f *Flow) Register(ctx context.Context, username, password, confirm string) error {
	if password != confirm {
		f.count("register", "mismatch")
		return ErrPasswordMismatch
	}

	deviceID := uuid.NewString()

	var errBody errorBody
	resp, err := f.client.R().
		SetContext(ctx).
		SetBody(registerPayload{Username: username, Password: password, DeviceID: deviceID}).
		SetError(&errBody).
		Post(registerEndpoint)
	if err != nil {
		f.count("register", "error")
		return fmt.Errorf("registration failed: %w", err)
	}
	if resp.IsError() {
		f.count("register", "rejected")
		return errors.New(errBody.message("registration failed"))
	}

	if err := f.complete(ctx, username, deviceID); err != nil {
		f.count("register", "error")
		return err
	}

	f.count("register", "success")
	f.log.Info("device registered", zap.String("username", username))
	return nil
}

// Login resolves the device ID for an existing account. A 2xx response
// without a device ID is itself an error and persists nothing.
func (f *Flow) Login(ctx context.Context, username, password string) error {
	var result loginResult
	var errBody errorBody
	resp, err := f.client.R().
		SetContext(ctx).
		SetBody(loginPayload{Username: username, Password: password}).
		SetResult(&result).
		SetError(&errBody).
		Post(deviceIDEndpoint)
	if err != nil {
		f.count("login", "error")
		return fmt.Errorf("login failed: %w", err)
	}
	if resp.IsError() {
		f.count("login", "rejected")
		return errors.New(errBody.message("login failed"))
	}
	if result.DeviceID == "" {
		f.count("login", "error")
		return ErrNoDeviceID
	}

	if err := f.complete(ctx, username, result.DeviceID); err != nil {
		f.count("login", "error")
		return err
	}

	f.count("login", "success")
	f.log.Info("device logged in", zap.String("username", username))
	return nil
}

// complete persists the identity as a single record and notifies the
// broker. The store write happens first: the broker's mirror is refreshed
// from it at every startup.
func (f *Flow) complete(ctx context.Context, username, deviceID string) error {
	id := identity.Identity{Registered: true, DeviceID: deviceID, Username: username}
	if err := f.store.Save(ctx, id); err != nil {
		return fmt.Errorf("failed to persist identity: %w", err)
	}

	resp := f.notifier.Dispatch(ctx, broker.Request{
		Type:       broker.KindUpdateRegistration,
		Registered: true,
		DeviceID:   deviceID,
	})
	if resp.Error != "" {
		return fmt.Errorf("failed to notify broker: %s", resp.Error)
	}
	return nil
}

func (f *Flow) count(variant, result string) {
	if f.metrics != nil {
		f.metrics.RegistrationAttempts.WithLabelValues(variant, result).Inc()
	}
}
