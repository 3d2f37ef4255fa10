package instagram

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/CarlosSalesNaturalTec/monitora-marcas-backend/internal/model"
	"github.com/CarlosSalesNaturalTec/monitora-marcas-backend/internal/secrets"
	"github.com/CarlosSalesNaturalTec/monitora-marcas-backend/internal/storage"
)

// ErrInvalidAccount is returned for a missing username or an empty session file.
var ErrInvalidAccount = errors.New("invalid service account")

// AccountStore is the persistence of service accounts.
type AccountStore interface {
	CreateServiceAccount(ctx context.Context, a *model.ServiceAccount) error
	GetServiceAccount(ctx context.Context, id string) (*model.ServiceAccount, error)
	ListServiceAccounts(ctx context.Context) ([]model.ServiceAccount, error)
	UpdateServiceAccountSession(ctx context.Context, id, secretPath, status string) error
	DeleteServiceAccount(ctx context.Context, id string) error
}

// SecretStore keeps versioned session files.
type SecretStore interface {
	Add(ctx context.Context, name string, data []byte) (string, error)
	Delete(ctx context.Context, name string) error
}

// Accounts manages the scraper's Instagram logins. Session files live in the
// secret store and the account record points at the latest version.
type Accounts struct {
	store   AccountStore
	secrets SecretStore
	log     *slog.Logger
}

// NewAccounts creates an Accounts manager.
func NewAccounts(store AccountStore, secrets SecretStore, log *slog.Logger) *Accounts {
	return &Accounts{store: store, secrets: secrets, log: log}
}

// List returns every service account.
func (a *Accounts) List(ctx context.Context) ([]model.ServiceAccount, error) {
	accounts, err := a.store.ListServiceAccounts(ctx)
	if err != nil {
		return nil, fmt.Errorf("list service accounts: %w", err)
	}
	if accounts == nil {
		accounts = []model.ServiceAccount{}
	}
	return accounts, nil
}

// Create stores the session file and registers an active account for
// username. It returns storage.ErrConflict when the username is taken.
func (a *Accounts) Create(ctx context.Context, username string, session []byte) (*model.ServiceAccount, error) {
	username = strings.TrimPrefix(strings.TrimSpace(username), "@")
	if username == "" {
		return nil, fmt.Errorf("%w: username is required", ErrInvalidAccount)
	}
	if len(session) == 0 {
		return nil, fmt.Errorf("%w: session file is empty", ErrInvalidAccount)
	}

	existing, err := a.store.ListServiceAccounts(ctx)
	if err != nil {
		return nil, fmt.Errorf("list service accounts: %w", err)
	}
	for _, e := range existing {
		if strings.EqualFold(e.Username, username) {
			return nil, fmt.Errorf("service account %s: %w", username, storage.ErrConflict)
		}
	}

	key, err := a.secrets.Add(ctx, secrets.SessionName(username), session)
	if err != nil {
		return nil, fmt.Errorf("store session: %w", err)
	}
	acc := &model.ServiceAccount{
		Username:   username,
		Status:     model.AccountActive,
		SecretPath: key,
	}
	if err := a.store.CreateServiceAccount(ctx, acc); err != nil {
		return nil, fmt.Errorf("create service account %s: %w", username, err)
	}
	a.log.Info("service account created", "id", acc.ID, "username", username)
	return acc, nil
}

// UploadSession stores a new session version for an account and reactivates it.
func (a *Accounts) UploadSession(ctx context.Context, id string, session []byte) (*model.ServiceAccount, error) {
	if len(session) == 0 {
		return nil, fmt.Errorf("%w: session file is empty", ErrInvalidAccount)
	}
	acc, err := a.store.GetServiceAccount(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get service account %s: %w", id, err)
	}
	key, err := a.secrets.Add(ctx, secrets.SessionName(acc.Username), session)
	if err != nil {
		return nil, fmt.Errorf("store session: %w", err)
	}
	if err := a.store.UpdateServiceAccountSession(ctx, id, key, model.AccountActive); err != nil {
		return nil, fmt.Errorf("update service account %s: %w", id, err)
	}
	acc.SecretPath = key
	acc.Status = model.AccountActive
	a.log.Info("service account session updated", "id", id, "username", acc.Username, "secret", key)
	return acc, nil
}

// Delete removes an account and every stored version of its session.
func (a *Accounts) Delete(ctx context.Context, id string) error {
	acc, err := a.store.GetServiceAccount(ctx, id)
	if err != nil {
		return fmt.Errorf("get service account %s: %w", id, err)
	}
	if err := a.store.DeleteServiceAccount(ctx, id); err != nil {
		return fmt.Errorf("delete service account %s: %w", id, err)
	}
	if err := a.secrets.Delete(ctx, secrets.SessionName(acc.Username)); err != nil {
		a.log.Warn("delete session secrets", "username", acc.Username, "error", err)
	}
	a.log.Info("service account deleted", "id", id, "username", acc.Username)
	return nil
}
