// Package users manages user records and the shared user directory used for
// counterpart search.
package users

import (
	"context"
	"errors"
	"fmt"

	"github.com/mrezende/courier/internal/identity"
	"github.com/mrezende/courier/internal/remote"
	"go.uber.org/zap"
)

// DirectoryKey is the store key of the shared user list.
const DirectoryKey = "users"

// ErrNotFound is returned when no user record exists for an identity.
var ErrNotFound = errors.New("user not found")

// Entry is one row of the shared user directory.
type Entry struct {
	Name  string
	Email identity.Identity
}

// Directory reads and writes user records and the shared user list.
type Directory struct {
	store  remote.Store
	logger *zap.Logger
}

// NewDirectory creates a user directory over the store.
func NewDirectory(store remote.Store, logger *zap.Logger) *Directory {
	return &Directory{store: store, logger: logger}
}

// Exists reports whether a user record exists for id.
func (d *Directory) Exists(ctx context.Context, id identity.Identity) (bool, error) {
	_, err := d.store.Read(ctx, id.String())
	if errors.Is(err, remote.ErrAbsent) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// Create writes the user record at the identity's key and appends the user
// to the shared directory list, creating the list when it does not exist.
func (d *Directory) Create(ctx context.Context, id identity.Identity, firstName, lastName string) error {
	record := map[string]any{
		"first_name": firstName,
		"last_name":  lastName,
	}
	if err := d.store.Write(ctx, id.String(), record); err != nil {
		return fmt.Errorf("write user record: %w", err)
	}

	entry := map[string]any{
		"name":  firstName + " " + lastName,
		"email": id.String(),
	}

	value, err := d.store.Read(ctx, DirectoryKey)
	if errors.Is(err, remote.ErrAbsent) {
		return d.store.Write(ctx, DirectoryKey, []map[string]any{entry})
	}
	if err != nil {
		return fmt.Errorf("read user directory: %w", err)
	}
	list, ok := remote.List(value)
	if !ok {
		return fmt.Errorf("user directory has unexpected shape")
	}
	list = append(list, entry)
	if err := d.store.Write(ctx, DirectoryKey, list); err != nil {
		return fmt.Errorf("rewrite user directory: %w", err)
	}
	return nil
}

// List returns every directory entry, skipping malformed rows.
func (d *Directory) List(ctx context.Context) ([]Entry, error) {
	value, err := d.store.Read(ctx, DirectoryKey)
	if errors.Is(err, remote.ErrAbsent) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read user directory: %w", err)
	}
	raw, ok := remote.List(value)
	if !ok {
		return nil, fmt.Errorf("user directory has unexpected shape")
	}

	entries := make([]Entry, 0, len(raw))
	for _, rec := range raw {
		name, ok := rec["name"].(string)
		if !ok {
			d.logger.Warn("skipping malformed directory entry")
			continue
		}
		email, ok := rec["email"].(string)
		if !ok {
			d.logger.Warn("skipping malformed directory entry")
			continue
		}
		entries = append(entries, Entry{Name: name, Email: identity.Identity(email)})
	}
	return entries, nil
}

// DisplayName resolves "First Last" from a user record. ErrNotFound when no
// record exists for id.
func (d *Directory) DisplayName(ctx context.Context, id identity.Identity) (string, error) {
	value, err := d.store.Read(ctx, id.String())
	if errors.Is(err, remote.ErrAbsent) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", err
	}
	doc, ok := remote.Doc(value)
	if !ok {
		return "", fmt.Errorf("user record for %s has unexpected shape", id)
	}
	first, _ := doc["first_name"].(string)
	last, _ := doc["last_name"].(string)
	if first == "" && last == "" {
		return "", ErrNotFound
	}
	return first + " " + last, nil
}
