// Package snapshots archives a copy of a profile row to object storage
// right before it is relocated between role tables. If a migration ever
// half-completes despite the transaction (operator error, restored dump),
// the snapshot is the recovery source.
package snapshots

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/aqylal/apiserver/types"
)

const keyPrefix = "role-migrations"

// Backend is the object-storage operation set the archive needs.
type Backend interface {
	EnsureBucket(ctx context.Context) error
	Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error
	Get(ctx context.Context, key string) (io.ReadCloser, error)
	Bucket() string
}

// Archive stores pre-migration profile snapshots.
type Archive struct {
	backend Backend
}

// NewArchive constructs an Archive over the provided backend.
func NewArchive(backend Backend) *Archive {
	return &Archive{backend: backend}
}

// EnsureBucket ensures the configured bucket exists.
func (a *Archive) EnsureBucket(ctx context.Context) error {
	return a.backend.EnsureBucket(ctx)
}

// SaveProfile uploads the profile as JSON and returns the object key.
func (a *Archive) SaveProfile(ctx context.Context, profile types.Profile) (string, error) {
	data, err := json.Marshal(profile)
	if err != nil {
		return "", err
	}

	key := fmt.Sprintf("%s/%s-%d-%d.json", keyPrefix, profile.Table, profile.ID, time.Now().UnixNano())
	if err := a.backend.Put(ctx, key, bytes.NewReader(data), int64(len(data)), "application/json"); err != nil {
		return "", err
	}
	return key, nil
}

// LoadProfile reads a previously saved snapshot back.
func (a *Archive) LoadProfile(ctx context.Context, key string) (types.Profile, error) {
	reader, err := a.backend.Get(ctx, key)
	if err != nil {
		return types.Profile{}, err
	}
	defer reader.Close()

	var profile types.Profile
	if err := json.NewDecoder(reader).Decode(&profile); err != nil {
		return types.Profile{}, err
	}
	return profile, nil
}
