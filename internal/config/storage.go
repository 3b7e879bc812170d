package config

import (
	"context"

	"github.com/vango-dev/campusdesk/internal/errors"
	"github.com/vango-dev/campusdesk/pkg/persist"
)

// OpenStorage builds the persistence backend selected by the Persist
// section. The caller owns the returned storage and must Close it.
func (c *Config) OpenStorage(ctx context.Context) (persist.Storage, error) {
	p := c.Persist
	switch p.Backend {
	case BackendMemory, "":
		return persist.NewMemoryStorage(), nil
	case BackendFile:
		return persist.NewFileStorage(p.Dir), nil
	case BackendSQLite:
		st, err := persist.OpenSQLite(ctx, p.DSN)
		if err != nil {
			return nil, errors.New("E020").WithDetail("open sqlite " + p.DSN).Wrap(err)
		}
		return st, nil
	case BackendS3:
		client := persist.NewS3Client(persist.S3ClientConfig{
			Region:          p.Region,
			Endpoint:        p.Endpoint,
			UsePathStyle:    p.Endpoint != "",
			AccessKeyID:     p.AccessKeyID,
			SecretAccessKey: p.SecretAccessKey,
		})
		return persist.NewS3Storage(client, p.Bucket, p.Prefix), nil
	}
	return nil, errors.New("E123").WithDetail("Got " + p.Backend)
}

// PersistorConfig returns the persistor settings.
func (c *Config) PersistorConfig() persist.Config {
	return persist.Config{
		Key:       c.Persist.Key,
		Whitelist: c.Persist.Whitelist,
		Version:   c.Persist.Version,
		Throttle:  c.PersistThrottle(),
	}
}
