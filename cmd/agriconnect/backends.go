package main

import (
	"context"
	"fmt"

	"agriconnect/internal/db"
	"agriconnect/internal/mrv"
	"agriconnect/internal/storage"
	"agriconnect/internal/store"
	"agriconnect/pkg/types"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/sirupsen/logrus"
)

// openStore opens the submission store selected by STORE_DRIVER. The
// returned func releases it.
func openStore(ctx context.Context, c *types.Config, logger logrus.FieldLogger) (mrv.Store, func(), error) {
	switch c.StoreDriver {
	case "postgres":
		pool, err := db.Connect(ctx, c)
		if err != nil {
			return nil, nil, err
		}
		return store.NewSubmissionRepository(pool), pool.Close, nil

	case "sqlite":
		gdb, err := db.OpenSQLite(c.SQLitePath, logger, &store.SubmissionRow{})
		if err != nil {
			return nil, nil, err
		}
		closer := func() {
			if sqlDB, err := gdb.DB(); err == nil {
				_ = sqlDB.Close()
			}
		}
		return store.NewSQLiteRepository(gdb), closer, nil

	default:
		repo, err := store.OpenFileRepository(c.SubmissionsFile)
		if err != nil {
			return nil, nil, err
		}
		return repo, func() {}, nil
	}
}

func openImages(ctx context.Context, c *types.Config) (storage.ImageStore, error) {
	switch c.BlobDriver {
	case "s3":
		awsConfig, err := loadAWSConfig(ctx)
		if err != nil {
			return nil, err
		}
		return storage.NewS3Storage(s3.NewFromConfig(awsConfig), c.S3Bucket, c.S3Prefix), nil

	case "supabase":
		return storage.NewSupabaseStorage(c.SupabaseProjectID, c.SupabaseAPIKey, c.SupabaseBucket), nil

	default:
		return storage.NewLocalStorage(c.ImageDir), nil
	}
}

// openWorkflow wires the configured store and image backends into an mrv
// service.
func openWorkflow(ctx context.Context, c *types.Config, logger logrus.FieldLogger) (*mrv.Service, func(), error) {
	subs, closeStore, err := openStore(ctx, c, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("open %s store: %w", c.StoreDriver, err)
	}

	images, err := openImages(ctx, c)
	if err != nil {
		closeStore()
		return nil, nil, fmt.Errorf("open %s image store: %w", c.BlobDriver, err)
	}

	logger.WithFields(logrus.Fields{
		"store": c.StoreDriver,
		"blobs": c.BlobDriver,
	}).Info("workflow backends ready")

	return mrv.New(subs, images, logger), closeStore, nil
}

// cliOfficial is the actor command line tools act as.
var cliOfficial = types.Actor{
	Role: types.RoleOfficial,
	Name: "agriconnect-cli",
	ID:   types.ActorID(types.RoleOfficial, "agriconnect-cli"),
}
