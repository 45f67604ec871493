package main

import (
	"context"
	"fmt"
	"path/filepath"

	"agriconnect/pkg/types"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/kelseyhightower/envconfig"
	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"
)

// loadConfig reads the environment. Variables may carry the --env-prefix
// prefix; the bare names are honoured as well.
func loadConfig(cCtx *cli.Context) (*types.Config, error) {
	c := new(types.Config)
	if err := envconfig.Process(cCtx.String("env-prefix"), c); err != nil {
		return nil, fmt.Errorf("process environment config: %w", err)
	}

	if c.ServerPort == 0 {
		c.ServerPort = 8080
	}

	if c.ReadTimeoutSec == 0 {
		c.ReadTimeoutSec = 10
	}

	if c.WriteTimeoutSec == 0 {
		c.WriteTimeoutSec = 15
	}

	if c.SubmissionsFile == "" {
		c.SubmissionsFile = filepath.Join(c.DataDir, "submissions.csv")
	}

	if c.SQLitePath == "" {
		c.SQLitePath = filepath.Join(c.DataDir, "agriconnect.db")
	}

	if c.ImageDir == "" {
		c.ImageDir = filepath.Join(c.DataDir, "images")
	}

	switch c.StoreDriver {
	case "csv", "sqlite":
	case "postgres":
		if c.DatabaseURL == "" {
			return nil, fmt.Errorf("set DATABASE_URL for the postgres store")
		}
	default:
		return nil, fmt.Errorf("unknown STORE_DRIVER %q", c.StoreDriver)
	}

	switch c.BlobDriver {
	case "local":
	case "s3":
		if c.S3Bucket == "" {
			return nil, fmt.Errorf("set S3_BUCKET for the s3 blob driver")
		}
	case "supabase":
		if c.SupabaseProjectID == "" || c.SupabaseAPIKey == "" {
			return nil, fmt.Errorf("set SUPABASE_PROJECT_ID and SUPABASE_API_KEY for the supabase blob driver")
		}
	default:
		return nil, fmt.Errorf("unknown BLOB_DRIVER %q", c.BlobDriver)
	}

	return c, nil
}

func loadAWSConfig(ctx context.Context) (aws.Config, error) {
	config, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		return aws.Config{}, fmt.Errorf("failed to load aws config: %w", err)
	}

	return config, nil
}

func newLogger(c *types.Config) *logrus.Logger {
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})

	level, err := logrus.ParseLevel(c.LogLevel)
	if err != nil {
		logger.WithError(err).Warn("unknown LOG_LEVEL, using info")
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)

	return logger
}
