// Package boot wires the kitchen service from environment configuration.
//
// The web server, the Lambda entrypoint and the CLI all need some subset of:
// AWS config, the S3 result publisher, a history sink, the model API key and
// a startup summary. Each binary composes them through Build.
package boot

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/rs/zerolog/log"

	"github.com/fpang/genai-kitchen/internal/api"
	"github.com/fpang/genai-kitchen/internal/auth"
	"github.com/fpang/genai-kitchen/internal/inference"
	"github.com/fpang/genai-kitchen/internal/kitchen"
	"github.com/fpang/genai-kitchen/internal/logging"
	"github.com/fpang/genai-kitchen/internal/persist"
	"github.com/fpang/genai-kitchen/internal/s3util"
)

// Environment variables read by ConfigFromEnv.
const (
	EnvS3Bucket    = "KITCHEN_S3_BUCKET"
	EnvHistoryDir  = "KITCHEN_HISTORY_DIR"
	EnvDynamoTable = "KITCHEN_DYNAMO_TABLE"
	EnvWorkspace   = "KITCHEN_WORKSPACE"
)

// Config selects the optional backends.
type Config struct {
	Name        string // binary name for the startup log
	CommitHash  string
	S3Bucket    string // publish results and, without another sink, history
	HistoryDir  string
	DynamoTable string
	Workspace   string
	ValidateKey bool // make a test call to the model at startup
}

// ConfigFromEnv fills a Config from the KITCHEN_* variables.
func ConfigFromEnv(name string) Config {
	return Config{
		Name:        name,
		S3Bucket:    os.Getenv(EnvS3Bucket),
		HistoryDir:  os.Getenv(EnvHistoryDir),
		DynamoTable: os.Getenv(EnvDynamoTable),
		Workspace:   logging.EnvOrDefault(EnvWorkspace, kitchen.DefaultWorkspace),
	}
}

// needsAWS reports whether any configured backend talks to AWS.
func (c Config) needsAWS() bool {
	return c.S3Bucket != "" || c.DynamoTable != "" ||
		(os.Getenv("GEMINI_API_KEY") == "" && os.Getenv("SSM_API_KEY_PARAM") != "")
}

// App is a fully wired service and its HTTP front.
type App struct {
	Service *kitchen.Service
	Server  *api.Server
	Gemini  *inference.GeminiClient
	Startup *logging.StartupLogger
}

// Build loads the API key, creates the Gemini client and the optional AWS
// backends, and returns the service ready to serve. The returned StartupLogger
// has not been logged yet.
func Build(ctx context.Context, cfg Config) (*App, error) {
	start := time.Now()
	startup := logging.NewStartupLogger(cfg.Name).CommitHash(cfg.CommitHash)

	var awsCfg aws.Config
	if cfg.needsAWS() {
		var err error
		awsCfg, err = awsconfig.LoadDefaultConfig(ctx)
		if err != nil {
			return nil, fmt.Errorf("load AWS config: %w", err)
		}
		log.Debug().Str("region", awsCfg.Region).Msg("AWS config loaded")
	}

	var params auth.ParameterGetter
	if cfg.needsAWS() {
		params = ssm.NewFromConfig(awsCfg)
		startup.SSMParam("apiKey", os.Getenv("SSM_API_KEY_PARAM"))
	}
	apiKey, err := auth.GetAPIKey(ctx, params)
	if err != nil {
		return nil, err
	}

	gemini, err := inference.NewGeminiClient(ctx, apiKey)
	if err != nil {
		return nil, err
	}
	if cfg.ValidateKey {
		if err := inference.ValidateKey(ctx, gemini.Models()); err != nil {
			return nil, fmt.Errorf("validate API key: %w", err)
		}
		log.Info().Msg("API key validated")
	}

	opts := []kitchen.Option{}
	var s3Client *s3.Client
	if cfg.S3Bucket != "" {
		s3Client = s3.NewFromConfig(awsCfg)
		pub := s3util.NewPublisher(s3Client, s3.NewPresignClient(s3Client), cfg.S3Bucket, "results", 0)
		opts = append(opts, kitchen.WithPublisher(pub))
		startup.Resource("resultBucket", cfg.S3Bucket)
	}

	sink, err := selectSink(cfg, awsCfg, s3Client)
	if err != nil {
		return nil, err
	}
	if sink != nil {
		opts = append(opts, kitchen.WithPersistence(sink, cfg.Workspace))
	}
	startup.
		Resource("historyTable", cfg.DynamoTable).
		Config("historyDir", cfg.HistoryDir).
		Config("workspace", cfg.Workspace).
		Config("model", inference.GetModelName()).
		Feature("persistence", sink != nil).
		Feature("s3Publish", cfg.S3Bucket != "")

	svc, err := kitchen.NewService(ctx, gemini, opts...)
	if err != nil {
		return nil, err
	}

	authn, err := auth.NewAuthenticatorFromEnv()
	if err != nil {
		return nil, err
	}
	startup.Feature("jwtSecretFromEnv", os.Getenv("KITCHEN_JWT_SECRET") != "")

	startup.InitDuration(time.Since(start))
	return &App{
		Service: svc,
		Server:  api.NewServer(svc, authn),
		Gemini:  gemini,
		Startup: startup,
	}, nil
}

// selectSink picks the history store: DynamoDB, then a local directory, then
// the S3 bucket. No backend configured means history lives in memory only.
func selectSink(cfg Config, awsCfg aws.Config, s3Client *s3.Client) (persist.Sink, error) {
	switch {
	case cfg.DynamoTable != "":
		return persist.NewDynamoSink(dynamodb.NewFromConfig(awsCfg), cfg.DynamoTable, 0), nil
	case cfg.HistoryDir != "":
		fs, err := persist.NewFileSink(cfg.HistoryDir)
		if err != nil {
			return nil, err
		}
		return fs, nil
	case s3Client != nil:
		return persist.NewS3Sink(s3Client, cfg.S3Bucket, "history"), nil
	}
	log.Warn().Msg("No history backend configured, workspace history is not persisted")
	return nil, nil
}

// ErrMissingBucket is returned by RequireBucket.
var ErrMissingBucket = errors.New("boot: " + EnvS3Bucket + " is required")

// RequireBucket fails when the Lambda deployment has no result bucket, since
// data URIs in responses would exceed the API Gateway payload limit.
func RequireBucket(cfg Config) error {
	if cfg.S3Bucket == "" {
		return ErrMissingBucket
	}
	return nil
}
