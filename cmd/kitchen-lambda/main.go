// Package main serves the kitchen HTTP API from AWS Lambda behind an
// API Gateway HTTP API (payload v2).
//
// Generated images are uploaded to KITCHEN_S3_BUCKET and returned as
// presigned URLs. Workspace history is stored in KITCHEN_DYNAMO_TABLE when set.
package main

import (
	"context"
	"net/http"
	"time"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/awslabs/aws-lambda-go-api-proxy/httpadapter"
	"github.com/rs/zerolog/log"

	"github.com/fpang/genai-kitchen/internal/boot"
	"github.com/fpang/genai-kitchen/internal/logging"
)

var handler http.Handler

func init() {
	initStart := time.Now()
	logging.Init()

	cfg := boot.ConfigFromEnv("kitchen-lambda")
	cfg.CommitHash = commitHash
	if err := boot.RequireBucket(cfg); err != nil {
		log.Fatal().Err(err).Msg("Invalid configuration")
	}

	app, err := boot.Build(context.Background(), cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Cold start failed")
	}
	app.Startup.InitDuration(time.Since(initStart)).Log()

	handler = app.Server.Handler()
}

func main() {
	adapter := httpadapter.NewV2(handler)
	lambda.Start(adapter.ProxyWithContext)
}
