// Command lambda serves the registration API from AWS Lambda behind an
// API Gateway HTTP API.
package main

import (
	"context"
	"log"

	"github.com/Shivanand-hulikatti/club-ride-registration/internal/config"
	"github.com/Shivanand-hulikatti/club-ride-registration/internal/server"
	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	"github.com/awslabs/aws-lambda-go-api-proxy/httpadapter"
)

func main() {
	cfg, err := config.Load("")
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	// Connections live as long as the execution environment.
	router, _, err := server.New(context.Background(), cfg)
	if err != nil {
		log.Fatalf("server: %v", err)
	}
	adapter := httpadapter.NewV2(router)

	lambda.Start(func(ctx context.Context, req events.APIGatewayV2HTTPRequest) (events.APIGatewayV2HTTPResponse, error) {
		return adapter.ProxyWithContext(ctx, req)
	})
}
