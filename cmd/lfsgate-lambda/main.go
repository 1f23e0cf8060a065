// Command lfsgate-lambda runs the gateway as an AWS Lambda function behind
// an API Gateway proxy integration, adapting proxy events to the same chi
// router the standalone server uses.
package main

import (
	"context"
	"io"
	"net/http"
	"strings"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	"github.com/sirupsen/logrus"

	"github.com/lfsgate/lfsgate/internal/config"
	"github.com/lfsgate/lfsgate/internal/gateway"
)

var router http.Handler

func init() {
	cfg, err := config.Load(nil)
	if err != nil {
		logrus.Fatalf("load config: %v", err)
	}
	log := logrus.New()
	log.SetFormatter(&logrus.JSONFormatter{})
	if level, err := logrus.ParseLevel(cfg.LogLevel); err == nil {
		log.SetLevel(level)
	}
	// No metrics listener in Lambda; there is nowhere to scrape it.
	router = gateway.New(cfg, log, nil, nil).Router()
}

func main() {
	lambda.Start(handle)
}

func handle(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	httpReq, err := newHTTPRequest(ctx, req)
	if err != nil {
		return events.APIGatewayProxyResponse{
			StatusCode: http.StatusInternalServerError,
			Body:       "internal server error",
		}, nil
	}

	rec := &responseRecorder{header: http.Header{}, statusCode: http.StatusOK}
	router.ServeHTTP(rec, httpReq)

	headers := make(map[string]string, len(rec.header))
	for key := range rec.header {
		headers[key] = rec.header.Get(key)
	}
	return events.APIGatewayProxyResponse{
		StatusCode: rec.statusCode,
		Headers:    headers,
		Body:       string(rec.body),
	}, nil
}

// newHTTPRequest rebuilds an http.Request from an API Gateway proxy event.
func newHTTPRequest(ctx context.Context, req events.APIGatewayProxyRequest) (*http.Request, error) {
	var body io.Reader
	if req.Body != "" {
		body = strings.NewReader(req.Body)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.HTTPMethod, req.Path, body)
	if err != nil {
		return nil, err
	}

	if req.QueryStringParameters != nil {
		query := httpReq.URL.Query()
		for param, value := range req.QueryStringParameters {
			query.Add(param, value)
		}
		httpReq.URL.RawQuery = query.Encode()
	}
	for key, value := range req.Headers {
		httpReq.Header.Add(key, value)
	}
	return httpReq, nil
}

// responseRecorder captures the router's response for conversion back into
// an API Gateway response.
type responseRecorder struct {
	header     http.Header
	body       []byte
	statusCode int
}

func (r *responseRecorder) Header() http.Header {
	return r.header
}

func (r *responseRecorder) Write(body []byte) (int, error) {
	r.body = append(r.body, body...)
	return len(body), nil
}

func (r *responseRecorder) WriteHeader(statusCode int) {
	r.statusCode = statusCode
}
