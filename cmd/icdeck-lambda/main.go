// Command icdeck-lambda serves the deck generator and the upload trigger as
// AWS Lambda functions. The configured handler name selects which one runs:
// "ingest" handles S3 notifications, anything else generates decks.
package main

import (
	"context"
	"fmt"
	"os"
	"sync"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	"go.uber.org/zap"

	"icdeck/internal/app"
	"icdeck/internal/config"
	"icdeck/internal/ingest"
	"icdeck/internal/logging"
)

// Response mirrors the status payload callers of the functions expect.
type Response struct {
	StatusCode int      `json:"statusCode"`
	Message    string   `json:"message"`
	Decks      []string `json:"decks,omitempty"`
}

// DeckRequest selects the clients to generate decks for; empty means all.
type DeckRequest struct {
	ClientIDs []string `json:"client_ids"`
}

type handlers struct {
	once sync.Once
	app  *app.App
	err  error
	log  *zap.Logger
}

// load builds the App on first use and reuses it while the container lives,
// so flows are initialized once per container.
func (h *handlers) load(ctx context.Context) (*app.App, error) {
	h.once.Do(func() {
		cfg, err := config.LoadConfig(os.Getenv("ICDECK_CONFIG"))
		if err != nil {
			h.err = err
			return
		}
		h.log, err = logging.New(cfg.Log.Level, cfg.Log.Format)
		if err != nil {
			h.err = err
			return
		}
		h.app, h.err = app.New(ctx, cfg, h.log)
	})
	return h.app, h.err
}

func (h *handlers) deck(ctx context.Context, req DeckRequest) (Response, error) {
	a, err := h.load(ctx)
	if err != nil {
		return Response{StatusCode: 500, Message: err.Error()}, nil
	}
	defer h.log.Sync()

	run, err := a.DeckRun()
	if err != nil {
		return Response{StatusCode: 500, Message: err.Error()}, nil
	}
	res, err := run.Run(ctx, req.ClientIDs)
	resp := Response{StatusCode: 200}
	for _, d := range res.Decks {
		resp.Decks = append(resp.Decks, d.Location)
	}
	if err != nil {
		resp.StatusCode = 500
		resp.Message = err.Error()
		return resp, nil
	}
	resp.Message = fmt.Sprintf("generated %d deck(s)", len(res.Decks))
	return resp, nil
}

func (h *handlers) ingest(ctx context.Context, ev events.S3Event) (Response, error) {
	a, err := h.load(ctx)
	if err != nil {
		return Response{StatusCode: 500, Message: err.Error()}, nil
	}
	defer h.log.Sync()

	tr, err := a.Trigger()
	if err != nil {
		return Response{StatusCode: 500, Message: err.Error()}, nil
	}
	outs, err := tr.Handle(ctx, ev)
	if err != nil {
		return Response{StatusCode: 500, Message: err.Error()}, nil
	}
	provisioned := 0
	for _, o := range outs {
		if o.Action == ingest.ActionProvisioned {
			provisioned++
		}
	}
	if provisioned == 0 {
		return Response{StatusCode: 200, Message: "No action required for this file"}, nil
	}
	return Response{StatusCode: 200, Message: fmt.Sprintf("provisioned %d data source(s)", provisioned)}, nil
}

func main() {
	h := &handlers{}
	if os.Getenv("_HANDLER") == "ingest" {
		lambda.Start(h.ingest)
		return
	}
	lambda.Start(h.deck)
}
