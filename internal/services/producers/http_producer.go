// Package producers holds the module signal producers and the runner that fans out to them.
package producers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"SignalFusion/internal/domain/models"
	domsvc "SignalFusion/internal/domain/service"
	"SignalFusion/pkg/config"
	xhttp "SignalFusion/pkg/http"
)

// HTTPProducer calls a remote module over JSON HTTP.
type HTTPProducer struct {
	id       string
	typ      models.ModuleType
	url      string
	attempts int
	client   *xhttp.Client
}

var _ domsvc.Producer = (*HTTPProducer)(nil)

func NewHTTPProducer(cfg config.RemoteProducer) *HTTPProducer {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	return &HTTPProducer{
		id:       cfg.ID,
		typ:      models.ModuleType(cfg.Type),
		url:      cfg.URL,
		attempts: cfg.Retries + 1,
		client:   xhttp.NewClient(xhttp.WithTimeout(timeout)),
	}
}

func (p *HTTPProducer) ID() string              { return p.id }
func (p *HTTPProducer) Type() models.ModuleType { return p.typ }

type analyzeReq struct {
	Pair      string          `json:"pair"`
	Timeframe string          `json:"timeframe"`
	Candles   []models.Candle `json:"candles"`
}

type analyzeResp struct {
	Signals []models.StandardSignal `json:"signals"`
}

// Analyze posts the window and returns the module's signals stamped with its id and type.
// A 422 from the module means it could not work with the data it got.
func (p *HTTPProducer) Analyze(ctx context.Context, candles []models.Candle, pair, timeframe string) ([]models.StandardSignal, error) {
	var resp analyzeResp
	req := analyzeReq{Pair: pair, Timeframe: timeframe, Candles: candles}

	var err error
	for i := 1; i <= p.attempts; i++ {
		err = p.client.SendAndParse(ctx, &xhttp.RequestOptions{
			Method: xhttp.MethodPost,
			URL:    p.url,
			Body:   req,
		}, &resp)
		if err == nil {
			break
		}
		var se *xhttp.StatusError
		if errors.As(err, &se) && se.Code < http.StatusInternalServerError {
			break
		}
		if i < p.attempts {
			select {
			case <-time.After(time.Duration(i) * 50 * time.Millisecond):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
	}
	if err != nil {
		var se *xhttp.StatusError
		if errors.As(err, &se) && se.Code == http.StatusUnprocessableEntity {
			return nil, fmt.Errorf("%s: %w", p.id, domsvc.ErrInsufficientData)
		}
		return nil, fmt.Errorf("%s analyze: %w", p.id, err)
	}

	now := time.Now().UTC()
	for i := range resp.Signals {
		s := &resp.Signals[i]
		s.ModuleID = p.id
		s.ModuleType = p.typ
		if s.Pair == "" {
			s.Pair = pair
		}
		if s.Timeframe == "" {
			s.Timeframe = timeframe
		}
		if s.Timestamp.IsZero() {
			s.Timestamp = now
		}
	}
	return resp.Signals, nil
}
