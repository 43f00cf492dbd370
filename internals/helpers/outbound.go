package helper

import (
	"context"
	"time"

	"github.com/bytedance/sonic"
	"github.com/gofiber/fiber/v2"
)

// Outbound describes one call to a third-party HTTP API.
type Outbound struct {
	Method    string
	URL       string
	Headers   map[string]string
	BasicUser string
	BasicPass string
	JSON      any
}

type OutboundResponse struct {
	Status int
	Body   []byte
}

func (r OutboundResponse) OK() bool { return r.Status >= 200 && r.Status < 300 }

// Send performs the request with fiber's client. The effective timeout is the smaller of
// timeout and the time left on ctx. A returned error always means a transport failure;
// any HTTP status (including 4xx/5xx) comes back in OutboundResponse.
func Send(ctx context.Context, timeout time.Duration, req Outbound) (OutboundResponse, error) {
	if err := ctx.Err(); err != nil {
		return OutboundResponse{}, err
	}
	if dl, ok := ctx.Deadline(); ok {
		if left := time.Until(dl); left < timeout {
			timeout = left
		}
	}
	if timeout <= 0 {
		return OutboundResponse{}, context.DeadlineExceeded
	}

	a := fiber.AcquireAgent()
	r := a.Request()
	r.Header.SetMethod(req.Method)
	r.SetRequestURI(req.URL)
	a.Set(fiber.HeaderAccept, fiber.MIMEApplicationJSON)
	for k, v := range req.Headers {
		a.Set(k, v)
	}
	if req.BasicUser != "" || req.BasicPass != "" {
		a.BasicAuth(req.BasicUser, req.BasicPass)
	}
	if req.JSON != nil {
		a.JSONEncoder(sonic.Marshal).JSON(req.JSON)
	}
	a.Timeout(timeout)

	if err := a.Parse(); err != nil {
		fiber.ReleaseAgent(a)
		return OutboundResponse{}, err
	}

	code, body, errs := a.Bytes()
	if len(errs) > 0 {
		return OutboundResponse{Status: code}, errs[0]
	}
	return OutboundResponse{Status: code, Body: body}, nil
}
