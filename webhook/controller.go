package webhook

import (
	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-router"

	auth "github.com/nidohq/nido-auth"
)

// Controller exposes the provider callback endpoint. It owns the HTTP
// surface for deliveries so the core auth controller stays free of
// provider concerns.
type Controller struct {
	verifier  *Verifier
	processor *Processor
	logger    auth.Logger
}

func NewController(verifier *Verifier, processor *Processor) *Controller {
	return &Controller{
		verifier:  verifier,
		processor: processor,
		logger:    auth.DefaultLogger(),
	}
}

func (c *Controller) WithLogger(logger auth.Logger) *Controller {
	if logger != nil {
		c.logger = logger
	}
	return c
}

// RegisterRoutes wires the callback route on the given group.
func (c *Controller) RegisterRoutes(group auth.RouteRegistrar) {
	group.Post("/webhooks/kyc", c.Receive)
}

// Receive authenticates and applies a verification provider callback.
func (c *Controller) Receive(ctx router.Context) error {
	body := ctx.Body()

	headers := Headers{
		Timestamp:       ctx.Header(HeaderTimestamp),
		SignatureV2:     ctx.Header(HeaderSignatureV2),
		SignatureSimple: ctx.Header(HeaderSignatureSimple),
	}

	if err := c.verifier.Verify(body, headers); err != nil {
		c.logger.Warn("webhook rejected", "error", err)
		return c.handleError(ctx, err)
	}

	event, err := ParseEvent(body)
	if err != nil {
		return c.handleError(ctx, err)
	}

	if err := c.processor.Process(ctx.Context(), event); err != nil {
		return c.handleError(ctx, err)
	}

	return ctx.JSON(router.StatusOK, map[string]any{
		"received": true,
	})
}

func (c *Controller) handleError(ctx router.Context, err error) error {
	var richErr *goerrors.Error
	if !goerrors.As(err, &richErr) {
		richErr = goerrors.Wrap(err, goerrors.CategoryInternal, "An unexpected server error occurred").
			WithCode(goerrors.CodeInternal)
	}

	status := richErr.Code
	if status == 0 {
		switch richErr.Category {
		case goerrors.CategoryAuth:
			status = router.StatusUnauthorized
		case goerrors.CategoryBadInput, goerrors.CategoryValidation:
			status = router.StatusBadRequest
		default:
			status = router.StatusInternalServerError
		}
	}

	return ctx.JSON(status, map[string]any{
		"error":     richErr.Message,
		"text_code": richErr.TextCode,
	})
}
